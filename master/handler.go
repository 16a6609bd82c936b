package main

import (
	"net/http"

	"github.com/automoto/arena-sync/shared/protocol"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const maxRequestBody = 1 << 16 // 64 KB

func errorBody(msg string) gin.H { return gin.H{"error": msg} }

func ListSessions(reg *Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, reg.List())
	}
}

func RegisterSession(reg *Registry, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req protocol.RegisterRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, errorBody("invalid json"))
			return
		}
		if req.Name == "" || req.Address == "" || req.SessionID == "" {
			c.JSON(http.StatusBadRequest, errorBody("sessionId, name and address required"))
			return
		}

		id := reg.Register(protocol.SessionInfo{
			SessionID: req.SessionID,
			Name:      req.Name,
			Address:   req.Address,
			Players:   req.Players,
			State:     req.State,
			Version:   req.Version,
			Region:    req.Region,
		})

		log.Info("registered session",
			zap.String("name", req.Name),
			zap.String("address", req.Address),
			zap.String("session", req.SessionID),
			zap.String("id", id))
		c.JSON(http.StatusCreated, protocol.RegisterResponse{ID: id})
	}
}

func Heartbeat(reg *Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req protocol.HeartbeatRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, errorBody("invalid json"))
			return
		}
		if !reg.Heartbeat(req.ID, req.Players, req.State) {
			c.JSON(http.StatusNotFound, errorBody("unknown session"))
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

func Health() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}
