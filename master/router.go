package main

import (
	"net/http"
	"time"

	"github.com/automoto/arena-sync/config"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// NewRouter wires every master endpoint. auth may be nil when no signer is
// configured; the authorization routes are then not served, and lim is only
// used for them.
func NewRouter(cfg config.MasterConfig, reg *Registry, auth *Authorizer, lim *ipLimiter, logger *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLog(logger.Named("http")), limitBody())

	r.GET("/health", Health())
	r.GET("/sessions", ListSessions(reg))
	r.POST("/sessions/register", RegisterSession(reg, logger.Named("directory")))
	r.POST("/sessions/heartbeat", Heartbeat(reg))
	r.GET("/metadata/:level/:file", Metadata(cfg.Metadata))

	if auth != nil {
		if lim == nil {
			lim = newIPLimiter(cfg.RatePerSecond, cfg.RateBurst, limiterIdle, nil)
		}
		api := r.Group("/api", lim.middleware())
		api.POST("/mint-authorization", auth.Mint())
		api.POST("/evolve-authorization", auth.Evolve())
	}
	return r
}

func limitBody() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxRequestBody)
		c.Next()
	}
}

func requestLog(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("took", time.Since(start)))
	}
}
