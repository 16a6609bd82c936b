package main

import (
	"fmt"
	"math/big"
	"net/http"
	"strconv"
	"strings"

	"github.com/automoto/arena-sync/config"
	"github.com/automoto/arena-sync/shared/netconfig"
	"github.com/gin-gonic/gin"
)

type attribute struct {
	TraitType string `json:"trait_type"`
	Value     int    `json:"value"`
}

type tokenMetadata struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Image       string      `json:"image"`
	Attributes  []attribute `json:"attributes"`
}

// parseLevel accepts "level1".."level10".
func parseLevel(s string) (int, bool) {
	n, ok := strings.CutPrefix(s, "level")
	if !ok || n == "" || n[0] == '0' {
		return 0, false
	}
	lvl, err := strconv.Atoi(n)
	if err != nil || lvl < netconfig.MinTokenLevel || lvl > netconfig.MaxTokenLevel {
		return 0, false
	}
	return lvl, true
}

// parseTokenID accepts a non-negative decimal token id.
func parseTokenID(s string) (*big.Int, bool) {
	if s == "" || strings.TrimLeft(s, "0123456789") != "" {
		return nil, false
	}
	return new(big.Int).SetString(s, 10)
}

// Metadata serves GET /metadata/level{N}/{tokenId}.json.
func Metadata(cfg config.MetadataConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		lvl, ok := parseLevel(c.Param("level"))
		if !ok {
			c.JSON(http.StatusNotFound, errorBody("unknown level"))
			return
		}
		raw, ok := strings.CutSuffix(c.Param("file"), ".json")
		if !ok {
			c.JSON(http.StatusNotFound, errorBody("not found"))
			return
		}
		tokenID, ok := parseTokenID(raw)
		if !ok {
			c.JSON(http.StatusNotFound, errorBody("invalid token id"))
			return
		}

		c.JSON(http.StatusOK, tokenMetadata{
			Name:        fmt.Sprintf("%s #%s", cfg.CollectionName, tokenID),
			Description: fmt.Sprintf("Level %d %s", lvl, cfg.CollectionName),
			Image:       fmt.Sprintf("%s/level%d.png", strings.TrimSuffix(cfg.ImageBaseURL, "/"), lvl),
			Attributes:  []attribute{{TraitType: "Level", Value: lvl}},
		})
	}
}
