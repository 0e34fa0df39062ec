package handler

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/camp-checkin-api/internal/middleware"
	"github.com/noah-isme/camp-checkin-api/internal/models"
)

const (
	// stationHeader identifies the scanner device submitting a check-in.
	stationHeader    = "X-Station-ID"
	contextClaimsKey = middleware.ContextUserKey
)

func sessionFromContext(c *gin.Context) models.Session {
	return middleware.CurrentSession(c)
}

func requestMeta(c *gin.Context) models.LoginRequest {
	return models.LoginRequest{IP: c.ClientIP(), UserAgent: c.GetHeader("User-Agent")}
}

func queryInt(c *gin.Context, key string, fallback int) int {
	if v, err := strconv.Atoi(strings.TrimSpace(c.Query(key))); err == nil {
		return v
	}
	return fallback
}

func queryBool(c *gin.Context, key string) *bool {
	v, err := strconv.ParseBool(strings.TrimSpace(c.Query(key)))
	if err != nil {
		return nil
	}
	return &v
}
