package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/user/llm-proxy-go/internal/version"
)

// Health handles GET /health: a liveness probe with no dependency checks.
func Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Root handles GET /: minimal service info.
func Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service": "llm-proxy-go",
		"version": version.Short(),
	})
}
