package api

import (
	"github.com/gin-gonic/gin"
	"github.com/user/llm-proxy-go/internal/api/handler"
	"github.com/user/llm-proxy-go/internal/api/middleware"
	"github.com/user/llm-proxy-go/internal/repository"
	"github.com/user/llm-proxy-go/internal/security"
	"github.com/user/llm-proxy-go/internal/service"
	"go.uber.org/zap"
)

// Server wraps the HTTP server and its router.
type Server struct {
	router *gin.Engine
	logger *zap.Logger
}

// ServerDeps holds all dependencies the route tree needs to wire handlers
// and middleware together. This is the full dependency set spec.md §6
// requires — no more, no less.
type ServerDeps struct {
	ProxyService *service.ProxyService
	MappingRepo  repository.ModelMappingRepository
	KeyRepo      repository.APIKeyRepository
	AdminAuth    *security.AdminAuth
	RateLimit    *middleware.RateLimitConfig
	Logger       *zap.Logger
}

// NewServer builds the route tree spec.md §6 describes: the OpenAI/
// Anthropic proxy endpoints behind API-key auth, unauthenticated health/root
// probes, and the out-of-scope admin/auth groups behind admin-token auth,
// rendering a fixed 501 shape.
func NewServer(deps ServerDeps) *Server {
	logger := deps.Logger

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(middleware.Logger(logger))
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.RateLimit(deps.RateLimit))

	r.GET("/", handler.Root)
	r.GET("/health", handler.Health)

	proxyHandler := handler.NewProxyHandler(deps.ProxyService, deps.MappingRepo, logger)

	v1 := r.Group("/v1")
	v1.Use(middleware.RequireAPIKey(deps.KeyRepo))
	{
		v1.POST("/chat/completions", proxyHandler.ChatCompletions)
		v1.POST("/completions", proxyHandler.Completions)
		v1.POST("/embeddings", proxyHandler.Embeddings)
		v1.POST("/messages", proxyHandler.Messages)
		v1.GET("/models", proxyHandler.Models)
	}

	admin := r.Group("/admin")
	admin.Use(middleware.RequireAdminToken(deps.AdminAuth))
	{
		admin.Any("/*path", handler.AdminNotImplemented)
	}

	auth := r.Group("/auth")
	{
		auth.POST("/login", handler.AdminNotImplemented)
		auth.GET("/status", middleware.RequireAdminToken(deps.AdminAuth), handler.AdminNotImplemented)
		auth.POST("/logout", middleware.RequireAdminToken(deps.AdminAuth), handler.AdminNotImplemented)
	}

	return &Server{router: r, logger: logger}
}

// Handler returns the underlying http.Handler for use with http.Server.
func (s *Server) Handler() *gin.Engine {
	return s.router
}
