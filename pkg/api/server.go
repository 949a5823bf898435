package api

import (
	"context"
	"net/http"
	"time"

	"github.com/cognitodev/launchpad/pkg/llm"
	"github.com/cognitodev/launchpad/pkg/logger"
	"github.com/cognitodev/launchpad/pkg/session"
	"github.com/cognitodev/launchpad/pkg/starter"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type ServerOpts struct {
	Manager *session.Manager
	Catalog *starter.Catalog
	// Gateway serves the /template and /chat relay endpoints
	Gateway llm.Gateway
	Hub     *Hub
	// BaseContext bounds builds started over HTTP; defaults to context.Background
	BaseContext context.Context
}

type Server struct {
	manager *session.Manager
	catalog *starter.Catalog
	gateway llm.Gateway
	hub     *Hub
	baseCtx context.Context
}

func NewServer(opts ServerOpts) *Server {
	if opts.BaseContext == nil {
		opts.BaseContext = context.Background()
	}
	if opts.Hub == nil {
		opts.Hub = NewHub()
	}

	return &Server{
		manager: opts.Manager,
		catalog: opts.Catalog,
		gateway: opts.Gateway,
		hub:     opts.Hub,
		baseCtx: opts.BaseContext,
	}
}

func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLoggingMiddleware())
	router.Use(corsMiddleware())

	router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "Server is running"})
	})
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})

	router.POST("/template", s.Template)
	router.POST("/chat", s.Chat)

	api := router.Group("/api")
	api.GET("/templates", s.ListTemplates)
	api.POST("/sessions", s.CreateSession)
	api.GET("/sessions/:id", s.GetSession)
	api.DELETE("/sessions/:id", s.DeleteSession)
	api.POST("/sessions/:id/messages", s.SendMessage)
	api.PUT("/sessions/:id/files", s.PutFile)
	api.PATCH("/sessions/:id/files", s.PatchFile)
	api.POST("/sessions/:id/refresh", s.Refresh)
	api.GET("/sessions/:id/events", s.StreamEvents)

	return router
}

func requestLoggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("clientIP", c.ClientIP()),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}
		logger.Debug("request", fields...)
	}
}

// corsMiddleware allows every origin; the preview UI is served from several hosts.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusOK)
			return
		}
		c.Next()
	}
}
