package http_api

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/avireply/avireply/internal/models"
	"github.com/avireply/avireply/pkg/logger"
)

const (
	// ShutdownTimeout is the maximum time to wait for graceful shutdown
	ShutdownTimeout = 10 * time.Second

	requestIDHeader  = "X-Request-ID"
	adminTokenHeader = "X-Admin-Token"
)

// HTTPServer is the HTTP server struct that will serve the API
type HTTPServer struct {
	// logger is the logger instance
	logger *logger.Logger

	// router is the HTTP router
	router *gin.Engine
	// port is the port on which the server will listen
	port int

	// server is the underlying HTTP server
	server *http.Server

	// app is the main application struct
	app models.AvireplyI

	// webhook receives Telegram updates, nil in long polling mode
	webhook    http.Handler
	adminToken string
}

// NewHTTPServer creates a new HTTP server instance
func NewHTTPServer(app models.AvireplyI, port int, adminToken string, webhook http.Handler, logger *logger.Logger) *HTTPServer {
	router := gin.Default()

	config := cors.DefaultConfig()
	config.AllowAllOrigins = true
	config.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", adminTokenHeader}
	router.Use(cors.New(config))
	router.Use(requestID())

	server := &HTTPServer{
		router:     router,
		port:       port,
		app:        app,
		logger:     logger,
		webhook:    webhook,
		adminToken: adminToken,
	}

	// Define routes
	server.routes()

	return server
}

var _ models.APIServer = (*HTTPServer)(nil)

// Handler exposes the router, mainly for tests.
func (s *HTTPServer) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server
func (s *HTTPServer) Start() {
	addr := fmt.Sprintf("0.0.0.0:%v", s.port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info("Starting HTTP server", "address", addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		s.logger.Fatal("Failed to start the HTTP server", "error", err)
	}
}

// Shutdown gracefully shuts down the HTTP server
func (s *HTTPServer) Shutdown() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()

	s.logger.Info("Shutting down HTTP server...")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("HTTP server shutdown error: %w", err)
	}

	s.logger.Info("HTTP server shut down successfully")
	return nil
}

// requestID tags every request with an ID, reusing the caller's when present.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Writer.Header().Set(requestIDHeader, id)
		c.Next()
	}
}

// adminOnly rejects requests without the admin token. With no token configured
// the admin routes are disabled.
func (s *HTTPServer) adminOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.adminToken == "" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"success": false, "error": "Admin API is disabled"})
			return
		}
		if subtle.ConstantTimeCompare([]byte(c.GetHeader(adminTokenHeader)), []byte(s.adminToken)) != 1 {
			s.logger.Warn("Rejected admin request", "path", c.FullPath(), "request_id", c.GetString("request_id"))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "error": "Invalid admin token"})
			return
		}
		c.Next()
	}
}
