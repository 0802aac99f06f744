package api

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/verassium/internal/api/auth"
	"github.com/verassium/internal/session"
)

// Server represents the API server
type Server struct {
	echo        *echo.Echo
	port        int
	coordinator *session.Coordinator
	jwtSecret   string
}

// NewServer creates a new API server around the session coordinator.
func NewServer(port int, coordinator *session.Coordinator, jwtSecret string) *Server {
	e := echo.New()
	e.HideBanner = true

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	server := &Server{
		echo:        e,
		port:        port,
		coordinator: coordinator,
		jwtSecret:   jwtSecret,
	}

	// Setup routes
	server.setupRoutes()

	return server
}

// setupRoutes configures all API endpoints
func (s *Server) setupRoutes() {
	// Health check endpoint
	s.echo.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status": "healthy",
		})
	})

	api := s.echo.Group("/api", auth.RequireAuth(s.jwtSecret))

	// Turn exchange
	api.POST("/chat", s.exchange)
	api.POST("/chat/retry", s.retry)
	api.GET("/models", s.listModels)

	// Conversation CRUD
	api.GET("/chats", s.listChats)
	api.GET("/chats/:chatId/messages", s.listMessages)
	api.PATCH("/chats/:chatId", s.renameChat)
	api.DELETE("/chats/:chatId", s.deleteChat)
}

// Start begins the API server
func (s *Server) Start() error {
	// Start server in a goroutine
	go func() {
		if err := s.echo.Start(fmt.Sprintf(":%d", s.port)); err != nil && err != http.ErrServerClosed {
			s.echo.Logger.Fatal("shutting down the server")
		}
	}()

	// Wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return s.echo.Shutdown(ctx)
}
