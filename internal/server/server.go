package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"duet-chat/config"
	"duet-chat/internal/handler"
	"duet-chat/internal/middleware"
	"duet-chat/internal/observability"
	"duet-chat/internal/services"
	"duet-chat/internal/transport/httpdto"
	"duet-chat/internal/websocket"
	"duet-chat/pkg/logger"

	"github.com/gin-gonic/gin"
)

type Server struct {
	httpServer *http.Server
	engine     *gin.Engine
	config     *config.Config
	logger     *logger.Logger
	gateway    *websocket.Gateway
}

var (
	ReleaseMode = "release"
	DebugMode   = "debug"
	TestMode    = "test"
)

type Handlers struct {
	Messages *handler.MessageHandler
	Gateway  *websocket.Gateway
}

// Dependencies are the cross-cutting collaborators the routes need.
// Limiter and Health are optional.
type Dependencies struct {
	Auth    services.Authenticator
	Limiter middleware.MessageLimiter
	Health  func(ctx context.Context) error
}

func New(cfg *config.Config, l *logger.Logger) *Server {
	if cfg.AppMode == ReleaseMode {
		gin.SetMode(gin.ReleaseMode)
	} else if cfg.AppMode == TestMode {
		gin.SetMode(gin.TestMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())

	return &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf(":%s", cfg.AppPort),
			Handler:           engine,
			ReadHeaderTimeout: 10 * time.Second,
		},
		engine: engine,
		config: cfg,
		logger: l,
	}
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) SetupRoutes(handlers *Handlers, deps Dependencies) {
	s.gateway = handlers.Gateway

	s.engine.Use(middleware.RequestIDMiddleware())
	s.engine.Use(middleware.CORSMiddleware(s.config.ClientOrigin))
	s.engine.Use(middleware.LoggingMiddleware(s.logger))
	s.engine.Use(observability.HTTPMetricsMiddleware())
	s.engine.Use(middleware.ErrorHandler(s.logger))
	s.engine.Use(middleware.BodyLimitMiddleware(int64(s.config.MaxBodyBytes)))

	s.engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, httpdto.Response[gin.H]{
			Error: "Route not found",
			Code:  "NOT_FOUND",
			Data:  gin.H{"path": c.Request.URL.Path},
		})
	})

	s.engine.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, httpdto.NewSuccessResponse(gin.H{"message": "pong"}))
	})

	s.engine.GET("/api/health", func(c *gin.Context) {
		if deps.Health != nil {
			if err := deps.Health(c.Request.Context()); err != nil {
				c.JSON(http.StatusServiceUnavailable, httpdto.NewErrorResponse(err.Error(), "UNHEALTHY"))
				return
			}
		}
		c.JSON(http.StatusOK, httpdto.NewSuccessResponse(gin.H{"status": "healthy"}))
	})

	s.engine.GET("/metrics", observability.Handler())

	if handlers.Gateway != nil {
		s.engine.GET("/ws", handlers.Gateway.Handle)
	}

	if handlers.Messages != nil {
		var sendLimit []gin.HandlerFunc
		if deps.Limiter != nil {
			sendLimit = append(sendLimit, middleware.MessageRateLimitMiddleware(deps.Limiter, s.logger))
		}
		messages := s.engine.Group("/api/messages", middleware.AuthMiddleware(deps.Auth, s.config.AuthCookie))
		handlers.Messages.Register(messages, sendLimit...)
	}
}

// Start serves until ctx is cancelled, then closes every websocket client and
// drains HTTP requests within the configured shutdown timeout.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if s.logger != nil {
			s.logger.Infof("Starting the server on port %s...", s.config.AppPort)
		}
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			if s.logger != nil {
				s.logger.Errorf("Error in starting the server: %s", err)
			}
			return err
		}
		return nil
	case <-ctx.Done():
	}

	timeout := s.config.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if s.logger != nil {
		s.logger.Infof("Shutdown signal received, draining for up to %s", timeout)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	// hijacked websocket connections are not tracked by http.Server
	if s.gateway != nil {
		done := make(chan struct{})
		go func() {
			s.gateway.Shutdown()
			close(done)
		}()
		select {
		case <-done:
		case <-shutdownCtx.Done():
		}
	}

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		if s.logger != nil {
			s.logger.Errorf("Error in the graceful shutdown of the server: %s", err)
		}
		return err
	}

	if s.logger != nil {
		s.logger.Infof("Server stopped gracefully")
	}
	return nil
}
