package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"commune-chat/config"
	"commune-chat/internal/auth"
	"commune-chat/internal/handler"
	"commune-chat/internal/middleware"
	"commune-chat/internal/transport/httpdto"
	"commune-chat/pkg/database"
	"commune-chat/pkg/logger"

	"github.com/gin-gonic/gin"
)

type Server struct {
	httpServer *http.Server
	engine     *gin.Engine
	config     *config.Config
	logger     *logger.Logger
}

var (
	ReleaseMode = "release"
	DebugMode   = "debug"
	TestMode    = "test"
)

type Handlers struct {
	Conversation *handler.ConversationHandler
	Message      *handler.MessageHandler
	Realtime     *handler.RealtimeHandler
	Session      *handler.SessionHandler
	Upload       *handler.UploadHandler
	Stream       *StreamHandler
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
			Addr:    fmt.Sprintf(":%s", cfg.AppPort),
			Handler: engine,
		},
		engine: engine,
		config: cfg,
		logger: l,
	}
}

func (s *Server) SetupRoutes(handlers *Handlers, provider *auth.Provider) {
	s.engine.Use(middleware.RequestIDMiddleware())
	s.engine.Use(middleware.CORSMiddleware())
	s.engine.Use(middleware.LoggingMiddleware(s.logger))

	s.engine.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, httpdto.NewSuccessResponse(gin.H{"message": "pong"}))
	})

	s.engine.GET("/health", func(c *gin.Context) {
		if err := database.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, httpdto.NewErrorResponse(err.Error(), "UNHEALTHY"))
			return
		}
		c.JSON(http.StatusOK, httpdto.NewSuccessResponse(gin.H{"status": "healthy"}))
	})

	// The stream does its own token handshake; everything else goes through
	// the auth middleware.
	s.engine.GET("/v1/stream", handlers.Stream.Handle)

	v1 := s.engine.Group("/v1", middleware.AuthMiddleware(provider))
	{
		v1.POST("/session", handlers.Session.Open)
		v1.DELETE("/session", handlers.Session.Close)

		v1.GET("/conversations", handlers.Conversation.List)
		v1.POST("/conversations", handlers.Conversation.Create)
		v1.POST("/conversations/:id/read", handlers.Conversation.MarkRead)

		v1.GET("/conversations/:id/messages", handlers.Message.List)
		v1.POST("/conversations/:id/messages", handlers.Message.Send)
		v1.DELETE("/conversations/:id/messages/:messageId", handlers.Message.Delete)
		v1.POST("/conversations/:id/messages/:messageId/reactions", handlers.Message.AddReaction)
		v1.DELETE("/conversations/:id/messages/:messageId/reactions/:emoji", handlers.Message.RemoveReaction)

		v1.POST("/conversations/:id/typing", handlers.Realtime.StartTyping)
		v1.DELETE("/conversations/:id/typing", handlers.Realtime.StopTyping)
		v1.GET("/conversations/:id/typing", handlers.Realtime.TypingUsers)
		v1.GET("/presence/online", handlers.Realtime.OnlineUsers)

		v1.POST("/uploads", handlers.Upload.Upload)
	}
}

func (s *Server) Start(onShutdown func()) error {
	go func() {
		if s.logger != nil {
			s.logger.Infof("Starting the server on port %s...", s.config.AppPort)
		}
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			if s.logger != nil {
				s.logger.Errorf("Error in starting the server: %s", err)
			}
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)

	if s.logger != nil {
		s.logger.Infof("Server is running on :%s", s.config.AppPort)
	}

	<-quit

	if s.logger != nil {
		s.logger.Infof("Quitting signal received.. Shutting down after 5 seconds")
	}

	if onShutdown != nil {
		onShutdown()
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		if s.logger != nil {
			s.logger.Infof("Error in the graceful shutdown of the server: %s", err)
		}
		return err
	}

	if s.logger != nil {
		s.logger.Infof("Server stopped gracefully")
	}

	return nil
}
