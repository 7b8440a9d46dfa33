// Package server exposes gap analysis and backup maintenance over an HTTP API.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"GapSentinel/internal/logging"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type Config struct {
	GapHandler *GapHandler
	Logger     *logrus.Logger
}

func NewRouter(cfg *Config) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(logging.OrDiscard(cfg.Logger)))

	router.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	api := router.Group("/api")
	registerGapRoutes(api, cfg.GapHandler)
	return router
}

func registerGapRoutes(router *gin.RouterGroup, h *GapHandler) {
	gaps := router.Group("/gaps")
	{
		gaps.GET("/strategies", h.Strategies)
		gaps.POST("/analyze", h.Analyze)
		gaps.POST("/validate", h.Validate)
		gaps.GET("/history", h.History)
		gaps.GET("/backups", h.ListBackups)
		gaps.POST("/backups/cleanup", h.CleanupBackups)
		gaps.POST("/backups/:name/restore", h.RestoreBackup)
		gaps.GET("/backups/:name/validate", h.ValidateBackup)
	}
}

func requestLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.WithFields(logrus.Fields{
			"method":  c.Request.Method,
			"path":    c.FullPath(),
			"status":  c.Writer.Status(),
			"latency": time.Since(start),
		}).Debug("http request")
	}
}

// Server wraps the router in an http.Server with graceful shutdown.
type Server struct {
	srv    *http.Server
	logger *logrus.Logger
}

func New(addr string, cfg *Config) *Server {
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           NewRouter(cfg),
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger: logging.OrDiscard(cfg.Logger),
	}
}

// Start serves until Shutdown; it blocks.
func (s *Server) Start() error {
	s.logger.WithField("addr", s.srv.Addr).Info("http api listening")
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
