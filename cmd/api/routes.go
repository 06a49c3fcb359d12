package main

import (
	"context"
	"net/http"

	"erlessed-biometric/internal/auth"
	"erlessed-biometric/internal/biometric"
	"erlessed-biometric/internal/config"
	"erlessed-biometric/internal/httpapi"
	"erlessed-biometric/internal/reporting"
	"erlessed-biometric/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type routeDeps struct {
	auth      *auth.Manager
	biometric *biometric.Service
	reporting *reporting.Service
	health    func(context.Context) error
}

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, cfg config.Config, deps routeDeps) {
	// public
	r.GET("/healthz", func(c *gin.Context) {
		if err := deps.health(c.Request.Context()); err != nil {
			logger.FromGin(c).Warn("health check failed", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	httpapi.Register(r, httpapi.Handlers{
		Auth:      deps.auth,
		Biometric: deps.biometric,
		Reporting: deps.reporting,
	}, httpapi.RouteOptions{EnableLogin: !cfg.IsProduction()})
}
