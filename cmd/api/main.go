package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"erlessed-biometric/internal/audit"
	"erlessed-biometric/internal/auth"
	"erlessed-biometric/internal/biometric"
	"erlessed-biometric/internal/config"
	"erlessed-biometric/internal/reporting"
	"erlessed-biometric/pkg/logger"
	"erlessed-biometric/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "erlessed-biometric",
		Short:        "Biometric identity verification API",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func runServer() error {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config load failed: %w", err)
	}

	log, err := logger.New(cfg.App.Env)
	if err != nil {
		return fmt.Errorf("logger init failed: %w", err)
	}
	defer logger.Sync(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", zap.Error(err))
		return err
	}

	st, err := openStores(rootCtx, cfg, log)
	if err != nil {
		log.Error("store init failed", zap.String("driver", cfg.Store.Driver), zap.Error(err))
		return err
	}
	defer st.Close()

	auditSvc := audit.NewService(st.audit)
	bioSvc := biometric.NewService(st.fingerprints, auditSvc, log)
	if st.limiter != nil {
		bioSvc = bioSvc.WithLimiter(st.limiter)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))
	r.Use(utils.NewIPRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst).Middleware())

	registerRoutes(r, cfg, routeDeps{
		auth:      authManager,
		biometric: bioSvc,
		reporting: reporting.NewService(auditSvc),
		health:    st.Health,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api listening",
			zap.String("addr", srv.Addr),
			zap.String("env", cfg.App.Env),
			zap.String("store", cfg.Store.Driver),
			zap.Bool("lockout", st.limiter != nil),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", zap.Error(err))
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", zap.Error(err))
		return err
	}
	return nil
}
