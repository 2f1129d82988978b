package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/subosito/gotenv"
	"go.uber.org/zap"

	"github.com/garyjia/receipt-pipeline/internal/config"
	"github.com/garyjia/receipt-pipeline/internal/draft"
	"github.com/garyjia/receipt-pipeline/internal/flow"
	"github.com/garyjia/receipt-pipeline/internal/ocr"
	"github.com/garyjia/receipt-pipeline/internal/optimize"
	"github.com/garyjia/receipt-pipeline/internal/receipt"
	"github.com/garyjia/receipt-pipeline/internal/server"
	"github.com/garyjia/receipt-pipeline/pkg/database"
	"github.com/garyjia/receipt-pipeline/pkg/utils"
)

func main() {
	// Environment overrides from a local .env file, if present
	_ = gotenv.Load()

	cfg, err := config.Load("configs/config.yaml")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := utils.NewLogger(utils.LoggerConfig{
		Level:      cfg.Logger.Level,
		OutputPath: cfg.Logger.OutputPath,
		Format:     cfg.Logger.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting receipt pipeline service",
		zap.String("version", "1.0.0"),
		zap.Int("port", cfg.Server.Port))

	// Receipt database
	db, err := database.New(database.Config{
		Path:            cfg.Database.Path,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer db.Close()

	migrator := database.NewMigrator(db, logger)
	if err := migrator.RunMigrations(); err != nil {
		logger.Fatal("Failed to run database migrations", zap.Error(err))
	}

	// Flow record store
	flowStore, err := flow.NewStore(cfg.FlowStore.Path, logger)
	if err != nil {
		logger.Fatal("Failed to open flow store", zap.Error(err))
	}
	defer flowStore.Close()

	// OCR service clients
	ocrConfig := ocr.Config{
		BaseURL:        cfg.OCR.BaseURL,
		RequestTimeout: cfg.OCR.RequestTimeout,
		Retry: ocr.RetryPolicy{
			BaseDelay:   cfg.OCR.RetryBaseDelay,
			MaxDelay:    cfg.OCR.RetryMaxDelay,
			MaxAttempts: cfg.OCR.RetryMaxAttempts,
		},
		ChunkRetryAttempts: cfg.OCR.ChunkRetryAttempts,
		PollInterval:       cfg.OCR.PollInterval,
		MaxPollAttempts:    cfg.OCR.MaxPollAttempts,
	}
	uploadClient := ocr.NewUploadClient(ocrConfig, logger)
	jobClient := ocr.NewJobClient(ocrConfig, logger)

	optimizer := optimize.NewOptimizer(cfg.Optimize.JPEGQuality, logger)
	validator := draft.NewValidator(draft.ValidatorConfig{
		MaxAmount:            cfg.Validation.MaxAmount,
		MaintenanceThreshold: cfg.Validation.MaintenanceThreshold,
		FuelHighThreshold:    cfg.Validation.FuelHighThreshold,
	}, logger)

	receiptRepo := receipt.NewRepository(db, logger)
	exporter := receipt.NewExporter(logger)

	manager := flow.NewManager(flow.Config{
		AutoAdvance: cfg.Flow.AutoAdvance,
		Retention:   cfg.Flow.Retention,
	}, optimizer, uploadClient, jobClient, receiptRepo, validator, flowStore, logger)
	defer manager.Close()

	if _, err := manager.Restore(context.Background()); err != nil {
		logger.Warn("Failed to restore flows from store", zap.Error(err))
	}

	// Periodic cleanup of archived flows past the retention window
	cleanupDone := make(chan struct{})
	go func() {
		interval := cfg.Flow.CleanupInterval
		if interval <= 0 {
			interval = time.Hour
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				manager.CleanupHistory(time.Now())
			case <-cleanupDone:
				return
			}
		}
	}()

	if cfg.Logger.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	handler := server.NewHandler(manager, receiptRepo, exporter, logger)
	router := server.NewRouter(handler, logger)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info("HTTP server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start HTTP server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	close(cleanupDone)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited successfully")
}
