package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/amirhossein-jamali/tx-coordinator/internal/domain/uow"
	"github.com/amirhossein-jamali/tx-coordinator/internal/infrastructure/adapter/api/handler"
	"github.com/amirhossein-jamali/tx-coordinator/internal/infrastructure/adapter/api/routes"
	"github.com/amirhossein-jamali/tx-coordinator/internal/infrastructure/adapter/database"
	"github.com/amirhossein-jamali/tx-coordinator/internal/infrastructure/adapter/documentdb"
	"github.com/amirhossein-jamali/tx-coordinator/internal/infrastructure/adapter/logger"
	"github.com/amirhossein-jamali/tx-coordinator/internal/infrastructure/adapter/model"
	"github.com/amirhossein-jamali/tx-coordinator/internal/infrastructure/adapter/repository"
	"github.com/amirhossein-jamali/tx-coordinator/internal/infrastructure/adapter/resolver"
	timeProvider "github.com/amirhossein-jamali/tx-coordinator/internal/infrastructure/adapter/time"
	"github.com/amirhossein-jamali/tx-coordinator/internal/infrastructure/config"

	"github.com/gin-gonic/gin"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Validate essential configuration
	if err := validateConfig(cfg); err != nil {
		log.Fatalf("Configuration validation failed: %v", err)
	}

	// Set Gin mode based on environment
	if cfg.Environment == config.Production {
		gin.SetMode(gin.ReleaseMode)
	}

	// Create logger
	appLogger := logger.NewZapLogger(cfg.Environment == config.Production)
	appLogger.SetLevel(logger.ParseLevel(cfg.Logger.Level))
	defer func() { _ = appLogger.Flush() }()

	// Initialize time provider
	tp := timeProvider.NewRealTimeProvider()

	// Setup database configuration
	dbConfig := &database.Config{
		Driver:          cfg.Database.Driver,
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		Username:        cfg.Database.Username,
		Password:        cfg.Database.Password,
		Database:        cfg.Database.Database,
		SSLMode:         cfg.Database.SSLMode,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
		LogLevel:        cfg.Logger.Level,
		RetryAttempts:   cfg.Database.RetryAttempts,
		RetryDelay:      cfg.Database.RetryDelay,
	}
	if err := dbConfig.Validate(); err != nil {
		log.Fatalf("Database configuration invalid: %v", err)
	}

	dbManager := database.NewManager(dbConfig, appLogger, tp)
	defer func() { _ = dbManager.Close() }()

	// Logical connection identities and the targets they resolve to
	connResolver := resolver.NewStatic(map[string]string{
		"orders": dbConfig.DSN(),
		"audit":  cfg.Document.URI,
	})

	// Connect to the relational backend and prepare the schema
	db, err := dbManager.Open(context.Background(), dbConfig.DSN())
	if err != nil {
		appLogger.Error("Failed to connect to database", map[string]any{
			"error": err.Error(),
		})
		os.Exit(1)
	}
	if err := db.AutoMigrate(&model.Order{}); err != nil {
		appLogger.Error("Failed to migrate schema", map[string]any{
			"error": err.Error(),
		})
		os.Exit(1)
	}

	// Watch pool utilization across open targets
	poolMonitor := database.NewPoolMonitor(dbManager, appLogger)
	poolMonitor.Start(30 * time.Second)
	defer poolMonitor.Stop()

	// Resource providers for the unit of work
	orderProvider := database.NewProvider(dbManager, connResolver, appLogger, tp)
	auditProvider := documentdb.NewProvider(documentdb.Dial, connResolver, appLogger, tp,
		cfg.Document.Database)

	// Initialize repositories
	orderRepo := repository.NewOrderRepository(orderProvider, dbManager.GetErrorMapper(), appLogger)
	auditRepo := repository.NewAuditRepository(auditProvider, appLogger)

	// Background work started outside any request inherits cancellation
	// from this context.
	appCtx, appCancel := context.WithCancel(context.Background())
	defer appCancel()
	uow.SetDefaultContext(appCtx)

	// Initialize API handlers
	orderHandler := handler.NewOrderHandler(orderRepo, auditRepo, appLogger, tp)

	// Initialize Gin router
	router := gin.New()

	// Setup middlewares
	routes.SetupMiddlewares(router, appLogger, tp, cfg.Scope.DefaultTimeout)

	// Setup routes
	routes.SetupRoutes(router, orderHandler)

	// Create HTTP server with configurable timeout values
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	// Start the server in a goroutine
	go func() {
		appLogger.Info("Starting server", map[string]any{
			"port": cfg.Server.Port,
			"env":  cfg.Environment,
		})

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Error("Failed to start server", map[string]any{
				"error": err.Error(),
			})
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...", nil)

	// Stop ambient work started under the default context
	appCancel()

	// Create a deadline to wait for
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	// Shutdown the server
	if err := server.Shutdown(ctx); err != nil {
		appLogger.Error("Server forced to shutdown", map[string]any{
			"error": err.Error(),
		})
	}

	appLogger.Info("Server exited gracefully", nil)
}

// validateConfig ensures all required configuration values are present
func validateConfig(cfg *config.Config) error {
	var missingConfigs []string

	if cfg.Server.Port == 0 {
		missingConfigs = append(missingConfigs, "server.port")
	}
	if cfg.Server.ReadTimeout == 0 {
		missingConfigs = append(missingConfigs, "server.readTimeout")
	}
	if cfg.Server.WriteTimeout == 0 {
		missingConfigs = append(missingConfigs, "server.writeTimeout")
	}
	if cfg.Server.ShutdownTimeout == 0 {
		missingConfigs = append(missingConfigs, "server.shutdownTimeout")
	}

	if cfg.Database.Driver == "postgres" && cfg.Database.Host == "" {
		missingConfigs = append(missingConfigs, "database.host (or TC_DB_HOST environment variable)")
	}
	if cfg.Database.Database == "" {
		missingConfigs = append(missingConfigs, "database.database (or TC_DB_NAME environment variable)")
	}
	if cfg.Document.URI == "" {
		missingConfigs = append(missingConfigs, "document.uri (or TC_DOCUMENT_URI environment variable)")
	}

	if len(missingConfigs) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missingConfigs, ", "))
	}
	return nil
}
