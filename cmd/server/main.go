package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/docflow/internal/config"
	"github.com/garyjia/docflow/internal/container"
	"github.com/garyjia/docflow/internal/domain/entity"
	httpapi "github.com/garyjia/docflow/internal/interfaces/http"
	"github.com/garyjia/docflow/pkg/utils"
)

const version = "1.0.0"

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to the YAML configuration file")
	issueToken := flag.Bool("issue-token", false, "print a bearer token for -sub/-role/-department and exit")
	subject := flag.Int64("sub", 0, "principal id for -issue-token")
	role := flag.String("role", entity.RoleEmployee, "role for -issue-token")
	department := flag.Int64("department", 0, "department id for -issue-token")
	ttl := flag.Duration("ttl", 24*time.Hour, "token lifetime for -issue-token")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	auth := httpapi.NewAuthenticator(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
	if *issueToken {
		p := entity.Principal{ID: *subject, Role: *role}
		if *department > 0 {
			p.DepartmentID = department
		}
		token, err := auth.Issue(p, *ttl)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to issue token: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(token)
		return
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
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, auth, logger); err != nil {
		logger.Error("Server exited with error", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}

func run(cfg *config.Config, auth *httpapi.Authenticator, logger *zap.Logger) error {
	logger.Info("Starting docflow",
		zap.String("version", version),
		zap.String("address", cfg.Server.Address()))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := container.NewContainer(cfg, logger)
	if err != nil {
		return err
	}
	if err := c.Start(ctx); err != nil {
		return err
	}
	defer func() {
		if err := c.Close(); err != nil {
			logger.Error("Failed to close container", zap.Error(err))
		}
	}()

	services := c.Services()
	server, err := httpapi.NewServer(httpapi.ServerConfig{
		Host:              cfg.Server.Host,
		Port:              cfg.Server.Port,
		Mode:              cfg.Server.Mode,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		ShutdownTimeout:   cfg.Server.ShutdownTimeout,
		AllowedOrigins:    cfg.Server.AllowedOrigins,
		MaxUploadBytes:    cfg.Storage.MaxUploadBytes,
		RateLimitEnabled:  cfg.RateLimit.Enabled,
		RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
		Burst:             cfg.RateLimit.Burst,
	}, httpapi.Deps{
		Documents:  services.Documents,
		Audit:      services.Audit,
		Engine:     c.WorkflowEngine(),
		Routes:     c.Registry(),
		Statistics: services.Statistics,
		Workbook:   c.Workbook(),
		Health:     c,
		Auth:       auth,
		Metrics:    c.Metrics(),
	}, utils.NewKVLogger(logger.Named("http")))
	if err != nil {
		return err
	}

	// Start blocks until a signal cancels ctx
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("http server: %w", err)
	}

	logger.Info("Shutdown complete")
	return nil
}
