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

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"portfolio-advisor/internal/agent"
	"portfolio-advisor/internal/config"
	apphttp "portfolio-advisor/internal/http"
	"portfolio-advisor/internal/repository/sqlstore"
	"portfolio-advisor/internal/service"
	"portfolio-advisor/internal/storage"
	"portfolio-advisor/internal/token"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	if cfg.IsProduction() {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := sqlstore.Open(sqlstore.Options{
		Driver: cfg.Database.Driver,
		Path:   cfg.Database.Path,
		DSN:    cfg.Database.DSN,
	})
	if err != nil {
		logger.Fatalf("open database: %v", err)
	}
	defer db.Close()

	userRepo := sqlstore.NewUserRepository(db)
	prefsRepo := sqlstore.NewPreferencesRepository(db)
	portfolioRepo := sqlstore.NewPortfolioRepository(db)

	if err := userRepo.Init(ctx); err != nil {
		logger.Fatalf("init user repository: %v", err)
	}
	if err := prefsRepo.Init(ctx); err != nil {
		logger.Fatalf("init preferences repository: %v", err)
	}
	if err := portfolioRepo.Init(ctx); err != nil {
		logger.Fatalf("init portfolio repository: %v", err)
	}

	tokens, err := token.NewManager(token.Config{
		AccessSecret:  cfg.Auth.AccessTokenSecret,
		AccessTTL:     cfg.Auth.AccessTTL,
		RefreshSecret: cfg.Auth.RefreshTokenSecret,
		RefreshTTL:    cfg.Auth.RefreshTTL,
	})
	if err != nil {
		logger.Fatalf("setup tokens: %v", err)
	}

	sessionService, err := service.NewSessionService(userRepo, tokens, service.SessionConfig{
		MinPasswordLength:  cfg.Auth.MinPasswordLength,
		RevealUnknownEmail: cfg.Auth.RevealUnknownEmail,
		RevokeOnReuse:      cfg.Auth.RevokeOnReuse,
	}, logger)
	if err != nil {
		logger.Fatalf("setup sessions: %v", err)
	}
	userService := service.NewUserService(userRepo, prefsRepo)

	var archive service.Archiver
	if cfg.Storage.Bucket != "" {
		storageSvc, err := buildStorage(ctx, cfg, logger)
		if err != nil {
			logger.Fatalf("setup storage: %v", err)
		}
		archive = storage.NewArchive(storageSvc, cfg.Storage.Bucket, cfg.Storage.KeyPrefix)
	} else {
		logger.Info("storage bucket not set, portfolio archiving disabled")
	}
	portfolioService := service.NewPortfolioService(portfolioRepo, archive, logger)

	agentClient := agent.NewClient(cfg.Agent.BaseURL,
		agent.WithTimeout(cfg.Agent.Timeout),
		agent.WithRetries(cfg.Agent.Retries),
		agent.WithLogger(logger.WithField("component", "agent")),
	)
	chatService := service.NewChatService(agentClient)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	if err := router.SetTrustedProxies(cfg.Server.TrustedProxies); err != nil {
		logger.Fatalf("trusted proxies: %v", err)
	}
	router.Use(gin.Recovery())
	handler := apphttp.NewHandler(apphttp.Config{
		Sessions:      sessionService,
		Users:         userService,
		Portfolios:    portfolioService,
		Chat:          chatService,
		Logger:        logger,
		CORSOrigin:    cfg.Server.CORSOrigin,
		Production:    cfg.IsProduction(),
		AccessTTL:     tokens.AccessTTL(),
		RefreshTTL:    tokens.RefreshTTL(),
		AuthRateLimit: cfg.Auth.RateLimit,
		AuthRateBurst: cfg.Auth.RateBurst,
	})
	handler.RegisterRoutes(router)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Infof("listening on %s (%s, db %s)", cfg.Server.Addr, cfg.Server.Env, cfg.Database.Driver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("http server: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("http shutdown: %v", err)
	}

	logger.Info("bye")
}

func buildStorage(ctx context.Context, cfg config.Config, logger *logrus.Logger) (storage.Service, error) {
	loadOpts := []func(*awscfg.LoadOptions) error{
		awscfg.WithRegion(cfg.Storage.Region),
	}
	if cfg.AWS.Profile != "" {
		loadOpts = append(loadOpts, awscfg.WithSharedConfigProfile(cfg.AWS.Profile))
	}

	awsCfg, err := awscfg.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Storage.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Storage.Endpoint)
			o.UsePathStyle = true
		}
	})
	logger.Infof("archiving portfolios to s3 bucket %s (region %s)", cfg.Storage.Bucket, cfg.Storage.Region)
	return storage.NewS3Service(client), nil
}
