package main // Entry point package

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/iliyamo/disable-customer/internal/config"
	"github.com/iliyamo/disable-customer/internal/database"
	"github.com/iliyamo/disable-customer/internal/disablement"
	"github.com/iliyamo/disable-customer/internal/flash"
	"github.com/iliyamo/disable-customer/internal/handler"
	"github.com/iliyamo/disable-customer/internal/middleware"
	"github.com/iliyamo/disable-customer/internal/queue"
	"github.com/iliyamo/disable-customer/internal/repository"
	"github.com/iliyamo/disable-customer/internal/router"
	queue_publisher "github.com/iliyamo/disable-customer/internal/service"
	"github.com/iliyamo/disable-customer/internal/session"
)

func main() {
	// best-effort: real environment wins when no .env exists
	_ = godotenv.Load()

	lg, err := config.NewLogger(config.LoadLogConfig())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = lg.Sync() }()

	cfg := config.Load() // Load environment config
	policy, err := config.LoadPolicy(cfg.PolicyPath)
	if err != nil {
		lg.Fatal("load disablement policy", zap.String("path", cfg.PolicyPath), zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		lg.Fatal("db connect", zap.Error(err))
	}
	defer db.Close()
	if cfg.DBAutoMigrate {
		if err := database.Migrate(ctx, db); err != nil {
			lg.Fatal("db migrate", zap.Error(err))
		}
	}

	rdb, err := config.NewRedisClient(ctx)
	if err != nil {
		lg.Fatal("redis connect", zap.Error(err))
	}
	defer rdb.Close()

	accounts := repository.NewAccountRepo(db)
	tokens := repository.NewTokenRepo(db)
	resets := repository.NewResetTokenRepo(db)

	ttl := time.Duration(cfg.AccessTTLMin) * time.Minute
	sessions := session.NewStore(rdb, ttl)
	impersonation := session.NewImpersonation(rdb, accounts, policy.ImpersonationEnabled, ttl)

	publisher := queue_publisher.NewPublisher(cfg.AMQPURL, lg)
	consumer := queue.NewConsumer(cfg.AMQPURL, lg)
	go func() {
		if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			lg.Warn("account-consumer stopped", zap.Error(err))
		}
	}()

	messages := flash.Messenger{}
	state := disablement.NewState(accounts)
	gate := disablement.NewGate(state, publisher, messages, policy.DefaultDisabledMessage, lg)
	recorder := disablement.NewRecorder(accounts, tokens, publisher, messages, lg)
	enforcer := disablement.NewEnforcer(state, impersonation, lg)
	visibility := disablement.NewVisibility(policy.BackendOnly, accounts)

	e := echo.New() // Create Echo instance
	e.HideBanner = true
	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(middleware.Messages())

	deps := router.Deps{
		JWTSecret:  cfg.JWTSecret,
		Sessions:   sessions,
		Enforcer:   enforcer,
		Visibility: visibility,
		Log:        lg,
		Limiter:    middleware.TokenBucket(config.LoadRateLimitConfig(), rdb, lg),
	}
	auth := handler.NewAuthHandler(cfg, accounts, tokens, resets, sessions, impersonation, gate, visibility, lg)
	acct := handler.NewAccountHandler(cfg, accounts, sessions, recorder, visibility, impersonation, messages, lg)

	router.RegisterRoutes(e, db)
	router.RegisterAuth(e, auth, deps)
	router.RegisterAccount(e, acct, deps)
	router.RegisterAdmin(e, acct, deps)

	addr := ":" + cfg.Port
	go func() {
		lg.Info("listening", zap.String("addr", addr), zap.String("env", cfg.Env))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lg.Fatal("http server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	lg.Info("shutting down")

	doneCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.Shutdown(doneCtx); err != nil {
		lg.Warn("http server shutdown failed", zap.Error(err))
	}
	lg.Info("goodbye")
}
