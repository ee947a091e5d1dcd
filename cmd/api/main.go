package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/clearwaterpub/royaltyops-backend/api/routes"
	"github.com/clearwaterpub/royaltyops-backend/internal/assignments"
	"github.com/clearwaterpub/royaltyops-backend/internal/commission"
	"github.com/clearwaterpub/royaltyops-backend/internal/sessionpayouts"
	"github.com/clearwaterpub/royaltyops-backend/internal/smartassign"
	"github.com/clearwaterpub/royaltyops-backend/internal/statements"
	"github.com/clearwaterpub/royaltyops-backend/internal/withdrawals"
	"github.com/clearwaterpub/royaltyops-backend/internal/writers"
	"github.com/clearwaterpub/royaltyops-backend/pkg/config"
	"github.com/clearwaterpub/royaltyops-backend/pkg/db"
	"github.com/clearwaterpub/royaltyops-backend/pkg/gateway"
	"github.com/clearwaterpub/royaltyops-backend/pkg/logger"
	"github.com/clearwaterpub/royaltyops-backend/pkg/metrics"
	"github.com/clearwaterpub/royaltyops-backend/pkg/migrate"
	"github.com/clearwaterpub/royaltyops-backend/pkg/outbox"
	"github.com/clearwaterpub/royaltyops-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	gatewayClient, err := gateway.NewClient(context.Background(), cfg.Gateway, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap transfer gateway", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	settlementMetrics := metrics.NewSettlementMetrics(registry)

	conn := dbClient.DB()
	writerRepo := writers.NewRepository(conn)
	statementRepo := statements.NewRepository(conn)
	assignmentRepo := assignments.NewRepository(conn)
	eventService := outbox.NewService(outbox.NewRepository(conn), logg)

	commissionService, err := commission.NewService(dbClient, commission.NewRepository(conn), logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create commission service", err)
		os.Exit(1)
	}

	statementsService, err := statements.NewService(
		dbClient,
		statementRepo,
		assignmentRepo,
		writerRepo,
		commissionService,
		eventService,
		settlementMetrics,
		logg,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create statements service", err)
		os.Exit(1)
	}

	assignmentsService, err := assignments.NewService(dbClient, assignmentRepo, statementRepo, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create assignments service", err)
		os.Exit(1)
	}

	matcherService, err := smartassign.NewService(smartassign.NewDirectory(conn), smartassign.NewHistory(conn))
	if err != nil {
		logg.Error(context.Background(), "failed to create smart-assign service", err)
		os.Exit(1)
	}

	withdrawalsService, err := withdrawals.NewService(
		dbClient,
		withdrawals.NewRepository(conn),
		writerRepo,
		gatewayClient,
		cfg.Settlement,
		eventService,
		settlementMetrics,
		logg,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create withdrawals service", err)
		os.Exit(1)
	}

	sessionPayoutsService, err := sessionpayouts.NewService(
		dbClient,
		sessionpayouts.NewRepository(conn),
		writerRepo,
		gatewayClient,
		cfg.Settlement,
		eventService,
		settlementMetrics,
		logg,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create session payouts service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	id := os.Getenv("DYNO")
	if id == "" {
		id = "local"
	}
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": id,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(
			cfg,
			logg,
			dbClient,
			redisClient,
			registry,
			writerRepo,
			statementsService,
			assignmentsService,
			matcherService,
			commissionService,
			withdrawalsService,
			sessionPayoutsService,
		),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
