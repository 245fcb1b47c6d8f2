package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/kailas-cloud/jobfed/internal/config"
	"github.com/kailas-cloud/jobfed/internal/db"
	dbGoRedis "github.com/kailas-cloud/jobfed/internal/db/goredis"
	dbMemory "github.com/kailas-cloud/jobfed/internal/db/memory"
	"github.com/kailas-cloud/jobfed/internal/db/postgres"
	dbRedis "github.com/kailas-cloud/jobfed/internal/db/redis"
	"github.com/kailas-cloud/jobfed/internal/domain/source"
	logpkg "github.com/kailas-cloud/jobfed/internal/logger"
	"github.com/kailas-cloud/jobfed/internal/metrics"
	budgetrepo "github.com/kailas-cloud/jobfed/internal/repository/budget"
	cacherepo "github.com/kailas-cloud/jobfed/internal/repository/cache"
	"github.com/kailas-cloud/jobfed/internal/repository/searchlog"
	"github.com/kailas-cloud/jobfed/internal/transport/sources/jsonapi"
	budgetuc "github.com/kailas-cloud/jobfed/internal/usecase/budget"
	"github.com/kailas-cloud/jobfed/internal/usecase/dedup"
	"github.com/kailas-cloud/jobfed/internal/usecase/federation"
	healthuc "github.com/kailas-cloud/jobfed/internal/usecase/health"
	"github.com/kailas-cloud/jobfed/internal/usecase/progressive"
	"github.com/kailas-cloud/jobfed/internal/usecase/rank"
	searchuc "github.com/kailas-cloud/jobfed/internal/usecase/search"
	"github.com/kailas-cloud/jobfed/internal/usecase/selector"
	usageuc "github.com/kailas-cloud/jobfed/internal/usecase/usage"
)

const memoryCleanup = time.Minute

// app is the composition root shared by every command.
type app struct {
	cfg      config.Config
	logger   *zap.Logger
	store    db.Store
	pool     *pgxpool.Pool
	registry *source.Registry
	budget   *budgetuc.Tracker
	cache    *cacherepo.Repo
	search   *searchuc.Service
	usage    *usageuc.Service
	health   *healthuc.Service
}

// newApp loads config, connects the stores and wires the pipeline.
func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(envName)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	level := cfg.Logging.Level
	if logLevel != "" {
		level = logLevel
	}
	logger, err := logpkg.NewLogger(envName, level)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	a := &app{cfg: cfg, logger: logger}
	if err := a.wire(ctx); err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

func (a *app) wire(ctx context.Context) error {
	cfg, logger := a.cfg, a.logger

	// Register pipeline metrics explicitly (no init())
	metrics.RegisterPipelineMetrics()

	store, err := newStore(cfg.Cache)
	if err != nil {
		return fmt.Errorf("failed to create cache store: %w", err)
	}
	a.store = store
	if err := store.WaitForReady(ctx, time.Duration(cfg.Cache.ReadinessTimeout)*time.Second); err != nil {
		return fmt.Errorf("cache store not ready: %w", err)
	}
	logger.Info("Connected to cache store", zap.String("driver", cfg.Cache.Driver))

	a.registry, err = newRegistry(cfg.Sources, logger)
	if err != nil {
		return err
	}

	// Pass nil interface (not typed nil pointer!) if budget is not configured.
	// Go gotcha: (*Tracker)(nil) wrapped in federation.Budget != nil.
	var spend federation.Budget
	if cfg.Budget.DailyLimit > 0 || cfg.Budget.MonthlyLimit > 0 {
		a.budget = budgetuc.NewTracker(budgetuc.Limits{
			Daily:   cfg.Budget.DailyLimit,
			Monthly: cfg.Budget.MonthlyLimit,
			Action:  budgetuc.Action(cfg.Budget.Action),
		}, nil, logger).
			WithStore(ctx, budgetrepo.New(store, budgetrepo.Config{KeyPrefix: cfg.Cache.KeyPrefix})).
			WithGauge(metrics.BudgetRemaining)
		spend = a.budget
	}

	fed := federation.New(a.registry, federation.Options{
		PageDelay: cfg.Aggregation.PageDelay(),
		Budget:    spend,
		Metrics: federation.Metrics{
			Requests: metrics.SourceRequestsTotal,
			Duration: metrics.SourceRequestDuration,
			Records:  metrics.SourceRecordsTotal,
			Cost:     metrics.SourceCostTotal,
		},
		Logger: logger,
	})
	dd := dedup.New(cfg.Aggregation.SimilarityThreshold, logger)
	rk := rank.New()
	sel := selector.New(a.registry, selector.Rules{
		AlwaysInclude:       cfg.Selection.AlwaysInclude,
		RemoteSpecialist:    cfg.Selection.RemoteSpecialist,
		FreelanceSpecialist: cfg.Selection.FreelanceSpecialist,
	})
	agg := progressive.New(fed, dd, rk, sel, a.registry, progressive.Config{
		Waves:          cfg.Aggregation.Waves,
		MinResults:     cfg.Aggregation.MinResults,
		FallbackSource: cfg.Aggregation.FallbackSource,
		FallbackPages:  cfg.Aggregation.MaxPages,
	}, logger)

	a.cache = cacherepo.New(store, cacherepo.Config{
		KeyPrefix:    cfg.Cache.KeyPrefix,
		RequesterTTL: cfg.Cache.RequesterTTL(),
		LocationTTL:  cfg.Cache.LocationTTL(),
		Retention:    cfg.Cache.Retention(),
	}, nil, metrics.CacheLookupsTotal, logger)

	var (
		recorder  searchuc.Recorder
		logPinger healthuc.Pinger
	)
	if cfg.SearchLog.PostgresURL != "" {
		a.pool, err = postgres.NewPool(ctx, cfg.SearchLog.PostgresURL)
		if err != nil {
			return fmt.Errorf("failed to connect search log: %w", err)
		}
		runs := searchlog.New(a.pool, logger)
		if err := runs.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("failed to prepare search log: %w", err)
		}
		recorder, logPinger = runs, runs
		logger.Info("Search log enabled")
	}

	a.search = searchuc.New(fed, sel, dd, rk, a.cache, searchuc.Config{
		MinResults:     cfg.Aggregation.MinResults,
		FallbackSource: cfg.Aggregation.FallbackSource,
		FallbackPages:  cfg.Aggregation.MaxPages,
	}, searchuc.Options{
		Progressive: agg,
		Recorder:    recorder,
		Outcomes:    metrics.SearchOutcomesTotal,
		Logger:      logger,
	})
	// Same nil-interface rule for the usage report and the budget probe.
	var (
		spent     usageuc.BudgetReader
		remaining healthuc.BudgetReader
	)
	if a.budget != nil {
		spent, remaining = a.budget, a.budget
	}
	a.usage = usageuc.New(spent, nil)
	a.health = healthuc.New(store, a.registry, healthuc.Options{
		SearchLog: logPinger,
		Budget:    remaining,
	})
	return nil
}

func (a *app) close() {
	if a.pool != nil {
		a.pool.Close()
	}
	if a.store != nil {
		a.store.Close()
	}
	_ = a.logger.Sync()
}

func newStore(c config.CacheConfig) (db.Store, error) {
	switch c.Driver {
	case config.DriverRedis:
		return dbRedis.NewStore(dbRedis.Config{
			Addrs:    c.Addrs,
			Username: c.Username,
			Password: c.Password,
			DB:       c.DB,
		})
	case config.DriverGoRedis:
		return dbGoRedis.NewStore(c.URL)
	case config.DriverMemory:
		return dbMemory.NewStore(c.Shards, memoryCleanup, nil), nil
	default:
		return nil, fmt.Errorf("unknown cache driver %q", c.Driver)
	}
}

// newRegistry registers one JSON API adapter per configured source.
func newRegistry(sources []config.SourceConfig, logger *zap.Logger) (*source.Registry, error) {
	reg := source.NewRegistry()
	client := &http.Client{Transport: http.DefaultTransport}
	for _, sc := range sources {
		adapter, err := jsonapi.New(jsonapi.Config{
			ID:          sc.ID,
			Endpoint:    sc.Endpoint,
			ResultsPath: sc.ResultsPath,
			Fields:      sc.Fields,
			Headers:     sc.Headers,
			MaxResults:  sc.MaxResults,
		}, client, logger)
		if err != nil {
			return nil, err
		}
		desc := source.Descriptor{
			ID:          sc.ID,
			Endpoint:    sc.Endpoint,
			Tier:        source.Tier(sc.Tier),
			CostPerCall: sc.CostPerCall,
			MaxResults:  sc.MaxResults,
			Enabled:     sc.IsEnabled(),
			Timeout:     time.Duration(sc.TimeoutSec) * time.Second,
		}
		if err := reg.Register(desc, adapter); err != nil {
			return nil, fmt.Errorf("register source: %w", err)
		}
	}
	logger.Info("Sources registered",
		zap.Int("total", len(sources)),
		zap.Int("enabled", reg.EnabledCount()),
	)
	return reg, nil
}
