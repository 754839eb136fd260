package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"seat-reservation/internal/data/memstore"
	"seat-reservation/internal/data/repository"
	"seat-reservation/internal/data/sqlrepo"
	"seat-reservation/internal/event"
	"seat-reservation/internal/usecase"
	"seat-reservation/internal/wire"
	"seat-reservation/pkg/clock"
	"seat-reservation/pkg/database"
	"seat-reservation/pkg/metrics"
	"seat-reservation/pkg/redlock"
	"seat-reservation/pkg/utils"

	"go.uber.org/zap"
)

const nodePingTimeout = 2 * time.Second

// runtime owns every external resource a command opened.
type runtime struct {
	cfg       *utils.Config
	log       *zap.Logger
	repo      *repository.Repository
	health    wire.HealthCheck
	locks     *redlock.Manager
	publisher event.Publisher
	metrics   *metrics.Metrics

	closers []func() error
}

type bootstrapOptions struct {
	// migrate applies the schema even when DB_AUTO_MIGRATE is off.
	migrate bool
	locks   bool
	events  bool
}

func bootstrap(ctx context.Context, cfg *utils.Config, log *zap.Logger, opts bootstrapOptions) (rt *runtime, err error) {
	rt = &runtime{cfg: cfg, log: log, publisher: event.Nop{}}
	defer func() {
		if err != nil {
			rt.Close()
		}
	}()

	if cfg.Metrics.Enabled {
		rt.metrics = metrics.New()
	}

	if err := rt.openStore(ctx, opts.migrate || cfg.Database.AutoMigrate); err != nil {
		return nil, err
	}

	if opts.locks {
		var nodes []redlock.Node
		if cfg.Redis.UseMemory() {
			log.Warn("Using in-process lock nodes; locks are not shared between processes",
				zap.Int("nodes", cfg.Redis.MemoryNodes))
			nodes = redlock.NewMemoryNodes(cfg.Redis.MemoryNodes)
		} else {
			nodes = redlock.NewRedisNodes(cfg.Redis.Nodes, redlock.RedisOptions{
				Password: cfg.Redis.Password,
				DB:       cfg.Redis.DB,
				TLS:      cfg.Redis.TLS,
			})
		}

		rt.locks, err = redlock.New(nodes, redlock.Options{
			DriftFactor: cfg.Lock.DriftFactor,
			RetryCount:  cfg.Lock.RetryCount,
			RetryDelay:  cfg.Lock.RetryDelay,
		}, log, rt.metrics)
		if err != nil {
			return nil, fmt.Errorf("init lock manager: %w", err)
		}
		rt.closers = append(rt.closers, rt.locks.Close)

		pingCtx, cancel := context.WithTimeout(ctx, nodePingTimeout)
		reachable := rt.locks.CheckNodes(pingCtx)
		cancel()

		log.Info("Lock manager ready",
			zap.Int("nodes", len(nodes)),
			zap.Int("reachable", reachable),
			zap.Int("quorum", rt.locks.Quorum()))
	}

	if opts.events && cfg.Event.AMQPURL != "" {
		pub, err := event.NewAMQPPublisher(cfg.Event.AMQPURL, log)
		if err != nil {
			// Events are best effort; the service runs without a broker.
			log.Warn("Event broker unavailable, events disabled", zap.Error(err))
		} else {
			rt.publisher = pub
			rt.closers = append(rt.closers, pub.Close)
		}
	}

	return rt, nil
}

func (rt *runtime) openStore(ctx context.Context, migrate bool) error {
	cfg, log := rt.cfg, rt.log

	switch cfg.Database.Driver {
	case utils.DriverPostgres:
		db, err := database.InitDB(cfg.Database)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		rt.closers = append(rt.closers, func() error { db.Close(); return nil })

		if migrate {
			if err := database.EnsurePostgresSchema(ctx, db); err != nil {
				return err
			}
			log.Info("Schema applied", zap.String("driver", cfg.Database.Driver))
		}
		rt.repo = repository.NewRepository(db, log)
		rt.health = db.Ping

	case utils.DriverMySQL:
		db, err := database.OpenMySQL(cfg.Database)
		if err != nil {
			return fmt.Errorf("connect mysql: %w", err)
		}
		rt.closers = append(rt.closers, db.Close)

		if migrate {
			if err := database.EnsureMySQLSchema(ctx, db); err != nil {
				return err
			}
			log.Info("Schema applied", zap.String("driver", cfg.Database.Driver))
		}
		rt.repo = sqlrepo.NewRepository(db, log)
		rt.health = db.PingContext

	case utils.DriverMemory:
		log.Warn("Using in-memory store; data is lost on exit")
		rt.repo = memstore.New(log).Repository()

	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", cfg.Database.Driver)
	}

	log.Info("Database connected successfully", zap.String("driver", cfg.Database.Driver))
	return nil
}

func (rt *runtime) deps() usecase.Deps {
	deps := usecase.Deps{
		Repo:      rt.repo,
		Publisher: rt.publisher,
		Clock:     clock.Real{},
		Metrics:   rt.metrics,
		Config:    rt.cfg,
	}
	if rt.locks != nil {
		deps.Locker = rt.locks
	}
	return deps
}

// Close releases resources in reverse order of acquisition.
func (rt *runtime) Close() {
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	rt.closers = nil
	if err := errors.Join(errs...); err != nil {
		rt.log.Warn("Error while closing resources", zap.Error(err))
	}
}
