package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/triviabluff/go/internal/client"
	"github.com/mcdev12/triviabluff/go/internal/dbconfig"
	"github.com/mcdev12/triviabluff/go/internal/events"
	"github.com/mcdev12/triviabluff/go/internal/gateway"
	"github.com/mcdev12/triviabluff/go/internal/metrics"
	"github.com/mcdev12/triviabluff/go/internal/natsutil"
	"github.com/mcdev12/triviabluff/go/internal/questions"
	"github.com/mcdev12/triviabluff/go/internal/session"
	"github.com/mcdev12/triviabluff/go/internal/store"
)

type Services struct {
	App      *session.App
	Session  *session.Service
	Gateway  *gateway.Handler
	Conns    *gateway.ConnectionManager
	Registry *prometheus.Registry

	closers []func() error
}

// Close releases backends in reverse order of creation.
func (s *Services) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i]())
	}
	return errors.Join(errs...)
}

func (s *Services) onClose(fn func() error) {
	s.closers = append(s.closers, fn)
}

// setupServices wires store → app → service, the same chain for every backend.
func setupServices(ctx context.Context, cfg *Config) (*Services, error) {
	svcs := &Services{}
	ok := false
	defer func() {
		if !ok {
			svcs.Close()
		}
	}()

	var js jetstream.JetStream
	if cfg.Store.Backend == "nats" || cfg.Events.JetStream {
		natsCfg := natsutil.DefaultConfig()
		natsCfg.URL = cfg.NATS.URL
		var nc *nats.Conn
		var err error
		nc, js, err = natsutil.Connect(natsCfg)
		if err != nil {
			return nil, err
		}
		svcs.onClose(func() error { return nc.Drain() })
		log.Info().Str("url", cfg.NATS.URL).Msg("connected to NATS")
	}

	var db *sql.DB
	dbCfg := dbconfig.NewConfigFromEnv()
	if cfg.Store.Backend == "postgres" {
		var err error
		db, err = dbCfg.Open(ctx)
		if err != nil {
			return nil, err
		}
		svcs.onClose(db.Close)
		log.Info().
			Str("host", dbCfg.Host).
			Int("port", dbCfg.Port).
			Str("database", dbCfg.Database).
			Msg("connected to database")
	}

	st, err := setupStore(ctx, cfg, svcs, js, db, dbCfg)
	if err != nil {
		return nil, err
	}

	bank, err := setupQuestions(ctx, cfg, dbCfg)
	if err != nil {
		return nil, err
	}

	publisher, err := setupPublisher(ctx, cfg, js)
	if err != nil {
		return nil, err
	}

	var collector metrics.Collector = metrics.NoOp{}
	if cfg.Metrics.Enabled {
		svcs.Registry = prometheus.NewRegistry()
		svcs.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		collector = metrics.NewPrometheus(svcs.Registry)
	}

	svcs.App = session.NewApp(st, bank, cfg.Session,
		session.WithPublisher(publisher),
		session.WithMetrics(collector),
	)
	svcs.Session = session.NewService(svcs.App)
	svcs.Conns = gateway.NewConnectionManager(svcs.App, cfg.Gateway,
		gateway.WithClientOptions(client.WithConfig(cfg.Client)),
		gateway.WithMetrics(collector),
	)
	svcs.Gateway = gateway.NewHandler(svcs.Conns, svcs.App)

	ok = true
	return svcs, nil
}

func setupStore(ctx context.Context, cfg *Config, svcs *Services, js jetstream.JetStream, db *sql.DB, dbCfg dbconfig.Config) (store.Store, error) {
	switch cfg.Store.Backend {
	case "memory":
		log.Warn().Msg("using in-memory store, sessions are lost on restart")
		return store.NewMemoryStore(), nil
	case "nats":
		st, err := store.NewNATSStore(ctx, js, store.DefaultNATSConfig())
		if err != nil {
			return nil, err
		}
		svcs.onClose(st.Close)
		return st, nil
	case "postgres":
		pgCfg := store.DefaultPostgresConfig()
		pgCfg.DatabaseURL = dbCfg.DSN()
		st, err := store.NewPostgresStore(ctx, db, pgCfg)
		if err != nil {
			return nil, err
		}
		svcs.onClose(st.Close)
		return st, nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

func setupQuestions(ctx context.Context, cfg *Config, dbCfg dbconfig.Config) (*questions.Bank, error) {
	var (
		bank *questions.Bank
		err  error
	)
	switch cfg.Questions.Source {
	case "default":
		bank, err = questions.LoadDefault()
	case "file":
		bank, err = questions.LoadFile(cfg.Questions.File)
	case "postgres":
		var pool *pgxpool.Pool
		pool, err = pgxpool.New(ctx, dbCfg.DSN())
		if err != nil {
			return nil, fmt.Errorf("failed to create pgx pool: %w", err)
		}
		defer pool.Close()
		bank, err = questions.LoadPostgres(ctx, pool)
	default:
		return nil, fmt.Errorf("unknown question source %q", cfg.Questions.Source)
	}
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("source", cfg.Questions.Source).
		Int("questions", bank.Len()).
		Msg("loaded question bank")
	return bank, nil
}

func setupPublisher(ctx context.Context, cfg *Config, js jetstream.JetStream) (events.Publisher, error) {
	var pubs events.MultiPublisher
	if cfg.Events.Log {
		pubs = append(pubs, events.LogPublisher{})
	}
	if cfg.Events.JetStream {
		jsp, err := events.NewJetStreamPublisher(ctx, js, events.DefaultJetStreamConfig())
		if err != nil {
			return nil, err
		}
		pubs = append(pubs, jsp)
	}
	if len(pubs) == 0 {
		return events.NoOpPublisher{}, nil
	}
	return pubs, nil
}
