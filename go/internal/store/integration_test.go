//go:build integration

package store

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcnats "github.com/testcontainers/testcontainers-go/modules/nats"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/mcdev12/triviabluff/go/internal/natsutil"
)

func TestNATSStore(t *testing.T) {
	ctx := context.Background()

	container, err := tcnats.Run(ctx, "nats:2.10-alpine",
		testcontainers.WithWaitStrategy(
			wait.ForAll(
				wait.ForLog("Server is ready"),
				wait.ForListeningPort("4222/tcp"),
			).WithDeadline(45*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	url, err := container.ConnectionString(ctx)
	require.NoError(t, err)

	cfg := natsutil.DefaultConfig()
	cfg.URL = url
	nc, js, err := natsutil.Connect(cfg)
	require.NoError(t, err)
	t.Cleanup(nc.Close)

	s, err := NewNATSStore(ctx, js, DefaultNATSConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	runStoreSuite(t, func(t *testing.T) Store { return s })
}

func TestPostgresStore(t *testing.T) {
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("bluff"),
		tcpostgres.WithUsername("bluff"),
		tcpostgres.WithPassword("bluff"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(45*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := sql.Open("postgres", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	cfg := DefaultPostgresConfig()
	cfg.DatabaseURL = dsn
	s, err := NewPostgresStore(ctx, db, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	runStoreSuite(t, func(t *testing.T) Store { return s })
}
