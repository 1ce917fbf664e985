// Package databasetest starts throwaway databases for integration tests.
package databasetest

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"pharmapos/m/internal/database"
)

var (
	startOnce sync.Once
	baseDSN   string
	startErr  error
	databases atomic.Int64
)

// Postgres returns a connection to a new, empty database inside a PostgreSQL
// container shared by the whole test binary. The container is removed by the
// testcontainers reaper when the process exits. Skipped in -short mode and
// when no Docker daemon is reachable.
func Postgres(t *testing.T) *sqlx.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("postgres container disabled in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	startOnce.Do(func() {
		baseDSN, startErr = startContainer(context.Background())
	})
	require.NoError(t, startErr)

	admin, err := database.Connect(database.DriverPostgres, baseDSN)
	require.NoError(t, err)
	defer admin.Close()

	name := fmt.Sprintf("pharmapos_%d", databases.Add(1))
	_, err = admin.Exec("CREATE DATABASE " + name)
	require.NoError(t, err)

	dsn, err := withDatabase(baseDSN, name)
	require.NoError(t, err)

	db, err := database.Connect(database.DriverPostgres, dsn)
	require.NoError(t, err)
	return db
}

func startContainer(ctx context.Context) (string, error) {
	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("pharmapos"),
		postgres.WithUsername("pharmapos"),
		postgres.WithPassword("pharmapos"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		return "", fmt.Errorf("start postgres container: %w", err)
	}
	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		return "", fmt.Errorf("postgres connection string: %w", err)
	}
	return dsn, nil
}

func withDatabase(dsn, name string) (string, error) {
	u, err := url.Parse(dsn)
	if err != nil {
		return "", fmt.Errorf("parse dsn: %w", err)
	}
	u.Path = "/" + name
	return u.String(), nil
}
