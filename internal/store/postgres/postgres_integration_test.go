package postgres

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/Loothore907/decentralized-engagement-metrics-mvp/internal/store"
	"github.com/Loothore907/decentralized-engagement-metrics-mvp/internal/store/storetest"
)

// postgresDSN returns ENGAGEMENT_POSTGRES_DSN, or starts a throwaway container
// when ENGAGEMENT_TESTCONTAINERS=1. Otherwise the test is skipped.
func postgresDSN(t *testing.T) string {
	t.Helper()
	if dsn := os.Getenv("ENGAGEMENT_POSTGRES_DSN"); dsn != "" {
		return dsn
	}
	if os.Getenv("ENGAGEMENT_TESTCONTAINERS") != "1" {
		t.Skip("ENGAGEMENT_POSTGRES_DSN not set and ENGAGEMENT_TESTCONTAINERS!=1; skipping postgres store integration test")
	}

	ctx := context.Background()
	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "engagement",
			"POSTGRES_PASSWORD": "engagement",
			"POSTGRES_DB":       "engagement",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(90 * time.Second),
	}
	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Terminate(context.Background()) })

	host, err := c.Host(ctx)
	require.NoError(t, err)
	port, err := c.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)
	return fmt.Sprintf("postgres://engagement:engagement@%s:%s/engagement?sslmode=disable", host, port.Port())
}

func TestPostgresStore_Compliance(t *testing.T) {
	dsn := postgresDSN(t)
	ctx := context.Background()

	pool, err := Open(ctx, dsn, 5)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, EnsureSchema(ctx, pool))

	shared := NewWithPool(pool)
	storetest.Run(t, func(t *testing.T) store.Store { return shared })
}

func TestOpen_EmptyDSN(t *testing.T) {
	_, err := Open(context.Background(), "", 0)
	require.Error(t, err)
}
