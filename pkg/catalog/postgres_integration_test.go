//go:build integration

package catalog

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/dlogio/dlog/pkg/position"
)

// TestPostgresCatalogLifecycle spins up a real Postgres, runs the
// golang-migrate schema, and exercises the same lifecycle the SQLite unit
// tests cover, proving the two backends agree.
func TestPostgresCatalogLifecycle(t *testing.T) {
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("dlog_catalog_test"),
		postgres.WithUsername("dlog_catalog_test"),
		postgres.WithPassword("dlog_catalog_test"),
		testcontainers.WithWaitStrategyAndDeadline(5*time.Minute,
			wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
			wait.ForListeningPort("5432/tcp"),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	store, err := New(ctx, &Config{
		Type: DatabaseTypePostgres,
		Postgres: PostgresConfig{
			Host:     host,
			Port:     port.Int(),
			Database: "dlog_catalog_test",
			User:     "dlog_catalog_test",
			Password: "dlog_catalog_test",
			SSLMode:  "disable",
		},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	stream, err := store.CreateStream(ctx, "orders")
	require.NoError(t, err)
	require.Equal(t, "orders", stream.Name)

	pos := position.Position{SegmentSeq: 2, EntryID: 7, SlotID: 1}
	require.NoError(t, store.SetTruncation(ctx, "orders", pos))

	got, err := store.GetTruncation(ctx, "orders")
	require.NoError(t, err)
	require.Equal(t, pos, got)
}
