//go:build integration

package storage_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"farecraft/models"
	"farecraft/storage"
	"farecraft/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupPostgres(t *testing.T) *storage.PostgresStore {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "testuser",
			"POSTGRES_PASSWORD": "testpass",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	dsn := fmt.Sprintf("postgres://testuser:testpass@%s:%d/testdb?sslmode=disable", host, port.Int())
	s, err := storage.NewPostgresStore(ctx, dsn, utils.NewNopLogger())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPostgresStore(t *testing.T) {
	s := setupPostgres(t)
	ctx := context.Background()

	t.Run("token upsert replaces the record", func(t *testing.T) {
		_, ok, err := s.Get(ctx, "aa-booking")
		require.NoError(t, err)
		assert.False(t, ok)

		require.NoError(t, s.Put(ctx, sampleTokens("aa-booking")))
		next := sampleTokens("aa-booking")
		next.Values = map[string]string{"spa_session_id": "s2"}
		next.ExpiresAt = next.ExpiresAt.Add(time.Hour)
		require.NoError(t, s.Put(ctx, next))

		got, ok, err := s.Get(ctx, "aa-booking")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, next.Values, got.Values)
		assert.True(t, next.ExpiresAt.Equal(got.ExpiresAt))

		require.NoError(t, s.Clear(ctx, "aa-booking"))
		_, ok, err = s.Get(ctx, "aa-booking")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("one running run at a time", func(t *testing.T) {
		now := time.Now().UTC().Truncate(time.Microsecond)
		require.NoError(t, s.CreateRun(ctx, queuedRun("pg-a", now)))
		require.NoError(t, s.CreateRun(ctx, queuedRun("pg-b", now.Add(time.Second))))

		require.NoError(t, s.TryStart(ctx, "pg-a", now))
		assert.ErrorIs(t, s.TryStart(ctx, "pg-b", now), storage.ErrRunInProgress)

		run, err := s.GetRun(ctx, "pg-a")
		require.NoError(t, err)
		assert.Equal(t, models.RunRunning, run.Status)

		run.Status = models.RunSucceeded
		run.TotalFlights = 4
		run.AvgCPP = 1.25
		require.NoError(t, s.FinishRun(ctx, run))
		require.NoError(t, s.TryStart(ctx, "pg-b", now))

		latest, err := s.LatestRun(ctx)
		require.NoError(t, err)
		assert.Equal(t, "pg-a", latest.ID)
		assert.Equal(t, 4, latest.TotalFlights)

		runs, err := s.ListRuns(ctx, 10, 0)
		require.NoError(t, err)
		require.Len(t, runs, 2)
		assert.Equal(t, "pg-b", runs[0].ID)

		require.NoError(t, s.DeleteRun(ctx, "pg-a"))
		assert.ErrorIs(t, s.DeleteRun(ctx, "pg-a"), storage.ErrRunNotFound)
		_, err = s.GetRun(ctx, "pg-a")
		assert.ErrorIs(t, err, storage.ErrRunNotFound)
	})

	t.Run("stale running run is interrupted", func(t *testing.T) {
		now := time.Now().UTC()
		ids, err := s.InterruptRuns(ctx, now.Add(-time.Hour), "interrupted", now)
		require.NoError(t, err)
		assert.Empty(t, ids)

		ids, err = s.InterruptRuns(ctx, now.Add(time.Hour), "interrupted", now)
		require.NoError(t, err)
		assert.Equal(t, []string{"pg-b"}, ids)

		run, err := s.GetRun(ctx, "pg-b")
		require.NoError(t, err)
		assert.Equal(t, models.RunFailed, run.Status)
		assert.Equal(t, models.KindInterrupted, run.ErrorKind)

		require.NoError(t, s.CreateRun(ctx, queuedRun("pg-c", now)))
		require.NoError(t, s.TryStart(ctx, "pg-c", now))
	})
}
