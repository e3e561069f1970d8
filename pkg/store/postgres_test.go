package store_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/xhad/campusconnect/pkg/store"
)

func startPostgres(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode")
	}

	ctx := context.Background()
	var (
		container *postgres.PostgresContainer
		err       error
	)
	func() {
		// testcontainers panics when no docker daemon is reachable
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("docker unavailable: %v", r)
			}
		}()
		container, err = postgres.Run(ctx,
			"pgvector/pgvector:pg17",
			postgres.WithDatabase("campusconnect_test"),
			postgres.WithUsername("test"),
			postgres.WithPassword("test"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(60*time.Second),
			),
		)
	}()
	if err != nil {
		t.Skipf("postgres container unavailable: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate postgres container: %v", err)
		}
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	return connStr
}

func TestPostgresContract(t *testing.T) {
	connStr := startPostgres(t)

	runContract(t, func(t *testing.T) store.Store {
		ctx := context.Background()
		s, err := store.NewPostgres(ctx, store.PostgresConfig{ConnString: connStr, VectorDim: testDim})
		require.NoError(t, err)
		t.Cleanup(s.Close)

		conn, err := pgx.Connect(ctx, connStr)
		require.NoError(t, err)
		defer conn.Close(ctx)
		_, err = conn.Exec(ctx, `TRUNCATE chat_messages, escalations, chat_sessions,
			faq_questions, faqs, document_chunks, documents RESTART IDENTITY`)
		require.NoError(t, err)
		return s
	})
}
