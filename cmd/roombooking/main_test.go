package main

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"net/http"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/roombooking/internal/persistence/sqlite"
)

// syncBuffer lets the server goroutine log while the test reads.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func setBaseEnv(t *testing.T) string {
	t.Helper()
	for _, key := range []string{"CONFIG_FILE", "DB_DRIVER", "POSTGRES_DSN", "SEED", "SEED_ADMIN_USERNAME", "SEED_ADMIN_PASSWORD", "HTTP_PORT", "ENVIRONMENT", "LOG_LEVEL"} {
		t.Setenv("ROOMBOOKING_"+key, "")
	}
	dbPath := filepath.Join(t.TempDir(), "roombooking.db")
	t.Setenv("ROOMBOOKING_SESSION_SECRET", "main-test-secret")
	t.Setenv("ROOMBOOKING_SQLITE_PATH", dbPath)
	return dbPath
}

func TestRun_MigrateOnlySeedsOnce(t *testing.T) {
	dbPath := setBaseEnv(t)
	t.Setenv("ROOMBOOKING_SEED_ADMIN_USERNAME", "root")

	var first syncBuffer
	require.NoError(t, run(context.Background(), []string{"-migrate-only", "-seed"}, &first))
	assert.Contains(t, first.String(), "generated initial administrator password")
	assert.Contains(t, first.String(), "database is up to date")

	var second syncBuffer
	require.NoError(t, run(context.Background(), []string{"-migrate-only", "-seed"}, &second))
	assert.Contains(t, second.String(), "skipping seed")
	assert.NotContains(t, second.String(), "generated initial administrator password")

	store, err := sqlite.Open(dbPath)
	require.NoError(t, err)
	defer store.Close()
	users, err := store.ListUsers(context.Background())
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "root", users[0].Username)
}

func TestRun_InvalidConfiguration(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("ROOMBOOKING_SESSION_SECRET", "")

	var out syncBuffer
	err := run(context.Background(), []string{"-migrate-only"}, &out)
	require.Error(t, err)
	assert.Contains(t, out.String(), "failed to load configuration")
	assert.Contains(t, err.Error(), "ROOMBOOKING_SESSION_SECRET")
}

func TestRun_UnknownFlag(t *testing.T) {
	setBaseEnv(t)
	var out syncBuffer
	assert.Error(t, run(context.Background(), []string{"-nope"}, &out))
}

func TestRun_ServesUntilCancelled(t *testing.T) {
	setBaseEnv(t)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := listener.Addr().(*net.TCPAddr).Port
	require.NoError(t, listener.Close())
	t.Setenv("ROOMBOOKING_HTTP_PORT", fmt.Sprint(port))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var out syncBuffer
	done := make(chan error, 1)
	go func() { done <- run(ctx, nil, &out) }()

	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", port)
	require.Eventually(t, func() bool {
		resp, err := http.Get(healthURL)
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 50*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(15 * time.Second):
		t.Fatal("server did not shut down")
	}
	assert.Contains(t, out.String(), "server stopped")
}
