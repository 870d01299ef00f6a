package server

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/minmer/recreatio-sub002/internal/logging"
	"github.com/minmer/recreatio-sub002/internal/server/config"
	"github.com/minmer/recreatio-sub002/internal/server/repositories/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.Config {
	var c config.Config
	c.LoadDefaults()
	c.Storage = config.StorageMemory
	c.EndpointAddrGRPC = "127.0.0.1:0"
	c.S3Bucket = ""
	return &c
}

func discardLogger() logging.Logger {
	return logging.Discard()
}

func TestNewApp_MemoryStorage(t *testing.T) {
	app, err := newApp(context.Background(), testConfig(), discardLogger())
	require.NoError(t, err)
	assert.NotNil(t, app.services.Accounts)
	assert.NotNil(t, app.services.Ledger)
	assert.Len(t, app.closers, 2)
}

func TestOpenStorage_UnknownBackend(t *testing.T) {
	c := testConfig()
	c.Storage = "etcd"
	_, _, err := openStorage(context.Background(), c)
	assert.ErrorContains(t, err, "unknown storage")
}

func TestOpenStorage_PostgresOpenError(t *testing.T) {
	orig := openDB
	t.Cleanup(func() { openDB = orig })
	openDB = func(string) (*sql.DB, error) { return nil, errors.New("boom") }

	c := testConfig()
	c.Storage = config.StoragePostgres
	_, _, err := openStorage(context.Background(), c)
	assert.ErrorContains(t, err, "db open error")
}

func TestNewExporter(t *testing.T) {
	c := testConfig()
	x, err := newExporter(context.Background(), c, memory.NewManager())
	require.NoError(t, err)
	assert.Nil(t, x)

	c.S3Bucket = "ledger"
	x, err = newExporter(context.Background(), c, memory.NewManager())
	require.NoError(t, err)
	assert.NotNil(t, x)
}

func TestRun_StopsOnCancel(t *testing.T) {
	app, err := newApp(context.Background(), testConfig(), discardLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		app.Run(ctx)
		close(done)
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("app did not stop")
	}
}
