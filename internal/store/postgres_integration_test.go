//go:build integration

package store

import (
	"context"
	"os"
	"strconv"
	"testing"

	"github.com/google/uuid"
	"github.com/speedwagon-io/opcsnapshot/internal/config"
	"github.com/speedwagon-io/opcsnapshot/internal/lib/logger/sl"
	"github.com/speedwagon-io/opcsnapshot/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// postgresConfig points at the server named by STORE_TEST_HOST and skips
// the test when it is unset.
func postgresConfig(t *testing.T) config.StoreConfig {
	t.Helper()

	host := os.Getenv("STORE_TEST_HOST")
	if host == "" {
		t.Skip("STORE_TEST_HOST not set, skipping PostgreSQL integration test")
	}

	port := 5432
	if p := os.Getenv("STORE_TEST_PORT"); p != "" {
		var err error
		port, err = strconv.Atoi(p)
		require.NoError(t, err)
	}

	return config.StoreConfig{
		Driver:        config.DriverPostgres,
		Host:          host,
		Port:          port,
		User:          os.Getenv("STORE_TEST_USER"),
		Password:      os.Getenv("STORE_TEST_PASSWORD"),
		Database:      "opcsnapshot_" + uuid.NewString()[:8],
		AdminDatabase: "postgres",
		SSLMode:       "disable",
		Table:         "opc_live_data",
	}
}

func TestPostgres_OpenTwiceAndRecord(t *testing.T) {
	cfg := postgresConfig(t)
	ctx := context.Background()

	s1, err := Open(ctx, sl.Discard(), cfg)
	require.NoError(t, err)
	require.NoError(t, s1.Close())

	s2, err := Open(ctx, sl.Discard(), cfg)
	require.NoError(t, err)
	defer s2.Close()

	for i := 0; i < 12; i++ {
		_, err := s2.Record(ctx, reading("ns=2;i="+strconv.Itoa(i), "Tag", int32(i), model.StatusGood))
		require.NoError(t, err)
	}

	rows, err := s2.Latest(ctx, 10)
	require.NoError(t, err)
	require.Len(t, rows, 10)
	assert.Equal(t, "11", rows[0].Value)
	assert.Equal(t, "Int32", rows[0].DataType)

	p, err := NewPostgresProvisioner(ctx, postgresDSN(cfg, cfg.AdminDatabase))
	require.NoError(t, err)
	defer p.Close()

	exists, err := p.DatabaseExists(ctx, cfg.Database)
	require.NoError(t, err)
	assert.True(t, exists)
}
