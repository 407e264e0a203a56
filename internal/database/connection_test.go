package database

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPool_RequiresURL(t *testing.T) {
	pool, err := NewPool(context.Background(), Config{})
	require.Error(t, err)
	assert.Nil(t, pool)
	assert.Contains(t, err.Error(), "database url is required")
}

func TestNewPool_InvalidURL(t *testing.T) {
	pool, err := NewPool(context.Background(), Config{URL: "postgres://user@localhost:notaport/db"})
	require.Error(t, err)
	assert.Nil(t, pool)
	assert.Contains(t, err.Error(), "failed to parse database config")
}

func TestParseConfig(t *testing.T) {
	t.Run("sizes and default application name", func(t *testing.T) {
		cfg, err := parseConfig(Config{URL: "postgres://u:p@localhost:5432/db", MaxConns: 8, MinConns: 2})
		require.NoError(t, err)
		assert.Equal(t, int32(8), cfg.MaxConns)
		assert.Equal(t, int32(2), cfg.MinConns)
		assert.Equal(t, "policyrag", cfg.ConnConfig.RuntimeParams["application_name"])
	})

	t.Run("configured application name", func(t *testing.T) {
		cfg, err := parseConfig(Config{URL: "postgres://u:p@localhost:5432/db", ApplicationName: "policyragd"})
		require.NoError(t, err)
		assert.Equal(t, "policyragd", cfg.ConnConfig.RuntimeParams["application_name"])
	})

	t.Run("url application name wins", func(t *testing.T) {
		cfg, err := parseConfig(Config{
			URL:             "postgres://u:p@localhost:5432/db?application_name=reindex",
			ApplicationName: "policyragd",
		})
		require.NoError(t, err)
		assert.Equal(t, "reindex", cfg.ConnConfig.RuntimeParams["application_name"])
	})

	t.Run("min above max", func(t *testing.T) {
		_, err := parseConfig(Config{URL: "postgres://u:p@localhost:5432/db", MaxConns: 2, MinConns: 4})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "exceeds max conns")
	})
}
