package db

import (
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/passbi/connscan/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnString(t *testing.T) {
	cfg := config.Default().Database

	t.Run("Defaults", func(t *testing.T) {
		assert.Equal(t, "postgres://postgres@localhost:5432/connscan?sslmode=disable", ConnString(cfg))
	})

	t.Run("Escapes the password", func(t *testing.T) {
		c := cfg
		c.Password = "p@ss word"
		u, err := url.Parse(ConnString(c))
		require.NoError(t, err)
		pw, ok := u.User.Password()
		require.True(t, ok)
		assert.Equal(t, "p@ss word", pw)
	})

	t.Run("IPv6 host", func(t *testing.T) {
		c := cfg
		c.Host = "::1"
		assert.Contains(t, ConnString(c), "@[::1]:5432/")
	})
}

func TestPoolConfig(t *testing.T) {
	t.Run("Applies pool settings", func(t *testing.T) {
		cfg := config.Default().Database
		cfg.Host = "db.internal"
		cfg.Port = 6543
		cfg.Name = "transit"
		cfg.MinConns = 1
		cfg.MaxConns = 4
		cfg.MaxConnIdleTime = time.Minute

		pc, err := PoolConfig(cfg)
		require.NoError(t, err)
		assert.Equal(t, "db.internal", pc.ConnConfig.Host)
		assert.Equal(t, uint16(6543), pc.ConnConfig.Port)
		assert.Equal(t, "transit", pc.ConnConfig.Database)
		assert.Equal(t, int32(1), pc.MinConns)
		assert.Equal(t, int32(4), pc.MaxConns)
		assert.Equal(t, time.Hour, pc.MaxConnLifetime)
		assert.Equal(t, time.Minute, pc.MaxConnIdleTime)
		assert.Equal(t, "connscan", pc.ConnConfig.RuntimeParams["application_name"])
		assert.Equal(t, pgx.QueryExecModeCacheStatement, pc.ConnConfig.DefaultQueryExecMode)
	})

	t.Run("Simple protocol for transaction poolers", func(t *testing.T) {
		cfg := config.Default().Database
		cfg.SimpleProtocol = true

		pc, err := PoolConfig(cfg)
		require.NoError(t, err)
		assert.Equal(t, pgx.QueryExecModeSimpleProtocol, pc.ConnConfig.DefaultQueryExecMode)
	})
}

func TestSchemaStatements(t *testing.T) {
	assert.NotEmpty(t, schema)
	for _, stmt := range schema {
		assert.Contains(t, stmt, "IF NOT EXISTS")
	}

	// every checked table is created by the schema
	for _, table := range tables {
		found := false
		for _, stmt := range schema {
			if strings.Contains(stmt, "CREATE TABLE IF NOT EXISTS "+table+" (") {
				found = true
			}
		}
		assert.True(t, found, table)
	}
}
