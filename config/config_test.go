package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8090", cfg.Server.Port)
	assert.Equal(t, []string{"*"}, cfg.Server.CORSAllowedOrigins)
	assert.Equal(t, "mysql", cfg.Database.Driver)
	assert.Equal(t, WindowEnforce, cfg.Voting.WindowPolicy)
	assert.Equal(t, 8*time.Second, cfg.Voting.LockExpiry)
	assert.Empty(t, cfg.Redis.Addr)
	assert.Empty(t, cfg.RocketMQ.NameServers)
	assert.Equal(t, "voteuser:votepassword@tcp(mysql:3306)/votingdb?charset=utf8mb4&parseTime=True&loc=Local", cfg.Database.DSN())
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("DB_DRIVER", "SQLite")
	t.Setenv("SQLITE_PATH", "/tmp/votes.db")
	t.Setenv("VOTING_WINDOW_POLICY", "open")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("ROCKETMQ_NAMESRV_ADDR", "ns1:9876, ns2:9876")
	t.Setenv("CORS_ALLOWED_ORIGINS", "http://a.test,http://b.test")
	t.Setenv("CACHE_TTL_SEC", "60")
	t.Setenv("LOCK_EXPIRY_SEC", "bogus")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "/tmp/votes.db", cfg.Database.SQLitePath)
	assert.Equal(t, WindowOpen, cfg.Voting.WindowPolicy)
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
	assert.Equal(t, 3, cfg.Redis.DB)
	assert.Equal(t, time.Minute, cfg.Redis.CacheTTL)
	assert.Equal(t, []string{"ns1:9876", "ns2:9876"}, cfg.RocketMQ.NameServers)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.Server.CORSAllowedOrigins)
	assert.Equal(t, 8*time.Second, cfg.Voting.LockExpiry)
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name, key, value string
	}{
		{"window policy", "VOTING_WINDOW_POLICY", "sometimes"},
		{"driver", "DB_DRIVER", "oracle"},
		{"redis db", "REDIS_DB", "x"},
		{"vote rate", "VOTE_RATE_LIMIT", "fast"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv(tc.key, tc.value)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
