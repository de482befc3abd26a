package config

import (
    "context"
    "testing"
    "time"

    "github.com/stretchr/testify/require"
    "go.uber.org/zap"
)

func TestParse_MemoryDefaults(t *testing.T) {
    t.Setenv("DB_DRIVER", "memory")
    t.Setenv("JWT_SECRET", "s3cret")

    cfg, err := Parse()
    require.NoError(t, err)
    require.Equal(t, "8080", cfg.Port)
    require.Equal(t, DriverMemory, cfg.DB.Driver)
    require.Equal(t, 15, cfg.AccessTTLMin)
    require.Equal(t, 7, cfg.RefreshTTLDays)
    require.Equal(t, 64, cfg.SubscriptionBuffer)
    require.Equal(t, 3, cfg.TxMaxRetries)
    require.Equal(t, []string{"*"}, cfg.CORSOrigins)
    require.False(t, cfg.AMQP.Enabled)
    require.True(t, cfg.Development())
}

func TestParse_SQLRequiresConnection(t *testing.T) {
    t.Setenv("DB_DRIVER", "postgres")
    t.Setenv("JWT_SECRET", "")
    t.Setenv("DB_USER", "")
    t.Setenv("DB_HOST", "db")
    t.Setenv("DB_NAME", "eventflow")

    _, err := Parse()
    require.Error(t, err)
    require.Contains(t, err.Error(), "JWT_SECRET")
    require.Contains(t, err.Error(), "DB_USER")

    t.Setenv("JWT_SECRET", "x")
    t.Setenv("DB_USER", "app")
    cfg, err := Parse()
    require.NoError(t, err)
    require.Equal(t, "5432", cfg.DB.Port)
    require.Equal(t, "disable", cfg.DB.SSLMode)
}

func TestParse_RejectsBadValues(t *testing.T) {
    t.Setenv("DB_DRIVER", "oracle")
    t.Setenv("JWT_SECRET", "x")
    t.Setenv("BCRYPT_COST", "high")

    _, err := Parse()
    require.ErrorContains(t, err, "DB_DRIVER")
    require.ErrorContains(t, err, "BCRYPT_COST")
}

func TestParse_ListsAndAMQP(t *testing.T) {
    t.Setenv("DB_DRIVER", "memory")
    t.Setenv("JWT_SECRET", "x")
    t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example,")
    t.Setenv("AMQP_ENABLED", "yes")
    t.Setenv("RABBITMQ_URL", "")
    t.Setenv("AMQP_URL", "amqp://mq:5672/")
    t.Setenv("SUBSCRIPTION_BUFFER", "0")

    cfg, err := Parse()
    require.NoError(t, err)
    require.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)
    require.True(t, cfg.AMQP.Enabled)
    require.Equal(t, "amqp://mq:5672/", cfg.AMQP.URL)
    require.Equal(t, 1, cfg.SubscriptionBuffer)
}

func TestLoadRateLimitConfig(t *testing.T) {
    t.Setenv("RATE_LIMIT_BURST", "5")
    t.Setenv("RATE_LIMIT_REFILL_EVERY", "2s")
    t.Setenv("RATE_LIMIT_TTL", "1s")

    rl := LoadRateLimitConfig()
    require.Equal(t, 5, rl.Capacity)
    require.Equal(t, 1, rl.RefillTokens)
    require.Equal(t, 2*time.Second, rl.RefillInterval)
    require.Equal(t, 10*time.Second, rl.TTL)
    require.Equal(t, "client_route", rl.KeyStrategy)
}

func TestLoadCacheConfig(t *testing.T) {
    t.Setenv("CACHE_METHODS", "get, head")
    t.Setenv("CACHE_ENABLED", "off")

    cc := LoadCacheConfig()
    require.False(t, cc.Enabled)
    require.Equal(t, map[string]bool{"GET": true, "HEAD": true}, cc.Methods)
    require.Equal(t, 30*time.Second, cc.TTL)
}

func TestLoadRedisConfig(t *testing.T) {
    t.Setenv("REDIS_HOST", "cache")
    t.Setenv("REDIS_PORT", "6380")
    t.Setenv("REDIS_DB", "2")

    rc := LoadRedisConfig()
    require.Equal(t, "cache:6380", rc.Addr)
    require.Equal(t, 2, rc.DB)
}

func TestNewRedisClient_Disabled(t *testing.T) {
    require.Nil(t, NewRedisClient(context.Background(), RedisConfig{}, zap.NewNop()))
}
