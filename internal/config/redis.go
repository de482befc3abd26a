package config

// Redis backs the rate limiter and the event-listing response cache. Both
// degrade to pass-through when no client is available, so a failed
// connection at startup is logged and reported as nil.

import (
    "context"
    "crypto/tls"
    "time"

    "github.com/redis/go-redis/v9"
    "go.uber.org/zap"
)

// RedisConfig is read from REDIS_ADDR (or REDIS_HOST + REDIS_PORT),
// REDIS_PASSWORD, REDIS_DB and REDIS_TLS.
type RedisConfig struct {
    Enabled  bool
    Addr     string
    Password string
    DB       int
    TLS      bool
}

func LoadRedisConfig() RedisConfig {
    addr := envStr("REDIS_ADDR", "localhost:6379")
    if host, port := envStr("REDIS_HOST", ""), envStr("REDIS_PORT", ""); host != "" && port != "" {
        addr = host + ":" + port
    }
    return RedisConfig{
        Enabled:  envBool("REDIS_ENABLED", true),
        Addr:     addr,
        Password: envStr("REDIS_PASSWORD", ""),
        DB:       envInt("REDIS_DB", 0),
        TLS:      envBool("REDIS_TLS", false),
    }
}

// NewRedisClient connects and pings the server. It returns nil when Redis is
// disabled or unreachable.
func NewRedisClient(ctx context.Context, rc RedisConfig, log *zap.Logger) *redis.Client {
    if !rc.Enabled {
        return nil
    }
    opts := &redis.Options{Addr: rc.Addr, Password: rc.Password, DB: rc.DB}
    if rc.TLS {
        opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
    }
    client := redis.NewClient(opts)

    ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
    defer cancel()
    if err := client.Ping(ctx).Err(); err != nil {
        log.Warn("redis unavailable, cache and rate limit disabled", zap.String("addr", rc.Addr), zap.Error(err))
        _ = client.Close()
        return nil
    }
    log.Info("redis connected", zap.String("addr", rc.Addr))
    return client
}
