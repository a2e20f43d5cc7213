// Package redis implements the leaderboard cache on Redis.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrUnreachable is returned by Connect when the server does not answer.
	ErrUnreachable = errors.New("redis: server unreachable")

	// ErrBadEntry means a cached board could not be encoded or decoded.
	ErrBadEntry = errors.New("redis: malformed cache entry")
)

// Config holds the subset of client options the bot exposes.
type Config struct {
	Addr     string // host:port
	Password string
	DB       int

	PoolSize   int
	MaxRetries int

	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultConfig targets a local server. Cache calls sit on the command
// path, so read and write timeouts are kept short.
func DefaultConfig() Config {
	return Config{
		Addr:         "127.0.0.1:6379",
		PoolSize:     4,
		MaxRetries:   1,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  500 * time.Millisecond,
		WriteTimeout: 500 * time.Millisecond,
	}
}

func (c Config) options() *redis.Options {
	d := DefaultConfig()
	if c.Addr == "" {
		c.Addr = d.Addr
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = d.DialTimeout
	}
	return &redis.Options{
		Addr:         c.Addr,
		Password:     c.Password,
		DB:           c.DB,
		PoolSize:     c.PoolSize,
		MaxRetries:   c.MaxRetries,
		DialTimeout:  c.DialTimeout,
		ReadTimeout:  c.ReadTimeout,
		WriteTimeout: c.WriteTimeout,
	}
}

// Connect opens a client and pings it within the dial timeout. The client
// is closed again when the ping fails.
func Connect(ctx context.Context, cfg Config) (*redis.Client, error) {
	opts := cfg.options()
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(ctx, opts.DialTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: %s: %v", ErrUnreachable, opts.Addr, err)
	}
	return client, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// KEYS
// ══════════════════════════════════════════════════════════════════════════════

// PrefixLeaderboard namespaces every key this package writes.
const PrefixLeaderboard = "leaderboard:"

// VersionKey holds the guild's mutation counter.
func VersionKey(guild string) string {
	return PrefixLeaderboard + "ver:" + guild
}

// BoardKey holds one computed board for a version and limit.
func BoardKey(guild string, version int64, limit int) string {
	return fmt.Sprintf("%stop:%s:v%d:l%d", PrefixLeaderboard, guild, version, limit)
}
