// Package redisstore keeps report rate-limit windows in Redis so every
// replica shares one quota per reporter.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"tangled.org/agora.social/agora/internal/moderation"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "agora:reports:"

// Connect initializes a Redis client from a redis:// URL or host:port and
// checks that the server answers.
func Connect(ctx context.Context, redisURL string) (*redis.Client, error) {
	var client *redis.Client
	if strings.HasPrefix(redisURL, "redis://") || strings.HasPrefix(redisURL, "rediss://") {
		opt, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		client = redis.NewClient(opt)
	} else {
		client = redis.NewClient(&redis.Options{Addr: redisURL})
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// incrWindow increments the reporter's counter and starts the window on the
// first hit. Returns the count after the increment.
var incrWindow = redis.NewScript(`
local n = redis.call("INCR", KEYS[1])
if n == 1 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return n
`)

// ReportLimiter is a fixed-window limiter shared across processes
type ReportLimiter struct {
	client *redis.Client
	limit  int
	window time.Duration
}

var _ moderation.ReportLimiter = (*ReportLimiter)(nil)

// NewReportLimiter allows limit reports per reporter per window
func NewReportLimiter(client *redis.Client, limit int, window time.Duration) *ReportLimiter {
	if limit <= 0 {
		limit = moderation.DefaultReportLimit
	}
	if window <= 0 {
		window = moderation.DefaultReportWindow
	}
	return &ReportLimiter{client: client, limit: limit, window: window}
}

func (l *ReportLimiter) Allow(ctx context.Context, reporterID string) (bool, error) {
	n, err := incrWindow.Run(ctx, l.client, []string{keyPrefix + reporterID}, l.window.Milliseconds()).Int64()
	if err != nil {
		return false, fmt.Errorf("report window: %w", err)
	}
	return n <= int64(l.limit), nil
}

// releaseWindow gives back one unit if the window is still open
var releaseWindow = redis.NewScript(`
local n = tonumber(redis.call("GET", KEYS[1]) or "0")
if n > 0 then
	return redis.call("DECR", KEYS[1])
end
return 0
`)

func (l *ReportLimiter) Release(ctx context.Context, reporterID string) error {
	if err := releaseWindow.Run(ctx, l.client, []string{keyPrefix + reporterID}).Err(); err != nil {
		return fmt.Errorf("release report window: %w", err)
	}
	return nil
}

func (l *ReportLimiter) Remaining(ctx context.Context, reporterID string) (int, error) {
	n, err := l.client.Get(ctx, keyPrefix+reporterID).Int()
	if errors.Is(err, redis.Nil) {
		return l.limit, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read report window: %w", err)
	}
	return max(l.limit-n, 0), nil
}
