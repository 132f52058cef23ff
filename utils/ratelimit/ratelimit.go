package ratelimit

import (
	"context"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Gopher0727/StudyGroup/config"
)

// Rule allows Limit requests per Window. A non-positive Limit disables the rule.
type Rule struct {
	Limit  int
	Window time.Duration
}

// Rules holds the per-endpoint limits of the enrollment API.
type Rules struct {
	JoinRequest Rule
	Decision    Rule
}

// RulesFromConfig builds per-minute rules from configuration.
func RulesFromConfig(cfg *config.RateLimitConfig) Rules {
	return Rules{
		JoinRequest: Rule{Limit: cfg.JoinRequestsPerMinute, Window: time.Minute},
		Decision:    Rule{Limit: cfg.DecisionsPerMinute, Window: time.Minute},
	}
}

// Result of one check.
type Result struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// incrScript increments the window counter and sets its expiry on first use,
// returning the new count and the remaining TTL in milliseconds.
var incrScript = redis.NewScript(`
local n = redis.call('INCR', KEYS[1])
if n == 1 then
	redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return {n, redis.call('PTTL', KEYS[1])}
`)

// WindowLimiter is a fixed-window counter stored in Redis, shared by all
// instances of the service.
type WindowLimiter struct {
	client   redis.Cmdable
	logger   *zap.Logger
	failOpen bool
	now      func() time.Time
}

// NewWindowLimiter creates a limiter. With failOpen set, requests are allowed
// while Redis is unavailable.
func NewWindowLimiter(client redis.Cmdable, logger *zap.Logger, failOpen bool) *WindowLimiter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WindowLimiter{client: client, logger: logger, failOpen: failOpen, now: time.Now}
}

// Allow counts one request for key under rule.
func (l *WindowLimiter) Allow(ctx context.Context, key string, rule Rule) (Result, error) {
	if rule.Limit <= 0 || rule.Window <= 0 {
		return Result{Allowed: true, Remaining: -1}, nil
	}

	bucket := l.bucketKey(key, rule.Window)
	vals, err := incrScript.Run(ctx, l.client, []string{bucket}, rule.Window.Milliseconds()).Int64Slice()
	if err != nil || len(vals) != 2 {
		if err == nil {
			err = fmt.Errorf("unexpected script reply %v", vals)
		}
		l.logger.Error("rate limit check failed", zap.String("key", bucket), zap.Error(err))
		if l.failOpen {
			return Result{Allowed: true, Remaining: -1}, nil
		}
		return Result{}, fmt.Errorf("rate limit check failed: %w", err)
	}

	count, ttl := vals[0], time.Duration(vals[1])*time.Millisecond
	res := Result{
		Allowed:   count <= int64(rule.Limit),
		Remaining: max(rule.Limit-int(count), 0),
	}
	if !res.Allowed {
		res.RetryAfter = max(ttl, time.Second)
		l.logger.Warn("rate limit exceeded",
			zap.String("key", key),
			zap.Int64("count", count),
			zap.Int("limit", rule.Limit),
			zap.Duration("window", rule.Window),
		)
	}
	return res, nil
}

// Reset clears the current window of key.
func (l *WindowLimiter) Reset(ctx context.Context, key string, rule Rule) error {
	if err := l.client.Del(ctx, l.bucketKey(key, rule.Window)).Err(); err != nil {
		return fmt.Errorf("reset rate limit %s: %w", key, err)
	}
	return nil
}

func (l *WindowLimiter) bucketKey(key string, window time.Duration) string {
	return fmt.Sprintf("ratelimit:%s:%d", key, l.now().UnixMilli()/window.Milliseconds())
}
