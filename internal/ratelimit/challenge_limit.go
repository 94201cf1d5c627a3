package ratelimit

import (
	"context"
	"fmt"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/satgate/satgate/internal/config"
)

const keyChallengeIP = "challenge:ip:%s"

// ChallengeLimiter throttles 402 challenge issuance per client IP. Every
// challenge can create a session row and a rail invoice, so unpaid
// traffic must not mint them unboundedly. Without Redis the limiter is
// nil and passes everything through, which is fine on a single instance.
type ChallengeLimiter struct {
	enabled bool

	bucket *TokenBucket
	rate   float64
	burst  int
}

func NewChallengeLimiter(cfg config.Config) (*ChallengeLimiter, error) {
	if !cfg.RateLimitEnabled || !cfg.RedisConfigured() {
		return nil, nil
	}
	if cfg.ChallengeRatePerMin <= 0 || cfg.ChallengeBurst <= 0 {
		return nil, fmt.Errorf("challenge rate limit must be positive, got rate=%d burst=%d",
			cfg.ChallengeRatePerMin, cfg.ChallengeBurst)
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: strings.TrimSpace(cfg.RedisPassword),
		DB:       cfg.RedisDB,
	})

	return &ChallengeLimiter{
		enabled: true,
		bucket:  NewTokenBucket(client),
		rate:    float64(cfg.ChallengeRatePerMin) / 60.0,
		burst:   int(cfg.ChallengeBurst),
	}, nil
}

func (l *ChallengeLimiter) Enabled() bool {
	return l != nil && l.enabled
}

// Allow reports whether clientIP may receive another challenge now.
func (l *ChallengeLimiter) Allow(ctx context.Context, clientIP string) (*Result, error) {
	if !l.Enabled() {
		return &Result{Allowed: true}, nil
	}
	clientIP = strings.TrimSpace(clientIP)
	if clientIP == "" {
		return &Result{Allowed: true}, nil
	}
	return l.bucket.Allow(ctx, fmt.Sprintf(keyChallengeIP, clientIP), l.rate, l.burst)
}
