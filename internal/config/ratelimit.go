package config

import "time"

// RateLimitConfig tunes the Redis token bucket applied to the /api routes.
// Every rate-limited route sits behind JWT auth, so buckets are keyed per
// user and route; unauthenticated requests share one bucket per client IP.
type RateLimitConfig struct {
	Enabled        bool
	Capacity       int           // bucket size, also the burst allowance
	RefillTokens   int           // tokens added per refill interval
	RefillInterval time.Duration
	TTL            time.Duration // idle bucket expiry in Redis
	Prefix         string        // key namespace
}

// LoadRateLimitConfig reads the rate limiter settings from the
// environment. Defaults allow a burst of 60 requests with a steady refill
// of one per second, which covers a user clicking through a checkout while
// still damping scripted reservation sweeps.
func LoadRateLimitConfig() RateLimitConfig {
	cfg := RateLimitConfig{
		Enabled:        envBool("RATE_LIMIT_ENABLED", true),
		Capacity:       envInt("RATE_LIMIT_CAPACITY", 60),
		RefillTokens:   envInt("RATE_LIMIT_REFILL_TOKENS", 1),
		RefillInterval: envDur("RATE_LIMIT_REFILL_INTERVAL", time.Second),
		TTL:            envDur("RATE_LIMIT_TTL", 10*time.Minute),
		Prefix:         envStr("RATE_LIMIT_PREFIX", "rl"),
	}
	if cfg.Capacity < 1 {
		cfg.Capacity = 1
	}
	if cfg.RefillTokens < 1 {
		cfg.RefillTokens = 1
	}
	if cfg.RefillInterval <= 0 {
		cfg.RefillInterval = time.Second
	}
	// Bucket state must outlive several refill cycles or idle buckets
	// reset to full capacity too eagerly.
	if minTTL := 5 * cfg.RefillInterval; cfg.TTL < minTTL {
		cfg.TTL = minTTL
	}
	return cfg
}
