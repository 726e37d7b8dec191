package github

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// TokenPool rotates a fixed set of credentials round-robin, tracking a
// per-token cooldown from GitHub's rate-limit headers. It is an explicit
// object constructed once at startup and shared by reference — not ambient
// package state.
type TokenPool struct {
	mu        sync.Mutex
	tokens    []string
	next      int
	cooldowns map[string]time.Time // token -> reset time

	// sleep is swappable in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewTokenPool creates a pool over the given tokens.
func NewTokenPool(tokens []string) *TokenPool {
	return &TokenPool{
		tokens:    tokens,
		cooldowns: make(map[string]time.Time),
		sleep:     sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// Size returns the number of credentials in the pool.
func (p *TokenPool) Size() int {
	return len(p.tokens)
}

// Next returns the next token in rotation whose cooldown has expired. If a
// full cycle finds none available it blocks until the earliest reset, then
// retries selection. Blocking rather than failing matches the batch
// pipeline's stance: rate limits pause progress, they never abort it.
func (p *TokenPool) Next(ctx context.Context) (string, error) {
	for {
		token, wait := p.pick()
		if wait == 0 {
			return token, nil
		}

		slog.Info("All tokens exhausted, sleeping until rate-limit reset",
			"wait", wait.Round(time.Second))
		if err := p.sleep(ctx, wait); err != nil {
			return "", err
		}
	}
}

// pick returns an available token, or the wait until the earliest reset when
// every token is cooling down.
func (p *TokenPool) pick() (string, time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	for i := 0; i < len(p.tokens); i++ {
		token := p.tokens[p.next]
		p.next = (p.next + 1) % len(p.tokens)
		if p.cooldowns[token].Before(now) || p.cooldowns[token].Equal(now) {
			return token, 0
		}
	}

	earliest := time.Time{}
	for _, reset := range p.cooldowns {
		if earliest.IsZero() || reset.Before(earliest) {
			earliest = reset
		}
	}

	wait := earliest.Sub(now) + time.Second
	if wait < 0 {
		wait = time.Second
	}
	return "", wait
}

// RecordRateLimit inspects rate-limit response headers after a call and
// records the token's reset time as a cooldown once its remaining quota
// hits zero.
func (p *TokenPool) RecordRateLimit(token string, headers http.Header) {
	remaining := headers.Get("X-RateLimit-Remaining")
	resetAt := headers.Get("X-RateLimit-Reset")
	if remaining != "0" || resetAt == "" {
		return
	}

	unix, err := strconv.ParseInt(resetAt, 10, 64)
	if err != nil {
		return
	}

	reset := time.Unix(unix, 0)
	p.mu.Lock()
	p.cooldowns[token] = reset
	p.mu.Unlock()

	suffix := token
	if len(suffix) > 4 {
		suffix = suffix[len(suffix)-4:]
	}
	slog.Warn("Token exhausted, cooling down",
		"token_suffix", suffix,
		"reset_at", reset.UTC().Format(time.RFC3339))
}
