package auth

import (
	"strings"
	"sync"
	"time"

	"github.com/mrlokans/library/internal/config"
)

// RateLimitConfig bounds failed logins per client address and login name.
type RateLimitConfig struct {
	MaxAttempts     int           // failures allowed inside one window
	WindowDuration  time.Duration // window over which failures are counted
	LockoutDuration time.Duration // block applied once MaxAttempts is reached
	CleanupInterval time.Duration // sweep period for stale entries
}

// DefaultRateLimitConfig allows five failures per fifteen minutes, then
// blocks the pair for half an hour.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		MaxAttempts:     5,
		WindowDuration:  15 * time.Minute,
		LockoutDuration: 30 * time.Minute,
		CleanupInterval: 5 * time.Minute,
	}
}

// RateLimitConfigFrom takes the limits from the auth settings, keeping
// defaults for anything unset.
func RateLimitConfigFrom(cfg config.Auth) RateLimitConfig {
	out := DefaultRateLimitConfig()
	if cfg.MaxLoginAttempts > 0 {
		out.MaxAttempts = cfg.MaxLoginAttempts
	}
	if cfg.RateLimitWindow > 0 {
		out.WindowDuration = cfg.RateLimitWindow
	}
	if cfg.LockoutDuration > 0 {
		out.LockoutDuration = cfg.LockoutDuration
	}
	return out
}

// failures counts login failures for one client/login pair.
type failures struct {
	count       int
	windowStart time.Time
	blockedTill time.Time
}

func (f *failures) blocked(now time.Time) bool {
	return now.Before(f.blockedTill)
}

func (f *failures) windowOver(now time.Time, window time.Duration) bool {
	return now.Sub(f.windowStart) > window
}

// RateLimiter throttles login attempts. It complements the per-account
// lockout in Service by also slowing down guessing against unknown names.
type RateLimiter struct {
	cfg RateLimitConfig

	mu      sync.Mutex
	entries map[string]*failures

	done     chan struct{}
	stopOnce sync.Once
}

// NewRateLimiter starts a limiter and its background sweeper. Call Stop to
// release the sweeper.
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	defaults := DefaultRateLimitConfig()
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaults.MaxAttempts
	}
	if cfg.WindowDuration <= 0 {
		cfg.WindowDuration = defaults.WindowDuration
	}
	if cfg.LockoutDuration <= 0 {
		cfg.LockoutDuration = defaults.LockoutDuration
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = defaults.CleanupInterval
	}

	rl := &RateLimiter{
		cfg:     cfg,
		entries: make(map[string]*failures),
		done:    make(chan struct{}),
	}
	go rl.sweepLoop()
	return rl
}

// Stop ends the sweeper. Safe to call more than once.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.done) })
}

// key folds case and surrounding space so "Alice " and "alice" share a counter.
func key(ip, login string) string {
	return ip + "|" + strings.ToLower(strings.TrimSpace(login))
}

// Allow reports whether another attempt may be made now, and if not, how
// long the caller has to wait.
func (rl *RateLimiter) Allow(ip, login string) (bool, time.Duration) {
	now := time.Now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	f, ok := rl.entries[key(ip, login)]
	switch {
	case !ok:
		return true, 0
	case f.blocked(now):
		return false, f.blockedTill.Sub(now)
	case f.windowOver(now, rl.cfg.WindowDuration), f.count < rl.cfg.MaxAttempts:
		return true, 0
	default:
		return false, rl.cfg.LockoutDuration
	}
}

// RecordFailure counts a failed attempt and reports whether the pair is
// now blocked.
func (rl *RateLimiter) RecordFailure(ip, login string) (bool, time.Duration) {
	now := time.Now()
	k := key(ip, login)

	rl.mu.Lock()
	defer rl.mu.Unlock()

	f, ok := rl.entries[k]
	if !ok || f.windowOver(now, rl.cfg.WindowDuration) {
		f = &failures{windowStart: now}
		rl.entries[k] = f
	}

	f.count++
	if f.count < rl.cfg.MaxAttempts {
		return false, 0
	}
	f.blockedTill = now.Add(rl.cfg.LockoutDuration)
	return true, rl.cfg.LockoutDuration
}

// RecordSuccess forgets earlier failures for the pair.
func (rl *RateLimiter) RecordSuccess(ip, login string) {
	rl.mu.Lock()
	delete(rl.entries, key(ip, login))
	rl.mu.Unlock()
}

func (rl *RateLimiter) sweepLoop() {
	ticker := time.NewTicker(rl.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rl.done:
			return
		case now := <-ticker.C:
			rl.sweep(now)
		}
	}
}

// sweep drops entries whose window and block have both run out.
func (rl *RateLimiter) sweep(now time.Time) {
	horizon := rl.cfg.WindowDuration + rl.cfg.LockoutDuration

	rl.mu.Lock()
	defer rl.mu.Unlock()

	for k, f := range rl.entries {
		if f.windowOver(now, horizon) && !f.blocked(now) {
			delete(rl.entries, k)
		}
	}
}
