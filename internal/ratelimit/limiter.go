package ratelimit

import (
	"log/slog"
	"math"
	"sync"
	"time"
)

// Type identifies a rate limit bucket with its own window configuration
type Type string

const (
	TypeGeneral   Type = "general"
	TypeLogin     Type = "login"
	TypeAPI       Type = "api"
	TypeSensitive Type = "sensitive"
)

// Config holds the window parameters for one limit type
type Config struct {
	Window        time.Duration
	MaxRequests   int
	BlockDuration time.Duration
}

// configs is a static table, not runtime-mutable
var configs = map[Type]Config{
	TypeGeneral:   {Window: 1 * time.Minute, MaxRequests: 60, BlockDuration: 5 * time.Minute},
	TypeLogin:     {Window: 15 * time.Minute, MaxRequests: 5, BlockDuration: 30 * time.Minute},
	TypeAPI:       {Window: 1 * time.Minute, MaxRequests: 100, BlockDuration: 2 * time.Minute},
	TypeSensitive: {Window: 1 * time.Hour, MaxRequests: 3, BlockDuration: 2 * time.Hour},
}

// Reputation parameters: strikes decay after StrikeWindow of inactivity;
// StrikeThreshold strikes within the window install a BanDuration hard ban.
const (
	StrikeWindow    = 30 * time.Minute
	StrikeThreshold = 10
	BanDuration     = 1 * time.Hour
)

// Result is the outcome of a rate limit check
type Result struct {
	Allowed           bool
	Remaining         int
	RetryAfterSeconds int
}

type entry struct {
	count         int
	windowResetAt time.Time
	blocked       bool
	blockUntil    time.Time
}

type strikeEntry struct {
	strikes      int
	lastStrikeAt time.Time
}

// Limiter owns the in-process rate-limit, reputation, and ban tables. All
// state transitions happen under one mutex: two concurrent requests for the
// same identifier can never both win past the max-count boundary, and a ban
// is visible to every subsequent check immediately.
type Limiter struct {
	mu      sync.Mutex
	entries map[string]*entry
	strikes map[string]*strikeEntry
	bans    map[string]time.Time
	logger  *slog.Logger
	now     func() time.Time
}

// New creates a Limiter
func New(logger *slog.Logger) *Limiter {
	return &Limiter{
		entries: make(map[string]*entry),
		strikes: make(map[string]*strikeEntry),
		bans:    make(map[string]time.Time),
		logger:  logger,
		now:     time.Now,
	}
}

// Check counts a request against the identifier's window for the given type.
// Counting is consume-on-attempt: an aborted request does not roll back its
// increment, so retry storms cannot bypass the limit.
func (l *Limiter) Check(identifier string, t Type) Result {
	cfg, ok := configs[t]
	if !ok {
		cfg = configs[TypeGeneral]
	}

	key := string(t) + ":" + identifier
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	e := l.entries[key]

	// Fresh window: first request for the key, a lapsed block, or an expired
	// unblocked window. Expiry is lazy; no timer is needed for correctness.
	if e == nil || (e.blocked && !now.Before(e.blockUntil)) || (!e.blocked && !now.Before(e.windowResetAt)) {
		l.entries[key] = &entry{count: 1, windowResetAt: now.Add(cfg.Window)}
		return Result{Allowed: true, Remaining: cfg.MaxRequests - 1}
	}

	if e.blocked {
		return Result{Allowed: false, RetryAfterSeconds: ceilSeconds(e.blockUntil.Sub(now))}
	}

	e.count++
	if e.count > cfg.MaxRequests {
		e.blocked = true
		e.blockUntil = now.Add(cfg.BlockDuration)
		l.logger.Warn("rate limit exceeded",
			slog.String("limit_type", string(t)),
			slog.String("identifier", identifier),
			slog.Duration("block_duration", cfg.BlockDuration))
		return Result{Allowed: false, RetryAfterSeconds: ceilSeconds(cfg.BlockDuration)}
	}

	return Result{Allowed: true, Remaining: cfg.MaxRequests - e.count}
}

// RecordStrike records an abuse strike against an identifier, independent of
// the per-type limiter state. A stale strike entry is replaced, not
// incremented. Returns true when this strike crossed the ban threshold.
func (l *Limiter) RecordStrike(identifier string) bool {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	s := l.strikes[identifier]
	if s == nil || now.Sub(s.lastStrikeAt) > StrikeWindow {
		l.strikes[identifier] = &strikeEntry{strikes: 1, lastStrikeAt: now}
		return false
	}

	s.strikes++
	s.lastStrikeAt = now

	if s.strikes >= StrikeThreshold {
		l.bans[identifier] = now.Add(BanDuration)
		delete(l.strikes, identifier)
		l.logger.Warn("identifier banned",
			slog.String("identifier", identifier),
			slog.Int("strikes", s.strikes),
			slog.Duration("ban_duration", BanDuration))
		return true
	}

	return false
}

// IsBanned reports whether a hard ban is active. A lapsed ban self-clears on
// check.
func (l *Limiter) IsBanned(identifier string) bool {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	banUntil, ok := l.bans[identifier]
	if !ok {
		return false
	}
	if !now.Before(banUntil) {
		delete(l.bans, identifier)
		return false
	}
	return true
}

// BanRetryAfter returns the remaining seconds of an active ban, or 0
func (l *Limiter) BanRetryAfter(identifier string) int {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	banUntil, ok := l.bans[identifier]
	if !ok || !now.Before(banUntil) {
		return 0
	}
	return ceilSeconds(banUntil.Sub(now))
}

// Sweep removes entries whose window and block have both fully expired,
// strike entries idle past twice the strike window, and lapsed bans. Memory
// hygiene only: a fresh entry recreated right after a sweep behaves the same
// as one the sweep spared.
func (l *Limiter) Sweep() {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for key, e := range l.entries {
		if e.blocked {
			if !now.Before(e.blockUntil) {
				delete(l.entries, key)
				removed++
			}
		} else if !now.Before(e.windowResetAt) {
			delete(l.entries, key)
			removed++
		}
	}

	for id, s := range l.strikes {
		if now.Sub(s.lastStrikeAt) > 2*StrikeWindow {
			delete(l.strikes, id)
			removed++
		}
	}

	for id, banUntil := range l.bans {
		if !now.Before(banUntil) {
			delete(l.bans, id)
			removed++
		}
	}

	if removed > 0 {
		l.logger.Debug("rate limit sweep completed", slog.Int("entries_removed", removed))
	}
}

func ceilSeconds(d time.Duration) int {
	return int(math.Ceil(d.Seconds()))
}
