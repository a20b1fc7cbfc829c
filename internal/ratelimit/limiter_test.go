package ratelimit

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestLimiter returns a limiter with a controllable clock
func newTestLimiter() (*Limiter, *time.Time) {
	l := New(slog.New(slog.NewTextHandler(io.Discard, nil)))
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	return l, &now
}

func TestCheck_AllowsUpToMax(t *testing.T) {
	l, _ := newTestLimiter()
	max := configs[TypeLogin].MaxRequests

	for i := 0; i < max; i++ {
		res := l.Check("10.0.0.5", TypeLogin)
		assert.True(t, res.Allowed, "request %d should be allowed", i+1)
		assert.Equal(t, max-i-1, res.Remaining)
	}

	res := l.Check("10.0.0.5", TypeLogin)
	assert.False(t, res.Allowed)
	assert.Greater(t, res.RetryAfterSeconds, 0)
}

func TestCheck_BlockedUntilDurationElapses(t *testing.T) {
	l, now := newTestLimiter()
	cfg := configs[TypeLogin]

	for i := 0; i <= cfg.MaxRequests; i++ {
		l.Check("10.0.0.5", TypeLogin)
	}

	// Still blocked just before expiry
	*now = now.Add(cfg.BlockDuration - time.Second)
	res := l.Check("10.0.0.5", TypeLogin)
	assert.False(t, res.Allowed)
	assert.Equal(t, 1, res.RetryAfterSeconds)

	// Fresh window with count=1 after block lapses
	*now = now.Add(2 * time.Second)
	res = l.Check("10.0.0.5", TypeLogin)
	assert.True(t, res.Allowed)
	assert.Equal(t, cfg.MaxRequests-1, res.Remaining)
}

func TestCheck_WindowResetsCount(t *testing.T) {
	l, now := newTestLimiter()
	cfg := configs[TypeLogin]

	for i := 0; i < cfg.MaxRequests; i++ {
		l.Check("10.0.0.5", TypeLogin)
	}

	*now = now.Add(cfg.Window + time.Second)
	res := l.Check("10.0.0.5", TypeLogin)
	assert.True(t, res.Allowed)
	assert.Equal(t, cfg.MaxRequests-1, res.Remaining)
}

func TestCheck_IndependentKeysAndTypes(t *testing.T) {
	l, _ := newTestLimiter()
	cfg := configs[TypeLogin]

	for i := 0; i <= cfg.MaxRequests; i++ {
		l.Check("10.0.0.5", TypeLogin)
	}

	assert.True(t, l.Check("10.0.0.6", TypeLogin).Allowed, "other identifier unaffected")
	assert.True(t, l.Check("10.0.0.5", TypeGeneral).Allowed, "other type unaffected")
}

func TestCheck_UnknownTypeFallsBackToGeneral(t *testing.T) {
	l, _ := newTestLimiter()
	res := l.Check("10.0.0.5", Type("bogus"))
	assert.True(t, res.Allowed)
	assert.Equal(t, configs[TypeGeneral].MaxRequests-1, res.Remaining)
}

func TestCheck_ConcurrentRequestsNeverExceedMax(t *testing.T) {
	l := New(slog.New(slog.NewTextHandler(io.Discard, nil)))
	max := configs[TypeLogin].MaxRequests

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0

	for i := 0; i < max*10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Check("10.0.0.5", TypeLogin).Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, max, allowed)
}

func TestRecordStrike_ThresholdInstallsBan(t *testing.T) {
	l, _ := newTestLimiter()

	for i := 0; i < StrikeThreshold-1; i++ {
		banned := l.RecordStrike("10.0.0.5")
		assert.False(t, banned, "strike %d should not ban", i+1)
		assert.False(t, l.IsBanned("10.0.0.5"))
	}

	assert.True(t, l.RecordStrike("10.0.0.5"))
	assert.True(t, l.IsBanned("10.0.0.5"))
}

func TestRecordStrike_StaleEntryReplacedNotIncremented(t *testing.T) {
	l, now := newTestLimiter()

	for i := 0; i < StrikeThreshold-1; i++ {
		l.RecordStrike("10.0.0.5")
	}

	// After the strike window lapses, the next strike starts over at one
	*now = now.Add(StrikeWindow + time.Minute)
	assert.False(t, l.RecordStrike("10.0.0.5"))

	for i := 0; i < StrikeThreshold-2; i++ {
		assert.False(t, l.RecordStrike("10.0.0.5"))
	}
	assert.True(t, l.RecordStrike("10.0.0.5"))
}

func TestIsBanned_LapsedBanSelfClears(t *testing.T) {
	l, now := newTestLimiter()

	for i := 0; i < StrikeThreshold; i++ {
		l.RecordStrike("10.0.0.5")
	}
	require.True(t, l.IsBanned("10.0.0.5"))
	assert.Greater(t, l.BanRetryAfter("10.0.0.5"), 0)

	*now = now.Add(BanDuration + time.Second)
	assert.False(t, l.IsBanned("10.0.0.5"))
	assert.Equal(t, 0, l.BanRetryAfter("10.0.0.5"))

	// Cleared for good, not just hidden
	assert.False(t, l.IsBanned("10.0.0.5"))
}

func TestBanIndependentOfLimiterState(t *testing.T) {
	l, _ := newTestLimiter()

	for i := 0; i < StrikeThreshold; i++ {
		l.RecordStrike("10.0.0.5")
	}
	require.True(t, l.IsBanned("10.0.0.5"))

	// The per-type limiter still has its own fresh window
	assert.True(t, l.Check("10.0.0.5", TypeLogin).Allowed)
}

func TestScenario_LoginAttemptsAndEscalatingBan(t *testing.T) {
	l, now := newTestLimiter()

	// Five attempts inside the window succeed, the sixth is rejected
	for i := 0; i < 5; i++ {
		assert.True(t, l.Check("10.0.0.5", TypeLogin).Allowed)
	}
	res := l.Check("10.0.0.5", TypeLogin)
	assert.False(t, res.Allowed)
	assert.Greater(t, res.RetryAfterSeconds, 0)

	// Ten strikes spread over distinct windows within 30 minutes ban the IP
	for i := 0; i < StrikeThreshold; i++ {
		l.RecordStrike("10.0.0.5")
		*now = now.Add(2 * time.Minute)
	}
	assert.True(t, l.IsBanned("10.0.0.5"))

	// Banned for up to one hour, then clear
	*now = now.Add(30 * time.Minute)
	assert.True(t, l.IsBanned("10.0.0.5"))
	*now = now.Add(31 * time.Minute)
	assert.False(t, l.IsBanned("10.0.0.5"))
}

func TestSweep_RemovesOnlyExpiredState(t *testing.T) {
	l, now := newTestLimiter()
	cfg := configs[TypeGeneral]

	l.Check("expired", TypeGeneral)
	for i := 0; i <= configs[TypeLogin].MaxRequests; i++ {
		l.Check("blocked", TypeLogin)
	}
	l.RecordStrike("striker")

	*now = now.Add(cfg.Window + time.Second)
	l.Check("live", TypeGeneral)
	l.Sweep()

	l.mu.Lock()
	_, expiredGone := l.entries["general:expired"]
	_, blockedKept := l.entries["login:blocked"]
	_, liveKept := l.entries["general:live"]
	_, strikerKept := l.strikes["striker"]
	l.mu.Unlock()

	assert.False(t, expiredGone, "expired window entry removed")
	assert.True(t, blockedKept, "active block survives sweep")
	assert.True(t, liveKept, "live window survives sweep")
	assert.True(t, strikerKept, "recent strike survives sweep")

	// Once everything lapses, the sweep drains the tables
	*now = now.Add(2*StrikeWindow + configs[TypeLogin].BlockDuration + time.Minute)
	l.Sweep()

	l.mu.Lock()
	entries, strikes := len(l.entries), len(l.strikes)
	l.mu.Unlock()
	assert.Zero(t, entries)
	assert.Zero(t, strikes)
}

func TestSweep_RacesBenignlyWithChecks(t *testing.T) {
	l := New(slog.New(slog.NewTextHandler(io.Discard, nil)))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				l.Check(fmt.Sprintf("10.0.0.%d", n), TypeGeneral)
				l.RecordStrike(fmt.Sprintf("10.0.0.%d", n))
				l.IsBanned(fmt.Sprintf("10.0.0.%d", n))
			}
		}(i)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for j := 0; j < 100; j++ {
			l.Sweep()
		}
	}()
	wg.Wait()
}
