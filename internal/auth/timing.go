package auth

import (
	"crypto/rand"
	"encoding/binary"
	"time"
)

// TimingDelay equalizes the observable duration of authentication failures
// so "account not found" and "wrong password" are indistinguishable.
type TimingDelay struct {
	baseDelay   time.Duration
	randomRange time.Duration
}

// NewTimingDelay creates a TimingDelay with a fixed base and a random jitter
// range added on each failure
func NewTimingDelay(base, randomRange time.Duration) *TimingDelay {
	return &TimingDelay{baseDelay: base, randomRange: randomRange}
}

// Wait sleeps on failure; successes return immediately
func (td *TimingDelay) Wait(success bool) {
	if success {
		return
	}
	time.Sleep(td.baseDelay + td.jitter())
}

func (td *TimingDelay) jitter() time.Duration {
	if td.randomRange <= 0 {
		return 0
	}

	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return 0
	}
	n := binary.BigEndian.Uint64(buf)
	return time.Duration(n % uint64(td.randomRange))
}
