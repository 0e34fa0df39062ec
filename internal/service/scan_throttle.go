package service

import (
	"context"
	"sync"
	"time"
)

// LocalScanThrottle is the in-process throttle used when Redis is disabled.
type LocalScanThrottle struct {
	mu   sync.Mutex
	last map[string]time.Time
	now  func() time.Time
}

// NewLocalScanThrottle constructs an empty throttle.
func NewLocalScanThrottle() *LocalScanThrottle {
	return &LocalScanThrottle{last: make(map[string]time.Time), now: time.Now}
}

// Allow records a scan for station unless one was accepted within interval.
func (t *LocalScanThrottle) Allow(_ context.Context, station string, interval time.Duration) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	if prev, ok := t.last[station]; ok && now.Sub(prev) < interval {
		return false, nil
	}
	t.last[station] = now
	if len(t.last) > 1024 {
		for key, at := range t.last {
			if now.Sub(at) >= interval {
				delete(t.last, key)
			}
		}
	}
	return true, nil
}
