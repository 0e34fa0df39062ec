package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// seedAndIncr initialises the counter from ARGV[1] when missing, then increments.
var seedAndIncr = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then
  redis.call("SET", KEYS[1], ARGV[1])
end
return redis.call("INCR", KEYS[1])
`)

// raiseTo moves the counter up to ARGV[1] if it is behind.
var raiseTo = redis.NewScript(`
local current = tonumber(redis.call("GET", KEYS[1]) or "0")
local floor = tonumber(ARGV[1])
if current < floor then
  redis.call("SET", KEYS[1], floor)
  return floor
end
return current
`)

// AttendanceCounter hands out attendance numbers from a Redis counter.
type AttendanceCounter struct {
	client *redis.Client
	key    string
}

// NewAttendanceCounter builds a counter stored under key.
func NewAttendanceCounter(client *redis.Client, key string) *AttendanceCounter {
	if key == "" {
		key = "checkin:attendance_number"
	}
	return &AttendanceCounter{client: client, key: key}
}

// Next atomically increments and returns the counter. seed is the value the
// counter starts from when the key does not exist yet.
func (c *AttendanceCounter) Next(ctx context.Context, seed int) (int, error) {
	n, err := seedAndIncr.Run(ctx, c.client, []string{c.key}, seed).Int()
	if err != nil {
		return 0, fmt.Errorf("next attendance number: %w", err)
	}
	return n, nil
}

// RaiseTo ensures the counter is at least floor.
func (c *AttendanceCounter) RaiseTo(ctx context.Context, floor int) error {
	if err := raiseTo.Run(ctx, c.client, []string{c.key}, floor).Err(); err != nil {
		return fmt.Errorf("raise attendance counter: %w", err)
	}
	return nil
}

// ScanThrottle limits how often a scanner station may submit codes.
type ScanThrottle struct {
	client *redis.Client
	prefix string
}

// NewScanThrottle builds a Redis backed throttle.
func NewScanThrottle(client *redis.Client) *ScanThrottle {
	return &ScanThrottle{client: client, prefix: "checkin:station:"}
}

// Allow claims the station's slot for interval. It returns false while a
// previous claim is still live.
func (t *ScanThrottle) Allow(ctx context.Context, station string, interval time.Duration) (bool, error) {
	ok, err := t.client.SetNX(ctx, t.prefix+station, time.Now().UTC().Format(time.RFC3339Nano), interval).Result()
	if err != nil {
		return false, fmt.Errorf("claim scan slot: %w", err)
	}
	return ok, nil
}
