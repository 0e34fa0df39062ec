package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/camp-checkin-api/pkg/config"
	"github.com/noah-isme/camp-checkin-api/pkg/database"
	appErrors "github.com/noah-isme/camp-checkin-api/pkg/errors"
)

// attendanceNumberConstraint is the unique constraint on attendees.attendance_number.
const attendanceNumberConstraint = "attendees_attendance_number_key"

type numberingRepository interface {
	MaxAttendanceNumber(ctx context.Context) (int, bool, error)
	ConfirmAttendance(ctx context.Context, id string, number int, confirmedAt time.Time) error
}

type attendanceCounter interface {
	Next(ctx context.Context, seed int) (int, error)
	RaiseTo(ctx context.Context, floor int) error
}

// Numberer assigns the next attendance number to an attendee and persists
// the confirmation in a single point update.
type Numberer interface {
	Strategy() string
	Assign(ctx context.Context, attendeeID string, confirmedAt time.Time) (int, error)
}

// NumberingOptions tunes numberers that retry on collisions.
type NumberingOptions struct {
	MaxRetries int
	Metrics    *MetricsService
	Logger     *zap.Logger
}

func (o NumberingOptions) normalize() NumberingOptions {
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

// NewNumberer builds the numberer for strategy. redis_counter without a
// counter degrades to serialized.
func NewNumberer(strategy string, repo numberingRepository, counter attendanceCounter, opts NumberingOptions) Numberer {
	opts = opts.normalize()
	switch strategy {
	case config.NumberingMaxPlusOne:
		return NewMaxPlusOneNumberer(repo)
	case config.NumberingRedisCounter:
		if counter != nil {
			return NewCounterNumberer(repo, counter, opts)
		}
		opts.Logger.Warn("redis counter numbering requested without redis, using serialized numbering")
	}
	return NewSerializedNumberer(repo, opts)
}

// MaxPlusOneNumberer reads the current maximum and writes max+1 with no
// coordination or retry. Two stations confirming at the same moment read the
// same maximum. The unique attendance number index rejects the later write,
// which surfaces as NUMBERING_CONFLICT; a store without that index keeps
// the duplicate.
type MaxPlusOneNumberer struct {
	repo numberingRepository
}

// NewMaxPlusOneNumberer constructs the uncoordinated numberer.
func NewMaxPlusOneNumberer(repo numberingRepository) *MaxPlusOneNumberer {
	return &MaxPlusOneNumberer{repo: repo}
}

// Strategy implements Numberer.
func (n *MaxPlusOneNumberer) Strategy() string { return config.NumberingMaxPlusOne }

// Assign implements Numberer.
func (n *MaxPlusOneNumberer) Assign(ctx context.Context, attendeeID string, confirmedAt time.Time) (int, error) {
	max, _, err := n.repo.MaxAttendanceNumber(ctx)
	if err != nil {
		return 0, err
	}
	next := max + 1
	if err := n.repo.ConfirmAttendance(ctx, attendeeID, next, confirmedAt); err != nil {
		if database.IsUniqueViolation(err, attendanceNumberConstraint) {
			return 0, appErrors.Wrap(err, appErrors.ErrNumberingConflict.Code, appErrors.ErrNumberingConflict.Status, appErrors.ErrNumberingConflict.Message)
		}
		return 0, err
	}
	return next, nil
}

// SerializedNumberer holds a process-wide lock across read and write and
// retries when another instance took the number first.
type SerializedNumberer struct {
	repo numberingRepository
	opts NumberingOptions
	mu   sync.Mutex
}

// NewSerializedNumberer constructs the serialized numberer.
func NewSerializedNumberer(repo numberingRepository, opts NumberingOptions) *SerializedNumberer {
	return &SerializedNumberer{repo: repo, opts: opts.normalize()}
}

// Strategy implements Numberer.
func (n *SerializedNumberer) Strategy() string { return config.NumberingSerialized }

// Assign implements Numberer.
func (n *SerializedNumberer) Assign(ctx context.Context, attendeeID string, confirmedAt time.Time) (int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	for attempt := 0; ; attempt++ {
		max, _, err := n.repo.MaxAttendanceNumber(ctx)
		if err != nil {
			return 0, err
		}
		next := max + 1
		err = n.repo.ConfirmAttendance(ctx, attendeeID, next, confirmedAt)
		if err == nil {
			return next, nil
		}
		if !database.IsUniqueViolation(err, attendanceNumberConstraint) {
			return 0, err
		}
		if attempt >= n.opts.MaxRetries {
			return 0, appErrors.Wrap(err, appErrors.ErrNumberingConflict.Code, appErrors.ErrNumberingConflict.Status, appErrors.ErrNumberingConflict.Message)
		}
		n.opts.Metrics.RecordNumberingRetry(n.Strategy())
		n.opts.Logger.Warn("attendance number taken, retrying", zap.String("attendee_id", attendeeID), zap.Int("number", next), zap.Int("attempt", attempt+1))
	}
}

// CounterNumberer takes numbers from an atomic Redis counter, so instances
// never read the same maximum. The counter is raised to the stored maximum
// on first use and after any collision. A number taken from the counter is
// not returned when the write that follows fails, which leaves a gap in the
// sequence.
type CounterNumberer struct {
	repo    numberingRepository
	counter attendanceCounter
	opts    NumberingOptions

	mu     sync.Mutex
	seeded bool
	floor  int
}

// NewCounterNumberer constructs the Redis counter numberer.
func NewCounterNumberer(repo numberingRepository, counter attendanceCounter, opts NumberingOptions) *CounterNumberer {
	return &CounterNumberer{repo: repo, counter: counter, opts: opts.normalize()}
}

// Strategy implements Numberer.
func (n *CounterNumberer) Strategy() string { return config.NumberingRedisCounter }

// Assign implements Numberer.
func (n *CounterNumberer) Assign(ctx context.Context, attendeeID string, confirmedAt time.Time) (int, error) {
	for attempt := 0; ; attempt++ {
		floor, err := n.ensureSeeded(ctx, attempt > 0)
		if err != nil {
			return 0, err
		}
		next, err := n.counter.Next(ctx, floor)
		if err != nil {
			return 0, err
		}
		err = n.repo.ConfirmAttendance(ctx, attendeeID, next, confirmedAt)
		if err == nil {
			return next, nil
		}
		if !database.IsUniqueViolation(err, attendanceNumberConstraint) {
			return 0, err
		}
		if attempt >= n.opts.MaxRetries {
			return 0, appErrors.Wrap(err, appErrors.ErrNumberingConflict.Code, appErrors.ErrNumberingConflict.Status, appErrors.ErrNumberingConflict.Message)
		}
		n.opts.Metrics.RecordNumberingRetry(n.Strategy())
		n.opts.Logger.Warn("counter handed out a used number, reseeding", zap.String("attendee_id", attendeeID), zap.Int("number", next))
	}
}

func (n *CounterNumberer) ensureSeeded(ctx context.Context, force bool) (int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.seeded && !force {
		return n.floor, nil
	}
	max, _, err := n.repo.MaxAttendanceNumber(ctx)
	if err != nil {
		return 0, err
	}
	if err := n.counter.RaiseTo(ctx, max); err != nil {
		return 0, err
	}
	n.floor = max
	n.seeded = true
	return max, nil
}
