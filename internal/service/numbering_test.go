package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/camp-checkin-api/internal/models"
	"github.com/noah-isme/camp-checkin-api/pkg/config"
	appErrors "github.com/noah-isme/camp-checkin-api/pkg/errors"
)

type memoryCounter struct {
	mu     sync.Mutex
	value  int
	exists bool
	err    error
}

func (c *memoryCounter) Next(ctx context.Context, seed int) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return 0, c.err
	}
	if !c.exists {
		c.value, c.exists = seed, true
	}
	c.value++
	return c.value, nil
}

func (c *memoryCounter) RaiseTo(ctx context.Context, floor int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	if !c.exists || c.value < floor {
		c.value, c.exists = floor, true
	}
	return nil
}

func confirmedAttendee(id string, number int) models.Attendee {
	return models.Attendee{ID: id, FirstName: id, AttendanceConfirmed: true, AttendanceNumber: intPtr(number)}
}

func TestNewNumbererSelectsStrategy(t *testing.T) {
	store := newMemoryAttendees()

	assert.IsType(t, &MaxPlusOneNumberer{}, NewNumberer(config.NumberingMaxPlusOne, store, nil, NumberingOptions{}))
	assert.IsType(t, &SerializedNumberer{}, NewNumberer(config.NumberingSerialized, store, nil, NumberingOptions{}))
	assert.IsType(t, &CounterNumberer{}, NewNumberer(config.NumberingRedisCounter, store, &memoryCounter{}, NumberingOptions{}))
	assert.IsType(t, &SerializedNumberer{}, NewNumberer(config.NumberingRedisCounter, store, nil, NumberingOptions{}))
	assert.IsType(t, &SerializedNumberer{}, NewNumberer("", store, nil, NumberingOptions{}))
}

func TestNumberersAssignMaxPlusOne(t *testing.T) {
	numberers := map[string]func(*memoryAttendees) Numberer{
		config.NumberingMaxPlusOne: func(s *memoryAttendees) Numberer { return NewMaxPlusOneNumberer(s) },
		config.NumberingSerialized: func(s *memoryAttendees) Numberer { return NewSerializedNumberer(s, NumberingOptions{}) },
		config.NumberingRedisCounter: func(s *memoryAttendees) Numberer {
			return NewCounterNumberer(s, &memoryCounter{}, NumberingOptions{})
		},
	}

	for name, build := range numberers {
		t.Run(name, func(t *testing.T) {
			store := newMemoryAttendees(
				confirmedAttendee("a", 3),
				confirmedAttendee("b", 7),
				models.Attendee{ID: "new"},
			)
			at := time.Date(2024, 7, 12, 18, 0, 0, 0, time.UTC)

			number, err := build(store).Assign(context.Background(), "new", at)
			require.NoError(t, err)
			assert.Equal(t, 8, number)

			saved := store.get("new")
			assert.True(t, saved.AttendanceConfirmed)
			require.NotNil(t, saved.AttendanceConfirmedAt)
			assert.Equal(t, at, *saved.AttendanceConfirmedAt)
		})
	}
}

func TestNumberersStartAtOne(t *testing.T) {
	store := newMemoryAttendees(models.Attendee{ID: "first"})

	number, err := NewSerializedNumberer(store, NumberingOptions{}).Assign(context.Background(), "first", time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, number)
}

func TestMaxPlusOneRaceWithoutUniqueIndexHandsOutDuplicates(t *testing.T) {
	store := newMemoryAttendees(models.Attendee{ID: "x"}, models.Attendee{ID: "y"})
	store.noUnique = true

	var reads sync.WaitGroup
	reads.Add(2)
	store.afterRead = func() {
		reads.Done()
		reads.Wait()
	}

	numberer := NewMaxPlusOneNumberer(store)
	results := make([]int, 2)
	var wg sync.WaitGroup
	for i, id := range []string{"x", "y"} {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			n, err := numberer.Assign(context.Background(), id, time.Now())
			assert.NoError(t, err)
			results[i] = n
		}(i, id)
	}
	wg.Wait()

	assert.Equal(t, []int{1, 1}, results)
}

func TestMaxPlusOneRaceAgainstUniqueIndexIsNumberingConflict(t *testing.T) {
	store := newMemoryAttendees(models.Attendee{ID: "x"}, models.Attendee{ID: "y"})

	var reads sync.WaitGroup
	reads.Add(2)
	store.afterRead = func() {
		reads.Done()
		reads.Wait()
	}

	numberer := NewMaxPlusOneNumberer(store)
	numbers := make([]int, 2)
	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i, id := range []string{"x", "y"} {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			numbers[i], errs[i] = numberer.Assign(context.Background(), id, time.Now())
		}(i, id)
	}
	wg.Wait()

	var won, lost int
	for i := range errs {
		if errs[i] == nil {
			won++
			assert.Equal(t, 1, numbers[i])
			continue
		}
		lost++
		assert.Equal(t, appErrors.ErrNumberingConflict.Code, appCode(t, errs[i]))
	}
	assert.Equal(t, 1, won)
	assert.Equal(t, 1, lost)
}

func TestSerializedNumbererConcurrentConfirmationsAreUnique(t *testing.T) {
	const stations = 12
	rows := make([]models.Attendee, 0, stations)
	for i := 0; i < stations; i++ {
		rows = append(rows, models.Attendee{ID: fmt.Sprintf("att-%02d", i)})
	}
	store := newMemoryAttendees(rows...)
	numberer := NewSerializedNumberer(store, NumberingOptions{MaxRetries: 3})

	var mu sync.Mutex
	seen := make(map[int]string)
	var wg sync.WaitGroup
	for _, row := range rows {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			n, err := numberer.Assign(context.Background(), id, time.Now())
			assert.NoError(t, err)
			mu.Lock()
			defer mu.Unlock()
			_, dup := seen[n]
			assert.False(t, dup, "number %d handed out twice", n)
			seen[n] = id
		}(row.ID)
	}
	wg.Wait()

	assert.Len(t, seen, stations)
	for n := 1; n <= stations; n++ {
		assert.Contains(t, seen, n)
	}
}

func TestSerializedNumbererRetriesAfterCollision(t *testing.T) {
	store := newMemoryAttendees(confirmedAttendee("a", 4), models.Attendee{ID: "new"})
	var once sync.Once
	store.beforeConfirm = func(number int) {
		once.Do(func() { store.occupy(number) })
	}
	metrics := NewMetricsService()

	number, err := NewSerializedNumberer(store, NumberingOptions{MaxRetries: 3, Metrics: metrics}).Assign(context.Background(), "new", time.Now())
	require.NoError(t, err)
	assert.Equal(t, 6, number)
	assert.Equal(t, 2, store.confirmCalls)
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.numberingRetry.WithLabelValues(config.NumberingSerialized)))
}

func TestSerializedNumbererGivesUpAfterMaxRetries(t *testing.T) {
	store := newMemoryAttendees(models.Attendee{ID: "new"})
	store.beforeConfirm = store.occupy

	_, err := NewSerializedNumberer(store, NumberingOptions{MaxRetries: 2}).Assign(context.Background(), "new", time.Now())
	require.Error(t, err)
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrNumberingConflict.Code, appErr.Code)
	assert.Equal(t, 3, store.confirmCalls)
	assert.False(t, store.get("new").AttendanceConfirmed)
}

func TestSerializedNumbererPassesThroughOtherErrors(t *testing.T) {
	store := newMemoryAttendees(models.Attendee{ID: "new"})
	store.confirmErr = errors.New("connection reset")

	_, err := NewSerializedNumberer(store, NumberingOptions{MaxRetries: 3}).Assign(context.Background(), "new", time.Now())
	assert.EqualError(t, err, "connection reset")
	assert.Equal(t, 1, store.confirmCalls)
}

func TestCounterNumbererSeedsFromStoredMaximum(t *testing.T) {
	store := newMemoryAttendees(confirmedAttendee("a", 7), models.Attendee{ID: "b"}, models.Attendee{ID: "c"})
	counter := &memoryCounter{}
	numberer := NewCounterNumberer(store, counter, NumberingOptions{})

	first, err := numberer.Assign(context.Background(), "b", time.Now())
	require.NoError(t, err)
	second, err := numberer.Assign(context.Background(), "c", time.Now())
	require.NoError(t, err)

	assert.Equal(t, 8, first)
	assert.Equal(t, 9, second)
}

func TestCounterNumbererReseedsAfterCollision(t *testing.T) {
	store := newMemoryAttendees(confirmedAttendee("a", 2), models.Attendee{ID: "b"})
	var once sync.Once
	store.beforeConfirm = func(number int) {
		// Another writer bypassing the counter took 3 and 8.
		once.Do(func() {
			store.occupy(number)
			store.occupy(number + 5)
		})
	}
	numberer := NewCounterNumberer(store, &memoryCounter{}, NumberingOptions{MaxRetries: 2})

	n, err := numberer.Assign(context.Background(), "b", time.Now())
	require.NoError(t, err)
	assert.Equal(t, 9, n)
	assert.Equal(t, 2, store.confirmCalls)
}

func TestCounterNumbererFailedWriteLeavesGap(t *testing.T) {
	store := newMemoryAttendees(confirmedAttendee("a", 4), models.Attendee{ID: "b"})
	store.confirmErr = errors.New("connection reset")
	counter := &memoryCounter{}
	numberer := NewCounterNumberer(store, counter, NumberingOptions{})

	_, err := numberer.Assign(context.Background(), "b", time.Now())
	require.Error(t, err)

	store.confirmErr = nil
	n, err := numberer.Assign(context.Background(), "b", time.Now())
	require.NoError(t, err)
	assert.Equal(t, 6, n)
}

func TestCounterNumbererPropagatesCounterFailure(t *testing.T) {
	store := newMemoryAttendees(models.Attendee{ID: "b"})
	counter := &memoryCounter{err: errors.New("redis down")}

	_, err := NewCounterNumberer(store, counter, NumberingOptions{}).Assign(context.Background(), "b", time.Now())
	assert.EqualError(t, err, "redis down")
	assert.Zero(t, store.confirmCalls)
}
