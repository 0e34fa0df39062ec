package service

import (
	"context"
	"database/sql"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/noah-isme/camp-checkin-api/internal/models"
)

// memoryAttendees is an in-memory attendee store enforcing the unique
// attendance number constraint and the partial email index the way
// PostgreSQL does.
type memoryAttendees struct {
	mu        sync.Mutex
	rows      map[string]*models.Attendee
	noUnique  bool
	afterRead func()
	// beforeConfirm runs before a confirmation is written, outside the lock.
	beforeConfirm func(number int)
	// beforeWrite runs before Create or Update takes the lock.
	beforeWrite  func()
	findErr      error
	maxErr       error
	confirmErr   error
	confirmCalls int
	findCalls    int
}

func newMemoryAttendees(rows ...models.Attendee) *memoryAttendees {
	m := &memoryAttendees{rows: make(map[string]*models.Attendee)}
	for i := range rows {
		row := rows[i]
		m.rows[row.ID] = &row
	}
	return m
}

func (m *memoryAttendees) get(id string) models.Attendee {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.rows[id]
}

func (m *memoryAttendees) FindByID(ctx context.Context, id string) (*models.Attendee, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.findCalls++
	if m.findErr != nil {
		return nil, m.findErr
	}
	row, ok := m.rows[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copy := *row
	return &copy, nil
}

func (m *memoryAttendees) FindByAttendanceNumber(ctx context.Context, number int) (*models.Attendee, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, row := range m.rows {
		if row.AttendanceNumber != nil && *row.AttendanceNumber == number {
			copy := *row
			return &copy, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *memoryAttendees) SearchByName(ctx context.Context, term, folded string, limit int) ([]models.Attendee, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	term = strings.ToLower(term)
	var out []models.Attendee
	for _, row := range m.sorted() {
		if row.IsTest {
			continue
		}
		if strings.Contains(strings.ToLower(row.FirstName), term) ||
			strings.Contains(strings.ToLower(row.LastName), term) ||
			strings.Contains(row.SearchKey, folded) {
			out = append(out, row)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memoryAttendees) MaxAttendanceNumber(ctx context.Context) (int, bool, error) {
	if m.maxErr != nil {
		return 0, false, m.maxErr
	}
	m.mu.Lock()
	max, found := 0, false
	for _, row := range m.rows {
		if row.AttendanceNumber == nil {
			continue
		}
		if !found || *row.AttendanceNumber > max {
			max, found = *row.AttendanceNumber, true
		}
	}
	m.mu.Unlock()
	if m.afterRead != nil {
		m.afterRead()
	}
	return max, found, nil
}

func (m *memoryAttendees) ConfirmAttendance(ctx context.Context, id string, number int, confirmedAt time.Time) error {
	if m.beforeConfirm != nil {
		m.beforeConfirm(number)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.confirmCalls++
	if m.confirmErr != nil {
		return m.confirmErr
	}
	row, ok := m.rows[id]
	if !ok {
		return sql.ErrNoRows
	}
	if !m.noUnique {
		for otherID, other := range m.rows {
			if otherID != id && other.AttendanceNumber != nil && *other.AttendanceNumber == number {
				return &pq.Error{Code: "23505", Constraint: attendanceNumberConstraint}
			}
		}
	}
	n := number
	at := confirmedAt
	row.AttendanceNumber = &n
	row.AttendanceConfirmed = true
	row.AttendanceConfirmedAt = &at
	return nil
}

// occupy gives a placeholder attendee the number, as another instance would.
func (m *memoryAttendees) occupy(number int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := number
	id := uuid.NewString()
	m.rows[id] = &models.Attendee{ID: id, AttendanceNumber: &n, AttendanceConfirmed: true}
}

// violation mirrors attendees_active_email_key (non-empty emails of non-test rows)
// and attendees_attendance_number_key. Callers hold the lock.
func (m *memoryAttendees) violation(candidate *models.Attendee) error {
	for id, other := range m.rows {
		if id == candidate.ID {
			continue
		}
		if !candidate.IsTest && !other.IsTest && candidate.Email != "" && strings.EqualFold(candidate.Email, other.Email) {
			return &pq.Error{Code: "23505", Constraint: attendeeEmailConstraint}
		}
		if !m.noUnique && candidate.AttendanceNumber != nil && other.AttendanceNumber != nil && *candidate.AttendanceNumber == *other.AttendanceNumber {
			return &pq.Error{Code: "23505", Constraint: attendanceNumberConstraint}
		}
	}
	return nil
}

func (m *memoryAttendees) Create(ctx context.Context, attendee *models.Attendee) error {
	if m.beforeWrite != nil {
		m.beforeWrite()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if attendee.ID == "" {
		attendee.ID = uuid.NewString()
	}
	if err := m.violation(attendee); err != nil {
		return err
	}
	copy := *attendee
	m.rows[attendee.ID] = &copy
	return nil
}

func (m *memoryAttendees) Update(ctx context.Context, attendee *models.Attendee) error {
	if m.beforeWrite != nil {
		m.beforeWrite()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[attendee.ID]; !ok {
		return sql.ErrNoRows
	}
	if err := m.violation(attendee); err != nil {
		return err
	}
	copy := *attendee
	m.rows[attendee.ID] = &copy
	return nil
}

func (m *memoryAttendees) UpdatePayment(ctx context.Context, id string, amountPaid float64, status models.PaymentStatus, updatedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok {
		return sql.ErrNoRows
	}
	row.AmountPaid = amountPaid
	row.PaymentStatus = status
	row.UpdatedAt = updatedAt
	return nil
}

func (m *memoryAttendees) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[id]; !ok {
		return sql.ErrNoRows
	}
	delete(m.rows, id)
	return nil
}

func (m *memoryAttendees) ExistsByEmail(ctx context.Context, email, excludeID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, row := range m.rows {
		if id != excludeID && !row.IsTest && row.Email != "" && strings.EqualFold(row.Email, email) {
			return true, nil
		}
	}
	return false, nil
}

func (m *memoryAttendees) List(ctx context.Context, filter models.AttendeeFilter) ([]models.Attendee, int, error) {
	rows, err := m.ListForExport(ctx, filter, false)
	return rows, len(rows), err
}

func (m *memoryAttendees) ListForExport(ctx context.Context, filter models.AttendeeFilter, confirmedOnly bool) ([]models.Attendee, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Attendee
	for _, row := range m.sorted() {
		if row.IsTest && !filter.IncludeTest {
			continue
		}
		if confirmedOnly && !row.AttendanceConfirmed {
			continue
		}
		if filter.Church != "" && row.Church != filter.Church {
			continue
		}
		if filter.PaymentStatus != nil && row.PaymentStatus != *filter.PaymentStatus {
			continue
		}
		out = append(out, row)
	}
	return out, nil
}

func (m *memoryAttendees) sorted() []models.Attendee {
	out := make([]models.Attendee, 0, len(m.rows))
	for _, row := range m.rows {
		out = append(out, *row)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].LastName != out[j].LastName {
			return out[i].LastName < out[j].LastName
		}
		return out[i].FirstName < out[j].FirstName
	})
	return out
}

type memoryAudit struct {
	mu   sync.Mutex
	logs []*models.AuditLog
	err  error
}

func (m *memoryAudit) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logs = append(m.logs, log)
	return m.err
}

func (m *memoryAudit) actions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.logs))
	for _, l := range m.logs {
		out = append(out, l.Action)
	}
	return out
}

type recordingCache struct {
	mu       sync.Mutex
	patterns []string
}

func (c *recordingCache) Invalidate(ctx context.Context, pattern string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.patterns = append(c.patterns, pattern)
	return nil
}

func intPtr(v int) *int { return &v }
