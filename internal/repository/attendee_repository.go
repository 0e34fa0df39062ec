package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/camp-checkin-api/internal/models"
)

const attendeeColumns = `id, first_name, last_name, email, phone, church, sector, notes, shirt_size, expected_amount, amount_paid, payment_status, attendance_number, attendance_confirmed, attendance_confirmed_at, is_test, source, search_key, created_at, updated_at`

// likeEscaper neutralises LIKE wildcards in user input.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// AttendeeRepository provides database access for attendee records.
type AttendeeRepository struct {
	db *sqlx.DB
}

// NewAttendeeRepository creates a new attendee repository.
func NewAttendeeRepository(db *sqlx.DB) *AttendeeRepository {
	return &AttendeeRepository{db: db}
}

// FindByID returns an attendee by identifier.
func (r *AttendeeRepository) FindByID(ctx context.Context, id string) (*models.Attendee, error) {
	query := `SELECT ` + attendeeColumns + ` FROM attendees WHERE id = $1 LIMIT 1`
	var attendee models.Attendee
	if err := r.db.GetContext(ctx, &attendee, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find attendee by id: %w", err)
	}
	return &attendee, nil
}

// FindByAttendanceNumber returns the attendee holding number.
func (r *AttendeeRepository) FindByAttendanceNumber(ctx context.Context, number int) (*models.Attendee, error) {
	query := `SELECT ` + attendeeColumns + ` FROM attendees WHERE attendance_number = $1 LIMIT 1`
	var attendee models.Attendee
	if err := r.db.GetContext(ctx, &attendee, query, number); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find attendee by number: %w", err)
	}
	return &attendee, nil
}

// SearchByName matches term as a substring of first or last name, ignoring
// case. folded is the accent-free form matched against search_key.
func (r *AttendeeRepository) SearchByName(ctx context.Context, term, folded string, limit int) ([]models.Attendee, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `SELECT ` + attendeeColumns + ` FROM attendees
WHERE NOT is_test AND (LOWER(first_name) LIKE $1 OR LOWER(last_name) LIKE $1 OR search_key LIKE $2)
ORDER BY last_name ASC, first_name ASC LIMIT $3`
	var attendees []models.Attendee
	if err := r.db.SelectContext(ctx, &attendees, query, likePattern(term), likePattern(folded), limit); err != nil {
		return nil, fmt.Errorf("search attendees by name: %w", err)
	}
	return attendees, nil
}

// MaxAttendanceNumber returns the highest assigned attendance number. The
// boolean is false when no attendee has been numbered yet.
func (r *AttendeeRepository) MaxAttendanceNumber(ctx context.Context) (int, bool, error) {
	const query = `SELECT attendance_number FROM attendees WHERE attendance_number IS NOT NULL ORDER BY attendance_number DESC LIMIT 1`
	var max int
	if err := r.db.GetContext(ctx, &max, query); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("max attendance number: %w", err)
	}
	return max, true, nil
}

// ConfirmAttendance marks the attendee present with the given number.
func (r *AttendeeRepository) ConfirmAttendance(ctx context.Context, id string, number int, confirmedAt time.Time) error {
	const query = `UPDATE attendees SET attendance_number = $2, attendance_confirmed = TRUE, attendance_confirmed_at = $3, updated_at = $3 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, number, confirmedAt)
	if err != nil {
		return fmt.Errorf("confirm attendance: %w", err)
	}
	return requireAffected(res)
}

// Create inserts a new attendee.
func (r *AttendeeRepository) Create(ctx context.Context, attendee *models.Attendee) error {
	if attendee.ID == "" {
		attendee.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if attendee.CreatedAt.IsZero() {
		attendee.CreatedAt = now
	}
	attendee.UpdatedAt = now

	const query = `INSERT INTO attendees (id, first_name, last_name, email, phone, church, sector, notes, shirt_size, expected_amount, amount_paid, payment_status, attendance_number, attendance_confirmed, attendance_confirmed_at, is_test, source, search_key, created_at, updated_at)
VALUES (:id, :first_name, :last_name, :email, :phone, :church, :sector, :notes, :shirt_size, :expected_amount, :amount_paid, :payment_status, :attendance_number, :attendance_confirmed, :attendance_confirmed_at, :is_test, :source, :search_key, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, attendee); err != nil {
		return fmt.Errorf("create attendee: %w", err)
	}
	return nil
}

// Update overwrites every mutable field of the attendee.
func (r *AttendeeRepository) Update(ctx context.Context, attendee *models.Attendee) error {
	attendee.UpdatedAt = time.Now().UTC()
	const query = `UPDATE attendees SET first_name = :first_name, last_name = :last_name, email = :email, phone = :phone, church = :church, sector = :sector, notes = :notes, shirt_size = :shirt_size, expected_amount = :expected_amount, amount_paid = :amount_paid, payment_status = :payment_status, attendance_number = :attendance_number, attendance_confirmed = :attendance_confirmed, attendance_confirmed_at = :attendance_confirmed_at, is_test = :is_test, search_key = :search_key, updated_at = :updated_at WHERE id = :id`
	res, err := r.db.NamedExecContext(ctx, query, attendee)
	if err != nil {
		return fmt.Errorf("update attendee: %w", err)
	}
	return requireAffected(res)
}

// UpdatePayment stores the new paid total and status.
func (r *AttendeeRepository) UpdatePayment(ctx context.Context, id string, amountPaid float64, status models.PaymentStatus, updatedAt time.Time) error {
	const query = `UPDATE attendees SET amount_paid = $2, payment_status = $3, updated_at = $4 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, amountPaid, status, updatedAt)
	if err != nil {
		return fmt.Errorf("update attendee payment: %w", err)
	}
	return requireAffected(res)
}

// Delete removes the attendee permanently.
func (r *AttendeeRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM attendees WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete attendee: %w", err)
	}
	return requireAffected(res)
}

// ExistsByEmail reports whether a non-test attendee other than excludeID uses email.
func (r *AttendeeRepository) ExistsByEmail(ctx context.Context, email, excludeID string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM attendees WHERE LOWER(email) = LOWER($1) AND NOT is_test AND id <> $2)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, email, excludeID); err != nil {
		return false, fmt.Errorf("check attendee email: %w", err)
	}
	return exists, nil
}

// List returns a page of attendees with the total matching count.
func (r *AttendeeRepository) List(ctx context.Context, filter models.AttendeeFilter) ([]models.Attendee, int, error) {
	where, args := attendeeWhere(filter)

	sortBy := filter.SortBy
	allowedSorts := map[string]bool{
		"created_at":        true,
		"last_name":         true,
		"first_name":        true,
		"church":            true,
		"attendance_number": true,
		"amount_paid":       true,
	}
	if !allowedSorts[sortBy] {
		sortBy = "created_at"
	}
	sortOrder := strings.ToUpper(filter.SortOrder)
	if sortOrder != "ASC" && sortOrder != "DESC" {
		sortOrder = "DESC"
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 200 {
		pageSize = 50
	}
	offset := (page - 1) * pageSize

	listQuery := fmt.Sprintf("SELECT %s FROM attendees %s ORDER BY %s %s NULLS LAST, id ASC LIMIT %d OFFSET %d", attendeeColumns, where, sortBy, sortOrder, pageSize, offset)
	var attendees []models.Attendee
	if err := r.db.SelectContext(ctx, &attendees, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list attendees: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM attendees "+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count attendees: %w", err)
	}
	return attendees, total, nil
}

// ListForExport returns every attendee matching filter, ordered for reports.
// When confirmedOnly is set the rows are ordered by attendance number.
func (r *AttendeeRepository) ListForExport(ctx context.Context, filter models.AttendeeFilter, confirmedOnly bool) ([]models.Attendee, error) {
	if confirmedOnly {
		confirmed := true
		filter.Confirmed = &confirmed
	}
	where, args := attendeeWhere(filter)
	order := "last_name ASC, first_name ASC"
	if confirmedOnly {
		order = "attendance_number ASC"
	}
	query := fmt.Sprintf("SELECT %s FROM attendees %s ORDER BY %s", attendeeColumns, where, order)
	var attendees []models.Attendee
	if err := r.db.SelectContext(ctx, &attendees, query, args...); err != nil {
		return nil, fmt.Errorf("list attendees for export: %w", err)
	}
	return attendees, nil
}

// Stats aggregates non-test attendees.
func (r *AttendeeRepository) Stats(ctx context.Context) (*models.AttendeeStats, error) {
	const query = `SELECT
    COUNT(*) AS registered,
    COUNT(*) FILTER (WHERE attendance_confirmed) AS confirmed,
    COUNT(*) FILTER (WHERE payment_status = 'Paid') AS paid,
    COUNT(*) FILTER (WHERE payment_status <> 'Paid') AS pending,
    COUNT(*) FILTER (WHERE source = 'walk_in') AS walk_ins,
    COALESCE(SUM(expected_amount), 0) AS expected_total,
    COALESCE(SUM(amount_paid), 0) AS paid_total,
    MAX(attendance_number) AS last_attendance
FROM attendees WHERE NOT is_test`
	var stats models.AttendeeStats
	if err := r.db.GetContext(ctx, &stats, query); err != nil {
		return nil, fmt.Errorf("attendee stats: %w", err)
	}
	return &stats, nil
}

// CountBy breaks non-test attendees down by church or sector.
func (r *AttendeeRepository) CountBy(ctx context.Context, column string) ([]models.GroupCount, error) {
	if column != "church" && column != "sector" {
		return nil, fmt.Errorf("unsupported group column %q", column)
	}
	query := fmt.Sprintf(`SELECT COALESCE(NULLIF(%[1]s, ''), '-') AS grp, COUNT(*) AS total, COUNT(*) FILTER (WHERE attendance_confirmed) AS confirmed
FROM attendees WHERE NOT is_test GROUP BY grp ORDER BY total DESC, grp ASC`, column)
	var rows []models.GroupCount
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("count attendees by %s: %w", column, err)
	}
	return rows, nil
}

func attendeeWhere(filter models.AttendeeFilter) (string, []interface{}) {
	var conditions []string
	var args []interface{}

	if !filter.IncludeTest {
		conditions = append(conditions, "NOT is_test")
	}
	if filter.Search != "" {
		args = append(args, likePattern(filter.Search))
		n := len(args)
		conditions = append(conditions, fmt.Sprintf("(LOWER(first_name) LIKE $%d OR LOWER(last_name) LIKE $%d OR LOWER(email) LIKE $%d OR search_key LIKE $%d)", n, n, n, n))
	}
	if filter.Church != "" {
		args = append(args, filter.Church)
		conditions = append(conditions, fmt.Sprintf("church = $%d", len(args)))
	}
	if filter.Sector != "" {
		args = append(args, filter.Sector)
		conditions = append(conditions, fmt.Sprintf("sector = $%d", len(args)))
	}
	if filter.PaymentStatus != nil {
		args = append(args, *filter.PaymentStatus)
		conditions = append(conditions, fmt.Sprintf("payment_status = $%d", len(args)))
	}
	if filter.Confirmed != nil {
		args = append(args, *filter.Confirmed)
		conditions = append(conditions, fmt.Sprintf("attendance_confirmed = $%d", len(args)))
	}

	if len(conditions) == 0 {
		return "", nil
	}
	return "WHERE " + strings.Join(conditions, " AND "), args
}

func likePattern(term string) string {
	return "%" + likeEscaper.Replace(strings.ToLower(strings.TrimSpace(term))) + "%"
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
