package models

import (
	"strings"
	"time"
)

// PaymentStatus is the settlement state of an attendee's fee.
type PaymentStatus string

const (
	PaymentPending PaymentStatus = "Pending"
	PaymentPaid    PaymentStatus = "Paid"
	// PaymentReviewed is a legacy state only set through admin edits.
	PaymentReviewed PaymentStatus = "Reviewed"
)

// Valid reports whether s is a known payment status.
func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentPending, PaymentPaid, PaymentReviewed:
		return true
	}
	return false
}

// RegistrationSource records how an attendee entered the system.
type RegistrationSource string

const (
	SourceOnline RegistrationSource = "online"
	SourceWalkIn RegistrationSource = "walk_in"
)

// Attendee is one person registered for the event.
type Attendee struct {
	ID                    string             `db:"id" json:"id"`
	FirstName             string             `db:"first_name" json:"first_name"`
	LastName              string             `db:"last_name" json:"last_name"`
	Email                 string             `db:"email" json:"email"`
	Phone                 string             `db:"phone" json:"phone"`
	Church                string             `db:"church" json:"church"`
	Sector                string             `db:"sector" json:"sector"`
	Notes                 string             `db:"notes" json:"notes"`
	ShirtSize             *string            `db:"shirt_size" json:"shirt_size,omitempty"`
	ExpectedAmount        float64            `db:"expected_amount" json:"expected_amount"`
	AmountPaid            float64            `db:"amount_paid" json:"amount_paid"`
	PaymentStatus         PaymentStatus      `db:"payment_status" json:"payment_status"`
	AttendanceNumber      *int               `db:"attendance_number" json:"attendance_number,omitempty"`
	AttendanceConfirmed   bool               `db:"attendance_confirmed" json:"attendance_confirmed"`
	AttendanceConfirmedAt *time.Time         `db:"attendance_confirmed_at" json:"attendance_confirmed_at,omitempty"`
	IsTest                bool               `db:"is_test" json:"is_test"`
	Source                RegistrationSource `db:"source" json:"source"`
	SearchKey             string             `db:"search_key" json:"-"`
	CreatedAt             time.Time          `db:"created_at" json:"created_at"`
	UpdatedAt             time.Time          `db:"updated_at" json:"updated_at"`
}

// DisplayName joins first and last name.
func (a Attendee) DisplayName() string {
	return strings.TrimSpace(a.FirstName + " " + a.LastName)
}

// Balance is the amount still owed, never negative.
func (a Attendee) Balance() float64 {
	if a.AmountPaid >= a.ExpectedAmount {
		return 0
	}
	return a.ExpectedAmount - a.AmountPaid
}

// AttendeeFilter captures listing criteria for attendees.
type AttendeeFilter struct {
	Search        string
	Church        string
	Sector        string
	PaymentStatus *PaymentStatus
	Confirmed     *bool
	IncludeTest   bool
	Page          int
	PageSize      int
	SortBy        string
	SortOrder     string
}

// AttendeeStats aggregates non-test attendees for the dashboard.
type AttendeeStats struct {
	Registered     int     `db:"registered" json:"registered"`
	Confirmed      int     `db:"confirmed" json:"confirmed"`
	Paid           int     `db:"paid" json:"paid"`
	Pending        int     `db:"pending" json:"pending"`
	WalkIns        int     `db:"walk_ins" json:"walk_ins"`
	ExpectedTotal  float64 `db:"expected_total" json:"expected_total"`
	PaidTotal      float64 `db:"paid_total" json:"paid_total"`
	LastAttendance *int    `db:"last_attendance" json:"last_attendance,omitempty"`
}

// GroupCount is a per-group breakdown row.
type GroupCount struct {
	Group     string `db:"grp" json:"group"`
	Total     int    `db:"total" json:"total"`
	Confirmed int    `db:"confirmed" json:"confirmed"`
}
