package dto

import (
	"time"

	"github.com/noah-isme/camp-checkin-api/internal/models"
)

// ScanRequest is the decoded QR text submitted by a scanner station.
type ScanRequest struct {
	Payload string `json:"payload" validate:"required"`
	Confirm bool   `json:"confirm"`
}

// AttendeePreview is what the door sees after a scan, before confirming.
type AttendeePreview struct {
	ID                  string               `json:"id"`
	DisplayName         string               `json:"display_name"`
	Church              string               `json:"church"`
	Sector              string               `json:"sector"`
	PaymentStatus       models.PaymentStatus `json:"payment_status"`
	Balance             float64              `json:"balance"`
	AttendanceConfirmed bool                 `json:"attendance_confirmed"`
	AttendanceNumber    *int                 `json:"attendance_number,omitempty"`
}

// NewAttendeePreview builds a preview from a stored record.
func NewAttendeePreview(a *models.Attendee) AttendeePreview {
	return AttendeePreview{
		ID:                  a.ID,
		DisplayName:         a.DisplayName(),
		Church:              a.Church,
		Sector:              a.Sector,
		PaymentStatus:       a.PaymentStatus,
		Balance:             a.Balance(),
		AttendanceConfirmed: a.AttendanceConfirmed,
		AttendanceNumber:    a.AttendanceNumber,
	}
}

// ScanResult is returned by a scan without confirmation.
type ScanResult struct {
	ExtractedID string          `json:"extracted_id"`
	Attendee    AttendeePreview `json:"attendee"`
}

// ConfirmationResult reports the outcome of confirming attendance.
type ConfirmationResult struct {
	AttendeeID       string    `json:"attendee_id"`
	DisplayName      string    `json:"display_name"`
	AttendanceNumber int       `json:"attendance_number"`
	ConfirmedAt      time.Time `json:"confirmed_at"`
	AlreadyConfirmed bool      `json:"already_confirmed"`
	PreviousNumber   *int      `json:"previous_number,omitempty"`
	Success          bool      `json:"success"`
}
