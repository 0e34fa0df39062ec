package dto

import (
	"time"

	"github.com/noah-isme/camp-checkin-api/internal/models"
)

// DashboardSummary is the admin overview of registration and check-in.
type DashboardSummary struct {
	Event       string               `json:"event"`
	Totals      models.AttendeeStats `json:"totals"`
	CheckInRate float64              `json:"check_in_rate"`
	ByChurch    []models.GroupCount  `json:"by_church"`
	BySector    []models.GroupCount  `json:"by_sector"`
	GeneratedAt time.Time            `json:"generated_at"`
}
