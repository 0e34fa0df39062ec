package dto

import "github.com/noah-isme/camp-checkin-api/internal/models"

// LookupMode is the search strategy chosen for a staff query.
type LookupMode string

const (
	LookupByNumber LookupMode = "number"
	LookupByName   LookupMode = "name"
)

// LookupResult holds either one match or a list of candidates to choose from.
type LookupResult struct {
	Mode       LookupMode        `json:"mode"`
	Query      string            `json:"query"`
	Match      *models.Attendee  `json:"match,omitempty"`
	Candidates []models.Attendee `json:"candidates,omitempty"`
}

// Ambiguous reports whether the caller must pick among candidates.
func (r LookupResult) Ambiguous() bool {
	return r.Match == nil && len(r.Candidates) > 1
}

// RegistrationResult is returned to a newly registered attendee.
type RegistrationResult struct {
	Attendee  *models.Attendee `json:"attendee"`
	QRPayload string           `json:"qr_payload"`
}
