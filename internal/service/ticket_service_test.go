package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/camp-checkin-api/internal/models"
	appErrors "github.com/noah-isme/camp-checkin-api/pkg/errors"
	"github.com/noah-isme/camp-checkin-api/pkg/ticket"
)

func TestTicketPayloadRoundTrips(t *testing.T) {
	store := newMemoryAttendees(models.Attendee{
		ID: "abc-123", FirstName: "Ana", LastName: "Soto", Church: "Central",
		AmountPaid: 50, PaymentStatus: models.PaymentPending,
		CreatedAt: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
	})
	svc := NewTicketService(store, 128)

	payload, err := svc.Payload(context.Background(), cashierSession, "abc-123")
	require.NoError(t, err)
	assert.Contains(t, payload, `"nombre":"Ana Soto"`)
	assert.Contains(t, payload, `"iglesia":"Central"`)
	id, ok := ticket.Extract(payload)
	require.True(t, ok)
	assert.Equal(t, "abc-123", id)

	png, err := svc.PNG(context.Background(), cashierSession, "abc-123")
	require.NoError(t, err)
	assert.Equal(t, "\x89PNG", string(png[:4]))
}

func TestTicketMissingAttendee(t *testing.T) {
	svc := NewTicketService(newMemoryAttendees(), 0)

	_, err := svc.PNG(context.Background(), cashierSession, "ghost")
	assert.Equal(t, appErrors.ErrAttendeeNotFound.Code, appCode(t, err))
	_, err = svc.Payload(context.Background(), models.Session{}, "ghost")
	assert.Equal(t, appErrors.ErrForbidden.Code, appCode(t, err))
}
