package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/noah-isme/camp-checkin-api/internal/models"
	appErrors "github.com/noah-isme/camp-checkin-api/pkg/errors"
	"github.com/noah-isme/camp-checkin-api/pkg/ticket"
)

type ticketRepository interface {
	FindByID(ctx context.Context, id string) (*models.Attendee, error)
}

// TicketService renders the QR ticket of an attendee.
type TicketService struct {
	repo   ticketRepository
	qrSize int
}

// NewTicketService constructs the ticket service. qrSize is the PNG edge in pixels.
func NewTicketService(repo ticketRepository, qrSize int) *TicketService {
	if qrSize <= 0 {
		qrSize = 256
	}
	return &TicketService{repo: repo, qrSize: qrSize}
}

// Payload returns the JSON string encoded into the attendee's QR code.
func (s *TicketService) Payload(ctx context.Context, session models.Session, id string) (string, error) {
	if !session.Can(models.CapView) {
		return "", appErrors.Clone(appErrors.ErrForbidden, "tickets not available for this role")
	}
	attendee, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", appErrors.Clone(appErrors.ErrAttendeeNotFound, "")
		}
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendee")
	}
	payload, err := ticket.Encode(ticketPayload(attendee))
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to build ticket")
	}
	return payload, nil
}

// PNG renders the attendee's QR code.
func (s *TicketService) PNG(ctx context.Context, session models.Session, id string) ([]byte, error) {
	payload, err := s.Payload(ctx, session, id)
	if err != nil {
		return nil, err
	}
	png, err := ticket.RenderPNG(payload, s.qrSize)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render ticket")
	}
	return png, nil
}

func ticketPayload(a *models.Attendee) ticket.Payload {
	return ticket.Payload{
		ID:       a.ID,
		Name:     a.DisplayName(),
		Email:    a.Email,
		Church:   a.Church,
		Sector:   a.Sector,
		Amount:   a.AmountPaid,
		Status:   string(a.PaymentStatus),
		IssuedAt: a.CreatedAt,
	}
}
