package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/camp-checkin-api/internal/models"
	"github.com/noah-isme/camp-checkin-api/internal/service"
	appErrors "github.com/noah-isme/camp-checkin-api/pkg/errors"
)

type fakeTicketSvc struct{}

func (fakeTicketSvc) Payload(ctx context.Context, session models.Session, id string) (string, error) {
	if id == "missing" {
		return "", appErrors.ErrAttendeeNotFound
	}
	return `{"id":"` + id + `"}`, nil
}

func (fakeTicketSvc) PNG(ctx context.Context, session models.Session, id string) ([]byte, error) {
	return []byte("\x89PNG\r\n"), nil
}

type fakePaymentSvc struct {
	last service.PaymentRequest
	err  error
}

func (f *fakePaymentSvc) RecordPayment(ctx context.Context, session models.Session, id string, req service.PaymentRequest) (*models.Attendee, error) {
	f.last = req
	if f.err != nil {
		return nil, f.err
	}
	return &models.Attendee{ID: id, AmountPaid: req.Amount, PaymentStatus: models.PaymentPending}, nil
}

func TestTicketHandlerPayload(t *testing.T) {
	h := NewTicketHandler(fakeTicketSvc{})

	c, w := newGinContext(http.MethodGet, "/attendees/a1/ticket", nil)
	c.Params = gin.Params{{Key: "id", Value: "a1"}}
	withClaims(c, committeeClaims)
	h.Payload(c)

	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]string
	decodeData(t, w, &body)
	assert.Equal(t, `{"id":"a1"}`, body["payload"])

	c, w = newGinContext(http.MethodGet, "/attendees/missing/ticket", nil)
	c.Params = gin.Params{{Key: "id", Value: "missing"}}
	h.Payload(c)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestTicketHandlerPNG(t *testing.T) {
	h := NewTicketHandler(fakeTicketSvc{})

	c, w := newGinContext(http.MethodGet, "/attendees/a1/ticket.png", nil)
	c.Params = gin.Params{{Key: "id", Value: "a1"}}
	h.PNG(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.Equal(t, "\x89PNG\r\n", w.Body.String())
}

func TestPaymentHandlerRecord(t *testing.T) {
	svc := &fakePaymentSvc{}
	h := NewPaymentHandler(svc)

	c, w := newGinContext(http.MethodPost, "/attendees/a1/payments", mustJSON(t, service.PaymentRequest{Amount: 25.5}))
	c.Params = gin.Params{{Key: "id", Value: "a1"}}
	withClaims(c, cashierClaims)
	h.Record(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.InDelta(t, 25.5, svc.last.Amount, 1e-9)

	svc.err = appErrors.ErrPaymentExceedsExpected
	c, w = newGinContext(http.MethodPost, "/attendees/a1/payments", mustJSON(t, service.PaymentRequest{Amount: 999}))
	c.Params = gin.Params{{Key: "id", Value: "a1"}}
	withClaims(c, cashierClaims)
	h.Record(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "PAYMENT_EXCEEDS_EXPECTED", decodeEnvelope(t, w).Error.Code)
}
