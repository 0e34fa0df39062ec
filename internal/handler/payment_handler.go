package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/camp-checkin-api/internal/models"
	"github.com/noah-isme/camp-checkin-api/internal/service"
	appErrors "github.com/noah-isme/camp-checkin-api/pkg/errors"
	"github.com/noah-isme/camp-checkin-api/pkg/response"
)

type paymentService interface {
	RecordPayment(ctx context.Context, session models.Session, id string, req service.PaymentRequest) (*models.Attendee, error)
}

// PaymentHandler exposes the cashier endpoint.
type PaymentHandler struct {
	payments paymentService
}

// NewPaymentHandler constructs PaymentHandler.
func NewPaymentHandler(payments paymentService) *PaymentHandler {
	return &PaymentHandler{payments: payments}
}

// Record godoc
// @Summary Record a payment
// @Description Adds amount to the attendee's paid total, or settles the balance when mark_paid is set.
// @Tags Payments
// @Accept json
// @Produce json
// @Param id path string true "Attendee ID"
// @Param payload body service.PaymentRequest true "Payment"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /attendees/{id}/payments [post]
func (h *PaymentHandler) Record(c *gin.Context) {
	var req service.PaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payment payload"))
		return
	}
	attendee, err := h.payments.RecordPayment(c.Request.Context(), sessionFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, attendee, nil)
}
