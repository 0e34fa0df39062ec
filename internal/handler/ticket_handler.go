package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/camp-checkin-api/internal/models"
	"github.com/noah-isme/camp-checkin-api/pkg/response"
)

type ticketService interface {
	Payload(ctx context.Context, session models.Session, id string) (string, error)
	PNG(ctx context.Context, session models.Session, id string) ([]byte, error)
}

// TicketHandler serves QR tickets for attendees.
type TicketHandler struct {
	tickets ticketService
}

// NewTicketHandler constructs TicketHandler.
func NewTicketHandler(tickets ticketService) *TicketHandler {
	return &TicketHandler{tickets: tickets}
}

// Payload godoc
// @Summary QR ticket payload
// @Tags Tickets
// @Produce json
// @Param id path string true "Attendee ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /attendees/{id}/ticket [get]
func (h *TicketHandler) Payload(c *gin.Context) {
	payload, err := h.tickets.Payload(c.Request.Context(), sessionFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"attendee_id": c.Param("id"), "payload": payload}, nil)
}

// PNG godoc
// @Summary QR ticket image
// @Tags Tickets
// @Produce png
// @Param id path string true "Attendee ID"
// @Success 200 {file} binary
// @Failure 404 {object} response.Envelope
// @Router /attendees/{id}/ticket.png [get]
func (h *TicketHandler) PNG(c *gin.Context) {
	png, err := h.tickets.PNG(c.Request.Context(), sessionFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "image/png", png)
}
