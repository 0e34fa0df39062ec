package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/camp-checkin-api/internal/dto"
	"github.com/noah-isme/camp-checkin-api/internal/models"
	appErrors "github.com/noah-isme/camp-checkin-api/pkg/errors"
	"github.com/noah-isme/camp-checkin-api/pkg/response"
)

type checkInService interface {
	Scan(ctx context.Context, session models.Session, raw, stationID string) (*dto.ScanResult, error)
	Confirm(ctx context.Context, session models.Session, attendeeID string) (*dto.ConfirmationResult, error)
	ScanAndConfirm(ctx context.Context, session models.Session, raw, stationID string) (*dto.ConfirmationResult, error)
}

// CheckInHandler exposes the door scanning endpoints.
type CheckInHandler struct {
	checkIn checkInService
}

// NewCheckInHandler constructs CheckInHandler.
func NewCheckInHandler(checkIn checkInService) *CheckInHandler {
	return &CheckInHandler{checkIn: checkIn}
}

// Scan godoc
// @Summary Scan a QR ticket
// @Description Resolves the decoded QR text to an attendee. With confirm=true the attendance is confirmed in the same call.
// @Tags Check-in
// @Accept json
// @Produce json
// @Param X-Station-ID header string false "Scanner station identifier"
// @Param payload body dto.ScanRequest true "Decoded QR text"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Failure 429 {object} response.Envelope
// @Router /checkin/scan [post]
func (h *CheckInHandler) Scan(c *gin.Context) {
	var req dto.ScanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid scan payload"))
		return
	}
	station := strings.TrimSpace(c.GetHeader(stationHeader))
	session := sessionFromContext(c)

	if req.Confirm {
		result, err := h.checkIn.ScanAndConfirm(c.Request.Context(), session, req.Payload, station)
		if err != nil {
			response.Error(c, err)
			return
		}
		response.JSON(c, http.StatusOK, result, nil)
		return
	}

	result, err := h.checkIn.Scan(c.Request.Context(), session, req.Payload, station)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Confirm godoc
// @Summary Confirm attendance
// @Description Assigns the next attendance number to the attendee.
// @Tags Check-in
// @Produce json
// @Param id path string true "Attendee ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /checkin/{id}/confirm [post]
func (h *CheckInHandler) Confirm(c *gin.Context) {
	result, err := h.checkIn.Confirm(c.Request.Context(), sessionFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}
