package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/camp-checkin-api/internal/dto"
	"github.com/noah-isme/camp-checkin-api/internal/middleware"
	"github.com/noah-isme/camp-checkin-api/internal/models"
	"github.com/noah-isme/camp-checkin-api/internal/service"
	appErrors "github.com/noah-isme/camp-checkin-api/pkg/errors"
	"github.com/noah-isme/camp-checkin-api/pkg/response"
)

type attendeeService interface {
	Register(ctx context.Context, req service.RegisterRequest) (*dto.RegistrationResult, error)
	RegisterWalkIn(ctx context.Context, session models.Session, req service.WalkInRequest) (*dto.RegistrationResult, error)
	Lookup(ctx context.Context, session models.Session, q string) (*dto.LookupResult, error)
	Get(ctx context.Context, session models.Session, id string) (*models.Attendee, error)
	List(ctx context.Context, session models.Session, filter models.AttendeeFilter) ([]models.Attendee, *models.Pagination, error)
	Update(ctx context.Context, session models.Session, id string, req service.UpdateAttendeeRequest) (*models.Attendee, error)
	Delete(ctx context.Context, session models.Session, id string) error
	History(ctx context.Context, session models.Session, id string, limit int) ([]models.AuditLog, error)
}

// AttendeeHandler exposes registration, search and admin edit endpoints.
type AttendeeHandler struct {
	attendees attendeeService
}

// NewAttendeeHandler constructs AttendeeHandler.
func NewAttendeeHandler(attendees attendeeService) *AttendeeHandler {
	return &AttendeeHandler{attendees: attendees}
}

// Register godoc
// @Summary Register for the camp
// @Description Public online registration. Returns the QR ticket payload.
// @Tags Registration
// @Accept json
// @Produce json
// @Param payload body service.RegisterRequest true "Registration"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /registrations [post]
func (h *AttendeeHandler) Register(c *gin.Context) {
	var req service.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid registration payload"))
		return
	}
	result, err := h.attendees.Register(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// RegisterWalkIn godoc
// @Summary Register a walk-in attendee
// @Tags Attendees
// @Accept json
// @Produce json
// @Param payload body service.WalkInRequest true "Walk-in"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /attendees [post]
func (h *AttendeeHandler) RegisterWalkIn(c *gin.Context) {
	var req service.WalkInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid walk-in payload"))
		return
	}
	result, err := h.attendees.RegisterWalkIn(c.Request.Context(), sessionFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// Lookup godoc
// @Summary Find an attendee
// @Description All-digit queries match the attendance number, anything else matches first or last name ignoring case and accents.
// @Tags Attendees
// @Produce json
// @Param q query string true "Attendance number or name fragment"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /attendees/lookup [get]
func (h *AttendeeHandler) Lookup(c *gin.Context) {
	result, err := h.attendees.Lookup(c.Request.Context(), sessionFromContext(c), c.Query("q"))
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetMeta(c, "mode", result.Mode)
	middleware.SetMeta(c, "ambiguous", result.Ambiguous())
	response.JSON(c, http.StatusOK, result, nil, middleware.ExtractMeta(c))
}

// List godoc
// @Summary List attendees
// @Tags Attendees
// @Produce json
// @Param search query string false "Name, email or phone fragment"
// @Param church query string false "Church"
// @Param sector query string false "Sector"
// @Param payment_status query string false "Pending, Paid or Reviewed"
// @Param confirmed query bool false "Attendance confirmed"
// @Param include_test query bool false "Include test records"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Param sort_by query string false "Sort by"
// @Param sort_order query string false "asc or desc"
// @Success 200 {object} response.Envelope
// @Router /attendees [get]
func (h *AttendeeHandler) List(c *gin.Context) {
	filter := models.AttendeeFilter{
		Search:    strings.TrimSpace(c.Query("search")),
		Church:    strings.TrimSpace(c.Query("church")),
		Sector:    strings.TrimSpace(c.Query("sector")),
		Confirmed: queryBool(c, "confirmed"),
		Page:      queryInt(c, "page", 1),
		PageSize:  queryInt(c, "page_size", 50),
		SortBy:    c.Query("sort_by"),
		SortOrder: c.Query("sort_order"),
	}
	if include := queryBool(c, "include_test"); include != nil {
		filter.IncludeTest = *include
	}
	if raw := strings.TrimSpace(c.Query("payment_status")); raw != "" {
		status := models.PaymentStatus(raw)
		filter.PaymentStatus = &status
	}

	attendees, pagination, err := h.attendees.List(c.Request.Context(), sessionFromContext(c), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, attendees, pagination)
}

// Get godoc
// @Summary Get attendee
// @Tags Attendees
// @Produce json
// @Param id path string true "Attendee ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /attendees/{id} [get]
func (h *AttendeeHandler) Get(c *gin.Context) {
	attendee, err := h.attendees.Get(c.Request.Context(), sessionFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, attendee, nil)
}

// Update godoc
// @Summary Edit attendee
// @Tags Attendees
// @Accept json
// @Produce json
// @Param id path string true "Attendee ID"
// @Param payload body service.UpdateAttendeeRequest true "Attendee"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /attendees/{id} [put]
func (h *AttendeeHandler) Update(c *gin.Context) {
	var req service.UpdateAttendeeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid attendee payload"))
		return
	}
	attendee, err := h.attendees.Update(c.Request.Context(), sessionFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, attendee, nil)
}

// Delete godoc
// @Summary Delete attendee
// @Tags Attendees
// @Param id path string true "Attendee ID"
// @Success 204
// @Failure 404 {object} response.Envelope
// @Router /attendees/{id} [delete]
func (h *AttendeeHandler) Delete(c *gin.Context) {
	if err := h.attendees.Delete(c.Request.Context(), sessionFromContext(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// History godoc
// @Summary Attendee audit trail
// @Tags Attendees
// @Produce json
// @Param id path string true "Attendee ID"
// @Param limit query int false "Maximum entries"
// @Success 200 {object} response.Envelope
// @Router /attendees/{id}/history [get]
func (h *AttendeeHandler) History(c *gin.Context) {
	logs, err := h.attendees.History(c.Request.Context(), sessionFromContext(c), c.Param("id"), queryInt(c, "limit", 50))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, logs, nil)
}
