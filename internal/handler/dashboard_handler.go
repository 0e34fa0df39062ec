package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/camp-checkin-api/internal/dto"
	"github.com/noah-isme/camp-checkin-api/internal/middleware"
	"github.com/noah-isme/camp-checkin-api/internal/models"
	appErrors "github.com/noah-isme/camp-checkin-api/pkg/errors"
	"github.com/noah-isme/camp-checkin-api/pkg/response"
)

type dashboardService interface {
	Summary(ctx context.Context, session models.Session) (*dto.DashboardSummary, bool, error)
}

// DashboardHandler wires dashboard service to HTTP endpoints.
type DashboardHandler struct {
	service dashboardService
}

// NewDashboardHandler constructs the handler.
func NewDashboardHandler(service dashboardService) *DashboardHandler {
	return &DashboardHandler{service: service}
}

// Summary godoc
// @Summary Registration and check-in summary
// @Tags Dashboard
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /dashboard [get]
func (h *DashboardHandler) Summary(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "dashboard is disabled"))
		return
	}
	summary, cacheHit, err := h.service.Summary(c.Request.Context(), sessionFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, cacheHit)
	response.JSON(c, http.StatusOK, summary, nil, middleware.ExtractMeta(c))
}
