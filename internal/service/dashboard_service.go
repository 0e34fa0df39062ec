package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/camp-checkin-api/internal/dto"
	"github.com/noah-isme/camp-checkin-api/internal/models"
	appErrors "github.com/noah-isme/camp-checkin-api/pkg/errors"
)

const (
	dashboardCacheKey     = "dash:summary"
	dashboardCachePattern = "dash:*"
)

type dashboardRepository interface {
	Stats(ctx context.Context) (*models.AttendeeStats, error)
	CountBy(ctx context.Context, column string) ([]models.GroupCount, error)
}

type dashboardCache interface {
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// DashboardService composes the admin overview.
type DashboardService struct {
	repo      dashboardRepository
	cache     dashboardCache
	logger    *zap.Logger
	eventName string
	cacheTTL  time.Duration
	now       func() time.Time
}

// NewDashboardService constructs the dashboard service. cache is optional.
func NewDashboardService(repo dashboardRepository, cache dashboardCache, eventName string, cacheTTL time.Duration, logger *zap.Logger) *DashboardService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cacheTTL <= 0 {
		cacheTTL = time.Minute
	}
	return &DashboardService{
		repo:      repo,
		cache:     cache,
		logger:    logger,
		eventName: eventName,
		cacheTTL:  cacheTTL,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Summary returns the dashboard and whether it was served from cache.
func (s *DashboardService) Summary(ctx context.Context, session models.Session) (*dto.DashboardSummary, bool, error) {
	if !session.Can(models.CapViewDashboard) {
		return nil, false, appErrors.Clone(appErrors.ErrForbidden, "dashboard is restricted to admins")
	}
	if s.cache != nil {
		var cached dto.DashboardSummary
		if hit, err := s.cache.Get(ctx, dashboardCacheKey, &cached); err == nil && hit {
			return &cached, true, nil
		}
	}

	stats, err := s.repo.Stats(ctx)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load dashboard totals")
	}
	byChurch, err := s.repo.CountBy(ctx, "church")
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load church breakdown")
	}
	bySector, err := s.repo.CountBy(ctx, "sector")
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load sector breakdown")
	}

	summary := &dto.DashboardSummary{
		Event:       s.eventName,
		Totals:      *stats,
		ByChurch:    nonNilGroups(byChurch),
		BySector:    nonNilGroups(bySector),
		GeneratedAt: s.now(),
	}
	if stats.Registered > 0 {
		summary.CheckInRate = float64(stats.Confirmed) / float64(stats.Registered)
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, dashboardCacheKey, summary, s.cacheTTL); err != nil {
			s.logger.Debug("dashboard cache write skipped", zap.Error(err))
		}
	}
	return summary, false, nil
}

func nonNilGroups(groups []models.GroupCount) []models.GroupCount {
	if groups == nil {
		return []models.GroupCount{}
	}
	return groups
}
