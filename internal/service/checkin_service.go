package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/noah-isme/camp-checkin-api/internal/dto"
	"github.com/noah-isme/camp-checkin-api/internal/models"
	"github.com/noah-isme/camp-checkin-api/pkg/config"
	appErrors "github.com/noah-isme/camp-checkin-api/pkg/errors"
	"github.com/noah-isme/camp-checkin-api/pkg/ticket"
	"github.com/noah-isme/camp-checkin-api/pkg/tracing"
)

type checkInRepository interface {
	FindByID(ctx context.Context, id string) (*models.Attendee, error)
}

type scanThrottle interface {
	Allow(ctx context.Context, station string, interval time.Duration) (bool, error)
}

type auditWriter interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

type cacheInvalidator interface {
	Invalidate(ctx context.Context, pattern string) error
}

// CheckInOptions configures door behaviour.
type CheckInOptions struct {
	ReconfirmPolicy string
	ScanInterval    time.Duration
}

// CheckInService turns scanned ticket codes into confirmed attendance.
type CheckInService struct {
	repo     checkInRepository
	numberer Numberer
	throttle scanThrottle
	audit    auditWriter
	cache    cacheInvalidator
	metrics  *MetricsService
	logger   *zap.Logger
	tracer   trace.Tracer
	opts     CheckInOptions
	now      func() time.Time
}

// NewCheckInService constructs the check-in service. throttle, audit, cache
// and metrics are optional.
func NewCheckInService(repo checkInRepository, numberer Numberer, throttle scanThrottle, audit auditWriter, cache cacheInvalidator, metrics *MetricsService, logger *zap.Logger, opts CheckInOptions) *CheckInService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.ReconfirmPolicy != config.ReconfirmKeep {
		opts.ReconfirmPolicy = config.ReconfirmRenumber
	}
	return &CheckInService{
		repo:     repo,
		numberer: numberer,
		throttle: throttle,
		audit:    audit,
		cache:    cache,
		metrics:  metrics,
		logger:   logger,
		tracer:   tracing.Tracer(),
		opts:     opts,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Scan resolves a scanned code to an attendee without changing anything.
func (s *CheckInService) Scan(ctx context.Context, session models.Session, raw, stationID string) (*dto.ScanResult, error) {
	if !session.Can(models.CapCheckIn) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "check-in not allowed for this role")
	}
	ctx, span := s.tracer.Start(ctx, "checkin.scan")
	defer span.End()

	result, _, err := s.scan(ctx, session, raw, stationID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.String("attendee.id", result.ExtractedID))
	return result, nil
}

// Confirm records the attendee as present and assigns an attendance number.
func (s *CheckInService) Confirm(ctx context.Context, session models.Session, attendeeID string) (*dto.ConfirmationResult, error) {
	if !session.Can(models.CapCheckIn) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "check-in not allowed for this role")
	}
	ctx, span := s.tracer.Start(ctx, "checkin.confirm", trace.WithAttributes(
		attribute.String("attendee.id", attendeeID),
		attribute.String("numbering.strategy", s.numberer.Strategy()),
	))
	defer span.End()

	attendee, err := s.load(ctx, ticket.NormalizeID(attendeeID))
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	result, err := s.confirm(ctx, session, attendee)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("attendance.number", result.AttendanceNumber), attribute.Bool("attendance.reconfirm", result.AlreadyConfirmed))
	return result, nil
}

// ScanAndConfirm scans a code and immediately confirms the attendee found.
func (s *CheckInService) ScanAndConfirm(ctx context.Context, session models.Session, raw, stationID string) (*dto.ConfirmationResult, error) {
	if !session.Can(models.CapCheckIn) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "check-in not allowed for this role")
	}
	ctx, span := s.tracer.Start(ctx, "checkin.scan_and_confirm")
	defer span.End()

	_, attendee, err := s.scan(ctx, session, raw, stationID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	result, err := s.confirm(ctx, session, attendee)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.String("attendee.id", result.AttendeeID), attribute.Int("attendance.number", result.AttendanceNumber))
	return result, nil
}

func (s *CheckInService) scan(ctx context.Context, session models.Session, raw, stationID string) (*dto.ScanResult, *models.Attendee, error) {
	if err := s.admit(ctx, session, stationID); err != nil {
		s.metrics.RecordScan(OutcomeThrottled)
		return nil, nil, err
	}

	id, ok := ticket.Extract(raw)
	if !ok {
		s.metrics.RecordScan(OutcomeUnreadable)
		return nil, nil, appErrors.Clone(appErrors.ErrQRUnreadable, "")
	}
	id = ticket.NormalizeID(id)

	attendee, err := s.load(ctx, id)
	if err != nil {
		if appErrors.FromError(err).Code == appErrors.ErrAttendeeNotFound.Code {
			s.metrics.RecordScan(OutcomeNotFound)
		} else {
			s.metrics.RecordScan(OutcomeError)
		}
		return nil, nil, err
	}
	s.metrics.RecordScan(OutcomeOK)
	return &dto.ScanResult{ExtractedID: id, Attendee: dto.NewAttendeePreview(attendee)}, attendee, nil
}

// admit applies the per-station scan interval. Throttle backend failures let
// the scan through.
func (s *CheckInService) admit(ctx context.Context, session models.Session, stationID string) error {
	if s.throttle == nil || s.opts.ScanInterval <= 0 {
		return nil
	}
	station := stationID
	if station == "" {
		station = "user:" + session.UserID
	}
	allowed, err := s.throttle.Allow(ctx, station, s.opts.ScanInterval)
	if err != nil {
		s.logger.Warn("scan throttle unavailable", zap.String("station_id", station), zap.Error(err))
		return nil
	}
	if !allowed {
		return appErrors.Clone(appErrors.ErrScanThrottled, "")
	}
	return nil
}

func (s *CheckInService) load(ctx context.Context, id string) (*models.Attendee, error) {
	if id == "" {
		return nil, appErrors.Clone(appErrors.ErrAttendeeNotFound, "")
	}
	attendee, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrAttendeeNotFound, fmt.Sprintf("no attendee with id %q", id))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "could not load attendee, check the connection and try again")
	}
	return attendee, nil
}

func (s *CheckInService) confirm(ctx context.Context, session models.Session, attendee *models.Attendee) (*dto.ConfirmationResult, error) {
	start := time.Now()
	strategy := s.numberer.Strategy()
	reconfirm := attendee.AttendanceConfirmed && attendee.AttendanceNumber != nil

	if reconfirm && s.opts.ReconfirmPolicy == config.ReconfirmKeep {
		confirmedAt := s.now()
		if attendee.AttendanceConfirmedAt != nil {
			confirmedAt = *attendee.AttendanceConfirmedAt
		}
		s.metrics.RecordConfirmation(strategy, OutcomeOK, false, time.Since(start))
		return &dto.ConfirmationResult{
			AttendeeID:       attendee.ID,
			DisplayName:      attendee.DisplayName(),
			AttendanceNumber: *attendee.AttendanceNumber,
			ConfirmedAt:      confirmedAt,
			AlreadyConfirmed: true,
			PreviousNumber:   attendee.AttendanceNumber,
			Success:          true,
		}, nil
	}

	confirmedAt := s.now()
	number, err := s.numberer.Assign(ctx, attendee.ID, confirmedAt)
	if err != nil {
		return nil, s.confirmError(attendee, strategy, reconfirm, start, err)
	}

	fields := []zap.Field{
		zap.String("attendee_id", attendee.ID),
		zap.Int("attendance_number", number),
		zap.String("strategy", strategy),
		zap.String("user_id", session.UserID),
	}
	if reconfirm {
		s.logger.Warn("attendee re-confirmed, new attendance number assigned", append(fields, zap.Int("previous_number", *attendee.AttendanceNumber))...)
	} else {
		s.logger.Info("attendance confirmed", fields...)
	}
	s.metrics.RecordConfirmation(strategy, OutcomeOK, reconfirm, time.Since(start))
	s.afterConfirm(ctx, session, attendee, number, reconfirm)

	result := &dto.ConfirmationResult{
		AttendeeID:       attendee.ID,
		DisplayName:      attendee.DisplayName(),
		AttendanceNumber: number,
		ConfirmedAt:      confirmedAt,
		AlreadyConfirmed: reconfirm,
		Success:          true,
	}
	if reconfirm {
		result.PreviousNumber = attendee.AttendanceNumber
	}
	return result, nil
}

func (s *CheckInService) confirmError(attendee *models.Attendee, strategy string, reconfirm bool, start time.Time, err error) error {
	var appErr *appErrors.Error
	switch {
	case errors.As(err, &appErr):
		outcome := OutcomeError
		if appErr.Code == appErrors.ErrNumberingConflict.Code {
			outcome = OutcomeConflict
		}
		s.metrics.RecordConfirmation(strategy, outcome, reconfirm, time.Since(start))
		s.logger.Error("attendance number not assigned", zap.String("attendee_id", attendee.ID), zap.String("strategy", strategy), zap.Error(err))
		return appErr
	case errors.Is(err, sql.ErrNoRows):
		s.metrics.RecordConfirmation(strategy, OutcomeNotFound, reconfirm, time.Since(start))
		return appErrors.Clone(appErrors.ErrAttendeeNotFound, "attendee was removed before confirmation")
	default:
		s.metrics.RecordConfirmation(strategy, OutcomeError, reconfirm, time.Since(start))
		s.logger.Error("confirm attendance failed", zap.String("attendee_id", attendee.ID), zap.Error(err))
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "could not confirm attendance, check the connection and try again")
	}
}

func (s *CheckInService) afterConfirm(ctx context.Context, session models.Session, attendee *models.Attendee, number int, reconfirm bool) {
	if s.cache != nil {
		_ = s.cache.Invalidate(ctx, dashboardCachePattern)
	}
	if s.audit == nil {
		return
	}
	var previous interface{}
	if attendee.AttendanceNumber != nil {
		previous = *attendee.AttendanceNumber
	}
	oldPayload, _ := json.Marshal(map[string]interface{}{"attendance_number": previous})
	newPayload, _ := json.Marshal(map[string]interface{}{"attendance_number": number, "reconfirm": reconfirm})
	entry := &models.AuditLog{
		UserID:     &session.UserID,
		Action:     models.AuditActionCheckIn,
		Resource:   "attendee",
		ResourceID: &attendee.ID,
		OldValues:  oldPayload,
		NewValues:  newPayload,
	}
	if err := s.audit.CreateAuditLog(ctx, entry); err != nil {
		s.logger.Warn("failed to record check-in audit log", zap.Error(err))
	}
}
