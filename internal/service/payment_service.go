package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"math"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/camp-checkin-api/internal/models"
	appErrors "github.com/noah-isme/camp-checkin-api/pkg/errors"
)

type paymentRepository interface {
	FindByID(ctx context.Context, id string) (*models.Attendee, error)
	UpdatePayment(ctx context.Context, id string, amountPaid float64, status models.PaymentStatus, updatedAt time.Time) error
}

// PaymentRequest records money received by a cashier. MarkPaid settles the
// remaining balance and ignores Amount.
type PaymentRequest struct {
	Amount   float64 `json:"amount" validate:"gte=0"`
	MarkPaid bool    `json:"mark_paid"`
}

// PaymentService applies cashier payments to attendee balances.
type PaymentService struct {
	repo      paymentRepository
	audit     auditWriter
	cache     cacheInvalidator
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewPaymentService constructs the payment service.
func NewPaymentService(repo paymentRepository, audit auditWriter, cache cacheInvalidator, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *PaymentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PaymentService{
		repo:      repo,
		audit:     audit,
		cache:     cache,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// RecordPayment adds a payment to the attendee's total.
func (s *PaymentService) RecordPayment(ctx context.Context, session models.Session, id string, req PaymentRequest) (*models.Attendee, error) {
	if !session.Can(models.CapRecordPayment) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "recording payments not allowed for this role")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payment payload")
	}
	if !req.MarkPaid && req.Amount <= 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "amount must be greater than zero")
	}

	attendee, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrAttendeeNotFound, "")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendee")
	}

	previous := attendee.AmountPaid
	paid := roundCents(previous + req.Amount)
	status := statusFor(paid, attendee.ExpectedAmount)
	if req.MarkPaid {
		paid = math.Max(previous, attendee.ExpectedAmount)
		status = models.PaymentPaid
	}
	if paid > roundCents(attendee.ExpectedAmount) {
		return nil, appErrors.Clone(appErrors.ErrPaymentExceedsExpected, "")
	}

	updatedAt := s.now()
	if err := s.repo.UpdatePayment(ctx, attendee.ID, paid, status, updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrAttendeeNotFound, "")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record payment")
	}

	received := paid - previous
	s.metrics.RecordPayment(received)
	s.logger.Info("payment recorded",
		zap.String("attendee_id", attendee.ID),
		zap.Float64("amount", received),
		zap.String("status", string(status)),
		zap.String("user_id", session.UserID),
	)
	if s.audit != nil {
		oldPayload, _ := json.Marshal(map[string]interface{}{"amount_paid": previous, "payment_status": attendee.PaymentStatus})
		newPayload, _ := json.Marshal(map[string]interface{}{"amount_paid": paid, "payment_status": status, "received": received})
		if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
			UserID:     &session.UserID,
			Action:     models.AuditActionPaymentRecord,
			Resource:   "attendee",
			ResourceID: &attendee.ID,
			OldValues:  oldPayload,
			NewValues:  newPayload,
		}); err != nil {
			s.logger.Warn("failed to record payment audit log", zap.Error(err))
		}
	}
	if s.cache != nil {
		_ = s.cache.Invalidate(ctx, dashboardCachePattern)
	}

	attendee.AmountPaid = paid
	attendee.PaymentStatus = status
	attendee.UpdatedAt = updatedAt
	return attendee, nil
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}
