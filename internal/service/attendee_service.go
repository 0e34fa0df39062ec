package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/camp-checkin-api/internal/dto"
	"github.com/noah-isme/camp-checkin-api/internal/models"
	"github.com/noah-isme/camp-checkin-api/pkg/database"
	appErrors "github.com/noah-isme/camp-checkin-api/pkg/errors"
	"github.com/noah-isme/camp-checkin-api/pkg/ticket"
)

const nameCandidateLimit = 20

// attendeeEmailConstraint is the partial unique index on non-empty emails of
// non-test attendees.
const attendeeEmailConstraint = "attendees_active_email_key"

type attendeeRepository interface {
	FindByID(ctx context.Context, id string) (*models.Attendee, error)
	FindByAttendanceNumber(ctx context.Context, number int) (*models.Attendee, error)
	SearchByName(ctx context.Context, term, folded string, limit int) ([]models.Attendee, error)
	List(ctx context.Context, filter models.AttendeeFilter) ([]models.Attendee, int, error)
	ExistsByEmail(ctx context.Context, email, excludeID string) (bool, error)
	Create(ctx context.Context, attendee *models.Attendee) error
	Update(ctx context.Context, attendee *models.Attendee) error
	Delete(ctx context.Context, id string) error
}

type auditHistoryReader interface {
	ListByResource(ctx context.Context, resource, resourceID string, limit int) ([]models.AuditLog, error)
}

// RegisterRequest is the public online registration form.
type RegisterRequest struct {
	FirstName string  `json:"first_name" validate:"required,max=100"`
	LastName  string  `json:"last_name" validate:"required,max=100"`
	Email     string  `json:"email" validate:"required,email"`
	Phone     string  `json:"phone" validate:"omitempty,max=30"`
	Church    string  `json:"church" validate:"required,max=120"`
	Sector    string  `json:"sector" validate:"omitempty,max=120"`
	Notes     string  `json:"notes" validate:"omitempty,max=500"`
	ShirtSize *string `json:"shirt_size" validate:"omitempty,oneof=XS S M L XL XXL"`
}

// WalkInRequest is entered by staff for attendees registering at the door.
type WalkInRequest struct {
	FirstName      string   `json:"first_name" validate:"required,max=100"`
	LastName       string   `json:"last_name" validate:"required,max=100"`
	Email          string   `json:"email" validate:"omitempty,email"`
	Phone          string   `json:"phone" validate:"omitempty,max=30"`
	Church         string   `json:"church" validate:"omitempty,max=120"`
	Sector         string   `json:"sector" validate:"omitempty,max=120"`
	Notes          string   `json:"notes" validate:"omitempty,max=500"`
	ShirtSize      *string  `json:"shirt_size" validate:"omitempty,oneof=XS S M L XL XXL"`
	ExpectedAmount *float64 `json:"expected_amount" validate:"omitempty,gte=0"`
	InitialPayment float64  `json:"initial_payment" validate:"gte=0"`
}

// UpdateAttendeeRequest replaces every editable field of an attendee.
type UpdateAttendeeRequest struct {
	FirstName           string               `json:"first_name" validate:"required,max=100"`
	LastName            string               `json:"last_name" validate:"required,max=100"`
	Email               string               `json:"email" validate:"omitempty,email"`
	Phone               string               `json:"phone" validate:"omitempty,max=30"`
	Church              string               `json:"church" validate:"omitempty,max=120"`
	Sector              string               `json:"sector" validate:"omitempty,max=120"`
	Notes               string               `json:"notes" validate:"omitempty,max=500"`
	ShirtSize           *string              `json:"shirt_size" validate:"omitempty,oneof=XS S M L XL XXL"`
	ExpectedAmount      float64              `json:"expected_amount" validate:"gte=0"`
	AmountPaid          float64              `json:"amount_paid" validate:"gte=0"`
	PaymentStatus       models.PaymentStatus `json:"payment_status" validate:"required,oneof=Pending Paid Reviewed"`
	AttendanceNumber    *int                 `json:"attendance_number" validate:"omitempty,gte=1"`
	AttendanceConfirmed bool                 `json:"attendance_confirmed"`
	IsTest              bool                 `json:"is_test"`
}

// AttendeeOptions carries event-level registration settings.
type AttendeeOptions struct {
	RegistrationOpen bool
	DefaultFee       float64
}

// AttendeeService manages attendee records and staff lookups.
type AttendeeService struct {
	repo      attendeeRepository
	history   auditHistoryReader
	audit     auditWriter
	cache     cacheInvalidator
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	opts      AttendeeOptions
	now       func() time.Time
}

// AttendeeServiceParams groups constructor dependencies.
type AttendeeServiceParams struct {
	Repo      attendeeRepository
	History   auditHistoryReader
	Audit     auditWriter
	Cache     cacheInvalidator
	Metrics   *MetricsService
	Validator *validator.Validate
	Logger    *zap.Logger
	Options   AttendeeOptions
}

// NewAttendeeService constructs the attendee service.
func NewAttendeeService(params AttendeeServiceParams) *AttendeeService {
	if params.Validator == nil {
		params.Validator = validator.New()
	}
	if params.Logger == nil {
		params.Logger = zap.NewNop()
	}
	return &AttendeeService{
		repo:      params.Repo,
		history:   params.History,
		audit:     params.Audit,
		cache:     params.Cache,
		metrics:   params.Metrics,
		validator: params.Validator,
		logger:    params.Logger,
		opts:      params.Options,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// RouteQuery picks number lookup for all-digit queries and name search otherwise.
func RouteQuery(q string) dto.LookupMode {
	trimmed := strings.TrimSpace(q)
	if trimmed == "" {
		return dto.LookupByName
	}
	for _, r := range trimmed {
		if r < '0' || r > '9' {
			return dto.LookupByName
		}
	}
	return dto.LookupByNumber
}

// Lookup resolves a staff search box query to one attendee or a candidate list.
func (s *AttendeeService) Lookup(ctx context.Context, session models.Session, q string) (*dto.LookupResult, error) {
	if !session.Can(models.CapView) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "lookup not allowed for this role")
	}
	query := strings.TrimSpace(q)
	if query == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "search query is required")
	}
	result := &dto.LookupResult{Mode: RouteQuery(query), Query: query}

	if result.Mode == dto.LookupByNumber {
		number, err := strconv.Atoi(query)
		if err != nil {
			return nil, appErrors.Clone(appErrors.ErrAttendeeNotFound, "no attendee with attendance number "+query)
		}
		attendee, err := s.repo.FindByAttendanceNumber(ctx, number)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrAttendeeNotFound, "no attendee with attendance number "+query)
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "could not search attendees, check the connection and try again")
		}
		result.Match = attendee
		return result, nil
	}

	matches, err := s.repo.SearchByName(ctx, query, foldSearch(query), nameCandidateLimit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "could not search attendees, check the connection and try again")
	}
	switch len(matches) {
	case 0:
		return nil, appErrors.Clone(appErrors.ErrAttendeeNotFound, "no attendee matches "+strconv.Quote(query))
	case 1:
		result.Match = &matches[0]
	default:
		result.Candidates = matches
	}
	return result, nil
}

// Get returns one attendee by identifier.
func (s *AttendeeService) Get(ctx context.Context, session models.Session, id string) (*models.Attendee, error) {
	if !session.Can(models.CapView) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "viewing attendees not allowed for this role")
	}
	return s.load(ctx, id)
}

// List returns attendees and pagination metadata.
func (s *AttendeeService) List(ctx context.Context, session models.Session, filter models.AttendeeFilter) ([]models.Attendee, *models.Pagination, error) {
	if !session.Can(models.CapView) {
		return nil, nil, appErrors.Clone(appErrors.ErrForbidden, "viewing attendees not allowed for this role")
	}
	if filter.PaymentStatus != nil && !filter.PaymentStatus.Valid() {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "unknown payment status")
	}
	attendees, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list attendees")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 50
	}
	if size > 200 {
		size = 200
	}
	return attendees, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Register creates an attendee from the public registration form.
func (s *AttendeeService) Register(ctx context.Context, req RegisterRequest) (*dto.RegistrationResult, error) {
	if !s.opts.RegistrationOpen {
		return nil, appErrors.Clone(appErrors.ErrRegistrationClosed, "")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid registration payload")
	}
	attendee := s.newAttendee(req.FirstName, req.LastName, req.Email, req.Phone, req.Church, req.Sector, req.Notes, req.ShirtSize)
	attendee.ExpectedAmount = s.opts.DefaultFee
	attendee.Source = models.SourceOnline

	if err := s.create(ctx, "", attendee); err != nil {
		return nil, err
	}
	payload, err := ticket.Encode(ticketPayload(attendee))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to build ticket")
	}
	return &dto.RegistrationResult{Attendee: attendee, QRPayload: payload}, nil
}

// RegisterWalkIn creates an attendee entered by staff at the door.
func (s *AttendeeService) RegisterWalkIn(ctx context.Context, session models.Session, req WalkInRequest) (*dto.RegistrationResult, error) {
	if !session.Can(models.CapRegisterWalkIn) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "walk-in registration not allowed for this role")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid walk-in payload")
	}
	attendee := s.newAttendee(req.FirstName, req.LastName, req.Email, req.Phone, req.Church, req.Sector, req.Notes, req.ShirtSize)
	attendee.ExpectedAmount = s.opts.DefaultFee
	if req.ExpectedAmount != nil {
		attendee.ExpectedAmount = *req.ExpectedAmount
	}
	if req.InitialPayment > attendee.ExpectedAmount {
		return nil, appErrors.Clone(appErrors.ErrPaymentExceedsExpected, "")
	}
	attendee.AmountPaid = req.InitialPayment
	attendee.PaymentStatus = statusFor(attendee.AmountPaid, attendee.ExpectedAmount)
	attendee.Source = models.SourceWalkIn

	if err := s.create(ctx, session.UserID, attendee); err != nil {
		return nil, err
	}
	s.metrics.RecordPayment(attendee.AmountPaid)
	payload, err := ticket.Encode(ticketPayload(attendee))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to build ticket")
	}
	return &dto.RegistrationResult{Attendee: attendee, QRPayload: payload}, nil
}

// Update overwrites an attendee's editable fields.
func (s *AttendeeService) Update(ctx context.Context, session models.Session, id string, req UpdateAttendeeRequest) (*models.Attendee, error) {
	if !session.Can(models.CapEditAttendee) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "editing attendees not allowed for this role")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid attendee payload")
	}
	if req.AmountPaid > req.ExpectedAmount {
		return nil, appErrors.Clone(appErrors.ErrPaymentExceedsExpected, "")
	}
	existing, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.ensureEmailFree(ctx, req.Email, req.IsTest, existing.ID); err != nil {
		return nil, err
	}

	updated := *existing
	updated.FirstName = canonicalName(req.FirstName)
	updated.LastName = canonicalName(req.LastName)
	updated.Email = strings.ToLower(strings.TrimSpace(req.Email))
	updated.Phone = strings.TrimSpace(req.Phone)
	updated.Church = strings.TrimSpace(req.Church)
	updated.Sector = strings.TrimSpace(req.Sector)
	updated.Notes = strings.TrimSpace(req.Notes)
	updated.ShirtSize = req.ShirtSize
	updated.ExpectedAmount = req.ExpectedAmount
	updated.AmountPaid = req.AmountPaid
	updated.PaymentStatus = req.PaymentStatus
	updated.AttendanceNumber = req.AttendanceNumber
	updated.AttendanceConfirmed = req.AttendanceConfirmed
	if !updated.AttendanceConfirmed {
		updated.AttendanceConfirmedAt = nil
	} else if updated.AttendanceConfirmedAt == nil {
		now := s.now()
		updated.AttendanceConfirmedAt = &now
	}
	updated.IsTest = req.IsTest
	updated.SearchKey = searchKey(updated.FirstName, updated.LastName)
	updated.UpdatedAt = s.now()

	if err := s.repo.Update(ctx, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrAttendeeNotFound, "")
		}
		if conflict := uniqueConflict(err); conflict != nil {
			return nil, conflict
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update attendee")
	}

	s.record(ctx, session.UserID, models.AuditActionAttendeeUpdate, updated.ID, existing, &updated)
	s.invalidate(ctx)
	return &updated, nil
}

// Delete removes an attendee permanently.
func (s *AttendeeService) Delete(ctx context.Context, session models.Session, id string) error {
	if !session.Can(models.CapDeleteAttendee) {
		return appErrors.Clone(appErrors.ErrForbidden, "deleting attendees not allowed for this role")
	}
	existing, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, existing.ID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrAttendeeNotFound, "")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete attendee")
	}
	s.logger.Info("attendee deleted", zap.String("attendee_id", existing.ID), zap.String("user_id", session.UserID))
	s.record(ctx, session.UserID, models.AuditActionAttendeeDelete, existing.ID, existing, nil)
	s.invalidate(ctx)
	return nil
}

// History returns the audit trail of one attendee, newest first.
func (s *AttendeeService) History(ctx context.Context, session models.Session, id string, limit int) ([]models.AuditLog, error) {
	if !session.Can(models.CapEditAttendee) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "attendee history not allowed for this role")
	}
	if s.history == nil {
		return []models.AuditLog{}, nil
	}
	logs, err := s.history.ListByResource(ctx, "attendee", id, limit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendee history")
	}
	return logs, nil
}

func (s *AttendeeService) newAttendee(first, last, email, phone, church, sector, notes string, shirt *string) *models.Attendee {
	now := s.now()
	a := &models.Attendee{
		FirstName:     canonicalName(first),
		LastName:      canonicalName(last),
		Email:         strings.ToLower(strings.TrimSpace(email)),
		Phone:         strings.TrimSpace(phone),
		Church:        strings.TrimSpace(church),
		Sector:        strings.TrimSpace(sector),
		Notes:         strings.TrimSpace(notes),
		ShirtSize:     shirt,
		PaymentStatus: models.PaymentPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	a.SearchKey = searchKey(a.FirstName, a.LastName)
	return a
}

func (s *AttendeeService) create(ctx context.Context, userID string, attendee *models.Attendee) error {
	if err := s.ensureEmailFree(ctx, attendee.Email, attendee.IsTest, ""); err != nil {
		return err
	}
	if err := s.repo.Create(ctx, attendee); err != nil {
		if conflict := uniqueConflict(err); conflict != nil {
			return conflict
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to register attendee")
	}
	s.metrics.RecordRegistration(string(attendee.Source))
	s.logger.Info("attendee registered",
		zap.String("attendee_id", attendee.ID),
		zap.String("source", string(attendee.Source)),
	)
	s.record(ctx, userID, models.AuditActionAttendeeCreate, attendee.ID, nil, attendee)
	s.invalidate(ctx)
	return nil
}

func (s *AttendeeService) ensureEmailFree(ctx context.Context, email string, isTest bool, excludeID string) error {
	if email == "" || isTest {
		return nil
	}
	exists, err := s.repo.ExistsByEmail(ctx, strings.ToLower(strings.TrimSpace(email)), excludeID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate email")
	}
	if exists {
		return appErrors.Clone(appErrors.ErrConflict, "email already registered")
	}
	return nil
}

// uniqueConflict maps a write rejected by one of the attendee unique indexes
// to a conflict. It returns nil for any other error.
func uniqueConflict(err error) error {
	switch {
	case database.IsUniqueViolation(err, attendeeEmailConstraint):
		return appErrors.Wrap(err, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, "email already registered")
	case database.IsUniqueViolation(err, attendanceNumberConstraint):
		return appErrors.Wrap(err, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, "attendance number already assigned to another attendee")
	}
	return nil
}

func (s *AttendeeService) load(ctx context.Context, id string) (*models.Attendee, error) {
	attendee, err := s.repo.FindByID(ctx, strings.TrimSpace(id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrAttendeeNotFound, "")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendee")
	}
	return attendee, nil
}

func (s *AttendeeService) record(ctx context.Context, userID, action, attendeeID string, before, after *models.Attendee) {
	if s.audit == nil {
		return
	}
	entry := &models.AuditLog{
		Action:     action,
		Resource:   "attendee",
		ResourceID: &attendeeID,
	}
	if userID != "" {
		entry.UserID = &userID
	}
	if before != nil {
		entry.OldValues, _ = json.Marshal(before)
	}
	if after != nil {
		entry.NewValues, _ = json.Marshal(after)
	}
	if err := s.audit.CreateAuditLog(ctx, entry); err != nil {
		s.logger.Warn("failed to record attendee audit log", zap.String("action", action), zap.Error(err))
	}
}

func (s *AttendeeService) invalidate(ctx context.Context) {
	if s.cache != nil {
		_ = s.cache.Invalidate(ctx, dashboardCachePattern)
	}
}

// statusFor derives the payment status after a payment. Nothing owed and
// nothing paid stays Pending.
func statusFor(paid, expected float64) models.PaymentStatus {
	if expected > 0 && paid >= expected {
		return models.PaymentPaid
	}
	return models.PaymentPending
}
