package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/camp-checkin-api/internal/models"
	appErrors "github.com/noah-isme/camp-checkin-api/pkg/errors"
)

type userRepository interface {
	List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	ExistsByEmail(ctx context.Context, email, excludeID string) (bool, error)
	CountActiveByRole(ctx context.Context, role models.UserRole) (int, error)
	Create(ctx context.Context, user *models.User) error
	Update(ctx context.Context, user *models.User) error
	Deactivate(ctx context.Context, id string) error
}

// CreateUserRequest represents payload for creating staff accounts.
type CreateUserRequest struct {
	Email    string          `json:"email" validate:"required,email"`
	FullName string          `json:"full_name" validate:"required"`
	Role     models.UserRole `json:"role" validate:"required,oneof=SUPERADMIN ADMIN CASHIER COMMITTEE"`
	Active   bool            `json:"active"`
	Password string          `json:"password" validate:"required,min=6"`
}

// UpdateUserRequest payload for updating staff accounts.
type UpdateUserRequest struct {
	FullName string          `json:"full_name" validate:"required"`
	Role     models.UserRole `json:"role" validate:"required,oneof=SUPERADMIN ADMIN CASHIER COMMITTEE"`
	Active   *bool           `json:"active"`
}

// UserService handles staff account management.
type UserService struct {
	repo      userRepository
	audit     auditWriter
	validator *validator.Validate
	logger    *zap.Logger
}

// NewUserService creates an instance of UserService.
func NewUserService(repo userRepository, audit auditWriter, validate *validator.Validate, logger *zap.Logger) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &UserService{repo: repo, audit: audit, validator: validate, logger: logger}
}

// List returns paginated staff accounts and pagination metadata.
func (s *UserService) List(ctx context.Context, session models.Session, filter models.UserFilter) ([]models.User, *models.Pagination, error) {
	if !session.Can(models.CapManageStaff) {
		return nil, nil, appErrors.Clone(appErrors.ErrForbidden, "staff management requires an admin")
	}
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 || filter.PageSize > 100 {
		filter.PageSize = 20
	}

	users, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list users")
	}
	return users, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
}

// Get returns a staff account by ID.
func (s *UserService) Get(ctx context.Context, session models.Session, id string) (*models.User, error) {
	if !session.Can(models.CapManageStaff) && session.UserID != id {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "staff management requires an admin")
	}
	return s.load(ctx, id)
}

// Create adds a staff account. Only superadmins may mint other superadmins.
func (s *UserService) Create(ctx context.Context, session models.Session, req CreateUserRequest, meta models.LoginRequest) (*models.User, error) {
	if !session.Can(models.CapManageStaff) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "staff management requires an admin")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid create user payload")
	}
	if req.Role == models.RoleSuperAdmin && session.Role != models.RoleSuperAdmin {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only a superadmin can grant the superadmin role")
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	exists, err := s.repo.ExistsByEmail(ctx, email, "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check email uniqueness")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "email already exists")
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	user := &models.User{
		ID:           uuid.NewString(),
		Email:        email,
		FullName:     strings.TrimSpace(req.FullName),
		Role:         req.Role,
		Active:       req.Active,
		PasswordHash: string(passwordHash),
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create user")
	}

	newPayload, _ := json.Marshal(map[string]interface{}{"id": user.ID, "email": user.Email, "role": user.Role})
	s.record(ctx, session, models.AuditActionUserCreate, user.ID, nil, newPayload, meta)
	s.logger.Info("staff account created", zap.String("user_id", user.ID), zap.String("role", string(user.Role)))
	return user, nil
}

// Update modifies the account's name, role and active flag.
func (s *UserService) Update(ctx context.Context, session models.Session, id string, req UpdateUserRequest, meta models.LoginRequest) (*models.User, error) {
	if !session.Can(models.CapManageStaff) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "staff management requires an admin")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid update payload")
	}

	user, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if (user.Role == models.RoleSuperAdmin || req.Role == models.RoleSuperAdmin) && session.Role != models.RoleSuperAdmin {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only a superadmin can change superadmin accounts")
	}

	active := user.Active
	if req.Active != nil {
		active = *req.Active
	}
	if user.Active && (!active || req.Role != user.Role) {
		if err := s.ensureNotLastAdmin(ctx, user); err != nil {
			return nil, err
		}
	}

	oldPayload, _ := json.Marshal(map[string]interface{}{"full_name": user.FullName, "role": user.Role, "active": user.Active})
	user.FullName = strings.TrimSpace(req.FullName)
	user.Role = req.Role
	user.Active = active

	if err := s.repo.Update(ctx, user); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update user")
	}

	newPayload, _ := json.Marshal(map[string]interface{}{"full_name": user.FullName, "role": user.Role, "active": user.Active})
	s.record(ctx, session, models.AuditActionUserUpdate, user.ID, oldPayload, newPayload, meta)
	return user, nil
}

// Deactivate disables a staff account. Accounts are never hard deleted so
// their audit trail keeps resolving.
func (s *UserService) Deactivate(ctx context.Context, session models.Session, id string, meta models.LoginRequest) error {
	if !session.Can(models.CapManageStaff) {
		return appErrors.Clone(appErrors.ErrForbidden, "staff management requires an admin")
	}
	if session.UserID == id {
		return appErrors.Clone(appErrors.ErrConflict, "you cannot deactivate your own account")
	}

	user, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if user.Role == models.RoleSuperAdmin && session.Role != models.RoleSuperAdmin {
		return appErrors.Clone(appErrors.ErrForbidden, "only a superadmin can change superadmin accounts")
	}
	if !user.Active {
		return nil
	}
	if err := s.ensureNotLastAdmin(ctx, user); err != nil {
		return err
	}

	if err := s.repo.Deactivate(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to deactivate user")
	}

	oldPayload, _ := json.Marshal(map[string]interface{}{"active": true})
	newPayload, _ := json.Marshal(map[string]interface{}{"active": false})
	s.record(ctx, session, models.AuditActionUserDelete, user.ID, oldPayload, newPayload, meta)
	return nil
}

func (s *UserService) ensureNotLastAdmin(ctx context.Context, user *models.User) error {
	if user.Role != models.RoleSuperAdmin && user.Role != models.RoleAdmin {
		return nil
	}
	count, err := s.repo.CountActiveByRole(ctx, user.Role)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count administrators")
	}
	if count <= 1 {
		return appErrors.Clone(appErrors.ErrConflict, "cannot remove the last active "+strings.ToLower(string(user.Role)))
	}
	return nil
}

func (s *UserService) load(ctx context.Context, id string) (*models.User, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	return user, nil
}

func (s *UserService) record(ctx context.Context, session models.Session, action, userID string, oldValues, newValues []byte, meta models.LoginRequest) {
	if s.audit == nil {
		return
	}
	actorID := session.UserID
	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &actorID,
		Action:     action,
		Resource:   "users",
		ResourceID: &userID,
		OldValues:  oldValues,
		NewValues:  newValues,
		IPAddress:  meta.IP,
		UserAgent:  meta.UserAgent,
	}); err != nil {
		s.logger.Warn("failed to record user audit log", zap.String("action", action), zap.Error(err))
	}
}
