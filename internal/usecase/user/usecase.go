package user

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	domain "user-crud-service/internal/domain/user"
	pkgerrors "user-crud-service/pkg/errors"
	"user-crud-service/pkg/logger"
	"user-crud-service/pkg/security"
)

// Repository defines the interface for user data access operations.
// Create and Update return the row as read back after the write.
type Repository interface {
	Create(ctx context.Context, u *domain.User) (*domain.User, error) // Insert a new user
	GetByID(ctx context.Context, id int64) (*domain.User, error)      // Retrieve user by ID
	Update(ctx context.Context, u *domain.User) (*domain.User, error) // Replace all mutable fields
	Delete(ctx context.Context, id int64) error                       // Delete user by ID, idempotent
	List(ctx context.Context) ([]domain.User, error)                  // List all users ordered by ID
}

// UserUsecase implements the business logic for user management operations.
type UserUsecase struct {
	repo     Repository
	hasher   security.PasswordHasher
	log      *zap.Logger
	validate *validator.Validate
}

var _ Usecase = (*UserUsecase)(nil)

// New creates a new instance of UserUsecase.
func New(r Repository, h security.PasswordHasher, log *zap.Logger) *UserUsecase {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		if label := f.Tag.Get("label"); label != "" {
			return label
		}
		return f.Name
	})

	return &UserUsecase{repo: r, hasher: h, log: log, validate: v}
}

// validateStruct runs the struct validation rules and converts failures
// into a ValidationError carrying one entry per failed field.
func (uc *UserUsecase) validateStruct(in any) error {
	err := uc.validate.Struct(in)
	if err == nil {
		return nil
	}

	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return pkgerrors.NewInternalError("failed to validate request", err)
	}

	fields := make([]pkgerrors.FieldError, 0, len(validationErrors))
	for _, e := range validationErrors {
		fields = append(fields, pkgerrors.FieldError{
			Field:   e.Field(),
			Message: fieldMessage(e),
		})
	}
	return pkgerrors.NewFieldsValidationError(fields)
}

func fieldMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email"
	case "max":
		return fmt.Sprintf("must be at most %s characters", e.Param())
	case "gt":
		return fmt.Sprintf("must be greater than %s", e.Param())
	default:
		return "is invalid"
	}
}

// hashPassword enforces bcrypt's byte limit, which the rune-based max rule does not cover.
func (uc *UserUsecase) hashPassword(password string) (string, error) {
	if len(password) > security.MaxPasswordBytes {
		return "", pkgerrors.NewValidationError("password",
			fmt.Sprintf("must be at most %d bytes", security.MaxPasswordBytes))
	}

	hash, err := uc.hasher.Hash(password)
	if err != nil {
		return "", pkgerrors.NewInternalError("failed to hash password", err)
	}
	return hash, nil
}

// CreateUser validates the request, hashes the password and stores the user.
func (uc *UserUsecase) CreateUser(ctx context.Context, in CreateUserRequest) (*User, error) {
	log := logger.WithContext(ctx, uc.log)
	log.Info("creating user", zap.String("name", in.Name), zap.String("email", in.Email))

	if err := uc.validateStruct(in); err != nil {
		log.Warn("validate failed", zap.Error(err))
		return nil, err
	}

	hash, err := uc.hashPassword(in.Password)
	if err != nil {
		log.Warn("password rejected", zap.Error(err))
		return nil, err
	}

	u, err := uc.repo.Create(ctx, &domain.User{
		Name:         in.Name,
		Email:        in.Email,
		PasswordHash: hash,
	})
	if err != nil {
		log.Error("failed to create user", zap.Error(err))
		return nil, err
	}

	return toDTO(u), nil
}

// UpdateUser replaces name, email and password of an existing user.
// A missing user yields a NotFoundError.
func (uc *UserUsecase) UpdateUser(ctx context.Context, in UpdateUserRequest) (*User, error) {
	log := logger.WithContext(ctx, uc.log)
	log.Info("updating user", zap.Int64("id", in.ID), zap.String("name", in.Name), zap.String("email", in.Email))

	if err := uc.validateStruct(in); err != nil {
		log.Warn("validate failed", zap.Int64("id", in.ID), zap.Error(err))
		return nil, err
	}

	hash, err := uc.hashPassword(in.Password)
	if err != nil {
		log.Warn("password rejected", zap.Int64("id", in.ID), zap.Error(err))
		return nil, err
	}

	u, err := uc.repo.Update(ctx, &domain.User{
		ID:           in.ID,
		Name:         in.Name,
		Email:        in.Email,
		PasswordHash: hash,
	})
	if err != nil {
		if pkgerrors.IsNotFound(err) {
			log.Warn("user to update not found", zap.Int64("id", in.ID))
		} else {
			log.Error("failed to update user", zap.Int64("id", in.ID), zap.Error(err))
		}
		return nil, err
	}

	return toDTO(u), nil
}

// DeleteUser removes a user. Deleting a user that does not exist succeeds.
func (uc *UserUsecase) DeleteUser(ctx context.Context, in DeleteUserRequest) error {
	log := logger.WithContext(ctx, uc.log)
	log.Info("deleting user", zap.Int64("id", in.ID))

	if err := uc.validateStruct(in); err != nil {
		log.Warn("delete user validation failed", zap.Int64("id", in.ID), zap.Error(err))
		return err
	}

	if err := uc.repo.Delete(ctx, in.ID); err != nil {
		log.Error("failed to delete user", zap.Int64("id", in.ID), zap.Error(err))
		return err
	}

	return nil
}

// GetUser retrieves a user by ID. A missing user yields a NotFoundError.
func (uc *UserUsecase) GetUser(ctx context.Context, in GetUserRequest) (*User, error) {
	log := logger.WithContext(ctx, uc.log)

	if err := uc.validateStruct(in); err != nil {
		log.Warn("get user validation failed", zap.Int64("id", in.ID), zap.Error(err))
		return nil, err
	}

	u, err := uc.repo.GetByID(ctx, in.ID)
	if err != nil {
		if pkgerrors.IsNotFound(err) {
			log.Debug("user not found", zap.Int64("id", in.ID))
		} else {
			log.Error("failed to get user", zap.Int64("id", in.ID), zap.Error(err))
		}
		return nil, err
	}

	return toDTO(u), nil
}

// ListUsers returns every stored user ordered by ID. An empty table yields an empty list.
func (uc *UserUsecase) ListUsers(ctx context.Context) (*ListUsersResponse, error) {
	log := logger.WithContext(ctx, uc.log)

	domainUsers, err := uc.repo.List(ctx)
	if err != nil {
		log.Error("failed to list users", zap.Error(err))
		return nil, err
	}

	users := make([]User, len(domainUsers))
	for i := range domainUsers {
		users[i] = *toDTO(&domainUsers[i])
	}

	log.Debug("listed users", zap.Int("count", len(users)))
	return &ListUsersResponse{Users: users}, nil
}

func toDTO(u *domain.User) *User {
	return &User{
		ID:    u.ID,
		Name:  u.Name,
		Email: u.Email,
	}
}
