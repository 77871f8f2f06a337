package postgres

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"user-crud-service/internal/domain/user"
	pkgerrors "user-crud-service/pkg/errors"
	"user-crud-service/pkg/logger"
)

// UserRepoPG implements the user Repository interface with GORM.
// It is written against the postgres dialect and also runs on SQLite.
type UserRepoPG struct {
	db  *gorm.DB
	log *zap.Logger
}

// NewUserRepoPG creates a new instance of UserRepoPG.
func NewUserRepoPG(db *gorm.DB, log *zap.Logger) *UserRepoPG {
	return &UserRepoPG{db: db, log: log}
}

// UserSchema represents the database schema for the users table.
type UserSchema struct {
	ID       int64  `gorm:"primaryKey;autoIncrement"`
	Name     string `gorm:"type:text;not null"`
	Email    string `gorm:"type:text;not null"`
	Password string `gorm:"type:text;not null"` // bcrypt hash
}

// TableName specifies the table name for the UserSchema model.
func (UserSchema) TableName() string {
	return "users"
}

func (m *UserSchema) toDomain() *user.User {
	return &user.User{
		ID:           m.ID,
		Name:         m.Name,
		Email:        m.Email,
		PasswordHash: m.Password,
	}
}

func notFound(id int64) error {
	return pkgerrors.NewNotFoundError("user", fmt.Sprintf("user not found: id=%d", id))
}

// Create inserts a new user and reads the stored row back in one transaction.
func (r *UserRepoPG) Create(ctx context.Context, u *user.User) (*user.User, error) {
	if u == nil {
		return nil, errors.New("user cannot be nil")
	}
	log := logger.WithContext(ctx, r.log)

	var stored UserSchema
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		model := UserSchema{
			Name:     u.Name,
			Email:    u.Email,
			Password: u.PasswordHash,
		}
		if err := tx.Create(&model).Error; err != nil {
			return err
		}
		return tx.First(&stored, model.ID).Error
	})
	if err != nil {
		log.Error("failed to create user in db", zap.Error(err), zap.String("email", u.Email))
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	log.Info("user created in db", zap.Int64("id", stored.ID))
	return stored.toDomain(), nil
}

// Update replaces name, email and password of the row with u.ID and reads it
// back in one transaction. No row with that ID yields a NotFoundError.
func (r *UserRepoPG) Update(ctx context.Context, u *user.User) (*user.User, error) {
	if u == nil {
		return nil, errors.New("user cannot be nil")
	}
	log := logger.WithContext(ctx, r.log)

	var stored UserSchema
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Model(&UserSchema{}).
			Where("id = ?", u.ID).
			Updates(map[string]any{
				"name":     u.Name,
				"email":    u.Email,
				"password": u.PasswordHash,
			}).Error
		if err != nil {
			return err
		}
		return tx.First(&stored, u.ID).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Warn("user not found for update", zap.Int64("id", u.ID))
			return nil, notFound(u.ID)
		}
		log.Error("failed to update user in db", zap.Error(err), zap.Int64("id", u.ID))
		return nil, fmt.Errorf("failed to update user: %w", err)
	}

	log.Info("user updated in db", zap.Int64("id", stored.ID))
	return stored.toDomain(), nil
}

// Delete removes a user by ID. A missing row is not an error.
func (r *UserRepoPG) Delete(ctx context.Context, id int64) error {
	log := logger.WithContext(ctx, r.log)

	result := r.db.WithContext(ctx).Delete(&UserSchema{}, id)
	if result.Error != nil {
		log.Error("failed to delete user in db", zap.Error(result.Error), zap.Int64("id", id))
		return fmt.Errorf("failed to delete user: %w", result.Error)
	}

	log.Info("user deleted in db", zap.Int64("id", id), zap.Int64("rows_affected", result.RowsAffected))
	return nil
}

// GetByID retrieves a user by ID. No row yields a NotFoundError.
func (r *UserRepoPG) GetByID(ctx context.Context, id int64) (*user.User, error) {
	var model UserSchema
	if err := r.db.WithContext(ctx).First(&model, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound(id)
		}
		logger.WithContext(ctx, r.log).Error("failed to get user from db", zap.Error(err), zap.Int64("id", id))
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return model.toDomain(), nil
}

// List retrieves all users ordered by ID.
func (r *UserRepoPG) List(ctx context.Context) ([]user.User, error) {
	var models []UserSchema
	if err := r.db.WithContext(ctx).Order("id ASC").Find(&models).Error; err != nil {
		logger.WithContext(ctx, r.log).Error("failed to list users from db", zap.Error(err))
		return nil, fmt.Errorf("failed to list users: %w", err)
	}

	users := make([]user.User, len(models))
	for i := range models {
		users[i] = *models[i].toDomain()
	}

	return users, nil
}

// AutoMigrate creates or updates the users table to match UserSchema.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&UserSchema{}); err != nil {
		return fmt.Errorf("failed to migrate users table: %w", err)
	}
	return nil
}
