package storage

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/rishabh1721/WanderLust/internal/models"
)

// UserRepository defines the interface for user data operations.
type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id uint) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	Update(ctx context.Context, user *models.User) error
	// SearchIDsByName returns IDs of users whose username, full name or
	// email matches the query, excluding the current user.
	SearchIDsByName(ctx context.Context, query string, currentUserID uint) ([]uint, error)
	// IsBlocked reports whether blockerID has blocked blockedID.
	IsBlocked(ctx context.Context, blockerID uint, blockedID uint) (bool, error)
	// IncrementMessagingStats bumps the sender's sent counter and every
	// recipient's received counter.
	IncrementMessagingStats(ctx context.Context, senderID uint, recipientIDs []uint) error
	GetDB() *gorm.DB
}

// gormUserRepository implements UserRepository using GORM.
type gormUserRepository struct {
	db *gorm.DB
}

// NewGormUserRepository creates a new GORM-based UserRepository.
func NewGormUserRepository(db *gorm.DB) UserRepository {
	return &gormUserRepository{db: db}
}

// Create creates a new user record in the database.
func (r *gormUserRepository) Create(ctx context.Context, user *models.User) error {
	return r.db.WithContext(ctx).Create(user).Error
}

// GetByID retrieves a user by their ID.
func (r *gormUserRepository) GetByID(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).First(&user, id).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetByUsername retrieves a user by their username.
func (r *gormUserRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).Where("username = ?", username).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetByEmail retrieves a user by their email.
func (r *gormUserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).Where("email = ?", email).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// Update updates an existing user record in the database.
func (r *gormUserRepository) Update(ctx context.Context, user *models.User) error {
	if user.ID == 0 {
		return gorm.ErrMissingWhereClause
	}
	return r.db.WithContext(ctx).Save(user).Error
}

func (r *gormUserRepository) SearchIDsByName(ctx context.Context, query string, currentUserID uint) ([]uint, error) {
	searchTerm := "%" + strings.ToLower(query) + "%"

	var ids []uint
	err := r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("(LOWER(username) LIKE ? OR LOWER(full_name) LIKE ? OR LOWER(email) LIKE ?) AND id != ?", searchTerm, searchTerm, searchTerm, currentUserID).
		Limit(50).
		Pluck("id", &ids).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ids, nil
		}
		return nil, err
	}
	return ids, nil
}

func (r *gormUserRepository) IsBlocked(ctx context.Context, blockerID uint, blockedID uint) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Table("user_blocks").
		Where("user_id = ? AND blocked_user_id = ?", blockerID, blockedID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *gormUserRepository) IncrementMessagingStats(ctx context.Context, senderID uint, recipientIDs []uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Model(&models.User{}).
			Where("id = ?", senderID).
			Update("messages_sent", gorm.Expr("messages_sent + 1")).Error
		if err != nil {
			return err
		}
		if len(recipientIDs) == 0 {
			return nil
		}
		return tx.Model(&models.User{}).
			Where("id IN ?", recipientIDs).
			Update("messages_received", gorm.Expr("messages_received + 1")).Error
	})
}

// GetDB returns the underlying gorm.DB instance.
func (r *gormUserRepository) GetDB() *gorm.DB {
	return r.db
}
