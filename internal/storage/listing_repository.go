package storage

import (
	"context"

	"gorm.io/gorm"

	"github.com/rishabh1721/WanderLust/internal/models"
)

// ListingRepository defines the interface for listing data operations needed
// by the messaging subsystem.
type ListingRepository interface {
	GetByID(ctx context.Context, id uint) (*models.Listing, error)
}

type gormListingRepository struct {
	db *gorm.DB
}

// NewGormListingRepository creates a new GORM-based ListingRepository.
func NewGormListingRepository(db *gorm.DB) ListingRepository {
	return &gormListingRepository{db: db}
}

func (r *gormListingRepository) GetByID(ctx context.Context, id uint) (*models.Listing, error) {
	var listing models.Listing
	err := r.db.WithContext(ctx).First(&listing, id).Error
	if err != nil {
		return nil, err
	}
	return &listing, nil
}
