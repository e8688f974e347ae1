package storage

import (
	"context"

	"gorm.io/gorm"

	"github.com/rishabh1721/WanderLust/internal/models"
)

// BookingRepository defines the interface for booking data operations needed
// by the messaging subsystem.
type BookingRepository interface {
	// GetByID loads a booking with its listing, so callers can check both
	// the guest and the listing owner.
	GetByID(ctx context.Context, id uint) (*models.Booking, error)
}

type gormBookingRepository struct {
	db *gorm.DB
}

// NewGormBookingRepository creates a new GORM-based BookingRepository.
func NewGormBookingRepository(db *gorm.DB) BookingRepository {
	return &gormBookingRepository{db: db}
}

func (r *gormBookingRepository) GetByID(ctx context.Context, id uint) (*models.Booking, error) {
	var booking models.Booking
	err := r.db.WithContext(ctx).Preload("Listing").First(&booking, id).Error
	if err != nil {
		return nil, err
	}
	return &booking, nil
}
