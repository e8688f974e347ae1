package models

import "time"

// BookingStatus is the lifecycle state of a booking.
type BookingStatus string

const (
	BookingPending   BookingStatus = "pending"
	BookingConfirmed BookingStatus = "confirmed"
	BookingCancelled BookingStatus = "cancelled"
	BookingCompleted BookingStatus = "completed"
)

// Booking represents a reservation of a listing by a guest. The messaging
// subsystem uses bookings only to authorize booking-scoped conversations.
type Booking struct {
	BaseModel
	ListingID uint          `gorm:"index;not null" json:"listingId"`
	GuestID   uint          `gorm:"index;not null" json:"guestId"`
	Status    BookingStatus `gorm:"type:varchar(20);default:'pending'" json:"status"`
	CheckIn   time.Time     `json:"checkIn"`
	CheckOut  time.Time     `json:"checkOut"`

	Listing Listing `gorm:"foreignKey:ListingID" json:"listing,omitempty"`
	Guest   User    `gorm:"foreignKey:GuestID" json:"guest,omitempty"`
}

// Involves reports whether the user is a party to the booking, either as the
// guest or as the owner of the booked listing.
func (b *Booking) Involves(userID uint) bool {
	return b.GuestID == userID || b.Listing.OwnerID == userID
}

// TableName specifies the table name for the Booking model.
func (Booking) TableName() string {
	return "bookings"
}
