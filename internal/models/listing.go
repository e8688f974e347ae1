package models

// Listing represents a property that can be booked. Only the fields the
// messaging subsystem needs are modeled here; the marketplace owns the rest.
type Listing struct {
	BaseModel
	OwnerID  uint   `gorm:"index;not null" json:"ownerId"`
	Title    string `gorm:"type:varchar(200);not null" json:"title"`
	Location string `gorm:"type:varchar(200)" json:"location,omitempty"`
	ImageURL string `gorm:"type:varchar(255)" json:"imageUrl,omitempty"`

	Owner User `gorm:"foreignKey:OwnerID" json:"owner,omitempty"`
}

// TableName specifies the table name for the Listing model.
func (Listing) TableName() string {
	return "listings"
}
