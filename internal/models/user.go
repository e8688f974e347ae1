package models

import "time"

// User represents a marketplace account. A user can be both a guest and a
// host; there is no separate host entity.
type User struct {
	BaseModel
	Username     string     `gorm:"type:varchar(100);uniqueIndex;not null" json:"username"`
	PasswordHash string     `gorm:"type:varchar(255);not null" json:"-"`
	Email        string     `gorm:"type:varchar(100);uniqueIndex" json:"email,omitempty"`
	FullName     string     `gorm:"type:varchar(150)" json:"fullName,omitempty"`
	AvatarURL    string     `gorm:"type:varchar(255)" json:"avatarUrl,omitempty"`
	Bio          string     `gorm:"type:text" json:"bio,omitempty"`
	LastSeenAt   *time.Time `json:"lastSeenAt,omitempty"`

	// Denormalized messaging counters, maintained by the message store.
	MessagesSent     int64 `gorm:"default:0" json:"-"`
	MessagesReceived int64 `gorm:"default:0" json:"-"`

	BlockedUsers  []*User         `gorm:"many2many:user_blocks;joinForeignKey:UserID;joinReferences:BlockedUserID" json:"-"`
	Conversations []*Conversation `gorm:"many2many:conversation_participants;" json:"conversations,omitempty"`
	Messages      []Message       `gorm:"foreignKey:SenderID" json:"messages,omitempty"`
}

// UserBasicInfo holds minimal public information about a user, used when
// rendering conversation participants and message senders.
type UserBasicInfo struct {
	ID        uint   `json:"id"`
	Username  string `json:"username"`
	FullName  string `json:"fullName,omitempty"`
	AvatarURL string `json:"avatarUrl,omitempty"`
	IsOnline  bool   `json:"isOnline"`
}

// BasicInfo projects the user onto its public fields. Online status is
// resolved separately from presence and defaults to false here.
func (u *User) BasicInfo() UserBasicInfo {
	return UserBasicInfo{
		ID:        u.ID,
		Username:  u.Username,
		FullName:  u.FullName,
		AvatarURL: u.AvatarURL,
	}
}

// DisplayName returns the name shown in conversation lists.
func (u *User) DisplayName() string {
	if u.FullName != "" {
		return u.FullName
	}
	return u.Username
}

// TableName specifies the table name for the User model.
func (User) TableName() string {
	return "users"
}
