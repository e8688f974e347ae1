package models

import (
	"sort"
	"strconv"
	"strings"
	"time"
)

// ConversationType classifies what a conversation is about.
type ConversationType string

const (
	DirectConversation  ConversationType = "direct"  // free-standing user-to-user thread
	ListingConversation ConversationType = "listing" // inquiry about a listing
	BookingConversation ConversationType = "booking" // tied to a booking
	SystemConversation  ConversationType = "system"  // support / platform thread
	GroupConversation   ConversationType = "group"   // more than two participants
)

// ConversationStatus is the shared lifecycle state of a conversation.
type ConversationStatus string

const (
	ConversationActive   ConversationStatus = "active"
	ConversationResolved ConversationStatus = "resolved"
	ConversationBlocked  ConversationStatus = "blocked"
	ConversationArchived ConversationStatus = "archived"
)

// Conversation represents a message thread between two or more users,
// optionally anchored to a listing or a booking.
type Conversation struct {
	BaseModel
	Type   ConversationType   `gorm:"type:varchar(20);not null;index" json:"type"`
	Status ConversationStatus `gorm:"type:varchar(20);not null;default:'active'" json:"status"`

	// Title is an optional stored name, used for system and group threads.
	// Empty means the inbox derives a title from the other participants.
	Title string `gorm:"type:varchar(255)" json:"title,omitempty"`

	// Context anchors. At most one of these is set, depending on Type.
	ListingID *uint `gorm:"index" json:"listingId,omitempty"`
	BookingID *uint `gorm:"index" json:"bookingId,omitempty"`

	// DirectKey uniquely identifies the participant pair of a direct
	// conversation ("<lowID>:<highID>"). It is null for every other type, so
	// the unique index only constrains direct threads.
	DirectKey *string `gorm:"type:varchar(64);uniqueIndex" json:"-"`

	// LastMessageID points at the newest message for quick inbox rendering.
	// Null until the first message arrives.
	LastMessageID *uint `gorm:"index" json:"lastMessageId,omitempty"`

	Users        []*User                   `gorm:"many2many:conversation_participants;" json:"users,omitempty"`
	Participants []ConversationParticipant `gorm:"foreignKey:ConversationID" json:"participants,omitempty"`
	Messages     []Message                 `gorm:"foreignKey:ConversationID" json:"messages,omitempty"`
	Listing      *Listing                  `gorm:"foreignKey:ListingID" json:"listing,omitempty"`
	Booking      *Booking                  `gorm:"foreignKey:BookingID" json:"booking,omitempty"`
	LastMessage  *Message                  `gorm:"foreignKey:LastMessageID" json:"lastMessage,omitempty"`
}

// TableName specifies the table name for the Conversation model.
func (Conversation) TableName() string {
	return "conversations"
}

// IncludesUser reports whether the user is a participant. Participants must
// be loaded for this to be meaningful.
func (c *Conversation) IncludesUser(userID uint) bool {
	for i := range c.Participants {
		if c.Participants[i].UserID == userID {
			return true
		}
	}
	return false
}

// ParticipantState returns the participant row for the user, or nil if the
// user is not part of the conversation.
func (c *Conversation) ParticipantState(userID uint) *ConversationParticipant {
	for i := range c.Participants {
		if c.Participants[i].UserID == userID {
			return &c.Participants[i]
		}
	}
	return nil
}

// OtherParticipantIDs returns the IDs of every participant except the given
// user, in participant order.
func (c *Conversation) OtherParticipantIDs(userID uint) []uint {
	ids := make([]uint, 0, len(c.Participants))
	for i := range c.Participants {
		if c.Participants[i].UserID != userID {
			ids = append(ids, c.Participants[i].UserID)
		}
	}
	return ids
}

// NormalizeParticipantIDs sorts the IDs ascending and removes duplicates.
func NormalizeParticipantIDs(ids []uint) []uint {
	out := make([]uint, 0, len(ids))
	seen := make(map[uint]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ParticipantKey builds the DirectKey value for a normalized pair of IDs.
func ParticipantKey(ids []uint) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatUint(uint64(id), 10)
	}
	return strings.Join(parts, ":")
}

// ConversationParticipant links a user to a conversation and carries that
// user's private view of it: unread count, archive flag and read marker.
type ConversationParticipant struct {
	ConversationID uint       `gorm:"primaryKey;autoIncrement:false" json:"conversationId"`
	UserID         uint       `gorm:"primaryKey;autoIncrement:false" json:"userId"`
	JoinedAt       time.Time  `json:"joinedAt"`
	UnreadCount    int64      `gorm:"not null;default:0" json:"unreadCount"`
	IsArchived     bool       `gorm:"not null;default:false" json:"isArchived"`
	LastViewedAt   *time.Time `json:"lastViewedAt,omitempty"`

	User         User         `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Conversation Conversation `gorm:"foreignKey:ConversationID" json:"-"`
}

// TableName specifies the table name for the ConversationParticipant model.
func (ConversationParticipant) TableName() string {
	return "conversation_participants"
}
