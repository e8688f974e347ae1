package services

import (
	"fmt"
	"time"

	"github.com/rishabh1721/WanderLust/internal/models"
)

const inboxSnippetLength = 80

// ListingSummary is the inbox-facing projection of a listing.
type ListingSummary struct {
	ID       uint   `json:"id"`
	Title    string `json:"title"`
	Location string `json:"location,omitempty"`
	ImageURL string `json:"imageUrl,omitempty"`
}

// BookingSummary is the inbox-facing projection of a booking.
type BookingSummary struct {
	ID       uint                 `json:"id"`
	Status   models.BookingStatus `json:"status"`
	CheckIn  time.Time            `json:"checkIn"`
	CheckOut time.Time            `json:"checkOut"`
}

// InboxItem is one row of a user's conversation list.
type InboxItem struct {
	ConversationID    uint                      `json:"conversationId"`
	Type              models.ConversationType   `json:"type"`
	Status            models.ConversationStatus `json:"status"`
	Title             string                    `json:"title"`
	OtherParticipants []models.UserBasicInfo    `json:"otherParticipants"`
	LastMessage       string                    `json:"lastMessage,omitempty"`
	LastActivityAt    time.Time                 `json:"lastActivityAt"`
	LastActivityAgo   string                    `json:"lastActivityAgo"`
	UnreadCount       int64                     `json:"unreadCount"`
	IsArchived        bool                      `json:"isArchived"`
	Listing           *ListingSummary           `json:"listing,omitempty"`
	Booking           *BookingSummary           `json:"booking,omitempty"`
}

// InboxView is a page of a user's inbox.
type InboxView struct {
	Items       []InboxItem `json:"items"`
	Total       int64       `json:"total"`
	UnreadTotal int64       `json:"unreadTotal"`
	Page        int         `json:"page"`
	PageSize    int         `json:"pageSize"`
}

// MessageView is a message as rendered inside a conversation page.
type MessageView struct {
	ID         uint                 `json:"id"`
	SenderID   uint                 `json:"senderId"`
	Sender     models.UserBasicInfo `json:"sender"`
	Type       models.MessageType   `json:"type"`
	Status     models.MessageStatus `json:"status"`
	Content    string               `json:"content,omitempty"`
	Attachment *models.Attachment   `json:"attachment,omitempty"`
	SentAt     time.Time            `json:"sentAt"`
	Mine       bool                 `json:"mine"`
}

// ConversationPage is one page of a conversation's messages, oldest first,
// together with the conversation header.
type ConversationPage struct {
	Conversation InboxItem     `json:"conversation"`
	Messages     []MessageView `json:"messages"`
	Total        int64         `json:"total"`
	Page         int           `json:"page"`
	PageSize     int           `json:"pageSize"`
}

// buildInboxItem projects a loaded conversation into the viewer's inbox row.
// online resolves participant presence; nil means everyone renders offline.
func buildInboxItem(conv *models.Conversation, viewerID uint, online map[uint]bool, now time.Time) InboxItem {
	item := InboxItem{
		ConversationID: conv.ID,
		Type:           conv.Type,
		Status:         conv.Status,
		Title:          conv.Title,
		LastActivityAt: conv.UpdatedAt,
	}

	var titleUser *models.User
	for _, user := range conv.Users {
		if user.ID == viewerID {
			continue
		}
		info := user.BasicInfo()
		if online != nil {
			info.IsOnline = online[user.ID]
		}
		item.OtherParticipants = append(item.OtherParticipants, info)
		if titleUser == nil {
			titleUser = user
		}
	}
	if item.Title == "" && titleUser != nil {
		item.Title = titleUser.DisplayName()
	}

	if state := conv.ParticipantState(viewerID); state != nil {
		item.UnreadCount = state.UnreadCount
		item.IsArchived = state.IsArchived
	}

	if conv.LastMessage != nil {
		item.LastMessage = conv.LastMessage.Snippet(inboxSnippetLength)
		item.LastActivityAt = conv.LastMessage.SentAt
	}
	item.LastActivityAgo = timeAgo(item.LastActivityAt, now)

	if conv.Listing != nil {
		item.Listing = &ListingSummary{
			ID:       conv.Listing.ID,
			Title:    conv.Listing.Title,
			Location: conv.Listing.Location,
			ImageURL: conv.Listing.ImageURL,
		}
		if item.Title == "" {
			item.Title = conv.Listing.Title
		}
	}
	if conv.Booking != nil {
		item.Booking = &BookingSummary{
			ID:       conv.Booking.ID,
			Status:   conv.Booking.Status,
			CheckIn:  conv.Booking.CheckIn,
			CheckOut: conv.Booking.CheckOut,
		}
	}

	return item
}

// buildMessageView projects a message for the given viewer.
func buildMessageView(msg *models.Message, viewerID uint, online map[uint]bool) MessageView {
	view := MessageView{
		ID:       msg.ID,
		SenderID: msg.SenderID,
		Sender:   msg.Sender.BasicInfo(),
		Type:     msg.Type,
		Status:   msg.Status,
		Content:  msg.Content,
		SentAt:   msg.SentAt,
		Mine:     msg.SenderID == viewerID,
	}
	if online != nil {
		view.Sender.IsOnline = online[msg.SenderID]
	}
	if msg.Attachment.Present() {
		attachment := msg.Attachment
		view.Attachment = &attachment
	}
	return view
}

// timeAgo renders a timestamp the way the inbox shows activity: relative for
// anything within a week, a plain date beyond that.
func timeAgo(t time.Time, now time.Time) string {
	if t.IsZero() {
		return ""
	}
	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	case d < 7*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	default:
		return t.Format("Jan 2, 2006")
	}
}
