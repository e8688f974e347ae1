package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/rishabh1721/WanderLust/internal/apperrors"
	"github.com/rishabh1721/WanderLust/internal/broadcast"
	"github.com/rishabh1721/WanderLust/internal/config"
	"github.com/rishabh1721/WanderLust/internal/models"
	"github.com/rishabh1721/WanderLust/internal/redis"
	"github.com/rishabh1721/WanderLust/internal/storage"
	"github.com/rishabh1721/WanderLust/internal/ws"
)

// allowedDocumentTypes lists the non-image mime types accepted as
// attachments. Images are allowed by prefix.
var allowedDocumentTypes = map[string]bool{
	"application/pdf":    true,
	"application/msword": true,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": true,
	"application/vnd.ms-excel": true,
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": true,
	"text/plain": true,
}

// IsAllowedAttachmentType reports whether the mime type may be uploaded.
func IsAllowedAttachmentType(mimeType string) bool {
	if strings.HasPrefix(mimeType, "image/") {
		return true
	}
	return allowedDocumentTypes[mimeType]
}

// AttachmentUpload carries an incoming attachment.
type AttachmentUpload struct {
	Reader   io.Reader
	FileName string
	MimeType string
	Size     int64
}

// SendMessageInput is the payload for sending into a known conversation.
type SendMessageInput struct {
	Content    string
	Attachment *AttachmentUpload
}

// StartMessageInput is the payload for messaging a user directly, optionally
// anchored to a listing or booking.
type StartMessageInput struct {
	SendMessageInput
	ListingID *uint
	BookingID *uint
}

// InboxQuery selects and pages a user's conversation list.
type InboxQuery struct {
	// Tab is one of "all", "bookings", "inquiries", "direct", "support",
	// "archived".
	Tab      string
	Search   string
	Page     int
	PageSize int
}

// MessagingService is the application core of the messaging subsystem: it
// owns conversation resolution, message validation and persistence, read and
// archive state, and emits realtime events for every mutation.
type MessagingService interface {
	// OpenConversation ensures the conversation with another user exists for
	// the given context and returns its first page, without sending anything.
	// Gives clients a canonical conversation id to subscribe to before first
	// contact.
	OpenConversation(ctx context.Context, userID uint, recipientID uint, listingID *uint, bookingID *uint) (*ConversationPage, error)
	// SendToUser resolves (or creates) the conversation between sender and
	// recipient for the given context and delivers the message into it.
	SendToUser(ctx context.Context, senderID uint, recipientID uint, input StartMessageInput) (*models.Message, *models.Conversation, error)
	// SendToConversation delivers a message into an existing conversation
	// the sender participates in.
	SendToConversation(ctx context.Context, senderID uint, conversationID uint, input SendMessageInput) (*models.Message, error)
	Inbox(ctx context.Context, userID uint, query InboxQuery) (*InboxView, error)
	// GetConversationPage returns one page of a conversation, oldest first,
	// and marks the conversation read for the viewer as a side effect.
	GetConversationPage(ctx context.Context, userID uint, conversationID uint, page int, pageSize int) (*ConversationPage, error)
	// MarkConversationRead clears the user's unread state and returns how
	// many messages were newly marked read.
	MarkConversationRead(ctx context.Context, userID uint, conversationID uint) (int64, error)
	SetConversationArchived(ctx context.Context, userID uint, conversationID uint, archived bool) error
	// DeleteMessageForUser hides a message from the user's own view only.
	DeleteMessageForUser(ctx context.Context, userID uint, messageID uint) error
	UnreadTotal(ctx context.Context, userID uint) (int64, error)
	// VerifyParticipant returns nil only when the user belongs to the
	// conversation. Used by the realtime gateway before joins and relays.
	VerifyParticipant(ctx context.Context, userID uint, conversationID uint) error
}

type messagingService struct {
	convoRepo   storage.ConversationRepository
	msgRepo     storage.MessageRepository
	userRepo    storage.UserRepository
	listingRepo storage.ListingRepository
	bookingRepo storage.BookingRepository
	blobStore   storage.BlobStore
	broadcaster broadcast.Broadcaster
	presence    redis.Presence
	cfg         config.Config
}

// NewMessagingService creates a new MessagingService instance.
func NewMessagingService(
	convoRepo storage.ConversationRepository,
	msgRepo storage.MessageRepository,
	userRepo storage.UserRepository,
	listingRepo storage.ListingRepository,
	bookingRepo storage.BookingRepository,
	blobStore storage.BlobStore,
	broadcaster broadcast.Broadcaster,
	presence redis.Presence,
	cfg config.Config,
) MessagingService {
	return &messagingService{
		convoRepo:   convoRepo,
		msgRepo:     msgRepo,
		userRepo:    userRepo,
		listingRepo: listingRepo,
		bookingRepo: bookingRepo,
		blobStore:   blobStore,
		broadcaster: broadcaster,
		presence:    presence,
		cfg:         cfg,
	}
}

// ensureConversation validates the pairing and resolves the canonical
// conversation for it. Shared by the open and send paths.
func (s *messagingService) ensureConversation(ctx context.Context, senderID uint, recipientID uint, listingID *uint, bookingID *uint) (*models.Conversation, error) {
	if senderID == recipientID {
		return nil, apperrors.New(apperrors.KindValidation, "cannot message yourself")
	}

	recipient, err := s.userRepo.GetByID(ctx, recipientID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.New(apperrors.KindNotFound, "recipient not found")
		}
		return nil, apperrors.Wrap(apperrors.KindStorageFailure, "failed to load recipient", err)
	}

	if err := s.checkBlocked(ctx, senderID, recipientID); err != nil {
		return nil, err
	}

	return s.resolveConversation(ctx, senderID, recipient.ID, listingID, bookingID)
}

func (s *messagingService) OpenConversation(ctx context.Context, userID uint, recipientID uint, listingID *uint, bookingID *uint) (*ConversationPage, error) {
	conv, err := s.ensureConversation(ctx, userID, recipientID, listingID, bookingID)
	if err != nil {
		return nil, err
	}
	return s.GetConversationPage(ctx, userID, conv.ID, 1, 0)
}

func (s *messagingService) SendToUser(ctx context.Context, senderID uint, recipientID uint, input StartMessageInput) (*models.Message, *models.Conversation, error) {
	conv, err := s.ensureConversation(ctx, senderID, recipientID, input.ListingID, input.BookingID)
	if err != nil {
		return nil, nil, err
	}

	message, err := s.deliver(ctx, conv, senderID, input.SendMessageInput)
	if err != nil {
		return nil, nil, err
	}
	return message, conv, nil
}

func (s *messagingService) SendToConversation(ctx context.Context, senderID uint, conversationID uint, input SendMessageInput) (*models.Message, error) {
	conv, err := s.convoRepo.GetByIDForUser(ctx, conversationID, senderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.New(apperrors.KindNotFound, "conversation not found")
		}
		return nil, apperrors.Wrap(apperrors.KindStorageFailure, "failed to load conversation", err)
	}

	if conv.Status == models.ConversationBlocked {
		return nil, apperrors.New(apperrors.KindForbidden, "conversation is blocked")
	}
	for _, otherID := range conv.OtherParticipantIDs(senderID) {
		if err := s.checkBlocked(ctx, senderID, otherID); err != nil {
			return nil, err
		}
	}

	return s.deliver(ctx, conv, senderID, input)
}

// checkBlocked rejects the send when either side has blocked the other.
func (s *messagingService) checkBlocked(ctx context.Context, senderID uint, otherID uint) error {
	blocked, err := s.userRepo.IsBlocked(ctx, otherID, senderID)
	if err != nil {
		return apperrors.Wrap(apperrors.KindStorageFailure, "failed to check block state", err)
	}
	if blocked {
		return apperrors.New(apperrors.KindForbidden, "you cannot message this user")
	}
	blocked, err = s.userRepo.IsBlocked(ctx, senderID, otherID)
	if err != nil {
		return apperrors.Wrap(apperrors.KindStorageFailure, "failed to check block state", err)
	}
	if blocked {
		return apperrors.New(apperrors.KindForbidden, "you have blocked this user")
	}
	return nil
}

// resolveConversation finds or creates the conversation between the two
// users for the given context. Listing threads require the recipient to own
// the listing; booking threads require both parties to be involved in the
// booking.
func (s *messagingService) resolveConversation(ctx context.Context, senderID uint, recipientID uint, listingID *uint, bookingID *uint) (*models.Conversation, error) {
	participantIDs := models.NormalizeParticipantIDs([]uint{senderID, recipientID})
	if len(participantIDs) < 2 {
		return nil, apperrors.New(apperrors.KindValidation, "a conversation needs at least two participants")
	}

	conv := &models.Conversation{
		Type:   models.DirectConversation,
		Status: models.ConversationActive,
	}

	switch {
	case bookingID != nil:
		booking, err := s.bookingRepo.GetByID(ctx, *bookingID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, apperrors.New(apperrors.KindNotFound, "booking not found")
			}
			return nil, apperrors.Wrap(apperrors.KindStorageFailure, "failed to load booking", err)
		}
		if !booking.Involves(senderID) || !booking.Involves(recipientID) {
			return nil, apperrors.New(apperrors.KindForbidden, "both users must be party to the booking")
		}
		conv.Type = models.BookingConversation
		conv.BookingID = bookingID
		conv.ListingID = &booking.ListingID
	case listingID != nil:
		listing, err := s.listingRepo.GetByID(ctx, *listingID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, apperrors.New(apperrors.KindNotFound, "listing not found")
			}
			return nil, apperrors.Wrap(apperrors.KindStorageFailure, "failed to load listing", err)
		}
		if listing.OwnerID != recipientID {
			return nil, apperrors.New(apperrors.KindForbidden, "listing inquiries must go to the listing owner")
		}
		conv.Type = models.ListingConversation
		conv.ListingID = listingID
	default:
		key := models.ParticipantKey(participantIDs)
		conv.DirectKey = &key
	}

	resolved, _, err := s.convoRepo.FindOrCreate(ctx, conv, participantIDs)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindStorageFailure, "failed to resolve conversation", err)
	}
	return resolved, nil
}

// deliver validates, persists and fans out a message into a conversation the
// sender is already known to belong to.
func (s *messagingService) deliver(ctx context.Context, conv *models.Conversation, senderID uint, input SendMessageInput) (*models.Message, error) {
	content := strings.TrimSpace(input.Content)
	if content == "" && input.Attachment == nil {
		return nil, apperrors.New(apperrors.KindValidation, "message needs text or an attachment")
	}
	if len([]rune(content)) > models.MaxContentLength {
		return nil, apperrors.Validationf("message exceeds %d characters", models.MaxContentLength)
	}

	message := &models.Message{
		ConversationID: conv.ID,
		SenderID:       senderID,
		Type:           models.TextMessage,
		Status:         models.MessageSent,
		Content:        content,
		SentAt:         time.Now(),
	}

	if input.Attachment != nil {
		attachment, err := s.storeAttachment(ctx, input.Attachment)
		if err != nil {
			return nil, err
		}
		message.Attachment = *attachment
		message.Type = attachment.TypeFor()
		// A message carries either text or an attachment, never both. The
		// stored row enforces it, not just request validation.
		message.Content = ""
	}

	if err := s.msgRepo.Create(ctx, message); err != nil {
		s.recordFailedSend(ctx, conv.ID, senderID, content)
		return nil, apperrors.Wrap(apperrors.KindStorageFailure, "failed to save message", err)
	}

	if err := s.convoRepo.Touch(ctx, conv.ID, message); err != nil {
		return nil, apperrors.Wrap(apperrors.KindStorageFailure, "failed to record conversation activity", err)
	}

	recipientIDs := conv.OtherParticipantIDs(senderID)
	if err := s.userRepo.IncrementMessagingStats(ctx, senderID, recipientIDs); err != nil {
		log.Printf("Failed to update messaging stats for user %d: %v", senderID, err)
	}

	s.fanOutMessage(ctx, conv, message, recipientIDs)
	return message, nil
}

// recordFailedSend keeps a failed audit row so a lost message is traceable.
// Best effort: the primary failure is what gets reported.
func (s *messagingService) recordFailedSend(ctx context.Context, conversationID uint, senderID uint, content string) {
	audit := &models.Message{
		ConversationID: conversationID,
		SenderID:       senderID,
		Type:           models.TextMessage,
		Status:         models.MessageFailed,
		Content:        content,
		SentAt:         time.Now(),
	}
	if err := s.msgRepo.Create(ctx, audit); err != nil {
		log.Printf("Failed to record failed send audit for conversation %d: %v", conversationID, err)
	}
}

func (s *messagingService) storeAttachment(ctx context.Context, upload *AttachmentUpload) (*models.Attachment, error) {
	maxBytes := s.cfg.Storage.MaxFileSizeMB * 1024 * 1024
	if upload.Size > maxBytes {
		return nil, apperrors.Validationf("attachment exceeds %dMB limit", s.cfg.Storage.MaxFileSizeMB)
	}
	if !IsAllowedAttachmentType(upload.MimeType) {
		return nil, apperrors.Validationf("attachment type %q is not allowed", upload.MimeType)
	}

	info, err := s.blobStore.Save(ctx, upload.Reader, upload.Size, upload.FileName, upload.MimeType)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindStorageFailure, "failed to store attachment", err)
	}

	return &models.Attachment{
		Name:     info.FileName,
		URL:      info.URL,
		MimeType: info.MimeType,
		Size:     info.Size,
	}, nil
}

// fanOutMessage emits the newMessage event into the conversation room and a
// messageNotification to each recipient's user channel.
func (s *messagingService) fanOutMessage(ctx context.Context, conv *models.Conversation, message *models.Message, recipientIDs []uint) {
	view := buildMessageView(message, 0, nil)
	err := s.broadcaster.Publish(ctx, ws.ConversationChannel(conv.ID), ws.Event{
		Name: ws.EventNewMessage,
		Data: map[string]interface{}{
			"conversationId": conv.ID,
			"message":        view,
		},
	})
	if err != nil {
		log.Printf("Failed to publish newMessage for conversation %d: %v", conv.ID, err)
	}

	notification := map[string]interface{}{
		"conversationId": conv.ID,
		"senderId":       message.SenderID,
		"snippet":        message.Snippet(inboxSnippetLength),
		"sentAt":         message.SentAt,
	}
	for _, recipientID := range recipientIDs {
		err := s.broadcaster.Publish(ctx, ws.UserChannel(recipientID), ws.Event{
			Name: ws.EventMessageNotification,
			Data: notification,
		})
		if err != nil {
			log.Printf("Failed to publish messageNotification to user %d: %v", recipientID, err)
		}
	}
}

func (s *messagingService) Inbox(ctx context.Context, userID uint, query InboxQuery) (*InboxView, error) {
	if query.Page < 1 {
		query.Page = 1
	}
	if query.PageSize < 1 {
		query.PageSize = 20
	}

	filter := storage.InboxFilter{
		Tab:    query.Tab,
		Limit:  query.PageSize,
		Offset: (query.Page - 1) * query.PageSize,
	}
	if search := strings.TrimSpace(query.Search); search != "" {
		matchIDs, err := s.userRepo.SearchIDsByName(ctx, search, userID)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.KindStorageFailure, "failed to search participants", err)
		}
		if matchIDs == nil {
			matchIDs = []uint{}
		}
		filter.MatchUserIDs = matchIDs
	}

	conversations, err := s.convoRepo.FindForUser(ctx, userID, filter)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindStorageFailure, "failed to load inbox", err)
	}
	total, err := s.convoRepo.CountForUser(ctx, userID, filter)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindStorageFailure, "failed to count inbox", err)
	}
	unreadTotal, err := s.msgRepo.CountAllUnread(ctx, userID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindStorageFailure, "failed to count unread", err)
	}

	online := s.resolvePresence(ctx, conversations, userID)

	now := time.Now()
	view := &InboxView{
		Items:       make([]InboxItem, 0, len(conversations)),
		Total:       total,
		UnreadTotal: unreadTotal,
		Page:        query.Page,
		PageSize:    query.PageSize,
	}
	for _, conv := range conversations {
		view.Items = append(view.Items, buildInboxItem(conv, userID, online, now))
	}
	return view, nil
}

// resolvePresence batch-checks online status for every other participant in
// the given conversations. Presence failures degrade to everyone-offline.
func (s *messagingService) resolvePresence(ctx context.Context, conversations []*models.Conversation, viewerID uint) map[uint]bool {
	if s.presence == nil {
		return nil
	}
	idSet := make(map[uint]struct{})
	for _, conv := range conversations {
		for _, id := range conv.OtherParticipantIDs(viewerID) {
			idSet[id] = struct{}{}
		}
	}
	ids := make([]uint, 0, len(idSet))
	for id := range idSet {
		ids = append(ids, id)
	}
	online, err := s.presence.OnlineSet(ctx, ids)
	if err != nil {
		log.Printf("Failed to resolve presence: %v", err)
		return nil
	}
	return online
}

func (s *messagingService) GetConversationPage(ctx context.Context, userID uint, conversationID uint, page int, pageSize int) (*ConversationPage, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 30
	}

	conv, err := s.convoRepo.GetByIDForUser(ctx, conversationID, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.New(apperrors.KindNotFound, "conversation not found")
		}
		return nil, apperrors.Wrap(apperrors.KindStorageFailure, "failed to load conversation", err)
	}

	offset := (page - 1) * pageSize
	messages, err := s.msgRepo.FindVisibleToUser(ctx, conversationID, userID, pageSize, offset)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindStorageFailure, "failed to load messages", err)
	}
	total, err := s.msgRepo.CountVisibleToUser(ctx, conversationID, userID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindStorageFailure, "failed to count messages", err)
	}

	// Viewing a page counts as reading it.
	if _, err := s.MarkConversationRead(ctx, userID, conversationID); err != nil {
		log.Printf("Failed to mark conversation %d read for user %d: %v", conversationID, userID, err)
	}

	online := s.resolvePresence(ctx, []*models.Conversation{conv}, userID)

	result := &ConversationPage{
		Conversation: buildInboxItem(conv, userID, online, time.Now()),
		Messages:     make([]MessageView, 0, len(messages)),
		Total:        total,
		Page:         page,
		PageSize:     pageSize,
	}
	// Storage returns newest first; render oldest first.
	for i := len(messages) - 1; i >= 0; i-- {
		result.Messages = append(result.Messages, buildMessageView(messages[i], userID, online))
	}
	return result, nil
}

func (s *messagingService) MarkConversationRead(ctx context.Context, userID uint, conversationID uint) (int64, error) {
	cleared, err := s.convoRepo.MarkReadForUser(ctx, conversationID, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, apperrors.New(apperrors.KindNotFound, "conversation not found")
		}
		return 0, apperrors.Wrap(apperrors.KindStorageFailure, "failed to mark conversation read", err)
	}
	if _, err := s.msgRepo.MarkAllRead(ctx, conversationID, userID); err != nil {
		return 0, apperrors.Wrap(apperrors.KindStorageFailure, "failed to mark messages read", err)
	}

	if cleared > 0 {
		event := ws.Event{
			Name: ws.EventMessagesRead,
			Data: map[string]interface{}{
				"conversationId": conversationID,
				"readerId":       userID,
				"count":          cleared,
			},
		}
		if err := s.broadcaster.Publish(ctx, ws.ConversationChannel(conversationID), event); err != nil {
			log.Printf("Failed to publish messagesRead for conversation %d: %v", conversationID, err)
		}
		// Personal channel too, so the reader's other devices clear badges.
		if err := s.broadcaster.Publish(ctx, ws.UserChannel(userID), event); err != nil {
			log.Printf("Failed to publish messagesRead to user %d: %v", userID, err)
		}
	}
	return cleared, nil
}

func (s *messagingService) SetConversationArchived(ctx context.Context, userID uint, conversationID uint, archived bool) error {
	err := s.convoRepo.SetArchivedForUser(ctx, conversationID, userID, archived)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.New(apperrors.KindNotFound, "conversation not found")
		}
		return apperrors.Wrap(apperrors.KindStorageFailure, "failed to update archive state", err)
	}
	return nil
}

func (s *messagingService) DeleteMessageForUser(ctx context.Context, userID uint, messageID uint) error {
	message, err := s.msgRepo.GetByID(ctx, messageID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.New(apperrors.KindNotFound, "message not found")
		}
		return apperrors.Wrap(apperrors.KindStorageFailure, "failed to load message", err)
	}

	if err := s.VerifyParticipant(ctx, userID, message.ConversationID); err != nil {
		return err
	}

	if err := s.msgRepo.SoftDeleteForUser(ctx, messageID, userID); err != nil {
		return apperrors.Wrap(apperrors.KindStorageFailure, "failed to delete message", err)
	}

	event := ws.Event{
		Name: ws.EventMessageDeletedForUser,
		Data: map[string]interface{}{
			"conversationId": message.ConversationID,
			"messageId":      messageID,
			"deletedBy":      userID,
		},
	}
	if err := s.broadcaster.Publish(ctx, ws.ConversationChannel(message.ConversationID), event); err != nil {
		log.Printf("Failed to publish messageDeletedForUser for message %d: %v", messageID, err)
	}
	// Personal channel too, so the user's other open tabs drop the message.
	if err := s.broadcaster.Publish(ctx, ws.UserChannel(userID), event); err != nil {
		log.Printf("Failed to publish messageDeletedForUser to user %d: %v", userID, err)
	}
	return nil
}

func (s *messagingService) UnreadTotal(ctx context.Context, userID uint) (int64, error) {
	total, err := s.msgRepo.CountAllUnread(ctx, userID)
	if err != nil {
		return 0, apperrors.Wrap(apperrors.KindStorageFailure, "failed to count unread", err)
	}
	return total, nil
}

func (s *messagingService) VerifyParticipant(ctx context.Context, userID uint, conversationID uint) error {
	_, err := s.convoRepo.GetParticipant(ctx, conversationID, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.New(apperrors.KindForbidden, fmt.Sprintf("not a participant of conversation %d", conversationID))
		}
		return apperrors.Wrap(apperrors.KindStorageFailure, "failed to check participant", err)
	}
	return nil
}
