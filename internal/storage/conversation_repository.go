package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"github.com/rishabh1721/WanderLust/internal/models"
)

// InboxFilter narrows a user's conversation list.
type InboxFilter struct {
	// Tab is one of "all", "bookings", "inquiries", "direct", "support",
	// "archived". Empty means "all".
	Tab string
	// MatchUserIDs, when non-nil, keeps only conversations that include at
	// least one of these users besides the requester. Used for participant
	// name search: nil means no search, an empty slice matches nothing.
	MatchUserIDs []uint
	Limit        int
	Offset       int
}

// ConversationRepository defines data operations for conversations and
// per-participant state.
type ConversationRepository interface {
	// FindOrCreate returns the conversation matching conv's identity (type,
	// direct key, context anchors) or creates it together with its
	// participant rows. The bool result reports whether a row was created.
	FindOrCreate(ctx context.Context, conv *models.Conversation, participantIDs []uint) (*models.Conversation, bool, error)
	GetByID(ctx context.Context, id uint) (*models.Conversation, error)
	// GetByIDForUser loads a conversation with participants, context anchors
	// and last message, returning gorm.ErrRecordNotFound if the user is not
	// a participant.
	GetByIDForUser(ctx context.Context, id uint, userID uint) (*models.Conversation, error)
	// FindForUser lists the user's conversations newest-activity-first.
	FindForUser(ctx context.Context, userID uint, filter InboxFilter) ([]*models.Conversation, error)
	CountForUser(ctx context.Context, userID uint, filter InboxFilter) (int64, error)
	// Touch records message activity: sets the last message pointer, bumps
	// the conversation's updated_at, and for every participant except the
	// sender increments the unread count and clears the archived flag.
	Touch(ctx context.Context, conversationID uint, message *models.Message) error
	GetParticipant(ctx context.Context, conversationID uint, userID uint) (*models.ConversationParticipant, error)
	// MarkReadForUser zeroes the user's unread count and stamps the read
	// marker. Returns the number of unread messages that were cleared.
	MarkReadForUser(ctx context.Context, conversationID uint, userID uint) (int64, error)
	SetArchivedForUser(ctx context.Context, conversationID uint, userID uint, archived bool) error
	GetDB() *gorm.DB
}

// gormConversationRepository implements ConversationRepository using GORM.
type gormConversationRepository struct {
	db *gorm.DB
}

// NewGormConversationRepository creates a new GORM-backed ConversationRepository.
func NewGormConversationRepository(db *gorm.DB) ConversationRepository {
	return &gormConversationRepository{db: db}
}

// isUniqueViolation reports whether err is a PostgreSQL unique constraint
// violation (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// recoverDuplicate maps a failed conversation insert onto the race winner. A
// concurrent request can win the insert on the direct-key unique index; when
// that happened, re-query and return the winner instead of the error.
func recoverDuplicate(err error, find func() (*models.Conversation, error)) (*models.Conversation, bool, error) {
	if isUniqueViolation(err) {
		if winner, findErr := find(); findErr == nil && winner != nil {
			return winner, false, nil
		}
	}
	return nil, false, fmt.Errorf("failed to create conversation: %w", err)
}

func (r *gormConversationRepository) FindOrCreate(ctx context.Context, conv *models.Conversation, participantIDs []uint) (*models.Conversation, bool, error) {
	existing, err := r.findExisting(ctx, conv, participantIDs)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}

	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(conv).Error; err != nil {
			return err
		}
		now := time.Now()
		for _, id := range participantIDs {
			p := &models.ConversationParticipant{
				ConversationID: conv.ID,
				UserID:         id,
				JoinedAt:       now,
			}
			if err := tx.Create(p).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return recoverDuplicate(err, func() (*models.Conversation, error) {
			return r.findExisting(ctx, conv, participantIDs)
		})
	}

	created, err := r.GetByID(ctx, conv.ID)
	if err != nil {
		return nil, false, err
	}
	return created, true, nil
}

// findExisting looks up a conversation with the same identity as conv.
// Direct conversations match on the direct key; listing, booking and system
// conversations match on type, anchor and the full participant pair.
func (r *gormConversationRepository) findExisting(ctx context.Context, conv *models.Conversation, participantIDs []uint) (*models.Conversation, error) {
	query := r.db.WithContext(ctx).
		Preload("Participants").
		Preload("Users").
		Preload("Listing").
		Preload("Booking")

	if conv.DirectKey != nil {
		query = query.Where("direct_key = ?", *conv.DirectKey)
	} else {
		query = query.Where("conversations.type = ?", conv.Type)
		if conv.ListingID != nil {
			query = query.Where("listing_id = ?", *conv.ListingID)
		}
		if conv.BookingID != nil {
			query = query.Where("booking_id = ?", *conv.BookingID)
		}
		for i, id := range participantIDs {
			alias := fmt.Sprintf("cp%d", i)
			query = query.Joins(
				fmt.Sprintf("JOIN conversation_participants AS %s ON %s.conversation_id = conversations.id AND %s.user_id = ?", alias, alias, alias),
				id,
			)
		}
	}

	var conversation models.Conversation
	err := query.First(&conversation).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to look up conversation: %w", err)
	}
	return &conversation, nil
}

func (r *gormConversationRepository) GetByID(ctx context.Context, id uint) (*models.Conversation, error) {
	var conversation models.Conversation
	err := r.db.WithContext(ctx).
		Preload("Participants").
		Preload("Users").
		Preload("Listing").
		Preload("Booking").
		First(&conversation, id).Error
	if err != nil {
		return nil, err
	}
	return &conversation, nil
}

func (r *gormConversationRepository) GetByIDForUser(ctx context.Context, id uint, userID uint) (*models.Conversation, error) {
	var conversation models.Conversation
	err := r.db.WithContext(ctx).
		Preload("Participants").
		Preload("Users").
		Preload("Listing").
		Preload("Booking").
		Preload("LastMessage").
		Joins("JOIN conversation_participants AS me ON me.conversation_id = conversations.id AND me.user_id = ?", userID).
		First(&conversation, "conversations.id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &conversation, nil
}

// inboxQuery builds the shared join and filter clauses for FindForUser and
// CountForUser.
func (r *gormConversationRepository) inboxQuery(ctx context.Context, userID uint, filter InboxFilter) *gorm.DB {
	query := r.db.WithContext(ctx).
		Model(&models.Conversation{}).
		Joins("JOIN conversation_participants AS me ON me.conversation_id = conversations.id AND me.user_id = ?", userID)

	switch filter.Tab {
	case "archived":
		query = query.Where("me.is_archived = ?", true)
	case "bookings":
		query = query.Where("me.is_archived = ?", false).
			Where("conversations.type = ?", models.BookingConversation)
	case "inquiries":
		query = query.Where("me.is_archived = ?", false).
			Where("conversations.type = ?", models.ListingConversation)
	case "direct":
		query = query.Where("me.is_archived = ?", false).
			Where("conversations.type = ?", models.DirectConversation)
	case "support":
		query = query.Where("me.is_archived = ?", false).
			Where("conversations.type = ?", models.SystemConversation)
	default:
		query = query.Where("me.is_archived = ?", false)
	}

	if filter.MatchUserIDs != nil {
		query = query.Where(
			"EXISTS (SELECT 1 FROM conversation_participants AS other WHERE other.conversation_id = conversations.id AND other.user_id <> ? AND other.user_id IN ?)",
			userID, filter.MatchUserIDs,
		)
	}

	return query
}

func (r *gormConversationRepository) FindForUser(ctx context.Context, userID uint, filter InboxFilter) ([]*models.Conversation, error) {
	query := r.inboxQuery(ctx, userID, filter).
		Preload("Participants").
		Preload("Users").
		Preload("Listing").
		Preload("Booking").
		Preload("LastMessage").
		Order("conversations.updated_at DESC")

	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		query = query.Offset(filter.Offset)
	}

	var conversations []*models.Conversation
	err := query.Find(&conversations).Error
	return conversations, err
}

func (r *gormConversationRepository) CountForUser(ctx context.Context, userID uint, filter InboxFilter) (int64, error) {
	var count int64
	err := r.inboxQuery(ctx, userID, filter).Count(&count).Error
	return count, err
}

func (r *gormConversationRepository) Touch(ctx context.Context, conversationID uint, message *models.Message) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Model(&models.Conversation{}).
			Where("id = ?", conversationID).
			Updates(map[string]interface{}{
				"last_message_id": message.ID,
				"updated_at":      message.SentAt,
			}).Error
		if err != nil {
			return fmt.Errorf("failed to update conversation activity: %w", err)
		}

		// New activity reaches every other participant: their unread count
		// grows and an archived thread surfaces back into the inbox.
		err = tx.Model(&models.ConversationParticipant{}).
			Where("conversation_id = ? AND user_id <> ?", conversationID, message.SenderID).
			Updates(map[string]interface{}{
				"unread_count": gorm.Expr("unread_count + 1"),
				"is_archived":  false,
			}).Error
		if err != nil {
			return fmt.Errorf("failed to update participant state: %w", err)
		}
		return nil
	})
}

func (r *gormConversationRepository) GetParticipant(ctx context.Context, conversationID uint, userID uint) (*models.ConversationParticipant, error) {
	var participant models.ConversationParticipant
	err := r.db.WithContext(ctx).
		Where("conversation_id = ? AND user_id = ?", conversationID, userID).
		First(&participant).Error
	if err != nil {
		return nil, err
	}
	return &participant, nil
}

func (r *gormConversationRepository) MarkReadForUser(ctx context.Context, conversationID uint, userID uint) (int64, error) {
	participant, err := r.GetParticipant(ctx, conversationID, userID)
	if err != nil {
		return 0, err
	}
	cleared := participant.UnreadCount

	now := time.Now()
	err = r.db.WithContext(ctx).
		Model(&models.ConversationParticipant{}).
		Where("conversation_id = ? AND user_id = ?", conversationID, userID).
		Updates(map[string]interface{}{
			"unread_count":   0,
			"last_viewed_at": now,
		}).Error
	if err != nil {
		return 0, err
	}
	return cleared, nil
}

func (r *gormConversationRepository) SetArchivedForUser(ctx context.Context, conversationID uint, userID uint, archived bool) error {
	result := r.db.WithContext(ctx).
		Model(&models.ConversationParticipant{}).
		Where("conversation_id = ? AND user_id = ?", conversationID, userID).
		Update("is_archived", archived)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// GetDB returns the underlying database handle for transactional work.
func (r *gormConversationRepository) GetDB() *gorm.DB {
	return r.db
}
