package storage

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/rishabh1721/WanderLust/internal/models"
)

// MessageRepository defines data operations for messages and their per-user
// deletion records.
type MessageRepository interface {
	Create(ctx context.Context, message *models.Message) error
	GetByID(ctx context.Context, id uint) (*models.Message, error)
	// FindVisibleToUser pages messages in a conversation newest-first,
	// skipping messages the user deleted for themselves and failed audit
	// records.
	FindVisibleToUser(ctx context.Context, conversationID uint, userID uint, limit int, offset int) ([]*models.Message, error)
	CountVisibleToUser(ctx context.Context, conversationID uint, userID uint) (int64, error)
	// MarkAllRead stamps every message in the conversation that the reader
	// did not send as read. Returns the number of messages updated.
	MarkAllRead(ctx context.Context, conversationID uint, readerID uint) (int64, error)
	// SoftDeleteForUser hides the message from the user's view only.
	SoftDeleteForUser(ctx context.Context, messageID uint, userID uint) error
	// CountAllUnread returns the user's total unread tally across all
	// conversations, for the inbox badge.
	CountAllUnread(ctx context.Context, userID uint) (int64, error)
}

// gormMessageRepository implements MessageRepository using GORM.
type gormMessageRepository struct {
	db *gorm.DB
}

// NewGormMessageRepository creates a new GORM-backed MessageRepository.
func NewGormMessageRepository(db *gorm.DB) MessageRepository {
	return &gormMessageRepository{db: db}
}

func (r *gormMessageRepository) Create(ctx context.Context, message *models.Message) error {
	return r.db.WithContext(ctx).Create(message).Error
}

func (r *gormMessageRepository) GetByID(ctx context.Context, id uint) (*models.Message, error) {
	var message models.Message
	err := r.db.WithContext(ctx).Preload("Sender").First(&message, id).Error
	if err != nil {
		return nil, err
	}
	return &message, nil
}

// visibleQuery builds the shared clauses for FindVisibleToUser and
// CountVisibleToUser.
func (r *gormMessageRepository) visibleQuery(ctx context.Context, conversationID uint, userID uint) *gorm.DB {
	return r.db.WithContext(ctx).
		Model(&models.Message{}).
		Where("conversation_id = ?", conversationID).
		Where("status <> ?", models.MessageFailed).
		Where(
			"NOT EXISTS (SELECT 1 FROM message_deletions AS md WHERE md.message_id = messages.id AND md.user_id = ?)",
			userID,
		)
}

func (r *gormMessageRepository) FindVisibleToUser(ctx context.Context, conversationID uint, userID uint, limit int, offset int) ([]*models.Message, error) {
	query := r.visibleQuery(ctx, conversationID, userID).
		Preload("Sender").
		Order("created_at DESC, id DESC")

	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	var messages []*models.Message
	err := query.Find(&messages).Error
	return messages, err
}

func (r *gormMessageRepository) CountVisibleToUser(ctx context.Context, conversationID uint, userID uint) (int64, error) {
	var count int64
	err := r.visibleQuery(ctx, conversationID, userID).Count(&count).Error
	return count, err
}

func (r *gormMessageRepository) MarkAllRead(ctx context.Context, conversationID uint, readerID uint) (int64, error) {
	now := time.Now()
	result := r.db.WithContext(ctx).
		Model(&models.Message{}).
		Where("conversation_id = ? AND sender_id <> ? AND status <> ?", conversationID, readerID, models.MessageRead).
		Where("status <> ?", models.MessageFailed).
		Updates(map[string]interface{}{
			"status":  models.MessageRead,
			"read_at": now,
		})
	return result.RowsAffected, result.Error
}

func (r *gormMessageRepository) SoftDeleteForUser(ctx context.Context, messageID uint, userID uint) error {
	deletion := &models.MessageDeletion{
		MessageID: messageID,
		UserID:    userID,
		DeletedAt: time.Now(),
	}
	err := r.db.WithContext(ctx).Create(deletion).Error
	if err != nil && isUniqueViolation(err) {
		// Already deleted for this user; deleting again is a no-op.
		return nil
	}
	return err
}

func (r *gormMessageRepository) CountAllUnread(ctx context.Context, userID uint) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).
		Model(&models.ConversationParticipant{}).
		Where("user_id = ? AND is_archived = ?", userID, false).
		Select("COALESCE(SUM(unread_count), 0)").
		Scan(&total).Error
	return total, err
}
