package repositories

import (
	"errors"
	"time"

	"mwork_messaging/internal/models/chat"

	"gorm.io/gorm"
)

var (
	ErrConversationNotFound = errors.New("conversation not found")
	ErrConversationExists   = errors.New("conversation for this pair already exists")
)

type ConversationRepository interface {
	Create(db *gorm.DB, conversation *chat.Conversation) error
	FindByID(db *gorm.DB, id string) (*chat.Conversation, error)
	FindByIDForUpdate(db *gorm.DB, id string) (*chat.Conversation, error)
	FindByPair(db *gorm.DB, userA, userB string) (*chat.Conversation, error)
	FindUserConversations(db *gorm.DB, userID string, includeArchived bool) ([]chat.Conversation, error)

	// Кэшируемые поля, которые пишут оба участника
	IncrementUnread(db *gorm.DB, id, lastMessageID string, lastMessageAt time.Time) error
	SetLastMessage(db *gorm.DB, id, lastMessageID string, lastMessageAt time.Time, unreadCount int64) error
	ResetUnread(db *gorm.DB, id string) error

	SetArchived(db *gorm.DB, id, byUserID string, at time.Time) error
	ClearArchived(db *gorm.DB, id string) error
}

type ConversationRepositoryImpl struct{}

func NewConversationRepository() ConversationRepository {
	return &ConversationRepositoryImpl{}
}

func (r *ConversationRepositoryImpl) Create(db *gorm.DB, conversation *chat.Conversation) error {
	conversation.PairKey = chat.PairKey(conversation.Participant1ID, conversation.Participant2ID)
	return db.Create(conversation).Error
}

func (r *ConversationRepositoryImpl) FindByID(db *gorm.DB, id string) (*chat.Conversation, error) {
	var conversation chat.Conversation
	if err := db.First(&conversation, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrConversationNotFound
		}
		return nil, err
	}
	return &conversation, nil
}

func (r *ConversationRepositoryImpl) FindByIDForUpdate(db *gorm.DB, id string) (*chat.Conversation, error) {
	return r.FindByID(forUpdate(db), id)
}

// FindByPair симметричен: пара ищется по нормализованному ключу и по обоим порядкам колонок
func (r *ConversationRepositoryImpl) FindByPair(db *gorm.DB, userA, userB string) (*chat.Conversation, error) {
	var conversation chat.Conversation
	err := db.
		Where("pair_key = ?", chat.PairKey(userA, userB)).
		Or("(participant1_id = ? AND participant2_id = ?) OR (participant1_id = ? AND participant2_id = ?)", userA, userB, userB, userA).
		Order("created_at ASC").
		First(&conversation).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrConversationNotFound
		}
		return nil, err
	}
	return &conversation, nil
}

// FindUserConversations: last_message_at по убыванию, пустые диалоги в конце
func (r *ConversationRepositoryImpl) FindUserConversations(db *gorm.DB, userID string, includeArchived bool) ([]chat.Conversation, error) {
	var conversations []chat.Conversation
	query := db.Where("(participant1_id = ? OR participant2_id = ?)", userID, userID)
	if !includeArchived {
		query = query.Where("is_archived = ?", false)
	}
	err := query.
		Order("CASE WHEN last_message_at IS NULL THEN 1 ELSE 0 END").
		Order("last_message_at DESC").
		Order("created_at DESC").
		Order("id DESC").
		Find(&conversations).Error
	return conversations, err
}

func (r *ConversationRepositoryImpl) IncrementUnread(db *gorm.DB, id, lastMessageID string, lastMessageAt time.Time) error {
	result := db.Model(&chat.Conversation{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"last_message_id": lastMessageID,
			"last_message_at": lastMessageAt,
			"unread_count":    gorm.Expr("unread_count + ?", 1),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrConversationNotFound
	}
	return nil
}

func (r *ConversationRepositoryImpl) SetLastMessage(db *gorm.DB, id, lastMessageID string, lastMessageAt time.Time, unreadCount int64) error {
	result := db.Model(&chat.Conversation{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"last_message_id": lastMessageID,
			"last_message_at": lastMessageAt,
			"unread_count":    unreadCount,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrConversationNotFound
	}
	return nil
}

func (r *ConversationRepositoryImpl) ResetUnread(db *gorm.DB, id string) error {
	return db.Model(&chat.Conversation{}).
		Where("id = ?", id).
		Update("unread_count", 0).Error
}

func (r *ConversationRepositoryImpl) SetArchived(db *gorm.DB, id, byUserID string, at time.Time) error {
	result := db.Model(&chat.Conversation{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"is_archived": true,
			"archived_by": byUserID,
			"archived_at": at,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrConversationNotFound
	}
	return nil
}

func (r *ConversationRepositoryImpl) ClearArchived(db *gorm.DB, id string) error {
	result := db.Model(&chat.Conversation{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"is_archived": false,
			"archived_by": nil,
			"archived_at": nil,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrConversationNotFound
	}
	return nil
}
