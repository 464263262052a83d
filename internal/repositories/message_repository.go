package repositories

import (
	"errors"
	"time"

	"mwork_messaging/internal/models/chat"

	"gorm.io/gorm"
)

var ErrMessageNotFound = errors.New("message not found")

type MessageRepository interface {
	Create(db *gorm.DB, message *chat.Message) error
	FindByID(db *gorm.DB, id string) (*chat.Message, error)
	// FindPage возвращает страницу от новых к старым: page=1 - самые свежие
	FindPage(db *gorm.DB, conversationID string, offset, limit int) ([]chat.Message, error)
	CountByConversation(db *gorm.DB, conversationID string) (int64, error)
	LatestCreatedAt(db *gorm.DB, conversationID string) (*time.Time, error)
	MarkRead(db *gorm.DB, conversationID, readerID string, at time.Time) (int64, error)
	UpdateContent(db *gorm.DB, id, content string, editedAt time.Time) error
	CountUnread(db *gorm.DB, conversationID, receiverID string) (int64, error)
	CountUnreadByConversation(db *gorm.DB, receiverID string, conversationIDs []string) (map[string]int64, error)
}

type MessageRepositoryImpl struct{}

func NewMessageRepository() MessageRepository {
	return &MessageRepositoryImpl{}
}

func (r *MessageRepositoryImpl) Create(db *gorm.DB, message *chat.Message) error {
	return db.Create(message).Error
}

func (r *MessageRepositoryImpl) FindByID(db *gorm.DB, id string) (*chat.Message, error) {
	var message chat.Message
	if err := db.First(&message, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMessageNotFound
		}
		return nil, err
	}
	return &message, nil
}

// FindPage: порядок полный - created_at, затем id
func (r *MessageRepositoryImpl) FindPage(db *gorm.DB, conversationID string, offset, limit int) ([]chat.Message, error) {
	var messages []chat.Message
	err := db.
		Where("conversation_id = ?", conversationID).
		Order("created_at DESC").
		Order("id DESC").
		Offset(offset).
		Limit(limit).
		Find(&messages).Error
	return messages, err
}

func (r *MessageRepositoryImpl) CountByConversation(db *gorm.DB, conversationID string) (int64, error) {
	var count int64
	err := db.Model(&chat.Message{}).Where("conversation_id = ?", conversationID).Count(&count).Error
	return count, err
}

func (r *MessageRepositoryImpl) LatestCreatedAt(db *gorm.DB, conversationID string) (*time.Time, error) {
	var latest chat.Message
	err := db.
		Select("created_at").
		Where("conversation_id = ?", conversationID).
		Order("created_at DESC").
		Limit(1).
		Take(&latest).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &latest.CreatedAt, nil
}

// MarkRead переводит непрочитанные сообщения для reader; повторный вызов вернет 0
func (r *MessageRepositoryImpl) MarkRead(db *gorm.DB, conversationID, readerID string, at time.Time) (int64, error) {
	result := db.Model(&chat.Message{}).
		Where("conversation_id = ? AND receiver_id = ? AND is_read = ?", conversationID, readerID, false).
		Updates(map[string]interface{}{
			"is_read": true,
			"read_at": at,
		})
	return result.RowsAffected, result.Error
}

func (r *MessageRepositoryImpl) UpdateContent(db *gorm.DB, id, content string, editedAt time.Time) error {
	result := db.Model(&chat.Message{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"content":   content,
			"is_edited": true,
			"edited_at": editedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrMessageNotFound
	}
	return nil
}

func (r *MessageRepositoryImpl) CountUnread(db *gorm.DB, conversationID, receiverID string) (int64, error) {
	var count int64
	err := db.Model(&chat.Message{}).
		Where("conversation_id = ? AND receiver_id = ? AND is_read = ?", conversationID, receiverID, false).
		Count(&count).Error
	return count, err
}

func (r *MessageRepositoryImpl) CountUnreadByConversation(db *gorm.DB, receiverID string, conversationIDs []string) (map[string]int64, error) {
	counts := make(map[string]int64, len(conversationIDs))
	if len(conversationIDs) == 0 {
		return counts, nil
	}

	var rows []struct {
		ConversationID string
		Count          int64
	}
	err := db.Model(&chat.Message{}).
		Select("conversation_id, COUNT(*) AS count").
		Where("receiver_id = ? AND is_read = ? AND conversation_id IN ?", receiverID, false, conversationIDs).
		Group("conversation_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		counts[row.ConversationID] = row.Count
	}
	return counts, nil
}
