package services

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"mwork_messaging/internal/models"
	"mwork_messaging/internal/models/chat"
	"mwork_messaging/internal/repositories"
	"mwork_messaging/pkg/apperrors"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	MaxContentLength   = 10000
	MaxAttachments     = 10
	DefaultMaxAttachSz = 25 * 1024 * 1024
)

type AppendInput struct {
	ConversationID   string
	SenderID         string
	Content          string
	Kind             models.MessageKind
	Attachments      []chat.Attachment
	ReplyToMessageID *string
}

// MessageStore - упорядоченный лог сообщений. Сводку диалога не трогает,
// этим занимается ConversationRegistry.
type MessageStore interface {
	Append(db *gorm.DB, in AppendInput) (*chat.Message, error)
	// ListByConversation: page=1 - самые свежие, внутри страницы от старых к новым
	ListByConversation(db *gorm.DB, conversationID string, page, pageSize int) ([]chat.Message, int64, error)
	MarkRead(db *gorm.DB, conversationID, readerID string) (int64, error)
	Edit(db *gorm.DB, messageID, editorID, newContent string) (*chat.Message, error)
	UnreadCount(db *gorm.DB, conversationID, receiverID string) (int64, error)
}

type messageStore struct {
	conversationRepo   repositories.ConversationRepository
	messageRepo        repositories.MessageRepository
	maxAttachmentBytes int64
	now                Clock
}

func NewMessageStore(
	conversationRepo repositories.ConversationRepository,
	messageRepo repositories.MessageRepository,
	maxAttachmentBytes int64,
	now Clock,
) MessageStore {
	if maxAttachmentBytes <= 0 {
		maxAttachmentBytes = DefaultMaxAttachSz
	}
	if now == nil {
		now = utcNow
	}
	return &messageStore{
		conversationRepo:   conversationRepo,
		messageRepo:        messageRepo,
		maxAttachmentBytes: maxAttachmentBytes,
		now:                now,
	}
}

func (s *messageStore) Append(db *gorm.DB, in AppendInput) (*chat.Message, error) {
	if in.Kind == "" {
		in.Kind = models.MessageText
	}
	if err := s.validate(in); err != nil {
		return nil, err
	}

	conversation, err := s.conversationRepo.FindByID(db, in.ConversationID)
	if err != nil {
		if errors.Is(err, repositories.ErrConversationNotFound) {
			return nil, apperrors.ErrInvalidConversation
		}
		return nil, apperrors.DatabaseError(err)
	}
	if conversation.IsArchived || !conversation.IsActive {
		return nil, apperrors.ErrInvalidConversation
	}
	if !conversation.HasParticipant(in.SenderID) {
		return nil, apperrors.ErrConversationAccessDenied
	}

	if in.ReplyToMessageID != nil && *in.ReplyToMessageID != "" {
		target, err := s.messageRepo.FindByID(db, *in.ReplyToMessageID)
		if err != nil {
			if errors.Is(err, repositories.ErrMessageNotFound) {
				return nil, apperrors.ErrInvalidReply
			}
			return nil, apperrors.DatabaseError(err)
		}
		if target.ConversationID != conversation.ID {
			return nil, apperrors.ErrInvalidReply
		}
	} else {
		in.ReplyToMessageID = nil
	}

	createdAt, err := s.nextTimestamp(db, conversation.ID)
	if err != nil {
		return nil, err
	}

	attachments, err := chat.EncodeAttachments(in.Attachments)
	if err != nil {
		return nil, apperrors.InternalError(err)
	}

	message := &chat.Message{
		ID:               uuid.NewString(),
		ConversationID:   conversation.ID,
		SenderID:         in.SenderID,
		ReceiverID:       conversation.OtherParticipant(in.SenderID),
		MessageType:      in.Kind,
		Content:          in.Content,
		Attachments:      attachments,
		IsDelivered:      true,
		DeliveredAt:      &createdAt,
		ReplyToMessageID: in.ReplyToMessageID,
		CreatedAt:        createdAt,
	}
	if err := s.messageRepo.Create(db, message); err != nil {
		return nil, apperrors.DatabaseError(err)
	}
	return message, nil
}

// nextTimestamp держит created_at строго возрастающим внутри диалога,
// чтобы порядок не зависел от разрешения часов и id
func (s *messageStore) nextTimestamp(db *gorm.DB, conversationID string) (time.Time, error) {
	createdAt := s.now().UTC().Truncate(time.Microsecond)
	latest, err := s.messageRepo.LatestCreatedAt(db, conversationID)
	if err != nil {
		return time.Time{}, apperrors.DatabaseError(err)
	}
	if latest != nil && !createdAt.After(*latest) {
		createdAt = latest.UTC().Truncate(time.Microsecond).Add(time.Microsecond)
	}
	return createdAt, nil
}

func (s *messageStore) validate(in AppendInput) error {
	if err := validateContent(in.Content); err != nil {
		return err
	}
	if !in.Kind.IsValid() {
		return apperrors.ErrInvalidMessageKind
	}
	if len(in.Attachments) > MaxAttachments {
		return apperrors.ValidationError(map[string]string{
			"attachments": fmt.Sprintf("at most %d attachments allowed", MaxAttachments),
		})
	}
	for i, a := range in.Attachments {
		if strings.TrimSpace(a.URL) == "" {
			return apperrors.ValidationError(map[string]string{
				fmt.Sprintf("attachments[%d].url", i): "url is required",
			})
		}
		if a.Size < 0 {
			return apperrors.ValidationError(map[string]string{
				fmt.Sprintf("attachments[%d].size", i): "size must not be negative",
			})
		}
		if a.Size > s.maxAttachmentBytes {
			return apperrors.ErrAttachmentTooLarge.WithDetails(map[string]interface{}{
				"index":     i,
				"max_bytes": s.maxAttachmentBytes,
			})
		}
	}
	return nil
}

func validateContent(content string) error {
	if strings.TrimSpace(content) == "" {
		return apperrors.ErrEmptyContent
	}
	if utf8.RuneCountInString(content) > MaxContentLength {
		return apperrors.ValidationError(map[string]string{
			"content": fmt.Sprintf("must be at most %d characters", MaxContentLength),
		})
	}
	return nil
}

func (s *messageStore) ListByConversation(db *gorm.DB, conversationID string, page, pageSize int) ([]chat.Message, int64, error) {
	page, pageSize = normalizePage(page, pageSize)

	total, err := s.messageRepo.CountByConversation(db, conversationID)
	if err != nil {
		return nil, 0, apperrors.DatabaseError(err)
	}

	messages, err := s.messageRepo.FindPage(db, conversationID, repositories.Offset(page, pageSize), pageSize)
	if err != nil {
		return nil, 0, apperrors.DatabaseError(err)
	}

	// репозиторий отдает от новых к старым
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, total, nil
}

func (s *messageStore) MarkRead(db *gorm.DB, conversationID, readerID string) (int64, error) {
	count, err := s.messageRepo.MarkRead(db, conversationID, readerID, s.now())
	if err != nil {
		return 0, apperrors.DatabaseError(err)
	}
	return count, nil
}

func (s *messageStore) Edit(db *gorm.DB, messageID, editorID, newContent string) (*chat.Message, error) {
	message, err := s.messageRepo.FindByID(db, messageID)
	if err != nil {
		if errors.Is(err, repositories.ErrMessageNotFound) {
			return nil, apperrors.ErrMessageNotFound
		}
		return nil, apperrors.DatabaseError(err)
	}
	if message.SenderID != editorID {
		return nil, apperrors.ErrMessageEditForbidden
	}
	if err := validateContent(newContent); err != nil {
		return nil, err
	}

	editedAt := s.now()
	if err := s.messageRepo.UpdateContent(db, message.ID, newContent, editedAt); err != nil {
		return nil, apperrors.DatabaseError(err)
	}

	message.Content = newContent
	message.IsEdited = true
	message.EditedAt = &editedAt
	return message, nil
}

func (s *messageStore) UnreadCount(db *gorm.DB, conversationID, receiverID string) (int64, error) {
	count, err := s.messageRepo.CountUnread(db, conversationID, receiverID)
	if err != nil {
		return 0, apperrors.DatabaseError(err)
	}
	return count, nil
}
