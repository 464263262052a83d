package services

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"mwork_messaging/internal/database"
	"mwork_messaging/internal/events"
	"mwork_messaging/internal/logger"
	"mwork_messaging/internal/models"
	"mwork_messaging/internal/models/chat"
	"mwork_messaging/internal/notify"
	"mwork_messaging/internal/repositories"
	"mwork_messaging/pkg/apperrors"

	"gorm.io/gorm"
)

const publishTimeout = 2 * time.Second

// ReferenceChecker проверяет существование вакансии и отклика, на которые ссылается диалог
type ReferenceChecker interface {
	Exists(ctx context.Context, jobApplicationID, jobID *string) (bool, error)
}

// AcceptAllReferences - когда каталог вакансий недоступен этому сервису
type AcceptAllReferences struct{}

func (AcceptAllReferences) Exists(context.Context, *string, *string) (bool, error) {
	return true, nil
}

type FindOrCreateInput struct {
	UserA            string
	UserB            string
	JobApplicationID *string
	JobID            *string
	Kind             models.ConversationKind
	Title            *string
}

type SendInput struct {
	ConversationID   string
	SenderID         string
	Content          string
	Kind             models.MessageKind
	Attachments      []chat.Attachment
	ReplyToMessageID *string
	IdempotencyKey   string
}

// ConversationRegistry владеет диалогами и кэшем last_message/unread_count
type ConversationRegistry interface {
	// FindOrCreate симметричен по паре; bool = диалог создан этим вызовом
	FindOrCreate(db *gorm.DB, in FindOrCreateInput) (*chat.Conversation, bool, error)
	Get(db *gorm.DB, conversationID string) (*chat.Conversation, error)
	// Send; bool = ответ восстановлен по ключу идемпотентности
	Send(db *gorm.DB, in SendInput) (*chat.Message, bool, error)
	MarkConversationRead(db *gorm.DB, conversationID, readerID string) (int64, error)
	ListForUser(db *gorm.DB, userID string, includeArchived bool) ([]chat.Conversation, error)
	Archive(db *gorm.DB, conversationID, byUserID string) (*chat.Conversation, error)
	Unarchive(db *gorm.DB, conversationID, byUserID string) (*chat.Conversation, error)
}

type conversationRegistry struct {
	conversationRepo repositories.ConversationRepository
	messageRepo      repositories.MessageRepository
	store            MessageStore
	references       ReferenceChecker
	idempotency      *idempotencyGuard
	publisher        events.Publisher
	now              Clock
}

func NewConversationRegistry(
	conversationRepo repositories.ConversationRepository,
	messageRepo repositories.MessageRepository,
	idempotencyRepo repositories.IdempotencyRepository,
	store MessageStore,
	references ReferenceChecker,
	publisher events.Publisher,
	idempotencyTTL time.Duration,
	now Clock,
) ConversationRegistry {
	if references == nil {
		references = AcceptAllReferences{}
	}
	if now == nil {
		now = utcNow
	}
	return &conversationRegistry{
		conversationRepo: conversationRepo,
		messageRepo:      messageRepo,
		store:            store,
		references:       references,
		idempotency:      newIdempotencyGuard(idempotencyRepo, idempotencyTTL, now),
		publisher:        publisher,
		now:              now,
	}
}

func (r *conversationRegistry) FindOrCreate(db *gorm.DB, in FindOrCreateInput) (*chat.Conversation, bool, error) {
	if in.UserA == "" || in.UserB == "" {
		return nil, false, apperrors.ValidationError(map[string]string{
			"participant_id": "participant is required",
		})
	}
	if in.UserA == in.UserB {
		return nil, false, apperrors.ErrSelfConversation
	}
	if in.Kind == "" {
		in.Kind = models.ConversationGeneral
		if in.JobApplicationID != nil {
			in.Kind = models.ConversationJobApplication
		}
	}
	if !in.Kind.IsValid() {
		return nil, false, apperrors.ErrInvalidConversationKind
	}

	// повторный контакт возвращает существующий диалог, привязки первого вызова сохраняются
	existing, err := r.conversationRepo.FindByPair(db, in.UserA, in.UserB)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, repositories.ErrConversationNotFound) {
		return nil, false, apperrors.DatabaseError(err)
	}

	if in.JobApplicationID != nil || in.JobID != nil {
		ok, err := r.references.Exists(ctxFrom(db), in.JobApplicationID, in.JobID)
		if err != nil {
			return nil, false, apperrors.InternalError(err)
		}
		if !ok {
			return nil, false, apperrors.ErrInvalidLinkage
		}
	}

	conversation := &chat.Conversation{
		Participant1ID:   in.UserA,
		Participant2ID:   in.UserB,
		JobApplicationID: in.JobApplicationID,
		JobID:            in.JobID,
		ConversationType: in.Kind,
		Title:            in.Title,
		IsActive:         true,
	}
	if err := r.conversationRepo.Create(db, conversation); err != nil {
		if !database.IsUniqueViolation(err) {
			return nil, false, apperrors.DatabaseError(err)
		}
		// второй участник создал пару одновременно с нами
		existing, findErr := r.conversationRepo.FindByPair(db, in.UserA, in.UserB)
		if findErr != nil {
			return nil, false, apperrors.DatabaseError(findErr)
		}
		return existing, false, nil
	}

	logger.CtxInfo(ctxFrom(db), "Conversation created",
		"conversation_id", conversation.ID,
		"kind", conversation.ConversationType)
	return conversation, true, nil
}

func (r *conversationRegistry) Get(db *gorm.DB, conversationID string) (*chat.Conversation, error) {
	conversation, err := r.conversationRepo.FindByID(db, conversationID)
	if err != nil {
		if errors.Is(err, repositories.ErrConversationNotFound) {
			return nil, apperrors.ErrConversationNotFound
		}
		return nil, apperrors.DatabaseError(err)
	}
	return conversation, nil
}

func (r *conversationRegistry) Send(db *gorm.DB, in SendInput) (*chat.Message, bool, error) {
	hash := sendRequestHash(in)

	tx := db.Begin()
	if tx.Error != nil {
		return nil, false, apperrors.InternalError(tx.Error)
	}
	defer tx.Rollback()

	conversation, err := r.conversationRepo.FindByIDForUpdate(tx, in.ConversationID)
	if err != nil {
		if errors.Is(err, repositories.ErrConversationNotFound) {
			return nil, false, apperrors.ErrInvalidConversation
		}
		return nil, false, apperrors.DatabaseError(err)
	}
	if !conversation.HasParticipant(in.SenderID) {
		return nil, false, apperrors.ErrConversationAccessDenied
	}

	resourceID, replayed, err := r.idempotency.lookup(tx, in.SenderID, ScopePostMessage, in.IdempotencyKey, hash)
	if err != nil {
		return nil, false, err
	}
	if replayed {
		message, err := r.messageRepo.FindByID(tx, resourceID)
		if err != nil {
			return nil, false, apperrors.DatabaseError(err)
		}
		if err := tx.Commit().Error; err != nil {
			return nil, false, apperrors.InternalError(err)
		}
		return message, true, nil
	}

	// Archived --send--> Active
	if conversation.IsArchived {
		if err := r.conversationRepo.ClearArchived(tx, conversation.ID); err != nil {
			return nil, false, apperrors.DatabaseError(err)
		}
	}

	trackedReceiver := ""
	if conversation.LastMessageID != nil {
		last, err := r.messageRepo.FindByID(tx, *conversation.LastMessageID)
		if err != nil && !errors.Is(err, repositories.ErrMessageNotFound) {
			return nil, false, apperrors.DatabaseError(err)
		}
		if last != nil {
			trackedReceiver = last.ReceiverID
		}
	}

	message, err := r.store.Append(tx, AppendInput{
		ConversationID:   conversation.ID,
		SenderID:         in.SenderID,
		Content:          in.Content,
		Kind:             in.Kind,
		Attachments:      in.Attachments,
		ReplyToMessageID: in.ReplyToMessageID,
	})
	if err != nil {
		return nil, false, err
	}

	// кэш считает непрочитанные того, кто получил последнее сообщение
	if trackedReceiver == message.ReceiverID {
		err = r.conversationRepo.IncrementUnread(tx, conversation.ID, message.ID, message.CreatedAt)
	} else {
		var unread int64
		unread, err = r.messageRepo.CountUnread(tx, conversation.ID, message.ReceiverID)
		if err == nil {
			err = r.conversationRepo.SetLastMessage(tx, conversation.ID, message.ID, message.CreatedAt, unread)
		}
	}
	if err != nil {
		return nil, false, apperrors.DatabaseError(err)
	}

	if err := r.idempotency.remember(tx, in.SenderID, ScopePostMessage, in.IdempotencyKey, hash, message.ID); err != nil {
		return nil, false, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, false, apperrors.InternalError(err)
	}

	r.publishMessageSent(ctxFrom(db), message)
	return message, false, nil
}

func sendRequestHash(in SendInput) string {
	replyTo := ""
	if in.ReplyToMessageID != nil {
		replyTo = *in.ReplyToMessageID
	}
	attachments, _ := json.Marshal(in.Attachments)
	return requestHash(in.ConversationID, string(in.Kind), in.Content, replyTo, string(attachments))
}

// publishMessageSent не влияет на результат отправки
func (r *conversationRegistry) publishMessageSent(ctx context.Context, message *chat.Message) {
	if r.publisher == nil {
		return
	}

	evt, err := events.New(events.TypeMessageSent, events.MessageSent{
		MessageID:      message.ID,
		ConversationID: message.ConversationID,
		SenderID:       message.SenderID,
		ReceiverID:     message.ReceiverID,
		Preview:        notify.Preview(strings.TrimSpace(message.Content), 120),
		SentAt:         message.CreatedAt,
	})
	if err != nil {
		logger.CtxWithError(ctx, "Failed to build message.sent event", err, "message_id", message.ID)
		return
	}

	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := r.publisher.Publish(pubCtx, evt); err != nil {
		logger.CtxWithError(ctx, "Failed to publish message.sent event", err,
			"message_id", message.ID,
			"conversation_id", message.ConversationID)
	}
}

func (r *conversationRegistry) MarkConversationRead(db *gorm.DB, conversationID, readerID string) (int64, error) {
	tx := db.Begin()
	if tx.Error != nil {
		return 0, apperrors.InternalError(tx.Error)
	}
	defer tx.Rollback()

	conversation, err := r.conversationRepo.FindByIDForUpdate(tx, conversationID)
	if err != nil {
		if errors.Is(err, repositories.ErrConversationNotFound) {
			return 0, apperrors.ErrConversationNotFound
		}
		return 0, apperrors.DatabaseError(err)
	}
	if !conversation.HasParticipant(readerID) {
		return 0, apperrors.ErrConversationAccessDenied
	}

	marked, err := r.store.MarkRead(tx, conversation.ID, readerID)
	if err != nil {
		return 0, err
	}

	if conversation.LastMessageID != nil && conversation.UnreadCount > 0 {
		last, err := r.messageRepo.FindByID(tx, *conversation.LastMessageID)
		if err != nil && !errors.Is(err, repositories.ErrMessageNotFound) {
			return 0, apperrors.DatabaseError(err)
		}
		if last != nil && last.ReceiverID == readerID {
			if err := r.conversationRepo.ResetUnread(tx, conversation.ID); err != nil {
				return 0, apperrors.DatabaseError(err)
			}
		}
	}

	if err := tx.Commit().Error; err != nil {
		return 0, apperrors.InternalError(err)
	}
	return marked, nil
}

func (r *conversationRegistry) ListForUser(db *gorm.DB, userID string, includeArchived bool) ([]chat.Conversation, error) {
	conversations, err := r.conversationRepo.FindUserConversations(db, userID, includeArchived)
	if err != nil {
		return nil, apperrors.DatabaseError(err)
	}
	return conversations, nil
}

// Archive: в архив попадает только диалог с сообщениями
func (r *conversationRegistry) Archive(db *gorm.DB, conversationID, byUserID string) (*chat.Conversation, error) {
	conversation, err := r.participantConversation(db, conversationID, byUserID)
	if err != nil {
		return nil, err
	}
	if conversation.IsArchived {
		return conversation, nil
	}
	if conversation.State() == chat.StateEmpty {
		return nil, apperrors.ErrInvalidOperation("chat", "Conversation without messages cannot be archived")
	}

	at := r.now()
	if err := r.conversationRepo.SetArchived(db, conversation.ID, byUserID, at); err != nil {
		return nil, apperrors.DatabaseError(err)
	}
	conversation.IsArchived = true
	conversation.ArchivedBy = &byUserID
	conversation.ArchivedAt = &at
	return conversation, nil
}

func (r *conversationRegistry) Unarchive(db *gorm.DB, conversationID, byUserID string) (*chat.Conversation, error) {
	conversation, err := r.participantConversation(db, conversationID, byUserID)
	if err != nil {
		return nil, err
	}
	if !conversation.IsArchived {
		return conversation, nil
	}

	if err := r.conversationRepo.ClearArchived(db, conversation.ID); err != nil {
		return nil, apperrors.DatabaseError(err)
	}
	conversation.IsArchived = false
	conversation.ArchivedBy = nil
	conversation.ArchivedAt = nil
	return conversation, nil
}

func (r *conversationRegistry) participantConversation(db *gorm.DB, conversationID, userID string) (*chat.Conversation, error) {
	conversation, err := r.Get(db, conversationID)
	if err != nil {
		return nil, err
	}
	if !conversation.HasParticipant(userID) {
		return nil, apperrors.ErrConversationAccessDenied
	}
	return conversation, nil
}
