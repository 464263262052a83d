package services

import (
	"errors"
	"time"

	"mwork_messaging/internal/models"
	"mwork_messaging/internal/models/chat"
	"mwork_messaging/internal/repositories"
	"mwork_messaging/internal/services/dto"
	"mwork_messaging/pkg/apperrors"

	"gorm.io/gorm"
)

// PollingGateway - единственная точка, через которую клиенты без постоянного
// соединения видят переписку и уведомления. Здесь типизированные ошибки ядра
// переводятся в ответы клиенту.
type PollingGateway interface {
	GetConversationSummaries(db *gorm.DB, userID string, includeArchived bool) (*dto.ConversationListResponse, error)
	StartConversation(db *gorm.DB, userID string, req *dto.StartConversationRequest) (*dto.ConversationSummary, bool, error)
	GetThread(db *gorm.DB, conversationID, callerID string, page, pageSize int) (*dto.ThreadResponse, error)
	PostMessage(db *gorm.DB, conversationID, callerID string, req *dto.PostMessageRequest, idempotencyKey string) (*dto.MessageResponse, bool, error)
	EditMessage(db *gorm.DB, messageID, callerID string, req *dto.EditMessageRequest) (*dto.MessageResponse, error)
	MarkConversationAsRead(db *gorm.DB, conversationID, callerID string) (*dto.MarkReadResponse, error)
	ArchiveConversation(db *gorm.DB, conversationID, callerID string) (*dto.ConversationSummary, error)
	UnarchiveConversation(db *gorm.DB, conversationID, callerID string) (*dto.ConversationSummary, error)

	PollNotifications(db *gorm.DB, userID string, since *time.Time, limit int) (*dto.PollResponse, error)
	ListNotifications(db *gorm.DB, userID string, limit int) (*dto.NotificationListResponse, error)
	MarkNotificationRead(db *gorm.DB, notificationID, userID string) (*dto.NotificationResponse, error)
	DispatchNotification(db *gorm.DB, requestedBy string, req *dto.DispatchNotificationRequest) (*dto.DispatchResponse, error)
}

type pollingGateway struct {
	registry         ConversationRegistry
	store            MessageStore
	dispatcher       NotificationDispatcher
	messageRepo      repositories.MessageRepository
	notificationRepo repositories.NotificationRepository
	now              Clock
}

func NewPollingGateway(
	registry ConversationRegistry,
	store MessageStore,
	dispatcher NotificationDispatcher,
	messageRepo repositories.MessageRepository,
	notificationRepo repositories.NotificationRepository,
	now Clock,
) PollingGateway {
	if now == nil {
		now = utcNow
	}
	return &pollingGateway{
		registry:         registry,
		store:            store,
		dispatcher:       dispatcher,
		messageRepo:      messageRepo,
		notificationRepo: notificationRepo,
		now:              now,
	}
}

// hideConversation: чужой и несуществующий диалог неотличимы для клиента
func hideConversation(err error) error {
	if errors.Is(err, apperrors.ErrConversationNotFound) || errors.Is(err, apperrors.ErrInvalidConversation) {
		return apperrors.ErrConversationAccessDenied
	}
	return err
}

func (g *pollingGateway) participantConversation(db *gorm.DB, conversationID, callerID string) (*chat.Conversation, error) {
	conversation, err := g.registry.Get(db, conversationID)
	if err != nil {
		return nil, hideConversation(err)
	}
	if !conversation.HasParticipant(callerID) {
		return nil, apperrors.ErrConversationAccessDenied
	}
	return conversation, nil
}

// GetConversationSummaries: непрочитанные пересчитываются по сообщениям, кэш диалога не используется
func (g *pollingGateway) GetConversationSummaries(db *gorm.DB, userID string, includeArchived bool) (*dto.ConversationListResponse, error) {
	conversations, err := g.registry.ListForUser(db, userID, includeArchived)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(conversations))
	for _, c := range conversations {
		ids = append(ids, c.ID)
	}
	unread, err := g.messageRepo.CountUnreadByConversation(db, userID, ids)
	if err != nil {
		return nil, apperrors.DatabaseError(err)
	}

	response := &dto.ConversationListResponse{
		Conversations: make([]*dto.ConversationSummary, 0, len(conversations)),
		Total:         len(conversations),
	}
	for i := range conversations {
		count := unread[conversations[i].ID]
		response.TotalUnread += count
		response.Conversations = append(response.Conversations, buildConversationSummary(&conversations[i], userID, count))
	}
	return response, nil
}

func (g *pollingGateway) StartConversation(db *gorm.DB, userID string, req *dto.StartConversationRequest) (*dto.ConversationSummary, bool, error) {
	conversation, created, err := g.registry.FindOrCreate(db, FindOrCreateInput{
		UserA:            userID,
		UserB:            req.ParticipantID,
		JobApplicationID: req.JobApplicationID,
		JobID:            req.JobID,
		Kind:             models.ConversationKind(req.Kind),
		Title:            req.Title,
	})
	if err != nil {
		return nil, false, err
	}

	unread := int64(0)
	if !created {
		unread, err = g.store.UnreadCount(db, conversation.ID, userID)
		if err != nil {
			return nil, false, err
		}
	}
	return buildConversationSummary(conversation, userID, unread), created, nil
}

// GetThread только читает: отметка о прочтении - отдельный вызов
func (g *pollingGateway) GetThread(db *gorm.DB, conversationID, callerID string, page, pageSize int) (*dto.ThreadResponse, error) {
	conversation, err := g.participantConversation(db, conversationID, callerID)
	if err != nil {
		return nil, err
	}

	page, pageSize = normalizePage(page, pageSize)
	messages, total, err := g.store.ListByConversation(db, conversation.ID, page, pageSize)
	if err != nil {
		return nil, err
	}

	response := &dto.ThreadResponse{
		ConversationID: conversation.ID,
		Messages:       make([]*dto.MessageResponse, 0, len(messages)),
		Page:           page,
		PageSize:       pageSize,
		Total:          total,
		TotalPages:     calculateTotalPages(total, pageSize),
	}
	response.HasMore = page < response.TotalPages
	for i := range messages {
		response.Messages = append(response.Messages, buildMessageResponse(&messages[i]))
	}
	return response, nil
}

func (g *pollingGateway) PostMessage(db *gorm.DB, conversationID, callerID string, req *dto.PostMessageRequest, idempotencyKey string) (*dto.MessageResponse, bool, error) {
	if _, err := g.participantConversation(db, conversationID, callerID); err != nil {
		return nil, false, err
	}

	attachments := make([]chat.Attachment, 0, len(req.Attachments))
	for _, a := range req.Attachments {
		attachments = append(attachments, chat.Attachment{
			URL:  a.URL,
			Type: a.Type,
			Size: a.Size,
			Name: a.Name,
		})
	}

	message, replayed, err := g.registry.Send(db, SendInput{
		ConversationID:   conversationID,
		SenderID:         callerID,
		Content:          req.Content,
		Kind:             models.MessageKind(req.Kind),
		Attachments:      attachments,
		ReplyToMessageID: req.ReplyToMessageID,
		IdempotencyKey:   idempotencyKey,
	})
	if err != nil {
		return nil, false, hideConversation(err)
	}
	return buildMessageResponse(message), replayed, nil
}

func (g *pollingGateway) EditMessage(db *gorm.DB, messageID, callerID string, req *dto.EditMessageRequest) (*dto.MessageResponse, error) {
	message, err := g.store.Edit(db, messageID, callerID, req.Content)
	if err != nil {
		// несуществующий id неотличим от чужого сообщения
		if errors.Is(err, apperrors.ErrMessageNotFound) {
			return nil, apperrors.ErrMessageEditForbidden
		}
		return nil, err
	}
	return buildMessageResponse(message), nil
}

func (g *pollingGateway) MarkConversationAsRead(db *gorm.DB, conversationID, callerID string) (*dto.MarkReadResponse, error) {
	marked, err := g.registry.MarkConversationRead(db, conversationID, callerID)
	if err != nil {
		return nil, hideConversation(err)
	}

	unread, err := g.store.UnreadCount(db, conversationID, callerID)
	if err != nil {
		return nil, err
	}
	return &dto.MarkReadResponse{
		ConversationID: conversationID,
		MarkedCount:    marked,
		UnreadCount:    unread,
	}, nil
}

func (g *pollingGateway) ArchiveConversation(db *gorm.DB, conversationID, callerID string) (*dto.ConversationSummary, error) {
	conversation, err := g.registry.Archive(db, conversationID, callerID)
	if err != nil {
		return nil, hideConversation(err)
	}
	return g.summary(db, conversation, callerID)
}

func (g *pollingGateway) UnarchiveConversation(db *gorm.DB, conversationID, callerID string) (*dto.ConversationSummary, error) {
	conversation, err := g.registry.Unarchive(db, conversationID, callerID)
	if err != nil {
		return nil, hideConversation(err)
	}
	return g.summary(db, conversation, callerID)
}

func (g *pollingGateway) summary(db *gorm.DB, conversation *chat.Conversation, viewerID string) (*dto.ConversationSummary, error) {
	unread, err := g.store.UnreadCount(db, conversation.ID, viewerID)
	if err != nil {
		return nil, err
	}
	return buildConversationSummary(conversation, viewerID, unread), nil
}

// PollNotifications: has_new сравнивает visible_at самого свежего видимого уведомления с курсором
// клиента и не зависит от прочитанности. Отложенное уведомление попадает под курсор в момент
// scheduled_at, а не создания. Без курсора has_new=false, клиент берет newest_at как точку отсчета.
func (g *pollingGateway) PollNotifications(db *gorm.DB, userID string, since *time.Time, limit int) (*dto.PollResponse, error) {
	now := g.now()
	limit = normalizeLimit(limit)

	var (
		notifications []models.Notification
		err           error
	)
	if since == nil {
		notifications, err = g.notificationRepo.FindRecent(db, userID, limit, now)
	} else {
		notifications, err = g.notificationRepo.FindSince(db, userID, since.UTC(), limit, now)
	}
	if err != nil {
		return nil, apperrors.DatabaseError(err)
	}

	newest, err := g.notificationRepo.NewestVisibleAt(db, userID, now)
	if err != nil {
		return nil, apperrors.DatabaseError(err)
	}
	unread, err := g.notificationRepo.CountUnread(db, userID, now)
	if err != nil {
		return nil, apperrors.DatabaseError(err)
	}

	var newestAt *time.Time
	if newest != nil {
		n := newest.UTC()
		newestAt = &n
	}

	return &dto.PollResponse{
		Notifications: buildNotificationList(notifications),
		HasNew:        since != nil && newestAt != nil && newestAt.After(*since),
		NewestAt:      newestAt,
		UnreadCount:   unread,
		ServerTime:    now,
	}, nil
}

func (g *pollingGateway) ListNotifications(db *gorm.DB, userID string, limit int) (*dto.NotificationListResponse, error) {
	notifications, err := g.dispatcher.ListRecent(db, userID, limit)
	if err != nil {
		return nil, err
	}
	unread, err := g.notificationRepo.CountUnread(db, userID, g.now())
	if err != nil {
		return nil, apperrors.DatabaseError(err)
	}
	return &dto.NotificationListResponse{
		Notifications: buildNotificationList(notifications),
		UnreadCount:   unread,
	}, nil
}

func (g *pollingGateway) MarkNotificationRead(db *gorm.DB, notificationID, userID string) (*dto.NotificationResponse, error) {
	notification, err := g.dispatcher.MarkRead(db, notificationID, userID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotificationNotFound) {
			return nil, apperrors.ErrNotificationAccessDenied
		}
		return nil, err
	}
	return buildNotificationResponse(notification), nil
}

func (g *pollingGateway) DispatchNotification(db *gorm.DB, requestedBy string, req *dto.DispatchNotificationRequest) (*dto.DispatchResponse, error) {
	result, err := g.dispatcher.Dispatch(db, DispatchEvent{
		RecipientID:    req.RecipientID,
		Type:           req.Type,
		ContextIDs:     req.ContextIDs,
		Priority:       models.NotificationPriority(req.Priority),
		Title:          req.Title,
		Message:        req.Message,
		ShortMessage:   req.ShortMessage,
		ActionURL:      req.ActionURL,
		ActionText:     req.ActionText,
		ScheduledAt:    utcPtr(req.ScheduledAt),
		ExpiresAt:      utcPtr(req.ExpiresAt),
		Data:           req.Data,
		IdempotencyKey: req.IdempotencyKey,
		RequestedBy:    requestedBy,
	})
	if err != nil {
		return nil, err
	}
	return &dto.DispatchResponse{
		Notification: buildNotificationResponse(result.Notification),
		Created:      result.Created,
		Deduplicated: result.Deduplicated,
	}, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
