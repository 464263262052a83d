package workers

import (
	"context"
	"errors"

	"mwork_messaging/internal/config"
	"mwork_messaging/internal/events"
	"mwork_messaging/internal/logger"
	"mwork_messaging/internal/models"
	"mwork_messaging/internal/services"
	"mwork_messaging/pkg/apperrors"

	"gorm.io/gorm"
)

const (
	newMessageTitle      = "Новое сообщение"
	newMessageActionText = "Открыть переписку"
)

// NotificationEventWorker превращает события шины в уведомления
type NotificationEventWorker struct {
	db         *gorm.DB
	bus        events.Bus
	dispatcher services.NotificationDispatcher
	baseURL    string
}

func NewNotificationEventWorker(db *gorm.DB, bus events.Bus, dispatcher services.NotificationDispatcher, cfg *config.Config) *NotificationEventWorker {
	return &NotificationEventWorker{
		db:         db,
		bus:        bus,
		dispatcher: dispatcher,
		baseURL:    cfg.Notifications.ActionBaseURL,
	}
}

func (w *NotificationEventWorker) Start(ctx context.Context) {
	go func() {
		if err := w.bus.Subscribe(ctx, w.Handle); err != nil && ctx.Err() == nil && !errors.Is(err, events.ErrBusClosed) {
			logger.WorkerLog("notification_events", "subscribe", err)
		}
		logger.Info("Notification event worker stopped")
	}()
}

// Handle: ошибка хранилища возвращается, чтобы транспорт повторил событие;
// невалидное событие подтверждается и только логируется
func (w *NotificationEventWorker) Handle(ctx context.Context, evt events.Event) error {
	var dispatch services.DispatchEvent

	switch evt.Type {
	case events.TypeMessageSent:
		var payload events.MessageSent
		if err := evt.Decode(&payload); err != nil {
			logger.CtxWithError(ctx, "Malformed message.sent event", err, "event_id", evt.ID)
			return nil
		}
		dispatch = w.newMessageEvent(payload)
	case events.TypeNotificationRequested:
		var payload events.NotificationRequested
		if err := evt.Decode(&payload); err != nil {
			logger.CtxWithError(ctx, "Malformed notification.requested event", err, "event_id", evt.ID)
			return nil
		}
		dispatch = requestedEvent(payload)
	default:
		return nil
	}

	result, err := w.dispatcher.Dispatch(w.db.WithContext(ctx), dispatch)
	if err != nil {
		if isClientError(err) {
			logger.CtxWithError(ctx, "Event rejected by dispatcher", err,
				"event_id", evt.ID,
				"event_type", evt.Type)
			return nil
		}
		return err
	}

	logger.CtxDebug(ctx, "Event dispatched",
		"event_id", evt.ID,
		"notification_id", result.Notification.ID,
		"created", result.Created,
		"deduplicated", result.Deduplicated)
	return nil
}

// newMessageEvent: ключ дедупликации - диалог, так что активная переписка дает одно непрочитанное уведомление
func (w *NotificationEventWorker) newMessageEvent(payload events.MessageSent) services.DispatchEvent {
	actionURL := w.baseURL + "/messages/" + payload.ConversationID
	actionText := newMessageActionText
	preview := payload.Preview
	return services.DispatchEvent{
		RecipientID:    payload.ReceiverID,
		Type:           models.NotificationTypeNewMessage,
		ContextIDs:     map[string]string{"conversation_id": payload.ConversationID},
		Priority:       models.PriorityMedium,
		Title:          newMessageTitle,
		Message:        payload.Preview,
		ShortMessage:   &preview,
		ActionURL:      &actionURL,
		ActionText:     &actionText,
		Data:           map[string]interface{}{"sender_id": payload.SenderID, "message_id": payload.MessageID},
		IdempotencyKey: "message:" + payload.MessageID,
		RequestedBy:    string(models.UserRoleSystem),
	}
}

func requestedEvent(payload events.NotificationRequested) services.DispatchEvent {
	return services.DispatchEvent{
		RecipientID:    payload.RecipientID,
		Type:           payload.Type,
		ContextIDs:     payload.ContextIDs,
		Priority:       models.NotificationPriority(payload.Priority),
		Title:          payload.Title,
		Message:        payload.Message,
		ShortMessage:   optional(payload.ShortMessage),
		ActionURL:      optional(payload.ActionURL),
		ActionText:     optional(payload.ActionText),
		IdempotencyKey: payload.IdempotencyKey,
		RequestedBy:    string(models.UserRoleSystem),
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func isClientError(err error) bool {
	appErr, ok := apperrors.AsAppError(err)
	return ok && appErr.HTTPCode >= 400 && appErr.HTTPCode < 500
}
