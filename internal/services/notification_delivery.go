package services

import (
	"errors"
	"time"

	"mwork_messaging/internal/logger"
	"mwork_messaging/internal/models"
	"mwork_messaging/internal/notify"
	"mwork_messaging/internal/repositories"
	"mwork_messaging/pkg/apperrors"

	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

type DeliveryPolicy struct {
	MaxAttempts int
	BackoffBase time.Duration
	BackoffMax  time.Duration
	// Lease - на сколько строка скрыта от других воркеров после захвата
	Lease time.Duration
}

func DefaultDeliveryPolicy() DeliveryPolicy {
	return DeliveryPolicy{
		MaxAttempts: 3,
		BackoffBase: 500 * time.Millisecond,
		BackoffMax:  30 * time.Second,
		Lease:       time.Minute,
	}
}

// NotificationDeliverer рассылает уведомление по каналам. Каждый захват строки - одна попытка,
// повтор планируется через next_attempt_at.
type NotificationDeliverer interface {
	// Deliver - готовые к отправке каналы одного уведомления
	Deliver(db *gorm.DB, notificationID string) error
	// DeliverDue - пачка созревших строк outbox; возвращает число обработанных
	DeliverDue(db *gorm.DB, limit int) (int, error)
}

type notificationDeliverer struct {
	notificationRepo repositories.NotificationRepository
	deliveryRepo     repositories.DeliveryRepository
	contactRepo      repositories.ContactRepository
	senders          map[models.Channel]notify.Sender
	policy           DeliveryPolicy
	now              Clock
}

// NewNotificationDeliverer: nil-отправитель означает выключенный канал
func NewNotificationDeliverer(
	notificationRepo repositories.NotificationRepository,
	deliveryRepo repositories.DeliveryRepository,
	contactRepo repositories.ContactRepository,
	policy DeliveryPolicy,
	now Clock,
	senders ...notify.Sender,
) NotificationDeliverer {
	defaults := DefaultDeliveryPolicy()
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = defaults.MaxAttempts
	}
	if policy.BackoffBase <= 0 {
		policy.BackoffBase = defaults.BackoffBase
	}
	if policy.BackoffMax <= 0 {
		policy.BackoffMax = defaults.BackoffMax
	}
	if policy.Lease <= 0 {
		policy.Lease = defaults.Lease
	}
	if now == nil {
		now = utcNow
	}

	byChannel := make(map[models.Channel]notify.Sender, len(senders))
	for _, s := range senders {
		if s == nil {
			continue
		}
		byChannel[s.Channel()] = s
	}

	return &notificationDeliverer{
		notificationRepo: notificationRepo,
		deliveryRepo:     deliveryRepo,
		contactRepo:      contactRepo,
		senders:          byChannel,
		policy:           policy,
		now:              now,
	}
}

func (d *notificationDeliverer) Deliver(db *gorm.DB, notificationID string) error {
	rows, err := d.deliveryRepo.ClaimDue(db, notificationID, d.now(), len(models.AllChannels), d.policy.Lease)
	if err != nil {
		return apperrors.DatabaseError(err)
	}
	return d.process(db, rows)
}

func (d *notificationDeliverer) DeliverDue(db *gorm.DB, limit int) (int, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := d.deliveryRepo.ClaimDue(db, "", d.now(), limit, d.policy.Lease)
	if err != nil {
		return 0, apperrors.DatabaseError(err)
	}
	return len(rows), d.process(db, rows)
}

// recipientState - то, что нужно всем каналам одного уведомления
type recipientState struct {
	notification  *models.Notification
	contact       *models.RecipientContact
	subscriptions []models.PushSubscription
}

func (d *notificationDeliverer) process(db *gorm.DB, rows []models.NotificationDelivery) error {
	if len(rows) == 0 {
		return nil
	}

	states := make(map[string]*recipientState)
	for _, row := range rows {
		if _, ok := states[row.NotificationID]; ok {
			continue
		}
		state, err := d.loadState(db, row.NotificationID)
		if err != nil {
			return err
		}
		states[row.NotificationID] = state
	}

	// каналы независимы, ошибка одного не отменяет остальные
	var g errgroup.Group
	for _, row := range rows {
		row := row
		state := states[row.NotificationID]
		g.Go(func() error {
			d.attempt(db, state, row)
			return nil
		})
	}
	return g.Wait()
}

func (d *notificationDeliverer) loadState(db *gorm.DB, notificationID string) (*recipientState, error) {
	notification, err := d.notificationRepo.FindByID(db, notificationID)
	if err != nil {
		return nil, apperrors.DatabaseError(err)
	}

	state := &recipientState{notification: notification}

	contact, err := d.contactRepo.FindContact(db, notification.RecipientID)
	switch {
	case err == nil:
		state.contact = contact
	case !errors.Is(err, repositories.ErrContactNotFound):
		return nil, apperrors.DatabaseError(err)
	}

	if _, ok := d.senders[models.ChannelPush]; ok {
		subs, err := d.contactRepo.FindSubscriptions(db, notification.RecipientID)
		if err != nil {
			return nil, apperrors.DatabaseError(err)
		}
		state.subscriptions = subs
	}
	return state, nil
}

func (d *notificationDeliverer) attempt(db *gorm.DB, state *recipientState, row models.NotificationDelivery) {
	ctx := ctxFrom(db)
	n := state.notification
	now := d.now()

	if reason := d.skipReason(state, row.Channel, now); reason != "" {
		if err := d.deliveryRepo.MarkSkipped(db, row.ID, reason); err != nil {
			logger.CtxWithError(ctx, "Failed to mark delivery skipped", err, "delivery_id", row.ID)
		}
		return
	}
	if n.IsSentVia(row.Channel) {
		if err := d.deliveryRepo.MarkSent(db, row.ID, row.Attempts, now); err != nil {
			logger.CtxWithError(ctx, "Failed to mark delivery sent", err, "delivery_id", row.ID)
		}
		return
	}

	attempt := row.Attempts + 1
	err := d.senders[row.Channel].Send(ctx, d.buildMessage(state))
	logger.DeliveryLog(n.ID, string(row.Channel), attempt, err)

	switch {
	case err == nil:
		sentAt := d.now()
		// флаг канала ставится только в true
		if err := d.notificationRepo.MarkChannelSent(db, n.ID, row.Channel, sentAt); err != nil {
			logger.CtxWithError(ctx, "Failed to set channel sent flag", err,
				"notification_id", n.ID, "channel", row.Channel)
			return
		}
		if err := d.deliveryRepo.MarkSent(db, row.ID, attempt, sentAt); err != nil {
			logger.CtxWithError(ctx, "Failed to mark delivery sent", err, "delivery_id", row.ID)
		}
	case notify.IsRetryable(err) && attempt < d.policy.MaxAttempts:
		next := now.Add(notify.Backoff(attempt, d.policy.BackoffBase, d.policy.BackoffMax))
		if err := d.deliveryRepo.MarkRetry(db, row.ID, attempt, next, err.Error()); err != nil {
			logger.CtxWithError(ctx, "Failed to schedule delivery retry", err, "delivery_id", row.ID)
		}
	default:
		logger.CtxWarn(ctx, "Delivery channel failed permanently",
			"notification_id", n.ID,
			"channel", row.Channel,
			"attempts", attempt)
		if err := d.deliveryRepo.MarkFailed(db, row.ID, attempt, err.Error()); err != nil {
			logger.CtxWithError(ctx, "Failed to mark delivery failed", err, "delivery_id", row.ID)
		}
	}
}

// skipReason - пустая строка, если канал надо пробовать
func (d *notificationDeliverer) skipReason(state *recipientState, ch models.Channel, now time.Time) string {
	if state.notification.IsExpired(now) {
		return "notification expired"
	}
	if _, ok := d.senders[ch]; !ok {
		return "channel disabled"
	}

	contact := state.contact
	if ch == models.ChannelPush {
		if contact != nil && !contact.PushEnabled {
			return "recipient opted out"
		}
		if len(state.subscriptions) == 0 {
			return "no push subscriptions"
		}
		return ""
	}
	if contact == nil || !contact.Allows(ch) {
		return "recipient opted out or has no address"
	}
	return ""
}

func (d *notificationDeliverer) buildMessage(state *recipientState) notify.Message {
	n := state.notification
	msg := notify.Message{
		NotificationID: n.ID,
		RecipientID:    n.RecipientID,
		Type:           n.Type,
		Priority:       n.Priority,
		Title:          n.Title,
		Body:           n.Message,
		Subscriptions:  state.subscriptions,
	}
	if n.ShortMessage != nil {
		msg.ShortBody = *n.ShortMessage
	}
	if n.ActionURL != nil {
		msg.ActionURL = *n.ActionURL
	}
	if n.ActionText != nil {
		msg.ActionText = *n.ActionText
	}
	if state.contact != nil {
		msg.Email = state.contact.Email
		msg.Phone = state.contact.Phone
	}
	return msg
}
