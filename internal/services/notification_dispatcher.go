package services

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sort"
	"strconv"
	"strings"
	"time"

	"mwork_messaging/internal/logger"
	"mwork_messaging/internal/models"
	"mwork_messaging/internal/repositories"
	"mwork_messaging/pkg/apperrors"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// DefaultDedupWindow - окно подавления повторов, настраивается notifications.dedup_window
const DefaultDedupWindow = 10 * time.Minute

// DeliveryQueue - асинхронная доставка. false = очередь полна, строку заберет outbox поллер.
type DeliveryQueue interface {
	Enqueue(notificationID string) bool
}

type DispatchEvent struct {
	RecipientID    string
	Type           string
	ContextIDs     map[string]string
	Priority       models.NotificationPriority
	Title          string
	Message        string
	ShortMessage   *string
	ActionURL      *string
	ActionText     *string
	ScheduledAt    *time.Time
	ExpiresAt      *time.Time
	Data           map[string]interface{}
	IdempotencyKey string
	// RequestedBy - владелец ключа идемпотентности, по умолчанию system
	RequestedBy string
}

type DispatchResult struct {
	Notification *models.Notification
	Created      bool
	Deduplicated bool
	Replayed     bool
}

type NotificationDispatcher interface {
	Dispatch(db *gorm.DB, event DispatchEvent) (*DispatchResult, error)
	MarkRead(db *gorm.DB, notificationID, readerID string) (*models.Notification, error)
	ListRecent(db *gorm.DB, userID string, limit int) ([]models.Notification, error)
}

type notificationDispatcher struct {
	notificationRepo repositories.NotificationRepository
	deliveryRepo     repositories.DeliveryRepository
	idempotency      *idempotencyGuard
	queue            DeliveryQueue
	dedupWindow      time.Duration
	now              Clock
}

func NewNotificationDispatcher(
	notificationRepo repositories.NotificationRepository,
	deliveryRepo repositories.DeliveryRepository,
	idempotencyRepo repositories.IdempotencyRepository,
	queue DeliveryQueue,
	dedupWindow time.Duration,
	idempotencyTTL time.Duration,
	now Clock,
) NotificationDispatcher {
	if dedupWindow <= 0 {
		dedupWindow = DefaultDedupWindow
	}
	if now == nil {
		now = utcNow
	}
	return &notificationDispatcher{
		notificationRepo: notificationRepo,
		deliveryRepo:     deliveryRepo,
		idempotency:      newIdempotencyGuard(idempotencyRepo, idempotencyTTL, now),
		queue:            queue,
		dedupWindow:      dedupWindow,
		now:              now,
	}
}

// DedupKey: одинаковые (получатель, тип, context ids) дают один ключ при любом порядке ids.
// Каждая часть пишется с префиксом длины, поэтому разделители внутри значений не склеивают разные наборы.
func DedupKey(recipientID, notificationType string, contextIDs map[string]string) string {
	keys := make([]string, 0, len(contextIDs))
	for k := range contextIDs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	writePart(&b, recipientID)
	writePart(&b, notificationType)
	for _, k := range keys {
		writePart(&b, k)
		writePart(&b, contextIDs[k])
	}

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

func writePart(b *strings.Builder, part string) {
	b.WriteString(strconv.Itoa(len(part)))
	b.WriteByte(':')
	b.WriteString(part)
}

func (d *notificationDispatcher) Dispatch(db *gorm.DB, event DispatchEvent) (*DispatchResult, error) {
	now := d.now()
	if err := d.validate(&event, now); err != nil {
		return nil, err
	}

	dedupKey := DedupKey(event.RecipientID, event.Type, event.ContextIDs)
	owner := event.RequestedBy
	if owner == "" {
		owner = string(models.UserRoleSystem)
	}
	hash := requestHash(dedupKey, event.Title, event.Message)

	tx := db.Begin()
	if tx.Error != nil {
		return nil, apperrors.InternalError(tx.Error)
	}
	defer tx.Rollback()

	resourceID, replayed, err := d.idempotency.lookup(tx, owner, ScopeDispatch, event.IdempotencyKey, hash)
	if err != nil {
		return nil, err
	}
	if replayed {
		notification, err := d.notificationRepo.FindByID(tx, resourceID)
		if err != nil {
			return nil, apperrors.DatabaseError(err)
		}
		if err := tx.Commit().Error; err != nil {
			return nil, apperrors.InternalError(err)
		}
		return &DispatchResult{Notification: notification, Replayed: true}, nil
	}

	// политика, а не ограничение уникальности: гонка двух dispatch даст два уведомления
	duplicate, err := d.notificationRepo.FindUnreadDuplicate(tx, event.RecipientID, dedupKey, now.Add(-d.dedupWindow))
	if err != nil && !errors.Is(err, repositories.ErrNotificationNotFound) {
		return nil, apperrors.DatabaseError(err)
	}
	if duplicate != nil {
		if err := d.idempotency.remember(tx, owner, ScopeDispatch, event.IdempotencyKey, hash, duplicate.ID); err != nil {
			return nil, err
		}
		if err := tx.Commit().Error; err != nil {
			return nil, apperrors.InternalError(err)
		}
		logger.CtxInfo(ctxFrom(db), "Notification deduplicated",
			"notification_id", duplicate.ID,
			"recipient_id", event.RecipientID,
			"type", event.Type)
		return &DispatchResult{Notification: duplicate, Deduplicated: true}, nil
	}

	notification := &models.Notification{
		RecipientID:  event.RecipientID,
		Type:         event.Type,
		Title:        event.Title,
		Message:      event.Message,
		ShortMessage: event.ShortMessage,
		Priority:     event.Priority,
		ActionURL:    event.ActionURL,
		ActionText:   event.ActionText,
		ScheduledAt:  event.ScheduledAt,
		ExpiresAt:    event.ExpiresAt,
		DedupKey:     dedupKey,
		Data:         notificationData(event),
	}
	// точность как у postgres, чтобы created_at из ответа совпадал с курсором поллинга
	notification.CreatedAt = now.Truncate(time.Microsecond)
	notification.VisibleAt = models.VisibleFrom(notification.CreatedAt, event.ScheduledAt)
	if err := d.notificationRepo.Create(tx, notification); err != nil {
		return nil, apperrors.DatabaseError(err)
	}

	firstAttempt := now
	if event.ScheduledAt != nil && event.ScheduledAt.After(now) {
		firstAttempt = event.ScheduledAt.UTC()
	}
	deliveries := make([]*models.NotificationDelivery, 0, len(models.AllChannels))
	for _, ch := range models.AllChannels {
		deliveries = append(deliveries, &models.NotificationDelivery{
			NotificationID: notification.ID,
			Channel:        ch,
			Status:         models.DeliveryPending,
			NextAttemptAt:  firstAttempt,
		})
	}
	if err := d.deliveryRepo.CreateBatch(tx, deliveries); err != nil {
		return nil, apperrors.DatabaseError(err)
	}

	if err := d.idempotency.remember(tx, owner, ScopeDispatch, event.IdempotencyKey, hash, notification.ID); err != nil {
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, apperrors.InternalError(err)
	}

	logger.CtxInfo(ctxFrom(db), "Notification dispatched",
		"notification_id", notification.ID,
		"recipient_id", notification.RecipientID,
		"type", notification.Type)

	// доставка не на пути вызывающего
	if d.queue != nil && !firstAttempt.After(now) {
		if !d.queue.Enqueue(notification.ID) {
			logger.CtxWarn(ctxFrom(db), "Delivery queue is full, leaving notification to outbox poller",
				"notification_id", notification.ID)
		}
	}

	return &DispatchResult{Notification: notification, Created: true}, nil
}

func (d *notificationDispatcher) validate(event *DispatchEvent, now time.Time) error {
	details := map[string]string{}
	if strings.TrimSpace(event.RecipientID) == "" {
		details["recipient_id"] = "recipient is required"
	}
	if strings.TrimSpace(event.Type) == "" {
		details["type"] = "type is required"
	}
	if strings.TrimSpace(event.Title) == "" {
		details["title"] = "title is required"
	}
	if event.ExpiresAt != nil && !event.ExpiresAt.After(now) {
		details["expires_at"] = "must be in the future"
	}
	if event.ExpiresAt != nil && event.ScheduledAt != nil && !event.ExpiresAt.After(*event.ScheduledAt) {
		details["expires_at"] = "must be after scheduled_at"
	}
	if len(details) > 0 {
		return apperrors.ValidationError(details)
	}

	if event.Priority == "" {
		event.Priority = models.PriorityMedium
	}
	if !event.Priority.IsValid() {
		return apperrors.ErrInvalidPriority
	}
	return nil
}

// notificationData: произвольные данные продюсера плюс context ids поверх них
func notificationData(event DispatchEvent) datatypes.JSONMap {
	if len(event.Data) == 0 && len(event.ContextIDs) == 0 {
		return nil
	}
	data := datatypes.JSONMap{}
	for k, v := range event.Data {
		data[k] = v
	}
	for k, v := range event.ContextIDs {
		data[k] = v
	}
	return data
}

func (d *notificationDispatcher) MarkRead(db *gorm.DB, notificationID, readerID string) (*models.Notification, error) {
	notification, err := d.notificationRepo.FindByID(db, notificationID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotificationNotFound) {
			return nil, apperrors.ErrNotificationNotFound
		}
		return nil, apperrors.DatabaseError(err)
	}
	if notification.RecipientID != readerID {
		return nil, apperrors.ErrNotificationAccessDenied
	}
	if notification.IsRead {
		return notification, nil
	}

	readAt := d.now()
	if err := d.notificationRepo.MarkRead(db, notification.ID, readAt); err != nil {
		return nil, apperrors.DatabaseError(err)
	}
	notification.IsRead = true
	notification.ReadAt = &readAt
	return notification, nil
}

func (d *notificationDispatcher) ListRecent(db *gorm.DB, userID string, limit int) ([]models.Notification, error) {
	notifications, err := d.notificationRepo.FindRecent(db, userID, normalizeLimit(limit), d.now())
	if err != nil {
		return nil, apperrors.DatabaseError(err)
	}
	return notifications, nil
}
