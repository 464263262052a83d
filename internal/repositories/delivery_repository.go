package repositories

import (
	"time"

	"mwork_messaging/internal/models"

	"gorm.io/gorm"
)

// DeliveryRepository - outbox доставок по каналам
type DeliveryRepository interface {
	CreateBatch(db *gorm.DB, deliveries []*models.NotificationDelivery) error
	// ClaimDue берет pending-строки с наступившим next_attempt_at и выставляет аренду.
	// notificationID != "" ограничивает выборку одним уведомлением.
	ClaimDue(db *gorm.DB, notificationID string, now time.Time, limit int, lease time.Duration) ([]models.NotificationDelivery, error)
	FindByNotification(db *gorm.DB, notificationID string) ([]models.NotificationDelivery, error)
	MarkSent(db *gorm.DB, id string, attempts int, at time.Time) error
	MarkRetry(db *gorm.DB, id string, attempts int, next time.Time, lastErr string) error
	MarkFailed(db *gorm.DB, id string, attempts int, lastErr string) error
	MarkSkipped(db *gorm.DB, id, reason string) error
	// SkipExpired закрывает pending-доставки уведомлений с истекшим expires_at
	SkipExpired(db *gorm.DB, now time.Time) (int64, error)
}

type DeliveryRepositoryImpl struct{}

func NewDeliveryRepository() DeliveryRepository {
	return &DeliveryRepositoryImpl{}
}

func (r *DeliveryRepositoryImpl) CreateBatch(db *gorm.DB, deliveries []*models.NotificationDelivery) error {
	if len(deliveries) == 0 {
		return nil
	}
	return db.CreateInBatches(deliveries, 100).Error
}

func (r *DeliveryRepositoryImpl) ClaimDue(db *gorm.DB, notificationID string, now time.Time, limit int, lease time.Duration) ([]models.NotificationDelivery, error) {
	var rows []models.NotificationDelivery

	err := db.Transaction(func(tx *gorm.DB) error {
		query := forUpdateSkipLocked(tx).
			Where("status = ? AND next_attempt_at <= ?", models.DeliveryPending, now).
			Where("(locked_until IS NULL OR locked_until < ?)", now)
		if notificationID != "" {
			query = query.Where("notification_id = ?", notificationID)
		}
		if err := query.Order("next_attempt_at ASC").Limit(limit).Find(&rows).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}

		ids := make([]string, 0, len(rows))
		for _, row := range rows {
			ids = append(ids, row.ID)
		}
		lockedUntil := now.Add(lease)
		for i := range rows {
			rows[i].LockedUntil = &lockedUntil
		}
		return tx.Model(&models.NotificationDelivery{}).
			Where("id IN ?", ids).
			Update("locked_until", lockedUntil).Error
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *DeliveryRepositoryImpl) FindByNotification(db *gorm.DB, notificationID string) ([]models.NotificationDelivery, error) {
	var rows []models.NotificationDelivery
	err := db.Where("notification_id = ?", notificationID).Order("channel ASC").Find(&rows).Error
	return rows, err
}

func (r *DeliveryRepositoryImpl) MarkSent(db *gorm.DB, id string, attempts int, at time.Time) error {
	return db.Model(&models.NotificationDelivery{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":       models.DeliverySent,
			"attempts":     attempts,
			"sent_at":      at,
			"locked_until": nil,
			"last_error":   "",
		}).Error
}

func (r *DeliveryRepositoryImpl) MarkRetry(db *gorm.DB, id string, attempts int, next time.Time, lastErr string) error {
	return db.Model(&models.NotificationDelivery{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":          models.DeliveryPending,
			"attempts":        attempts,
			"next_attempt_at": next,
			"locked_until":    nil,
			"last_error":      lastErr,
		}).Error
}

func (r *DeliveryRepositoryImpl) MarkFailed(db *gorm.DB, id string, attempts int, lastErr string) error {
	return db.Model(&models.NotificationDelivery{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":       models.DeliveryFailed,
			"attempts":     attempts,
			"locked_until": nil,
			"last_error":   lastErr,
		}).Error
}

func (r *DeliveryRepositoryImpl) MarkSkipped(db *gorm.DB, id, reason string) error {
	return db.Model(&models.NotificationDelivery{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":       models.DeliverySkipped,
			"locked_until": nil,
			"last_error":   reason,
		}).Error
}

func (r *DeliveryRepositoryImpl) SkipExpired(db *gorm.DB, now time.Time) (int64, error) {
	expired := db.Model(&models.Notification{}).
		Select("id").
		Where("expires_at IS NOT NULL AND expires_at <= ?", now)

	result := db.Model(&models.NotificationDelivery{}).
		Where("status = ? AND notification_id IN (?)", models.DeliveryPending, expired).
		Updates(map[string]interface{}{
			"status":       models.DeliverySkipped,
			"locked_until": nil,
			"last_error":   "notification expired",
		})
	return result.RowsAffected, result.Error
}
