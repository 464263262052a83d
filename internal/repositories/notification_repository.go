package repositories

import (
	"errors"
	"time"

	"mwork_messaging/internal/models"

	"gorm.io/gorm"
)

var ErrNotificationNotFound = errors.New("notification not found")

type NotificationRepository interface {
	Create(db *gorm.DB, notification *models.Notification) error
	FindByID(db *gorm.DB, id string) (*models.Notification, error)
	// FindUnreadDuplicate ищет непрочитанное уведомление с тем же ключом, созданное не раньше since
	FindUnreadDuplicate(db *gorm.DB, recipientID, dedupKey string, since time.Time) (*models.Notification, error)
	MarkRead(db *gorm.DB, id string, at time.Time) error
	// Видимые уведомления: наступил visible_at и не истек expires_at.
	// Лента и курсор поллинга упорядочены по visible_at, а не по created_at.
	FindRecent(db *gorm.DB, userID string, limit int, now time.Time) ([]models.Notification, error)
	FindSince(db *gorm.DB, userID string, since time.Time, limit int, now time.Time) ([]models.Notification, error)
	NewestVisibleAt(db *gorm.DB, userID string, now time.Time) (*time.Time, error)
	CountUnread(db *gorm.DB, userID string, now time.Time) (int64, error)
	// MarkChannelSent только выставляет флаг в true, обратного перехода нет
	MarkChannelSent(db *gorm.DB, id string, channel models.Channel, at time.Time) error
}

type NotificationRepositoryImpl struct{}

func NewNotificationRepository() NotificationRepository {
	return &NotificationRepositoryImpl{}
}

func visible(db *gorm.DB, userID string, now time.Time) *gorm.DB {
	return db.Model(&models.Notification{}).
		Where("recipient_id = ?", userID).
		Where("visible_at <= ?", now).
		Where("(expires_at IS NULL OR expires_at > ?)", now)
}

func (r *NotificationRepositoryImpl) Create(db *gorm.DB, notification *models.Notification) error {
	if notification.RecipientID == "" || notification.Type == "" {
		return errors.New("invalid notification data")
	}
	return db.Create(notification).Error
}

func (r *NotificationRepositoryImpl) FindByID(db *gorm.DB, id string) (*models.Notification, error) {
	var notification models.Notification
	if err := db.First(&notification, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotificationNotFound
		}
		return nil, err
	}
	return &notification, nil
}

func (r *NotificationRepositoryImpl) FindUnreadDuplicate(db *gorm.DB, recipientID, dedupKey string, since time.Time) (*models.Notification, error) {
	var notification models.Notification
	err := db.
		Where("recipient_id = ? AND dedup_key = ? AND is_read = ? AND created_at >= ?", recipientID, dedupKey, false, since).
		Order("created_at DESC").
		First(&notification).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotificationNotFound
		}
		return nil, err
	}
	return &notification, nil
}

func (r *NotificationRepositoryImpl) MarkRead(db *gorm.DB, id string, at time.Time) error {
	return db.Model(&models.Notification{}).
		Where("id = ? AND is_read = ?", id, false).
		Updates(map[string]interface{}{
			"is_read": true,
			"read_at": at,
		}).Error
}

func (r *NotificationRepositoryImpl) FindRecent(db *gorm.DB, userID string, limit int, now time.Time) ([]models.Notification, error) {
	var notifications []models.Notification
	err := visible(db, userID, now).
		Order("visible_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&notifications).Error
	return notifications, err
}

func (r *NotificationRepositoryImpl) FindSince(db *gorm.DB, userID string, since time.Time, limit int, now time.Time) ([]models.Notification, error) {
	var notifications []models.Notification
	err := visible(db, userID, now).
		Where("visible_at > ?", since).
		Order("visible_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&notifications).Error
	return notifications, err
}

func (r *NotificationRepositoryImpl) NewestVisibleAt(db *gorm.DB, userID string, now time.Time) (*time.Time, error) {
	var newest models.Notification
	err := visible(db, userID, now).
		Select("visible_at").
		Order("visible_at DESC").
		Limit(1).
		Take(&newest).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &newest.VisibleAt, nil
}

func (r *NotificationRepositoryImpl) CountUnread(db *gorm.DB, userID string, now time.Time) (int64, error) {
	var count int64
	err := visible(db, userID, now).Where("is_read = ?", false).Count(&count).Error
	return count, err
}

func (r *NotificationRepositoryImpl) MarkChannelSent(db *gorm.DB, id string, channel models.Channel, at time.Time) error {
	column := models.SentFlagColumn(channel)
	if column == "" {
		return errors.New("unknown delivery channel")
	}
	return db.Model(&models.Notification{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			column:    true,
			"sent_at": gorm.Expr("COALESCE(sent_at, ?)", at),
		}).Error
}
