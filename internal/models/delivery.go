package models

import "time"

// NotificationDelivery - строка outbox на каждый канал уведомления.
// Воркер забирает pending-строки с истекшим next_attempt_at.
type NotificationDelivery struct {
	BaseModel
	NotificationID string         `gorm:"type:varchar(36);not null;uniqueIndex:ux_delivery_notification_channel,priority:1"`
	Channel        Channel        `gorm:"type:varchar(16);not null;uniqueIndex:ux_delivery_notification_channel,priority:2"`
	Status         DeliveryStatus `gorm:"type:varchar(16);not null;index:idx_delivery_due,priority:1"`
	Attempts       int            `gorm:"not null;default:0"`
	NextAttemptAt  time.Time      `gorm:"not null;index:idx_delivery_due,priority:2"`
	LockedUntil    *time.Time
	LastError      string `gorm:"type:text"`
	SentAt         *time.Time
}

func (NotificationDelivery) TableName() string {
	return "notification_deliveries"
}
