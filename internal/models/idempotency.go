package models

import "time"

// IdempotencyKey - результат уже обработанного запроса по (user, scope, key).
// Повтор в пределах TTL возвращает исходный ресурс без повторных побочных эффектов.
type IdempotencyKey struct {
	BaseModel
	UserID      string    `gorm:"type:varchar(36);not null;uniqueIndex:ux_idempotency_user_scope_key,priority:1"`
	Scope       string    `gorm:"type:varchar(64);not null;uniqueIndex:ux_idempotency_user_scope_key,priority:2"`
	Key         string    `gorm:"column:idem_key;type:varchar(128);not null;uniqueIndex:ux_idempotency_user_scope_key,priority:3"`
	RequestHash string    `gorm:"type:varchar(64);not null"`
	ResourceID  string    `gorm:"type:varchar(36);not null"`
	ExpiresAt   time.Time `gorm:"not null;index"`
}

func (IdempotencyKey) TableName() string {
	return "idempotency_keys"
}

// AllModels - порядок для AutoMigrate
func AllModels() []interface{} {
	return []interface{}{
		&Notification{},
		&NotificationDelivery{},
		&RecipientContact{},
		&PushSubscription{},
		&IdempotencyKey{},
	}
}
