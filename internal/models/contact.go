package models

import "time"

// RecipientContact - адреса доставки и согласие пользователя на каналы
type RecipientContact struct {
	UserID       string `gorm:"type:varchar(36);primaryKey"`
	Email        string `gorm:"type:varchar(255)"`
	Phone        string `gorm:"type:varchar(32)"`
	EmailEnabled bool   `gorm:"not null"`
	SMSEnabled   bool   `gorm:"column:sms_enabled;not null"`
	PushEnabled  bool   `gorm:"not null"`
	UpdatedAt    time.Time
}

func (RecipientContact) TableName() string {
	return "recipient_contacts"
}

// Allows - включен ли канал и есть ли куда доставлять
func (c *RecipientContact) Allows(ch Channel) bool {
	switch ch {
	case ChannelEmail:
		return c.EmailEnabled && c.Email != ""
	case ChannelSMS:
		return c.SMSEnabled && c.Phone != ""
	case ChannelPush:
		return c.PushEnabled
	}
	return false
}

// PushSubscription - web push подписка браузера пользователя
type PushSubscription struct {
	BaseModel
	UserID   string `gorm:"type:varchar(36);not null;index"`
	Endpoint string `gorm:"type:varchar(512);not null;uniqueIndex"`
	P256dh   string `gorm:"type:varchar(255);not null"`
	Auth     string `gorm:"type:varchar(255);not null"`
}

func (PushSubscription) TableName() string {
	return "push_subscriptions"
}
