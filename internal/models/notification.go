package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Notification - запись уведомления. После создания меняются только
// read-флаги и однонаправленные флаги доставки.
type Notification struct {
	BaseModel
	RecipientID  string               `gorm:"type:varchar(36);not null;index:idx_notifications_recipient_created,priority:1"`
	Type         string               `gorm:"type:varchar(64);not null"`
	Title        string               `gorm:"type:varchar(255);not null"`
	Message      string               `gorm:"type:text"`
	ShortMessage *string              `gorm:"type:varchar(255)"`
	Priority     NotificationPriority `gorm:"type:varchar(16);not null;default:'medium'"`
	IsRead       bool                 `gorm:"not null;default:false"`
	ReadAt       *time.Time
	ActionURL    *string `gorm:"type:varchar(1024)"`
	ActionText   *string `gorm:"type:varchar(128)"`
	IsEmailSent  bool    `gorm:"not null;default:false"`
	IsSmsSent    bool    `gorm:"not null;default:false"`
	IsPushSent   bool    `gorm:"not null;default:false"`
	ScheduledAt  *time.Time
	SentAt       *time.Time
	ExpiresAt    *time.Time
	VisibleAt    time.Time         `gorm:"not null;index"`
	DedupKey     string            `gorm:"type:varchar(64);index"`
	Data         datatypes.JSONMap // context ids события: {"conversation_id": "...", "application_id": "..."}
}

func (n *Notification) BeforeCreate(tx *gorm.DB) error {
	if err := n.BaseModel.BeforeCreate(tx); err != nil {
		return err
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = tx.NowFunc().UTC().Truncate(time.Microsecond)
	}
	if n.VisibleAt.IsZero() {
		n.VisibleAt = VisibleFrom(n.CreatedAt, n.ScheduledAt)
	}
	return nil
}

// VisibleFrom = max(created_at, scheduled_at). С этого момента уведомление в ленте,
// по этому времени сравнивается курсор поллинга.
func VisibleFrom(createdAt time.Time, scheduledAt *time.Time) time.Time {
	if scheduledAt != nil && scheduledAt.After(createdAt) {
		return scheduledAt.UTC().Truncate(time.Microsecond)
	}
	return createdAt
}

func (Notification) TableName() string {
	return "notifications"
}

// IsSentVia сообщает, отмечен ли канал как доставленный
func (n *Notification) IsSentVia(ch Channel) bool {
	switch ch {
	case ChannelEmail:
		return n.IsEmailSent
	case ChannelSMS:
		return n.IsSmsSent
	case ChannelPush:
		return n.IsPushSent
	}
	return false
}

// IsExpired - истекшие уведомления не доставляются и не показываются в ленте
func (n *Notification) IsExpired(now time.Time) bool {
	return n.ExpiresAt != nil && !n.ExpiresAt.After(now)
}

// SentFlagColumn - колонка однонаправленного флага канала
func SentFlagColumn(ch Channel) string {
	switch ch {
	case ChannelEmail:
		return "is_email_sent"
	case ChannelSMS:
		return "is_sms_sent"
	case ChannelPush:
		return "is_push_sent"
	}
	return ""
}
