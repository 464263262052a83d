package dto

import "time"

// ---------------- Requests ----------------

// DispatchNotificationRequest - запрос внутреннего продюсера события
type DispatchNotificationRequest struct {
	RecipientID    string                 `json:"recipient_id" validate:"required,max=36"`
	Type           string                 `json:"type" validate:"required,max=64"`
	ContextIDs     map[string]string      `json:"context_ids,omitempty"`
	Priority       string                 `json:"priority" validate:"omitempty,notification_priority"`
	Title          string                 `json:"title" validate:"required,max=255"`
	Message        string                 `json:"message" validate:"omitempty,max=2000"`
	ShortMessage   *string                `json:"short_message,omitempty" validate:"omitempty,max=255"`
	ActionURL      *string                `json:"action_url,omitempty" validate:"omitempty,max=1024"`
	ActionText     *string                `json:"action_text,omitempty" validate:"omitempty,max=128"`
	ScheduledAt    *time.Time             `json:"scheduled_at,omitempty"`
	ExpiresAt      *time.Time             `json:"expires_at,omitempty"`
	Data           map[string]interface{} `json:"data,omitempty"`
	IdempotencyKey string                 `json:"idempotency_key,omitempty" validate:"omitempty,max=128"`
}

type UpdateContactsRequest struct {
	Email        string `json:"email" validate:"omitempty,email,max=255"`
	Phone        string `json:"phone" validate:"omitempty,e164"`
	EmailEnabled bool   `json:"email_enabled"`
	SMSEnabled   bool   `json:"sms_enabled"`
	PushEnabled  bool   `json:"push_enabled"`
}

type PushKeys struct {
	P256dh string `json:"p256dh" validate:"required,max=255"`
	Auth   string `json:"auth" validate:"required,max=255"`
}

type PushSubscriptionRequest struct {
	Endpoint string   `json:"endpoint" validate:"required,url,max=512"`
	Keys     PushKeys `json:"keys"`
}

type PushUnsubscribeRequest struct {
	Endpoint string `json:"endpoint" validate:"required,url,max=512"`
}

// ---------------- Responses ----------------

type NotificationResponse struct {
	ID           string                 `json:"id"`
	RecipientID  string                 `json:"recipient_id"`
	Type         string                 `json:"type"`
	Title        string                 `json:"title"`
	Message      string                 `json:"message"`
	ShortMessage *string                `json:"short_message,omitempty"`
	Priority     string                 `json:"priority"`
	IsRead       bool                   `json:"is_read"`
	ReadAt       *time.Time             `json:"read_at,omitempty"`
	ActionURL    *string                `json:"action_url,omitempty"`
	ActionText   *string                `json:"action_text,omitempty"`
	IsEmailSent  bool                   `json:"is_email_sent"`
	IsSmsSent    bool                   `json:"is_sms_sent"`
	IsPushSent   bool                   `json:"is_push_sent"`
	ScheduledAt  *time.Time             `json:"scheduled_at,omitempty"`
	SentAt       *time.Time             `json:"sent_at,omitempty"`
	ExpiresAt    *time.Time             `json:"expires_at,omitempty"`
	Data         map[string]interface{} `json:"data,omitempty"`
	VisibleAt    time.Time              `json:"visible_at"`
	CreatedAt    time.Time              `json:"created_at"`
}

type NotificationListResponse struct {
	Notifications []*NotificationResponse `json:"notifications"`
	UnreadCount   int64                   `json:"unread_count"`
}

// PollResponse: unread_count - для бейджа, has_new - для одноразового алерта.
// newest_at клиент передает следующим запросом как since.
type PollResponse struct {
	Notifications []*NotificationResponse `json:"notifications"`
	HasNew        bool                    `json:"has_new"`
	NewestAt      *time.Time              `json:"newest_at,omitempty"`
	UnreadCount   int64                   `json:"unread_count"`
	ServerTime    time.Time               `json:"server_time"`
}

type DispatchResponse struct {
	Notification *NotificationResponse `json:"notification"`
	Created      bool                  `json:"created"`
	Deduplicated bool                  `json:"deduplicated"`
}

type ContactsResponse struct {
	Email        string    `json:"email"`
	Phone        string    `json:"phone"`
	EmailEnabled bool      `json:"email_enabled"`
	SMSEnabled   bool      `json:"sms_enabled"`
	PushEnabled  bool      `json:"push_enabled"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type PushSubscriptionResponse struct {
	ID        string    `json:"id"`
	Endpoint  string    `json:"endpoint"`
	CreatedAt time.Time `json:"created_at"`
}
