package dto

import "time"

// ---------------- Requests ----------------

type StartConversationRequest struct {
	ParticipantID    string  `json:"participant_id" validate:"required,max=36"`
	JobApplicationID *string `json:"job_application_id,omitempty" validate:"omitempty,max=36"`
	JobID            *string `json:"job_id,omitempty" validate:"omitempty,max=36"`
	Kind             string  `json:"kind" validate:"omitempty,conversation_kind"`
	Title            *string `json:"title,omitempty" validate:"omitempty,max=255"`
}

type AttachmentRequest struct {
	URL  string `json:"url" validate:"required,url,max=1024"`
	Type string `json:"type" validate:"required,max=64"`
	Size int64  `json:"size" validate:"gte=0"`
	Name string `json:"name,omitempty" validate:"omitempty,max=255"`
}

type PostMessageRequest struct {
	Content          string              `json:"content" validate:"required,max=10000"`
	Kind             string              `json:"kind" validate:"omitempty,message_kind"`
	Attachments      []AttachmentRequest `json:"attachments,omitempty" validate:"omitempty,max=10,dive"`
	ReplyToMessageID *string             `json:"reply_to_message_id,omitempty" validate:"omitempty,max=36"`
}

type EditMessageRequest struct {
	Content string `json:"content" validate:"required,max=10000"`
}

type ConversationListQuery struct {
	IncludeArchived bool `form:"include_archived"`
}

// ---------------- Responses ----------------

type ConversationSummary struct {
	ID                 string     `json:"id"`
	OtherParticipantID string     `json:"other_participant_id"`
	Kind               string     `json:"kind"`
	State              string     `json:"state"`
	Title              *string    `json:"title,omitempty"`
	JobApplicationID   *string    `json:"job_application_id,omitempty"`
	JobID              *string    `json:"job_id,omitempty"`
	LastMessageID      *string    `json:"last_message_id,omitempty"`
	LastMessageAt      *time.Time `json:"last_message_at"`
	UnreadCount        int64      `json:"unread_count"`
	IsArchived         bool       `json:"is_archived"`
	CreatedAt          time.Time  `json:"created_at"`
}

type ConversationListResponse struct {
	Conversations []*ConversationSummary `json:"conversations"`
	Total         int                    `json:"total"`
	TotalUnread   int64                  `json:"total_unread"`
}

type AttachmentResponse struct {
	URL  string `json:"url"`
	Type string `json:"type"`
	Size int64  `json:"size"`
	Name string `json:"name,omitempty"`
}

type MessageResponse struct {
	ID               string                `json:"id"`
	ConversationID   string                `json:"conversation_id"`
	SenderID         string                `json:"sender_id"`
	ReceiverID       string                `json:"receiver_id"`
	Kind             string                `json:"kind"`
	Content          string                `json:"content"`
	Attachments      []*AttachmentResponse `json:"attachments"`
	ReplyToMessageID *string               `json:"reply_to_message_id,omitempty"`
	IsRead           bool                  `json:"is_read"`
	ReadAt           *time.Time            `json:"read_at,omitempty"`
	IsDelivered      bool                  `json:"is_delivered"`
	DeliveredAt      *time.Time            `json:"delivered_at,omitempty"`
	IsEdited         bool                  `json:"is_edited"`
	EditedAt         *time.Time            `json:"edited_at,omitempty"`
	CreatedAt        time.Time             `json:"created_at"`
}

// ThreadResponse - одна страница переписки: страницы идут от новых к старым,
// внутри страницы сообщения от старых к новым
type ThreadResponse struct {
	ConversationID string             `json:"conversation_id"`
	Messages       []*MessageResponse `json:"messages"`
	Page           int                `json:"page"`
	PageSize       int                `json:"page_size"`
	Total          int64              `json:"total"`
	TotalPages     int                `json:"total_pages"`
	HasMore        bool               `json:"has_more"`
}

type MarkReadResponse struct {
	ConversationID string `json:"conversation_id"`
	MarkedCount    int64  `json:"marked_count"`
	UnreadCount    int64  `json:"unread_count"`
}
