package chat

import (
	"encoding/json"
	"time"

	"mwork_messaging/internal/models"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Attachment - описание вложения, хранится JSON-массивом в сообщении
type Attachment struct {
	URL  string `json:"url"`
	Type string `json:"type"`
	Size int64  `json:"size"`
	Name string `json:"name,omitempty"`
}

// Message - запись лога сообщений. conversation_id, sender_id, receiver_id не меняются.
type Message struct {
	ID               string             `gorm:"type:varchar(36);primaryKey"`
	ConversationID   string             `gorm:"type:varchar(36);not null;index:idx_messages_conversation_order,priority:1"`
	SenderID         string             `gorm:"type:varchar(36);not null;index"`
	ReceiverID       string             `gorm:"type:varchar(36);not null;index:idx_messages_receiver_unread,priority:1"`
	MessageType      models.MessageKind `gorm:"type:varchar(32);not null;default:'text'"`
	Content          string             `gorm:"type:text;not null"`
	Attachments      datatypes.JSON
	IsRead           bool `gorm:"not null;default:false;index:idx_messages_receiver_unread,priority:2"`
	ReadAt           *time.Time
	IsDelivered      bool `gorm:"not null;default:false"`
	DeliveredAt      *time.Time
	IsEdited         bool `gorm:"not null;default:false"`
	EditedAt         *time.Time
	ReplyToMessageID *string `gorm:"type:varchar(36);index"`
	Metadata         datatypes.JSON
	CreatedAt        time.Time `gorm:"not null;index:idx_messages_conversation_order,priority:2"`
	UpdatedAt        time.Time `gorm:"autoUpdateTime"`
}

func (Message) TableName() string {
	return "messages"
}

func (m *Message) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	return nil
}

// AttachmentList декодирует вложения; битый JSON дает пустой список
func (m *Message) AttachmentList() []Attachment {
	if len(m.Attachments) == 0 {
		return []Attachment{}
	}
	var list []Attachment
	if err := json.Unmarshal(m.Attachments, &list); err != nil {
		return []Attachment{}
	}
	return list
}

func EncodeAttachments(list []Attachment) (datatypes.JSON, error) {
	if list == nil {
		list = []Attachment{}
	}
	raw, err := json.Marshal(list)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(raw), nil
}
