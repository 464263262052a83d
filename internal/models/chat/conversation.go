package chat

import (
	"sort"
	"strings"
	"time"

	"mwork_messaging/internal/models"

	"gorm.io/datatypes"
)

// Conversation - диалог ровно двух участников.
// PairKey хранит неупорядоченную пару, участники лежат в порядке первого контакта.
type Conversation struct {
	models.BaseModel
	Participant1ID   string                  `gorm:"type:varchar(36);not null;index"`
	Participant2ID   string                  `gorm:"type:varchar(36);not null;index"`
	PairKey          string                  `gorm:"type:varchar(80);not null;uniqueIndex"`
	JobApplicationID *string                 `gorm:"type:varchar(36);index"`
	JobID            *string                 `gorm:"type:varchar(36);index"`
	ConversationType models.ConversationKind `gorm:"type:varchar(32);not null;default:'general'"`
	Title            *string                 `gorm:"type:varchar(255)"`
	LastMessageID    *string                 `gorm:"type:varchar(36)"`
	LastMessageAt    *time.Time              `gorm:"index"`
	UnreadCount      int                     `gorm:"not null;default:0"`
	IsActive         bool                    `gorm:"not null;default:true"`
	IsArchived       bool                    `gorm:"not null;default:false"`
	ArchivedBy       *string                 `gorm:"type:varchar(36)"`
	ArchivedAt       *time.Time
	Metadata         datatypes.JSON
}

func (Conversation) TableName() string {
	return "conversations"
}

// PairKey нормализует пару: (A,B) и (B,A) дают один ключ
func PairKey(userA, userB string) string {
	ids := []string{userA, userB}
	sort.Strings(ids)
	return strings.Join(ids, ":")
}

func (c *Conversation) HasParticipant(userID string) bool {
	return c.Participant1ID == userID || c.Participant2ID == userID
}

// OtherParticipant возвращает собеседника userID
func (c *Conversation) OtherParticipant(userID string) string {
	if c.Participant1ID == userID {
		return c.Participant2ID
	}
	return c.Participant1ID
}

const (
	StateEmpty    = "empty"
	StateActive   = "active"
	StateArchived = "archived"
)

// State - состояние диалога для клиента
func (c *Conversation) State() string {
	switch {
	case c.IsArchived:
		return StateArchived
	case c.LastMessageID == nil:
		return StateEmpty
	default:
		return StateActive
	}
}
