package notify

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"mwork_messaging/internal/models"
)

// Message - то, что уходит во внешний канал. Собирается доставщиком
// из уведомления и контактов получателя.
type Message struct {
	NotificationID string
	RecipientID    string
	Type           string
	Priority       models.NotificationPriority
	Title          string
	Body           string
	ShortBody      string
	ActionURL      string
	ActionText     string

	Email         string
	Phone         string
	Subscriptions []models.PushSubscription
}

// Sender - транспорт одного канала (email, sms, push)
type Sender interface {
	Channel() models.Channel
	Send(ctx context.Context, msg Message) error
}

// TemporaryError помечает сбой, после которого попытку стоит повторить
type TemporaryError struct{ Err error }

func (e *TemporaryError) Error() string {
	if e.Err == nil {
		return "temporary delivery error"
	}
	return e.Err.Error()
}

func (e *TemporaryError) Unwrap() error { return e.Err }

func Temporary(err error) error {
	if err == nil {
		return nil
	}
	return &TemporaryError{Err: err}
}

func IsRetryable(err error) bool {
	var te *TemporaryError
	return errors.As(err, &te)
}

// Backoff: base * 2^(attempt-1) с потолком max и джиттером до 20%
func Backoff(attempt int, base, max time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := base
	for i := 1; i < attempt && d < max; i++ {
		d *= 2
	}
	if d > max {
		d = max
	}
	if jitter := int64(d) / 5; jitter > 0 {
		d += time.Duration(rand.Int63n(jitter))
	}
	return d
}

// Preview обрезает текст для SMS и push
func Preview(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	if limit <= 3 {
		return string(runes[:limit])
	}
	return string(runes[:limit-3]) + "..."
}
