package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"mwork_messaging/internal/config"
	"mwork_messaging/internal/logger"

	"github.com/google/uuid"
)

// Типы событий
const (
	TypeMessageSent           = "message.sent"
	TypeNotificationRequested = "notification.requested"
)

var ErrBusClosed = errors.New("event bus is closed")

// Event - конверт доменного события. Payload - JSON конкретного типа.
type Event struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload"`
}

// MessageSent публикуется после коммита отправки сообщения
type MessageSent struct {
	MessageID      string    `json:"message_id"`
	ConversationID string    `json:"conversation_id"`
	SenderID       string    `json:"sender_id"`
	ReceiverID     string    `json:"receiver_id"`
	Preview        string    `json:"preview"`
	SentAt         time.Time `json:"sent_at"`
}

// NotificationRequested - запрос внешнего продюсера (шорт-лист, собеседование)
type NotificationRequested struct {
	RecipientID    string            `json:"recipient_id"`
	Type           string            `json:"type"`
	ContextIDs     map[string]string `json:"context_ids,omitempty"`
	Priority       string            `json:"priority,omitempty"`
	Title          string            `json:"title"`
	Message        string            `json:"message"`
	ShortMessage   string            `json:"short_message,omitempty"`
	ActionURL      string            `json:"action_url,omitempty"`
	ActionText     string            `json:"action_text,omitempty"`
	IdempotencyKey string            `json:"idempotency_key,omitempty"`
}

// Handler обрабатывает событие. Redis и kafka повторяют ошибку на месте по RetryPolicy,
// затем redis оставляет событие в PEL, а kafka пропускает его. Memory не повторяет.
type Handler func(ctx context.Context, evt Event) error

type Publisher interface {
	Publish(ctx context.Context, evt Event) error
}

// Bus - публикация и подписка. Subscribe блокирует до отмены ctx.
type Bus interface {
	Publisher
	Subscribe(ctx context.Context, handler Handler) error
	Close() error
}

// New собирает событие с id и временем
func New(eventType string, payload interface{}) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("failed to marshal %s payload: %w", eventType, err)
	}
	return Event{
		ID:         uuid.NewString(),
		Type:       eventType,
		OccurredAt: time.Now().UTC(),
		Payload:    raw,
	}, nil
}

// Decode разбирает payload в v
func (e Event) Decode(v interface{}) error {
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("failed to decode %s payload: %w", e.Type, err)
	}
	return nil
}

func encode(evt Event) ([]byte, error) {
	return json.Marshal(evt)
}

func decode(data []byte) (Event, error) {
	var evt Event
	if err := json.Unmarshal(data, &evt); err != nil {
		return Event{}, err
	}
	if evt.Type == "" {
		return Event{}, errors.New("event without type")
	}
	return evt, nil
}

// RetryPolicy - повтор обработчика на месте с экспоненциальной паузой
type RetryPolicy struct {
	Attempts int
	Base     time.Duration
	Max      time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Attempts: 5, Base: 200 * time.Millisecond, Max: 5 * time.Second}
}

func (p RetryPolicy) delay(attempt int) time.Duration {
	d := p.Base
	for i := 1; i < attempt && d < p.Max; i++ {
		d *= 2
	}
	if d > p.Max {
		d = p.Max
	}
	return d
}

// handleWithRetry возвращает последнюю ошибку, если все попытки исчерпаны или ctx отменен
func handleWithRetry(ctx context.Context, handler Handler, evt Event, policy RetryPolicy) error {
	attempts := policy.Attempts
	if attempts < 1 {
		attempts = 1
	}
	for attempt := 1; ; attempt++ {
		err := handler(ctx, evt)
		if err == nil {
			return nil
		}
		if attempt >= attempts || ctx.Err() != nil {
			return err
		}
		logger.CtxWarn(ctx, "Event handler failed, retrying",
			"event_id", evt.ID, "type", evt.Type, "attempt", attempt, "error", err)
		sleep(ctx, policy.delay(attempt))
	}
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// NewBus выбирает транспорт по events.driver
func NewBus(cfg *config.Config) (Bus, error) {
	retry := DefaultRetryPolicy()
	if cfg.Events.HandlerAttempts > 0 {
		retry.Attempts = cfg.Events.HandlerAttempts
	}

	switch cfg.Events.Driver {
	case "", "memory":
		return NewMemoryBus(cfg.Events.BufferSize), nil
	case "redis":
		bus, err := NewRedisBus(RedisOptions{
			URL:    cfg.Events.RedisURL,
			Stream: cfg.Events.Stream,
			Group:  cfg.Events.ConsumerGroup,
			MaxLen: cfg.Events.StreamMaxLen,
			Retry:  retry,

			PendingRescan: time.Duration(cfg.Events.PendingRescan) * time.Second,
		})
		if err != nil {
			return nil, err
		}
		return bus, nil
	case "kafka":
		bus, err := NewKafkaBus(KafkaOptions{
			Brokers: cfg.Events.KafkaBrokers,
			Topic:   cfg.Events.Topic,
			GroupID: cfg.Events.ConsumerGroup,
			Retry:   retry,
		})
		if err != nil {
			return nil, err
		}
		return bus, nil
	}
	return nil, fmt.Errorf("unknown events driver %q", cfg.Events.Driver)
}
