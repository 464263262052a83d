package events

import (
	"context"
	"errors"
	"time"

	"mwork_messaging/internal/logger"

	"github.com/segmentio/kafka-go"
)

type KafkaOptions struct {
	Brokers []string
	Topic   string
	GroupID string
	Retry   RetryPolicy
}

// KafkaBus - kafka-go Writer на публикацию и Reader с group id на чтение.
// Коммит offset двигает группу за все предыдущие сообщения партиции, поэтому
// упавшее событие повторяется на месте (Retry), а после исчерпания попыток
// логируется и пропускается, чтобы не блокировать партицию.
type KafkaBus struct {
	writer *kafka.Writer
	opts   KafkaOptions
}

func NewKafkaBus(opts KafkaOptions) (*KafkaBus, error) {
	if len(opts.Brokers) == 0 {
		return nil, errors.New("kafka brokers are not configured")
	}
	if opts.Topic == "" {
		opts.Topic = "messaging.events"
	}
	if opts.Retry.Attempts == 0 {
		opts.Retry = DefaultRetryPolicy()
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(opts.Brokers...),
		Topic:        opts.Topic,
		RequiredAcks: kafka.RequireAll,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 50 * time.Millisecond,
	}
	return &KafkaBus{writer: w, opts: opts}, nil
}

// Publish: ключ - тип события, события одного типа идут в одну партицию
func (b *KafkaBus) Publish(ctx context.Context, evt Event) error {
	data, err := encode(evt)
	if err != nil {
		return err
	}
	return b.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(evt.Type),
		Value: data,
		Time:  evt.OccurredAt,
	})
}

func (b *KafkaBus) Subscribe(ctx context.Context, handler Handler) error {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  b.opts.Brokers,
		Topic:    b.opts.Topic,
		GroupID:  b.opts.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6,
		MaxWait:  2 * time.Second,
	})
	defer r.Close()

	for {
		msg, err := r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.CtxWithError(ctx, "Kafka fetch failed", err, "topic", b.opts.Topic)
			sleep(ctx, time.Second)
			continue
		}

		evt, err := decode(msg.Value)
		if err != nil {
			logger.CtxWarn(ctx, "Dropping malformed event", "topic", b.opts.Topic, "offset", msg.Offset, "error", err)
		} else if err := handleWithRetry(ctx, handler, evt, b.opts.Retry); err != nil {
			if ctx.Err() != nil {
				// без коммита сообщение перечитается после рестарта
				return ctx.Err()
			}
			logger.CtxWithError(ctx, "Event dropped after retries", err,
				"event_id", evt.ID, "type", evt.Type, "offset", msg.Offset, "attempts", b.opts.Retry.Attempts)
		}

		if err := r.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			logger.CtxWithError(ctx, "Kafka commit failed", err, "offset", msg.Offset)
		}
	}
}

func (b *KafkaBus) Close() error {
	return b.writer.Close()
}
