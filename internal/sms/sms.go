package sms

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"mwork_messaging/internal/config"
	"mwork_messaging/internal/logger"
	"mwork_messaging/internal/models"
	"mwork_messaging/internal/notify"

	"github.com/IBM/sarama"
)

const maxTextLength = 160

// Job - сообщение в топике SMS-шлюза
type Job struct {
	NotificationID string    `json:"notification_id"`
	Phone          string    `json:"phone"`
	SenderID       string    `json:"sender_id,omitempty"`
	Text           string    `json:"text"`
	CreatedAt      time.Time `json:"created_at"`
}

// KafkaProvider публикует SMS-задания в Kafka, отправкой занимается шлюз
type KafkaProvider struct {
	producer sarama.SyncProducer
	topic    string
	senderID string
}

// NewKafkaProducer - идемпотентный продюсер с подтверждением от всех реплик
func NewKafkaProducer(brokers []string) (sarama.SyncProducer, error) {
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	cfg.Producer.Idempotent = true
	cfg.Net.MaxOpenRequests = 1
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 5
	return sarama.NewSyncProducer(brokers, cfg)
}

func NewKafkaProvider(producer sarama.SyncProducer, topic, senderID string) *KafkaProvider {
	return &KafkaProvider{producer: producer, topic: topic, senderID: senderID}
}

func (p *KafkaProvider) Channel() models.Channel {
	return models.ChannelSMS
}

func (p *KafkaProvider) Send(ctx context.Context, msg notify.Message) error {
	if msg.Phone == "" {
		return errors.New("recipient has no phone number")
	}

	payload, err := json.Marshal(Job{
		NotificationID: msg.NotificationID,
		Phone:          msg.Phone,
		SenderID:       p.senderID,
		Text:           Text(msg),
		CreatedAt:      time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal sms job: %w", err)
	}

	record := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(msg.NotificationID),
		Value: sarama.ByteEncoder(payload),
	}

	done := make(chan error, 1)
	go func() {
		_, _, err := p.producer.SendMessage(record)
		done <- err
	}()

	select {
	case <-ctx.Done():
		return notify.Temporary(ctx.Err())
	case err := <-done:
		if err != nil {
			return notify.Temporary(err)
		}
		return nil
	}
}

func (p *KafkaProvider) Close() error {
	return p.producer.Close()
}

// LogProvider только пишет SMS в лог (локальная разработка без брокера)
type LogProvider struct{}

func (LogProvider) Channel() models.Channel {
	return models.ChannelSMS
}

func (LogProvider) Send(ctx context.Context, msg notify.Message) error {
	if msg.Phone == "" {
		return errors.New("recipient has no phone number")
	}
	logger.CtxInfo(ctx, "SMS delivery (log only)",
		"notification_id", msg.NotificationID,
		"phone", msg.Phone,
		"text", Text(msg),
	)
	return nil
}

// Text - короткий текст SMS: short_message, иначе заголовок
func Text(msg notify.Message) string {
	text := msg.ShortBody
	if text == "" {
		text = msg.Title
	}
	return notify.Preview(text, maxTextLength)
}

// New выбирает провайдер по конфигу; nil - канал выключен
func New(cfg *config.Config) (notify.Sender, func() error, error) {
	if !cfg.SMS.Enabled {
		return nil, func() error { return nil }, nil
	}
	if len(cfg.SMS.Brokers) == 0 {
		logger.Warn("SMS brokers are not configured, using log provider")
		return LogProvider{}, func() error { return nil }, nil
	}
	producer, err := NewKafkaProducer(cfg.SMS.Brokers)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create sms producer: %w", err)
	}
	provider := NewKafkaProvider(producer, cfg.SMS.Topic, cfg.SMS.SenderID)
	return provider, provider.Close, nil
}
