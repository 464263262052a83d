package sms

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"mwork_messaging/internal/notify"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKafkaProviderPublishesJob(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		var job Job
		if err := json.Unmarshal(val, &job); err != nil {
			return err
		}
		if job.Phone != "+77010000000" || job.Text != "Вас добавили в шорт-лист" || job.NotificationID != "n-1" {
			return errors.New("unexpected job payload")
		}
		return nil
	})

	p := NewKafkaProvider(producer, "sms.outgoing", "MWORK")
	err := p.Send(context.Background(), notify.Message{
		NotificationID: "n-1",
		Title:          "Вас добавили в шорт-лист",
		Phone:          "+77010000000",
	})
	require.NoError(t, err)
	require.NoError(t, p.Close())
}

func TestKafkaProviderBrokerFailureIsTemporary(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageAndFail(sarama.ErrNotEnoughReplicas)

	p := NewKafkaProvider(producer, "sms.outgoing", "")
	err := p.Send(context.Background(), notify.Message{NotificationID: "n-2", Title: "t", Phone: "+7"})
	require.Error(t, err)
	assert.True(t, notify.IsRetryable(err))
	require.NoError(t, p.Close())
}

func TestSendWithoutPhoneIsPermanent(t *testing.T) {
	err := LogProvider{}.Send(context.Background(), notify.Message{Title: "t"})
	require.Error(t, err)
	assert.False(t, notify.IsRetryable(err))
}

func TestTextPrefersShortMessage(t *testing.T) {
	assert.Equal(t, "short", Text(notify.Message{Title: "long title", ShortBody: "short"}))
	assert.Equal(t, "long title", Text(notify.Message{Title: "long title"}))

	long := strings.Repeat("a", 400)
	assert.Len(t, Text(notify.Message{Title: long}), maxTextLength)
}
