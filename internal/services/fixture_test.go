package services_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"mwork_messaging/internal/events"
	"mwork_messaging/internal/models"
	"mwork_messaging/internal/models/chat"
	"mwork_messaging/internal/notify"
	"mwork_messaging/internal/repositories"
	"mwork_messaging/internal/services"
	"mwork_messaging/pkg/apperrors"
	"mwork_messaging/test/helpers"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var startTime = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: startTime}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// recordingQueue запоминает поставленные в очередь уведомления
type recordingQueue struct {
	mu   sync.Mutex
	ids  []string
	full bool
}

func (q *recordingQueue) Enqueue(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.full {
		return false
	}
	q.ids = append(q.ids, id)
	return true
}

func (q *recordingQueue) IDs() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]string(nil), q.ids...)
}

// recordingPublisher складывает события вместо шины
type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, evt events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, evt)
	return nil
}

func (p *recordingPublisher) Events() []events.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]events.Event(nil), p.events...)
}

// fakeSender возвращает ошибки из errs по очереди, потом успех
type fakeSender struct {
	channel models.Channel
	mu      sync.Mutex
	errs    []error
	sent    []notify.Message
}

func newFakeSender(channel models.Channel, errs ...error) *fakeSender {
	return &fakeSender{channel: channel, errs: errs}
}

func (s *fakeSender) Channel() models.Channel {
	return s.channel
}

func (s *fakeSender) Send(_ context.Context, msg notify.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, msg)
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		return err
	}
	return nil
}

func (s *fakeSender) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

func (s *fakeSender) Last() notify.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sent[len(s.sent)-1]
}

type rejectReferences struct{}

func (rejectReferences) Exists(context.Context, *string, *string) (bool, error) {
	return false, nil
}

type fixture struct {
	db        *gorm.DB
	clock     *testClock
	queue     *recordingQueue
	publisher *recordingPublisher

	conversations repositories.ConversationRepository
	messages      repositories.MessageRepository
	notifications repositories.NotificationRepository
	deliveries    repositories.DeliveryRepository
	contacts      repositories.ContactRepository
	idempotency   repositories.IdempotencyRepository

	store      services.MessageStore
	registry   services.ConversationRegistry
	dispatcher services.NotificationDispatcher
	gateway    services.PollingGateway
	contactSvc services.ContactService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		db:            helpers.NewTestDB(t),
		clock:         newTestClock(),
		queue:         &recordingQueue{},
		publisher:     &recordingPublisher{},
		conversations: repositories.NewConversationRepository(),
		messages:      repositories.NewMessageRepository(),
		notifications: repositories.NewNotificationRepository(),
		deliveries:    repositories.NewDeliveryRepository(),
		contacts:      repositories.NewContactRepository(),
		idempotency:   repositories.NewIdempotencyRepository(),
	}

	f.store = services.NewMessageStore(f.conversations, f.messages, 1024, f.clock.Now)
	f.registry = services.NewConversationRegistry(
		f.conversations, f.messages, f.idempotency, f.store,
		services.AcceptAllReferences{}, f.publisher, time.Hour, f.clock.Now,
	)
	f.dispatcher = services.NewNotificationDispatcher(
		f.notifications, f.deliveries, f.idempotency, f.queue,
		10*time.Minute, time.Hour, f.clock.Now,
	)
	f.gateway = services.NewPollingGateway(f.registry, f.store, f.dispatcher, f.messages, f.notifications, f.clock.Now)
	f.contactSvc = services.NewContactService(f.db, f.contacts, f.clock.Now)
	return f
}

func (f *fixture) deliverer(policy services.DeliveryPolicy, senders ...notify.Sender) services.NotificationDeliverer {
	return services.NewNotificationDeliverer(f.notifications, f.deliveries, f.contacts, policy, f.clock.Now, senders...)
}

func (f *fixture) conversation(t *testing.T, a, b string) *chat.Conversation {
	t.Helper()
	conversation, _, err := f.registry.FindOrCreate(f.db, services.FindOrCreateInput{UserA: a, UserB: b})
	require.NoError(t, err)
	return conversation
}

func (f *fixture) send(t *testing.T, conversationID, senderID, content string) *chat.Message {
	t.Helper()
	message, _, err := f.registry.Send(f.db, services.SendInput{
		ConversationID: conversationID,
		SenderID:       senderID,
		Content:        content,
	})
	require.NoError(t, err)
	return message
}

func (f *fixture) reload(t *testing.T, conversationID string) *chat.Conversation {
	t.Helper()
	conversation, err := f.conversations.FindByID(f.db, conversationID)
	require.NoError(t, err)
	return conversation
}

func (f *fixture) deliveriesByChannel(t *testing.T, notificationID string) map[models.Channel]models.NotificationDelivery {
	t.Helper()
	rows, err := f.deliveries.FindByNotification(f.db, notificationID)
	require.NoError(t, err)
	byChannel := make(map[models.Channel]models.NotificationDelivery, len(rows))
	for _, row := range rows {
		byChannel[row.Channel] = row
	}
	return byChannel
}

func requireAppCode(t *testing.T, err error, code apperrors.ErrorCode) {
	t.Helper()
	require.Error(t, err)
	appErr, ok := apperrors.AsAppError(err)
	require.True(t, ok, "ожидалась AppError, получено: %v", err)
	require.Equal(t, code, appErr.Code)
}

var errBoom = errors.New("boom")
