package services_test

import (
	"testing"
	"time"

	"mwork_messaging/internal/models"
	"mwork_messaging/internal/notify"
	"mwork_messaging/internal/services"
	"mwork_messaging/test/helpers"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testPolicy = services.DeliveryPolicy{
	MaxAttempts: 3,
	BackoffBase: time.Second,
	BackoffMax:  4 * time.Second,
	Lease:       30 * time.Second,
}

func (f *fixture) saveContact(t *testing.T, contact models.RecipientContact) {
	t.Helper()
	contact.UpdatedAt = f.clock.Now()
	require.NoError(t, f.contacts.UpsertContact(f.db, &contact))
}

func (f *fixture) saveSubscription(t *testing.T, userID, endpoint string) {
	t.Helper()
	require.NoError(t, f.contacts.UpsertSubscription(f.db, &models.PushSubscription{
		UserID:   userID,
		Endpoint: endpoint,
		P256dh:   "p256dh-key",
		Auth:     "auth-secret",
	}))
}

func (f *fixture) dispatch(t *testing.T, event services.DispatchEvent) *models.Notification {
	t.Helper()
	result, err := f.dispatcher.Dispatch(f.db, event)
	require.NoError(t, err)
	require.True(t, result.Created)
	return result.Notification
}

func TestNotificationDeliverer_DeliversAllChannels(t *testing.T) {
	f := newFixture(t)
	recipient := helpers.NewUserID()
	f.saveContact(t, models.RecipientContact{
		UserID: recipient, Email: "candidate@example.com", Phone: "+77011234567",
		EmailEnabled: true, SMSEnabled: true, PushEnabled: true,
	})
	f.saveSubscription(t, recipient, "https://push.example.com/sub/1")

	emailSender := newFakeSender(models.ChannelEmail)
	smsSender := newFakeSender(models.ChannelSMS)
	pushSender := newFakeSender(models.ChannelPush)
	deliverer := f.deliverer(testPolicy, emailSender, smsSender, pushSender)

	actionURL := "https://mwork.kz/applications/app-1"
	event := shortlistEvent(recipient, "app-1")
	event.ActionURL = &actionURL
	n := f.dispatch(t, event)

	require.NoError(t, deliverer.Deliver(f.db, n.ID))

	assert.Equal(t, 1, emailSender.Calls())
	assert.Equal(t, 1, smsSender.Calls())
	assert.Equal(t, 1, pushSender.Calls())

	msg := emailSender.Last()
	assert.Equal(t, n.ID, msg.NotificationID)
	assert.Equal(t, "candidate@example.com", msg.Email)
	assert.Equal(t, "+77011234567", msg.Phone)
	assert.Equal(t, event.Title, msg.Title)
	assert.Equal(t, actionURL, msg.ActionURL)
	require.Len(t, pushSender.Last().Subscriptions, 1)

	for ch, row := range f.deliveriesByChannel(t, n.ID) {
		assert.Equal(t, models.DeliverySent, row.Status, "channel %s", ch)
		assert.Equal(t, 1, row.Attempts)
		assert.NotNil(t, row.SentAt)
		assert.Nil(t, row.LockedUntil)
	}

	stored, err := f.notifications.FindByID(f.db, n.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsEmailSent)
	assert.True(t, stored.IsSmsSent)
	assert.True(t, stored.IsPushSent)
	require.NotNil(t, stored.SentAt)

	// повторный запуск ничего не отправляет
	require.NoError(t, deliverer.Deliver(f.db, n.ID))
	assert.Equal(t, 1, emailSender.Calls())
}

func TestNotificationDeliverer_SkipsUnavailableChannels(t *testing.T) {
	f := newFixture(t)
	recipient := helpers.NewUserID()
	// email выключен, телефона нет, push включен, но подписок нет
	f.saveContact(t, models.RecipientContact{
		UserID: recipient, Email: "candidate@example.com",
		EmailEnabled: false, SMSEnabled: false, PushEnabled: true,
	})

	emailSender := newFakeSender(models.ChannelEmail)
	pushSender := newFakeSender(models.ChannelPush)
	deliverer := f.deliverer(testPolicy, emailSender, pushSender)

	n := f.dispatch(t, shortlistEvent(recipient, "app-1"))
	require.NoError(t, deliverer.Deliver(f.db, n.ID))

	assert.Zero(t, emailSender.Calls())
	assert.Zero(t, pushSender.Calls())

	byChannel := f.deliveriesByChannel(t, n.ID)
	assert.Equal(t, models.DeliverySkipped, byChannel[models.ChannelEmail].Status)
	assert.Equal(t, "recipient opted out or has no address", byChannel[models.ChannelEmail].LastError)
	assert.Equal(t, models.DeliverySkipped, byChannel[models.ChannelSMS].Status)
	assert.Equal(t, "channel disabled", byChannel[models.ChannelSMS].LastError)
	assert.Equal(t, models.DeliverySkipped, byChannel[models.ChannelPush].Status)
	assert.Equal(t, "no push subscriptions", byChannel[models.ChannelPush].LastError)
}

func TestNotificationDeliverer_PushOptOut(t *testing.T) {
	f := newFixture(t)
	recipient := helpers.NewUserID()
	f.saveContact(t, models.RecipientContact{UserID: recipient, PushEnabled: false})
	f.saveSubscription(t, recipient, "https://push.example.com/sub/2")

	pushSender := newFakeSender(models.ChannelPush)
	deliverer := f.deliverer(testPolicy, pushSender)

	n := f.dispatch(t, shortlistEvent(recipient, "app-1"))
	require.NoError(t, deliverer.Deliver(f.db, n.ID))

	assert.Zero(t, pushSender.Calls())
	row := f.deliveriesByChannel(t, n.ID)[models.ChannelPush]
	assert.Equal(t, models.DeliverySkipped, row.Status)
	assert.Equal(t, "recipient opted out", row.LastError)
}

func TestNotificationDeliverer_NoContactSkipsAddressedChannels(t *testing.T) {
	f := newFixture(t)
	recipient := helpers.NewUserID()

	smsSender := newFakeSender(models.ChannelSMS)
	deliverer := f.deliverer(testPolicy, smsSender)

	n := f.dispatch(t, shortlistEvent(recipient, "app-1"))
	require.NoError(t, deliverer.Deliver(f.db, n.ID))

	assert.Zero(t, smsSender.Calls())
	row := f.deliveriesByChannel(t, n.ID)[models.ChannelSMS]
	assert.Equal(t, models.DeliverySkipped, row.Status)
	assert.Equal(t, "recipient opted out or has no address", row.LastError)
}

func TestNotificationDeliverer_RetriesTemporaryErrors(t *testing.T) {
	f := newFixture(t)
	recipient := helpers.NewUserID()
	f.saveContact(t, models.RecipientContact{UserID: recipient, Email: "candidate@example.com", EmailEnabled: true})

	emailSender := newFakeSender(models.ChannelEmail, notify.Temporary(errBoom))
	deliverer := f.deliverer(testPolicy, emailSender)

	n := f.dispatch(t, shortlistEvent(recipient, "app-1"))
	require.NoError(t, deliverer.Deliver(f.db, n.ID))

	row := f.deliveriesByChannel(t, n.ID)[models.ChannelEmail]
	assert.Equal(t, models.DeliveryPending, row.Status)
	assert.Equal(t, 1, row.Attempts)
	assert.Equal(t, "boom", row.LastError)
	assert.True(t, row.NextAttemptAt.After(startTime))
	assert.False(t, row.NextAttemptAt.After(startTime.Add(testPolicy.BackoffBase*6/5)))

	// до next_attempt_at повтора нет
	require.NoError(t, deliverer.Deliver(f.db, n.ID))
	assert.Equal(t, 1, emailSender.Calls())

	f.clock.Advance(5 * time.Second)
	processed, err := deliverer.DeliverDue(f.db, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, processed)
	assert.Equal(t, 2, emailSender.Calls())

	row = f.deliveriesByChannel(t, n.ID)[models.ChannelEmail]
	assert.Equal(t, models.DeliverySent, row.Status)
	assert.Equal(t, 2, row.Attempts)
	assert.Empty(t, row.LastError)
}

func TestNotificationDeliverer_PermanentErrorFailsImmediately(t *testing.T) {
	f := newFixture(t)
	recipient := helpers.NewUserID()
	f.saveContact(t, models.RecipientContact{UserID: recipient, Phone: "+77011234567", SMSEnabled: true})

	smsSender := newFakeSender(models.ChannelSMS, errBoom)
	deliverer := f.deliverer(testPolicy, smsSender)

	n := f.dispatch(t, shortlistEvent(recipient, "app-1"))
	require.NoError(t, deliverer.Deliver(f.db, n.ID))

	row := f.deliveriesByChannel(t, n.ID)[models.ChannelSMS]
	assert.Equal(t, models.DeliveryFailed, row.Status)
	assert.Equal(t, 1, row.Attempts)
	assert.Equal(t, "boom", row.LastError)

	stored, err := f.notifications.FindByID(f.db, n.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsSmsSent)
}

func TestNotificationDeliverer_RetriesExhausted(t *testing.T) {
	f := newFixture(t)
	recipient := helpers.NewUserID()
	f.saveContact(t, models.RecipientContact{UserID: recipient, Email: "candidate@example.com", EmailEnabled: true})

	temporary := notify.Temporary(errBoom)
	emailSender := newFakeSender(models.ChannelEmail, temporary, temporary, temporary, temporary)
	deliverer := f.deliverer(testPolicy, emailSender)

	n := f.dispatch(t, shortlistEvent(recipient, "app-1"))
	for i := 0; i < testPolicy.MaxAttempts+1; i++ {
		_, err := deliverer.DeliverDue(f.db, 10)
		require.NoError(t, err)
		f.clock.Advance(10 * time.Second)
	}

	assert.Equal(t, testPolicy.MaxAttempts, emailSender.Calls())
	row := f.deliveriesByChannel(t, n.ID)[models.ChannelEmail]
	assert.Equal(t, models.DeliveryFailed, row.Status)
	assert.Equal(t, testPolicy.MaxAttempts, row.Attempts)
}

func TestNotificationDeliverer_ExpiredNotificationIsSkipped(t *testing.T) {
	f := newFixture(t)
	recipient := helpers.NewUserID()
	f.saveContact(t, models.RecipientContact{UserID: recipient, Email: "candidate@example.com", EmailEnabled: true})
	f.queue.full = true

	emailSender := newFakeSender(models.ChannelEmail)
	deliverer := f.deliverer(testPolicy, emailSender)

	expiresAt := startTime.Add(time.Minute)
	event := shortlistEvent(recipient, "app-1")
	event.ExpiresAt = &expiresAt
	n := f.dispatch(t, event)

	f.clock.Advance(2 * time.Minute)
	require.NoError(t, deliverer.Deliver(f.db, n.ID))

	assert.Zero(t, emailSender.Calls())
	for _, row := range f.deliveriesByChannel(t, n.ID) {
		assert.Equal(t, models.DeliverySkipped, row.Status)
		assert.Equal(t, "notification expired", row.LastError)
	}
}

func TestNotificationDeliverer_AlreadySentChannelIsNotResent(t *testing.T) {
	f := newFixture(t)
	recipient := helpers.NewUserID()
	f.saveContact(t, models.RecipientContact{UserID: recipient, Email: "candidate@example.com", EmailEnabled: true})

	emailSender := newFakeSender(models.ChannelEmail)
	deliverer := f.deliverer(testPolicy, emailSender)

	n := f.dispatch(t, shortlistEvent(recipient, "app-1"))
	// флаг уже выставлен прошлой попыткой, строка outbox осталась pending
	require.NoError(t, f.notifications.MarkChannelSent(f.db, n.ID, models.ChannelEmail, startTime))

	require.NoError(t, deliverer.Deliver(f.db, n.ID))
	assert.Zero(t, emailSender.Calls())
	assert.Equal(t, models.DeliverySent, f.deliveriesByChannel(t, n.ID)[models.ChannelEmail].Status)
}

func TestNotificationDeliverer_ScheduledWaitsForItsTime(t *testing.T) {
	f := newFixture(t)
	recipient := helpers.NewUserID()
	f.saveContact(t, models.RecipientContact{UserID: recipient, Email: "candidate@example.com", EmailEnabled: true})

	emailSender := newFakeSender(models.ChannelEmail)
	deliverer := f.deliverer(testPolicy, emailSender)

	scheduledAt := startTime.Add(time.Hour)
	event := shortlistEvent(recipient, "app-1")
	event.ScheduledAt = &scheduledAt
	f.dispatch(t, event)

	processed, err := deliverer.DeliverDue(f.db, 10)
	require.NoError(t, err)
	assert.Zero(t, processed)

	f.clock.Advance(time.Hour)
	processed, err = deliverer.DeliverDue(f.db, 10)
	require.NoError(t, err)
	assert.Equal(t, len(models.AllChannels), processed)
	assert.Equal(t, 1, emailSender.Calls())
}
