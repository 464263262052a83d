package repositories_test

import (
	"testing"
	"time"

	"mwork_messaging/internal/models"
	"mwork_messaging/internal/models/chat"
	"mwork_messaging/internal/repositories"
	"mwork_messaging/test/helpers"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var baseTime = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

func TestConversationRepository_FindByPairIsSymmetric(t *testing.T) {
	db := helpers.NewTestDB(t)
	repo := repositories.NewConversationRepository()

	a, b := helpers.NewUserID(), helpers.NewUserID()
	conversation := &chat.Conversation{
		Participant1ID:   a,
		Participant2ID:   b,
		ConversationType: models.ConversationGeneral,
		IsActive:         true,
	}
	require.NoError(t, repo.Create(db, conversation))
	assert.Equal(t, chat.PairKey(a, b), conversation.PairKey)

	found, err := repo.FindByPair(db, b, a)
	require.NoError(t, err)
	assert.Equal(t, conversation.ID, found.ID)

	_, err = repo.FindByPair(db, a, helpers.NewUserID())
	assert.ErrorIs(t, err, repositories.ErrConversationNotFound)
}

func TestConversationRepository_PairIsUnique(t *testing.T) {
	db := helpers.NewTestDB(t)
	repo := repositories.NewConversationRepository()

	a, b := helpers.NewUserID(), helpers.NewUserID()
	require.NoError(t, repo.Create(db, &chat.Conversation{Participant1ID: a, Participant2ID: b, ConversationType: models.ConversationGeneral, IsActive: true}))

	err := repo.Create(db, &chat.Conversation{Participant1ID: b, Participant2ID: a, ConversationType: models.ConversationGeneral, IsActive: true})
	assert.Error(t, err, "вторая запись для той же пары должна упасть на уникальном индексе")
}

func TestConversationRepository_ListOrdersByLastMessageWithEmptyLast(t *testing.T) {
	db := helpers.NewTestDB(t)
	repo := repositories.NewConversationRepository()
	user := helpers.NewUserID()

	create := func() *chat.Conversation {
		c := &chat.Conversation{Participant1ID: user, Participant2ID: helpers.NewUserID(), ConversationType: models.ConversationGeneral, IsActive: true}
		require.NoError(t, repo.Create(db, c))
		return c
	}
	empty := create()
	older := create()
	newer := create()
	archived := create()

	require.NoError(t, repo.SetLastMessage(db, older.ID, "m-1", baseTime, 0))
	require.NoError(t, repo.SetLastMessage(db, newer.ID, "m-2", baseTime.Add(time.Minute), 1))
	require.NoError(t, repo.SetLastMessage(db, archived.ID, "m-3", baseTime.Add(2*time.Minute), 0))
	require.NoError(t, repo.SetArchived(db, archived.ID, user, baseTime))

	list, err := repo.FindUserConversations(db, user, false)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, newer.ID, list[0].ID)
	assert.Equal(t, older.ID, list[1].ID)
	assert.Equal(t, empty.ID, list[2].ID)

	list, err = repo.FindUserConversations(db, user, true)
	require.NoError(t, err)
	require.Len(t, list, 4)
	assert.Equal(t, archived.ID, list[0].ID)
}

func TestConversationRepository_UnreadCache(t *testing.T) {
	db := helpers.NewTestDB(t)
	repo := repositories.NewConversationRepository()

	c := &chat.Conversation{Participant1ID: helpers.NewUserID(), Participant2ID: helpers.NewUserID(), ConversationType: models.ConversationGeneral, IsActive: true}
	require.NoError(t, repo.Create(db, c))

	require.NoError(t, repo.SetLastMessage(db, c.ID, "m-1", baseTime, 1))
	require.NoError(t, repo.IncrementUnread(db, c.ID, "m-2", baseTime.Add(time.Second)))

	found, err := repo.FindByID(db, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, found.UnreadCount)
	require.NotNil(t, found.LastMessageID)
	assert.Equal(t, "m-2", *found.LastMessageID)

	require.NoError(t, repo.ResetUnread(db, c.ID))
	found, err = repo.FindByID(db, c.ID)
	require.NoError(t, err)
	assert.Zero(t, found.UnreadCount)

	assert.ErrorIs(t, repo.IncrementUnread(db, "missing", "m-3", baseTime), repositories.ErrConversationNotFound)
}

func TestMessageRepository_PagingAndUnread(t *testing.T) {
	db := helpers.NewTestDB(t)
	conversations := repositories.NewConversationRepository()
	messages := repositories.NewMessageRepository()

	a, b := helpers.NewUserID(), helpers.NewUserID()
	c := &chat.Conversation{Participant1ID: a, Participant2ID: b, ConversationType: models.ConversationGeneral, IsActive: true}
	require.NoError(t, conversations.Create(db, c))

	for i := 0; i < 5; i++ {
		sender, receiver := a, b
		if i%2 == 1 {
			sender, receiver = b, a
		}
		require.NoError(t, messages.Create(db, &chat.Message{
			ConversationID: c.ID,
			SenderID:       sender,
			ReceiverID:     receiver,
			MessageType:    models.MessageText,
			Content:        "msg",
			CreatedAt:      baseTime.Add(time.Duration(i) * time.Second),
		}))
	}

	total, err := messages.CountByConversation(db, c.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(5), total)

	page, err := messages.FindPage(db, c.ID, repositories.Offset(1, 2), 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.True(t, page[0].CreatedAt.After(page[1].CreatedAt), "первая страница - самые свежие")
	assert.True(t, page[0].CreatedAt.Equal(baseTime.Add(4*time.Second)))

	latest, err := messages.LatestCreatedAt(db, c.ID)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.True(t, latest.Equal(baseTime.Add(4*time.Second)))

	unreadB, err := messages.CountUnread(db, c.ID, b)
	require.NoError(t, err)
	assert.Equal(t, int64(3), unreadB)

	marked, err := messages.MarkRead(db, c.ID, b, baseTime.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(3), marked)

	byConversation, err := messages.CountUnreadByConversation(db, a, []string{c.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(2), byConversation[c.ID])

	unreadB, err = messages.CountUnread(db, c.ID, b)
	require.NoError(t, err)
	assert.Zero(t, unreadB)
}

func TestNotificationRepository_VisibilityWindow(t *testing.T) {
	db := helpers.NewTestDB(t)
	repo := repositories.NewNotificationRepository()
	user := helpers.NewUserID()

	later := baseTime.Add(time.Hour)
	past := baseTime.Add(-time.Minute)

	visible := &models.Notification{RecipientID: user, Type: "t", Title: "visible", Priority: models.PriorityMedium}
	visible.CreatedAt = baseTime.Add(-2 * time.Minute)
	scheduled := &models.Notification{RecipientID: user, Type: "t", Title: "scheduled", Priority: models.PriorityMedium, ScheduledAt: &later}
	scheduled.CreatedAt = baseTime.Add(-time.Minute)
	expired := &models.Notification{RecipientID: user, Type: "t", Title: "expired", Priority: models.PriorityMedium, ExpiresAt: &past}
	expired.CreatedAt = baseTime.Add(-3 * time.Minute)

	for _, n := range []*models.Notification{visible, scheduled, expired} {
		require.NoError(t, repo.Create(db, n))
	}

	recent, err := repo.FindRecent(db, user, 10, baseTime)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, visible.ID, recent[0].ID)

	newest, err := repo.NewestVisibleAt(db, user, baseTime)
	require.NoError(t, err)
	require.NotNil(t, newest)
	assert.True(t, newest.Equal(visible.CreatedAt))
	assert.True(t, scheduled.VisibleAt.Equal(later))

	unread, err := repo.CountUnread(db, user, baseTime)
	require.NoError(t, err)
	assert.Equal(t, int64(1), unread)

	// после scheduled_at уведомление появляется в ленте
	recent, err = repo.FindRecent(db, user, 10, later)
	require.NoError(t, err)
	assert.Len(t, recent, 2)

	none, err := repo.NewestVisibleAt(db, helpers.NewUserID(), baseTime)
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestNotificationRepository_MarkChannelSentKeepsFirstSentAt(t *testing.T) {
	db := helpers.NewTestDB(t)
	repo := repositories.NewNotificationRepository()

	n := &models.Notification{RecipientID: helpers.NewUserID(), Type: "t", Title: "x", Priority: models.PriorityMedium}
	require.NoError(t, repo.Create(db, n))

	require.NoError(t, repo.MarkChannelSent(db, n.ID, models.ChannelEmail, baseTime))
	require.NoError(t, repo.MarkChannelSent(db, n.ID, models.ChannelSMS, baseTime.Add(time.Minute)))

	found, err := repo.FindByID(db, n.ID)
	require.NoError(t, err)
	assert.True(t, found.IsEmailSent)
	assert.True(t, found.IsSmsSent)
	assert.False(t, found.IsPushSent)
	require.NotNil(t, found.SentAt)
	assert.True(t, found.SentAt.Equal(baseTime))

	assert.Error(t, repo.MarkChannelSent(db, n.ID, models.Channel("fax"), baseTime))
}

func TestDeliveryRepository_ClaimDueLeasesRows(t *testing.T) {
	db := helpers.NewTestDB(t)
	notifications := repositories.NewNotificationRepository()
	deliveries := repositories.NewDeliveryRepository()

	n := &models.Notification{RecipientID: helpers.NewUserID(), Type: "t", Title: "x", Priority: models.PriorityMedium}
	require.NoError(t, notifications.Create(db, n))

	rows := []*models.NotificationDelivery{
		{NotificationID: n.ID, Channel: models.ChannelEmail, Status: models.DeliveryPending, NextAttemptAt: baseTime},
		{NotificationID: n.ID, Channel: models.ChannelSMS, Status: models.DeliveryPending, NextAttemptAt: baseTime.Add(time.Hour)},
		{NotificationID: n.ID, Channel: models.ChannelPush, Status: models.DeliverySent, NextAttemptAt: baseTime},
	}
	require.NoError(t, deliveries.CreateBatch(db, rows))

	claimed, err := deliveries.ClaimDue(db, "", baseTime, 10, time.Minute)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, models.ChannelEmail, claimed[0].Channel)

	// строка в аренде не выдается повторно
	again, err := deliveries.ClaimDue(db, n.ID, baseTime.Add(30*time.Second), 10, time.Minute)
	require.NoError(t, err)
	assert.Empty(t, again)

	// после истечения аренды строка снова доступна
	again, err = deliveries.ClaimDue(db, n.ID, baseTime.Add(2*time.Minute), 10, time.Minute)
	require.NoError(t, err)
	assert.Len(t, again, 1)

	require.NoError(t, deliveries.MarkRetry(db, claimed[0].ID, 1, baseTime.Add(10*time.Minute), "timeout"))
	stored, err := deliveries.FindByNotification(db, n.ID)
	require.NoError(t, err)
	for _, row := range stored {
		if row.Channel == models.ChannelEmail {
			assert.Equal(t, models.DeliveryPending, row.Status)
			assert.Equal(t, 1, row.Attempts)
			assert.Equal(t, "timeout", row.LastError)
			assert.Nil(t, row.LockedUntil)
		}
	}
}

func TestDeliveryRepository_SkipExpired(t *testing.T) {
	db := helpers.NewTestDB(t)
	notifications := repositories.NewNotificationRepository()
	deliveries := repositories.NewDeliveryRepository()

	expiresAt := baseTime.Add(-time.Minute)
	expired := &models.Notification{RecipientID: helpers.NewUserID(), Type: "t", Title: "x", Priority: models.PriorityMedium, ExpiresAt: &expiresAt}
	fresh := &models.Notification{RecipientID: helpers.NewUserID(), Type: "t", Title: "y", Priority: models.PriorityMedium}
	require.NoError(t, notifications.Create(db, expired))
	require.NoError(t, notifications.Create(db, fresh))

	require.NoError(t, deliveries.CreateBatch(db, []*models.NotificationDelivery{
		{NotificationID: expired.ID, Channel: models.ChannelEmail, Status: models.DeliveryPending, NextAttemptAt: baseTime},
		{NotificationID: expired.ID, Channel: models.ChannelSMS, Status: models.DeliverySent, NextAttemptAt: baseTime},
		{NotificationID: fresh.ID, Channel: models.ChannelEmail, Status: models.DeliveryPending, NextAttemptAt: baseTime},
	}))

	skipped, err := deliveries.SkipExpired(db, baseTime)
	require.NoError(t, err)
	assert.Equal(t, int64(1), skipped)

	rows, err := deliveries.FindByNotification(db, expired.ID)
	require.NoError(t, err)
	for _, row := range rows {
		if row.Channel == models.ChannelEmail {
			assert.Equal(t, models.DeliverySkipped, row.Status)
		}
	}

	// само уведомление остается
	_, err = notifications.FindByID(db, expired.ID)
	assert.NoError(t, err)
}

func TestIdempotencyRepository_DeleteExpired(t *testing.T) {
	db := helpers.NewTestDB(t)
	repo := repositories.NewIdempotencyRepository()
	user := helpers.NewUserID()

	require.NoError(t, repo.Create(db, &models.IdempotencyKey{UserID: user, Scope: "s", Key: "old", RequestHash: "h", ResourceID: "r1", ExpiresAt: baseTime.Add(-time.Second)}))
	require.NoError(t, repo.Create(db, &models.IdempotencyKey{UserID: user, Scope: "s", Key: "new", RequestHash: "h", ResourceID: "r2", ExpiresAt: baseTime.Add(time.Hour)}))

	err := repo.Create(db, &models.IdempotencyKey{UserID: user, Scope: "s", Key: "new", RequestHash: "h2", ResourceID: "r3", ExpiresAt: baseTime.Add(time.Hour)})
	assert.Error(t, err, "ключ уникален в пределах пользователя и scope")

	purged, err := repo.DeleteExpired(db, baseTime)
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged)

	_, err = repo.Find(db, user, "s", "old")
	assert.ErrorIs(t, err, repositories.ErrIdempotencyKeyNotFound)

	record, err := repo.Find(db, user, "s", "new")
	require.NoError(t, err)
	assert.Equal(t, "r2", record.ResourceID)
}

func TestContactRepository_Subscriptions(t *testing.T) {
	db := helpers.NewTestDB(t)
	repo := repositories.NewContactRepository()
	user := helpers.NewUserID()

	_, err := repo.FindContact(db, user)
	assert.ErrorIs(t, err, repositories.ErrContactNotFound)

	require.NoError(t, repo.UpsertContact(db, &models.RecipientContact{UserID: user, Email: "a@b.kz", EmailEnabled: true}))
	require.NoError(t, repo.UpsertContact(db, &models.RecipientContact{UserID: user, Email: "c@d.kz", EmailEnabled: false}))
	contact, err := repo.FindContact(db, user)
	require.NoError(t, err)
	assert.Equal(t, "c@d.kz", contact.Email)
	assert.False(t, contact.EmailEnabled)

	endpoint := "https://push.example.com/sub/1"
	require.NoError(t, repo.UpsertSubscription(db, &models.PushSubscription{UserID: user, Endpoint: endpoint, P256dh: "k", Auth: "a"}))
	subs, err := repo.FindSubscriptions(db, user)
	require.NoError(t, err)
	require.Len(t, subs, 1)

	require.NoError(t, repo.DeleteSubscriptionByEndpoint(db, endpoint))
	subs, err = repo.FindSubscriptions(db, user)
	require.NoError(t, err)
	assert.Empty(t, subs)
}
