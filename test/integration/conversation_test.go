package integration

import (
	"net/http"
	"strings"
	"testing"

	"mwork_messaging/internal/services/dto"
	"mwork_messaging/pkg/apperrors"
	"mwork_messaging/test/helpers"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type errorBody struct {
	Error struct {
		Code    string      `json:"code"`
		Domain  string      `json:"domain"`
		Message string      `json:"message"`
		Details interface{} `json:"details"`
	} `json:"error"`
}

func TestConversationFlow(t *testing.T) {
	ts := helpers.NewTestServer(t)
	employerID, employerToken := helpers.NewEmployer(t)
	candidateID, candidateToken := helpers.NewCandidate(t)
	applicationID := helpers.NewUserID()

	var conversation dto.ConversationSummary

	t.Run("Работодатель начинает диалог по отклику", func(t *testing.T) {
		res, body := ts.SendRequest(t, http.MethodPost, "/api/v1/conversations", employerToken, dto.StartConversationRequest{
			ParticipantID:    candidateID,
			JobApplicationID: &applicationID,
		})
		helpers.AssertStatus(t, http.StatusCreated, res, body)
		helpers.DecodeJSON(t, body, &conversation)

		assert.Equal(t, candidateID, conversation.OtherParticipantID)
		assert.Equal(t, "job_application", conversation.Kind)
		assert.Equal(t, "empty", conversation.State)
	})

	t.Run("Кандидат получает тот же диалог", func(t *testing.T) {
		res, body := ts.SendRequest(t, http.MethodPost, "/api/v1/conversations", candidateToken, dto.StartConversationRequest{
			ParticipantID: employerID,
		})
		helpers.AssertStatus(t, http.StatusOK, res, body)

		var again dto.ConversationSummary
		helpers.DecodeJSON(t, body, &again)
		assert.Equal(t, conversation.ID, again.ID)
		assert.Equal(t, employerID, again.OtherParticipantID)
	})

	var message dto.MessageResponse
	path := "/api/v1/conversations/" + conversation.ID + "/messages"

	t.Run("Работодатель пишет с ключом идемпотентности", func(t *testing.T) {
		headers := map[string]string{"Idempotency-Key": "invite-1"}
		req := dto.PostMessageRequest{Content: "Приглашаем на собеседование в четверг"}

		res, body := ts.SendRequestWithHeaders(t, http.MethodPost, path, employerToken, req, headers)
		helpers.AssertStatus(t, http.StatusCreated, res, body)
		helpers.DecodeJSON(t, body, &message)
		assert.Equal(t, candidateID, message.ReceiverID)
		assert.False(t, message.IsRead)

		res, body = ts.SendRequestWithHeaders(t, http.MethodPost, path, employerToken, req, headers)
		helpers.AssertStatus(t, http.StatusOK, res, body)
		assert.Equal(t, "true", res.Header.Get("Idempotent-Replayed"))

		var replayed dto.MessageResponse
		helpers.DecodeJSON(t, body, &replayed)
		assert.Equal(t, message.ID, replayed.ID)

		req.Content = "Другой текст"
		res, body = ts.SendRequestWithHeaders(t, http.MethodPost, path, employerToken, req, headers)
		helpers.AssertStatus(t, http.StatusConflict, res, body)
	})

	t.Run("Кандидат видит одно непрочитанное", func(t *testing.T) {
		res, body := ts.SendRequest(t, http.MethodGet, "/api/v1/conversations", candidateToken, nil)
		helpers.AssertStatus(t, http.StatusOK, res, body)

		var list dto.ConversationListResponse
		helpers.DecodeJSON(t, body, &list)
		require.Len(t, list.Conversations, 1)
		assert.Equal(t, int64(1), list.Conversations[0].UnreadCount)
		assert.Equal(t, int64(1), list.TotalUnread)
		assert.Equal(t, "active", list.Conversations[0].State)
	})

	t.Run("Чтение переписки не отмечает прочитанным", func(t *testing.T) {
		res, body := ts.SendRequest(t, http.MethodGet, path+"?page=1&page_size=10", candidateToken, nil)
		helpers.AssertStatus(t, http.StatusOK, res, body)

		var thread dto.ThreadResponse
		helpers.DecodeJSON(t, body, &thread)
		require.Len(t, thread.Messages, 1)
		assert.Equal(t, message.ID, thread.Messages[0].ID)
		assert.False(t, thread.Messages[0].IsRead)
		assert.Equal(t, int64(1), thread.Total)
	})

	t.Run("Отметка о прочтении", func(t *testing.T) {
		res, body := ts.SendRequest(t, http.MethodPost, "/api/v1/conversations/"+conversation.ID+"/read", candidateToken, nil)
		helpers.AssertStatus(t, http.StatusOK, res, body)

		var read dto.MarkReadResponse
		helpers.DecodeJSON(t, body, &read)
		assert.Equal(t, int64(1), read.MarkedCount)
		assert.Zero(t, read.UnreadCount)

		res, body = ts.SendRequest(t, http.MethodPost, "/api/v1/conversations/"+conversation.ID+"/read", candidateToken, nil)
		helpers.AssertStatus(t, http.StatusOK, res, body)
		helpers.DecodeJSON(t, body, &read)
		assert.Zero(t, read.MarkedCount)
	})

	t.Run("Редактирует только отправитель", func(t *testing.T) {
		edit := dto.EditMessageRequest{Content: "Приглашаем на собеседование в пятницу"}

		res, body := ts.SendRequest(t, http.MethodPatch, "/api/v1/messages/"+message.ID, candidateToken, edit)
		helpers.AssertStatus(t, http.StatusForbidden, res, body)

		res, body = ts.SendRequest(t, http.MethodPatch, "/api/v1/messages/"+helpers.NewUserID(), candidateToken, edit)
		helpers.AssertStatus(t, http.StatusForbidden, res, body)

		res, body = ts.SendRequest(t, http.MethodPatch, "/api/v1/messages/"+message.ID, employerToken, edit)
		helpers.AssertStatus(t, http.StatusOK, res, body)

		var edited dto.MessageResponse
		helpers.DecodeJSON(t, body, &edited)
		assert.True(t, edited.IsEdited)
		assert.Equal(t, edit.Content, edited.Content)
	})

	t.Run("Архив и возврат из архива", func(t *testing.T) {
		archivePath := "/api/v1/conversations/" + conversation.ID + "/archive"

		res, body := ts.SendRequest(t, http.MethodPost, archivePath, candidateToken, nil)
		helpers.AssertStatus(t, http.StatusOK, res, body)

		res, body = ts.SendRequest(t, http.MethodGet, "/api/v1/conversations", candidateToken, nil)
		helpers.AssertStatus(t, http.StatusOK, res, body)
		var list dto.ConversationListResponse
		helpers.DecodeJSON(t, body, &list)
		assert.Empty(t, list.Conversations)

		res, body = ts.SendRequest(t, http.MethodGet, "/api/v1/conversations?include_archived=true", candidateToken, nil)
		helpers.AssertStatus(t, http.StatusOK, res, body)
		helpers.DecodeJSON(t, body, &list)
		require.Len(t, list.Conversations, 1)
		assert.Equal(t, "archived", list.Conversations[0].State)

		res, body = ts.SendRequest(t, http.MethodDelete, archivePath, candidateToken, nil)
		helpers.AssertStatus(t, http.StatusOK, res, body)
		var summary dto.ConversationSummary
		helpers.DecodeJSON(t, body, &summary)
		assert.False(t, summary.IsArchived)
	})
}

func TestConversationAccessIsHidden(t *testing.T) {
	ts := helpers.NewTestServer(t)
	_, employerToken := helpers.NewEmployer(t)
	candidateID, _ := helpers.NewCandidate(t)
	_, strangerToken := helpers.NewCandidate(t)

	res, body := ts.SendRequest(t, http.MethodPost, "/api/v1/conversations", employerToken, dto.StartConversationRequest{ParticipantID: candidateID})
	helpers.AssertStatus(t, http.StatusCreated, res, body)
	var conversation dto.ConversationSummary
	helpers.DecodeJSON(t, body, &conversation)

	// чужой и несуществующий диалог отвечают одинаково
	for _, id := range []string{conversation.ID, helpers.NewUserID()} {
		res, body = ts.SendRequest(t, http.MethodGet, "/api/v1/conversations/"+id+"/messages", strangerToken, nil)
		helpers.AssertStatus(t, http.StatusForbidden, res, body)

		var errResp errorBody
		helpers.DecodeJSON(t, body, &errResp)
		assert.Equal(t, string(apperrors.CodeForbidden), errResp.Error.Code)
		assert.Equal(t, "chat", errResp.Error.Domain)

		res, body = ts.SendRequest(t, http.MethodPost, "/api/v1/conversations/"+id+"/messages", strangerToken, dto.PostMessageRequest{Content: "hi"})
		helpers.AssertStatus(t, http.StatusForbidden, res, body)
	}
}

func TestConversationValidation(t *testing.T) {
	ts := helpers.NewTestServer(t)
	userID, token := helpers.NewCandidate(t)
	otherID, _ := helpers.NewEmployer(t)

	t.Run("Без токена", func(t *testing.T) {
		res, body := ts.SendRequest(t, http.MethodGet, "/api/v1/conversations", "", nil)
		helpers.AssertStatus(t, http.StatusUnauthorized, res, body)
	})

	t.Run("Системная роль не пользуется перепиской", func(t *testing.T) {
		token := helpers.Token(t, helpers.NewUserID(), "system")
		res, body := ts.SendRequest(t, http.MethodGet, "/api/v1/conversations", token, nil)
		helpers.AssertStatus(t, http.StatusForbidden, res, body)
	})

	t.Run("Диалог с самим собой", func(t *testing.T) {
		res, body := ts.SendRequest(t, http.MethodPost, "/api/v1/conversations", token, dto.StartConversationRequest{ParticipantID: userID})
		helpers.AssertStatus(t, http.StatusBadRequest, res, body)
	})

	t.Run("Неизвестный тип диалога", func(t *testing.T) {
		res, body := ts.SendRequest(t, http.MethodPost, "/api/v1/conversations", token, dto.StartConversationRequest{ParticipantID: otherID, Kind: "chat"})
		helpers.AssertStatus(t, http.StatusBadRequest, res, body)
	})

	res, body := ts.SendRequest(t, http.MethodPost, "/api/v1/conversations", token, dto.StartConversationRequest{ParticipantID: otherID})
	helpers.AssertStatus(t, http.StatusCreated, res, body)
	var conversation dto.ConversationSummary
	helpers.DecodeJSON(t, body, &conversation)
	path := "/api/v1/conversations/" + conversation.ID + "/messages"

	t.Run("Пустое сообщение", func(t *testing.T) {
		res, body := ts.SendRequest(t, http.MethodPost, path, token, dto.PostMessageRequest{Content: ""})
		helpers.AssertStatus(t, http.StatusBadRequest, res, body)
	})

	t.Run("Слишком длинный ключ идемпотентности", func(t *testing.T) {
		headers := map[string]string{"Idempotency-Key": strings.Repeat("k", 129)}
		res, body := ts.SendRequestWithHeaders(t, http.MethodPost, path, token, dto.PostMessageRequest{Content: "hi"}, headers)
		helpers.AssertStatus(t, http.StatusBadRequest, res, body)
	})

	t.Run("Архив пустого диалога", func(t *testing.T) {
		res, body := ts.SendRequest(t, http.MethodPost, "/api/v1/conversations/"+conversation.ID+"/archive", token, nil)
		helpers.AssertStatus(t, http.StatusBadRequest, res, body)
	})

	t.Run("Ответ на сообщение из другого диалога", func(t *testing.T) {
		thirdID, _ := helpers.NewEmployer(t)
		res, body := ts.SendRequest(t, http.MethodPost, "/api/v1/conversations", token, dto.StartConversationRequest{ParticipantID: thirdID})
		helpers.AssertStatus(t, http.StatusCreated, res, body)
		var other dto.ConversationSummary
		helpers.DecodeJSON(t, body, &other)

		res, body = ts.SendRequest(t, http.MethodPost, "/api/v1/conversations/"+other.ID+"/messages", token, dto.PostMessageRequest{Content: "hello"})
		helpers.AssertStatus(t, http.StatusCreated, res, body)
		var foreign dto.MessageResponse
		helpers.DecodeJSON(t, body, &foreign)

		res, body = ts.SendRequest(t, http.MethodPost, path, token, dto.PostMessageRequest{Content: "reply", ReplyToMessageID: &foreign.ID})
		helpers.AssertStatus(t, http.StatusBadRequest, res, body)

		var errResp errorBody
		helpers.DecodeJSON(t, body, &errResp)
		assert.Equal(t, string(apperrors.CodeInvalidReply), errResp.Error.Code)
	})
}
