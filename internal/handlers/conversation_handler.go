package handlers

import (
	"net/http"

	"mwork_messaging/internal/auth"
	"mwork_messaging/internal/middleware"
	"mwork_messaging/internal/services"
	"mwork_messaging/internal/services/dto"

	"github.com/gin-gonic/gin"
)

type ConversationHandler struct {
	*BaseHandler
	gateway services.PollingGateway
}

func NewConversationHandler(base *BaseHandler, gateway services.PollingGateway) *ConversationHandler {
	return &ConversationHandler{
		BaseHandler: base,
		gateway:     gateway,
	}
}

func (h *ConversationHandler) RegisterRoutes(r *gin.RouterGroup) {
	protected := r.Group("")
	protected.Use(middleware.AuthMiddleware(), middleware.RequirePermission(auth.PermissionMessagingUse))

	conversations := protected.Group("/conversations")
	{
		conversations.GET("", h.ListConversations)
		conversations.POST("", h.StartConversation)
		conversations.GET("/:conversationId/messages", h.GetThread)
		conversations.POST("/:conversationId/messages", h.PostMessage)
		conversations.POST("/:conversationId/read", h.MarkAsRead)
		conversations.POST("/:conversationId/archive", h.Archive)
		conversations.DELETE("/:conversationId/archive", h.Unarchive)
	}

	protected.PATCH("/messages/:messageId", h.EditMessage)
}

// ListConversations godoc
// @Summary Список диалогов пользователя
// @Description Непрочитанные считаются по сообщениям для текущего пользователя
// @Tags conversations
// @Produce json
// @Security BearerAuth
// @Param include_archived query bool false "Показывать архивные"
// @Success 200 {object} dto.ConversationListResponse
// @Failure 401 {object} apperrors.ErrorResponse
// @Router /conversations [get]
func (h *ConversationHandler) ListConversations(c *gin.Context) {
	userID, ok := h.GetAndAuthorizeUserID(c)
	if !ok {
		return
	}

	var query dto.ConversationListQuery
	if !h.BindAndValidate_Query(c, &query) {
		return
	}

	response, err := h.gateway.GetConversationSummaries(h.GetDB(c), userID, query.IncludeArchived)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, response)
}

// StartConversation godoc
// @Summary Начать диалог
// @Description Повторный вызов для той же пары возвращает существующий диалог
// @Tags conversations
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body dto.StartConversationRequest true "Собеседник и привязка"
// @Success 201 {object} dto.ConversationSummary
// @Success 200 {object} dto.ConversationSummary
// @Failure 400 {object} apperrors.ErrorResponse
// @Router /conversations [post]
func (h *ConversationHandler) StartConversation(c *gin.Context) {
	userID, ok := h.GetAndAuthorizeUserID(c)
	if !ok {
		return
	}

	var req dto.StartConversationRequest
	if !h.BindAndValidate_JSON(c, &req) {
		return
	}

	summary, created, err := h.gateway.StartConversation(h.GetDB(c), userID, &req)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, summary)
}

// GetThread godoc
// @Summary Сообщения диалога
// @Description Страница 1 - самые свежие сообщения. Не отмечает прочитанным.
// @Tags conversations
// @Produce json
// @Security BearerAuth
// @Param conversationId path string true "ID диалога"
// @Param page query int false "Страница" default(1)
// @Param page_size query int false "Размер страницы" default(20)
// @Success 200 {object} dto.ThreadResponse
// @Failure 403 {object} apperrors.ErrorResponse
// @Router /conversations/{conversationId}/messages [get]
func (h *ConversationHandler) GetThread(c *gin.Context) {
	userID, ok := h.GetAndAuthorizeUserID(c)
	if !ok {
		return
	}
	page, pageSize := ParsePagination(c)

	response, err := h.gateway.GetThread(h.GetDB(c), c.Param("conversationId"), userID, page, pageSize)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, response)
}

// PostMessage godoc
// @Summary Отправить сообщение
// @Tags conversations
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param conversationId path string true "ID диалога"
// @Param Idempotency-Key header string false "Ключ идемпотентности"
// @Param request body dto.PostMessageRequest true "Сообщение"
// @Success 201 {object} dto.MessageResponse
// @Success 200 {object} dto.MessageResponse "Повтор по ключу идемпотентности"
// @Failure 403 {object} apperrors.ErrorResponse
// @Router /conversations/{conversationId}/messages [post]
func (h *ConversationHandler) PostMessage(c *gin.Context) {
	userID, ok := h.GetAndAuthorizeUserID(c)
	if !ok {
		return
	}
	idempotencyKey, ok := h.IdempotencyKey(c)
	if !ok {
		return
	}

	var req dto.PostMessageRequest
	if !h.BindAndValidate_JSON(c, &req) {
		return
	}

	message, replayed, err := h.gateway.PostMessage(h.GetDB(c), c.Param("conversationId"), userID, &req, idempotencyKey)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}

	if replayed {
		c.Header("Idempotent-Replayed", "true")
		c.JSON(http.StatusOK, message)
		return
	}
	c.JSON(http.StatusCreated, message)
}

func (h *ConversationHandler) MarkAsRead(c *gin.Context) {
	userID, ok := h.GetAndAuthorizeUserID(c)
	if !ok {
		return
	}

	response, err := h.gateway.MarkConversationAsRead(h.GetDB(c), c.Param("conversationId"), userID)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, response)
}

func (h *ConversationHandler) Archive(c *gin.Context) {
	userID, ok := h.GetAndAuthorizeUserID(c)
	if !ok {
		return
	}

	summary, err := h.gateway.ArchiveConversation(h.GetDB(c), c.Param("conversationId"), userID)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, summary)
}

func (h *ConversationHandler) Unarchive(c *gin.Context) {
	userID, ok := h.GetAndAuthorizeUserID(c)
	if !ok {
		return
	}

	summary, err := h.gateway.UnarchiveConversation(h.GetDB(c), c.Param("conversationId"), userID)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, summary)
}

// EditMessage godoc
// @Summary Изменить текст сообщения
// @Description Редактировать может только отправитель, история правок не хранится
// @Tags messages
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param messageId path string true "ID сообщения"
// @Param request body dto.EditMessageRequest true "Новый текст"
// @Success 200 {object} dto.MessageResponse
// @Failure 403 {object} apperrors.ErrorResponse
// @Failure 404 {object} apperrors.ErrorResponse
// @Router /messages/{messageId} [patch]
func (h *ConversationHandler) EditMessage(c *gin.Context) {
	userID, ok := h.GetAndAuthorizeUserID(c)
	if !ok {
		return
	}

	var req dto.EditMessageRequest
	if !h.BindAndValidate_JSON(c, &req) {
		return
	}

	message, err := h.gateway.EditMessage(h.GetDB(c), c.Param("messageId"), userID, &req)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, message)
}
