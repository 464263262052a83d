package handlers

import (
	"net/http"

	"mwork_messaging/internal/auth"
	"mwork_messaging/internal/middleware"
	"mwork_messaging/internal/services"
	"mwork_messaging/internal/services/dto"

	"github.com/gin-gonic/gin"
)

type NotificationHandler struct {
	*BaseHandler
	gateway services.PollingGateway
}

func NewNotificationHandler(base *BaseHandler, gateway services.PollingGateway) *NotificationHandler {
	return &NotificationHandler{
		BaseHandler: base,
		gateway:     gateway,
	}
}

func (h *NotificationHandler) RegisterRoutes(r *gin.RouterGroup) {
	notifications := r.Group("/notifications")
	notifications.Use(middleware.AuthMiddleware())
	{
		reader := notifications.Group("", middleware.RequirePermission(auth.PermissionNotificationsRead))
		reader.GET("", h.ListNotifications)
		reader.GET("/poll", h.Poll)
		reader.POST("/:notificationId/read", h.MarkAsRead)

		// внутренние продюсеры: шорт-лист, собеседования
		notifications.POST("", middleware.RequirePermission(auth.PermissionNotificationsDispatch), h.Dispatch)
	}
}

// Poll godoc
// @Summary Опрос уведомлений
// @Description has_new сравнивает created_at самого свежего уведомления с since и не зависит от прочтения.
// @Description newest_at из ответа передается следующим запросом как since.
// @Tags notifications
// @Produce json
// @Security BearerAuth
// @Param since query string false "RFC3339 метка последнего увиденного уведомления"
// @Param limit query int false "Максимум уведомлений" default(20)
// @Success 200 {object} dto.PollResponse
// @Failure 400 {object} apperrors.ErrorResponse
// @Router /notifications/poll [get]
func (h *NotificationHandler) Poll(c *gin.Context) {
	userID, ok := h.GetAndAuthorizeUserID(c)
	if !ok {
		return
	}

	since, err := ParseQueryTime(c, "since")
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}
	limit := ParseQueryInt(c, "limit", 20)

	response, err := h.gateway.PollNotifications(h.GetDB(c), userID, since, limit)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, response)
}

func (h *NotificationHandler) ListNotifications(c *gin.Context) {
	userID, ok := h.GetAndAuthorizeUserID(c)
	if !ok {
		return
	}

	response, err := h.gateway.ListNotifications(h.GetDB(c), userID, ParseQueryInt(c, "limit", 20))
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, response)
}

func (h *NotificationHandler) MarkAsRead(c *gin.Context) {
	userID, ok := h.GetAndAuthorizeUserID(c)
	if !ok {
		return
	}

	notification, err := h.gateway.MarkNotificationRead(h.GetDB(c), c.Param("notificationId"), userID)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, notification)
}

// Dispatch godoc
// @Summary Создать уведомление
// @Description Повтор в окне дедупликации при непрочитанном первом уведомлении возвращает существующее
// @Tags notifications
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body dto.DispatchNotificationRequest true "Событие"
// @Success 201 {object} dto.DispatchResponse
// @Success 200 {object} dto.DispatchResponse "Дубликат или повтор по ключу"
// @Failure 403 {object} apperrors.ErrorResponse
// @Router /notifications [post]
func (h *NotificationHandler) Dispatch(c *gin.Context) {
	userID, ok := h.GetAndAuthorizeUserID(c)
	if !ok {
		return
	}

	var req dto.DispatchNotificationRequest
	if !h.BindAndValidate_JSON(c, &req) {
		return
	}

	response, err := h.gateway.DispatchNotification(h.GetDB(c), userID, &req)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}

	status := http.StatusOK
	if response.Created {
		status = http.StatusCreated
	}
	c.JSON(status, response)
}
