package handlers

import (
	"net/http"

	"mwork_messaging/internal/middleware"
	"mwork_messaging/internal/services"
	"mwork_messaging/internal/services/dto"

	"github.com/gin-gonic/gin"
)

// ContactHandler - каналы доставки пользователя и его web push подписки
type ContactHandler struct {
	*BaseHandler
	contactService services.ContactService
}

func NewContactHandler(base *BaseHandler, contactService services.ContactService) *ContactHandler {
	return &ContactHandler{
		BaseHandler:    base,
		contactService: contactService,
	}
}

func (h *ContactHandler) RegisterRoutes(r *gin.RouterGroup) {
	contacts := r.Group("/notifications/contacts")
	contacts.Use(middleware.AuthMiddleware())
	{
		contacts.GET("", h.GetContacts)
		contacts.PUT("", h.UpdateContacts)
	}

	push := r.Group("/push/subscriptions")
	push.Use(middleware.AuthMiddleware())
	{
		push.POST("", h.Subscribe)
		push.DELETE("", h.Unsubscribe)
	}
}

func (h *ContactHandler) GetContacts(c *gin.Context) {
	userID, ok := h.GetAndAuthorizeUserID(c)
	if !ok {
		return
	}

	contacts, err := h.contactService.GetContacts(h.GetDB(c), userID)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, contacts)
}

func (h *ContactHandler) UpdateContacts(c *gin.Context) {
	userID, ok := h.GetAndAuthorizeUserID(c)
	if !ok {
		return
	}

	var req dto.UpdateContactsRequest
	if !h.BindAndValidate_JSON(c, &req) {
		return
	}

	contacts, err := h.contactService.UpdateContacts(h.GetDB(c), userID, &req)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, contacts)
}

func (h *ContactHandler) Subscribe(c *gin.Context) {
	userID, ok := h.GetAndAuthorizeUserID(c)
	if !ok {
		return
	}

	var req dto.PushSubscriptionRequest
	if !h.BindAndValidate_JSON(c, &req) {
		return
	}

	subscription, err := h.contactService.Subscribe(h.GetDB(c), userID, &req)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, subscription)
}

func (h *ContactHandler) Unsubscribe(c *gin.Context) {
	userID, ok := h.GetAndAuthorizeUserID(c)
	if !ok {
		return
	}

	var req dto.PushUnsubscribeRequest
	if !h.BindAndValidate_JSON(c, &req) {
		return
	}

	if err := h.contactService.Unsubscribe(h.GetDB(c), userID, req.Endpoint); err != nil {
		h.HandleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Push subscription removed"})
}
