package handlers

// AppHandlers содержит все хэндлеры приложения.
type AppHandlers struct {
	ConversationHandler *ConversationHandler
	NotificationHandler *NotificationHandler
	ContactHandler      *ContactHandler
}
