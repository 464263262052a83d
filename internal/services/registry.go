package services

// ServiceContainer содержит все сервисы приложения.
type ServiceContainer struct {
	MessageStore           MessageStore
	ConversationRegistry   ConversationRegistry
	NotificationDispatcher NotificationDispatcher
	NotificationDeliverer  NotificationDeliverer
	PollingGateway         PollingGateway
	ContactService         ContactService
}
