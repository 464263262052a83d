package apperrors

import (
	"net/http"
)

// =========================================================================
// Фабрики
// =========================================================================

// ErrNotFound - фабрика для ошибки "не найдено" (404)
func ErrNotFound(err error) *AppError {
	return Wrap(err, CodeNotFound, "resource", "Resource not found", http.StatusNotFound)
}

// ErrConflict - общая фабрика для конфликтов (409)
func ErrConflict(err error, domain, message string) *AppError {
	return Wrap(err, CodeConflict, domain, message, http.StatusConflict)
}

// ErrInvalidOperation - фабрика для невалидных операций (400)
func ErrInvalidOperation(domain, message string) *AppError {
	return New(CodeInvalidOperation, domain, message, http.StatusBadRequest)
}

// =========================================================================
// Переписка
// =========================================================================

var ErrConversationNotFound = New(
	CodeNotFound,
	"chat",
	"Conversation not found",
	http.StatusNotFound,
)

// ErrConversationAccessDenied отдается и для чужого, и для несуществующего диалога
var ErrConversationAccessDenied = New(
	CodeForbidden,
	"chat",
	"Access to conversation denied",
	http.StatusForbidden,
)

// ErrInvalidConversation - диалог не существует или архивирован там, где нужен активный
var ErrInvalidConversation = New(
	CodeInvalidConversation,
	"chat",
	"Conversation does not exist or is not active",
	http.StatusConflict,
)

// ErrInvalidReply - reply_to указывает на сообщение из другого диалога
var ErrInvalidReply = New(
	CodeInvalidReply,
	"chat",
	"Reply target does not belong to this conversation",
	http.StatusBadRequest,
)

var ErrMessageNotFound = New(
	CodeNotFound,
	"chat",
	"Message not found",
	http.StatusNotFound,
)

// ErrMessageEditForbidden - редактировать может только отправитель
var ErrMessageEditForbidden = New(
	CodeForbidden,
	"chat",
	"Only the sender can edit this message",
	http.StatusForbidden,
)

var ErrSelfConversation = New(
	CodeValidationFailed,
	"validation",
	"Cannot start a conversation with yourself",
	http.StatusBadRequest,
)

var ErrEmptyContent = New(
	CodeValidationFailed,
	"validation",
	"Message content must not be empty",
	http.StatusBadRequest,
)

var ErrInvalidMessageKind = New(
	CodeValidationFailed,
	"validation",
	"Unsupported message type",
	http.StatusBadRequest,
)

var ErrInvalidConversationKind = New(
	CodeValidationFailed,
	"validation",
	"Unsupported conversation type",
	http.StatusBadRequest,
)

var ErrAttachmentTooLarge = New(
	CodeLimitExceeded,
	"validation",
	"Attachment size exceeds the allowed limit",
	http.StatusRequestEntityTooLarge,
)

// ErrInvalidLinkage - вакансия или отклик, на которые ссылается диалог, не найдены
var ErrInvalidLinkage = New(
	CodeValidationFailed,
	"validation",
	"Linked job or application does not exist",
	http.StatusBadRequest,
)

// =========================================================================
// Уведомления
// =========================================================================

var ErrNotificationNotFound = New(
	CodeNotFound,
	"notification",
	"Notification not found",
	http.StatusNotFound,
)

var ErrNotificationAccessDenied = New(
	CodeForbidden,
	"notification",
	"Access to notification denied",
	http.StatusForbidden,
)

var ErrInvalidPriority = New(
	CodeValidationFailed,
	"validation",
	"Unsupported notification priority",
	http.StatusBadRequest,
)

var ErrIdempotencyConflict = New(
	CodeConflict,
	"idempotency",
	"Idempotency key was already used for another request",
	http.StatusConflict,
)

var ErrInsufficientPermissions = New(
	CodeForbidden,
	"auth",
	"Insufficient permissions",
	http.StatusForbidden,
)
