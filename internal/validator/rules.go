package validator

import (
	"log"

	"mwork_messaging/internal/models"

	"github.com/go-playground/validator/v10"
)

// registerCustomRules регистрирует все кастомные функции валидации в
// переданном экземпляре валидатора.
func registerCustomRules(v *validator.Validate) {
	mustRegister := func(tag string, fn validator.Func) {
		if err := v.RegisterValidation(tag, fn); err != nil {
			// ошибка конфигурации, стартовать нельзя
			log.Fatalf("failed to register custom validation tag '%s': %v", tag, err)
		}
	}

	mustRegister("message_kind", validateMessageKind)
	mustRegister("conversation_kind", validateConversationKind)
	mustRegister("notification_priority", validateNotificationPriority)
}

// --- Функции валидации ---
// Пустые значения пропускаются, для них есть 'required'

func validateMessageKind(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	return value == "" || models.MessageKind(value).IsValid()
}

func validateConversationKind(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	return value == "" || models.ConversationKind(value).IsValid()
}

func validateNotificationPriority(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	return value == "" || models.NotificationPriority(value).IsValid()
}
