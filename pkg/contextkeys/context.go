package contextkeys

// Используем кастомный тип, чтобы избежать коллизий
type contextKey string

const (
	// DBContextKey - ключ *gorm.DB (пул или транзакция) в gin.Context
	DBContextKey = contextKey("db")
	// UserIDKey и RoleKey выставляет AuthMiddleware
	UserIDKey = contextKey("userID")
	RoleKey   = contextKey("role")
)
