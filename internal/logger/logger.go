package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

var log *slog.Logger

// Options описывает вывод логгера. File пустой - пишем в stdout.
type Options struct {
	Env        string
	Level      string
	Format     string
	File       string
	MaxSize    int
	MaxBackups int
	MaxAge     int
	Compress   bool
}

// Init инициализирует глобальный логгер только по окружению
// env: "development" или "production"
func Init(env string) {
	Setup(Options{Env: env})
}

// Setup инициализирует глобальный логгер.
// development: текст + debug, иначе JSON, если формат не задан явно.
func Setup(opts Options) {
	var w io.Writer = os.Stdout
	if strings.TrimSpace(opts.File) != "" {
		w = &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSize,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAge,
			Compress:   opts.Compress,
		}
	}

	handlerOpts := &slog.HandlerOptions{
		Level:     ParseLevel(opts.Level, opts.Env),
		AddSource: opts.Env != "test",
	}

	format := strings.ToLower(opts.Format)
	if format == "" {
		format = "json"
		if opts.Env == "development" || opts.Env == "test" {
			format = "text"
		}
	}

	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(w, handlerOpts)
	} else {
		handler = slog.NewTextHandler(w, handlerOpts)
	}

	log = slog.New(handler)
	slog.SetDefault(log)
}

// ParseLevel переводит строку в slog.Level; пустая строка - по окружению
func ParseLevel(level, env string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	if env == "development" {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

// GetLogger возвращает глобальный логгер
func GetLogger() *slog.Logger {
	if log == nil {
		Init("development")
	}
	return log
}

func Debug(msg string, args ...any) {
	GetLogger().Debug(msg, args...)
}

func Info(msg string, args ...any) {
	GetLogger().Info(msg, args...)
}

func Warn(msg string, args ...any) {
	GetLogger().Warn(msg, args...)
}

func Error(msg string, args ...any) {
	GetLogger().Error(msg, args...)
}

// Fatal логирует ошибку и завершает программу
func Fatal(msg string, args ...any) {
	GetLogger().Error(msg, args...)
	os.Exit(1)
}

// With создает новый логгер с дополнительными полями
func With(args ...any) *slog.Logger {
	return GetLogger().With(args...)
}

func WithError(err error) *slog.Logger {
	return GetLogger().With("error", err.Error())
}

// DBLog логирует database операцию
func DBLog(operation string, duration time.Duration, err error, args ...any) {
	fields := append([]any{
		"operation", operation,
		"duration_ms", duration.Milliseconds(),
	}, args...)

	if err != nil {
		fields = append(fields, "error", err.Error())
		GetLogger().Error("database operation failed", fields...)
	} else {
		GetLogger().Debug("database operation", fields...)
	}
}

// WorkerLog логирует операцию фонового воркера
func WorkerLog(worker, operation string, err error, args ...any) {
	fields := append([]any{
		"worker", worker,
		"operation", operation,
	}, args...)

	if err != nil {
		fields = append(fields, "error", err.Error())
		GetLogger().Error("worker operation failed", fields...)
	} else {
		GetLogger().Debug("worker operation completed", fields...)
	}
}

// DeliveryLog логирует попытку доставки уведомления по каналу
func DeliveryLog(notificationID, channel string, attempt int, err error) {
	fields := []any{
		"notification_id", notificationID,
		"channel", channel,
		"attempt", attempt,
	}
	if err != nil {
		fields = append(fields, "error", err.Error())
		GetLogger().Warn("notification delivery failed", fields...)
		return
	}
	GetLogger().Info("notification delivered", fields...)
}
