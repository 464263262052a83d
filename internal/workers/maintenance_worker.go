package workers

import (
	"context"
	"time"

	"mwork_messaging/internal/logger"
	"mwork_messaging/internal/repositories"

	"gorm.io/gorm"
)

type MaintenanceWorker struct {
	db              *gorm.DB
	idempotencyRepo repositories.IdempotencyRepository
	deliveryRepo    repositories.DeliveryRepository
	interval        time.Duration
	now             func() time.Time
}

func NewMaintenanceWorker(
	db *gorm.DB,
	idempotencyRepo repositories.IdempotencyRepository,
	deliveryRepo repositories.DeliveryRepository,
	interval time.Duration,
) *MaintenanceWorker {
	if interval <= 0 {
		interval = time.Hour
	}
	return &MaintenanceWorker{
		db:              db,
		idempotencyRepo: idempotencyRepo,
		deliveryRepo:    deliveryRepo,
		interval:        interval,
		now:             func() time.Time { return time.Now().UTC() },
	}
}

// Start запускает периодическую уборку
func (w *MaintenanceWorker) Start(ctx context.Context) {
	go w.loop(ctx)
}

func (w *MaintenanceWorker) loop(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("Maintenance worker stopped")
			return
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// RunOnce удаляет истекшие ключи идемпотентности и снимает с доставки истекшие уведомления
func (w *MaintenanceWorker) RunOnce(ctx context.Context) (purgedKeys, skippedDeliveries int64) {
	db := w.db.WithContext(ctx)
	now := w.now()

	purgedKeys, err := w.idempotencyRepo.DeleteExpired(db, now)
	if err != nil {
		logger.WorkerLog("maintenance", "purge_idempotency_keys", err)
	} else if purgedKeys > 0 {
		logger.Info("Purged expired idempotency keys", "count", purgedKeys)
	}

	skippedDeliveries, err = w.deliveryRepo.SkipExpired(db, now)
	if err != nil {
		logger.WorkerLog("maintenance", "skip_expired_deliveries", err)
	} else if skippedDeliveries > 0 {
		logger.Info("Skipped deliveries of expired notifications", "count", skippedDeliveries)
	}

	return purgedKeys, skippedDeliveries
}
