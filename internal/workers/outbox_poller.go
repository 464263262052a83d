package workers

import (
	"context"
	"time"

	"mwork_messaging/internal/logger"
	"mwork_messaging/internal/services"

	"gorm.io/gorm"
)

// OutboxPoller добирает строки доставки, которые не попали в пул:
// повторы по backoff, отложенные уведомления, строки после рестарта и истекшие аренды.
type OutboxPoller struct {
	db        *gorm.DB
	deliverer services.NotificationDeliverer
	batchSize int
	interval  time.Duration
}

func NewOutboxPoller(db *gorm.DB, deliverer services.NotificationDeliverer, batchSize int, interval time.Duration) *OutboxPoller {
	if batchSize <= 0 {
		batchSize = 50
	}
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &OutboxPoller{db: db, deliverer: deliverer, batchSize: batchSize, interval: interval}
}

func (w *OutboxPoller) Start(ctx context.Context) {
	go func() {
		if err := w.Run(ctx); err != nil && ctx.Err() == nil {
			logger.WorkerLog("outbox_poller", "run", err)
		}
	}()
}

// Run забирает пачки, пока они полные, затем ждет следующего тика
func (w *OutboxPoller) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("Outbox poller stopped")
			return ctx.Err()
		default:
		}

		processed, err := w.deliverer.DeliverDue(w.db.WithContext(ctx), w.batchSize)
		if err != nil {
			logger.WorkerLog("outbox_poller", "deliver_due", err)
		} else if processed > 0 {
			logger.WorkerLog("outbox_poller", "deliver_due", nil, "processed", processed)
		}

		if err == nil && processed >= w.batchSize {
			continue
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			logger.Info("Outbox poller stopped")
			return ctx.Err()
		}
	}
}
