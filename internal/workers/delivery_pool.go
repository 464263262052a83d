package workers

import (
	"context"
	"sync"
	"sync/atomic"

	"mwork_messaging/internal/logger"
	"mwork_messaging/internal/services"

	"gorm.io/gorm"
)

// DeliveryPool - N воркеров, забирающих id уведомлений из ограниченной очереди.
// Потерянные при переполнении или рестарте id подберет OutboxPoller.
type DeliveryPool struct {
	db        *gorm.DB
	deliverer services.NotificationDeliverer
	queue     chan string
	workers   int
	started   atomic.Bool
	stopped   atomic.Bool
	wg        sync.WaitGroup
}

func NewDeliveryPool(db *gorm.DB, deliverer services.NotificationDeliverer, workers, queueSize int) *DeliveryPool {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = 128
	}
	return &DeliveryPool{
		db:        db,
		deliverer: deliverer,
		queue:     make(chan string, queueSize),
		workers:   workers,
	}
}

// Enqueue не блокирует вызывающего
func (p *DeliveryPool) Enqueue(notificationID string) bool {
	if p.stopped.Load() {
		return false
	}
	select {
	case p.queue <- notificationID:
		return true
	default:
		return false
	}
}

// Start запускает воркеры; они завершаются по отмене ctx
func (p *DeliveryPool) Start(ctx context.Context) {
	if !p.started.CompareAndSwap(false, true) {
		return
	}
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.run(ctx, i)
	}
	go func() {
		<-ctx.Done()
		p.stopped.Store(true)
	}()
	logger.Info("Delivery pool started", "workers", p.workers, "queue_size", cap(p.queue))
}

// Wait ждет завершения воркеров после отмены ctx
func (p *DeliveryPool) Wait() {
	p.wg.Wait()
}

func (p *DeliveryPool) run(ctx context.Context, worker int) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			logger.Info("Delivery worker stopped", "worker", worker)
			return
		case id := <-p.queue:
			err := p.deliverer.Deliver(p.db.WithContext(ctx), id)
			logger.WorkerLog("delivery_pool", "deliver", err, "notification_id", id, "worker", worker)
		}
	}
}
