package events

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"mwork_messaging/internal/logger"

	"github.com/redis/go-redis/v9"
)

type RedisOptions struct {
	URL      string
	Stream   string
	Group    string
	Consumer string
	MaxLen   int64
	Retry    RetryPolicy

	PendingRescan time.Duration
}

// RedisBus - Redis Streams: XADD на публикацию, consumer group на чтение.
// Событие подтверждается XACK только после успешной обработки. Неподтвержденные
// остаются в PEL и перечитываются раз в PendingRescan.
type RedisBus struct {
	cli      *redis.Client
	stream   string
	group    string
	consumer string
	maxLen   int64
	retry    RetryPolicy
	rescan   time.Duration
}

func NewRedisBus(opts RedisOptions) (*RedisBus, error) {
	opt, err := redis.ParseURL(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("redis parse url: %w", err)
	}
	return newRedisBus(redis.NewClient(opt), opts), nil
}

func newRedisBus(cli *redis.Client, opts RedisOptions) *RedisBus {
	consumer := opts.Consumer
	if consumer == "" {
		host, _ := os.Hostname()
		consumer = fmt.Sprintf("%s-%d", host, os.Getpid())
	}
	if opts.Retry.Attempts == 0 {
		opts.Retry = DefaultRetryPolicy()
	}
	if opts.PendingRescan <= 0 {
		opts.PendingRescan = 30 * time.Second
	}
	return &RedisBus{
		cli:      cli,
		stream:   opts.Stream,
		group:    opts.Group,
		consumer: consumer,
		maxLen:   opts.MaxLen,
		retry:    opts.Retry,
		rescan:   opts.PendingRescan,
	}
}

func (b *RedisBus) Publish(ctx context.Context, evt Event) error {
	data, err := encode(evt)
	if err != nil {
		return err
	}
	args := &redis.XAddArgs{Stream: b.stream, Values: map[string]any{"data": string(data)}}
	if b.maxLen > 0 {
		args.MaxLen = b.maxLen
		args.Approx = true
	}
	return b.cli.XAdd(ctx, args).Err()
}

func (b *RedisBus) ensureGroup(ctx context.Context) error {
	err := b.cli.XGroupCreateMkStream(ctx, b.stream, b.group, "$").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return err
	}
	return nil
}

func (b *RedisBus) Subscribe(ctx context.Context, handler Handler) error {
	if err := b.ensureGroup(ctx); err != nil {
		return fmt.Errorf("redis create group: %w", err)
	}

	// сначала свои неподтвержденные (id "0"), затем новые (">"),
	// раз в rescan снова проходим PEL
	cursor := "0"
	lastScan := time.Now()
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if cursor == ">" && time.Since(lastScan) >= b.rescan {
			cursor = "0"
		}

		res, err := b.cli.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    b.group,
			Consumer: b.consumer,
			Streams:  []string{b.stream, cursor},
			Count:    100,
			Block:    2 * time.Second,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				if cursor != ">" {
					cursor, lastScan = ">", time.Now()
				}
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.CtxWithError(ctx, "Redis XREADGROUP failed", err, "stream", b.stream)
			sleep(ctx, time.Second)
			continue
		}

		var batch []redis.XMessage
		for _, str := range res {
			batch = append(batch, str.Messages...)
		}
		for _, msg := range batch {
			b.handle(ctx, handler, msg)
		}

		next := nextCursor(cursor, batch)
		if cursor != ">" && next == ">" {
			lastScan = time.Now()
		}
		cursor = next
	}
}

// nextCursor: проход по PEL идет страницами от последнего прочитанного id,
// пустая страница переключает на новые сообщения
func nextCursor(cursor string, batch []redis.XMessage) string {
	if cursor == ">" {
		return ">"
	}
	if len(batch) == 0 {
		return ">"
	}
	return batch[len(batch)-1].ID
}

func (b *RedisBus) handle(ctx context.Context, handler Handler, msg redis.XMessage) {
	raw, _ := msg.Values["data"].(string)
	evt, err := decode([]byte(raw))
	if err != nil {
		logger.CtxWarn(ctx, "Dropping malformed event", "stream", b.stream, "id", msg.ID, "error", err)
		_ = b.cli.XAck(ctx, b.stream, b.group, msg.ID).Err()
		return
	}
	if err := handleWithRetry(ctx, handler, evt, b.retry); err != nil {
		logger.CtxWithError(ctx, "Event left pending", err, "event_id", evt.ID, "type", evt.Type, "id", msg.ID)
		return
	}
	if err := b.cli.XAck(ctx, b.stream, b.group, msg.ID).Err(); err != nil {
		logger.CtxWithError(ctx, "Redis XACK failed", err, "id", msg.ID)
	}
}

func (b *RedisBus) Close() error {
	return b.cli.Close()
}
