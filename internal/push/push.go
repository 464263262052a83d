package push

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"mwork_messaging/internal/config"
	"mwork_messaging/internal/logger"
	"mwork_messaging/internal/models"
	"mwork_messaging/internal/notify"

	webpush "github.com/SherClockHolmes/webpush-go"
)

const maxBodyLength = 180

// Pruner удаляет подписку, которую push-сервис больше не принимает
type Pruner func(ctx context.Context, endpoint string) error

// Payload - то, что получает service worker в браузере
type Payload struct {
	NotificationID string `json:"notification_id"`
	Type           string `json:"type"`
	Title          string `json:"title"`
	Body           string `json:"body"`
	URL            string `json:"url,omitempty"`
}

type Options struct {
	VAPIDPublicKey  string
	VAPIDPrivateKey string
	Subscriber      string
	TTL             int
	HTTPClient      webpush.HTTPClient
}

// WebPushProvider рассылает уведомление на все подписки получателя
type WebPushProvider struct {
	opts  Options
	prune Pruner
}

func NewWebPushProvider(opts Options, prune Pruner) *WebPushProvider {
	return &WebPushProvider{opts: opts, prune: prune}
}

// New собирает провайдер из конфига; nil - канал выключен
func New(cfg *config.Config, prune Pruner) notify.Sender {
	if !cfg.Push.Enabled {
		return nil
	}
	return NewWebPushProvider(Options{
		VAPIDPublicKey:  cfg.Push.VAPIDPublicKey,
		VAPIDPrivateKey: cfg.Push.VAPIDPrivateKey,
		Subscriber:      cfg.Push.Subscriber,
		TTL:             cfg.Push.TTL,
	}, prune)
}

func (p *WebPushProvider) Channel() models.Channel {
	return models.ChannelPush
}

// Send успешен, если уведомление принято хотя бы одной подпиской.
// 404/410 удаляют подписку, 429 и 5xx считаются временными.
func (p *WebPushProvider) Send(ctx context.Context, msg notify.Message) error {
	if len(msg.Subscriptions) == 0 {
		return errors.New("recipient has no push subscriptions")
	}

	body := msg.ShortBody
	if body == "" {
		body = msg.Body
	}
	payload, err := json.Marshal(Payload{
		NotificationID: msg.NotificationID,
		Type:           msg.Type,
		Title:          msg.Title,
		Body:           notify.Preview(body, maxBodyLength),
		URL:            msg.ActionURL,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal push payload: %w", err)
	}

	var (
		delivered int
		temporary bool
		lastErr   error
	)
	for _, sub := range msg.Subscriptions {
		err := p.sendOne(ctx, payload, sub, msg.Priority)
		switch {
		case err == nil:
			delivered++
		case notify.IsRetryable(err):
			temporary = true
			lastErr = err
		default:
			lastErr = err
		}
	}

	if delivered > 0 {
		return nil
	}
	if temporary {
		return notify.Temporary(lastErr)
	}
	return lastErr
}

func (p *WebPushProvider) sendOne(ctx context.Context, payload []byte, sub models.PushSubscription, priority models.NotificationPriority) error {
	resp, err := webpush.SendNotificationWithContext(ctx, payload, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256dh,
			Auth:   sub.Auth,
		},
	}, &webpush.Options{
		HTTPClient:      p.opts.HTTPClient,
		Subscriber:      p.opts.Subscriber,
		VAPIDPublicKey:  p.opts.VAPIDPublicKey,
		VAPIDPrivateKey: p.opts.VAPIDPrivateKey,
		TTL:             p.opts.TTL,
		Urgency:         urgency(priority),
	})
	if err != nil {
		return notify.Temporary(err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		if p.prune != nil {
			if err := p.prune(ctx, sub.Endpoint); err != nil {
				logger.CtxWithError(ctx, "Failed to delete expired push subscription", err, "endpoint", sub.Endpoint)
			}
		}
		return fmt.Errorf("push subscription expired: status %d", resp.StatusCode)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return notify.Temporary(fmt.Errorf("push service unavailable: status %d", resp.StatusCode))
	default:
		return fmt.Errorf("push service rejected notification: status %d", resp.StatusCode)
	}
}

func urgency(priority models.NotificationPriority) webpush.Urgency {
	switch priority {
	case models.PriorityLow:
		return webpush.UrgencyLow
	case models.PriorityHigh, models.PriorityUrgent:
		return webpush.UrgencyHigh
	}
	return webpush.UrgencyNormal
}
