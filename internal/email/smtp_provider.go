package email

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/textproto"

	"mwork_messaging/internal/models"
	"mwork_messaging/internal/notify"

	"gopkg.in/gomail.v2"
)

// Dialer - часть gomail.Dialer, нужная провайдеру
type Dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// SMTPProvider отправляет уведомления письмами через gomail
type SMTPProvider struct {
	config   *SMTPConfig
	dialer   Dialer
	renderer *TemplateManager
}

func NewSMTPProvider(config *SMTPConfig, renderer *TemplateManager) *SMTPProvider {
	if renderer == nil {
		renderer = NewTemplateManager()
	}
	return &SMTPProvider{
		config:   config,
		dialer:   gomail.NewDialer(config.Host, config.Port, config.Username, config.Password),
		renderer: renderer,
	}
}

// WithDialer подменяет транспорт (тесты, локальный relay)
func (p *SMTPProvider) WithDialer(d Dialer) *SMTPProvider {
	p.dialer = d
	return p
}

// Validate проверяет конфигурацию SMTP
func (p *SMTPProvider) Validate() error {
	if p.config.Host == "" {
		return fmt.Errorf("SMTP host is required")
	}
	if p.config.Port <= 0 || p.config.Port > 65535 {
		return fmt.Errorf("invalid SMTP port: %d", p.config.Port)
	}
	if p.config.FromEmail == "" {
		return fmt.Errorf("SMTP from address is required")
	}
	return nil
}

func (p *SMTPProvider) Channel() models.Channel {
	return models.ChannelEmail
}

// Send реализует notify.Sender
func (p *SMTPProvider) Send(ctx context.Context, msg notify.Message) error {
	if msg.Email == "" {
		return errors.New("recipient has no email address")
	}

	actionURL := msg.ActionURL
	if actionURL != "" && actionURL[0] == '/' && p.config.BaseURL != "" {
		actionURL = p.config.BaseURL + actionURL
	}

	html, err := p.renderer.Render(NotificationTemplate, TemplateData{
		"Title":      msg.Title,
		"Body":       msg.Body,
		"ActionURL":  actionURL,
		"ActionText": msg.ActionText,
	})
	if err != nil {
		return err
	}

	return p.SendEmail(ctx, &Email{
		To:       []string{msg.Email},
		Subject:  msg.Title,
		Body:     msg.Body,
		HTMLBody: html,
	})
}

// SendEmail отправляет письмо; сетевые сбои и 4xx ответы SMTP считаются временными
func (p *SMTPProvider) SendEmail(ctx context.Context, email *Email) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if len(email.To) == 0 {
		return fmt.Errorf("no recipients specified")
	}

	m := gomail.NewMessage()
	m.SetAddressHeader("From", p.config.FromEmail, p.config.FromName)
	m.SetHeader("To", email.To...)
	m.SetHeader("Subject", email.Subject)
	m.SetBody("text/plain", email.Body)
	if email.HTMLBody != "" {
		m.AddAlternative("text/html", email.HTMLBody)
	}

	done := make(chan error, 1)
	go func() {
		done <- p.dialer.DialAndSend(m)
	}()

	select {
	case <-ctx.Done():
		return notify.Temporary(ctx.Err())
	case err := <-done:
		return classify(err)
	}
}

func classify(err error) error {
	if err == nil {
		return nil
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return notify.Temporary(err)
	}
	var protoErr *textproto.Error
	if errors.As(err, &protoErr) && protoErr.Code >= 400 && protoErr.Code < 500 {
		return notify.Temporary(err)
	}
	return err
}
