package notify

import (
	"context"
	"fmt"

	"signalflow/conf"

	"github.com/go-mail/mail"
)

// 邮件告警渠道，走SMTP

type EmailChannel struct {
	cfg conf.EmailConfig
}

func NewEmailChannel(cfg conf.EmailConfig) *EmailChannel {
	return &EmailChannel{cfg: cfg}
}

func (c *EmailChannel) Name() string {
	return "email"
}

func (c *EmailChannel) Deliver(_ context.Context, alert Alert) error {
	if len(c.cfg.To) == 0 {
		return nil
	}

	m := mail.NewMessage()
	m.SetHeader("From", c.cfg.Sender)
	m.SetHeader("To", c.cfg.To...)
	m.SetHeader("Subject", fmt.Sprintf("[%s][%s] %s", alert.Service, alert.Level, alert.Title))

	body := alert.Message
	for k, v := range alert.Context {
		body += fmt.Sprintf("\n%s: %v", k, v)
	}
	m.SetBody("text/plain", body)

	d := mail.NewDialer(c.cfg.Host, c.cfg.Port, c.cfg.Username, c.cfg.Password)
	return d.DialAndSend(m)
}
