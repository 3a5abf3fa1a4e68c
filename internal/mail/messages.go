package mail

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/khanghh/kguard/model"
)

const (
	TemplatePasswordResetOTP    = "mail/password-reset-otp"
	TemplateWelcomeTempPassword = "mail/welcome-temp-password"
)

type Renderer interface {
	RenderHTML(templateName string, vars map[string]interface{}) (string, error)
}

// Notifier turns account events into mails.
type Notifier struct {
	sender   MailSender
	renderer Renderer
	siteName string
	now      func() time.Time
}

func (n *Notifier) send(account *model.Account, subject string, templateName string, vars fiber.Map) error {
	if account.Email == "" {
		return fmt.Errorf("account %s has no email address", account.Username)
	}
	body, err := n.renderer.RenderHTML(templateName, vars)
	if err != nil {
		return err
	}
	return n.sender.Send(&Message{
		To:      []string{account.Email},
		Subject: subject,
		Body:    body,
		IsHTML:  true,
	})
}

func (n *Notifier) SendPasswordResetCode(ctx context.Context, account *model.Account, code string, expiresAt time.Time) error {
	minutes := int(math.Ceil(expiresAt.Sub(n.now()).Minutes()))
	return n.send(account, fmt.Sprintf("%s is your %s password reset code", code, n.siteName), TemplatePasswordResetOTP, fiber.Map{
		"username":      account.Username,
		"code":          code,
		"expireMinutes": minutes,
		"expiresAt":     expiresAt.UTC().Format(time.RFC1123),
	})
}

func (n *Notifier) SendWelcome(ctx context.Context, account *model.Account, tempPassword string) error {
	return n.send(account, fmt.Sprintf("Your %s account", n.siteName), TemplateWelcomeTempPassword, fiber.Map{
		"username": account.Username,
		"password": tempPassword,
	})
}

func NewNotifier(sender MailSender, renderer Renderer, siteName string) *Notifier {
	return &Notifier{
		sender:   sender,
		renderer: renderer,
		siteName: siteName,
		now:      time.Now,
	}
}
