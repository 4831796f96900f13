package services

import (
	"context"
	"fmt"
	"html"
	"net/smtp"
	"strings"

	"github.com/rs/zerolog/log"

	"sleeplog-backend/internal/models"
)

// EmailService mails notifications to the owner. Without SMTP credentials it
// runs in dev mode and only logs what it would send.
type EmailService struct {
	host        string
	port        string
	user        string
	pass        string
	from        string
	to          string
	frontendURL string
	devMode     bool
}

func NewEmailService(host, port, user, pass, from, to, frontendURL string) *EmailService {
	devMode := host == "" || user == ""
	if devMode {
		log.Warn().Msg("⚠ Email service running in DEV MODE (logging to console)")
	}
	return &EmailService{
		host:        host,
		port:        port,
		user:        user,
		pass:        pass,
		from:        from,
		to:          to,
		frontendURL: frontendURL,
		devMode:     devMode,
	}
}

func (s *EmailService) Name() string { return "email" }

func (s *EmailService) Send(ctx context.Context, n models.Notification) error {
	if s.to == "" {
		return fmt.Errorf("no recipient configured")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.sendHTML(s.to, n.Title, s.renderNotification(n))
}

func (s *EmailService) renderNotification(n models.Notification) string {
	body := strings.ReplaceAll(html.EscapeString(n.Body), "\n", "<br>")

	feedback := ""
	if n.ID != "" {
		link := fmt.Sprintf("%s/notifications/%s", s.frontendURL, n.ID)
		feedback = fmt.Sprintf(`
      <p style="color: #94a3b8; font-size: 12px; margin: 24px 0 0;">
        Was this useful? <a href="%s" style="color: #6366f1;">Tell us</a>
      </p>`, link)
	}

	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"></head>
<body style="font-family: 'Segoe UI', Arial, sans-serif; margin: 0; padding: 0; background-color: #f8fafc;">
  <div style="max-width: 480px; margin: 40px auto; background: white; border-radius: 12px; box-shadow: 0 4px 24px rgba(0,0,0,0.08); overflow: hidden;">
    <div style="background: linear-gradient(135deg, #1e3a8a 0%%, #6366f1 100%%); padding: 24px; text-align: center;">
      <h1 style="color: white; margin: 0; font-size: 20px; font-weight: 700;">Sleep Log</h1>
    </div>
    <div style="padding: 32px;">
      <h2 style="margin: 0 0 16px; font-size: 18px; color: #1e293b;">%s</h2>
      <p style="color: #64748b; font-size: 14px; line-height: 1.6; margin: 0;">%s</p>%s
    </div>
  </div>
</body>
</html>`, html.EscapeString(n.Title), body, feedback)
}

func (s *EmailService) sendHTML(to, subject, htmlBody string) error {
	if s.devMode {
		log.Info().Str("to", to).Str("subject", subject).Msg("📧 [DEV EMAIL]")
		log.Debug().Msg(htmlBody)
		return nil
	}

	headers := []string{
		fmt.Sprintf("From: %s", s.from),
		fmt.Sprintf("To: %s", to),
		fmt.Sprintf("Subject: %s", subject),
		"MIME-Version: 1.0",
		"Content-Type: text/html; charset=UTF-8",
	}

	message := strings.Join(headers, "\r\n") + "\r\n\r\n" + htmlBody

	auth := smtp.PlainAuth("", s.user, s.pass, s.host)
	addr := fmt.Sprintf("%s:%s", s.host, s.port)

	err := smtp.SendMail(addr, auth, s.from, []string{to}, []byte(message))
	if err != nil {
		return fmt.Errorf("failed to send email to %s: %w", to, err)
	}

	log.Info().Str("to", to).Str("subject", subject).Msg("📧 Email sent")
	return nil
}
