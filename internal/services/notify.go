package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"net/smtp"
	"strings"
	"time"

	"proxyflow/internal/config"
	"proxyflow/internal/models"

	"golang.org/x/net/proxy"
	"gorm.io/gorm"
)

// AlertMessage is the rendered content for one alert notification.
type AlertMessage struct {
	Subject string
	Title   string
	Body    string
}

// Notifier delivers one alert message to one channel.
type Notifier interface {
	Name() string
	Send(user *models.User, msg *AlertMessage) error
}

// NotifyService fans an alert out to its enabled channels. The email
// channel is primary: its failure fails the alert. Operator channels
// (webhook, telegram) are best-effort copies.
type NotifyService struct {
	db          *gorm.DB
	email       Notifier
	operators   []Notifier
	sendTimeout time.Duration
}

// NewNotifyService creates a new notification service
func NewNotifyService(db *gorm.DB, cfg *config.NotificationsConfig) *NotifyService {
	timeout, err := time.ParseDuration(cfg.SendTimeout)
	if err != nil {
		timeout = 30 * time.Second
	}

	service := &NotifyService{
		db:          db,
		sendTimeout: timeout,
	}

	if cfg.Email.Enabled {
		service.email = NewEmailNotifier(&cfg.Email)
	}
	if cfg.Webhook.Enabled {
		service.operators = append(service.operators, NewWebhookNotifier(&cfg.Webhook))
	}
	if cfg.Telegram.Enabled {
		service.operators = append(service.operators, NewTelegramNotifier(&cfg.Telegram))
	}

	return service
}

// alertTemplates holds the fixed message per alert type.
var alertTemplates = map[string]AlertMessage{
	models.AlertType7Days: {
		Subject: "Your proxy expires in 7 days",
		Title:   "Proxy expiration",
		Body:    "Your %s proxy expires on %s. Renew it to keep your access.",
	},
	models.AlertType3Days: {
		Subject: "Your proxy expires in 3 days",
		Title:   "Renewal recommended",
		Body:    "Only 3 days left before your %s proxy expires on %s.",
	},
	models.AlertType1Day: {
		Subject: "Your proxy expires tomorrow",
		Title:   "Imminent expiration",
		Body:    "Your %s proxy expires tomorrow (%s).",
	},
	models.AlertTypeExpired: {
		Subject: "Your proxy has expired",
		Title:   "Proxy expired",
		Body:    "Your %s proxy expired on %s and is no longer reachable.",
	},
}

// RenderMessage builds the message for an alert. Unknown types fall back
// to the 7-day template.
func RenderMessage(alert *models.ExpirationAlert) *AlertMessage {
	tmpl, ok := alertTemplates[alert.AlertType]
	if !ok {
		tmpl = alertTemplates[models.AlertType7Days]
	}

	return &AlertMessage{
		Subject: tmpl.Subject,
		Title:   tmpl.Title,
		Body: fmt.Sprintf(tmpl.Body,
			strings.ToUpper(alert.ProxyType),
			alert.ExpiresAt.Format("2006-01-02")),
	}
}

// SendAlert delivers an alert through its enabled channels. A failure on
// the email channel is returned so the caller leaves the alert pending;
// operator channel failures are only logged.
func (s *NotifyService) SendAlert(alert *models.ExpirationAlert, user *models.User) error {
	msg := RenderMessage(alert)

	if alert.NotifyEmail && s.email != nil {
		if err := s.sendWithTimeout(s.email, user, msg); err != nil {
			s.recordDelivery(alert.ID, s.email.Name(), "failed")
			return fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
		}
		s.recordDelivery(alert.ID, s.email.Name(), "success")
	}

	// In-app and SMS channels are recorded but not delivered anywhere yet.
	if alert.NotifyInApp {
		s.recordDelivery(alert.ID, "in_app", "success")
	}
	if alert.NotifySMS {
		s.recordDelivery(alert.ID, "sms", "success")
	}

	for _, notifier := range s.operators {
		if err := s.sendWithTimeout(notifier, user, msg); err != nil {
			log.Printf("%s notification failed for alert %d: %v", notifier.Name(), alert.ID, err)
			s.recordDelivery(alert.ID, notifier.Name(), "failed")
			continue
		}
		s.recordDelivery(alert.ID, notifier.Name(), "success")
	}

	return nil
}

// sendWithTimeout guards against a stuck transport stalling the batch.
func (s *NotifyService) sendWithTimeout(n Notifier, user *models.User, msg *AlertMessage) error {
	done := make(chan error, 1)
	go func() {
		done <- n.Send(user, msg)
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(s.sendTimeout):
		return fmt.Errorf("%s send timed out after %s", n.Name(), s.sendTimeout)
	}
}

func (s *NotifyService) recordDelivery(alertID uint, channel, status string) {
	s.db.Create(&models.NotificationLog{
		AlertID: alertID,
		Channel: channel,
		Status:  status,
		SentAt:  time.Now(),
	})
}

// EmailNotifier sends email notifications over SMTP
type EmailNotifier struct {
	config *config.EmailConfig
}

// NewEmailNotifier creates a new email notifier
func NewEmailNotifier(cfg *config.EmailConfig) *EmailNotifier {
	return &EmailNotifier{config: cfg}
}

func (e *EmailNotifier) Name() string { return "email" }

// Send sends an email notification to the alert's user
func (e *EmailNotifier) Send(user *models.User, msg *AlertMessage) error {
	if user == nil || user.Email == "" {
		return fmt.Errorf("user has no email address")
	}

	message := fmt.Sprintf("From: %s\r\n", e.config.From)
	message += fmt.Sprintf("To: %s\r\n", user.Email)
	message += fmt.Sprintf("Subject: %s\r\n", msg.Subject)
	message += "Content-Type: text/plain; charset=UTF-8\r\n"
	message += "\r\n"
	message += msg.Title + "\n\n" + msg.Body + "\n"

	auth := smtp.PlainAuth("", e.config.From, e.config.Password, e.config.SMTPHost)
	addr := fmt.Sprintf("%s:%d", e.config.SMTPHost, e.config.SMTPPort)

	if err := smtp.SendMail(addr, auth, e.config.From, []string{user.Email}, []byte(message)); err != nil {
		// QQ mail and some other providers return "short response" even
		// though the email went out. Ignore that specific error.
		if !strings.Contains(err.Error(), "short response") {
			return fmt.Errorf("failed to send email: %w", err)
		}
	}

	return nil
}

// WebhookNotifier posts alert payloads to an operator webhook
type WebhookNotifier struct {
	config *config.WebhookConfig
}

// NewWebhookNotifier creates a new webhook notifier
func NewWebhookNotifier(cfg *config.WebhookConfig) *WebhookNotifier {
	return &WebhookNotifier{config: cfg}
}

func (w *WebhookNotifier) Name() string { return "webhook" }

// Send posts the alert message as JSON
func (w *WebhookNotifier) Send(user *models.User, msg *AlertMessage) error {
	payload := map[string]interface{}{
		"subject": msg.Subject,
		"title":   msg.Title,
		"body":    msg.Body,
	}
	if user != nil {
		payload["user_email"] = user.Email
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	resp, err := http.Post(w.config.URL, "application/json", bytes.NewBuffer(jsonData))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	return nil
}

// TelegramNotifier sends Telegram notifications to the operator channel
type TelegramNotifier struct {
	config *config.TelegramConfig
}

// NewTelegramNotifier creates a new Telegram notifier
func NewTelegramNotifier(cfg *config.TelegramConfig) *TelegramNotifier {
	return &TelegramNotifier{config: cfg}
}

func (t *TelegramNotifier) Name() string { return "telegram" }

// Send sends a Telegram message
func (t *TelegramNotifier) Send(user *models.User, msg *AlertMessage) error {
	text := fmt.Sprintf("%s\n\n%s", msg.Title, msg.Body)
	if user != nil {
		text += fmt.Sprintf("\nUser: %s", user.Email)
	}

	apiURL := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", t.config.BotToken)

	payload := map[string]interface{}{
		"chat_id": t.config.ChatID,
		"text":    text,
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	client := &http.Client{
		Timeout: 30 * time.Second,
	}

	if t.config.SOCKSProxy != "" {
		dialer, err := proxy.SOCKS5("tcp", t.config.SOCKSProxy, nil, proxy.Direct)
		if err != nil {
			log.Printf("Failed to create SOCKS5 proxy dialer: %v", err)
		} else {
			client.Transport = &http.Transport{
				DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
					return dialer.Dial(network, addr)
				},
			}
		}
	}

	resp, err := client.Post(apiURL, "application/json", bytes.NewBuffer(jsonData))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram API returned status %d", resp.StatusCode)
	}

	return nil
}
