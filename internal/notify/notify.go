package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"gopkg.in/gomail.v2"
)

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// AlertType represents the type of alert.
type AlertType string

const (
	AlertTypeFailure  AlertType = "failure"
	AlertTypeRecovery AlertType = "recovery"
)

// Alert is a notification about one sync configuration.
type Alert struct {
	Type      AlertType
	SyncID    string
	SyncName  string
	Message   string
	Details   string
	Timestamp time.Time
}

// Config holds notification configuration.
type Config struct {
	WebhookEnabled bool
	WebhookURL     string

	EmailEnabled bool
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string
	SMTPTo       []string
	SMTPTLS      bool // Implicit TLS, usually port 465

	// CooldownPeriod is how long to wait before re-alerting for the same sync.
	CooldownPeriod time.Duration
}

// mailer delivers composed messages. *gomail.Dialer satisfies it.
type mailer interface {
	DialAndSend(m ...*gomail.Message) error
}

// Notifier sends failure and recovery alerts.
type Notifier struct {
	cfg        *Config
	httpClient *http.Client
	mailer     mailer

	mu             sync.Mutex
	lastAlertTimes map[string]time.Time
	failing        map[string]bool
}

// New creates a new Notifier.
func New(cfg *Config) *Notifier {
	n := &Notifier{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		lastAlertTimes: make(map[string]time.Time),
		failing:        make(map[string]bool),
	}
	if cfg.EmailEnabled {
		d := gomail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword)
		d.SSL = cfg.SMTPTLS
		n.mailer = d
	}
	return n
}

// ValidateConfig validates the notification configuration.
func ValidateConfig(cfg *Config) error {
	if cfg.WebhookEnabled {
		if cfg.WebhookURL == "" {
			return fmt.Errorf("webhook URL is required when webhook is enabled")
		}
		if err := ValidateWebhookURL(cfg.WebhookURL); err != nil {
			return fmt.Errorf("invalid webhook URL: %w", err)
		}
	}

	if cfg.EmailEnabled {
		if cfg.SMTPHost == "" {
			return fmt.Errorf("SMTP host is required when email is enabled")
		}
		if cfg.SMTPPort < 1 || cfg.SMTPPort > 65535 {
			return fmt.Errorf("SMTP port must be between 1 and 65535")
		}
		if !isValidEmail(cfg.SMTPFrom) {
			return fmt.Errorf("invalid SMTP from address")
		}
		if len(cfg.SMTPTo) == 0 {
			return fmt.Errorf("at least one SMTP recipient is required when email is enabled")
		}
		for _, to := range cfg.SMTPTo {
			if !isValidEmail(to) {
				return fmt.Errorf("invalid SMTP recipient address: %s", to)
			}
		}
	}

	if cfg.CooldownPeriod < time.Minute {
		return fmt.Errorf("cooldown period must be at least 1 minute")
	}
	return nil
}

// ValidateWebhookURL rejects non-HTTPS URLs and URLs pointing at local or
// private hosts.
func ValidateWebhookURL(webhookURL string) error {
	parsed, err := url.Parse(webhookURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if parsed.Scheme != "https" {
		return fmt.Errorf("webhook URL must use HTTPS")
	}

	host := strings.ToLower(parsed.Hostname())
	if host == "" {
		return fmt.Errorf("webhook URL has no host")
	}
	if host == "localhost" || strings.HasSuffix(host, ".local") || strings.HasSuffix(host, ".internal") {
		return fmt.Errorf("webhook URL cannot point to internal hosts")
	}
	if ip := net.ParseIP(host); ip != nil {
		if ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsUnspecified() {
			return fmt.Errorf("webhook URL cannot point to private IP addresses")
		}
	}
	return nil
}

func isValidEmail(email string) bool {
	return emailRegex.MatchString(email)
}

// sanitizeForEmail strips header-injection characters and bounds length.
func sanitizeForEmail(s string) string {
	s = strings.ReplaceAll(s, "\r", "")
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}

// IsEnabled returns true if any notification method is enabled.
func (n *Notifier) IsEnabled() bool {
	return n.cfg.WebhookEnabled || n.cfg.EmailEnabled
}

// SendFailureAlert alerts that a sync run failed. Repeated failures of the
// same configuration are suppressed during the cooldown period. Returns true
// if an alert was sent.
func (n *Notifier) SendFailureAlert(ctx context.Context, syncID, syncName, details string) bool {
	n.mu.Lock()
	if n.failing[syncID] {
		if last, ok := n.lastAlertTimes[syncID]; ok && time.Since(last) < n.cfg.CooldownPeriod {
			n.mu.Unlock()
			return false
		}
	}
	n.failing[syncID] = true
	n.lastAlertTimes[syncID] = time.Now()
	n.mu.Unlock()

	alert := Alert{
		Type:      AlertTypeFailure,
		SyncID:    syncID,
		SyncName:  syncName,
		Message:   fmt.Sprintf("Sync '%s' failed", syncName),
		Details:   details,
		Timestamp: time.Now(),
	}
	go n.send(context.WithoutCancel(ctx), alert)
	return true
}

// SendRecoveryAlert alerts that a previously failing sync succeeded.
func (n *Notifier) SendRecoveryAlert(ctx context.Context, syncID, syncName string) bool {
	n.mu.Lock()
	wasFailing := n.failing[syncID]
	delete(n.failing, syncID)
	delete(n.lastAlertTimes, syncID)
	n.mu.Unlock()

	if !wasFailing {
		return false
	}

	alert := Alert{
		Type:      AlertTypeRecovery,
		SyncID:    syncID,
		SyncName:  syncName,
		Message:   fmt.Sprintf("Sync '%s' has recovered", syncName),
		Details:   "Records are uploading normally",
		Timestamp: time.Now(),
	}
	go n.send(context.WithoutCancel(ctx), alert)
	return true
}

// Clear forgets the failure state of a sync (used on deletion).
func (n *Notifier) Clear(syncID string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.failing, syncID)
	delete(n.lastAlertTimes, syncID)
}

// FailingSyncIDs returns the configurations currently in failure state.
func (n *Notifier) FailingSyncIDs() []string {
	n.mu.Lock()
	defer n.mu.Unlock()

	ids := make([]string, 0, len(n.failing))
	for id := range n.failing {
		ids = append(ids, id)
	}
	return ids
}

func (n *Notifier) send(ctx context.Context, alert Alert) {
	if n.cfg.WebhookEnabled && n.cfg.WebhookURL != "" {
		if err := n.sendWebhook(ctx, alert); err != nil {
			log.Printf("[Notify] Webhook error: %v", err)
		}
	}
	if n.cfg.EmailEnabled && n.mailer != nil {
		if err := n.sendEmail(alert); err != nil {
			log.Printf("[Notify] Email error: %v", err)
		}
	}
}

// WebhookPayload is the JSON payload sent to webhooks.
type WebhookPayload struct {
	AlertType string `json:"alert_type"`
	SyncID    string `json:"sync_id"`
	SyncName  string `json:"sync_name"`
	Message   string `json:"message"`
	Details   string `json:"details"`
	Timestamp string `json:"timestamp"`
	// Slack-compatible
	Text string `json:"text,omitempty"`
}

func (n *Notifier) sendWebhook(ctx context.Context, alert Alert) error {
	emoji := ":x:"
	if alert.Type == AlertTypeRecovery {
		emoji = ":white_check_mark:"
	}

	payload := WebhookPayload{
		AlertType: string(alert.Type),
		SyncID:    alert.SyncID,
		SyncName:  alert.SyncName,
		Message:   alert.Message,
		Details:   alert.Details,
		Timestamp: alert.Timestamp.Format(time.RFC3339),
		Text:      fmt.Sprintf("%s *%s*\n%s", emoji, alert.Message, alert.Details),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.cfg.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	log.Printf("[Notify] Webhook sent: %s", alert.Message)
	return nil
}

func (n *Notifier) composeEmail(alert Alert) *gomail.Message {
	name := sanitizeForEmail(alert.SyncName)
	message := sanitizeForEmail(alert.Message)
	details := sanitizeForEmail(alert.Details)

	var body strings.Builder
	fmt.Fprintf(&body, "Alert Type: %s\n", alert.Type)
	fmt.Fprintf(&body, "Sync: %s\n", name)
	fmt.Fprintf(&body, "Sync ID: %s\n", alert.SyncID)
	fmt.Fprintf(&body, "Time: %s\n\n", alert.Timestamp.Format(time.RFC1123))
	fmt.Fprintf(&body, "Message: %s\n", message)
	fmt.Fprintf(&body, "Details: %s\n", details)

	m := gomail.NewMessage()
	m.SetHeader("From", n.cfg.SMTPFrom)
	m.SetHeader("To", n.cfg.SMTPTo...)
	m.SetHeader("Subject", "[SyncBridge] "+message)
	m.SetBody("text/plain", body.String())
	return m
}

func (n *Notifier) sendEmail(alert Alert) error {
	if len(n.cfg.SMTPTo) == 0 {
		return nil
	}
	if err := n.mailer.DialAndSend(n.composeEmail(alert)); err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	log.Printf("[Notify] Email sent to %d recipients: %s", len(n.cfg.SMTPTo), sanitizeForEmail(alert.Message))
	return nil
}
