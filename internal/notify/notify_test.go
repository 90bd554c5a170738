package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"gopkg.in/gomail.v2"
)

type fakeMailer struct {
	mu   sync.Mutex
	sent []*gomail.Message
	done chan struct{}
}

func (f *fakeMailer) DialAndSend(m ...*gomail.Message) error {
	f.mu.Lock()
	f.sent = append(f.sent, m...)
	f.mu.Unlock()
	if f.done != nil {
		f.done <- struct{}{}
	}
	return nil
}

func TestValidateWebhookURL(t *testing.T) {
	tests := []struct {
		url     string
		wantErr bool
	}{
		{"https://hooks.example.com/services/x", false},
		{"http://hooks.example.com/x", true},
		{"https://localhost/x", true},
		{"https://127.0.0.1/x", true},
		{"https://10.1.2.3/x", true},
		{"https://172.20.0.1/x", true},
		{"https://192.168.1.1/x", true},
		{"https://[::1]/x", true},
		{"https://printer.local/x", true},
		{"https://8.8.8.8/x", false},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			err := ValidateWebhookURL(tt.url)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateWebhookURL(%q) error = %v, wantErr %v", tt.url, err, tt.wantErr)
			}
		})
	}
}

func TestValidateConfig(t *testing.T) {
	t.Run("valid email config", func(t *testing.T) {
		cfg := &Config{
			EmailEnabled: true, SMTPHost: "smtp.example.com", SMTPPort: 587,
			SMTPFrom: "alerts@example.com", SMTPTo: []string{"ops@example.com"},
			CooldownPeriod: time.Hour,
		}
		if err := ValidateConfig(cfg); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("rejects bad recipient", func(t *testing.T) {
		cfg := &Config{
			EmailEnabled: true, SMTPHost: "smtp.example.com", SMTPPort: 587,
			SMTPFrom: "alerts@example.com", SMTPTo: []string{"not-an-email"},
			CooldownPeriod: time.Hour,
		}
		if err := ValidateConfig(cfg); err == nil {
			t.Error("expected error")
		}
	})

	t.Run("rejects short cooldown", func(t *testing.T) {
		if err := ValidateConfig(&Config{CooldownPeriod: time.Second}); err == nil {
			t.Error("expected error")
		}
	})
}

func TestSanitizeForEmail(t *testing.T) {
	got := sanitizeForEmail("name\r\nBcc: evil@example.com")
	if strings.ContainsAny(got, "\r\n") {
		t.Errorf("expected no line breaks, got %q", got)
	}
	if len(sanitizeForEmail(strings.Repeat("x", 500))) != 200 {
		t.Error("expected truncation to 200")
	}
}

func TestFailureAndRecovery(t *testing.T) {
	mail := &fakeMailer{done: make(chan struct{}, 4)}
	n := New(&Config{
		EmailEnabled:   true,
		SMTPFrom:       "alerts@example.com",
		SMTPTo:         []string{"ops@example.com"},
		CooldownPeriod: time.Hour,
	})
	n.mailer = mail
	ctx := context.Background()

	if n.SendRecoveryAlert(ctx, "s1", "Contacts") {
		t.Error("expected no recovery for a healthy sync")
	}

	if !n.SendFailureAlert(ctx, "s1", "Contacts", "upload rejected") {
		t.Fatal("expected first failure alert")
	}
	<-mail.done
	if n.SendFailureAlert(ctx, "s1", "Contacts", "upload rejected") {
		t.Error("expected second failure to be suppressed by cooldown")
	}
	if ids := n.FailingSyncIDs(); len(ids) != 1 || ids[0] != "s1" {
		t.Errorf("unexpected failing ids %v", ids)
	}

	if !n.SendRecoveryAlert(ctx, "s1", "Contacts") {
		t.Fatal("expected recovery alert")
	}
	<-mail.done

	mail.mu.Lock()
	defer mail.mu.Unlock()
	if len(mail.sent) != 2 {
		t.Fatalf("expected 2 emails, got %d", len(mail.sent))
	}
	var buf bytes.Buffer
	if _, err := mail.sent[0].WriteTo(&buf); err != nil {
		t.Fatalf("WriteTo failed: %v", err)
	}
	if !strings.Contains(buf.String(), "[SyncBridge] Sync 'Contacts' failed") {
		t.Errorf("unexpected email:\n%s", buf.String())
	}
}

func TestClear(t *testing.T) {
	n := New(&Config{CooldownPeriod: time.Hour})
	n.SendFailureAlert(context.Background(), "s1", "Contacts", "")
	n.Clear("s1")
	if len(n.FailingSyncIDs()) != 0 {
		t.Error("expected no failing syncs after clear")
	}
}

func TestSendWebhook(t *testing.T) {
	var got WebhookPayload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
	}))
	defer server.Close()

	n := New(&Config{WebhookEnabled: true, WebhookURL: server.URL, CooldownPeriod: time.Hour})
	err := n.sendWebhook(context.Background(), Alert{
		Type: AlertTypeFailure, SyncID: "s1", SyncName: "Contacts",
		Message: "Sync 'Contacts' failed", Timestamp: time.Now(),
	})
	if err != nil {
		t.Fatalf("sendWebhook failed: %v", err)
	}
	if got.AlertType != "failure" || got.SyncID != "s1" || !strings.HasPrefix(got.Text, ":x:") {
		t.Errorf("unexpected payload %+v", got)
	}
}
