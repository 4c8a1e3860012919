package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"bitbucket.org/mmdatafocus/procurement_backend/config"
)

// Mailer delivers transactional mail (approval requests). Delivery itself is
// an external concern; this package only knows how to hand a message off.
type Mailer interface {
	Send(ctx context.Context, to string, subject string, htmlBody string) error
}

var (
	mailerMu sync.RWMutex
	mailer   Mailer
)

// GetMailer returns the configured mailer, lazily picking an implementation
// from env on first use. MAILER_WEBHOOK_URL selects the webhook relay;
// otherwise mail is only logged (dev/test).
func GetMailer() Mailer {
	mailerMu.RLock()
	m := mailer
	mailerMu.RUnlock()
	if m != nil {
		return m
	}

	mailerMu.Lock()
	defer mailerMu.Unlock()
	if mailer == nil {
		if url := strings.TrimSpace(os.Getenv("MAILER_WEBHOOK_URL")); url != "" {
			mailer = newWebhookMailer(url)
		} else {
			mailer = &logMailer{logger: config.GetLogger()}
		}
	}
	return mailer
}

// SetMailer overrides the mailer (tests, alternate transports).
func SetMailer(m Mailer) {
	mailerMu.Lock()
	mailer = m
	mailerMu.Unlock()
}

// webhookMailer posts the message to an internal mail relay endpoint.
type webhookMailer struct {
	url    string
	apiKey string
	http   *http.Client
}

func newWebhookMailer(url string) *webhookMailer {
	return &webhookMailer{
		url:    strings.TrimRight(url, "/"),
		apiKey: strings.TrimSpace(os.Getenv("MAILER_API_KEY")),
		http:   &http.Client{Timeout: 15 * time.Second},
	}
}

type mailPayload struct {
	To       string `json:"to"`
	Subject  string `json:"subject"`
	HtmlBody string `json:"htmlBody"`
}

func (m *webhookMailer) Send(ctx context.Context, to string, subject string, htmlBody string) error {
	body, err := json.Marshal(mailPayload{To: to, Subject: subject, HtmlBody: htmlBody})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if m.apiKey != "" {
		req.Header.Set("X-API-Key", m.apiKey)
	}

	resp, err := m.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("mail relay returned status %d", resp.StatusCode)
	}
	return nil
}

// logMailer writes the message to the structured log instead of sending it.
type logMailer struct {
	logger *logrus.Logger
}

func (m *logMailer) Send(_ context.Context, to string, subject string, htmlBody string) error {
	if m.logger == nil {
		return errors.New("log mailer has no logger")
	}
	m.logger.WithFields(logrus.Fields{
		"module":  "notify",
		"to":      to,
		"subject": subject,
		"bodyLen": len(htmlBody),
	}).Info("mail suppressed (no relay configured)")
	return nil
}
