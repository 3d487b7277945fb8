package utils

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/gomail.v2"

	"leadflow/config"
	"leadflow/models"
)

// SMTPEmailClient is the fallback email provider, sending through a plain
// SMTP relay. SMTP assigns no provider reference, so the client generates a
// Message-ID itself and returns it as the ref; delivery callbacks for SMTP
// sends only arrive if the relay is fronted by a tracking proxy.
type SMTPEmailClient struct {
	From   string
	dialer *gomail.Dialer
}

func NewSMTPEmailClient(cfg config.SMTPConfig) *SMTPEmailClient {
	return &SMTPEmailClient{
		From:   cfg.From,
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
	}
}

func (c *SMTPEmailClient) Name() string { return "smtp" }

func (c *SMTPEmailClient) Send(lead *models.Lead, msg EmailMessage) (string, error) {
	if lead.Email == "" {
		return "", fmt.Errorf("lead %d has no email address", lead.ID)
	}

	from := msg.FromEmail
	if from == "" {
		from = c.From
	}
	ref := c.messageID(from)

	m := gomail.NewMessage()
	m.SetHeader("From", from)
	m.SetHeader("To", lead.Email)
	m.SetHeader("Subject", msg.Subject)
	m.SetHeader("Message-ID", "<"+ref+">")
	m.SetBody("text/html", msg.HTMLBody)
	if msg.TextBody != "" {
		m.AddAlternative("text/plain", msg.TextBody)
	}

	if err := c.dialer.DialAndSend(m); err != nil {
		return "", fmt.Errorf("smtp send failed: %w", err)
	}
	return ref, nil
}

// SendBatch sends sequentially; SMTP has no batch endpoint. Per-item failures
// are recorded in the results so one bad recipient never aborts the rest.
func (c *SMTPEmailClient) SendBatch(leads []*models.Lead, msgs []EmailMessage) ([]BatchItemResult, error) {
	results := make([]BatchItemResult, 0, len(msgs))
	for i := range msgs {
		ref, err := c.Send(leads[i], msgs[i])
		if err != nil {
			results = append(results, BatchItemResult{Index: i, ErrorCode: 1, Message: err.Error()})
			continue
		}
		results = append(results, BatchItemResult{Index: i, ProviderRef: ref})
	}
	return results, nil
}

func (c *SMTPEmailClient) messageID(from string) string {
	domain := "leadflow.local"
	if at := strings.LastIndex(from, "@"); at != -1 && at < len(from)-1 {
		domain = from[at+1:]
	}
	return uuid.NewString() + "@" + domain
}
