package utils

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/valyala/fasthttp"

	"leadflow/config"
	"leadflow/models"
)

// EmailMessage is the content of one outbound email.
type EmailMessage struct {
	Subject   string            `json:"subject" validate:"required"`
	HTMLBody  string            `json:"html_body" validate:"required"`
	TextBody  string            `json:"text_body"`
	FromEmail string            `json:"from_email"`
	FromName  string            `json:"from_name"`
	Tag       string            `json:"tag"`
	Metadata  map[string]string `json:"metadata"`
}

// BatchItemResult is the per-item outcome of a batch send, in input order.
type BatchItemResult struct {
	Index       int
	ProviderRef string
	ErrorCode   int
	Message     string
}

// Failed reports whether the provider rejected this item.
func (r BatchItemResult) Failed() bool {
	return r.ErrorCode != 0 || r.ProviderRef == ""
}

// EmailProvider is the outbound email boundary: a single send returning the
// provider-assigned message id, and a batch send returning one result per
// input item in the same order.
type EmailProvider interface {
	Name() string
	Send(lead *models.Lead, msg EmailMessage) (string, error)
	SendBatch(leads []*models.Lead, msgs []EmailMessage) ([]BatchItemResult, error)
}

// EmailAPIClient talks to a Postmark-style transactional email HTTP API.
type EmailAPIClient struct {
	BaseURL     string
	ServerToken string
	FromEmail   string
	FromName    string
	Timeout     time.Duration

	client *fasthttp.Client
}

func NewEmailAPIClient(cfg config.EmailProviderConfig) *EmailAPIClient {
	return &EmailAPIClient{
		BaseURL:     cfg.BaseURL,
		ServerToken: cfg.ServerToken,
		FromEmail:   cfg.FromEmail,
		FromName:    cfg.FromName,
		Timeout:     30 * time.Second,
		client:      &fasthttp.Client{},
	}
}

func (c *EmailAPIClient) Name() string { return "postmark" }

type apiEmailPayload struct {
	From     string            `json:"From"`
	To       string            `json:"To"`
	Subject  string            `json:"Subject"`
	HtmlBody string            `json:"HtmlBody"`
	TextBody string            `json:"TextBody,omitempty"`
	Tag      string            `json:"Tag,omitempty"`
	Metadata map[string]string `json:"Metadata,omitempty"`
}

type apiEmailResponse struct {
	MessageID string `json:"MessageID"`
	ErrorCode int    `json:"ErrorCode"`
	Message   string `json:"Message"`
}

// Send submits one email and returns the provider message id. A structured
// provider failure (bad recipient, inactive sender signature, ...) surfaces
// as an error carrying the provider's code and message.
func (c *EmailAPIClient) Send(lead *models.Lead, msg EmailMessage) (string, error) {
	payload := c.buildPayload(lead, msg)

	var out apiEmailResponse
	if err := c.post("/email", payload, &out); err != nil {
		return "", err
	}
	if out.ErrorCode != 0 {
		return "", fmt.Errorf("provider error %d: %s", out.ErrorCode, out.Message)
	}
	return out.MessageID, nil
}

// SendBatch submits up to the provider's batch ceiling in one call. The
// response carries one entry per input item in the same order; individual
// failures are data, not an error return.
func (c *EmailAPIClient) SendBatch(leads []*models.Lead, msgs []EmailMessage) ([]BatchItemResult, error) {
	payloads := make([]apiEmailPayload, 0, len(msgs))
	for i := range msgs {
		payloads = append(payloads, c.buildPayload(leads[i], msgs[i]))
	}

	var out []apiEmailResponse
	if err := c.post("/email/batch", payloads, &out); err != nil {
		return nil, err
	}

	results := make([]BatchItemResult, 0, len(out))
	for i, item := range out {
		results = append(results, BatchItemResult{
			Index:       i,
			ProviderRef: item.MessageID,
			ErrorCode:   item.ErrorCode,
			Message:     item.Message,
		})
	}
	return results, nil
}

func (c *EmailAPIClient) buildPayload(lead *models.Lead, msg EmailMessage) apiEmailPayload {
	from := msg.FromEmail
	if from == "" {
		from = c.FromEmail
	}
	fromName := msg.FromName
	if fromName == "" {
		fromName = c.FromName
	}
	if fromName != "" {
		from = fmt.Sprintf("%s <%s>", fromName, from)
	}
	return apiEmailPayload{
		From:     from,
		To:       lead.Email,
		Subject:  msg.Subject,
		HtmlBody: msg.HTMLBody,
		TextBody: msg.TextBody,
		Tag:      msg.Tag,
		Metadata: msg.Metadata,
	}
}

func (c *EmailAPIClient) post(path string, body, out interface{}) error {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.BaseURL + path)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Postmark-Server-Token", c.ServerToken)

	encoded, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}
	req.SetBody(encoded)

	if err := c.client.DoTimeout(req, resp, c.Timeout); err != nil {
		return fmt.Errorf("email API request failed: %w", err)
	}
	if resp.StatusCode() >= 500 {
		return fmt.Errorf("email API returned %d", resp.StatusCode())
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("failed to decode email API response: %w", err)
	}
	return nil
}
