package utils

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/valyala/fasthttp"

	"leadflow/config"
	"leadflow/models"
)

// SMSProvider is the outbound SMS boundary. Send returns the provider message
// id used later to join delivery callbacks onto the attempt.
type SMSProvider interface {
	Name() string
	Send(lead *models.Lead, body string) (string, error)
}

// SMSAPIClient talks to a JSON SMS gateway (twilio-style message resource).
type SMSAPIClient struct {
	ProviderName string
	BaseURL      string
	APIToken     string
	Sender       string
	Timeout      time.Duration

	client *fasthttp.Client
}

func NewSMSAPIClient(cfg config.SMSProviderConfig) *SMSAPIClient {
	return &SMSAPIClient{
		ProviderName: cfg.Provider,
		BaseURL:      cfg.BaseURL,
		APIToken:     cfg.APIToken,
		Sender:       cfg.Sender,
		Timeout:      30 * time.Second,
		client:       &fasthttp.Client{},
	}
}

func (c *SMSAPIClient) Name() string { return c.ProviderName }

type smsSendResponse struct {
	// Providers disagree on the id field name.
	ID           string `json:"id"`
	MessageID    string `json:"messageId"`
	Status       string `json:"status"`
	ErrorCode    int    `json:"error_code"`
	ErrorMessage string `json:"error_message"`
}

func (c *SMSAPIClient) Send(lead *models.Lead, body string) (string, error) {
	if lead.Phone == "" {
		return "", fmt.Errorf("lead %d has no phone number", lead.ID)
	}

	payload := map[string]string{
		"from": c.Sender,
		"to":   lead.Phone,
		"body": body,
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.BaseURL + "/messages")
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	req.Header.Set("Authorization", "Bearer "+c.APIToken)

	encoded, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to encode request: %w", err)
	}
	req.SetBody(encoded)

	if err := c.client.DoTimeout(req, resp, c.Timeout); err != nil {
		return "", fmt.Errorf("sms API request failed: %w", err)
	}
	if resp.StatusCode() >= 400 {
		return "", fmt.Errorf("sms API returned %d", resp.StatusCode())
	}

	var out smsSendResponse
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return "", fmt.Errorf("failed to decode sms API response: %w", err)
	}
	if out.ErrorCode != 0 {
		return "", fmt.Errorf("provider error %d: %s", out.ErrorCode, out.ErrorMessage)
	}

	ref := out.ID
	if ref == "" {
		ref = out.MessageID
	}
	if ref == "" {
		return "", fmt.Errorf("sms API response carried no message id")
	}
	return ref, nil
}
