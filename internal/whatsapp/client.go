package whatsapp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rookgm/chatpesa/internal/models"
	"github.com/rookgm/chatpesa/internal/phone"
)

const serviceName = "whatsapp"

// DefaultBaseURL is Twilio REST API
const DefaultBaseURL = "https://api.twilio.com"

const defaultTimeout = 10 * time.Second

// Config is Twilio account settings
type Config struct {
	BaseURL    string
	AccountSID string
	AuthToken  string
	// From is sender number, with or without "whatsapp:" prefix
	From    string
	Timeout time.Duration
}

// Client sends WhatsApp messages through Twilio
type Client struct {
	client *http.Client
	cfg    Config
}

// NewClient creates new Client instance
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	return &Client{
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
		cfg: cfg,
	}
}

type errorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// SendMessage sends text to canonical phone
func (c *Client) SendMessage(ctx context.Context, to, body string) error {
	// POST /2010-04-01/Accounts/{AccountSid}/Messages.json
	u, err := url.JoinPath(c.cfg.BaseURL, "2010-04-01", "Accounts", c.cfg.AccountSID, "Messages.json")
	if err != nil {
		return models.NewExternalServiceError(serviceName, "send", err)
	}

	form := url.Values{}
	form.Set("To", phone.WhatsAppAddress(to))
	form.Set("From", phone.WhatsAppAddress(phone.Normalize(c.cfg.From)))
	form.Set("Body", body)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, strings.NewReader(form.Encode()))
	if err != nil {
		return models.NewExternalServiceError(serviceName, "send", err)
	}
	req.SetBasicAuth(c.cfg.AccountSID, c.cfg.AuthToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client.Do(req)
	if resp != nil {
		defer resp.Body.Close()
	}
	if err != nil {
		return models.NewExternalServiceError(serviceName, "send", err)
	}

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
		return nil
	}

	errResp := errorResponse{}
	if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil || errResp.Message == "" {
		return models.NewExternalServiceError(serviceName, "send", fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	return models.NewExternalServiceError(serviceName, "send",
		fmt.Errorf("status %d, code %d: %s", resp.StatusCode, errResp.Code, errResp.Message))
}
