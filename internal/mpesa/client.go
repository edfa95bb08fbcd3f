package mpesa

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/rookgm/chatpesa/internal/models"
)

const serviceName = "mpesa"

// SandboxBaseURL is Daraja sandbox
const SandboxBaseURL = "https://sandbox.safaricom.co.ke"

const (
	defaultTimeout         = 15 * time.Second
	defaultTransactionType = "CustomerPayBillOnline"
	// token is refreshed a bit before provider expiry
	tokenExpiryMargin = time.Minute
	// Daraja tokens live an hour, used when expires_in is missing or garbled
	defaultTokenLifetime = 3599 * time.Second
	timestampLayout   = "20060102150405"
)

// provider timestamps are in Kenyan time
var eat = time.FixedZone("EAT", 3*60*60)

// Config is Daraja API settings
type Config struct {
	BaseURL         string
	ConsumerKey     string
	ConsumerSecret  string
	Shortcode       string
	Passkey         string
	CallbackURL     string
	TransactionType string
	Timeout         time.Duration
}

// Client represents Daraja STK push client
type Client struct {
	client *http.Client
	cfg    Config
	now    func() time.Time

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

// NewClient creates new Client instance
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = SandboxBaseURL
	}
	if cfg.TransactionType == "" {
		cfg.TransactionType = defaultTransactionType
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	return &Client{
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
		cfg: cfg,
		now: time.Now,
	}
}

// STKPushRequest is payment prompt for customer phone
type STKPushRequest struct {
	// Phone is canonical phone
	Phone            string
	Amount           int64
	AccountReference string
	Description      string
}

// STKPushResponse is provider acknowledgement of STK push
type STKPushResponse struct {
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	CustomerMessage     string `json:"CustomerMessage"`
}

type stkPushBody struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	TransactionType   string `json:"TransactionType"`
	Amount            int64  `json:"Amount"`
	PartyA            string `json:"PartyA"`
	PartyB            string `json:"PartyB"`
	PhoneNumber       string `json:"PhoneNumber"`
	CallBackURL       string `json:"CallBackURL"`
	AccountReference  string `json:"AccountReference"`
	TransactionDesc   string `json:"TransactionDesc"`
}

type errorResponse struct {
	RequestID    string `json:"requestId"`
	ErrorCode    string `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   string `json:"expires_in"`
}

// STKPush asks provider to prompt customer phone for PIN.
// Any failure to get the prompt sent is returned as *models.ExternalServiceError.
func (c *Client) STKPush(ctx context.Context, req STKPushRequest) (*STKPushResponse, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	timestamp := c.now().In(eat).Format(timestampLayout)
	body := stkPushBody{
		BusinessShortCode: c.cfg.Shortcode,
		Password:          Password(c.cfg.Shortcode, c.cfg.Passkey, timestamp),
		Timestamp:         timestamp,
		TransactionType:   c.cfg.TransactionType,
		Amount:            req.Amount,
		PartyA:            req.Phone,
		PartyB:            c.cfg.Shortcode,
		PhoneNumber:       req.Phone,
		CallBackURL:       c.cfg.CallbackURL,
		AccountReference:  req.AccountReference,
		TransactionDesc:   req.Description,
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, models.NewExternalServiceError(serviceName, "stkpush", err)
	}

	// POST /mpesa/stkpush/v1/processrequest
	u, err := url.JoinPath(c.cfg.BaseURL, "mpesa", "stkpush", "v1", "processrequest")
	if err != nil {
		return nil, models.NewExternalServiceError(serviceName, "stkpush", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(payload))
	if err != nil {
		return nil, models.NewExternalServiceError(serviceName, "stkpush", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+token)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if resp != nil {
		defer resp.Body.Close()
	}
	if err != nil {
		return nil, models.NewExternalServiceError(serviceName, "stkpush", err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
		stkResp := STKPushResponse{}
		if err := json.NewDecoder(resp.Body).Decode(&stkResp); err != nil {
			return nil, models.NewExternalServiceError(serviceName, "stkpush", err)
		}
		if stkResp.ResponseCode != "0" {
			return nil, models.NewExternalServiceError(serviceName, "stkpush",
				fmt.Errorf("response code %s: %s", stkResp.ResponseCode, stkResp.ResponseDescription))
		}
		return &stkResp, nil
	case http.StatusUnauthorized:
		// token may have been revoked before its expiry
		c.resetToken()
	}

	return nil, models.NewExternalServiceError(serviceName, "stkpush", decodeError(resp))
}

// accessToken returns cached OAuth token or requests new one
func (c *Client) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && c.now().Before(c.tokenExpiry) {
		return c.token, nil
	}

	// GET /oauth/v1/generate?grant_type=client_credentials
	u, err := url.JoinPath(c.cfg.BaseURL, "oauth", "v1", "generate")
	if err != nil {
		return "", models.NewExternalServiceError(serviceName, "auth", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u+"?grant_type=client_credentials", nil)
	if err != nil {
		return "", models.NewExternalServiceError(serviceName, "auth", err)
	}
	req.SetBasicAuth(c.cfg.ConsumerKey, c.cfg.ConsumerSecret)

	resp, err := c.client.Do(req)
	if resp != nil {
		defer resp.Body.Close()
	}
	if err != nil {
		return "", models.NewExternalServiceError(serviceName, "auth", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", models.NewExternalServiceError(serviceName, "auth", decodeError(resp))
	}

	tokenResp := tokenResponse{}
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return "", models.NewExternalServiceError(serviceName, "auth", err)
	}
	if tokenResp.AccessToken == "" {
		return "", models.NewExternalServiceError(serviceName, "auth", errors.New("empty access token"))
	}

	lifetime := defaultTokenLifetime
	if expiresIn, err := strconv.Atoi(tokenResp.ExpiresIn); err == nil && time.Duration(expiresIn)*time.Second > tokenExpiryMargin {
		lifetime = time.Duration(expiresIn) * time.Second
	}

	c.token = tokenResp.AccessToken
	c.tokenExpiry = c.now().Add(lifetime - tokenExpiryMargin)

	return c.token, nil
}

func (c *Client) resetToken() {
	c.mu.Lock()
	c.token = ""
	c.mu.Unlock()
}

// Password returns STK push password: base64(shortcode + passkey + timestamp)
func Password(shortcode, passkey, timestamp string) string {
	return base64.StdEncoding.EncodeToString([]byte(shortcode + passkey + timestamp))
}

func decodeError(resp *http.Response) error {
	errResp := errorResponse{}
	if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil || errResp.ErrorCode == "" {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return fmt.Errorf("status %d, %s: %s", resp.StatusCode, errResp.ErrorCode, errResp.ErrorMessage)
}
