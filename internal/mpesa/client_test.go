package mpesa

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rookgm/chatpesa/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDaraja struct {
	tokenCalls atomic.Int32
	pushCalls  atomic.Int32
	lastPush   stkPushBody
	pushStatus int
	pushBody   string
	// tokenBody overrides oauth response
	tokenBody string
}

func (f *fakeDaraja) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/v1/generate", func(w http.ResponseWriter, r *http.Request) {
		f.tokenCalls.Add(1)
		user, pass, ok := r.BasicAuth()
		if !ok || user != "key" || pass != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		assert.Equal(t, "client_credentials", r.URL.Query().Get("grant_type"))
		w.Header().Set("Content-Type", "application/json")
		body := f.tokenBody
		if body == "" {
			body = `{"access_token":"token-1","expires_in":"3599"}`
		}
		_, _ = w.Write([]byte(body))
	})
	mux.HandleFunc("/mpesa/stkpush/v1/processrequest", func(w http.ResponseWriter, r *http.Request) {
		f.pushCalls.Add(1)
		assert.Equal(t, "Bearer token-1", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&f.lastPush))
		w.WriteHeader(f.pushStatus)
		_, _ = w.Write([]byte(f.pushBody))
	})
	return mux
}

func newTestClient(t *testing.T, f *fakeDaraja) *Client {
	srv := httptest.NewServer(f.handler(t))
	t.Cleanup(srv.Close)

	c := NewClient(Config{
		BaseURL:        srv.URL,
		ConsumerKey:    "key",
		ConsumerSecret: "secret",
		Shortcode:      "174379",
		Passkey:        "passkey",
		CallbackURL:    "https://example.com/webhook/mpesa/callback",
	})
	c.now = func() time.Time { return time.Date(2026, 1, 28, 7, 30, 0, 0, time.UTC) }
	return c
}

func TestClient_STKPush(t *testing.T) {
	f := &fakeDaraja{
		pushStatus: http.StatusOK,
		pushBody: `{"MerchantRequestID":"29115-34620561-1","CheckoutRequestID":"ws_CO_191220191020363925",
			"ResponseCode":"0","ResponseDescription":"Success. Request accepted for processing","CustomerMessage":"Success"}`,
	}
	c := newTestClient(t, f)

	resp, err := c.STKPush(context.Background(), STKPushRequest{
		Phone:            "254722275271",
		Amount:           50,
		AccountReference: "CP0123456789",
		Description:      "Order CP0123456789",
	})
	require.NoError(t, err)
	assert.Equal(t, "ws_CO_191220191020363925", resp.CheckoutRequestID)

	// 07:30 UTC is 10:30 in Nairobi
	assert.Equal(t, "20260128103000", f.lastPush.Timestamp)
	assert.Equal(t, Password("174379", "passkey", "20260128103000"), f.lastPush.Password)
	assert.Equal(t, "CustomerPayBillOnline", f.lastPush.TransactionType)
	assert.Equal(t, "254722275271", f.lastPush.PhoneNumber)
	assert.Equal(t, "254722275271", f.lastPush.PartyA)
	assert.Equal(t, "174379", f.lastPush.PartyB)
	assert.Equal(t, int64(50), f.lastPush.Amount)
	assert.Equal(t, "CP0123456789", f.lastPush.AccountReference)
	assert.Equal(t, "https://example.com/webhook/mpesa/callback", f.lastPush.CallBackURL)

	_, err = c.STKPush(context.Background(), STKPushRequest{Phone: "254722275271", Amount: 60})
	require.NoError(t, err)
	assert.Equal(t, int32(1), f.tokenCalls.Load(), "token must be cached")
	assert.Equal(t, int32(2), f.pushCalls.Load())
}

func TestClient_TokenCachedWithoutExpiresIn(t *testing.T) {
	tests := []struct {
		name      string
		tokenBody string
	}{
		{name: "garbled", tokenBody: `{"access_token":"token-1","expires_in":"soon"}`},
		{name: "missing", tokenBody: `{"access_token":"token-1"}`},
		{name: "shorter_than_margin", tokenBody: `{"access_token":"token-1","expires_in":"30"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &fakeDaraja{
				pushStatus: http.StatusOK,
				pushBody:   `{"CheckoutRequestID":"ws_CO_1","ResponseCode":"0"}`,
				tokenBody:  tt.tokenBody,
			}
			c := newTestClient(t, f)

			for i := 0; i < 3; i++ {
				_, err := c.STKPush(context.Background(), STKPushRequest{Phone: "254722275271", Amount: 50})
				require.NoError(t, err)
			}
			assert.Equal(t, int32(1), f.tokenCalls.Load())
			assert.Equal(t, int32(3), f.pushCalls.Load())
		})
	}
}

func TestClient_STKPushErrors(t *testing.T) {
	tests := []struct {
		name       string
		pushStatus int
		pushBody   string
		wantOp     string
	}{
		{
			name:       "bad_request_return_error",
			pushStatus: http.StatusBadRequest,
			pushBody:   `{"requestId":"1","errorCode":"400.002.02","errorMessage":"Bad Request - Invalid PhoneNumber"}`,
			wantOp:     "stkpush",
		},
		{
			name:       "internal_error_return_error",
			pushStatus: http.StatusInternalServerError,
			pushBody:   `oops`,
			wantOp:     "stkpush",
		},
		{
			name:       "non_zero_response_code_return_error",
			pushStatus: http.StatusOK,
			pushBody:   `{"CheckoutRequestID":"ws_CO_1","ResponseCode":"1","ResponseDescription":"Rejected"}`,
			wantOp:     "stkpush",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, &fakeDaraja{pushStatus: tt.pushStatus, pushBody: tt.pushBody})

			_, err := c.STKPush(context.Background(), STKPushRequest{Phone: "254722275271", Amount: 50})
			require.Error(t, err)

			var extErr *models.ExternalServiceError
			require.ErrorAs(t, err, &extErr)
			assert.Equal(t, "mpesa", extErr.Service)
			assert.Equal(t, tt.wantOp, extErr.Op)
		})
	}
}

func TestClient_AuthFailure(t *testing.T) {
	f := &fakeDaraja{pushStatus: http.StatusOK}
	c := newTestClient(t, f)
	c.cfg.ConsumerSecret = "wrong"

	_, err := c.STKPush(context.Background(), STKPushRequest{Phone: "254722275271", Amount: 50})

	var extErr *models.ExternalServiceError
	require.ErrorAs(t, err, &extErr)
	assert.Equal(t, "auth", extErr.Op)
	assert.Equal(t, int32(0), f.pushCalls.Load())
}

func TestClient_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, Timeout: 50 * time.Millisecond})

	_, err := c.STKPush(context.Background(), STKPushRequest{Phone: "254722275271", Amount: 50})

	var extErr *models.ExternalServiceError
	require.ErrorAs(t, err, &extErr)
}
