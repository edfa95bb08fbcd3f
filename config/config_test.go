package config

import (
	"flag"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mapEnv(m map[string]string) func(string) string {
	return func(key string) string { return m[key] }
}

func TestParse_Defaults(t *testing.T) {
	cfg, err := parse(flag.NewFlagSet("test", flag.ContinueOnError), nil, mapEnv(nil))
	require.NoError(t, err)

	assert.Equal(t, defaultServerAddress, cfg.ServerAddr)
	assert.Equal(t, defaultDatabaseDSN, cfg.DatabaseDSN)
	assert.Equal(t, defaultPaymentWorkers, cfg.PaymentWorkers)
	assert.Equal(t, defaultSessionTTL, cfg.SessionTTL)
	assert.False(t, cfg.TwilioValidateSignature)
	assert.Empty(t, cfg.MpesaCallbackURL)
	assert.Empty(t, cfg.CORSOrigins)
}

func TestParse_EnvOverridesFlags(t *testing.T) {
	cfg, err := parse(flag.NewFlagSet("test", flag.ContinueOnError),
		[]string{"-a", ":9000", "-d", "postgres://flag", "-l", "debug"},
		mapEnv(map[string]string{
			"RUN_ADDRESS":               ":7000",
			"DATABASE_URL":              "postgres://env",
			"WEBHOOK_BASE_URL":          "https://chatpesa.example.com/",
			"TWILIO_VALIDATE_SIGNATURE": "true",
			"PAYMENT_TIMEOUT":           "10s",
			"PAYMENT_RATE_LIMIT":        "2.5",
			"CORS_ORIGINS":              "https://a.example.com, https://b.example.com",
		}))
	require.NoError(t, err)

	assert.Equal(t, ":7000", cfg.ServerAddr)
	assert.Equal(t, "postgres://env", cfg.DatabaseDSN)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.True(t, cfg.TwilioValidateSignature)
	assert.Equal(t, "https://chatpesa.example.com", cfg.WebhookBaseURL)
	assert.Equal(t, "https://chatpesa.example.com/webhook/mpesa/callback", cfg.MpesaCallbackURL)
	assert.Equal(t, 10*time.Second, cfg.PaymentTimeout)
	assert.Equal(t, 2.5, cfg.PaymentRateLimit)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.CORSOrigins)
}

func TestParse_Port(t *testing.T) {
	cfg, err := parse(flag.NewFlagSet("test", flag.ContinueOnError), nil, mapEnv(map[string]string{"PORT": "5000"}))
	require.NoError(t, err)
	assert.Equal(t, ":5000", cfg.ServerAddr)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "bad_duration", env: map[string]string{"SESSION_TTL": "soon"}},
		{name: "negative_workers", env: map[string]string{"PAYMENT_WORKERS": "-1"}},
		{name: "bad_bool", env: map[string]string{"TWILIO_VALIDATE_SIGNATURE": "maybe"}},
		{name: "signature_without_base_url", env: map[string]string{"TWILIO_VALIDATE_SIGNATURE": "1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parse(flag.NewFlagSet("test", flag.ContinueOnError), nil, mapEnv(tt.env))
			assert.Error(t, err)
		})
	}
}
