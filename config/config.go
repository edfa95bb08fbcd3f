package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultServerAddress        = ":8080"
	defaultDatabaseDSN          = "sqlite://chatpesa.db"
	defaultLogLevel             = "info"
	defaultTwilioBaseURL        = "https://api.twilio.com"
	defaultMpesaBaseURL         = "https://sandbox.safaricom.co.ke"
	defaultPaymentTimeout       = 30 * time.Second
	defaultPaymentWorkers       = 4
	defaultPaymentQueueSize     = 100
	defaultPaymentRateLimit     = 5
	defaultSessionTTL           = 30 * time.Minute
	defaultSessionCacheSize     = 10000
	defaultOrderPaymentDeadline = 15 * time.Minute
	defaultSweepInterval        = time.Minute

	mpesaCallbackPath = "/webhook/mpesa/callback"
)

type Config struct {
	ServerAddr  string
	DatabaseDSN string
	LogLevel    string

	TwilioAccountSID        string
	TwilioAuthToken         string
	TwilioWhatsAppNumber    string
	TwilioBaseURL           string
	TwilioValidateSignature bool
	// WebhookBaseURL is public address of this service
	WebhookBaseURL string

	MpesaBaseURL        string
	MpesaShortcode      string
	MpesaPasskey        string
	MpesaConsumerKey    string
	MpesaConsumerSecret string
	MpesaCallbackURL    string

	PaymentTimeout   time.Duration
	PaymentWorkers   int
	PaymentQueueSize int
	PaymentRateLimit float64

	SessionTTL           time.Duration
	SessionCacheSize     int
	OrderPaymentDeadline time.Duration
	SweepInterval        time.Duration

	// DashboardPasswordHash is bcrypt hash, empty disables dashboard login
	DashboardPasswordHash string
	AuthTokenKey          string
	CORSOrigins           []string
}

var (
	once      sync.Once
	singleton *Config
	loadErr   error
)

// New returns new Config. It parses .env file, command line and environment variables only once.
func New() (*Config, error) {
	once.Do(func() {
		// .env is optional, real environment wins over it
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			loadErr = fmt.Errorf("load .env: %w", err)
			return
		}

		singleton, loadErr = parse(flag.CommandLine, os.Args[1:], os.Getenv)
	})

	return singleton, loadErr
}

func parse(fset *flag.FlagSet, args []string, getenv func(string) string) (*Config, error) {
	cfg := Config{}

	// initialize flags
	fset.StringVar(&cfg.ServerAddr, "a", defaultServerAddress, "server address")
	fset.StringVar(&cfg.DatabaseDSN, "d", defaultDatabaseDSN, "database DSN, postgres:// or sqlite://")
	fset.StringVar(&cfg.LogLevel, "l", defaultLogLevel, "log level")

	if err := fset.Parse(args); err != nil {
		return nil, err
	}

	// if environment variable is set, then using it
	if port := getenv("PORT"); port != "" {
		cfg.ServerAddr = ":" + port
	}
	if runAddrEnv := getenv("RUN_ADDRESS"); runAddrEnv != "" {
		cfg.ServerAddr = runAddrEnv
	}
	if dataBaseURLEnv := getenv("DATABASE_URL"); dataBaseURLEnv != "" {
		cfg.DatabaseDSN = dataBaseURLEnv
	}
	if logLevelEnv := getenv("LOG_LEVEL"); logLevelEnv != "" {
		cfg.LogLevel = logLevelEnv
	}

	e := env{getenv: getenv}

	cfg.TwilioAccountSID = e.getString("TWILIO_ACCOUNT_SID", "")
	cfg.TwilioAuthToken = e.getString("TWILIO_AUTH_TOKEN", "")
	cfg.TwilioWhatsAppNumber = e.getString("TWILIO_WHATSAPP_NUMBER", "")
	cfg.TwilioBaseURL = e.getString("TWILIO_BASE_URL", defaultTwilioBaseURL)
	cfg.TwilioValidateSignature = e.getBool("TWILIO_VALIDATE_SIGNATURE", false)
	cfg.WebhookBaseURL = strings.TrimRight(e.getString("WEBHOOK_BASE_URL", ""), "/")

	cfg.MpesaBaseURL = e.getString("MPESA_BASE_URL", defaultMpesaBaseURL)
	cfg.MpesaShortcode = e.getString("MPESA_SHORTCODE", "")
	cfg.MpesaPasskey = e.getString("MPESA_PASSKEY", "")
	cfg.MpesaConsumerKey = e.getString("MPESA_CONSUMER_KEY", "")
	cfg.MpesaConsumerSecret = e.getString("MPESA_CONSUMER_SECRET", "")
	cfg.MpesaCallbackURL = e.getString("MPESA_CALLBACK_URL", "")
	if cfg.MpesaCallbackURL == "" && cfg.WebhookBaseURL != "" {
		cfg.MpesaCallbackURL = cfg.WebhookBaseURL + mpesaCallbackPath
	}

	cfg.PaymentTimeout = e.getDuration("PAYMENT_TIMEOUT", defaultPaymentTimeout)
	cfg.PaymentWorkers = e.getInt("PAYMENT_WORKERS", defaultPaymentWorkers)
	cfg.PaymentQueueSize = e.getInt("PAYMENT_QUEUE_SIZE", defaultPaymentQueueSize)
	cfg.PaymentRateLimit = e.getFloat("PAYMENT_RATE_LIMIT", defaultPaymentRateLimit)

	cfg.SessionTTL = e.getDuration("SESSION_TTL", defaultSessionTTL)
	cfg.SessionCacheSize = e.getInt("SESSION_CACHE_SIZE", defaultSessionCacheSize)
	cfg.OrderPaymentDeadline = e.getDuration("ORDER_PAYMENT_DEADLINE", defaultOrderPaymentDeadline)
	cfg.SweepInterval = e.getDuration("SWEEP_INTERVAL", defaultSweepInterval)

	cfg.DashboardPasswordHash = e.getString("DASHBOARD_PASSWORD_HASH", "")
	cfg.AuthTokenKey = e.getString("AUTH_TOKEN_KEY", "")
	cfg.CORSOrigins = e.getList("CORS_ORIGINS")

	if e.err != nil {
		return nil, e.err
	}

	if cfg.TwilioValidateSignature && cfg.WebhookBaseURL == "" {
		return nil, errors.New("WEBHOOK_BASE_URL is required when TWILIO_VALIDATE_SIGNATURE is set")
	}

	return &cfg, nil
}

// env reads typed environment variables and collects parse errors
type env struct {
	getenv func(string) string
	err    error
}

func (e *env) getString(key, def string) string {
	if v := strings.TrimSpace(e.getenv(key)); v != "" {
		return v
	}
	return def
}

func (e *env) getInt(key string, def int) int {
	v := e.getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		e.fail(key, v)
		return def
	}
	return n
}

func (e *env) getFloat(key string, def float64) float64 {
	v := e.getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f < 0 {
		e.fail(key, v)
		return def
	}
	return f
}

func (e *env) getBool(key string, def bool) bool {
	v := e.getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.fail(key, v)
		return def
	}
	return b
}

func (e *env) getDuration(key string, def time.Duration) time.Duration {
	v := e.getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		e.fail(key, v)
		return def
	}
	return d
}

func (e *env) getList(key string) []string {
	var out []string
	for _, item := range strings.Split(e.getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func (e *env) fail(key, value string) {
	e.err = errors.Join(e.err, fmt.Errorf("invalid %s value %q", key, value))
}
