package config

import (
	"log"
	"os"
	"time"

	"github.com/shopspring/decimal"

	"sambaza/carriers"
)

type PinlessConfig struct {
	TokenURL     string
	DispatchURL  string
	ClientID     string
	ClientSecret string
	SenderMsisdn string
	ServicePin   string
	Timeout      time.Duration
}

type AfricasTalkingConfig struct {
	URL      string
	Username string
	APIKey   string
	Currency string
	Timeout  time.Duration
}

type Config struct {
	Host string
	Port string

	// Minimum accepted top-up, enforced by the validation endpoint before a
	// payment is ever recorded.
	MinAmount decimal.Decimal

	FloatAlertThreshold decimal.Decimal
	FloatWatchInterval  time.Duration

	// Pools groups carriers onto settlement float pools; Providers routes
	// carriers to dispatch integrations. The two maps are kept separate
	// because pool and provider boundaries need not coincide.
	Pools     map[carriers.Carrier]string
	Providers map[carriers.Carrier]string

	Pinless        PinlessConfig
	AfricasTalking AfricasTalkingConfig
}

func Load() Config {
	return Config{
		Host: getenv("HOST", "127.0.0.1"),
		Port: getenv("PORT", "3000"),

		MinAmount:           decimalEnv("MIN_TOPUP_AMOUNT", "10"),
		FloatAlertThreshold: decimalEnv("FLOAT_ALERT_THRESHOLD", "500"),
		FloatWatchInterval:  durationEnv("FLOAT_WATCH_INTERVAL", 5*time.Minute),

		Pools: map[carriers.Carrier]string{
			carriers.Safaricom: getenv("POOL_SAFARICOM", "saf-dealer"),
			carriers.Airtel:    getenv("POOL_AIRTEL", "at-aggregator"),
			carriers.Telkom:    getenv("POOL_TELKOM", "at-aggregator"),
		},
		Providers: map[carriers.Carrier]string{
			carriers.Safaricom: getenv("PROVIDER_SAFARICOM", "pinless"),
			carriers.Airtel:    getenv("PROVIDER_AIRTEL", "africastalking"),
			carriers.Telkom:    getenv("PROVIDER_TELKOM", "africastalking"),
		},

		Pinless: PinlessConfig{
			TokenURL:     os.Getenv("PINLESS_TOKEN_URL"),
			DispatchURL:  os.Getenv("PINLESS_DISPATCH_URL"),
			ClientID:     os.Getenv("PINLESS_CLIENT_ID"),
			ClientSecret: os.Getenv("PINLESS_CLIENT_SECRET"),
			SenderMsisdn: os.Getenv("PINLESS_SENDER_MSISDN"),
			ServicePin:   os.Getenv("PINLESS_SERVICE_PIN"),
			Timeout:      durationEnv("PINLESS_TIMEOUT", 30*time.Second),
		},
		AfricasTalking: AfricasTalkingConfig{
			URL:      getenv("AT_AIRTIME_URL", "https://api.africastalking.com/version1/airtime/send"),
			Username: os.Getenv("AT_USERNAME"),
			APIKey:   os.Getenv("AT_API_KEY"),
			Currency: getenv("AT_CURRENCY", "KES"),
			Timeout:  durationEnv("AT_TIMEOUT", 30*time.Second),
		},
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func decimalEnv(key, fallback string) decimal.Decimal {
	raw := getenv(key, fallback)
	d, err := decimal.NewFromString(raw)
	if err != nil {
		log.Printf("[config] invalid value for %s: %q, using %s", key, raw, fallback)
		d, _ = decimal.NewFromString(fallback)
	}
	return d
}

func durationEnv(key string, fallback time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		log.Printf("[config] invalid value for %s: %q, using %s", key, raw, fallback)
		return fallback
	}
	return d
}
