// Package config reads process configuration from the environment, after
// loading an optional .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

var ErrMissing = errors.New("config: required variable not set")

type Storefront struct {
	Port                  string
	APIBaseURL            string
	APITimeout            time.Duration
	PublicBaseURL         string
	PostgresURL           string
	KafkaBrokers          []string
	CartEventsTopic       string
	FreeShippingThreshold decimal.Decimal
	SessionCookie         string
	SecureCookies         bool
	CartIdleTTL           time.Duration
	MenuTTL               time.Duration
	OTLPEndpoint          string
}

type Analytics struct {
	Port            string
	PostgresURL     string
	KafkaBrokers    []string
	CartEventsTopic string
	ConsumerGroup   string
	OTLPEndpoint    string
}

// LoadDotEnv loads files (default ".env") into the environment without
// overriding variables that are already set. Missing files are ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	var present []string
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			present = append(present, f)
		}
	}
	if len(present) == 0 {
		return nil
	}
	if err := godotenv.Load(present...); err != nil {
		return fmt.Errorf("load %s: %w", strings.Join(present, ","), err)
	}
	return nil
}

func LoadStorefront(getenv func(string) string) (Storefront, error) {
	e := env{getenv: getenv}
	cfg := Storefront{
		Port:                  e.str("PORT", "8080"),
		APIBaseURL:            strings.TrimRight(e.required("API_BASE_URL"), "/"),
		APITimeout:            e.duration("API_TIMEOUT", 10*time.Second),
		PublicBaseURL:         e.str("PUBLIC_BASE_URL", "http://localhost:3000"),
		PostgresURL:           e.str("POSTGRES_URL", ""),
		KafkaBrokers:          e.list("KAFKA_BROKERS"),
		CartEventsTopic:       e.str("CART_EVENTS_TOPIC", "storefront.cart-events"),
		FreeShippingThreshold: e.decimal("FREE_SHIPPING_THRESHOLD", decimal.NewFromInt(500)),
		SessionCookie:         e.str("SESSION_COOKIE", "sf_session"),
		SecureCookies:         e.bool("SECURE_COOKIES", false),
		CartIdleTTL:           e.duration("CART_IDLE_TTL", 30*time.Minute),
		MenuTTL:               e.duration("MENU_TTL", 5*time.Minute),
		OTLPEndpoint:          e.str("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
	}
	return cfg, e.err()
}

func LoadAnalytics(getenv func(string) string) (Analytics, error) {
	e := env{getenv: getenv}
	cfg := Analytics{
		Port:            e.str("PORT", "8090"),
		PostgresURL:     e.required("POSTGRES_URL"),
		KafkaBrokers:    e.list("KAFKA_BROKERS"),
		CartEventsTopic: e.str("CART_EVENTS_TOPIC", "storefront.cart-events"),
		ConsumerGroup:   e.str("CONSUMER_GROUP", "storefront-analytics"),
		OTLPEndpoint:    e.str("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
	}
	if len(cfg.KafkaBrokers) == 0 {
		e.errs = append(e.errs, fmt.Errorf("%w: KAFKA_BROKERS", ErrMissing))
	}
	return cfg, e.err()
}

// env collects every problem instead of stopping at the first one.
type env struct {
	getenv func(string) string
	errs   []error
}

func (e *env) err() error {
	return errors.Join(e.errs...)
}

func (e *env) str(key, def string) string {
	if v := strings.TrimSpace(e.getenv(key)); v != "" {
		return v
	}
	return def
}

func (e *env) required(key string) string {
	v := strings.TrimSpace(e.getenv(key))
	if v == "" {
		e.errs = append(e.errs, fmt.Errorf("%w: %s", ErrMissing, key))
	}
	return v
}

func (e *env) list(key string) []string {
	var out []string
	for _, part := range strings.Split(e.getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (e *env) duration(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(e.getenv(key))
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		e.errs = append(e.errs, fmt.Errorf("config: %s must be a positive duration, got %q", key, raw))
		return def
	}
	return d
}

func (e *env) decimal(key string, def decimal.Decimal) decimal.Decimal {
	raw := strings.TrimSpace(e.getenv(key))
	if raw == "" {
		return def
	}
	d, err := decimal.NewFromString(raw)
	if err != nil || d.IsNegative() {
		e.errs = append(e.errs, fmt.Errorf("config: %s must be a non-negative amount, got %q", key, raw))
		return def
	}
	return d
}

func (e *env) bool(key string, def bool) bool {
	raw := strings.TrimSpace(e.getenv(key))
	if raw == "" {
		return def
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("config: %s must be a boolean, got %q", key, raw))
		return def
	}
	return b
}
