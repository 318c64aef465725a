// Package stripe configures the Stripe SDK for the checkout and webhook flows.
package stripe

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/pawpass-backend/pkg/config"
	"github.com/angelmondragon/pawpass-backend/pkg/logger"
)

const (
	testEnv = "test"
	liveEnv = "live"

	defaultCurrency = "eur"
	defaultTimeout  = 10 * time.Second
)

var (
	errAPIKeyRequired   = errors.New("stripe api key is required")
	errSecretRequired   = errors.New("stripe webhook secret is required")
	errInvalidStripeEnv = fmt.Errorf("stripe environment must be %q or %q", testEnv, liveEnv)
)

// keyPrefixes lists the secret and restricted key prefixes each mode accepts.
var keyPrefixes = map[string][]string{
	testEnv: {"sk_test", "rk_test"},
	liveEnv: {"sk_live", "rk_live"},
}

// Client holds the resolved Stripe settings shared by checkout and webhooks.
type Client struct {
	api      *stripe.Client
	settings settings
}

type settings struct {
	env           string
	apiKey        string
	signingSecret string
	currency      string
	timeout       time.Duration
}

// NewClient validates cfg and installs the key on the SDK's default backend.
func NewClient(ctx context.Context, cfg config.StripeConfig, logg *logger.Logger) (*Client, error) {
	s, err := resolve(cfg)
	if err != nil {
		return nil, err
	}

	stripe.Key = s.apiKey
	client := &Client{api: stripe.NewClient(s.apiKey), settings: s}

	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"stripe_env": s.env,
			"currency":   s.currency,
		}), "stripe.configured")
	}
	return client, nil
}

func resolve(cfg config.StripeConfig) (settings, error) {
	env, err := normalizeEnv(cfg.Environment())
	if err != nil {
		return settings{}, err
	}
	s := settings{
		env:           env,
		apiKey:        strings.TrimSpace(cfg.APIKey),
		signingSecret: strings.TrimSpace(cfg.Secret),
		currency:      strings.ToLower(strings.TrimSpace(cfg.Currency)),
		timeout:       cfg.RequestTimeout,
	}
	if s.apiKey == "" {
		return settings{}, errAPIKeyRequired
	}
	if s.signingSecret == "" {
		return settings{}, errSecretRequired
	}
	if err := validateAPIKey(env, s.apiKey); err != nil {
		return settings{}, err
	}
	if s.currency == "" {
		s.currency = defaultCurrency
	}
	if s.timeout <= 0 {
		s.timeout = defaultTimeout
	}
	return s, nil
}

// API returns the underlying SDK client.
func (c *Client) API() *stripe.Client {
	if c == nil {
		return nil
	}
	return c.api
}

func (c *Client) Environment() string {
	if c == nil {
		return ""
	}
	return c.settings.env
}

func (c *Client) SigningSecret() string {
	if c == nil {
		return ""
	}
	return c.settings.signingSecret
}

// Currency is the lower-cased ISO code charged at checkout.
func (c *Client) Currency() string {
	if c == nil || c.settings.currency == "" {
		return defaultCurrency
	}
	return c.settings.currency
}

// RequestTimeout bounds every outbound Stripe call.
func (c *Client) RequestTimeout() time.Duration {
	if c == nil || c.settings.timeout <= 0 {
		return defaultTimeout
	}
	return c.settings.timeout
}

func normalizeEnv(raw string) (string, error) {
	env := strings.ToLower(strings.TrimSpace(raw))
	if env == "" {
		return testEnv, nil
	}
	if _, ok := keyPrefixes[env]; !ok {
		return "", errInvalidStripeEnv
	}
	return env, nil
}

func validateAPIKey(env, key string) error {
	prefixes, ok := keyPrefixes[env]
	if !ok {
		return errInvalidStripeEnv
	}
	for _, p := range prefixes {
		if strings.HasPrefix(key, p) {
			return nil
		}
	}
	return fmt.Errorf("stripe %s mode requires a key starting with %s", env, strings.Join(prefixes, " or "))
}
