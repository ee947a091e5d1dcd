// Package gateway wraps the payout provider's transfer API. Withdrawals and
// session payouts settle through it; nothing else in the system moves money
// externally.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/clearwaterpub/royaltyops-backend/pkg/config"
	"github.com/clearwaterpub/royaltyops-backend/pkg/logger"
)

const (
	testEnv = "test"
	liveEnv = "live"

	defaultTimeout = 15 * time.Second
)

var (
	errAPIKeyRequired  = errors.New("gateway api key is required")
	errBaseURLRequired = errors.New("gateway base url is required")
	errInvalidEnv      = fmt.Errorf("gateway environment must be %q or %q", testEnv, liveEnv)
)

// Client talks to the payout gateway over HTTP.
type Client struct {
	http        *http.Client
	baseURL     string
	apiKey      string
	environment string
}

// NewClient validates the configured credentials against the selected
// environment and returns a ready client.
func NewClient(ctx context.Context, cfg config.GatewayConfig, logg *logger.Logger) (*Client, error) {
	env, err := normalizeEnv(cfg.Environment())
	if err != nil {
		return nil, err
	}

	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errAPIKeyRequired
	}
	if err := validateAPIKey(env, apiKey); err != nil {
		return nil, err
	}

	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errBaseURLRequired
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	if logg != nil {
		logg.Info(ctx, fmt.Sprintf("payout gateway client initialized (%s)", env))
	}

	return &Client{
		http:        &http.Client{Timeout: timeout},
		baseURL:     baseURL,
		apiKey:      apiKey,
		environment: env,
	}, nil
}

// Environment reports the normalized gateway environment in use.
func (c *Client) Environment() string {
	if c == nil {
		return ""
	}
	return c.environment
}

func normalizeEnv(raw string) (string, error) {
	env := strings.TrimSpace(strings.ToLower(raw))
	if env == "" {
		env = testEnv
	}
	switch env {
	case testEnv, liveEnv:
		return env, nil
	default:
		return "", errInvalidEnv
	}
}

func validateAPIKey(env, key string) error {
	switch env {
	case testEnv:
		if strings.HasPrefix(key, "pk_test") {
			return nil
		}
		return fmt.Errorf("gateway environment %q requires a test key (pk_test)", testEnv)
	case liveEnv:
		if strings.HasPrefix(key, "pk_live") {
			return nil
		}
		return fmt.Errorf("gateway environment %q requires a live key (pk_live)", liveEnv)
	default:
		return errInvalidEnv
	}
}
