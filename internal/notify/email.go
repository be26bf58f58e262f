// Package notify delivers transactional email through a Resend-compatible
// HTTP API.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"
)

const (
	DefaultProvider = "Resend"
	DefaultEndpoint = "https://api.resend.com"
	DefaultTimeout  = 10 * time.Second

	maxErrorBody = 1 << 10
)

// ErrNotConfigured is returned by Send when no API key is set.
var ErrNotConfigured = errors.New("not configured")

type Config struct {
	Provider string
	APIKey   string
	Endpoint string
	From     string
	Timeout  time.Duration

	// Consecutive transport or 5xx failures before the breaker opens.
	BreakerFailures uint32
	// How long the breaker stays open before letting a probe through.
	BreakerCooldown time.Duration
}

type Message struct {
	To      string
	ToName  string
	Subject string
	HTML    string
	Text    string
}

// ProviderError is a non-2xx answer from the email API.
type ProviderError struct {
	StatusCode int
	Body       string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("email provider returned %d: %s", e.StatusCode, e.Body)
}

type Client struct {
	cfg     Config
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
}

func New(cfg Config) *Client {
	if cfg.Provider == "" {
		cfg.Provider = DefaultProvider
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = 5
	}
	if cfg.BreakerCooldown <= 0 {
		cfg.BreakerCooldown = 30 * time.Second
	}
	c := &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "email-" + strings.ToLower(cfg.Provider),
		MaxRequests: 1,
		Timeout:     cfg.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailures
		},
		IsSuccessful: func(err error) bool {
			// A 4xx is the request's fault, not the provider's.
			var pe *ProviderError
			return err == nil || (errors.As(err, &pe) && pe.StatusCode < 500)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("email circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
	return c
}

func (c *Client) Provider() string { return c.cfg.Provider }

func (c *Client) Configured() bool { return strings.TrimSpace(c.cfg.APIKey) != "" }

// Send posts msg to the provider. It fails fast with ErrNotConfigured when no
// API key is set and with gobreaker.ErrOpenState while the breaker is open.
func (c *Client) Send(ctx context.Context, msg Message) error {
	if !c.Configured() {
		return fmt.Errorf("%s %w", c.cfg.Provider, ErrNotConfigured)
	}
	if strings.TrimSpace(msg.To) == "" {
		return errors.New("email recipient is required")
	}
	_, err := c.breaker.Execute(func() (interface{}, error) {
		return nil, c.post(ctx, msg)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%s is currently unavailable: %w", c.cfg.Provider, err)
	}
	return err
}

type sendRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html,omitempty"`
	Text    string   `json:"text,omitempty"`
}

func (c *Client) post(ctx context.Context, msg Message) error {
	to := msg.To
	if msg.ToName != "" {
		to = fmt.Sprintf("%s <%s>", msg.ToName, msg.To)
	}
	body, err := json.Marshal(sendRequest{
		From:    c.cfg.From,
		To:      []string{to},
		Subject: msg.Subject,
		HTML:    msg.HTML,
		Text:    msg.Text,
	})
	if err != nil {
		return fmt.Errorf("encode email: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(c.cfg.Endpoint, "/")+"/emails", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build email request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &ProviderError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
