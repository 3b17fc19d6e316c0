// Package polish wraps the external AI text-polishing service. The engine
// treats it as text-in/text-out: it may fail or time out, and callers fall
// back to the raw text when it does.
package polish

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	logx "inkwell/pkg/logx"
)

// StyleOptions steer the polish pass.
type StyleOptions struct {
	Tone       string `json:"tone,omitempty"` // e.g. "neutral", "warm"
	FixGrammar bool   `json:"fix_grammar"`
}

// Polisher is the engine's view of the service.
type Polisher interface {
	Polish(ctx context.Context, raw string, opts StyleOptions) (string, error)
}

// Noop returns the input unchanged; used when polishing is disabled.
type Noop struct{}

func (Noop) Polish(_ context.Context, raw string, _ StyleOptions) (string, error) {
	return raw, nil
}

type Config struct {
	BaseURL string
	Token   string
	Timeout time.Duration // default 20s
}

type Client struct {
	base  string
	token string
	http  *http.Client
	log   logx.Logger
}

func NewClient(cfg Config, log logx.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Client{
		base:  strings.TrimRight(cfg.BaseURL, "/"),
		token: cfg.Token,
		http:  &http.Client{Timeout: timeout},
		log:   log,
	}
}

type polishRequest struct {
	Text  string       `json:"text"`
	Style StyleOptions `json:"style"`
}

type polishResponse struct {
	Text string `json:"text"`
}

func (c *Client) Polish(ctx context.Context, raw string, opts StyleOptions) (string, error) {
	b, err := json.Marshal(polishRequest{Text: raw, Style: opts})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/v1/polish", bytes.NewReader(b))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("polish: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("polish: http %d", resp.StatusCode)
	}

	var out polishResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	if strings.TrimSpace(out.Text) == "" {
		return "", fmt.Errorf("polish: empty result")
	}
	return out.Text, nil
}
