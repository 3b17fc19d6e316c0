package vendorapi

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	logx "inkwell/pkg/logx"
)

// Config for the HTTP adapter.
//
// RatePerSec caps outgoing vendor calls across submit and status; the vendor
// throttles aggressively and a burst of print subscriptions coming due at
// midnight would otherwise trip it.
type Config struct {
	BaseURL    string
	Token      string
	Timeout    time.Duration // per-request; default 30s
	RatePerSec int           // default 5
}

// Client talks JSON over REST to the vendor.
type Client struct {
	base    string
	token   string
	http    *http.Client
	limiter *rate.Limiter
	log     logx.Logger
}

func NewClient(cfg Config, log logx.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = 5
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Client{
		base:    strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		http:    &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Limit(rps), rps),
		log:     log,
	}
}

type submitPayload struct {
	IdempotencyKey string         `json:"idempotency_key"`
	DocumentB64    string         `json:"document_b64"`
	PageCount      int            `json:"page_count"`
	Color          string         `json:"color"`
	Shipping       addressPayload `json:"shipping"`
}

type addressPayload struct {
	Name       string `json:"name"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	Region     string `json:"region,omitempty"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

type submitResponse struct {
	JobID       string `json:"job_id"`
	CostCents   int64  `json:"cost_cents"`
	RetailCents int64  `json:"retail_cents"`
}

type statusResponse struct {
	State       string `json:"state"`
	TrackingURL string `json:"tracking_url"`
	CostCents   int64  `json:"cost_cents"`
	Message     string `json:"message"`
}

func (c *Client) Submit(ctx context.Context, req SubmitRequest) (SubmitResult, error) {
	payload := submitPayload{
		IdempotencyKey: req.IdempotencyKey,
		DocumentB64:    base64.StdEncoding.EncodeToString(req.Artifact),
		PageCount:      req.PageCount,
		Color:          req.Color,
		Shipping: addressPayload{
			Name: req.Shipping.Name, Line1: req.Shipping.Line1, Line2: req.Shipping.Line2,
			City: req.Shipping.City, Region: req.Shipping.Region,
			PostalCode: req.Shipping.PostalCode, Country: req.Shipping.Country,
		},
	}

	var resp submitResponse
	if err := c.do(ctx, http.MethodPost, "/v1/jobs", payload, &resp); err != nil {
		return SubmitResult{}, err
	}
	if resp.JobID == "" {
		return SubmitResult{}, fmt.Errorf("vendor: submit returned empty job id")
	}
	return SubmitResult{JobID: resp.JobID, CostCents: resp.CostCents, RetailCents: resp.RetailCents}, nil
}

func (c *Client) Status(ctx context.Context, jobID string) (JobStatus, error) {
	var resp statusResponse
	if err := c.do(ctx, http.MethodGet, "/v1/jobs/"+jobID, nil, &resp); err != nil {
		return JobStatus{}, err
	}
	return JobStatus{
		State:       JobState(resp.State),
		TrackingURL: resp.TrackingURL,
		CostCents:   resp.CostCents,
		Message:     resp.Message,
	}, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("vendor: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if err := mapStatus(resp.StatusCode); err != nil {
		// Drain a little of the body for the log, never for control flow.
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.log.Warn("vendor call failed",
			logx.String("path", path),
			logx.Int("status", resp.StatusCode),
			logx.String("body", string(snippet)))
		return err
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// mapStatus sorts vendor HTTP results into the engine's error taxonomy:
// 402 → payment declined (terminal), other 4xx → rejected (terminal),
// 5xx → plain error (transient, retried next cycle).
func mapStatus(code int) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusPaymentRequired:
		return ErrPaymentDeclined
	case code >= 400 && code < 500:
		return fmt.Errorf("%w (http %d)", ErrRejected, code)
	default:
		return fmt.Errorf("vendor: http %d", code)
	}
}
