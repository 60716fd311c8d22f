// Package webhook implements the generic HTTPS webhook sink: it POSTs
// { <payload_field>: <composed text> } to a validated URL and classifies
// success purely on HTTP status, since the generic shape has no
// provider-specific API code to inspect.
package webhook

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/webitel/notifyhub/internal/domain/event"
	"github.com/webitel/notifyhub/internal/security"
	"github.com/webitel/notifyhub/internal/textshape"
	"github.com/webitel/notifyhub/internal/transport/httpsink"
)

const defaultPayloadField = "text"

// Config configures a Sink. Use NewConfig to get sane defaults.
type Config struct {
	URL           string
	AllowedHosts  []string
	PathPrefix    string
	PayloadField  string
	MaxChars      int
	Timeout       time.Duration
	PublicIPCheck bool
	Strict        bool
}

// NewConfig returns a Config with the library's defaults: public IP
// checking on, the default 16KiB text budget, and payload field "text".
func NewConfig(url string) Config {
	return Config{
		URL:           url,
		PayloadField:  defaultPayloadField,
		MaxChars:      16 * 1024,
		Timeout:       10 * time.Second,
		PublicIPCheck: true,
	}
}

func (c Config) WithAllowedHosts(hosts ...string) Config { c.AllowedHosts = hosts; return c }
func (c Config) WithPathPrefix(prefix string) Config     { c.PathPrefix = prefix; return c }
func (c Config) WithPayloadField(field string) Config    { c.PayloadField = field; return c }
func (c Config) WithMaxChars(n int) Config               { c.MaxChars = n; return c }
func (c Config) WithTimeout(d time.Duration) Config      { c.Timeout = d; return c }
func (c Config) WithPublicIPCheck(enabled bool) Config   { c.PublicIPCheck = enabled; return c }
func (c Config) WithStrict() Config                      { c.Strict = true; return c }

// Sink is the generic HTTPS webhook delivery adapter.
type Sink struct {
	policy           *security.Policy
	pipeline         *httpsink.Pipeline
	payloadField     string
	maxChars         int
	timeout          time.Duration
	disablePreflight bool
}

// New validates cfg and builds a Sink sharing pipeline with every other
// network sink in the process. When cfg.Strict is set, New performs the
// same DNS preflight Send would perform, synchronously, so a
// misconfigured or unreachable strict endpoint fails construction rather
// than the first dispatch.
func New(ctx context.Context, pipeline *httpsink.Pipeline, cfg Config) (*Sink, error) {
	payloadField := strings.TrimSpace(cfg.PayloadField)
	if payloadField == "" {
		return nil, fmt.Errorf("webhook payload field must not be empty")
	}

	policy, err := security.NewPolicy(security.Options{
		RawURL:        cfg.URL,
		AllowedHosts:  cfg.AllowedHosts,
		PathPrefix:    cfg.PathPrefix,
		PublicIPCheck: cfg.PublicIPCheck,
		Strict:        cfg.Strict,
	})
	if err != nil {
		return nil, err
	}

	if !cfg.PublicIPCheck && len(cfg.AllowedHosts) == 0 {
		return nil, fmt.Errorf("disabling public IP checking requires a non-empty allowed host set")
	}

	maxChars := cfg.MaxChars
	if maxChars <= 0 {
		maxChars = 16 * 1024
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	if cfg.Strict {
		if err := pipeline.Preflight(ctx, policy.Host, timeout); err != nil {
			return nil, fmt.Errorf("strict construction-time preflight for %s: %w", policy.Host, err)
		}
	}

	return &Sink{
		policy:           policy,
		pipeline:         pipeline,
		payloadField:     payloadField,
		maxChars:         maxChars,
		timeout:          timeout,
		disablePreflight: !cfg.PublicIPCheck,
	}, nil
}

func (s *Sink) Name() string { return "webhook" }

func (s *Sink) buildPayload(ev event.Event) map[string]string {
	text := textshape.Format(ev, textshape.WithMaxChars(s.maxChars))
	return map[string]string{s.payloadField: text}
}

func (s *Sink) Send(ctx context.Context, ev event.Event) error {
	resp, err := s.pipeline.Do(ctx, httpsink.Request{
		Policy:           s.policy,
		Timeout:          s.timeout,
		Body:             s.buildPayload(ev),
		DisablePreflight: s.disablePreflight,
	})
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if len(resp.Body) == 0 {
			return fmt.Errorf("webhook http error: %d (response body omitted)", resp.StatusCode)
		}
		return fmt.Errorf("webhook http error: %d: %s", resp.StatusCode, httpsink.SummarizeBody(resp.Body))
	}

	return nil
}
