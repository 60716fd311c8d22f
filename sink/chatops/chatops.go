// Package chatops implements a ServerChan-style provider sink: unlike
// pushtoken, it never echoes the upstream API's message text in an error,
// only its numeric code, because this class of low-sensitivity provider
// has historically leaked account identifiers through its error strings.
package chatops

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/webitel/notifyhub/internal/domain/event"
	"github.com/webitel/notifyhub/internal/security"
	"github.com/webitel/notifyhub/internal/textshape"
	"github.com/webitel/notifyhub/internal/transport/httpsink"
)

// Config configures a Sink.
type Config struct {
	URL           string
	AllowedHosts  []string
	PathPrefix    string
	MaxChars      int
	Timeout       time.Duration
	PublicIPCheck bool
	Strict        bool
}

func NewConfig(url string) Config {
	return Config{URL: url, MaxChars: 16 * 1024, Timeout: 10 * time.Second, PublicIPCheck: true}
}

func (c Config) WithAllowedHosts(hosts ...string) Config { c.AllowedHosts = hosts; return c }
func (c Config) WithPathPrefix(prefix string) Config     { c.PathPrefix = prefix; return c }
func (c Config) WithMaxChars(n int) Config               { c.MaxChars = n; return c }
func (c Config) WithTimeout(d time.Duration) Config      { c.Timeout = d; return c }
func (c Config) WithPublicIPCheck(enabled bool) Config   { c.PublicIPCheck = enabled; return c }
func (c Config) WithStrict() Config                      { c.Strict = true; return c }

// Sink is the terse-error provider delivery adapter.
type Sink struct {
	policy           *security.Policy
	pipeline         *httpsink.Pipeline
	maxChars         int
	timeout          time.Duration
	disablePreflight bool
}

// New validates cfg and builds a Sink. When cfg.Strict is set, New
// performs the same DNS preflight Send would perform, synchronously,
// preserving the underlying OS resolution error on failure.
func New(ctx context.Context, pipeline *httpsink.Pipeline, cfg Config) (*Sink, error) {
	if !cfg.PublicIPCheck && len(cfg.AllowedHosts) == 0 {
		return nil, fmt.Errorf("disabling public IP checking requires a non-empty allowed host set")
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
		maxChars:         maxChars,
		timeout:          timeout,
		disablePreflight: !cfg.PublicIPCheck,
	}, nil
}

func (s *Sink) Name() string { return "chatops" }

func (s *Sink) buildPayload(ev event.Event) map[string]string {
	return map[string]string{
		"title": textshape.TruncateChars(ev.Title(), 256),
		"desp":  textshape.FormatBodyAndTags(ev, textshape.WithMaxChars(s.maxChars)),
	}
}

type apiResponse struct {
	Code  int `json:"code"`
	Errno int `json:"errno"`
}

func (r apiResponse) ok() bool {
	return (r.Code == 0 || r.Code == 200) && r.Errno == 0
}

func (s *Sink) Send(ctx context.Context, ev event.Event) error {
	resp, err := s.pipeline.Do(ctx, httpsink.Request{
		Policy:           s.policy,
		Timeout:          s.timeout,
		Body:             s.buildPayload(ev),
		DisablePreflight: s.disablePreflight,
	})
	if err != nil {
		return fmt.Errorf("chatops request failed: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("chatops http error: %d (response body omitted)", resp.StatusCode)
	}

	var body apiResponse
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		return fmt.Errorf("decode chatops response: %w", err)
	}
	if body.ok() {
		return nil
	}

	return fmt.Errorf("chatops api error: code=%d (response body omitted)", body.Code)
}
