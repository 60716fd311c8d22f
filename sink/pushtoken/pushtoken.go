// Package pushtoken implements a bearer-token provider sink in the
// PushPlus/Telegram style: a single-flight-guarded token cache, and
// delivery errors that preserve the upstream API's own message for
// actionable debugging.
package pushtoken

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/webitel/notifyhub/internal/domain/event"
	"github.com/webitel/notifyhub/internal/security"
	"github.com/webitel/notifyhub/internal/textshape"
	"github.com/webitel/notifyhub/internal/transport/httpsink"
)

// TokenSource resolves a bearer token, optionally reporting when it
// expires. A zero ExpiresAt means the token never needs refreshing.
type TokenSource interface {
	Token(ctx context.Context) (token string, expiresAt time.Time, err error)
}

// StaticToken is a TokenSource that never expires.
type StaticToken string

func (s StaticToken) Token(context.Context) (string, time.Time, error) { return string(s), time.Time{}, nil }

// Config configures a Sink.
type Config struct {
	URL           string
	AllowedHosts  []string
	PathPrefix    string
	Channel       string
	Template      string
	Topic         string
	MaxChars      int
	Timeout       time.Duration
	PublicIPCheck bool
	Strict        bool
}

func NewConfig(url string) Config {
	return Config{URL: url, Template: "txt", MaxChars: 16 * 1024, Timeout: 10 * time.Second, PublicIPCheck: true}
}

func (c Config) WithAllowedHosts(hosts ...string) Config { c.AllowedHosts = hosts; return c }
func (c Config) WithPathPrefix(prefix string) Config     { c.PathPrefix = prefix; return c }
func (c Config) WithChannel(channel string) Config       { c.Channel = channel; return c }
func (c Config) WithTemplate(template string) Config     { c.Template = template; return c }
func (c Config) WithTopic(topic string) Config           { c.Topic = topic; return c }
func (c Config) WithMaxChars(n int) Config               { c.MaxChars = n; return c }
func (c Config) WithTimeout(d time.Duration) Config      { c.Timeout = d; return c }
func (c Config) WithPublicIPCheck(enabled bool) Config   { c.PublicIPCheck = enabled; return c }
func (c Config) WithStrict() Config                      { c.Strict = true; return c }

// Sink is the bearer-token provider delivery adapter.
type Sink struct {
	policy   *security.Policy
	pipeline *httpsink.Pipeline
	source   TokenSource

	channel  string
	template string
	topic    string
	maxChars int
	timeout  time.Duration

	disablePreflight bool

	mu          sync.Mutex
	cachedToken string
	expiresAt   time.Time
	group       singleflight.Group
}

// New validates cfg and builds a Sink around the given TokenSource. When
// cfg.Strict is set, New performs the same DNS preflight Send would
// perform, synchronously, preserving the underlying OS resolution error
// on failure.
func New(ctx context.Context, pipeline *httpsink.Pipeline, cfg Config, source TokenSource) (*Sink, error) {
	if source == nil {
		return nil, fmt.Errorf("pushtoken requires a token source")
	}

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
		source:           source,
		channel:          strings.TrimSpace(cfg.Channel),
		template:         strings.TrimSpace(cfg.Template),
		topic:            strings.TrimSpace(cfg.Topic),
		maxChars:         maxChars,
		timeout:          timeout,
		disablePreflight: !cfg.PublicIPCheck,
	}, nil
}

func (s *Sink) Name() string { return "pushtoken" }

// token returns a cached, unexpired token, refreshing at most once across
// any number of concurrent callers racing an expiry.
func (s *Sink) token(ctx context.Context) (string, error) {
	s.mu.Lock()
	if s.cachedToken != "" && (s.expiresAt.IsZero() || time.Now().Before(s.expiresAt)) {
		tok := s.cachedToken
		s.mu.Unlock()
		return tok, nil
	}
	s.mu.Unlock()

	v, err, _ := s.group.Do("refresh", func() (any, error) {
		tok, expiresAt, err := s.source.Token(ctx)
		if err != nil {
			return "", err
		}
		if strings.TrimSpace(tok) == "" {
			return "", fmt.Errorf("token source returned an empty token")
		}
		s.mu.Lock()
		s.cachedToken = tok
		s.expiresAt = expiresAt
		s.mu.Unlock()
		return tok, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (s *Sink) buildPayload(ev event.Event, token string) map[string]any {
	payload := map[string]any{
		"token":   token,
		"title":   textshape.TruncateChars(ev.Title(), 256),
		"content": textshape.FormatBodyAndTags(ev, textshape.WithMaxChars(s.maxChars)),
	}
	if s.channel != "" {
		payload["channel"] = s.channel
	}
	if s.template != "" {
		payload["template"] = s.template
	}
	if s.topic != "" {
		payload["topic"] = s.topic
	}
	return payload
}

type apiResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

func (s *Sink) Send(ctx context.Context, ev event.Event) error {
	token, err := s.token(ctx)
	if err != nil {
		return fmt.Errorf("resolve token: %w", err)
	}

	resp, err := s.pipeline.Do(ctx, httpsink.Request{
		Policy:           s.policy,
		Timeout:          s.timeout,
		Body:             s.buildPayload(ev, token),
		DisablePreflight: s.disablePreflight,
	})
	if err != nil {
		return fmt.Errorf("pushtoken request failed: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("pushtoken http error: %d (response body omitted)", resp.StatusCode)
	}

	var body apiResponse
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		return fmt.Errorf("decode pushtoken response: %w", err)
	}
	if body.Code == 200 {
		return nil
	}

	msg := textshape.TruncateChars(body.Msg, 200)
	return fmt.Errorf("pushtoken api error: code=%d, msg=%s", body.Code, msg)
}
