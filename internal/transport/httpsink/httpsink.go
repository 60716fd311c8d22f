// Package httpsink implements the shared send pipeline every network sink
// composes on top of: DNS preflight, pinned-client acquisition, a bounded
// POST, and response classification.
package httpsink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/sony/gobreaker"

	"github.com/webitel/notifyhub/internal/security"
)

const (
	// DefaultMaxResponseBodyBytes caps how much of a sink's response body
	// is ever read into memory.
	DefaultMaxResponseBodyBytes = 16 * 1024
	maxErrorSummaryChars        = 200
)

// Pipeline is the shared machinery a concrete provider sink drives: it
// owns the DNS preflight cache, pinned-client cache, per-host circuit
// breakers and per-host rate limiters, all of which are safe to share
// across every sink instance in a process.
type Pipeline struct {
	preflight *security.Preflighter
	clients   *security.PinnedClientCache

	mu         sync.Mutex
	breakers   map[string]*gobreaker.CircuitBreaker
	limiters   map[string]*rate.Limiter
	newLimiter func() *rate.Limiter
}

// NewPipeline builds a Pipeline with the given DNS concurrency bound and
// pinned-client cache capacity/TTL. A single Pipeline is normally shared
// across every network sink in a process.
func NewPipeline(maxConcurrentDNSLookups int64, clientCacheCapacity int, clientCacheTTL time.Duration) *Pipeline {
	return &Pipeline{
		preflight:  security.NewPreflighter(maxConcurrentDNSLookups),
		clients:    security.NewPinnedClientCache(clientCacheCapacity, clientCacheTTL),
		breakers:   make(map[string]*gobreaker.CircuitBreaker),
		limiters:   make(map[string]*rate.Limiter),
		newLimiter: func() *rate.Limiter { return rate.NewLimiter(rate.Inf, 1) },
	}
}

func (p *Pipeline) breakerFor(host string) *gobreaker.CircuitBreaker {
	p.mu.Lock()
	defer p.mu.Unlock()
	if b, ok := p.breakers[host]; ok {
		return b
	}
	b := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    host,
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	p.breakers[host] = b
	return b
}

// Preflight runs the same DNS preflight Do performs at send time,
// synchronously, so a strict sink can fail construction instead of its
// first dispatch. The underlying OS resolution error, if any, is
// preserved unwrapped through Resolve.
func (p *Pipeline) Preflight(ctx context.Context, host string, timeout time.Duration) error {
	_, err := p.preflight.Resolve(ctx, host, timeout)
	return err
}

func (p *Pipeline) limiterFor(host string) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()
	if l, ok := p.limiters[host]; ok {
		return l
	}
	l := p.newLimiter()
	p.limiters[host] = l
	return l
}

// Request describes one provider POST after the caller has already shaped
// its own payload.
type Request struct {
	Policy        *security.Policy
	Timeout       time.Duration
	Body          any
	DisablePreflight bool
}

// Response is the classified, size-capped result of a provider POST.
type Response struct {
	StatusCode int
	Body       []byte
	IsJSON     bool
}

// Do runs the full pipeline: preflight (unless disabled) -> pinned client
// -> POST -> capped body read. Any HTTP status, non-2xx included, comes
// back as a Response with a nil error — providers apply their own
// 2xx-vs-API-code classification on top of the returned Response.
func (p *Pipeline) Do(ctx context.Context, req Request) (*Response, error) {
	host := req.Policy.Host

	breaker := p.breakerFor(host)
	result, err := breaker.Execute(func() (any, error) {
		return p.doOnce(ctx, req)
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return nil, fmt.Errorf("circuit open for %s: %w", host, err)
		}
		return nil, err
	}
	return result.(*Response), nil
}

func (p *Pipeline) doOnce(ctx context.Context, req Request) (*Response, error) {
	host := req.Policy.Host

	client := http.DefaultClient
	if !req.DisablePreflight {
		addrs, err := p.preflight.Resolve(ctx, host, req.Timeout)
		if err != nil {
			return nil, fmt.Errorf("dns preflight for %s: %w", host, err)
		}
		client, err = p.clients.Get(ctx, host, req.Timeout, addrs)
		if err != nil {
			return nil, fmt.Errorf("acquire pinned client for %s: %w", host, err)
		}
	}

	if err := p.limiterFor(host).Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait for %s: %w", host, err)
	}

	payload, err := json.Marshal(req.Body)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, req.Policy.URL.String(), bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, sanitizeTransportError(err)
	}
	defer resp.Body.Close()

	body, truncated, err := readLimited(resp.Body, DefaultMaxResponseBodyBytes)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	isJSON := looksLikeJSON(resp.Header.Get("Content-Type"), body)
	if isJSON && !truncated {
		var probe json.RawMessage
		if err := json.Unmarshal(body, &probe); err != nil {
			return nil, fmt.Errorf("decode json response: %w", err)
		}
	}

	return &Response{StatusCode: resp.StatusCode, Body: body, IsJSON: isJSON}, nil
}

func readLimited(r io.Reader, max int) (body []byte, truncated bool, err error) {
	limited := io.LimitReader(r, int64(max)+1)
	body, err = io.ReadAll(limited)
	if err != nil {
		return nil, false, err
	}
	if len(body) > max {
		body = body[:max]
		truncated = true
	}
	return body, truncated, nil
}

func looksLikeJSON(contentType string, body []byte) bool {
	if strings.Contains(strings.ToLower(contentType), "json") {
		return true
	}
	trimmed := bytes.TrimSpace(body)
	return len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[')
}

// SummarizeBody collapses whitespace and truncates body to at most 200
// characters for inclusion in an error message.
func SummarizeBody(body []byte) string {
	fields := strings.Fields(string(body))
	joined := strings.Join(fields, " ")
	runes := []rune(joined)
	if len(runes) > maxErrorSummaryChars {
		return string(runes[:maxErrorSummaryChars-3]) + "..."
	}
	return joined
}

func sanitizeTransportError(err error) error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "context deadline exceeded"), strings.Contains(msg, "Client.Timeout"):
		return fmt.Errorf("network(timeout)")
	case strings.Contains(msg, "connection refused"), strings.Contains(msg, "no such host"), strings.Contains(msg, "connect:"):
		return fmt.Errorf("network(connect)")
	default:
		return fmt.Errorf("network(request)")
	}
}
