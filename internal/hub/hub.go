// Package hub implements the concurrent fan-out dispatcher: event
// admission, per-sink timeout and panic isolation, sliding-window bounded
// concurrency, and stable error aggregation.
package hub

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/webitel/notifyhub/internal/domain/event"
)

// Sink is the polymorphic delivery interface the Hub holds as an opaque
// handle. Send must honor ctx cancellation: on cancellation the
// implementation is expected to abort its in-flight request and release
// every resource it acquired, leaking neither file descriptors nor child
// processes.
type Sink interface {
	Name() string
	Send(ctx context.Context, ev event.Event) error
}

// TryNotifyErrorKind enumerates the admission failures TryNotify reports.
type TryNotifyErrorKind int

const (
	// NoRuntime never actually occurs in this Go port — a goroutine can
	// always be started — but the kind is kept so callers migrating from
	// the original admission-error taxonomy have a stable enum to match
	// against defensively.
	NoRuntime TryNotifyErrorKind = iota
	Overloaded
)

func (k TryNotifyErrorKind) String() string {
	if k == Overloaded {
		return "overloaded"
	}
	return "no_runtime"
}

// TryNotifyError reports why TryNotify declined to admit an event.
type TryNotifyError struct {
	Kind TryNotifyErrorKind
}

func (e *TryNotifyError) Error() string {
	return "notifyhub: admission failed: " + e.Kind.String()
}

// Error is a thin opaque wrapper around a Send failure. It exists so the
// public API surface never re-exports a third-party error type directly:
// callers that need the underlying cause use errors.Unwrap or errors.As
// against the wrapped error rather than a concrete internal type.
type Error struct {
	err error
}

func (e *Error) Error() string { return e.err.Error() }

func (e *Error) Unwrap() error { return e.err }

// Config governs a Hub's admission and fan-out behavior.
type Config struct {
	// EnabledKinds, when non-nil, restricts dispatch to events whose Kind
	// is a member. A nil set accepts every kind.
	EnabledKinds map[string]struct{}
	// PerSinkTimeout bounds every individual sink invocation.
	PerSinkTimeout time.Duration
	// MaxInflight bounds concurrent background (Notify) dispatches.
	MaxInflight int64
	// MaxConcurrentSinks bounds how many sinks run at once within a single
	// dispatch, using a sliding window rather than fixed-size chunks.
	MaxConcurrentSinks int64
}

// DefaultConfig matches the generous defaults the original hub shipped
// with: a per-sink timeout wide enough to absorb DNS preflight.
func DefaultConfig() Config {
	return Config{
		PerSinkTimeout:     10 * time.Second,
		MaxInflight:        64,
		MaxConcurrentSinks: 8,
	}
}

type namedSink struct {
	sink Sink
	name string
}

// Hub broadcasts an Event to every configured Sink with per-sink isolation
// of latency, failure, and panics.
type Hub struct {
	sinks    []namedSink
	cfg      Config
	inflight atomic.Int64
	logger   *slog.Logger
}

// New builds a Hub over sinks using cfg's MaxInflight for background
// admission.
func New(cfg Config, sinks []Sink) *Hub {
	return newHub(cfg, sinks, cfg.MaxInflight)
}

// NewWithInflightLimit is New but overrides the in-flight admission cap
// independently of cfg.MaxInflight.
func NewWithInflightLimit(cfg Config, sinks []Sink, limit int64) *Hub {
	return newHub(cfg, sinks, limit)
}

func newHub(cfg Config, sinks []Sink, inflightLimit int64) *Hub {
	if cfg.PerSinkTimeout <= 0 {
		cfg.PerSinkTimeout = DefaultConfig().PerSinkTimeout
	}
	if cfg.MaxConcurrentSinks <= 0 {
		cfg.MaxConcurrentSinks = int64(len(sinks))
		if cfg.MaxConcurrentSinks == 0 {
			cfg.MaxConcurrentSinks = 1
		}
	}
	if inflightLimit <= 0 {
		inflightLimit = DefaultConfig().MaxInflight
	}
	cfg.MaxInflight = inflightLimit

	named := make([]namedSink, len(sinks))
	for i, s := range sinks {
		named[i] = namedSink{sink: s, name: safeName(s)}
	}

	return &Hub{sinks: named, cfg: cfg, logger: slog.Default()}
}

// safeName calls s.Name() once, capturing a panic as "<unknown>" so a
// misbehaving sink can never prevent Hub construction.
func safeName(s Sink) (name string) {
	defer func() {
		if r := recover(); r != nil {
			name = "<unknown>"
		}
	}()
	return s.Name()
}

func (h *Hub) kindEnabled(ev event.Event) bool {
	if h.cfg.EnabledKinds == nil {
		return true
	}
	_, ok := h.cfg.EnabledKinds[ev.Kind()]
	return ok
}

// Notify is fire-and-forget: it never blocks the caller. The event is
// silently dropped (with a warning log) when the kind is filtered out,
// or when the in-flight cap is exhausted.
func (h *Hub) Notify(ev event.Event) {
	_ = h.tryNotify(ev, false)
}

// TryNotify is Notify but reports admission failures instead of only
// logging them. Empty-sink and filtered-kind dispatches are reported as
// success.
func (h *Hub) TryNotify(ev event.Event) error {
	return h.tryNotify(ev, true)
}

func (h *Hub) tryNotify(ev event.Event, reportErrors bool) error {
	if !h.kindEnabled(ev) {
		h.logger.Warn("notifyhub: dropping event, kind not enabled", slog.String("kind", ev.Kind()))
		return nil
	}
	if len(h.sinks) == 0 {
		return nil
	}

	next := h.inflight.Add(1)
	if next > h.cfg.MaxInflight {
		h.inflight.Add(-1)
		h.logger.Warn("notifyhub: dropping event, in-flight limit reached",
			slog.String("kind", ev.Kind()), slog.Int64("max_inflight", h.cfg.MaxInflight))
		if reportErrors {
			return &TryNotifyError{Kind: Overloaded}
		}
		return nil
	}

	go func() {
		defer h.inflight.Add(-1)
		if err := h.dispatch(context.Background(), ev); err != nil {
			h.logger.Warn("notifyhub: background dispatch failed", slog.String("kind", ev.Kind()), slog.Any("error", err))
		}
	}()

	return nil
}

// Send awaits every sink and aggregates their results. The empty-sink case
// is a no-op success.
func (h *Hub) Send(ctx context.Context, ev event.Event) error {
	if !h.kindEnabled(ev) {
		return nil
	}
	return h.dispatch(ctx, ev)
}

type reasonKind int

const (
	reasonNone reasonKind = iota
	reasonTimeout
	reasonPanic
	reasonDelivery
)

type sinkOutcome struct {
	index  int
	name   string
	reason reasonKind
	err    error
	dur    time.Duration
}

func (o sinkOutcome) failed() bool { return o.reason != reasonNone }

func (o sinkOutcome) describe() string {
	switch o.reason {
	case reasonTimeout:
		return fmt.Sprintf("timed out after %s", o.dur)
	case reasonPanic:
		return "sink panicked"
	case reasonDelivery:
		return o.err.Error()
	default:
		return ""
	}
}

// dispatch fans out to every sink under a sliding-window concurrency
// bound: as soon as one sink finishes, the next queued sink starts, rather
// than waiting for a fixed-size batch to fully drain.
func (h *Hub) dispatch(ctx context.Context, ev event.Event) error {
	if len(h.sinks) == 0 {
		return nil
	}

	outcomes := make([]sinkOutcome, len(h.sinks))
	sem := semaphore.NewWeighted(h.cfg.MaxConcurrentSinks)

	var wg sync.WaitGroup
	for i, s := range h.sinks {
		i, s := i, s
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := sem.Acquire(ctx, 1); err != nil {
				outcomes[i] = sinkOutcome{index: i, name: s.name, reason: reasonDelivery, err: err}
				return
			}
			defer sem.Release(1)
			outcomes[i] = h.invokeSink(ctx, s, i, ev)
		}()
	}
	wg.Wait()

	return aggregate(outcomes)
}

func (h *Hub) invokeSink(ctx context.Context, s namedSink, idx int, ev event.Event) sinkOutcome {
	sctx, cancel := context.WithTimeout(ctx, h.cfg.PerSinkTimeout)
	defer cancel()

	type sendResult struct {
		err     error
		panicked bool
	}
	resultCh := make(chan sendResult, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				h.logger.Error("notifyhub: sink panicked", slog.String("sink", s.name), slog.Any("panic", r))
				resultCh <- sendResult{panicked: true}
			}
		}()
		resultCh <- sendResult{err: s.sink.Send(sctx, ev)}
	}()

	select {
	case <-sctx.Done():
		return sinkOutcome{index: idx, name: s.name, reason: reasonTimeout, dur: h.cfg.PerSinkTimeout}
	case res := <-resultCh:
		if res.panicked {
			return sinkOutcome{index: idx, name: s.name, reason: reasonPanic}
		}
		if res.err != nil {
			return sinkOutcome{index: idx, name: s.name, reason: reasonDelivery, err: res.err}
		}
		return sinkOutcome{index: idx, name: s.name}
	}
}

// aggregate builds the "one or more sinks failed" error, listing failures
// in sink configuration order rather than completion order. The failure
// list is allocated only when at least one sink failed.
func aggregate(outcomes []sinkOutcome) error {
	var failures []sinkOutcome
	for _, o := range outcomes {
		if o.failed() {
			failures = append(failures, o)
		}
	}
	if len(failures) == 0 {
		return nil
	}
	if len(failures) > 1 {
		sort.Slice(failures, func(i, j int) bool { return failures[i].index < failures[j].index })
	}

	var b strings.Builder
	b.WriteString("one or more sinks failed:")
	for _, f := range failures {
		b.WriteString("\n- ")
		b.WriteString(f.name)
		b.WriteString(": ")
		b.WriteString(f.describe())
	}
	return &Error{err: errors.New(b.String())}
}
