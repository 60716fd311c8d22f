// Package notifyhub is a concurrent notification fan-out hub: build an
// Event, hand it to a Hub, and every configured Sink receives it under a
// per-sink timeout with panic isolation and sliding-window bounded
// concurrency. The internal packages that do the actual work (event
// modeling, text shaping, SSRF-hardened HTTP transport, the dispatcher
// itself) are intentionally unexported; this file is the hub's public
// surface, and the built-in sinks live in the packages under sink/.
package notifyhub

import (
	"context"

	"github.com/webitel/notifyhub/internal/domain/event"
	"github.com/webitel/notifyhub/internal/hub"
)

// Severity orders an Event by urgency. The zero value is Info.
type Severity = event.Severity

const (
	Info    = event.Info
	Success = event.Success
	Warning = event.Warning
	// Critical is the highest Severity level. It is spelled Critical rather
	// than mirroring event.Error's name because this package already
	// exports an Error type (see below): a package cannot declare both a
	// const and a type named Error.
	Critical = event.Error
)

// Tag is an ordered key/value pair attached to an Event.
type Tag = event.Tag

// Event is the immutable unit of dispatch. Build one with NewEvent and
// its With* methods, then hand it to a Hub.
type Event = event.Event

// NewEvent builds an Event from its required fields. kind is the
// routing/filter key matched against HubConfig.EnabledKinds.
func NewEvent(kind string, severity Severity, title string) Event {
	return event.New(kind, severity, title)
}

// Sink is the delivery interface every notification backend implements.
// A Sink's Send must honor ctx cancellation, releasing any resource it
// acquired without leaking file descriptors or child processes.
type Sink = hub.Sink

// HubConfig governs a Hub's admission and fan-out behavior.
type HubConfig = hub.Config

// DefaultHubConfig returns the hub's default admission and fan-out
// settings: a 10s per-sink timeout, 64 concurrent background dispatches,
// and a sliding window of 8 sinks running at once.
func DefaultHubConfig() HubConfig {
	return hub.DefaultConfig()
}

// TryNotifyError reports why TryNotify declined to admit an event.
type TryNotifyError = hub.TryNotifyError

// Error is the opaque failure type returned by Hub.Send. It never exposes
// a third-party error type on this package's surface; use errors.Unwrap
// or errors.As to reach the underlying cause.
type Error = hub.Error

// Hub is the concurrent fan-out dispatcher. It holds an ordered,
// immutable list of sinks for its lifetime; construct a new Hub to
// change the sink set.
type Hub struct {
	inner *hub.Hub
}

// NewHub builds a Hub over sinks with the given configuration.
func NewHub(cfg HubConfig, sinks []Sink) *Hub {
	return &Hub{inner: hub.New(cfg, sinks)}
}

// NewHubWithInflightLimit builds a Hub whose Notify admission uses limit
// in place of cfg.MaxInflight. It exists for callers that want a
// per-instance override without mutating a shared Config value.
func NewHubWithInflightLimit(cfg HubConfig, sinks []Sink, limit int64) *Hub {
	return &Hub{inner: hub.NewWithInflightLimit(cfg, sinks, limit)}
}

// Notify dispatches ev to every enabled sink in the background and never
// blocks the caller. If the hub is already at its in-flight limit the
// event is silently dropped; use TryNotify to observe that outcome.
func (h *Hub) Notify(ev Event) {
	h.inner.Notify(ev)
}

// TryNotify dispatches ev in the background like Notify, but reports
// admission failure instead of silently dropping the event.
func (h *Hub) TryNotify(ev Event) error {
	return h.inner.TryNotify(ev)
}

// Send dispatches ev to every enabled sink and waits for the whole fan-out
// to finish, returning an aggregated error naming every sink that failed
// in configuration order. A nil error means every enabled sink succeeded.
func (h *Hub) Send(ctx context.Context, ev Event) error {
	return h.inner.Send(ctx, ev)
}
