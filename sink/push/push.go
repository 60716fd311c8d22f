// Package push implements a websocket push/realtime sink: local
// dashboards and desktop agents attach over a chi-routed endpoint and
// receive events through a per-connection mailbox, so one slow viewer can
// never stall delivery to the others or block the sink's Send.
package push

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/webitel/notifyhub/internal/domain/event"
)

const defaultMailboxSize = 32

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// wireEvent is the JSON shape pushed to viewers; it never carries anything
// beyond what Event itself exposes.
type wireEvent struct {
	Kind     string            `json:"kind"`
	Severity string            `json:"severity"`
	Title    string            `json:"title"`
	Body     string            `json:"body,omitempty"`
	Tags     map[string]string `json:"tags,omitempty"`
}

func toWire(ev event.Event) wireEvent {
	w := wireEvent{Kind: ev.Kind(), Severity: ev.Severity().String(), Title: ev.Title()}
	if body, ok := ev.Body(); ok {
		w.Body = body
	}
	if tags := ev.Tags(); len(tags) > 0 {
		w.Tags = make(map[string]string, len(tags))
		for _, t := range tags {
			w.Tags[t.Key] = t.Value
		}
	}
	return w
}

// viewer is one attached websocket connection's isolated mailbox: a
// buffered channel decouples a slow consumer from Send.
type viewer struct {
	id      uuid.UUID
	conn    *websocket.Conn
	mailbox chan []byte
	done    chan struct{}
}

func (v *viewer) writeLoop(logger *slog.Logger) {
	defer v.conn.Close()
	for {
		select {
		case <-v.done:
			return
		case msg := <-v.mailbox:
			_ = v.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := v.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				logger.Warn("notifyhub: push viewer write failed", slog.String("viewer", v.id.String()), slog.Any("error", err))
				return
			}
		}
	}
}

// Config configures a Sink.
type Config struct {
	// MailboxSize is the per-viewer buffered channel capacity. Zero
	// selects defaultMailboxSize.
	MailboxSize int
}

// Option is a functional configuration knob for New, for callers that
// prefer composing options over filling in a Config literal.
type Option func(*Sink)

// WithMailboxSize sets the per-viewer buffered channel capacity.
func WithMailboxSize(size int) Option {
	return func(s *Sink) {
		if size > 0 {
			s.mailboxSize = size
		}
	}
}

// Sink is the websocket push/realtime delivery adapter. Viewers are kept
// in a sync.Map, suited to a read-heavy workload: Send fans out to every viewer far more often than
// one attaches or detaches.
type Sink struct {
	viewers     sync.Map // uuid.UUID -> *viewer
	mailboxSize int
	logger      *slog.Logger
}

// New builds a Sink from cfg and any additional Options.
func New(cfg Config, opts ...Option) *Sink {
	mailboxSize := cfg.MailboxSize
	if mailboxSize <= 0 {
		mailboxSize = defaultMailboxSize
	}
	s := &Sink{mailboxSize: mailboxSize, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Sink) Name() string { return "push" }

// Router mounts the websocket upgrade endpoint on a chi router; callers
// compose it into their own HTTP server alongside whatever else they
// expose locally.
func (s *Sink) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/ws/notify", s.handleUpgrade)
	return r
}

func (s *Sink) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("notifyhub: push websocket upgrade failed", slog.Any("error", err))
		return
	}

	v := &viewer{id: uuid.New(), conn: conn, mailbox: make(chan []byte, s.mailboxSize), done: make(chan struct{})}
	s.attach(v)
	go v.writeLoop(s.logger)

	go func() {
		defer s.detach(v.id)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (s *Sink) attach(v *viewer) {
	s.viewers.Store(v.id, v)
}

func (s *Sink) detach(id uuid.UUID) {
	if val, ok := s.viewers.LoadAndDelete(id); ok {
		close(val.(*viewer).done)
	}
}

// Send fans the event out to every attached viewer without blocking: a
// viewer whose mailbox is full simply misses this event.
func (s *Sink) Send(ctx context.Context, ev event.Event) error {
	payload, err := json.Marshal(toWire(ev))
	if err != nil {
		return err
	}

	s.viewers.Range(func(_, val any) bool {
		v := val.(*viewer)
		select {
		case v.mailbox <- payload:
		default:
			s.logger.Warn("notifyhub: push viewer mailbox full, dropping event", slog.String("viewer", v.id.String()))
		}
		return true
	})
	return nil
}
