// Package event defines the immutable record that flows from a caller into
// the hub and out to every sink.
package event

// Severity orders an Event by urgency. The zero value is Info.
type Severity int32

const (
	Info Severity = iota
	Success
	Warning
	Error
)

//go:generate stringer -type=Severity

// Less gives Severity a total order: Info < Success < Warning < Error.
func (s Severity) Less(other Severity) bool {
	return s < other
}

// Tag is an ordered key/value pair attached to an Event. Insertion order is
// preserved; duplicate keys are allowed but discouraged.
type Tag struct {
	Key   string
	Value string
}

// Event is an immutable structured record describing what happened; it is
// the unit of dispatch handed to the Hub. Once constructed it is never
// mutated, so concurrent sinks observe a consistent snapshot.
type Event struct {
	kind     string
	severity Severity
	title    string
	body     string
	hasBody  bool
	tags     []Tag
}

// New builds an Event from its required fields. kind is the routing/filter
// key matched against HubConfig's enabled-kinds set.
func New(kind string, severity Severity, title string) Event {
	return Event{kind: kind, severity: severity, title: title}
}

// WithBody returns a copy of e with body set.
func (e Event) WithBody(body string) Event {
	e.body = body
	e.hasBody = true
	return e
}

// WithTag returns a copy of e with (key, value) appended to its ordered tag
// sequence. No identity is shared with e: concurrent callers building off
// the same base Event never observe each other's tags.
func (e Event) WithTag(key, value string) Event {
	tags := make([]Tag, len(e.tags), len(e.tags)+1)
	copy(tags, e.tags)
	e.tags = append(tags, Tag{Key: key, Value: value})
	return e
}

func (e Event) Kind() string       { return e.kind }
func (e Event) Severity() Severity { return e.severity }
func (e Event) Title() string      { return e.title }
func (e Event) Tags() []Tag        { return e.tags }

// Body returns the event's body and whether WithBody was ever called.
func (e Event) Body() (string, bool) { return e.body, e.hasBody }

// String deliberately omits body and tags: those may carry operator-
// sensitive detail that must never land in ad-hoc logging.
func (e Event) String() string {
	return "Event{kind=" + e.kind + ", title=" + e.title + "}"
}
