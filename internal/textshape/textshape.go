// Package textshape composes an event's title, body and tags into a single
// capped string, the same text every network sink sends as its message
// body.
package textshape

import (
	"strings"

	"github.com/webitel/notifyhub/internal/domain/event"
)

// Limits bounds every field of the composed text. Zero-value Limits always
// produces an empty string.
type Limits struct {
	MaxChars        int
	MaxTitleChars   int
	MaxBodyChars    int
	MaxTags         int
	MaxTagKeyChars  int
	MaxTagValueChars int
}

// DefaultLimits mirrors the budget every built-in sink starts from.
func DefaultLimits() Limits {
	return Limits{
		MaxChars:         16 * 1024,
		MaxTitleChars:    256,
		MaxBodyChars:     4 * 1024,
		MaxTags:          32,
		MaxTagKeyChars:   64,
		MaxTagValueChars: 256,
	}
}

// WithMaxChars returns a copy of DefaultLimits with MaxChars overridden,
// the only knob most sinks expose to callers.
func WithMaxChars(maxChars int) Limits {
	l := DefaultLimits()
	l.MaxChars = maxChars
	return l
}

// limitedChars accumulates runes up to a character budget, recording
// whether the accumulation was cut short so the ellipsis can be appended
// exactly once at the end.
type limitedChars struct {
	max       int
	out       []rune
	truncated bool
}

func newLimitedChars(max int) *limitedChars {
	return &limitedChars{max: max, out: make([]rune, 0, min(max, 256))}
}

func (l *limitedChars) isEmpty() bool { return len(l.out) == 0 }

func (l *limitedChars) pushRune(r rune) {
	if l.truncated || l.max == 0 {
		return
	}
	if len(l.out) >= l.max {
		l.truncated = true
		return
	}
	l.out = append(l.out, r)
}

func (l *limitedChars) pushString(s string) {
	if l.truncated || l.max == 0 {
		return
	}
	for _, r := range s {
		if len(l.out) >= l.max {
			l.truncated = true
			return
		}
		l.out = append(l.out, r)
	}
}

func (l *limitedChars) finish() string {
	if l.truncated && l.max > 3 {
		l.out = l.out[:l.max-3]
		l.out = append(l.out, '.', '.', '.')
	} else if l.truncated {
		// No room for an ellipsis: drop any separator the hard cut left
		// dangling at the end.
		for len(l.out) > 0 && l.out[len(l.out)-1] == '\n' {
			l.out = l.out[:len(l.out)-1]
		}
	}
	return string(l.out)
}

// Format composes the full title + body + tags text, capped at limits.
func Format(e event.Event, limits Limits) string {
	return format(e, limits, true)
}

// FormatBodyAndTags composes body + tags only, skipping the title. Several
// provider payloads carry the title in a separate JSON field and only need
// this for the "content"/"description" field.
func FormatBodyAndTags(e event.Event, limits Limits) string {
	return format(e, limits, false)
}

func format(e event.Event, limits Limits, includeTitle bool) string {
	out := newLimitedChars(limits.MaxChars)

	if includeTitle {
		out.pushString(TruncateChars(e.Title(), limits.MaxTitleChars))
	}

	if body, ok := e.Body(); ok {
		body = strings.TrimSpace(body)
		if body != "" {
			if !out.isEmpty() {
				out.pushRune('\n')
				out.pushRune('\n')
			}
			out.pushString(TruncateChars(body, limits.MaxBodyChars))
		}
	}

	for i, tag := range e.Tags() {
		if i >= limits.MaxTags {
			break
		}
		if !out.isEmpty() {
			out.pushRune('\n')
		}
		out.pushString(TruncateChars(tag.Key, limits.MaxTagKeyChars))
		out.pushRune('=')
		out.pushString(TruncateChars(tag.Value, limits.MaxTagValueChars))
	}

	return out.finish()
}

// TruncateChars truncates s to at most maxChars characters (runes, not
// bytes), appending "..." within the same budget when truncation occurred.
func TruncateChars(s string, maxChars int) string {
	if maxChars == 0 {
		return ""
	}

	runes := []rune(s)
	if len(runes) <= maxChars {
		return s
	}

	if maxChars <= 3 {
		return string(runes[:maxChars])
	}
	return string(runes[:maxChars-3]) + "..."
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
