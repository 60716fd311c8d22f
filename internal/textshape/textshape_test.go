package textshape

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webitel/notifyhub/internal/domain/event"
)

func TestTruncateCharsIsUTF8Safe(t *testing.T) {
	input := "a😀b"
	assert.Equal(t, "a😀b", TruncateChars(input, 3))
	assert.Equal(t, "a😀", TruncateChars(input, 2))
	assert.Equal(t, "a", TruncateChars(input, 1))
}

func TestTruncateCharsAddsEllipsis(t *testing.T) {
	assert.Equal(t, "ab...", TruncateChars("abcdef", 5))
}

func TestTruncateCharsNoEllipsisRoomIsHardCut(t *testing.T) {
	assert.Equal(t, "ab", TruncateChars("abcdef", 2))
}

func TestFormatCapsTagsAndLength(t *testing.T) {
	e := event.New("k", event.Info, "title").WithBody("body")
	for i := 0; i < 100; i++ {
		e = e.WithTag("k"+strconv.Itoa(i), "v")
	}

	limits := DefaultLimits()
	limits.MaxChars = 20
	limits.MaxTags = 2

	out := Format(e, limits)
	require.LessOrEqual(t, len([]rune(out)), 20)
	assert.Contains(t, out, "title")
}

func TestFormatIdempotent(t *testing.T) {
	e := event.New("k", event.Info, "title").WithBody("body").WithTag("a", "b")
	limits := DefaultLimits()
	assert.Equal(t, Format(e, limits), Format(e, limits))
}

func TestFormatNeverEndsWithSeparator(t *testing.T) {
	e := event.New("k", event.Info, "hi").WithBody("world").WithTag("k", "v")
	for max := 1; max <= 20; max++ {
		out := Format(e, WithMaxChars(max))
		if out == "" {
			continue
		}
		last := out[len(out)-1]
		assert.NotEqual(t, byte('\n'), last, "max=%d out=%q", max, out)
	}
}

func TestFormatEmptyBudget(t *testing.T) {
	e := event.New("k", event.Info, "hi").WithBody("world")
	assert.Equal(t, "", Format(e, WithMaxChars(0)))
}

func TestFormatBodyAndTagsSkipsTitle(t *testing.T) {
	e := event.New("k", event.Info, "hi").WithBody("world").WithTag("a", "b")
	out := FormatBodyAndTags(e, DefaultLimits())
	assert.NotContains(t, out, "hi")
	assert.Contains(t, out, "world")
	assert.Contains(t, out, "a=b")
}
