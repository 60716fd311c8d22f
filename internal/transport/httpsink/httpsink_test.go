package httpsink

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSummarizeBodyCollapsesWhitespace(t *testing.T) {
	body := []byte("line one\n\nline   two\t\tline three")
	assert.Equal(t, "line one line two line three", SummarizeBody(body))
}

func TestSummarizeBodyTruncatesLongBodies(t *testing.T) {
	long := make([]byte, 0, 1000)
	for i := 0; i < 100; i++ {
		long = append(long, []byte("word ")...)
	}
	out := SummarizeBody(long)
	assert.LessOrEqual(t, len(out), maxErrorSummaryChars+3)
	assert.Contains(t, out, "...")
}

func TestLooksLikeJSONByContentType(t *testing.T) {
	assert.True(t, looksLikeJSON("application/json; charset=utf-8", []byte("ignored")))
}

func TestLooksLikeJSONByLeadingBrace(t *testing.T) {
	assert.True(t, looksLikeJSON("", []byte(`{"a":1}`)))
	assert.True(t, looksLikeJSON("", []byte(`[1,2]`)))
	assert.False(t, looksLikeJSON("text/plain", []byte("ok")))
}
