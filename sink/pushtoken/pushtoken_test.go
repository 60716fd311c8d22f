package pushtoken

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webitel/notifyhub/internal/domain/event"
	"github.com/webitel/notifyhub/internal/transport/httpsink"
)

type countingSource struct {
	refreshes atomic.Int64
	token     string
}

func (c *countingSource) Token(context.Context) (string, time.Time, error) {
	c.refreshes.Add(1)
	time.Sleep(10 * time.Millisecond)
	return c.token, time.Time{}, nil
}

func TestNewRejectsNilTokenSource(t *testing.T) {
	p := httpsink.NewPipeline(4, 16, 0)
	_, err := New(context.Background(), p, NewConfig("https://example.com/send"), nil)
	assert.Error(t, err)
}

func TestNewRejectsDisabledPublicIPCheckWithoutAllowedHosts(t *testing.T) {
	p := httpsink.NewPipeline(4, 16, 0)
	cfg := NewConfig("https://example.com/send").WithPublicIPCheck(false)
	_, err := New(context.Background(), p, cfg, StaticToken("tok"))
	assert.Error(t, err)
}

func TestBuildPayloadIncludesOptionalFields(t *testing.T) {
	p := httpsink.NewPipeline(4, 16, 0)
	cfg := NewConfig("https://example.com/send")
	cfg.Channel = "wechat"
	sink, err := New(context.Background(), p, cfg, StaticToken("tok"))
	require.NoError(t, err)

	ev := event.New("turn_completed", event.Success, "done").WithBody("ok").WithTag("thread_id", "t1")
	payload := sink.buildPayload(ev, "tok")

	assert.Equal(t, "tok", payload["token"])
	assert.Equal(t, "done", payload["title"])
	assert.Contains(t, payload["content"], "ok")
	assert.Contains(t, payload["content"], "thread_id=t1")
	assert.Equal(t, "wechat", payload["channel"])
}

func TestTokenRefreshIsSingleFlighted(t *testing.T) {
	src := &countingSource{token: "tok"}
	p := httpsink.NewPipeline(4, 16, 0)
	sink, err := New(context.Background(), p, NewConfig("https://example.com/send"), src)
	require.NoError(t, err)

	const n = 8
	done := make(chan struct{}, n)
	for i := 0; i < n; i++ {
		go func() {
			_, _ = sink.token(context.Background())
			done <- struct{}{}
		}()
	}
	for i := 0; i < n; i++ {
		<-done
	}

	assert.Equal(t, int64(1), src.refreshes.Load())
}

func TestTokenRejectsEmptyToken(t *testing.T) {
	p := httpsink.NewPipeline(4, 16, 0)
	sink, err := New(context.Background(), p, NewConfig("https://example.com/send"), StaticToken(""))
	require.NoError(t, err)

	_, err = sink.token(context.Background())
	assert.Error(t, err)
}

func TestNewStrictPerformsConstructionTimePreflight(t *testing.T) {
	p := httpsink.NewPipeline(4, 16, 0)
	cfg := NewConfig("https://host.invalid/send").
		WithAllowedHosts("host.invalid").
		WithPathPrefix("/send").
		WithStrict()

	_, err := New(context.Background(), p, cfg, StaticToken("tok"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "strict construction-time preflight")
}
