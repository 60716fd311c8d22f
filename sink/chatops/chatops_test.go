package chatops

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webitel/notifyhub/internal/domain/event"
	"github.com/webitel/notifyhub/internal/transport/httpsink"
)

func TestBuildPayloadShape(t *testing.T) {
	p := httpsink.NewPipeline(4, 16, 0)
	sink, err := New(context.Background(), p, NewConfig("https://example.com/send"))
	require.NoError(t, err)

	ev := event.New("k", event.Info, "title").WithBody("body")
	payload := sink.buildPayload(ev)

	assert.Equal(t, "title", payload["title"])
	assert.Contains(t, payload["desp"], "body")
}

func TestAPIResponseOKAcceptsZeroOrTwoHundred(t *testing.T) {
	assert.True(t, apiResponse{Code: 0, Errno: 0}.ok())
	assert.True(t, apiResponse{Code: 200, Errno: 0}.ok())
	assert.False(t, apiResponse{Code: 1, Errno: 0}.ok())
	assert.False(t, apiResponse{Code: 0, Errno: 5}.ok())
}

func TestNewRejectsDisabledPublicIPCheckWithoutAllowedHosts(t *testing.T) {
	p := httpsink.NewPipeline(4, 16, 0)
	_, err := New(context.Background(), p, NewConfig("https://example.com/send").WithPublicIPCheck(false))
	assert.Error(t, err)
}

func TestNewStrictPerformsConstructionTimePreflight(t *testing.T) {
	p := httpsink.NewPipeline(4, 16, 0)
	cfg := NewConfig("https://host.invalid/send").
		WithAllowedHosts("host.invalid").
		WithPathPrefix("/send").
		WithStrict()

	_, err := New(context.Background(), p, cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "strict construction-time preflight")
}
