package notifyhub

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	name string
	got  []Event
}

func (s *recordingSink) Name() string { return s.name }

func (s *recordingSink) Send(ctx context.Context, ev Event) error {
	s.got = append(s.got, ev)
	return nil
}

func TestNewHubDispatchesToSink(t *testing.T) {
	sink := &recordingSink{name: "recorder"}
	h := NewHub(DefaultHubConfig(), []Sink{sink})

	ev := NewEvent("deploy", Success, "deployed").WithTag("env", "prod")
	require.NoError(t, h.Send(context.Background(), ev))

	require.Len(t, sink.got, 1)
	assert.Equal(t, "deploy", sink.got[0].Kind())
	assert.Equal(t, Success, sink.got[0].Severity())
}

func TestNotifyIsNonBlocking(t *testing.T) {
	sink := &recordingSink{name: "recorder"}
	h := NewHub(DefaultHubConfig(), []Sink{sink})
	h.Notify(NewEvent("k", Info, "title"))
}
