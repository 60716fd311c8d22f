// Package wiring composes a default Hub out of the sinks this module
// ships, for callers that want fx-managed lifecycle instead of building
// the pieces by hand.
package wiring

import (
	"context"
	"log/slog"

	"go.uber.org/fx"

	"github.com/webitel/notifyhub/internal/hub"
	"github.com/webitel/notifyhub/internal/transport/httpsink"
	"github.com/webitel/notifyhub/sink/audio"
	"github.com/webitel/notifyhub/sink/push"
)

// Module wires a Pipeline, the built-in local sinks, and a Hub over
// them.
var Module = fx.Module("notifyhub",
	fx.Provide(
		func() *slog.Logger { return slog.Default() },
		func() *httpsink.Pipeline {
			return httpsink.NewPipeline(16, 256, 0)
		},
		func() *push.Sink {
			return push.New(push.Config{})
		},
		func() (*audio.Sink, error) {
			return audio.New(audio.Config{})
		},
		func(p *push.Sink, a *audio.Sink) *hub.Hub {
			return hub.New(hub.DefaultConfig(), []hub.Sink{p, a})
		},
	),
	fx.Invoke(func(lc fx.Lifecycle, logger *slog.Logger, h *hub.Hub) {
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				logger.Info("notifyhub: hub started")
				return nil
			},
		})
	}),
)
