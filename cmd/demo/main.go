// Command demo runs a Hub wired by fx, sends one illustrative startup
// event through it, and exits on interrupt. It exists to exercise the
// wiring module end to end, not as a supported entry point.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/fx"

	"github.com/webitel/notifyhub"
	"github.com/webitel/notifyhub/internal/hub"
	"github.com/webitel/notifyhub/internal/wiring"
)

func main() {
	app := fx.New(
		wiring.Module,
		fx.Invoke(runDemo),
	)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	startCtx, cancelStart := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelStart()
	if err := app.Start(startCtx); err != nil {
		slog.Error("notifyhub demo: start failed", slog.Any("error", err))
		os.Exit(1)
	}

	<-stop

	stopCtx, cancelStop := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelStop()
	if err := app.Stop(stopCtx); err != nil {
		slog.Error("notifyhub demo: stop failed", slog.Any("error", err))
		os.Exit(1)
	}
}

func runDemo(lc fx.Lifecycle, h *hub.Hub) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				ev := notifyhub.NewEvent("demo.startup", notifyhub.Info, "notifyhub demo started").
					WithTag("host", os.Getenv("HOSTNAME"))
				h.Notify(ev)
			}()
			return nil
		},
	})
}
