package eventbus

import (
	"context"

	"github.com/annel0/spline-sim/internal/logging"
)

// StartLoggingListener подписывается на все события и пишет их в лог.
func StartLoggingListener(bus EventBus) error {
	_, err := bus.Subscribe(context.Background(), Filter{}, func(ctx context.Context, ev *Envelope) {
		logging.Debug("[EventBus] %s %s src=%s tick=%d prio=%d %+v", ev.ID, ev.EventType, ev.Source, ev.Tick, ev.Priority, ev.Payload)
	})
	if err != nil {
		return err
	}
	logging.Info("🪵 LoggingListener: подписка на все события активирована")
	return nil
}
