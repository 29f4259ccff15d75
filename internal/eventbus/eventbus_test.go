package eventbus

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishIsDeferredUntilDrain(t *testing.T) {
	bus := NewSyncBus(8)
	ctx := context.Background()

	var got []string
	_, err := bus.Subscribe(ctx, Filter{}, func(_ context.Context, ev *Envelope) {
		got = append(got, ev.EventType)
	})
	require.NoError(t, err)

	require.NoError(t, bus.Publish(ctx, NewEnvelope("simulation", TypeBackendSwitched, 1, 5, BackendSwitched{From: "arcade", To: "matter"})))
	assert.Empty(t, got, "Доставка только при Drain")
	assert.Equal(t, 1, bus.Metrics().InFlight)

	assert.Equal(t, 1, bus.Drain(ctx))
	assert.Equal(t, []string{TypeBackendSwitched}, got)
	assert.Equal(t, 0, bus.Metrics().InFlight)
}

func TestEnvelopeGetsIDAndTimestamp(t *testing.T) {
	bus := NewSyncBus(4)
	ev := NewEnvelope("terrain", TypeTerrainFallback, 3, 1, TerrainFallback{ChunkIndex: 2})
	require.NoError(t, bus.Publish(context.Background(), ev))

	assert.Len(t, ev.ID, 36, "ID должен быть UUID")
	assert.False(t, ev.Timestamp.IsZero())
}

func TestFilterAndOrder(t *testing.T) {
	bus := NewSyncBus(8)
	ctx := context.Background()

	var order []string
	bus.Subscribe(ctx, Filter{Types: []string{TypeTickRolledBack}}, func(context.Context, *Envelope) {
		order = append(order, "first")
	})
	bus.Subscribe(ctx, Filter{}, func(context.Context, *Envelope) {
		order = append(order, "second")
	})

	bus.Publish(ctx, NewEnvelope("simulation", TypeTickRolledBack, 1, 5, nil))
	bus.Publish(ctx, NewEnvelope("simulation", TypePossessionChanged, 1, 1, nil))
	bus.Drain(ctx)

	assert.Equal(t, []string{"first", "second", "second"}, order, "Фильтр по типу и порядок подписки")
}

func TestLowPriorityDroppedWhenFull(t *testing.T) {
	bus := NewSyncBus(1)
	ctx := context.Background()

	require.NoError(t, bus.Publish(ctx, NewEnvelope("s", "a", 0, 0, nil)))
	require.NoError(t, bus.Publish(ctx, NewEnvelope("s", "b", 0, 0, nil)))
	require.NoError(t, bus.Publish(ctx, NewEnvelope("s", "c", 0, 9, nil)))

	stats := bus.Metrics()
	assert.Equal(t, uint64(1), stats.Dropped, "Низкий приоритет отбрасывается")
	assert.Equal(t, uint64(2), stats.Published, "Высокий приоритет принимается сверх буфера")
}

func TestHandlersMayPublishDuringDrain(t *testing.T) {
	bus := NewSyncBus(8)
	ctx := context.Background()

	var seen []string
	bus.Subscribe(ctx, Filter{}, func(ctx context.Context, ev *Envelope) {
		seen = append(seen, ev.EventType)
		if ev.EventType == "first" {
			bus.Publish(ctx, NewEnvelope("s", "second", 0, 0, nil))
			assert.Equal(t, 0, bus.Drain(ctx), "Повторный вход в Drain игнорируется")
		}
	})

	bus.Publish(ctx, NewEnvelope("s", "first", 0, 0, nil))
	assert.Equal(t, 2, bus.Drain(ctx))
	assert.Equal(t, []string{"first", "second"}, seen)
}

func TestUnsubscribe(t *testing.T) {
	bus := NewSyncBus(8)
	ctx := context.Background()
	calls := 0
	sub, _ := bus.Subscribe(ctx, Filter{}, func(context.Context, *Envelope) { calls++ })
	sub.Unsubscribe()

	bus.Publish(ctx, NewEnvelope("s", "x", 0, 0, nil))
	bus.Drain(ctx)
	assert.Equal(t, 0, calls)
}

func TestMetricsExporterDeltas(t *testing.T) {
	bus := NewSyncBus(8)
	reg := prometheus.NewRegistry()
	exp, err := NewMetricsExporter(bus, reg)
	require.NoError(t, err)

	ctx := context.Background()
	bus.Subscribe(ctx, Filter{}, func(context.Context, *Envelope) {})
	bus.Publish(ctx, NewEnvelope("s", "x", 0, 0, nil))
	bus.Publish(ctx, NewEnvelope("s", "y", 0, 0, nil))
	exp.Update()
	assert.Equal(t, 2.0, testutil.ToFloat64(exp.published))
	assert.Equal(t, 2.0, testutil.ToFloat64(exp.inflight))

	bus.Drain(ctx)
	exp.Update()
	exp.Update()
	assert.Equal(t, 2.0, testutil.ToFloat64(exp.published), "Повторный Update не удваивает счётчик")
	assert.Equal(t, 2.0, testutil.ToFloat64(exp.consumed))
	assert.Equal(t, 0.0, testutil.ToFloat64(exp.inflight))
}
