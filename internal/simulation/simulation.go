// Package simulation связывает рельеф, физический бэкенд, контроллер актёра,
// владение и анимацию в один покадровый цикл.
package simulation

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/attribute"

	"github.com/annel0/spline-sim/internal/actor"
	"github.com/annel0/spline-sim/internal/animation"
	"github.com/annel0/spline-sim/internal/config"
	"github.com/annel0/spline-sim/internal/eventbus"
	"github.com/annel0/spline-sim/internal/host"
	"github.com/annel0/spline-sim/internal/logging"
	"github.com/annel0/spline-sim/internal/metrics"
	"github.com/annel0/spline-sim/internal/observability"
	"github.com/annel0/spline-sim/internal/physics"
	"github.com/annel0/spline-sim/internal/possession"
	"github.com/annel0/spline-sim/internal/terrain"
	"github.com/annel0/spline-sim/internal/vec"
)

const source = "simulation"

// Приоритеты событий шины
const (
	priorityInfo     = 3
	priorityWarning  = 6
	priorityCritical = 8
)

// Допуск накопителя в долях шага: кадр 1/60 s в time.Duration чуть короче шага
const accumulatorTolerance = 1e-3

// Option настройка симуляции
type Option func(*options)

type options struct {
	registerer prometheus.Registerer
	heights    terrain.HeightSource
	metrics    *metrics.Metrics
}

// WithRegisterer регистрирует метрики в reg вместо отдельного реестра
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) { o.registerer = reg }
}

// WithMetrics использует готовый набор метрик
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithHeightSource подменяет функцию высоты рельефа
func WithHeightSource(h terrain.HeightSource) Option {
	return func(o *options) { o.heights = h }
}

// Simulation цикл симуляции. Не потокобезопасна: все вызовы из потока кадров хоста.
type Simulation struct {
	ctx context.Context
	cfg *config.Config

	gen      *terrain.Generator
	streamer *terrain.Streamer
	spawn    vec.Vec2

	kind    physics.Kind
	backend physics.Backend

	ctrl       *actor.Controller
	possession *possession.Manager
	anim       *animation.Machine

	bus      *eventbus.SyncBus
	metrics  *metrics.Metrics
	exporter *eventbus.MetricsExporter

	host        host.Host
	tick        uint64
	accumulator float64
	inTick      bool
	pending     *pendingSwitch
	reported    map[int]struct{} // чанки, о замене которых уже сообщено

	snapshot atomic.Value // Snapshot для чтения из других горутин
}

// Snapshot сводка состояния на конец последнего тика (для /state)
type Snapshot struct {
	Tick      uint64   `json:"tick"`
	Backend   string   `json:"backend"`
	Animation string   `json:"animation"`
	Position  vec.Vec2 `json:"position"`
	Velocity  vec.Vec2 `json:"velocity"`
	Grounded  bool     `json:"grounded"`
	JumpCount int      `json:"jump_count"`
	Possessed bool     `json:"possessed"`
	Resident  int      `json:"resident_chunks"`
}

type pendingSwitch struct {
	kind    physics.Kind
	restart bool
}

// New собирает симуляцию и создаёт бэкенд по умолчанию из конфигурации.
// Ошибка первого построения бэкенда фатальна (старого бэкенда, к которому можно откатиться, нет).
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Simulation, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	kind, err := physics.ParseKind(cfg.Physics.Default)
	if err != nil {
		return nil, err
	}

	reach := terrain.ReachFor(cfg)
	gen := terrain.NewGenerator(cfg.Terrain, reach)
	if o.heights != nil {
		gen = terrain.NewGeneratorWithSource(cfg.Terrain, reach, o.heights)
	}
	streamer := terrain.NewStreamer(gen)

	m := o.metrics
	if m == nil {
		if m, err = metrics.New(o.registerer); err != nil {
			return nil, fmt.Errorf("metrics: %w", err)
		}
	}

	bus := eventbus.NewSyncBus(cfg.Simulation.EventBuffer)
	exporter, err := eventbus.NewMetricsExporter(bus, m.Registerer())
	if err != nil {
		return nil, fmt.Errorf("eventbus metrics: %w", err)
	}
	if err := eventbus.StartLoggingListener(bus); err != nil {
		return nil, err
	}

	s := &Simulation{
		ctx:        ctx,
		cfg:        cfg,
		gen:        gen,
		streamer:   streamer,
		spawn:      terrain.SpawnPoint(gen),
		ctrl:       actor.NewController(cfg.Actor, cfg.Terrain.StepLimit, streamer),
		possession: possession.NewManager(),
		anim:       animation.NewMachine(cfg.Actor.AnimationThreshold),
		bus:        bus,
		metrics:    m,
		exporter:   exporter,
		reported:   make(map[int]struct{}),
	}
	s.possession.OnChange(s.onPossessionChange)

	ctx, span := observability.StartSpan(ctx, "simulation.start",
		attribute.String("backend", string(kind)),
		attribute.Int64("seed", cfg.Terrain.Seed))
	err = s.rebuild(ctx, kind, false)
	observability.EndSpan(span, err)
	if err != nil {
		return nil, err
	}

	logging.Info("Симуляция запущена: backend=%s seed=%d spawn=(%.1f,%.1f)",
		kind, cfg.Terrain.Seed, s.spawn.X, s.spawn.Y)
	return s, nil
}

// Tick один шаг симуляции. Порядок фаз:
// ввод -> контроллер (если захвачен) -> шаг физики -> синхронизация и восполнение прыжков ->
// анимация -> стриминг рельефа -> доставка событий.
// При расхождении физики тик откатывается к снимку; возвращается обёрнутая ошибка шага.
func (s *Simulation) Tick(in actor.Input, dt float64) error {
	start := time.Now()
	s.inTick = true
	s.tick++
	snapshot := s.ctrl.Checkpoint()

	if s.possession.Possessed() {
		if action := s.ctrl.Drive(in, s.backend, dt); action != actor.ActionNone {
			s.metrics.Action(action.String())
		}
	} else {
		s.ctrl.Idle(s.backend)
		if !in.Empty() {
			// Ввод без владельца молча отбрасывается
			s.metrics.InputDropped()
		}
	}

	stepErr := s.backend.Step(dt)
	if stepErr != nil {
		s.rollback(snapshot, stepErr)
	} else {
		s.ctrl.Sync(s.backend)
	}

	state := s.ctrl.State()
	s.anim.Update(state)
	s.stream(state.Position.X)

	s.bus.Drain(s.ctx)
	s.inTick = false
	s.applyPending()
	s.exporter.Update()

	s.storeSnapshot()
	s.metrics.ObserveTick(time.Since(start))
	logging.LogActorMovement(s.tick, snapshot.State.Position.X, snapshot.State.Position.Y,
		state.Position.X, state.Position.Y, s.anim.Current().String())

	if stepErr != nil {
		return fmt.Errorf("tick %d rolled back: %w", s.tick, stepErr)
	}
	return nil
}

func (s *Simulation) rollback(snapshot actor.Checkpoint, err error) {
	s.ctrl.Restore(snapshot, s.backend)
	s.metrics.Rollback()
	logging.Warn("Тик %d откатан (%s): %v", s.tick, s.kind, err)
	s.publish(eventbus.TypeTickRolledBack, priorityCritical, eventbus.TickRolledBack{
		Backend: string(s.kind),
		Error:   err.Error(),
	})
}

// stream двигает окно рельефа и передаёт изменения бэкенду
func (s *Simulation) stream(x float64) {
	changes := s.streamer.Maintain(x)
	for _, index := range changes.Evicted {
		s.backend.RemoveChunk(index)
		delete(s.reported, index)
		logging.LogChunkEvicted(index)
	}
	for _, c := range changes.Ready {
		s.backend.AddChunk(c)
		s.noteFallback(c)
	}
	s.metrics.SetChunks(s.streamer.Resident(), s.streamer.Pending())
}

// noteFallback сообщает о заменённом чанке один раз за время его жизни
func (s *Simulation) noteFallback(c *terrain.Chunk) {
	if !c.Fallback {
		return
	}
	if _, ok := s.reported[c.Index]; ok {
		return
	}
	s.reported[c.Index] = struct{}{}
	s.metrics.TerrainFallback()

	reason := ""
	if c.Err != nil {
		reason = c.Err.Error()
	}
	s.publish(eventbus.TypeTerrainFallback, priorityWarning, eventbus.TerrainFallback{
		ChunkIndex: c.Index,
		Error:      reason,
	})
}

// Frame обработчик кадра хоста: фиксированный шаг с накопителем
// или один измеренный шаг, затем одна отрисовка.
func (s *Simulation) Frame(elapsed time.Duration) {
	sim := s.cfg.Simulation
	delta := math.Min(elapsed.Seconds(), sim.MaxDelta)
	if delta < 0 {
		delta = 0
	}

	switch sim.StepMode {
	case "variable":
		if delta > 0 {
			s.runTick(delta)
		}
	default:
		due := func() bool {
			return s.accumulator+accumulatorTolerance*sim.FixedStep >= sim.FixedStep
		}
		s.accumulator += delta
		steps := 0
		for due() && steps < sim.MaxStepsPerFrame {
			s.runTick(sim.FixedStep)
			s.accumulator -= sim.FixedStep
			steps++
		}
		if steps == sim.MaxStepsPerFrame && due() {
			// Отстали больше чем на кадр: хвост отбрасывается
			s.accumulator = 0
		}
	}

	if s.host != nil {
		s.host.Render(s.ctrl.State(), s.anim.Current(), s.VisibleChunks())
	}
}

func (s *Simulation) runTick(dt float64) {
	var in actor.Input
	if s.host != nil {
		in = s.host.ReadInput()
	}
	if err := s.Tick(in, dt); err != nil {
		logging.Debug("frame: %v", err)
	}
}

// SwitchBackend пересоздаёт физику выбранного типа и возвращает актёра в точку появления.
// При ошибке построения остаётся прежний бэкенд и состояние; ошибка не фатальна.
// Запрос во время тика откладывается до его конца.
func (s *Simulation) SwitchBackend(kind physics.Kind) error {
	return s.requestRebuild(kind, false)
}

// Restart пересоздаёт текущий бэкенд
func (s *Simulation) Restart() error {
	return s.requestRebuild(s.kind, true)
}

func (s *Simulation) requestRebuild(kind physics.Kind, restart bool) error {
	if s.inTick {
		s.pending = &pendingSwitch{kind: kind, restart: restart}
		logging.Debug("Смена бэкенда на %s отложена до конца тика %d", kind, s.tick)
		return nil
	}

	name := "simulation.switch_backend"
	if restart {
		name = "simulation.restart"
	}
	ctx, span := observability.StartSpan(s.ctx, name,
		attribute.String("from", string(s.kind)),
		attribute.String("to", string(kind)))
	err := s.rebuild(ctx, kind, restart)
	observability.EndSpan(span, err)

	s.bus.Drain(s.ctx)
	s.exporter.Update()
	return err
}

func (s *Simulation) applyPending() {
	if s.pending == nil {
		return
	}
	p := *s.pending
	s.pending = nil
	if err := s.requestRebuild(p.kind, p.restart); err != nil {
		logging.Warn("Отложенная смена бэкенда: %v", err)
	}
}

// rebuild строит новый бэкенд из завершённых чанков, затем закрывает старый
func (s *Simulation) rebuild(ctx context.Context, kind physics.Kind, restart bool) error {
	prev := s.kind

	_, span := observability.StartSpan(ctx, "terrain.ensure_spawn")
	ensured := s.streamer.EnsureAround(s.spawn.X)
	for _, c := range ensured {
		s.noteFallback(c)
	}
	span.End()

	backend, err := physics.New(kind, s.cfg, s.streamer.Chunks(), s.spawn)
	if err == nil {
		if err = s.ctrl.Spawn(backend, s.spawn); err != nil {
			backend.Close()
			err = &physics.ConstructionError{Kind: kind, Err: err}
		}
	}
	if err != nil {
		// Стример уже считает эти чанки резидентными и не отдаст их как Ready
		if s.backend != nil {
			for _, c := range ensured {
				s.backend.AddChunk(c)
			}
		}
		s.metrics.SetChunks(s.streamer.Resident(), s.streamer.Pending())
		s.metrics.BackendSwitch(string(kind), "failed")
		logging.Warn("Не удалось создать бэкенд %s, остаётся %s: %v", kind, prev, err)
		s.publish(eventbus.TypeBackendConstructionFailed, priorityCritical, eventbus.BackendConstructionFailed{
			Requested: string(kind),
			Active:    string(prev),
			Error:     err.Error(),
		})
		return fmt.Errorf("switch backend to %s: %w", kind, err)
	}

	if s.backend != nil {
		s.backend.Close()
	}
	s.backend = backend
	s.kind = kind
	s.accumulator = 0
	s.anim.Reset()

	kinds := physics.Kinds()
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = string(k)
	}
	s.metrics.SetBackend(string(kind), names)
	s.metrics.BackendSwitch(string(kind), "ok")
	s.metrics.SetChunks(s.streamer.Resident(), s.streamer.Pending())

	if prev != "" {
		logging.Info("Бэкенд %s -> %s (restart=%v)", prev, kind, restart)
		s.publish(eventbus.TypeBackendSwitched, priorityInfo, eventbus.BackendSwitched{
			From:    string(prev),
			To:      string(kind),
			Restart: restart,
		})
	}
	if aware, ok := s.host.(host.BackendAware); ok {
		aware.SetBackend(kind)
	}
	s.storeSnapshot()
	return nil
}

func (s *Simulation) storeSnapshot() {
	state := s.ctrl.State()
	s.snapshot.Store(Snapshot{
		Tick:      s.tick,
		Backend:   string(s.kind),
		Animation: s.anim.Current().String(),
		Position:  state.Position,
		Velocity:  state.Velocity,
		Grounded:  state.Grounded,
		JumpCount: state.JumpCount,
		Possessed: state.Possessed,
		Resident:  s.streamer.Resident(),
	})
}

// Snapshot последняя сводка состояния; безопасна для вызова из любой горутины
func (s *Simulation) Snapshot() Snapshot {
	snap, _ := s.snapshot.Load().(Snapshot)
	return snap
}

func (s *Simulation) onPossessionChange(from, to possession.State) {
	s.ctrl.SetPossessed(to.RoutesInput())
	s.publish(eventbus.TypePossessionChanged, priorityInfo, eventbus.PossessionChanged{
		From:      from.Name(),
		To:        to.Name(),
		Possessed: to.RoutesInput(),
	})
	if !s.inTick {
		s.bus.Drain(s.ctx)
	}
}

// Possess захватывает актёра (false, если уже захвачен)
func (s *Simulation) Possess() bool { return s.possession.Possess() }

// Release отпускает актёра (false, если уже свободен)
func (s *Simulation) Release() bool { return s.possession.Release() }

// TogglePossession переключает владение; позиция и скорость не меняются
func (s *Simulation) TogglePossession() bool {
	return s.possession.Toggle().RoutesInput()
}

// Attach подключает хост: кадры, кнопка захвата и кнопка смены бэкенда
func (s *Simulation) Attach(h host.Host) {
	s.host = h
	h.OnFrame(s.Frame)
	h.OnPossessToggle(func() { s.TogglePossession() })
	h.OnBackendSwitch(func(kind physics.Kind) {
		if err := s.SwitchBackend(kind); err != nil {
			logging.Warn("host: %v", err)
		}
	})
	if aware, ok := h.(host.BackendAware); ok {
		aware.SetBackend(s.kind)
	}
}

func (s *Simulation) publish(eventType string, priority int, payload interface{}) {
	ev := eventbus.NewEnvelope(source, eventType, s.tick, priority, payload)
	if err := s.bus.Publish(s.ctx, ev); err != nil && !errors.Is(err, context.Canceled) {
		logging.Warn("publish %s: %v", eventType, err)
	}
}

// Close освобождает бэкенд
func (s *Simulation) Close() {
	if s.backend != nil {
		s.backend.Close()
		s.backend = nil
	}
}

// State копия состояния актёра
func (s *Simulation) State() actor.State { return s.ctrl.State() }

// Animation текущая анимация
func (s *Simulation) Animation() animation.State { return s.anim.Current() }

// Backend активный бэкенд
func (s *Simulation) Backend() physics.Backend { return s.backend }

// Kind тип активного бэкенда
func (s *Simulation) Kind() physics.Kind { return s.kind }

// VisibleChunks завершённые резидентные чанки по возрастанию индекса
func (s *Simulation) VisibleChunks() []*terrain.Chunk { return s.streamer.Chunks() }

// Spawn каноническая точка появления
func (s *Simulation) Spawn() vec.Vec2 { return s.spawn }

// TickCount число выполненных тиков
func (s *Simulation) TickCount() uint64 { return s.tick }

// Possession автомат владения
func (s *Simulation) Possession() *possession.Manager { return s.possession }

// Streamer стример рельефа
func (s *Simulation) Streamer() *terrain.Streamer { return s.streamer }

// Bus шина событий симуляции
func (s *Simulation) Bus() *eventbus.SyncBus { return s.bus }

// Metrics метрики симуляции
func (s *Simulation) Metrics() *metrics.Metrics { return s.metrics }
