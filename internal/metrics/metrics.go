package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "simulation"

// Metrics Prometheus-метрики цикла симуляции
type Metrics struct {
	registerer prometheus.Registerer
	gatherer   prometheus.Gatherer

	ticks          prometheus.Counter
	tickDuration   prometheus.Histogram
	residentChunks prometheus.Gauge
	pendingChunks  prometheus.Gauge
	activeBackend  *prometheus.GaugeVec
	switches       *prometheus.CounterVec
	fallbacks      prometheus.Counter
	rollbacks      prometheus.Counter
	actions        *prometheus.CounterVec
	droppedInput   prometheus.Counter
}

// New создаёт и регистрирует метрики. reg == nil - отдельный реестр.
func New(reg prometheus.Registerer) (*Metrics, error) {
	var gatherer prometheus.Gatherer = prometheus.DefaultGatherer
	if reg == nil {
		r := prometheus.NewRegistry()
		reg, gatherer = r, r
	} else if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	m := &Metrics{
		registerer: reg,
		gatherer:   gatherer,
		ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_total",
			Help:      "Количество выполненных тиков.",
		}),
		tickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tick_duration_seconds",
			Help:      "Длительность тика (ввод, физика, синхронизация, стриминг).",
			Buckets:   []float64{0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025},
		}),
		residentChunks: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "terrain_resident_chunks",
			Help:      "Завершённые чанки рельефа в памяти.",
		}),
		pendingChunks: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "terrain_pending_chunks",
			Help:      "Чанки в очереди генерации.",
		}),
		activeBackend: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "physics_backend_active",
			Help:      "1 для активного физического бэкенда.",
		}, []string{"backend"}),
		switches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "physics_backend_switches_total",
			Help:      "Переключения и рестарты бэкенда по результату.",
		}, []string{"backend", "result"}),
		fallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "terrain_fallbacks_total",
			Help:      "Чанки, заменённые прямым отрезком.",
		}),
		rollbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tick_rollbacks_total",
			Help:      "Тики, откатанные после расхождения физики.",
		}),
		actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "actor_actions_total",
			Help:      "Прыжки, отскоки и авто-подъёмы актёра.",
		}, []string{"action"}),
		droppedInput: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "input_dropped_total",
			Help:      "Снимки ввода, отброшенные для незахваченного актёра.",
		}),
	}

	collectors := []prometheus.Collector{
		m.ticks, m.tickDuration, m.residentChunks, m.pendingChunks, m.activeBackend,
		m.switches, m.fallbacks, m.rollbacks, m.actions, m.droppedInput,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Registerer реестр, в котором зарегистрированы метрики
func (m *Metrics) Registerer() prometheus.Registerer { return m.registerer }

// Gatherer источник для /metrics
func (m *Metrics) Gatherer() prometheus.Gatherer { return m.gatherer }

// ObserveTick учитывает выполненный тик
func (m *Metrics) ObserveTick(d time.Duration) {
	m.ticks.Inc()
	m.tickDuration.Observe(d.Seconds())
}

// SetChunks обновляет размеры набора чанков
func (m *Metrics) SetChunks(resident, pending int) {
	m.residentChunks.Set(float64(resident))
	m.pendingChunks.Set(float64(pending))
}

// SetBackend отмечает активный бэкенд
func (m *Metrics) SetBackend(active string, all []string) {
	for _, kind := range all {
		m.activeBackend.WithLabelValues(kind).Set(0)
	}
	m.activeBackend.WithLabelValues(active).Set(1)
}

// BackendSwitch учитывает попытку пересоздания бэкенда (result: ok | failed)
func (m *Metrics) BackendSwitch(backend, result string) {
	m.switches.WithLabelValues(backend, result).Inc()
}

// TerrainFallback учитывает замену чанка
func (m *Metrics) TerrainFallback() { m.fallbacks.Inc() }

// Rollback учитывает откат тика
func (m *Metrics) Rollback() { m.rollbacks.Inc() }

// Action учитывает действие актёра
func (m *Metrics) Action(action string) { m.actions.WithLabelValues(action).Inc() }

// InputDropped учитывает отброшенный ввод
func (m *Metrics) InputDropped() { m.droppedInput.Inc() }
