package eventbus

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Envelope описывает универсальный контейнер события.
type Envelope struct {
	ID            string            // Глобально уникальный идентификатор (UUID).
	Timestamp     time.Time         // Время создания события (UTC).
	Source        string            // Компонент-источник (simulation, terrain…).
	EventType     string            // Тип события (backend.switched…).
	Tick          uint64            // Тик симуляции, на котором событие возникло.
	CorrelationID string            // Для связывания цепочек.
	Priority      int               // 0=Low … 9=Critical (для backpressure).
	Payload       interface{}       // Типизированная полезная нагрузка (см. events.go).
	Metadata      map[string]string // Произвольные метаданные.
}

// Filter позволяет подписаться только на нужные события.
type Filter struct {
	Types   []string // Если пусто - все типы.
	Sources []string // Если пусто - все источники.
}

// Subscription возвращается при подписке; позволяет отписаться.
type Subscription interface {
	Unsubscribe()
}

// Handler потребляет события.
type Handler func(ctx context.Context, ev *Envelope)

// Stats агрегированные метрики шины.
type Stats struct {
	Published uint64
	Consumed  uint64
	Dropped   uint64
	InFlight  int
}

// EventBus определяет абстракцию шины событий.
type EventBus interface {
	Publish(ctx context.Context, ev *Envelope) error
	Subscribe(ctx context.Context, f Filter, h Handler) (Subscription, error)
	Metrics() Stats
}

//================ Synchronous implementation =================//

// highPriority события с приоритетом не ниже не отбрасываются при переполнении
const highPriority = 5

// SyncBus шина без горутин: Publish кладёт событие в очередь,
// Drain доставляет накопленное в потоке вызывающего (в конце тика).
type SyncBus struct {
	mu          sync.Mutex
	subscribers map[int]subscriber
	nextID      int
	stats       Stats
	queue       []*Envelope
	capacity    int
	draining    bool
}

type subscriber struct {
	filter  Filter
	handler Handler
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewSyncBus создаёт шину с буфером на capacity событий.
func NewSyncBus(capacity int) *SyncBus {
	if capacity <= 0 {
		capacity = 1
	}
	return &SyncBus{
		subscribers: make(map[int]subscriber),
		capacity:    capacity,
	}
}

// Publish ставит событие в очередь. Пустые ID и Timestamp заполняются.
func (sb *SyncBus) Publish(ctx context.Context, ev *Envelope) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}

	sb.mu.Lock()
	defer sb.mu.Unlock()
	if len(sb.queue) >= sb.capacity && ev.Priority < highPriority {
		// Буфер заполнен - дропаём низкий приоритет
		sb.stats.Dropped++
		return nil
	}
	sb.queue = append(sb.queue, ev)
	sb.stats.Published++
	return nil
}

// Subscribe регистрирует обработчик. Обработчики вызываются в порядке подписки.
func (sb *SyncBus) Subscribe(ctx context.Context, f Filter, h Handler) (Subscription, error) {
	sb.mu.Lock()
	id := sb.nextID
	sb.nextID++
	cctx, cancel := context.WithCancel(ctx)
	sb.subscribers[id] = subscriber{filter: f, handler: h, ctx: cctx, cancel: cancel}
	sb.mu.Unlock()

	return &syncSub{bus: sb, id: id}, nil
}

// Metrics снимок статистики
func (sb *SyncBus) Metrics() Stats {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	s := sb.stats
	s.InFlight = len(sb.queue)
	return s
}

// Drain доставляет все события из очереди, включая опубликованные обработчиками.
// Повторный вход из обработчика игнорируется. Возвращает число доставленных событий.
func (sb *SyncBus) Drain(ctx context.Context) int {
	sb.mu.Lock()
	if sb.draining {
		sb.mu.Unlock()
		return 0
	}
	sb.draining = true
	sb.mu.Unlock()

	defer func() {
		sb.mu.Lock()
		sb.draining = false
		sb.mu.Unlock()
	}()

	delivered := 0
	for {
		sb.mu.Lock()
		if len(sb.queue) == 0 || ctx.Err() != nil {
			sb.mu.Unlock()
			return delivered
		}
		batch := sb.queue
		sb.queue = nil
		subs := sb.snapshot()
		sb.mu.Unlock()

		for _, ev := range batch {
			for _, sub := range subs {
				if !matchFilter(ev, sub.filter) || sub.ctx.Err() != nil {
					continue
				}
				sub.handler(sub.ctx, ev)
				sb.mu.Lock()
				sb.stats.Consumed++
				sb.mu.Unlock()
			}
			delivered++
		}
	}
}

// snapshot подписчики в порядке регистрации (вызывается под mu)
func (sb *SyncBus) snapshot() []subscriber {
	ids := make([]int, 0, len(sb.subscribers))
	for id := range sb.subscribers {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	subs := make([]subscriber, 0, len(ids))
	for _, id := range ids {
		subs = append(subs, sb.subscribers[id])
	}
	return subs
}

func matchFilter(ev *Envelope, f Filter) bool {
	match := func(val string, arr []string) bool {
		if len(arr) == 0 {
			return true
		}
		for _, v := range arr {
			if v == val {
				return true
			}
		}
		return false
	}
	return match(ev.EventType, f.Types) && match(ev.Source, f.Sources)
}

type syncSub struct {
	bus *SyncBus
	id  int
}

func (s *syncSub) Unsubscribe() {
	s.bus.mu.Lock()
	if sub, ok := s.bus.subscribers[s.id]; ok {
		sub.cancel()
		delete(s.bus.subscribers, s.id)
	}
	s.bus.mu.Unlock()
}
