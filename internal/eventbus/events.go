package eventbus

// Типы событий симуляции
const (
	TypeBackendSwitched           = "backend.switched"
	TypeBackendConstructionFailed = "backend.construction_failed"
	TypeTerrainFallback           = "terrain.fallback"
	TypePossessionChanged         = "possession.changed"
	TypeTickRolledBack            = "tick.rolled_back"
)

// BackendSwitched бэкенд пересоздан (переключение или рестарт)
type BackendSwitched struct {
	From    string
	To      string
	Restart bool
}

// BackendConstructionFailed переключение отменено, старый бэкенд сохранён
type BackendConstructionFailed struct {
	Requested string
	Active    string
	Error     string
}

// TerrainFallback чанк заменён прямым отрезком
type TerrainFallback struct {
	ChunkIndex int
	Error      string
}

// PossessionChanged смена владения актёром
type PossessionChanged struct {
	From      string
	To        string
	Possessed bool
}

// TickRolledBack шаг физики откатан к снимку
type TickRolledBack struct {
	Backend string
	Error   string
}

// NewEnvelope собирает событие; ID и время заполняются при публикации
func NewEnvelope(source, eventType string, tick uint64, priority int, payload interface{}) *Envelope {
	return &Envelope{
		Source:    source,
		EventType: eventType,
		Tick:      tick,
		Priority:  priority,
		Payload:   payload,
	}
}
