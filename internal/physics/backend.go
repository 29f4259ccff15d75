package physics

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/annel0/spline-sim/internal/config"
	"github.com/annel0/spline-sim/internal/terrain"
	"github.com/annel0/spline-sim/internal/vec"
)

// Kind тип физического бэкенда
type Kind string

const (
	// KindArcade дискретная кинематика с осевым разрешением коллизий
	KindArcade Kind = "arcade"
	// KindMatter твердотельный решатель
	KindMatter Kind = "matter"
)

func (k Kind) String() string { return string(k) }

// Other второй бэкенд (для переключения по кнопке)
func (k Kind) Other() Kind {
	if k == KindArcade {
		return KindMatter
	}
	return KindArcade
}

// ParseKind разбирает имя бэкенда
func ParseKind(s string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case KindArcade:
		return KindArcade, nil
	case KindMatter:
		return KindMatter, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownBackend, s)
	}
}

var (
	// ErrUnknownBackend запрошен незарегистрированный бэкенд
	ErrUnknownBackend = errors.New("unknown physics backend")
	// ErrNoTerrainAtSpawn в точке появления нет завершённого чанка
	ErrNoTerrainAtSpawn = errors.New("no terrain at spawn point")
	// ErrStepDiverged позиция или скорость тела перестала быть конечной
	ErrStepDiverged = errors.New("physics step diverged")
)

// ConstructionError ошибка создания бэкенда
type ConstructionError struct {
	Kind Kind
	Err  error
}

func (e *ConstructionError) Error() string {
	return fmt.Sprintf("construct %s backend: %v", e.Kind, e.Err)
}

func (e *ConstructionError) Unwrap() error {
	return e.Err
}

// BodyRef дескриптор тела внутри бэкенда
type BodyRef int

// BodySpec параметры тела актёра
type BodySpec struct {
	Position vec.Vec2 // центр прямоугольника
	Width    float64
	Height   float64
}

// Contacts контакты тела после последнего шага
type Contacts struct {
	Ground    bool
	WallLeft  bool
	WallRight bool
}

// Wall есть ли стена в направлении dir (-1 влево, +1 вправо)
func (c Contacts) Wall(dir int) bool {
	switch {
	case dir < 0:
		return c.WallLeft
	case dir > 0:
		return c.WallRight
	default:
		return false
	}
}

// DirOf направление движения по X: -1, 0 или 1
func DirOf(vx float64) int {
	switch {
	case vx < 0:
		return -1
	case vx > 0:
		return 1
	default:
		return 0
	}
}

// Backend владеет всеми телами и коллайдерами сцены.
// Скорости в px/s, позиции в px, y вниз - одинаково для всех реализаций.
type Backend interface {
	Kind() Kind
	Step(dt float64) error
	AddActor(spec BodySpec) (BodyRef, error)
	ApplyVelocity(ref BodyRef, vx, vy float64)
	QueryGrounded(ref BodyRef) bool
	QueryPosition(ref BodyRef) vec.Vec2
	QueryVelocity(ref BodyRef) vec.Vec2
	QueryContacts(ref BodyRef) Contacts
	Reset(ref BodyRef, pos, vel vec.Vec2)
	AddChunk(c *terrain.Chunk)
	RemoveChunk(index int)
	Close()
}

// Factory создаёт бэкенд по конфигурации и текущим завершённым чанкам
type Factory func(cfg *config.Config, chunks []*terrain.Chunk, spawn vec.Vec2) (Backend, error)

var (
	registryMu sync.RWMutex
	registry   = map[Kind]Factory{
		KindArcade: func(cfg *config.Config, chunks []*terrain.Chunk, spawn vec.Vec2) (Backend, error) {
			return NewArcade(cfg, chunks, spawn)
		},
		KindMatter: func(cfg *config.Config, chunks []*terrain.Chunk, spawn vec.Vec2) (Backend, error) {
			return NewMatter(cfg, chunks, spawn)
		},
	}
)

// Register устанавливает фабрику для типа и возвращает предыдущую (nil удаляет регистрацию)
func Register(kind Kind, factory Factory) Factory {
	registryMu.Lock()
	defer registryMu.Unlock()
	prev := registry[kind]
	if factory == nil {
		delete(registry, kind)
	} else {
		registry[kind] = factory
	}
	return prev
}

// Kinds зарегистрированные типы бэкендов
func Kinds() []Kind {
	registryMu.RLock()
	defer registryMu.RUnlock()
	kinds := make([]Kind, 0, len(registry))
	for k := range registry {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// New создаёт бэкенд. Все ошибки оборачиваются в *ConstructionError.
func New(kind Kind, cfg *config.Config, chunks []*terrain.Chunk, spawn vec.Vec2) (Backend, error) {
	registryMu.RLock()
	factory, ok := registry[kind]
	registryMu.RUnlock()
	if !ok {
		return nil, &ConstructionError{Kind: kind, Err: fmt.Errorf("%w: %q", ErrUnknownBackend, kind)}
	}

	if !coversSpawn(chunks, spawn) {
		return nil, &ConstructionError{Kind: kind, Err: fmt.Errorf("%w: x=%.1f", ErrNoTerrainAtSpawn, spawn.X)}
	}

	backend, err := factory(cfg, chunks, spawn)
	if err != nil {
		var ce *ConstructionError
		if errors.As(err, &ce) {
			return nil, err
		}
		return nil, &ConstructionError{Kind: kind, Err: err}
	}
	if backend == nil {
		return nil, &ConstructionError{Kind: kind, Err: errors.New("factory returned nil backend")}
	}
	return backend, nil
}

func coversSpawn(chunks []*terrain.Chunk, spawn vec.Vec2) bool {
	for _, c := range chunks {
		if c != nil && c.Contains(spawn.X) {
			return true
		}
	}
	return false
}
