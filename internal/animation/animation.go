package animation

import (
	"math"

	"github.com/annel0/spline-sim/internal/actor"
)

// State анимационное состояние актёра
type State int

const (
	Idle State = iota
	Walk
	Jump
	Fall
)

func (s State) String() string {
	switch s {
	case Walk:
		return "walk"
	case Jump:
		return "jump"
	case Fall:
		return "fall"
	default:
		return "idle"
	}
}

// Derive вычисляет анимацию из состояния актёра. Чистая функция.
func Derive(s actor.State, threshold float64) State {
	switch {
	case !s.Grounded && s.Velocity.Y < 0:
		return Jump
	case !s.Grounded:
		return Fall
	case math.Abs(s.Velocity.X) > threshold:
		return Walk
	default:
		return Idle
	}
}

// Machine отслеживает смену анимации между тиками
type Machine struct {
	threshold float64
	current   State
	ticks     int // тиков в текущем состоянии
}

// NewMachine создаёт автомат анимации
func NewMachine(threshold float64) *Machine {
	return &Machine{threshold: threshold}
}

// Update пересчитывает состояние; changed=true, если анимация сменилась
func (m *Machine) Update(s actor.State) (state State, changed bool) {
	next := Derive(s, m.threshold)
	if next != m.current {
		m.current = next
		m.ticks = 0
		return next, true
	}
	m.ticks++
	return next, false
}

// Current текущая анимация
func (m *Machine) Current() State {
	return m.current
}

// Ticks сколько тиков подряд держится текущая анимация
func (m *Machine) Ticks() int {
	return m.ticks
}

// Reset возвращает автомат в Idle
func (m *Machine) Reset() {
	m.current = Idle
	m.ticks = 0
}
