package possession

import (
	"github.com/annel0/spline-sim/internal/logging"
)

// State состояние автомата владения
type State interface {
	Name() string
	Enter(m *Manager)
	Exit(m *Manager)
	// RoutesInput передаётся ли ввод контроллеру актёра
	RoutesInput() bool
}

// === Конкретные состояния ===

type idleState struct{}

func (idleState) Name() string      { return "idle" }
func (idleState) RoutesInput() bool { return false }
func (idleState) Enter(m *Manager) {
	logging.Debug("Актёр отпущен (переход %d)", m.transitions)
}
func (idleState) Exit(m *Manager) {}

type possessedState struct{}

func (possessedState) Name() string      { return "possessed" }
func (possessedState) RoutesInput() bool { return true }
func (possessedState) Enter(m *Manager) {
	logging.Debug("Актёр захвачен (переход %d)", m.transitions)
}
func (possessedState) Exit(m *Manager) {}

var (
	// Idle ввод не маршрутизируется (начальное состояние)
	Idle State = idleState{}
	// Possessed ввод передаётся актёру
	Possessed State = possessedState{}
)

// Listener вызывается после смены состояния
type Listener func(from, to State)

// Manager автомат владения актёром.
// Переходы синхронные и меняют только флаг маршрутизации ввода.
type Manager struct {
	current     State
	listener    Listener
	transitions uint64
}

// NewManager создаёт автомат в состоянии Idle
func NewManager() *Manager {
	return &Manager{current: Idle}
}

// OnChange устанавливает слушатель переходов (nil отключает)
func (m *Manager) OnChange(l Listener) {
	m.listener = l
}

// Current текущее состояние
func (m *Manager) Current() State {
	return m.current
}

// Possessed захвачен ли актёр
func (m *Manager) Possessed() bool {
	return m.current.RoutesInput()
}

// Transitions количество выполненных переходов
func (m *Manager) Transitions() uint64 {
	return m.transitions
}

// Possess Idle -> Possessed. Возвращает false, если актёр уже захвачен.
func (m *Manager) Possess() bool {
	return m.setState(Possessed)
}

// Release Possessed -> Idle. Возвращает false, если актёр уже свободен.
func (m *Manager) Release() bool {
	return m.setState(Idle)
}

// Toggle переключает состояние и возвращает новое
func (m *Manager) Toggle() State {
	if m.Possessed() {
		m.Release()
	} else {
		m.Possess()
	}
	return m.current
}

// Set устанавливает состояние по флагу
func (m *Manager) Set(possessed bool) bool {
	if possessed {
		return m.Possess()
	}
	return m.Release()
}

func (m *Manager) setState(state State) bool {
	if state == m.current {
		return false
	}
	from := m.current
	from.Exit(m)
	m.current = state
	m.transitions++
	m.current.Enter(m)

	if m.listener != nil {
		m.listener(from, state)
	}
	return true
}
