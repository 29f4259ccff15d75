package host

import (
	"time"

	"github.com/annel0/spline-sim/internal/actor"
	"github.com/annel0/spline-sim/internal/animation"
	"github.com/annel0/spline-sim/internal/physics"
	"github.com/annel0/spline-sim/internal/terrain"
)

// Step отрезок сценария: управляющие события, затем Frames кадров с одним вводом.
// JumpPressed срабатывает один раз за отрезок (фронт нажатия).
type Step struct {
	Frames        int
	Input         actor.Input
	TogglePossess bool
	SwitchTo      physics.Kind // пусто - без переключения
}

// Frame записанный кадр
type Frame struct {
	State     actor.State
	Animation animation.State
	Chunks    int
}

// Scripted headless-хост: проигрывает сценарий и записывает кадры
type Scripted struct {
	steps    []Step
	frameDur time.Duration

	onFrame  func(time.Duration)
	onToggle func()
	onSwitch func(physics.Kind)

	input     actor.Input
	jumpArmed bool
	backend   physics.Kind
	frames    []Frame
}

// NewScripted создаёт хост со сценарием; frameDur - длительность одного кадра
func NewScripted(frameDur time.Duration, steps ...Step) *Scripted {
	return &Scripted{steps: steps, frameDur: frameDur}
}

func (h *Scripted) OnFrame(fn func(elapsed time.Duration)) { h.onFrame = fn }
func (h *Scripted) OnPossessToggle(fn func())              { h.onToggle = fn }
func (h *Scripted) OnBackendSwitch(fn func(physics.Kind))  { h.onSwitch = fn }

// SetBackend запоминает активный бэкенд
func (h *Scripted) SetBackend(kind physics.Kind) { h.backend = kind }

// Backend последний сообщённый бэкенд
func (h *Scripted) Backend() physics.Kind { return h.backend }

// Append добавляет отрезки в конец сценария
func (h *Scripted) Append(steps ...Step) {
	h.steps = append(h.steps, steps...)
}

// ReadInput текущий ввод; прыжок отдаётся только в первом чтении отрезка
func (h *Scripted) ReadInput() actor.Input {
	in := h.input
	in.JumpPressed = h.jumpArmed
	h.jumpArmed = false
	return in
}

// Render записывает кадр
func (h *Scripted) Render(s actor.State, a animation.State, chunks []*terrain.Chunk) {
	h.frames = append(h.frames, Frame{State: s, Animation: a, Chunks: len(chunks)})
}

// Frames записанные кадры
func (h *Scripted) Frames() []Frame {
	return h.frames
}

// Last последний кадр (ok=false, если кадров не было)
func (h *Scripted) Last() (Frame, bool) {
	if len(h.frames) == 0 {
		return Frame{}, false
	}
	return h.frames[len(h.frames)-1], true
}

// Run проигрывает весь сценарий. Возвращает число выданных кадров.
func (h *Scripted) Run() int {
	total := 0
	for _, step := range h.steps {
		if step.TogglePossess && h.onToggle != nil {
			h.onToggle()
		}
		if step.SwitchTo != "" && h.onSwitch != nil {
			h.onSwitch(step.SwitchTo)
		}

		h.input = step.Input
		h.input.JumpPressed = false
		h.jumpArmed = step.Input.JumpPressed
		for i := 0; i < step.Frames; i++ {
			if h.onFrame != nil {
				h.onFrame(h.frameDur)
			}
			total++
		}
	}
	h.steps = nil
	return total
}
