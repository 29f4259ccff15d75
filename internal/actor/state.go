package actor

import (
	"github.com/annel0/spline-sim/internal/vec"
)

// Facing направление взгляда актёра
type Facing int

const (
	FacingRight Facing = 1
	FacingLeft  Facing = -1
)

func (f Facing) String() string {
	if f == FacingLeft {
		return "left"
	}
	return "right"
}

// Input снимок управления за один тик. Потребляется ровно один раз.
type Input struct {
	Left        bool
	Right       bool
	JumpPressed bool // фронт нажатия
	SprintHeld  bool
}

// Direction -1 влево, +1 вправо, 0 если нажаты обе или ни одна
func (in Input) Direction() int {
	switch {
	case in.Left && !in.Right:
		return -1
	case in.Right && !in.Left:
		return 1
	default:
		return 0
	}
}

// Empty нет ни одного нажатия
func (in Input) Empty() bool {
	return !in.Left && !in.Right && !in.JumpPressed && !in.SprintHeld
}

// State состояние актёра. Изменяется только контроллером.
type State struct {
	Position  vec.Vec2 // центр коллайдера
	Velocity  vec.Vec2
	Facing    Facing
	Grounded  bool
	JumpCount int // оставшиеся прыжки
	Sprinting bool
	Possessed bool
	WallLeft  bool
	WallRight bool
}

// Airborne актёр не касается земли
func (s State) Airborne() bool {
	return !s.Grounded
}
