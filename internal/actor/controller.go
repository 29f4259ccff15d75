package actor

import (
	"fmt"
	"math"

	"github.com/annel0/spline-sim/internal/config"
	"github.com/annel0/spline-sim/internal/physics"
	"github.com/annel0/spline-sim/internal/vec"
)

// stepProbe насколько дальше грани тела ищется ступенька
const stepProbe = 4.0

// Terrain запросы к рельефу, нужные контроллеру
type Terrain interface {
	StepAhead(x float64, dir int, reach float64) (float64, bool)
}

// Action что сделал контроллер за тик (для метрик и логов)
type Action int

const (
	ActionNone Action = iota
	ActionJump
	ActionAirJump
	ActionWallJump
	ActionClimb
	ActionJumpRejected // прыжок без зарядов
)

func (a Action) String() string {
	switch a {
	case ActionJump:
		return "jump"
	case ActionAirJump:
		return "air_jump"
	case ActionWallJump:
		return "wall_jump"
	case ActionClimb:
		return "climb"
	case ActionJumpRejected:
		return "jump_rejected"
	default:
		return "none"
	}
}

// Controller переводит ввод в скорости бэкенда и синхронизирует состояние после шага
type Controller struct {
	cfg       config.ActorConfig
	stepLimit float64
	terrain   Terrain

	ref   physics.BodyRef
	state State

	lockout float64 // остаток блокировки ввода после отскока от стены
}

// NewController создаёт контроллер актёра
func NewController(cfg config.ActorConfig, stepLimit float64, terrain Terrain) *Controller {
	return &Controller{
		cfg:       cfg,
		stepLimit: stepLimit,
		terrain:   terrain,
		ref:       -1,
		state: State{
			Facing:    FacingRight,
			JumpCount: cfg.MaxJumps,
		},
	}
}

// Spawn создаёт тело в бэкенде и сбрасывает состояние (флаг владения сохраняется)
func (c *Controller) Spawn(b physics.Backend, pos vec.Vec2) error {
	ref, err := b.AddActor(physics.BodySpec{
		Position: pos,
		Width:    c.cfg.Width,
		Height:   c.cfg.Height,
	})
	if err != nil {
		return fmt.Errorf("spawn actor: %w", err)
	}
	c.ref = ref
	c.lockout = 0
	c.state = State{
		Position:  pos,
		Facing:    FacingRight,
		JumpCount: c.cfg.MaxJumps,
		Possessed: c.state.Possessed,
	}
	return nil
}

// Ref дескриптор тела в текущем бэкенде
func (c *Controller) Ref() physics.BodyRef {
	return c.ref
}

// State копия текущего состояния
func (c *Controller) State() State {
	return c.state
}

// SetPossessed меняет только флаг маршрутизации ввода
func (c *Controller) SetPossessed(possessed bool) {
	c.state.Possessed = possessed
}

// Checkpoint снимок контроллера для отката тика: состояние и остаток блокировки
type Checkpoint struct {
	State   State
	lockout float64
}

// Checkpoint снимает текущее состояние контроллера
func (c *Controller) Checkpoint() Checkpoint {
	return Checkpoint{State: c.state, lockout: c.lockout}
}

// Restore возвращает контроллер и тело к снимку
func (c *Controller) Restore(cp Checkpoint, b physics.Backend) {
	c.state = cp.State
	c.lockout = cp.lockout
	b.Reset(c.ref, cp.State.Position, cp.State.Velocity)
}

// Lockout остаток блокировки горизонтального ввода, с
func (c *Controller) Lockout() float64 {
	return c.lockout
}

func (c *Controller) ceiling(sprinting bool) float64 {
	if sprinting {
		return c.cfg.SprintSpeed()
	}
	return c.cfg.WalkSpeed
}

// Drive фаза до шага физики: запрашивает скорость по вводу.
// Вызывается только для захваченного актёра.
func (c *Controller) Drive(in Input, b physics.Backend, dt float64) Action {
	vel := b.QueryVelocity(c.ref)
	contacts := b.QueryContacts(c.ref)
	grounded := b.QueryGrounded(c.ref)
	action := ActionNone

	c.state.Sprinting = in.SprintHeld
	ceiling := c.ceiling(in.SprintHeld)

	dir := in.Direction()
	vx := float64(dir) * ceiling
	vy := vel.Y

	if c.lockout > 0 {
		// После отскока от стены горизонтальный ввод игнорируется
		c.lockout -= dt
		vx = clamp(vel.X, ceiling)
		dir = 0
	}

	pressingWall := dir != 0 && contacts.Wall(dir)
	if pressingWall {
		vx = 0
		if grounded && c.canStepUp(dir) {
			vx = float64(dir) * ceiling
			vy = -c.cfg.ClimbSpeed
			action = ActionClimb
		} else if !grounded && vy > c.cfg.WallSlideSpeed {
			vy = c.cfg.WallSlideSpeed
		}
	}

	if in.JumpPressed {
		switch {
		case pressingWall && !grounded:
			vx = clamp(-float64(dir)*c.cfg.WallJumpX, ceiling)
			vy = -c.cfg.WallJumpY
			c.lockout = c.cfg.WallJumpLockout
			action = ActionWallJump
		case c.state.JumpCount > 0:
			c.state.JumpCount--
			vy = -c.cfg.JumpImpulse
			if in.SprintHeld {
				vy = -c.cfg.SprintJumpImpulse
			}
			action = ActionJump
			if !grounded {
				action = ActionAirJump
			}
		default:
			action = ActionJumpRejected
		}
	}

	b.ApplyVelocity(c.ref, vx, vy)
	return action
}

// canStepUp ступенька впереди не выше лимита авто-подъёма
func (c *Controller) canStepUp(dir int) bool {
	if c.terrain == nil {
		return false
	}
	pos := c.state.Position
	rise, ok := c.terrain.StepAhead(pos.X, dir, c.cfg.Width/2+stepProbe)
	return ok && rise > 0 && rise <= c.stepLimit
}

// Idle фаза до шага для незахваченного актёра: собственного движения нет
func (c *Controller) Idle(b physics.Backend) {
	vel := b.QueryVelocity(c.ref)
	c.state.Sprinting = false
	c.lockout = 0
	b.ApplyVelocity(c.ref, 0, vel.Y)
}

// Sync фаза после шага: перечитывает бэкенд, восполняет прыжки, держит инварианты
func (c *Controller) Sync(b physics.Backend) {
	c.state.Position = b.QueryPosition(c.ref)
	vel := b.QueryVelocity(c.ref)
	contacts := b.QueryContacts(c.ref)
	c.state.Grounded = b.QueryGrounded(c.ref)
	c.state.WallLeft = contacts.WallLeft
	c.state.WallRight = contacts.WallRight

	if c.state.Grounded {
		c.state.JumpCount = c.cfg.MaxJumps
	}
	if c.state.JumpCount > c.cfg.MaxJumps {
		c.state.JumpCount = c.cfg.MaxJumps
	} else if c.state.JumpCount < 0 {
		c.state.JumpCount = 0
	}

	ceiling := c.ceiling(c.state.Sprinting)
	clamped := false
	if math.Abs(vel.X) > ceiling {
		vel.X = clamp(vel.X, ceiling)
		clamped = true
	}
	// Скорость в стену гасится, vy остаётся как есть
	if contacts.Wall(physics.DirOf(vel.X)) {
		vel.X = 0
		clamped = true
	}
	if clamped {
		b.ApplyVelocity(c.ref, vel.X, vel.Y)
	}
	c.state.Velocity = vel

	if math.Abs(vel.X) > c.cfg.AnimationThreshold {
		if vel.X < 0 {
			c.state.Facing = FacingLeft
		} else {
			c.state.Facing = FacingRight
		}
	}
}

func clamp(v, limit float64) float64 {
	return math.Max(-limit, math.Min(limit, v))
}
