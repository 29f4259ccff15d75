package terrain

import (
	"math"

	"github.com/annel0/spline-sim/internal/config"
)

// Reach возможности актёра, по которым проверяется проходимость рельефа.
// Считается прыжок с разбега: горизонтальная скорость постоянна, вертикаль - баллистика.
type Reach struct {
	RunSpeed    float64 // px/s
	JumpImpulse float64 // px/s вверх
	Gravity     float64 // px/s², y вниз
}

// ReachFor возможности актёра с конфигурацией cfg.
// Гравитация берётся сильнейшая из бэкендов: рельеф должен быть проходим в любом.
func ReachFor(cfg *config.Config) Reach {
	return Reach{
		RunSpeed:    cfg.Actor.SprintSpeed(),
		JumpImpulse: cfg.Actor.SprintJumpImpulse,
		Gravity:     cfg.Physics.MaxGravity(),
	}
}

// MaxRise высота вершины прыжка над точкой отрыва
func (r Reach) MaxRise() float64 {
	if r.Gravity <= 0 {
		return math.Inf(1)
	}
	return r.JumpImpulse * r.JumpImpulse / (2 * r.Gravity)
}

// CanReach достижима ли точка, смещённая на (dx, dy) от точки отрыва (dy < 0 - выше).
// Цель должна лежать не выше вершины, а время полёта до её высоты на нисходящей ветви
// должно хватить на dx при скорости разбега.
func (r Reach) CanReach(dx, dy float64) bool {
	if r.Gravity <= 0 {
		return true
	}
	if -dy > r.MaxRise() {
		return false
	}
	// y(t) = -v*t + g*t²/2 = dy, берём поздний корень
	a := r.Gravity / 2
	b := -r.JumpImpulse
	disc := b*b + 4*a*dy
	if disc < 0 {
		return false
	}
	t := (-b + math.Sqrt(disc)) / (2 * a)
	if t <= 0 {
		return false
	}
	return math.Abs(dx) <= r.RunSpeed*t
}
