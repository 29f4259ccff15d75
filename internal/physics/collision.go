package physics

import (
	"math"

	"github.com/annel0/spline-sim/internal/terrain"
	"github.com/annel0/spline-sim/internal/vec"
)

// BoxCollider прямоугольный коллайдер, позиция - центр прямоугольника
type BoxCollider struct {
	Width  float64 // px
	Height float64 // px
}

// NewBoxCollider создаёт новый коллайдер с указанными размерами
func NewBoxCollider(width, height float64) *BoxCollider {
	return &BoxCollider{
		Width:  width,
		Height: height,
	}
}

// HalfExtents половины ширины и высоты
func (bc *BoxCollider) HalfExtents() (float64, float64) {
	return bc.Width / 2, bc.Height / 2
}

// Bounds границы коллайдера в позиции pos: minX, minY, maxX, maxY
func (bc *BoxCollider) Bounds(pos vec.Vec2) (float64, float64, float64, float64) {
	hw, hh := bc.HalfExtents()
	return pos.X - hw, pos.Y - hh, pos.X + hw, pos.Y + hh
}

// Feet y нижней грани
func (bc *BoxCollider) Feet(pos vec.Vec2) float64 {
	return pos.Y + bc.Height/2
}

// IsPointInside проверяет, находится ли точка внутри коллайдера
func (bc *BoxCollider) IsPointInside(colliderPos, point vec.Vec2) bool {
	minX, minY, maxX, maxY := bc.Bounds(colliderPos)
	return point.X >= minX && point.X < maxX &&
		point.Y >= minY && point.Y < maxY
}

// CheckBoxCollision проверяет пересечение двух коллайдеров
func CheckBoxCollision(pos1 vec.Vec2, collider1 *BoxCollider, pos2 vec.Vec2, collider2 *BoxCollider) bool {
	aMinX, aMinY, aMaxX, aMaxY := collider1.Bounds(pos1)
	bMinX, bMinY, bMaxX, bMaxY := collider2.Bounds(pos2)
	return aMaxX > bMinX && aMinX < bMaxX &&
		aMaxY > bMinY && aMinY < bMaxY
}

// groundLevel самая высокая точка поверхности (минимальный y) под диапазоном [x0, x1]
func groundLevel(segs []terrain.Segment, x0, x1 float64) (float64, bool) {
	best := math.Inf(1)
	found := false
	for _, seg := range segs {
		l := math.Max(x0, seg.MinX())
		r := math.Min(x1, seg.MaxX())
		if l > r {
			continue
		}
		y := math.Min(seg.YAt(l), seg.YAt(r))
		if y < best {
			best = y
		}
		found = true
	}
	return best, found
}

// wallContact ближайшая в направлении dir граница стены на [from, from+dir*dist],
// если её верх выше уровня level. Стена работает как вертикальная грань у ближнего края,
// рампы не блокируют.
func wallContact(segs []terrain.Segment, from, dist float64, dir int, level float64) (float64, bool) {
	to := from + float64(dir)*dist
	l, r := math.Min(from, to), math.Max(from, to)

	best := 0.0
	found := false
	for _, seg := range segs {
		if seg.Kind != terrain.SegmentWall || seg.Top() >= level {
			continue
		}
		if seg.MaxX() < l || seg.MinX() > r {
			continue
		}
		x := seg.MinX()
		if dir < 0 {
			x = seg.MaxX()
		}
		if !found || (dir > 0 && x < best) || (dir < 0 && x > best) {
			best = x
			found = true
		}
	}
	return best, found
}
