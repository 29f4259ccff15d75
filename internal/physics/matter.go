package physics

import (
	"fmt"
	"math"

	"github.com/jakecoffman/cp"

	"github.com/annel0/spline-sim/internal/config"
	"github.com/annel0/spline-sim/internal/terrain"
	"github.com/annel0/spline-sim/internal/vec"
)

const (
	// contactNormal порог компоненты нормали для классификации контакта
	contactNormal = 0.5
	// wallRadius толщина вертикальной грани стены; больше хода за шаг на скорости спринта
	wallRadius = 8.0
)

type matterBody struct {
	body     *cp.Body
	shape    *cp.Shape
	collider *BoxCollider

	stopped   bool // скорость урезана упором в грань на этом шаге
	wallLeft  bool
	wallRight bool
}

// Matter твердотельный бэкенд поверх Chipmunk2D.
// Рельеф - статические отрезки, актёр - динамический прямоугольник.
type Matter struct {
	cfg     config.MatterConfig
	space   *cp.Space
	chunks  map[int][]*cp.Shape
	terrain map[int]*terrain.Chunk
	bodies  []*matterBody
}

// NewMatter создаёт бэкенд и загружает в него переданные чанки
func NewMatter(cfg *config.Config, chunks []*terrain.Chunk, spawn vec.Vec2) (*Matter, error) {
	mc := cfg.Physics.Matter
	if mc.Mass <= 0 {
		return nil, fmt.Errorf("matter body mass %v", mc.Mass)
	}
	space := cp.NewSpace()
	space.SetGravity(cp.Vector{X: 0, Y: mc.Gravity})
	if mc.Iterations > 0 {
		space.Iterations = mc.Iterations
	}

	m := &Matter{
		cfg:     mc,
		space:   space,
		chunks:  make(map[int][]*cp.Shape),
		terrain: make(map[int]*terrain.Chunk),
	}
	for _, c := range chunks {
		m.AddChunk(c)
	}
	return m, nil
}

// Kind реализует Backend
func (m *Matter) Kind() Kind { return KindMatter }

// AddChunk добавляет отрезки чанка как статические формы
func (m *Matter) AddChunk(c *terrain.Chunk) {
	if c == nil {
		return
	}
	if _, ok := m.chunks[c.Index]; ok {
		return
	}
	r := m.cfg.SegmentRadius
	shapes := make([]*cp.Shape, 0, len(c.Segments()))
	for _, seg := range c.Segments() {
		if seg.Kind == terrain.SegmentWall {
			shapes = append(shapes, m.addWall(seg)...)
			continue
		}
		// Радиус отрезка смещает его вниз, чтобы верх совпадал с поверхностью
		a := cp.Vector{X: seg.A.X, Y: seg.A.Y + r}
		b := cp.Vector{X: seg.B.X, Y: seg.B.Y + r}
		shapes = append(shapes, m.addStatic(a, b, r, 1))
	}
	m.chunks[c.Index] = shapes
	m.terrain[c.Index] = c
}

// addWall стена как в Arcade: вертикальная грань у нижнего края и ровный верх на высоте
// верхнего края. Грань толстая и уходит внутрь стены, верх грани вровень с площадкой.
func (m *Matter) addWall(seg terrain.Segment) []*cp.Shape {
	low, high := seg.A, seg.B
	if seg.A.Y < seg.B.Y {
		low, high = seg.B, seg.A
	}
	inside := 1.0
	if high.X < low.X {
		inside = -1
	}
	r := m.cfg.SegmentRadius
	rise := low.Y - high.Y
	wr := math.Max(r, math.Min(wallRadius, (rise-m.cfg.CornerRadius)/2))

	faceX := low.X + inside*wr
	top := cp.Vector{X: faceX, Y: high.Y + wr}
	bottom := cp.Vector{X: faceX, Y: math.Max(top.Y, low.Y-m.cfg.CornerRadius-wr)}
	face := m.addStatic(top, bottom, wr, 0)

	plateau := m.addStatic(
		cp.Vector{X: low.X + inside*r, Y: high.Y + r},
		cp.Vector{X: high.X, Y: high.Y + r},
		r, 1)
	return []*cp.Shape{face, plateau}
}

func (m *Matter) addStatic(a, b cp.Vector, radius, friction float64) *cp.Shape {
	shape := cp.NewSegment(m.space.StaticBody, a, b, radius)
	shape.SetFriction(friction)
	shape.SetElasticity(m.cfg.Elasticity)
	m.space.AddShape(shape)
	return shape
}

// segmentsNear отрезки загруженных чанков, пересекающие [x0, x1]
func (m *Matter) segmentsNear(x0, x1 float64) []terrain.Segment {
	var out []terrain.Segment
	for _, c := range m.terrain {
		if c.MaxX() < x0 || c.MinX() > x1 {
			continue
		}
		for _, seg := range c.Segments() {
			if seg.MaxX() >= x0 && seg.MinX() <= x1 {
				out = append(out, seg)
			}
		}
	}
	return out
}

// RemoveChunk удаляет отрезки чанка
func (m *Matter) RemoveChunk(index int) {
	shapes, ok := m.chunks[index]
	if !ok {
		return
	}
	for _, shape := range shapes {
		m.space.RemoveShape(shape)
	}
	delete(m.chunks, index)
	delete(m.terrain, index)
}

// AddActor добавляет динамическое тело актёра
func (m *Matter) AddActor(spec BodySpec) (BodyRef, error) {
	if spec.Width <= 0 || spec.Height <= 0 {
		return -1, fmt.Errorf("actor body %vx%v", spec.Width, spec.Height)
	}
	moment := cp.INFINITY
	if !m.cfg.FixedRotation {
		moment = cp.MomentForBox(m.cfg.Mass, spec.Width, spec.Height)
	}
	body := m.space.AddBody(cp.NewBody(m.cfg.Mass, moment))
	body.SetPosition(cp.Vector{X: spec.Position.X, Y: spec.Position.Y})

	// Скругление углов внутри габаритов, чтобы внешний размер был Width x Height
	r := math.Min(m.cfg.CornerRadius, math.Min(spec.Width, spec.Height)/4)
	shape := m.space.AddShape(cp.NewBox(body, spec.Width-2*r, spec.Height-2*r, r))
	shape.SetFriction(m.cfg.Friction)
	shape.SetElasticity(m.cfg.Elasticity)

	m.bodies = append(m.bodies, &matterBody{
		body:     body,
		shape:    shape,
		collider: NewBoxCollider(spec.Width, spec.Height),
	})
	return BodyRef(len(m.bodies) - 1), nil
}

func (m *Matter) body(ref BodyRef) *cp.Body {
	if mb := m.matterBody(ref); mb != nil {
		return mb.body
	}
	return nil
}

func (m *Matter) matterBody(ref BodyRef) *matterBody {
	if int(ref) < 0 || int(ref) >= len(m.bodies) {
		return nil
	}
	return m.bodies[ref]
}

// Step продвигает пространство на dt секунд.
// Горизонтальный ход в стену урезается до её грани заранее, как в Arcade:
// решатель не выталкивает тело из стены и не сдвигает его по вертикали.
func (m *Matter) Step(dt float64) error {
	for _, mb := range m.bodies {
		v := mb.body.Velocity()
		if v.Y > m.cfg.MaxFallSpeed {
			mb.body.SetVelocity(v.X, m.cfg.MaxFallSpeed)
		}
		m.stopAtWall(mb, dt)
	}

	m.space.Step(dt)

	for i, mb := range m.bodies {
		p := toVec(mb.body.Position())
		v := toVec(mb.body.Velocity())
		if !p.IsFinite() || !v.IsFinite() {
			return fmt.Errorf("%w: matter body %d at %v", ErrStepDiverged, i, p)
		}
		if mb.stopped {
			mb.body.SetVelocity(0, v.Y)
		}
		m.touchWalls(mb)
	}
	return nil
}

// stopAtWall урезает vx так, чтобы за шаг тело дошло до грани стены и не дальше
func (m *Matter) stopAtWall(mb *matterBody, dt float64) {
	mb.stopped = false
	v := mb.body.Velocity()
	dx := v.X * dt
	if dx == 0 {
		return
	}
	dir := DirOf(dx)
	pos := toVec(mb.body.Position())
	hw, _ := mb.collider.HalfExtents()
	lead := pos.X + float64(dir)*hw
	feet := mb.collider.Feet(pos)

	segs := m.segmentsNear(math.Min(lead, lead+dx), math.Max(lead, lead+dx))
	wallX, hit := wallContact(segs, lead, math.Abs(dx), dir, feet-wallTolerance)
	if !hit {
		return
	}
	vx := 0.0
	target := wallX - float64(dir)*(hw+wallSkin)
	if (dir > 0 && target > pos.X) || (dir < 0 && target < pos.X) {
		vx = (target - pos.X) / dt
	}
	mb.body.SetVelocity(vx, v.Y)
	mb.stopped = true
}

// touchWalls грани стен вплотную к телу с обеих сторон
func (m *Matter) touchWalls(mb *matterBody) {
	pos := toVec(mb.body.Position())
	minX, _, maxX, _ := mb.collider.Bounds(pos)
	level := mb.collider.Feet(pos) - wallTolerance
	segs := m.segmentsNear(minX-wallProbe, maxX+wallProbe)
	_, mb.wallLeft = wallContact(segs, minX, wallProbe, -1, level)
	_, mb.wallRight = wallContact(segs, maxX, wallProbe, 1, level)
}

// ApplyVelocity задаёт скорость тела
func (m *Matter) ApplyVelocity(ref BodyRef, vx, vy float64) {
	if body := m.body(ref); body != nil {
		body.SetVelocity(vx, vy)
	}
}

// QueryGrounded опора снизу и тело не взлетает
func (m *Matter) QueryGrounded(ref BodyRef) bool {
	body := m.body(ref)
	if body == nil {
		return false
	}
	if body.Velocity().Y < -m.cfg.GroundedRiseVY {
		return false
	}
	return m.QueryContacts(ref).Ground
}

// QueryPosition центр тела
func (m *Matter) QueryPosition(ref BodyRef) vec.Vec2 {
	if body := m.body(ref); body != nil {
		return toVec(body.Position())
	}
	return vec.Zero
}

// QueryVelocity скорость тела
func (m *Matter) QueryVelocity(ref BodyRef) vec.Vec2 {
	if body := m.body(ref); body != nil {
		return toVec(body.Velocity())
	}
	return vec.Zero
}

// QueryContacts классифицирует контакты по нормалям арбитров.
// Нормаль направлена от тела к опоре: вниз - земля, в сторону - стена.
// Упор в грань стены без перекрытия арбитра не даёт, поэтому грани учитываются отдельно.
func (m *Matter) QueryContacts(ref BodyRef) Contacts {
	mb := m.matterBody(ref)
	if mb == nil {
		return Contacts{}
	}
	c := Contacts{WallLeft: mb.wallLeft, WallRight: mb.wallRight}
	mb.body.EachArbiter(func(arb *cp.Arbiter) {
		n := arb.Normal()
		switch {
		case n.Y > contactNormal:
			c.Ground = true
		case n.X < -contactNormal:
			c.WallLeft = true
		case n.X > contactNormal:
			c.WallRight = true
		}
	})
	return c
}

// Reset телепортирует тело
func (m *Matter) Reset(ref BodyRef, pos, vel vec.Vec2) {
	mb := m.matterBody(ref)
	if mb == nil {
		return
	}
	mb.body.SetPosition(cp.Vector{X: pos.X, Y: pos.Y})
	mb.body.SetVelocity(vel.X, vel.Y)
	mb.body.SetAngle(0)
	mb.body.SetAngularVelocity(0)
	mb.stopped = false
	m.touchWalls(mb)
}

// Close удаляет все формы и тела из пространства
func (m *Matter) Close() {
	for index := range m.chunks {
		m.RemoveChunk(index)
	}
	for _, mb := range m.bodies {
		m.space.RemoveShape(mb.shape)
		m.space.RemoveBody(mb.body)
	}
	m.bodies = nil
}

func toVec(v cp.Vector) vec.Vec2 {
	return vec.Vec2{X: v.X, Y: v.Y}
}
