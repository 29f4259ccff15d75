package physics

import (
	"fmt"
	"math"
	"sort"

	"github.com/solarlune/resolv"

	"github.com/annel0/spline-sim/internal/config"
	"github.com/annel0/spline-sim/internal/terrain"
	"github.com/annel0/spline-sim/internal/vec"
)

const (
	tagTerrain = "terrain"
	tagRamp    = "ramp"
	tagWall    = "wall"
	tagProbe   = "probe"

	// wallTolerance стена должна подняться над ступнями хотя бы на столько
	wallTolerance = 1e-3
	// wallSkin зазор между гранью тела и стеной после упора
	wallSkin = 1e-3
	// wallProbe дальность проверки контакта со стеной
	wallProbe = 0.5
)

type arcadeChunk struct {
	chunk   *terrain.Chunk
	objects []*resolv.Object
}

type arcadeBody struct {
	collider *BoxCollider
	probe    *resolv.Object
	pos      vec.Vec2
	vel      vec.Vec2
	contacts Contacts
}

// Arcade дискретный кинематический бэкенд.
// Рельеф хранится в пространстве resolv как объекты-отрезки; пространство
// ограничено, поэтому его центр переносится за актёром.
type Arcade struct {
	cfg       config.ArcadeConfig
	stepLimit float64
	depth     float64

	space   *resolv.Space
	originX float64 // мировая точка в центре пространства
	originY float64

	chunks   map[int]*arcadeChunk
	segments map[*resolv.Object]terrain.Segment
	bodies   []*arcadeBody
}

// NewArcade создаёт бэкенд и загружает в него переданные чанки
func NewArcade(cfg *config.Config, chunks []*terrain.Chunk, spawn vec.Vec2) (*Arcade, error) {
	ac := cfg.Physics.Arcade
	if ac.SpaceWidth <= 0 || ac.SpaceHeight <= 0 || ac.CellSize <= 0 {
		return nil, fmt.Errorf("arcade space %dx%d cell %d", ac.SpaceWidth, ac.SpaceHeight, ac.CellSize)
	}
	a := &Arcade{
		cfg:       ac,
		stepLimit: cfg.Terrain.StepLimit,
		depth:     cfg.Terrain.Depth,
		space:     resolv.NewSpace(ac.SpaceWidth, ac.SpaceHeight, ac.CellSize, ac.CellSize),
		originX:   spawn.X,
		originY:   spawn.Y,
		chunks:    make(map[int]*arcadeChunk),
		segments:  make(map[*resolv.Object]terrain.Segment),
	}
	for _, c := range chunks {
		a.AddChunk(c)
	}
	return a, nil
}

// Kind реализует Backend
func (a *Arcade) Kind() Kind { return KindArcade }

func (a *Arcade) toSpace(x, y float64) (float64, float64) {
	return x - a.originX + float64(a.cfg.SpaceWidth)/2, y - a.originY + float64(a.cfg.SpaceHeight)/2
}

func (a *Arcade) segmentObject(seg terrain.Segment) *resolv.Object {
	x, y := a.toSpace(seg.MinX(), seg.Top())
	w := math.Max(seg.MaxX()-seg.MinX(), 1)
	h := math.Abs(seg.B.Y-seg.A.Y) + a.depth
	tags := []string{tagTerrain, tagRamp}
	if seg.Kind == terrain.SegmentWall {
		tags = []string{tagTerrain, tagWall}
	}
	return resolv.NewObject(x, y, w, h, tags...)
}

// AddChunk добавляет отрезки чанка в пространство (повторное добавление игнорируется)
func (a *Arcade) AddChunk(c *terrain.Chunk) {
	if c == nil {
		return
	}
	if _, ok := a.chunks[c.Index]; ok {
		return
	}
	ac := &arcadeChunk{chunk: c}
	for _, seg := range c.Segments() {
		obj := a.segmentObject(seg)
		a.space.Add(obj)
		a.segments[obj] = seg
		ac.objects = append(ac.objects, obj)
	}
	a.chunks[c.Index] = ac
}

// RemoveChunk удаляет отрезки чанка
func (a *Arcade) RemoveChunk(index int) {
	ac, ok := a.chunks[index]
	if !ok {
		return
	}
	for _, obj := range ac.objects {
		a.space.Remove(obj)
		delete(a.segments, obj)
	}
	delete(a.chunks, index)
}

// recenter переносит центр пространства в точку x, y и перестраивает объекты
func (a *Arcade) recenter(x, y float64) {
	for _, ac := range a.chunks {
		for _, obj := range ac.objects {
			a.space.Remove(obj)
			delete(a.segments, obj)
		}
	}
	for _, b := range a.bodies {
		a.space.Remove(b.probe)
	}

	a.originX, a.originY = x, y

	for _, ac := range a.chunks {
		ac.objects = ac.objects[:0]
		for _, seg := range ac.chunk.Segments() {
			obj := a.segmentObject(seg)
			a.space.Add(obj)
			a.segments[obj] = seg
			ac.objects = append(ac.objects, obj)
		}
	}
	for _, b := range a.bodies {
		a.space.Add(b.probe)
	}
}

func (a *Arcade) keepCentered(pos vec.Vec2) {
	if math.Abs(pos.X-a.originX) > float64(a.cfg.SpaceWidth)/4 ||
		math.Abs(pos.Y-a.originY) > float64(a.cfg.SpaceHeight)/4 {
		a.recenter(pos.X, pos.Y)
	}
}

// query отрезки рельефа, чьи объекты делят ячейки с прямоугольником (мировые координаты)
func (a *Arcade) query(b *arcadeBody, x0, y0, x1, y1 float64) []terrain.Segment {
	sx, sy := a.toSpace(x0, y0)
	b.probe.X, b.probe.Y = sx, sy
	b.probe.W, b.probe.H = math.Max(x1-x0, 1), math.Max(y1-y0, 1)
	b.probe.Update()

	check := b.probe.Check(0, 0, tagTerrain)
	if check == nil {
		return nil
	}
	objects := check.ObjectsByTags(tagTerrain)
	segs := make([]terrain.Segment, 0, len(objects))
	seen := make(map[*resolv.Object]struct{}, len(objects))
	for _, obj := range objects {
		if _, dup := seen[obj]; dup {
			continue
		}
		seen[obj] = struct{}{}
		if seg, ok := a.segments[obj]; ok {
			segs = append(segs, seg)
		}
	}
	sort.Slice(segs, func(i, j int) bool { return segs[i].A.X < segs[j].A.X })
	return segs
}

// AddActor добавляет тело актёра
func (a *Arcade) AddActor(spec BodySpec) (BodyRef, error) {
	if spec.Width <= 0 || spec.Height <= 0 {
		return -1, fmt.Errorf("actor body %vx%v", spec.Width, spec.Height)
	}
	sx, sy := a.toSpace(spec.Position.X-spec.Width/2, spec.Position.Y-spec.Height/2)
	b := &arcadeBody{
		collider: NewBoxCollider(spec.Width, spec.Height),
		probe:    resolv.NewObject(sx, sy, spec.Width, spec.Height, tagProbe),
		pos:      spec.Position,
	}
	a.space.Add(b.probe)
	a.bodies = append(a.bodies, b)
	return BodyRef(len(a.bodies) - 1), nil
}

func (a *Arcade) body(ref BodyRef) *arcadeBody {
	if int(ref) < 0 || int(ref) >= len(a.bodies) {
		return nil
	}
	return a.bodies[ref]
}

// Step продвигает все тела на dt секунд
func (a *Arcade) Step(dt float64) error {
	for i, b := range a.bodies {
		a.keepCentered(b.pos)
		a.stepBody(b, dt)
		if !b.pos.IsFinite() || !b.vel.IsFinite() {
			return fmt.Errorf("%w: arcade body %d at %v", ErrStepDiverged, i, b.pos)
		}
	}
	return nil
}

func (a *Arcade) stepBody(b *arcadeBody, dt float64) {
	if !b.pos.IsFinite() || !b.vel.IsFinite() {
		return
	}
	hw, hh := b.collider.HalfExtents()
	wasGrounded := b.contacts.Ground
	contacts := Contacts{}

	// Гравитация
	b.vel.Y += a.cfg.Gravity * dt
	if b.vel.Y > a.cfg.MaxFallSpeed {
		b.vel.Y = a.cfg.MaxFallSpeed
	}

	// Горизонталь: стены останавливают, vy не трогаем
	if dx := b.vel.X * dt; dx != 0 {
		dir := 1
		if dx < 0 {
			dir = -1
		}
		lead := b.pos.X + float64(dir)*hw
		feet := b.collider.Feet(b.pos)
		segs := a.query(b, math.Min(lead, lead+dx), b.pos.Y-hh, math.Max(lead, lead+dx), feet)
		if wallX, hit := wallContact(segs, lead, math.Abs(dx), dir, feet-wallTolerance); hit {
			target := wallX - float64(dir)*(hw+wallSkin)
			if (dir > 0 && target > b.pos.X) || (dir < 0 && target < b.pos.X) {
				b.pos.X = target
			}
			b.vel.X = 0
			if dir > 0 {
				contacts.WallRight = true
			} else {
				contacts.WallLeft = true
			}
		} else {
			b.pos.X += dx
		}
	}

	// Вертикаль: прилипание к поверхности рамп
	b.pos.Y += b.vel.Y * dt
	feet := b.collider.Feet(b.pos)
	x0, x1 := b.pos.X-hw, b.pos.X+hw
	segs := a.query(b, x0-wallProbe, b.pos.Y-hh, x1+wallProbe, feet+a.cfg.SnapDistance)
	if ground, ok := groundLevel(segs, x0, x1); ok {
		switch {
		case feet >= ground:
			b.pos.Y = ground - hh
			if b.vel.Y >= 0 {
				b.vel.Y = 0
				contacts.Ground = true
			}
		case wasGrounded && b.vel.Y >= 0 && ground-feet <= a.cfg.SnapDistance:
			// Спуск по склону без отрыва
			b.pos.Y = ground - hh
			b.vel.Y = 0
			contacts.Ground = true
		}
	}

	// Контакты со стенами с обеих сторон
	feet = b.collider.Feet(b.pos)
	if _, hit := wallContact(segs, x0, wallProbe, -1, feet-wallTolerance); hit {
		contacts.WallLeft = true
	}
	if _, hit := wallContact(segs, x1, wallProbe, 1, feet-wallTolerance); hit {
		contacts.WallRight = true
	}
	// После вертикального хода стена могла оказаться вплотную: скорость в неё гасится
	if contacts.Wall(DirOf(b.vel.X)) {
		b.vel.X = 0
	}

	b.contacts = contacts
}

// ApplyVelocity задаёт скорость тела
func (a *Arcade) ApplyVelocity(ref BodyRef, vx, vy float64) {
	if b := a.body(ref); b != nil {
		b.vel = vec.Vec2{X: vx, Y: vy}
	}
}

// QueryGrounded стоит ли тело на поверхности после последнего шага
func (a *Arcade) QueryGrounded(ref BodyRef) bool {
	if b := a.body(ref); b != nil {
		return b.contacts.Ground
	}
	return false
}

// QueryPosition центр тела
func (a *Arcade) QueryPosition(ref BodyRef) vec.Vec2 {
	if b := a.body(ref); b != nil {
		return b.pos
	}
	return vec.Zero
}

// QueryVelocity скорость тела
func (a *Arcade) QueryVelocity(ref BodyRef) vec.Vec2 {
	if b := a.body(ref); b != nil {
		return b.vel
	}
	return vec.Zero
}

// QueryContacts контакты тела
func (a *Arcade) QueryContacts(ref BodyRef) Contacts {
	if b := a.body(ref); b != nil {
		return b.contacts
	}
	return Contacts{}
}

// Reset телепортирует тело и сбрасывает контакты
func (a *Arcade) Reset(ref BodyRef, pos, vel vec.Vec2) {
	if b := a.body(ref); b != nil {
		b.pos = pos
		b.vel = vel
		b.contacts = Contacts{}
	}
}

// Close освобождает пространство
func (a *Arcade) Close() {
	for index := range a.chunks {
		a.RemoveChunk(index)
	}
	for _, b := range a.bodies {
		a.space.Remove(b.probe)
	}
	a.bodies = nil
}
