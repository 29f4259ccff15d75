package terrain

import (
	"math"

	"github.com/annel0/spline-sim/internal/vec"
)

// SegmentKind классифицирует отрезок поверхности по высоте ступеньки
type SegmentKind int

const (
	// SegmentRamp проходимый отрезок (подъём не выше лимита авто-ступеньки)
	SegmentRamp SegmentKind = iota
	// SegmentWall отрезок-стена: блокирует горизонтальное движение
	SegmentWall
)

func (k SegmentKind) String() string {
	if k == SegmentWall {
		return "wall"
	}
	return "ramp"
}

// Segment отрезок коллизии между двумя соседними отсчётами
type Segment struct {
	A, B vec.Vec2
	Kind SegmentKind
}

// Rise высота ступеньки отрезка (всегда >= 0)
func (s Segment) Rise() float64 {
	return math.Abs(s.B.Y - s.A.Y)
}

// MinX левая граница отрезка
func (s Segment) MinX() float64 { return math.Min(s.A.X, s.B.X) }

// MaxX правая граница отрезка
func (s Segment) MaxX() float64 { return math.Max(s.A.X, s.B.X) }

// Top верхняя (по экрану) точка отрезка
func (s Segment) Top() float64 { return math.Min(s.A.Y, s.B.Y) }

// YAt высота отрезка в точке x (линейная интерполяция, x зажимается в границы)
func (s Segment) YAt(x float64) float64 {
	dx := s.B.X - s.A.X
	if dx == 0 {
		return s.Top()
	}
	t := (x - s.A.X) / dx
	if t < 0 {
		t = 0
	} else if t > 1 {
		t = 1
	}
	return s.A.Y + (s.B.Y-s.A.Y)*t
}

// Chunk участок рельефа шириной ChunkWidth.
// После генерации неизменяем; первый отсчёт совпадает с последним отсчётом левого соседа.
type Chunk struct {
	Index    int       // Номер чанка вдоль оси X
	Origin   float64   // Мировой X первого отсчёта
	Spacing  float64   // Расстояние между отсчётами
	Samples  []float64 // Высоты поверхности (y вниз)
	Fallback bool      // Чанк заменён прямым отрезком
	Err      error     // Причина замены (nil для обычного чанка)

	segments []Segment
}

func newChunk(index int, origin, spacing float64, samples []float64, stepLimit float64) *Chunk {
	c := &Chunk{
		Index:   index,
		Origin:  origin,
		Spacing: spacing,
		Samples: samples,
	}
	c.segments = buildSegments(origin, spacing, samples, stepLimit)
	return c
}

func buildSegments(origin, spacing float64, samples []float64, stepLimit float64) []Segment {
	if len(samples) < 2 {
		return nil
	}
	segments := make([]Segment, 0, len(samples)-1)
	for k := 0; k < len(samples)-1; k++ {
		seg := Segment{
			A: vec.Vec2{X: origin + float64(k)*spacing, Y: samples[k]},
			B: vec.Vec2{X: origin + float64(k+1)*spacing, Y: samples[k+1]},
		}
		if seg.Rise() > stepLimit {
			seg.Kind = SegmentWall
		}
		segments = append(segments, seg)
	}
	return segments
}

// Segments отрезки коллизии чанка, упорядоченные по X
func (c *Chunk) Segments() []Segment {
	return c.segments
}

// First высота первого отсчёта
func (c *Chunk) First() float64 {
	return c.Samples[0]
}

// Last высота последнего отсчёта
func (c *Chunk) Last() float64 {
	return c.Samples[len(c.Samples)-1]
}

// MinX мировой X левой границы
func (c *Chunk) MinX() float64 {
	return c.Origin
}

// MaxX мировой X правой границы
func (c *Chunk) MaxX() float64 {
	return c.Origin + float64(len(c.Samples)-1)*c.Spacing
}

// Contains проверяет, покрывает ли чанк координату x
func (c *Chunk) Contains(x float64) bool {
	return x >= c.MinX() && x <= c.MaxX()
}

// SurfaceAt высота поверхности в точке x (интерполяция между отсчётами)
func (c *Chunk) SurfaceAt(x float64) (float64, bool) {
	if !c.Contains(x) {
		return 0, false
	}
	u := (x - c.Origin) / c.Spacing
	k := int(math.Floor(u))
	if k >= len(c.Samples)-1 {
		return c.Last(), true
	}
	if k < 0 {
		return c.First(), true
	}
	t := u - float64(k)
	return c.Samples[k] + (c.Samples[k+1]-c.Samples[k])*t, true
}

// Highest минимальный y (самая высокая точка поверхности) в диапазоне [x0, x1]
func (c *Chunk) Highest(x0, x1 float64) (float64, bool) {
	if x0 > x1 {
		x0, x1 = x1, x0
	}
	found := false
	best := math.Inf(1)
	consider := func(y float64) {
		if y < best {
			best = y
		}
		found = true
	}
	if y, ok := c.SurfaceAt(x0); ok {
		consider(y)
	}
	if y, ok := c.SurfaceAt(x1); ok {
		consider(y)
	}
	for k, y := range c.Samples {
		x := c.Origin + float64(k)*c.Spacing
		if x > x0 && x < x1 {
			consider(y)
		}
	}
	return best, found
}
