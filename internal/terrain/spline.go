package terrain

import (
	"math"
	"math/rand"
)

// catmullRom интерполирует между p1 и p2 (t в [0,1]).
// Кривая C1-непрерывна: наклон на стыках отрезков совпадает.
func catmullRom(p0, p1, p2, p3, t float64) float64 {
	t2 := t * t
	t3 := t2 * t
	return 0.5 * (2*p1 +
		(-p0+p2)*t +
		(2*p0-5*p1+4*p2-p3)*t2 +
		(-p0+3*p1-3*p2+p3)*t3)
}

// controlPoints детерминированные контрольные точки сплайна.
// Значение точки i зависит только от сида и i.
type controlPoints struct {
	seed      int64
	amplitude float64
	cache     map[int]float64
}

const maxCachedControls = 4096

func newControlPoints(seed int64, amplitude float64) *controlPoints {
	return &controlPoints{
		seed:      seed,
		amplitude: amplitude,
		cache:     make(map[int]float64),
	}
}

// at возвращает смещение контрольной точки i относительно базовой линии
func (c *controlPoints) at(i int) float64 {
	if v, ok := c.cache[i]; ok {
		return v
	}
	if c.amplitude == 0 {
		return 0
	}
	// Локальный генератор на точку, как и для чанков: сид + индекс*31
	rng := rand.New(rand.NewSource(c.seed + int64(i)*31))
	v := (rng.Float64()*2 - 1) * c.amplitude

	if len(c.cache) >= maxCachedControls {
		c.cache = make(map[int]float64)
	}
	c.cache[i] = v
	return v
}

// height значение сплайна в точке x при шаге контрольных точек spacing
func (c *controlPoints) height(x, spacing float64) float64 {
	u := x / spacing
	i := int(math.Floor(u))
	t := u - float64(i)
	return catmullRom(c.at(i-1), c.at(i), c.at(i+1), c.at(i+2), t)
}
