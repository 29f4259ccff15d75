package terrain

import (
	"github.com/aquilax/go-perlin"
)

// Noise одномерный шум Перлина для мелкой детализации рельефа.
// Экземпляр привязан к сиду, глобального состояния нет.
type Noise struct {
	perlin *perlin.Perlin
	scale  float64
	amp    float64
}

// NewNoise создаёт генератор шума с указанным сидом
func NewNoise(seed int64, octaves int32, scale, amplitude float64) *Noise {
	alpha := 2.0 // Сглаживание шума
	beta := 2.0  // Частота шума
	if octaves <= 0 {
		octaves = 1
	}
	return &Noise{
		perlin: perlin.NewPerlin(alpha, beta, octaves, seed),
		scale:  scale,
		amp:    amplitude,
	}
}

// At возвращает смещение высоты в px для мировой координаты x
func (n *Noise) At(x float64) float64 {
	if n == nil || n.amp == 0 {
		return 0
	}
	return n.perlin.Noise1D(x/n.scale) * n.amp
}
