package terrain

import (
	"errors"
	"fmt"
	"math"

	"github.com/annel0/spline-sim/internal/config"
	"github.com/annel0/spline-sim/internal/logging"
	"github.com/annel0/spline-sim/internal/vec"
)

// ErrInvalidGeometry генерация дала непригодную поверхность
var ErrInvalidGeometry = errors.New("invalid terrain geometry")

// HeightSource функция высоты поверхности (y вниз) по мировому X
type HeightSource interface {
	HeightAt(x float64) float64
}

// HeightFunc адаптер функции к HeightSource
type HeightFunc func(x float64) float64

// HeightAt реализует HeightSource
func (f HeightFunc) HeightAt(x float64) float64 { return f(x) }

// splineHeight сплайн Катмулла-Рома через контрольные точки плюс шум Перлина
type splineHeight struct {
	baseline       float64
	controlSpacing float64
	controls       *controlPoints
	noise          *Noise
}

func (h *splineHeight) HeightAt(x float64) float64 {
	return h.baseline + h.controls.height(x, h.controlSpacing) + h.noise.At(x)
}

// Generator генерирует чанки рельефа детерминированно по (seed, index)
type Generator struct {
	Seed   int64
	cfg    config.TerrainConfig
	reach  Reach
	source HeightSource
	perN   int // отрезков на чанк
}

// NewGenerator создаёт генератор со сплайновой функцией высоты.
// reach задаёт, какие перепады между отсчётами актёр способен преодолеть.
func NewGenerator(cfg config.TerrainConfig, reach Reach) *Generator {
	source := &splineHeight{
		baseline:       cfg.BaselineY,
		controlSpacing: cfg.ControlSpacing,
		controls:       newControlPoints(cfg.Seed, cfg.SplineAmplitude),
		noise:          NewNoise(cfg.Seed, cfg.NoiseOctaves, cfg.NoiseScale, cfg.NoiseAmplitude),
	}
	return NewGeneratorWithSource(cfg, reach, source)
}

// NewGeneratorWithSource создаёт генератор с заданной функцией высоты
func NewGeneratorWithSource(cfg config.TerrainConfig, reach Reach, source HeightSource) *Generator {
	return &Generator{
		Seed:   cfg.Seed,
		cfg:    cfg,
		reach:  reach,
		source: source,
		perN:   int(math.Round(cfg.ChunkWidth / cfg.SampleSpacing)),
	}
}

// Config параметры рельефа генератора
func (g *Generator) Config() config.TerrainConfig {
	return g.cfg
}

// Reach возможности актёра, с которыми проверяется рельеф
func (g *Generator) Reach() Reach {
	return g.reach
}

// SamplesPerChunk количество отсчётов в чанке (включая оба края)
func (g *Generator) SamplesPerChunk() int {
	return g.perN + 1
}

// IndexAt номер чанка, содержащего мировой X
func (g *Generator) IndexAt(x float64) int {
	return int(math.Floor(x / g.cfg.ChunkWidth))
}

// sampleX мировой X отсчёта по глобальному номеру.
// Общий край соседних чанков имеет один глобальный номер, поэтому совпадает побитово.
func (g *Generator) sampleX(global int) float64 {
	return float64(global) * g.cfg.SampleSpacing
}

// boundaryHeight высота на границе чанка; нечисловые значения заменяются базовой линией
func (g *Generator) boundaryHeight(global int) float64 {
	h := g.source.HeightAt(g.sampleX(global))
	if math.IsNaN(h) || math.IsInf(h, 0) {
		return g.cfg.BaselineY
	}
	return h
}

// GenerateChunk генерирует чанк целиком
func (g *Generator) GenerateChunk(index int) *Chunk {
	job := g.newJob(index)
	job.advance(0)
	return job.chunk
}

// validate проверяет отсчёты на конечность и проходимость.
// Рельеф обходится в обе стороны, поэтому спуск проверяется как подъём в обратном направлении.
func (g *Generator) validate(samples []float64) error {
	for k, y := range samples {
		if math.IsNaN(y) || math.IsInf(y, 0) {
			return fmt.Errorf("%w: sample %d is not finite", ErrInvalidGeometry, k)
		}
		if k == 0 {
			continue
		}
		rise := math.Abs(y - samples[k-1])
		if !g.reach.CanReach(g.cfg.SampleSpacing, -rise) {
			return fmt.Errorf("%w: step %.1f px at sample %d is out of jump reach (%.1f)", ErrInvalidGeometry, rise, k, g.reach.MaxRise())
		}
	}
	return nil
}

// fallback прямой отрезок между граничными высотами чанка
func (g *Generator) fallback(index int) []float64 {
	first := index * g.perN
	y0 := g.boundaryHeight(first)
	y1 := g.boundaryHeight(first + g.perN)
	samples := make([]float64, g.perN+1)
	for k := range samples {
		t := float64(k) / float64(g.perN)
		samples[k] = y0 + (y1-y0)*t
	}
	samples[0] = y0
	samples[g.perN] = y1
	return samples
}

// genJob генерация одного чанка, разбитая на порции отсчётов
type genJob struct {
	gen     *Generator
	index   int
	samples []float64
	next    int
	chunk   *Chunk
}

func (g *Generator) newJob(index int) *genJob {
	return &genJob{
		gen:     g,
		index:   index,
		samples: make([]float64, 0, g.perN+1),
	}
}

func (j *genJob) done() bool {
	return j.chunk != nil
}

// advance вычисляет не более budget отсчётов (0 - без ограничения).
// Возвращает количество потраченных отсчётов.
func (j *genJob) advance(budget int) int {
	if j.done() {
		return 0
	}
	g := j.gen
	first := j.index * g.perN
	used := 0
	for j.next <= g.perN {
		if budget > 0 && used >= budget {
			return used
		}
		j.samples = append(j.samples, g.source.HeightAt(g.sampleX(first+j.next)))
		j.next++
		used++
	}
	j.finish()
	return used
}

func (j *genJob) finish() {
	g := j.gen
	origin := g.sampleX(j.index * g.perN)
	if err := g.validate(j.samples); err != nil {
		j.chunk = newChunk(j.index, origin, g.cfg.SampleSpacing, g.fallback(j.index), g.cfg.StepLimit)
		j.chunk.Fallback = true
		j.chunk.Err = fmt.Errorf("chunk %d: %w", j.index, err)
		logging.Warn("Чанк %d заменён прямым отрезком: %v", j.index, err)
	} else {
		j.chunk = newChunk(j.index, origin, g.cfg.SampleSpacing, j.samples, g.cfg.StepLimit)
	}
	logging.LogChunkGenerated(j.index, len(j.chunk.Samples), j.chunk.Fallback)
}

// SpawnPoint каноническая точка появления: SpawnX над поверхностью на SpawnClearance.
// Зависит только от генератора, поэтому одинакова для обоих бэкендов.
func SpawnPoint(gen *Generator) vec.Vec2 {
	cfg := gen.Config()
	chunk := gen.GenerateChunk(gen.IndexAt(cfg.SpawnX))
	surface, _ := chunk.SurfaceAt(cfg.SpawnX)
	return vec.Vec2{X: cfg.SpawnX, Y: surface - cfg.SpawnClearance}
}
