package terrain

import (
	"errors"
	"math"
	"testing"

	"github.com/annel0/spline-sim/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testTerrainConfig() config.TerrainConfig {
	return config.Default().Terrain
}

func testReach() Reach {
	return ReachFor(config.Default())
}

func flatSource(y float64) HeightSource {
	return HeightFunc(func(float64) float64 { return y })
}

func TestGenerateChunkDeterministic(t *testing.T) {
	cfg := testTerrainConfig()
	a := NewGenerator(cfg, testReach())
	b := NewGenerator(cfg, testReach())

	for _, index := range []int{-3, 0, 1, 17} {
		ca := a.GenerateChunk(index)
		cb := b.GenerateChunk(index)
		require.Len(t, ca.Samples, 129, "Чанк %d должен содержать 129 отсчётов", index)
		assert.Equal(t, ca.Samples, cb.Samples, "Одинаковый сид и индекс должны давать одинаковые отсчёты (чанк %d)", index)
		assert.False(t, ca.Fallback, "Сплайн по умолчанию не должен требовать замены (чанк %d)", index)
	}

	cfg.Seed++
	other := NewGenerator(cfg, testReach()).GenerateChunk(0)
	assert.NotEqual(t, a.GenerateChunk(0).Samples, other.Samples, "Другой сид должен давать другой рельеф")
}

func TestGenerateChunkOrderIndependent(t *testing.T) {
	cfg := testTerrainConfig()
	forward := NewGenerator(cfg, testReach())
	backward := NewGenerator(cfg, testReach())

	want := forward.GenerateChunk(5)
	for i := 10; i >= 0; i-- {
		backward.GenerateChunk(i)
	}
	assert.Equal(t, want.Samples, backward.GenerateChunk(5).Samples, "Порядок генерации не должен влиять на результат")
}

func TestAdjacentChunksShareEndpoint(t *testing.T) {
	gen := NewGenerator(testTerrainConfig(), testReach())

	prev := gen.GenerateChunk(-4)
	for i := -3; i <= 6; i++ {
		next := gen.GenerateChunk(i)
		if prev.Last() != next.First() {
			t.Errorf("Разрыв между чанками %d и %d: %v != %v", i-1, i, prev.Last(), next.First())
		}
		if prev.MaxX() != next.MinX() {
			t.Errorf("Чанки %d и %d не стыкуются по X: %v != %v", i-1, i, prev.MaxX(), next.MinX())
		}
		prev = next
	}
}

func TestNonFiniteSamplesFallBack(t *testing.T) {
	cfg := testTerrainConfig()
	source := HeightFunc(func(x float64) float64 {
		if x > 100 && x < 200 {
			return math.NaN()
		}
		return 480 - x*0.01
	})
	gen := NewGeneratorWithSource(cfg, testReach(), source)

	c := gen.GenerateChunk(0)
	require.True(t, c.Fallback, "Чанк с NaN должен быть заменён")
	assert.True(t, errors.Is(c.Err, ErrInvalidGeometry), "Причина замены должна быть ErrInvalidGeometry")

	// Прямой отрезок между граничными высотами
	assert.Equal(t, 480.0, c.First())
	assert.InDelta(t, 480-2048*0.01, c.Last(), 1e-9)
	mid, ok := c.SurfaceAt(1024)
	require.True(t, ok)
	assert.InDelta(t, (c.First()+c.Last())/2, mid, 1e-9, "Замена должна быть линейной")

	// Непрерывность с соседом сохраняется
	next := gen.GenerateChunk(1)
	assert.False(t, next.Fallback)
	assert.Equal(t, c.Last(), next.First(), "Замена не должна рвать стык с соседом")
}

func TestTallStepFallsBack(t *testing.T) {
	cfg := testTerrainConfig()
	reach := testReach()
	source := HeightFunc(func(x float64) float64 {
		if x >= 1000 && x < 1100 {
			return 480 - reach.MaxRise() - 1
		}
		return 480
	})
	c := NewGeneratorWithSource(cfg, reach, source).GenerateChunk(0)
	assert.True(t, c.Fallback, "Ступенька выше вершины прыжка должна приводить к замене")
	assert.True(t, errors.Is(c.Err, ErrInvalidGeometry))
	for k, y := range c.Samples {
		if y != 480 {
			t.Errorf("Отсчёт %d: ожидалась высота 480, получено %v", k, y)
		}
	}
}

func TestReachableStepKept(t *testing.T) {
	cfg := testTerrainConfig()
	reach := testReach()
	// Выше прежнего ручного порога 96px, но ниже вершины прыжка с разбега
	rise := reach.MaxRise() - 10
	require.Greater(t, rise, 96.0)
	source := HeightFunc(func(x float64) float64 {
		if x >= 1000 && x < 1100 {
			return 480 - rise
		}
		return 480
	})
	c := NewGeneratorWithSource(cfg, reach, source).GenerateChunk(0)
	assert.False(t, c.Fallback, "Ступенька в пределах прыжка должна сохраняться: %v", c.Err)
	y, ok := c.SurfaceAt(1040)
	require.True(t, ok)
	assert.InDelta(t, 480-rise, y, 1e-9)
}

func TestWeakerJumpShrinksReach(t *testing.T) {
	cfg := testTerrainConfig()
	weak := testReach()
	weak.JumpImpulse = 400 // вершина 400²/3000 ≈ 53px
	source := HeightFunc(func(x float64) float64 {
		if x >= 1000 && x < 1100 {
			return 480 - 80
		}
		return 480
	})
	assert.False(t, NewGeneratorWithSource(cfg, testReach(), source).GenerateChunk(0).Fallback, "80px берётся прыжком с разбега")
	assert.True(t, NewGeneratorWithSource(cfg, weak, source).GenerateChunk(0).Fallback, "80px выше вершины слабого прыжка")
}

func TestReachFromCapabilities(t *testing.T) {
	cfg := config.Default()
	reach := ReachFor(cfg)

	assert.Equal(t, cfg.Actor.SprintSpeed(), reach.RunSpeed)
	assert.Equal(t, cfg.Actor.SprintJumpImpulse, reach.JumpImpulse)
	assert.InDelta(t, 750.0*750.0/(2*1500), reach.MaxRise(), 1e-9, "Вершина v²/2g")

	cfg.Physics.Matter.Gravity = 3000
	assert.Equal(t, 3000.0, ReachFor(cfg).Gravity, "Берётся сильнейшая гравитация из бэкендов")
}

func TestCanReach(t *testing.T) {
	r := Reach{RunSpeed: 350, JumpImpulse: 750, Gravity: 1500}
	apex := r.MaxRise()

	cases := []struct {
		name   string
		dx, dy float64
		want   bool
	}{
		{"ровно", 16, 0, true},
		{"спуск", 300, 200, true},
		{"вершина", 175, -apex, true}, // вершина через 0.5с, за это время 175px
		{"выше вершины", 16, -apex - 0.5, false},
		{"слишком далеко на той же высоте", 350*1.0 + 1, 0, false}, // полёт 1с
		{"в пределах полёта", 349, 0, true},
		{"дальний подъём", 220, -180, false}, // до высоты 180px на спуске 0.6с
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, r.CanReach(tc.dx, tc.dy), tc.name)
	}
}

func TestSegmentKinds(t *testing.T) {
	cfg := testTerrainConfig()
	source := HeightFunc(func(x float64) float64 {
		switch {
		case x >= 520:
			return 480 - 8 - 20
		case x >= 260:
			return 480 - 8
		default:
			return 480
		}
	})
	c := NewGeneratorWithSource(cfg, testReach(), source).GenerateChunk(0)
	segs := c.Segments()
	require.Len(t, segs, 128)

	walls := 0
	for k, seg := range segs {
		if seg.Kind == SegmentWall {
			walls++
			assert.Equal(t, 32, k, "Стена ожидается между отсчётами 32 и 33")
		}
	}
	assert.Equal(t, 1, walls, "Ступенька 8px проходима, 20px - стена")
	assert.Equal(t, SegmentRamp, segs[16].Kind, "Ступенька 8px должна быть рампой")
	assert.Equal(t, "wall", segs[32].Kind.String())
}

func TestSpawnPoint(t *testing.T) {
	cfg := testTerrainConfig()
	gen := NewGeneratorWithSource(cfg, testReach(), flatSource(480))

	spawn := SpawnPoint(gen)
	assert.Equal(t, cfg.SpawnX, spawn.X)
	assert.Equal(t, 480-cfg.SpawnClearance, spawn.Y, "Появление над поверхностью на SpawnClearance")

	seeded := NewGenerator(cfg, testReach())
	assert.Equal(t, SpawnPoint(seeded), SpawnPoint(NewGenerator(cfg, testReach())), "Точка появления детерминирована")
}
