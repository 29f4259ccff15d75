package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate(), "Конфигурация по умолчанию должна быть валидной")
	assert.Equal(t, 2, cfg.Actor.MaxJumps, "Двойной прыжок по умолчанию")
	assert.InDelta(t, 350.0, cfg.Actor.SprintSpeed(), 1e-9, "Скорость спринта = walk * factor")
}

func TestLoadOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sim.yaml")
	data := []byte(`
terrain:
  seed: 42
  step_limit: 8
actor:
  sprint_factor: 2
physics:
  default: matter
`)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, int64(42), cfg.Terrain.Seed, "Seed из файла")
	assert.Equal(t, 8.0, cfg.Terrain.StepLimit, "StepLimit из файла")
	assert.Equal(t, "matter", cfg.Physics.Default, "Бэкенд из файла")
	assert.Equal(t, 2048.0, cfg.Terrain.ChunkWidth, "Незаданные поля остаются дефолтными")
	assert.InDelta(t, 400.0, cfg.Actor.SprintSpeed(), 1e-9)
}

func TestLoadWithoutPathUsesDefaults(t *testing.T) {
	t.Setenv("SIM_CONFIG", "")
	t.Setenv("SIM_SEED", "99")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, int64(99), cfg.Terrain.Seed, "SIM_SEED перекрывает seed")
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := map[string]func(c *Config){
		"step mode":      func(c *Config) { c.Simulation.StepMode = "warp" },
		"chunk multiple": func(c *Config) { c.Terrain.ChunkWidth = 2050 },
		"step limit":     func(c *Config) { c.Terrain.StepLimit = -1 },
		"jump reach":     func(c *Config) { c.Actor.SprintJumpImpulse = 100 },
		"gravity":        func(c *Config) { c.Physics.Matter.Gravity = 0 },
		"sprint factor":  func(c *Config) { c.Actor.SprintFactor = 0.5 },
		"backend":        func(c *Config) { c.Physics.Default = "box2d" },
		"matter mass":    func(c *Config) { c.Physics.Matter.Mass = 0 },
		"sample ratio":   func(c *Config) { c.Telemetry.SampleRatio = 1.5 },
	}
	for name, mutate := range cases {
		cfg := Default()
		mutate(cfg)
		err := cfg.Validate()
		assert.Error(t, err, "Ожидалась ошибка валидации: %s", name)
		assert.True(t, errors.Is(err, ErrInvalidConfig), "Ошибка должна оборачивать ErrInvalidConfig: %s", name)
	}
}

func TestMetricsAddrEnvFallback(t *testing.T) {
	t.Setenv("SIM_METRICS_ADDR", ":9100")
	m := MetricsConfig{}
	assert.Equal(t, ":9100", m.GetAddr())

	m.Addr = ":2112"
	assert.Equal(t, ":2112", m.GetAddr(), "Конфиг имеет приоритет над env")
}
