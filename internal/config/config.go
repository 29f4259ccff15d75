package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config корневая структура конфигурации симуляции.
// Все значения имеют дефолты (Default), YAML перекрывает только заданные поля.
type Config struct {
	Simulation SimulationConfig `yaml:"simulation"`
	Terrain    TerrainConfig    `yaml:"terrain"`
	Actor      ActorConfig      `yaml:"actor"`
	Physics    PhysicsConfig    `yaml:"physics"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// SimulationConfig параметры цикла симуляции
type SimulationConfig struct {
	StepMode         string  `yaml:"step_mode"`           // fixed | variable
	FixedStep        float64 `yaml:"fixed_step_seconds"`  // шаг фиксированного режима
	MaxDelta         float64 `yaml:"max_delta_seconds"`   // ограничение измеренного шага
	MaxStepsPerFrame int     `yaml:"max_steps_per_frame"` // защита от «спирали смерти»
	EventBuffer      int     `yaml:"event_buffer"`
}

// TerrainConfig параметры генерации рельефа
type TerrainConfig struct {
	Seed            int64   `yaml:"seed"`
	ChunkWidth      float64 `yaml:"chunk_width"`      // px
	SampleSpacing   float64 `yaml:"sample_spacing"`   // px между отсчётами высоты
	BaselineY       float64 `yaml:"baseline_y"`       // средняя высота поверхности
	ControlSpacing  float64 `yaml:"control_spacing"`  // px между контрольными точками сплайна
	SplineAmplitude float64 `yaml:"spline_amplitude"` // размах контрольных точек
	NoiseScale      float64 `yaml:"noise_scale"`      // px на единицу шума
	NoiseAmplitude  float64 `yaml:"noise_amplitude"`  // px
	NoiseOctaves    int32   `yaml:"noise_octaves"`    // октавы go-perlin
	StepLimit       float64 `yaml:"step_limit"`       // максимальная высота авто-ступеньки
	Depth           float64 `yaml:"depth"`            // толщина тела рельефа под поверхностью
	LookaheadMargin float64 `yaml:"lookahead_margin"` // px впереди актёра
	TrailingMargin  float64 `yaml:"trailing_margin"`  // px позади актёра
	SamplesPerTick  int     `yaml:"samples_per_tick"` // 0 - генерировать целиком за тик
	SpawnX          float64 `yaml:"spawn_x"`          // канонический X появления
	SpawnClearance  float64 `yaml:"spawn_clearance"`  // высота появления над поверхностью
}

// ActorConfig параметры управления актёром
type ActorConfig struct {
	Width              float64 `yaml:"width"`
	Height             float64 `yaml:"height"`
	WalkSpeed          float64 `yaml:"walk_speed"`
	SprintFactor       float64 `yaml:"sprint_factor"`
	JumpImpulse        float64 `yaml:"jump_impulse"`
	SprintJumpImpulse  float64 `yaml:"sprint_jump_impulse"`
	MaxJumps           int     `yaml:"max_jumps"`
	ClimbSpeed         float64 `yaml:"climb_speed"`
	WallSlideSpeed     float64 `yaml:"wall_slide_speed"`
	WallJumpX          float64 `yaml:"wall_jump_x"`
	WallJumpY          float64 `yaml:"wall_jump_y"`
	WallJumpLockout    float64 `yaml:"wall_jump_lockout_seconds"`
	AnimationThreshold float64 `yaml:"animation_threshold"`
}

// SprintSpeed скорость спринта
func (a ActorConfig) SprintSpeed() float64 {
	return a.WalkSpeed * a.SprintFactor
}

// PhysicsConfig выбор и настройки физических бэкендов
type PhysicsConfig struct {
	Default string       `yaml:"default"` // arcade | matter
	Arcade  ArcadeConfig `yaml:"arcade"`
	Matter  MatterConfig `yaml:"matter"`
}

// MaxGravity сильнейшая гравитация среди бэкендов
func (p PhysicsConfig) MaxGravity() float64 {
	return math.Max(p.Arcade.Gravity, p.Matter.Gravity)
}

// ArcadeConfig дискретная кинематика поверх resolv
type ArcadeConfig struct {
	Gravity      float64 `yaml:"gravity"`
	MaxFallSpeed float64 `yaml:"max_fall_speed"`
	SpaceWidth   int     `yaml:"space_width"`  // px, мир центрирован в пространстве
	SpaceHeight  int     `yaml:"space_height"` // px
	CellSize     int     `yaml:"cell_size"`
	SnapDistance float64 `yaml:"snap_distance"` // прилипание к спуску
}

// MatterConfig твердотельная симуляция поверх Chipmunk2D
type MatterConfig struct {
	Gravity        float64 `yaml:"gravity"`
	MaxFallSpeed   float64 `yaml:"max_fall_speed"`
	Mass           float64 `yaml:"mass"`
	Friction       float64 `yaml:"friction"`
	Elasticity     float64 `yaml:"elasticity"` // restitution
	FixedRotation  bool    `yaml:"fixed_rotation"`
	Iterations     uint    `yaml:"iterations"`
	SegmentRadius  float64 `yaml:"segment_radius"`
	CornerRadius   float64 `yaml:"corner_radius"`
	GroundedRiseVY float64 `yaml:"grounded_rise_vy"` // vy быстрее вверх - не «на земле»
}

// MetricsConfig Prometheus эндпоинт
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// GetAddr возвращает адрес с приоритетом config -> env -> "" (выключено)
func (m *MetricsConfig) GetAddr() string {
	if m.Addr != "" {
		return m.Addr
	}
	return os.Getenv("SIM_METRICS_ADDR")
}

// TelemetryConfig OTLP трассировка
type TelemetryConfig struct {
	Enabled     bool    `yaml:"enabled"`
	ServiceName string  `yaml:"service_name"`
	Endpoint    string  `yaml:"endpoint"`     // host:port коллектора, пусто = localhost:4318
	SampleRatio float64 `yaml:"sample_ratio"` // доля трассируемых корневых спанов
}

// LoggingConfig уровни логирования
type LoggingConfig struct {
	Console string `yaml:"console"`
	File    string `yaml:"file"`
	Dir     string `yaml:"dir"`
}

// Default возвращает конфигурацию по умолчанию.
// Скорости в px/s, ускорения в px/s², оба бэкенда используют одни и те же единицы.
func Default() *Config {
	return &Config{
		Simulation: SimulationConfig{
			StepMode:         "fixed",
			FixedStep:        1.0 / 60.0,
			MaxDelta:         0.1,
			MaxStepsPerFrame: 5,
			EventBuffer:      256,
		},
		Terrain: TerrainConfig{
			Seed:            1337,
			ChunkWidth:      2048,
			SampleSpacing:   16,
			BaselineY:       480,
			ControlSpacing:  256,
			SplineAmplitude: 64,
			NoiseScale:      150,
			NoiseAmplitude:  16,
			NoiseOctaves:    3,
			StepLimit:       12,
			Depth:           512,
			LookaheadMargin: 512,
			TrailingMargin:  1024,
			SamplesPerTick:  0,
			SpawnX:          96,
			SpawnClearance:  96,
		},
		Actor: ActorConfig{
			Width:              26,
			Height:             32,
			WalkSpeed:          200,
			SprintFactor:       1.75,
			JumpImpulse:        650,
			SprintJumpImpulse:  750,
			MaxJumps:           2,
			ClimbSpeed:         240,
			WallSlideSpeed:     100,
			WallJumpX:          350,
			WallJumpY:          700,
			WallJumpLockout:    0.15,
			AnimationThreshold: 6,
		},
		Physics: PhysicsConfig{
			Default: "arcade",
			Arcade: ArcadeConfig{
				Gravity:      1500,
				MaxFallSpeed: 900,
				SpaceWidth:   1 << 16,
				SpaceHeight:  1 << 12,
				CellSize:     32,
				SnapDistance: 12,
			},
			Matter: MatterConfig{
				Gravity:        1500,
				MaxFallSpeed:   900,
				Mass:           1,
				Friction:       0.01,
				Elasticity:     0,
				FixedRotation:  true,
				Iterations:     10,
				SegmentRadius:  1,
				CornerRadius:   2,
				GroundedRiseVY: 200,
			},
		},
		Telemetry: TelemetryConfig{
			ServiceName: "spline-sim",
			SampleRatio: 1,
		},
		Logging: LoggingConfig{
			Console: "info",
			File:    "debug",
			Dir:     "logs",
		},
	}
}

// Load читает YAML файл конфигурации поверх дефолтов.
// Если path == "", пытается прочитать из ENV SIM_CONFIG, иначе возвращает Default().
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv("SIM_CONFIG")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("чтение конфигурации %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("разбор конфигурации %s: %w", path, err)
		}
	}

	if seed := os.Getenv("SIM_SEED"); seed != "" {
		if v, err := strconv.ParseInt(seed, 10, 64); err == nil {
			cfg.Terrain.Seed = v
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ErrInvalidConfig базовая ошибка валидации
var ErrInvalidConfig = errors.New("invalid config")

// Validate проверяет согласованность значений
func (c *Config) Validate() error {
	invalid := func(format string, args ...interface{}) error {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
	}

	switch c.Simulation.StepMode {
	case "fixed", "variable":
	default:
		return invalid("simulation.step_mode %q (ожидается fixed|variable)", c.Simulation.StepMode)
	}
	if c.Simulation.FixedStep <= 0 {
		return invalid("simulation.fixed_step_seconds должен быть > 0")
	}
	if c.Simulation.MaxStepsPerFrame < 1 {
		return invalid("simulation.max_steps_per_frame должен быть >= 1")
	}

	t := c.Terrain
	if t.SampleSpacing <= 0 || t.ChunkWidth <= 0 {
		return invalid("terrain.chunk_width и sample_spacing должны быть > 0")
	}
	if r := t.ChunkWidth / t.SampleSpacing; r != float64(int(r)) {
		return invalid("terrain.chunk_width (%.1f) должен делиться на sample_spacing (%.1f)", t.ChunkWidth, t.SampleSpacing)
	}
	if t.ControlSpacing <= 0 || t.NoiseScale <= 0 {
		return invalid("terrain.control_spacing и noise_scale должны быть > 0")
	}
	if t.StepLimit < 0 {
		return invalid("terrain.step_limit не может быть отрицательным")
	}
	if t.SamplesPerTick < 0 {
		return invalid("terrain.samples_per_tick не может быть отрицательным")
	}

	a := c.Actor
	if a.Width <= 0 || a.Height <= 0 {
		return invalid("actor.width/height должны быть > 0")
	}
	if a.WalkSpeed <= 0 || a.SprintFactor < 1 {
		return invalid("actor.walk_speed > 0 и sprint_factor >= 1")
	}
	if a.MaxJumps < 0 {
		return invalid("actor.max_jumps не может быть отрицательным")
	}
	if c.Physics.Arcade.Gravity <= 0 || c.Physics.Matter.Gravity <= 0 {
		return invalid("physics: gravity должна быть > 0")
	}
	// Прыжок с разбега должен брать хотя бы авто-ступеньку, иначе любой рельеф непроходим
	if apex := a.SprintJumpImpulse * a.SprintJumpImpulse / (2 * c.Physics.MaxGravity()); apex <= t.StepLimit {
		return invalid("actor.sprint_jump_impulse: вершина прыжка %.1f px не выше step_limit %.1f", apex, t.StepLimit)
	}

	switch c.Physics.Default {
	case "arcade", "matter":
	default:
		return invalid("physics.default %q (ожидается arcade|matter)", c.Physics.Default)
	}
	if c.Physics.Arcade.CellSize <= 0 || c.Physics.Arcade.SpaceWidth <= 0 || c.Physics.Arcade.SpaceHeight <= 0 {
		return invalid("physics.arcade: размеры пространства должны быть > 0")
	}
	if c.Physics.Matter.Mass <= 0 || c.Physics.Matter.Iterations == 0 {
		return invalid("physics.matter: mass > 0 и iterations > 0")
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		return invalid("telemetry.sample_ratio должен быть в [0, 1]")
	}
	return nil
}
