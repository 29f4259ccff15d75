package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/annel0/spline-sim/internal/actor"
	"github.com/annel0/spline-sim/internal/config"
	"github.com/annel0/spline-sim/internal/host"
	"github.com/annel0/spline-sim/internal/logging"
	"github.com/annel0/spline-sim/internal/metrics"
	"github.com/annel0/spline-sim/internal/observability"
	"github.com/annel0/spline-sim/internal/physics"
	"github.com/annel0/spline-sim/internal/simulation"
)

func main() {
	configPath := flag.String("config", "", "путь к YAML конфигурации (или SIM_CONFIG)")
	backend := flag.String("backend", "", "физический бэкенд: arcade | matter")
	headless := flag.Bool("headless", false, "проиграть сценарий без терминала")
	ticks := flag.Int("ticks", 600, "длина свободного участка сценария в тиках (headless)")
	seed := flag.Int64("seed", 0, "seed рельефа (0 - из конфигурации)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("❌ Ошибка загрузки конфигурации: %v", err)
	}
	if *backend != "" {
		cfg.Physics.Default = *backend
	}
	if *seed != 0 {
		cfg.Terrain.Seed = *seed
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("❌ %v", err)
	}

	if err := initLogging(cfg, *headless); err != nil {
		log.Fatalf("❌ Ошибка инициализации логирования: %v", err)
	}
	defer logging.CloseDefaultLogger()
	defer logging.GetLoggerManager().CloseAll()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Telemetry.Enabled {
		shutdown, err := observability.InitTelemetry(ctx, cfg.Telemetry)
		if err != nil {
			logging.Error("Трассировка выключена: %v", err)
		} else {
			defer func() {
				sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := shutdown(sctx); err != nil {
					logging.Error("Ошибка остановки трассировки: %v", err)
				}
			}()
		}
	}

	m, err := metrics.New(nil)
	if err != nil {
		log.Fatalf("❌ Ошибка регистрации метрик: %v", err)
	}

	sim, err := simulation.New(ctx, cfg, simulation.WithMetrics(m))
	if err != nil {
		logging.Error("❌ Ошибка запуска симуляции: %v", err)
		log.Fatalf("❌ Ошибка запуска симуляции: %v", err)
	}
	defer sim.Close()

	stats := metrics.NewRuntimeStats()
	if addr := cfg.Metrics.GetAddr(); addr != "" {
		go func() {
			err := metrics.Serve(ctx, metrics.ServerConfig{
				Addr:    addr,
				Metrics: m,
				Runtime: stats,
				State:   func() interface{} { return sim.Snapshot() },
			})
			if err != nil {
				logging.Error("debug api: %v", err)
			}
		}()
	}
	if *headless {
		runHeadless(sim, cfg, *ticks)
	} else if err := runTerminal(ctx, sim); err != nil && !errors.Is(err, context.Canceled) {
		logging.Error("❌ Терминал: %v", err)
	}

	s := sim.State()
	logging.Info("🏁 Итог: backend=%s тиков=%d позиция=(%.1f,%.1f) прыжки=%d анимация=%s чанков=%d",
		sim.Kind(), sim.TickCount(), s.Position.X, s.Position.Y, s.JumpCount, sim.Animation(),
		sim.Streamer().Resident())
	logging.Info("📊 Процесс: %v", stats.Snapshot())
	logging.Info("👋 Симулятор остановлен")
}

// initLogging файл логов всегда, консоль только в headless (терминал занят экраном)
func initLogging(cfg *config.Config, headless bool) error {
	logging.Dir = cfg.Logging.Dir
	if err := logging.InitDefaultLogger("simulator"); err != nil {
		return err
	}
	console, err := logging.ParseLevel(cfg.Logging.Console)
	if err != nil {
		return err
	}
	file, err := logging.ParseLevel(cfg.Logging.File)
	if err != nil {
		return err
	}
	if !headless {
		console = logging.OFF
	}
	manager := logging.GetLoggerManager()
	manager.Register("simulator", logging.DefaultLogger())
	if cfg.Metrics.GetAddr() != "" {
		if _, err := manager.Open("http"); err != nil {
			return err
		}
	}
	manager.SetLevels(console, file)
	return nil
}

func runTerminal(ctx context.Context, sim *simulation.Simulation) error {
	term, err := host.OpenTerminal()
	if err != nil {
		return err
	}
	defer term.Close()

	sim.Attach(term)
	sim.Possess()
	return term.Run(ctx)
}

// runHeadless прогулка, прыжки, смена бэкенда и свободный участок длиной ticks
func runHeadless(sim *simulation.Simulation, cfg *config.Config, ticks int) {
	frame := time.Duration(cfg.Simulation.FixedStep * float64(time.Second))
	other := sim.Kind().Other()

	script := host.NewScripted(frame,
		host.Step{TogglePossess: true, Frames: 90},
		host.Step{Frames: 120, Input: actor.Input{Right: true}},
		host.Step{Frames: 20, Input: actor.Input{Right: true, SprintHeld: true, JumpPressed: true}},
		host.Step{Frames: 40, Input: actor.Input{Right: true, SprintHeld: true, JumpPressed: true}},
		host.Step{Frames: 60, Input: actor.Input{Right: true}},
		host.Step{SwitchTo: other, Frames: 90},
		host.Step{Frames: ticks, Input: actor.Input{Right: true, SprintHeld: true}},
		host.Step{TogglePossess: true, Frames: 60, Input: actor.Input{Left: true}},
	)
	sim.Attach(script)

	frames := script.Run()
	logging.Info("🎬 Сценарий: %d кадров, бэкенд %s -> %s", frames, physics.Kind(cfg.Physics.Default), script.Backend())
	if last, ok := script.Last(); ok {
		logging.Info("   последний кадр: анимация=%s чанков=%d захвачен=%v",
			last.Animation, last.Chunks, last.State.Possessed)
	}
	if os.Getenv("SIM_HEADLESS_TRACE") != "" {
		for i, f := range script.Frames() {
			logging.Trace("frame %d: pos=(%.2f,%.2f) anim=%s", i, f.State.Position.X, f.State.Position.Y, f.Animation)
		}
	}
}
