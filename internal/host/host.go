// Package host граница между ядром симуляции и окружением:
// кадровый таймер, ввод, отрисовка и управляющие кнопки.
package host

import (
	"time"

	"github.com/annel0/spline-sim/internal/actor"
	"github.com/annel0/spline-sim/internal/animation"
	"github.com/annel0/spline-sim/internal/physics"
	"github.com/annel0/spline-sim/internal/terrain"
)

// Host окружение, в котором крутится симуляция.
// Все обратные вызовы выполняются в одном потоке кадров.
type Host interface {
	// OnFrame регистрирует обработчик кадра; elapsed - время с прошлого кадра
	OnFrame(fn func(elapsed time.Duration))
	// ReadInput снимок ввода на один тик
	ReadInput() actor.Input
	// Render отрисовка кадра
	Render(s actor.State, a animation.State, chunks []*terrain.Chunk)
	// OnPossessToggle кнопка захвата/освобождения актёра
	OnPossessToggle(fn func())
	// OnBackendSwitch кнопка смены физического бэкенда
	OnBackendSwitch(fn func(kind physics.Kind))
}

// BackendAware необязательное расширение: хост узнаёт об активном бэкенде
type BackendAware interface {
	SetBackend(kind physics.Kind)
}
