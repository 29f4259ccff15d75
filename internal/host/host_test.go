package host

import (
	"context"
	"testing"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/spline-sim/internal/actor"
	"github.com/annel0/spline-sim/internal/animation"
	"github.com/annel0/spline-sim/internal/config"
	"github.com/annel0/spline-sim/internal/physics"
	"github.com/annel0/spline-sim/internal/terrain"
	"github.com/annel0/spline-sim/internal/vec"
)

var (
	_ Host         = (*Scripted)(nil)
	_ Host         = (*Terminal)(nil)
	_ BackendAware = (*Scripted)(nil)
	_ BackendAware = (*Terminal)(nil)
)

func TestScriptedJumpIsEdge(t *testing.T) {
	h := NewScripted(time.Second/60, Step{
		Frames: 3,
		Input:  actor.Input{Right: true, JumpPressed: true},
	})

	var inputs []actor.Input
	h.OnFrame(func(time.Duration) {
		inputs = append(inputs, h.ReadInput())
	})

	assert.Equal(t, 3, h.Run())
	require.Len(t, inputs, 3)
	assert.True(t, inputs[0].JumpPressed, "Прыжок в первом кадре отрезка")
	assert.False(t, inputs[1].JumpPressed, "Прыжок не повторяется")
	assert.False(t, inputs[2].JumpPressed)
	for i, in := range inputs {
		assert.True(t, in.Right, "Направление удерживается весь отрезок (кадр %d)", i)
	}
}

func TestScriptedControlEvents(t *testing.T) {
	h := NewScripted(time.Second/60,
		Step{TogglePossess: true, Frames: 1},
		Step{SwitchTo: physics.KindMatter, Frames: 2},
	)

	toggles := 0
	var switched []physics.Kind
	frames := 0
	h.OnPossessToggle(func() { toggles++ })
	h.OnBackendSwitch(func(k physics.Kind) { switched = append(switched, k) })
	h.OnFrame(func(d time.Duration) {
		frames++
		assert.Equal(t, time.Second/60, d, "Длительность кадра из конструктора")
	})

	h.Run()
	assert.Equal(t, 1, toggles)
	assert.Equal(t, []physics.Kind{physics.KindMatter}, switched)
	assert.Equal(t, 3, frames)

	assert.Equal(t, 0, h.Run(), "Сценарий проигрывается один раз")
	h.Append(Step{Frames: 4})
	assert.Equal(t, 4, h.Run(), "Дописанные отрезки проигрываются")
}

func TestScriptedRecordsFrames(t *testing.T) {
	h := NewScripted(time.Second / 60)
	_, ok := h.Last()
	assert.False(t, ok, "Кадров ещё нет")

	h.Render(actor.State{JumpCount: 2}, animation.Walk, make([]*terrain.Chunk, 3))
	last, ok := h.Last()
	require.True(t, ok)
	assert.Equal(t, animation.Walk, last.Animation)
	assert.Equal(t, 3, last.Chunks)
	assert.Len(t, h.Frames(), 1)
}

func newTestTerminal(t *testing.T) (*Terminal, tcell.SimulationScreen, *time.Time) {
	t.Helper()
	screen := tcell.NewSimulationScreen("UTF-8")
	require.NoError(t, screen.Init())
	screen.SetSize(80, 24)
	t.Cleanup(screen.Fini)

	clock := time.Unix(0, 0)
	term := NewTerminal(screen)
	term.now = func() time.Time { return clock }
	return term, screen, &clock
}

func TestTerminalHeldKeysExpire(t *testing.T) {
	term, _, clock := newTestTerminal(t)

	assert.True(t, term.HandleEvent(tcell.NewEventKey(tcell.KeyRight, 0, tcell.ModShift)))
	in := term.ReadInput()
	assert.True(t, in.Right, "Стрелка вправо удерживается")
	assert.True(t, in.SprintHeld, "Shift включает спринт")

	*clock = clock.Add(defaultHold / 2)
	assert.True(t, term.ReadInput().Right, "Внутри окна удержания клавиша нажата")

	*clock = clock.Add(defaultHold)
	assert.True(t, term.ReadInput().Empty(), "После окна удержания клавиша отпущена")
}

func TestTerminalRuneControls(t *testing.T) {
	term, _, _ := newTestTerminal(t)

	term.HandleEvent(tcell.NewEventKey(tcell.KeyRune, 'a', tcell.ModNone))
	term.HandleEvent(tcell.NewEventKey(tcell.KeyRune, ' ', tcell.ModNone))
	in := term.ReadInput()
	assert.True(t, in.Left)
	assert.False(t, in.SprintHeld)
	assert.True(t, in.JumpPressed, "Пробел - прыжок")
	assert.False(t, term.ReadInput().JumpPressed, "Прыжок отдаётся один раз")

	term.HandleEvent(tcell.NewEventKey(tcell.KeyRune, 'D', tcell.ModNone))
	in = term.ReadInput()
	assert.True(t, in.Right)
	assert.True(t, in.SprintHeld, "Заглавная буква - спринт")
}

func TestTerminalToggleSwitchQuit(t *testing.T) {
	term, _, _ := newTestTerminal(t)

	toggled := 0
	var requested []physics.Kind
	term.OnPossessToggle(func() { toggled++ })
	term.OnBackendSwitch(func(k physics.Kind) { requested = append(requested, k) })

	assert.True(t, term.HandleEvent(tcell.NewEventKey(tcell.KeyRune, 'p', tcell.ModNone)))
	assert.Equal(t, 1, toggled)

	term.SetBackend(physics.KindArcade)
	term.HandleEvent(tcell.NewEventKey(tcell.KeyRune, 'b', tcell.ModNone))
	term.SetBackend(physics.KindMatter)
	term.HandleEvent(tcell.NewEventKey(tcell.KeyRune, 'b', tcell.ModNone))
	assert.Equal(t, []physics.Kind{physics.KindMatter, physics.KindArcade}, requested, "b переключает на другой бэкенд")

	assert.False(t, term.HandleEvent(tcell.NewEventKey(tcell.KeyRune, 'q', tcell.ModNone)), "q - выход")
	assert.False(t, term.HandleEvent(tcell.NewEventKey(tcell.KeyEscape, 0, tcell.ModNone)), "Esc - выход")
}

func TestTerminalRenderDrawsActorAndTerrain(t *testing.T) {
	term, screen, _ := newTestTerminal(t)
	term.SetBackend(physics.KindArcade)

	cfg := config.Default().Terrain
	flat := terrain.NewGeneratorWithSource(cfg, terrain.ReachFor(config.Default()), terrain.HeightFunc(func(float64) float64 { return 480 }))
	chunk := flat.GenerateChunk(0)

	s := actor.State{Position: vec.Vec2{X: 400, Y: 480 - 16*3}, Facing: actor.FacingLeft, Possessed: true}
	term.Render(s, animation.Walk, []*terrain.Chunk{chunk})

	r, _, _, _ := screen.GetContent(40, 12)
	assert.Equal(t, '<', r, "Актёр в центре, идёт влево")

	r, _, _, _ = screen.GetContent(40, 15)
	assert.Equal(t, '▀', r, "Поверхность на три строки ниже актёра")
	r, _, _, _ = screen.GetContent(40, 20)
	assert.Equal(t, '█', r, "Под поверхностью грунт")

	r, _, _, _ = screen.GetContent(1, 0)
	assert.Equal(t, 'a', r, "Строка состояния начинается с имени бэкенда")
}

func TestTerminalEventPumpStopsAfterRun(t *testing.T) {
	term, screen, _ := newTestTerminal(t)
	require.NoError(t, screen.PostEvent(tcell.NewEventKey(tcell.KeyRune, 'x', tcell.ModNone)))

	events := make(chan tcell.Event) // читателя нет, как после выхода из Run
	done := make(chan struct{})
	close(done)
	finished := make(chan struct{})
	go func() {
		term.pollEvents(events, done)
		close(finished)
	}()

	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("Чтение событий зависло на отправке после выхода из Run")
	}
	_, open := <-events
	assert.False(t, open, "Канал событий закрыт")
}

func TestTerminalRunStopsOnCancel(t *testing.T) {
	term, screen, _ := newTestTerminal(t)
	term.frame = time.Millisecond

	frames := 0
	ctx, cancel := context.WithCancel(context.Background())
	term.OnFrame(func(time.Duration) {
		frames++
		if frames == 3 {
			cancel()
		}
	})
	require.NoError(t, screen.PostEvent(tcell.NewEventKey(tcell.KeyRune, 'd', tcell.ModNone)))

	assert.ErrorIs(t, term.Run(ctx), context.Canceled)
	assert.GreaterOrEqual(t, frames, 3)
}
