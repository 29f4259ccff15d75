package host

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/gdamore/tcell/v2"

	"github.com/annel0/spline-sim/internal/actor"
	"github.com/annel0/spline-sim/internal/animation"
	"github.com/annel0/spline-sim/internal/logging"
	"github.com/annel0/spline-sim/internal/physics"
	"github.com/annel0/spline-sim/internal/terrain"
)

const (
	// Терминал не присылает отпускание клавиш: нажатие считается удержанным это время
	defaultHold = 150 * time.Millisecond
	// ~60 FPS
	defaultFrame = 16 * time.Millisecond

	cellWidth  = 8.0  // px на колонку
	cellHeight = 16.0 // px на строку
)

type control int

const (
	ctrlLeft control = iota
	ctrlRight
	ctrlSprint
	ctrlCount
)

var (
	styleGround  = tcell.StyleDefault.Foreground(tcell.ColorGreen)
	styleSurface = tcell.StyleDefault.Foreground(tcell.ColorOlive)
	styleWall    = tcell.StyleDefault.Foreground(tcell.ColorRed)
	styleActor   = tcell.StyleDefault.Foreground(tcell.ColorWhite).Bold(true)
	styleIdle    = tcell.StyleDefault.Foreground(tcell.ColorGray)
	styleStatus  = tcell.StyleDefault.Foreground(tcell.ColorYellow)
)

// Terminal интерактивный хост поверх tcell
type Terminal struct {
	screen tcell.Screen
	hold   time.Duration
	frame  time.Duration
	now    func() time.Time

	held        [ctrlCount]time.Time
	jumpPending bool
	backend     physics.Kind

	onFrame  func(time.Duration)
	onToggle func()
	onSwitch func(physics.Kind)
}

// OpenTerminal создаёт и инициализирует экран терминала
func OpenTerminal() (*Terminal, error) {
	screen, err := tcell.NewScreen()
	if err != nil {
		return nil, fmt.Errorf("tcell screen: %w", err)
	}
	if err := screen.Init(); err != nil {
		return nil, fmt.Errorf("tcell init: %w", err)
	}
	return NewTerminal(screen), nil
}

// NewTerminal хост поверх уже инициализированного экрана
func NewTerminal(screen tcell.Screen) *Terminal {
	return &Terminal{
		screen: screen,
		hold:   defaultHold,
		frame:  defaultFrame,
		now:    time.Now,
	}
}

func (t *Terminal) OnFrame(fn func(elapsed time.Duration)) { t.onFrame = fn }
func (t *Terminal) OnPossessToggle(fn func())              { t.onToggle = fn }
func (t *Terminal) OnBackendSwitch(fn func(physics.Kind))  { t.onSwitch = fn }

// SetBackend активный бэкенд (для строки состояния и кнопки переключения)
func (t *Terminal) SetBackend(kind physics.Kind) { t.backend = kind }

// Close восстанавливает терминал
func (t *Terminal) Close() {
	t.screen.Fini()
}

// ReadInput снимок удерживаемых клавиш; прыжок - фронт, отдаётся один раз
func (t *Terminal) ReadInput() actor.Input {
	now := t.now()
	in := actor.Input{
		Left:        t.isHeld(ctrlLeft, now),
		Right:       t.isHeld(ctrlRight, now),
		SprintHeld:  t.isHeld(ctrlSprint, now),
		JumpPressed: t.jumpPending,
	}
	t.jumpPending = false
	return in
}

func (t *Terminal) isHeld(c control, now time.Time) bool {
	at := t.held[c]
	return !at.IsZero() && now.Sub(at) < t.hold
}

func (t *Terminal) press(c control) {
	t.held[c] = t.now()
}

// Run цикл кадров до отмены ctx или выхода по q/Esc
func (t *Terminal) Run(ctx context.Context) error {
	ticker := time.NewTicker(t.frame)
	defer ticker.Stop()

	eventChan := make(chan tcell.Event, 100)
	done := make(chan struct{})
	defer close(done)
	go t.pollEvents(eventChan, done)

	last := t.now()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-eventChan:
			if !ok || !t.HandleEvent(ev) {
				return nil
			}

		case <-ticker.C:
			now := t.now()
			elapsed := now.Sub(last)
			last = now
			if t.onFrame != nil {
				t.onFrame(elapsed)
			}
		}
	}
}

// pollEvents перекачивает события экрана в канал, пока экран открыт и Run не вернулся
func (t *Terminal) pollEvents(events chan<- tcell.Event, done <-chan struct{}) {
	defer close(events)
	for {
		ev := t.screen.PollEvent()
		if ev == nil {
			// экран закрыт
			return
		}
		select {
		case events <- ev:
		case <-done:
			return
		}
	}
}

// HandleEvent обрабатывает событие терминала; false - запрошен выход
func (t *Terminal) HandleEvent(ev tcell.Event) bool {
	switch ev := ev.(type) {
	case *tcell.EventKey:
		shift := ev.Modifiers()&tcell.ModShift != 0
		switch ev.Key() {
		case tcell.KeyEscape, tcell.KeyCtrlC:
			return false
		case tcell.KeyLeft:
			t.press(ctrlLeft)
		case tcell.KeyRight:
			t.press(ctrlRight)
		case tcell.KeyUp:
			t.jumpPending = true
		case tcell.KeyRune:
			return t.handleRune(ev.Rune())
		}
		if shift {
			t.press(ctrlSprint)
		}

	case *tcell.EventResize:
		t.screen.Sync()
	}
	return true
}

func (t *Terminal) handleRune(r rune) bool {
	switch r {
	case 'q', 'Q':
		return false
	case 'a':
		t.press(ctrlLeft)
	case 'A':
		t.press(ctrlLeft)
		t.press(ctrlSprint)
	case 'd':
		t.press(ctrlRight)
	case 'D':
		t.press(ctrlRight)
		t.press(ctrlSprint)
	case 'x', 'X':
		t.press(ctrlSprint)
	case ' ', 'w', 'W':
		t.jumpPending = true
	case 'p', 'P':
		if t.onToggle == nil {
			logDropped("захват")
			break
		}
		t.onToggle()
	case 'b', 'B':
		if t.onSwitch == nil {
			logDropped("смена бэкенда")
			break
		}
		next := physics.KindArcade
		if t.backend != "" {
			next = t.backend.Other()
		}
		t.onSwitch(next)
	}
	return true
}

// Render рисует рельеф вокруг актёра, актёра и строку состояния.
// Камера центрирована на актёре.
func (t *Terminal) Render(s actor.State, a animation.State, chunks []*terrain.Chunk) {
	t.screen.Clear()
	width, height := t.screen.Size()
	cx, cy := width/2, height/2

	for col := 0; col < width; col++ {
		x := s.Position.X + float64(col-cx)*cellWidth
		y, wall, ok := surfaceAt(chunks, x)
		if !ok {
			continue
		}
		row := cy + int(math.Floor((y-s.Position.Y)/cellHeight))
		if row < 1 {
			row = 1
		}
		for r := row; r < height; r++ {
			switch {
			case r == row && wall:
				t.screen.SetContent(col, r, '▌', nil, styleWall)
			case r == row:
				t.screen.SetContent(col, r, '▀', nil, styleSurface)
			default:
				t.screen.SetContent(col, r, '█', nil, styleGround)
			}
		}
	}

	style := styleActor
	if !s.Possessed {
		style = styleIdle
	}
	t.screen.SetContent(cx, cy, glyph(s, a), nil, style)

	possessed := "нет"
	if s.Possessed {
		possessed = "да"
	}
	status := fmt.Sprintf(" %s | %s | захвачен: %s | прыжки: %d | x=%.0f y=%.0f | [p] захват [b] бэкенд [q] выход",
		t.backend, a, possessed, s.JumpCount, s.Position.X, s.Position.Y)
	drawText(t.screen, 0, 0, status, styleStatus)

	t.screen.Show()
}

// surfaceAt высота поверхности в x и признак стены на отрезке
func surfaceAt(chunks []*terrain.Chunk, x float64) (y float64, wall bool, ok bool) {
	for _, c := range chunks {
		if !c.Contains(x) {
			continue
		}
		y, ok = c.SurfaceAt(x)
		if !ok {
			return 0, false, false
		}
		for _, seg := range c.Segments() {
			if x >= seg.MinX() && x <= seg.MaxX() {
				wall = seg.Kind == terrain.SegmentWall
				break
			}
		}
		return y, wall, true
	}
	return 0, false, false
}

// glyph символ актёра по анимации и направлению
func glyph(s actor.State, a animation.State) rune {
	switch a {
	case animation.Jump:
		return '^'
	case animation.Fall:
		return 'v'
	case animation.Walk:
		if s.Facing == actor.FacingLeft {
			return '<'
		}
		return '>'
	default:
		return '@'
	}
}

func drawText(screen tcell.Screen, x, y int, text string, style tcell.Style) {
	width, _ := screen.Size()
	for _, r := range text {
		if x >= width {
			return
		}
		screen.SetContent(x, y, r, nil, style)
		x++
	}
}

// logDropped пишет в лог, если хост не смог доставить событие
func logDropped(what string) {
	logging.Debug("terminal: %s без обработчика", what)
}
