// Package tui is the terminal front end. The poll goroutine turns tcell
// events into controller events; Frame, called from the tick goroutine,
// lays out the group editor, registers its rows with the reorder engine
// and draws it.
package tui

import (
	"fmt"
	"math"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gdamore/tcell/v2"

	"github.com/cjeanneret/ServoGo/internal/debug"
	"github.com/cjeanneret/ServoGo/internal/logic/control"
	"github.com/cjeanneret/ServoGo/internal/logic/group"
	"github.com/cjeanneret/ServoGo/internal/logic/reorder"
	"github.com/cjeanneret/ServoGo/internal/logic/servo"
)

const (
	grip        = '≡'
	groupIndent = 0
	rowIndent   = 3
	gripWidth   = 2
)

var (
	styleHeader   = tcell.StyleDefault.Reverse(true)
	styleGroup    = tcell.StyleDefault.Bold(true)
	styleMember   = tcell.StyleDefault
	styleLocked   = tcell.StyleDefault.Foreground(tcell.ColorGray)
	styleDragging = tcell.StyleDefault.Foreground(tcell.ColorYellow).Bold(true)
	styleMarker   = tcell.StyleDefault.Foreground(tcell.ColorGreen)
)

// UI draws the editor on a tcell screen.
type UI struct {
	screen tcell.Screen
	ctrl   *control.Controller

	quitOnce sync.Once
	done     chan struct{}

	presetMode atomic.Bool

	// poll goroutine only
	buttonDown bool
	pressY     int

	wheelMu sync.Mutex
	wheel   float64

	// tick goroutine only
	scroll float64
}

// New wraps an initialized screen. Mouse reporting is enabled.
func New(screen tcell.Screen, ctrl *control.Controller) *UI {
	screen.EnableMouse()
	screen.Clear()
	return &UI{screen: screen, ctrl: ctrl, done: make(chan struct{})}
}

// Done is closed when the user quits.
func (u *UI) Done() <-chan struct{} { return u.done }

// PresetMode reports whether group keys step through presets.
func (u *UI) PresetMode() bool { return u.presetMode.Load() }

// Scroll returns the current scroll offset in rows.
func (u *UI) Scroll() float64 { return u.scroll }

// Poll reads screen events until the screen is finalized.
func (u *UI) Poll() {
	for {
		ev := u.screen.PollEvent()
		if ev == nil {
			return
		}
		u.handle(ev)
	}
}

// Close restores the terminal.
func (u *UI) Close() {
	u.screen.Fini()
}

func (u *UI) quit() {
	u.quitOnce.Do(func() { close(u.done) })
}

func (u *UI) handle(ev tcell.Event) {
	switch ev := ev.(type) {
	case *tcell.EventResize:
		u.screen.Sync()
	case *tcell.EventKey:
		switch ev.Key() {
		case tcell.KeyEscape, tcell.KeyCtrlC:
			u.quit()
		case tcell.KeyRune:
			u.handleRune(ev.Rune())
		}
	case *tcell.EventMouse:
		x, y := ev.Position()
		u.handleMouse(x, y, ev.Buttons())
	}
}

func (u *UI) handleRune(r rune) {
	switch r {
	case 'q':
		u.quit()
	case ' ':
		u.ctrl.Submit(control.Command{Op: control.OpStopAll})
	case 'p':
		on := !u.presetMode.Load()
		u.presetMode.Store(on)
		debug.Live("preset mode %v", on)
	default:
		name := string(r)
		if u.presetMode.Load() {
			if op, g, ok := presetKey(u.ctrl.Published(), name); ok {
				u.ctrl.Submit(control.Command{Op: op, Group: g})
				return
			}
		}
		// terminals report no key release, so every key is a tap
		u.ctrl.Submit(control.Key{Name: name, Action: control.KeyTap})
	}
}

// presetKey maps a group's forward/reverse key to preset navigation.
func presetKey(snap control.Snapshot, name string) (control.Op, string, bool) {
	for _, g := range snap.Groups {
		switch name {
		case g.ForwardKey:
			return control.OpNextPreset, g.Name, true
		case g.ReverseKey:
			return control.OpPrevPreset, g.Name, true
		}
	}
	return "", "", false
}

// handleMouse derives button edges from levels. A cell has no halves, so
// while dragging the pointer is placed in the lower half of a row when
// moving down and in the upper half when moving up.
func (u *UI) handleMouse(x, y int, buttons tcell.ButtonMask) {
	switch {
	case buttons&tcell.WheelUp != 0:
		u.addWheel(-1)
		return
	case buttons&tcell.WheelDown != 0:
		u.addWheel(1)
		return
	}

	down := buttons&tcell.Button1 != 0
	p := reorder.Pointer{
		Pressed:  down && !u.buttonDown,
		Released: !down && u.buttonDown,
	}
	if p.Pressed {
		u.pressY = y
	}
	u.buttonDown = down

	fy := float64(y) + 0.5
	if !p.Pressed {
		switch {
		case y > u.pressY:
			fy = float64(y) + 0.75
		case y < u.pressY:
			fy = float64(y) + 0.25
		}
	}
	p.Pos = reorder.Point{X: float64(x) + 0.5, Y: fy}
	u.ctrl.Submit(control.Pointer{Pointer: p})
}

func (u *UI) addWheel(d float64) {
	u.wheelMu.Lock()
	u.wheel += d
	u.wheelMu.Unlock()
}

func (u *UI) takeWheel() float64 {
	u.wheelMu.Lock()
	defer u.wheelMu.Unlock()
	d := u.wheel
	u.wheel = 0
	return d
}

type line struct {
	row   reorder.Row
	text  string
	style tcell.Style
}

// Frame lays out and draws one frame. Call it from the tick goroutine
// after Controller.Tick.
func (u *UI) Frame(dt float64) {
	w, h := u.screen.Size()
	window := reorder.Rect{W: float64(w), H: float64(h)}
	viewport := reorder.Rect{Y: 1, W: float64(w), H: float64(max(h-2, 0))}

	lines := u.layout(u.ctrl.Registry(), float64(w))
	maxScroll := math.Max(0, float64(len(lines))-viewport.H)
	u.scroll = clamp(u.scroll+u.takeWheel(), 0, maxScroll)

	e := u.ctrl.Engine()
	e.BeginFrame(window, viewport, u.scroll)
	for _, l := range lines {
		e.RegisterRow(l.row)
	}
	for gi := range u.ctrl.Registry().Groups() {
		e.EndGroup(gi)
	}
	res := u.ctrl.EndFrame(dt)
	u.scroll = clamp(u.scroll+res.ScrollDelta, 0, maxScroll)

	u.draw(lines, viewport, w, h)
}

// layout builds one line per group and per visible member, in content
// rows.
func (u *UI) layout(reg *group.Registry, width float64) []line {
	var lines []line
	preset := u.presetMode.Load()
	for gi, g := range reg.Groups() {
		y := float64(len(lines))
		lines = append(lines, line{
			row: reorder.Row{
				Kind:    reorder.KindGroup,
				Group:   gi,
				Index:   gi,
				Key:     g.ID(),
				Name:    g.Name(),
				Bounds:  reorder.Rect{Y: y, W: width, H: 1},
				Handle:  reorder.Rect{X: groupIndent, Y: y, W: gripWidth, H: 1},
				Members: g.Len(),
			},
			text:  groupText(g),
			style: styleGroup,
		})
		if !g.Expanded {
			continue
		}
		for i, a := range g.Members() {
			if a.IsFreeMoving() {
				continue
			}
			y := float64(len(lines))
			style := styleMember
			if a.IsLocked() {
				style = styleLocked
			}
			lines = append(lines, line{
				row: reorder.Row{
					Kind:   reorder.KindActuator,
					Group:  gi,
					Index:  i,
					Key:    a.ID().String(),
					Name:   a.Name(),
					Bounds: reorder.Rect{Y: y, W: width, H: 1},
					Handle: reorder.Rect{X: rowIndent, Y: y, W: gripWidth, H: 1},
				},
				text:  memberText(a, preset),
				style: style,
			})
		}
	}
	return lines
}

func groupText(g *group.Group) string {
	fold := '▾'
	if !g.Expanded {
		fold = '▸'
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%c %c %s", grip, fold, g.Name())
	if g.ForwardKey() != "" || g.ReverseKey() != "" {
		fmt.Fprintf(&b, " [%s/%s]", g.ForwardKey(), g.ReverseKey())
	}
	fmt.Fprintf(&b, " x%g power %.2f", g.SpeedMultiplier(), g.AggregatePowerDraw())
	switch {
	case g.MovingPositive:
		b.WriteString(" >>")
	case g.MovingNegative:
		b.WriteString(" <<")
	case g.Held():
		b.WriteString(" held")
	}
	return b.String()
}

func memberText(a *servo.Actuator, preset bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s%c %-12s %9.2f [%g, %g] %s",
		strings.Repeat(" ", rowIndent), grip, a.Name(), a.Position(), a.MinLimit(), a.MaxLimit(), a.State())
	if a.IsInverted() {
		b.WriteString(" inv")
	}
	if preset {
		fmt.Fprintf(&b, " presets %s", servo.EncodePresets(a.Presets().Values()))
	}
	return b.String()
}

func (u *UI) draw(lines []line, viewport reorder.Rect, w, h int) {
	s := u.screen
	s.Clear()

	mode := ""
	if u.presetMode.Load() {
		mode = "  [preset mode]"
	}
	u.text(0, 0, w, padRight(fmt.Sprintf(" ServoGo  tick %d%s", u.ctrl.Published().Tick, mode), w), styleHeader)

	e := u.ctrl.Engine()
	dragging, isDragging := e.Dragging()
	top := int(viewport.Y)
	bottom := top + int(viewport.H)
	offset := int(math.Floor(u.scroll))

	for i, l := range lines {
		y := top + i - offset
		if y < top || y >= bottom {
			continue
		}
		style := l.style
		if isDragging && l.row.Kind == dragging.Kind && l.row.Group == dragging.Group && l.row.Index == dragging.Index {
			style = styleDragging
		}
		u.text(0, y, w, l.text, style)
	}

	if my, ok := e.InsertMarker(); ok {
		y := top + int(math.Round(my)) - offset
		if y >= top && y <= bottom && y < h {
			s.SetContent(0, min(y, h-1), '►', nil, styleMarker)
		}
	}

	if h > 1 {
		u.text(0, h-1, w, "q quit  space stop all  p preset mode  drag ≡ to reorder", styleHeader)
	}
	s.Show()
}

func (u *UI) text(x, y, w int, s string, style tcell.Style) {
	for _, r := range s {
		if x >= w {
			return
		}
		u.screen.SetContent(x, y, r, nil, style)
		x++
	}
}

func padRight(s string, w int) string {
	if n := len([]rune(s)); n < w {
		return s + strings.Repeat(" ", w-n)
	}
	return s
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
