// Package reorder turns pointer drags over on-screen rows into reorder
// instructions for groups and actuators.
//
// A front end rebuilds the row list every frame:
//
//	e.BeginFrame(window, viewport, scroll)
//	e.RegisterRow(groupRow)      // Kind Group
//	e.RegisterRow(actuatorRow)   // Kind Actuator, one per visible member
//	e.EndGroup(gi)
//	res := e.EndFrame(pointer, dt)
//
// Rows are in content coordinates (scrolled space). The pointer is in window
// coordinates and is converted using the viewport origin and scroll offset.
package reorder

import (
	"fmt"

	"github.com/cjeanneret/ServoGo/internal/debug"
)

// Kind is what a row represents.
type Kind int

const (
	KindGroup Kind = iota
	KindActuator
)

func (k Kind) String() string {
	if k == KindGroup {
		return "group"
	}
	return "actuator"
}

// Point is a 2D position.
type Point struct{ X, Y float64 }

// Rect is an axis-aligned rectangle; X/Y is the top-left corner.
type Rect struct{ X, Y, W, H float64 }

// Contains reports whether p lies inside r (right/bottom edge exclusive).
func (r Rect) Contains(p Point) bool {
	return p.X >= r.X && p.X < r.X+r.W && p.Y >= r.Y && p.Y < r.Y+r.H
}

// Union returns the smallest rectangle covering r and o.
func (r Rect) Union(o Rect) Rect {
	if r.W <= 0 || r.H <= 0 {
		return o
	}
	x0, y0 := min(r.X, o.X), min(r.Y, o.Y)
	x1, y1 := max(r.X+r.W, o.X+o.W), max(r.Y+r.H, o.Y+o.H)
	return Rect{X: x0, Y: y0, W: x1 - x0, H: y1 - y0}
}

// Row is one hit-testable line of the editor for the current frame.
// For group rows Group and Index are both the group index and Members is
// the group's member count (visible or not). Key is the identity of the
// item shown; it travels with the instruction so a stale drop is refused.
type Row struct {
	Kind    Kind
	Group   int
	Index   int
	Key     string
	Name    string
	Bounds  Rect
	Handle  Rect
	Members int
}

// Pointer is the pointer state sampled for one frame. Pressed and Released
// are button edges, not levels.
type Pointer struct {
	Pos      Point
	Pressed  bool
	Released bool
}

// Instruction is a single remove+insert. For group moves From/To are group
// indices and FromGroup/ToGroup repeat them. To is an index into the
// destination after the item has been removed from its source.
//
// Item and Dest identify the moved item and, for actuators, the
// destination group. When set, Apply checks them against the target
// before moving anything.
type Instruction struct {
	Kind      Kind
	FromGroup int
	From      int
	ToGroup   int
	To        int
	Item      string
	Dest      string
}

func (i Instruction) String() string {
	return fmt.Sprintf("%s (%d-%d)->(%d-%d)", i.Kind, i.FromGroup, i.From, i.ToGroup, i.To)
}

// Result is what a frame produced.
type Result struct {
	Instruction *Instruction
	ScrollDelta float64
}

// Config tunes auto-scroll while dragging near the viewport edges.
type Config struct {
	ScrollThreshold float64
	ScrollSpeed     float64
}

// Target performs a planned move through the owning collection. The Check
// methods report an error when the item at an index is not the one named.
type Target interface {
	MoveGroup(from, to int) error
	MoveActuator(fromGroup, from, toGroup, to int) error
	CheckGroup(index int, key string) error
	CheckActuator(group, index int, key string) error
}

// Engine holds the drag session. It is not safe for concurrent use; the
// tick goroutine owns it.
type Engine struct {
	cfg      Config
	window   Rect
	viewport Rect
	scroll   float64
	rows     []Row

	dragging   Row
	isDragging bool
	hover      Row
	isHovering bool
	hoverUpper bool
}

// NewEngine returns an idle engine.
func NewEngine(cfg Config) *Engine {
	return &Engine{cfg: cfg}
}

// BeginFrame starts a frame: rows from the previous frame are dropped.
func (e *Engine) BeginFrame(window, viewport Rect, scroll float64) {
	e.window = window
	e.viewport = viewport
	e.scroll = scroll
	e.rows = e.rows[:0]
	e.isHovering = false
}

// RegisterRow adds a row for this frame.
func (e *Engine) RegisterRow(r Row) {
	e.rows = append(e.rows, r)
}

// EndGroup grows the row of group g to cover its member rows, so a drop
// anywhere inside the group's block lands on it.
func (e *Engine) EndGroup(g int) {
	gi := -1
	for i, r := range e.rows {
		if r.Kind == KindGroup && r.Group == g {
			gi = i
			break
		}
	}
	if gi < 0 {
		return
	}
	for _, r := range e.rows {
		if r.Kind == KindActuator && r.Group == g {
			e.rows[gi].Bounds = e.rows[gi].Bounds.Union(r.Bounds)
		}
	}
}

// Rows returns the rows registered this frame.
func (e *Engine) Rows() []Row { return e.rows }

// Dragging returns the row being dragged.
func (e *Engine) Dragging() (Row, bool) { return e.dragging, e.isDragging }

// Hover returns the current drop row and whether the pointer is over its
// upper half.
func (e *Engine) Hover() (row Row, upper bool, ok bool) {
	return e.hover, e.hoverUpper, e.isHovering
}

// Cancel abandons the drag session.
func (e *Engine) Cancel() {
	e.isDragging = false
	e.isHovering = false
}

// ContentPoint converts a window position to content coordinates. ok is
// false when p is outside the viewport.
func (e *Engine) ContentPoint(p Point) (Point, bool) {
	if !e.viewport.Contains(p) {
		return Point{}, false
	}
	return Point{X: p.X - e.viewport.X, Y: p.Y - e.viewport.Y + e.scroll}, true
}

// EndFrame hit-tests the pointer against this frame's rows and advances
// the drag session.
func (e *Engine) EndFrame(p Pointer, dt float64) Result {
	var res Result
	content, inView := e.ContentPoint(p.Pos)

	if p.Pressed && !e.isDragging && inView {
		for _, r := range e.rows {
			if r.Handle.Contains(content) {
				e.dragging, e.isDragging = r, true
				debug.Live("drag start %s %q", r.Kind, r.Name)
				break
			}
		}
	}
	if !e.isDragging {
		return res
	}

	e.isHovering = false
	if inView {
		e.hitTest(content)
	}

	if p.Released {
		if e.isHovering && e.window.Contains(p.Pos) {
			if instr, ok := Plan(e.drop()); ok {
				res.Instruction = &instr
				debug.Live("drop %s", instr)
			}
		} else {
			debug.Live("drag cancelled")
		}
		e.Cancel()
		return res
	}

	res.ScrollDelta = e.scrollDelta(p.Pos, dt)
	return res
}

func (e *Engine) hitTest(content Point) {
	if e.dragging.Kind == KindGroup {
		for _, r := range e.rows {
			if r.Kind == KindGroup && r.Bounds.Contains(content) {
				e.setHover(r, content)
				return
			}
		}
		return
	}
	for _, r := range e.rows {
		if r.Kind == KindActuator && r.Bounds.Contains(content) {
			e.setHover(r, content)
			return
		}
	}
	for _, r := range e.rows {
		if r.Kind == KindGroup && r.Members == 0 && r.Bounds.Contains(content) {
			e.setHover(r, content)
			return
		}
	}
}

func (e *Engine) setHover(r Row, content Point) {
	e.hover = r
	e.hoverUpper = content.Y-r.Bounds.Y < r.Bounds.H/2
	e.isHovering = true
}

func (e *Engine) drop() Drop {
	d := Drop{
		Kind:      e.dragging.Kind,
		FromGroup: e.dragging.Group,
		From:      e.dragging.Index,
		ToGroup:   e.hover.Group,
		Over:      e.hover.Index,
		Upper:     e.hoverUpper,
		Item:      e.dragging.Key,
	}
	if d.Kind == KindActuator {
		d.Dest = e.groupKey(e.hover.Group)
		if e.hover.Kind == KindGroup {
			d.Empty = true
		}
	}
	return d
}

func (e *Engine) groupKey(gi int) string {
	for _, r := range e.rows {
		if r.Kind == KindGroup && r.Group == gi {
			return r.Key
		}
	}
	return ""
}

func (e *Engine) scrollDelta(p Point, dt float64) float64 {
	v := e.viewport
	if p.X < v.X || p.X >= v.X+v.W {
		return 0
	}
	switch {
	case p.Y >= v.Y && p.Y < v.Y+e.cfg.ScrollThreshold:
		return -e.cfg.ScrollSpeed * dt
	case p.Y < v.Y+v.H && p.Y >= v.Y+v.H-e.cfg.ScrollThreshold:
		return e.cfg.ScrollSpeed * dt
	}
	return 0
}

// InsertMarker returns the content-space y of the insertion strip while a
// drop would change the order.
func (e *Engine) InsertMarker() (float64, bool) {
	if !e.isDragging || !e.isHovering {
		return 0, false
	}
	if _, ok := Plan(e.drop()); !ok {
		return 0, false
	}
	b := e.hover.Bounds
	if e.hover.Kind == KindActuator && e.hoverUpper {
		return b.Y, true
	}
	if e.hover.Kind == KindGroup && e.dragging.Kind == KindGroup && e.hoverUpper {
		return b.Y, true
	}
	return b.Y + b.H, true
}

// Apply performs instr on target with a single call, after checking that
// the named item and destination are still at the planned indices.
func Apply(target Target, instr Instruction) error {
	var err error
	switch instr.Kind {
	case KindGroup:
		if instr.Item != "" {
			err = target.CheckGroup(instr.From, instr.Item)
		}
		if err == nil {
			err = target.MoveGroup(instr.From, instr.To)
		}
	case KindActuator:
		if instr.Item != "" {
			err = target.CheckActuator(instr.FromGroup, instr.From, instr.Item)
		}
		if err == nil && instr.Dest != "" {
			err = target.CheckGroup(instr.ToGroup, instr.Dest)
		}
		if err == nil {
			err = target.MoveActuator(instr.FromGroup, instr.From, instr.ToGroup, instr.To)
		}
	default:
		err = fmt.Errorf("reorder: unknown kind %d", instr.Kind)
	}
	if err != nil {
		return fmt.Errorf("apply %s: %w", instr, err)
	}
	return nil
}
