// Package control is the runtime context of the motion layer. It owns the
// group registry and the reorder engine and mutates them only from Tick,
// which a single goroutine calls once per frame. Other goroutines talk to
// it through Submit and Published.
package control

import (
	"errors"
	"fmt"
	"sync"

	"github.com/cjeanneret/ServoGo/internal/debug"
	"github.com/cjeanneret/ServoGo/internal/logic/group"
	"github.com/cjeanneret/ServoGo/internal/logic/reorder"
	"github.com/cjeanneret/ServoGo/internal/logic/servo"
)

var (
	ErrUnknownTarget = errors.New("control: unknown target")
	ErrUnknownOp     = errors.New("control: unknown operation")
	ErrDuplicateKey  = errors.New("control: duplicate actuator key")
	ErrPending       = errors.New("control: a reorder is already pending")
)

// PresetSource returns stored preset text for an actuator key.
type PresetSource interface {
	Lookup(key string) (string, bool)
}

// Output mirrors actuator positions somewhere after each tick.
type Output interface {
	Sync(actuators []*servo.Actuator) error
}

// Options wires a Controller. Registry is required.
type Options struct {
	Registry *group.Registry
	Reorder  reorder.Config
	Presets  PresetSource
	Output   Output
}

// Controller is the explicit context passed to front ends.
type Controller struct {
	registry *group.Registry
	engine   *reorder.Engine
	presets  PresetSource
	output   Output
	queue    Queue

	pointer    reorder.Pointer
	pending    *reorder.Instruction
	reorderErr error
	holds      map[servo.ID]int
	heldGroup  map[*group.Group]int

	mu        sync.RWMutex
	published Snapshot
	ticks     uint64
}

// New builds a controller around opts.Registry.
func New(opts Options) *Controller {
	c := &Controller{
		registry:  opts.Registry,
		engine:    reorder.NewEngine(opts.Reorder),
		presets:   opts.Presets,
		output:    opts.Output,
		holds:     make(map[servo.ID]int),
		heldGroup: make(map[*group.Group]int),
	}
	c.publish()
	return c
}

// Registry returns the group registry. Only the tick goroutine may use it.
func (c *Controller) Registry() *group.Registry { return c.registry }

// Engine returns the reorder engine for front ends registering rows.
func (c *Controller) Engine() *reorder.Engine { return c.engine }

// Submit queues an event for the next tick.
func (c *Controller) Submit(e Event) { c.queue.Push(e) }

// Assemble loads the initial actuators and their stored presets.
func (c *Controller) Assemble(entries []group.Entry) {
	c.registry.Assemble(entries)
	for _, a := range c.registry.Actuators() {
		c.loadPresets(a)
	}
	c.publish()
}

// Tick drains the queue, re-issues held and latched commands, advances
// every actuator by dt seconds and applies at most one pending reorder.
func (c *Controller) Tick(dt float64) {
	c.ticks++
	for _, e := range c.queue.Drain() {
		if err := e.apply(c); err != nil {
			if errors.Is(err, servo.ErrInvalidNumericInput) {
				debug.Verbose("%v", err)
				continue
			}
			debug.Error(err)
		}
	}

	c.reissue()

	actuators := c.registry.Actuators()
	for _, a := range actuators {
		a.Tick(dt)
	}

	if c.pending != nil {
		c.reorderErr = reorder.Apply(c.registry, *c.pending)
		if c.reorderErr != nil {
			debug.Error(c.reorderErr)
		}
		c.pending = nil
	}

	if c.output != nil {
		if err := c.output.Sync(c.registry.Actuators()); err != nil {
			debug.Error(fmt.Errorf("output sync: %w", err))
		}
	}
	c.publish()
}

// EndFrame feeds the pointer state accumulated since the last frame to the
// reorder engine. Front ends call it after registering this frame's rows.
func (c *Controller) EndFrame(dt float64) reorder.Result {
	res := c.engine.EndFrame(c.pointer, dt)
	c.pointer.Pressed = false
	c.pointer.Released = false
	if res.Instruction != nil {
		if err := c.setPending(*res.Instruction); err != nil {
			debug.Verbose("%v", err)
		}
	}
	return res
}

// ReorderErr returns the outcome of the last applied reorder. A drop whose
// item or destination changed before the tick fails with
// group.ErrInconsistentGroupState and leaves the groups untouched.
func (c *Controller) ReorderErr() error { return c.reorderErr }

// Pending returns the reorder waiting for the next tick.
func (c *Controller) Pending() (reorder.Instruction, bool) {
	if c.pending == nil {
		return reorder.Instruction{}, false
	}
	return *c.pending, true
}

func (c *Controller) setPending(instr reorder.Instruction) error {
	if c.pending != nil {
		return fmt.Errorf("%s: %w", instr, ErrPending)
	}
	c.pending = &instr
	return nil
}

func (c *Controller) reissue() {
	for _, g := range c.registry.Groups() {
		dir, held := c.heldGroup[g]
		switch {
		case held && dir > 0, !held && g.MovingPositive:
			g.MovePositive()
		case held && dir < 0, !held && g.MovingNegative:
			g.MoveNegative()
		}
	}
	for id, dir := range c.holds {
		a, ok := c.registry.Lookup(id)
		if !ok {
			delete(c.holds, id)
			continue
		}
		jog(a, dir)
	}
}

func (c *Controller) hold(g *group.Group, dir int) {
	c.heldGroup[g] = dir
	g.SetHeld(true)
	if dir > 0 {
		g.MovePositive()
	} else {
		g.MoveNegative()
	}
}

func (c *Controller) unhold(g *group.Group) {
	if _, ok := c.heldGroup[g]; !ok {
		return
	}
	delete(c.heldGroup, g)
	g.SetHeld(false)
	g.Stop()
}

// latch toggles the group's latching direction; switching it off stops
// the members.
func (c *Controller) latch(g *group.Group, dir int) {
	if dir > 0 {
		g.MovingPositive = !g.MovingPositive
		g.MovingNegative = false
	} else {
		g.MovingNegative = !g.MovingNegative
		g.MovingPositive = false
	}
	if !g.MovingPositive && !g.MovingNegative {
		g.Stop()
	}
}

func (c *Controller) releaseAll() {
	for g := range c.heldGroup {
		c.unhold(g)
	}
	for id := range c.holds {
		if a, ok := c.registry.Lookup(id); ok {
			a.Stop()
		}
		delete(c.holds, id)
	}
}

func (c *Controller) stopAll() {
	c.releaseAll()
	for _, g := range c.registry.Groups() {
		g.MovingPositive = false
		g.MovingNegative = false
		g.Stop()
	}
}

func (c *Controller) loadPresets(a *servo.Actuator) {
	if c.presets == nil {
		return
	}
	encoded, ok := c.presets.Lookup(a.Key())
	if !ok {
		return
	}
	if err := a.Presets().Load(encoded); err != nil {
		debug.Error(fmt.Errorf("presets for %s: %w", a.Key(), err))
	}
}

func (c *Controller) actuator(key string) (*servo.Actuator, error) {
	a, ok := c.registry.LookupKey(key)
	if !ok {
		return nil, fmt.Errorf("actuator %q: %w", key, ErrUnknownTarget)
	}
	return a, nil
}

func (c *Controller) group(name string) (*group.Group, error) {
	g := c.registry.GroupByName(name)
	if g == nil {
		return nil, fmt.Errorf("group %q: %w", name, ErrUnknownTarget)
	}
	return g, nil
}

func jog(a *servo.Actuator, dir int) bool {
	if dir > 0 {
		return a.MovePositive()
	}
	return a.MoveNegative()
}
