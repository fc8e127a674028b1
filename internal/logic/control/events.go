package control

import (
	"fmt"
	"sync"

	"github.com/cjeanneret/ServoGo/internal/debug"
	"github.com/cjeanneret/ServoGo/internal/logic/reorder"
	"github.com/cjeanneret/ServoGo/internal/logic/servo"
)

// Event is an input pushed from another goroutine and applied by the tick.
type Event interface {
	apply(c *Controller) error
}

// Queue collects events between ticks. Push is safe from any goroutine.
type Queue struct {
	mu     sync.Mutex
	events []Event
}

// Push appends e.
func (q *Queue) Push(e Event) {
	q.mu.Lock()
	q.events = append(q.events, e)
	q.mu.Unlock()
}

// Drain removes and returns everything queued so far.
func (q *Queue) Drain() []Event {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.events
	q.events = nil
	return out
}

// Len returns the number of queued events.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

// Press starts a continuous hold on a group, or on one actuator when
// Actuator is set. Dir is +1 or -1.
type Press struct {
	Group    string
	Actuator string
	Dir      int
}

func (e Press) apply(c *Controller) error {
	dir := 1
	if e.Dir < 0 {
		dir = -1
	}
	if e.Actuator != "" {
		a, err := c.actuator(e.Actuator)
		if err != nil {
			return err
		}
		c.holds[a.ID()] = dir
		jog(a, dir)
		return nil
	}
	g, err := c.group(e.Group)
	if err != nil {
		return err
	}
	c.hold(g, dir)
	return nil
}

// Release ends every continuous hold, like a button coming up.
type Release struct{}

func (Release) apply(c *Controller) error {
	c.releaseAll()
	return nil
}

// KeyAction says how a key was seen. Terminals that cannot report key-up
// deliver KeyTap.
type KeyAction int

const (
	KeyPress KeyAction = iota
	KeyRelease
	KeyTap
)

// Key is a key event matched against group key bindings.
type Key struct {
	Name   string
	Action KeyAction
}

func (e Key) apply(c *Controller) error {
	if e.Name == "" {
		return nil
	}
	for _, g := range c.registry.Groups() {
		dir := 0
		switch e.Name {
		case g.ForwardKey():
			dir = 1
		case g.ReverseKey():
			dir = -1
		default:
			continue
		}
		switch e.Action {
		case KeyPress:
			c.hold(g, dir)
		case KeyRelease:
			c.unhold(g)
		case KeyTap:
			c.latch(g, dir)
		}
	}
	return nil
}

// Pointer carries sampled pointer state. Edges accumulate until the next
// EndFrame.
type Pointer struct {
	reorder.Pointer
}

func (e Pointer) apply(c *Controller) error {
	c.pointer.Pos = e.Pos
	c.pointer.Pressed = c.pointer.Pressed || e.Pressed
	c.pointer.Released = c.pointer.Released || e.Released
	return nil
}

// Attach adds an actuator reported by the host.
type Attach struct {
	Actuator *servo.Actuator
	Group    string
}

func (e Attach) apply(c *Controller) error {
	if e.Actuator == nil {
		return nil
	}
	if _, exists := c.registry.LookupKey(e.Actuator.Key()); exists {
		return fmt.Errorf("attach %s: %w", e.Actuator.Key(), ErrDuplicateKey)
	}
	c.registry.AddActuator(e.Actuator, e.Group)
	c.loadPresets(e.Actuator)
	return nil
}

// Detach removes the actuator with the given host key.
type Detach struct {
	Key string
}

func (e Detach) apply(c *Controller) error {
	a, err := c.actuator(e.Key)
	if err != nil {
		return err
	}
	delete(c.holds, a.ID())
	c.registry.RemoveActuator(a.ID())
	return nil
}

// Reorder requests a drop computed outside the pointer engine, e.g. from
// the HTTP API.
type Reorder struct {
	Drop reorder.Drop
}

func (e Reorder) apply(c *Controller) error {
	instr, ok := reorder.Plan(e.Drop)
	if !ok {
		debug.Verbose("reorder request is a no-op")
		return nil
	}
	return c.setPending(instr)
}
