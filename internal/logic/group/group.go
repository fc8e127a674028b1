package group

import (
	"fmt"
	"math"

	"github.com/google/uuid"

	"github.com/cjeanneret/ServoGo/internal/debug"
	"github.com/cjeanneret/ServoGo/internal/logic/servo"
)

// Group is a named, ordered set of actuators driven together. The group
// pushes its keys and speed multiplier onto members; members report back
// only through Invalidate.
type Group struct {
	id              string
	name            string
	forwardKey      string
	reverseKey      string
	speedMultiplier float64

	// Expanded is view state: whether the member rows are shown.
	Expanded bool
	// MovingPositive and MovingNegative are latching toggles re-issued
	// every tick until cleared.
	MovingPositive bool
	MovingNegative bool

	held    bool
	members []*servo.Actuator

	powerDraw float64
	dirty     bool
}

// New returns an empty, expanded group.
func New(name string) *Group {
	return &Group{
		id:              uuid.NewString(),
		name:            name,
		speedMultiplier: 1,
		Expanded:        true,
		dirty:           true,
	}
}

// ID is a per-process identity that survives renames and moves.
func (g *Group) ID() string { return g.id }

// Name implements servo.Owner.
func (g *Group) Name() string { return g.name }

// SetName renames the group. Empty names are ignored.
func (g *Group) SetName(name string) {
	if name != "" {
		g.name = name
	}
}

// Invalidate implements servo.Owner.
func (g *Group) Invalidate() { g.dirty = true }

func (g *Group) ForwardKey() string       { return g.forwardKey }
func (g *Group) ReverseKey() string       { return g.reverseKey }
func (g *Group) SpeedMultiplier() float64 { return g.speedMultiplier }

// SetKeys binds the forward/reverse keys and pushes them to every member.
func (g *Group) SetKeys(forward, reverse string) {
	g.forwardKey, g.reverseKey = forward, reverse
	for _, a := range g.members {
		a.SetKeys(forward, reverse)
	}
}

// SetSpeedMultiplier sets the multiplier applied to every member's speed.
func (g *Group) SetSpeedMultiplier(v float64) {
	if math.IsNaN(v) {
		return
	}
	g.speedMultiplier = math.Max(v, 0)
	for _, a := range g.members {
		a.SetSpeedMultiplier(g.speedMultiplier)
	}
}

// Held reports whether a continuous hold is active on the group.
func (g *Group) Held() bool     { return g.held }
func (g *Group) SetHeld(v bool) { g.held = v }
func (g *Group) Len() int       { return len(g.members) }
func (g *Group) IsEmpty() bool  { return len(g.members) == 0 }

// Members returns a copy of the ordered member list.
func (g *Group) Members() []*servo.Actuator {
	return append([]*servo.Actuator(nil), g.members...)
}

// Member returns the actuator at index, or nil.
func (g *Group) Member(index int) *servo.Actuator {
	if index < 0 || index >= len(g.members) {
		return nil
	}
	return g.members[index]
}

// IndexOf returns the member index of a, or -1.
func (g *Group) IndexOf(a *servo.Actuator) int {
	for i, m := range g.members {
		if m.Equal(a) {
			return i
		}
	}
	return -1
}

// AddMember appends a.
func (g *Group) AddMember(a *servo.Actuator) {
	g.InsertMember(len(g.members), a)
}

// InsertMember places a at index, clamped into [0, Len].
func (g *Group) InsertMember(index int, a *servo.Actuator) {
	if index < 0 {
		index = 0
	}
	if index > len(g.members) {
		index = len(g.members)
	}
	g.members = append(g.members, nil)
	copy(g.members[index+1:], g.members[index:])
	g.members[index] = a

	a.SetOwner(g)
	a.SetKeys(g.forwardKey, g.reverseKey)
	a.SetSpeedMultiplier(g.speedMultiplier)
	g.dirty = true
}

// RemoveMember detaches a. It reports whether a was a member.
func (g *Group) RemoveMember(a *servo.Actuator) bool {
	i := g.IndexOf(a)
	if i < 0 {
		return false
	}
	g.removeAt(i)
	return true
}

func (g *Group) removeAt(i int) *servo.Actuator {
	a := g.members[i]
	g.members = append(g.members[:i], g.members[i+1:]...)
	if a.Owner() == servo.Owner(g) {
		a.SetOwner(nil)
	}
	g.dirty = true
	return a
}

// AggregatePowerDraw is the summed power draw of members that are driven.
// The value is cached and recomputed on the first read after a change.
func (g *Group) AggregatePowerDraw() float64 {
	if g.dirty {
		sum := 0.0
		for _, a := range g.members {
			if !a.IsFreeMoving() {
				sum += a.PowerDraw()
			}
		}
		g.powerDraw = sum
		g.dirty = false
	}
	return g.powerDraw
}

// MovePositive jogs every member forward; it returns how many accepted.
func (g *Group) MovePositive() int {
	return g.each("move+", (*servo.Actuator).MovePositive)
}

func (g *Group) MoveNegative() int {
	return g.each("move-", (*servo.Actuator).MoveNegative)
}

func (g *Group) MoveToCenter() int {
	return g.each("center", (*servo.Actuator).MoveCenter)
}

func (g *Group) MoveNextPreset() int {
	return g.each("preset+", func(a *servo.Actuator) bool { return a.Presets().MoveNext() })
}

func (g *Group) MovePrevPreset() int {
	return g.each("preset-", func(a *servo.Actuator) bool { return a.Presets().MovePrev() })
}

func (g *Group) Stop() int {
	return g.each("stop", (*servo.Actuator).Stop)
}

// each calls fn on every member in order. A member that refuses or panics
// does not stop the others.
func (g *Group) each(op string, fn func(*servo.Actuator) bool) int {
	accepted := 0
	for _, a := range g.members {
		if g.call(op, a, fn) {
			accepted++
		}
	}
	debug.Trace("group %s: %s accepted by %d/%d", g.name, op, accepted, len(g.members))
	return accepted
}

func (g *Group) call(op string, a *servo.Actuator, fn func(*servo.Actuator) bool) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			debug.Error(fmt.Errorf("group %s: %s on %s: %v", g.name, op, a.Name(), r))
			ok = false
		}
	}()
	return fn(a)
}
