package group

import (
	"errors"
	"fmt"

	"github.com/cjeanneret/ServoGo/internal/debug"
	"github.com/cjeanneret/ServoGo/internal/logic/servo"
)

var (
	// ErrInconsistentGroupState is returned when a structural operation is
	// given indices that do not match the current groups. Nothing changes.
	ErrInconsistentGroupState = errors.New("group: inconsistent group state")

	// ErrLastGroup is returned when deleting the only remaining group.
	ErrLastGroup = errors.New("group: cannot delete the last group")
)

// Entry is an actuator with the grouping key the host reported for it.
type Entry struct {
	Actuator *servo.Actuator
	Group    string
}

// Registry owns the actuators and their ordered groups.
type Registry struct {
	groups       []*Group
	byID         map[servo.ID]*servo.Actuator
	defaultGroup string
	sink         servo.PresetSink
}

// NewRegistry returns a registry holding one empty default group.
// sink may be nil.
func NewRegistry(defaultGroup string, sink servo.PresetSink) *Registry {
	if defaultGroup == "" {
		defaultGroup = "Default"
	}
	r := &Registry{
		byID:         make(map[servo.ID]*servo.Actuator),
		defaultGroup: defaultGroup,
		sink:         sink,
	}
	r.groups = []*Group{New(defaultGroup)}
	return r
}

// Assemble replaces the contents with entries. Groups are created in the
// order their key first appears; an empty key means the default group.
func (r *Registry) Assemble(entries []Entry) {
	for _, a := range r.byID {
		a.SetOwner(nil)
	}
	r.groups = nil
	r.byID = make(map[servo.ID]*servo.Actuator, len(entries))
	for _, e := range entries {
		r.AddActuator(e.Actuator, e.Group)
	}
	if len(r.groups) == 0 {
		r.groups = []*Group{New(r.defaultGroup)}
	}
	debug.Verbose("assembled %d actuators into %d groups", len(r.byID), len(r.groups))
}

// AddActuator attaches a to the group named key, creating it at the end
// when missing.
func (r *Registry) AddActuator(a *servo.Actuator, key string) {
	if _, ok := r.byID[a.ID()]; ok {
		return
	}
	if key == "" {
		key = r.defaultGroup
	}
	g := r.GroupByName(key)
	if g == nil {
		g = New(key)
		r.groups = append(r.groups, g)
	}
	r.byID[a.ID()] = a
	a.SetPersistence(r.sink, r)
	g.AddMember(a)
	debug.Verbose("attached %s to %s", a.Name(), g.Name())
}

// RemoveActuator detaches and forgets the actuator. Its group stays, even
// when it becomes empty.
func (r *Registry) RemoveActuator(id servo.ID) (*servo.Actuator, bool) {
	a, ok := r.byID[id]
	if !ok {
		return nil, false
	}
	if gi, mi, found := r.Locate(id); found {
		r.groups[gi].removeAt(mi)
	}
	delete(r.byID, id)
	a.SetPersistence(nil, nil)
	debug.Verbose("detached %s", a.Name())
	return a, true
}

// Lookup returns the actuator with the given identity.
func (r *Registry) Lookup(id servo.ID) (*servo.Actuator, bool) {
	a, ok := r.byID[id]
	return a, ok
}

// LookupKey returns the actuator with the given host key.
func (r *Registry) LookupKey(key string) (*servo.Actuator, bool) {
	for _, g := range r.groups {
		for _, a := range g.members {
			if a.Key() == key {
				return a, true
			}
		}
	}
	return nil, false
}

// Locate returns the group and member index of the actuator.
func (r *Registry) Locate(id servo.ID) (groupIndex, memberIndex int, ok bool) {
	for gi, g := range r.groups {
		for mi, a := range g.members {
			if a.ID() == id {
				return gi, mi, true
			}
		}
	}
	return -1, -1, false
}

// Actuators lists every actuator in group order.
func (r *Registry) Actuators() []*servo.Actuator {
	out := make([]*servo.Actuator, 0, len(r.byID))
	for _, g := range r.groups {
		out = append(out, g.members...)
	}
	return out
}

// Siblings implements servo.SiblingSource: the other actuators sharing a's
// symmetry key.
func (r *Registry) Siblings(a *servo.Actuator) []*servo.Actuator {
	if a.Symmetry() == "" {
		return nil
	}
	var out []*servo.Actuator
	for _, b := range r.Actuators() {
		if !b.Equal(a) && b.Symmetry() == a.Symmetry() {
			out = append(out, b)
		}
	}
	return out
}

// Groups returns the ordered groups.
func (r *Registry) Groups() []*Group {
	return append([]*Group(nil), r.groups...)
}

func (r *Registry) Len() int { return len(r.groups) }

// Group returns the group at index.
func (r *Registry) Group(index int) (*Group, error) {
	if index < 0 || index >= len(r.groups) {
		return nil, fmt.Errorf("group %d of %d: %w", index, len(r.groups), ErrInconsistentGroupState)
	}
	return r.groups[index], nil
}

// GroupByName returns the first group with the given name, or nil.
func (r *Registry) GroupByName(name string) *Group {
	for _, g := range r.groups {
		if g.name == name {
			return g
		}
	}
	return nil
}

// IndexOfGroup returns the position of g, or -1.
func (r *Registry) IndexOfGroup(g *Group) int {
	for i, x := range r.groups {
		if x == g {
			return i
		}
	}
	return -1
}

// AddGroup appends an empty group. An empty name becomes "New Group N".
func (r *Registry) AddGroup(name string) *Group {
	if name == "" {
		name = fmt.Sprintf("New Group %d", len(r.groups)+1)
	}
	g := New(name)
	r.groups = append(r.groups, g)
	debug.Verbose("added group %s", name)
	return g
}

// DeleteGroup removes the group at index. Its members move to the group
// before it, or the one after when it is first.
func (r *Registry) DeleteGroup(index int) error {
	if index < 0 || index >= len(r.groups) {
		return fmt.Errorf("delete group %d of %d: %w", index, len(r.groups), ErrInconsistentGroupState)
	}
	if len(r.groups) == 1 {
		return ErrLastGroup
	}
	dest := index - 1
	if index == 0 {
		dest = 1
	}
	g, to := r.groups[index], r.groups[dest]
	for len(g.members) > 0 {
		to.AddMember(g.removeAt(0))
	}
	r.groups = append(r.groups[:index], r.groups[index+1:]...)
	debug.Verbose("deleted group %s, members moved to %s", g.name, to.name)
	return nil
}

// RenameGroup renames the group at index. Empty names are ignored.
func (r *Registry) RenameGroup(index int, name string) error {
	g, err := r.Group(index)
	if err != nil {
		return err
	}
	g.SetName(name)
	return nil
}

// MoveGroup removes the group at from and inserts it at to. to is an index
// into the list after removal.
func (r *Registry) MoveGroup(from, to int) error {
	n := len(r.groups)
	if from < 0 || from >= n || to < 0 || to >= n {
		return fmt.Errorf("move group %d->%d of %d: %w", from, to, n, ErrInconsistentGroupState)
	}
	g := r.groups[from]
	r.groups = append(r.groups[:from], r.groups[from+1:]...)
	r.groups = append(r.groups, nil)
	copy(r.groups[to+1:], r.groups[to:])
	r.groups[to] = g
	debug.Reorder("group", from, 0, to, 0)
	return nil
}

// CheckGroup fails with ErrInconsistentGroupState unless the group at
// index has the given ID.
func (r *Registry) CheckGroup(index int, id string) error {
	if index < 0 || index >= len(r.groups) {
		return fmt.Errorf("group %d of %d: %w", index, len(r.groups), ErrInconsistentGroupState)
	}
	if got := r.groups[index].ID(); got != id {
		return fmt.Errorf("group %d is %q, not %s: %w", index, r.groups[index].Name(), id, ErrInconsistentGroupState)
	}
	return nil
}

// CheckActuator fails with ErrInconsistentGroupState unless member index
// of group gi has the given ID.
func (r *Registry) CheckActuator(gi, index int, id string) error {
	g, err := r.Group(gi)
	if err != nil {
		return err
	}
	if index < 0 || index >= len(g.members) {
		return fmt.Errorf("actuator %d of %d in %q: %w", index, len(g.members), g.Name(), ErrInconsistentGroupState)
	}
	if a := g.members[index]; a.ID().String() != id {
		return fmt.Errorf("actuator %d of %q is %q, not %s: %w", index, g.Name(), a.Key(), id, ErrInconsistentGroupState)
	}
	return nil
}

// MoveActuator moves a member between (or within) groups. to is an index
// into the destination after the member has left its source.
func (r *Registry) MoveActuator(fromGroup, from, toGroup, to int) error {
	n := len(r.groups)
	if fromGroup < 0 || fromGroup >= n || toGroup < 0 || toGroup >= n {
		return fmt.Errorf("move actuator group %d->%d of %d: %w", fromGroup, toGroup, n, ErrInconsistentGroupState)
	}
	src, dst := r.groups[fromGroup], r.groups[toGroup]
	if from < 0 || from >= len(src.members) {
		return fmt.Errorf("move actuator %d of %d: %w", from, len(src.members), ErrInconsistentGroupState)
	}
	limit := len(dst.members)
	if src == dst {
		limit--
	}
	if to < 0 || to > limit {
		return fmt.Errorf("move actuator to %d of %d: %w", to, limit, ErrInconsistentGroupState)
	}
	dst.InsertMember(to, src.removeAt(from))
	debug.Reorder("actuator", fromGroup, from, toGroup, to)
	return nil
}

// TransferUp appends the actuator to the previous group. It reports false
// when the actuator is unknown or already in the first group.
func (r *Registry) TransferUp(id servo.ID) bool {
	return r.transfer(id, -1)
}

// TransferDown appends the actuator to the next group.
func (r *Registry) TransferDown(id servo.ID) bool {
	return r.transfer(id, 1)
}

func (r *Registry) transfer(id servo.ID, delta int) bool {
	gi, mi, ok := r.Locate(id)
	if !ok {
		return false
	}
	to := gi + delta
	if to < 0 || to >= len(r.groups) {
		return false
	}
	return r.MoveActuator(gi, mi, to, len(r.groups[to].members)) == nil
}
