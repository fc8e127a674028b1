// Package host reads the actuator manifest: the list of actuators the
// machine exposes, with their ranges, speeds and grouping keys. It also
// turns manifest edits into attach/detach events for the controller.
package host

import (
	"fmt"
	"math"
	"reflect"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/cjeanneret/ServoGo/internal/config"
	"github.com/cjeanneret/ServoGo/internal/debug"
	"github.com/cjeanneret/ServoGo/internal/logic/control"
	"github.com/cjeanneret/ServoGo/internal/logic/group"
	"github.com/cjeanneret/ServoGo/internal/logic/servo"
)

// ActuatorSpec is one manifest entry.
type ActuatorSpec struct {
	Key   string `yaml:"key"`   // persistent key, used by presets and outputs
	Name  string `yaml:"name"`  // display name, defaults to Key
	Kind  string `yaml:"kind"`  // "rotary" or "linear"
	Group string `yaml:"group"` // grouping key; empty = default group

	Position       float64  `yaml:"position"`
	RotateMin      float64  `yaml:"rotate_min"`
	RotateMax      float64  `yaml:"rotate_max"`
	TranslateMin   float64  `yaml:"translate_min"`
	TranslateMax   float64  `yaml:"translate_max"`
	RotateSpeed    float64  `yaml:"rotate_speed"`
	TranslateSpeed float64  `yaml:"translate_speed"`
	MaxSpeed       float64  `yaml:"max_speed"`
	Acceleration   float64  `yaml:"acceleration"`
	PowerDraw      float64  `yaml:"power_draw"`
	Center         *float64 `yaml:"center"`

	FreeMoving bool   `yaml:"free_moving"`
	Inverted   bool   `yaml:"inverted"`
	Locked     bool   `yaml:"locked"`
	Symmetry   string `yaml:"symmetry"`
}

// Manifest is the parsed actuator manifest.
type Manifest struct {
	Actuators []ActuatorSpec `yaml:"actuators"`
}

// LoadManifest reads and validates a manifest file.
func LoadManifest(path string) (*Manifest, error) {
	data, err := config.ReadLimited(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	m, err := ParseManifest(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// ParseManifest decodes and validates manifest YAML.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("unmarshal manifest: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate checks that keys are present and unique, kinds are known and
// numbers are finite with non-negative speeds.
func (m *Manifest) Validate() error {
	seen := make(map[string]bool, len(m.Actuators))
	for i, s := range m.Actuators {
		if s.Key == "" {
			return fmt.Errorf("actuators[%d].key is required", i)
		}
		if seen[s.Key] {
			return fmt.Errorf("actuators[%d]: duplicate key %q", i, s.Key)
		}
		seen[s.Key] = true
		if _, err := servo.ParseKind(s.Kind); err != nil {
			return fmt.Errorf("actuators[%d] (%s): %w", i, s.Key, err)
		}

		numbers := map[string]float64{
			"position":        s.Position,
			"rotate_min":      s.RotateMin,
			"rotate_max":      s.RotateMax,
			"translate_min":   s.TranslateMin,
			"translate_max":   s.TranslateMax,
			"rotate_speed":    s.RotateSpeed,
			"translate_speed": s.TranslateSpeed,
			"max_speed":       s.MaxSpeed,
			"acceleration":    s.Acceleration,
			"power_draw":      s.PowerDraw,
		}
		if s.Center != nil {
			numbers["center"] = *s.Center
		}
		for name, v := range numbers {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("actuators[%d] (%s).%s must be finite", i, s.Key, name)
			}
		}
		for _, name := range []string{"rotate_speed", "translate_speed", "max_speed", "acceleration", "power_draw"} {
			if numbers[name] < 0 {
				return fmt.Errorf("actuators[%d] (%s).%s must not be negative", i, s.Key, name)
			}
		}
	}
	return nil
}

// Build creates the actuator described by s.
func (s ActuatorSpec) Build() (*servo.Actuator, error) {
	kind, err := servo.ParseKind(s.Kind)
	if err != nil {
		return nil, err
	}
	name := s.Name
	if name == "" {
		name = s.Key
	}
	return servo.New(servo.Config{
		Key:            s.Key,
		Name:           name,
		Kind:           kind,
		Position:       s.Position,
		RotateMin:      s.RotateMin,
		RotateMax:      s.RotateMax,
		TranslateMin:   s.TranslateMin,
		TranslateMax:   s.TranslateMax,
		RotateSpeed:    s.RotateSpeed,
		TranslateSpeed: s.TranslateSpeed,
		MaxSpeed:       s.MaxSpeed,
		Acceleration:   s.Acceleration,
		PowerDraw:      s.PowerDraw,
		Center:         s.Center,
		FreeMoving:     s.FreeMoving,
		Inverted:       s.Inverted,
		Locked:         s.Locked,
		Symmetry:       s.Symmetry,
	}), nil
}

// Entries builds every actuator in manifest order.
func (m *Manifest) Entries() ([]group.Entry, error) {
	entries := make([]group.Entry, 0, len(m.Actuators))
	for _, s := range m.Actuators {
		a, err := s.Build()
		if err != nil {
			return nil, fmt.Errorf("build %s: %w", s.Key, err)
		}
		entries = append(entries, group.Entry{Actuator: a, Group: s.Group})
	}
	return entries, nil
}

// Change is the difference between two manifests. Changed entries keep
// their key but differ in some other field.
type Change struct {
	Added   []ActuatorSpec
	Removed []string
	Changed []ActuatorSpec
}

// Empty reports whether nothing changed.
func (c Change) Empty() bool {
	return len(c.Added) == 0 && len(c.Removed) == 0 && len(c.Changed) == 0
}

// Diff compares two manifests by key. Order follows the manifests: removed
// keys in old order, added and changed specs in new order. A nil manifest
// is empty.
func Diff(old, next *Manifest) Change {
	prev := make(map[string]ActuatorSpec)
	if old != nil {
		for _, s := range old.Actuators {
			prev[s.Key] = s
		}
	}
	cur := make(map[string]bool)

	var c Change
	if next != nil {
		for _, s := range next.Actuators {
			cur[s.Key] = true
			p, ok := prev[s.Key]
			switch {
			case !ok:
				c.Added = append(c.Added, s)
			case !reflect.DeepEqual(p, s):
				c.Changed = append(c.Changed, s)
			}
		}
	}
	if old != nil {
		for _, s := range old.Actuators {
			if !cur[s.Key] {
				c.Removed = append(c.Removed, s.Key)
			}
		}
	}
	return c
}

// Events turns a change into controller events. A changed entry is
// detached and attached again, which resets its motion state and moves it
// to the end of its group.
func (c Change) Events() ([]control.Event, error) {
	var events []control.Event
	for _, key := range c.Removed {
		events = append(events, control.Detach{Key: key})
	}
	for _, s := range c.Changed {
		events = append(events, control.Detach{Key: s.Key})
	}
	for _, specs := range [][]ActuatorSpec{c.Changed, c.Added} {
		for _, s := range specs {
			a, err := s.Build()
			if err != nil {
				return nil, fmt.Errorf("build %s: %w", s.Key, err)
			}
			events = append(events, control.Attach{Actuator: a, Group: s.Group})
		}
	}
	return events, nil
}

// Submitter accepts controller events.
type Submitter interface {
	Submit(e control.Event)
}

// Reloader remembers the manifest last applied and submits the difference
// when a new one arrives.
type Reloader struct {
	mu      sync.Mutex
	current *Manifest
	sink    Submitter
}

// NewReloader starts from the manifest the controller was assembled from.
func NewReloader(initial *Manifest, sink Submitter) *Reloader {
	return &Reloader{current: initial, sink: sink}
}

// Reload applies next. On error nothing is submitted and the previous
// manifest stays current.
func (r *Reloader) Reload(next *Manifest) (Change, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	change := Diff(r.current, next)
	if change.Empty() {
		debug.Verbose("host: manifest reloaded, no change")
		return change, nil
	}
	events, err := change.Events()
	if err != nil {
		return Change{}, err
	}
	for _, e := range events {
		r.sink.Submit(e)
	}
	r.current = next
	debug.Info("host: manifest reloaded (+%d -%d ~%d)", len(change.Added), len(change.Removed), len(change.Changed))
	return change, nil
}
