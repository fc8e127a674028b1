package servo

import (
	"math"

	"github.com/google/uuid"
)

// ID is the identity key assigned to an actuator when it is created.
type ID = uuid.UUID

// Config holds what the host reports about an actuator when it attaches.
// Both the rotate and translate fields are carried; the Kind decides which
// pair applies.
type Config struct {
	Key  string
	Name string
	Kind Kind

	Position float64

	RotateMin, RotateMax       float64
	TranslateMin, TranslateMax float64
	RotateSpeed                float64
	TranslateSpeed             float64
	MaxSpeed                   float64 // 0 = same as the default speed
	Acceleration               float64 // 0 = no acceleration governor

	PowerDraw  float64
	Center     *float64 // nil = 0, clamped into the hard range
	FreeMoving bool
	Inverted   bool
	Locked     bool
	Symmetry   string
}

// Owner is the weak back-reference from an actuator to its group.
type Owner interface {
	Name() string
	// Invalidate marks aggregates derived from the members as stale.
	Invalidate()
}

// PresetSink receives the persisted form of a preset list.
type PresetSink interface {
	StorePresets(key, encoded string) error
}

// SiblingSource resolves the symmetry set an actuator belongs to.
type SiblingSource interface {
	Siblings(a *Actuator) []*Actuator
}

// Actuator is one controllable motion axis. It carries its own motion state
// machine (see mechanism.go) and owns its preset list.
type Actuator struct {
	id   ID
	key  string
	name string
	kind Kind

	position        float64
	hardMin         float64
	hardMax         float64
	minLimit        float64
	maxLimit        float64
	center          float64
	defaultSpeed    float64
	maxSpeed        float64
	speedLimit      float64
	accelLimit      float64
	currentSpeed    float64
	locked          bool
	inverted        bool
	freeMoving      bool
	powerDraw       float64
	symmetry        string
	persisted       string
	speedMultiplier float64
	forwardKey      string
	reverseKey      string

	cmd command

	presets  *PresetList
	owner    Owner
	sink     PresetSink
	siblings SiblingSource
}

// New creates an actuator from host data and assigns it a fresh ID.
func New(cfg Config) *Actuator {
	spec := cfg.Kind.spec()

	a := &Actuator{
		id:              uuid.New(),
		key:             cfg.Key,
		name:            cfg.Name,
		kind:            cfg.Kind,
		locked:          cfg.Locked,
		inverted:        cfg.Inverted,
		freeMoving:      cfg.FreeMoving,
		powerDraw:       math.Max(cfg.PowerDraw, 0),
		symmetry:        cfg.Symmetry,
		speedMultiplier: 1,
	}
	if a.name == "" {
		a.name = cfg.Key
	}

	a.hardMin, a.hardMax = spec.hardRange(cfg)
	if !(a.hardMin < a.hardMax) {
		a.hardMin, a.hardMax = spec.defaultMin, spec.defaultMax
	}
	a.minLimit, a.maxLimit = a.hardMin, a.hardMax

	a.defaultSpeed = spec.defaultSpeed(cfg)
	if a.defaultSpeed <= 0 {
		a.defaultSpeed = 1
	}
	a.maxSpeed = cfg.MaxSpeed
	if a.maxSpeed <= 0 {
		a.maxSpeed = a.defaultSpeed
	}
	a.speedLimit = a.defaultSpeed
	a.accelLimit = math.Max(cfg.Acceleration, 0)

	if cfg.Center != nil {
		a.center = clamp(*cfg.Center, a.hardMin, a.hardMax)
	} else {
		a.center = clamp(0, a.hardMin, a.hardMax)
	}
	a.position = clamp(cfg.Position, a.minLimit, a.maxLimit)

	a.presets = &PresetList{owner: a, cursor: -1}
	return a
}

// ID returns the identity key.
func (a *Actuator) ID() ID { return a.id }

// Equal reports whether both values refer to the same actuator.
func (a *Actuator) Equal(b *Actuator) bool {
	return a != nil && b != nil && a.id == b.id
}

// Key returns the host key used for persistence and output bindings.
func (a *Actuator) Key() string          { return a.key }
func (a *Actuator) Name() string         { return a.name }
func (a *Actuator) Kind() Kind           { return a.kind }
func (a *Actuator) Symmetry() string     { return a.symmetry }
func (a *Actuator) Presets() *PresetList { return a.presets }

func (a *Actuator) SetName(name string) {
	if name != "" {
		a.name = name
	}
}

func (a *Actuator) Position() float64          { return a.position }
func (a *Actuator) MinPosition() float64       { return a.hardMin }
func (a *Actuator) MaxPosition() float64       { return a.hardMax }
func (a *Actuator) MinLimit() float64          { return a.minLimit }
func (a *Actuator) MaxLimit() float64          { return a.maxLimit }
func (a *Actuator) Center() float64            { return a.center }
func (a *Actuator) DefaultSpeed() float64      { return a.defaultSpeed }
func (a *Actuator) MaxSpeed() float64          { return a.maxSpeed }
func (a *Actuator) SpeedLimit() float64        { return a.speedLimit }
func (a *Actuator) AccelerationLimit() float64 { return a.accelLimit }
func (a *Actuator) CurrentSpeed() float64      { return a.currentSpeed }
func (a *Actuator) IsLocked() bool             { return a.locked }
func (a *Actuator) IsInverted() bool           { return a.inverted }
func (a *Actuator) IsFreeMoving() bool         { return a.freeMoving }
func (a *Actuator) PowerDraw() float64         { return a.powerDraw }

// SetMinLimit clamps v into the hard range and below the max limit.
func (a *Actuator) SetMinLimit(v float64) {
	if math.IsNaN(v) {
		return
	}
	a.minLimit = math.Min(clamp(v, a.hardMin, a.hardMax), a.maxLimit)
}

// SetMaxLimit clamps v into the hard range and above the min limit.
func (a *Actuator) SetMaxLimit(v float64) {
	if math.IsNaN(v) {
		return
	}
	a.maxLimit = math.Max(clamp(v, a.hardMin, a.hardMax), a.minLimit)
}

func (a *Actuator) SetSpeedLimit(v float64) {
	if math.IsNaN(v) {
		return
	}
	a.speedLimit = math.Max(v, 0)
}

func (a *Actuator) SetAccelerationLimit(v float64) {
	if math.IsNaN(v) {
		return
	}
	a.accelLimit = math.Max(v, 0)
}

// SetCenter sets the neutral target used by MoveCenter.
func (a *Actuator) SetCenter(v float64) {
	if math.IsNaN(v) {
		return
	}
	a.center = clamp(v, a.hardMin, a.hardMax)
}

func (a *Actuator) SetInverted(v bool) { a.inverted = v }

func (a *Actuator) SetPowerDraw(v float64) {
	if math.IsNaN(v) {
		return
	}
	a.powerDraw = math.Max(v, 0)
	a.invalidate()
}

// SetFreeMoving excludes the actuator from driving and from power draw.
func (a *Actuator) SetFreeMoving(v bool) {
	a.freeMoving = v
	if v {
		a.cmd = command{}
		a.currentSpeed = 0
	}
	a.invalidate()
}

// SetHardRange replaces the physical range, e.g. after a host update.
func (a *Actuator) SetHardRange(lo, hi float64) {
	if !(lo < hi) {
		return
	}
	a.hardMin, a.hardMax = lo, hi
	a.Reconfigure()
}

// Reconfigure re-applies the hard range to limits, center and position.
func (a *Actuator) Reconfigure() {
	a.minLimit = clamp(a.minLimit, a.hardMin, a.hardMax)
	a.maxLimit = clamp(a.maxLimit, a.hardMin, a.hardMax)
	if a.minLimit > a.maxLimit {
		a.minLimit, a.maxLimit = a.hardMin, a.hardMax
	}
	a.center = clamp(a.center, a.hardMin, a.hardMax)
	a.position = clamp(a.position, a.minLimit, a.maxLimit)
}

// Reset returns the actuator to its neutral position, unlocked and at rest.
func (a *Actuator) Reset() {
	a.locked = false
	a.cmd = command{}
	a.currentSpeed = 0
	a.position = clamp(a.center, a.minLimit, a.maxLimit)
}

// SpeedMultiplier, ForwardKey and ReverseKey are written by the owning group.
func (a *Actuator) SpeedMultiplier() float64 { return a.speedMultiplier }
func (a *Actuator) ForwardKey() string       { return a.forwardKey }
func (a *Actuator) ReverseKey() string       { return a.reverseKey }

func (a *Actuator) SetSpeedMultiplier(v float64) {
	if math.IsNaN(v) {
		return
	}
	a.speedMultiplier = math.Max(v, 0)
}

func (a *Actuator) SetKeys(forward, reverse string) {
	a.forwardKey = forward
	a.reverseKey = reverse
}

// Owner returns the owning group, or nil when detached.
func (a *Actuator) Owner() Owner { return a.owner }

// SetOwner updates the owning-group reference.
func (a *Actuator) SetOwner(o Owner) { a.owner = o }

// GroupName returns the owning group's name, or "" when detached.
func (a *Actuator) GroupName() string {
	if a.owner == nil {
		return ""
	}
	return a.owner.Name()
}

// SetPersistence wires where saved presets go and how symmetry siblings
// are found. Either may be nil.
func (a *Actuator) SetPersistence(sink PresetSink, siblings SiblingSource) {
	a.sink = sink
	a.siblings = siblings
}

// Persisted returns the last saved preset text.
func (a *Actuator) Persisted() string { return a.persisted }

func (a *Actuator) invalidate() {
	if a.owner != nil {
		a.owner.Invalidate()
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
