package servo

import (
	"math"

	"github.com/cjeanneret/ServoGo/internal/debug"
)

// State is the motion state reported for an actuator.
type State int

const (
	StateIdle State = iota
	StateMovingPositive
	StateMovingNegative
	StateLocked
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateMovingPositive:
		return "moving+"
	case StateMovingNegative:
		return "moving-"
	case StateLocked:
		return "locked"
	}
	return "unknown"
}

type commandMode int

const (
	cmdNone commandMode = iota
	cmdJog
	cmdTarget
)

// command is what the actuator is currently asked to do. A jog travels in
// dir until stopped or clamped; a target travels to an absolute position.
type command struct {
	mode   commandMode
	dir    float64
	target float64
	scale  float64
}

// arrival tolerance for absolute targets
const targetEpsilon = 1e-6

// State derives the state machine position from the active command.
// Locked overrides everything.
func (a *Actuator) State() State {
	if a.locked {
		return StateLocked
	}
	switch a.cmd.mode {
	case cmdJog:
		if a.cmd.dir > 0 {
			return StateMovingPositive
		}
		return StateMovingNegative
	case cmdTarget:
		if a.cmd.target > a.position {
			return StateMovingPositive
		}
		if a.cmd.target < a.position {
			return StateMovingNegative
		}
	}
	return StateIdle
}

// IsMoving reports whether a command is active or the actuator is still
// coasting to rest.
func (a *Actuator) IsMoving() bool {
	return a.cmd.mode != cmdNone || a.currentSpeed != 0
}

// Target returns the absolute target and whether one is active.
func (a *Actuator) Target() (float64, bool) {
	return a.cmd.target, a.cmd.mode == cmdTarget
}

// SetLocked engages or releases the lock. Locking drops the active command
// and the current speed.
func (a *Actuator) SetLocked(v bool) {
	a.locked = v
	if v {
		a.cmd = command{}
		a.currentSpeed = 0
	}
}

// MovePositive starts a continuous jog in the positive command direction.
// Returns false when the actuator refuses commands.
func (a *Actuator) MovePositive() bool {
	return a.jog(1, "move+")
}

// MoveNegative starts a continuous jog in the negative command direction.
func (a *Actuator) MoveNegative() bool {
	return a.jog(-1, "move-")
}

func (a *Actuator) jog(sign float64, label string) bool {
	if !a.accepts() {
		return false
	}
	if a.inverted {
		sign = -sign
	}
	a.cmd = command{mode: cmdJog, dir: sign, scale: 1}
	debug.Move(a.name, label)
	return true
}

// MoveCenter travels to the configured neutral position.
func (a *Actuator) MoveCenter() bool {
	return a.MoveTo(a.center)
}

// MoveTo travels to position, clamped into the soft limits.
func (a *Actuator) MoveTo(position float64) bool {
	return a.MoveToSpeed(position, 1)
}

// MoveToSpeed is MoveTo with the speed scaled by speedScale (<= 0 means 1).
func (a *Actuator) MoveToSpeed(position, speedScale float64) bool {
	if !a.accepts() || math.IsNaN(position) {
		return false
	}
	if !(speedScale > 0) {
		speedScale = 1
	}
	a.cmd = command{
		mode:   cmdTarget,
		target: clamp(position, a.minLimit, a.maxLimit),
		scale:  speedScale,
	}
	debug.Move(a.name, debug.Fmt("move to %.2f", a.cmd.target))
	return true
}

// Stop drops the active command. Speed decays at the acceleration limit
// over the following ticks, or at once when there is no governor.
func (a *Actuator) Stop() bool {
	if a.locked {
		return false
	}
	a.cmd = command{}
	if a.accelLimit <= 0 {
		a.currentSpeed = 0
	}
	return true
}

func (a *Actuator) accepts() bool {
	return !a.locked && !a.freeMoving
}

// maxVelocity is the speed cap for the active command.
func (a *Actuator) maxVelocity() float64 {
	scale := a.cmd.scale
	if scale <= 0 {
		scale = 1
	}
	return math.Min(a.speedLimit, a.maxSpeed) * a.speedMultiplier * scale
}

// Tick advances the actuator by dt seconds: pick the commanded velocity,
// ramp toward it within the acceleration limit, integrate, then clamp into
// the soft limits.
func (a *Actuator) Tick(dt float64) {
	if !(dt > 0) {
		return
	}
	if a.locked || a.freeMoving {
		a.currentSpeed = 0
		a.position = clamp(a.position, a.minLimit, a.maxLimit)
		return
	}

	vmax := a.maxVelocity()
	desired := 0.0
	switch a.cmd.mode {
	case cmdJog:
		desired = a.cmd.dir * vmax
	case cmdTarget:
		a.cmd.target = clamp(a.cmd.target, a.minLimit, a.maxLimit)
		remaining := a.cmd.target - a.position
		dist := math.Abs(remaining)
		speed := math.Min(vmax, dist/dt)
		if a.accelLimit > 0 {
			speed = math.Min(speed, brakingSpeed(dist, a.accelLimit*dt, dt))
		}
		desired = math.Copysign(speed, remaining)
	}

	dv := desired - a.currentSpeed
	if a.accelLimit > 0 {
		step := a.accelLimit * dt
		dv = clamp(dv, -step, step)
	}
	a.currentSpeed += dv
	if math.Abs(a.currentSpeed) < 1e-12 {
		a.currentSpeed = 0
	}

	before := a.position
	a.position += a.currentSpeed * dt

	if a.cmd.mode == cmdTarget {
		t := a.cmd.target
		// A governed actuator lands with some speed left and sheds it on
		// the next tick while holding the target.
		if a.accelLimit <= 0 {
			if (before-t)*(a.position-t) < 0 || math.Abs(a.position-t) <= targetEpsilon {
				a.position = t
				a.currentSpeed = 0
			}
		} else if math.Abs(a.position-t) <= targetEpsilon {
			a.position = t
		}
		if a.position == t && a.currentSpeed == 0 {
			a.cmd = command{}
		}
	}

	switch {
	case a.position > a.maxLimit:
		a.position = a.maxLimit
		a.stopAtLimit(1)
	case a.position < a.minLimit:
		a.position = a.minLimit
		a.stopAtLimit(-1)
	}
}

// brakingSpeed is the highest speed from which the actuator still stops
// within dist when it may shed step of speed per tick of dt.
func brakingSpeed(dist, step, dt float64) float64 {
	n := math.Max(1, math.Ceil(math.Sqrt(0.25+2*dist/(step*dt))-0.5))
	return dist/(n*dt) + step*(n-1)/2
}

// stopAtLimit zeroes travel toward the limit that was hit so the actuator
// does not keep pushing into it.
func (a *Actuator) stopAtLimit(sign float64) {
	if a.currentSpeed*sign > 0 {
		a.currentSpeed = 0
	}
	if a.cmd.mode == cmdJog && a.cmd.dir*sign > 0 {
		a.cmd = command{}
		debug.Verbose("%s: limit reached at %.2f", a.name, a.position)
	}
}
