package control

import (
	"github.com/cjeanneret/ServoGo/internal/logic/group"
	"github.com/cjeanneret/ServoGo/internal/logic/servo"
)

// Snapshot is the view model handed to renderers.
type Snapshot struct {
	Tick   uint64      `json:"tick"`
	Groups []GroupView `json:"groups"`
}

// GroupView is one group as rendered.
type GroupView struct {
	ID              string         `json:"id"`
	Name            string         `json:"name"`
	Expanded        bool           `json:"expanded"`
	ForwardKey      string         `json:"forward_key"`
	ReverseKey      string         `json:"reverse_key"`
	SpeedMultiplier float64        `json:"speed_multiplier"`
	PowerDraw       float64        `json:"power_draw"`
	MovingPositive  bool           `json:"moving_positive"`
	MovingNegative  bool           `json:"moving_negative"`
	Held            bool           `json:"held"`
	Members         []ActuatorView `json:"members"`
}

// ActuatorView is one actuator as rendered.
type ActuatorView struct {
	ID                string    `json:"id"`
	Key               string    `json:"key"`
	Name              string    `json:"name"`
	Kind              string    `json:"kind"`
	State             string    `json:"state"`
	Position          float64   `json:"position"`
	IsMoving          bool      `json:"is_moving"`
	IsLocked          bool      `json:"is_locked"`
	IsInverted        bool      `json:"is_inverted"`
	IsFreeMoving      bool      `json:"is_free_moving"`
	MinPosition       float64   `json:"min_position"`
	MaxPosition       float64   `json:"max_position"`
	MinLimit          float64   `json:"min_limit"`
	MaxLimit          float64   `json:"max_limit"`
	SpeedLimit        float64   `json:"speed_limit"`
	AccelerationLimit float64   `json:"acceleration_limit"`
	CurrentSpeed      float64   `json:"current_speed"`
	PowerDraw         float64   `json:"power_draw"`
	Presets           []float64 `json:"presets"`
	PresetCursor      int       `json:"preset_cursor"`
}

// Snapshot builds the view model from the live state. Only the tick
// goroutine may call it; others use Published.
func (c *Controller) Snapshot() Snapshot {
	s := Snapshot{Tick: c.ticks}
	for _, g := range c.registry.Groups() {
		s.Groups = append(s.Groups, groupView(g))
	}
	return s
}

// Published returns the snapshot taken at the end of the last tick.
func (c *Controller) Published() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.published
}

func (c *Controller) publish() {
	s := c.Snapshot()
	c.mu.Lock()
	c.published = s
	c.mu.Unlock()
}

func groupView(g *group.Group) GroupView {
	v := GroupView{
		ID:              g.ID(),
		Name:            g.Name(),
		Expanded:        g.Expanded,
		ForwardKey:      g.ForwardKey(),
		ReverseKey:      g.ReverseKey(),
		SpeedMultiplier: g.SpeedMultiplier(),
		PowerDraw:       g.AggregatePowerDraw(),
		MovingPositive:  g.MovingPositive,
		MovingNegative:  g.MovingNegative,
		Held:            g.Held(),
		Members:         []ActuatorView{},
	}
	for _, a := range g.Members() {
		v.Members = append(v.Members, actuatorView(a))
	}
	return v
}

func actuatorView(a *servo.Actuator) ActuatorView {
	return ActuatorView{
		ID:                a.ID().String(),
		Key:               a.Key(),
		Name:              a.Name(),
		Kind:              a.Kind().String(),
		State:             a.State().String(),
		Position:          a.Position(),
		IsMoving:          a.IsMoving(),
		IsLocked:          a.IsLocked(),
		IsInverted:        a.IsInverted(),
		IsFreeMoving:      a.IsFreeMoving(),
		MinPosition:       a.MinPosition(),
		MaxPosition:       a.MaxPosition(),
		MinLimit:          a.MinLimit(),
		MaxLimit:          a.MaxLimit(),
		SpeedLimit:        a.SpeedLimit(),
		AccelerationLimit: a.AccelerationLimit(),
		CurrentSpeed:      a.CurrentSpeed(),
		PowerDraw:         a.PowerDraw(),
		Presets:           append([]float64{}, a.Presets().Values()...),
		PresetCursor:      a.Presets().Cursor(),
	}
}
