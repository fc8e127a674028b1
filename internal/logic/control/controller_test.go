package control

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cjeanneret/ServoGo/internal/logic/group"
	"github.com/cjeanneret/ServoGo/internal/logic/reorder"
	"github.com/cjeanneret/ServoGo/internal/logic/servo"
)

type mapPresets map[string]string

func (m mapPresets) Lookup(key string) (string, bool) {
	v, ok := m[key]
	return v, ok
}

type recordingOutput struct {
	syncs int
	last  map[string]float64
	err   error
}

func (o *recordingOutput) Sync(actuators []*servo.Actuator) error {
	o.syncs++
	o.last = make(map[string]float64)
	for _, a := range actuators {
		o.last[a.Key()] = a.Position()
	}
	return o.err
}

func actuator(key string) *servo.Actuator {
	return servo.New(servo.Config{
		Key:         key,
		Kind:        servo.Rotary,
		RotateMin:   -10,
		RotateMax:   10,
		RotateSpeed: 1,
	})
}

// newController returns arm=[a b], leg=[c]
func newController(t *testing.T) (*Controller, *recordingOutput) {
	t.Helper()
	out := &recordingOutput{}
	c := New(Options{
		Registry: group.NewRegistry("Default", nil),
		Presets:  mapPresets{"a": "3,-1"},
		Output:   out,
	})
	c.Assemble([]group.Entry{
		{Actuator: actuator("a"), Group: "arm"},
		{Actuator: actuator("b"), Group: "arm"},
		{Actuator: actuator("c"), Group: "leg"},
	})
	return c, out
}

func position(t *testing.T, c *Controller, key string) float64 {
	t.Helper()
	a, ok := c.Registry().LookupKey(key)
	require.True(t, ok)
	return a.Position()
}

func TestController_AssembleLoadsPresets(t *testing.T) {
	c, _ := newController(t)
	a, _ := c.Registry().LookupKey("a")
	assert.Equal(t, []float64{-1, 3}, a.Presets().Values())
}

func TestController_CommandAppliedOnTick(t *testing.T) {
	c, out := newController(t)
	c.Submit(Command{Op: OpMovePositive, Group: "arm"})
	assert.Zero(t, position(t, c, "a"), "nothing happens before the tick")

	c.Tick(1)
	assert.Equal(t, 1.0, position(t, c, "a"))
	assert.Equal(t, 1.0, position(t, c, "b"))
	assert.Equal(t, 0.0, position(t, c, "c"))
	assert.Equal(t, 1, out.syncs)
	assert.Equal(t, 1.0, out.last["b"])
}

func TestController_HoldAndRelease(t *testing.T) {
	c, _ := newController(t)
	c.Submit(Press{Group: "leg", Dir: -1})
	c.Tick(1)
	c.Tick(1)
	assert.Equal(t, -2.0, position(t, c, "c"))

	g := c.Registry().GroupByName("leg")
	assert.True(t, g.Held())

	c.Submit(Release{})
	c.Tick(1)
	assert.Equal(t, -2.0, position(t, c, "c"))
	assert.False(t, g.Held())
}

func TestController_ActuatorHold(t *testing.T) {
	c, _ := newController(t)
	c.Submit(Press{Actuator: "b", Dir: 1})
	c.Tick(2)
	assert.Equal(t, 2.0, position(t, c, "b"))
	assert.Zero(t, position(t, c, "a"))

	c.Submit(Release{})
	c.Tick(1)
	assert.Equal(t, 2.0, position(t, c, "b"))
}

func TestController_KeyBindings(t *testing.T) {
	c, _ := newController(t)
	c.Submit(Command{Op: OpGroupKeys, Group: "arm", Text: "u, j"})
	c.Tick(0)

	c.Submit(Key{Name: "u", Action: KeyPress})
	c.Tick(1)
	assert.Equal(t, 1.0, position(t, c, "a"))

	c.Submit(Key{Name: "u", Action: KeyRelease})
	c.Tick(1)
	assert.Equal(t, 1.0, position(t, c, "a"))

	// a tap latches until tapped again
	c.Submit(Key{Name: "j", Action: KeyTap})
	c.Tick(1)
	c.Tick(1)
	assert.Equal(t, -1.0, position(t, c, "a"))
	assert.True(t, c.Registry().GroupByName("arm").MovingNegative)

	c.Submit(Key{Name: "j", Action: KeyTap})
	c.Tick(1)
	assert.Equal(t, -1.0, position(t, c, "a"))
	assert.False(t, c.Registry().GroupByName("arm").MovingNegative)
}

func TestController_ErrorsDoNotStopDispatch(t *testing.T) {
	c, _ := newController(t)
	c.Submit(Command{Op: OpMovePositive, Actuator: "nope"})
	c.Submit(Command{Op: OpPresetGoto, Actuator: "b", Index: 4})
	c.Submit(Command{Op: OpEdit, Actuator: "b", Field: servo.FieldMaxLimit, Text: "abc"})
	c.Submit(Command{Op: OpMovePositive, Actuator: "c"})
	c.Tick(1)
	assert.Equal(t, 1.0, position(t, c, "c"))
	assert.Zero(t, c.queue.Len())
}

func TestCommand_Errors(t *testing.T) {
	c, _ := newController(t)

	err := Command{Op: OpMovePositive, Group: "ghost"}.apply(c)
	assert.True(t, errors.Is(err, ErrUnknownTarget))

	err = Command{Op: "spin", Group: "arm"}.apply(c)
	assert.True(t, errors.Is(err, ErrUnknownOp))

	err = Command{Op: OpPresetRemove, Actuator: "a", Index: 9}.apply(c)
	assert.True(t, errors.Is(err, servo.ErrOutOfRange))

	err = Command{Op: OpEdit, Actuator: "a", Field: servo.FieldCenter, Text: "x"}.apply(c)
	assert.True(t, errors.Is(err, servo.ErrInvalidNumericInput))

	assert.True(t, Known(OpLatchNegative))
	assert.False(t, Known("spin"))
}

func TestController_StructureCommands(t *testing.T) {
	c, _ := newController(t)
	c.Submit(Command{Op: OpAddGroup})
	c.Submit(Command{Op: OpRename, Group: "leg", Text: "legs"})
	c.Submit(Command{Op: OpGroupSpeed, Group: "arm", Value: 3})
	c.Tick(0)

	snap := c.Published()
	require.Len(t, snap.Groups, 3)
	assert.Equal(t, "legs", snap.Groups[1].Name)
	assert.Equal(t, "New Group 3", snap.Groups[2].Name)
	assert.Equal(t, 3.0, snap.Groups[0].SpeedMultiplier)

	c.Submit(Command{Op: OpDeleteGroup, Group: "legs"})
	c.Tick(0)
	snap = c.Published()
	require.Len(t, snap.Groups, 2)
	assert.Len(t, snap.Groups[0].Members, 3)
}

func TestController_AttachDetach(t *testing.T) {
	c, _ := newController(t)
	c.Submit(Attach{Actuator: actuator("d"), Group: "tail"})
	c.Submit(Attach{Actuator: actuator("a"), Group: "arm"})
	c.Tick(0)

	snap := c.Published()
	require.Len(t, snap.Groups, 3)
	assert.Equal(t, "tail", snap.Groups[2].Name)
	assert.Len(t, snap.Groups[0].Members, 2, "duplicate key is refused")

	c.Submit(Detach{Key: "d"})
	c.Tick(0)
	snap = c.Published()
	require.Len(t, snap.Groups, 3)
	assert.Empty(t, snap.Groups[2].Members)
}

func TestController_ReorderAppliedAfterMotion(t *testing.T) {
	c, _ := newController(t)
	c.Submit(Reorder{Drop: reorder.Drop{Kind: reorder.KindActuator, FromGroup: 0, From: 0, ToGroup: 1, Over: 0, Upper: false}})
	c.Submit(Reorder{Drop: reorder.Drop{Kind: reorder.KindGroup, From: 0, Over: 1, Upper: false}})
	c.Tick(0)

	snap := c.Published()
	require.Len(t, snap.Groups, 2)
	assert.Equal(t, "arm", snap.Groups[0].Name, "second reorder in the same tick is refused")
	assert.Equal(t, []string{"b"}, memberKeys(snap.Groups[0]))
	assert.Equal(t, []string{"c", "a"}, memberKeys(snap.Groups[1]))

	_, pending := c.Pending()
	assert.False(t, pending)
}

func TestController_PointerDragThroughEngine(t *testing.T) {
	c, _ := newController(t)
	view := reorder.Rect{W: 100, H: 100}
	frame := func() {
		e := c.Engine()
		e.BeginFrame(view, view, 0)
		e.RegisterRow(reorder.Row{Kind: reorder.KindGroup, Group: 0, Index: 0, Members: 2, Bounds: reorder.Rect{Y: 0, W: 100, H: 1}, Handle: reorder.Rect{Y: 0, W: 1, H: 1}})
		e.RegisterRow(reorder.Row{Kind: reorder.KindActuator, Group: 0, Index: 0, Bounds: reorder.Rect{Y: 1, W: 100, H: 1}, Handle: reorder.Rect{Y: 1, W: 1, H: 1}})
		e.RegisterRow(reorder.Row{Kind: reorder.KindActuator, Group: 0, Index: 1, Bounds: reorder.Rect{Y: 2, W: 100, H: 1}, Handle: reorder.Rect{Y: 2, W: 1, H: 1}})
		e.EndGroup(0)
	}

	c.Submit(Pointer{reorder.Pointer{Pos: reorder.Point{X: 0.5, Y: 1.5}, Pressed: true}})
	c.Tick(0)
	frame()
	c.EndFrame(0.02)

	c.Submit(Pointer{reorder.Pointer{Pos: reorder.Point{X: 50, Y: 2.9}, Released: true}})
	c.Tick(0)
	frame()
	res := c.EndFrame(0.02)
	require.NotNil(t, res.Instruction)

	c.Tick(0)
	assert.Equal(t, []string{"b", "a"}, memberKeys(c.Published().Groups[0]))
}

// registryFrame registers one row per group and member, one unit tall,
// the way the terminal editor does.
func registryFrame(c *Controller) {
	view := reorder.Rect{W: 100, H: 100}
	e := c.Engine()
	e.BeginFrame(view, view, 0)
	y := 0.0
	for gi, g := range c.Registry().Groups() {
		e.RegisterRow(reorder.Row{Kind: reorder.KindGroup, Group: gi, Index: gi, Key: g.ID(), Members: g.Len(),
			Bounds: reorder.Rect{Y: y, W: 100, H: 1}, Handle: reorder.Rect{Y: y, W: 1, H: 1}})
		y++
		for i, a := range g.Members() {
			e.RegisterRow(reorder.Row{Kind: reorder.KindActuator, Group: gi, Index: i, Key: a.ID().String(),
				Bounds: reorder.Rect{Y: y, W: 100, H: 1}, Handle: reorder.Rect{Y: y, W: 1, H: 1}})
			y++
		}
	}
	for gi := range c.Registry().Groups() {
		e.EndGroup(gi)
	}
}

func layout(snap Snapshot) map[string][]string {
	out := make(map[string][]string)
	for _, g := range snap.Groups {
		out[g.Name] = memberKeys(g)
	}
	return out
}

func TestController_StaleDropIsRefused(t *testing.T) {
	cases := []struct {
		name  string
		event Event
	}{
		{"detach dragged actuator", Detach{Key: "a"}},
		{"delete source group", Command{Op: OpDeleteGroup, Group: "arm"}},
		{"transfer dragged actuator", Command{Op: OpTransferDown, Actuator: "a"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c, _ := newController(t)

			// a dropped on the upper half of c: arm=[b], leg=[a c]
			c.Submit(Pointer{reorder.Pointer{Pos: reorder.Point{X: 0.5, Y: 1.5}, Pressed: true}})
			c.Tick(0)
			registryFrame(c)
			c.EndFrame(0.02)
			c.Submit(Pointer{reorder.Pointer{Pos: reorder.Point{X: 50, Y: 4.2}, Released: true}})
			c.Tick(0)
			registryFrame(c)
			c.EndFrame(0.02)
			instr, pending := c.Pending()
			require.True(t, pending)
			require.Equal(t, 0, instr.From)
			require.Equal(t, 1, instr.ToGroup)

			// the same change without a drop in flight
			want, _ := newController(t)
			want.Submit(tc.event)
			want.Tick(0)

			c.Submit(tc.event)
			c.Tick(0)

			assert.ErrorIs(t, c.ReorderErr(), group.ErrInconsistentGroupState)
			assert.Equal(t, layout(want.Published()), layout(c.Published()))
			_, pending = c.Pending()
			assert.False(t, pending)
		})
	}
}

func TestController_DropAppliesWhenUnchanged(t *testing.T) {
	c, _ := newController(t)
	c.Submit(Pointer{reorder.Pointer{Pos: reorder.Point{X: 0.5, Y: 1.5}, Pressed: true}})
	c.Tick(0)
	registryFrame(c)
	c.EndFrame(0.02)
	c.Submit(Pointer{reorder.Pointer{Pos: reorder.Point{X: 50, Y: 4.2}, Released: true}})
	c.Tick(0)
	registryFrame(c)
	c.EndFrame(0.02)

	c.Submit(Command{Op: OpAddGroup, Text: "spare"})
	c.Tick(0)

	require.NoError(t, c.ReorderErr())
	assert.Equal(t, map[string][]string{"arm": {"b"}, "leg": {"a", "c"}, "spare": nil}, layout(c.Published()))
}

func TestController_PresetSaveAndNavigate(t *testing.T) {
	c, _ := newController(t)
	c.Submit(Command{Op: OpPresetSet, Actuator: "a", Index: 0, Text: "7"})
	c.Submit(Command{Op: OpPresetCommit, Actuator: "a"})
	c.Tick(0)

	a, _ := c.Registry().LookupKey("a")
	assert.Equal(t, []float64{3, 7}, a.Presets().Values())

	c.Submit(Command{Op: OpNextPreset, Group: "arm"})
	c.Tick(10)
	assert.Equal(t, 7.0, a.Position())
}

func TestController_StopAll(t *testing.T) {
	c, _ := newController(t)
	c.Submit(Command{Op: OpLatchPositive, Group: "arm"})
	c.Submit(Press{Group: "leg", Dir: 1})
	c.Tick(1)
	c.Submit(Command{Op: OpStopAll})
	c.Tick(1)
	assert.Equal(t, 1.0, position(t, c, "a"))
	assert.Equal(t, 1.0, position(t, c, "c"))
	assert.False(t, c.Registry().GroupByName("arm").MovingPositive)
}

func TestController_SubmitFromManyGoroutines(t *testing.T) {
	c, _ := newController(t)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				c.Submit(Command{Op: OpStop, Group: "arm"})
				_ = c.Published()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 400, c.queue.Len())
	c.Tick(0.01)
	assert.Zero(t, c.queue.Len())
}

func memberKeys(g GroupView) []string {
	var out []string
	for _, m := range g.Members {
		out = append(out, m.Key)
	}
	return out
}
