package servo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type countingOwner struct {
	name  string
	count int
}

func (o *countingOwner) Name() string { return o.name }
func (o *countingOwner) Invalidate()  { o.count++ }

func TestNew_KindDefaults(t *testing.T) {
	tests := []struct {
		name     string
		cfg      Config
		min, max float64
		speed    float64
	}{
		{"rotary from host", Config{Kind: Rotary, RotateMin: -45, RotateMax: 45, RotateSpeed: 10}, -45, 45, 10},
		{"rotary empty range", Config{Kind: Rotary}, -180, 180, 1},
		{"linear from host", Config{Kind: Linear, TranslateMin: 0, TranslateMax: 0.3, TranslateSpeed: 0.05}, 0, 0.3, 0.05},
		{"linear ignores rotate fields", Config{Kind: Linear, RotateMin: -1, RotateMax: 1, RotateSpeed: 9}, 0, 1, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := New(tt.cfg)
			assert.Equal(t, tt.min, a.MinPosition())
			assert.Equal(t, tt.max, a.MaxPosition())
			assert.Equal(t, tt.min, a.MinLimit())
			assert.Equal(t, tt.max, a.MaxLimit())
			assert.Equal(t, tt.speed, a.DefaultSpeed())
			assert.Equal(t, tt.speed, a.SpeedLimit())
		})
	}
}

func TestNew_UniqueIdentity(t *testing.T) {
	a := New(Config{Key: "x"})
	b := New(Config{Key: "x"})
	assert.False(t, a.Equal(b))
	assert.True(t, a.Equal(a))
	assert.Equal(t, "x", a.Name())
}

func TestActuator_LimitSettersClamp(t *testing.T) {
	a := rotary(-10, 10, 1, 0)

	a.SetMinLimit(-50)
	assert.Equal(t, -10.0, a.MinLimit())

	a.SetMaxLimit(2)
	a.SetMinLimit(5)
	assert.Equal(t, 2.0, a.MinLimit())
	assert.LessOrEqual(t, a.MinLimit(), a.MaxLimit())

	a.SetSpeedLimit(-3)
	assert.Zero(t, a.SpeedLimit())
	a.SetAccelerationLimit(-1)
	assert.Zero(t, a.AccelerationLimit())
}

func TestActuator_HardRangeChangeReconfigures(t *testing.T) {
	a := rotary(-10, 10, 1, 0)
	a.SetMinLimit(-8)
	a.SetMaxLimit(8)
	a.MoveTo(8)
	a.Tick(100)

	a.SetHardRange(-2, 2)
	assert.Equal(t, -2.0, a.MinLimit())
	assert.Equal(t, 2.0, a.MaxLimit())
	assert.Equal(t, 2.0, a.Position())
}

func TestActuator_PowerDrawInvalidatesOwner(t *testing.T) {
	a := rotary(-10, 10, 1, 0)
	o := &countingOwner{name: "arm"}
	a.SetOwner(o)

	a.SetPowerDraw(3)
	a.SetFreeMoving(true)
	assert.Equal(t, 2, o.count)
	assert.Equal(t, "arm", a.GroupName())

	a.SetOwner(nil)
	assert.Equal(t, "", a.GroupName())
}

func TestActuator_ApplyText(t *testing.T) {
	a := rotary(-10, 10, 1, 0)

	assert.True(t, a.ApplyText(FieldMaxLimit, " 4.5 "))
	assert.Equal(t, 4.5, a.MaxLimit())

	assert.False(t, a.ApplyText(FieldMaxLimit, "abc"))
	assert.Equal(t, 4.5, a.MaxLimit())

	assert.False(t, a.ApplyText(FieldSpeedLimit, "NaN"))
	assert.False(t, a.ApplyText(Field("bogus"), "1"))
}

func TestActuator_Reset(t *testing.T) {
	a := rotary(-10, 10, 1, 0)
	a.MovePositive()
	a.Tick(3)
	a.SetLocked(true)

	a.Reset()
	assert.Equal(t, StateIdle, a.State())
	assert.Zero(t, a.Position())
	assert.False(t, a.IsLocked())
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind("linear")
	assert.NoError(t, err)
	assert.Equal(t, Linear, k)
	assert.Equal(t, "rotary", Rotary.String())

	_, err = ParseKind("helical")
	assert.Error(t, err)
}
