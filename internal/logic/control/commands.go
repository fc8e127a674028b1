package control

import (
	"fmt"
	"strings"

	"github.com/cjeanneret/ServoGo/internal/logic/group"
	"github.com/cjeanneret/ServoGo/internal/logic/servo"
)

// Op names a command.
type Op string

// Motion commands address a group, or a single actuator when
// Command.Actuator is set.
const (
	OpMovePositive Op = "move+"
	OpMoveNegative Op = "move-"
	OpCenter       Op = "center"
	OpStop         Op = "stop"
	OpNextPreset   Op = "preset+"
	OpPrevPreset   Op = "preset-"
	OpStopAll      Op = "stop-all"
)

// Actuator commands.
const (
	OpMoveTo        Op = "move-to"
	OpLock          Op = "lock"
	OpUnlock        Op = "unlock"
	OpInvert        Op = "invert"
	OpReset         Op = "reset"
	OpEdit          Op = "edit"
	OpTransferUp    Op = "transfer-up"
	OpTransferDown  Op = "transfer-down"
	OpPresetAdd     Op = "preset-add"
	OpPresetSet     Op = "preset-set"
	OpPresetRemove  Op = "preset-remove"
	OpPresetGoto    Op = "preset-goto"
	OpPresetCommit  Op = "preset-commit"
	OpPresetSave    Op = "preset-save"
	OpPresetLoadRaw Op = "preset-load"
)

// Group structure commands.
const (
	OpRename        Op = "rename"
	OpAddGroup      Op = "add-group"
	OpDeleteGroup   Op = "delete-group"
	OpGroupSpeed    Op = "group-speed"
	OpGroupKeys     Op = "group-keys"
	OpToggleExpand  Op = "toggle-expand"
	OpLatchPositive Op = "latch+"
	OpLatchNegative Op = "latch-"
)

// Ops lists every known operation.
var Ops = []Op{
	OpMovePositive, OpMoveNegative, OpCenter, OpStop, OpNextPreset, OpPrevPreset, OpStopAll,
	OpMoveTo, OpLock, OpUnlock, OpInvert, OpReset, OpEdit, OpTransferUp, OpTransferDown,
	OpPresetAdd, OpPresetSet, OpPresetRemove, OpPresetGoto, OpPresetCommit, OpPresetSave, OpPresetLoadRaw,
	OpRename, OpAddGroup, OpDeleteGroup, OpGroupSpeed, OpGroupKeys, OpToggleExpand,
	OpLatchPositive, OpLatchNegative,
}

// Known reports whether op is a recognized operation.
func Known(op Op) bool {
	for _, o := range Ops {
		if o == op {
			return true
		}
	}
	return false
}

// Command is a one-shot instruction. Which fields matter depends on Op:
// Value for move-to and group-speed, Index for preset slots, Field and
// Text for edits, Text for names, keys ("fwd,rev") and raw preset text.
type Command struct {
	Op        Op
	Group     string
	Actuator  string
	Value     float64
	Speed     float64
	Index     int
	Field     servo.Field
	Text      string
	Symmetric bool
}

func (cmd Command) apply(c *Controller) error {
	switch cmd.Op {
	case OpStopAll:
		c.stopAll()
		return nil
	case OpAddGroup:
		c.registry.AddGroup(cmd.Text)
		return nil
	}

	if cmd.Actuator != "" {
		a, err := c.actuator(cmd.Actuator)
		if err != nil {
			return err
		}
		return cmd.applyActuator(c, a)
	}
	g, err := c.group(cmd.Group)
	if err != nil {
		return err
	}
	return cmd.applyGroup(c, g)
}

func (cmd Command) applyGroup(c *Controller, g *group.Group) error {
	switch cmd.Op {
	case OpMovePositive:
		g.MovePositive()
	case OpMoveNegative:
		g.MoveNegative()
	case OpCenter:
		g.MoveToCenter()
	case OpStop:
		c.unhold(g)
		g.MovingPositive, g.MovingNegative = false, false
		g.Stop()
	case OpNextPreset:
		g.MoveNextPreset()
	case OpPrevPreset:
		g.MovePrevPreset()
	case OpRename:
		g.SetName(cmd.Text)
	case OpDeleteGroup:
		delete(c.heldGroup, g)
		return c.registry.DeleteGroup(c.registry.IndexOfGroup(g))
	case OpGroupSpeed:
		g.SetSpeedMultiplier(cmd.Value)
	case OpGroupKeys:
		fwd, rev, _ := strings.Cut(cmd.Text, ",")
		g.SetKeys(strings.TrimSpace(fwd), strings.TrimSpace(rev))
	case OpToggleExpand:
		g.Expanded = !g.Expanded
	case OpLatchPositive:
		c.latch(g, 1)
	case OpLatchNegative:
		c.latch(g, -1)
	default:
		return fmt.Errorf("group %s: %q: %w", g.Name(), cmd.Op, ErrUnknownOp)
	}
	return nil
}

func (cmd Command) applyActuator(c *Controller, a *servo.Actuator) error {
	p := a.Presets()
	switch cmd.Op {
	case OpMovePositive:
		a.MovePositive()
	case OpMoveNegative:
		a.MoveNegative()
	case OpCenter:
		a.MoveCenter()
	case OpStop:
		delete(c.holds, a.ID())
		a.Stop()
	case OpNextPreset:
		p.MoveNext()
	case OpPrevPreset:
		p.MovePrev()
	case OpMoveTo:
		a.MoveToSpeed(cmd.Value, cmd.Speed)
	case OpLock:
		a.SetLocked(true)
	case OpUnlock:
		a.SetLocked(false)
	case OpInvert:
		a.SetInverted(!a.IsInverted())
	case OpReset:
		a.Reset()
	case OpRename:
		a.SetName(cmd.Text)
	case OpEdit:
		if !a.ApplyText(cmd.Field, cmd.Text) {
			return fmt.Errorf("edit %s %s: %w", a.Key(), cmd.Field, servo.ErrInvalidNumericInput)
		}
	case OpTransferUp:
		c.registry.TransferUp(a.ID())
	case OpTransferDown:
		c.registry.TransferDown(a.ID())
	case OpPresetAdd:
		p.Add()
	case OpPresetSet:
		return p.SetText(cmd.Index, cmd.Text)
	case OpPresetRemove:
		return p.RemoveAt(cmd.Index)
	case OpPresetGoto:
		return p.MoveTo(cmd.Index)
	case OpPresetCommit:
		p.CommitEdits()
	case OpPresetSave:
		p.CommitEdits()
		return p.Save(cmd.Symmetric)
	case OpPresetLoadRaw:
		return p.Load(cmd.Text)
	default:
		return fmt.Errorf("actuator %s: %q: %w", a.Key(), cmd.Op, ErrUnknownOp)
	}
	return nil
}
