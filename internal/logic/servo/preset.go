package servo

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/cjeanneret/ServoGo/internal/debug"
)

// PresetList is the ordered set of stored target positions of one actuator.
// Edits do not re-sort; CommitEdits does, so values never jump under a
// cursor while the user is typing.
type PresetList struct {
	owner  *Actuator
	values []float64
	cursor int // last navigated index, -1 before any navigation
}

// Count returns the number of presets.
func (p *PresetList) Count() int { return len(p.values) }

// Values returns a copy of the presets in their current order.
func (p *PresetList) Values() []float64 {
	return append([]float64(nil), p.values...)
}

// Cursor returns the index last navigated to, or -1.
func (p *PresetList) Cursor() int { return p.cursor }

// At returns the preset at index.
func (p *PresetList) At(index int) (float64, error) {
	if err := p.check("get", index); err != nil {
		return 0, err
	}
	return p.values[index], nil
}

// Add appends the actuator's current position.
func (p *PresetList) Add() {
	p.AddValue(p.owner.position)
}

// AddValue appends v. The list stays unsorted until CommitEdits.
func (p *PresetList) AddValue(v float64) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return
	}
	p.values = append(p.values, v)
}

// Set replaces the value at index without re-sorting.
func (p *PresetList) Set(index int, v float64) error {
	if err := p.check("set", index); err != nil {
		return err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("preset %d: %w", index, ErrInvalidNumericInput)
	}
	p.values[index] = v
	return nil
}

// SetText parses user text into the preset at index. Unparsable text leaves
// the preset unchanged.
func (p *PresetList) SetText(index int, text string) error {
	if err := p.check("set", index); err != nil {
		return err
	}
	v, err := ParseNumeric(text)
	if err != nil {
		return err
	}
	p.values[index] = v
	return nil
}

// Sort orders the presets ascending. Equal values keep their order.
func (p *PresetList) Sort() {
	sort.SliceStable(p.values, func(i, j int) bool { return p.values[i] < p.values[j] })
	if p.cursor >= len(p.values) {
		p.cursor = len(p.values) - 1
	}
}

// CommitEdits ends an edit session.
func (p *PresetList) CommitEdits() {
	p.Sort()
}

// RemoveAt deletes the preset at index.
func (p *PresetList) RemoveAt(index int) error {
	if err := p.check("remove", index); err != nil {
		return err
	}
	p.values = append(p.values[:index], p.values[index+1:]...)
	if p.cursor >= len(p.values) {
		p.cursor = len(p.values) - 1
	}
	return nil
}

// MoveTo sends the actuator toward presets[index].
func (p *PresetList) MoveTo(index int) error {
	if err := p.check("move to", index); err != nil {
		return err
	}
	p.cursor = index
	p.owner.MoveTo(p.values[index])
	return nil
}

// MoveNext moves one preset up from the one nearest the current position,
// stopping at the last preset.
func (p *PresetList) MoveNext() bool {
	return p.step(1)
}

// MovePrev moves one preset down from the one nearest the current position,
// stopping at the first preset.
func (p *PresetList) MovePrev() bool {
	return p.step(-1)
}

func (p *PresetList) step(delta int) bool {
	if len(p.values) == 0 {
		return false
	}
	next := p.nearest() + delta
	if next < 0 {
		next = 0
	}
	if next > len(p.values)-1 {
		next = len(p.values) - 1
	}
	p.cursor = next
	return p.owner.MoveTo(p.values[next])
}

// nearest returns the index of the preset closest to the current position;
// ties go to the lower index.
func (p *PresetList) nearest() int {
	best := 0
	bestDist := math.Inf(1)
	for i, v := range p.values {
		if d := math.Abs(v - p.owner.position); d < bestDist {
			best, bestDist = i, d
		}
	}
	return best
}

// Save records the persisted form and hands it to the sink. With symmetric
// set, every sibling in the actuator's symmetry set receives the same list.
func (p *PresetList) Save(symmetric bool) error {
	encoded := EncodePresets(p.values)
	targets := []*Actuator{p.owner}
	if symmetric && p.owner.siblings != nil {
		targets = append(targets, p.owner.siblings.Siblings(p.owner)...)
	}

	var firstErr error
	for _, a := range targets {
		text := encoded
		if a != p.owner {
			if err := a.presets.Load(encoded); err != nil {
				if firstErr == nil {
					firstErr = err
				}
				continue
			}
			text = a.persisted
		}
		a.persisted = text
		if a.sink != nil {
			if err := a.sink.StorePresets(a.key, text); err != nil && firstErr == nil {
				firstErr = fmt.Errorf("save presets for %s: %w", a.key, err)
			}
		}
		debug.Preset(a.name, "save", text)
	}
	return firstErr
}

// Load replaces the list with a persisted form. Bad text leaves the list
// unchanged.
func (p *PresetList) Load(encoded string) error {
	values, err := DecodePresets(encoded)
	if err != nil {
		return err
	}
	p.values = values
	p.Sort()
	p.owner.persisted = EncodePresets(p.values)
	if p.cursor >= len(p.values) {
		p.cursor = len(p.values) - 1
	}
	return nil
}

func (p *PresetList) check(op string, index int) error {
	if index < 0 || index >= len(p.values) {
		return &IndexError{Op: op + " preset", Index: index, Count: len(p.values)}
	}
	return nil
}

// EncodePresets renders presets as comma-separated shortest round-trip floats.
func EncodePresets(values []float64) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = strconv.FormatFloat(v, 'g', -1, 64)
	}
	return strings.Join(parts, ",")
}

// DecodePresets parses the EncodePresets form. Blank input is an empty list.
func DecodePresets(encoded string) ([]float64, error) {
	encoded = strings.TrimSpace(encoded)
	if encoded == "" {
		return nil, nil
	}
	parts := strings.Split(encoded, ",")
	values := make([]float64, 0, len(parts))
	for _, part := range parts {
		v, err := ParseNumeric(part)
		if err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return values, nil
}
