package servo

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/cjeanneret/ServoGo/internal/debug"
)

// Field names a numeric property editable as text.
type Field string

const (
	FieldMinLimit     Field = "min_limit"
	FieldMaxLimit     Field = "max_limit"
	FieldSpeedLimit   Field = "speed_limit"
	FieldAcceleration Field = "acceleration_limit"
	FieldCenter       Field = "center"
	FieldPowerDraw    Field = "power_draw"
)

// ParseNumeric parses user-entered text as a finite float.
func ParseNumeric(text string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%q: %w", text, ErrInvalidNumericInput)
	}
	return v, nil
}

// ApplyText parses text and writes it to field. On bad input nothing
// changes and false is returned; the edit is simply discarded.
func (a *Actuator) ApplyText(field Field, text string) bool {
	v, err := ParseNumeric(text)
	if err != nil {
		debug.Verbose("%s: discarding %s edit: %v", a.name, field, err)
		return false
	}
	switch field {
	case FieldMinLimit:
		a.SetMinLimit(v)
	case FieldMaxLimit:
		a.SetMaxLimit(v)
	case FieldSpeedLimit:
		a.SetSpeedLimit(v)
	case FieldAcceleration:
		a.SetAccelerationLimit(v)
	case FieldCenter:
		a.SetCenter(v)
	case FieldPowerDraw:
		a.SetPowerDraw(v)
	default:
		debug.Verbose("%s: unknown field %q", a.name, field)
		return false
	}
	return true
}
