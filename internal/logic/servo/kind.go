package servo

import "fmt"

// Kind tags an actuator as rotary or linear. The two only differ in where
// their hard range and default speed come from.
type Kind int

const (
	Rotary Kind = iota
	Linear
)

type kindSpec struct {
	name string
	// fallback hard range when the host does not report one
	defaultMin, defaultMax float64
	hardRange              func(c Config) (float64, float64)
	defaultSpeed           func(c Config) float64
}

var kinds = map[Kind]kindSpec{
	Rotary: {
		name:         "rotary",
		defaultMin:   -180,
		defaultMax:   180,
		hardRange:    func(c Config) (float64, float64) { return c.RotateMin, c.RotateMax },
		defaultSpeed: func(c Config) float64 { return c.RotateSpeed },
	},
	Linear: {
		name:         "linear",
		defaultMin:   0,
		defaultMax:   1,
		hardRange:    func(c Config) (float64, float64) { return c.TranslateMin, c.TranslateMax },
		defaultSpeed: func(c Config) float64 { return c.TranslateSpeed },
	},
}

func (k Kind) String() string {
	if s, ok := kinds[k]; ok {
		return s.name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// ParseKind maps a manifest string to a Kind.
func ParseKind(s string) (Kind, error) {
	for k, spec := range kinds {
		if spec.name == s {
			return k, nil
		}
	}
	return Rotary, fmt.Errorf("unknown actuator kind %q", s)
}

func (k Kind) spec() kindSpec {
	if s, ok := kinds[k]; ok {
		return s
	}
	return kinds[Rotary]
}
