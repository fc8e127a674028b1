package stepper

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/cjeanneret/ServoGo/internal/debug"
	"github.com/cjeanneret/ServoGo/internal/hw/gpio"
)

// Config holds the hardware configuration for a step/dir stepper driver.
type Config struct {
	Name          string
	StepPin       int
	DirPin        int
	EnablePin     int // A4988 ENABLE pin (BCM). 0 = not used. Active LOW.
	StepsPerRev   int
	Microstepping int
	StepDelay     time.Duration // delay per half-cycle of STEP pulse
}

// Stepper drives one motor and tracks its absolute step position from the
// moment it was created.
type Stepper struct {
	gpio     gpio.Driver
	cfg      Config
	delay    time.Duration
	position atomic.Int64
}

// NewStepper sets up the pins and enables the driver. A zero StepDelay
// defaults to 1ms.
func NewStepper(g gpio.Driver, cfg Config) *Stepper {
	_ = g.SetupPin(cfg.StepPin, gpio.Output)
	_ = g.SetupPin(cfg.DirPin, gpio.Output)

	delay := cfg.StepDelay
	if delay <= 0 {
		delay = 1 * time.Millisecond
	}

	s := &Stepper{
		gpio:  g,
		cfg:   cfg,
		delay: delay,
	}

	if cfg.EnablePin > 0 {
		_ = g.SetupPin(cfg.EnablePin, gpio.Output)
		_ = g.WritePin(cfg.EnablePin, gpio.Low)
	}
	return s
}

// Name returns the configured label.
func (s *Stepper) Name() string { return s.cfg.Name }

// Position returns the absolute step count.
func (s *Stepper) Position() int { return int(s.position.Load()) }

// StepsPerRevolution is full steps times microstepping.
func (s *Stepper) StepsPerRevolution() int {
	micro := s.cfg.Microstepping
	if micro <= 0 {
		micro = 1
	}
	return s.cfg.StepsPerRev * micro
}

// MoveSteps moves the motor by a relative number of steps.
func (s *Stepper) MoveSteps(steps int) error {
	return s.MoveStepsContext(context.Background(), steps)
}

// MoveStepsContext is MoveSteps that stops between pulses once ctx is done.
// The position reflects the pulses actually sent.
func (s *Stepper) MoveStepsContext(ctx context.Context, steps int) error {
	if steps == 0 {
		return nil
	}

	dirLevel, direction, sign := gpio.High, "forward", int64(1)
	if steps < 0 {
		dirLevel, direction, sign = gpio.Low, "backward", -1
		steps = -steps
	}

	debug.Trace("Stepper %s: moving %d steps (%s) on pin %d", s.cfg.Name, steps, direction, s.cfg.StepPin)

	if err := s.gpio.WritePin(s.cfg.DirPin, dirLevel); err != nil {
		return err
	}
	for i := 0; i < steps; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.stepPulse(); err != nil {
			return err
		}
		s.position.Add(sign)
	}
	return nil
}

// MoveTo moves to an absolute step position.
func (s *Stepper) MoveTo(ctx context.Context, target int) error {
	return s.MoveStepsContext(ctx, target-s.Position())
}

func (s *Stepper) stepPulse() error {
	if err := s.gpio.WritePin(s.cfg.StepPin, gpio.High); err != nil {
		return err
	}
	time.Sleep(s.delay)
	if err := s.gpio.WritePin(s.cfg.StepPin, gpio.Low); err != nil {
		return err
	}
	time.Sleep(s.delay)
	return nil
}

// Enable turns on the motor driver (ENABLE=LOW). Motors hold position.
func (s *Stepper) Enable() error {
	if s.cfg.EnablePin <= 0 {
		return nil
	}
	return s.gpio.WritePin(s.cfg.EnablePin, gpio.Low)
}

// Disable turns off the motor driver (ENABLE=HIGH). Motors freewheel.
func (s *Stepper) Disable() error {
	if s.cfg.EnablePin <= 0 {
		return nil
	}
	return s.gpio.WritePin(s.cfg.EnablePin, gpio.High)
}
