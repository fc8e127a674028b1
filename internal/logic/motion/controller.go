// Package motion mirrors actuator positions onto stepper motors. Each bound
// actuator key drives one stepper; positions are converted with a fixed
// steps-per-unit ratio.
package motion

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"vawter.tech/stopper"

	"github.com/cjeanneret/ServoGo/internal/debug"
	"github.com/cjeanneret/ServoGo/internal/hw/stepper"
	"github.com/cjeanneret/ServoGo/internal/logic/servo"
)

// Binding ties an actuator key to a stepper.
type Binding struct {
	Key          string
	Stepper      *stepper.Stepper
	StepsPerUnit float64
}

type axis struct {
	Binding
	mu     sync.Mutex
	target int
	wake   chan struct{}
}

// Controller is the output side of the tick loop. Until Start is called,
// Sync drives the steppers inline; afterwards each axis has its own worker
// so a long move never blocks the tick.
type Controller struct {
	axes   []*axis
	byKey  map[string]*axis
	sctx   *stopper.Context
	cancel context.CancelFunc
}

// NewController builds a controller for bindings. Bindings with an empty
// key, a nil stepper or a zero ratio are skipped.
func NewController(bindings ...Binding) *Controller {
	c := &Controller{byKey: make(map[string]*axis)}
	for _, b := range bindings {
		if b.Key == "" || b.Stepper == nil || b.StepsPerUnit == 0 {
			debug.Verbose("motion: skipping incomplete binding %q", b.Key)
			continue
		}
		ax := &axis{Binding: b, target: b.Stepper.Position(), wake: make(chan struct{}, 1)}
		c.axes = append(c.axes, ax)
		c.byKey[b.Key] = ax
	}
	return c
}

// Bound reports whether key drives a stepper.
func (c *Controller) Bound(key string) bool {
	_, ok := c.byKey[key]
	return ok
}

// Target returns the last requested step position for key.
func (c *Controller) Target(key string) (int, bool) {
	ax, ok := c.byKey[key]
	if !ok {
		return 0, false
	}
	ax.mu.Lock()
	defer ax.mu.Unlock()
	return ax.target, true
}

// Start launches one worker per axis. Workers stop with ctx or Stop.
func (c *Controller) Start(ctx context.Context) {
	if c.sctx != nil {
		return
	}
	moveCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.sctx = stopper.WithContext(ctx)
	for _, ax := range c.axes {
		c.sctx.Go(func(sctx *stopper.Context) error {
			return ax.run(moveCtx, sctx)
		})
	}
	debug.Verbose("motion: %d axis workers started", len(c.axes))
}

// Stop asks the workers to finish within grace and waits for them.
func (c *Controller) Stop(grace time.Duration) error {
	if c.sctx == nil {
		return nil
	}
	c.sctx.Stop(grace)
	c.cancel()
	err := c.sctx.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Sync records the target step count of every bound actuator.
func (c *Controller) Sync(actuators []*servo.Actuator) error {
	var errs []error
	for _, a := range actuators {
		ax, ok := c.byKey[a.Key()]
		if !ok {
			continue
		}
		target := int(math.Round(a.Position() * ax.StepsPerUnit))

		ax.mu.Lock()
		changed := target != ax.target
		ax.target = target
		ax.mu.Unlock()
		if !changed {
			continue
		}

		if c.sctx == nil {
			if err := ax.Stepper.MoveTo(context.Background(), target); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", ax.Key, err))
			}
			continue
		}
		select {
		case ax.wake <- struct{}{}:
		default:
		}
	}
	return errors.Join(errs...)
}

func (ax *axis) run(ctx context.Context, sctx *stopper.Context) error {
	for {
		select {
		case <-sctx.Stopping():
			return nil
		case <-ax.wake:
		}
		ax.mu.Lock()
		target := ax.target
		ax.mu.Unlock()

		if err := ax.Stepper.MoveTo(ctx, target); err != nil {
			if sctx.IsStopping() || ctx.Err() != nil {
				return nil
			}
			debug.Error(fmt.Errorf("motion %s: %w", ax.Key, err))
		}
	}
}

// EnableMotors energizes every bound stepper.
func (c *Controller) EnableMotors() error {
	var errs []error
	for _, ax := range c.axes {
		if err := ax.Stepper.Enable(); err != nil {
			errs = append(errs, fmt.Errorf("enable %s: %w", ax.Key, err))
		}
	}
	return errors.Join(errs...)
}

// DisableMotors releases every bound stepper.
func (c *Controller) DisableMotors() error {
	var errs []error
	for _, ax := range c.axes {
		if err := ax.Stepper.Disable(); err != nil {
			errs = append(errs, fmt.Errorf("disable %s: %w", ax.Key, err))
		}
	}
	return errors.Join(errs...)
}
