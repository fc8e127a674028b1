package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/gdamore/tcell/v2"

	"github.com/cjeanneret/ServoGo/internal/config"
	"github.com/cjeanneret/ServoGo/internal/debug"
	"github.com/cjeanneret/ServoGo/internal/host"
	"github.com/cjeanneret/ServoGo/internal/hw/gpio"
	"github.com/cjeanneret/ServoGo/internal/hw/stepper"
	"github.com/cjeanneret/ServoGo/internal/logic/control"
	"github.com/cjeanneret/ServoGo/internal/logic/group"
	"github.com/cjeanneret/ServoGo/internal/logic/motion"
	"github.com/cjeanneret/ServoGo/internal/logic/reorder"
	"github.com/cjeanneret/ServoGo/internal/store"
	"github.com/cjeanneret/ServoGo/internal/tui"
	"github.com/cjeanneret/ServoGo/internal/web"
)

const motorStopGrace = 2 * time.Second

func main() {
	// CLI flags
	webPort := &webPortFlag{defaultPort: 8080}
	flag.Var(webPort, "web", "start web server on port; -web= for default 8080, -web 8980 for custom port")
	cfgPath := flag.String("config", filepath.Join("configs", "default.yaml"), "path to config file")
	useTUI := flag.Bool("tui", false, "run the terminal editor")
	debugLevel := flag.Int("debug", -1, "override debug level (0-4)")
	flag.Parse()

	if err := config.ValidateConfigPath(*cfgPath); err != nil {
		log.Fatalf("invalid config path: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Load configuration
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("load config failed: %v", err)
	}
	if err := applyDebugOverride(cfg, *debugLevel); err != nil {
		log.Fatalf("invalid CLI override: %v", err)
	}

	// Initialize debug system
	debug.Init(cfg.Defaults.DebugLevel)
	debug.Summary("ServoGo motion control")
	debug.Section("Initialization")
	debug.Value("Config path", *cfgPath)
	debug.Value("Debug level", debug.Level())
	debug.Value("Tick", cfg.Tick())

	// Initialize GPIO driver
	debug.Value("Mock GPIO", cfg.Defaults.MockGPIO)
	debug.Step(1, "Initializing GPIO driver")
	gpioDriver, err := gpio.NewDriver(cfg.Defaults.MockGPIO)
	if err != nil {
		log.Fatalf("init GPIO failed: %v", err)
	}
	defer func() {
		if err := gpioDriver.Close(); err != nil {
			log.Printf("closing GPIO driver failed: %v", err)
		}
	}()

	// Initialize stepper outputs
	debug.Step(2, "Initializing stepper outputs")
	motionCtrl := motion.NewController(bindings(gpioDriver, cfg.Outputs)...)
	motionCtrl.Start(ctx)
	if err := motionCtrl.EnableMotors(); err != nil {
		log.Printf("enabling motors failed: %v", err)
	}
	defer func() {
		if err := motionCtrl.Stop(motorStopGrace); err != nil {
			log.Printf("stopping motion failed: %v", err)
		}
		if err := motionCtrl.DisableMotors(); err != nil {
			log.Printf("disabling motors failed: %v", err)
		}
	}()

	// Load the actuator manifest and saved presets
	debug.Step(3, "Loading actuator manifest")
	debug.Value("Manifest", cfg.Manifest)
	manifest, err := host.LoadManifest(cfg.Manifest)
	if err != nil {
		log.Fatalf("load manifest failed: %v", err)
	}
	entries, err := manifest.Entries()
	if err != nil {
		log.Fatalf("build actuators failed: %v", err)
	}
	debug.Value("Actuators", len(entries))

	debug.Value("Presets file", cfg.PresetsFile)
	presets, err := store.Open(cfg.PresetsFile)
	if err != nil {
		log.Fatalf("open preset store failed: %v", err)
	}

	// Assemble groups
	debug.Step(4, "Assembling groups")
	ctrl := control.New(control.Options{
		Registry: group.NewRegistry(cfg.Editor.DefaultGroup, presets),
		Reorder: reorder.Config{
			ScrollThreshold: cfg.Editor.ScrollThreshold,
			ScrollSpeed:     cfg.Editor.ScrollSpeed,
		},
		Presets: presets,
		Output:  motionCtrl,
	})
	ctrl.Assemble(entries)
	debug.PrintStruct("Editor config", cfg.Editor)

	// Reload the manifest on change
	reloader := host.NewReloader(manifest, ctrl)
	stopWatch, err := host.Watch(ctx, cfg.Manifest, func(m *host.Manifest, err error) {
		if err != nil {
			return
		}
		if _, err := reloader.Reload(m); err != nil {
			debug.Error(fmt.Errorf("apply manifest: %w", err))
		}
	})
	if err != nil {
		log.Fatalf("watch manifest failed: %v", err)
	}
	defer func() {
		if err := stopWatch(); err != nil {
			log.Printf("stopping manifest watch failed: %v", err)
		}
	}()

	// Debug output cannot share the terminal with the editor
	var console io.Writer = os.Stdout
	if *useTUI {
		console = io.Discard
	}
	debug.SetOutput(console)

	serverErr := make(chan error, 1)
	if port := webPort.port(); port > 0 {
		webAddr := fmt.Sprintf(":%d", port)
		broadcaster := web.NewStatusBroadcaster()
		debug.SetOutput(io.MultiWriter(console, web.BroadcastWriter(broadcaster)))

		srv, err := web.NewServer(webAddr, broadcaster, ctrl)
		if err != nil {
			log.Fatalf("init web server failed: %v", err)
		}
		go func() {
			serverErr <- srv.Run(ctx)
		}()
	}

	var ui *tui.UI
	if *useTUI {
		screen, err := tcell.NewScreen()
		if err != nil {
			log.Fatalf("open terminal failed: %v", err)
		}
		if err := screen.Init(); err != nil {
			log.Fatalf("init terminal failed: %v", err)
		}
		ui = tui.New(screen, ctrl)
		defer ui.Close()
		go ui.Poll()
	}

	debug.Section("Running")
	if err := run(ctx, ctrl, ui, cfg.Tick(), serverErr); err != nil {
		if ui != nil {
			ui.Close()
		}
		log.Fatalf("web server: %v", err)
	}
	debug.Section("Shutdown")
}

// run ticks the controller until ctx is done, the user quits the editor or
// the web server fails.
func run(ctx context.Context, ctrl *control.Controller, ui *tui.UI, period time.Duration, serverErr <-chan error) error {
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	var quit <-chan struct{}
	if ui != nil {
		quit = ui.Done()
	}

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-quit:
			return nil
		case err := <-serverErr:
			return err
		case now := <-ticker.C:
			dt := now.Sub(last).Seconds()
			last = now
			ctrl.Tick(dt)
			if ui != nil {
				ui.Frame(dt)
			}
		}
	}
}

// bindings builds one stepper per configured output.
func bindings(g gpio.Driver, outputs []config.StepperConfig) []motion.Binding {
	out := make([]motion.Binding, 0, len(outputs))
	for _, o := range outputs {
		s := stepper.NewStepper(g, stepper.Config{
			Name:          o.Actuator,
			StepPin:       o.StepPin,
			DirPin:        o.DirPin,
			EnablePin:     o.EnablePin,
			StepsPerRev:   o.StepsPerRev,
			Microstepping: o.Microstepping,
			StepDelay:     o.StepDelay(),
		})
		debug.PrintStruct(o.Actuator+" stepper config", o)
		out = append(out, motion.Binding{Key: o.Actuator, Stepper: s, StepsPerUnit: o.StepsPerUnit})
	}
	return out
}

// applyDebugOverride replaces the configured debug level. A negative level
// means "use config default".
func applyDebugOverride(cfg *config.Config, level int) error {
	if level < 0 {
		return nil
	}
	if level > 4 {
		return fmt.Errorf("debug level must be between 0 and 4, got %d", level)
	}
	cfg.Defaults.DebugLevel = level
	return nil
}

// webPortFlag implements flag.Value for -web: 0 = disabled, -web= or -web 8080 → 8080, -web 8980 → 8980.
type webPortFlag struct {
	val         int
	defaultPort int
}

func (w *webPortFlag) String() string {
	if w.val == 0 {
		return "0"
	}
	return strconv.Itoa(w.val)
}

func (w *webPortFlag) Set(s string) error {
	if s == "" {
		w.val = w.defaultPort
		return nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	if v <= 0 || v > 65535 {
		return fmt.Errorf("port must be 1-65535, got %d", v)
	}
	w.val = v
	return nil
}

func (w *webPortFlag) port() int { return w.val }
