package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ofu951/UUV-Position-Stabilization/internal/config"
	"github.com/ofu951/UUV-Position-Stabilization/internal/control"
	"github.com/ofu951/UUV-Position-Stabilization/internal/keyboard"
	"github.com/ofu951/UUV-Position-Stabilization/internal/killswitch"
	"github.com/ofu951/UUV-Position-Stabilization/internal/link"
	"github.com/ofu951/UUV-Position-Stabilization/internal/replay"
	"github.com/ofu951/UUV-Position-Stabilization/internal/udp"
	"github.com/ofu951/UUV-Position-Stabilization/internal/vision"
	"github.com/ofu951/UUV-Position-Stabilization/internal/web"
)

const windowTitle = "UUV Position Stabilization"

// Hardware entry points, swapped in tests.
var (
	openCamera = func(cfg vision.CameraConfig) (vision.Source, error) {
		c, err := vision.OpenCamera(cfg)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
	openWindow = func(title string) (vision.Display, error) {
		w, err := vision.OpenWindow(title)
		if err != nil {
			return nil, err
		}
		return w, nil
	}
	watchStdin     = keyboard.WatchStdin
	openKillSwitch = killswitch.Open
)

type runOptions struct {
	dryRun   bool
	scenario string
	loop     bool
	display  bool
	debug    bool
}

func newRunCmd(configPath *string) *cobra.Command {
	var opts runOptions
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Connect, arm and run the stabilization loop until stopped",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return fmt.Errorf("config load failed: %w", err)
			}
			if err := opts.apply(&cfg); err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			return runStabilizer(ctx, cfg, cmd.OutOrStdout())
		},
	}
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "Simulate the vehicle link instead of connecting")
	cmd.Flags().StringVar(&opts.scenario, "scenario", "", "Drive the loop from a scenario script instead of the camera")
	cmd.Flags().BoolVar(&opts.loop, "loop", false, "Restart the scenario when it ends")
	cmd.Flags().BoolVar(&opts.display, "display", false, "Open the annotated video window")
	cmd.Flags().BoolVar(&opts.debug, "debug", false, "Log per-cycle controller detail")
	return cmd
}

// apply layers command-line overrides over the loaded config.
func (o runOptions) apply(cfg *config.Config) error {
	if o.dryRun {
		cfg.Link.DryRun = true
	}
	if strings.TrimSpace(o.scenario) != "" {
		cfg.Vision.Source = "scenario"
		cfg.Vision.Scenario = o.scenario
	}
	if o.loop {
		cfg.Vision.ScenarioLoop = true
	}
	if o.display {
		cfg.Vision.Display = true
	}
	if o.debug {
		cfg.Log.Debug = true
	}
	return config.DefaultAndValidate(cfg)
}

func runStabilizer(ctx context.Context, cfg config.Config, out io.Writer) error {
	logs := web.NewLogBuffer(cfg.Log.BufferLines)
	restoreLog, logPath, err := setupLogging(cfg.Log, logs, time.Now())
	if err != nil {
		return err
	}
	defer restoreLog()
	if logPath != "" {
		log.Printf("logging to %s", logPath)
	}

	rt, err := buildRuntime(cfg, logs, out)
	if err != nil {
		return err
	}

	if cfg.KillSwitch.Enable {
		sw, err := openKillSwitch(killswitch.Config{
			Chip:      cfg.KillSwitch.Chip,
			Line:      cfg.KillSwitch.Line,
			ActiveLow: cfg.KillSwitch.ActiveLow,
			Debounce:  cfg.KillSwitch.Debounce,
		}, rt.orch.RequestStop)
		if err != nil {
			rt.abort()
			return fmt.Errorf("killswitch init failed: %w", err)
		}
		defer sw.Close()
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if cfg.Web.Enable {
		go func() {
			log.Printf("web: listening on %s", cfg.Web.Listen)
			if err := web.Serve(ctx, cfg.Web.Listen, rt.handler); err != nil {
				log.Printf("web: server stopped: %v", err)
			}
		}()
	}

	if !cfg.Vision.Display {
		restore, err := watchStdin(rt.orch.RequestStop)
		if err != nil {
			log.Printf("keyboard: quit key unavailable: %v", err)
		} else {
			defer restore()
			log.Printf("press 'q' to stop")
		}
	}

	return rt.orch.Run(ctx)
}

// runtime holds everything built from the config before the loop starts.
type runtime struct {
	orch    *control.Orchestrator
	handler http.Handler
	closers []io.Closer
}

// abort releases what was opened when startup fails before Run.
func (rt *runtime) abort() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		_ = rt.closers[i].Close()
	}
}

func buildRuntime(cfg config.Config, logs *web.LogBuffer, out io.Writer) (_ *runtime, err error) {
	rt := &runtime{}
	defer func() {
		if err != nil {
			rt.abort()
		}
	}()

	lk, mav := buildLink(cfg, out)
	rt.closers = append(rt.closers, lk)

	source, err := buildSource(cfg)
	if err != nil {
		return nil, err
	}
	rt.closers = append(rt.closers, source)

	var display vision.Display = vision.Headless{}
	if cfg.Vision.Display {
		display, err = openWindow(windowTitle)
		if err != nil {
			return nil, fmt.Errorf("display open failed: %w", err)
		}
		rt.closers = append(rt.closers, display)
	}

	status := web.NewStatus()
	status.SetStatic(cfg.Link.Endpoint, cfg.Vision.Source, cfg.Link.DryRun)
	if mav != nil {
		status.BindAttitude(mav.Attitude)
	}

	var observers []control.Observer
	var cycles *web.CycleBroadcaster
	var metrics *web.Metrics
	if cfg.Web.Enable {
		metrics = web.NewMetrics(status)
		cycles = web.NewCycleBroadcaster()
		observers = append(observers, metrics, cycles)
	}
	if cfg.Telemetry.Enable {
		b, err := udp.NewBroadcaster(cfg.Telemetry.Dest)
		if err != nil {
			return nil, fmt.Errorf("telemetry init failed: %w", err)
		}
		rt.closers = append(rt.closers, b)
		observers = append(observers, b)
		log.Printf("telemetry: udp dest=%s", cfg.Telemetry.Dest)
	}
	if cfg.Record.Enable {
		w, err := replay.CreateWriter(cfg.Record.Path)
		if err != nil {
			return nil, fmt.Errorf("record init failed: %w", err)
		}
		rt.closers = append(rt.closers, w)
		observers = append(observers, w)
		log.Printf("record: writing cycles to %s", cfg.Record.Path)
	}

	orch, err := control.New(control.Config{
		Axes:           cfg.ControllerConfig(),
		Link:           lk,
		Source:         source,
		Display:        display,
		Observers:      observers,
		RateHz:         cfg.Loop.RateHz,
		MaxReadFailure: cfg.Loop.MaxReadFailure,
	})
	if err != nil {
		return nil, err
	}
	status.BindControl(orch.Snapshot)

	rt.orch = orch
	rt.handler = web.Handler(status, logs, cycles, metrics)
	return rt, nil
}

func buildLink(cfg config.Config, out io.Writer) (link.Link, *link.MAVLink) {
	if cfg.Link.DryRun {
		dr := link.NewDryRun(cfg.Link.ReportEvery)
		if out != nil {
			dr.Out = out
		}
		log.Printf("link: dry run (report every %d commands)", dr.ReportEvery)
		return dr, nil
	}
	mav := link.NewMAVLink(link.MAVLinkConfig{
		Endpoint:         cfg.Link.Endpoint,
		SystemID:         cfg.Link.SystemID,
		ForceArm:         cfg.Link.ForceArm,
		HeartbeatTimeout: cfg.Link.HeartbeatTimeout,
		ArmTimeout:       cfg.Link.ArmTimeout,
		DisarmTimeout:    cfg.Link.DisarmTimeout,
	})
	log.Printf("link: mavlink endpoint=%s system_id=%d", cfg.Link.Endpoint, cfg.Link.SystemID)
	return mav, mav
}

func buildSource(cfg config.Config) (vision.Source, error) {
	switch cfg.Vision.Source {
	case "scenario":
		s, err := vision.OpenScenario(cfg.Vision.Scenario, cfg.Vision.ScenarioLoop)
		if err != nil {
			return nil, fmt.Errorf("scenario load failed: %w", err)
		}
		log.Printf("vision: scenario %s (loop=%v)", cfg.Vision.Scenario, cfg.Vision.ScenarioLoop)
		return s, nil
	default:
		c, err := openCamera(vision.CameraConfig{
			Index:  cfg.Vision.CameraIndex,
			Width:  cfg.Frame.Width,
			Height: cfg.Frame.Height,
			FPS:    cfg.Vision.FPS,
		})
		if err != nil {
			return nil, fmt.Errorf("camera open failed: %w", err)
		}
		return c, nil
	}
}

// setupLogging sends the standard logger to stderr, the ring buffer and,
// when log.dir is set, a timestamped file. The returned func restores the
// previous output and closes the file.
func setupLogging(cfg config.LogConfig, buf io.Writer, now time.Time) (restore func(), path string, err error) {
	writers := []io.Writer{os.Stderr}
	if buf != nil {
		writers = append(writers, buf)
	}

	var f *os.File
	if dir := strings.TrimSpace(cfg.Dir); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, "", fmt.Errorf("log dir: %w", err)
		}
		path = filepath.Join(dir, logFileName(now))
		f, err = os.Create(path)
		if err != nil {
			return nil, "", fmt.Errorf("log file: %w", err)
		}
		writers = append(writers, f)
	}

	prevOut, prevFlags := log.Writer(), log.Flags()
	log.SetOutput(io.MultiWriter(writers...))
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	return func() {
		log.SetOutput(prevOut)
		log.SetFlags(prevFlags)
		if f != nil {
			_ = f.Close()
		}
	}, path, nil
}

func logFileName(now time.Time) string {
	return "uuv_control_" + now.Format("20060102_150405") + ".log"
}
