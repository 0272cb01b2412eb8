package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/ofu951/UUV-Position-Stabilization/internal/axis"
	"github.com/ofu951/UUV-Position-Stabilization/internal/config"
)

func newCheckConfigCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "check-config",
		Short: "Validate the config and print the effective settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return fmt.Errorf("config invalid: %w", err)
			}
			src := *configPath
			if src == "" {
				src = "(defaults)"
			}
			writeEffectiveConfig(cmd.OutOrStdout(), src, cfg)
			return nil
		},
	}
}

func writeEffectiveConfig(w io.Writer, src string, cfg config.Config) {
	ac := cfg.ControllerConfig()
	fmt.Fprintf(w, "config: %s ok\n", src)
	fmt.Fprintf(w, "frame: %dx%d target_area=%.0f\n", ac.FrameWidth, ac.FrameHeight, ac.TargetArea)
	for _, a := range []struct {
		name string
		g    axis.Gains
	}{
		{"forward", ac.Forward},
		{"yaw", ac.Yaw},
		{"lateral", ac.Lateral},
		{"vertical", ac.Vertical},
	} {
		fmt.Fprintf(w, "axis %-8s kp=%g ki=%g kd=%g deadband=%g limit=%g\n",
			a.name, a.g.Kp, a.g.Ki, a.g.Kd, a.g.Deadband, a.g.OutLimit)
	}
	if cfg.Link.DryRun {
		fmt.Fprintf(w, "link: dry run\n")
	} else {
		fmt.Fprintf(w, "link: %s system_id=%d force_arm=%v\n", cfg.Link.Endpoint, cfg.Link.SystemID, cfg.Link.ForceArm)
	}
	if cfg.Vision.Source == "scenario" {
		fmt.Fprintf(w, "vision: scenario %s loop=%v display=%v\n", cfg.Vision.Scenario, cfg.Vision.ScenarioLoop, cfg.Vision.Display)
	} else {
		fmt.Fprintf(w, "vision: camera %d @%dfps display=%v\n", cfg.Vision.CameraIndex, cfg.Vision.FPS, cfg.Vision.Display)
	}
	fmt.Fprintf(w, "loop: rate=%gHz max_read_failure=%s\n", cfg.Loop.RateHz, cfg.Loop.MaxReadFailure)
	if cfg.KillSwitch.Enable {
		fmt.Fprintf(w, "killswitch: %s GPIO%d active_low=%v\n", cfg.KillSwitch.Chip, cfg.KillSwitch.Line, cfg.KillSwitch.ActiveLow)
	}
	if cfg.Web.Enable {
		fmt.Fprintf(w, "web: %s\n", cfg.Web.Listen)
	}
	if cfg.Telemetry.Enable {
		fmt.Fprintf(w, "telemetry: %s\n", cfg.Telemetry.Dest)
	}
	if cfg.Record.Enable {
		fmt.Fprintf(w, "record: %s\n", cfg.Record.Path)
	}
}
