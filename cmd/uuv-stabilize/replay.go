package main

import (
	"fmt"
	"io"

	"github.com/guptarohit/asciigraph"
	"github.com/spf13/cobra"

	"github.com/ofu951/UUV-Position-Stabilization/internal/replay"
)

// replaySleeper paces --play output; nil means real time.
var replaySleeper replay.Sleeper

type replayOptions struct {
	tolerance int
	noPlot    bool
	summary   bool
	play      bool
	speed     float64
}

func newReplayCmd(configPath *string) *cobra.Command {
	var opts replayOptions
	cmd := &cobra.Command{
		Use:   "replay <cycle-log>",
		Short: "Re-run a recorded cycle log through fresh controllers and plot the result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return fmt.Errorf("config load failed: %w", err)
			}
			out := cmd.OutOrStdout()
			if opts.summary {
				return printLogSummary(out, args[0])
			}

			records, err := replay.ReadFile(args[0])
			if err != nil {
				return err
			}
			if opts.play {
				if err := playRecords(out, records, opts.speed); err != nil {
					return err
				}
			}

			cmp := replay.Recompute(records, cfg.ControllerConfig(), opts.tolerance)
			writeComparison(out, args[0], cmp, opts.tolerance, !opts.noPlot)
			return nil
		},
	}
	cmd.Flags().IntVar(&opts.tolerance, "tolerance", 0, "PWM difference still counted as a match")
	cmd.Flags().BoolVar(&opts.noPlot, "no-plot", false, "Skip the per-axis plots")
	cmd.Flags().BoolVar(&opts.summary, "summary", false, "Only print a summary of the log")
	cmd.Flags().BoolVar(&opts.play, "play", false, "Print each record with its recorded timing before comparing")
	cmd.Flags().Float64Var(&opts.speed, "speed", 1.0, "Playback speed multiplier for --play")
	return cmd
}

func playRecords(w io.Writer, records []replay.Record, speed float64) error {
	return replay.Play(records, speed, false, replaySleeper, func(r replay.Record) error {
		if r.Measurement == nil {
			_, err := fmt.Fprintf(w, "t=%-12s no marker          ch3..6=%v\n", r.At, r.Channels)
			return err
		}
		m := r.Measurement
		_, err := fmt.Fprintf(w, "t=%-12s area=%-8.0f c=(%.0f,%.0f) ch3..6=%v\n", r.At, m.Area, m.Center.X, m.Center.Y, r.Channels)
		return err
	})
}

func writeComparison(w io.Writer, path string, c replay.Comparison, tolerance int, plot bool) {
	fmt.Fprintf(w, "path: %s\n", path)
	fmt.Fprintf(w, "cycles: %d (detected %d)\n", c.Recomputed.Len(), c.Detected)
	fmt.Fprintf(w, "mismatches: %d (tolerance %d, max delta %d)\n", c.Mismatches, tolerance, c.MaxDelta)
	if !plot || c.Recomputed.Len() == 0 {
		return
	}

	axes := []struct {
		name       string
		recorded   []float64
		recomputed []float64
	}{
		{"forward", c.Recorded.Forward, c.Recomputed.Forward},
		{"yaw", c.Recorded.Yaw, c.Recomputed.Yaw},
		{"lateral", c.Recorded.Lateral, c.Recomputed.Lateral},
		{"vertical", c.Recorded.Vertical, c.Recomputed.Vertical},
	}
	for _, a := range axes {
		graph := asciigraph.PlotMany([][]float64{a.recorded, a.recomputed},
			asciigraph.Height(10),
			asciigraph.Width(80),
			asciigraph.SeriesColors(asciigraph.Default, asciigraph.Green),
			asciigraph.Caption(a.name+" PWM (recorded, recomputed in green)"),
		)
		fmt.Fprintf(w, "\n%s\n", graph)
	}
}
