//go:build linux && (arm || arm64)

package killswitch

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/warthog618/go-gpiocdev"
)

// openLine requests the input line with edge events. edge receives the
// logical (active-low adjusted) level after every edge, and once at open
// so a switch that is already pulled stops the run immediately.
func openLine(cfg Config, edge func(active bool)) (io.Closer, error) {
	lineName := fmt.Sprintf("GPIO%d", cfg.Line)

	var chipCandidates []string
	if cfg.Chip != "" {
		chipCandidates = append(chipCandidates, chipPath(cfg.Chip))
	}
	entries, _ := os.ReadDir("/dev")
	for _, e := range entries {
		if name := e.Name(); strings.HasPrefix(name, "gpiochip") {
			chipCandidates = append(chipCandidates, filepath.Join("/dev", name))
		}
	}

	opts := []gpiocdev.LineReqOption{
		gpiocdev.AsInput,
		gpiocdev.WithConsumer("uuv-killswitch"),
		gpiocdev.WithBothEdges,
		gpiocdev.WithEventHandler(func(evt gpiocdev.LineEvent) {
			edge(evt.Type == gpiocdev.LineEventRisingEdge)
		}),
	}
	if cfg.ActiveLow {
		opts = append(opts, gpiocdev.AsActiveLow, gpiocdev.WithPullUp)
	} else {
		opts = append(opts, gpiocdev.WithPullDown)
	}
	if cfg.Debounce > 0 {
		opts = append(opts, gpiocdev.WithDebounce(cfg.Debounce))
	}

	seen := map[string]bool{}
	for _, p := range chipCandidates {
		if seen[p] {
			continue
		}
		seen[p] = true

		chip, err := gpiocdev.NewChip(p)
		if err != nil {
			continue
		}
		offset, err := chip.FindLine(lineName)
		if err != nil {
			_ = chip.Close()
			continue
		}
		line, err := chip.RequestLine(offset, opts...)
		if err != nil {
			_ = chip.Close()
			continue
		}
		if v, err := line.Value(); err == nil && v == 1 {
			edge(true)
		}
		return &gpiodLine{chip: chip, line: line}, nil
	}
	return nil, fmt.Errorf("killswitch: gpio line %q not found (or busy)", lineName)
}

func chipPath(name string) string {
	if strings.HasPrefix(name, "/") {
		return name
	}
	return filepath.Join("/dev", name)
}

var openLineFn = openLine

type gpiodLine struct {
	chip *gpiocdev.Chip
	line *gpiocdev.Line
}

func (g *gpiodLine) Close() error {
	err := g.line.Close()
	_ = g.chip.Close()
	return err
}
