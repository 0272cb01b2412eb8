package link

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
)

var channelNames = [8]string{"Roll", "Pitch", "Throttle", "Yaw", "Forward", "Lateral", "Mode", "Aux"}

var (
	reportTitle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("11"))
	reportActive = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))
	reportIdle   = lipgloss.NewStyle().Faint(true)
	reportBox    = lipgloss.NewStyle().Border(lipgloss.NormalBorder()).Padding(0, 1)
)

// DryRun is a simulated link: it always connects and arms, and prints the
// channel values it would have sent every ReportEvery commands.
type DryRun struct {
	ReportEvery int
	Out         io.Writer

	mu        sync.Mutex
	connected bool
	armed     bool
	sent      uint64
	last      Channels
}

func NewDryRun(reportEvery int) *DryRun {
	if reportEvery <= 0 {
		reportEvery = 30
	}
	return &DryRun{ReportEvery: reportEvery, Out: os.Stdout}
}

func (d *DryRun) Connect(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.connected = true
	log.Printf("link: dry-run connected (no vehicle)")
	return nil
}

func (d *DryRun) Arm(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.connected {
		return ErrNotConnected
	}
	d.armed = true
	log.Printf("link: dry-run armed")
	return nil
}

func (d *DryRun) Disarm(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.connected {
		return ErrNotConnected
	}
	d.armed = false
	log.Printf("link: dry-run disarmed")
	return nil
}

func (d *DryRun) SendChannels(c Channels) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.connected {
		return ErrNotConnected
	}
	d.sent++
	d.last = c
	if d.Out != nil && (d.sent%uint64(d.ReportEvery) == 0 || c == Ignore) {
		fmt.Fprintln(d.Out, RenderChannels(c, d.armed))
	}
	return nil
}

func (d *DryRun) Armed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.armed
}

// Last returns the most recent command and the number of commands sent.
func (d *DryRun) Last() (Channels, uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.last, d.sent
}

func (d *DryRun) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.connected = false
	return nil
}

// RenderChannels formats one command as a small boxed report.
func RenderChannels(c Channels, armed bool) string {
	state := "DISARMED"
	if armed {
		state = "ARMED"
	}
	lines := []string{reportTitle.Render("RC override (dry-run, " + state + ")")}
	for i, v := range c {
		label := fmt.Sprintf("Ch%d %-8s", i+1, channelNames[i])
		if v == 0 {
			lines = append(lines, reportIdle.Render(label+" ignore"))
			continue
		}
		lines = append(lines, reportActive.Render(fmt.Sprintf("%s %d", label, v)))
	}
	return reportBox.Render(strings.Join(lines, "\n"))
}
