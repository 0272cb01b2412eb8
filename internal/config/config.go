package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ofu951/UUV-Position-Stabilization/internal/axis"
)

type Config struct {
	Frame      FrameConfig      `yaml:"frame"`
	Axes       AxesConfig       `yaml:"axes"`
	Link       LinkConfig       `yaml:"link"`
	Vision     VisionConfig     `yaml:"vision"`
	Loop       LoopConfig       `yaml:"loop"`
	KillSwitch KillSwitchConfig `yaml:"killswitch"`
	Web        WebConfig        `yaml:"web"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
	Record     RecordConfig     `yaml:"record"`
	Log        LogConfig        `yaml:"log"`
}

type FrameConfig struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

type AxesConfig struct {
	// TargetArea is the marker area in px^2 held by the forward axis.
	TargetArea float64    `yaml:"target_area"`
	Forward    AxisConfig `yaml:"forward"`
	Yaw        AxisConfig `yaml:"yaw"`
	Lateral    AxisConfig `yaml:"lateral"`
	Vertical   AxisConfig `yaml:"vertical"`
}

// AxisConfig fields are pointers so an explicit 0 (e.g. ki: 0) is kept.
type AxisConfig struct {
	Kp          *float64 `yaml:"kp"`
	Ki          *float64 `yaml:"ki"`
	Kd          *float64 `yaml:"kd"`
	Deadband    *float64 `yaml:"deadband"`
	OutputLimit *float64 `yaml:"output_limit"`
}

func (a AxisConfig) gains() axis.Gains {
	return axis.Gains{
		Kp:       deref(a.Kp),
		Ki:       deref(a.Ki),
		Kd:       deref(a.Kd),
		Deadband: deref(a.Deadband),
		OutLimit: deref(a.OutputLimit),
	}
}

type LinkConfig struct {
	// Endpoint uses MAVProxy-style strings: udp:HOST:PORT, udpout:HOST:PORT,
	// tcp:HOST:PORT, tcpin:HOST:PORT, /dev/ttyUSB0[,baud], COM3[,baud].
	Endpoint         string        `yaml:"endpoint"`
	SystemID         int           `yaml:"system_id"`
	DryRun           bool          `yaml:"dry_run"`
	ForceArm         bool          `yaml:"force_arm"`
	HeartbeatTimeout time.Duration `yaml:"heartbeat_timeout"`
	ArmTimeout       time.Duration `yaml:"arm_timeout"`
	DisarmTimeout    time.Duration `yaml:"disarm_timeout"`
	// ReportEvery is how often (in sends) the dry-run link prints channels.
	ReportEvery int `yaml:"report_every"`
}

type VisionConfig struct {
	// Source is "camera" or "scenario".
	Source       string `yaml:"source"`
	CameraIndex  int    `yaml:"camera_index"`
	FPS          int    `yaml:"fps"`
	Scenario     string `yaml:"scenario"`
	ScenarioLoop bool   `yaml:"scenario_loop"`
	Display      bool   `yaml:"display"`
}

type LoopConfig struct {
	RateHz         float64       `yaml:"rate_hz"`
	MaxReadFailure time.Duration `yaml:"max_read_failure"`
}

type KillSwitchConfig struct {
	Enable    bool          `yaml:"enable"`
	Chip      string        `yaml:"chip"`
	Line      int           `yaml:"line"`
	ActiveLow bool          `yaml:"active_low"`
	Debounce  time.Duration `yaml:"debounce"`
}

type WebConfig struct {
	Enable bool   `yaml:"enable"`
	Listen string `yaml:"listen"`
}

type TelemetryConfig struct {
	Enable bool   `yaml:"enable"`
	Dest   string `yaml:"dest"`
}

type RecordConfig struct {
	Enable bool   `yaml:"enable"`
	Path   string `yaml:"path"`
}

type LogConfig struct {
	// Dir, when set, receives a uuv_control_YYYYMMDD_HHMMSS.log file per run.
	Dir         string `yaml:"dir"`
	Debug       bool   `yaml:"debug"`
	BufferLines int    `yaml:"buffer_lines"`
}

func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	return Parse(b)
}

func Parse(b []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, err
	}
	if err := DefaultAndValidate(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() Config {
	var cfg Config
	if err := DefaultAndValidate(&cfg); err != nil {
		panic(err)
	}
	return cfg
}

// DefaultAndValidate fills every omitted field and rejects inconsistent
// settings.
func DefaultAndValidate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}

	if cfg.Frame.Width == 0 {
		cfg.Frame.Width = 640
	}
	if cfg.Frame.Height == 0 {
		cfg.Frame.Height = 480
	}
	if cfg.Frame.Width < 0 || cfg.Frame.Height < 0 {
		return fmt.Errorf("frame.width and frame.height must be > 0")
	}

	if cfg.Axes.TargetArea == 0 {
		cfg.Axes.TargetArea = axis.DefaultTargetArea
	}
	if cfg.Axes.TargetArea < 0 {
		return fmt.Errorf("axes.target_area must be > 0")
	}
	axes := []struct {
		name string
		cfg  *AxisConfig
		def  axis.Gains
	}{
		{axis.Forward, &cfg.Axes.Forward, axis.DefaultForwardGains},
		{axis.Yaw, &cfg.Axes.Yaw, axis.DefaultYawGains},
		{axis.Lateral, &cfg.Axes.Lateral, axis.DefaultLateralGains},
		{axis.Vertical, &cfg.Axes.Vertical, axis.DefaultVerticalGains},
	}
	for _, a := range axes {
		if err := defaultAxis(a.name, a.cfg, a.def); err != nil {
			return err
		}
	}

	if cfg.Link.SystemID == 0 {
		cfg.Link.SystemID = 255
	}
	if cfg.Link.SystemID < 1 || cfg.Link.SystemID > 255 {
		return fmt.Errorf("link.system_id must be in 1..255")
	}
	cfg.Link.Endpoint = strings.TrimSpace(cfg.Link.Endpoint)
	if cfg.Link.Endpoint == "" {
		cfg.Link.Endpoint = "udp:127.0.0.1:14551"
	}
	if cfg.Link.HeartbeatTimeout <= 0 {
		cfg.Link.HeartbeatTimeout = 10 * time.Second
	}
	if cfg.Link.ArmTimeout <= 0 {
		cfg.Link.ArmTimeout = 5 * time.Second
	}
	if cfg.Link.DisarmTimeout <= 0 {
		cfg.Link.DisarmTimeout = 3 * time.Second
	}
	if cfg.Link.ReportEvery <= 0 {
		cfg.Link.ReportEvery = 30
	}

	cfg.Vision.Source = strings.ToLower(strings.TrimSpace(cfg.Vision.Source))
	if cfg.Vision.Source == "" {
		cfg.Vision.Source = "camera"
	}
	switch cfg.Vision.Source {
	case "camera":
	case "scenario":
		if strings.TrimSpace(cfg.Vision.Scenario) == "" {
			return fmt.Errorf("vision.scenario is required when vision.source is 'scenario'")
		}
	default:
		return fmt.Errorf("vision.source must be 'camera' or 'scenario'")
	}
	if cfg.Vision.CameraIndex < 0 {
		return fmt.Errorf("vision.camera_index must be >= 0")
	}
	if cfg.Vision.FPS <= 0 {
		cfg.Vision.FPS = 30
	}

	if cfg.Loop.RateHz == 0 {
		cfg.Loop.RateHz = 100
	}
	if cfg.Loop.RateHz < 0 {
		return fmt.Errorf("loop.rate_hz must be > 0")
	}
	if cfg.Loop.MaxReadFailure <= 0 {
		cfg.Loop.MaxReadFailure = 10 * time.Second
	}

	if cfg.KillSwitch.Chip == "" {
		cfg.KillSwitch.Chip = "gpiochip0"
	}
	if cfg.KillSwitch.Debounce <= 0 {
		cfg.KillSwitch.Debounce = 50 * time.Millisecond
	}
	if cfg.KillSwitch.Enable && cfg.KillSwitch.Line <= 0 {
		return fmt.Errorf("killswitch.line is required when killswitch.enable is true")
	}

	if cfg.Web.Listen == "" {
		cfg.Web.Listen = ":8080"
	}

	if cfg.Telemetry.Enable && strings.TrimSpace(cfg.Telemetry.Dest) == "" {
		return fmt.Errorf("telemetry.dest is required when telemetry.enable is true")
	}

	if cfg.Record.Enable && strings.TrimSpace(cfg.Record.Path) == "" {
		return fmt.Errorf("record.path is required when record.enable is true")
	}

	if cfg.Log.BufferLines <= 0 {
		cfg.Log.BufferLines = 500
	}
	return nil
}

func defaultAxis(name string, a *AxisConfig, def axis.Gains) error {
	fill := func(p **float64, v float64) {
		if *p == nil {
			*p = &v
		}
	}
	fill(&a.Kp, def.Kp)
	fill(&a.Ki, def.Ki)
	fill(&a.Kd, def.Kd)
	fill(&a.Deadband, def.Deadband)
	fill(&a.OutputLimit, def.OutLimit)

	if *a.Deadband < 0 {
		return fmt.Errorf("axes.%s.deadband must be >= 0", name)
	}
	if *a.OutputLimit <= 0 {
		return fmt.Errorf("axes.%s.output_limit must be > 0", name)
	}
	return nil
}

// ControllerConfig converts the frame and axes sections to controller settings.
func (c Config) ControllerConfig() axis.Config {
	return axis.Config{
		FrameWidth:  c.Frame.Width,
		FrameHeight: c.Frame.Height,
		TargetArea:  c.Axes.TargetArea,
		Forward:     c.Axes.Forward.gains(),
		Yaw:         c.Axes.Yaw.gains(),
		Lateral:     c.Axes.Lateral.gains(),
		Vertical:    c.Axes.Vertical.gains(),
		Debug:       c.Log.Debug,
	}
}

func deref(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}
