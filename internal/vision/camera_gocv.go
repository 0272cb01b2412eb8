//go:build gocv

package vision

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"log"
	"sort"
	"strings"

	"gocv.io/x/gocv"

	"github.com/ofu951/UUV-Position-Stabilization/internal/marker"
)

type matFrame struct {
	mat gocv.Mat
}

func (f *matFrame) Close() error { return f.mat.Close() }

// Camera reads frames from a local video device and detects ArUco markers
// from the 4x4_50 dictionary.
type Camera struct {
	cap      *gocv.VideoCapture
	detector gocv.ArucoDetector
	index    int
}

// OpenCamera opens cfg.Index, falling back to indices 0..3.
func OpenCamera(cfg CameraConfig) (*Camera, error) {
	cfg = cfg.withDefaults()
	candidates := []int{cfg.Index}
	for i := 0; i < 4; i++ {
		if i != cfg.Index {
			candidates = append(candidates, i)
		}
	}

	var lastErr error
	for _, idx := range candidates {
		vc, err := gocv.OpenVideoCapture(idx)
		if err != nil {
			lastErr = err
			continue
		}
		if !vc.IsOpened() {
			_ = vc.Close()
			lastErr = fmt.Errorf("device %d not opened", idx)
			continue
		}
		vc.Set(gocv.VideoCaptureFrameWidth, float64(cfg.Width))
		vc.Set(gocv.VideoCaptureFrameHeight, float64(cfg.Height))
		vc.Set(gocv.VideoCaptureFPS, float64(cfg.FPS))
		first := gocv.NewMat()
		ok := vc.Read(&first) && !first.Empty()
		_ = first.Close()
		if !ok {
			_ = vc.Close()
			lastErr = fmt.Errorf("device %d returned no frame", idx)
			continue
		}
		if idx != cfg.Index {
			log.Printf("vision: camera %d unavailable, using %d", cfg.Index, idx)
		}
		dict := gocv.GetPredefinedDictionary(gocv.ArucoDict4x4_50)
		return &Camera{
			cap:      vc,
			detector: gocv.NewArucoDetectorWithParams(dict, gocv.NewArucoDetectorParameters()),
			index:    idx,
		}, nil
	}
	return nil, fmt.Errorf("vision: no camera found: %w", lastErr)
}

func (c *Camera) Read(ctx context.Context) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m := gocv.NewMat()
	if ok := c.cap.Read(&m); !ok || m.Empty() {
		_ = m.Close()
		return nil, ErrNoFrame
	}
	return &matFrame{mat: m}, nil
}

func (c *Camera) DetectMarkers(f Frame) ([]marker.Quad, error) {
	mf, ok := f.(*matFrame)
	if !ok {
		return nil, fmt.Errorf("vision: frame %T did not come from a camera", f)
	}
	corners, _, _ := c.detector.DetectMarkers(mf.mat)
	out := make([]marker.Quad, 0, len(corners))
	for _, pts := range corners {
		if len(pts) != 4 {
			continue
		}
		var q marker.Quad
		for i, p := range pts {
			q[i] = marker.Point{X: float64(p.X), Y: float64(p.Y)}
		}
		out = append(out, q)
	}
	return out, nil
}

func (c *Camera) Close() error {
	_ = c.detector.Close()
	return c.cap.Close()
}

var (
	colorMarker = color.RGBA{R: 0, G: 255, B: 0, A: 0}
	colorCenter = color.RGBA{R: 0, G: 0, B: 255, A: 0}
	colorText   = color.RGBA{R: 255, G: 255, B: 255, A: 0}
	colorArmed  = color.RGBA{R: 255, G: 64, B: 64, A: 0}
)

// Window draws frames with the marker outline and per-axis status.
type Window struct {
	win *gocv.Window
}

func OpenWindow(title string) (*Window, error) {
	return &Window{win: gocv.NewWindow(title)}, nil
}

func (w *Window) Show(f Frame, o Overlay) bool {
	mf, ok := f.(*matFrame)
	if !ok {
		return false
	}
	img := &mf.mat

	for _, q := range o.Quads {
		for i := 0; i < 4; i++ {
			a, b := q[i], q[(i+1)%4]
			gocv.Line(img, pt(a), pt(b), colorMarker, 2)
		}
	}
	// Only #0 drives control; label the rest so the operator can tell.
	for i, m := range marker.All(o.Quads) {
		gocv.PutText(img, fmt.Sprintf("#%d", i), pt(m.Center), gocv.FontHersheySimplex, 0.5, colorMarker, 1)
	}
	cols, rows := img.Cols(), img.Rows()
	gocv.Line(img, image.Pt(cols/2, 0), image.Pt(cols/2, rows), colorText, 1)
	gocv.Line(img, image.Pt(0, rows/2), image.Pt(cols, rows/2), colorText, 1)

	y := 20
	text := func(s string, c color.RGBA) {
		gocv.PutText(img, s, image.Pt(10, y), gocv.FontHersheySimplex, 0.5, c, 1)
		y += 20
	}
	if o.Measure != nil {
		gocv.Circle(img, pt(o.Measure.Center), 4, colorCenter, -1)
		text(fmt.Sprintf("area %.0f", o.Measure.Area), colorText)
	} else {
		text("no marker", colorText)
	}
	names := make([]string, 0, len(o.Statuses))
	for n := range o.Statuses {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		st := o.Statuses[n]
		text(fmt.Sprintf("%s %d %s", strings.ToUpper(n), st.PWM, st.Direction), colorText)
	}
	if o.Armed {
		text("ARMED", colorArmed)
	}
	text(fmt.Sprintf("%.1f fps", o.FPS), colorText)

	w.win.IMShow(*img)
	key := w.win.WaitKey(1)
	return key == 'q' || key == 'Q'
}

func (w *Window) Close() error {
	return w.win.Close()
}

func pt(p marker.Point) image.Point {
	return image.Pt(int(p.X), int(p.Y))
}
