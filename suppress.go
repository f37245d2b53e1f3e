package vdet

import (
	"sort"

	"github.com/edaniels/golog"
	"gonum.org/v1/gonum/mat"
)

// A Suppressor decides which rows of an N×6 matrix of frame, x1, y1, x2, y2,
// score survive non-maximum suppression at the given overlap threshold. It
// returns row indices and must be deterministic for a fixed input.
type Suppressor interface {
	Suppress(rows mat.Matrix, overlap float64) ([]int, error)
}

// SuppressorFunc adapts a function to a Suppressor.
type SuppressorFunc func(rows mat.Matrix, overlap float64) ([]int, error)

// Suppress calls f(rows, overlap).
func (f SuppressorFunc) Suppress(rows mat.Matrix, overlap float64) ([]int, error) {
	return f(rows, overlap)
}

// GreedySuppressor walks detections by descending score and keeps one unless it
// overlaps an already kept detection by more than the threshold. Only
// detections at most TemporalWindow frame ids apart are compared.
type GreedySuppressor struct {
	TemporalWindow int
}

// Suppress returns the kept row indices in descending score order.
func (s GreedySuppressor) Suppress(rows mat.Matrix, overlap float64) ([]int, error) {
	n, cols := rows.Dims()
	if cols != 6 {
		return nil, preconditionf("suppression rows must be N×6, got %d×%d", n, cols)
	}
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		return rows.At(order[i], 5) > rows.At(order[j], 5)
	})

	window := float64(s.TemporalWindow)
	suppressed := make([]bool, n)
	keep := make([]int, 0, n)
	for oi, i := range order {
		if suppressed[i] {
			continue
		}
		keep = append(keep, i)
		box := rowBBox(rows, i)
		for _, j := range order[oi+1:] {
			if suppressed[j] {
				continue
			}
			if dt := rows.At(i, 0) - rows.At(j, 0); dt > window || dt < -window {
				continue
			}
			if IOU(box, rowBBox(rows, j)) > overlap {
				suppressed[j] = true
			}
		}
	}
	return keep, nil
}

func rowBBox(rows mat.Matrix, i int) BBox {
	return BBox{rows.At(i, 1), rows.At(i, 2), rows.At(i, 3), rows.At(i, 4)}
}

// VideoSuppressor applies a Suppressor to all detections of one class in a video.
type VideoSuppressor struct {
	suppressor Suppressor
	overlap    float64
	logger     golog.Logger
	metrics    *Metrics
}

// NewVideoSuppressor returns a VideoSuppressor using the overlap threshold of cfg.
// A nil suppressor defaults to a GreedySuppressor with cfg's temporal window.
func NewVideoSuppressor(suppressor Suppressor, cfg Config, logger golog.Logger) *VideoSuppressor {
	if suppressor == nil {
		suppressor = GreedySuppressor{TemporalWindow: cfg.TemporalWindow}
	}
	return &VideoSuppressor{
		suppressor: suppressor,
		overlap:    cfg.OverlapThreshold,
		logger:     nopLoggerIfNil(logger),
	}
}

// WithMetrics makes the suppressor record kept and dropped counts into m.
func (v *VideoSuppressor) WithMetrics(m *Metrics) *VideoSuppressor {
	v.metrics = m
	return v
}

// Apply suppresses the detections of det for class. Kept records keep their
// relative order. Every record must carry a score for class.
func (v *VideoSuppressor) Apply(det *DetectionProtocol, class string) (*DetectionProtocol, error) {
	v.logger.Infof("Apply NMS on video: %s", det.Video)
	out := &DetectionProtocol{Video: det.Video, Detections: []DetectionRecord{}}
	total := len(det.Detections)
	if total == 0 {
		v.logger.Infof("0 / 0 windows kept.")
		return out, nil
	}

	rows := mat.NewDense(total, 6, nil)
	for i, d := range det.Detections {
		score, ok := DetScore(d, class)
		if !ok {
			return nil, preconditionf("detection %d at frame %d has no %q score", i, d.Frame, class)
		}
		rows.SetRow(i, []float64{float64(d.Frame), d.BBox[0], d.BBox[1], d.BBox[2], d.BBox[3], score})
	}

	keep, err := v.suppressor.Suppress(rows, v.overlap)
	if err != nil {
		return nil, err
	}
	keep = append([]int(nil), keep...)
	sort.Ints(keep)
	for i, idx := range keep {
		if idx < 0 || idx >= total || (i > 0 && keep[i-1] == idx) {
			return nil, preconditionf("suppressor returned invalid index %d for %d detections", idx, total)
		}
		out.Detections = append(out.Detections, det.Detections[idx])
	}

	v.metrics.suppressed(class, len(out.Detections), total)
	v.logger.Infof("%d / %d windows kept.", len(out.Detections), total)
	return out, nil
}
