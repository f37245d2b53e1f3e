package vdet

import (
	"image"
	"path/filepath"
	"time"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
)

// BackgroundClass names the class column a FrameDetector reserves for background.
// It is never aggregated.
const BackgroundClass = "__background__"

// A FrameDetector scores and refines the boxes of one image. For N boxes and C
// classes it returns an N×C score matrix and an N×4C matrix holding one
// refined x1, y1, x2, y2 box per class.
type FrameDetector interface {
	Detect(img image.Image, boxes []BBox) (scores, classBoxes *mat.Dense, err error)
}

// Detector runs a FrameDetector over every frame of a video and keeps the
// bounded per class result.
type Detector struct {
	classes  []string
	cfg      Config
	loader   ImageLoader
	detector FrameDetector
	logger   golog.Logger
	metrics  *Metrics
}

// NewDetector returns a Detector whose score columns are named after classes.
func NewDetector(classes []string, cfg Config, loader ImageLoader, detector FrameDetector, logger golog.Logger) (*Detector, error) {
	if err := cfg.Validate("detector"); err != nil {
		return nil, err
	}
	return &Detector{
		classes:  classes,
		cfg:      cfg,
		loader:   loader,
		detector: detector,
		logger:   nopLoggerIfNil(logger),
	}, nil
}

// WithMetrics makes the detector and its aggregators record counters into m.
func (d *Detector) WithMetrics(m *Metrics) *Detector {
	d.metrics = m
	return d
}

func (d *Detector) foreground() []int {
	return lo.Filter(lo.Range(len(d.classes)), func(c, _ int) bool {
		return d.classes[c] != BackgroundClass
	})
}

// DetectVideo detects in every frame of vid that has boxes, streaming the
// per class results into a bounded aggregation, and returns the finalized result.
func (d *Detector) DetectVideo(vid *VideoProtocol, boxes *BoxProtocol) (*Aggregated, error) {
	if err := checkVideo(vid.Video, boxes.Video); err != nil {
		return nil, err
	}
	columns := d.foreground()
	names := lo.Map(columns, func(c, _ int) string { return d.classes[c] })
	agg, err := NewVideoAggregator(vid, names, d.cfg, d.logger)
	if err != nil {
		return nil, err
	}
	agg.WithMetrics(d.metrics)

	var detectTime, miscTime time.Duration
	detected := 0
	numFrames := len(vid.Frames)
	for i, frame := range vid.Frames {
		frameBoxes := BoxesAtFrame(boxes, frame.ID)
		if len(frameBoxes) == 0 {
			continue
		}
		img, err := d.loader.Load(filepath.Join(vid.RootPath, frame.Path))
		if err != nil {
			return nil, errors.Wrapf(err, "loading frame %d", frame.ID)
		}

		start := time.Now()
		scores, classBoxes, err := d.detector.Detect(img, frameBoxes)
		elapsed := time.Since(start)
		detectTime += elapsed
		d.metrics.frameScored(elapsed)
		if err != nil {
			return nil, errors.Wrapf(err, "detecting in frame %d", frame.ID)
		}
		if err := d.checkOutput(frame.ID, len(frameBoxes), scores, classBoxes); err != nil {
			return nil, err
		}

		start = time.Now()
		if err := d.ingestFrame(agg, frame.ID, columns, scores, classBoxes); err != nil {
			return nil, err
		}
		miscTime += time.Since(start)
		detected++

		d.logger.Infof("im_detect: %d/%d %.3fs %.3fs", i+1, numFrames,
			(detectTime / time.Duration(detected)).Seconds(), (miscTime / time.Duration(detected)).Seconds())
	}
	return agg.Finalize()
}

func (d *Detector) checkOutput(frameID, numBoxes int, scores, classBoxes *mat.Dense) error {
	if scores == nil || classBoxes == nil {
		return &ScoreCountMismatchError{Frame: frameID, Expected: numBoxes}
	}
	r, c := scores.Dims()
	if r != numBoxes {
		return &ScoreCountMismatchError{Frame: frameID, Expected: numBoxes, Got: r}
	}
	if c != len(d.classes) {
		return &ScoreCountMismatchError{Frame: frameID, Expected: len(d.classes), Got: c, Classes: true}
	}
	if br, bc := classBoxes.Dims(); br != numBoxes || bc != 4*len(d.classes) {
		return preconditionf("frame %d: class boxes are %d×%d, expected %d×%d", frameID, br, bc, numBoxes, 4*len(d.classes))
	}
	return nil
}

// ingestFrame feeds one frame to every class. Classes are independent, so up
// to ClassWorkers of them are ingested at once.
func (d *Detector) ingestFrame(agg *Aggregator, frameID int, columns []int, scores, classBoxes *mat.Dense) error {
	var g errgroup.Group
	if d.cfg.ClassWorkers > 0 {
		g.SetLimit(d.cfg.ClassWorkers)
	}
	n, _ := scores.Dims()
	for _, col := range columns {
		col := col
		g.Go(func() error {
			rows := make([]Row, n)
			for i := 0; i < n; i++ {
				rows[i] = Row{
					BBox: BBox{
						classBoxes.At(i, 4*col),
						classBoxes.At(i, 4*col+1),
						classBoxes.At(i, 4*col+2),
						classBoxes.At(i, 4*col+3),
					},
					Score: scores.At(i, col),
				}
			}
			return agg.Ingest(d.classes[col], frameID, rows)
		})
	}
	return g.Wait()
}

// AggregateProtocol runs the bounded aggregation over an already scored
// detection protocol, frames in the order of vid.
func AggregateProtocol(
	vid *VideoProtocol,
	det *DetectionProtocol,
	classes []string,
	cfg Config,
	logger golog.Logger,
	metrics *Metrics,
) (*Aggregated, error) {
	if err := checkVideo(vid.Video, det.Video); err != nil {
		return nil, err
	}
	agg, err := NewVideoAggregator(vid, classes, cfg, logger)
	if err != nil {
		return nil, err
	}
	agg.WithMetrics(metrics)

	byFrame := lo.GroupBy(det.Detections, func(d DetectionRecord) int { return d.Frame })
	for id := range byFrame {
		if _, ok := agg.frameIndex[id]; !ok {
			return nil, preconditionf("detections reference frame %d outside video %q", id, vid.Video)
		}
	}
	for _, frame := range vid.Frames {
		records := byFrame[frame.ID]
		if len(records) == 0 {
			continue
		}
		for _, class := range classes {
			rows := make([]Row, 0, len(records))
			for _, rec := range records {
				if score, ok := DetScore(rec, class); ok {
					rows = append(rows, Row{BBox: rec.BBox, Score: score})
				}
			}
			if err := agg.Ingest(class, frame.ID, rows); err != nil {
				return nil, err
			}
		}
	}
	return agg.Finalize()
}
