package vdet

import (
	"math"
	"sort"

	"github.com/edaniels/golog"
	"gonum.org/v1/gonum/mat"
)

// Row is one kept detection of one class at one frame.
type Row struct {
	BBox  BBox
	Score float64
}

// classState is the streaming state of one class. It is only touched by
// ingestion of that class, so classes may be ingested concurrently.
type classState struct {
	name      string
	threshold float64
	heap      scoreHeap
	// provisional and ingested are indexed by frame position in the video.
	provisional [][]Row
	ingested    []bool
}

// Aggregator keeps, per class, the best maxPerSet detections of a video and at
// most maxPerImage detections per frame, while frames are streamed one at a time.
//
// Scores that cannot make the final cut are rejected as early as the class
// threshold allows. Rows stored before the threshold settled are re-checked by
// Finalize.
type Aggregator struct {
	maxPerSet   int
	maxPerImage int
	frames      []int
	frameIndex  map[int]int
	classes     []*classState
	classIndex  map[string]int
	finalized   bool

	logger  golog.Logger
	metrics *Metrics
}

// NewAggregator returns an Aggregator over frameIDs, given in video order.
func NewAggregator(frameIDs []int, classes []string, maxPerSet, maxPerImage int, logger golog.Logger) (*Aggregator, error) {
	if maxPerSet < 0 || (maxPerSet == 0 && len(frameIDs) > 0) {
		return nil, preconditionf("max_per_set must be positive, got %d", maxPerSet)
	}
	if maxPerImage < 1 {
		return nil, preconditionf("max_per_image must be positive, got %d", maxPerImage)
	}
	a := &Aggregator{
		maxPerSet:   maxPerSet,
		maxPerImage: maxPerImage,
		frames:      append([]int(nil), frameIDs...),
		frameIndex:  make(map[int]int, len(frameIDs)),
		classIndex:  make(map[string]int, len(classes)),
		logger:      nopLoggerIfNil(logger),
	}
	for i, id := range frameIDs {
		if _, ok := a.frameIndex[id]; ok {
			return nil, preconditionf("duplicate frame id %d", id)
		}
		a.frameIndex[id] = i
	}
	for i, name := range classes {
		if _, ok := a.classIndex[name]; ok {
			return nil, preconditionf("duplicate class %q", name)
		}
		a.classIndex[name] = i
		a.classes = append(a.classes, &classState{
			name:        name,
			threshold:   math.Inf(-1),
			provisional: make([][]Row, len(frameIDs)),
			ingested:    make([]bool, len(frameIDs)),
		})
	}
	return a, nil
}

// NewVideoAggregator returns an Aggregator for the frames of vid with caps taken from cfg.
func NewVideoAggregator(vid *VideoProtocol, classes []string, cfg Config, logger golog.Logger) (*Aggregator, error) {
	if err := cfg.Validate(""); err != nil {
		return nil, err
	}
	frameIDs := make([]int, len(vid.Frames))
	for i, f := range vid.Frames {
		frameIDs[i] = f.ID
	}
	return NewAggregator(frameIDs, classes, cfg.MaxPerSet(len(frameIDs)), cfg.MaxPerImage, logger)
}

// WithMetrics makes the aggregator record ingestion counters into m.
func (a *Aggregator) WithMetrics(m *Metrics) *Aggregator {
	a.metrics = m
	return a
}

// MaxPerSet returns the per class cap over the whole video.
func (a *Aggregator) MaxPerSet() int {
	return a.maxPerSet
}

// MaxPerImage returns the per class cap for one frame.
func (a *Aggregator) MaxPerImage() int {
	return a.maxPerImage
}

// Threshold returns the current rejection threshold of a class.
func (a *Aggregator) Threshold(class string) (float64, bool) {
	c, ok := a.classIndex[class]
	if !ok || a.finalized {
		return 0, false
	}
	return a.classes[c].threshold, true
}

// Ingest adds the detections of one class at one frame.
//
// Rows scoring at or below the class threshold are dropped, the rest are
// sorted by descending score (ties keep their input order) and cut to
// maxPerImage. Their scores enter the class heap; when it overflows maxPerSet
// the lowest scores are evicted and the threshold becomes the smallest score
// still resident. The cut rows are stored for the frame until Finalize.
func (a *Aggregator) Ingest(class string, frameID int, rows []Row) error {
	if a.finalized {
		return preconditionf("aggregator already finalized")
	}
	c, ok := a.classIndex[class]
	if !ok {
		return preconditionf("unknown class %q", class)
	}
	f, ok := a.frameIndex[frameID]
	if !ok {
		return preconditionf("unknown frame %d", frameID)
	}
	state := a.classes[c]
	if state.ingested[f] {
		return preconditionf("frame %d already ingested for class %q", frameID, class)
	}

	kept := make([]Row, 0, len(rows))
	for _, r := range rows {
		if r.Score > state.threshold {
			kept = append(kept, r)
		}
	}
	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].Score > kept[j].Score
	})
	if len(kept) > a.maxPerImage {
		kept = kept[:a.maxPerImage]
	}

	for _, r := range kept {
		state.heap.push(r.Score)
	}
	evicted := 0
	if state.heap.Len() > a.maxPerSet {
		evicted = state.heap.trim(a.maxPerSet)
		if lowest := state.heap.min(); lowest != state.threshold {
			a.logger.Debugw("class threshold raised", "class", class, "frame", frameID, "from", state.threshold, "to", lowest)
			state.threshold = lowest
		}
	}

	state.provisional[f] = kept
	state.ingested[f] = true
	a.metrics.ingested(class, len(rows)-len(kept), evicted)
	return nil
}

// IngestMatrix is Ingest for an N×5 matrix of x1, y1, x2, y2, score rows.
func (a *Aggregator) IngestMatrix(class string, frameID int, dets mat.Matrix) error {
	n, cols := dets.Dims()
	if cols != 5 {
		return preconditionf("class %q frame %d: detections must be N×5, got %d×%d", class, frameID, n, cols)
	}
	rows := make([]Row, n)
	for i := 0; i < n; i++ {
		rows[i] = Row{
			BBox:  BBox{dets.At(i, 0), dets.At(i, 1), dets.At(i, 2), dets.At(i, 3)},
			Score: dets.At(i, 4),
		}
	}
	return a.Ingest(class, frameID, rows)
}

// RowsMatrix packs rows into an N×5 matrix. It returns nil for no rows, since
// gonum does not allow empty dense matrices.
func RowsMatrix(rows []Row) *mat.Dense {
	if len(rows) == 0 {
		return nil
	}
	m := mat.NewDense(len(rows), 5, nil)
	for i, r := range rows {
		m.SetRow(i, []float64{r.BBox[0], r.BBox[1], r.BBox[2], r.BBox[3], r.Score})
	}
	return m
}
