package vdet

import (
	"image"
	"path/filepath"
	"time"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

// ScoredBox pairs a submitted box with its class score vector. The vector is
// indexed by the scorer's fixed class list.
type ScoredBox struct {
	BBox   BBox
	Scores []float64
}

// A Scorer assigns class scores to boxes of one image. It must answer with one
// ScoredBox per input box, in input order.
type Scorer interface {
	Score(img image.Image, boxes []BBox) ([]ScoredBox, error)
}

// ScorerFunc adapts a function to a Scorer.
type ScorerFunc func(img image.Image, boxes []BBox) ([]ScoredBox, error)

// Score calls f(img, boxes).
func (f ScorerFunc) Score(img image.Image, boxes []BBox) ([]ScoredBox, error) {
	return f(img, boxes)
}

// A Proposer generates candidate boxes for every frame of a video.
type Proposer interface {
	Propose(vid *VideoProtocol) (*BoxProtocol, error)
}

// ProposerFunc adapts a function to a Proposer.
type ProposerFunc func(vid *VideoProtocol) (*BoxProtocol, error)

// Propose calls f(vid).
func (f ProposerFunc) Propose(vid *VideoProtocol) (*BoxProtocol, error) {
	return f(vid)
}

func nopLoggerIfNil(logger golog.Logger) golog.Logger {
	if logger == nil {
		return zap.NewNop().Sugar()
	}
	return logger
}

// ScoreAssigner attaches class scores to existing boxes, frame by frame.
type ScoreAssigner struct {
	classes []string
	loader  ImageLoader
	scorer  Scorer
	logger  golog.Logger
	metrics *Metrics
}

// NewScoreAssigner returns a ScoreAssigner naming score vector entries after classes.
func NewScoreAssigner(classes []string, loader ImageLoader, scorer Scorer, logger golog.Logger) *ScoreAssigner {
	return &ScoreAssigner{
		classes: classes,
		loader:  loader,
		scorer:  scorer,
		logger:  nopLoggerIfNil(logger),
	}
}

// WithMetrics makes the assigner record scoring counters into m.
func (a *ScoreAssigner) WithMetrics(m *Metrics) *ScoreAssigner {
	a.metrics = m
	return a
}

// Assign scores every box of boxes against the frames of vid.
//
// Frames without boxes are skipped without loading their image. When a frame
// fails, the protocol is returned with every earlier frame scored and the
// failing frame left unscored, together with the error.
func (a *ScoreAssigner) Assign(vid *VideoProtocol, boxes *BoxProtocol) (*DetectionProtocol, error) {
	if err := checkVideo(vid.Video, boxes.Video); err != nil {
		return nil, err
	}
	det := EmptyDetFromBox(boxes)
	byFrame := lo.GroupBy(lo.Range(len(det.Detections)), func(i int) int {
		return det.Detections[i].Frame
	})

	for _, frame := range vid.Frames {
		idxs := byFrame[frame.ID]
		if len(idxs) == 0 {
			continue
		}
		a.logger.Infof("Detecting in frame %d, %d boxes...", frame.ID, len(idxs))
		scores, err := a.scoreFrame(vid, frame, lo.Map(idxs, func(i, _ int) BBox {
			return det.Detections[i].BBox
		}))
		if err != nil {
			return det, err
		}
		for j, i := range idxs {
			det.Detections[i].Scores = scores[j]
		}
	}
	return det, nil
}

func (a *ScoreAssigner) scoreFrame(vid *VideoProtocol, frame Frame, boxes []BBox) ([]map[string]float64, error) {
	img, err := a.loader.Load(filepath.Join(vid.RootPath, frame.Path))
	if err != nil {
		return nil, errors.Wrapf(err, "loading frame %d", frame.ID)
	}
	start := time.Now()
	scored, err := a.scorer.Score(img, boxes)
	a.metrics.frameScored(time.Since(start))
	if err != nil {
		return nil, errors.Wrapf(err, "scoring frame %d", frame.ID)
	}
	if len(scored) != len(boxes) {
		return nil, &ScoreCountMismatchError{Frame: frame.ID, Expected: len(boxes), Got: len(scored)}
	}

	out := make([]map[string]float64, len(scored))
	for i, s := range scored {
		if s.BBox != boxes[i] {
			return nil, &ScoreAlignmentError{Frame: frame.ID, Index: i, Want: boxes[i], Got: s.BBox}
		}
		if len(s.Scores) != len(a.classes) {
			return nil, &ScoreCountMismatchError{
				Frame:    frame.ID,
				Expected: len(a.classes),
				Got:      len(s.Scores),
				Classes:  true,
			}
		}
		out[i] = make(map[string]float64, len(a.classes))
		for c, class := range a.classes {
			out[i][class] = s.Scores[c]
		}
	}
	return out, nil
}

// ProposalDrivenAssigner scores a video that comes without boxes by asking a
// Proposer for them first.
type ProposalDrivenAssigner struct {
	proposer Proposer
	assigner *ScoreAssigner
}

// NewProposalDrivenAssigner returns an assigner scoring the boxes proposer generates.
func NewProposalDrivenAssigner(proposer Proposer, assigner *ScoreAssigner) *ProposalDrivenAssigner {
	return &ProposalDrivenAssigner{proposer: proposer, assigner: assigner}
}

// Assign generates proposals for vid and scores them.
func (p *ProposalDrivenAssigner) Assign(vid *VideoProtocol) (*DetectionProtocol, error) {
	p.assigner.logger.Info("Generating proposals...")
	boxes, err := p.proposer.Propose(vid)
	if err != nil {
		return nil, errors.Wrapf(err, "generating proposals for %q", vid.Video)
	}
	return p.assigner.Assign(vid, boxes)
}

// ScoreVideo scores boxes when given, or proposals for vid when boxes is nil.
func (p *ProposalDrivenAssigner) ScoreVideo(vid *VideoProtocol, boxes *BoxProtocol) (*DetectionProtocol, error) {
	if boxes != nil {
		return p.assigner.Assign(vid, boxes)
	}
	return p.Assign(vid)
}
