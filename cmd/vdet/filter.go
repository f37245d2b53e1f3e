package main

import (
	"math"
	"sort"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"go.uber.org/multierr"

	"trunov/vdet"
)

// filter post-processes one request line at a time.
type filter struct {
	cfg     vdet.Config
	classes []string
	// linkIOU enables tubelet linking of the suppressed detections when positive.
	linkIOU float64
	maxGap  int
	logger  golog.Logger
	metrics *vdet.Metrics
}

// process reads a {"vid_proto": ..., "det_proto": ...} line and returns it
// with a "results" array holding, per class, the final detection protocol.
func (f *filter) process(reqdata []byte) ([]byte, error) {
	req := gjson.ParseBytes(reqdata)
	vid, err := vdet.ParseVideoProtocol([]byte(req.Get("vid_proto").Raw))
	if err != nil {
		return nil, err
	}
	det, err := vdet.ParseDetectionProtocol([]byte(req.Get("det_proto").Raw))
	if err != nil {
		return nil, err
	}
	classes := f.classes
	if len(classes) == 0 {
		classes = scoredClasses(det)
	}

	agg, err := vdet.AggregateProtocol(vid, det, classes, f.cfg, f.logger, f.metrics)
	if err != nil {
		return nil, errors.Wrapf(err, "aggregating video %q", vid.Video)
	}
	suppressor := vdet.NewVideoSuppressor(nil, f.cfg, f.logger).WithMetrics(f.metrics)
	linker := vdet.TubeletLinker{IOUThreshold: f.linkIOU, MaxGap: f.maxGap}

	out, err := sjson.SetRawBytes(reqdata, "results", []byte(`[]`))
	if err != nil {
		return nil, err
	}
	var errs error
	for _, class := range classes {
		kept, err := suppressor.Apply(agg.Protocol(vid.Video, class), class)
		if err != nil {
			errs = multierr.Append(errs, errors.Wrapf(err, "class %q", class))
			continue
		}
		if f.linkIOU > 0 {
			if kept, _, err = linker.Link(vid, kept); err != nil {
				errs = multierr.Append(errs, errors.Wrapf(err, "class %q", class))
				continue
			}
		}
		result, err := encodeResult(class, agg.Thresholds[class], kept)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		if out, err = sjson.SetRawBytes(out, "results.-1", result); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	if errs != nil {
		return nil, errs
	}
	return out, nil
}

func encodeResult(class string, threshold float64, det *vdet.DetectionProtocol) ([]byte, error) {
	proto, err := det.Encode()
	if err != nil {
		return nil, err
	}
	result, err := sjson.SetBytes([]byte(`{}`), "class", class)
	if err != nil {
		return nil, err
	}
	// an unbounded threshold has no json number
	if math.IsInf(threshold, 0) {
		result, err = sjson.SetRawBytes(result, "threshold", []byte("null"))
	} else {
		result, err = sjson.SetBytes(result, "threshold", threshold)
	}
	if err != nil {
		return nil, err
	}
	return sjson.SetRawBytes(result, "det_proto", proto)
}

// scoredClasses lists every class any detection carries a score for.
func scoredClasses(det *vdet.DetectionProtocol) []string {
	seen := map[string]bool{}
	var classes []string
	for _, d := range det.Detections {
		for class := range d.Scores {
			if !seen[class] {
				seen[class] = true
				classes = append(classes, class)
			}
		}
	}
	sort.Strings(classes)
	return classes
}
