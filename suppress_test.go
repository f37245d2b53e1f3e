package vdet

import (
	"testing"

	"github.com/pkg/errors"
	"go.viam.com/test"
	"gonum.org/v1/gonum/mat"
)

func TestIOU(t *testing.T) {
	a := BBox{0, 0, 9, 9}
	test.That(t, IOU(a, a), test.ShouldEqual, 1.0)
	test.That(t, IOU(a, BBox{5, 0, 14, 9}), test.ShouldAlmostEqual, 50.0/150.0)
	test.That(t, IOU(a, BBox{20, 20, 30, 30}), test.ShouldEqual, 0.0)
	test.That(t, IOU(a, BBox{10, 0, 19, 9}), test.ShouldEqual, 0.0)
}

func suppressionProtocol() *DetectionProtocol {
	rec := func(frame int, bbox BBox, score float64) DetectionRecord {
		return DetectionRecord{Frame: frame, BBox: bbox, Scores: map[string]float64{"dog": score}}
	}
	return &DetectionProtocol{
		Video: "v",
		Detections: []DetectionRecord{
			rec(1, BBox{5, 0, 14, 9}, 0.6),   // overlaps 2 by 1/3
			rec(1, BBox{0, 0, 9, 9}, 0.9),    // best of frame 1
			rec(1, BBox{8, 0, 17, 9}, 0.5),   // overlaps 2 by 1/9, 0 by 7/13
			rec(2, BBox{0, 0, 9, 9}, 0.7),    // same box, next frame
			rec(2, BBox{40, 40, 49, 49}, 0.3),
		},
	}
}

func TestGreedySuppressor(t *testing.T) {
	rows := mat.NewDense(4, 6, []float64{
		1, 0, 0, 9, 9, 0.9,
		1, 5, 0, 14, 9, 0.6,
		1, 100, 100, 110, 110, 0.2,
		2, 0, 0, 9, 9, 0.95,
	})
	keep, err := GreedySuppressor{}.Suppress(rows, 0.3)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, keep, test.ShouldResemble, []int{3, 0, 2})

	keep, err = GreedySuppressor{TemporalWindow: 1}.Suppress(rows, 0.3)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, keep, test.ShouldResemble, []int{3, 2})

	_, err = GreedySuppressor{}.Suppress(mat.NewDense(1, 5, nil), 0.3)
	test.That(t, errors.Is(err, ErrPrecondition), test.ShouldBeTrue)
}

func TestVideoSuppressor(t *testing.T) {
	det := suppressionProtocol()
	v := NewVideoSuppressor(nil, DefaultConfig(), nil)

	out, err := v.Apply(det, "dog")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out.Video, test.ShouldEqual, "v")
	// kept records stay in detection order, not score order
	test.That(t, out.Detections, test.ShouldResemble, []DetectionRecord{
		det.Detections[1],
		det.Detections[2],
		det.Detections[3],
		det.Detections[4],
	})

	again, err := v.Apply(det, "dog")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, again, test.ShouldResemble, out)
}

func TestVideoSuppressorForwardsToPrimitive(t *testing.T) {
	var got *mat.Dense
	var overlap float64
	primitive := SuppressorFunc(func(rows mat.Matrix, thresh float64) ([]int, error) {
		got = mat.DenseCopyOf(rows)
		overlap = thresh
		return []int{4, 0}, nil
	})
	cfg := DefaultConfig()
	cfg.OverlapThreshold = 0.5
	det := suppressionProtocol()

	out, err := NewVideoSuppressor(primitive, cfg, nil).Apply(det, "dog")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, overlap, test.ShouldEqual, 0.5)
	r, c := got.Dims()
	test.That(t, r, test.ShouldEqual, 5)
	test.That(t, c, test.ShouldEqual, 6)
	test.That(t, got.RawRowView(3), test.ShouldResemble, []float64{2, 0, 0, 9, 9, 0.7})
	test.That(t, out.Detections, test.ShouldResemble, []DetectionRecord{det.Detections[0], det.Detections[4]})
}

func TestVideoSuppressorErrors(t *testing.T) {
	det := suppressionProtocol()
	v := NewVideoSuppressor(nil, DefaultConfig(), nil)
	_, err := v.Apply(det, "cat")
	test.That(t, errors.Is(err, ErrPrecondition), test.ShouldBeTrue)

	bad := SuppressorFunc(func(rows mat.Matrix, thresh float64) ([]int, error) {
		return []int{1, 1}, nil
	})
	_, err = NewVideoSuppressor(bad, DefaultConfig(), nil).Apply(det, "dog")
	test.That(t, errors.Is(err, ErrPrecondition), test.ShouldBeTrue)

	failing := SuppressorFunc(func(rows mat.Matrix, thresh float64) ([]int, error) {
		return nil, errors.New("nms failed")
	})
	_, err = NewVideoSuppressor(failing, DefaultConfig(), nil).Apply(det, "dog")
	test.That(t, err.Error(), test.ShouldContainSubstring, "nms failed")

	empty, err := v.Apply(&DetectionProtocol{Video: "v"}, "dog")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, empty.Detections, test.ShouldBeEmpty)
}
