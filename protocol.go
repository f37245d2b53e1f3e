package vdet

import (
	"path/filepath"
	"sort"

	"github.com/pkg/errors"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// BBox is a box in x1, y1, x2, y2 order.
type BBox [4]float64

// Frame is one entry of a video protocol. Frame ids are unique and the
// position of a frame in the protocol is its video order.
type Frame struct {
	ID   int
	Path string
}

// VideoProtocol lists the frames of one video.
type VideoProtocol struct {
	Video    string
	RootPath string
	Frames   []Frame
}

// Box is a candidate box at one frame.
type Box struct {
	Frame int
	BBox  BBox
}

// BoxProtocol is an unordered collection of boxes for one video.
type BoxProtocol struct {
	Video string
	Boxes []Box
}

// DetectionRecord is one candidate box at one frame with its class scores.
// Scores is nil until the record has been scored.
type DetectionRecord struct {
	Frame   int
	BBox    BBox
	Scores  map[string]float64
	Tubelet int
}

// RecordKey identifies a detection across independent passes.
type RecordKey struct {
	Frame int
	BBox  BBox
}

// Key returns the identity of the record.
func (d DetectionRecord) Key() RecordKey {
	return RecordKey{Frame: d.Frame, BBox: d.BBox}
}

// DetectionProtocol holds the detections of one video in discovery order.
type DetectionProtocol struct {
	Video      string
	Detections []DetectionRecord
}

// FrameIndex maps every frame id of the video to its position.
func (v *VideoProtocol) FrameIndex() map[int]int {
	idx := make(map[int]int, len(v.Frames))
	for i, f := range v.Frames {
		idx[f.ID] = i
	}
	return idx
}

// FramePathAt returns the full image path of a frame.
func FramePathAt(vid *VideoProtocol, frameID int) (string, error) {
	for _, f := range vid.Frames {
		if f.ID == frameID {
			return filepath.Join(vid.RootPath, f.Path), nil
		}
	}
	return "", preconditionf("frame %d is not part of video %q", frameID, vid.Video)
}

// BoxesAtFrame returns the boxes of one frame in protocol order.
func BoxesAtFrame(boxes *BoxProtocol, frameID int) []BBox {
	var out []BBox
	for _, b := range boxes.Boxes {
		if b.Frame == frameID {
			out = append(out, b.BBox)
		}
	}
	return out
}

// EmptyDetFromBox creates unscored detection records for every box.
func EmptyDetFromBox(boxes *BoxProtocol) *DetectionProtocol {
	det := &DetectionProtocol{
		Video:      boxes.Video,
		Detections: make([]DetectionRecord, 0, len(boxes.Boxes)),
	}
	for _, b := range boxes.Boxes {
		det.Detections = append(det.Detections, DetectionRecord{Frame: b.Frame, BBox: b.BBox})
	}
	return det
}

// DetScore returns the score of a detection for a class.
func DetScore(det DetectionRecord, class string) (float64, bool) {
	score, ok := det.Scores[class]
	return score, ok
}

func checkVideo(want, got string) error {
	if want != got {
		return &ProtocolMismatchError{Want: want, Got: got}
	}
	return nil
}

func parseBBox(value gjson.Result) (BBox, error) {
	var bbox BBox
	arr := value.Array()
	if len(arr) != 4 {
		return bbox, errors.Errorf("bbox must have 4 coordinates, got %d", len(arr))
	}
	for i, v := range arr {
		bbox[i] = v.Float()
	}
	return bbox, nil
}

// ParseVideoProtocol decodes a video protocol from JSON.
func ParseVideoProtocol(data []byte) (*VideoProtocol, error) {
	if !gjson.ValidBytes(data) {
		return nil, errors.New("invalid video protocol json")
	}
	root := gjson.ParseBytes(data)
	vid := &VideoProtocol{
		Video:    root.Get("video").String(),
		RootPath: root.Get("root_path").String(),
	}
	seen := map[int]bool{}
	var err error
	root.Get("frames").ForEach(func(_, frame gjson.Result) bool {
		id := int(frame.Get("frame").Int())
		if seen[id] {
			err = errors.Errorf("duplicate frame id %d in video %q", id, vid.Video)
			return false
		}
		seen[id] = true
		vid.Frames = append(vid.Frames, Frame{ID: id, Path: frame.Get("path").String()})
		return true
	})
	if err != nil {
		return nil, err
	}
	return vid, nil
}

// ParseBoxProtocol decodes a box protocol from JSON.
func ParseBoxProtocol(data []byte) (*BoxProtocol, error) {
	if !gjson.ValidBytes(data) {
		return nil, errors.New("invalid box protocol json")
	}
	root := gjson.ParseBytes(data)
	boxes := &BoxProtocol{Video: root.Get("video").String()}
	var err error
	root.Get("boxes").ForEach(func(_, box gjson.Result) bool {
		var bbox BBox
		if bbox, err = parseBBox(box.Get("bbox")); err != nil {
			return false
		}
		boxes.Boxes = append(boxes.Boxes, Box{Frame: int(box.Get("frame").Int()), BBox: bbox})
		return true
	})
	if err != nil {
		return nil, errors.Wrapf(err, "box protocol %q", boxes.Video)
	}
	return boxes, nil
}

// ParseDetectionProtocol decodes a detection protocol from JSON. Scores may be
// either a list of {"class", "score"} entries or an object keyed by class.
func ParseDetectionProtocol(data []byte) (*DetectionProtocol, error) {
	if !gjson.ValidBytes(data) {
		return nil, errors.New("invalid detection protocol json")
	}
	root := gjson.ParseBytes(data)
	det := &DetectionProtocol{Video: root.Get("video").String()}
	var err error
	root.Get("detections").ForEach(func(_, d gjson.Result) bool {
		rec := DetectionRecord{
			Frame:   int(d.Get("frame").Int()),
			Tubelet: int(d.Get("tubelet").Int()),
		}
		if rec.BBox, err = parseBBox(d.Get("bbox")); err != nil {
			return false
		}
		scores := d.Get("scores")
		if scores.Exists() {
			rec.Scores = map[string]float64{}
			if scores.IsArray() {
				for _, s := range scores.Array() {
					rec.Scores[s.Get("class").String()] = s.Get("score").Float()
				}
			} else {
				scores.ForEach(func(class, score gjson.Result) bool {
					rec.Scores[class.String()] = score.Float()
					return true
				})
			}
		}
		det.Detections = append(det.Detections, rec)
		return true
	})
	if err != nil {
		return nil, errors.Wrapf(err, "detection protocol %q", det.Video)
	}
	return det, nil
}

// Encode writes the protocol as JSON. Scores are listed by class name.
func (det *DetectionProtocol) Encode() ([]byte, error) {
	out, err := sjson.SetBytes([]byte(`{}`), "video", det.Video)
	if err != nil {
		return nil, err
	}
	if out, err = sjson.SetRawBytes(out, "detections", []byte(`[]`)); err != nil {
		return nil, err
	}
	for _, d := range det.Detections {
		raw, err := encodeRecord(d)
		if err != nil {
			return nil, err
		}
		if out, err = sjson.SetRawBytes(out, "detections.-1", raw); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func encodeRecord(d DetectionRecord) ([]byte, error) {
	rec, err := sjson.SetBytes([]byte(`{}`), "frame", d.Frame)
	if err != nil {
		return nil, err
	}
	if rec, err = sjson.SetBytes(rec, "bbox", d.BBox[:]); err != nil {
		return nil, err
	}
	if d.Tubelet > 0 {
		if rec, err = sjson.SetBytes(rec, "tubelet", d.Tubelet); err != nil {
			return nil, err
		}
	}
	if d.Scores == nil {
		return rec, nil
	}
	classes := make([]string, 0, len(d.Scores))
	for class := range d.Scores {
		classes = append(classes, class)
	}
	sort.Strings(classes)
	if rec, err = sjson.SetRawBytes(rec, "scores", []byte(`[]`)); err != nil {
		return nil, err
	}
	for _, class := range classes {
		entry, err := sjson.SetBytes([]byte(`{}`), "class", class)
		if err != nil {
			return nil, err
		}
		if entry, err = sjson.SetBytes(entry, "score", d.Scores[class]); err != nil {
			return nil, err
		}
		if rec, err = sjson.SetRawBytes(rec, "scores.-1", entry); err != nil {
			return nil, err
		}
	}
	return rec, nil
}
