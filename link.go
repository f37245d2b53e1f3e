package vdet

import (
	"github.com/cpmech/gosl/graph"
	"github.com/samber/lo"
)

// TubeletLinker chains detections of consecutive frames into tubelets.
type TubeletLinker struct {
	// IOUThreshold is the minimum overlap for a detection to extend a tubelet.
	IOUThreshold float64
	// MaxGap is how many frames a tubelet may go without a detection and still be extended.
	MaxGap int
}

type tubelet struct {
	id      int
	last    BBox
	lastPos int
}

// Link returns a copy of det whose records carry tubelet ids, numbered from 1
// in order of appearance. Frames are visited in the order of vid. Within a
// frame, detections are assigned to the live tubelets by minimum total
// (1 - IoU) cost; assignments under IOUThreshold start new tubelets.
func (l TubeletLinker) Link(vid *VideoProtocol, det *DetectionProtocol) (*DetectionProtocol, int, error) {
	if err := checkVideo(vid.Video, det.Video); err != nil {
		return nil, 0, err
	}
	frames := vid.FrameIndex()
	for _, d := range det.Detections {
		if _, ok := frames[d.Frame]; !ok {
			return nil, 0, preconditionf("detection at frame %d outside video %q", d.Frame, vid.Video)
		}
	}
	out := &DetectionProtocol{Video: det.Video, Detections: append([]DetectionRecord(nil), det.Detections...)}
	byFrame := lo.GroupBy(lo.Range(len(out.Detections)), func(i int) int {
		return out.Detections[i].Frame
	})

	var tubelets []*tubelet
	nextID := 1
	for pos, frame := range vid.Frames {
		idxs := byFrame[frame.ID]
		if len(idxs) == 0 {
			continue
		}
		live := lo.Filter(tubelets, func(t *tubelet, _ int) bool {
			return pos-t.lastPos-1 <= l.MaxGap
		})
		boxes := lo.Map(idxs, func(i, _ int) BBox { return out.Detections[i].BBox })
		matches, unmatched := l.associate(boxes, live)

		for d, t := range matches {
			live[t].last = boxes[d]
			live[t].lastPos = pos
			out.Detections[idxs[d]].Tubelet = live[t].id
		}
		for _, d := range unmatched {
			t := &tubelet{id: nextID, last: boxes[d], lastPos: pos}
			nextID++
			tubelets = append(tubelets, t)
			out.Detections[idxs[d]].Tubelet = t.id
		}
	}
	return out, nextID - 1, nil
}

// associate assigns detections to tubelets. It returns detection → tubelet
// matches and the detections left unmatched, in detection order.
func (l TubeletLinker) associate(boxes []BBox, live []*tubelet) (map[int]int, []int) {
	matches := map[int]int{}
	if len(live) == 0 {
		return matches, lo.Range(len(boxes))
	}

	cost := make([][]float64, len(boxes))
	for d := range boxes {
		cost[d] = make([]float64, len(live))
		for t, tb := range live {
			//invert overlap, munkres minimises cost
			cost[d][t] = 1 - IOU(boxes[d], tb.last)
		}
	}
	mk := graph.Munkres{}
	mk.Init(len(boxes), len(live))
	mk.SetCostMatrix(cost)
	mk.Run()

	var unmatched []int
	for d := range boxes {
		t := -1
		if d < len(mk.Links) {
			t = mk.Links[d]
		}
		if t == -1 {
			unmatched = append(unmatched, d)
			continue
		}
		//filter out matches with low overlap
		if iou := 1 - cost[d][t]; iou <= 0 || iou < l.IOUThreshold {
			unmatched = append(unmatched, d)
			continue
		}
		matches[d] = t
	}
	return matches, unmatched
}
