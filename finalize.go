package vdet

// FrameRows maps a frame id to the rows kept at that frame.
type FrameRows map[int][]Row

// Aggregated is the outcome of one video's bounded aggregation.
type Aggregated struct {
	// Frames are the frame ids in video order.
	Frames []int
	// Thresholds are the final per class thresholds; every kept row scores above its class threshold.
	Thresholds map[string]float64
	Classes    map[string]FrameRows
}

// Finalize drops every stored row scoring at or below its class's final
// threshold and releases the streaming state. The aggregator accepts no
// further ingestion afterwards.
func (a *Aggregator) Finalize() (*Aggregated, error) {
	if a.finalized {
		return nil, preconditionf("aggregator already finalized")
	}
	out := &Aggregated{
		Frames:     a.frames,
		Thresholds: make(map[string]float64, len(a.classes)),
		Classes:    make(map[string]FrameRows, len(a.classes)),
	}
	for _, state := range a.classes {
		frames := FrameRows{}
		kept := 0
		for f, rows := range state.provisional {
			if !state.ingested[f] {
				continue
			}
			filtered := rows[:0]
			for _, r := range rows {
				if r.Score > state.threshold {
					filtered = append(filtered, r)
				}
			}
			frames[a.frames[f]] = filtered
			kept += len(filtered)
		}
		out.Classes[state.name] = frames
		out.Thresholds[state.name] = state.threshold
		a.metrics.finalized(state.name, kept)
		a.logger.Debugw("class finalized", "class", state.name, "threshold", state.threshold, "kept", kept)
	}
	a.finalized = true
	a.classes = nil
	return out, nil
}

// Count returns how many rows a class kept over the whole video.
func (agg *Aggregated) Count(class string) int {
	n := 0
	for _, rows := range agg.Classes[class] {
		n += len(rows)
	}
	return n
}

// Protocol flattens the rows of one class into a detection protocol, frames in
// video order and rows in descending score order within a frame.
func (agg *Aggregated) Protocol(video, class string) *DetectionProtocol {
	det := &DetectionProtocol{Video: video, Detections: []DetectionRecord{}}
	frames := agg.Classes[class]
	for _, id := range agg.Frames {
		for _, r := range frames[id] {
			det.Detections = append(det.Detections, DetectionRecord{
				Frame:  id,
				BBox:   r.BBox,
				Scores: map[string]float64{class: r.Score},
			})
		}
	}
	return det
}
