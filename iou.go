package vdet

import "math"

// IOU is the intersection over union of two boxes. Coordinates are inclusive
// pixel indices, so a box from x1 to x2 is x2-x1+1 pixels wide.
func IOU(a, b BBox) float64 {
	xx1 := math.Max(a[0], b[0])
	yy1 := math.Max(a[1], b[1])
	xx2 := math.Min(a[2], b[2])
	yy2 := math.Min(a[3], b[3])

	w := math.Max(0, xx2-xx1+1)
	h := math.Max(0, yy2-yy1+1)
	inter := w * h
	if inter == 0 {
		return 0
	}
	union := area(a) + area(b) - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

func area(b BBox) float64 {
	return math.Max(0, b[2]-b[0]+1) * math.Max(0, b[3]-b[1]+1)
}
