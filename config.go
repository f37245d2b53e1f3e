package vdet

import (
	"fmt"

	"github.com/pkg/errors"
)

const (
	// DefaultMaxPerImage keeps at most 100 detections per class per image prior to NMS.
	DefaultMaxPerImage = 100
	// DefaultMaxPerSetFactor keeps an average of 40 detections per class per image prior to NMS.
	DefaultMaxPerSetFactor = 40
	// DefaultOverlapThreshold is the IoU above which a lower scoring detection is suppressed.
	DefaultOverlapThreshold = 0.3
)

// A Config describes the caps and thresholds used while post-processing one video.
type Config struct {
	MaxPerImage      int     `json:"max_per_image"`
	MaxPerSetFactor  int     `json:"max_per_set_factor"`
	OverlapThreshold float64 `json:"overlap_threshold"`
	// TemporalWindow is how many frame ids apart two detections may be and
	// still suppress each other. 0 compares detections of the same frame only.
	TemporalWindow int `json:"temporal_window"`
	// ClassWorkers bounds how many classes are ingested in parallel, 0 for no
	// bound. Frames within a class are always ingested in video order.
	ClassWorkers int `json:"class_workers"`
}

// DefaultConfig returns the configuration used when nothing is overridden.
func DefaultConfig() Config {
	return Config{
		MaxPerImage:      DefaultMaxPerImage,
		MaxPerSetFactor:  DefaultMaxPerSetFactor,
		OverlapThreshold: DefaultOverlapThreshold,
		ClassWorkers:     1,
	}
}

// Validate ensures all parts of the config are valid.
func (config *Config) Validate(path string) error {
	if config.MaxPerImage < 1 {
		return newFieldError(path, "max_per_image", "must be at least 1")
	}
	if config.MaxPerSetFactor < 1 {
		return newFieldError(path, "max_per_set_factor", "must be at least 1")
	}
	if config.OverlapThreshold < 0 || config.OverlapThreshold > 1 {
		return newFieldError(path, "overlap_threshold", "must be within [0, 1]")
	}
	if config.TemporalWindow < 0 {
		return newFieldError(path, "temporal_window", "must not be negative")
	}
	if config.ClassWorkers < 0 {
		return newFieldError(path, "class_workers", "must not be negative")
	}
	return nil
}

// MaxPerSet is the per class cap over a whole video of numFrames frames.
func (config *Config) MaxPerSet(numFrames int) int {
	return config.MaxPerSetFactor * numFrames
}

func newFieldError(path, field, msg string) error {
	if path != "" {
		field = fmt.Sprintf("%s.%s", path, field)
	}
	return errors.Wrapf(ErrPrecondition, "config field %q %s", field, msg)
}
