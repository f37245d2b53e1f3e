package vdet

import (
	"testing"

	"github.com/pkg/errors"
	"go.viam.com/test"
)

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	test.That(t, cfg.Validate("path"), test.ShouldBeNil)
	test.That(t, cfg.MaxPerSet(25), test.ShouldEqual, 1000)
	test.That(t, cfg.OverlapThreshold, test.ShouldEqual, 0.3)

	for _, mutate := range []func(*Config){
		func(c *Config) { c.MaxPerImage = 0 },
		func(c *Config) { c.MaxPerSetFactor = -40 },
		func(c *Config) { c.OverlapThreshold = 1.5 },
		func(c *Config) { c.TemporalWindow = -1 },
		func(c *Config) { c.ClassWorkers = -2 },
	} {
		bad := DefaultConfig()
		mutate(&bad)
		err := bad.Validate("path")
		test.That(t, errors.Is(err, ErrPrecondition), test.ShouldBeTrue)
		test.That(t, err.Error(), test.ShouldContainSubstring, `"path.`)
	}
}
