package main

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.viam.com/test"

	"trunov/vdet"
)

func parseConfig(t *testing.T, args ...string) (vdet.Config, error) {
	t.Helper()
	var cfg vdet.Config
	var cfgErr error
	app := &cli.App{
		Name:  "vdet",
		Flags: appFlags(),
		Action: func(c *cli.Context) error {
			cfg, cfgErr = configFromFlags(c)
			return nil
		},
	}
	test.That(t, app.Run(append([]string{"vdet"}, args...)), test.ShouldBeNil)
	return cfg, cfgErr
}

func TestConfigFromFlags(t *testing.T) {
	cfg, err := parseConfig(t)
	test.That(t, err, test.ShouldBeNil)
	defaults := vdet.DefaultConfig()
	test.That(t, cfg.MaxPerImage, test.ShouldEqual, defaults.MaxPerImage)
	test.That(t, cfg.MaxPerSetFactor, test.ShouldEqual, defaults.MaxPerSetFactor)
	test.That(t, cfg.OverlapThreshold, test.ShouldEqual, defaults.OverlapThreshold)
	test.That(t, cfg.TemporalWindow, test.ShouldEqual, 0)
	test.That(t, cfg.ClassWorkers, test.ShouldEqual, 0)

	cfg, err = parseConfig(t, "--max-per-image", "5", "--overlap", "0.5", "--temporal-window", "2")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.MaxPerImage, test.ShouldEqual, 5)
	test.That(t, cfg.OverlapThreshold, test.ShouldEqual, 0.5)
	test.That(t, cfg.TemporalWindow, test.ShouldEqual, 2)

	_, err = parseConfig(t, "--overlap", "1.5")
	test.That(t, errors.Is(err, vdet.ErrPrecondition), test.ShouldBeTrue)
	test.That(t, err.Error(), test.ShouldContainSubstring, `"flags.overlap_threshold"`)
}
