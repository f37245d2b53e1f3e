// Package main filters scored video detection protocols read as JSON lines on
// stdin down to a bounded, suppressed set of detections per class.
package main

import (
	"bufio"
	"fmt"
	"net/http"
	"os"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"trunov/vdet"
)

const (
	flagMaxPerImage     = "max-per-image"
	flagMaxPerSetFactor = "max-per-set-factor"
	flagOverlap         = "overlap"
	flagTemporalWindow  = "temporal-window"
	flagClass           = "class"
	flagLinkIOU         = "link-iou"
	flagMaxGap          = "max-gap"
	flagMetricsAddr     = "metrics-addr"
	flagDebug           = "debug"
)

func main() {
	var logger golog.Logger

	app := &cli.App{
		Name:  "vdet",
		Usage: "bound and suppress per class video detections read from stdin",
		Flags: appFlags(),
		Before: func(c *cli.Context) error {
			cfg := zap.NewDevelopmentConfig()
			// stdout carries the filtered protocols
			cfg.OutputPaths = []string{"stderr"}
			if !c.Bool(flagDebug) {
				cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
			}
			l, err := cfg.Build()
			if err != nil {
				return err
			}
			logger = l.Sugar().Named("vdet")
			return nil
		},
		Action: func(c *cli.Context) error {
			return run(c, logger)
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func appFlags() []cli.Flag {
	defaults := vdet.DefaultConfig()
	return []cli.Flag{
		&cli.IntFlag{
			Name:  flagMaxPerImage,
			Value: defaults.MaxPerImage,
			Usage: "max detections kept per class per frame",
		},
		&cli.IntFlag{
			Name:  flagMaxPerSetFactor,
			Value: defaults.MaxPerSetFactor,
			Usage: "average detections kept per class per frame over the video",
		},
		&cli.Float64Flag{
			Name:  flagOverlap,
			Value: defaults.OverlapThreshold,
			Usage: "IoU threshold for suppression",
		},
		&cli.IntFlag{
			Name:  flagTemporalWindow,
			Usage: "frame ids apart within which detections suppress each other",
		},
		&cli.StringSliceFlag{
			Name:  flagClass,
			Usage: "class to process, repeatable; defaults to every scored class",
		},
		&cli.Float64Flag{
			Name:  flagLinkIOU,
			Usage: "link kept detections into tubelets at this IoU, 0 disables",
		},
		&cli.IntFlag{
			Name:  flagMaxGap,
			Usage: "frames a tubelet may skip and still be extended",
		},
		&cli.StringFlag{
			Name:  flagMetricsAddr,
			Usage: "serve prometheus metrics on `ADDR`",
		},
		&cli.BoolFlag{
			Name:  flagDebug,
			Usage: "enable debug logging",
		},
	}
}

// configFromFlags builds the post-processing config from the command line.
// ClassWorkers is left unset: the filter only aggregates scored protocols and
// never fans out per class.
func configFromFlags(c *cli.Context) (vdet.Config, error) {
	cfg := vdet.Config{
		MaxPerImage:      c.Int(flagMaxPerImage),
		MaxPerSetFactor:  c.Int(flagMaxPerSetFactor),
		OverlapThreshold: c.Float64(flagOverlap),
		TemporalWindow:   c.Int(flagTemporalWindow),
	}
	return cfg, cfg.Validate("flags")
}

func run(c *cli.Context, logger golog.Logger) error {
	cfg, err := configFromFlags(c)
	if err != nil {
		return err
	}

	f := &filter{
		cfg:     cfg,
		classes: c.StringSlice(flagClass),
		linkIOU: c.Float64(flagLinkIOU),
		maxGap:  c.Int(flagMaxGap),
		logger:  logger,
	}
	if addr := c.String(flagMetricsAddr); addr != "" {
		f.metrics = vdet.NewMetrics()
		mux := http.NewServeMux()
		mux.Handle("/metrics", f.metrics.Handler())
		go func() {
			if err := http.ListenAndServe(addr, mux); err != nil {
				logger.Errorw("metrics server stopped", "error", err)
			}
		}()
	}

	s := bufio.NewScanner(os.Stdin)
	bufsize := 10 << 20
	buf := make([]byte, bufsize)
	s.Buffer(buf, bufsize)
	for s.Scan() {
		reqdata := s.Bytes()
		if len(reqdata) == 0 {
			continue
		}
		out, err := f.process(reqdata)
		if err != nil {
			logger.Errorw("could not process request", "error", err)
			continue
		}
		fmt.Fprintln(c.App.Writer, string(out))
	}
	return errors.Wrap(s.Err(), "reading stdin")
}
