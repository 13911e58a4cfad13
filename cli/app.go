// Package cli contains the slamfront command line tool.
package cli

import (
	"io"

	"github.com/urfave/cli/v2"
)

const (
	generalFlagDebug = "debug"

	matchFlagConfig   = "config"
	matchFlagRGB      = "rgb"
	matchFlagDepth    = "depth"
	matchFlagDebugDir = "debug-dir"
	matchFlagParallel = "parallel"
)

var app = &cli.App{
	Name:            "slamfront",
	Usage:           "extract, depth fuse and match features of RGB-D frames",
	HideHelpCommand: true,
	Flags: []cli.Flag{
		&cli.BoolFlag{
			Name:    generalFlagDebug,
			Aliases: []string{"vvv"},
			Usage:   "enable debug logging",
		},
	},
	Commands: []*cli.Command{
		{
			Name:      "match",
			Usage:     "match the features of two RGB-D frames and estimate the motion between them",
			UsageText: "slamfront match --rgb <a.png> --depth <a_depth.png> --rgb <b.png> --depth <b_depth.png> [other options]",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:    matchFlagConfig,
					Aliases: []string{"c"},
					Usage:   "load tracking configuration from `FILE`",
				},
				&cli.StringSliceFlag{
					Name:     matchFlagRGB,
					Required: true,
					Usage:    "intensity image of a frame, given once per frame",
				},
				&cli.StringSliceFlag{
					Name:     matchFlagDepth,
					Required: true,
					Usage:    "depth map of a frame (16 bit png, raw or gzipped raw), given once per frame",
				},
				&cli.PathFlag{
					Name:  matchFlagDebugDir,
					Usage: "write keypoint and match plots to `DIR`",
				},
				&cli.BoolFlag{
					Name:  matchFlagParallel,
					Usage: "compute descriptor distances in parallel",
				},
			},
			Action: MatchAction,
		},
	},
}

// NewApp returns the app with the given writers for output.
func NewApp(out, errOut io.Writer) *cli.App {
	app.Writer = out
	app.ErrWriter = errOut
	return app
}
