package cli

import (
	"fmt"
	"image"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/urfave/cli/v2"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/slamfront/logging"
	"go.viam.com/slamfront/perf"
	"go.viam.com/slamfront/rimage"
	"go.viam.com/slamfront/vision/features"
	"go.viam.com/slamfront/vision/keypoints"
	"go.viam.com/slamfront/vision/odometry"
)

// frame is an RGB-D frame read from disk.
type frame struct {
	intensity image.Image
	depth     *rimage.DepthMap
	name      string
}

// MatchAction is the corresponding Action for 'match'.
func MatchAction(c *cli.Context) error {
	rgbPaths := c.StringSlice(matchFlagRGB)
	depthPaths := c.StringSlice(matchFlagDepth)
	if len(rgbPaths) != 2 || len(depthPaths) != 2 {
		return errors.Errorf("need exactly two --%s and two --%s flags, got %d and %d",
			matchFlagRGB, matchFlagDepth, len(rgbPaths), len(depthPaths))
	}

	cfg := odometry.DefaultConfig()
	if path := c.String(matchFlagConfig); path != "" {
		var err error
		if cfg, err = odometry.LoadConfig(path); err != nil {
			return err
		}
	}
	if c.Bool(matchFlagParallel) {
		cfg.MatchingCfg.Parallel = true
	}

	logger := logging.NewLogger("slamfront")
	if c.Bool(generalFlagDebug) {
		logger = logging.NewDebugLogger("slamfront")
	}
	recorder := perf.NewRecorder(nil)
	tracker, err := odometry.NewTracker(cfg, nil, logger, recorder)
	if err != nil {
		return err
	}

	frames := make([]frame, len(rgbPaths))
	results := make([]*odometry.FrameResult, len(rgbPaths))
	for i := range rgbPaths {
		if frames[i], err = readFrame(rgbPaths[i], depthPaths[i]); err != nil {
			return err
		}
		pack := rimage.NewMessagePack(
			&rimage.ImageMessage{Topic: cfg.Preprocessor.TopicRGB, Seq: uint64(i), Timestamp: time.Now(), Image: frames[i].intensity},
			&rimage.ImageMessage{Topic: cfg.Preprocessor.TopicDepth, Seq: uint64(i), Timestamp: time.Now(), Image: frames[i].depth},
		)
		if results[i], err = tracker.ProcessFrame(c.Context, pack); err != nil {
			return errors.Wrapf(err, "cannot process frame %q", frames[i].name)
		}
		printf(c.App.Writer, "%s: %d features with depth", frames[i].name, len(results[i].Features))
	}

	matches := results[1].Matches
	printf(c.App.Writer, "%d correspondences, matching ratio %.3f", matches.Len(), matches.MatchingRatio)
	if matches.Degraded {
		warningf(c.App.ErrWriter, "matching ratio below %.3f", cfg.MatchingCfg.MinimumMatchingRatio)
	}
	for _, corr := range matches.Correspondences {
		printf(c.App.Writer, "\t%d -> %d (distance %.0f)", corr.FixedIdx, corr.MovingIdx, corr.Distance)
	}
	if motion := results[1].Motion; motion != nil {
		printf(c.App.Writer, "rotation:\n%v", mat.Formatted(motion.Rotation, mat.Prefix(""), mat.Squeeze()))
		printf(c.App.Writer, "translation (m): %v", motion.TranslationVector())
		printf(c.App.Writer, "rmse (m): %.4f", motion.RMSE)
	} else if cfg.CamIntrinsics == nil {
		printf(c.App.Writer, "no intrinsic_parameters configured, motion not estimated")
	}

	if dir := c.Path(matchFlagDebugDir); dir != "" {
		if err := writeDebugPlots(dir, frames, results); err != nil {
			return err
		}
		printf(c.App.Writer, "debug plots written to %s", dir)
	}

	for _, name := range recorder.Names() {
		summary, err := recorder.Summary(name)
		if err != nil {
			continue
		}
		printf(c.App.Writer, "%s: n=%d mean=%.4g p95=%.4g max=%.4g", name, summary.Count, summary.Mean, summary.P95, summary.Max)
	}
	return nil
}

func readFrame(rgbPath, depthPath string) (frame, error) {
	intensity, err := imaging.Open(rgbPath, imaging.AutoOrientation(true))
	if err != nil {
		return frame{}, errors.Wrapf(err, "cannot read intensity image %q", rgbPath)
	}
	depth, err := rimage.ParseDepthMap(depthPath)
	if err != nil {
		return frame{}, errors.Wrapf(err, "cannot read depth map %q", depthPath)
	}
	return frame{intensity: intensity, depth: depth, name: filepath.Base(rgbPath)}, nil
}

func toKeyPoints(cloud features.Cloud3D) keypoints.KeyPoints {
	return lo.Map(cloud, func(f features.Feature3D, _ int) image.Point {
		return image.Point{X: int(math.Round(f.Pos.X)), Y: int(math.Round(f.Pos.Y))}
	})
}

func writeDebugPlots(dir string, frames []frame, results []*odometry.FrameResult) error {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return err
	}
	kps := make([]keypoints.KeyPoints, len(frames))
	for i, fr := range frames {
		kps[i] = toKeyPoints(results[i].Features)
		out := filepath.Join(dir, fmt.Sprintf("keypoints_%d.png", i))
		if err := keypoints.PlotKeypoints(rimage.MakeGray(fr.intensity), kps[i], out); err != nil {
			return err
		}
	}
	matched0, matched1, err := keypoints.GetMatchingKeyPoints(results[1].Matches.DescriptorMatches(), kps[0], kps[1])
	if err != nil {
		return err
	}
	lines, err := keypoints.PlotMatchedLines(frames[0].intensity, frames[1].intensity, matched0, matched1, false)
	if err != nil {
		return err
	}
	return imaging.Save(lines, filepath.Join(dir, "matches.png"))
}
