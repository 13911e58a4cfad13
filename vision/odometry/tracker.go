package odometry

import (
	"context"
	"sync"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"go.opencensus.io/trace"

	"go.viam.com/slamfront/logging"
	"go.viam.com/slamfront/perf"
	"go.viam.com/slamfront/rimage"
	"go.viam.com/slamfront/rimage/transform"
	"go.viam.com/slamfront/vision/correspondence"
	"go.viam.com/slamfront/vision/features"
)

// FrameResult is what the Tracker learned from one frame.
type FrameResult struct {
	// Features are the depth fused features of the frame.
	Features features.Cloud3D
	// Matches holds correspondences from the previous frame (fixed) to this frame (moving).
	// It is nil for the first frame.
	Matches *correspondence.Result
	// Motion maps points of the previous camera frame into this one. It is nil when it could
	// not be estimated.
	Motion *Motion3D
}

// A Tracker runs RGB-D message packs through a feature Builder and matches every frame
// against the one before it.
type Tracker struct {
	builder    *features.Builder
	finder     *correspondence.Finder3D3D
	intrinsics *transform.PinholeCameraIntrinsics
	logger     logging.Logger
	collector  perf.Collector

	mu       sync.Mutex
	previous features.Cloud3D
	hasPrev  bool
	frames   int
}

// NewTracker returns a Tracker. A nil extractor extracts ORB features configured by cfg.
func NewTracker(cfg *Config, extractor features.Extractor, logger logging.Logger, collector perf.Collector) (*Tracker, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate("odometry"); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.NewBlankLogger("odometry")
	}
	if collector == nil {
		collector = perf.Noop()
	}
	if extractor == nil {
		orb, err := features.NewORBExtractor(cfg.KeyPointCfg)
		if err != nil {
			return nil, err
		}
		extractor = orb
	}
	builder, err := features.NewBuilder(cfg.Preprocessor, extractor, logger.Sublogger("features"), collector)
	if err != nil {
		return nil, err
	}
	finder, err := correspondence.NewFinder3D3D(cfg.MatchingCfg, logger.Sublogger("correspondence"), collector)
	if err != nil {
		return nil, err
	}
	return &Tracker{
		builder:    builder,
		finder:     finder,
		intrinsics: cfg.CamIntrinsics,
		logger:     logger,
		collector:  collector,
	}, nil
}

// ProcessFrame fuses the features of pack and matches them against the previous frame. On
// error the previous frame is kept so the next pack is matched against it instead.
func (t *Tracker) ProcessFrame(ctx context.Context, pack *rimage.MessagePack) (*FrameResult, error) {
	ctx, span := trace.StartSpan(ctx, "odometry::Tracker::ProcessFrame")
	defer span.End()
	defer t.collector.Begin("odometry.process_frame")()

	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.builder.SetInput(pack); err != nil {
		return nil, err
	}
	cloud, err := t.builder.Compute(ctx)
	if err != nil {
		return nil, err
	}
	result := &FrameResult{Features: cloud}

	if t.hasPrev {
		matches, err := t.finder.Compute(ctx, t.previous, cloud)
		if err != nil {
			return nil, err
		}
		result.Matches = matches
		result.Motion = t.estimateMotion(t.previous, cloud, matches)
	}

	t.previous = cloud
	t.hasPrev = true
	t.frames++
	t.logger.Debugw("processed frame", "frame", t.frames, "features", len(cloud))
	return result, nil
}

// estimateMotion aligns the matched features. Failures only degrade the result.
func (t *Tracker) estimateMotion(previous, current features.Cloud3D, matches *correspondence.Result) *Motion3D {
	if t.intrinsics == nil {
		return nil
	}
	if matches.Len() < MinMotionCorrespondences {
		t.logger.Debugw("too few correspondences to estimate motion", "matches", matches.Len())
		return nil
	}
	from, err := features.Unproject(previous, t.intrinsics)
	if err != nil {
		t.logger.Warnw("cannot unproject features", "error", err)
		return nil
	}
	to, err := features.Unproject(current, t.intrinsics)
	if err != nil {
		t.logger.Warnw("cannot unproject features", "error", err)
		return nil
	}
	fromPts := lo.Map(matches.Correspondences, func(c correspondence.Correspondence, _ int) r3.Vector {
		return from[c.FixedIdx].Pos
	})
	toPts := lo.Map(matches.Correspondences, func(c correspondence.Correspondence, _ int) r3.Vector {
		return to[c.MovingIdx].Pos
	})
	motion, err := EstimateRigidMotion(fromPts, toPts)
	if err != nil {
		if errors.Is(err, ErrDegenerateMotion) {
			t.logger.Warnw("cannot estimate motion", "matches", matches.Len(), "error", err)
		} else {
			t.logger.Errorw("motion estimation failed", "error", err)
		}
		return nil
	}
	t.collector.Value("odometry.motion_rmse", motion.RMSE)
	return motion
}

// Previous returns a copy of the features of the last successfully processed frame.
func (t *Tracker) Previous() features.Cloud3D {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.hasPrev {
		return nil
	}
	return t.previous.Clone()
}

// Frames returns the number of successfully processed frames.
func (t *Tracker) Frames() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.frames
}

// Reset forgets the previous frame.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.previous = nil
	t.hasPrev = false
}
