package features

import (
	"context"
	"fmt"
	"image"
	"math"
	"sync"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.opencensus.io/trace"

	"go.viam.com/slamfront/logging"
	"go.viam.com/slamfront/perf"
	"go.viam.com/slamfront/rimage"
)

// maxInvalidDepthRatio is the fraction of candidates without depth above which a warning is logged.
const maxInvalidDepthRatio = 0.25

// BuilderState is the lifecycle state of a Builder.
type BuilderState int

const (
	// StateError is the initial state and the state after any fatal failure.
	StateError BuilderState = iota
	// StateInitializing means a valid input was accepted but not yet fused.
	StateInitializing
	// StateReady means fused output is available.
	StateReady
)

func (s BuilderState) String() string {
	switch s {
	case StateError:
		return "error"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	default:
		return fmt.Sprintf("BuilderState(%d)", int(s))
	}
}

// Builder fuses the features of an intensity image with the co-registered depth image of the
// same message pack. Positions of the produced features hold the pixel coordinates in X and
// Y and the depth in meters in Z.
type Builder struct {
	cfg       BuilderConfig
	extractor Extractor
	logger    logging.Logger
	collector perf.Collector

	mu        sync.Mutex
	state     BuilderState
	intensity *rimage.ImageMessage
	depth     *rimage.ImageMessage
	changed   bool

	output    Cloud3D
	hasOutput bool
}

// NewBuilder returns a Builder in the Error state. A nil logger or collector discards output.
func NewBuilder(cfg *BuilderConfig, extractor Extractor, logger logging.Logger, collector perf.Collector) (*Builder, error) {
	if cfg == nil {
		cfg = DefaultBuilderConfig()
	}
	if err := cfg.Validate("builder"); err != nil {
		return nil, err
	}
	if extractor == nil {
		return nil, errors.New("feature builder requires an extractor")
	}
	if logger == nil {
		logger = logging.NewBlankLogger("features")
	}
	if collector == nil {
		collector = perf.Noop()
	}
	return &Builder{
		cfg:       *cfg,
		extractor: extractor,
		logger:    logger,
		collector: collector,
		state:     StateError,
	}, nil
}

// State returns the current lifecycle state.
func (b *Builder) State() BuilderState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// SetInput selects the intensity and depth messages of pack. Every accepted pack marks the
// input as changed, so only a repeated Compute without new input reuses the last output.
func (b *Builder) SetInput(pack *rimage.MessagePack) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	intensity, depth, err := b.selectMessages(pack)
	if err != nil {
		b.state = StateError
		b.intensity, b.depth = nil, nil
		return err
	}
	b.intensity, b.depth = intensity, depth
	b.changed = true
	b.state = StateInitializing
	return nil
}

func (b *Builder) selectMessages(pack *rimage.MessagePack) (*rimage.ImageMessage, *rimage.ImageMessage, error) {
	if pack == nil {
		return nil, nil, NewInvalidInputError("message pack is nil")
	}
	if pack.Len() < 2 {
		return nil, nil, NewInvalidInputError(fmt.Sprintf("message pack holds %d messages, need 2", pack.Len()))
	}
	intensity := pack.Find(b.cfg.TopicRGB)
	if intensity == nil {
		return nil, nil, NewInvalidInputError(fmt.Sprintf("image message not found on topic %q", b.cfg.TopicRGB))
	}
	depth := pack.Find(b.cfg.TopicDepth)
	if depth == nil {
		return nil, nil, NewInvalidInputError(fmt.Sprintf("image message not found on topic %q", b.cfg.TopicDepth))
	}
	if rimage.IsEmptyImage(intensity.Image) {
		return nil, nil, NewInvalidInputError("intensity image is nil or has zero rows or columns")
	}
	if rimage.IsEmptyImage(depth.Image) {
		return nil, nil, NewInvalidInputError("depth image is nil or has zero rows or columns")
	}
	return intensity, depth, nil
}

// Compute extracts features from the intensity image and keeps those with a strictly
// positive depth, in their original order. Unchanged input returns the previous result
// without recomputation. The returned cloud belongs to the caller.
func (b *Builder) Compute(ctx context.Context) (Cloud3D, error) {
	ctx, span := trace.StartSpan(ctx, "features::Builder::Compute")
	defer span.End()

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.intensity == nil || b.depth == nil {
		b.state = StateError
		return nil, NewInvalidInputError("input not set")
	}
	if !b.changed && b.hasOutput {
		b.state = StateReady
		return b.output.Clone(), nil
	}

	defer b.collector.Begin("features.builder.compute")()
	out, err := b.fuse(ctx)
	if err != nil {
		b.state = StateError
		return nil, err
	}
	b.output = out
	b.hasOutput = true
	b.changed = false
	b.state = StateReady
	return out.Clone(), nil
}

func (b *Builder) fuse(ctx context.Context) (Cloud3D, error) {
	// resolve the depth encoding before spending time on extraction
	sample, err := newDepthSampler(b.depth.Image)
	if err != nil {
		return nil, err
	}

	candidates, err := b.extractor.Extract(ctx, rimage.MakeGray(b.intensity.Image))
	if err != nil {
		return nil, errors.Wrap(err, "feature extraction failed")
	}
	numCandidates := len(candidates)
	b.collector.Value("features.builder.candidates", float64(numCandidates))
	if numCandidates == 0 {
		b.logger.Warnw("no features found", "topic", b.intensity.Topic, "seq", b.intensity.Seq)
		return Cloud3D{}, nil
	}

	scale := b.cfg.DepthScalingFactorToMeters
	fused := make(Cloud3D, numCandidates)
	kept := 0
	for _, c := range candidates {
		raw, ok := sample(int(math.RoundToEven(c.Pos.X)), int(math.RoundToEven(c.Pos.Y)))
		// NaN fails the comparison too
		if !ok || !(raw > 0) {
			continue
		}
		fused[kept] = Feature3D{
			Pos:  r3.Vector{X: c.Pos.X, Y: c.Pos.Y, Z: scale * raw},
			Desc: c.Desc,
		}
		kept++
	}
	fused = fused[:kept]

	invalid := numCandidates - kept
	invalidRatio := float64(invalid) / float64(numCandidates)
	b.collector.Value("features.builder.features", float64(kept))
	b.collector.Value("features.builder.invalid_depth_ratio", invalidRatio)
	if kept == 0 {
		b.logger.Warnw("no features with valid depth", "candidates", numCandidates, "topic", b.depth.Topic)
	} else if invalidRatio > maxInvalidDepthRatio {
		b.logger.Warnw("high number of features without depth",
			"invalid", invalid, "candidates", numCandidates, "ratio", invalidRatio)
	}
	return fused, nil
}

// depthSampler returns the raw depth at column x, row y and whether the pixel exists.
type depthSampler func(x, y int) (float64, bool)

func newDepthSampler(img image.Image) (depthSampler, error) {
	switch rimage.DepthEncodingOf(img) {
	case rimage.DepthEncodingUint16:
		switch dm := img.(type) {
		case *rimage.DepthMap:
			return func(x, y int) (float64, bool) {
				if !dm.Contains(x, y) {
					return 0, false
				}
				return float64(dm.GetDepth(x, y)), true
			}, nil
		case *image.Gray16:
			bounds := dm.Bounds()
			return func(x, y int) (float64, bool) {
				p := image.Point{bounds.Min.X + x, bounds.Min.Y + y}
				if !p.In(bounds) {
					return 0, false
				}
				return float64(dm.Gray16At(p.X, p.Y).Y), true
			}, nil
		default:
			return nil, NewUnsupportedFormatError(img)
		}
	case rimage.DepthEncodingFloat32:
		fm, ok := img.(*rimage.FloatDepthMap)
		if !ok {
			return nil, NewUnsupportedFormatError(img)
		}
		return func(x, y int) (float64, bool) {
			if !fm.Contains(x, y) {
				return 0, false
			}
			return float64(fm.GetDepth(x, y)), true
		}, nil
	case rimage.DepthEncodingUnknown:
		return nil, NewUnsupportedFormatError(img)
	default:
		return nil, NewUnsupportedFormatError(img)
	}
}
