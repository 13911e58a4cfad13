package features

import (
	"context"
	"image"

	"github.com/golang/geo/r2"
	"go.opencensus.io/trace"

	"go.viam.com/slamfront/vision/keypoints"
)

// An Extractor detects features and computes their descriptors on an intensity image.
type Extractor interface {
	Extract(ctx context.Context, img *image.Gray) (Cloud2D, error)
}

// ExtractorFunc adapts a function to the Extractor interface.
type ExtractorFunc func(ctx context.Context, img *image.Gray) (Cloud2D, error)

// Extract calls f.
func (f ExtractorFunc) Extract(ctx context.Context, img *image.Gray) (Cloud2D, error) {
	return f(ctx, img)
}

// ORBExtractor extracts ORB keypoints with BRIEF descriptors. The BRIEF sampling pattern is
// drawn once so descriptors of successive frames are comparable.
type ORBExtractor struct {
	cfg         *keypoints.ORBConfig
	samplePairs *keypoints.SamplePairs
}

// NewORBExtractor validates cfg and draws the sampling pattern.
func NewORBExtractor(cfg *keypoints.ORBConfig) (*ORBExtractor, error) {
	if cfg == nil {
		cfg = keypoints.DefaultORBConfig()
	}
	if err := cfg.Validate("orb"); err != nil {
		return nil, err
	}
	return &ORBExtractor{
		cfg:         cfg,
		samplePairs: keypoints.GenerateSamplePairs(cfg.BRIEFConf.Sampling, cfg.BRIEFConf.N, cfg.BRIEFConf.PatchSize),
	}, nil
}

// Extract implements Extractor.
func (e *ORBExtractor) Extract(ctx context.Context, img *image.Gray) (Cloud2D, error) {
	_, span := trace.StartSpan(ctx, "features::ORBExtractor::Extract")
	defer span.End()

	descs, kps, err := keypoints.ComputeORBKeypoints(img, e.samplePairs, e.cfg)
	if err != nil {
		return nil, err
	}
	cloud := make(Cloud2D, len(kps))
	for i, kp := range kps {
		cloud[i] = Feature2D{
			Pos:  r2.Point{X: float64(kp.X), Y: float64(kp.Y)},
			Desc: descs[i],
		}
	}
	return cloud, nil
}
