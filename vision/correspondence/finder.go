// Package correspondence finds mutually best, unambiguous descriptor matches between two
// feature sets.
package correspondence

import (
	"context"
	"math"

	"github.com/pkg/errors"
	"go.opencensus.io/trace"

	"go.viam.com/slamfront/logging"
	"go.viam.com/slamfront/perf"
	"go.viam.com/slamfront/utils"
	"go.viam.com/slamfront/vision/features"
	"go.viam.com/slamfront/vision/keypoints"
)

// Described is anything carrying a descriptor of type D.
type Described[D any] interface {
	Descriptor() D
}

// Correspondence pairs a fixed feature with a moving feature by index.
type Correspondence struct {
	FixedIdx  int
	MovingIdx int
	Distance  float64
}

// Result is the outcome of a correspondence search.
type Result struct {
	// Correspondences are ordered by ascending FixedIdx.
	Correspondences []Correspondence
	// MatchingRatio is the number of correspondences over the size of the smaller input.
	MatchingRatio float64
	// Degraded is set when MatchingRatio is below the configured minimum.
	Degraded bool
}

// Len returns the number of correspondences.
func (r *Result) Len() int {
	if r == nil {
		return 0
	}
	return len(r.Correspondences)
}

// DescriptorMatches converts the correspondences for keypoint plotting.
func (r *Result) DescriptorMatches() []keypoints.DescriptorMatch {
	if r == nil {
		return nil
	}
	matches := make([]keypoints.DescriptorMatch, len(r.Correspondences))
	for i, c := range r.Correspondences {
		matches[i] = keypoints.DescriptorMatch{Idx1: c.FixedIdx, Idx2: c.MovingIdx}
	}
	return matches
}

// Finder matches a fixed set of features of type F against a moving set of features of type
// M sharing the descriptor type D. Every pair is compared; a pair is accepted when its
// distance is within range, both features are each other's best candidate, the ratio test
// passes and neither index was already claimed.
type Finder[D any, F Described[D], M Described[D]] struct {
	cfg       Config
	distance  DistanceFunc[D]
	logger    logging.Logger
	collector perf.Collector
}

type (
	// Finder2D2D matches 2D features against 2D features.
	Finder2D2D = Finder[keypoints.Descriptor, features.Feature2D, features.Feature2D]
	// Finder2D3D matches 2D features against depth fused features.
	Finder2D3D = Finder[keypoints.Descriptor, features.Feature2D, features.Feature3D]
	// Finder3D3D matches depth fused features against depth fused features.
	Finder3D3D = Finder[keypoints.Descriptor, features.Feature3D, features.Feature3D]
	// Finder4D3D matches 4D measurements against depth fused features.
	Finder4D3D = Finder[keypoints.Descriptor, features.Feature4D, features.Feature3D]
)

// NewFinder validates cfg and returns a Finder using distance. A nil logger or collector
// discards output.
func NewFinder[D any, F Described[D], M Described[D]](
	cfg *Config,
	distance DistanceFunc[D],
	logger logging.Logger,
	collector perf.Collector,
) (*Finder[D, F, M], error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate("correspondence_finder"); err != nil {
		return nil, err
	}
	if distance == nil {
		return nil, errors.New("correspondence finder requires a distance function")
	}
	if logger == nil {
		logger = logging.NewBlankLogger("correspondence")
	}
	if collector == nil {
		collector = perf.Noop()
	}
	return &Finder[D, F, M]{cfg: *cfg, distance: distance, logger: logger, collector: collector}, nil
}

// NewFinder2D2D returns a Hamming distance Finder for 2D features.
func NewFinder2D2D(cfg *Config, logger logging.Logger, collector perf.Collector) (*Finder2D2D, error) {
	return NewFinder[keypoints.Descriptor, features.Feature2D, features.Feature2D](cfg, HammingDistance, logger, collector)
}

// NewFinder2D3D returns a Hamming distance Finder from 2D to depth fused features.
func NewFinder2D3D(cfg *Config, logger logging.Logger, collector perf.Collector) (*Finder2D3D, error) {
	return NewFinder[keypoints.Descriptor, features.Feature2D, features.Feature3D](cfg, HammingDistance, logger, collector)
}

// NewFinder3D3D returns a Hamming distance Finder for depth fused features.
func NewFinder3D3D(cfg *Config, logger logging.Logger, collector perf.Collector) (*Finder3D3D, error) {
	return NewFinder[keypoints.Descriptor, features.Feature3D, features.Feature3D](cfg, HammingDistance, logger, collector)
}

// NewFinder4D3D returns a Hamming distance Finder from 4D to depth fused features.
func NewFinder4D3D(cfg *Config, logger logging.Logger, collector perf.Collector) (*Finder4D3D, error) {
	return NewFinder[keypoints.Descriptor, features.Feature4D, features.Feature3D](cfg, HammingDistance, logger, collector)
}

// Config returns a copy of the thresholds in use.
func (f *Finder[D, F, M]) Config() Config {
	return f.cfg
}

// bestRecord tracks the two smallest distances seen for one feature and who achieved the smallest.
type bestRecord struct {
	best   float64
	second float64
	idx    int
}

func newBestRecords(n int) []bestRecord {
	records := make([]bestRecord, n)
	for i := range records {
		records[i] = bestRecord{best: math.Inf(1), second: math.Inf(1), idx: -1}
	}
	return records
}

// update only replaces the best on a strictly smaller distance so the lowest index wins ties.
func (r *bestRecord) update(d float64, idx int) {
	if d < r.best {
		r.second = r.best
		r.best = d
		r.idx = idx
	} else if d < r.second {
		r.second = d
	}
}

// merge folds in a record built from strictly later indices.
func (r *bestRecord) merge(later bestRecord) {
	if later.best < r.best {
		r.second = math.Min(r.best, later.second)
		r.best = later.best
		r.idx = later.idx
	} else {
		r.second = math.Min(r.second, later.best)
	}
}

// Compute searches correspondences between fixed and moving. Empty inputs give an empty result.
func (f *Finder[D, F, M]) Compute(ctx context.Context, fixed []F, moving []M) (*Result, error) {
	ctx, span := trace.StartSpan(ctx, "correspondence::Finder::Compute")
	defer span.End()
	defer f.collector.Begin("correspondence.compute")()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(fixed) == 0 || len(moving) == 0 {
		f.logger.Debugw("nothing to match", "fixed", len(fixed), "moving", len(moving))
		return &Result{Correspondences: []Correspondence{}}, nil
	}

	bestForFixed := newBestRecords(len(fixed))
	var bestForMoving []bestRecord
	if f.cfg.Parallel {
		var err error
		bestForMoving, err = f.distancesParallel(ctx, fixed, moving, bestForFixed)
		if err != nil {
			return nil, err
		}
	} else {
		bestForMoving = newBestRecords(len(moving))
		f.distanceRows(fixed, moving, 0, len(fixed), bestForFixed, bestForMoving)
	}

	correspondences := f.accept(bestForFixed, bestForMoving)

	ratio := float64(len(correspondences)) / float64(utils.MinInt(len(fixed), len(moving)))
	result := &Result{
		Correspondences: correspondences,
		MatchingRatio:   ratio,
		Degraded:        ratio < f.cfg.MinimumMatchingRatio,
	}
	f.collector.Value("correspondence.matches", float64(len(correspondences)))
	f.collector.Value("correspondence.matching_ratio", ratio)
	if result.Degraded {
		f.logger.Warnw("low matching ratio",
			"matches", len(correspondences),
			"fixed", len(fixed),
			"moving", len(moving),
			"ratio", ratio,
			"minimum", f.cfg.MinimumMatchingRatio)
	} else {
		f.logger.Debugw("matched", "matches", len(correspondences), "ratio", ratio)
	}
	return result, nil
}

// distanceRows compares fixed[from:to] against every moving feature.
func (f *Finder[D, F, M]) distanceRows(fixed []F, moving []M, from, to int, bestForFixed, bestForMoving []bestRecord) {
	for i := from; i < to; i++ {
		descFixed := fixed[i].Descriptor()
		row := &bestForFixed[i]
		for j := range moving {
			d := f.distance(descFixed, moving[j].Descriptor())
			row.update(d, j)
			bestForMoving[j].update(d, i)
		}
	}
}

// distancesParallel splits the fixed features into contiguous groups. Each group owns its
// rows of bestForFixed and a private set of moving records, merged in group order afterwards.
// A failed group discards everything.
func (f *Finder[D, F, M]) distancesParallel(ctx context.Context, fixed []F, moving []M, bestForFixed []bestRecord) ([]bestRecord, error) {
	var groupRecords [][]bestRecord
	err := utils.GroupWorkParallel(
		ctx,
		len(fixed),
		func(numGroups int) {
			groupRecords = make([][]bestRecord, numGroups)
		},
		func(groupNum, groupSize, from, to int) (utils.MemberWorkFunc, utils.GroupWorkDoneFunc) {
			records := newBestRecords(len(moving))
			groupRecords[groupNum] = records
			return func(memberNum, workNum int) {
				f.distanceRows(fixed, moving, workNum, workNum+1, bestForFixed, records)
			}, nil
		},
	)
	if err != nil {
		return nil, err
	}
	bestForMoving := groupRecords[0]
	for _, records := range groupRecords[1:] {
		for j := range bestForMoving {
			bestForMoving[j].merge(records[j])
		}
	}
	return bestForMoving, nil
}

// accept runs the serial acceptance pass in ascending fixed index.
func (f *Finder[D, F, M]) accept(bestForFixed, bestForMoving []bestRecord) []Correspondence {
	registeredFixed := make(map[int]struct{})
	registeredMoving := make(map[int]struct{})
	correspondences := make([]Correspondence, 0, utils.MinInt(len(bestForFixed), len(bestForMoving)))
	competitors := make([]float64, 0, 2)
	for i, row := range bestForFixed {
		j := row.idx
		if j < 0 {
			continue
		}
		d := row.best
		if d > f.cfg.MaximumDescriptorDistance {
			continue
		}
		column := bestForMoving[j]
		if column.idx != i {
			continue
		}

		competitors = competitors[:0]
		switch f.cfg.RatioTest {
		case RatioTestFixed:
			competitors = append(competitors, row.second)
		case RatioTestMoving:
			competitors = append(competitors, column.second)
		case RatioTestBoth:
			competitors = append(competitors, row.second, column.second)
		}
		if !CheckLowesRatioAll(d, competitors, f.cfg.MaximumDistanceRatioToSecondBest) {
			continue
		}

		if _, ok := registeredFixed[i]; ok {
			continue
		}
		if _, ok := registeredMoving[j]; ok {
			continue
		}
		registeredFixed[i] = struct{}{}
		registeredMoving[j] = struct{}{}
		correspondences = append(correspondences, Correspondence{FixedIdx: i, MovingIdx: j, Distance: d})
	}
	return correspondences
}
