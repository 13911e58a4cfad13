package features

import (
	"context"
	"image"
	"math"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"go.uber.org/zap/zapcore"
	"go.viam.com/test"

	"go.viam.com/slamfront/logging"
	"go.viam.com/slamfront/perf"
	"go.viam.com/slamfront/rimage"
	"go.viam.com/slamfront/vision/keypoints"
)

const (
	testTopicRGB   = "/camera/rgb/image_color"
	testTopicDepth = "/camera/depth/image"
)

// stubExtractor returns a fixed candidate set and counts invocations.
type stubExtractor struct {
	candidates Cloud2D
	err        error
	calls      int
}

func (s *stubExtractor) Extract(ctx context.Context, img *image.Gray) (Cloud2D, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.candidates.Clone(), nil
}

func candidate(x, y float64, tag uint64) Feature2D {
	return Feature2D{Pos: r2.Point{X: x, Y: y}, Desc: keypoints.Descriptor{tag}}
}

func makePack(seq uint64, depth image.Image) *rimage.MessagePack {
	stamp := time.Unix(1700000000, int64(seq))
	return rimage.NewMessagePack(
		&rimage.ImageMessage{Topic: testTopicRGB, Seq: seq, Timestamp: stamp, Image: image.NewGray(image.Rect(0, 0, 640, 480))},
		&rimage.ImageMessage{Topic: testTopicDepth, Seq: seq, Timestamp: stamp, Image: depth},
	)
}

func newTestBuilder(t *testing.T, scale float64, extractor Extractor) (*Builder, logging.Logger) {
	t.Helper()
	logger := logging.NewTestLogger(t)
	cfg := DefaultBuilderConfig()
	cfg.DepthScalingFactorToMeters = scale
	b, err := NewBuilder(cfg, extractor, logger, nil)
	test.That(t, err, test.ShouldBeNil)
	return b, logger
}

func TestBuilderFusesUint16Depth(t *testing.T) {
	depth := rimage.NewEmptyDepthMap(640, 480)
	depth.Set(100, 200, 2500)
	depth.Set(10, 20, 1000)
	// (300, 50) stays at zero

	extractor := &stubExtractor{candidates: Cloud2D{
		candidate(100, 200, 1),
		candidate(300, 50, 2),
		// rounds half to even: (10, 20)
		candidate(10.5, 20.5, 3),
		candidate(400, 400, 4),
	}}
	depth.Set(400, 400, 800)

	b, _ := newTestBuilder(t, 0.001, extractor)
	test.That(t, b.State(), test.ShouldEqual, StateError)
	test.That(t, b.SetInput(makePack(1, depth)), test.ShouldBeNil)
	test.That(t, b.State(), test.ShouldEqual, StateInitializing)

	cloud, err := b.Compute(context.Background())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, b.State(), test.ShouldEqual, StateReady)
	test.That(t, len(cloud), test.ShouldEqual, 3)

	test.That(t, cloud[0].Position().X, test.ShouldEqual, 100.)
	test.That(t, cloud[0].Position().Y, test.ShouldEqual, 200.)
	test.That(t, cloud[0].Position().Z, test.ShouldAlmostEqual, 2.5)
	test.That(t, cloud[0].Descriptor(), test.ShouldResemble, keypoints.Descriptor{1})

	test.That(t, cloud[1].Position().X, test.ShouldEqual, 10.5)
	test.That(t, cloud[1].Position().Z, test.ShouldAlmostEqual, 1.0)
	test.That(t, cloud[1].Descriptor(), test.ShouldResemble, keypoints.Descriptor{3})

	test.That(t, cloud[2].Position().Z, test.ShouldAlmostEqual, 0.8)
	test.That(t, cloud[2].Descriptor(), test.ShouldResemble, keypoints.Descriptor{4})

	for _, f := range cloud {
		test.That(t, f.Position().Z, test.ShouldBeGreaterThan, 0)
	}
}

func TestBuilderPreservesOrder(t *testing.T) {
	depth := rimage.NewEmptyDepthMap(640, 480)
	candidates := make(Cloud2D, 0, 200)
	expected := make([]uint64, 0, 200)
	for i := 0; i < 200; i++ {
		x, y := (i*37)%640, (i*91)%480
		candidates = append(candidates, candidate(float64(x), float64(y), uint64(i)))
		if i%3 != 0 {
			depth.Set(x, y, rimage.Depth(100+i))
			expected = append(expected, uint64(i))
		}
	}
	b, _ := newTestBuilder(t, 0.001, &stubExtractor{candidates: candidates})
	test.That(t, b.SetInput(makePack(1, depth)), test.ShouldBeNil)
	cloud, err := b.Compute(context.Background())
	test.That(t, err, test.ShouldBeNil)

	got := make([]uint64, len(cloud))
	for i, f := range cloud {
		got[i] = f.Descriptor()[0]
		test.That(t, f.Position().Z, test.ShouldBeGreaterThan, 0)
	}
	test.That(t, got, test.ShouldResemble, expected)
}

func TestBuilderIdempotentOnUnchangedInput(t *testing.T) {
	depth := rimage.NewEmptyDepthMap(640, 480)
	depth.Set(5, 5, 1200)
	extractor := &stubExtractor{candidates: Cloud2D{candidate(5, 5, 9)}}
	b, _ := newTestBuilder(t, 0.001, extractor)

	test.That(t, b.SetInput(makePack(7, depth)), test.ShouldBeNil)
	first, err := b.Compute(context.Background())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, extractor.calls, test.ShouldEqual, 1)

	// calling again without new input does no work
	second, err := b.Compute(context.Background())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, extractor.calls, test.ShouldEqual, 1)
	test.That(t, second, test.ShouldResemble, first)

	// callers own what they get back
	first[0].Pos.Z = -1
	third, err := b.Compute(context.Background())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, extractor.calls, test.ShouldEqual, 1)
	test.That(t, third[0].Position().Z, test.ShouldAlmostEqual, 1.2)

	// any new input is fused again, even when it carries the same messages
	test.That(t, b.SetInput(makePack(7, depth)), test.ShouldBeNil)
	fourth, err := b.Compute(context.Background())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, extractor.calls, test.ShouldEqual, 2)
	test.That(t, b.State(), test.ShouldEqual, StateReady)
	test.That(t, fourth, test.ShouldResemble, third)
}

func TestBuilderRecomputesFramesWithoutIdentity(t *testing.T) {
	extractor := &stubExtractor{candidates: Cloud2D{candidate(5, 5, 9)}}
	b, _ := newTestBuilder(t, 0.001, extractor)

	packWithDepth := func(raw rimage.Depth) *rimage.MessagePack {
		depth := rimage.NewEmptyDepthMap(640, 480)
		depth.Set(5, 5, raw)
		return rimage.NewMessagePack(
			&rimage.ImageMessage{Topic: testTopicRGB, Image: image.NewGray(image.Rect(0, 0, 640, 480))},
			&rimage.ImageMessage{Topic: testTopicDepth, Image: depth},
		)
	}

	test.That(t, b.SetInput(packWithDepth(1000)), test.ShouldBeNil)
	first, err := b.Compute(context.Background())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(first), test.ShouldEqual, 1)
	test.That(t, first[0].Position().Z, test.ShouldAlmostEqual, 1.0)

	test.That(t, b.SetInput(packWithDepth(3000)), test.ShouldBeNil)
	second, err := b.Compute(context.Background())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(second), test.ShouldEqual, 1)
	test.That(t, second[0].Position().Z, test.ShouldAlmostEqual, 3.0)
	test.That(t, extractor.calls, test.ShouldEqual, 2)
}

func TestBuilderInvalidInput(t *testing.T) {
	depth := rimage.NewEmptyDepthMap(640, 480)
	good := makePack(1, depth)

	for _, tc := range []struct {
		name string
		pack *rimage.MessagePack
	}{
		{"nil pack", nil},
		{"single message", rimage.NewMessagePack(good.Messages[0])},
		{"missing depth topic", rimage.NewMessagePack(good.Messages[0], &rimage.ImageMessage{Topic: "/imu", Image: depth})},
		{"missing rgb topic", rimage.NewMessagePack(&rimage.ImageMessage{Topic: "/imu", Image: depth}, good.Messages[1])},
		{"nil intensity", rimage.NewMessagePack(&rimage.ImageMessage{Topic: testTopicRGB}, good.Messages[1])},
		{"typed nil depth", rimage.NewMessagePack(good.Messages[0], &rimage.ImageMessage{
			Topic: testTopicDepth, Image: (*rimage.DepthMap)(nil),
		})},
		{"zero rows", rimage.NewMessagePack(good.Messages[0], &rimage.ImageMessage{
			Topic: testTopicDepth, Image: rimage.NewEmptyDepthMap(640, 0),
		})},
		{"zero cols", rimage.NewMessagePack(&rimage.ImageMessage{
			Topic: testTopicRGB, Image: image.NewGray(image.Rect(0, 0, 0, 480)),
		}, good.Messages[1])},
	} {
		t.Run(tc.name, func(t *testing.T) {
			extractor := &stubExtractor{}
			b, _ := newTestBuilder(t, 0.001, extractor)
			// a previously valid input is discarded by a bad one
			test.That(t, b.SetInput(good), test.ShouldBeNil)

			err := b.SetInput(tc.pack)
			test.That(t, errors.Is(err, ErrInvalidInput), test.ShouldBeTrue)
			test.That(t, b.State(), test.ShouldEqual, StateError)

			_, err = b.Compute(context.Background())
			test.That(t, errors.Is(err, ErrInvalidInput), test.ShouldBeTrue)
			test.That(t, extractor.calls, test.ShouldEqual, 0)
		})
	}
}

func TestBuilderComputeWithoutInput(t *testing.T) {
	b, _ := newTestBuilder(t, 0.001, &stubExtractor{})
	_, err := b.Compute(context.Background())
	test.That(t, errors.Is(err, ErrInvalidInput), test.ShouldBeTrue)
	test.That(t, b.State(), test.ShouldEqual, StateError)
}

func TestBuilderUnsupportedDepthFormat(t *testing.T) {
	extractor := &stubExtractor{candidates: Cloud2D{candidate(1, 1, 1)}}
	b, _ := newTestBuilder(t, 0.001, extractor)
	test.That(t, b.SetInput(makePack(1, image.NewRGBA(image.Rect(0, 0, 640, 480)))), test.ShouldBeNil)
	cloud, err := b.Compute(context.Background())
	test.That(t, errors.Is(err, ErrUnsupportedFormat), test.ShouldBeTrue)
	test.That(t, cloud, test.ShouldBeNil)
	test.That(t, b.State(), test.ShouldEqual, StateError)
}

func TestBuilderFloatAndGray16Depth(t *testing.T) {
	floatDepth := rimage.NewEmptyFloatDepthMap(640, 480)
	floatDepth.Set(1, 1, float32(math.NaN()))
	floatDepth.Set(2, 2, -1)
	floatDepth.Set(3, 3, 2.0)
	extractor := &stubExtractor{candidates: Cloud2D{candidate(1, 1, 1), candidate(2, 2, 2), candidate(3, 3, 3)}}

	b, _ := newTestBuilder(t, 1.0, extractor)
	test.That(t, b.SetInput(makePack(1, floatDepth)), test.ShouldBeNil)
	cloud, err := b.Compute(context.Background())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(cloud), test.ShouldEqual, 1)
	test.That(t, cloud[0].Position().Z, test.ShouldEqual, 2.0)
	test.That(t, cloud[0].Descriptor(), test.ShouldResemble, keypoints.Descriptor{3})

	gray16 := image.NewGray16(image.Rect(0, 0, 640, 480))
	gray16.Pix[2*(2*640+2)+1] = 10 // big endian sample at (2, 2): 10
	test.That(t, b.SetInput(makePack(2, gray16)), test.ShouldBeNil)
	cloud, err = b.Compute(context.Background())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(cloud), test.ShouldEqual, 1)
	test.That(t, cloud[0].Position().Z, test.ShouldEqual, 10.0)
}

func TestBuilderOutOfBoundsIsInvalid(t *testing.T) {
	depth := rimage.NewEmptyDepthMap(320, 240)
	depth.Set(10, 10, 500)
	for y := 0; y < 240; y++ {
		for x := 0; x < 320; x++ {
			depth.Set(x, y, 500)
		}
	}
	extractor := &stubExtractor{candidates: Cloud2D{candidate(10, 10, 1), candidate(600, 400, 2)}}
	b, _ := newTestBuilder(t, 0.001, extractor)
	test.That(t, b.SetInput(makePack(1, depth)), test.ShouldBeNil)
	cloud, err := b.Compute(context.Background())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(cloud), test.ShouldEqual, 1)
	test.That(t, cloud[0].Descriptor(), test.ShouldResemble, keypoints.Descriptor{1})
}

func TestBuilderExtractorFailure(t *testing.T) {
	extractor := &stubExtractor{err: errors.New("detector exploded")}
	b, _ := newTestBuilder(t, 0.001, extractor)
	test.That(t, b.SetInput(makePack(1, rimage.NewEmptyDepthMap(640, 480))), test.ShouldBeNil)
	_, err := b.Compute(context.Background())
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "detector exploded")
	test.That(t, b.State(), test.ShouldEqual, StateError)

	// a failed frame is retried when the same input is set again
	extractor.err = nil
	test.That(t, b.SetInput(makePack(1, rimage.NewEmptyDepthMap(640, 480))), test.ShouldBeNil)
	_, err = b.Compute(context.Background())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, extractor.calls, test.ShouldEqual, 2)
}

func TestBuilderWarnings(t *testing.T) {
	run := func(t *testing.T, validOutOfFour int, candidates Cloud2D) (Cloud3D, int, []string) {
		t.Helper()
		logger, logs := logging.NewObservedTestLogger(t)
		depth := rimage.NewEmptyDepthMap(640, 480)
		for i := 0; i < validOutOfFour; i++ {
			depth.Set(i, 0, 1000)
		}
		b, err := NewBuilder(DefaultBuilderConfig(), &stubExtractor{candidates: candidates}, logger, nil)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, b.SetInput(makePack(1, depth)), test.ShouldBeNil)
		cloud, err := b.Compute(context.Background())
		test.That(t, err, test.ShouldBeNil)
		warns := logs.FilterLevelExact(zapcore.WarnLevel).All()
		msgs := make([]string, len(warns))
		for i, w := range warns {
			msgs[i] = w.Message
		}
		return cloud, len(warns), msgs
	}
	four := Cloud2D{candidate(0, 0, 0), candidate(1, 0, 1), candidate(2, 0, 2), candidate(3, 0, 3)}

	t.Run("quarter invalid is tolerated", func(t *testing.T) {
		cloud, n, _ := run(t, 3, four)
		test.That(t, len(cloud), test.ShouldEqual, 3)
		test.That(t, n, test.ShouldEqual, 0)
	})
	t.Run("more than a quarter invalid", func(t *testing.T) {
		cloud, n, msgs := run(t, 2, four)
		test.That(t, len(cloud), test.ShouldEqual, 2)
		test.That(t, n, test.ShouldEqual, 1)
		test.That(t, msgs[0], test.ShouldEqual, "high number of features without depth")
	})
	t.Run("nothing valid", func(t *testing.T) {
		cloud, n, msgs := run(t, 0, four)
		test.That(t, cloud, test.ShouldBeEmpty)
		test.That(t, n, test.ShouldEqual, 1)
		test.That(t, msgs[0], test.ShouldEqual, "no features with valid depth")
	})
	t.Run("no candidates", func(t *testing.T) {
		cloud, n, msgs := run(t, 4, Cloud2D{})
		test.That(t, cloud, test.ShouldBeEmpty)
		test.That(t, n, test.ShouldEqual, 1)
		test.That(t, msgs[0], test.ShouldEqual, "no features found")
	})
}

func TestBuilderRecordsMetrics(t *testing.T) {
	depth := rimage.NewEmptyDepthMap(640, 480)
	depth.Set(0, 0, 1000)
	recorder := perf.NewRecorder(clock.NewMock())
	b, err := NewBuilder(DefaultBuilderConfig(),
		&stubExtractor{candidates: Cloud2D{candidate(0, 0, 0), candidate(1, 0, 1)}},
		logging.NewTestLogger(t), recorder)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, b.SetInput(makePack(1, depth)), test.ShouldBeNil)
	_, err = b.Compute(context.Background())
	test.That(t, err, test.ShouldBeNil)

	ratio, err := recorder.Summary("features.builder.invalid_depth_ratio")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, ratio.Max, test.ShouldAlmostEqual, 0.5)
	test.That(t, recorder.Names(), test.ShouldContain, "features.builder.compute")
	test.That(t, recorder.Names(), test.ShouldContain, "features.builder.candidates")
}

func TestNewBuilderValidation(t *testing.T) {
	_, err := NewBuilder(DefaultBuilderConfig(), nil, nil, nil)
	test.That(t, err, test.ShouldNotBeNil)

	cfg := DefaultBuilderConfig()
	cfg.DepthScalingFactorToMeters = 0
	_, err = NewBuilder(cfg, &stubExtractor{}, nil, nil)
	test.That(t, err, test.ShouldNotBeNil)

	b, err := NewBuilder(nil, ExtractorFunc(func(ctx context.Context, img *image.Gray) (Cloud2D, error) {
		return Cloud2D{}, nil
	}), nil, nil)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, b.State().String(), test.ShouldEqual, "error")
}
