package features

import (
	"context"
	"image"
	"image/color"
	"image/draw"
	"testing"

	"go.viam.com/test"

	"go.viam.com/slamfront/logging"
	"go.viam.com/slamfront/rimage"
	"go.viam.com/slamfront/vision/keypoints"
)

func createBlocksImage() *image.Gray {
	img := image.NewGray(image.Rect(0, 0, 640, 480))
	white := &image.Uniform{color.Gray{230}}
	for _, r := range []image.Rectangle{
		image.Rect(100, 100, 180, 170),
		image.Rect(300, 120, 420, 200),
		image.Rect(150, 280, 260, 380),
		image.Rect(400, 300, 520, 360),
	} {
		draw.Draw(img, r, white, image.Point{}, draw.Src)
	}
	return img
}

func TestORBExtractor(t *testing.T) {
	extractor, err := NewORBExtractor(nil)
	test.That(t, err, test.ShouldBeNil)

	img := createBlocksImage()
	cloud, err := extractor.Extract(context.Background(), img)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(cloud), test.ShouldBeGreaterThan, 0)
	for _, f := range cloud {
		test.That(t, f.Position().X, test.ShouldBeBetween, 0., 640.)
		test.That(t, f.Position().Y, test.ShouldBeBetween, 0., 480.)
		test.That(t, len(f.Descriptor()), test.ShouldEqual, 4)
	}

	again, err := extractor.Extract(context.Background(), img)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, again, test.ShouldResemble, cloud)

	bad := keypoints.DefaultORBConfig()
	bad.Layers = 0
	_, err = NewORBExtractor(bad)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestBuilderWithORBExtractor(t *testing.T) {
	extractor, err := NewORBExtractor(keypoints.DefaultORBConfig())
	test.That(t, err, test.ShouldBeNil)
	b, err := NewBuilder(DefaultBuilderConfig(), extractor, logging.NewTestLogger(t), nil)
	test.That(t, err, test.ShouldBeNil)

	// depth only on the left half of the image
	depth := rimage.NewEmptyDepthMap(640, 480)
	for y := 0; y < 480; y++ {
		for x := 0; x < 320; x++ {
			depth.Set(x, y, 1500)
		}
	}
	pack := rimage.NewMessagePack(
		&rimage.ImageMessage{Topic: testTopicRGB, Seq: 1, Image: createBlocksImage()},
		&rimage.ImageMessage{Topic: testTopicDepth, Seq: 1, Image: depth},
	)
	test.That(t, b.SetInput(pack), test.ShouldBeNil)
	cloud, err := b.Compute(context.Background())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(cloud), test.ShouldBeGreaterThan, 0)
	for _, f := range cloud {
		test.That(t, f.Position().X, test.ShouldBeLessThan, 320.5)
		test.That(t, f.Position().Z, test.ShouldAlmostEqual, 1.5)
	}
}
