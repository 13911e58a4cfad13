package rimage

import (
	"image"
	"image/color"
	"testing"

	"go.viam.com/test"
)

func TestMakeGray(t *testing.T) {
	rgba := image.NewRGBA(image.Rect(0, 0, 8, 6))
	rgba.Set(3, 2, color.RGBA{255, 255, 255, 255})
	gray := MakeGray(rgba)
	test.That(t, gray.Bounds(), test.ShouldResemble, image.Rect(0, 0, 8, 6))
	test.That(t, gray.GrayAt(3, 2).Y, test.ShouldEqual, uint8(255))
	test.That(t, gray.GrayAt(0, 0).Y, test.ShouldEqual, uint8(0))

	same := image.NewGray(image.Rect(0, 0, 4, 4))
	test.That(t, MakeGray(same), test.ShouldEqual, same)

	// sub images are re-anchored at the origin
	sub := gray.SubImage(image.Rect(2, 1, 6, 5)).(*image.Gray)
	anchored := MakeGray(sub)
	test.That(t, anchored.Bounds(), test.ShouldResemble, image.Rect(0, 0, 4, 4))
	test.That(t, anchored.GrayAt(1, 1).Y, test.ShouldEqual, uint8(255))

	test.That(t, SameImgSize(gray, rgba), test.ShouldBeTrue)
	test.That(t, SameImgSize(gray, same), test.ShouldBeFalse)
}

func TestGetImagePyramid(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 200, 140))
	pyramid, err := GetImagePyramid(img, 2)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, pyramid.Scales, test.ShouldResemble, []int{1, 2, 4})
	test.That(t, len(pyramid.Images), test.ShouldEqual, 3)
	test.That(t, pyramid.Images[1].Bounds().Size(), test.ShouldResemble, image.Point{100, 70})
	test.That(t, pyramid.Images[2].Bounds().Size(), test.ShouldResemble, image.Point{50, 35})

	pyramid, err = GetImagePyramid(img, 3)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, pyramid.Scales, test.ShouldResemble, []int{1, 3})
	test.That(t, pyramid.Images[1].Bounds().Size(), test.ShouldResemble, image.Point{66, 46})

	_, err = GetImagePyramid(image.NewGray(image.Rect(0, 0, 20, 100)), 2)
	test.That(t, err, test.ShouldNotBeNil)
	_, err = GetImagePyramid(img, 1)
	test.That(t, err, test.ShouldNotBeNil)
}
