package rimage

import (
	"image"
	"image/draw"
)

// SameImgSize compares images to see if they're the same size.
func SameImgSize(g1, g2 image.Image) bool {
	return g1.Bounds().Size() == g2.Bounds().Size()
}

// MakeGray converts any image to an 8 bit gray image anchored at the origin. Gray inputs that
// already start at the origin are returned as is.
func MakeGray(pic image.Image) *image.Gray {
	if gray, ok := pic.(*image.Gray); ok && gray.Bounds().Min == (image.Point{}) {
		return gray
	}
	bounds := pic.Bounds()
	result := image.NewGray(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(result, result.Bounds(), pic, bounds.Min, draw.Src)

	return result
}
