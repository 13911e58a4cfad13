package rimage

import (
	"image"
	"image/color"

	"github.com/pkg/errors"

	"go.viam.com/slamfront/utils"
)

// BorderPad selects how pixels outside of an image are synthesized when padding it.
type BorderPad int

const (
	// BorderConstant pads with zeros.
	BorderConstant BorderPad = iota
	// BorderReplicate repeats the closest edge pixel: aaa|abcd|ddd.
	BorderReplicate
	// BorderReflect mirrors the image including the edge pixel: cba|abcd|dcb.
	BorderReflect
)

// Kernel is a 2D convolution filter.
type Kernel struct {
	Content [][]float64
	Height  int
	Width   int
}

// Size returns the kernel dimensions as (width, height).
func (k *Kernel) Size() image.Point {
	return image.Point{k.Width, k.Height}
}

// At returns the kernel value at column x, row y.
func (k *Kernel) At(x, y int) float64 {
	return k.Content[y][x]
}

// AbSum returns the sum of absolute values of the kernel.
func (k *Kernel) AbSum() float64 {
	var sum float64
	for _, row := range k.Content {
		for _, v := range row {
			if v < 0 {
				sum -= v
			} else {
				sum += v
			}
		}
	}
	return sum
}

// Normalize returns a copy of the kernel scaled so its absolute values sum to one.
func (k *Kernel) Normalize() *Kernel {
	sum := k.AbSum()
	if sum == 0 {
		sum = 1
	}
	content := make([][]float64, k.Height)
	for y := range content {
		content[y] = make([]float64, k.Width)
		for x := range content[y] {
			content[y][x] = k.Content[y][x] / sum
		}
	}
	return &Kernel{Content: content, Height: k.Height, Width: k.Width}
}

// GetGaussian5 returns the 5x5 binomial approximation of a gaussian kernel.
func GetGaussian5() Kernel {
	return Kernel{
		[][]float64{
			{1, 4, 7, 4, 1},
			{4, 16, 26, 16, 4},
			{7, 26, 41, 26, 7},
			{4, 16, 26, 16, 4},
			{1, 4, 7, 4, 1},
		},
		5,
		5,
	}
}

func borderIndex(i, n int, border BorderPad) (int, bool) {
	if i >= 0 && i < n {
		return i, true
	}
	switch border {
	case BorderReplicate:
		if i < 0 {
			return 0, true
		}
		return n - 1, true
	case BorderReflect:
		period := 2 * n
		i %= period
		if i < 0 {
			i += period
		}
		if i >= n {
			i = period - 1 - i
		}
		return i, true
	case BorderConstant:
		return 0, false
	default:
		return 0, false
	}
}

// PaddingGray pads img so that a kernel of size kernelSize anchored at anchor can be applied to
// every original pixel. The padded image has anchor.X columns on the left, anchor.Y rows on top
// and the remainder of the kernel on the right and bottom.
func PaddingGray(img *image.Gray, kernelSize, anchor image.Point, border BorderPad) (*image.Gray, error) {
	if anchor.X < 0 || anchor.Y < 0 || anchor.X >= kernelSize.X || anchor.Y >= kernelSize.Y {
		return nil, errors.Errorf("anchor %v outside of kernel of size %v", anchor, kernelSize)
	}
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	padded := image.NewGray(image.Rect(0, 0, w+kernelSize.X-1, h+kernelSize.Y-1))
	pb := padded.Bounds()
	for y := 0; y < pb.Dy(); y++ {
		sy, okY := borderIndex(y-anchor.Y, h, border)
		for x := 0; x < pb.Dx(); x++ {
			sx, okX := borderIndex(x-anchor.X, w, border)
			if !okX || !okY {
				continue
			}
			padded.SetGray(x, y, img.GrayAt(bounds.Min.X+sx, bounds.Min.Y+sy))
		}
	}
	return padded, nil
}

// ConvolveGray applies a convolution matrix (Kernel) to a grayscale image.
// Example of usage:
//
//	res, err := ConvolveGray(img, kernel, image.Point{1, 1}, BorderReflect)
//
// Note: the anchor represents a point inside the area of the kernel. After every step of the convolution the position
// specified by the anchor point gets updated on the result image.
func ConvolveGray(img *image.Gray, kernel *Kernel, anchor image.Point, border BorderPad) (*image.Gray, error) {
	kernelSize := kernel.Size()
	padded, err := PaddingGray(img, kernelSize, anchor, border)
	if err != nil {
		return nil, err
	}
	originalSize := img.Bounds().Size()
	resultImage := image.NewGray(image.Rect(0, 0, originalSize.X, originalSize.Y))
	utils.ParallelForEachPixel(originalSize, func(x, y int) {
		sum := float64(0)
		for ky := 0; ky < kernelSize.Y; ky++ {
			for kx := 0; kx < kernelSize.X; kx++ {
				pixel := padded.GrayAt(x+kx, y+ky)
				sum += float64(pixel.Y) * kernel.At(kx, ky)
			}
		}
		sum = utils.ClampF64(sum+0.5, 0, 255)
		resultImage.SetGray(x, y, color.Gray{uint8(sum)})
	})
	return resultImage, nil
}
