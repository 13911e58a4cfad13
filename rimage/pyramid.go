package rimage

import (
	"image"

	"github.com/nfnt/resize"
	"github.com/pkg/errors"
)

// minPyramidSide is the smallest side an octave may have.
const minPyramidSide = 32

// ImagePyramid holds successively downscaled versions of an image and the factor that maps
// each octave's coordinates back to the original.
type ImagePyramid struct {
	Images []*image.Gray
	Scales []int
}

// GetImagePyramid downscales img by factor until either side would drop below minPyramidSide.
// The first octave is the image itself.
func GetImagePyramid(img *image.Gray, factor int) (*ImagePyramid, error) {
	if factor < 2 {
		return nil, errors.Errorf("pyramid downscale factor must be >= 2, got %d", factor)
	}
	size := img.Bounds().Size()
	if size.X < minPyramidSide || size.Y < minPyramidSide {
		return nil, errors.Errorf("image of size %v too small for a pyramid", size)
	}
	pyramid := &ImagePyramid{
		Images: []*image.Gray{MakeGray(img)},
		Scales: []int{1},
	}
	scale := 1
	current := pyramid.Images[0]
	for {
		w, h := current.Bounds().Dx()/factor, current.Bounds().Dy()/factor
		if w < minPyramidSide || h < minPyramidSide {
			break
		}
		scale *= factor
		current = MakeGray(resize.Resize(uint(w), uint(h), current, resize.Bilinear))
		pyramid.Images = append(pyramid.Images, current)
		pyramid.Scales = append(pyramid.Scales, scale)
	}
	return pyramid, nil
}
