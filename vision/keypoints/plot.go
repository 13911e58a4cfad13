package keypoints

import (
	"image"

	"github.com/fogleman/gg"
	"github.com/pkg/errors"
)

// PlotKeypoints plots keypoints on image.
func PlotKeypoints(img *image.Gray, kps []image.Point, outName string) error {
	w, h := img.Bounds().Max.X, img.Bounds().Max.Y

	dc := gg.NewContext(w, h)
	dc.DrawImage(img, 0, 0)

	// draw keypoints on image
	dc.SetRGBA(0, 0, 1, 0.5)
	for _, p := range kps {
		dc.DrawCircle(float64(p.X), float64(p.Y), float64(3.0))
		dc.Fill()
	}
	return dc.SavePNG(outName)
}

// PlotMatchedLines draws im1 and im2 side by side (or stacked when vertical) and a line between
// each pair of matched keypoints.
func PlotMatchedLines(im1, im2 image.Image, kps1, kps2 KeyPoints, vertical bool) (image.Image, error) {
	if len(kps1) != len(kps2) {
		return nil, errors.Errorf("cannot draw %d matches against %d", len(kps1), len(kps2))
	}
	w, h := im1.Bounds().Dx()+im2.Bounds().Dx(), max(im1.Bounds().Dy(), im2.Bounds().Dy())
	offset := image.Point{X: im1.Bounds().Dx()}
	if vertical {
		w, h = max(im1.Bounds().Dx(), im2.Bounds().Dx()), im1.Bounds().Dy()+im2.Bounds().Dy()
		offset = image.Point{Y: im1.Bounds().Dy()}
	}

	dc := gg.NewContext(w, h)
	dc.DrawImage(im1, 0, 0)
	dc.DrawImage(im2, offset.X, offset.Y)

	dc.SetLineWidth(1.25)
	dc.SetRGBA(0, 1, 0, 0.8)
	for i := range kps1 {
		p1 := kps1[i]
		p2 := kps2[i].Add(offset)
		dc.DrawLine(float64(p1.X), float64(p1.Y), float64(p2.X), float64(p2.Y))
		dc.Stroke()
	}
	return dc.Image(), nil
}
