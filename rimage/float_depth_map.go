package rimage

import (
	"image"
	"image/color"
	"math"
)

// FloatDepthMap is a 32 bit floating point single channel depth raster stored row-major.
// Values are raw sensor readings; NaN and non-positive values mean "no depth".
type FloatDepthMap struct {
	width  int
	height int

	data []float32
}

// NewEmptyFloatDepthMap returns a zero filled float depth map of the given size.
func NewEmptyFloatDepthMap(width, height int) *FloatDepthMap {
	return &FloatDepthMap{
		width:  width,
		height: height,
		data:   make([]float32, width*height),
	}
}

// Width returns the number of columns.
func (fm *FloatDepthMap) Width() int {
	return fm.width
}

// Height returns the number of rows.
func (fm *FloatDepthMap) Height() int {
	return fm.height
}

// Cols is an alias of Width.
func (fm *FloatDepthMap) Cols() int {
	return fm.width
}

// Rows is an alias of Height.
func (fm *FloatDepthMap) Rows() int {
	return fm.height
}

// GetDepth returns the value at column x, row y.
func (fm *FloatDepthMap) GetDepth(x, y int) float32 {
	return fm.data[(y*fm.width)+x]
}

// Set sets the value at column x, row y.
func (fm *FloatDepthMap) Set(x, y int, val float32) {
	fm.data[(y*fm.width)+x] = val
}

// Contains returns whether column x, row y lies inside the map.
func (fm *FloatDepthMap) Contains(x, y int) bool {
	return x >= 0 && y >= 0 && x < fm.width && y < fm.height
}

// ColorModel returns the 16 bit gray model.
func (fm *FloatDepthMap) ColorModel() color.Model {
	return color.Gray16Model
}

// Bounds returns the rectangle the map covers.
func (fm *FloatDepthMap) Bounds() image.Rectangle {
	return image.Rect(0, 0, fm.width, fm.height)
}

// At returns the value rounded and clamped into a 16 bit gray color. It is only meant for
// previews; samplers should use GetDepth.
func (fm *FloatDepthMap) At(x, y int) color.Color {
	if !fm.Contains(x, y) {
		return color.Gray16{}
	}
	v := float64(fm.GetDepth(x, y))
	if math.IsNaN(v) || v <= 0 {
		return color.Gray16{}
	}
	return color.Gray16{Y: uint16(math.Min(math.Round(v), math.MaxUint16))}
}
