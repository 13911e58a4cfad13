package rimage

import (
	"bufio"
	"compress/gzip"
	"encoding/binary"
	"image"
	"image/color"
	"image/png"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"go.viam.com/utils"
)

// Depth is the raw value of a single unsigned depth sample. The unit depends on the sensor;
// a scale factor converts it to meters.
type Depth uint16

// MaxDepth is the largest representable raw depth.
const MaxDepth = Depth(math.MaxUint16)

// maxDepthMapSide bounds the width and height accepted when parsing depth files.
const maxDepthMapSide = 100000

// DepthMap is a 16 bit single channel depth raster stored row-major.
type DepthMap struct {
	width  int
	height int

	data []Depth
}

// NewEmptyDepthMap returns a zero filled depth map of the given size.
func NewEmptyDepthMap(width, height int) *DepthMap {
	return &DepthMap{
		width:  width,
		height: height,
		data:   make([]Depth, width*height),
	}
}

// HasData returns whether the map holds any samples.
func (dm *DepthMap) HasData() bool {
	return dm.width > 0 && dm.height > 0 && dm.data != nil
}

// Width returns the number of columns.
func (dm *DepthMap) Width() int {
	return dm.width
}

// Height returns the number of rows.
func (dm *DepthMap) Height() int {
	return dm.height
}

// Cols is an alias of Width.
func (dm *DepthMap) Cols() int {
	return dm.width
}

// Rows is an alias of Height.
func (dm *DepthMap) Rows() int {
	return dm.height
}

func (dm *DepthMap) kxy(x, y int) int {
	return (y * dm.width) + x
}

// Get returns the depth at the given point.
func (dm *DepthMap) Get(p image.Point) Depth {
	return dm.data[dm.kxy(p.X, p.Y)]
}

// GetDepth returns the depth at column x, row y.
func (dm *DepthMap) GetDepth(x, y int) Depth {
	return dm.data[dm.kxy(x, y)]
}

// Set sets the depth at column x, row y.
func (dm *DepthMap) Set(x, y int, val Depth) {
	dm.data[dm.kxy(x, y)] = val
}

// Contains returns whether column x, row y lies inside the map.
func (dm *DepthMap) Contains(x, y int) bool {
	return x >= 0 && y >= 0 && x < dm.width && y < dm.height
}

// ColorModel returns the 16 bit gray model so depth maps can travel as images.
func (dm *DepthMap) ColorModel() color.Model {
	return color.Gray16Model
}

// Bounds returns the rectangle the map covers.
func (dm *DepthMap) Bounds() image.Rectangle {
	return image.Rect(0, 0, dm.width, dm.height)
}

// At returns the depth as a 16 bit gray color.
func (dm *DepthMap) At(x, y int) color.Color {
	if !dm.Contains(x, y) {
		return color.Gray16{}
	}
	return color.Gray16{Y: uint16(dm.GetDepth(x, y))}
}

// ConvertImageToDepthMap takes a 16 bit gray image and returns a depth map sharing no memory
// with it.
func ConvertImageToDepthMap(img *image.Gray16) *DepthMap {
	bounds := img.Bounds()
	dm := NewEmptyDepthMap(bounds.Dx(), bounds.Dy())
	for y := 0; y < dm.height; y++ {
		for x := 0; x < dm.width; x++ {
			dm.Set(x, y, Depth(img.Gray16At(bounds.Min.X+x, bounds.Min.Y+y).Y))
		}
	}
	return dm
}

func readNext(r io.Reader) (int64, error) {
	data := make([]byte, 8)
	x, err := io.ReadFull(r, data)
	if x == 8 {
		return int64(binary.LittleEndian.Uint64(data)), nil
	}

	return 0, errors.Wrapf(err, "got %d bytes", x)
}

// ParseDepthMap reads a depth map from a file. Files ending in .gz are decompressed, files
// ending in .png are decoded as 16 bit PNGs and everything else uses the raw binary format.
func ParseDepthMap(fn string) (*DepthMap, error) {
	//nolint:gosec
	f, err := os.Open(fn)
	if err != nil {
		return nil, err
	}
	defer utils.UncheckedErrorFunc(f.Close)

	if filepath.Ext(fn) == ".png" {
		return ReadDepthPNG(f)
	}

	var r io.Reader = f
	if filepath.Ext(fn) == ".gz" {
		gzr, err := gzip.NewReader(f)
		if err != nil {
			return nil, err
		}
		defer utils.UncheckedErrorFunc(gzr.Close)
		r = gzr
	}

	return ReadDepthMap(bufio.NewReader(r))
}

// ReadDepthPNG decodes a 16 bit gray PNG into a depth map.
func ReadDepthPNG(r io.Reader) (*DepthMap, error) {
	img, err := png.Decode(r)
	if err != nil {
		return nil, err
	}
	gray16, ok := img.(*image.Gray16)
	if !ok {
		return nil, errors.Errorf("depth png must be 16 bit gray, got %T", img)
	}
	return ConvertImageToDepthMap(gray16), nil
}

// ReadDepthMap reads the raw binary format: little endian int64 width, int64 height and then
// width*height int64 samples in column-major order.
func ReadDepthMap(r io.Reader) (*DepthMap, error) {
	rawWidth, err := readNext(r)
	if err != nil {
		return nil, err
	}
	rawHeight, err := readNext(r)
	if err != nil {
		return nil, err
	}
	width, height := int(rawWidth), int(rawHeight)
	if width <= 0 || width >= maxDepthMapSide || height <= 0 || height >= maxDepthMapSide {
		return nil, errors.Errorf("bad width or height for depth map %v %v", width, height)
	}

	dm := NewEmptyDepthMap(width, height)
	for x := 0; x < width; x++ {
		for y := 0; y < height; y++ {
			temp, err := readNext(r)
			if err != nil {
				return nil, err
			}
			if temp < 0 || temp > int64(MaxDepth) {
				return nil, errors.Errorf("depth %d at (%d, %d) out of range", temp, x, y)
			}
			dm.Set(x, y, Depth(temp))
		}
	}

	return dm, nil
}

// WriteDepthMap writes the raw binary format read by ReadDepthMap.
func WriteDepthMap(w io.Writer, dm *DepthMap) error {
	buf := make([]byte, 8)
	writeNext := func(v int64) error {
		binary.LittleEndian.PutUint64(buf, uint64(v))
		_, err := w.Write(buf)
		return err
	}
	if err := writeNext(int64(dm.width)); err != nil {
		return err
	}
	if err := writeNext(int64(dm.height)); err != nil {
		return err
	}
	for x := 0; x < dm.width; x++ {
		for y := 0; y < dm.height; y++ {
			if err := writeNext(int64(dm.GetDepth(x, y))); err != nil {
				return err
			}
		}
	}
	return nil
}
