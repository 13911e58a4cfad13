package rimage

import "image"

// DepthEncoding names how raw depth samples are stored in an image.
type DepthEncoding uint8

const (
	// DepthEncodingUnknown is any image that is not a supported depth raster.
	DepthEncodingUnknown DepthEncoding = iota
	// DepthEncodingUint16 is a scaled unsigned 16 bit integer per pixel (16UC1).
	DepthEncodingUint16
	// DepthEncodingFloat32 is a 32 bit float per pixel (32FC1).
	DepthEncodingFloat32
)

func (e DepthEncoding) String() string {
	switch e {
	case DepthEncodingUint16:
		return "16UC1"
	case DepthEncodingFloat32:
		return "32FC1"
	case DepthEncodingUnknown:
		return "unknown"
	default:
		return "unknown"
	}
}

// DepthEncodingOf reports the encoding of img.
func DepthEncodingOf(img image.Image) DepthEncoding {
	switch img.(type) {
	case *DepthMap, *image.Gray16:
		return DepthEncodingUint16
	case *FloatDepthMap:
		return DepthEncodingFloat32
	default:
		return DepthEncodingUnknown
	}
}
