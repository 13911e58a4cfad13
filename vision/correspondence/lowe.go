package correspondence

import "math"

// CheckLowesRatio reports whether best is distinctly closer than other: best/other must not
// exceed maxRatio. A missing competitor (+Inf) always passes; a non-positive one never does.
func CheckLowesRatio(best, other, maxRatio float64) bool {
	if math.IsInf(other, 1) {
		return true
	}
	if other <= 0 {
		return false
	}
	return best/other <= maxRatio
}

// CheckLowesRatioAll applies CheckLowesRatio against every competitor; a single close
// competitor fails the test.
func CheckLowesRatioAll(best float64, others []float64, maxRatio float64) bool {
	for _, other := range others {
		if !CheckLowesRatio(best, other, maxRatio) {
			return false
		}
	}
	return true
}
