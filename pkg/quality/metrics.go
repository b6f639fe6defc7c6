package quality

import (
	"math"

	"github.com/menta2k/biometric-photo/pkg/types"
)

// edgeDelta matches the detector's brightness step for an edge
const edgeDelta = 25.0

// Measure samples the face region and reports informational metrics. None of them
// affect the tier.
func Measure(buf *types.PixelBuffer, face types.Rect) types.Metrics {
	face = face.Clamp(buf.Width, buf.Height)
	if face.Width == 0 || face.Height == 0 {
		return types.Metrics{}
	}

	step := max(2, min(face.Width, face.Height)/40)

	var sum, sumSq float64
	var n, edges int
	for y := face.Y; y < face.Y+face.Height; y += step {
		for x := face.X; x < face.X+face.Width; x += step {
			v := buf.Brightness(x, y)
			sum += v
			sumSq += v * v
			n++
			if x+step < face.X+face.Width && math.Abs(v-buf.Brightness(x+step, y)) > edgeDelta {
				edges++
			} else if y+step < face.Y+face.Height && math.Abs(v-buf.Brightness(x, y+step)) > edgeDelta {
				edges++
			}
		}
	}

	mean := sum / float64(n)
	variance := math.Max(0, sumSq/float64(n)-mean*mean)

	return types.Metrics{
		Brightness:         round3(mean / 255),
		Contrast:           round3(math.Min(math.Sqrt(variance)/128, 1)),
		Sharpness:          round3(float64(edges) / float64(n)),
		LightingUniformity: round3(lightingUniformity(buf, face, step)),
	}
}

// lightingUniformity compares mean brightness of the top, middle and bottom thirds of
// the face; 1 means identical bands.
func lightingUniformity(buf *types.PixelBuffer, face types.Rect, step int) float64 {
	third := face.Height / 3
	if third == 0 {
		return 1
	}

	var means [3]float64
	for band := 0; band < 3; band++ {
		var sum float64
		n := 0
		for y := face.Y + band*third; y < face.Y+(band+1)*third; y += step {
			for x := face.X; x < face.X+face.Width; x += step {
				sum += buf.Brightness(x, y)
				n++
			}
		}
		if n > 0 {
			means[band] = sum / float64(n)
		}
	}

	avg := (means[0] + means[1] + means[2]) / 3
	var variance float64
	for _, m := range means {
		variance += (m - avg) * (m - avg)
	}
	variance /= 3

	// a band spread of 64 gray levels or more counts as fully non-uniform
	return math.Max(0, 1-math.Sqrt(variance)/64)
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
