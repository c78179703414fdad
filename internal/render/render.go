// Package render turns a solved image vector f into a grayscale raster:
// NaN/Inf sanitization, min-max normalization, optional percentile
// threshold plus 3×3 non-maximum suppression, and PGM-P2 (canonical) or
// PNG output.
package render

import (
	"bufio"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Options controls the optional "clean" post-filter (threshold + NMS).
type Options struct {
	Clean      bool
	Percentile float64 // default 98.0 when Clean is set and Percentile == 0
}

// Normalize sanitizes f (NaN→0, +Inf→1, -Inf→0), then maps it to [0,1]
// via min-max normalization. A near-uniform input (max-min < 1e-12)
// normalizes to all zeros, per spec.md §4.5 step 2.
func Normalize(f []float64) []float64 {
	clean := make([]float64, len(f))
	for i, v := range f {
		switch {
		case math.IsNaN(v):
			clean[i] = 0
		case math.IsInf(v, 1):
			clean[i] = 1
		case math.IsInf(v, -1):
			clean[i] = 0
		default:
			clean[i] = v
		}
	}

	fMin, fMax := clean[0], clean[0]
	for _, v := range clean {
		if v < fMin {
			fMin = v
		}
		if v > fMax {
			fMax = v
		}
	}

	delta := fMax - fMin
	out := make([]float64, len(clean))
	if delta < 1e-12 {
		return out // uniformly zero
	}
	for i, v := range clean {
		out[i] = (v - fMin) / delta
	}
	return out
}

// Clean applies the optional threshold + 3×3 non-maximum suppression
// pass to a normalized width×height image, matching
// servidor_numPy.py::salvar_imagem_com_dados's aplicar_limpeza branch.
func Clean(normalized []float64, width, height int, percentile float64) []float64 {
	if percentile == 0 {
		percentile = 98.0
	}

	threshold := percentileOf(normalized, percentile)

	thresholded := make([]float64, len(normalized))
	for i, v := range normalized {
		if v >= threshold {
			thresholded[i] = v
		}
	}

	out := make([]float64, len(thresholded))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			idx := y*width + x
			localMax := thresholded[idx]
			for dy := -1; dy <= 1; dy++ {
				ny := y + dy
				if ny < 0 || ny >= height {
					continue
				}
				for dx := -1; dx <= 1; dx++ {
					nx := x + dx
					if nx < 0 || nx >= width {
						continue
					}
					if v := thresholded[ny*width+nx]; v > localMax {
						localMax = v
					}
				}
			}
			if thresholded[idx] == localMax && thresholded[idx] > 0 {
				out[idx] = thresholded[idx]
			}
		}
	}
	return out
}

// percentileOf computes the p-th percentile (0-100) of values using
// gonum's empirical quantile, which returns a sample value without
// interpolating between neighbors; values must be sorted for
// stat.Quantile and are copied before sorting to avoid mutating the
// caller's slice.
func percentileOf(values []float64, p float64) float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	return stat.Quantile(p/100.0, stat.Empirical, sorted, nil)
}

// ToPixels maps normalized [0,1] values to 8-bit samples:
// p = floor(clamp(v,0,1) * 255).
func ToPixels(normalized []float64) []uint8 {
	out := make([]uint8, len(normalized))
	for i, v := range normalized {
		if v < 0 {
			v = 0
		}
		if v > 1 {
			v = 1
		}
		out[i] = uint8(v * 255)
	}
	return out
}

// WritePGM writes the canonical PGM-P2 text raster: "P2\n<w> <h>\n255\n"
// followed by width-many samples per line, matching
// servidor_pure.py::salvar_pgm exactly.
func WritePGM(w io.Writer, pixels []uint8, width, height int) error {
	bw := bufio.NewWriter(w)

	if _, err := fmt.Fprintf(bw, "P2\n%d %d\n255\n", width, height); err != nil {
		return err
	}

	count := 0
	for _, p := range pixels {
		if _, err := fmt.Fprintf(bw, "%d ", p); err != nil {
			return err
		}
		count++
		if count >= width {
			if _, err := bw.WriteString("\n"); err != nil {
				return err
			}
			count = 0
		}
	}

	return bw.Flush()
}

// WritePNG writes pixels as an 8-bit grayscale PNG via the standard
// library's image/png encoder.
func WritePNG(w io.Writer, pixels []uint8, width, height int) error {
	img := image.NewGray(image.Rect(0, 0, width, height))
	for i, p := range pixels {
		img.SetGray(i%width, i/width, color.Gray{Y: p})
	}
	return png.Encode(w, img)
}
