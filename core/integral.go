package viola

// The four summed area tables the detector runs on. Cells are int64:
// the squared table already overflows int32 around 180x180 at 8 bit
// inputs, and widening all of them removes the image size limit
// entirely for any slice addressable image.
//
// Cell (x, y) of the plain table stores the sum of the luminance over
// [0, x] x [0, y]; the rotated table covers the 45 degree region of
// Lienhart's extended Haar features.

// luminance converts one RGBA pixel to its grayscale value, truncated.
func luminance(r, g, b uint8) int64 {
	return int64((uint32(r)*lumR + uint32(g)*lumG + uint32(b)*lumB) >> 16)
}

// ComputeIntegralImage fills any non-nil subset of the plain, squared,
// rotated and Sobel summed area tables in a single pass over the RGBA
// buffer. Each table must be width*height cells. The Sobel table first
// runs the Sobel filter over the input; its magnitudes are clamped to
// [0, 255] so the edge density ratio stays within [0, 1].
func ComputeIntegralImage(pixels []uint8, width, height int, sat, sqSat, tiltedSat, sobelSat []int64) {
	var sobelPixels []float64
	if sobelSat != nil {
		sobelPixels = Sobel(pixels, width, height)
	}

	for i := 0; i < height; i++ {
		for j := 0; j < width; j++ {
			w := i*width*4 + j*4
			pixel := luminance(pixels[w], pixels[w+1], pixels[w+2])

			if sat != nil {
				satValue(sat, width, i, j, pixel)
			}
			if sqSat != nil {
				satValue(sqSat, width, i, j, pixel*pixel)
			}
			if tiltedSat != nil {
				var above int64
				if i > 0 {
					wa := w - width*4
					above = luminance(pixels[wa], pixels[wa+1], pixels[wa+2])
				}
				rsatValue(tiltedSat, width, i, j, pixel, above)
			}
			if sobelSat != nil {
				m := sobelPixels[w]
				if m > 255 {
					m = 255
				}
				satValue(sobelSat, width, i, j, int64(m))
			}
		}
	}
}

// satValue applies the standard recurrence
// S[x,y] = S[x,y-1] + S[x-1,y] - S[x-1,y-1] + p
// with implicit zeros outside the image.
func satValue(sat []int64, width, i, j int, pixel int64) {
	w := i*width + j
	v := pixel
	if i > 0 {
		v += sat[w-width]
	}
	if j > 0 {
		v += sat[w-1]
	}
	if i > 0 && j > 0 {
		v -= sat[w-width-1]
	}
	sat[w] = v
}

// rsatValue applies the rotated recurrence
// R[x,y] = R[x-1,y-1] + R[x+1,y-1] - R[x,y-2] + p + pAbove.
// The three neighbour reads can land outside the image; each one is
// guarded and contributes zero there.
func rsatValue(rsat []int64, width, i, j int, pixel, pixelAbove int64) {
	w := i*width + j
	v := pixel + pixelAbove
	if i > 0 && j > 0 {
		v += rsat[w-width-1]
	}
	if i > 0 && j < width-1 {
		v += rsat[w-width+1]
	}
	if i > 1 {
		v -= rsat[w-2*width]
	}
	rsat[w] = v
}

// satSum returns the sum over the window with top left corner (j, i)
// and size blockWidth x blockHeight using the four corner lookups
// A - B - D + C. The scan blocks are scaled by truncation while the
// feature rectangles are scaled by rounding, so a corner can land one
// cell past the bottom or right table edge; the reads go through
// satCell, which degrades such windows gracefully instead of
// panicking.
func satSum(sat []int64, width, i, j, blockWidth, blockHeight int) int64 {
	return satCell(sat, width, j, i) -
		satCell(sat, width, j+blockWidth, i) -
		satCell(sat, width, j, i+blockHeight) +
		satCell(sat, width, j+blockWidth, i+blockHeight)
}

// satCell reads the table cell at column x, row y. Negative
// coordinates contribute zero; coordinates past the last row or
// column clamp to it, which truncates an overshooting window at the
// image border the way a zero padded table would.
func satCell(sat []int64, width, x, y int) int64 {
	if x < 0 || y < 0 {
		return 0
	}
	height := len(sat) / width
	if x >= width {
		x = width - 1
	}
	if y >= height {
		y = height - 1
	}
	return sat[y*width+x]
}
