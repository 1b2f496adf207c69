package viola

import (
	"image"
	"image/draw"
	"io"
	"math"
	"os"

	_ "image/jpeg"
	_ "image/png"
)

// Fixed point luminance weights scaled by 2^16. They sum to exactly
// 65536, so a pure gray pixel converts back to its own value.
const (
	lumR = 13933
	lumG = 46871
	lumB = 4732
)

// Grayscale converts a flat RGBA buffer to luminance bytes. With
// fillRGBA false the result holds one byte per pixel; with fillRGBA
// true it keeps the four channel layout, the luminance replicated over
// R, G and B and the alpha channel carried over.
func Grayscale(pixels []uint8, width, height int, fillRGBA bool) []uint8 {
	size := width * height
	if fillRGBA {
		size *= 4
	}
	gray := make([]uint8, size)

	k := 0
	for i := 0; i < len(pixels); i += 4 {
		lum := uint8((uint32(pixels[i])*lumR + uint32(pixels[i+1])*lumG + uint32(pixels[i+2])*lumB) >> 16)
		gray[k] = lum
		if fillRGBA {
			gray[k+1] = lum
			gray[k+2] = lum
			gray[k+3] = pixels[i+3]
			k += 3
		}
		k++
	}
	return gray
}

// HorizontalConvolve slides an odd length weight vector across each row
// of a four channel float buffer, replicating the nearest edge pixel
// outside the image. The opaque flag forces full alpha on the output.
func HorizontalConvolve(pixels []float64, width, height int, weights []float64, opaque bool) []float64 {
	side := len(weights)
	halfSide := side / 2
	output := make([]float64, width*height*4)
	alphaFac := 0.0
	if opaque {
		alphaFac = 1.0
	}

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			offset := (y*width + x) * 4
			var r, g, b, a float64
			for cx := 0; cx < side; cx++ {
				scx := clamp(x+cx-halfSide, 0, width-1)
				poffset := (y*width + scx) * 4
				wt := weights[cx]
				r += pixels[poffset] * wt
				g += pixels[poffset+1] * wt
				b += pixels[poffset+2] * wt
				a += pixels[poffset+3] * wt
			}
			output[offset] = r
			output[offset+1] = g
			output[offset+2] = b
			output[offset+3] = a + alphaFac*(255-a)
		}
	}
	return output
}

// VerticalConvolve is the column wise counterpart of HorizontalConvolve.
func VerticalConvolve(pixels []float64, width, height int, weights []float64, opaque bool) []float64 {
	side := len(weights)
	halfSide := side / 2
	output := make([]float64, width*height*4)
	alphaFac := 0.0
	if opaque {
		alphaFac = 1.0
	}

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			offset := (y*width + x) * 4
			var r, g, b, a float64
			for cy := 0; cy < side; cy++ {
				scy := clamp(y+cy-halfSide, 0, height-1)
				poffset := (scy*width + x) * 4
				wt := weights[cy]
				r += pixels[poffset] * wt
				g += pixels[poffset+1] * wt
				b += pixels[poffset+2] * wt
				a += pixels[poffset+3] * wt
			}
			output[offset] = r
			output[offset+1] = g
			output[offset+2] = b
			output[offset+3] = a + alphaFac*(255-a)
		}
	}
	return output
}

// SeparableConvolve applies a separable kernel, the vertical vector
// first and the horizontal vector over its result.
func SeparableConvolve(pixels []float64, width, height int, horizWeights, vertWeights []float64, opaque bool) []float64 {
	vertical := VerticalConvolve(pixels, width, height, vertWeights, opaque)
	return HorizontalConvolve(vertical, width, height, horizWeights, opaque)
}

var (
	sobelSignVector  = []float64{-1, 0, 1}
	sobelScaleVector = []float64{1, 2, 1}
)

// Sobel computes the gradient magnitude of the image. The input is
// converted to grayscale, the two gradients come from the separable
// [-1 0 1] x [1 2 1] kernels and sqrt(Gx^2+Gy^2) is written into every
// color channel with full alpha.
func Sobel(pixels []uint8, width, height int) []float64 {
	gray := Grayscale(pixels, width, height, true)
	grayF := make([]float64, len(gray))
	for i, v := range gray {
		grayF[i] = float64(v)
	}

	vertical := SeparableConvolve(grayF, width, height, sobelSignVector, sobelScaleVector, false)
	horizontal := SeparableConvolve(grayF, width, height, sobelScaleVector, sobelSignVector, false)

	output := make([]float64, width*height*4)
	for i := 0; i < len(output); i += 4 {
		p := math.Sqrt(horizontal[i]*horizontal[i] + vertical[i]*vertical[i])
		output[i] = p
		output[i+1] = p
		output[i+2] = p
		output[i+3] = 255
	}
	return output
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// ImgToNRGBA converts any image type to *image.NRGBA with its origin
// moved to (0, 0).
func ImgToNRGBA(img image.Image) *image.NRGBA {
	if src, ok := img.(*image.NRGBA); ok && src.Bounds().Min == (image.Point{}) {
		return src
	}
	b := img.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}

// DecodeImage reads and decodes an image from r into NRGBA form.
func DecodeImage(r io.Reader) (*image.NRGBA, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return nil, err
	}
	return ImgToNRGBA(img), nil
}

// GetImage decodes the image file located at the local file path.
func GetImage(path string) (*image.NRGBA, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return DecodeImage(file)
}

// RgbaBytes returns the flat RGBA buffer of the image, the form the
// detector consumes, together with its dimensions.
func RgbaBytes(img *image.NRGBA) (pixels []uint8, width, height int) {
	b := img.Bounds()
	width, height = b.Dx(), b.Dy()

	if img.Stride == width*4 {
		return img.Pix[:width*height*4], width, height
	}
	pixels = make([]uint8, width*height*4)
	for y := 0; y < height; y++ {
		copy(pixels[y*width*4:(y+1)*width*4], img.Pix[y*img.Stride:])
	}
	return pixels, width, height
}
