package viola

import (
	"fmt"
	"math"
)

// DetectionParams controls the scan loop of Detect.
type DetectionParams struct {
	// InitialScale, relative to the cascade base window, is multiplied
	// by ScaleFactor to give the scale of the first block scanned.
	InitialScale float64
	// ScaleFactor grows the block between scan passes. Must be > 1.
	ScaleFactor float64
	// StepSize spaces the scanned positions; the pixel step at a given
	// scale is round(scale * StepSize).
	StepSize float64
	// EdgesDensity in [0, 1] skips windows whose Sobel edge density
	// falls below it. Zero disables the pruning and the Sobel table.
	EdgesDensity float64
	// RegionsOverlap in (0, 1] is the overlap ratio above which two
	// raw detections are merged into one region.
	RegionsOverlap float64
}

// DefaultDetectionParams returns the parameter values the trackers use
// when nothing else is configured.
func DefaultDetectionParams() DetectionParams {
	return DetectionParams{
		InitialScale:   1.0,
		ScaleFactor:    1.25,
		StepSize:       1.5,
		EdgesDensity:   0.2,
		RegionsOverlap: 0.5,
	}
}

// ImageParams wraps the detector input: a flat RGBA buffer of
// Rows x Cols pixels, 4 bytes per pixel. The alpha channel is ignored.
type ImageParams struct {
	Pixels []uint8
	Rows   int
	Cols   int
}

// Detection is one detected region in image pixel coordinates. Total
// counts the raw windows merged into it.
type Detection struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
	Total  int `json:"total"`
}

// Detect scans the image at every position and scale, evaluates the
// cascade over each window and returns the overlapping hits merged
// into averaged regions. A frame with no hits returns an empty slice
// and no error. Detect keeps no state between calls; concurrent calls
// on distinct buffers are safe.
func (c *Cascade) Detect(img ImageParams, params DetectionParams) ([]Detection, error) {
	rects, err := c.RunCascade(img, params)
	if err != nil {
		return nil, err
	}
	return ClusterDetections(rects, params.RegionsOverlap), nil
}

// RunCascade performs the raw scan and returns every window the
// cascade accepted, unmerged, in scan order.
func (c *Cascade) RunCascade(img ImageParams, params DetectionParams) ([]Detection, error) {
	if err := validateParams(img, params); err != nil {
		return nil, err
	}

	// A cascade holding only its base window has no stages and
	// therefore classifies nothing.
	if len(c.data) <= 2 {
		return nil, nil
	}

	width, height := img.Cols, img.Rows
	sat := make([]int64, width*height)
	sqSat := make([]int64, width*height)
	tiltedSat := make([]int64, width*height)

	var sobelSat []int64
	if params.EdgesDensity > 0 {
		sobelSat = make([]int64, width*height)
	}
	ComputeIntegralImage(img.Pixels, width, height, sat, sqSat, tiltedSat, sobelSat)

	var rects []Detection
	scale := params.InitialScale * params.ScaleFactor
	blockWidth := int(scale * float64(c.minWidth))
	blockHeight := int(scale * float64(c.minHeight))

	for blockWidth < width && blockHeight < height {
		step := int(scale*params.StepSize + 0.5)
		if step < 1 {
			step = 1
		}

		for i := 0; i < height-blockHeight; i += step {
			for j := 0; j < width-blockWidth; j += step {
				if sobelSat != nil && triviallyExcluded(sobelSat, params.EdgesDensity, i, j, width, blockWidth, blockHeight) {
					continue
				}
				if c.classifyWindow(sat, sqSat, tiltedSat, i, j, width, blockWidth, blockHeight, scale) {
					rects = append(rects, Detection{
						X:      j,
						Y:      i,
						Width:  blockWidth,
						Height: blockHeight,
						Total:  1,
					})
				}
			}
		}

		scale *= params.ScaleFactor
		blockWidth = int(scale * float64(c.minWidth))
		blockHeight = int(scale * float64(c.minHeight))
	}
	return rects, nil
}

// triviallyExcluded reports whether the window holds too few edges to
// be worth classifying: its Sobel density, normalised to [0, 1] by the
// maximum magnitude, stays below the configured threshold.
func triviallyExcluded(sobelSat []int64, edgesDensity float64, i, j, width, blockWidth, blockHeight int) bool {
	sum := satSum(sobelSat, width, i, j, blockWidth, blockHeight)
	density := float64(sum) / (float64(blockWidth*blockHeight) * 255)
	return density < edgesDensity
}

// classifyWindow evaluates every stage of the cascade over the window
// with top left corner (j, i). Feature sums are normalised by the
// window area and standard deviation; a stage sum falling short of its
// threshold rejects the window immediately.
func (c *Cascade) classifyWindow(sat, sqSat, tiltedSat []int64, i, j, width, blockWidth, blockHeight int, scale float64) bool {
	inverseArea := 1.0 / float64(blockWidth*blockHeight)
	mean := float64(satSum(sat, width, i, j, blockWidth, blockHeight)) * inverseArea
	variance := float64(satSum(sqSat, width, i, j, blockWidth, blockHeight))*inverseArea - mean*mean

	standardDeviation := 1.0
	if variance > 0 {
		standardDeviation = math.Sqrt(variance)
	}

	data := c.data
	for w := 2; w < len(data); {
		var stageSum float64
		stageThreshold := data[w]
		nodeLength := int(data[w+1])
		w += 2

		for ; nodeLength > 0; nodeLength-- {
			var rectsSum float64
			tilted := data[w] != 0
			recLength := int(data[w+1])
			w += 2

			if tilted {
				for ; recLength > 0; recLength-- {
					x := int(float64(j) + data[w]*scale + 0.5)
					y := int(float64(i) + data[w+1]*scale + 0.5)
					rectWidth := int(data[w+2]*scale + 0.5)
					rectHeight := int(data[w+3]*scale + 0.5)
					weight := data[w+4]
					w += 5

					// The rotated corners reach one row above and up to
					// rectHeight columns left of the anchor, so a feature
					// anchored near the window origin lands outside the
					// table; satCell turns those reads into zeros.
					w1 := satCell(tiltedSat, width, x-rectHeight+rectWidth, y+rectWidth+rectHeight-1)
					w2 := satCell(tiltedSat, width, x, y-1)
					w3 := satCell(tiltedSat, width, x-rectHeight, y+rectHeight-1)
					w4 := satCell(tiltedSat, width, x+rectWidth, y+rectWidth-1)
					rectsSum += float64(w1+w2-w3-w4) * weight
				}
			} else {
				for ; recLength > 0; recLength-- {
					x := int(float64(j) + data[w]*scale + 0.5)
					y := int(float64(i) + data[w+1]*scale + 0.5)
					rectWidth := int(data[w+2]*scale + 0.5)
					rectHeight := int(data[w+3]*scale + 0.5)
					weight := data[w+4]
					w += 5

					rectsSum += float64(satSum(sat, width, y, x, rectWidth, rectHeight)) * weight
				}
			}

			nodeThreshold := data[w]
			nodeLeft := data[w+1]
			nodeRight := data[w+2]
			w += 3

			if rectsSum*inverseArea < nodeThreshold*standardDeviation {
				stageSum += nodeLeft
			} else {
				stageSum += nodeRight
			}
		}

		if stageSum < stageThreshold {
			return false
		}
	}
	return true
}

func validateParams(img ImageParams, params DetectionParams) error {
	if img.Cols <= 0 || img.Rows <= 0 {
		return fmt.Errorf("image dimensions must be positive, got %dx%d", img.Cols, img.Rows)
	}
	if len(img.Pixels) != 4*img.Cols*img.Rows {
		return fmt.Errorf("pixel buffer length %d does not match 4*%d*%d", len(img.Pixels), img.Cols, img.Rows)
	}
	if !(params.InitialScale > 0) || math.IsInf(params.InitialScale, 0) {
		return fmt.Errorf("initial scale must be a positive finite number, got %v", params.InitialScale)
	}
	if !(params.ScaleFactor > 1) || math.IsInf(params.ScaleFactor, 0) {
		return fmt.Errorf("scale factor must be greater than 1, got %v", params.ScaleFactor)
	}
	if !(params.StepSize > 0) || math.IsInf(params.StepSize, 0) {
		return fmt.Errorf("step size must be a positive finite number, got %v", params.StepSize)
	}
	if !(params.EdgesDensity >= 0 && params.EdgesDensity <= 1) {
		return fmt.Errorf("edges density must be within [0, 1], got %v", params.EdgesDensity)
	}
	if !(params.RegionsOverlap > 0 && params.RegionsOverlap <= 1) {
		return fmt.Errorf("regions overlap must be within (0, 1], got %v", params.RegionsOverlap)
	}
	return nil
}
