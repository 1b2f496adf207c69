package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"log"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/disintegration/imaging"
	viola "github.com/esimov/viola/core"
	"github.com/esimov/viola/utils"
	"github.com/fogleman/gg"
	"golang.org/x/term"
)

const banner = `
┬  ┬┬┌─┐┬  ┌─┐
└┐┌┘││ ││  ├─┤
 └┘ ┴└─┘┴─┘┴ ┴

Go Viola-Jones object detection library.
    Version: %s

`

// pipeName is the file name that indicates stdin/stdout is being used.
const pipeName = "-"

const (
	// markerRectangle - use rectangle as detection marker
	markerRectangle string = "rect"
	// markerCircle - use circle as detection marker
	markerCircle string = "circle"
	// markerEllipse - use ellipse as detection marker
	markerEllipse string = "ellipse"

	// message colors
	successColor = "\x1b[92m"
	errorColor   = "\x1b[31m"
	defaultColor = "\x1b[0m"
)

// Version indicates the current build version.
var Version string

// detector holds the command line detection settings.
type detector struct {
	source      string
	destination string
	cascadeFile string
	params      viola.DetectionParams

	dc *gg.Context
}

func main() {
	var (
		// Flags
		source         = flag.String("in", pipeName, "Source image")
		destination    = flag.String("out", pipeName, "Destination image")
		cascadeFile    = flag.String("cf", "", "Cascade binary file")
		initialScale   = flag.Float64("is", 1.0, "Initial detection window scale")
		scaleFactor    = flag.Float64("sf", 1.25, "Scale factor between detection runs")
		stepSize       = flag.Float64("ss", 1.5, "Detection window step size")
		edgesDensity   = flag.Float64("ed", 0.2, "Edge density threshold, 0 disables edge pruning")
		regionsOverlap = flag.Float64("ro", 0.5, "Overlap ratio above which regions are merged")
		marker         = flag.String("marker", "rect", "Detection marker: rect|circle|ellipse")
		jsonf          = flag.String("json", "", "Output the detection rectangles into a json file")
	)

	log.SetFlags(0)
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, fmt.Sprintf(banner, Version))
		flag.PrintDefaults()
	}
	flag.Parse()

	if len(*source) == 0 || len(*cascadeFile) == 0 {
		log.Fatal("Usage: viola -in input.jpg -out out.png -cf cascade/face")
	}

	start := time.Now()

	// Progress indicator
	ind := utils.NewProgressIndicator("Detecting objects...", time.Millisecond*100)
	ind.Start()

	det := &detector{
		source:      *source,
		destination: *destination,
		cascadeFile: *cascadeFile,
		params: viola.DetectionParams{
			InitialScale:   *initialScale,
			ScaleFactor:    *scaleFactor,
			StepSize:       *stepSize,
			EdgesDensity:   *edgesDensity,
			RegionsOverlap: *regionsOverlap,
		},
	}

	var dst io.Writer
	if det.destination != "empty" {
		if det.destination == pipeName {
			if term.IsTerminal(int(os.Stdout.Fd())) {
				log.Fatalln("`-` should be used with a pipe for stdout")
			}
			dst = os.Stdout
		} else {
			fileTypes := []string{".jpg", ".jpeg", ".png"}
			ext := filepath.Ext(det.destination)

			if !inSlice(ext, fileTypes) {
				log.Fatalf("Output file type not supported: %v", ext)
			}

			fn, err := os.OpenFile(det.destination, os.O_CREATE|os.O_WRONLY, 0755)
			if err != nil {
				log.Fatalf("Unable to open output file: %v", err)
			}
			defer fn.Close()
			dst = fn
		}
	}

	dets, err := det.detectObjects()
	if err != nil {
		ind.StopMsg = fmt.Sprintf("Detecting objects... %s failed ✗%s\n", errorColor, defaultColor)
		ind.Stop()
		log.Fatalf("Detection error: %s%v%s", errorColor, err, defaultColor)
	}

	det.drawMarkers(dets, *marker)

	if det.destination != "empty" {
		if err := det.encodeImage(dst); err != nil {
			log.Fatalf("Error encoding the output image: %v", err)
		}
	}

	var out io.Writer
	if *jsonf != "" {
		if *jsonf == pipeName {
			out = os.Stdout
		} else {
			f, err := os.Create(*jsonf)
			if err != nil {
				ind.StopMsg = fmt.Sprintf("Detecting objects... %s failed ✗%s\n", errorColor, defaultColor)
				ind.Stop()
				log.Fatalf("%sCould not create the json file: %v%s", errorColor, err, defaultColor)
			}
			defer f.Close()
			out = f
		}
	}
	ind.StopMsg = fmt.Sprintf("Detecting objects... %sfinished ✔%s", successColor, defaultColor)
	ind.Stop()

	if len(dets) > 0 {
		log.Printf("\n%s%d%s object(s) detected", successColor, len(dets), defaultColor)

		if out != nil {
			if out == os.Stdout {
				log.Printf("\n%sThe detection rectangles of the found objects:%s", successColor, defaultColor)
			}
			if err := json.NewEncoder(out).Encode(dets); err != nil {
				log.Fatalf("Error encoding the json file: %s", err)
			}
		}
	} else {
		log.Printf("\n%sno detected objects!%s", errorColor, defaultColor)
	}

	log.Printf("\nExecution time: %s%.2fs%s\n", successColor, time.Since(start).Seconds(), defaultColor)
}

// detectObjects runs the detector over the source image.
func (det *detector) detectObjects() ([]viola.Detection, error) {
	var srcFile io.Reader
	if det.source == pipeName {
		if term.IsTerminal(int(os.Stdin.Fd())) {
			log.Fatalln("`-` should be used with a pipe for stdin")
		}
		srcFile = os.Stdin
	} else {
		file, err := os.Open(det.source)
		if err != nil {
			return nil, err
		}
		defer file.Close()
		srcFile = file
	}

	img, err := imaging.Decode(srcFile, imaging.AutoOrientation(true))
	if err != nil {
		return nil, err
	}

	src := viola.ImgToNRGBA(img)
	pixels, cols, rows := viola.RgbaBytes(src)

	det.dc = gg.NewContext(cols, rows)
	det.dc.DrawImage(src, 0, 0)

	packet, err := os.ReadFile(det.cascadeFile)
	if err != nil {
		return nil, err
	}

	// Unpack the binary cascade file. This returns the base window
	// size, the stage thresholds and the Haar feature rectangles.
	cascade, err := viola.UnpackCascade(packet)
	if err != nil {
		return nil, err
	}

	return cascade.Detect(viola.ImageParams{
		Pixels: pixels,
		Rows:   rows,
		Cols:   cols,
	}, det.params)
}

// drawMarkers marks the detected regions with the requested marker type.
func (det *detector) drawMarkers(dets []viola.Detection, marker string) {
	for _, d := range dets {
		switch marker {
		case markerRectangle:
			det.dc.DrawRectangle(
				float64(d.X),
				float64(d.Y),
				float64(d.Width),
				float64(d.Height),
			)
		case markerCircle:
			det.dc.DrawArc(
				float64(d.X+d.Width/2),
				float64(d.Y+d.Height/2),
				float64(d.Width)/2,
				0,
				2*math.Pi,
			)
		case markerEllipse:
			det.dc.DrawEllipse(
				float64(d.X+d.Width/2),
				float64(d.Y+d.Height/2),
				float64(d.Width)/2,
				float64(d.Height)/1.6,
			)
		}
		det.dc.SetLineWidth(2.0)
		det.dc.SetStrokeStyle(gg.NewSolidPattern(color.RGBA{R: 255, G: 0, B: 0, A: 255}))
		det.dc.Stroke()
	}
}

// encodeImage encodes the detection output to the destination writer,
// choosing the codec by the destination file extension.
func (det *detector) encodeImage(dst io.Writer) error {
	img := det.dc.Image()
	switch dst := dst.(type) {
	case *os.File:
		ext := filepath.Ext(dst.Name())
		switch ext {
		case "", ".jpg", ".jpeg":
			return jpeg.Encode(dst, img, &jpeg.Options{Quality: 100})
		case ".png":
			return png.Encode(dst, img)
		default:
			return fmt.Errorf("unsupported image format: %v", ext)
		}
	default:
		return jpeg.Encode(dst, img, &jpeg.Options{Quality: 100})
	}
}

// inSlice checks if the item exists in the slice.
func inSlice(item string, slice []string) bool {
	for _, it := range slice {
		if it == item {
			return true
		}
	}
	return false
}
