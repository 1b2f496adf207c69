package viola_test

import (
	"encoding/binary"
	"math"
	"strings"
	"testing"

	viola "github.com/esimov/viola/core"
)

// brightnessCascade accepts a flat window when its mean luminance
// reaches the threshold: a single stage with one full-window rectangle
// node, left value 0 and right value 1 against a stage threshold of
// 0.5. On a flat window the standard deviation is 1, so the node test
// reduces to mean < threshold; on a window with contrast the threshold
// is multiplied by the window's standard deviation.
func brightnessCascade(baseSize int, threshold float64) []float64 {
	return []float64{
		float64(baseSize), float64(baseSize),
		0.5, 1,
		0, 1,
		0, 0, float64(baseSize), float64(baseSize), 1,
		threshold, 0, 1,
	}
}

// rejectAllCascade fails its single stage for every window.
func rejectAllCascade(baseSize int) []float64 {
	return []float64{
		float64(baseSize), float64(baseSize),
		1, 1,
		0, 1,
		0, 0, float64(baseSize), float64(baseSize), 1,
		0, 0, 0,
	}
}

func TestNewCascade_Validation(t *testing.T) {
	cases := []struct {
		desc string
		data []float64
		want string
	}{
		{"nil data", nil, "at least the base window"},
		{"single value", []float64{20}, "at least the base window"},
		{"zero base window", []float64{0, 20}, "invalid cascade base window"},
		{"negative base window", []float64{20, -4}, "invalid cascade base window"},
		{"truncated stage header", []float64{20, 20, 0.5}, "truncated in stage 0 header"},
		{"truncated node header", []float64{20, 20, 0.5, 1, 0}, "truncated in stage 0 node 0"},
		{"truncated node body", []float64{20, 20, 0.5, 1, 0, 2, 0, 0, 4, 4, 1}, "truncated in stage 0 node 0 body"},
		{"fractional node count", []float64{20, 20, 0.5, 1.5}, "must be a non-negative integer"},
		{"negative rectangle count", []float64{20, 20, 0.5, 1, 0, -1, 0, 0, 0}, "must be a non-negative integer"},
		{"bad tilted flag", []float64{20, 20, 0.5, 1, 2, 1, 0, 0, 4, 4, 1, 0, 0, 0}, "tilted flag"},
	}

	for _, c := range cases {
		_, err := viola.NewCascade(c.data)
		if err == nil {
			t.Errorf("%s: expected an error", c.desc)
			continue
		}
		if !strings.Contains(err.Error(), c.want) {
			t.Errorf("%s: error %q does not mention %q", c.desc, err, c.want)
		}
	}
}

func TestNewCascade_ValidLayouts(t *testing.T) {
	for _, data := range [][]float64{
		{24, 24}, // base window only
		brightnessCascade(8, 128),
		rejectAllCascade(8),
	} {
		c, err := viola.NewCascade(data)
		if err != nil {
			t.Fatalf("valid cascade rejected: %v", err)
		}
		w, h := c.MinSize()
		if w != int(data[0]) || h != int(data[1]) {
			t.Fatalf("base window = %dx%d, want %vx%v", w, h, data[0], data[1])
		}
	}
}

func TestUnpackCascade_RoundTrip(t *testing.T) {
	data := brightnessCascade(4, 128)
	packet := make([]byte, len(data)*8)
	for i, v := range data {
		binary.LittleEndian.PutUint64(packet[i*8:], math.Float64bits(v))
	}

	c, err := viola.UnpackCascade(packet)
	if err != nil {
		t.Fatalf("failed unpacking the cascade packet: %v", err)
	}
	if w, h := c.MinSize(); w != 4 || h != 4 {
		t.Fatalf("base window = %dx%d, want 4x4", w, h)
	}
}

func TestUnpackCascade_BadPacket(t *testing.T) {
	if _, err := viola.UnpackCascade(nil); err == nil {
		t.Error("empty packet should be rejected")
	}
	if _, err := viola.UnpackCascade(make([]byte, 21)); err == nil {
		t.Error("packet length not divisible by 8 should be rejected")
	}
}

func TestCascadeRegistry(t *testing.T) {
	c, err := viola.NewCascade(brightnessCascade(4, 128))
	if err != nil {
		t.Fatal(err)
	}
	viola.RegisterCascade("test-bright", c)

	got, err := viola.CascadeByName("test-bright")
	if err != nil {
		t.Fatalf("registered cascade not found: %v", err)
	}
	if got != c {
		t.Fatal("registry returned a different cascade")
	}

	if _, err := viola.CascadeByName("no-such-cascade"); err == nil {
		t.Fatal("unknown cascade name should be an error")
	}
}

func TestDetect_EmptyCascadeDetectsNothing(t *testing.T) {
	c, err := viola.NewCascade([]float64{8, 8})
	if err != nil {
		t.Fatal(err)
	}

	const width, height = 32, 32
	img := viola.ImageParams{
		Pixels: grayFrame(randomGray(width, height, 5)),
		Rows:   height,
		Cols:   width,
	}
	params := viola.DefaultDetectionParams()
	params.EdgesDensity = 0

	dets, err := c.Detect(img, params)
	if err != nil {
		t.Fatal(err)
	}
	if len(dets) != 0 {
		t.Fatalf("a cascade with no stages accepted %d windows", len(dets))
	}
}
