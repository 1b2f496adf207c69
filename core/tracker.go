package viola

import "errors"

// ObjectTracker runs one or more named cascades over frames handed to
// Track and notifies its listeners with the merged detections of each
// frame. It is the per-frame collaborator around Detect: capture and
// scheduling stay with the caller, the tracker only owns the cascades
// and the detection parameters.
type ObjectTracker struct {
	cascades  []*Cascade
	names     []string
	listeners []func([]Detection)

	// Params applies to every cascade of the tracker. Mutating it
	// between frames is allowed; mid-frame it is not.
	Params DetectionParams
}

// NewObjectTracker resolves the named cascades from the registry and
// returns a tracker over them with the default detection parameters.
func NewObjectTracker(names ...string) (*ObjectTracker, error) {
	if len(names) == 0 {
		return nil, errors.New("object tracker needs at least one cascade name")
	}

	cascades := make([]*Cascade, len(names))
	for i, name := range names {
		c, err := CascadeByName(name)
		if err != nil {
			return nil, err
		}
		cascades[i] = c
	}

	return &ObjectTracker{
		cascades: cascades,
		names:    names,
		Params:   DefaultDetectionParams(),
	}, nil
}

// Names returns the cascade names the tracker was built from.
func (t *ObjectTracker) Names() []string {
	return t.names
}

// OnTrack registers a listener invoked after every Track call with the
// detections of that frame. Listeners run synchronously in
// registration order on the Track caller's goroutine.
func (t *ObjectTracker) OnTrack(fn func([]Detection)) {
	t.listeners = append(t.listeners, fn)
}

// Track runs every cascade over the frame, concatenates their merged
// detections in cascade order, notifies the listeners and returns the
// detections.
func (t *ObjectTracker) Track(pixels []uint8, width, height int) ([]Detection, error) {
	img := ImageParams{
		Pixels: pixels,
		Rows:   height,
		Cols:   width,
	}

	var all []Detection
	for _, c := range t.cascades {
		dets, err := c.Detect(img, t.Params)
		if err != nil {
			return nil, err
		}
		all = append(all, dets...)
	}

	for _, fn := range t.listeners {
		fn(all)
	}
	return all, nil
}
