package domain

import "strconv"

// BoundingBox is a lon/lat extent in minx, miny, maxx, maxy order.
type BoundingBox [4]float64

// FullExtent is the fallback extent used when a layer's bounding box
// cannot be determined.
var FullExtent = BoundingBox{-180, -90, 180, 90}

// String renders the box as the comma-separated form used in WMS requests
// and catalog spatial fields.
func (b BoundingBox) String() string {
	s := ""
	for i, v := range b {
		if i > 0 {
			s += ","
		}
		s += strconv.FormatFloat(v, 'f', -1, 64)
	}
	return s
}

// PublishedResource records the outcome of publishing one resource to the
// map server. It exists only in memory, as input to catalog publication.
type PublishedResource struct {
	Workspace    string
	LayerName    string
	DataPath     string
	StylePath    string
	StyleName    string
	BoundingBox  BoundingBox
	IsGeospatial bool
}

// RequestState tags the terminal outcome of one publish request.
type RequestState int

const (
	// StateDone means every resource succeeded; the request object is
	// renamed to the processed suffix.
	StateDone RequestState = iota

	// StatePartial means at least one resource failed; success and failure
	// objects are written as applicable.
	StatePartial

	// StateCorrupted means the request JSON could not be parsed; the object
	// is renamed to the corrupted suffix and never retried.
	StateCorrupted

	// StateSkipped means the request carried no resources; the object is
	// left pending for operator inspection.
	StateSkipped
)

// String returns the state name for logs and metrics labels.
func (s RequestState) String() string {
	switch s {
	case StateDone:
		return "done"
	case StatePartial:
		return "partial"
	case StateCorrupted:
		return "corrupted"
	case StateSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// RequestOutcome is the tagged result of handling one publish request.
// The worker applies storage side effects based solely on the tag, keeping
// decision logic separate from I/O.
type RequestOutcome struct {
	State     RequestState
	Topic     string
	Succeeded []ResourceSpec
	Failed    []FailedResource
}
