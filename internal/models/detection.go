package models

import (
	"time"
)

// Box is an axis-aligned face region in pixel coordinates
type Box struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

func (b Box) Empty() bool {
	return b.W <= 0 || b.H <= 0
}

// Clamp restricts the box to a width x height frame
func (b Box) Clamp(width, height int) Box {
	x0, y0 := max(b.X, 0), max(b.Y, 0)
	x1, y1 := min(b.X+b.W, width), min(b.Y+b.H, height)
	if x1 <= x0 || y1 <= y0 {
		return Box{}
	}
	return Box{X: x0, Y: y0, W: x1 - x0, H: y1 - y0}
}

// UnknownKey is the identity key used for faces that matched nobody
const UnknownKey = "Unknown"

// Label is the recognition result attached to a face
type Label struct {
	Display    string `json:"display"`
	IdentityID string `json:"identity_id,omitempty"`
	Department string `json:"department,omitempty"`
	Known      bool   `json:"known"`
}

// UnknownLabel is the label for a face with no gallery match
func UnknownLabel() Label {
	return Label{Display: UnknownKey}
}

// Key returns the identity id or "Unknown"
func (l Label) Key() string {
	if !l.Known || l.IdentityID == "" {
		return UnknownKey
	}
	return l.IdentityID
}

// Detection is a raw face region with its detector landmarks (YuNet layout)
type Detection struct {
	Box       Box
	Score     float32
	Landmarks [10]float32
	Raw       []float32 // Full detector row, needed for alignment
}

// TrackedFace is a face carried between detection cycles
type TrackedFace struct {
	Box   Box   `json:"box"`
	Label Label `json:"label"`
}

// Decision is the outcome of an access evaluation
type Decision string

const (
	DecisionGranted    Decision = "granted"
	DecisionDenied     Decision = "denied"
	DecisionSuppressed Decision = "suppressed"
)

// Reasons attached to decisions
const (
	ReasonRuleMatched    = "rule matched"
	ReasonNoRule         = "department not allowed"
	ReasonUnidentified   = "unidentified"
	ReasonUnboundCamera  = "unbound camera"
	ReasonDirectoryError = "directory lookup failed"
)

// DetectionEvent is an access decision for one sighting. Immutable once created.
type DetectionEvent struct {
	ID            string    `json:"id"`
	Timestamp     time.Time `json:"timestamp"`
	StreamID      string    `json:"stream_id"`
	CameraAddress string    `json:"camera_address"`
	Location      string    `json:"location"`
	RoomID        string    `json:"room_id,omitempty"`
	IdentityID    string    `json:"identity_id,omitempty"`
	DisplayName   string    `json:"display_name"`
	Department    string    `json:"department,omitempty"`
	Decision      Decision  `json:"decision"`
	Reason        string    `json:"reason"`
	Message       string    `json:"message"`
	EvidencePath  string    `json:"evidence_path,omitempty"`
}

// LogEntry is one operator log line
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	StreamID  string    `json:"stream_id,omitempty"`
	Message   string    `json:"message"`
	Decision  Decision  `json:"decision,omitempty"` // Empty for operational entries
}

// OverlayStyle selects how an overlay is drawn
type OverlayStyle int

const (
	StyleTracked  OverlayStyle = iota // green box, white caption inside
	StyleEvidence                     // red box, caption above
)

type Overlay struct {
	Box   Box
	Text  string
	Style OverlayStyle
}

// AnnotatedFrame is a frame plus the overlays to render on it
type AnnotatedFrame struct {
	Frame    *Frame
	Overlays []Overlay
}

// MessagePublisher interface for publishing events
type MessagePublisher interface {
	Publish(subject string, data interface{}) error
}
