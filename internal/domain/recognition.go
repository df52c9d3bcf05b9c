package domain

import (
	"math"
	"strconv"
	"strings"
)

// Encoding is the fixed-length feature vector an encoding backend produces for one face.
type Encoding []float64

// KnownFace is one roster photo reduced to its identity and encoding.
// A student with several photos contributes several KnownFace entries.
type KnownFace struct {
	Identity string   `json:"identity"`
	Encoding Encoding `json:"-"`
	Source   string   `json:"source,omitempty"`
}

// BoundingBox is a face area in pixel coordinates, in top/right/bottom/left order.
type BoundingBox struct {
	Top    int `json:"top"`
	Right  int `json:"right"`
	Bottom int `json:"bottom"`
	Left   int `json:"left"`
}

// Width returns the horizontal extent of the box
func (b BoundingBox) Width() int {
	return b.Right - b.Left
}

// Height returns the vertical extent of the box
func (b BoundingBox) Height() int {
	return b.Bottom - b.Top
}

// Scale multiplies every coordinate by factor, rounding to the nearest pixel
func (b BoundingBox) Scale(factor float64) BoundingBox {
	return BoundingBox{
		Top:    int(math.Round(float64(b.Top) * factor)),
		Right:  int(math.Round(float64(b.Right) * factor)),
		Bottom: int(math.Round(float64(b.Bottom) * factor)),
		Left:   int(math.Round(float64(b.Left) * factor)),
	}
}

// String renders the box as "top,right,bottom,left", the position format the backend stores.
func (b BoundingBox) String() string {
	parts := []string{
		strconv.Itoa(b.Top),
		strconv.Itoa(b.Right),
		strconv.Itoa(b.Bottom),
		strconv.Itoa(b.Left),
	}
	return strings.Join(parts, ",")
}

// DetectionResult is one matched face in one frame
type DetectionResult struct {
	Identity   string       `json:"student_id"`
	Confidence float64      `json:"confidence"`
	Box        *BoundingBox `json:"-"`
}

// Position returns the comma-joined box, or nil when the result carries no box
func (r DetectionResult) Position() *string {
	if r.Box == nil {
		return nil
	}
	position := r.Box.String()
	return &position
}
