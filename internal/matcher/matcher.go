// Package matcher finds the nearest roster encoding for a query encoding.
package matcher

import (
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/saturnino-fabrica-de-software/presenca/internal/domain"
)

// DefaultTolerance is the distance the dlib model family is tuned for
const DefaultTolerance = 0.5

var ErrInvalidTolerance = errors.New("tolerance must be a finite non-negative distance")

// Match is the accepted nearest roster entry for a query
type Match struct {
	Identity   string
	Distance   float64
	Confidence float64
}

// ValidateTolerance reports whether tolerance can be used as a match threshold
func ValidateTolerance(tolerance float64) error {
	if math.IsNaN(tolerance) || math.IsInf(tolerance, 0) || tolerance < 0 {
		return fmt.Errorf("%w: %v", ErrInvalidTolerance, tolerance)
	}
	return nil
}

// Distance is the Euclidean distance between two encodings.
// Encodings of different dimensionality, or with a NaN component, never match.
func Distance(a, b domain.Encoding) float64 {
	if len(a) != len(b) {
		return math.Inf(1)
	}

	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	if math.IsNaN(sum) {
		return math.Inf(1)
	}
	return math.Sqrt(sum)
}

// Confidence maps a distance to max(0, 1-d)
func Confidence(distance float64) float64 {
	return math.Max(0, 1-distance)
}

// Best returns the nearest face and its distance. The lowest index wins ties.
// ok is false for an empty store.
func Best(query domain.Encoding, known []domain.KnownFace) (best domain.KnownFace, distance float64, ok bool) {
	distance = math.Inf(1)
	for _, face := range known {
		d := Distance(query, face.Encoding)
		if !ok || d < distance {
			best, distance, ok = face, d, true
		}
	}
	return best, distance, ok
}

// Find matches query against known. It returns nil when the store is empty or
// the nearest encoding is farther than tolerance.
func Find(logger *slog.Logger, query domain.Encoding, known []domain.KnownFace, tolerance float64) *Match {
	best, distance, ok := Best(query, known)
	if !ok {
		return nil
	}

	if logger != nil {
		logger.Debug("recognizer.match_candidate",
			slog.String("student_id", best.Identity),
			slog.Float64("distance", distance),
			slog.Float64("tolerance", tolerance),
		)
	}

	if distance > tolerance {
		return nil
	}

	return &Match{
		Identity:   best.Identity,
		Distance:   distance,
		Confidence: Confidence(distance),
	}
}
