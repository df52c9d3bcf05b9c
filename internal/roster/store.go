package roster

import "github.com/saturnino-fabrica-de-software/presenca/internal/domain"

// Store is an immutable snapshot of the known faces, in load order.
// Reloading builds a new Store instead of mutating this one.
type Store struct {
	faces []domain.KnownFace
}

// NewStore copies faces into a new snapshot
func NewStore(faces []domain.KnownFace) *Store {
	copied := make([]domain.KnownFace, len(faces))
	copy(copied, faces)
	return &Store{faces: copied}
}

// Empty is the store of mock mode
func Empty() *Store {
	return &Store{}
}

// Faces returns the snapshot contents. Callers must not modify the slice.
func (s *Store) Faces() []domain.KnownFace {
	if s == nil {
		return nil
	}
	return s.faces
}

// Len returns the number of known faces
func (s *Store) Len() int {
	if s == nil {
		return 0
	}
	return len(s.faces)
}

// Identities returns each identity once, in order of first appearance
func (s *Store) Identities() []string {
	seen := make(map[string]struct{}, s.Len())
	identities := make([]string, 0, s.Len())
	for _, face := range s.Faces() {
		if _, ok := seen[face.Identity]; ok {
			continue
		}
		seen[face.Identity] = struct{}{}
		identities = append(identities, face.Identity)
	}
	return identities
}
