package trustedorigin

import (
	"maps"
	"slices"
	"time"
)

// Source tells where the origins of a snapshot came from.
type Source string

const (
	// SourceFresh snapshots were built from a successful store listing.
	SourceFresh Source = "fresh"
	// SourceStale snapshots keep serving the last fresh origins after a failed refresh.
	SourceStale Source = "stale"
	// SourceEmergency snapshots hold only base and emergency origins after a cold-start failure.
	SourceEmergency Source = "emergency"
)

// Snapshot is an immutable set of trusted origins. Refreshes replace the
// snapshot wholesale, so a reader holding one always sees a complete set.
type Snapshot struct {
	origins     map[string]struct{}
	GeneratedAt time.Time
	// ExtendedAt is the last failed refresh that kept this snapshot alive. Zero for fresh snapshots.
	ExtendedAt time.Time
	Source     Source
}

func newSnapshot(source Source, generatedAt time.Time, groups ...[]string) *Snapshot {
	s := &Snapshot{
		origins:     make(map[string]struct{}),
		GeneratedAt: generatedAt,
		Source:      source,
	}
	for _, g := range groups {
		for _, o := range g {
			s.origins[o] = struct{}{}
		}
	}
	return s
}

// extend returns a stale copy of s sharing the same origin set.
func (s *Snapshot) extend(at time.Time) *Snapshot {
	return &Snapshot{
		origins:     s.origins,
		GeneratedAt: s.GeneratedAt,
		ExtendedAt:  at,
		Source:      SourceStale,
	}
}

// Contains reports whether the normalized origin is in the snapshot.
func (s *Snapshot) Contains(origin string) bool {
	if s == nil {
		return false
	}
	_, ok := s.origins[origin]
	return ok
}

// Len returns the number of origins.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.origins)
}

// Origins returns the origins in lexical order.
func (s *Snapshot) Origins() []string {
	if s == nil {
		return nil
	}
	return slices.Sorted(maps.Keys(s.origins))
}
