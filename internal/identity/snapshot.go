package identity

import (
	"slices"
	"time"

	"github.com/coder/hnsw"
	"github.com/kozaktomas/face-attendance/internal/database"
)

// Snapshot is an immutable, fully built index. Queries never observe a
// snapshot under construction.
type Snapshot struct {
	graph   *hnsw.Graph[int]
	entries []database.EnrolledFace
	dim     int
	sources map[string]struct{} // codes of the reference images the build saw
	builtAt time.Time
	stats   BuildStats
}

// emptySnapshot is the explicit empty state: no profiles loaded.
func emptySnapshot() *Snapshot {
	return &Snapshot{sources: map[string]struct{}{}}
}

func newSnapshot(entries []database.EnrolledFace, sourceCodes []string, stats BuildStats) *Snapshot {
	s := &Snapshot{
		entries: entries,
		sources: make(map[string]struct{}, len(sourceCodes)),
		builtAt: time.Now(),
		stats:   stats,
	}
	for _, c := range sourceCodes {
		s.sources[c] = struct{}{}
	}
	if len(entries) == 0 {
		return s
	}

	g := hnsw.NewGraph[int]()
	g.M = database.HNSWMaxNeighbors
	g.Ml = 1.0 / float64(database.HNSWMaxNeighbors) // Standard HNSW formula
	g.EfSearch = database.HNSWEfSearch
	g.Distance = hnsw.CosineDistance

	for i, e := range entries {
		g.Add(hnsw.MakeNode(i, e.Embedding))
	}
	s.graph = g
	s.dim = len(entries[0].Embedding)
	return s
}

// Empty reports whether the snapshot holds no embeddings.
func (s *Snapshot) Empty() bool {
	return len(s.entries) == 0
}

// Len returns the number of enrolled embeddings.
func (s *Snapshot) Len() int {
	return len(s.entries)
}

// Codes returns the distinct employee codes with at least one embedding.
func (s *Snapshot) Codes() []string {
	codes := make([]string, 0, len(s.entries))
	for _, e := range s.entries {
		codes = append(codes, e.EmpCode)
	}
	slices.Sort(codes)
	return slices.Compact(codes)
}

// Match finds the nearest reference to probe. The probe is normalized first;
// HNSW candidates are re-scored with the exact inner product.
func (s *Snapshot) Match(probe []float32, threshold float64) MatchResult {
	res := MatchResult{Threshold: threshold}
	if s.Empty() {
		res.Status = MatchNoProfiles
		return res
	}

	q, ok := database.Normalize(probe)
	if !ok || len(q) != s.dim {
		res.Status = MatchInvalidProbe
		return res
	}

	k := min(database.HNSWSearchWidth, len(s.entries))
	candidates := s.graph.Search(q, k)

	best, bestSim := -1, -2.0
	for _, c := range candidates {
		sim := database.Dot(q, s.entries[c.Key].Embedding)
		if sim > bestSim || (sim == bestSim && c.Key < best) {
			best, bestSim = c.Key, sim
		}
	}
	if best < 0 {
		res.Status = MatchUnauthorized
		return res
	}

	res.Nearest = s.entries[best].EmpCode
	res.Similarity = bestSim
	if bestSim > threshold {
		res.Status = MatchAccepted
		res.EmpCode = res.Nearest
	} else {
		res.Status = MatchUnauthorized
	}
	return res
}

// differs reports whether codes is not the exact set this snapshot was built from.
func (s *Snapshot) differs(codes []string) bool {
	seen := make(map[string]struct{}, len(codes))
	for _, c := range codes {
		seen[c] = struct{}{}
	}
	if len(seen) != len(s.sources) {
		return true
	}
	for c := range seen {
		if _, ok := s.sources[c]; !ok {
			return true
		}
	}
	return false
}
