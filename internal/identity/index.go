// Package identity matches face embeddings against the enrolled employees.
package identity

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kozaktomas/face-attendance/internal/constants"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/imaging"
)

// Index holds the current snapshot and swaps it atomically on rebuild.
type Index struct {
	current   atomic.Pointer[Snapshot]
	threshold float64
	dir       string
	detector  Detector
	opts      BuildOptions

	rebuildMu   sync.Mutex // serializes rebuilds, never held by queries
	missingOnce sync.Once
}

// NewIndex creates an index in the empty state.
func NewIndex(dir string, detector Detector, opts BuildOptions) *Index {
	ix := &Index{
		threshold: constants.MatchThreshold,
		dir:       dir,
		detector:  detector,
		opts:      opts,
	}
	ix.current.Store(emptySnapshot())
	return ix
}

// Dir returns the reference image directory.
func (ix *Index) Dir() string {
	return ix.dir
}

// Threshold returns the acceptance threshold.
func (ix *Index) Threshold() float64 {
	return ix.threshold
}

// Snapshot returns the currently published snapshot.
func (ix *Index) Snapshot() *Snapshot {
	return ix.current.Load()
}

// Publish atomically replaces the current snapshot.
func (ix *Index) Publish(s *Snapshot) {
	if s == nil {
		s = emptySnapshot()
	}
	ix.current.Store(s)
}

// Rebuild scans the image directory, builds a fresh snapshot and publishes
// it. A missing directory publishes the empty state and is reported once.
func (ix *Index) Rebuild(ctx context.Context) (BuildStats, error) {
	ix.rebuildMu.Lock()
	defer ix.rebuildMu.Unlock()

	refs, err := ScanReferenceImages(ix.dir)
	if errors.Is(err, ErrImageDirMissing) {
		ix.missingOnce.Do(func() {
			log.Printf("identity: %v; running with no profiles loaded", err)
		})
		ix.Publish(emptySnapshot())
		return BuildStats{}, nil
	}
	if err != nil {
		return BuildStats{}, err
	}

	snap, stats, err := Build(ctx, ix.detector, refs, ix.opts)
	if err != nil {
		return stats, err
	}
	ix.Publish(snap)

	log.Printf("identity: indexed %d of %d reference images (%d unreadable, %d without a face, %d failed) in %v",
		stats.Indexed, stats.Images, stats.SkippedDecode, stats.SkippedNoFace, stats.SkippedError,
		stats.Duration.Round(time.Millisecond))
	return stats, nil
}

// NeedsRebuild reports whether the given on-disk codes call for a rebuild:
// the index is empty while images exist, or the code set differs from the one
// the current snapshot was built from.
func (ix *Index) NeedsRebuild(codes []string) bool {
	s := ix.current.Load()
	if s.Empty() && len(codes) > 0 {
		return true
	}
	return s.differs(codes)
}

// Stale scans the image directory and applies NeedsRebuild.
func (ix *Index) Stale() (bool, error) {
	refs, err := ScanReferenceImages(ix.dir)
	if errors.Is(err, ErrImageDirMissing) {
		return ix.NeedsRebuild(nil), nil
	}
	if err != nil {
		return false, err
	}
	return ix.NeedsRebuild(CodesOf(refs)), nil
}

// Match looks up probe in the current snapshot.
func (ix *Index) Match(probe []float32) MatchResult {
	return ix.current.Load().Match(probe, ix.threshold)
}

// MatchImage runs detection on a frame and matches its first face.
func (ix *Index) MatchImage(ctx context.Context, frame []byte) MatchResult {
	snap := ix.current.Load()
	if snap.Empty() {
		return MatchResult{Status: MatchNoProfiles, Threshold: ix.threshold}
	}

	prepared, err := imaging.ResizeImage(frame, constants.MaxImageSize)
	if err != nil {
		return MatchResult{Status: MatchNoImage, Threshold: ix.threshold, Err: err}
	}

	resp, err := ix.detector.ComputeFaceEmbeddings(ctx, prepared)
	if err != nil {
		return MatchResult{Status: MatchDetectionError, Threshold: ix.threshold, Err: fmt.Errorf("detect faces: %w", err)}
	}
	if resp == nil || len(resp.Faces) == 0 {
		return MatchResult{Status: MatchNoFace, Threshold: ix.threshold}
	}
	return snap.Match(resp.Faces[0].Embedding, ix.threshold)
}

// Info describes the current snapshot.
type Info struct {
	Faces     int        `json:"faces"`
	Codes     []string   `json:"codes"`
	Empty     bool       `json:"empty"`
	BuiltAt   *time.Time `json:"built_at,omitempty"`
	Stats     BuildStats `json:"stats"`
	Threshold float64    `json:"threshold"`
	ImageDir  string     `json:"image_dir"`
}

// Info reports the current snapshot's contents.
func (ix *Index) Info() Info {
	s := ix.current.Load()
	info := Info{
		Faces:     s.Len(),
		Codes:     s.Codes(),
		Empty:     s.Empty(),
		Stats:     s.stats,
		Threshold: ix.threshold,
		ImageDir:  ix.dir,
	}
	if !s.builtAt.IsZero() {
		t := s.builtAt
		info.BuiltAt = &t
	}
	return info
}

// Embeddings returns the enrolled faces of the current snapshot.
func (ix *Index) Embeddings() []database.EnrolledFace {
	s := ix.current.Load()
	out := make([]database.EnrolledFace, len(s.entries))
	copy(out, s.entries)
	return out
}
