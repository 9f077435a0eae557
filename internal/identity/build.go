package identity

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/kozaktomas/face-attendance/internal/constants"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/fingerprint"
	"github.com/kozaktomas/face-attendance/internal/imaging"
)

// ErrImageDirMissing is returned when the reference image directory does not exist.
var ErrImageDirMissing = errors.New("reference image directory does not exist")

// Detector finds faces in an image and returns one embedding per face.
type Detector interface {
	ComputeFaceEmbeddings(ctx context.Context, imageData []byte) (*fingerprint.FaceResponse, error)
}

// ReferenceImage is one enrolment photo; EmpCode is the file name stem.
type ReferenceImage struct {
	EmpCode string
	Path    string
}

// BuildStats counts what happened to each reference image during a build.
type BuildStats struct {
	Images        int           `json:"images"`
	Indexed       int           `json:"indexed"`
	SkippedDecode int           `json:"skipped_decode"`
	SkippedNoFace int           `json:"skipped_no_face"`
	SkippedError  int           `json:"skipped_error"`
	Duration      time.Duration `json:"duration_ns"`
}

// Skipped is the total number of images that produced no embedding.
func (s BuildStats) Skipped() int {
	return s.SkippedDecode + s.SkippedNoFace + s.SkippedError
}

// BuildOptions tunes Build.
type BuildOptions struct {
	Concurrency  int
	MaxImageSize int
	Progress     func() // called once per processed image
}

func isReferenceImage(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" {
		return false
	}
	return slices.Contains(strings.Split(constants.ReferenceImageExtensions, ","), ext)
}

// ScanReferenceImages lists the enrolment photos in dir, sorted by file name.
// Hidden and empty files are ignored.
func ScanReferenceImages(dir string) ([]ReferenceImage, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrImageDirMissing, dir)
	}
	if err != nil {
		return nil, fmt.Errorf("read image directory: %w", err)
	}

	var refs []ReferenceImage
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || !isReferenceImage(name) {
			continue
		}
		info, err := e.Info()
		if err != nil || info.Size() == 0 {
			continue
		}
		code := strings.TrimSuffix(name, filepath.Ext(name))
		if code == "" {
			continue
		}
		refs = append(refs, ReferenceImage{EmpCode: code, Path: filepath.Join(dir, name)})
	}
	return refs, nil
}

// CodesOf returns the distinct employee codes of refs, sorted.
func CodesOf(refs []ReferenceImage) []string {
	codes := make([]string, 0, len(refs))
	for _, r := range refs {
		codes = append(codes, r.EmpCode)
	}
	slices.Sort(codes)
	return slices.Compact(codes)
}

type embedOutcome int

const (
	embedOK embedOutcome = iota
	embedDecodeFailed
	embedNoFace
	embedFailed
)

func embedReference(ctx context.Context, det Detector, ref ReferenceImage, maxSize int) ([]float32, embedOutcome) {
	data, err := os.ReadFile(ref.Path)
	if err != nil {
		return nil, embedDecodeFailed
	}
	prepared, err := imaging.ResizeImage(data, maxSize)
	if err != nil {
		return nil, embedDecodeFailed
	}

	resp, err := det.ComputeFaceEmbeddings(ctx, prepared)
	if err != nil {
		return nil, embedFailed
	}
	if resp == nil || len(resp.Faces) == 0 {
		return nil, embedNoFace
	}

	// Only the first detected face is enrolled.
	vec, ok := database.Normalize(resp.Faces[0].Embedding)
	if !ok {
		return nil, embedFailed
	}
	return vec, embedOK
}

// Build embeds every reference image and returns a new immutable snapshot.
// Per-image failures are counted in the stats and never abort the build; the
// only error is context cancellation.
func Build(ctx context.Context, det Detector, refs []ReferenceImage, opts BuildOptions) (*Snapshot, BuildStats, error) {
	start := time.Now()
	stats := BuildStats{Images: len(refs)}

	workers := opts.Concurrency
	if workers <= 0 {
		workers = constants.WorkerPoolSize
	}
	maxSize := opts.MaxImageSize
	if maxSize <= 0 {
		maxSize = constants.MaxImageSize
	}

	vectors := make([][]float32, len(refs))
	outcomes := make([]embedOutcome, len(refs))

	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup
	for i, ref := range refs {
		if ctx.Err() != nil {
			break
		}
		sem <- struct{}{}
		wg.Add(1)
		go func(i int, ref ReferenceImage) {
			defer wg.Done()
			defer func() { <-sem }()

			vectors[i], outcomes[i] = embedReference(ctx, det, ref, maxSize)
			if opts.Progress != nil {
				opts.Progress()
			}
		}(i, ref)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, stats, fmt.Errorf("index build cancelled: %w", err)
	}

	// Entries keep reference order so builds are deterministic. The first
	// embedding fixes the dimension; anything else is skipped.
	var (
		entries []database.EnrolledFace
		dim     int
	)
	for i, ref := range refs {
		switch outcomes[i] {
		case embedDecodeFailed:
			stats.SkippedDecode++
			continue
		case embedNoFace:
			stats.SkippedNoFace++
			continue
		case embedFailed:
			stats.SkippedError++
			continue
		}
		if dim == 0 {
			dim = len(vectors[i])
		}
		if len(vectors[i]) != dim {
			stats.SkippedError++
			continue
		}
		entries = append(entries, database.EnrolledFace{
			EmpCode:   ref.EmpCode,
			Source:    filepath.Base(ref.Path),
			Embedding: vectors[i],
		})
	}
	stats.Indexed = len(entries)
	stats.Duration = time.Since(start)

	return newSnapshot(entries, CodesOf(refs), stats), stats, nil
}
