package backup

import (
	"context"
	"fmt"

	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/database/sqlite"
)

// AttendanceMirror is the off-site relational copy.
type AttendanceMirror interface {
	MirrorAttendance(ctx context.Context, terminal string, rows []database.AttendanceRecord) (int, error)
	MirrorEmployees(ctx context.Context, employees []database.Employee) (int, error)
	MirrorFaces(ctx context.Context, terminal string, faces []database.EnrolledFace) (int, error)
	RecordUpload(ctx context.Context, terminal string, a database.BackupArtifact) error
}

// FaceSource exposes the enrolled embeddings of the live identity index.
type FaceSource interface {
	Embeddings() []database.EnrolledFace
}

// MirrorUploader replays artifacts into an AttendanceMirror. Extracts carry
// ledger rows only. Full snapshots also refresh employees, read from the
// snapshot file, and faces, which are not stored in the database and so come
// from the live index at upload time.
type MirrorUploader struct {
	mirror   AttendanceMirror
	faces    FaceSource
	terminal string
}

// NewMirrorUploader creates a mirror uploader. faces may be nil.
func NewMirrorUploader(mirror AttendanceMirror, faces FaceSource, terminal string) *MirrorUploader {
	return &MirrorUploader{mirror: mirror, faces: faces, terminal: terminal}
}

func (m *MirrorUploader) Name() string {
	return "mirror"
}

func (m *MirrorUploader) Upload(ctx context.Context, a database.BackupArtifact) error {
	rows, err := sqlite.ReadAttendanceArtifact(ctx, a.Path)
	if err != nil {
		return err
	}
	if _, err := m.mirror.MirrorAttendance(ctx, m.terminal, rows); err != nil {
		return err
	}

	if a.Kind == database.ArtifactFull {
		emps, err := sqlite.ReadEmployeesArtifact(ctx, a.Path)
		if err != nil {
			return fmt.Errorf("read employees for mirror: %w", err)
		}
		if _, err := m.mirror.MirrorEmployees(ctx, emps); err != nil {
			return err
		}
		if m.faces != nil {
			if _, err := m.mirror.MirrorFaces(ctx, m.terminal, m.faces.Embeddings()); err != nil {
				return err
			}
		}
	}

	if a.Rows == 0 {
		a.Rows = len(rows)
	}
	return m.mirror.RecordUpload(ctx, m.terminal, a)
}
