// Package directory keeps the local employee directory and reference photos
// in sync with the external HR service.
package directory

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/kozaktomas/face-attendance/internal/constants"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/imaging"
)

var (
	// ErrInvalidCode rejects codes that are empty or cannot be used as a file name.
	ErrInvalidCode = errors.New("invalid employee code")
	// ErrMissingName rejects employees without a full name.
	ErrMissingName = errors.New("employee full name is required")
	// ErrInvalidImage rejects reference photos that cannot be decoded.
	ErrInvalidImage = errors.New("invalid reference image")
)

// Service is the write surface used by directory sync.
type Service struct {
	store    database.EmployeeWriter
	sessions database.SessionStore
	imageDir string
	now      func() time.Time
}

// NewService creates a directory service. sessions may be nil.
func NewService(store database.EmployeeWriter, sessions database.SessionStore, imageDir string) *Service {
	return &Service{store: store, sessions: sessions, imageDir: imageDir, now: time.Now}
}

// ValidateCode checks that code is usable as a key and a file name stem.
func ValidateCode(code string) error {
	code = strings.TrimSpace(code)
	if code == "" || code == "." || code == ".." || strings.ContainsAny(code, `/\:`) {
		return fmt.Errorf("%w: %q", ErrInvalidCode, code)
	}
	return nil
}

// Upsert inserts the employee or updates the existing row with the same code.
// Returns true when a new row was created.
func (s *Service) Upsert(ctx context.Context, e database.Employee) (bool, error) {
	e.EmpCode = strings.TrimSpace(e.EmpCode)
	e.FullName = strings.TrimSpace(e.FullName)
	if err := ValidateCode(e.EmpCode); err != nil {
		return false, err
	}
	if e.FullName == "" {
		return false, ErrMissingName
	}

	exists, err := s.store.EmployeeExists(ctx, e.EmpCode)
	if err != nil {
		return false, err
	}
	if exists {
		return false, s.update(ctx, e)
	}

	err = s.store.InsertEmployee(ctx, e)
	if errors.Is(err, database.ErrDuplicate) {
		// inserted concurrently since the existence check
		return false, s.update(ctx, e)
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *Service) update(ctx context.Context, e database.Employee) error {
	if e.ProfileImageLocal == "" {
		if cur, err := s.store.GetEmployee(ctx, e.EmpCode); err == nil {
			e.ProfileImageLocal = cur.ProfileImageLocal
		}
	}
	return s.store.UpdateEmployee(ctx, e)
}

// Get returns one employee or database.ErrNotFound.
func (s *Service) Get(ctx context.Context, code string) (*database.Employee, error) {
	return s.store.GetEmployee(ctx, strings.TrimSpace(code))
}

// List returns all employees ordered by name.
func (s *Service) List(ctx context.Context) ([]database.Employee, error) {
	emps, err := s.store.ListEmployees(ctx)
	if err != nil {
		return nil, err
	}
	if emps == nil {
		emps = []database.Employee{}
	}
	return emps, nil
}

// Search matches employees whose code starts with q or whose normalized
// name contains every word of q.
func (s *Service) Search(ctx context.Context, q string) ([]database.Employee, error) {
	all, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	q = strings.TrimSpace(q)
	if q == "" {
		return all, nil
	}

	words := strings.Fields(NormalizeName(q))
	out := []database.Employee{}
	for _, e := range all {
		if strings.HasPrefix(strings.ToLower(e.EmpCode), strings.ToLower(q)) {
			out = append(out, e)
			continue
		}
		name := NormalizeName(e.FullName)
		if len(words) > 0 && !slices.ContainsFunc(words, func(w string) bool { return !strings.Contains(name, w) }) {
			out = append(out, e)
		}
	}
	return out, nil
}

// SaveReferenceImage decodes data, downsizes it and stores it as
// {code}.jpg in the image directory. The file is written to a temporary
// name first and renamed, so an index build never reads a partial file.
// Other reference files for the same code are removed.
func (s *Service) SaveReferenceImage(ctx context.Context, code string, data []byte) (string, error) {
	code = strings.TrimSpace(code)
	if err := ValidateCode(code); err != nil {
		return "", err
	}

	img, _, err := imaging.Decode(data)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidImage, err)
	}
	out, err := imaging.EncodeJPEG(imaging.Fit(img, constants.MaxImageSize))
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(s.imageDir, 0o755); err != nil {
		return "", fmt.Errorf("create image directory: %w", err)
	}
	tmp, err := os.CreateTemp(s.imageDir, "."+code+"-*.tmp")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(out); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write reference image: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close reference image: %w", err)
	}

	dest := filepath.Join(s.imageDir, code+".jpg")
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return "", fmt.Errorf("store reference image: %w", err)
	}
	s.removeOtherReferences(code, dest)

	if e, err := s.store.GetEmployee(ctx, code); err == nil && e.ProfileImageLocal != dest {
		e.ProfileImageLocal = dest
		if err := s.store.UpdateEmployee(ctx, *e); err != nil {
			return dest, err
		}
	}
	return dest, nil
}

func (s *Service) removeOtherReferences(code, keep string) {
	for ext := range strings.SplitSeq(constants.ReferenceImageExtensions, ",") {
		for _, variant := range []string{ext, strings.ToUpper(ext)} {
			p := filepath.Join(s.imageDir, code+variant)
			if !strings.EqualFold(p, keep) {
				os.Remove(p)
			}
		}
	}
}

// ErrNoSessionStore is returned by session calls on a service without a store.
var ErrNoSessionStore = errors.New("session store not configured")

// SessionExpiry reads the exp claim of a JWT without verifying its
// signature. Opaque tokens have no known expiry.
func SessionExpiry(token string) *time.Time {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return nil
	}
	t := exp.Time
	return &t
}

// SaveSession stores the HR service login, replacing any previous one.
func (s *Service) SaveSession(ctx context.Context, token, employeeID, name, email string) (*database.Session, error) {
	if s.sessions == nil {
		return nil, ErrNoSessionStore
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, errors.New("session token is required")
	}
	sess := database.Session{
		Token:      token,
		EmployeeID: employeeID,
		Name:       name,
		Email:      email,
		ExpiresAt:  SessionExpiry(token),
	}
	if err := s.sessions.SaveSession(ctx, sess); err != nil {
		return nil, err
	}
	return s.sessions.LoadSession(ctx)
}

// Session returns the active session. An expired session is reported as
// database.ErrNotFound and left in place until cleared.
func (s *Service) Session(ctx context.Context) (*database.Session, error) {
	if s.sessions == nil {
		return nil, ErrNoSessionStore
	}
	sess, err := s.sessions.LoadSession(ctx)
	if err != nil {
		return nil, err
	}
	if sess.Expired(s.now()) {
		return nil, fmt.Errorf("session expired at %s: %w", sess.ExpiresAt.Format(time.RFC3339), database.ErrNotFound)
	}
	return sess, nil
}

// ClearSession removes the active session.
func (s *Service) ClearSession(ctx context.Context) error {
	if s.sessions == nil {
		return ErrNoSessionStore
	}
	return s.sessions.ClearSession(ctx)
}
