// Package terminal wires frames through liveness, identity matching and the
// attendance ledger.
package terminal

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/constants"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/i18n"
	"github.com/kozaktomas/face-attendance/internal/identity"
)

// LivenessPredicate decides whether a frame shows a live person.
type LivenessPredicate interface {
	IsLive(ctx context.Context, frame []byte) (bool, error)
}

// Recognizer is the identity index as seen by the pipeline.
type Recognizer interface {
	MatchImage(ctx context.Context, frame []byte) identity.MatchResult
	Stale() (bool, error)
	Rebuild(ctx context.Context) (identity.BuildStats, error)
	Info() identity.Info
}

// Pipeline runs at most one detection at a time.
type Pipeline struct {
	index     Recognizer
	employees database.EmployeeReader
	machine   *attendance.Machine
	liveness  LivenessPredicate
	now       func() time.Time

	inFlight atomic.Bool
	last     atomic.Pointer[Recognition]
	frames   LatestFrame

	livenessOnce sync.Once

	refreshMu        sync.Mutex
	lastEmptyRebuild time.Time
}

// NewPipeline creates a pipeline. A nil liveness predicate runs in
// recognition-only mode.
func NewPipeline(index Recognizer, employees database.EmployeeReader, machine *attendance.Machine, liveness LivenessPredicate) *Pipeline {
	return &Pipeline{
		index:     index,
		employees: employees,
		machine:   machine,
		liveness:  liveness,
		now:       time.Now,
	}
}

// Frames returns the latest-frame holder fed by the capture endpoint.
func (p *Pipeline) Frames() *LatestFrame {
	return &p.frames
}

// LivenessEnabled reports whether a liveness predicate is configured.
func (p *Pipeline) LivenessEnabled() bool {
	return p.liveness != nil
}

// Busy reports whether a detection is in progress.
func (p *Pipeline) Busy() bool {
	return p.inFlight.Load()
}

// Last returns the most recent completed recognition, or nil.
func (p *Pipeline) Last() *Recognition {
	return p.last.Load()
}

// Detect processes one frame. A frame arriving while another detection is
// in flight is dropped and reported as busy.
func (p *Pipeline) Detect(ctx context.Context, frame []byte) Recognition {
	if !p.inFlight.CompareAndSwap(false, true) {
		return p.fail(ctx, StatusBusy, "recognition.busy", nil)
	}
	defer p.inFlight.Store(false)

	rec := p.detect(ctx, frame)
	p.last.Store(&rec)
	return rec
}

func (p *Pipeline) fail(ctx context.Context, status Status, msgID string, data map[string]any) Recognition {
	return Recognition{
		ID:      uuid.NewString(),
		Status:  status,
		Action:  status.action(),
		Message: i18n.T(ctx, msgID, data),
		At:      p.now(),
	}
}

func (p *Pipeline) recognitionOnly(reason string) {
	p.livenessOnce.Do(func() {
		log.Printf("terminal: %s; running in recognition-only mode", reason)
	})
}

func (p *Pipeline) detect(ctx context.Context, frame []byte) Recognition {
	if len(frame) == 0 {
		return p.fail(ctx, StatusNoImage, "recognition.no_image", nil)
	}

	ctx, cancel := context.WithTimeout(ctx, constants.DetectionTimeout)
	defer cancel()

	checked := false
	if p.liveness == nil {
		p.recognitionOnly("liveness check not configured")
	} else {
		live, err := p.liveness.IsLive(ctx, frame)
		switch {
		case err != nil:
			p.recognitionOnly(fmt.Sprintf("liveness check unavailable (%v)", err))
		case !live:
			rec := p.fail(ctx, StatusSpoofDetected, "recognition.spoof", nil)
			rec.LivenessChecked = true
			return rec
		default:
			checked = true
		}
	}

	m := p.index.MatchImage(ctx, frame)
	rec := p.fromMatch(ctx, m)
	rec.LivenessChecked = checked
	return rec
}

func (p *Pipeline) fromMatch(ctx context.Context, m identity.MatchResult) Recognition {
	var rec Recognition
	switch m.Status {
	case identity.MatchAccepted:
		return p.record(ctx, m)
	case identity.MatchNoProfiles:
		rec = p.fail(ctx, StatusNoProfiles, "recognition.no_profiles", map[string]any{"Dir": p.index.Info().ImageDir})
	case identity.MatchNoImage:
		rec = p.fail(ctx, StatusNoImage, "recognition.no_image", nil)
	case identity.MatchNoFace:
		rec = p.fail(ctx, StatusNoFace, "recognition.no_face", nil)
	case identity.MatchUnauthorized:
		rec = p.fail(ctx, StatusUnauthorized, "recognition.unauthorized", map[string]any{
			"Similarity": fmt.Sprintf("%.2f", m.Similarity),
			"Threshold":  fmt.Sprintf("%.2f", m.Threshold),
		})
	case identity.MatchInvalidProbe:
		rec = p.fail(ctx, StatusInvalidProbe, "recognition.invalid_probe", nil)
	default:
		if m.Err != nil {
			log.Printf("terminal: detection failed: %v", m.Err)
		}
		rec = p.fail(ctx, StatusDetectionError, "recognition.detection_error", nil)
	}
	rec.Similarity = m.Similarity
	rec.Threshold = m.Threshold
	return rec
}

func (p *Pipeline) record(ctx context.Context, m identity.MatchResult) Recognition {
	ev := attendance.Event{EmpCode: m.EmpCode, Mode: database.ModeFace}

	emp, err := p.employees.GetEmployee(ctx, m.EmpCode)
	switch {
	case errors.Is(err, database.ErrNotFound):
		rec := p.fail(ctx, StatusUnknownEmployee, "recognition.unknown_employee", map[string]any{"Code": m.EmpCode})
		rec.EmpCode = m.EmpCode
		rec.Similarity = m.Similarity
		rec.Threshold = m.Threshold
		return rec
	case err != nil:
		log.Printf("terminal: employee lookup for %s failed: %v", m.EmpCode, err)
	default:
		ev.EmpName = emp.FullName
		ev.EmpBID = emp.EmpBID
	}

	res := p.machine.Process(ctx, ev)
	rec := Recognition{
		ID:         uuid.NewString(),
		Status:     StatusRecognized,
		Success:    res.Success,
		Action:     res.Action,
		Message:    res.Message,
		EmpCode:    res.EmpCode,
		EmpName:    res.EmpName,
		Similarity: m.Similarity,
		Threshold:  m.Threshold,
		Attendance: &res,
		At:         p.now(),
	}
	switch res.Outcome {
	case attendance.OutcomeCheckedIn:
		rec.Message = i18n.T(ctx, "recognition.welcome", map[string]any{"Name": res.EmpName, "Date": res.Date})
	case attendance.OutcomeCheckedOut, attendance.OutcomeCheckoutRepeated:
		rec.Message = i18n.T(ctx, "recognition.goodbye", map[string]any{"Name": res.EmpName, "Time": res.Time})
	}
	return rec
}
