package backup

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"path/filepath"
	"sync"
	"time"

	"github.com/kozaktomas/face-attendance/internal/constants"
	"github.com/kozaktomas/face-attendance/internal/database"
)

// Probe decides whether off-site uploads are worth attempting.
type Probe interface {
	Online(ctx context.Context) bool
}

// TCPProbe dials a well-known address to detect connectivity.
type TCPProbe struct {
	Addr    string
	Timeout time.Duration
}

func (p TCPProbe) Online(ctx context.Context) bool {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = constants.ProbeTimeout
	}
	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", p.Addr)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// Uploader sends one artifact to an off-site destination.
type Uploader interface {
	Name() string
	Upload(ctx context.Context, a database.BackupArtifact) error
}

// UploadStatus tracks an artifact through the queue
type UploadStatus string

const (
	UploadPending   UploadStatus = "pending"
	UploadUploading UploadStatus = "uploading"
	UploadCompleted UploadStatus = "completed"
	UploadFailed    UploadStatus = "failed"
)

// UploadRecord is the status of one queued artifact
type UploadRecord struct {
	File      string       `json:"file"`
	Label     string       `json:"label"`
	CycleID   string       `json:"cycle_id"`
	Status    UploadStatus `json:"status"`
	Error     string       `json:"error,omitempty"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// UploadQueue hands artifacts to uploaders on a single background worker.
// The queue is bounded; when full, new artifacts are dropped.
type UploadQueue struct {
	uploaders []Uploader
	timeout   time.Duration
	jobs      chan database.BackupArtifact

	mu      sync.Mutex
	closed  bool
	records []*UploadRecord

	wg sync.WaitGroup
}

// NewUploadQueue creates a queue. size <= 0 uses constants.UploadQueueSize.
func NewUploadQueue(timeout time.Duration, size int, uploaders ...Uploader) *UploadQueue {
	if size <= 0 {
		size = constants.UploadQueueSize
	}
	return &UploadQueue{
		uploaders: uploaders,
		timeout:   timeout,
		jobs:      make(chan database.BackupArtifact, size),
	}
}

// Destinations returns the configured uploader names.
func (q *UploadQueue) Destinations() []string {
	names := make([]string, 0, len(q.uploaders))
	for _, u := range q.uploaders {
		names = append(names, u.Name())
	}
	return names
}

// Start launches the worker. It exits when ctx is done or Close is called.
func (q *UploadQueue) Start(ctx context.Context) {
	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case a, ok := <-q.jobs:
				if !ok {
					return
				}
				q.process(ctx, a)
			}
		}
	}()
}

// Close stops accepting artifacts, lets the worker drain the queue and waits.
func (q *UploadQueue) Close() {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.jobs)
	}
	q.mu.Unlock()
	q.wg.Wait()
}

// Enqueue offers an artifact without blocking. Returns false when the
// queue is full, closed or has no uploaders.
func (q *UploadQueue) Enqueue(a database.BackupArtifact) bool {
	if len(q.uploaders) == 0 {
		return false
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}

	rec := &UploadRecord{
		File:      filepath.Base(a.Path),
		Label:     a.Label,
		CycleID:   a.CycleID,
		Status:    UploadPending,
		UpdatedAt: time.Now(),
	}
	select {
	case q.jobs <- a:
	default:
		log.Printf("backup: upload queue full, dropping %s", rec.File)
		return false
	}

	q.records = append(q.records, rec)
	if len(q.records) > constants.MaxUploadRecords {
		q.records = q.records[len(q.records)-constants.MaxUploadRecords:]
	}
	return true
}

func (q *UploadQueue) setStatus(a database.BackupArtifact, status UploadStatus, err error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	file := filepath.Base(a.Path)
	for i := len(q.records) - 1; i >= 0; i-- {
		r := q.records[i]
		if r.File == file && r.CycleID == a.CycleID {
			r.Status = status
			r.UpdatedAt = time.Now()
			if err != nil {
				r.Error = err.Error()
			}
			return
		}
	}
}

func (q *UploadQueue) process(ctx context.Context, a database.BackupArtifact) {
	q.setStatus(a, UploadUploading, nil)

	var errs []error
	for _, u := range q.uploaders {
		if err := q.uploadOne(ctx, u, a); err != nil {
			log.Printf("backup: upload of %s to %s failed: %v", filepath.Base(a.Path), u.Name(), err)
			errs = append(errs, fmt.Errorf("%s: %w", u.Name(), err))
			continue
		}
		log.Printf("backup: uploaded %s to %s", filepath.Base(a.Path), u.Name())
	}

	if err := errors.Join(errs...); err != nil {
		q.setStatus(a, UploadFailed, err)
		return
	}
	q.setStatus(a, UploadCompleted, nil)
}

func (q *UploadQueue) uploadOne(ctx context.Context, u Uploader, a database.BackupArtifact) error {
	if q.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, q.timeout)
		defer cancel()
	}
	return u.Upload(ctx, a)
}

// Records returns a copy of the upload history, oldest first.
func (q *UploadQueue) Records() []UploadRecord {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]UploadRecord, len(q.records))
	for i, r := range q.records {
		out[i] = *r
	}
	return out
}
