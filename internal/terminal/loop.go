package terminal

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/kozaktomas/face-attendance/internal/constants"
)

// Refresh rebuilds the identity index when the reference images changed.
// While the index stays empty, rebuild attempts are spaced by
// constants.EmptyRebuildBackoff. Returns true when a rebuild ran.
func (p *Pipeline) Refresh(ctx context.Context) (bool, error) {
	p.refreshMu.Lock()
	defer p.refreshMu.Unlock()

	stale, err := p.index.Stale()
	if err != nil || !stale {
		return false, err
	}

	if p.index.Info().Empty && !p.lastEmptyRebuild.IsZero() &&
		p.now().Sub(p.lastEmptyRebuild) < constants.EmptyRebuildBackoff {
		return false, nil
	}

	if _, err := p.index.Rebuild(ctx); err != nil {
		return false, err
	}
	if p.index.Info().Empty {
		p.lastEmptyRebuild = p.now()
	} else {
		p.lastEmptyRebuild = time.Time{}
	}
	return true, nil
}

// Run polls for frames every interval until ctx is done. Each tick refreshes
// the index and starts a detection for the latest frame unless one is
// already running, in which case the frame is dropped.
func (p *Pipeline) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Second
	}

	var wg sync.WaitGroup
	defer wg.Wait()

	if _, err := p.Refresh(ctx); err != nil {
		log.Printf("terminal: initial index build failed: %v", err)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Printf("terminal: detection loop started (every %v)", interval)
	for {
		select {
		case <-ctx.Done():
			log.Printf("terminal: detection loop stopped")
			return
		case <-ticker.C:
			p.tick(ctx, &wg)
		}
	}
}

func (p *Pipeline) tick(ctx context.Context, wg *sync.WaitGroup) {
	if _, err := p.Refresh(ctx); err != nil {
		log.Printf("terminal: index refresh failed: %v", err)
	}

	frame := p.frames.Take()
	if frame == nil {
		return
	}
	if p.Busy() {
		return
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		rec := p.Detect(ctx, frame)
		if rec.Status == StatusRecognized {
			log.Printf("terminal: %s %s (%s, similarity %.3f)", rec.Action, rec.EmpCode, rec.EmpName, rec.Similarity)
		}
	}()
}
