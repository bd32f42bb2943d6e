package study

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"redditstudy/internal/throttle"
)

// Phase is the part of a study currently executing.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseSampling   Phase = "sampling"
	PhaseCollecting Phase = "collecting"
)

// Progress is a live view of the running study, or of the last one when idle.
type Progress struct {
	Running   bool             `json:"running"`
	StudyID   string           `json:"study_id,omitempty"`
	Phase     Phase            `json:"phase"`
	StartedAt *time.Time       `json:"started_at,omitempty"`
	Sampled   int              `json:"sampled"`
	Snapshots int              `json:"snapshots"`
	Failures  int              `json:"failures"`
	Throttle  *throttle.Status `json:"throttle,omitempty"`
}

// String renders progress as a short multi-line message for chat.
func (p Progress) String() string {
	if p.StudyID == "" {
		return "No study has run yet."
	}
	var b strings.Builder
	state := "finished"
	if p.Running {
		state = string(p.Phase)
	}
	fmt.Fprintf(&b, "Study %s: %s\n", p.StudyID, state)
	if p.StartedAt != nil {
		fmt.Fprintf(&b, "Started: %s\n", p.StartedAt.Format(time.RFC3339))
	}
	fmt.Fprintf(&b, "Sampled: %d, snapshots: %d, failures: %d", p.Sampled, p.Snapshots, p.Failures)
	if t := p.Throttle; t != nil && p.Running {
		fmt.Fprintf(&b, "\nPass %d/%d, item %d/%d", t.Pass+1, t.TotalPasses, t.Cursor+1, t.Length)
	}
	return b.String()
}

// run holds the mutable state of one Run call, shared with Progress readers.
type run struct {
	mu       sync.Mutex
	progress Progress
	status   func() throttle.Status
}

func (r *run) add(fn func(*Progress)) {
	r.mu.Lock()
	fn(&r.progress)
	r.mu.Unlock()
}

func (r *run) enter(phase Phase, status func() throttle.Status) {
	r.mu.Lock()
	r.progress.Phase = phase
	r.status = status
	r.mu.Unlock()
}

// snapshot copies the progress; the throttle is queried outside the lock.
func (r *run) snapshot() Progress {
	r.mu.Lock()
	p, status := r.progress, r.status
	r.mu.Unlock()

	if status != nil {
		st := status()
		p.Throttle = &st
	}
	return p
}
