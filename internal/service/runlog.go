package service

import (
	"sync"

	"kiln_controller/internal/models"
)

// DefaultBacklogSize keeps a day of one second control periods.
const DefaultBacklogSize = 24 * 60 * 60

// RunLog remembers the snapshots of the active run so a status client that
// connects late can draw the run from the start. It is fed by an oven
// observer and forgets everything when the oven goes idle. Nothing is
// persisted.
type RunLog struct {
	mu    sync.Mutex
	runID string
	prof  string
	buf   []models.OvenStatus
	next  int
	full  bool
}

// NewRunLog keeps at most size snapshots, dropping the oldest first.
func NewRunLog(size int) *RunLog {
	if size <= 0 {
		size = DefaultBacklogSize
	}
	return &RunLog{buf: make([]models.OvenStatus, size)}
}

// Record is an oven observer.
func (l *RunLog) Record(st models.OvenStatus) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if st.State != "RUNNING" {
		l.clearLocked()
		return
	}
	if st.RunID != l.runID {
		l.clearLocked()
		l.runID, l.prof = st.RunID, st.Profile
	}
	l.buf[l.next] = st
	l.next++
	if l.next == len(l.buf) {
		l.next, l.full = 0, true
	}
}

// Backlog copies the recorded snapshots, oldest first.
func (l *RunLog) Backlog() models.Backlog {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := models.Backlog{Profile: l.prof, Log: []models.OvenStatus{}}
	if l.full {
		out.Log = append(out.Log, l.buf[l.next:]...)
	}
	out.Log = append(out.Log, l.buf[:l.next]...)
	return out
}

func (l *RunLog) clearLocked() {
	l.runID, l.prof = "", ""
	l.next, l.full = 0, false
	clear(l.buf)
}
