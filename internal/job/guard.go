package job

import (
	"errors"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Static errors for the job guard.
var (
	// ErrAlreadyBusy is returned when a compression job is already active.
	ErrAlreadyBusy = errors.New("job: a compression is already in progress")
	// ErrTokenReleased is returned when a token is released a second time.
	ErrTokenReleased = errors.New("job: token already released")
	// ErrTokenMismatch is returned when a token does not own the slot.
	ErrTokenMismatch = errors.New("job: token does not hold the compression slot")
)

// State is a snapshot of the compression slot.
type State struct {
	IsBusy     bool      `json:"is_busy"`
	ActivePath string    `json:"active_path,omitempty"`
	JobID      string    `json:"job_id,omitempty"`
	Since      time.Time `json:"since,omitempty"`
}

// Token proves ownership of the compression slot.
type Token struct {
	id       string
	jobID    string
	path     string
	acquired time.Time
	released atomic.Bool
}

// ID returns the unique token identifier.
func (t *Token) ID() string { return t.id }

// JobID returns the job the token was acquired for.
func (t *Token) JobID() string { return t.jobID }

// Path returns the source path being compressed.
func (t *Token) Path() string { return t.path }

// Guard enforces single-flight compression: at most one token is
// outstanding at any time. Acquire and Release are the only writers of the
// slot and are safe for concurrent use.
type Guard struct {
	holder atomic.Pointer[Token]
}

// NewGuard creates an idle Guard.
func NewGuard() *Guard {
	return &Guard{}
}

// TryAcquire claims the slot for path. It never waits: if another token is
// outstanding it returns ErrAlreadyBusy and leaves that token untouched.
func (g *Guard) TryAcquire(path, jobID string) (*Token, error) {
	tok := &Token{
		id:       uuid.NewString(),
		jobID:    jobID,
		path:     path,
		acquired: time.Now(),
	}
	if !g.holder.CompareAndSwap(nil, tok) {
		return nil, ErrAlreadyBusy
	}
	return tok, nil
}

// Release frees the slot held by tok. Each token releases exactly once.
func (g *Guard) Release(tok *Token) error {
	if tok == nil {
		return ErrTokenMismatch
	}
	if g.holder.Load() != tok {
		if tok.released.Load() {
			return ErrTokenReleased
		}
		return ErrTokenMismatch
	}
	if !tok.released.CompareAndSwap(false, true) {
		return ErrTokenReleased
	}
	g.holder.CompareAndSwap(tok, nil)
	return nil
}

// State returns a snapshot of the slot.
func (g *Guard) State() State {
	tok := g.holder.Load()
	if tok == nil {
		return State{}
	}
	return State{
		IsBusy:     true,
		ActivePath: tok.path,
		JobID:      tok.jobID,
		Since:      tok.acquired,
	}
}
