package auth

import (
	"sync"

	"github.com/sellerlab/wbcompare/internal/common"
)

// PendingCode is a single-slot rendezvous between the login flow waiting
// for a one-time code and the side-channel handler that receives it.
// At most one request is outstanding at a time; a code arriving while no
// request is pending, or after the slot is already resolved, is rejected
// without side effects.
type PendingCode struct {
	mu sync.Mutex
	ch chan string // nil when no request is pending
}

func NewPendingCode() *PendingCode {
	return &PendingCode{}
}

// arm opens the slot and returns the channel the waiter should receive
// on. Fails if a request is already outstanding.
func (p *PendingCode) arm() (<-chan string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch != nil {
		return nil, common.ErrConflict
	}
	p.ch = make(chan string, 1)
	return p.ch, nil
}

// disarm clears the slot. Called by the waiter once it resumes, whether
// the wait resolved, timed out or errored, so a later unrelated code
// cannot resolve a stale request.
func (p *PendingCode) disarm() {
	p.mu.Lock()
	p.ch = nil
	p.mu.Unlock()
}

// Resolve delivers a code to the waiting request. Only the first
// resolution is accepted.
func (p *PendingCode) Resolve(code string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch == nil {
		return common.ErrNoPendingAuth
	}
	select {
	case p.ch <- code:
		return nil
	default:
		return common.ErrAlreadyResolved
	}
}

// Pending reports whether a code request is currently outstanding.
func (p *PendingCode) Pending() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ch != nil
}
