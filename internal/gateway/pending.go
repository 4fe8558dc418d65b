package gateway

import (
	"context"
	"sync"
)

// Pending tracks one in-flight request.
type Pending struct {
	op   string
	done chan struct{}

	mu       sync.Mutex
	recordID string
	err      error
}

func newPending(op, id string) *Pending {
	return &Pending{op: op, recordID: id, done: make(chan struct{})}
}

func (p *Pending) Op() string { return p.op }

// Done is closed once the store has answered.
func (p *Pending) Done() <-chan struct{} { return p.done }

// Err is the request's outcome, nil until Done is closed.
func (p *Pending) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// RecordID is the affected record. For creates it is known only after Done.
func (p *Pending) RecordID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.recordID
}

// Wait blocks until the request settles and returns its error.
func (p *Pending) Wait(ctx context.Context) error {
	select {
	case <-p.done:
		return p.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pending) settle(recordID string, err error) {
	p.mu.Lock()
	if recordID != "" {
		p.recordID = recordID
	}
	p.err = err
	p.mu.Unlock()
	close(p.done)
}
