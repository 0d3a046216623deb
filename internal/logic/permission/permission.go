// Package permission models the host's camera-access permission.
package permission

import (
	"context"
	"errors"
	"sync"

	"github.com/cjeanneret/SnapGo/internal/debug"
)

// ErrNoPendingRequest is returned by Answer when nobody asked.
var ErrNoPendingRequest = errors.New("permission: no pending request")

// Service is the host permission service for the camera capability.
type Service interface {
	// Granted reports the current status. It is queried on every check.
	Granted() bool
	// Request asks for access. The returned channel yields exactly one
	// value (the outcome) and is then closed.
	Request(ctx context.Context) <-chan bool
}

// Status of a permission as seen by the prompting UI.
type Status int

const (
	StatusUnknown Status = iota // never asked
	StatusPending               // asked, waiting for the user
	StatusGranted
	StatusDenied
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusGranted:
		return "granted"
	case StatusDenied:
		return "denied"
	default:
		return "unknown"
	}
}

func resolved(v bool) <-chan bool {
	ch := make(chan bool, 1)
	ch <- v
	close(ch)
	return ch
}

// Static always answers the same way. Used for "granted"/"denied" config
// modes and in tests.
type Static struct {
	granted bool
}

// NewStatic returns a Service with a fixed answer.
func NewStatic(granted bool) *Static { return &Static{granted: granted} }

func (s *Static) Granted() bool { return s.granted }

func (s *Static) Request(context.Context) <-chan bool { return resolved(s.granted) }

// Prompter asks the user through the UI. Request marks a prompt as pending
// and notifies listeners; the UI calls Answer with the user's choice.
// A decision is final for the lifetime of the process.
type Prompter struct {
	mu        sync.Mutex
	status    Status
	waiters   map[chan bool]chan struct{} // outcome -> closed once answered
	listeners map[int]func(Status)
	nextID    int
}

// NewPrompter returns a Prompter that has not asked yet.
func NewPrompter() *Prompter {
	return &Prompter{
		waiters:   make(map[chan bool]chan struct{}),
		listeners: make(map[int]func(Status)),
	}
}

// Status returns the current prompt status.
func (p *Prompter) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// Waiting returns how many Request calls still wait for an answer.
func (p *Prompter) Waiting() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.waiters)
}

func (p *Prompter) Granted() bool { return p.Status() == StatusGranted }

func (p *Prompter) Request(ctx context.Context) <-chan bool {
	p.mu.Lock()
	switch p.status {
	case StatusGranted, StatusDenied:
		granted := p.status == StatusGranted
		p.mu.Unlock()
		return resolved(granted)
	}

	ch := make(chan bool, 1)
	delivered := make(chan struct{})
	p.waiters[ch] = delivered
	notify := p.status == StatusUnknown
	p.status = StatusPending
	listeners := p.snapshotListeners()
	p.mu.Unlock()

	if notify {
		debug.Info("Camera permission requested")
		for _, fn := range listeners {
			fn(StatusPending)
		}
	}

	go func() {
		select {
		case <-ctx.Done():
			p.abandon(ch)
		case <-delivered:
		}
	}()
	return ch
}

// abandon answers a waiter whose context ended with "not granted".
func (p *Prompter) abandon(ch chan bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delivered, ok := p.waiters[ch]
	if !ok {
		return
	}
	delete(p.waiters, ch)
	ch <- false
	close(ch)
	close(delivered)
}

// Answer records the user's decision and resolves every pending Request.
func (p *Prompter) Answer(granted bool) error {
	p.mu.Lock()
	if p.status != StatusPending {
		p.mu.Unlock()
		return ErrNoPendingRequest
	}
	p.status = StatusDenied
	if granted {
		p.status = StatusGranted
	}
	for ch, delivered := range p.waiters {
		ch <- granted
		close(ch)
		close(delivered)
		delete(p.waiters, ch)
	}
	status := p.status
	listeners := p.snapshotListeners()
	p.mu.Unlock()

	debug.Info("Camera permission %s", status)
	for _, fn := range listeners {
		fn(status)
	}
	return nil
}

// Listen registers fn for status changes and returns an unsubscribe func.
func (p *Prompter) Listen(fn func(Status)) func() {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.nextID
	p.nextID++
	p.listeners[id] = fn
	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.listeners, id)
	}
}

func (p *Prompter) snapshotListeners() []func(Status) {
	out := make([]func(Status), 0, len(p.listeners))
	for _, fn := range p.listeners {
		out = append(out, fn)
	}
	return out
}
