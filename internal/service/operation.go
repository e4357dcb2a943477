package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/alanyoungcy/commitfi/internal/domain"
)

const updateBuffer = 16

// Operation is the handle of one workflow invocation. Each invocation owns
// its status, error and history; concurrent operations never share them.
type Operation struct {
	id      string
	kind    domain.OperationKind
	group   common.Address
	account common.Address

	mu         sync.Mutex
	status     domain.WorkflowStatus
	err        error
	txHash     common.Hash
	history    []domain.StatusUpdate
	startedAt  time.Time
	finishedAt time.Time

	updates  chan domain.StatusUpdate
	done     chan struct{}
	onUpdate func(*Operation, domain.StatusUpdate)
}

func newOperation(kind domain.OperationKind, group, account common.Address) *Operation {
	return &Operation{
		id:        uuid.NewString(),
		kind:      kind,
		group:     group,
		account:   account,
		status:    domain.StatusIdle,
		startedAt: time.Now().UTC(),
		updates:   make(chan domain.StatusUpdate, updateBuffer),
		done:      make(chan struct{}),
	}
}

func (o *Operation) ID() string                 { return o.id }
func (o *Operation) Kind() domain.OperationKind { return o.kind }
func (o *Operation) Group() common.Address      { return o.group }

func (o *Operation) Status() domain.WorkflowStatus {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.status
}

// Err is the terminal error, nil unless Status is error.
func (o *Operation) Err() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.err
}

// TxHash is the most recent transaction the operation sent.
func (o *Operation) TxHash() common.Hash {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.txHash
}

// History returns every transition so far, starting with idle.
func (o *Operation) History() []domain.StatusUpdate {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]domain.StatusUpdate(nil), o.history...)
}

// Updates streams transitions and closes after the terminal one. A consumer
// that falls behind by more than the buffer misses updates; History keeps
// them all.
func (o *Operation) Updates() <-chan domain.StatusUpdate { return o.updates }

// Done is closed once the operation reaches success or error.
func (o *Operation) Done() <-chan struct{} { return o.done }

// Wait blocks until the operation finishes and returns its error.
func (o *Operation) Wait(ctx context.Context) error {
	select {
	case <-o.done:
		return o.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Snapshot copies the operation's state.
func (o *Operation) Snapshot() domain.OperationSnapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	snap := domain.OperationSnapshot{
		ID:        o.id,
		Kind:      o.kind,
		Group:     o.group,
		Account:   o.account,
		Status:    o.status,
		History:   append([]domain.StatusUpdate(nil), o.history...),
		StartedAt: o.startedAt,
	}
	if o.txHash != (common.Hash{}) {
		snap.TxHash = o.txHash.Hex()
	}
	if o.err != nil {
		snap.Error = domain.ShortMessage(o.err)
	}
	if !o.finishedAt.IsZero() {
		t := o.finishedAt
		snap.FinishedAt = &t
	}
	return snap
}

func (o *Operation) setTx(hash common.Hash) {
	o.mu.Lock()
	o.txHash = hash
	o.mu.Unlock()
}

func (o *Operation) transition(status domain.WorkflowStatus) {
	o.record(status, nil)
}

// finish moves to success (err nil) or error and closes the streams.
func (o *Operation) finish(err error) {
	if err != nil {
		o.record(domain.StatusError, err)
	} else {
		o.record(domain.StatusSuccess, nil)
	}
	close(o.updates)
	close(o.done)
}

func (o *Operation) record(status domain.WorkflowStatus, err error) {
	o.mu.Lock()
	o.status = status
	u := domain.StatusUpdate{
		OperationID: o.id,
		Kind:        o.kind,
		Status:      status,
		At:          time.Now().UTC(),
	}
	if o.txHash != (common.Hash{}) {
		u.TxHash = o.txHash.Hex()
	}
	if err != nil {
		o.err = err
		u.Error = domain.ShortMessage(err)
	}
	if status.Terminal() {
		o.finishedAt = u.At
	}
	o.history = append(o.history, u)
	o.mu.Unlock()

	select {
	case o.updates <- u:
	default:
	}
	if o.onUpdate != nil {
		o.onUpdate(o, u)
	}
}

func (o *Operation) finished() bool {
	select {
	case <-o.done:
		return true
	default:
		return false
	}
}

// Operations tracks recent operations for lookup by ID. Past maxTracked the
// oldest finished operations are forgotten; running ones are always kept.
type Operations struct {
	mu         sync.Mutex
	ops        map[string]*Operation
	maxTracked int
}

func NewOperations(maxTracked int) *Operations {
	if maxTracked <= 0 {
		maxTracked = 256
	}
	return &Operations{ops: make(map[string]*Operation), maxTracked: maxTracked}
}

func (r *Operations) add(op *Operation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops[op.id] = op
	r.evictLocked()
}

func (r *Operations) evictLocked() {
	over := len(r.ops) - r.maxTracked
	if over <= 0 {
		return
	}
	var done []*Operation
	for _, op := range r.ops {
		if op.finished() {
			done = append(done, op)
		}
	}
	sort.Slice(done, func(i, j int) bool { return done[i].startedAt.Before(done[j].startedAt) })
	for i := 0; i < over && i < len(done); i++ {
		delete(r.ops, done[i].id)
	}
}

// Get returns the operation with id.
func (r *Operations) Get(id string) (*Operation, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	op, ok := r.ops[id]
	return op, ok
}

// List returns tracked operations, newest first.
func (r *Operations) List() []*Operation {
	r.mu.Lock()
	out := make([]*Operation, 0, len(r.ops))
	for _, op := range r.ops {
		out = append(out, op)
	}
	r.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].startedAt.After(out[j].startedAt) })
	return out
}

// Len is the number of tracked operations.
func (r *Operations) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.ops)
}
