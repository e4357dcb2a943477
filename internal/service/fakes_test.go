package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/alanyoungcy/commitfi/internal/chain"
	"github.com/alanyoungcy/commitfi/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func addr(n int64) common.Address {
	return common.BigToAddress(big.NewInt(n))
}

type callKey struct {
	to     common.Address
	method string
}

// fakeChain answers reads from a table keyed by (address, method); anything
// missing reverts like a function the contract does not have.
type fakeChain struct {
	mu       sync.Mutex
	account  *common.Address
	answers  map[callKey]func(args []any) ([]any, error)
	reads    []chain.Call
	batches  int
	sent     []chain.Call
	sendErr  map[string]error
	awaitErr map[string]error
	byHash   map[common.Hash]string
	logs     chan types.Log
	watchCtx context.Context
}

func newFakeChain() *fakeChain {
	return &fakeChain{
		answers:  make(map[callKey]func([]any) ([]any, error)),
		sendErr:  make(map[string]error),
		awaitErr: make(map[string]error),
		byHash:   make(map[common.Hash]string),
	}
}

func (f *fakeChain) connect(a common.Address) { f.account = &a }

func (f *fakeChain) set(to common.Address, method string, vals ...any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answers[callKey{to, method}] = func([]any) ([]any, error) { return vals, nil }
}

func (f *fakeChain) setFunc(to common.Address, method string, fn func(args []any) ([]any, error)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answers[callKey{to, method}] = fn
}

func (f *fakeChain) answer(c chain.Call) ([]any, error) {
	f.mu.Lock()
	f.reads = append(f.reads, c)
	fn, ok := f.answers[callKey{c.To, c.Method}]
	f.mu.Unlock()
	if !ok {
		return nil, &domain.RevertError{}
	}
	return fn(c.Args)
}

func (f *fakeChain) ReadOne(_ context.Context, c chain.Call) ([]any, error) {
	return f.answer(c)
}

func (f *fakeChain) ReadMany(_ context.Context, calls []chain.Call) ([]chain.Result, error) {
	f.mu.Lock()
	f.batches++
	f.mu.Unlock()
	out := make([]chain.Result, len(calls))
	for i, c := range calls {
		vals, err := f.answer(c)
		out[i] = chain.Result{Values: vals, Err: err}
	}
	return out, nil
}

func (f *fakeChain) readCount(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.reads {
		if c.Method == method {
			n++
		}
	}
	return n
}

func (f *fakeChain) sentMethods() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.sent))
	for i, c := range f.sent {
		out[i] = c.Method
	}
	return out
}

func (f *fakeChain) Send(_ context.Context, c chain.Call) (common.Hash, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.sendErr[c.Method]; err != nil {
		return common.Hash{}, err
	}
	f.sent = append(f.sent, c)
	h := common.BigToHash(big.NewInt(int64(len(f.sent))))
	f.byHash[h] = c.Method
	return h, nil
}

func (f *fakeChain) AwaitInclusion(_ context.Context, h common.Hash) (*types.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	method, ok := f.byHash[h]
	if !ok {
		return nil, errors.New("unknown tx")
	}
	if err := f.awaitErr[method]; err != nil {
		return &types.Receipt{Status: types.ReceiptStatusFailed}, err
	}
	return &types.Receipt{Status: types.ReceiptStatusSuccessful, TxHash: h}, nil
}

func (f *fakeChain) Account() (common.Address, bool) {
	if f.account == nil {
		return common.Address{}, false
	}
	return *f.account, true
}

func (f *fakeChain) WatchLogs(ctx context.Context, _ common.Address, _ []common.Hash) (<-chan types.Log, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.watchCtx = ctx
	if f.logs == nil {
		f.logs = make(chan types.Log, 4)
	}
	return f.logs, nil
}

// recordingBus keeps published payloads in memory.
type recordingBus struct {
	mu        sync.Mutex
	published map[string][][]byte
	streams   map[string][][]byte
}

func newRecordingBus() *recordingBus {
	return &recordingBus{published: map[string][][]byte{}, streams: map[string][][]byte{}}
}

func (b *recordingBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published[channel] = append(b.published[channel], payload)
	return nil
}

func (b *recordingBus) Subscribe(context.Context, string) (<-chan []byte, error) {
	return make(chan []byte), nil
}

func (b *recordingBus) StreamAppend(_ context.Context, stream string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.streams[stream] = append(b.streams[stream], payload)
	return nil
}

func (b *recordingBus) StreamRead(context.Context, string, string, int) ([]domain.StreamMessage, error) {
	return nil, nil
}

func (b *recordingBus) StreamTail(context.Context, string, int) ([]domain.StreamMessage, error) {
	return nil, nil
}

func (b *recordingBus) count(channel string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.published[channel])
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []string
}

func (n *recordingNotifier) Notify(_ context.Context, event, _, _ string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return nil
}

func (n *recordingNotifier) Events() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.events...)
}
