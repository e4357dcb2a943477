package service

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/alanyoungcy/commitfi/internal/chain"
)

// ContractReader is the read half of the contract surface.
type ContractReader interface {
	ReadOne(ctx context.Context, call chain.Call) ([]any, error)
	ReadMany(ctx context.Context, calls []chain.Call) ([]chain.Result, error)
}

// ContractWriter sends transactions and waits for them.
type ContractWriter interface {
	Send(ctx context.Context, call chain.Call) (common.Hash, error)
	AwaitInclusion(ctx context.Context, hash common.Hash) (*types.Receipt, error)
}

// Wallet reports the connected account.
type Wallet interface {
	Account() (common.Address, bool)
}

// LogWatcher streams contract logs.
type LogWatcher interface {
	WatchLogs(ctx context.Context, address common.Address, topics []common.Hash) (<-chan types.Log, error)
}

// Chain is everything the services need from the adapter; *chain.Client
// satisfies it.
type Chain interface {
	ContractReader
	ContractWriter
	Wallet
	LogWatcher
}

// EventNotifier forwards noteworthy events to operators.
type EventNotifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

var _ Chain = (*chain.Client)(nil)
