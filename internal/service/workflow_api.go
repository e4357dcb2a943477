package service

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/commitfi/internal/domain"
)

// WorkflowAPI exposes the engine to request/response callers that only need
// the state of an operation at the time they ask.
type WorkflowAPI struct {
	engine *WorkflowEngine
}

func NewWorkflowAPI(e *WorkflowEngine) *WorkflowAPI { return &WorkflowAPI{engine: e} }

func snapshot(op *Operation, err error) (domain.OperationSnapshot, error) {
	if err != nil {
		return domain.OperationSnapshot{}, err
	}
	return op.Snapshot(), nil
}

func (a *WorkflowAPI) CreateGroup(ctx context.Context, req domain.CreateGroupRequest) (domain.OperationSnapshot, error) {
	return snapshot(a.engine.CreateGroup(ctx, req))
}

func (a *WorkflowAPI) JoinGroup(ctx context.Context, group common.Address) (domain.OperationSnapshot, error) {
	return snapshot(a.engine.JoinGroup(ctx, group))
}

func (a *WorkflowAPI) LockGroup(ctx context.Context, group common.Address) (domain.OperationSnapshot, error) {
	return snapshot(a.engine.LockGroup(ctx, group))
}

func (a *WorkflowAPI) PlaceBid(ctx context.Context, group common.Address, amount string) (domain.OperationSnapshot, error) {
	return snapshot(a.engine.PlaceBid(ctx, group, amount))
}

func (a *WorkflowAPI) ResolveRound(ctx context.Context, group common.Address) (domain.OperationSnapshot, error) {
	return snapshot(a.engine.ResolveRound(ctx, group))
}

func (a *WorkflowAPI) Faucet(ctx context.Context) (domain.OperationSnapshot, error) {
	return snapshot(a.engine.Faucet(ctx))
}

// Operation looks up a tracked operation.
func (a *WorkflowAPI) Operation(id string) (domain.OperationSnapshot, bool) {
	op, ok := a.engine.Operations().Get(id)
	if !ok {
		return domain.OperationSnapshot{}, false
	}
	return op.Snapshot(), true
}

// Recent lists up to limit tracked operations, newest first.
func (a *WorkflowAPI) Recent(limit int) []domain.OperationSnapshot {
	ops := a.engine.Operations().List()
	if limit > 0 && len(ops) > limit {
		ops = ops[:limit]
	}
	out := make([]domain.OperationSnapshot, len(ops))
	for i, op := range ops {
		out[i] = op.Snapshot()
	}
	return out
}
