package service

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/commitfi/internal/chain"
	"github.com/alanyoungcy/commitfi/internal/domain"
	"github.com/alanyoungcy/commitfi/internal/metrics"
	"github.com/alanyoungcy/commitfi/internal/platform/commitfi"
)

// WorkflowChain is the adapter surface the engine drives.
type WorkflowChain interface {
	ContractReader
	ContractWriter
	Wallet
}

// WorkflowConfig parameterises the engine.
type WorkflowConfig struct {
	Factory      common.Address
	Token        common.Address
	MaxTracked   int
	FaucetAmount string
}

// WorkflowEngine runs the approve-then-act transaction sequences. Every call
// validates synchronously and returns an *Operation whose steps run on their
// own goroutine.
type WorkflowEngine struct {
	chain     WorkflowChain
	factory   commitfi.Factory
	token     commitfi.Token
	allowance *AllowanceWaiter
	ops       *Operations
	bus       domain.SignalBus
	notifier  EventNotifier
	faucet    *big.Int
	logger    *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWorkflowEngine creates an engine. bus and notifier may be nil.
func NewWorkflowEngine(
	c WorkflowChain,
	allowance *AllowanceWaiter,
	bus domain.SignalBus,
	notifier EventNotifier,
	cfg WorkflowConfig,
	logger *slog.Logger,
) (*WorkflowEngine, error) {
	faucet := cfg.FaucetAmount
	if faucet == "" {
		faucet = "1000"
	}
	amount, err := domain.ToBaseUnits(faucet)
	if err != nil {
		return nil, fmt.Errorf("workflow: faucet amount: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &WorkflowEngine{
		chain:     c,
		factory:   commitfi.Factory{Address: cfg.Factory},
		token:     commitfi.Token{Address: cfg.Token},
		allowance: allowance,
		ops:       NewOperations(cfg.MaxTracked),
		bus:       bus,
		notifier:  notifier,
		faucet:    amount,
		logger:    logger.With(slog.String("component", "workflow")),
		ctx:       ctx,
		cancel:    cancel,
	}, nil
}

// Operations exposes the registry of tracked operations.
func (e *WorkflowEngine) Operations() *Operations { return e.ops }

// Close cancels running operations and waits for their goroutines.
func (e *WorkflowEngine) Close() {
	e.cancel()
	e.wg.Wait()
}

func (e *WorkflowEngine) account() (common.Address, error) {
	addr, ok := e.chain.Account()
	if !ok {
		return common.Address{}, fmt.Errorf("workflow: %w", domain.ErrWalletNotConnected)
	}
	return addr, nil
}

// CreateGroup validates req and starts the create workflow against the
// factory.
func (e *WorkflowEngine) CreateGroup(ctx context.Context, req domain.CreateGroupRequest) (*Operation, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.Invalid("name", "group name is required")
	}
	amount, err := positiveAmount("contribution", req.Contribution)
	if err != nil {
		return nil, err
	}
	if req.MemberLimit <= 1 {
		return nil, domain.Invalid("member_limit", "member limit must be greater than 1")
	}
	freq := req.Frequency
	if freq == "" {
		freq = domain.FrequencyWeekly
	} else if f, ok := domain.ParseFrequency(string(freq)); ok {
		freq = f
	} else {
		return nil, domain.Invalid("frequency", fmt.Sprintf("unknown frequency %q", req.Frequency))
	}
	groupType := req.Type
	if groupType == "" {
		groupType = domain.GroupStandard
	} else if t, ok := domain.ParseGroupType(string(groupType)); ok {
		groupType = t
	} else {
		return nil, domain.Invalid("type", fmt.Sprintf("unknown group type %q", req.Type))
	}
	owner, err := e.account()
	if err != nil {
		return nil, err
	}

	call := e.factory.CreateGroup(name, e.token.Address, amount, req.MemberLimit,
		uint8(freq.Ordinal()), groupType.ContractCode())

	return e.start(ctx, domain.OpCreateGroup, e.factory.Address, owner, func(ctx context.Context, op *Operation) error {
		op.transition(domain.StatusCheckingAllowance)
		have, err := readAllowance(ctx, e.chain, e.token, owner, e.factory.Address)
		if err != nil {
			return fmt.Errorf("workflow: read allowance: %w: %w", domain.ErrReadFailed, err)
		}
		if err := e.approveIfShort(ctx, op, have, e.factory.Address, amount, false); err != nil {
			return err
		}
		return e.sendAndConfirm(ctx, op, domain.StatusCreating, call)
	}), nil
}

// JoinGroup starts the join workflow: read the group's contribution and the
// account's balance and allowance, approve exactly the contribution when
// short, wait for the allowance to become visible, then join.
func (e *WorkflowEngine) JoinGroup(ctx context.Context, group common.Address) (*Operation, error) {
	if group == (common.Address{}) {
		return nil, domain.Invalid("group", "group address is required")
	}
	owner, err := e.account()
	if err != nil {
		return nil, err
	}
	g := commitfi.Group{Address: group}

	return e.start(ctx, domain.OpJoinGroup, group, owner, func(ctx context.Context, op *Operation) error {
		op.transition(domain.StatusCheckingAllowance)

		results, err := e.chain.ReadMany(ctx, []chain.Call{
			g.Field("contribution"),
			g.Field("groupStatus"),
			g.Field("getMembers"),
			e.token.BalanceOf(owner),
			e.token.Allowance(owner, group),
		})
		if err != nil {
			return fmt.Errorf("workflow: read join state: %w: %w", domain.ErrReadFailed, err)
		}
		contribution, err := bigResult(results[0], "contribution")
		if err != nil {
			return err
		}
		balance, err := bigResult(results[3], "balance")
		if err != nil {
			return err
		}
		allowance, err := bigResult(results[4], "allowance")
		if err != nil {
			return err
		}
		statusCode, _ := chain.As[uint8](results[1])
		members, _ := chain.As[[]common.Address](results[2])
		e.logger.DebugContext(ctx, "workflow: join state",
			slog.String("operation", op.ID()),
			slog.String("group", group.Hex()),
			slog.Int("group_status", int(statusCode)),
			slog.Int("members", len(members)),
			slog.String("contribution", contribution.String()),
			slog.String("balance", balance.String()),
			slog.String("allowance", allowance.String()),
		)

		if balance.Cmp(contribution) < 0 {
			return &domain.BalanceError{Have: domain.FromBaseUnits(balance), Need: domain.FromBaseUnits(contribution)}
		}
		if err := e.approveIfShort(ctx, op, allowance, group, contribution, true); err != nil {
			return err
		}
		return e.sendAndConfirm(ctx, op, domain.StatusJoining, g.Join())
	}), nil
}

// LockGroup starts the lock workflow. No approval is involved.
func (e *WorkflowEngine) LockGroup(ctx context.Context, group common.Address) (*Operation, error) {
	return e.simple(ctx, domain.OpLockGroup, group, domain.StatusLocking, commitfi.Group{Address: group}.Lock())
}

// ResolveRound starts the resolve workflow. It is never gated on the locally
// derived ENDED state; the contract alone decides whether the round can end.
func (e *WorkflowEngine) ResolveRound(ctx context.Context, group common.Address) (*Operation, error) {
	return e.simple(ctx, domain.OpResolveRound, group, domain.StatusResolving, commitfi.Group{Address: group}.ResolveRound())
}

// PlaceBid starts the bid workflow with an allowance check scoped to the bid
// amount against the group contract.
func (e *WorkflowEngine) PlaceBid(ctx context.Context, group common.Address, amount string) (*Operation, error) {
	if group == (common.Address{}) {
		return nil, domain.Invalid("group", "group address is required")
	}
	bid, err := positiveAmount("amount", amount)
	if err != nil {
		return nil, err
	}
	owner, err := e.account()
	if err != nil {
		return nil, err
	}
	g := commitfi.Group{Address: group}

	return e.start(ctx, domain.OpPlaceBid, group, owner, func(ctx context.Context, op *Operation) error {
		op.transition(domain.StatusCheckingAllowance)
		have, err := readAllowance(ctx, e.chain, e.token, owner, group)
		if err != nil {
			return fmt.Errorf("workflow: read allowance: %w: %w", domain.ErrReadFailed, err)
		}
		if err := e.approveIfShort(ctx, op, have, group, bid, false); err != nil {
			return err
		}
		return e.sendAndConfirm(ctx, op, domain.StatusBidding, g.Bid(bid))
	}), nil
}

// Faucet mints the configured amount of test tokens to the account.
func (e *WorkflowEngine) Faucet(ctx context.Context) (*Operation, error) {
	owner, err := e.account()
	if err != nil {
		return nil, err
	}
	call := e.token.Mint(owner, e.faucet)
	return e.start(ctx, domain.OpFaucet, e.token.Address, owner, func(ctx context.Context, op *Operation) error {
		return e.sendAndConfirm(ctx, op, domain.StatusMinting, call)
	}), nil
}

func (e *WorkflowEngine) simple(ctx context.Context, kind domain.OperationKind, group common.Address, status domain.WorkflowStatus, call chain.Call) (*Operation, error) {
	if group == (common.Address{}) {
		return nil, domain.Invalid("group", "group address is required")
	}
	owner, err := e.account()
	if err != nil {
		return nil, err
	}
	return e.start(ctx, kind, group, owner, func(ctx context.Context, op *Operation) error {
		return e.sendAndConfirm(ctx, op, status, call)
	}), nil
}

// approveIfShort approves exactly need for spender when have is below it.
// With converge set it then waits for the allowance to be readable.
func (e *WorkflowEngine) approveIfShort(ctx context.Context, op *Operation, have *big.Int, spender common.Address, need *big.Int, converge bool) error {
	if have.Cmp(need) >= 0 {
		return nil
	}
	op.transition(domain.StatusApproving)
	hash, err := e.chain.Send(ctx, e.token.Approve(spender, need))
	if err != nil {
		return fmt.Errorf("workflow: approve: %w", err)
	}
	op.setTx(hash)
	op.transition(domain.StatusConfirmingApproval)
	if _, err := e.chain.AwaitInclusion(ctx, hash); err != nil {
		return fmt.Errorf("workflow: approval: %w", err)
	}
	e.logger.InfoContext(ctx, "workflow: approval confirmed",
		slog.String("operation", op.ID()),
		slog.String("spender", spender.Hex()),
		slog.String("amount", need.String()),
	)
	if !converge {
		return nil
	}
	attempts, err := e.allowance.Wait(ctx, op.account, spender, need)
	if err != nil {
		return fmt.Errorf("workflow: %w", err)
	}
	e.logger.DebugContext(ctx, "workflow: allowance visible",
		slog.String("operation", op.ID()),
		slog.Int("attempts", attempts),
	)
	return nil
}

func (e *WorkflowEngine) sendAndConfirm(ctx context.Context, op *Operation, status domain.WorkflowStatus, call chain.Call) error {
	op.transition(status)
	hash, err := e.chain.Send(ctx, call)
	if err != nil {
		return fmt.Errorf("workflow: %s: %w", call.Method, err)
	}
	op.setTx(hash)
	op.transition(domain.StatusConfirmingCreation)
	if _, err := e.chain.AwaitInclusion(ctx, hash); err != nil {
		return fmt.Errorf("workflow: %s: %w", call.Method, err)
	}
	return nil
}

// start registers an operation and runs steps on a goroutine bound to the
// engine's lifetime rather than the request that started it.
func (e *WorkflowEngine) start(ctx context.Context, kind domain.OperationKind, group, account common.Address, steps func(context.Context, *Operation) error) *Operation {
	op := newOperation(kind, group, account)
	op.onUpdate = e.publish
	e.ops.add(op)
	op.transition(domain.StatusIdle)

	e.logger.InfoContext(ctx, "workflow: operation started",
		slog.String("operation", op.ID()),
		slog.String("kind", string(kind)),
		slog.String("group", group.Hex()),
	)

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		err := steps(e.ctx, op)
		op.finish(err)
		e.complete(op, err)
	}()
	return op
}

func (e *WorkflowEngine) complete(op *Operation, err error) {
	snap := op.Snapshot()
	outcome := "success"
	event := domain.EventOperationSucceeded
	if err != nil {
		outcome = "error"
		event = domain.EventOperationFailed
	}
	metrics.OperationsTotal.WithLabelValues(string(op.kind), outcome).Inc()
	metrics.OperationDuration.WithLabelValues(string(op.kind)).Observe(time.Since(snap.StartedAt).Seconds())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	attrs := []any{
		slog.String("operation", op.ID()),
		slog.String("kind", string(op.kind)),
		slog.String("group", op.group.Hex()),
		slog.String("tx", snap.TxHash),
	}
	if err != nil {
		e.logger.WarnContext(ctx, "workflow: operation failed", append(attrs, slog.String("error", err.Error()))...)
	} else {
		e.logger.InfoContext(ctx, "workflow: operation succeeded", attrs...)
	}

	if e.bus != nil {
		if payload, merr := domain.NewEvent(event, domain.StreamActivity, snap); merr == nil {
			if serr := e.bus.StreamAppend(ctx, domain.StreamActivity, payload); serr != nil {
				e.logger.WarnContext(ctx, "workflow: activity append failed", slog.String("error", serr.Error()))
			}
		}
	}
	if e.notifier != nil {
		title := fmt.Sprintf("%s %s", op.kind, outcome)
		msg := fmt.Sprintf("group %s", op.group.Hex())
		if snap.TxHash != "" {
			msg += "\ntx " + snap.TxHash
		}
		if snap.Error != "" {
			msg += "\nerror: " + snap.Error
		}
		if nerr := e.notifier.Notify(ctx, event, title, msg); nerr != nil {
			e.logger.WarnContext(ctx, "workflow: notify failed", slog.String("error", nerr.Error()))
		}
	}
}

func (e *WorkflowEngine) publish(op *Operation, u domain.StatusUpdate) {
	if e.bus == nil {
		return
	}
	payload, err := domain.NewEvent(domain.EventOperationStatus, domain.ChannelOperations, u)
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := e.bus.Publish(ctx, domain.ChannelOperations, payload); err != nil {
		e.logger.DebugContext(ctx, "workflow: publish failed",
			slog.String("operation", op.ID()),
			slog.String("error", err.Error()),
		)
	}
}

func positiveAmount(field, s string) (*big.Int, error) {
	v, err := domain.ToBaseUnits(s)
	if err != nil {
		return nil, domain.Invalid(field, fmt.Sprintf("%s: %v", field, err))
	}
	if v.Sign() <= 0 {
		return nil, domain.Invalid(field, field+" must be greater than 0")
	}
	return v, nil
}

func bigResult(r chain.Result, what string) (*big.Int, error) {
	if r.Err != nil {
		return nil, fmt.Errorf("workflow: read %s: %w: %w", what, domain.ErrReadFailed, r.Err)
	}
	v, ok := chain.As[*big.Int](r)
	if !ok {
		return nil, fmt.Errorf("workflow: read %s: %w", what, domain.ErrReadFailed)
	}
	return v, nil
}
