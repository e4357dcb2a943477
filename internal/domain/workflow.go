package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// OperationKind names a user-initiated chain workflow.
type OperationKind string

const (
	OpCreateGroup  OperationKind = "create_group"
	OpJoinGroup    OperationKind = "join_group"
	OpLockGroup    OperationKind = "lock_group"
	OpPlaceBid     OperationKind = "place_bid"
	OpResolveRound OperationKind = "resolve_round"
	OpFaucet       OperationKind = "faucet"
)

// WorkflowStatus is one state of an operation's state machine.
type WorkflowStatus string

const (
	StatusIdle               WorkflowStatus = "idle"
	StatusCheckingAllowance  WorkflowStatus = "checking_allowance"
	StatusApproving          WorkflowStatus = "approving"
	StatusConfirmingApproval WorkflowStatus = "confirming_approval"
	StatusCreating           WorkflowStatus = "creating"
	StatusJoining            WorkflowStatus = "joining"
	StatusLocking            WorkflowStatus = "locking"
	StatusBidding            WorkflowStatus = "bidding"
	StatusResolving          WorkflowStatus = "resolving"
	StatusMinting            WorkflowStatus = "minting"
	StatusConfirmingCreation WorkflowStatus = "confirming_creation"
	StatusSuccess            WorkflowStatus = "success"
	StatusError              WorkflowStatus = "error"
)

// Terminal reports whether no further transitions follow.
func (s WorkflowStatus) Terminal() bool {
	return s == StatusSuccess || s == StatusError
}

// StatusUpdate is one transition of an operation.
type StatusUpdate struct {
	OperationID string         `json:"operation_id"`
	Kind        OperationKind  `json:"kind"`
	Status      WorkflowStatus `json:"status"`
	TxHash      string         `json:"tx_hash,omitempty"`
	Error       string         `json:"error,omitempty"`
	At          time.Time      `json:"at"`
}

// OperationSnapshot is a point-in-time copy of an operation.
type OperationSnapshot struct {
	ID         string         `json:"id"`
	Kind       OperationKind  `json:"kind"`
	Group      common.Address `json:"group"`
	Account    common.Address `json:"account"`
	Status     WorkflowStatus `json:"status"`
	TxHash     string         `json:"tx_hash,omitempty"`
	Error      string         `json:"error,omitempty"`
	History    []StatusUpdate `json:"history"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt *time.Time     `json:"finished_at,omitempty"`
}

// CreateGroupRequest is the input of CreateGroup. Contribution is a decimal
// token amount.
type CreateGroupRequest struct {
	Name         string    `json:"name"`
	Contribution string    `json:"contribution"`
	MemberLimit  int       `json:"member_limit"`
	Frequency    Frequency `json:"frequency"`
	Type         GroupType `json:"type"`
}
