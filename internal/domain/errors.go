package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrRateLimited         = errors.New("rate limited")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrValidation          = errors.New("invalid input")
	ErrWalletNotConnected  = errors.New("wallet not connected")
	ErrSigningFailed       = errors.New("signing failed")
	ErrReadFailed          = errors.New("contract read failed")
	ErrReverted            = errors.New("execution reverted")
	ErrInclusionTimeout    = errors.New("transaction not included in time")
	ErrAllowanceNotVisible = errors.New("approval confirmed but allowance not yet visible")
	ErrInsufficientBalance = errors.New("insufficient token balance")
	ErrNotAuction          = errors.New("group is not an auction group")
	ErrLockHeld            = errors.New("lock already held")
)

// ValidationError reports a rejected input field. It unwraps to ErrValidation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// Invalid is shorthand for constructing a *ValidationError.
func Invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// RevertError carries the decoded reason of a reverted call or transaction.
type RevertError struct {
	Reason string
	Data   []byte
}

func (e *RevertError) Error() string {
	if e.Reason == "" {
		return ErrReverted.Error()
	}
	return fmt.Sprintf("%s: %s", ErrReverted.Error(), e.Reason)
}

func (e *RevertError) Unwrap() error { return ErrReverted }

// RPCError is a node-side failure with the node's own short message.
type RPCError struct {
	Method  string
	Code    int
	Message string
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc %s: %s (code %d)", e.Method, e.Message, e.Code)
}

// ShortMessage returns the most specific human-readable text available for
// err: a revert reason, then an RPC message, then the validation reason, then
// the innermost wrapped message.
func ShortMessage(err error) string {
	if err == nil {
		return ""
	}
	var rev *RevertError
	if errors.As(err, &rev) && rev.Reason != "" {
		return rev.Reason
	}
	var rpcErr *RPCError
	if errors.As(err, &rpcErr) && rpcErr.Message != "" {
		return rpcErr.Message
	}
	var valErr *ValidationError
	if errors.As(err, &valErr) {
		return valErr.Reason
	}
	var balErr *BalanceError
	if errors.As(err, &balErr) {
		return balErr.Error()
	}
	if errors.Is(err, ErrAllowanceNotVisible) {
		return ErrAllowanceNotVisible.Error()
	}
	return err.Error()
}

// BalanceError reports a token balance below what an action needs.
type BalanceError struct {
	Have string
	Need string
}

func (e *BalanceError) Error() string {
	return fmt.Sprintf("insufficient token balance: have %s, need %s", e.Have, e.Need)
}

func (e *BalanceError) Unwrap() error { return ErrInsufficientBalance }
