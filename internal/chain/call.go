package chain

import (
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// Call is one contract method invocation.
type Call struct {
	To     common.Address
	ABI    *abi.ABI
	Method string
	Args   []any
}

// NewCall builds a Call against contract to.
func NewCall(to common.Address, contract *abi.ABI, method string, args ...any) Call {
	return Call{To: to, ABI: contract, Method: method, Args: args}
}

// Pack encodes the calldata.
func (c Call) Pack() ([]byte, error) {
	if c.ABI == nil {
		return nil, fmt.Errorf("chain: %s: no abi", c.Method)
	}
	data, err := c.ABI.Pack(c.Method, c.Args...)
	if err != nil {
		return nil, fmt.Errorf("chain: pack %s: %w", c.Method, err)
	}
	return data, nil
}

// Unpack decodes return data for the call's method.
func (c Call) Unpack(data []byte) ([]any, error) {
	vals, err := c.ABI.Unpack(c.Method, data)
	if err != nil {
		return nil, fmt.Errorf("chain: unpack %s: %w", c.Method, err)
	}
	return vals, nil
}

// Result is one element of a batched read. Exactly one of Values and Err is
// meaningful.
type Result struct {
	Values []any
	Err    error
}

// OK reports whether the element succeeded.
func (r Result) OK() bool { return r.Err == nil }

// Value returns the first decoded value as T.
func Value[T any](vals []any) (T, bool) {
	var zero T
	if len(vals) == 0 {
		return zero, false
	}
	v, ok := vals[0].(T)
	if !ok {
		return zero, false
	}
	return v, true
}

// As returns the first value of a successful result as T.
func As[T any](r Result) (T, bool) {
	if r.Err != nil {
		var zero T
		return zero, false
	}
	return Value[T](r.Values)
}
