package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestShortMessagePrefersRevertReason(t *testing.T) {
	err := fmt.Errorf("workflow: join: %w", &RevertError{Reason: "group full"})
	assert.Equal(t, "group full", ShortMessage(err))
	assert.True(t, errors.Is(err, ErrReverted))
}

func TestShortMessageRPC(t *testing.T) {
	err := fmt.Errorf("chain: send: %w", &RPCError{Method: "eth_sendRawTransaction", Code: -32000, Message: "nonce too low"})
	assert.Equal(t, "nonce too low", ShortMessage(err))
}

func TestShortMessageValidation(t *testing.T) {
	err := Invalid("name", "group name is required")
	assert.Equal(t, "group name is required", ShortMessage(err))
	assert.True(t, errors.Is(err, ErrValidation))
}

func TestShortMessageFallsBack(t *testing.T) {
	assert.Equal(t, "", ShortMessage(nil))
	assert.Equal(t, "boom", ShortMessage(errors.New("boom")))

	bal := fmt.Errorf("workflow: %w", &BalanceError{Have: "5", Need: "10"})
	assert.Equal(t, "insufficient token balance: have 5, need 10", ShortMessage(bal))
	assert.True(t, errors.Is(bal, ErrInsufficientBalance))
}
