package handler

import (
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// AccountSource reports the connected account.
type AccountSource interface {
	Account() (common.Address, bool)
}

// StatusHandler serves the backend status for the dashboard.
type StatusHandler struct {
	Mode      string
	ChainID   int64
	Factory   common.Address
	Token     common.Address
	Wallet    AccountSource
	StartedAt time.Time
}

// GetStatus responds with the mode, network, contracts and connected account.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"mode":           h.Mode,
		"chain_id":       h.ChainID,
		"factory":        h.Factory,
		"token":          h.Token,
		"account":        nil,
		"uptime_seconds": int64(time.Since(h.StartedAt).Seconds()),
	}
	if h.Wallet != nil {
		if addr, ok := h.Wallet.Account(); ok {
			body["account"] = addr
		}
	}
	writeJSON(w, http.StatusOK, body)
}
