package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/commitfi/internal/domain"
)

// WorkflowService starts transaction workflows and reports on them. Every
// start call returns as soon as the operation is registered.
type WorkflowService interface {
	CreateGroup(ctx context.Context, req domain.CreateGroupRequest) (domain.OperationSnapshot, error)
	JoinGroup(ctx context.Context, group common.Address) (domain.OperationSnapshot, error)
	LockGroup(ctx context.Context, group common.Address) (domain.OperationSnapshot, error)
	PlaceBid(ctx context.Context, group common.Address, amount string) (domain.OperationSnapshot, error)
	ResolveRound(ctx context.Context, group common.Address) (domain.OperationSnapshot, error)
	Faucet(ctx context.Context) (domain.OperationSnapshot, error)
	Operation(id string) (domain.OperationSnapshot, bool)
	Recent(limit int) []domain.OperationSnapshot
}

// WorkflowHandler serves the write endpoints. Accepted workflows answer 202
// with the operation; clients follow it via GET /api/operations/{id} or the
// ch:operation WebSocket channel.
type WorkflowHandler struct {
	workflows WorkflowService
	logger    *slog.Logger
}

func NewWorkflowHandler(workflows WorkflowService, logger *slog.Logger) *WorkflowHandler {
	return &WorkflowHandler{workflows: workflows, logger: logHandler(logger, "workflow")}
}

func (h *WorkflowHandler) accepted(w http.ResponseWriter, r *http.Request, op string, snap domain.OperationSnapshot, err error) {
	if err != nil {
		writeServiceError(w, r, h.logger, op, err)
		return
	}
	w.Header().Set("Location", "/api/operations/"+snap.ID)
	writeJSON(w, http.StatusAccepted, snap)
}

// CreateGroup starts group creation.
// POST /api/groups
func (h *WorkflowHandler) CreateGroup(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateGroupRequest
	if !decodeBody(w, r, &req) {
		return
	}
	snap, err := h.workflows.CreateGroup(r.Context(), req)
	h.accepted(w, r, "create group", snap, err)
}

// JoinGroup starts a join.
// POST /api/groups/{id}/join
func (h *WorkflowHandler) JoinGroup(w http.ResponseWriter, r *http.Request) {
	id, ok := pathAddress(w, r, "id")
	if !ok {
		return
	}
	snap, err := h.workflows.JoinGroup(r.Context(), id)
	h.accepted(w, r, "join group", snap, err)
}

// LockGroup starts a lock.
// POST /api/groups/{id}/lock
func (h *WorkflowHandler) LockGroup(w http.ResponseWriter, r *http.Request) {
	id, ok := pathAddress(w, r, "id")
	if !ok {
		return
	}
	snap, err := h.workflows.LockGroup(r.Context(), id)
	h.accepted(w, r, "lock group", snap, err)
}

type bidRequest struct {
	Amount string `json:"amount"`
}

// PlaceBid starts a bid.
// POST /api/groups/{id}/bid {"amount":"12.5"}
func (h *WorkflowHandler) PlaceBid(w http.ResponseWriter, r *http.Request) {
	id, ok := pathAddress(w, r, "id")
	if !ok {
		return
	}
	var req bidRequest
	if !decodeBody(w, r, &req) {
		return
	}
	snap, err := h.workflows.PlaceBid(r.Context(), id, req.Amount)
	h.accepted(w, r, "place bid", snap, err)
}

// ResolveRound starts a round resolution.
// POST /api/groups/{id}/resolve
func (h *WorkflowHandler) ResolveRound(w http.ResponseWriter, r *http.Request) {
	id, ok := pathAddress(w, r, "id")
	if !ok {
		return
	}
	snap, err := h.workflows.ResolveRound(r.Context(), id)
	h.accepted(w, r, "resolve round", snap, err)
}

// Faucet mints test tokens to the connected account.
// POST /api/faucet
func (h *WorkflowHandler) Faucet(w http.ResponseWriter, r *http.Request) {
	snap, err := h.workflows.Faucet(r.Context())
	h.accepted(w, r, "faucet", snap, err)
}

// GetOperation returns an operation's current state and history.
// GET /api/operations/{id}
func (h *WorkflowHandler) GetOperation(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.workflows.Operation(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "operation not found")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// ListOperations returns tracked operations, newest first.
// GET /api/operations?limit=20
func (h *WorkflowHandler) ListOperations(w http.ResponseWriter, r *http.Request) {
	ops := h.workflows.Recent(parseLimit(r, 20, 200))
	if ops == nil {
		ops = []domain.OperationSnapshot{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"operations": ops})
}
