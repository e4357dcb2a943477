package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/commitfi/internal/bus/memory"
	"github.com/alanyoungcy/commitfi/internal/domain"
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func addr(n int64) common.Address { return common.BigToAddress(big.NewInt(n)) }

func usd(n int64) domain.Amount { return domain.NewAmount(big.NewInt(n * 1_000_000)) }

type stubGroups struct {
	groups []domain.Group
	err    error
	stats  domain.DashboardStats
}

func (s *stubGroups) ListGroups(context.Context) ([]domain.Group, error) {
	return s.groups, s.err
}

func (s *stubGroups) GetGroup(_ context.Context, id common.Address) (domain.Group, error) {
	if s.err != nil {
		return domain.Group{}, s.err
	}
	for _, g := range s.groups {
		if g.ID == id {
			return g, nil
		}
	}
	return domain.Group{}, domain.ErrNotFound
}

func (s *stubGroups) ListForMember(_ context.Context, a common.Address) (domain.MemberGroups, error) {
	var mg domain.MemberGroups
	for _, g := range s.groups {
		if g.HasMember(a) {
			mg.Ongoing = append(mg.Ongoing, g)
		}
	}
	return mg, s.err
}

func (s *stubGroups) Stats(context.Context, common.Address) (domain.DashboardStats, error) {
	return s.stats, s.err
}

type stubAuctions struct{ calls int }

func (s *stubAuctions) Snapshot(_ context.Context, g common.Address) (domain.AuctionState, error) {
	s.calls++
	return domain.AuctionState{Group: g, HighestBid: usd(5), Status: domain.AuctionLive}, nil
}

func sampleGroups() []domain.Group {
	return []domain.Group{
		{ID: addr(1), Name: "Rent Circle", Type: domain.GroupStandard, Contribution: usd(100), MemberLimit: 5, MemberCount: 2, Status: domain.GroupRecruiting, Members: []common.Address{addr(0xa)}},
		{ID: addr(2), Name: "Bid Club", Type: domain.GroupAuction, Contribution: usd(50), MemberLimit: 4, MemberCount: 4, Status: domain.GroupActive, TotalRounds: 4, CurrentCycle: 1},
	}
}

func do(h http.HandlerFunc, method, pattern, target, body string) *httptest.ResponseRecorder {
	mux := http.NewServeMux()
	mux.HandleFunc(method+" "+pattern, h)
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestListGroupsFiltersByQuery(t *testing.T) {
	h := NewGroupHandler(&stubGroups{groups: sampleGroups()}, &stubAuctions{}, discard())

	rec := do(h.ListGroups, "GET", "/api/groups", "/api/groups?type=auction", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[struct {
		Groups []struct {
			Name      string  `json:"name"`
			OpenSpots int     `json:"open_spots"`
			Progress  float64 `json:"progress"`
		} `json:"groups"`
		Total int `json:"total"`
	}](t, rec)
	require.Len(t, body.Groups, 1)
	assert.Equal(t, 1, body.Total)
	assert.Equal(t, "Bid Club", body.Groups[0].Name)
	assert.Equal(t, 0, body.Groups[0].OpenSpots)
	assert.Equal(t, 25.0, body.Groups[0].Progress)

	rec = do(h.ListGroups, "GET", "/api/groups", "/api/groups?open_spots=true", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Rent Circle")
	assert.NotContains(t, rec.Body.String(), "Bid Club")
}

func TestListGroupsRejectsBadQuery(t *testing.T) {
	h := NewGroupHandler(&stubGroups{groups: sampleGroups()}, &stubAuctions{}, discard())
	for _, q := range []string{"sort=random", "size=huge", "type=lottery", "active=maybe", "min_contribution=abc"} {
		rec := do(h.ListGroups, "GET", "/api/groups", "/api/groups?"+q, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
	}
}

func TestListGroupsUpstreamFailure(t *testing.T) {
	h := NewGroupHandler(&stubGroups{err: &domain.RPCError{Method: "eth_call", Code: -32000, Message: "boom"}}, &stubAuctions{}, discard())
	rec := do(h.ListGroups, "GET", "/api/groups", "/api/groups", "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.JSONEq(t, `{"error":"boom"}`, rec.Body.String())
}

func TestGetGroup(t *testing.T) {
	h := NewGroupHandler(&stubGroups{groups: sampleGroups()}, &stubAuctions{}, discard())

	rec := do(h.GetGroup, "GET", "/api/groups/{id}", "/api/groups/"+addr(1).Hex(), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"open_spots":3`)

	rec = do(h.GetGroup, "GET", "/api/groups/{id}", "/api/groups/not-an-address", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(h.GetGroup, "GET", "/api/groups/{id}", "/api/groups/"+addr(9).Hex(), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetAuctionOnlyForAuctionGroups(t *testing.T) {
	auctions := &stubAuctions{}
	h := NewGroupHandler(&stubGroups{groups: sampleGroups()}, auctions, discard())

	rec := do(h.GetAuction, "GET", "/api/groups/{id}/auction", "/api/groups/"+addr(1).Hex()+"/auction", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Zero(t, auctions.calls)

	rec = do(h.GetAuction, "GET", "/api/groups/{id}/auction", "/api/groups/"+addr(2).Hex()+"/auction", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, auctions.calls)
	assert.Contains(t, rec.Body.String(), `"status":"LIVE"`)
}

func TestListForMemberAndStats(t *testing.T) {
	groups := &stubGroups{groups: sampleGroups(), stats: domain.DashboardStats{TotalGroups: 2, MyGroups: 1}}
	h := NewGroupHandler(groups, &stubAuctions{}, discard())

	rec := do(h.ListForMember, "GET", "/api/accounts/{address}/groups", "/api/accounts/"+addr(0xa).Hex()+"/groups", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string][]json.RawMessage](t, rec)
	assert.Len(t, body["ongoing"], 1)
	assert.Empty(t, body["completed"])

	rec = do(h.Stats, "GET", "/api/accounts/{address}/stats", "/api/accounts/"+addr(0xa).Hex()+"/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"total_groups":2`)
	assert.Contains(t, rec.Body.String(), `"my_groups":1`)
}

type stubWorkflows struct {
	err     error
	gotReq  domain.CreateGroupRequest
	gotBid  string
	ops     map[string]domain.OperationSnapshot
	started []domain.OperationKind
}

func (s *stubWorkflows) start(kind domain.OperationKind, group common.Address) (domain.OperationSnapshot, error) {
	if s.err != nil {
		return domain.OperationSnapshot{}, s.err
	}
	s.started = append(s.started, kind)
	return domain.OperationSnapshot{ID: "op-1", Kind: kind, Group: group, Status: domain.StatusIdle}, nil
}

func (s *stubWorkflows) CreateGroup(_ context.Context, req domain.CreateGroupRequest) (domain.OperationSnapshot, error) {
	s.gotReq = req
	return s.start(domain.OpCreateGroup, common.Address{})
}

func (s *stubWorkflows) JoinGroup(_ context.Context, g common.Address) (domain.OperationSnapshot, error) {
	return s.start(domain.OpJoinGroup, g)
}

func (s *stubWorkflows) LockGroup(_ context.Context, g common.Address) (domain.OperationSnapshot, error) {
	return s.start(domain.OpLockGroup, g)
}

func (s *stubWorkflows) PlaceBid(_ context.Context, g common.Address, amount string) (domain.OperationSnapshot, error) {
	s.gotBid = amount
	return s.start(domain.OpPlaceBid, g)
}

func (s *stubWorkflows) ResolveRound(_ context.Context, g common.Address) (domain.OperationSnapshot, error) {
	return s.start(domain.OpResolveRound, g)
}

func (s *stubWorkflows) Faucet(context.Context) (domain.OperationSnapshot, error) {
	return s.start(domain.OpFaucet, common.Address{})
}

func (s *stubWorkflows) Operation(id string) (domain.OperationSnapshot, bool) {
	op, ok := s.ops[id]
	return op, ok
}

func (s *stubWorkflows) Recent(limit int) []domain.OperationSnapshot {
	var out []domain.OperationSnapshot
	for _, op := range s.ops {
		out = append(out, op)
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func TestCreateGroupAccepted(t *testing.T) {
	wf := &stubWorkflows{}
	h := NewWorkflowHandler(wf, discard())

	rec := do(h.CreateGroup, "POST", "/api/groups", "/api/groups",
		`{"name":"Rent","contribution":"100","member_limit":5,"frequency":"MONTHLY","type":"AUCTION"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "/api/operations/op-1", rec.Header().Get("Location"))
	assert.Equal(t, "Rent", wf.gotReq.Name)
	assert.Equal(t, "100", wf.gotReq.Contribution)
	assert.Equal(t, 5, wf.gotReq.MemberLimit)
	assert.Equal(t, domain.FrequencyMonthly, wf.gotReq.Frequency)
	assert.Equal(t, domain.GroupAuction, wf.gotReq.Type)
	assert.Contains(t, rec.Body.String(), `"kind":"create_group"`)
}

func TestCreateGroupRejectsUnknownFields(t *testing.T) {
	wf := &stubWorkflows{}
	h := NewWorkflowHandler(wf, discard())
	rec := do(h.CreateGroup, "POST", "/api/groups", "/api/groups", `{"name":"x","owner":"me"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, wf.started)
}

func TestWorkflowErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		code int
		msg  string
	}{
		{domain.Invalid("contribution", "contribution must be positive"), http.StatusBadRequest, "contribution must be positive"},
		{domain.ErrWalletNotConnected, http.StatusConflict, "wallet not connected"},
		{domain.ErrRateLimited, http.StatusTooManyRequests, "rate limited"},
		{&domain.RevertError{Reason: "Only owner can lock"}, http.StatusBadGateway, "Only owner can lock"},
		{errors.New("boom"), http.StatusInternalServerError, "boom"},
	}
	for _, tc := range cases {
		h := NewWorkflowHandler(&stubWorkflows{err: tc.err}, discard())
		rec := do(h.LockGroup, "POST", "/api/groups/{id}/lock", "/api/groups/"+addr(1).Hex()+"/lock", "")
		assert.Equal(t, tc.code, rec.Code, tc.msg)
		assert.JSONEq(t, `{"error":"`+tc.msg+`"}`, rec.Body.String())
	}
}

func TestPathWorkflows(t *testing.T) {
	wf := &stubWorkflows{}
	h := NewWorkflowHandler(wf, discard())
	id := addr(7).Hex()

	assert.Equal(t, http.StatusAccepted, do(h.JoinGroup, "POST", "/api/groups/{id}/join", "/api/groups/"+id+"/join", "").Code)
	assert.Equal(t, http.StatusAccepted, do(h.ResolveRound, "POST", "/api/groups/{id}/resolve", "/api/groups/"+id+"/resolve", "").Code)
	assert.Equal(t, http.StatusAccepted, do(h.PlaceBid, "POST", "/api/groups/{id}/bid", "/api/groups/"+id+"/bid", `{"amount":"12.5"}`).Code)
	assert.Equal(t, http.StatusAccepted, do(h.Faucet, "POST", "/api/faucet", "/api/faucet", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(h.JoinGroup, "POST", "/api/groups/{id}/join", "/api/groups/0x12/join", "").Code)

	assert.Equal(t, "12.5", wf.gotBid)
	assert.Equal(t, []domain.OperationKind{domain.OpJoinGroup, domain.OpResolveRound, domain.OpPlaceBid, domain.OpFaucet}, wf.started)
}

func TestGetOperation(t *testing.T) {
	wf := &stubWorkflows{ops: map[string]domain.OperationSnapshot{
		"op-9": {ID: "op-9", Kind: domain.OpFaucet, Status: domain.StatusSuccess},
	}}
	h := NewWorkflowHandler(wf, discard())

	rec := do(h.GetOperation, "GET", "/api/operations/{id}", "/api/operations/op-9", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"success"`)

	rec = do(h.GetOperation, "GET", "/api/operations/{id}", "/api/operations/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(h.ListOperations, "GET", "/api/operations", "/api/operations", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"id":"op-9"`)
}

func TestHealthDegraded(t *testing.T) {
	h := NewHealthHandler(map[string]HealthCheck{
		"rpc":   func(context.Context) error { return nil },
		"redis": func(context.Context) error { return errors.New("connection refused") },
	}, discard())
	rec := do(h.HealthCheck, "GET", "/api/health", "/api/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	body := decode[struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}](t, rec)
	assert.Equal(t, "degraded", body.Status)
	assert.Equal(t, "ok", body.Checks["rpc"])
	assert.Equal(t, "connection refused", body.Checks["redis"])

	rec = do(NewHealthHandler(nil, discard()).HealthCheck, "GET", "/api/health", "/api/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

type fixedAccount struct{ a common.Address }

func (f fixedAccount) Account() (common.Address, bool) { return f.a, true }

func TestStatus(t *testing.T) {
	h := &StatusHandler{Mode: "full", ChainID: 5042002, Wallet: fixedAccount{addr(0xbeef)}}
	rec := do(h.GetStatus, "GET", "/api/status", "/api/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"chain_id":5042002`)
	assert.Contains(t, strings.ToLower(rec.Body.String()), strings.ToLower(addr(0xbeef).Hex()))
}

func TestActivityNewestFirst(t *testing.T) {
	bus := memory.NewSignalBus(10)
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		msg, err := domain.NewEvent(domain.EventOperationSucceeded, "", map[string]string{"id": id})
		require.NoError(t, err)
		require.NoError(t, bus.StreamAppend(ctx, domain.StreamActivity, msg))
	}
	require.NoError(t, bus.StreamAppend(ctx, domain.StreamActivity, []byte("not json")))

	h := NewActivityHandler(bus, discard())
	rec := do(h.ListActivity, "GET", "/api/activity", "/api/activity?limit=3", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[struct {
		Activity []struct {
			Event string            `json:"event"`
			Data  map[string]string `json:"data"`
		} `json:"activity"`
	}](t, rec)
	// The malformed newest entry is skipped, leaving c and b.
	require.Len(t, body.Activity, 2)
	assert.Equal(t, "c", body.Activity[0].Data["id"])
	assert.Equal(t, "b", body.Activity[1].Data["id"])
	assert.Equal(t, domain.EventOperationSucceeded, body.Activity[0].Event)
}
