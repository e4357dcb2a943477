package handler

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/commitfi/internal/domain"
	"github.com/alanyoungcy/commitfi/internal/service"
)

// GroupService defines what the group handler requires from the service
// layer.
type GroupService interface {
	ListGroups(ctx context.Context) ([]domain.Group, error)
	GetGroup(ctx context.Context, id common.Address) (domain.Group, error)
	ListForMember(ctx context.Context, addr common.Address) (domain.MemberGroups, error)
	Stats(ctx context.Context, addr common.Address) (domain.DashboardStats, error)
}

// AuctionSnapshotter reads one auction state.
type AuctionSnapshotter interface {
	Snapshot(ctx context.Context, group common.Address) (domain.AuctionState, error)
}

// GroupHandler serves group discovery and account views.
type GroupHandler struct {
	groups   GroupService
	auctions AuctionSnapshotter
	logger   *slog.Logger
}

func NewGroupHandler(groups GroupService, auctions AuctionSnapshotter, logger *slog.Logger) *GroupHandler {
	return &GroupHandler{groups: groups, auctions: auctions, logger: logHandler(logger, "group")}
}

// groupView adds derived fields to a group.
type groupView struct {
	domain.Group
	OpenSpots int     `json:"open_spots"`
	Progress  float64 `json:"progress"`
}

func viewOf(g domain.Group) groupView {
	return groupView{Group: g, OpenSpots: g.OpenSpots(), Progress: g.Progress()}
}

func viewsOf(groups []domain.Group) []groupView {
	out := make([]groupView, len(groups))
	for i, g := range groups {
		out[i] = viewOf(g)
	}
	return out
}

type listGroupsResponse struct {
	Groups []groupView `json:"groups"`
	Total  int         `json:"total"`
}

// parseFilter builds a GroupFilter from query parameters: search, type,
// min_contribution, max_contribution, open_spots, active, size and sort.
func parseFilter(r *http.Request) (domain.GroupFilter, error) {
	q := r.URL.Query()
	f := domain.GroupFilter{Search: q.Get("search")}

	if v := q.Get("type"); v != "" {
		t, ok := domain.ParseGroupType(v)
		if !ok {
			return f, domain.Invalid("type", fmt.Sprintf("unknown group type %q", v))
		}
		f.Type = t
	}
	for _, p := range []struct {
		key string
		dst **domain.Amount
	}{{"min_contribution", &f.MinContribution}, {"max_contribution", &f.MaxContribution}} {
		if v := q.Get(p.key); v != "" {
			amt, err := domain.ParseAmount(v)
			if err != nil {
				return f, domain.Invalid(p.key, err.Error())
			}
			*p.dst = &amt
		}
	}
	for _, p := range []struct {
		key string
		dst *bool
	}{{"open_spots", &f.OpenSpotsOnly}, {"active", &f.ActiveOnly}} {
		if v := q.Get(p.key); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return f, domain.Invalid(p.key, fmt.Sprintf("%s must be a boolean", p.key))
			}
			*p.dst = b
		}
	}
	switch size := domain.SizeBucket(strings.ToLower(q.Get("size"))); size {
	case "", domain.SizeSmall, domain.SizeMedium, domain.SizeLarge:
		f.Size = size
	default:
		return f, domain.Invalid("size", fmt.Sprintf("unknown size %q", size))
	}
	switch sort := domain.GroupSort(strings.ToLower(q.Get("sort"))); sort {
	case "", domain.SortOpenSpots, domain.SortLowestContribution, domain.SortHighestContribution, domain.SortNewest:
		f.Sort = sort
	default:
		return f, domain.Invalid("sort", fmt.Sprintf("unknown sort %q", sort))
	}
	return f, nil
}

// ListGroups returns every group, filtered and sorted by the query.
// GET /api/groups?search=&type=&min_contribution=&max_contribution=&open_spots=&active=&size=&sort=
func (h *GroupHandler) ListGroups(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r)
	if err != nil {
		writeServiceError(w, r, h.logger, "list groups", err)
		return
	}
	groups, err := h.groups.ListGroups(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, "list groups", err)
		return
	}
	groups = service.FilterGroups(groups, f)
	writeJSON(w, http.StatusOK, listGroupsResponse{Groups: viewsOf(groups), Total: len(groups)})
}

// GetGroup returns one group.
// GET /api/groups/{id}
func (h *GroupHandler) GetGroup(w http.ResponseWriter, r *http.Request) {
	id, ok := pathAddress(w, r, "id")
	if !ok {
		return
	}
	g, err := h.groups.GetGroup(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, h.logger, "get group", err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(g))
}

// GetAuction returns the current auction state of an auction group.
// GET /api/groups/{id}/auction
func (h *GroupHandler) GetAuction(w http.ResponseWriter, r *http.Request) {
	id, ok := pathAddress(w, r, "id")
	if !ok {
		return
	}
	g, err := h.groups.GetGroup(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, h.logger, "get auction", err)
		return
	}
	if g.Type != domain.GroupAuction {
		writeServiceError(w, r, h.logger, "get auction", domain.ErrNotAuction)
		return
	}
	st, err := h.auctions.Snapshot(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, h.logger, "get auction", err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// ListForMember returns the account's groups bucketed into ongoing, upcoming
// and completed.
// GET /api/accounts/{address}/groups
func (h *GroupHandler) ListForMember(w http.ResponseWriter, r *http.Request) {
	addr, ok := pathAddress(w, r, "address")
	if !ok {
		return
	}
	mg, err := h.groups.ListForMember(r.Context(), addr)
	if err != nil {
		writeServiceError(w, r, h.logger, "list member groups", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]groupView{
		"ongoing":   viewsOf(mg.Ongoing),
		"upcoming":  viewsOf(mg.Upcoming),
		"completed": viewsOf(mg.Completed),
	})
}

// Stats returns the dashboard counters for an account.
// GET /api/accounts/{address}/stats
func (h *GroupHandler) Stats(w http.ResponseWriter, r *http.Request) {
	addr, ok := pathAddress(w, r, "address")
	if !ok {
		return
	}
	st, err := h.groups.Stats(r.Context(), addr)
	if err != nil {
		writeServiceError(w, r, h.logger, "stats", err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}
