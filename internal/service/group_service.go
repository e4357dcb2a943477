package service

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sort"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/commitfi/internal/chain"
	"github.com/alanyoungcy/commitfi/internal/domain"
	"github.com/alanyoungcy/commitfi/internal/metrics"
	"github.com/alanyoungcy/commitfi/internal/platform/commitfi"
)

// Offsets into one group's block of commitfi.GroupFields.
const (
	fieldName = iota
	fieldContribution
	fieldMemberCount
	fieldStatus
	fieldRound
	fieldMembers
	fieldOwner
	fieldMaxMembers
	fieldFrequency
	fieldAuctionProbe
	fieldKind
	fieldsPerGroup
)

// GroupService aggregates group contracts into domain.Group records.
type GroupService struct {
	reader        ContractReader
	factory       commitfi.Factory
	token         commitfi.Token
	probeFallback bool
	now           func() time.Time
	logger        *slog.Logger
}

// NewGroupService creates a GroupService. With probeFallback set, groups
// whose groupKind() read fails are classified by the highestBidder probe.
func NewGroupService(reader ContractReader, factory, token common.Address, probeFallback bool, logger *slog.Logger) *GroupService {
	return &GroupService{
		reader:        reader,
		factory:       commitfi.Factory{Address: factory},
		token:         commitfi.Token{Address: token},
		probeFallback: probeFallback,
		now:           time.Now,
		logger:        logger.With(slog.String("component", "group_service")),
	}
}

// ListGroups reads every group registered with the factory in one batch.
// Groups whose name read fails are omitted; other failed fields default.
func (s *GroupService) ListGroups(ctx context.Context) ([]domain.Group, error) {
	vals, err := s.reader.ReadOne(ctx, s.factory.GetGroups())
	if err != nil {
		return nil, fmt.Errorf("group_service: get groups: %w: %w", domain.ErrReadFailed, err)
	}
	addrs, _ := chain.Value[[]common.Address](vals)
	if len(addrs) == 0 {
		metrics.GroupsAggregated.Set(0)
		return []domain.Group{}, nil
	}

	calls := make([]chain.Call, 0, len(addrs)*fieldsPerGroup)
	for _, addr := range addrs {
		calls = append(calls, commitfi.Group{Address: addr}.Fields()...)
	}
	results, err := s.reader.ReadMany(ctx, calls)
	if err != nil {
		return nil, fmt.Errorf("group_service: read groups: %w: %w", domain.ErrReadFailed, err)
	}

	now := s.now().UTC()
	groups := make([]domain.Group, 0, len(addrs))
	for i, addr := range addrs {
		block := results[i*fieldsPerGroup : (i+1)*fieldsPerGroup]
		g, ok := s.decodeGroup(addr, block, now)
		if !ok {
			s.logger.DebugContext(ctx, "group_service: skipping unreadable group",
				slog.String("group", addr.Hex()),
				slog.Any("error", block[fieldName].Err),
			)
			continue
		}
		groups = append(groups, g)
	}
	metrics.GroupsAggregated.Set(float64(len(groups)))
	return groups, nil
}

// GetGroup reads a single group. It returns domain.ErrNotFound when the
// address does not answer name().
func (s *GroupService) GetGroup(ctx context.Context, id common.Address) (domain.Group, error) {
	results, err := s.reader.ReadMany(ctx, commitfi.Group{Address: id}.Fields())
	if err != nil {
		return domain.Group{}, fmt.Errorf("group_service: read group %s: %w: %w", id.Hex(), domain.ErrReadFailed, err)
	}
	g, ok := s.decodeGroup(id, results, s.now().UTC())
	if !ok {
		return domain.Group{}, fmt.Errorf("group_service: group %s: %w", id.Hex(), domain.ErrNotFound)
	}
	return g, nil
}

func (s *GroupService) decodeGroup(addr common.Address, block []chain.Result, now time.Time) (domain.Group, bool) {
	name, ok := chain.As[string](block[fieldName])
	if !ok {
		return domain.Group{}, false
	}

	g := domain.Group{
		ID:          addr,
		Name:        name,
		MemberLimit: domain.DefaultMemberLimit,
		TotalRounds: domain.DefaultMemberLimit,
		Frequency:   domain.FrequencyWeekly,
		Members:     []common.Address{},
		StartDate:   now,
	}

	if v, ok := chain.As[*big.Int](block[fieldContribution]); ok {
		g.Contribution = domain.NewAmount(v)
	}
	if v, ok := chain.As[[]common.Address](block[fieldMembers]); ok && v != nil {
		g.Members = v
	}
	g.MemberCount = len(g.Members)
	if v, ok := chain.As[*big.Int](block[fieldMemberCount]); ok {
		g.MemberCount = int(v.Int64())
	}
	// An unreadable status decodes like an unknown code.
	code := uint8(255)
	if v, ok := chain.As[uint8](block[fieldStatus]); ok {
		code = v
	}
	g.Status = domain.GroupStatusFromCode(code)
	if v, ok := chain.As[*big.Int](block[fieldRound]); ok {
		g.CurrentCycle = int(v.Int64())
	}
	if v, ok := chain.As[common.Address](block[fieldOwner]); ok {
		g.CreatedBy = v
	}
	if v, ok := chain.As[*big.Int](block[fieldMaxMembers]); ok {
		g.MemberLimit = int(v.Int64())
		g.TotalRounds = g.MemberLimit
	}
	if v, ok := chain.As[*big.Int](block[fieldFrequency]); ok && v.IsUint64() {
		g.Frequency = domain.FrequencyFromRaw(v.Uint64())
	}

	g.Type, g.TypeSource = s.classify(block[fieldKind], block[fieldAuctionProbe])
	return g, true
}

// classify prefers the explicit groupKind() discriminator. The probe path is
// deprecated and only kept for contracts deployed before groupKind existed.
func (s *GroupService) classify(kind, probe chain.Result) (domain.GroupType, domain.TypeSource) {
	if code, ok := chain.As[uint8](kind); ok {
		if t, ok := domain.GroupTypeFromKind(code); ok {
			return t, domain.TypeFromKind
		}
	}
	if !s.probeFallback {
		return domain.GroupStandard, domain.TypeFromDefault
	}
	if probe.OK() {
		return domain.GroupAuction, domain.TypeFromProbe
	}
	return domain.GroupStandard, domain.TypeFromProbe
}

// ListForMember returns the groups addr belongs to, bucketed by status.
func (s *GroupService) ListForMember(ctx context.Context, addr common.Address) (domain.MemberGroups, error) {
	groups, err := s.ListGroups(ctx)
	if err != nil {
		return domain.MemberGroups{}, err
	}
	return BucketMemberGroups(groups, addr), nil
}

// BucketMemberGroups splits the groups addr belongs to into ongoing (ACTIVE),
// upcoming (RECRUITING, LOCKED) and completed.
func BucketMemberGroups(groups []domain.Group, addr common.Address) domain.MemberGroups {
	out := domain.MemberGroups{
		Ongoing:   []domain.Group{},
		Upcoming:  []domain.Group{},
		Completed: []domain.Group{},
	}
	for _, g := range groups {
		if !g.HasMember(addr) {
			continue
		}
		switch g.Status {
		case domain.GroupActive:
			out.Ongoing = append(out.Ongoing, g)
		case domain.GroupRecruiting, domain.GroupLocked:
			out.Upcoming = append(out.Upcoming, g)
		default:
			out.Completed = append(out.Completed, g)
		}
	}
	return out
}

// FilterGroups applies f to groups and returns a new slice. Without a sort
// key the registry order is kept.
func FilterGroups(groups []domain.Group, f domain.GroupFilter) []domain.Group {
	query := strings.ToLower(strings.TrimSpace(f.Search))
	out := make([]domain.Group, 0, len(groups))
	for _, g := range groups {
		if query != "" &&
			!strings.Contains(strings.ToLower(g.Name), query) &&
			!strings.Contains(strings.ToLower(g.ID.Hex()), query) {
			continue
		}
		if f.Type != "" && g.Type != f.Type {
			continue
		}
		if f.OpenSpotsOnly && (g.Status != domain.GroupRecruiting || g.OpenSpots() == 0) {
			continue
		}
		if f.ActiveOnly && g.Status != domain.GroupActive {
			continue
		}
		if f.MinContribution != nil && g.Contribution.Cmp(*f.MinContribution) < 0 {
			continue
		}
		if f.MaxContribution != nil && g.Contribution.Cmp(*f.MaxContribution) > 0 {
			continue
		}
		if !f.Size.Contains(g.MemberLimit) {
			continue
		}
		out = append(out, g)
	}

	switch f.Sort {
	case domain.SortOpenSpots:
		sort.SliceStable(out, func(i, j int) bool { return out[i].OpenSpots() > out[j].OpenSpots() })
	case domain.SortLowestContribution:
		sort.SliceStable(out, func(i, j int) bool { return out[i].Contribution.Cmp(out[j].Contribution) < 0 })
	case domain.SortHighestContribution:
		sort.SliceStable(out, func(i, j int) bool { return out[i].Contribution.Cmp(out[j].Contribution) > 0 })
	case domain.SortNewest:
		// The factory appends, so later entries are newer.
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	return out
}

// Stats summarises all groups from addr's point of view. The token balance is
// best effort and stays zero when the read fails.
func (s *GroupService) Stats(ctx context.Context, addr common.Address) (domain.DashboardStats, error) {
	groups, err := s.ListGroups(ctx)
	if err != nil {
		return domain.DashboardStats{}, err
	}
	st := ComputeStats(groups, addr)

	if addr != (common.Address{}) {
		bal, err := s.TokenBalance(ctx, addr)
		if err != nil {
			s.logger.WarnContext(ctx, "group_service: balance read failed",
				slog.String("account", addr.Hex()),
				slog.String("error", err.Error()),
			)
		} else {
			st.TokenBalance = bal
		}
	}
	return st, nil
}

// ComputeStats derives the dashboard counters from an aggregated group list.
func ComputeStats(groups []domain.Group, addr common.Address) domain.DashboardStats {
	st := domain.DashboardStats{TotalGroups: len(groups)}
	for _, g := range groups {
		st.TotalMembers += len(g.Members)
		switch g.Status {
		case domain.GroupActive:
			st.ActiveGroups++
			st.TotalLocked = st.TotalLocked.Add(g.Contribution.Mul(int64(g.MemberLimit)))
		case domain.GroupLocked:
			st.TotalLocked = st.TotalLocked.Add(g.Contribution.Mul(int64(g.MemberLimit)))
		}
		if addr != (common.Address{}) && g.HasMember(addr) {
			st.MyGroups++
			if g.Status != domain.GroupCompleted {
				st.CommittedPerCycle = st.CommittedPerCycle.Add(g.Contribution)
			}
		}
	}
	return st
}

// TokenBalance reads the stablecoin balance of addr.
func (s *GroupService) TokenBalance(ctx context.Context, addr common.Address) (domain.Amount, error) {
	vals, err := s.reader.ReadOne(ctx, s.token.BalanceOf(addr))
	if err != nil {
		return domain.Amount{}, fmt.Errorf("group_service: balance of %s: %w: %w", addr.Hex(), domain.ErrReadFailed, err)
	}
	v, ok := chain.Value[*big.Int](vals)
	if !ok {
		return domain.Amount{}, fmt.Errorf("group_service: balance of %s: %w", addr.Hex(), domain.ErrReadFailed)
	}
	return domain.NewAmount(v), nil
}
