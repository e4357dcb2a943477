package domain

import (
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// GroupType distinguishes plain rotation groups from bidding groups.
type GroupType string

const (
	GroupStandard GroupType = "STANDARD"
	GroupAuction  GroupType = "AUCTION"
)

// ContractCode is the value the factory's createGroup expects.
func (t GroupType) ContractCode() uint8 {
	if t == GroupAuction {
		return 1
	}
	return 0
}

// ParseGroupType accepts the names case-insensitively.
func ParseGroupType(s string) (GroupType, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case string(GroupStandard):
		return GroupStandard, true
	case string(GroupAuction):
		return GroupAuction, true
	}
	return "", false
}

// GroupTypeFromKind maps the on-chain groupKind() code.
func GroupTypeFromKind(code uint8) (GroupType, bool) {
	switch code {
	case 0:
		return GroupStandard, true
	case 1:
		return GroupAuction, true
	}
	return "", false
}

// TypeSource records how a group's type was decided.
type TypeSource string

const (
	TypeFromKind    TypeSource = "kind"
	TypeFromProbe   TypeSource = "probe"
	TypeFromDefault TypeSource = "default"
)

// GroupStatus is the lifecycle stage reported by a group contract.
type GroupStatus string

const (
	GroupRecruiting GroupStatus = "RECRUITING"
	GroupActive     GroupStatus = "ACTIVE"
	GroupLocked     GroupStatus = "LOCKED"
	GroupCompleted  GroupStatus = "COMPLETED"
)

// GroupStatusFromCode maps groupStatus(): 0 RECRUITING, 1 ACTIVE, 2 LOCKED,
// anything else COMPLETED.
func GroupStatusFromCode(code uint8) GroupStatus {
	switch code {
	case 0:
		return GroupRecruiting
	case 1:
		return GroupActive
	case 2:
		return GroupLocked
	default:
		return GroupCompleted
	}
}

// Frequency is the contribution cycle length of a group.
type Frequency string

const (
	FrequencyWeekly   Frequency = "WEEKLY"
	FrequencyMonthly  Frequency = "MONTHLY"
	FrequencyBiweekly Frequency = "BIWEEKLY"
)

// Cycle lengths in seconds as some deployments report them.
const (
	weeklySeconds   = 604800
	monthlySeconds  = 2592000
	biweeklySeconds = 5184000
)

// FrequencyFromRaw decodes frequency() which may be an ordinal (0, 1, 2) or a
// second count (604800, 2592000, 5184000). Unknown values read as WEEKLY.
func FrequencyFromRaw(raw uint64) Frequency {
	switch raw {
	case 0, weeklySeconds:
		return FrequencyWeekly
	case 1, monthlySeconds:
		return FrequencyMonthly
	case 2, biweeklySeconds:
		return FrequencyBiweekly
	}
	return FrequencyWeekly
}

// ParseFrequency accepts the names case-insensitively.
func ParseFrequency(s string) (Frequency, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case string(FrequencyWeekly):
		return FrequencyWeekly, true
	case string(FrequencyMonthly):
		return FrequencyMonthly, true
	case string(FrequencyBiweekly):
		return FrequencyBiweekly, true
	}
	return "", false
}

// Ordinal is the enum value written to createGroup. Group creation always uses
// the ordinal encoding.
func (f Frequency) Ordinal() uint64 {
	switch f {
	case FrequencyMonthly:
		return 1
	case FrequencyBiweekly:
		return 2
	default:
		return 0
	}
}

// Period is the calendar length matching the second-count encoding.
func (f Frequency) Period() time.Duration {
	switch f {
	case FrequencyMonthly:
		return monthlySeconds * time.Second
	case FrequencyBiweekly:
		return biweeklySeconds * time.Second
	default:
		return weeklySeconds * time.Second
	}
}

// RoundDuration interprets a raw frequency() value as a round length: ordinals
// map to their period, any other value is taken as seconds.
func RoundDuration(raw uint64) time.Duration {
	if raw <= 2 {
		return FrequencyFromRaw(raw).Period()
	}
	return time.Duration(raw) * time.Second
}

// Defaults applied when optional group fields fail to read.
const (
	DefaultMemberLimit = 10
)

// Group is the aggregated view of one group contract. It is rebuilt from
// chain reads on every pass and never mutated afterwards.
type Group struct {
	ID           common.Address   `json:"id"`
	Name         string           `json:"name"`
	Type         GroupType        `json:"type"`
	TypeSource   TypeSource       `json:"type_source"`
	Contribution Amount           `json:"contribution"`
	MemberLimit  int              `json:"member_limit"`
	MemberCount  int              `json:"member_count"`
	Members      []common.Address `json:"members"`
	Status       GroupStatus      `json:"status"`
	Frequency    Frequency        `json:"frequency"`
	CurrentCycle int              `json:"current_cycle"`
	TotalRounds  int              `json:"total_rounds"`
	CreatedBy    common.Address   `json:"created_by"`
	StartDate    time.Time        `json:"start_date"`
}

// OpenSpots is the number of members that can still join.
func (g Group) OpenSpots() int {
	n := g.MemberLimit - g.MemberCount
	if n < 0 {
		return 0
	}
	return n
}

// HasMember reports whether addr is in the member list.
func (g Group) HasMember(addr common.Address) bool {
	for _, m := range g.Members {
		if m == addr {
			return true
		}
	}
	return false
}

// Progress is the completed fraction of rounds in percent.
func (g Group) Progress() float64 {
	if g.TotalRounds <= 0 {
		return 0
	}
	p := float64(g.CurrentCycle) / float64(g.TotalRounds) * 100
	if p > 100 {
		return 100
	}
	return p
}

// MemberGroups buckets the groups an account belongs to.
type MemberGroups struct {
	Ongoing   []Group `json:"ongoing"`
	Upcoming  []Group `json:"upcoming"`
	Completed []Group `json:"completed"`
}

// DashboardStats summarises the group set for one account. TotalLocked is
// contribution times member limit over ACTIVE and LOCKED groups.
type DashboardStats struct {
	TotalGroups       int    `json:"total_groups"`
	ActiveGroups      int    `json:"active_groups"`
	TotalMembers      int    `json:"total_members"`
	TotalLocked       Amount `json:"total_locked"`
	MyGroups          int    `json:"my_groups"`
	CommittedPerCycle Amount `json:"committed_per_cycle"`
	TokenBalance      Amount `json:"token_balance"`
}

// GroupSort orders a filtered group list.
type GroupSort string

const (
	SortOpenSpots           GroupSort = "open_spots"
	SortLowestContribution  GroupSort = "lowest_contribution"
	SortHighestContribution GroupSort = "highest_contribution"
	SortNewest              GroupSort = "newest"
)

// SizeBucket buckets groups by member limit.
type SizeBucket string

const (
	SizeSmall  SizeBucket = "small"  // up to 5
	SizeMedium SizeBucket = "medium" // 6 to 10
	SizeLarge  SizeBucket = "large"  // over 10
)

// Contains reports whether a member limit falls into the bucket.
func (b SizeBucket) Contains(limit int) bool {
	switch b {
	case SizeSmall:
		return limit <= 5
	case SizeMedium:
		return limit > 5 && limit <= 10
	case SizeLarge:
		return limit > 10
	}
	return true
}

// GroupFilter narrows a group list. Zero values disable a criterion.
// OpenSpotsOnly keeps recruiting groups with room left; ActiveOnly keeps
// ACTIVE groups.
type GroupFilter struct {
	Search          string
	Type            GroupType
	MinContribution *Amount
	MaxContribution *Amount
	OpenSpotsOnly   bool
	ActiveOnly      bool
	Size            SizeBucket
	Sort            GroupSort
}
