package commitfi

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/commitfi/internal/chain"
)

// GroupSymbol is the token symbol every group is created with.
const GroupSymbol = "GRP"

// Group field reads, in the order the aggregator batches them.
var GroupFields = []string{
	"name",
	"contribution",
	"memberCount",
	"groupStatus",
	"currentRound",
	"getMembers",
	"owner",
	"maxMembers",
	"frequency",
	"highestBidder",
	"groupKind",
}

// Factory builds calls against the group factory.
type Factory struct {
	Address common.Address
}

func (f Factory) GetGroups() chain.Call {
	return chain.NewCall(f.Address, FactoryABI, "getGroups")
}

// CreateGroup encodes createGroup. amount is in base units, frequency and
// groupType are contract enum ordinals.
func (f Factory) CreateGroup(name string, token common.Address, amount *big.Int, memberLimit int, frequency, groupType uint8) chain.Call {
	return chain.NewCall(f.Address, FactoryABI, "createGroup",
		name, GroupSymbol, token, amount, big.NewInt(int64(memberLimit)), frequency, groupType)
}

// Group builds calls against one group contract.
type Group struct {
	Address common.Address
}

// Field reads a no-argument view method.
func (g Group) Field(method string) chain.Call {
	return chain.NewCall(g.Address, GroupABI, method)
}

// Fields returns one call per entry of GroupFields.
func (g Group) Fields() []chain.Call {
	calls := make([]chain.Call, len(GroupFields))
	for i, f := range GroupFields {
		calls[i] = g.Field(f)
	}
	return calls
}

// AuctionReads returns the auction poll batch: highestBid, highestBidder,
// roundStart, frequency, groupStatus, hasReceivedPayout(member).
func (g Group) AuctionReads(member common.Address) []chain.Call {
	return []chain.Call{
		g.Field("highestBid"),
		g.Field("highestBidder"),
		g.Field("roundStart"),
		g.Field("frequency"),
		g.Field("groupStatus"),
		chain.NewCall(g.Address, GroupABI, "hasReceivedPayout", member),
	}
}

func (g Group) Join() chain.Call         { return g.Field("join") }
func (g Group) Lock() chain.Call         { return g.Field("lock") }
func (g Group) ResolveRound() chain.Call { return g.Field("resolveRound") }

func (g Group) Bid(amount *big.Int) chain.Call {
	return chain.NewCall(g.Address, GroupABI, "bid", amount)
}

// Token builds calls against the stablecoin.
type Token struct {
	Address common.Address
}

func (t Token) Allowance(owner, spender common.Address) chain.Call {
	return chain.NewCall(t.Address, TokenABI, "allowance", owner, spender)
}

func (t Token) Approve(spender common.Address, amount *big.Int) chain.Call {
	return chain.NewCall(t.Address, TokenABI, "approve", spender, amount)
}

func (t Token) BalanceOf(account common.Address) chain.Call {
	return chain.NewCall(t.Address, TokenABI, "balanceOf", account)
}

// Mint is only available on the test token.
func (t Token) Mint(to common.Address, amount *big.Int) chain.Call {
	return chain.NewCall(t.Address, TokenABI, "mint", to, amount)
}
