// Package commitfi holds the ABI surface of the CommitFi contracts (group
// factory, standard and auction groups, and the stablecoin) and typed call
// builders over it.
package commitfi

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

const factoryJSON = `[
	{"type":"function","name":"getGroups","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address[]"}]},
	{"type":"function","name":"createGroup","stateMutability":"nonpayable","inputs":[
		{"name":"name","type":"string"},
		{"name":"symbol","type":"string"},
		{"name":"token","type":"address"},
		{"name":"contributionAmount","type":"uint256"},
		{"name":"memberLimit","type":"uint256"},
		{"name":"frequency","type":"uint8"},
		{"name":"groupType","type":"uint8"}
	],"outputs":[{"name":"","type":"address"}]},
	{"type":"event","name":"GroupCreated","anonymous":false,"inputs":[
		{"name":"group","type":"address","indexed":true},
		{"name":"owner","type":"address","indexed":true},
		{"name":"groupType","type":"uint8","indexed":false}
	]}
]`

// groupJSON covers both group variants. The auction-only entries revert on a
// standard group, which is what the type probe relies on.
const groupJSON = `[
	{"type":"function","name":"name","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]},
	{"type":"function","name":"contribution","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"memberCount","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"groupStatus","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint8"}]},
	{"type":"function","name":"currentRound","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"getMembers","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address[]"}]},
	{"type":"function","name":"owner","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
	{"type":"function","name":"maxMembers","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"frequency","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"groupKind","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint8"}]},
	{"type":"function","name":"highestBid","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"highestBidder","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
	{"type":"function","name":"roundStart","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"hasReceivedPayout","stateMutability":"view","inputs":[{"name":"member","type":"address"}],"outputs":[{"name":"","type":"bool"}]},
	{"type":"function","name":"join","stateMutability":"nonpayable","inputs":[],"outputs":[]},
	{"type":"function","name":"lock","stateMutability":"nonpayable","inputs":[],"outputs":[]},
	{"type":"function","name":"bid","stateMutability":"nonpayable","inputs":[{"name":"amount","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"resolveRound","stateMutability":"nonpayable","inputs":[],"outputs":[]},
	{"type":"event","name":"BidPlaced","anonymous":false,"inputs":[
		{"name":"bidder","type":"address","indexed":true},
		{"name":"amount","type":"uint256","indexed":false}
	]},
	{"type":"event","name":"AuctionStarted","anonymous":false,"inputs":[
		{"name":"round","type":"uint256","indexed":false},
		{"name":"startTime","type":"uint256","indexed":false}
	]},
	{"type":"event","name":"RoundResolved","anonymous":false,"inputs":[
		{"name":"round","type":"uint256","indexed":false},
		{"name":"winner","type":"address","indexed":true},
		{"name":"amount","type":"uint256","indexed":false}
	]}
]`

const tokenJSON = `[
	{"type":"function","name":"allowance","stateMutability":"view","inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"approve","stateMutability":"nonpayable","inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
	{"type":"function","name":"balanceOf","stateMutability":"view","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"mint","stateMutability":"nonpayable","inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[]}
]`

// Parsed ABIs.
var (
	FactoryABI = mustParse(factoryJSON)
	GroupABI   = mustParse(groupJSON)
	TokenABI   = mustParse(tokenJSON)
)

// Auction event topics.
var (
	TopicBidPlaced      = GroupABI.Events["BidPlaced"].ID
	TopicAuctionStarted = GroupABI.Events["AuctionStarted"].ID
	TopicRoundResolved  = GroupABI.Events["RoundResolved"].ID
)

// AuctionTopics lists the events that invalidate an auction view.
func AuctionTopics() []common.Hash {
	return []common.Hash{TopicBidPlaced, TopicAuctionStarted, TopicRoundResolved}
}

// EventName returns the auction event name for topic0, or "".
func EventName(topic common.Hash) string {
	for name, ev := range GroupABI.Events {
		if ev.ID == topic {
			return name
		}
	}
	return ""
}

func mustParse(def string) *abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic("commitfi: invalid abi: " + err.Error())
	}
	return &parsed
}
