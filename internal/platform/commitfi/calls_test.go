package commitfi

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGroupFieldsMatchABI(t *testing.T) {
	g := Group{Address: common.HexToAddress("0xabc")}
	calls := g.Fields()
	require.Len(t, calls, len(GroupFields))
	for i, c := range calls {
		assert.Equal(t, GroupFields[i], c.Method)
		_, err := c.Pack()
		assert.NoError(t, err, c.Method)
	}
}

func TestCreateGroupPacks(t *testing.T) {
	f := Factory{Address: common.HexToAddress("0x1")}
	call := f.CreateGroup("Circle", common.HexToAddress("0x2"), big.NewInt(100_000_000), 10, 1, 1)

	data, err := call.Pack()
	require.NoError(t, err)

	args, err := FactoryABI.Methods["createGroup"].Inputs.Unpack(data[4:])
	require.NoError(t, err)
	assert.Equal(t, "Circle", args[0])
	assert.Equal(t, GroupSymbol, args[1])
	assert.Equal(t, common.HexToAddress("0x2"), args[2])
	assert.Equal(t, int64(100_000_000), args[3].(*big.Int).Int64())
	assert.Equal(t, int64(10), args[4].(*big.Int).Int64())
	assert.Equal(t, uint8(1), args[5])
	assert.Equal(t, uint8(1), args[6])
}

func TestAuctionReadsOrder(t *testing.T) {
	g := Group{Address: common.HexToAddress("0xabc")}
	calls := g.AuctionReads(common.HexToAddress("0xdef"))
	methods := make([]string, len(calls))
	for i, c := range calls {
		methods[i] = c.Method
		_, err := c.Pack()
		require.NoError(t, err)
	}
	assert.Equal(t, []string{"highestBid", "highestBidder", "roundStart", "frequency", "groupStatus", "hasReceivedPayout"}, methods)
}

func TestAuctionTopics(t *testing.T) {
	topics := AuctionTopics()
	require.Len(t, topics, 3)
	assert.Equal(t, "BidPlaced", EventName(topics[0]))
	assert.Equal(t, "AuctionStarted", EventName(topics[1]))
	assert.Equal(t, "RoundResolved", EventName(topics[2]))
	assert.Equal(t, "", EventName(common.Hash{}))
}

func TestTokenCallsPack(t *testing.T) {
	tok := Token{Address: common.HexToAddress("0x3")}
	for _, c := range []interface{ Pack() ([]byte, error) }{
		tok.Allowance(common.HexToAddress("0x4"), common.HexToAddress("0x5")),
		tok.Approve(common.HexToAddress("0x5"), big.NewInt(1)),
		tok.BalanceOf(common.HexToAddress("0x4")),
		tok.Mint(common.HexToAddress("0x4"), big.NewInt(1_000_000_000)),
	} {
		_, err := c.Pack()
		assert.NoError(t, err)
	}
}
