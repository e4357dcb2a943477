package domain

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
)

func TestAuctionStatusFromCode(t *testing.T) {
	assert.Equal(t, AuctionWaiting, AuctionStatusFromCode(0))
	assert.Equal(t, AuctionLive, AuctionStatusFromCode(1))
	assert.Equal(t, AuctionEnded, AuctionStatusFromCode(2))
	assert.Equal(t, AuctionEnded, AuctionStatusFromCode(3))
	assert.Equal(t, AuctionWaiting, AuctionStatusFromCode(9))
}

func TestAuctionEndsExactlyAtWindowClose(t *testing.T) {
	group := common.HexToAddress("0x01")
	const start = int64(1_700_000_000)
	const d = int64(300)
	r := AuctionReading{RoundStart: start, FrequencyRaw: uint64(d), StatusCode: 1}

	before := DeriveAuctionState(group, r, 0, time.Unix(start+d-1, 0))
	assert.Equal(t, int64(1), before.TimeLeft)
	assert.Equal(t, AuctionLive, before.Status)

	at := DeriveAuctionState(group, r, 0, time.Unix(start+d, 0))
	assert.Equal(t, int64(0), at.TimeLeft)
	assert.Equal(t, AuctionEnded, at.Status)
	assert.Equal(t, uint8(1), at.RawStatus, "raw chain status is untouched")

	later := before.At(time.Unix(start+d+50, 0))
	assert.Equal(t, int64(0), later.TimeLeft)
	assert.Equal(t, AuctionEnded, later.Status)
}

func TestAuctionWindowOverride(t *testing.T) {
	r := AuctionReading{RoundStart: 1000, FrequencyRaw: 0, StatusCode: 1}

	st := DeriveAuctionState(common.Address{}, r, 300*time.Second, time.Unix(1100, 0))
	assert.Equal(t, int64(300), st.Duration)
	assert.Equal(t, int64(200), st.TimeLeft)

	weekly := DeriveAuctionState(common.Address{}, r, 0, time.Unix(1100, 0))
	assert.Equal(t, int64(604800), weekly.Duration)
}

func TestWaitingNeverOverridden(t *testing.T) {
	r := AuctionReading{RoundStart: 0, FrequencyRaw: 300, StatusCode: 0}
	st := DeriveAuctionState(common.Address{}, r, 0, time.Unix(10_000, 0))
	assert.Equal(t, AuctionWaiting, st.Status)
	assert.Equal(t, int64(0), st.TimeLeft)
}

func TestZeroBidderIsAbsent(t *testing.T) {
	st := DeriveAuctionState(common.Address{}, AuctionReading{}, 0, time.Unix(0, 0))
	assert.Nil(t, st.HighestBidder)

	bidder := common.HexToAddress("0xabc")
	st = DeriveAuctionState(common.Address{}, AuctionReading{HighestBidder: bidder}, 0, time.Unix(0, 0))
	if assert.NotNil(t, st.HighestBidder) {
		assert.Equal(t, bidder, *st.HighestBidder)
	}
}

func TestMissingFrequencyLeavesDurationUnknown(t *testing.T) {
	r := AuctionReading{RoundStart: 1000, FrequencyMissing: true, StatusCode: 1}

	st := DeriveAuctionState(common.Address{}, r, 0, time.Unix(1100, 0))
	assert.True(t, st.DurationUnknown)
	assert.Equal(t, int64(0), st.Duration)
	assert.Equal(t, int64(0), st.TimeLeft)
	assert.Equal(t, AuctionLive, st.Status, "an unknown round is not ended locally")

	windowed := DeriveAuctionState(common.Address{}, r, 300*time.Second, time.Unix(1100, 0))
	assert.False(t, windowed.DurationUnknown)
	assert.Equal(t, int64(200), windowed.TimeLeft)
}
