package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// AuctionStatus is the presentational phase of an auction round.
type AuctionStatus string

const (
	AuctionWaiting AuctionStatus = "WAITING"
	AuctionLive    AuctionStatus = "LIVE"
	AuctionEnded   AuctionStatus = "ENDED"
)

// AuctionStatusFromCode maps groupStatus() for an auction group: 1 is LIVE,
// 2 and 3 are ENDED, everything else is WAITING.
func AuctionStatusFromCode(code uint8) AuctionStatus {
	switch code {
	case 1:
		return AuctionLive
	case 2, 3:
		return AuctionEnded
	default:
		return AuctionWaiting
	}
}

// AuctionReading is the raw result of one auction poll.
type AuctionReading struct {
	HighestBid        Amount
	HighestBidder     common.Address
	RoundStart        int64 // unix seconds
	FrequencyRaw      uint64
	FrequencyMissing  bool // frequency() failed; FrequencyRaw is not a real weekly 0
	StatusCode        uint8
	HasReceivedPayout bool
}

// AuctionState is the derived view of an auction group at one instant. The
// ENDED override applied when TimeLeft hits zero is for display only; the
// contract's own status changes only through resolveRound.
type AuctionState struct {
	Group             common.Address  `json:"group"`
	HighestBid        Amount          `json:"highest_bid"`
	HighestBidder     *common.Address `json:"highest_bidder"`
	RoundStart        int64           `json:"round_start"`
	Duration          int64           `json:"duration"`
	DurationUnknown   bool            `json:"duration_unknown,omitempty"`
	TimeLeft          int64           `json:"time_left"`
	Status            AuctionStatus   `json:"status"`
	RawStatus         uint8           `json:"raw_status"`
	HasReceivedPayout bool            `json:"has_received_payout"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// DeriveAuctionState combines a reading with the round length and the current
// time. window overrides the frequency-derived round length when positive.
// Without a window and without a frequency the round length stays unknown.
func DeriveAuctionState(group common.Address, r AuctionReading, window time.Duration, now time.Time) AuctionState {
	d := window
	unknown := false
	if d <= 0 {
		if r.FrequencyMissing {
			unknown = true
		} else {
			d = RoundDuration(r.FrequencyRaw)
		}
	}

	st := AuctionState{
		Group:             group,
		HighestBid:        r.HighestBid,
		RoundStart:        r.RoundStart,
		Duration:          int64(d / time.Second),
		DurationUnknown:   unknown,
		RawStatus:         r.StatusCode,
		HasReceivedPayout: r.HasReceivedPayout,
		UpdatedAt:         now,
	}
	if r.HighestBidder != (common.Address{}) {
		bidder := r.HighestBidder
		st.HighestBidder = &bidder
	}
	return st.At(now)
}

// At recomputes TimeLeft and Status for now without touching the chain. An
// unknown round length reports no time left and never ends the round locally.
func (s AuctionState) At(now time.Time) AuctionState {
	s.Status = AuctionStatusFromCode(s.RawStatus)
	if s.DurationUnknown {
		s.TimeLeft = 0
		return s
	}

	left := s.RoundStart + s.Duration - now.Unix()
	if left < 0 {
		left = 0
	}
	s.TimeLeft = left
	if s.Status == AuctionLive && s.TimeLeft == 0 {
		s.Status = AuctionEnded
	}
	return s
}
