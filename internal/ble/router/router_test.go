package router

import (
	"testing"

	"github.com/edgecoder/mesh/internal/ble/common"
	"github.com/stretchr/testify/require"
)

type stubScorer struct {
	failRatio   map[string]float64
	score       map[string]float64
	blacklisted map[string]bool
}

func newStubScorer() *stubScorer {
	return &stubScorer{
		failRatio:   make(map[string]float64),
		score:       make(map[string]float64),
		blacklisted: make(map[string]bool),
	}
}

func (s *stubScorer) FailRatio(peerID string) float64 { return s.failRatio[peerID] }
func (s *stubScorer) Score(peerID string) float64 {
	if v, ok := s.score[peerID]; ok {
		return v
	}
	return 100
}
func (s *stubScorer) ShouldBlacklist(peerID string) bool { return s.blacklisted[peerID] }

func TestCostThresholdExcludesExpensivePeer(t *testing.T) {
	scorer := newStubScorer()
	c := Candidate{PeerID: "weak", Capability: common.PeerCapability{
		ModelParamSize: 0.5, CurrentLoad: 8, BatteryPct: 10, RSSI: -100, DeviceType: common.DevicePhone,
	}}
	scorer.failRatio["weak"] = 0.9

	require.GreaterOrEqual(t, Cost(c, scorer), CostThreshold)
	require.Empty(t, Select([]Candidate{c}, "", scorer, 3))
}

func TestSelectOrdersAscendingByCost(t *testing.T) {
	scorer := newStubScorer()
	cheap := Candidate{PeerID: "cheap", Capability: common.PeerCapability{ModelParamSize: 8, RSSI: -30}, LastSeenMs: 10}
	mid := Candidate{PeerID: "mid", Capability: common.PeerCapability{ModelParamSize: 4, RSSI: -50}, LastSeenMs: 20}

	ranked := Select([]Candidate{mid, cheap}, "", scorer, 2)
	require.Len(t, ranked, 2)
	require.Equal(t, "cheap", ranked[0].PeerID)
	require.Equal(t, "mid", ranked[1].PeerID)
}

func TestSelectExcludesBlacklistedAndTokenMismatch(t *testing.T) {
	scorer := newStubScorer()
	scorer.blacklisted["blocked"] = true

	candidates := []Candidate{
		{PeerID: "blocked", Capability: common.PeerCapability{ModelParamSize: 8}},
		{PeerID: "other-mesh", Capability: common.PeerCapability{ModelParamSize: 8}, MeshTokenHash: "different"},
		{PeerID: "ok", Capability: common.PeerCapability{ModelParamSize: 8}, MeshTokenHash: "same"},
	}

	ranked := Select(candidates, "same", scorer, 5)
	require.Len(t, ranked, 1)
	require.Equal(t, "ok", ranked[0].PeerID)
}

func TestSelectTiesBrokenByEarliestLastSeen(t *testing.T) {
	scorer := newStubScorer()
	a := Candidate{PeerID: "a", Capability: common.PeerCapability{ModelParamSize: 8}, LastSeenMs: 500}
	b := Candidate{PeerID: "b", Capability: common.PeerCapability{ModelParamSize: 8}, LastSeenMs: 100}

	ranked := Select([]Candidate{a, b}, "", scorer, 2)
	require.Equal(t, "b", ranked[0].PeerID)
	require.Equal(t, "a", ranked[1].PeerID)
}
