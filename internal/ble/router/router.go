// Package router implements C5: cost-based BLE peer selection. It scores
// each discovered peer on model fit, load, battery, signal, reliability,
// and connection quality, then returns the cheapest peers below a fixed
// threshold, grounded on the teacher's allocator.go replica-sizing and
// cost-clamping style (kernel/core/mesh/allocator.go).
package router

import (
	"sort"

	"github.com/edgecoder/mesh/internal/ble/common"
)

// CostThreshold is the maximum cost at which a peer is still selectable
// (spec §4.5, §8 property 10).
const CostThreshold = 200.0

// preferredParamSize is the model size (billions of params) above which
// model_preference_penalty is zero.
const preferredParamSize = 7.0

// Scorer supplies the reliability and connection-quality terms that live
// outside the raw capability record (C3's quality.Monitor).
type Scorer interface {
	FailRatio(peerID string) float64
	Score(peerID string) float64
	ShouldBlacklist(peerID string) bool
}

// Candidate is a peer eligible for cost scoring.
type Candidate struct {
	PeerID        string
	Capability    common.PeerCapability
	MeshTokenHash string
	LastSeenMs    int64
}

// Ranked is a scored, selectable candidate.
type Ranked struct {
	Candidate
	Cost float64
}

// Cost computes the scalar selection cost for one candidate (spec §4.5).
func Cost(c Candidate, scorer Scorer) float64 {
	modelPenalty := 0.0
	if d := preferredParamSize - c.Capability.ModelParamSize; d > 0 {
		modelPenalty = d * 8
	}

	loadPenalty := float64(c.Capability.CurrentLoad) * 20

	batteryPenalty := 0.0
	if c.Capability.DeviceType == common.DevicePhone {
		batteryPenalty = (100 - float64(c.Capability.BatteryPct)) * 0.5
	}

	signalPenalty := clamp((-c.Capability.RSSI-30)*0.5, 0, 30)

	reliabilityPenalty := scorer.FailRatio(c.PeerID) * 60

	qualityPenalty := (100 - scorer.Score(c.PeerID)) * 0.3

	return modelPenalty + loadPenalty + batteryPenalty + signalPenalty + reliabilityPenalty + qualityPenalty
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Select filters candidates by mesh token match and blacklist status,
// scores the rest, and returns up to k peers below CostThreshold ordered
// ascending by cost, ties broken by earliest LastSeenMs.
func Select(candidates []Candidate, ownMeshTokenHash string, scorer Scorer, k int) []Ranked {
	ranked := make([]Ranked, 0, len(candidates))
	for _, c := range candidates {
		if ownMeshTokenHash != "" && c.MeshTokenHash != "" && c.MeshTokenHash != ownMeshTokenHash {
			continue
		}
		if scorer.ShouldBlacklist(c.PeerID) {
			continue
		}
		cost := Cost(c, scorer)
		if cost >= CostThreshold {
			continue
		}
		ranked = append(ranked, Ranked{Candidate: c, Cost: cost})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Cost != ranked[j].Cost {
			return ranked[i].Cost < ranked[j].Cost
		}
		return ranked[i].LastSeenMs < ranked[j].LastSeenMs
	})

	if k > 0 && len(ranked) > k {
		ranked = ranked[:k]
	}
	return ranked
}
