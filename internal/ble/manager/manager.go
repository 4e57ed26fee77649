// Package manager implements C7, the BLE mesh manager: the component
// that actually routes one task over BLE as the routing waterfall's
// Bluetooth-local step (step 1), gluing the transport (C4), router
// (C5), quality monitor (C3), and offline ledger (C6) together.
package manager

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/edgecoder/mesh/internal/ble/common"
	"github.com/edgecoder/mesh/internal/ble/ledger"
	"github.com/edgecoder/mesh/internal/ble/router"
	"github.com/edgecoder/mesh/internal/ble/transport"
	"github.com/edgecoder/mesh/internal/credit"
	"github.com/edgecoder/mesh/internal/identity"
)

// Quality is the subset of quality.Monitor the manager needs; narrowed
// to an interface so router.Scorer and manager share one dependency
// shape without importing the quality package's gobreaker internals.
type Quality interface {
	router.Scorer
	RecordOutcome(peerID string, success bool)
}

// TopK is how many candidate peers the manager tries before giving up
// (spec §4.7: "top-k peers... for each peer in order").
const TopK = 3

// Manager routes single tasks over BLE.
type Manager struct {
	transport *transport.Transport
	quality   Quality
	ledger    *ledger.Ledger
	identity  *identity.Identity
	logger    *slog.Logger

	ownMeshTokenHash string
}

// New creates a BLE mesh manager.
func New(t *transport.Transport, q Quality, l *ledger.Ledger, id *identity.Identity, ownMeshTokenHash string, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		transport:        t,
		quality:          q,
		ledger:           l,
		identity:         id,
		ownMeshTokenHash: ownMeshTokenHash,
		logger:           logger.With("component", "ble_manager"),
	}
}

// RouteResult is the outcome of routing a task over BLE.
type RouteResult struct {
	ProviderID string
	Response   common.TaskResponse
	Credits    float64
}

// PeerCount reports how many BLE peers are currently known, without
// triggering a fresh scan. Used by the routing waterfall's bluetooth-local
// step to decide whether forwarding is worth attempting (spec §4.9 step 1).
func (m *Manager) PeerCount() int {
	return len(m.transport.Peers())
}

// RouteTask refreshes the peer table, ranks candidates, and tries each in
// order until one completes the task. Returns (nil, nil) if every peer
// failed (spec §4.7 step 4: "If all peers fail, return null").
func (m *Manager) RouteTask(ctx context.Context, requesterID string, req common.TaskRequest) (*RouteResult, error) {
	if err := m.transport.RefreshPeers(ctx); err != nil {
		m.logger.Warn("refresh peers failed", "error", err)
	}

	discovered := m.transport.Peers()
	candidates := make([]router.Candidate, 0, len(discovered))
	byID := make(map[string]transport.DiscoveredPeer, len(discovered))
	for _, p := range discovered {
		candidates = append(candidates, router.Candidate{
			PeerID:        p.Identity.AgentID,
			Capability:    p.Capability,
			MeshTokenHash: p.Identity.MeshTokenHash,
			LastSeenMs:    p.LastSeen.UnixMilli(),
		})
		byID[p.Identity.AgentID] = p
	}

	ranked := router.Select(candidates, m.ownMeshTokenHash, m.quality, TopK)
	if len(ranked) == 0 {
		return nil, nil
	}

	for _, r := range ranked {
		peer := byID[r.PeerID]
		resp, err := m.transport.SendTask(ctx, peer.Handle, req)
		if err != nil {
			m.logger.Warn("ble task failed", "peer", r.PeerID, "error", err)
			m.quality.RecordOutcome(r.PeerID, false)
			continue
		}
		if resp.Status != "completed" {
			m.quality.RecordOutcome(r.PeerID, false)
			continue
		}
		m.quality.RecordOutcome(r.PeerID, true)

		multiplier := credit.ModelQualityMultiplier(peer.Capability.ModelParamSize)
		credits := resp.CPUSeconds * credit.BaseRate(credit.ResourceCPU) * multiplier

		tx, err := m.recordTransaction(ctx, requesterID, r.PeerID, credits, resp.CPUSeconds, req.TaskID)
		if err != nil {
			return nil, fmt.Errorf("ble manager: record transaction: %w", err)
		}

		return &RouteResult{ProviderID: r.PeerID, Response: resp, Credits: tx.Credits}, nil
	}

	return nil, nil
}

func (m *Manager) recordTransaction(ctx context.Context, requesterID, providerID string, credits, cpuSeconds float64, taskID string) (ledger.Transaction, error) {
	taskHash := hashTask(taskID, requesterID, providerID)
	tx := ledger.Transaction{
		TxID:        taskHash,
		RequesterID: requesterID,
		ProviderID:  providerID,
		Credits:     credits,
		CPUSeconds:  cpuSeconds,
		TaskHash:    taskHash,
		CreatedAt:   time.Now(),
	}

	if m.identity != nil {
		payload, err := identity.Canonical(signableTransaction{
			TxID:        tx.TxID,
			RequesterID: tx.RequesterID,
			ProviderID:  tx.ProviderID,
			Credits:     tx.Credits,
			CPUSeconds:  tx.CPUSeconds,
			TaskHash:    tx.TaskHash,
		})
		if err == nil {
			tx.Signature = identity.EncodeSignature(m.identity.Sign(payload))
		}
	}

	if err := m.ledger.Record(ctx, tx); err != nil {
		return ledger.Transaction{}, err
	}
	return tx, nil
}

// signableTransaction is the canonical payload a transaction's
// signature covers: everything but the signature and timestamps, which
// are either derived or not yet known at signing time.
type signableTransaction struct {
	TxID        string  `json:"tx_id"`
	RequesterID string  `json:"requester_id"`
	ProviderID  string  `json:"provider_id"`
	Credits     float64 `json:"credits"`
	CPUSeconds  float64 `json:"cpu_seconds"`
	TaskHash    string  `json:"task_hash"`
}

func hashTask(taskID, requesterID, providerID string) string {
	sum := sha256.Sum256([]byte(taskID + "|" + requesterID + "|" + providerID))
	return hex.EncodeToString(sum[:])
}
