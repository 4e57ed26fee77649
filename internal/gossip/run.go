package gossip

import (
	"context"
	"fmt"
	"time"
)

// Bootstrap contacts each seed URL in order: register with it, fetch its
// peer list, then register with each learned peer (spec §4.8). It
// returns an error when seeds is non-empty and no seed accepted the
// registration.
func (m *Manager) Bootstrap(ctx context.Context, seeds []string) error {
	client := NewClient(m.httpClient)

	registered := 0
	for _, seed := range seeds {
		count, err := client.RegisterPeer(ctx, seed, m.record)
		if err != nil {
			m.logger.Warn("bootstrap register failed", "seed", seed, "error", err)
			continue
		}
		registered++
		m.logger.Info("bootstrap registered", "seed", seed, "peer_count", count)

		peers, err := client.FetchPeers(ctx, seed)
		if err != nil {
			m.logger.Warn("bootstrap fetch peers failed", "seed", seed, "error", err)
			continue
		}
		for _, p := range peers {
			if p.PeerID == m.self.PeerID {
				continue
			}
			m.RegisterPeer(p)
			if p.CoordinatorURL != "" && p.CoordinatorURL != seed {
				if _, err := client.RegisterPeer(ctx, p.CoordinatorURL, m.record); err != nil {
					m.logger.Warn("register with learned peer failed", "peer", p.PeerID, "error", err)
				}
			}
		}
	}
	if len(seeds) > 0 && registered == 0 {
		return fmt.Errorf("gossip: bootstrap: no seed accepted registration")
	}
	return nil
}

// Run starts the periodic broadcast and eviction loops; blocks until ctx
// is cancelled.
func (m *Manager) Run(ctx context.Context) {
	broadcastTicker := time.NewTicker(BroadcastInterval)
	evictTicker := time.NewTicker(EvictionInterval)
	defer broadcastTicker.Stop()
	defer evictTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stop:
			return
		case <-broadcastTicker.C:
			m.broadcastPeerExchange(ctx)
		case <-evictTicker.C:
			evicted := m.EvictStale()
			if evicted > 0 {
				m.logger.Info("evicted stale peers", "count", evicted)
			}
		}
	}
}

func (m *Manager) broadcastPeerExchange(ctx context.Context) {
	peers := m.Peers()
	recent := mostRecentlySeen(peers, MaxExchangePeers)

	env, err := m.NewEnvelope(MessageTypePeerExchange, PeerExchangePayload{Peers: recent}, TTL)
	if err != nil {
		m.logger.Warn("build peer_exchange failed", "error", err)
		return
	}

	client := NewClient(m.httpClient)
	for _, p := range peers {
		if p.CoordinatorURL == "" {
			continue
		}
		if err := client.Ingest(ctx, p.CoordinatorURL, env); err != nil {
			m.logger.Warn("broadcast to peer failed", "peer", p.PeerID, "error", err)
		}
	}
}

func mostRecentlySeen(peers []PeerRecord, limit int) []PeerRecord {
	sorted := append([]PeerRecord(nil), peers...)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j].LastSeenMs > sorted[j-1].LastSeenMs; j-- {
			sorted[j], sorted[j-1] = sorted[j-1], sorted[j]
		}
	}
	if len(sorted) > limit {
		sorted = sorted[:limit]
	}
	return sorted
}
