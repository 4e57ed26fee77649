// Package gossip implements C8, the gossip peer table: bootstrap against
// seed URLs, a periodic peer_exchange broadcast, TTL eviction, and
// signed-envelope ingest, grounded on the teacher's
// kernel/core/mesh/routing/gossip.go GossipManager.
package gossip

import (
	"time"
)

// PeerRecord is one entry in a node's peer table (spec §6).
type PeerRecord struct {
	PeerID         string `json:"peer_id"`
	PublicKeyPEM   string `json:"public_key_pem"`
	CoordinatorURL string `json:"coordinator_url"`
	NetworkMode    string `json:"network_mode"`
	Role           string `json:"role"`
	LastSeenMs     int64  `json:"last_seen_ms"`

	lastSeenAt time.Time
}

// TTL is how long a peer may go unseen before eviction (spec §4.8).
const TTL = 120 * time.Second

// EvictionInterval is how often stale peers are swept.
const EvictionInterval = 60 * time.Second

// BroadcastInterval is how often a node broadcasts its peer_exchange.
const BroadcastInterval = 30 * time.Second

// MaxExchangePeers bounds a single peer_exchange payload (spec §4.8: "up
// to 50 most-recently-seen peers").
const MaxExchangePeers = 50
