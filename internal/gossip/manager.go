package gossip

import (
	"context"
	"crypto/ed25519"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/google/uuid"
	"github.com/yasserelgammal/rate-limiter/limiter"
	"github.com/yasserelgammal/rate-limiter/store"

	"github.com/edgecoder/mesh/internal/identity"
)

// Config tunes the gossip manager's rate limiting and dedup filter,
// matching the teacher's GossipConfig shape (kernel/core/mesh/routing/gossip.go).
type Config struct {
	RateLimitPerSecond int
	RateLimitBurst     int
	BloomExpected      uint
	BloomFalsePositive float64
	MeshToken          string
}

// DefaultConfig returns production gossip tuning.
func DefaultConfig() Config {
	return Config{
		RateLimitPerSecond: 20,
		RateLimitBurst:     40,
		BloomExpected:      100_000,
		BloomFalsePositive: 0.01,
	}
}

// Handler processes an ingested message of a type this node doesn't
// already know, registered by higher layers (spec §4.8: "forwarded to
// handlers registered by higher layers").
type Handler func(ctx context.Context, env Envelope) error

// Manager is one node's gossip peer table and message bus.
type Manager struct {
	self   *identity.Identity
	record PeerRecord
	config Config
	logger *slog.Logger

	mu    sync.RWMutex
	peers map[string]*PeerRecord

	seenMu sync.Mutex
	seen   *bloom.BloomFilter

	limiter      *limiter.TokenBucket
	limiterStore store.Store

	handlersMu sync.RWMutex
	handlers   map[string]Handler

	httpClient *http.Client

	stop chan struct{}
}

// New creates a gossip manager for self, advertising the given record.
func New(self *identity.Identity, record PeerRecord, config Config, logger *slog.Logger) (*Manager, error) {
	if logger == nil {
		logger = slog.Default()
	}

	bf := bloom.NewWithEstimates(config.BloomExpected, config.BloomFalsePositive)

	limiterStore := store.NewMemoryStore(time.Minute)
	tb, err := limiter.NewTokenBucket(limiter.Config{
		Rate:     int64(config.RateLimitPerSecond),
		Duration: time.Second,
		Burst:    int64(config.RateLimitBurst),
	}, limiterStore)
	if err != nil {
		return nil, fmt.Errorf("gossip: init rate limiter: %w", err)
	}

	record.PeerID = self.PeerID
	pem, err := self.PublicKeyPEM()
	if err != nil {
		return nil, fmt.Errorf("gossip: encode public key: %w", err)
	}
	record.PublicKeyPEM = pem

	return &Manager{
		self:         self,
		record:       record,
		config:       config,
		logger:       logger.With("component", "gossip", "peer_id", self.PeerID),
		peers:        make(map[string]*PeerRecord),
		seen:         bf,
		limiter:      tb,
		limiterStore: limiterStore,
		handlers:     make(map[string]Handler),
		httpClient:   &http.Client{Timeout: 10 * time.Second},
		stop:         make(chan struct{}),
	}, nil
}

// RegisterHandler registers a handler for an ingested message type.
func (m *Manager) RegisterHandler(msgType string, h Handler) {
	m.handlersMu.Lock()
	defer m.handlersMu.Unlock()
	m.handlers[msgType] = h
}

// Identity returns this node's own peer record.
func (m *Manager) Identity() PeerRecord { return m.record }

// Peers returns a snapshot of the current peer table.
func (m *Manager) Peers() []PeerRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]PeerRecord, 0, len(m.peers))
	for _, p := range m.peers {
		out = append(out, *p)
	}
	return out
}

// RegisterPeer adds or refreshes a peer in the table.
func (m *Manager) RegisterPeer(p PeerRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	p.lastSeenAt = now
	p.LastSeenMs = now.UnixMilli()
	m.peers[p.PeerID] = &p
}

func (m *Manager) touch(peerID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.peers[peerID]; ok {
		now := time.Now()
		p.lastSeenAt = now
		p.LastSeenMs = now.UnixMilli()
	}
}

// EvictStale removes peers not seen within TTL.
func (m *Manager) EvictStale() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	evicted := 0
	for id, p := range m.peers {
		if now.Sub(p.lastSeenAt) > TTL {
			delete(m.peers, id)
			evicted++
		}
	}
	return evicted
}

func (m *Manager) seenBefore(id string) bool {
	m.seenMu.Lock()
	defer m.seenMu.Unlock()
	if m.seen.Test([]byte(id)) {
		return true
	}
	m.seen.Add([]byte(id))
	return false
}

// Sign produces a canonical-JSON signature over env (excluding Signature
// itself) and returns a new envelope with Signature populated.
func (m *Manager) Sign(env Envelope) (Envelope, error) {
	canon, err := identity.Canonical(env.signingPayload())
	if err != nil {
		return Envelope{}, fmt.Errorf("gossip: canonicalize envelope: %w", err)
	}
	env.Signature = identity.EncodeSignature(m.self.Sign(canon))
	return env, nil
}

// NewEnvelope builds and signs a fresh envelope of msgType carrying payload.
func (m *Manager) NewEnvelope(msgType string, payload any, ttl time.Duration) (Envelope, error) {
	env := Envelope{
		ID:         uuid.NewString(),
		Type:       msgType,
		FromPeerID: m.self.PeerID,
		IssuedAtMs: time.Now().UnixMilli(),
		TTLMs:      ttl.Milliseconds(),
		Payload:    payload,
	}
	return m.Sign(env)
}

// Verify checks an envelope's signature against the sender's cached
// public key in the peer table.
func (m *Manager) Verify(env Envelope) (bool, error) {
	m.mu.RLock()
	sender, ok := m.peers[env.FromPeerID]
	m.mu.RUnlock()
	if !ok {
		return false, fmt.Errorf("gossip: unknown sender %s", env.FromPeerID)
	}

	pub, err := identity.ParsePublicKeyPEM(sender.PublicKeyPEM)
	if err != nil {
		return false, fmt.Errorf("gossip: parse sender key: %w", err)
	}
	sig, err := identity.DecodeSignature(env.Signature)
	if err != nil {
		return false, fmt.Errorf("gossip: decode signature: %w", err)
	}
	canon, err := identity.Canonical(env.signingPayload())
	if err != nil {
		return false, fmt.Errorf("gossip: canonicalize envelope: %w", err)
	}
	return identity.Verify(pub, canon, sig), nil
}

// Ingest handles a received envelope: drops own messages, enforces rate
// limiting and dedup, updates the sender's last_seen_ms, and dispatches
// to a registered handler for unknown types (spec §4.8).
func (m *Manager) Ingest(ctx context.Context, env Envelope) error {
	if env.FromPeerID == m.self.PeerID {
		return nil
	}
	if !m.limiter.Allow(env.FromPeerID) {
		return fmt.Errorf("gossip: rate limited peer %s", env.FromPeerID)
	}
	if m.seenBefore(env.ID) {
		return nil
	}

	ok, err := m.Verify(env)
	if err != nil {
		return fmt.Errorf("gossip: verify: %w", err)
	}
	if !ok {
		return fmt.Errorf("gossip: signature invalid for %s", env.FromPeerID)
	}

	m.touch(env.FromPeerID)

	switch env.Type {
	case MessageTypePeerExchange:
		return m.handlePeerExchange(env)
	default:
		m.handlersMu.RLock()
		h, ok := m.handlers[env.Type]
		m.handlersMu.RUnlock()
		if !ok {
			return nil
		}
		return h(ctx, env)
	}
}

func (m *Manager) handlePeerExchange(env Envelope) error {
	raw, err := json.Marshal(env.Payload)
	if err != nil {
		return fmt.Errorf("gossip: marshal peer_exchange payload: %w", err)
	}
	var payload PeerExchangePayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return fmt.Errorf("gossip: decode peer_exchange payload: %w", err)
	}
	for _, p := range payload.Peers {
		if p.PeerID == m.self.PeerID {
			continue
		}
		m.mu.RLock()
		_, known := m.peers[p.PeerID]
		m.mu.RUnlock()
		if !known {
			m.RegisterPeer(p)
		}
	}
	return nil
}

// TokenMatches compares an incoming x-mesh-token header against the
// configured mesh token in constant time (spec §6).
func (m *Manager) TokenMatches(provided string) bool {
	if m.config.MeshToken == "" {
		return true
	}
	return subtle.ConstantTimeCompare([]byte(provided), []byte(m.config.MeshToken)) == 1
}

// Close stops background loops (no-op if Run was never started).
func (m *Manager) Close() { close(m.stop) }
