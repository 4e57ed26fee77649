package gossip

import (
	"time"
)

// Envelope is the signed message wrapper exchanged over POST /mesh/ingest
// (spec §4.8, §6).
type Envelope struct {
	ID         string `json:"id"`
	Type       string `json:"type"`
	FromPeerID string `json:"from_peer_id"`
	IssuedAtMs int64  `json:"issued_at_ms"`
	TTLMs      int64  `json:"ttl_ms"`
	Payload    any    `json:"payload"`
	Signature  string `json:"signature,omitempty"`
}

// signingView is the subset of Envelope fields signed over; Signature
// itself is excluded so signing is idempotent across re-marshal.
type signingView struct {
	ID         string `json:"id"`
	Type       string `json:"type"`
	FromPeerID string `json:"from_peer_id"`
	IssuedAtMs int64  `json:"issued_at_ms"`
	TTLMs      int64  `json:"ttl_ms"`
	Payload    any    `json:"payload"`
}

func (e Envelope) signingPayload() signingView {
	return signingView{
		ID:         e.ID,
		Type:       e.Type,
		FromPeerID: e.FromPeerID,
		IssuedAtMs: e.IssuedAtMs,
		TTLMs:      e.TTLMs,
		Payload:    e.Payload,
	}
}

// Expired reports whether the envelope has outlived its TTL.
func (e Envelope) Expired(now time.Time) bool {
	issued := time.UnixMilli(e.IssuedAtMs)
	return now.Sub(issued) > time.Duration(e.TTLMs)*time.Millisecond
}

// PeerExchangePayload is the payload carried by a "peer_exchange" message.
type PeerExchangePayload struct {
	Peers []PeerRecord `json:"peers"`
}

const (
	MessageTypePeerExchange = "peer_exchange"
)
