// Package blacklist implements C14: a hash-chained, coordinator-signed
// event log used to propagate and verify peer blacklisting, grounded on
// the teacher's kernel/core/mesh/attestation.go signing style and
// verifier.go's validation-result enum shape.
package blacklist

import (
	"crypto/ed25519"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/edgecoder/mesh/internal/identity"
)

// RejectReason enumerates validate_incoming's rejection codes (spec §4.14).
type RejectReason string

const (
	ReasonEventHashMismatch           RejectReason = "blacklist_event_hash_mismatch"
	ReasonCoordinatorSignatureInvalid RejectReason = "blacklist_coordinator_signature_invalid"
	ReasonChainBreak                  RejectReason = "chain_break"
)

// VerifyFailReason enumerates verify_chain's failure reasons.
type VerifyFailReason string

const (
	ReasonSequenceGap  VerifyFailReason = "sequence_gap"
	ReasonHashMismatch VerifyFailReason = "hash_mismatch"
	ReasonChainBreak2  VerifyFailReason = "chain_break"
)

// ReporterEvidence is the reporter-signed evidence submitted to
// add_event (spec §4.14 step 1).
type ReporterEvidence struct {
	AgentID        string
	ReasonCode     string
	Reason         string
	EvidenceHash   string
	ReporterPeerID string
	ExpiresAtMs    *int64
	Signature      []byte
}

// Event is one append-only blacklist ledger entry (spec §3: the full
// blacklist event record, plus the chain-linkage fields from spec §7's
// persisted layout).
type Event struct {
	EventID                   string
	Sequence                  int64
	AgentID                   string
	ReasonCode                string
	Reason                    string
	EvidenceHashSHA256        string
	ReporterID                string
	ReporterPublicKey         string
	ReporterSignature         string
	EvidenceSignatureVerified bool
	SourceCoordinatorID       string
	TimestampMs               int64
	ExpiresAtMs               *int64
	EventHash                 string
	PrevEventHash             string
	CanonicalPayloadJSON      string
	CoordinatorSignature      string
}

// canonicalFields is what event_hash is computed over: per spec §3,
// "all fields except coordinator_signature and event_hash".
type canonicalFields struct {
	EventID                   string `json:"event_id"`
	Sequence                  int64  `json:"sequence"`
	AgentID                   string `json:"agent_id"`
	ReasonCode                string `json:"reason_code"`
	Reason                    string `json:"reason"`
	EvidenceHashSHA256        string `json:"evidence_hash_sha256"`
	ReporterID                string `json:"reporter_id"`
	ReporterPublicKey         string `json:"reporter_public_key"`
	ReporterSignature         string `json:"reporter_signature"`
	EvidenceSignatureVerified bool   `json:"evidence_signature_verified"`
	SourceCoordinatorID       string `json:"source_coordinator_id"`
	TimestampMs               int64  `json:"timestamp_ms"`
	ExpiresAtMs               *int64 `json:"expires_at_ms,omitempty"`
	PrevEventHash             string `json:"prev_event_hash"`
}

var (
	errEventHashMismatch           = errors.New(string(ReasonEventHashMismatch))
	errCoordinatorSignatureInvalid = errors.New(string(ReasonCoordinatorSignatureInvalid))
	errChainBreak                  = errors.New(string(ReasonChainBreak))
)

const schema = `
CREATE TABLE IF NOT EXISTS blacklist_event (
	sequence               INTEGER PRIMARY KEY,
	event_id               TEXT NOT NULL,
	event_hash             TEXT NOT NULL,
	prev_event_hash        TEXT NOT NULL,
	canonical_payload_json TEXT NOT NULL,
	coordinator_signature  TEXT NOT NULL
);`

// Ledger is the append-only, hash-chained blacklist event log.
type Ledger struct {
	db             *sql.DB
	coordinator    *identity.Identity
	coordinatorPub ed25519.PublicKey

	head string
	next int64
}

// Open opens (creating if absent) a blacklist ledger backed by sqlite.
func Open(path string, coordinator *identity.Identity) (*Ledger, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("blacklist: open: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("blacklist: migrate: %w", err)
	}

	l := &Ledger{db: db, coordinator: coordinator, coordinatorPub: coordinator.PublicKey, head: "", next: 1}
	if err := l.loadHead(); err != nil {
		db.Close()
		return nil, err
	}
	return l, nil
}

func (l *Ledger) loadHead() error {
	row := l.db.QueryRow(`SELECT sequence, event_hash FROM blacklist_event ORDER BY sequence DESC LIMIT 1`)
	var seq int64
	var hash string
	if err := row.Scan(&seq, &hash); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		return fmt.Errorf("blacklist: load head: %w", err)
	}
	l.head = hash
	l.next = seq + 1
	return nil
}

// Close releases the underlying database handle.
func (l *Ledger) Close() error { return l.db.Close() }

// AddEvent verifies the reporter's signature over the canonical evidence
// object, computes and signs event_hash, appends it, and updates the
// chain head (spec §4.14).
func (l *Ledger) AddEvent(evidence ReporterEvidence, reporterPub ed25519.PublicKey) (Event, error) {
	canonEvidence, err := identity.Canonical(struct {
		AgentID        string `json:"agent_id"`
		ReasonCode     string `json:"reason_code"`
		EvidenceHash   string `json:"evidence_hash"`
		ReporterPeerID string `json:"reporter_peer_id"`
	}{evidence.AgentID, evidence.ReasonCode, evidence.EvidenceHash, evidence.ReporterPeerID})
	if err != nil {
		return Event{}, fmt.Errorf("blacklist: canonicalize evidence: %w", err)
	}

	verified := identity.Verify(reporterPub, canonEvidence, evidence.Signature)

	fields := canonicalFields{
		EventID:                   uuid.NewString(),
		Sequence:                  l.next,
		AgentID:                   evidence.AgentID,
		ReasonCode:                evidence.ReasonCode,
		Reason:                    evidence.Reason,
		EvidenceHashSHA256:        evidence.EvidenceHash,
		ReporterID:                evidence.ReporterPeerID,
		ReporterPublicKey:         hex.EncodeToString(reporterPub),
		ReporterSignature:         identity.EncodeSignature(evidence.Signature),
		EvidenceSignatureVerified: verified,
		SourceCoordinatorID:       l.coordinator.PeerID,
		TimestampMs:               time.Now().UnixMilli(),
		ExpiresAtMs:               evidence.ExpiresAtMs,
		PrevEventHash:             l.head,
	}
	payload, err := identity.Canonical(fields)
	if err != nil {
		return Event{}, fmt.Errorf("blacklist: canonicalize event: %w", err)
	}

	eventHash := hashChainLink(l.head, payload)
	sig := l.coordinator.Sign([]byte(eventHash))

	ev := Event{
		EventID:                   fields.EventID,
		Sequence:                  l.next,
		AgentID:                   fields.AgentID,
		ReasonCode:                fields.ReasonCode,
		Reason:                    fields.Reason,
		EvidenceHashSHA256:        fields.EvidenceHashSHA256,
		ReporterID:                fields.ReporterID,
		ReporterPublicKey:         fields.ReporterPublicKey,
		ReporterSignature:         fields.ReporterSignature,
		EvidenceSignatureVerified: verified,
		SourceCoordinatorID:       fields.SourceCoordinatorID,
		TimestampMs:               fields.TimestampMs,
		ExpiresAtMs:               fields.ExpiresAtMs,
		EventHash:                 eventHash,
		PrevEventHash:             l.head,
		CanonicalPayloadJSON:      string(payload),
		CoordinatorSignature:      identity.EncodeSignature(sig),
	}

	if _, err := l.db.Exec(`
		INSERT INTO blacklist_event (sequence, event_id, event_hash, prev_event_hash, canonical_payload_json, coordinator_signature)
		VALUES (?, ?, ?, ?, ?, ?)`,
		ev.Sequence, ev.EventID, ev.EventHash, ev.PrevEventHash, ev.CanonicalPayloadJSON, ev.CoordinatorSignature); err != nil {
		return Event{}, fmt.Errorf("blacklist: append: %w", err)
	}

	l.head = eventHash
	l.next++
	return ev, nil
}

// ValidateIncoming checks a gossiped event for hash and signature
// consistency and chain linkage against the local head (spec §4.14).
func (l *Ledger) ValidateIncoming(ev Event, peerPublicKey ed25519.PublicKey) error {
	recomputed := hashChainLink(ev.PrevEventHash, []byte(ev.CanonicalPayloadJSON))
	if recomputed != ev.EventHash {
		return errEventHashMismatch
	}

	sig, err := identity.DecodeSignature(ev.CoordinatorSignature)
	if err != nil || !identity.Verify(peerPublicKey, []byte(ev.EventHash), sig) {
		return errCoordinatorSignatureInvalid
	}

	if ev.PrevEventHash != l.head {
		return errChainBreak
	}
	return nil
}

func hashChainLink(prevHash string, payload []byte) string {
	h := sha256.New()
	h.Write([]byte(prevHash))
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}

// VerifyResult is verify_chain's report (spec §4.14).
type VerifyResult struct {
	Valid      bool
	Breakpoint int64
	Reason     VerifyFailReason
}

// VerifyChain confirms strictly consecutive sequence numbers, that each
// hash matches SHA256(prev_hash||payload), and that each event's
// prev_hash equals the prior event's hash.
func VerifyChain(events []Event) VerifyResult {
	var prevHash string
	var prevSeq int64 = -1

	for _, ev := range events {
		if prevSeq >= 0 && ev.Sequence != prevSeq+1 {
			return VerifyResult{Valid: false, Breakpoint: ev.Sequence, Reason: ReasonSequenceGap}
		}
		if ev.PrevEventHash != prevHash {
			return VerifyResult{Valid: false, Breakpoint: ev.Sequence, Reason: ReasonChainBreak2}
		}
		recomputed := hashChainLink(ev.PrevEventHash, []byte(ev.CanonicalPayloadJSON))
		if recomputed != ev.EventHash {
			return VerifyResult{Valid: false, Breakpoint: ev.Sequence, Reason: ReasonHashMismatch}
		}
		prevHash = ev.EventHash
		prevSeq = ev.Sequence
	}
	return VerifyResult{Valid: true}
}

// Events returns the full event log in sequence order.
func (l *Ledger) Events() ([]Event, error) {
	rows, err := l.db.Query(`SELECT sequence, event_id, event_hash, prev_event_hash, canonical_payload_json, coordinator_signature FROM blacklist_event ORDER BY sequence ASC`)
	if err != nil {
		return nil, fmt.Errorf("blacklist: list events: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var ev Event
		if err := rows.Scan(&ev.Sequence, &ev.EventID, &ev.EventHash, &ev.PrevEventHash, &ev.CanonicalPayloadJSON, &ev.CoordinatorSignature); err != nil {
			return nil, fmt.Errorf("blacklist: scan event: %w", err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}
