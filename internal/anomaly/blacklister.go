package anomaly

import (
	"encoding/hex"
	"sync"
	"time"

	"github.com/edgecoder/mesh/internal/blacklist"
	"github.com/edgecoder/mesh/internal/identity"
)

func hexEncode(b []byte) string { return hex.EncodeToString(b) }

type canonicalFiring struct {
	AgentID     string     `json:"agent_id"`
	RuleID      string     `json:"rule_id"`
	Severity    Severity   `json:"severity"`
	Reason      ReasonCode `json:"reason"`
	Description string     `json:"description"`
}

func canonicalFiringPayload(agentID string, rule Rule, _ Stats) ([]byte, error) {
	return identity.Canonical(canonicalFiring{
		AgentID:     agentID,
		RuleID:      rule.ID,
		Severity:    rule.Severity,
		Reason:      rule.Reason,
		Description: rule.Description,
	})
}

// strikeWindow is the rolling window strikes are counted within (spec
// §4.16: "default 24h").
const strikeWindow = 24 * time.Hour

// strikeThreshold is how many WARN/HIGH strikes accumulate a blacklist
// event.
const strikeThreshold = 3

type strike struct {
	at       time.Time
	reason   ReasonCode
	rank     int
	evidence string
}

// Blacklister is the auto-blacklister: it accumulates WARN/HIGH strikes
// per agent in a rolling window and escalates to the blacklist ledger
// once the threshold is reached, or immediately on a CRITICAL firing
// (spec §4.16).
type Blacklister struct {
	mu      sync.Mutex
	strikes map[string][]strike
	ledger  *blacklist.Ledger

	// reporterIdentity signs the evidence the blacklister itself
	// submits to the ledger, acting as its own reporter peer.
	reporterIdentity *identity.Identity
}

// NewBlacklister constructs a Blacklister writing escalations to ledger,
// signing its own evidence with reporterIdentity.
func NewBlacklister(ledger *blacklist.Ledger, reporterIdentity *identity.Identity) *Blacklister {
	return &Blacklister{
		strikes:          make(map[string][]strike),
		ledger:           ledger,
		reporterIdentity: reporterIdentity,
	}
}

func severityRank(s Severity) int {
	switch s {
	case SeverityCritical:
		return 3
	case SeverityHigh:
		return 2
	default:
		return 1
	}
}

// Observe processes a batch of rule firings for one agent at time now.
// A CRITICAL firing triggers an immediate blacklist event. WARN/HIGH
// firings add a strike; once strikeThreshold strikes fall within
// strikeWindow, a blacklist event fires using the most severe reason
// code seen among those strikes, and the agent's strike counter resets.
func (b *Blacklister) Observe(agentID string, firings []Firing, now time.Time) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, f := range firings {
		if f.Rule.Severity == SeverityCritical {
			if err := b.escalate(agentID, f.Rule.Reason, f.Rule.Description, f.EvidenceHash); err != nil {
				return err
			}
			continue
		}

		b.strikes[agentID] = append(b.strikes[agentID], strike{at: now, reason: f.Rule.Reason, rank: severityRank(f.Rule.Severity), evidence: f.EvidenceHash})
	}

	b.pruneAndMaybeEscalate(agentID, now)
	return nil
}

func (b *Blacklister) pruneAndMaybeEscalate(agentID string, now time.Time) {
	cur := b.strikes[agentID]
	kept := cur[:0]
	for _, s := range cur {
		if now.Sub(s.at) <= strikeWindow {
			kept = append(kept, s)
		}
	}
	b.strikes[agentID] = kept

	if len(kept) < strikeThreshold {
		return
	}

	worst := kept[0]
	for _, s := range kept[1:] {
		if s.rank > worst.rank {
			worst = s
		}
	}

	if err := b.escalate(agentID, worst.reason, descriptionForReason(worst.reason), worst.evidence); err == nil {
		delete(b.strikes, agentID)
	}
}

// descriptionForReason looks up the rule description for reason, used as
// the blacklist event's free-text reason; empty if no rule matches
// (shouldn't happen, since reasons always originate from Rules).
func descriptionForReason(reason ReasonCode) string {
	for _, r := range Rules {
		if r.Reason == reason {
			return r.Description
		}
	}
	return ""
}

func (b *Blacklister) escalate(agentID string, reason ReasonCode, description, evidenceHash string) error {
	ev := blacklist.ReporterEvidence{
		AgentID:        agentID,
		ReasonCode:     string(reason),
		Reason:         description,
		EvidenceHash:   evidenceHash,
		ReporterPeerID: b.reporterIdentity.PeerID,
	}
	canon, err := identity.Canonical(struct {
		AgentID        string `json:"agent_id"`
		ReasonCode     string `json:"reason_code"`
		EvidenceHash   string `json:"evidence_hash"`
		ReporterPeerID string `json:"reporter_peer_id"`
	}{ev.AgentID, ev.ReasonCode, ev.EvidenceHash, ev.ReporterPeerID})
	if err != nil {
		return err
	}
	ev.Signature = b.reporterIdentity.Sign(canon)

	_, err = b.ledger.AddEvent(ev, b.reporterIdentity.PublicKey)
	return err
}
