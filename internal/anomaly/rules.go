// Package anomaly implements C16: behavior-rule evaluation and the
// strike-counter auto-blacklister, grounded on the teacher's
// kernel/core/mesh/quality scoring shape (internal/quality) generalized
// from pass/fail ratios to a fuller per-agent behavior-statistics rule
// table, and on internal/blacklist for the resulting ledger event.
package anomaly

import "crypto/sha256"

// Severity is a rule firing's severity tier.
type Severity string

const (
	SeverityWarn     Severity = "WARN"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// Stats is a rolling 1h window of per-agent behavior statistics the
// rule table is evaluated against (spec §4.16).
type Stats struct {
	FastCount       int     // completions under the fast-result threshold
	AvgDurationMs   float64 // average task duration across the window
	Empty           int     // empty-output completions
	Total           int     // total completions in the window
	IdenticalConsec int     // longest run of byte-identical consecutive outputs
	SuccessRate     float64 // successful / total
	SigFail         int     // signature verification failures
	Replay          int     // replayed-nonce rejections
	HeartbeatGapMax float64 // longest gap between heartbeats, in minutes
	Claims          int     // task claims in the window
	Concurrent      int     // peak concurrently claimed tasks
	Requeue         int     // stale requeues attributed to this agent
	Registrations   int     // agent (re)registrations in the window
	OutputStddev    float64 // stddev of output length
	AvgLen          float64 // average output length
}

// ReasonCode mirrors the blacklist ledger's reason_code vocabulary.
type ReasonCode string

const (
	ReasonForgedResults   ReasonCode = "forged_results"
	ReasonPolicyViolation ReasonCode = "policy_violation"
	ReasonCredentialAbuse ReasonCode = "credential_abuse"
	ReasonDosBehavior     ReasonCode = "dos_behavior"
)

// Rule is one BHV00N entry: an id, severity, reason code, description,
// and predicate over a Stats window.
type Rule struct {
	ID          string
	Severity    Severity
	Reason      ReasonCode
	Description string
	Predicate   func(Stats) bool
}

// Rules is the full BHV001-BHV010 table (spec §4.16).
var Rules = []Rule{
	{
		ID:          "BHV001",
		Severity:    SeverityCritical,
		Reason:      ReasonForgedResults,
		Description: "suspiciously fast completions",
		Predicate: func(s Stats) bool {
			return s.FastCount >= 3 && s.AvgDurationMs < 1000
		},
	},
	{
		ID:          "BHV002",
		Severity:    SeverityHigh,
		Reason:      ReasonForgedResults,
		Description: "mass empty output",
		Predicate: func(s Stats) bool {
			return s.Empty >= 5 && s.Total > 0 && float64(s.Empty)/float64(s.Total) >= 0.5
		},
	},
	{
		ID:          "BHV003",
		Severity:    SeverityHigh,
		Reason:      ReasonForgedResults,
		Description: "duplicate forgery",
		Predicate: func(s Stats) bool {
			return s.IdenticalConsec >= 3
		},
	},
	{
		ID:          "BHV004",
		Severity:    SeverityHigh,
		Reason:      ReasonPolicyViolation,
		Description: "success collapse",
		Predicate: func(s Stats) bool {
			return s.Total >= 10 && s.SuccessRate <= 0.1
		},
	},
	{
		ID:          "BHV005",
		Severity:    SeverityCritical,
		Reason:      ReasonCredentialAbuse,
		Description: "protocol abuse",
		Predicate: func(s Stats) bool {
			return s.SigFail+s.Replay >= 5
		},
	},
	{
		ID:          "BHV006",
		Severity:    SeverityHigh,
		Reason:      ReasonDosBehavior,
		Description: "heartbeat manipulation",
		Predicate: func(s Stats) bool {
			return s.HeartbeatGapMax >= 5 && s.Claims > 0
		},
	},
	{
		ID:          "BHV007",
		Severity:    SeverityHigh,
		Reason:      ReasonDosBehavior,
		Description: "task hoarding",
		Predicate: func(s Stats) bool {
			return s.Concurrent >= 5 || s.Requeue >= 8
		},
	},
	{
		ID:          "BHV008",
		Severity:    SeverityHigh,
		Reason:      ReasonDosBehavior,
		Description: "registration storm",
		Predicate: func(s Stats) bool {
			return s.Registrations >= 10
		},
	},
	{
		ID:          "BHV009",
		Severity:    SeverityWarn,
		Reason:      ReasonForgedResults,
		Description: "robot precision",
		Predicate: func(s Stats) bool {
			return s.OutputStddev < 50 && s.Total >= 10
		},
	},
	{
		ID:          "BHV010",
		Severity:    SeverityWarn,
		Reason:      ReasonForgedResults,
		Description: "tiny outputs",
		Predicate: func(s Stats) bool {
			return s.AvgLen < 10 && s.Total >= 8 && s.SuccessRate > 0.8
		},
	},
}

// Firing is one rule matching an agent's current stats window.
type Firing struct {
	AgentID      string
	Rule         Rule
	EvidenceHash string
}

// Evaluate runs every rule in Rules against stats and returns the
// firings, in table order.
func Evaluate(agentID string, stats Stats) []Firing {
	var firings []Firing
	for _, rule := range Rules {
		if rule.Predicate(stats) {
			firings = append(firings, Firing{
				AgentID:      agentID,
				Rule:         rule,
				EvidenceHash: evidenceHash(agentID, rule, stats),
			})
		}
	}
	return firings
}

// evidenceHash is the SHA-256 of the canonical rule-firing payload
// (spec §4.16: "Evidence hash = SHA-256 of the canonical rule-firing
// payload").
func evidenceHash(agentID string, rule Rule, stats Stats) string {
	payload, err := canonicalFiringPayload(agentID, rule, stats)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(payload)
	return hexEncode(sum[:])
}
