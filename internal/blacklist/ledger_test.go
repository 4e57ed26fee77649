package blacklist

import (
	"crypto/ed25519"
	"strings"
	"testing"

	"github.com/edgecoder/mesh/internal/identity"
	"github.com/stretchr/testify/require"
)

func newTestLedger(t *testing.T) (*Ledger, *identity.Identity) {
	t.Helper()
	coord, err := identity.New("coordinator")
	require.NoError(t, err)
	l, err := Open(":memory:", coord)
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l, coord
}

func signedEvidence(t *testing.T, reporter *identity.Identity, agentID string) (ReporterEvidence, ed25519.PublicKey) {
	t.Helper()
	ev := ReporterEvidence{AgentID: agentID, ReasonCode: "forged_results", EvidenceHash: "abc123", ReporterPeerID: reporter.PeerID}
	canon, err := identity.Canonical(struct {
		AgentID        string `json:"agent_id"`
		ReasonCode     string `json:"reason_code"`
		EvidenceHash   string `json:"evidence_hash"`
		ReporterPeerID string `json:"reporter_peer_id"`
	}{ev.AgentID, ev.ReasonCode, ev.EvidenceHash, ev.ReporterPeerID})
	require.NoError(t, err)
	ev.Signature = reporter.Sign(canon)
	return ev, reporter.PublicKey
}

func TestAddEventChainsSequentially(t *testing.T) {
	l, _ := newTestLedger(t)
	reporter, err := identity.New("reporter")
	require.NoError(t, err)

	ev1, pub := signedEvidence(t, reporter, "agent-1")
	e1, err := l.AddEvent(ev1, pub)
	require.NoError(t, err)
	require.Equal(t, int64(1), e1.Sequence)
	require.Empty(t, e1.PrevEventHash)
	require.True(t, e1.EvidenceSignatureVerified)

	ev2, _ := signedEvidence(t, reporter, "agent-2")
	e2, err := l.AddEvent(ev2, pub)
	require.NoError(t, err)
	require.Equal(t, int64(2), e2.Sequence)
	require.Equal(t, e1.EventHash, e2.PrevEventHash)
}

func TestAddEventFlagsUnverifiedEvidence(t *testing.T) {
	l, _ := newTestLedger(t)
	reporter, err := identity.New("reporter")
	require.NoError(t, err)
	other, err := identity.New("other")
	require.NoError(t, err)

	ev, _ := signedEvidence(t, reporter, "agent-1")
	e, err := l.AddEvent(ev, other.PublicKey) // wrong public key
	require.NoError(t, err)
	require.False(t, e.EvidenceSignatureVerified)
}

func TestValidateIncomingDetectsTamperedReasonText(t *testing.T) {
	l, coord := newTestLedger(t)
	reporter, err := identity.New("reporter")
	require.NoError(t, err)

	ev, pub := signedEvidence(t, reporter, "agent-1")
	ev.Reason = "repeatedly returned forged task output"
	e, err := l.AddEvent(ev, pub)
	require.NoError(t, err)
	require.NoError(t, l.ValidateIncoming(e, coord.PublicKey))

	tampered := e
	tampered.CanonicalPayloadJSON = strings.Replace(e.CanonicalPayloadJSON, e.Reason, "a full pardon, nothing to see here", 1)
	err = l.ValidateIncoming(tampered, coord.PublicKey)
	require.ErrorIs(t, err, errEventHashMismatch)
}

func TestValidateIncomingDetectsHashMismatch(t *testing.T) {
	l, coord := newTestLedger(t)
	reporter, err := identity.New("reporter")
	require.NoError(t, err)

	ev, pub := signedEvidence(t, reporter, "agent-1")
	e, err := l.AddEvent(ev, pub)
	require.NoError(t, err)

	e.EventHash = "tampered"
	err = l.ValidateIncoming(e, coord.PublicKey)
	require.ErrorIs(t, err, errEventHashMismatch)
}

func TestValidateIncomingDetectsBadSignature(t *testing.T) {
	l, _ := newTestLedger(t)
	reporter, err := identity.New("reporter")
	require.NoError(t, err)
	other, err := identity.New("other")
	require.NoError(t, err)

	ev, pub := signedEvidence(t, reporter, "agent-1")
	e, err := l.AddEvent(ev, pub)
	require.NoError(t, err)

	err = l.ValidateIncoming(e, other.PublicKey)
	require.ErrorIs(t, err, errCoordinatorSignatureInvalid)
}

func TestVerifyChainDetectsSequenceGap(t *testing.T) {
	events := []Event{
		{Sequence: 1, EventHash: hashChainLink("", []byte("a")), PrevEventHash: "", CanonicalPayloadJSON: "a"},
		{Sequence: 3, EventHash: "x", PrevEventHash: "y", CanonicalPayloadJSON: "b"},
	}
	result := VerifyChain(events)
	require.False(t, result.Valid)
	require.Equal(t, ReasonSequenceGap, result.Reason)
}

func TestVerifyChainValidForProperChain(t *testing.T) {
	h1 := hashChainLink("", []byte("a"))
	h2 := hashChainLink(h1, []byte("b"))
	events := []Event{
		{Sequence: 1, EventHash: h1, PrevEventHash: "", CanonicalPayloadJSON: "a"},
		{Sequence: 2, EventHash: h2, PrevEventHash: h1, CanonicalPayloadJSON: "b"},
	}
	result := VerifyChain(events)
	require.True(t, result.Valid)
}
