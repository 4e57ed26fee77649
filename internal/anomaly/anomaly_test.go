package anomaly

import (
	"testing"
	"time"

	"github.com/edgecoder/mesh/internal/blacklist"
	"github.com/edgecoder/mesh/internal/identity"
	"github.com/stretchr/testify/require"
)

func TestEvaluateFiresBHV001OnFastForgedResults(t *testing.T) {
	firings := Evaluate("agent-1", Stats{FastCount: 3, AvgDurationMs: 500})
	require.Len(t, firings, 1)
	require.Equal(t, "BHV001", firings[0].Rule.ID)
	require.Equal(t, SeverityCritical, firings[0].Rule.Severity)
	require.NotEmpty(t, firings[0].EvidenceHash)
}

func TestEvaluateFiresMultipleRulesWhenApplicable(t *testing.T) {
	firings := Evaluate("agent-1", Stats{
		Total:       10,
		SuccessRate: 0.05,
		Empty:       5,
	})
	ids := map[string]bool{}
	for _, f := range firings {
		ids[f.Rule.ID] = true
	}
	require.True(t, ids["BHV002"])
	require.True(t, ids["BHV004"])
}

func TestEvaluateNoFiringsOnHealthyStats(t *testing.T) {
	firings := Evaluate("agent-1", Stats{Total: 20, SuccessRate: 0.95, AvgLen: 500, OutputStddev: 500})
	require.Empty(t, firings)
}

func newTestBlacklister(t *testing.T) (*Blacklister, *blacklist.Ledger) {
	t.Helper()
	coord, err := identity.New("coordinator")
	require.NoError(t, err)
	reporter, err := identity.New("anomaly-detector")
	require.NoError(t, err)
	ledger, err := blacklist.Open(":memory:", coord)
	require.NoError(t, err)
	t.Cleanup(func() { ledger.Close() })
	return NewBlacklister(ledger, reporter), ledger
}

func TestCriticalFiringBlacklistsImmediately(t *testing.T) {
	b, ledger := newTestBlacklister(t)
	firings := Evaluate("agent-1", Stats{FastCount: 3, AvgDurationMs: 100})
	require.NoError(t, b.Observe("agent-1", firings, time.Now()))

	events, err := ledger.Events()
	require.NoError(t, err)
	require.Len(t, events, 1)
}

func TestThreeStrikesTriggersBlacklist(t *testing.T) {
	b, ledger := newTestBlacklister(t)
	now := time.Now()

	warnFiring := []Firing{{AgentID: "agent-1", Rule: Rules[8], EvidenceHash: "h1"}} // BHV009 WARN
	require.NoError(t, b.Observe("agent-1", warnFiring, now))
	require.NoError(t, b.Observe("agent-1", warnFiring, now.Add(time.Minute)))

	events, err := ledger.Events()
	require.NoError(t, err)
	require.Empty(t, events)

	require.NoError(t, b.Observe("agent-1", warnFiring, now.Add(2*time.Minute)))
	events, err = ledger.Events()
	require.NoError(t, err)
	require.Len(t, events, 1)

	// strikes reset after blacklist
	require.Empty(t, b.strikes["agent-1"])
}

func TestStrikesOutsideWindowAreExpired(t *testing.T) {
	b, ledger := newTestBlacklister(t)
	now := time.Now()
	warnFiring := []Firing{{AgentID: "agent-1", Rule: Rules[8], EvidenceHash: "h1"}}

	require.NoError(t, b.Observe("agent-1", warnFiring, now))
	require.NoError(t, b.Observe("agent-1", warnFiring, now.Add(25*time.Hour)))

	events, err := ledger.Events()
	require.NoError(t, err)
	require.Empty(t, events)
	require.Len(t, b.strikes["agent-1"], 1)
}
