package quality

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSilentPeerScoresHundred(t *testing.T) {
	m := New(DefaultConfig())
	require.Equal(t, 100.0, m.Score("unknown-peer"))
}

func TestScoreRespondsToRSSIAndOutcomes(t *testing.T) {
	m := New(DefaultConfig())
	m.RecordRSSI("peer-a", -30)
	for i := 0; i < 10; i++ {
		m.RecordOutcome("peer-a", true)
	}
	good := m.Score("peer-a")

	m.RecordRSSI("peer-b", -90)
	for i := 0; i < 10; i++ {
		m.RecordOutcome("peer-b", false)
	}
	bad := m.Score("peer-b")

	require.Greater(t, good, bad)
}

func TestShouldBlacklistOpensAfterConsecutiveFailures(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BreakerFailureThreshold = 3
	m := New(cfg)

	require.False(t, m.ShouldBlacklist("peer-c"))
	for i := 0; i < 3; i++ {
		m.RecordOutcome("peer-c", false)
	}
	require.True(t, m.ShouldBlacklist("peer-c"))
}

func TestFailRatio(t *testing.T) {
	m := New(DefaultConfig())
	require.Equal(t, 0.0, m.FailRatio("peer-d"))
	m.RecordOutcome("peer-d", true)
	m.RecordOutcome("peer-d", false)
	m.RecordOutcome("peer-d", false)
	require.InDelta(t, 2.0/3.0, m.FailRatio("peer-d"), 1e-9)
}

func TestScoreDecaysTowardNeutralWhenSilent(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DecayHalfLife = time.Minute
	m := New(cfg)

	m.RecordRSSI("peer-f", -90)
	for i := 0; i < 10; i++ {
		m.RecordOutcome("peer-f", false)
	}
	fresh := m.Score("peer-f")
	require.Less(t, fresh, 100.0)

	m.peers["peer-f"].lastUpdated = time.Now().Add(-cfg.DecayHalfLife)
	halfDecayed := m.Score("peer-f")
	require.InDelta(t, 100+(fresh-100)*0.5, halfDecayed, 0.5)
	require.Greater(t, halfDecayed, fresh)

	m.peers["peer-f"].lastUpdated = time.Now().Add(-10 * cfg.DecayHalfLife)
	mostlyDecayed := m.Score("peer-f")
	require.InDelta(t, 100.0, mostlyDecayed, 0.5)
}

func TestScoreNeverEscapesBounds(t *testing.T) {
	m := New(DefaultConfig())
	for i := 0; i < 50; i++ {
		m.RecordRSSI("peer-e", -120)
		m.RecordOutcome("peer-e", false)
	}
	s := m.Score("peer-e")
	require.GreaterOrEqual(t, s, 0.0)
	require.LessOrEqual(t, s, 100.0)
}
