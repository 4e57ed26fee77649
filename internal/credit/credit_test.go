package credit

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAccrueComputesCreditsFromRatesAndMultipliers(t *testing.T) {
	e := NewEngine()
	tx, err := e.Accrue(ContributionReport{
		ReportID:      "r1",
		AgentID:       "agent-a",
		ResourceClass: ResourceCPU,
		CPUSeconds:    10,
		Success:       true,
		QualityScore:  1.0,
	}, LoadSnapshot{QueuedTasks: 0, ActiveAgents: 1})
	require.NoError(t, err)
	// 10 * 1.0 (base) * 1.0 (quality) * 0.8 (pressure 0 -> <=0.5) = 8
	require.InDelta(t, 8.0, tx.Credits, 1e-9)
	require.InDelta(t, 8.0, e.Balance("agent-a"), 1e-9)
}

func TestAccrueRejectsDuplicateReportID(t *testing.T) {
	e := NewEngine()
	report := ContributionReport{ReportID: "dup", AgentID: "a", ResourceClass: ResourceCPU, CPUSeconds: 1, QualityScore: 1}
	_, err := e.Accrue(report, LoadSnapshot{ActiveAgents: 1})
	require.NoError(t, err)

	_, err = e.Accrue(report, LoadSnapshot{ActiveAgents: 1})
	require.ErrorIs(t, err, ErrDuplicateReport)
}

func TestQualityScoreClamped(t *testing.T) {
	e := NewEngine()
	tx, err := e.Accrue(ContributionReport{
		ReportID: "r1", AgentID: "a", ResourceClass: ResourceCPU, CPUSeconds: 1, QualityScore: 99,
	}, LoadSnapshot{ActiveAgents: 1})
	require.NoError(t, err)
	// quality clamps to 1.5, pressure 0 -> multiplier 0.8
	require.InDelta(t, 1.2, tx.Credits, 1e-9)
}

func TestLoadMultiplierTiers(t *testing.T) {
	require.Equal(t, 0.8, LoadMultiplier(0.5))
	require.Equal(t, 1.0, LoadMultiplier(1.0))
	require.Equal(t, 1.25, LoadMultiplier(2.0))
	require.Equal(t, 1.6, LoadMultiplier(2.1))
}

func TestAdjustFaucetAllowsNegativeDeltaWithoutGoingNegativeUnlessSpend(t *testing.T) {
	e := NewEngine()
	_, err := e.Adjust("a", 10, "faucet")
	require.NoError(t, err)

	_, err = e.Adjust("a", -5, "correction")
	require.NoError(t, err)
	require.InDelta(t, 5.0, e.Balance("a"), 1e-9)

	_, err = e.Adjust("a", -100, "correction")
	require.ErrorIs(t, err, ErrNegativeBalance)

	_, err = e.Adjust("a", -5, "spend")
	require.NoError(t, err)
}

func TestModelQualityMultiplierTable(t *testing.T) {
	require.Equal(t, 1.0, ModelQualityMultiplier(7))
	require.Equal(t, 0.7, ModelQualityMultiplier(3))
	require.Equal(t, 0.5, ModelQualityMultiplier(1.5))
	require.Equal(t, 0.3, ModelQualityMultiplier(0.5))
}

func TestHistoryOrderMatchesAcceptanceOrder(t *testing.T) {
	e := NewEngine()
	_, err := e.Accrue(ContributionReport{ReportID: "r1", AgentID: "a", ResourceClass: ResourceCPU, CPUSeconds: 1, QualityScore: 1}, LoadSnapshot{ActiveAgents: 1})
	require.NoError(t, err)
	_, err = e.Accrue(ContributionReport{ReportID: "r2", AgentID: "a", ResourceClass: ResourceCPU, CPUSeconds: 1, QualityScore: 1}, LoadSnapshot{ActiveAgents: 1})
	require.NoError(t, err)

	history := e.History()
	require.Len(t, history, 2)
	require.Equal(t, "r1", history[0].SourceReportID)
	require.Equal(t, "r2", history[1].SourceReportID)
}
