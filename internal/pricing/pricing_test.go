package pricing

import (
	"testing"

	"github.com/edgecoder/mesh/internal/credit"
	"github.com/stretchr/testify/require"
)

func TestPriceAtNeutralDemandUsesMinMultiplier(t *testing.T) {
	price := PricePerUnit(credit.ResourceCPU, Inputs{QueuedTasks: 0, ActiveAgents: 0, Capacity: 1000})
	// demand = max(1,0) = 1; scarcity = 1/1000 ~ 0 -> multiplier clamps toward 0.65
	require.Equal(t, int(round(30*0.65)), price)
}

func TestPriceScalesWithScarcity(t *testing.T) {
	low := PricePerUnit(credit.ResourceCPU, Inputs{QueuedTasks: 1, ActiveAgents: 0, Capacity: 100})
	high := PricePerUnit(credit.ResourceCPU, Inputs{QueuedTasks: 500, ActiveAgents: 0, Capacity: 100})
	require.Greater(t, high, low)
}

func TestGPUBasePriceIsFourTimesCPU(t *testing.T) {
	// scarcity = 1/1 -> multiplier 1, so each price equals its base (30, 120).
	cpu := PricePerUnit(credit.ResourceCPU, Inputs{QueuedTasks: 1, ActiveAgents: 0, Capacity: 1})
	gpu := PricePerUnit(credit.ResourceGPU, Inputs{QueuedTasks: 1, ActiveAgents: 0, Capacity: 1})
	require.Equal(t, cpu*4, gpu)
}

func TestPriceNeverBelowOne(t *testing.T) {
	price := PricePerUnit(credit.ResourceCPU, Inputs{QueuedTasks: 1, ActiveAgents: 0, Capacity: 1e12})
	require.GreaterOrEqual(t, price, 1)
}

func round(v float64) float64 {
	if v < 0 {
		return float64(int(v - 0.5))
	}
	return float64(int(v + 0.5))
}
