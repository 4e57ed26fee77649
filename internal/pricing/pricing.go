// Package pricing implements C13: demand/scarcity-based price per unit
// for CPU and GPU resource classes, grounded on the teacher's
// kernel/core/mesh/optimization/price_discovery.go demand/supply
// multiplier shape.
package pricing

import (
	"math"

	"github.com/edgecoder/mesh/internal/credit"
)

// Inputs are the mesh demand/capacity signals for one resource class
// (spec §4.13).
type Inputs struct {
	QueuedTasks  int
	ActiveAgents int
	Capacity     float64
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// basePrice returns the spec's flat base price per resource class.
func basePrice(class credit.ResourceClass) float64 {
	if class == credit.ResourceGPU {
		return 120
	}
	return 30
}

// PricePerUnit computes the spot price for one unit of class, given the
// current mesh demand/capacity inputs (spec §4.13).
func PricePerUnit(class credit.ResourceClass, in Inputs) int {
	demand := math.Max(1, float64(in.QueuedTasks+in.ActiveAgents))
	capacity := in.Capacity
	if capacity <= 0 {
		capacity = 1
	}
	scarcity := demand / capacity
	multiplier := clamp(0.65+scarcity*0.35, 0.35, 4.0)
	price := math.Max(1, math.Round(basePrice(class)*multiplier))
	return int(price)
}
