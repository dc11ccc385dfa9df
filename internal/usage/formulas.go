package usage

import "math"

// Estimation formulas mapping a request's observed duration and
// pre-execution signals to abstract cost and memory units. Both are
// monotonic in their inputs and saturate at zero: zero-duration or
// missing-estimate inputs can never produce negative or NaN units.

// Dampens the raw planner cost so pathological estimates do not
// dominate a tenant's bill. 1.0 for cheap or unestimated requests,
// growing logarithmically with cost.
func ComplexityFactor(estimatedCost float64) float64 {
	if math.IsNaN(estimatedCost) || estimatedCost <= 0 {
		return 1.0
	}
	return 1.0 + math.Log10(1.0+estimatedCost)
}

// costUnits = duration x complexityFactor(estimatedCost) x parallelism
func CostUnits(e Event) float64 {
	seconds := e.Duration.Seconds()
	if seconds < 0 || math.IsNaN(seconds) {
		return 0
	}

	parallelism := float64(e.Parallelism)
	if parallelism < 1 {
		parallelism = 1
	}

	units := seconds * ComplexityFactor(e.EstimatedCost) * parallelism
	if math.IsNaN(units) || units < 0 {
		return 0
	}
	return units
}

// memoryUnits = session working-memory ceiling x duration (MB-seconds)
func MemoryUnits(e Event) float64 {
	seconds := e.Duration.Seconds()
	if seconds < 0 || math.IsNaN(seconds) {
		return 0
	}

	mem := float64(e.MemoryMB)
	if mem < 0 {
		mem = 0
	}

	units := mem * seconds
	if math.IsNaN(units) || units < 0 {
		return 0
	}
	return units
}
