// Package metrics provides Prometheus collectors for the device buffer and its adapters.
package metrics

// Direction label values
const (
	DirectionRecord  = "record"
	DirectionPlayout = "playout"
)

// Error kind label values for transport failures
const (
	TransportErrorDeliver = "deliver"
	TransportErrorRequest = "request"
)

// Bucket layouts shared by collectors
var (
	// sessionDurationBuckets spans 1s to ~4.5h
	sessionDurationBuckets = []float64{1, 5, 10, 30, 60, 300, 900, 1800, 3600, 7200, 16200}

	// latencyBuckets spans 1ms to ~1s
	latencyBuckets = []float64{0.001, 0.002, 0.004, 0.008, 0.016, 0.032, 0.064, 0.128, 0.256, 0.512, 1.024}
)
