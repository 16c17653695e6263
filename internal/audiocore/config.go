package audiocore

import (
	"time"

	"github.com/tphakala/audiodevicebuffer/internal/clock"
	"github.com/tphakala/audiodevicebuffer/internal/errors"
)

const (
	// DefaultReportInterval is the time between periodic reports
	DefaultReportInterval = 10 * time.Second

	// DefaultMinValidCallDuration is the shortest recording session that emits silence telemetry
	DefaultMinValidCallDuration = 10 * time.Second

	// DefaultStatsSamplingDivisor makes every 50th buffer a peak measurement,
	// about twice per second with 10 ms buffers
	DefaultStatsSamplingDivisor = 50

	// DefaultWorkerQueueSize bounds messages in flight to the stats worker
	DefaultWorkerQueueSize = 256
)

// Config holds the tunables of a DeviceBuffer.
type Config struct {
	ReportInterval       time.Duration
	MinValidCallDuration time.Duration
	StatsSamplingDivisor int
	WorkerQueueSize      int

	// PanicOnThreadViolation turns thread-affinity errors into panics.
	PanicOnThreadViolation bool

	// Clock drives the reporter and session timing. nil means the system clock.
	Clock clock.Clock
}

// DefaultConfig returns the production configuration.
func DefaultConfig() Config {
	return Config{
		ReportInterval:       DefaultReportInterval,
		MinValidCallDuration: DefaultMinValidCallDuration,
		StatsSamplingDivisor: DefaultStatsSamplingDivisor,
		WorkerQueueSize:      DefaultWorkerQueueSize,
		Clock:                clock.New(),
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	var problem string
	switch {
	case c.ReportInterval <= 0:
		problem = "report interval must be positive"
	case c.MinValidCallDuration < 0:
		problem = "minimum call duration must not be negative"
	case c.StatsSamplingDivisor < 1:
		problem = "stats sampling divisor must be at least 1"
	case c.WorkerQueueSize < 1:
		problem = "worker queue size must be at least 1"
	default:
		return nil
	}
	return errors.Newf("invalid device buffer config: %s", problem).
		Component(ComponentAudioCore).
		Category(errors.CategoryConfiguration).
		Build()
}
