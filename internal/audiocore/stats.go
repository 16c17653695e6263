package audiocore

// DirectionStats holds the counters of one direction.
type DirectionStats struct {
	Callbacks     uint64 `json:"callbacks"`
	Samples       uint64 `json:"samples"`
	LastCallbacks uint64 `json:"last_callbacks"`
	LastSamples   uint64 `json:"last_samples"`
	MaxLevel      int16  `json:"max_level"`
}

// StatsSnapshot is a copy of the worker-owned statistics.
type StatsSnapshot struct {
	Record         DirectionStats `json:"record"`
	Playout        DirectionStats `json:"playout"`
	ReporterActive bool           `json:"reporter_active"`
	ReportRounds   int            `json:"report_rounds"`
}

func (s *DirectionStats) update(peak int16, frames int) {
	s.Callbacks++
	s.Samples += uint64(frames)
	if peak > s.MaxLevel {
		s.MaxLevel = peak
	}
}

// roll starts a new reporting window and returns the deltas of the one ending.
func (s *DirectionStats) roll() (callbacks, samples uint64, level int16) {
	callbacks = s.Callbacks - s.LastCallbacks
	samples = s.Samples - s.LastSamples
	level = s.MaxLevel
	s.LastCallbacks = s.Callbacks
	s.LastSamples = s.Samples
	s.MaxLevel = 0
	return callbacks, samples, level
}

// statsAggregator is only touched by the worker goroutine.
type statsAggregator struct {
	rec  DirectionStats
	play DirectionStats
}

func (a *statsAggregator) get(dir Direction) *DirectionStats {
	if dir == DirectionPlayout {
		return &a.play
	}
	return &a.rec
}

func (a *statsAggregator) update(dir Direction, peak int16, frames int) {
	a.get(dir).update(peak, frames)
}

func (a *statsAggregator) reset(dir Direction) {
	*a.get(dir) = DirectionStats{}
}

func (a *statsAggregator) rollAll() {
	a.rec.roll()
	a.play.roll()
}
