package telemetry

import (
	"fmt"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/tphakala/audiodevicebuffer/internal/audiocore"
)

const (
	DefaultReportRetention = time.Hour
	latestKeyPrefix        = "latest/"
)

// ReportStore keeps recent periodic reports in memory with expiry. It
// implements audiocore.ReportSink and serves the HTTP report endpoints.
type ReportStore struct {
	cache *cache.Cache
	seq   atomic.Uint64
}

// NewReportStore keeps reports for retention. The latest report of each
// direction never expires.
func NewReportStore(retention time.Duration) *ReportStore {
	if retention <= 0 {
		retention = DefaultReportRetention
	}
	return &ReportStore{cache: cache.New(retention, retention*2)}
}

// HandleReport implements audiocore.ReportSink.
func (s *ReportStore) HandleReport(r audiocore.Report) {
	key := fmt.Sprintf("%s/%020d", r.Direction, s.seq.Add(1))
	s.cache.SetDefault(key, r)
	s.cache.Set(latestKeyPrefix+r.Direction.String(), r, cache.NoExpiration)
}

// Recent returns unexpired reports oldest first. A nil dir returns both
// directions.
func (s *ReportStore) Recent(dir *audiocore.Direction) []audiocore.Report {
	type entry struct {
		key string
		r   audiocore.Report
	}
	var entries []entry
	for key, item := range s.cache.Items() {
		r, ok := item.Object.(audiocore.Report)
		if !ok || strings.HasPrefix(key, latestKeyPrefix) {
			continue
		}
		if dir != nil && r.Direction != *dir {
			continue
		}
		entries = append(entries, entry{key: key, r: r})
	}
	slices.SortFunc(entries, func(a, b entry) int {
		if c := a.r.Time.Compare(b.r.Time); c != 0 {
			return c
		}
		return compareSeq(a.key, b.key)
	})
	out := make([]audiocore.Report, len(entries))
	for i, e := range entries {
		out[i] = e.r
	}
	return out
}

// Latest returns the most recent report for dir.
func (s *ReportStore) Latest(dir audiocore.Direction) (audiocore.Report, bool) {
	v, ok := s.cache.Get(latestKeyPrefix + dir.String())
	if !ok {
		return audiocore.Report{}, false
	}
	r, ok := v.(audiocore.Report)
	return r, ok
}

// Len returns the number of unexpired reports, excluding the latest markers.
func (s *ReportStore) Len() int {
	return len(s.Recent(nil))
}

// Flush removes every stored report.
func (s *ReportStore) Flush() {
	s.cache.Flush()
}

// compareSeq orders keys by their zero padded sequence suffix.
func compareSeq(a, b string) int {
	sa, sb := a[len(a)-20:], b[len(b)-20:]
	switch {
	case sa < sb:
		return -1
	case sa > sb:
		return 1
	default:
		return 0
	}
}
