package telemetry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/audiodevicebuffer/internal/audiocore"
)

func report(dir audiocore.Direction, at time.Time, samples uint64) audiocore.Report {
	return audiocore.Report{Direction: dir, Time: at, Elapsed: 10 * time.Second, SampleRate: 48000, Samples: samples}
}

func TestReportStoreRecentOrdering(t *testing.T) {
	t.Parallel()
	s := NewReportStore(time.Minute)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	s.HandleReport(report(audiocore.DirectionRecord, base.Add(20*time.Second), 3))
	s.HandleReport(report(audiocore.DirectionRecord, base, 1))
	s.HandleReport(report(audiocore.DirectionPlayout, base, 2))

	all := s.Recent(nil)
	require.Len(t, all, 3)
	assert.Equal(t, []uint64{1, 2, 3}, []uint64{all[0].Samples, all[1].Samples, all[2].Samples})
	assert.Equal(t, 3, s.Len())

	rec := audiocore.DirectionRecord
	onlyRec := s.Recent(&rec)
	require.Len(t, onlyRec, 2)
	assert.Equal(t, uint64(1), onlyRec[0].Samples)

	latest, ok := s.Latest(audiocore.DirectionRecord)
	require.True(t, ok)
	assert.Equal(t, uint64(1), latest.Samples, "latest is the last report handled")
}

func TestReportStoreExpiry(t *testing.T) {
	t.Parallel()
	s := NewReportStore(time.Millisecond)
	s.HandleReport(report(audiocore.DirectionPlayout, time.Now(), 7))
	require.Eventually(t, func() bool { return s.Len() == 0 }, time.Second, time.Millisecond)

	latest, ok := s.Latest(audiocore.DirectionPlayout)
	require.True(t, ok)
	assert.Equal(t, uint64(7), latest.Samples)

	_, ok = s.Latest(audiocore.DirectionRecord)
	assert.False(t, ok)
}

func TestReportStoreFlush(t *testing.T) {
	t.Parallel()
	s := NewReportStore(0)
	s.HandleReport(report(audiocore.DirectionRecord, time.Now(), 1))
	s.Flush()
	assert.Zero(t, s.Len())
	_, ok := s.Latest(audiocore.DirectionRecord)
	assert.False(t, ok)
}

func TestFanout(t *testing.T) {
	t.Parallel()
	var names []string
	var reports []audiocore.Report

	tel := NewMultiTelemetry(nil, audiocore.TelemetryFunc(func(name string, _ bool) {
		names = append(names, "a:"+name)
	}), audiocore.TelemetryFunc(func(name string, _ bool) {
		names = append(names, "b:"+name)
	}))
	require.Len(t, tel, 2)
	tel.RecordBoolean("x", true)
	assert.Equal(t, []string{"a:x", "b:x"}, names)

	store := NewReportStore(time.Minute)
	sink := NewMultiSink(store, nil, audiocore.ReportSinkFunc(func(r audiocore.Report) {
		reports = append(reports, r)
	}))
	require.Len(t, sink, 2)
	sink.HandleReport(report(audiocore.DirectionRecord, time.Now(), 5))
	assert.Len(t, reports, 1)
	assert.Equal(t, 1, store.Len())
}
