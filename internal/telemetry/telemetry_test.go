package telemetry

import (
	"testing"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/audiodevicebuffer/internal/audiocore"
	"github.com/tphakala/audiodevicebuffer/internal/errors"
)

const testDSN = "https://public@sentry.example.com/1"

func newTestSentry(t *testing.T) (*Sentry, *mockTransport) {
	t.Helper()
	transport := &mockTransport{}
	s, err := InitSentry(Config{Enabled: true, DSN: testDSN, Release: "adb@test"}, nil, WithTransport(transport))
	require.NoError(t, err)
	require.NotNil(t, s)
	t.Cleanup(func() { s.Close(time.Second) })
	return s, transport
}

func TestInitSentryDisabled(t *testing.T) {
	s, err := InitSentry(Config{}, nil)
	require.NoError(t, err)
	assert.Nil(t, s)
	assert.True(t, s.Close(time.Second))
}

func TestInitSentryInvalidDSN(t *testing.T) {
	_, err := InitSentry(Config{Enabled: true, DSN: "not a dsn"}, nil)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
}

func TestEnhancedErrorsReachSentry(t *testing.T) {
	_, transport := newTestSentry(t)

	_ = errors.Newf("transport attached while active").
		Component("audiocore").
		Category(errors.CategoryState).
		Build()

	events := transport.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "audiocore", events[0].Tags["component"])
	assert.Equal(t, "state", events[0].Tags["category"])
	assert.Empty(t, events[0].ServerName)
}

func TestValidationErrorsAreNotReported(t *testing.T) {
	_, transport := newTestSentry(t)
	_ = errors.Newf("bad sample rate").Category(errors.CategoryValidation).Build()
	assert.Empty(t, transport.Events())
}

func TestCloseDetachesReporter(t *testing.T) {
	s, _ := newTestSentry(t)
	require.NotNil(t, errors.GetTelemetryReporter())
	s.Close(time.Second)
	assert.Nil(t, errors.GetTelemetryReporter())
}

func TestBreadcrumbsOnlyZeros(t *testing.T) {
	s, transport := newTestSentry(t)
	b := NewBreadcrumbs(s)

	b.RecordBoolean(audiocore.TelemetryRecordedOnlyZeros, false)
	assert.Empty(t, transport.Events())

	b.HandleReport(audiocore.Report{Direction: audiocore.DirectionRecord, Elapsed: 10 * time.Second})
	b.RecordBoolean(audiocore.TelemetryRecordedOnlyZeros, true)

	events := transport.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "recording session captured only silence", events[0].Message)
	assert.Equal(t, sentry.LevelWarning, events[0].Level)
	require.Len(t, events[0].Breadcrumbs, 3)
	assert.Equal(t, "report.record", events[0].Breadcrumbs[1].Category)
}

func TestBreadcrumbsWithoutSentry(t *testing.T) {
	b := NewBreadcrumbs(nil)
	assert.NotPanics(t, func() {
		b.RecordBoolean(audiocore.TelemetryRecordedOnlyZeros, true)
		b.HandleReport(audiocore.Report{})
	})
}

func TestApplyPrivacyFilters(t *testing.T) {
	event := sentry.NewEvent()
	event.ServerName = "host"
	event.User = sentry.User{ID: "42"}
	event.Contexts["os"] = sentry.Context{"name": "linux"}
	event.Extra = map[string]any{"component": "x", "path": "/home/user"}
	event.Tags = map[string]string{"hostname": "h", "category": "state"}

	out := applyPrivacyFilters(event)
	assert.Empty(t, out.ServerName)
	assert.True(t, out.User.IsEmpty())
	assert.NotContains(t, out.Contexts, "os")
	assert.Equal(t, map[string]any{"component": "x"}, out.Extra)
	assert.Equal(t, map[string]string{"category": "state"}, out.Tags)
}
