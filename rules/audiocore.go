//go:build ruleguard

// Package gorules contains ruleguard checks for golangci-lint.
package gorules

import "github.com/quasilyte/go-ruleguard/dsl"

// WallClockInAudioCore flags direct wall clock reads in the device buffer.
// Session timing and the reporter must go through clock.Clock so tests can
// drive them with a fake clock.
func WallClockInAudioCore(m dsl.Matcher) {
	m.Import("time")

	m.Match(`time.Now()`, `time.Since($_)`, `time.NewTicker($_)`, `time.After($_)`).
		Where(m.File().PkgPath.Matches(`internal/audiocore$`) && !m.File().Name.Matches(`_test\.go$`)).
		Report("use the injected clock.Clock instead of $$ in audiocore")
}

// StdlibErrorsInInternal flags fmt.Errorf and errors.New from the standard
// library where the categorized errors package should be used.
func StdlibErrorsInInternal(m dsl.Matcher) {
	m.Match(`fmt.Errorf($*_)`).
		Where(m.File().PkgPath.Matches(`internal/(audiocore|transport|mqtt|telemetry)`) &&
			!m.File().Name.Matches(`_test\.go$`)).
		Report("use errors.New(err).Component(...).Category(...).Build() instead of fmt.Errorf")
}

// WaitGroupGo detects the manual Add/Done pattern that wg.Go replaces.
func WaitGroupGo(m dsl.Matcher) {
	m.Match(`$wg.Add(1); go func() { defer $wg.Done(); $*body }()`).
		Where(m["wg"].Type.Is("*sync.WaitGroup") || m["wg"].Type.Is("sync.WaitGroup")).
		Report("use $wg.Go(func() { $body }) instead of manual Add/Done").
		Suggest("$wg.Go(func() { $body })")
}

// SlogOutsideLogger flags direct log/slog loggers outside the logger package.
func SlogOutsideLogger(m dsl.Matcher) {
	m.Import("log/slog")

	m.Match(`slog.Info($*_)`, `slog.Warn($*_)`, `slog.Error($*_)`, `slog.Debug($*_)`).
		Where(!m.File().PkgPath.Matches(`internal/logger$`)).
		Report("use a module logger from logger.Global().Module(...) instead of $$")
}
