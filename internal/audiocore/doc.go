// Package audiocore implements the audio device buffer: the hand-off point
// between a platform audio driver and an application audio transport.
//
// # Execution contexts
//
// A DeviceBuffer is used from four goroutines:
//
//   - the control goroutine: RegisterAudioCallback, Start*, Stop*, setters
//   - the recording goroutine: SetRecordedBuffer, DeliverRecordedData and
//     the mic level / VQE setters
//   - the playout goroutine: RequestPlayoutData, GetPlayoutData
//   - an internal worker that owns the statistics and the periodic reporter
//
// Sample buffers are owned by their direction's goroutine and are not locked.
// A ThreadChecker per direction binds to the first goroutine calling after a
// Start and rejects calls from any other goroutine until the next Start.
//
// Real-time goroutines never touch statistics directly. They post value
// messages (peak level, frame count) to the worker, which applies them in
// FIFO order together with the reporter ticks.
//
// # Periodic reporting
//
// While at least one direction is active, the worker emits one Report per
// direction every Config.ReportInterval. The first interval after the
// reporter starts is not emitted.
package audiocore
