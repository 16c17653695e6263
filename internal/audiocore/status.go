package audiocore

import "time"

// DirectionStatus describes one direction as seen from the control side.
type DirectionStatus struct {
	Active           bool      `json:"active"`
	SessionID        string    `json:"session_id,omitempty"`
	StartedAt        time.Time `json:"started_at,omitzero"`
	SampleRate       int       `json:"sample_rate"`
	Channels         int       `json:"channels"`
	PeakMeasurements uint64    `json:"peak_measurements"`
}

// Status is a lock-light view of the buffer that does not involve the worker.
type Status struct {
	Record            DirectionStatus `json:"record"`
	Playout           DirectionStatus `json:"playout"`
	TransportAttached bool            `json:"transport_attached"`
	OnlySilence       bool            `json:"only_silence"`
	NewMicLevel       uint32          `json:"new_mic_level"`
	DroppedMessages   uint64          `json:"dropped_messages"`
	Closed            bool            `json:"closed"`
}

// Status returns the current status. It may be called from any goroutine.
func (db *DeviceBuffer) Status() Status {
	db.mu.Lock()
	recSession, recStarted := db.recSession, db.recStarted
	playSession, playStarted := db.playSession, db.playStarted
	db.mu.Unlock()

	s := Status{
		Record: DirectionStatus{
			Active:           db.recording.Load(),
			SampleRate:       db.RecordingSampleRate(),
			Channels:         db.RecordingChannels(),
			PeakMeasurements: db.recPeakScans.Load(),
		},
		Playout: DirectionStatus{
			Active:           db.playing.Load(),
			SampleRate:       db.PlayoutSampleRate(),
			Channels:         db.PlayoutChannels(),
			PeakMeasurements: db.playPeakScans.Load(),
		},
		TransportAttached: db.transport.Load() != nil,
		OnlySilence:       db.onlySilence.Load(),
		NewMicLevel:       db.newMicLevel.Load(),
		DroppedMessages:   db.worker.droppedCount(),
		Closed:            db.closed.Load(),
	}
	if s.Record.Active {
		s.Record.SessionID, s.Record.StartedAt = recSession, recStarted
	}
	if s.Playout.Active {
		s.Playout.SessionID, s.Playout.StartedAt = playSession, playStarted
	}
	return s
}
