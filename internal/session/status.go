package session

import "firestige.xyz/eeglink/internal/filter"

// Status is a point-in-time view of the session.
type Status struct {
	Device            string        `json:"device"`
	Rate              int           `json:"rate"`
	Protected         bool          `json:"protected"`
	Stage             string        `json:"stage"`
	TranslationPaused bool          `json:"translation_paused"`
	HeaderCaptured    bool          `json:"header_captured"`
	Recording         bool          `json:"recording"`
	RecordPaused      bool          `json:"record_paused"`
	RecordPath        string        `json:"record_path,omitempty"`
	RecordFrames      int           `json:"record_frames"`
	Battery           int           `json:"battery"`
	Firmware          string        `json:"firmware,omitempty"`
	Filters           []filter.Info `json:"filters"`
}

// Status returns a snapshot of the session.
func (e *Engine) Status() Status {
	e.mu.Lock()
	s := Status{
		Device:            e.params.Address(),
		Rate:              int(e.params.Rate),
		Protected:         e.params.Protected,
		Stage:             e.Stage().String(),
		TranslationPaused: e.paused,
		HeaderCaptured:    e.header != nil,
		Battery:           e.battery,
		Firmware:          e.firmware,
	}
	if e.writer != nil {
		s.Recording = true
		s.RecordPaused = e.writer.Paused()
		s.RecordPath = e.writer.Path()
		s.RecordFrames = e.writer.Frames()
	}
	e.mu.Unlock()

	s.Filters = e.filters.List()
	return s
}
