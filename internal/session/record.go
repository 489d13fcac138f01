package session

import (
	"fmt"
	"time"

	"firestige.xyz/eeglink/internal/core"
	"firestige.xyz/eeglink/internal/recording"
)

// StartRecord opens a record file for the current stream. An empty path
// selects a timestamped file under the record directory.
func (e *Engine) StartRecord(patient, path string) error {
	e.mu.Lock()
	status, err := e.startRecordLocked(patient, path)
	e.mu.Unlock()

	if status != nil {
		e.notify.recording(*status)
	}
	return err
}

func (e *Engine) startRecordLocked(patient, path string) (*RecordingStatus, error) {
	if e.Stage() != StageStreaming {
		return nil, core.ErrNotStreaming
	}
	if e.writer != nil {
		return nil, core.ErrAlreadyRecording
	}
	if e.paused {
		return nil, core.ErrTranslationPaused
	}
	if e.header == nil {
		s := RecordingHeaderNotFound
		return &s, core.ErrHeaderNotCaptured
	}

	if path == "" {
		path = recording.DefaultPath(e.opts.RecordDir, time.Now())
	}
	w, err := recording.Create(e.fs, path, e.header, recording.Options{
		Patient:     patient,
		Labels:      e.opts.ChannelLabels,
		PayloadSize: e.params.Rate.PayloadSize(),
	})
	if err != nil {
		e.logger.Error("failed to create record file", "path", path, "error", err)
		s := RecordingCreateFileError
		return &s, fmt.Errorf("%w: %v", core.ErrRecordCreateFailed, err)
	}

	e.writer = w
	e.logger.Info("recording started", "path", path, "patient", patient)
	s := RecordingNoError
	return &s, nil
}

// StopRecord finalizes the open record file.
func (e *Engine) StopRecord() error {
	e.mu.Lock()
	w := e.writer
	e.writer = nil
	e.mu.Unlock()

	if w == nil {
		return core.ErrNotRecording
	}
	err := w.Close()
	if err != nil {
		e.logger.Error("failed to close record file", "path", w.Path(), "error", err)
	} else {
		e.logger.Info("recording stopped", "path", w.Path(), "frames", w.Frames())
	}
	e.notify.recording(RecordingStopped)
	return err
}

// PauseRecord suspends writing without closing the file.
func (e *Engine) PauseRecord() error {
	return e.toggleRecord(true)
}

// ResumeRecord continues writing after PauseRecord.
func (e *Engine) ResumeRecord() error {
	return e.toggleRecord(false)
}

func (e *Engine) toggleRecord(pause bool) error {
	e.mu.Lock()
	w := e.writer
	if w != nil {
		if pause {
			w.Pause()
		} else {
			w.Resume()
		}
	}
	e.mu.Unlock()

	if w == nil {
		return core.ErrNotRecording
	}
	if pause {
		e.notify.recording(RecordingPaused)
	} else {
		e.notify.recording(RecordingResumed)
	}
	return nil
}

// RecordPath returns the path of the open record file, or "".
func (e *Engine) RecordPath() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.writer == nil {
		return ""
	}
	return e.writer.Path()
}
