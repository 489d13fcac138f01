// Package core defines sentinel errors.
package core

import "errors"

// Sentinel errors shared by the session engine, its collaborators and the control plane.
var (
	// Session errors
	ErrUnsupportedRate   = errors.New("eeglink: unsupported sampling rate")
	ErrNotStreaming      = errors.New("eeglink: session is not streaming")
	ErrRecordingActive   = errors.New("eeglink: command rejected while recording")
	ErrTranslationPaused = errors.New("eeglink: data translation is paused")
	ErrConnectFailed     = errors.New("eeglink: connect failed")

	// Recording errors
	ErrAlreadyRecording   = errors.New("eeglink: recording already in progress")
	ErrNotRecording       = errors.New("eeglink: no recording in progress")
	ErrHeaderNotCaptured  = errors.New("eeglink: header packet not received yet")
	ErrInvalidHeader      = errors.New("eeglink: invalid header blob")
	ErrRecordCreateFailed = errors.New("eeglink: cannot create record file")

	// Filter errors
	ErrFilterNotFound    = errors.New("eeglink: filter not found")
	ErrUnknownFilterKind = errors.New("eeglink: unknown filter kind")
	ErrInvalidOrder      = errors.New("eeglink: filter order out of range")
	ErrInvalidChannel    = errors.New("eeglink: invalid filter channel")
	ErrInvalidBand       = errors.New("eeglink: invalid filter band")

	// Decoding errors
	ErrPayloadSize = errors.New("eeglink: unexpected payload size")

	// Configuration errors
	ErrConfigInvalid = errors.New("eeglink: invalid configuration")

	// Daemon errors
	ErrDaemonNotRunning = errors.New("eeglink: daemon not running")
)
