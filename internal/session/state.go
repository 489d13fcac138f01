package session

import "fmt"

// Stage is the connection lifecycle state.
type Stage int32

const (
	StageDisconnected Stage = iota
	StageConnecting
	StageConnected
	StageStreaming
	StageSocketError
	StageHostError
	StageConnectError
	StageReconnecting
)

var stageNames = [...]string{
	StageDisconnected: "disconnected",
	StageConnecting:   "connecting",
	StageConnected:    "connected",
	StageStreaming:    "streaming",
	StageSocketError:  "socket_error",
	StageHostError:    "host_error",
	StageConnectError: "connect_error",
	StageReconnecting: "reconnecting",
}

func (s Stage) String() string {
	if s >= 0 && int(s) < len(stageNames) {
		return stageNames[s]
	}
	return fmt.Sprintf("stage(%d)", int32(s))
}

// Active reports whether a worker owns the connection in this stage.
func (s Stage) Active() bool {
	switch s {
	case StageConnecting, StageConnected, StageStreaming, StageReconnecting:
		return true
	}
	return false
}

// Failed reports whether s is a terminal connect failure.
func (s Stage) Failed() bool {
	switch s {
	case StageSocketError, StageHostError, StageConnectError:
		return true
	}
	return false
}

// ConnectionStatus is reported on the connection notification channel.
type ConnectionStatus int

const (
	StatusNoError      ConnectionStatus = 0
	StatusSocketError  ConnectionStatus = 1
	StatusHostNotFound ConnectionStatus = 2
	StatusHostNotReach ConnectionStatus = 3
	StatusReceiveError ConnectionStatus = 4

	StatusConnectionClosed   ConnectionStatus = 10000
	StatusTranslationPaused  ConnectionStatus = 10001
	StatusTranslationResumed ConnectionStatus = 10002
	StatusReconnecting       ConnectionStatus = 10003
)

func (s ConnectionStatus) String() string {
	switch s {
	case StatusNoError:
		return "no_error"
	case StatusSocketError:
		return "socket_error"
	case StatusHostNotFound:
		return "host_not_found"
	case StatusHostNotReach:
		return "host_not_reached"
	case StatusReceiveError:
		return "receive_error"
	case StatusConnectionClosed:
		return "connection_closed"
	case StatusTranslationPaused:
		return "translation_paused"
	case StatusTranslationResumed:
		return "translation_resumed"
	case StatusReconnecting:
		return "reconnecting"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// stage maps a connect failure to its terminal stage.
func (s ConnectionStatus) stage() Stage {
	switch s {
	case StatusSocketError:
		return StageSocketError
	case StatusHostNotFound:
		return StageHostError
	default:
		return StageConnectError
	}
}

// RecordingStatus is reported on the recording notification channel.
type RecordingStatus int

const (
	RecordingNoError         RecordingStatus = 0
	RecordingCreateFileError RecordingStatus = 1
	RecordingHeaderNotFound  RecordingStatus = 2

	RecordingPaused  RecordingStatus = 10000
	RecordingResumed RecordingStatus = 10001
	RecordingStopped RecordingStatus = 10002
)

func (s RecordingStatus) String() string {
	switch s {
	case RecordingNoError:
		return "no_error"
	case RecordingCreateFileError:
		return "create_file_error"
	case RecordingHeaderNotFound:
		return "header_not_found"
	case RecordingPaused:
		return "paused"
	case RecordingResumed:
		return "resumed"
	case RecordingStopped:
		return "stopped"
	default:
		return fmt.Sprintf("recording(%d)", int(s))
	}
}
