package session

import (
	"sync"

	"firestige.xyz/eeglink/internal/decoder"
)

// ConnectionHandler receives connection and stream state changes.
type ConnectionHandler func(ConnectionStatus)

// RecordingHandler receives recording state changes.
type RecordingHandler func(RecordingStatus)

// FrameHandler receives every decoded frame, gap fills included.
// The frame is owned by the handler once delivered.
type FrameHandler func(*decoder.Frame)

// Subscriptions bundles the three notification channels. Nil handlers are skipped.
// Handlers run on engine goroutines and must not block. They may call back
// into the engine. Start and Stop are safe from the ConnectionClosed and
// connect failure notifications, which arrive after the worker has exited;
// other handlers must call them from a new goroutine.
type Subscriptions struct {
	Connection ConnectionHandler
	Recording  RecordingHandler
	Frame      FrameHandler
}

type notifier struct {
	mu   sync.RWMutex
	subs Subscriptions
}

func (n *notifier) connection(s ConnectionStatus) {
	n.mu.RLock()
	h := n.subs.Connection
	n.mu.RUnlock()
	if h != nil {
		h(s)
	}
}

func (n *notifier) recording(s RecordingStatus) {
	n.mu.RLock()
	h := n.subs.Recording
	n.mu.RUnlock()
	if h != nil {
		h(s)
	}
}

func (n *notifier) frames(frames []*decoder.Frame) {
	n.mu.RLock()
	h := n.subs.Frame
	n.mu.RUnlock()
	if h == nil {
		return
	}
	for _, f := range frames {
		h(f)
	}
}

// SubscribeConnection installs h and returns the handler it replaced.
func (e *Engine) SubscribeConnection(h ConnectionHandler) ConnectionHandler {
	e.notify.mu.Lock()
	defer e.notify.mu.Unlock()
	prev := e.notify.subs.Connection
	e.notify.subs.Connection = h
	return prev
}

// SubscribeRecording installs h and returns the handler it replaced.
func (e *Engine) SubscribeRecording(h RecordingHandler) RecordingHandler {
	e.notify.mu.Lock()
	defer e.notify.mu.Unlock()
	prev := e.notify.subs.Recording
	e.notify.subs.Recording = h
	return prev
}

// SubscribeFrames installs h and returns the handler it replaced.
func (e *Engine) SubscribeFrames(h FrameHandler) FrameHandler {
	e.notify.mu.Lock()
	defer e.notify.mu.Unlock()
	prev := e.notify.subs.Frame
	e.notify.subs.Frame = h
	return prev
}
