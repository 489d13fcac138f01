package session

import (
	"fmt"
	"time"

	"firestige.xyz/eeglink/internal/core"
	"firestige.xyz/eeglink/internal/protocol"
)

const (
	commandTerminator = "\r\n"

	minRxThreshold = 10
	maxRxThreshold = 300
)

func startCommand(r protocol.Rate, protected bool) string {
	if protected {
		return fmt.Sprintf("start -protect eeg.rate %d", int(r))
	}
	return fmt.Sprintf("start eeg.rate %d", int(r))
}

// sendLocked writes cmd, or queues it while the time-sync message is still
// outstanding. Caller holds e.mu.
func (e *Engine) sendLocked(cmd string) error {
	line := cmd + commandTerminator
	if !e.stream.handshakeDone {
		e.stream.outgoing = append(e.stream.outgoing, line...)
		e.logger.Debug("command queued", "command", cmd)
		return nil
	}
	if e.conn == nil {
		return core.ErrNotStreaming
	}
	_ = e.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if _, err := e.conn.Write([]byte(line)); err != nil {
		return fmt.Errorf("send %q: %w", cmd, err)
	}
	e.logger.Debug("command sent", "command", cmd)
	return nil
}

// flushOutgoingLocked writes everything queued before the handshake as one write.
func (e *Engine) flushOutgoingLocked() {
	if len(e.stream.outgoing) == 0 || e.conn == nil {
		return
	}
	out := e.stream.outgoing
	e.stream.outgoing = nil
	_ = e.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if _, err := e.conn.Write(out); err != nil {
		e.logger.Error("failed to flush queued commands", "bytes", len(out), "error", err)
	}
}

// command sends cmd if the session is streaming and nothing is being recorded.
func (e *Engine) command(cmd string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.commandLocked(cmd)
}

func (e *Engine) commandLocked(cmd string) error {
	if e.Stage() != StageStreaming {
		return core.ErrNotStreaming
	}
	if e.writer != nil {
		return core.ErrRecordingActive
	}
	return e.sendLocked(cmd)
}

// StartDataTranslation asks the device to resume streaming at the session rate.
func (e *Engine) StartDataTranslation() error {
	e.mu.Lock()
	err := e.commandLocked(startCommand(e.params.Rate, e.params.Protected))
	if err == nil {
		e.paused = false
	}
	e.mu.Unlock()
	if err != nil {
		return err
	}
	e.notify.connection(StatusTranslationResumed)
	return nil
}

// StopDataTranslation asks the device to pause streaming.
func (e *Engine) StopDataTranslation() error {
	e.mu.Lock()
	err := e.commandLocked("stop")
	if err == nil {
		e.paused = true
	}
	e.mu.Unlock()
	if err != nil {
		return err
	}
	e.notify.connection(StatusTranslationPaused)
	return nil
}

// TranslationPaused reports whether streaming was paused with StopDataTranslation.
func (e *Engine) TranslationPaused() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.paused
}

// SetRxThreshold sets the electrode resistance threshold, clamped to [10, 300].
func (e *Engine) SetRxThreshold(value int) error {
	value = min(max(value, minRxThreshold), maxRxThreshold)
	return e.command(fmt.Sprintf("set rx.ths%d", value))
}

// IndicationTest switches the device indication test on or off.
func (e *Engine) IndicationTest(on bool) error {
	state := "OFF"
	if on {
		state = "ON"
	}
	return e.command("device indication test " + state)
}

// PowerOff powers the device down.
func (e *Engine) PowerOff() error {
	return e.command("device powerdown")
}

// SyncTime asks the device to synchronise its clock.
func (e *Engine) SyncTime() error {
	return e.command("sync")
}
