// Package command implements control plane command handling.
package command

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"firestige.xyz/eeglink/internal/core"
	"firestige.xyz/eeglink/internal/filter"
	"firestige.xyz/eeglink/internal/protocol"
	"firestige.xyz/eeglink/internal/session"
)

// Version is reported by daemon_status.
const Version = "0.1.0"

// Session is the part of the session engine the control plane drives.
type Session interface {
	Start(p session.Params) error
	Stop() error
	Status() session.Status

	StartRecord(patient, path string) error
	StopRecord() error
	PauseRecord() error
	ResumeRecord() error

	StartDataTranslation() error
	StopDataTranslation() error
	SetRxThreshold(value int) error
	IndicationTest(on bool) error
	PowerOff() error
	SyncTime() error

	Filters() *filter.Pipeline
}

// ConfigReloader is the interface for reloading global configuration.
type ConfigReloader interface {
	Reload() error
}

// CommandHandler handles control plane commands.
type CommandHandler struct {
	session        Session
	defaults       session.Params
	configReloader ConfigReloader
	shutdownFunc   func() // Called by daemon_shutdown to trigger graceful stop
	startTime      int64  // Unix timestamp of daemon start for uptime calc
}

// NewCommandHandler creates a new command handler. defaults fill in
// session_start parameters the caller leaves out.
func NewCommandHandler(s Session, defaults session.Params, reloader ConfigReloader) *CommandHandler {
	return &CommandHandler{
		session:        s,
		defaults:       defaults,
		configReloader: reloader,
		startTime:      time.Now().Unix(),
	}
}

// SetShutdownFunc sets the callback invoked by the daemon_shutdown command.
func (h *CommandHandler) SetShutdownFunc(fn func()) {
	h.shutdownFunc = fn
}

// Command represents a control plane command.
type Command struct {
	Method string          `json:"method"` // e.g., "session_start", "record_stop"
	Params json.RawMessage `json:"params"` // command-specific parameters
	ID     string          `json:"id"`     // request ID for tracking
}

// Response represents a command response.
type Response struct {
	ID     string      `json:"id"`               // matches request ID
	Result interface{} `json:"result,omitempty"` // success result
	Error  *ErrorInfo  `json:"error,omitempty"`  // error info if failed
}

// ErrorInfo represents an error in the response.
type ErrorInfo struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *ErrorInfo) Error() string {
	return fmt.Sprintf("%s (code %d)", e.Message, e.Code)
}

// Error codes
const (
	ErrCodeParseError     = -32700 // Invalid JSON
	ErrCodeInvalidRequest = -32600 // Invalid request object
	ErrCodeMethodNotFound = -32601 // Method not found
	ErrCodeInvalidParams  = -32602 // Invalid method parameters
	ErrCodeInternalError  = -32603 // Internal error
)

// Handle processes a command and returns a response.
func (h *CommandHandler) Handle(ctx context.Context, cmd Command) Response {
	slog.Info("handling command", "method", cmd.Method, "id", cmd.ID)

	switch cmd.Method {
	case "device_status":
		return h.handleDeviceStatus(ctx, cmd)
	case "session_start":
		return h.handleSessionStart(ctx, cmd)
	case "session_stop":
		return h.simple(cmd, "stopped", h.session.Stop)
	case "record_start":
		return h.handleRecordStart(ctx, cmd)
	case "record_stop":
		return h.simple(cmd, "stopped", h.session.StopRecord)
	case "record_pause":
		return h.simple(cmd, "paused", h.session.PauseRecord)
	case "record_resume":
		return h.simple(cmd, "resumed", h.session.ResumeRecord)
	case "translation_start":
		return h.simple(cmd, "resumed", h.session.StartDataTranslation)
	case "translation_stop":
		return h.simple(cmd, "paused", h.session.StopDataTranslation)
	case "rx_threshold":
		return h.handleRxThreshold(ctx, cmd)
	case "indication_test":
		return h.handleIndicationTest(ctx, cmd)
	case "power_off":
		return h.simple(cmd, "sent", h.session.PowerOff)
	case "ntp_sync":
		return h.simple(cmd, "sent", h.session.SyncTime)
	case "filter_add":
		return h.handleFilterAdd(ctx, cmd)
	case "filter_remove":
		return h.handleFilterRemove(ctx, cmd)
	case "filter_clear":
		h.session.Filters().RemoveAll()
		return Response{ID: cmd.ID, Result: map[string]interface{}{"status": "cleared"}}
	case "filter_list":
		filters := h.session.Filters().List()
		return Response{ID: cmd.ID, Result: map[string]interface{}{"filters": filters, "count": len(filters)}}
	case "config_reload":
		return h.handleConfigReload(ctx, cmd)
	case "daemon_shutdown":
		return h.handleDaemonShutdown(ctx, cmd)
	case "daemon_status":
		return h.handleDaemonStatus(ctx, cmd)
	default:
		return Response{
			ID: cmd.ID,
			Error: &ErrorInfo{
				Code:    ErrCodeMethodNotFound,
				Message: fmt.Sprintf("method %q not found", cmd.Method),
			},
		}
	}
}

func invalidParams(cmd Command, err error) Response {
	return Response{
		ID: cmd.ID,
		Error: &ErrorInfo{
			Code:    ErrCodeInvalidParams,
			Message: fmt.Sprintf("invalid params: %v", err),
		},
	}
}

// failed maps an engine error onto a response. Argument problems are
// reported as invalid params; everything else is internal.
func failed(cmd Command, what string, err error) Response {
	code := ErrCodeInternalError
	switch {
	case errors.Is(err, core.ErrUnsupportedRate),
		errors.Is(err, core.ErrInvalidOrder),
		errors.Is(err, core.ErrInvalidChannel),
		errors.Is(err, core.ErrInvalidBand),
		errors.Is(err, core.ErrUnknownFilterKind),
		errors.Is(err, core.ErrFilterNotFound):
		code = ErrCodeInvalidParams
	}
	return Response{
		ID: cmd.ID,
		Error: &ErrorInfo{
			Code:    code,
			Message: fmt.Sprintf("%s failed: %v", what, err),
		},
	}
}

func decodeParams(cmd Command, v interface{}) error {
	if len(cmd.Params) == 0 {
		return nil
	}
	return json.Unmarshal(cmd.Params, v)
}

// simple runs a parameterless engine operation.
func (h *CommandHandler) simple(cmd Command, status string, op func() error) Response {
	if err := op(); err != nil {
		return failed(cmd, cmd.Method, err)
	}
	return Response{
		ID:     cmd.ID,
		Result: map[string]interface{}{"status": status},
	}
}

// handleDeviceStatus returns the session snapshot.
func (h *CommandHandler) handleDeviceStatus(_ context.Context, cmd Command) Response {
	return Response{ID: cmd.ID, Result: h.session.Status()}
}

// SessionStartParams overrides the configured connection; nil fields keep
// the configured value.
type SessionStartParams struct {
	Host      *string `json:"host,omitempty"`
	Port      *int    `json:"port,omitempty"`
	Rate      *int    `json:"rate,omitempty"`
	Protected *bool   `json:"protected,omitempty"`
	Wait      *bool   `json:"wait,omitempty"`
}

func (h *CommandHandler) handleSessionStart(_ context.Context, cmd Command) Response {
	var params SessionStartParams
	if err := decodeParams(cmd, &params); err != nil {
		return invalidParams(cmd, err)
	}

	p := h.defaults
	p.Wait = true
	if params.Host != nil {
		p.Host = *params.Host
	}
	if params.Port != nil {
		p.Port = *params.Port
	}
	if params.Rate != nil {
		p.Rate = protocol.Rate(*params.Rate)
	}
	if params.Protected != nil {
		p.Protected = *params.Protected
	}
	if params.Wait != nil {
		p.Wait = *params.Wait
	}

	if err := h.session.Start(p); err != nil {
		return failed(cmd, "start session", err)
	}
	return Response{
		ID: cmd.ID,
		Result: map[string]interface{}{
			"device": p.Address(),
			"stage":  h.session.Status().Stage,
		},
	}
}

// RecordStartParams represents parameters for record_start command.
type RecordStartParams struct {
	Patient string `json:"patient"`
	Path    string `json:"path,omitempty"` // empty selects a timestamped file
}

func (h *CommandHandler) handleRecordStart(_ context.Context, cmd Command) Response {
	var params RecordStartParams
	if err := decodeParams(cmd, &params); err != nil {
		return invalidParams(cmd, err)
	}
	if err := h.session.StartRecord(params.Patient, params.Path); err != nil {
		return failed(cmd, "start recording", err)
	}
	return Response{
		ID: cmd.ID,
		Result: map[string]interface{}{
			"status": "recording",
			"path":   h.session.Status().RecordPath,
		},
	}
}

// RxThresholdParams represents parameters for rx_threshold command.
type RxThresholdParams struct {
	Value int `json:"value"`
}

func (h *CommandHandler) handleRxThreshold(_ context.Context, cmd Command) Response {
	var params RxThresholdParams
	if err := decodeParams(cmd, &params); err != nil {
		return invalidParams(cmd, err)
	}
	return h.simple(cmd, "sent", func() error { return h.session.SetRxThreshold(params.Value) })
}

// IndicationTestParams represents parameters for indication_test command.
type IndicationTestParams struct {
	On bool `json:"on"`
}

func (h *CommandHandler) handleIndicationTest(_ context.Context, cmd Command) Response {
	var params IndicationTestParams
	if err := decodeParams(cmd, &params); err != nil {
		return invalidParams(cmd, err)
	}
	return h.simple(cmd, "sent", func() error { return h.session.IndicationTest(params.On) })
}

// FilterAddParams represents parameters for filter_add command. A zero rate
// uses the session rate.
type FilterAddParams struct {
	Type     string  `json:"type"`
	Order    int     `json:"order"`
	Channels []int   `json:"channels,omitempty"`
	Rate     float64 `json:"rate,omitempty"`
	Low      float64 `json:"low"`
	High     float64 `json:"high"`
}

func (h *CommandHandler) handleFilterAdd(_ context.Context, cmd Command) Response {
	var params FilterAddParams
	if err := decodeParams(cmd, &params); err != nil {
		return invalidParams(cmd, err)
	}
	if params.Type == "" {
		params.Type = filter.KindButterworth.String()
	}
	kind, err := filter.ParseKind(params.Type)
	if err != nil {
		return failed(cmd, "add filter", err)
	}

	pipeline := h.session.Filters()
	f, err := pipeline.Add(kind, params.Order, params.Channels...)
	if err != nil {
		return failed(cmd, "add filter", err)
	}

	rate := params.Rate
	if rate == 0 {
		rate = float64(h.session.Status().Rate)
	}
	if err := pipeline.Setup(f.ID(), rate, params.Low, params.High); err != nil {
		_ = pipeline.Remove(f.ID())
		return failed(cmd, "setup filter", err)
	}

	return Response{
		ID: cmd.ID,
		Result: map[string]interface{}{
			"id":       f.ID(),
			"channels": f.Channels(),
			"status":   "added",
		},
	}
}

// FilterRemoveParams represents parameters for filter_remove command.
type FilterRemoveParams struct {
	ID int `json:"id"`
}

func (h *CommandHandler) handleFilterRemove(_ context.Context, cmd Command) Response {
	var params FilterRemoveParams
	if err := decodeParams(cmd, &params); err != nil {
		return invalidParams(cmd, err)
	}
	if err := h.session.Filters().Remove(params.ID); err != nil {
		return failed(cmd, "remove filter", err)
	}
	return Response{
		ID:     cmd.ID,
		Result: map[string]interface{}{"id": params.ID, "status": "removed"},
	}
}

// handleConfigReload handles config_reload command.
func (h *CommandHandler) handleConfigReload(_ context.Context, cmd Command) Response {
	if h.configReloader == nil {
		return Response{
			ID: cmd.ID,
			Error: &ErrorInfo{
				Code:    ErrCodeInternalError,
				Message: "config reloader not available",
			},
		}
	}

	if err := h.configReloader.Reload(); err != nil {
		return Response{
			ID: cmd.ID,
			Error: &ErrorInfo{
				Code:    ErrCodeInternalError,
				Message: fmt.Sprintf("reload config failed: %v", err),
			},
		}
	}

	return Response{
		ID:     cmd.ID,
		Result: map[string]interface{}{"status": "reloaded"},
	}
}

// handleDaemonShutdown triggers graceful daemon shutdown via the registered callback.
func (h *CommandHandler) handleDaemonShutdown(_ context.Context, cmd Command) Response {
	if h.shutdownFunc == nil {
		return Response{
			ID: cmd.ID,
			Error: &ErrorInfo{
				Code:    ErrCodeInternalError,
				Message: "shutdown handler not registered",
			},
		}
	}

	slog.Info("daemon_shutdown command received, initiating graceful shutdown")
	go h.shutdownFunc() // Non-blocking: let the response be sent first

	return Response{
		ID:     cmd.ID,
		Result: map[string]interface{}{"status": "shutting_down"},
	}
}

// handleDaemonStatus returns daemon status information.
func (h *CommandHandler) handleDaemonStatus(_ context.Context, cmd Command) Response {
	st := h.session.Status()
	return Response{
		ID: cmd.ID,
		Result: map[string]interface{}{
			"version":    Version,
			"uptime_sec": time.Now().Unix() - h.startTime,
			"device":     st.Device,
			"stage":      st.Stage,
			"recording":  st.Recording,
		},
	}
}
