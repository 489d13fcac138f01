package cmd

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"firestige.xyz/eeglink/internal/command"
	"firestige.xyz/eeglink/internal/filter"
	"firestige.xyz/eeglink/internal/session"
)

func statusResult(status string) map[string]interface{} {
	return map[string]interface{}{"status": status}
}

func TestRunStop(t *testing.T) {
	m := new(MockClient)
	m.On("Invoke", mock.Anything, "daemon_shutdown", nil).Return(statusResult("shutting down"), nil)

	var buf bytes.Buffer
	require.NoError(t, runStop(context.Background(), m, &buf))
	assert.Equal(t, "✓ daemon_shutdown: shutting down\n", buf.String())
	m.AssertExpectations(t)
}

func TestRunSessionStart(t *testing.T) {
	rate := 1000
	params := command.SessionStartParams{Rate: &rate}

	m := new(MockClient)
	m.On("Invoke", mock.Anything, "session_start", params).Return(statusResult("started"), nil)

	var buf bytes.Buffer
	require.NoError(t, runSessionStart(context.Background(), m, &buf, params))
	assert.Contains(t, buf.String(), "started")
	m.AssertExpectations(t)
}

func TestSessionStartParamsOnlyChangedFlags(t *testing.T) {
	require.NoError(t, sessionStartCmd.ParseFlags([]string{"--host", "10.1.1.1", "--protected=false"}))
	t.Cleanup(func() {
		sessionStartCmd.Flags().VisitAll(func(f *pflag.Flag) { f.Changed = false })
	})

	p := sessionStartParams(sessionStartCmd)
	require.NotNil(t, p.Host)
	assert.Equal(t, "10.1.1.1", *p.Host)
	require.NotNil(t, p.Protected)
	assert.False(t, *p.Protected)
	assert.Nil(t, p.Port)
	assert.Nil(t, p.Rate)
	assert.Nil(t, p.Wait)
}

func TestRunRecordStart(t *testing.T) {
	m := new(MockClient)
	m.On("Invoke", mock.Anything, "record_start", command.RecordStartParams{Patient: "Jane"}).
		Return(nil, &command.ErrorInfo{Code: command.ErrCodeInternalError, Message: "header not captured"})

	var buf bytes.Buffer
	err := runRecordStart(context.Background(), m, &buf, "Jane", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "record_start failed")
	assert.Contains(t, err.Error(), "header not captured")
	m.AssertExpectations(t)
}

func TestRunRxThreshold(t *testing.T) {
	m := new(MockClient)
	m.On("Invoke", mock.Anything, "rx_threshold", command.RxThresholdParams{Value: 120}).Return(statusResult("sent"), nil)

	var buf bytes.Buffer
	require.NoError(t, runRxThreshold(context.Background(), m, &buf, "120"))

	err := runRxThreshold(context.Background(), m, &buf, "lots")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid threshold")
	m.AssertExpectations(t)
}

func TestRunIndication(t *testing.T) {
	m := new(MockClient)
	m.On("Invoke", mock.Anything, "indication_test", command.IndicationTestParams{On: true}).Return(statusResult("sent"), nil)
	m.On("Invoke", mock.Anything, "indication_test", command.IndicationTestParams{On: false}).Return(statusResult("sent"), nil)

	var buf bytes.Buffer
	require.NoError(t, runIndication(context.Background(), m, &buf, "on"))
	require.NoError(t, runIndication(context.Background(), m, &buf, "off"))
	assert.Error(t, runIndication(context.Background(), m, &buf, "maybe"))
	m.AssertExpectations(t)
}

func TestRunFilterAdd(t *testing.T) {
	p := command.FilterAddParams{Type: "butterworth", Order: 4, Low: 1, High: 40}

	m := new(MockClient)
	m.On("Invoke", mock.Anything, "filter_add", p).Return(map[string]interface{}{"id": float64(1)}, nil)

	var buf bytes.Buffer
	require.NoError(t, runFilterAdd(context.Background(), m, &buf, p))
	assert.Contains(t, buf.String(), `"id": 1`)

	bad := p
	bad.High = 0.5
	err := runFilterAdd(context.Background(), m, &buf, bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be above")
	m.AssertExpectations(t)
}

func TestRunFilterRemove(t *testing.T) {
	m := new(MockClient)
	m.On("Invoke", mock.Anything, "filter_remove", command.FilterRemoveParams{ID: 3}).
		Return(nil, errors.New("filter 3 not found"))

	var buf bytes.Buffer
	err := runFilterRemove(context.Background(), m, &buf, "3")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")

	assert.Error(t, runFilterRemove(context.Background(), m, &buf, "x"))
	m.AssertExpectations(t)
}

func TestRunStatus(t *testing.T) {
	st := &session.Status{
		Device:       "127.0.0.1:12345",
		Rate:         500,
		Protected:    true,
		Stage:        "streaming",
		Recording:    true,
		RecordPath:   "/data/a.bdf",
		RecordFrames: 42,
		Battery:      87,
		Firmware:     "sim-1.0",
		Filters: []filter.Info{
			{ID: 1, Kind: "butterworth", Order: 4, Channels: []int{1, 2}, Rate: 500, Low: 1, High: 40},
		},
	}

	m := new(MockClient)
	m.On("DeviceStatus", mock.Anything).Return(st, nil)

	var buf bytes.Buffer
	require.NoError(t, runStatus(context.Background(), m, &buf, false))
	out := buf.String()
	assert.Contains(t, out, "127.0.0.1:12345")
	assert.Contains(t, out, "streaming")
	assert.Contains(t, out, "/data/a.bdf (42 frames)")
	assert.Contains(t, out, "87%")
	assert.Contains(t, out, "butterworth order 4, 1-40 Hz @ 500 Hz, channels 1,2")

	buf.Reset()
	require.NoError(t, runStatus(context.Background(), m, &buf, true))
	assert.Contains(t, buf.String(), `"record_frames": 42`)
	m.AssertExpectations(t)
}

func TestRunStatusError(t *testing.T) {
	m := new(MockClient)
	m.On("DeviceStatus", mock.Anything).Return(nil, errors.New("dial unix: no such file"))

	var buf bytes.Buffer
	err := runStatus(context.Background(), m, &buf, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to query status")
}

func TestRunConfigShow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte("eeglink:\n  device:\n    host: 10.0.0.9\n    rate: 250\n"), 0644))

	var buf bytes.Buffer
	require.NoError(t, runConfigShow(path, &buf))

	var shown map[string]map[string]interface{}
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &shown))
	device, ok := shown["eeglink"]["device"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "10.0.0.9", device["host"])
	assert.Equal(t, 250, device["rate"])
}

func TestRunConfigShowMissingFile(t *testing.T) {
	var buf bytes.Buffer
	assert.Error(t, runConfigShow(filepath.Join(t.TempDir(), "nope.yml"), &buf))
}
