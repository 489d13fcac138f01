package command

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"firestige.xyz/eeglink/internal/core"
)

func startServer(t *testing.T, s Session) (string, context.CancelFunc, *UDSServer) {
	t.Helper()
	socketPath := filepath.Join(t.TempDir(), "run", "eeglink.sock")
	handler := NewCommandHandler(s, defaultParams, nil)
	server := NewUDSServer(socketPath, handler)

	ctx, cancel := context.WithCancel(context.Background())
	if err := server.Start(ctx); err != nil {
		cancel()
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(func() {
		cancel()
		server.Stop()
	})
	return socketPath, cancel, server
}

func TestUDSServerClient_Integration(t *testing.T) {
	s := newFakeSession()
	socketPath, _, server := startServer(t, s)

	info, err := os.Stat(socketPath)
	if err != nil {
		t.Fatalf("socket not created: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("socket mode = %o, want 600", perm)
	}

	client := NewUDSClient(socketPath, 5*time.Second)

	t.Run("device_status", func(t *testing.T) {
		st, err := client.DeviceStatus(context.Background())
		if err != nil {
			t.Fatalf("DeviceStatus failed: %v", err)
		}
		if st.Rate != 500 || st.Stage != "streaming" || st.Device != "127.0.0.1:12345" {
			t.Errorf("unexpected status %+v", st)
		}
	})

	t.Run("ping", func(t *testing.T) {
		if err := client.Ping(context.Background()); err != nil {
			t.Errorf("Ping failed: %v", err)
		}
	})

	t.Run("record_start", func(t *testing.T) {
		result, err := client.Invoke(context.Background(), "record_start", RecordStartParams{Patient: "P"})
		if err != nil {
			t.Fatalf("Invoke failed: %v", err)
		}
		var out struct {
			Status string `json:"status"`
			Path   string `json:"path"`
		}
		if err := DecodeResult(result, &out); err != nil {
			t.Fatalf("DecodeResult failed: %v", err)
		}
		if out.Status != "recording" || s.patient != "P" {
			t.Errorf("unexpected result %+v", out)
		}
	})

	t.Run("unknown_method", func(t *testing.T) {
		resp, err := client.Call(context.Background(), "unknown.method", nil)
		if err != nil {
			t.Fatalf("Call failed: %v", err)
		}
		if resp.Error == nil || resp.Error.Code != ErrCodeMethodNotFound {
			t.Errorf("expected method not found, got %+v", resp.Error)
		}
		if _, err := client.Invoke(context.Background(), "unknown.method", nil); err == nil {
			t.Error("Invoke should surface the error response")
		}
	})

	server.Stop()
	if _, err := os.Stat(socketPath); !os.IsNotExist(err) {
		t.Error("socket file not removed after server stop")
	}
}

func TestUDSServer_BadRequests(t *testing.T) {
	socketPath, _, _ := startServer(t, newFakeSession())

	tests := []struct {
		line string
		code int
	}{
		{line: "not json\n", code: ErrCodeParseError},
		{line: `{"jsonrpc":"1.0","method":"device_status","id":1}` + "\n", code: ErrCodeInvalidRequest},
		{line: `{"jsonrpc":"2.0","id":2}` + "\n", code: ErrCodeInvalidRequest},
	}

	for _, tt := range tests {
		conn, err := net.Dial("unix", socketPath)
		if err != nil {
			t.Fatalf("dial failed: %v", err)
		}
		conn.SetDeadline(time.Now().Add(2 * time.Second))
		if _, err := conn.Write([]byte(tt.line)); err != nil {
			t.Fatalf("write failed: %v", err)
		}

		var resp JSONRPCResponse
		buf := make([]byte, 4096)
		n, err := conn.Read(buf)
		conn.Close()
		if err != nil {
			t.Fatalf("read failed: %v", err)
		}
		if err := json.Unmarshal(buf[:n], &resp); err != nil {
			t.Fatalf("bad response %q: %v", buf[:n], err)
		}
		if resp.Error == nil || resp.Error.Code != tt.code {
			t.Errorf("%q: got %+v, want code %d", tt.line, resp.Error, tt.code)
		}
	}
}

func TestUDSClient_ConnectionError(t *testing.T) {
	client := NewUDSClient(filepath.Join(t.TempDir(), "absent.sock"), time.Second)
	err := client.Ping(context.Background())
	if !errors.Is(err, core.ErrDaemonNotRunning) {
		t.Errorf("expected ErrDaemonNotRunning, got %v", err)
	}
}

func TestUDSServer_StopOnCancel(t *testing.T) {
	socketPath, cancel, _ := startServer(t, newFakeSession())
	cancel()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := os.Stat(socketPath); os.IsNotExist(err) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Error("socket file not removed after cancel")
}

func TestUDSServer_MultipleConnections(t *testing.T) {
	socketPath, _, _ := startServer(t, newFakeSession())

	var wg sync.WaitGroup
	errs := make(chan error, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client := NewUDSClient(socketPath, 5*time.Second)
			_, err := client.Invoke(context.Background(), "daemon_status", nil)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("concurrent call failed: %v", err)
		}
	}
}
