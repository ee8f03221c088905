package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/iotcoss/powermirror/internal/backend"
	"github.com/iotcoss/powermirror/internal/device"
	"github.com/iotcoss/powermirror/internal/eventlog"
	"github.com/iotcoss/powermirror/internal/infrastructure/config"
	"github.com/iotcoss/powermirror/internal/infrastructure/logging"
	"github.com/iotcoss/powermirror/internal/monitor"
	"github.com/iotcoss/powermirror/internal/stream"
)

// fakeStream reports a scripted connection state.
type fakeStream struct {
	state   stream.State
	session string
}

func (f *fakeStream) State() stream.State { return f.state }
func (f *fakeStream) SessionID() string   { return f.session }

// fakeBackend scripts control/history results.
type fakeBackend struct {
	controlErr   error
	controlCalls int
	clearErr     error
	clearCalls   int
	logPage      backend.LogPage
}

func (f *fakeBackend) ControlPower(_ context.Context, _, _ string) error {
	f.controlCalls++
	return f.controlErr
}

func (f *fakeBackend) ClearSystemLogs(context.Context) error {
	f.clearCalls++
	return f.clearErr
}

func (f *fakeBackend) SystemLogs(_ context.Context, q backend.LogQuery) (backend.LogPage, error) {
	page := f.logPage
	page.Page = q.Page
	page.Size = q.Size
	return page, nil
}

// fakeMonitor reports a scripted backend status.
type fakeMonitor struct {
	status monitor.Status
	points []device.DailyPowerPoint
	err    error
}

func (f *fakeMonitor) Status() monitor.Status { return f.status }
func (f *fakeMonitor) SyncedNow() time.Time   { return time.Now() }
func (f *fakeMonitor) DailySeries(context.Context, string) ([]device.DailyPowerPoint, error) {
	return f.points, f.err
}

type testEnv struct {
	srv      *httptest.Server
	registry *device.Registry
	journal  *eventlog.Journal
	backend  *fakeBackend
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	registry := device.NewRegistry(nil)
	registry.ReplaceAll([]device.Device{
		{ID: 1, Name: "Heater", MAC: "AA:BB:CC:DD:EE:01", Location: "living room",
			IsActive: true, CurrentPower: 1200, Temperature: 21.5, IsOnline: true},
		{ID: 2, Name: "Lamp", MAC: "AA:BB:CC:DD:EE:02", Location: "office",
			IsActive: false, IsOnline: false},
	})
	journal := eventlog.New(500)
	be := &fakeBackend{}

	logger := logging.New(config.LoggingConfig{Level: "error", Format: "text"}, "test")
	s, err := New(Deps{
		Config:   config.APIConfig{Host: "127.0.0.1", Port: 0},
		Logger:   logger,
		Registry: registry,
		Journal:  journal,
		Stream:   &fakeStream{state: stream.StateConnected, session: "abc"},
		Backend:  be,
		Monitor:  &fakeMonitor{status: monitor.Status{Online: true}},
		Version:  "test",
	})
	if err != nil {
		t.Fatalf("New error = %v", err)
	}

	srv := httptest.NewServer(s.buildRouter())
	t.Cleanup(srv.Close)
	return &testEnv{srv: srv, registry: registry, journal: journal, backend: be}
}

func decodeBody(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
}

func TestServer_Health(t *testing.T) {
	env := newTestEnv(t)

	resp, err := http.Get(env.srv.URL + "/api/v1/health")
	if err != nil {
		t.Fatalf("GET /health error = %v", err)
	}
	var hr healthResponse
	decodeBody(t, resp, &hr)

	if hr.Status != "ok" || hr.Devices != 2 || hr.Stream != "connected" {
		t.Errorf("health = %+v", hr)
	}
}

func TestServer_ListAndGetDevices(t *testing.T) {
	env := newTestEnv(t)

	resp, err := http.Get(env.srv.URL + "/api/v1/devices/")
	if err != nil {
		t.Fatalf("GET /devices error = %v", err)
	}
	var devices []device.Device
	decodeBody(t, resp, &devices)
	if len(devices) != 2 || devices[0].ID != 1 {
		t.Errorf("devices = %+v", devices)
	}

	resp, _ = http.Get(env.srv.URL + "/api/v1/devices/2")
	var d device.Device
	decodeBody(t, resp, &d)
	if d.Name != "Lamp" {
		t.Errorf("device 2 = %+v", d)
	}

	resp, _ = http.Get(env.srv.URL + "/api/v1/devices/99")
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("GET unknown device status = %d, want 404", resp.StatusCode)
	}
}

func TestServer_SetPositionClamps(t *testing.T) {
	env := newTestEnv(t)

	body := bytes.NewBufferString(`{"x":150,"y":-20}`)
	req, _ := http.NewRequest(http.MethodPut, env.srv.URL+"/api/v1/devices/1/position", body)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("PUT position error = %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("PUT position status = %d", resp.StatusCode)
	}

	for _, p := range env.registry.Positions() {
		if p.DeviceID == 1 {
			if p.X != 100 || p.Y != 0 {
				t.Errorf("position = (%v, %v), want (100, 0)", p.X, p.Y)
			}
			return
		}
	}
	t.Fatal("position for device 1 missing")
}

func TestServer_ControlPower(t *testing.T) {
	env := newTestEnv(t)

	resp, err := http.Post(env.srv.URL+"/api/v1/devices/AA:BB:CC:DD:EE:02/power",
		"application/json", bytes.NewBufferString(`{"state":"on"}`))
	if err != nil {
		t.Fatalf("POST power error = %v", err)
	}
	var d device.Device
	decodeBody(t, resp, &d)

	if env.backend.controlCalls != 1 {
		t.Errorf("backend control calls = %d, want 1", env.backend.controlCalls)
	}
	if d.DesiredState == nil || *d.DesiredState != "on" {
		t.Errorf("DesiredState = %v, want on", d.DesiredState)
	}
	if d.IsActive {
		t.Error("IsActive changed by control request; only the stream is authoritative")
	}
}

func TestServer_ControlPowerValidation(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name string
		mac  string
		body string
		want int
	}{
		{"invalid state", "AA:BB:CC:DD:EE:01", `{"state":"toggle"}`, http.StatusBadRequest},
		{"unknown mac", "FF:FF:FF:FF:FF:FF", `{"state":"on"}`, http.StatusNotFound},
		{"bad body", "AA:BB:CC:DD:EE:01", `{`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Post(
				fmt.Sprintf("%s/api/v1/devices/%s/power", env.srv.URL, tt.mac),
				"application/json", bytes.NewBufferString(tt.body))
			if err != nil {
				t.Fatalf("POST error = %v", err)
			}
			resp.Body.Close()
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
		})
	}
}

func TestServer_ControlPowerFailureSurfaced(t *testing.T) {
	env := newTestEnv(t)
	env.backend.controlErr = errors.New("backend down")

	resp, err := http.Post(env.srv.URL+"/api/v1/devices/AA:BB:CC:DD:EE:01/power",
		"application/json", bytes.NewBufferString(`{"state":"off"}`))
	if err != nil {
		t.Fatalf("POST power error = %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", resp.StatusCode)
	}

	d, _ := env.registry.DeviceByMAC("AA:BB:CC:DD:EE:01")
	if d.DesiredState != nil {
		t.Error("DesiredState recorded despite control failure")
	}
}

func TestServer_LogsFilterAndClear(t *testing.T) {
	env := newTestEnv(t)
	env.journal.Append(eventlog.TypeConnection, eventlog.LevelInfo, "stream", "connected to backend", "")
	env.journal.Append(eventlog.TypeError, eventlog.LevelError, "stream", "socket error", "")
	env.backend.clearErr = errors.New("remote clear unavailable")

	resp, err := http.Get(env.srv.URL + "/api/v1/logs/?type=ERROR")
	if err != nil {
		t.Fatalf("GET logs error = %v", err)
	}
	var entries []eventlog.Entry
	decodeBody(t, resp, &entries)
	if len(entries) != 1 || entries[0].Message != "socket error" {
		t.Errorf("filtered entries = %+v", entries)
	}

	req, _ := http.NewRequest(http.MethodDelete, env.srv.URL+"/api/v1/logs/", nil)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE logs error = %v", err)
	}
	resp.Body.Close()

	// Remote clear failure is swallowed; the local clear still succeeds.
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("DELETE status = %d, want 204", resp.StatusCode)
	}
	if env.journal.Len() != 0 {
		t.Errorf("journal entries = %d after clear", env.journal.Len())
	}
	if env.backend.clearCalls != 1 {
		t.Errorf("remote clear calls = %d, want 1", env.backend.clearCalls)
	}
}

func TestServer_LogHistoryProxy(t *testing.T) {
	env := newTestEnv(t)
	env.backend.logPage = backend.LogPage{
		Logs:  []backend.RemoteLogEntry{{ID: 7, Message: "old entry"}},
		Total: 42,
	}

	resp, err := http.Get(env.srv.URL + "/api/v1/logs/history?page=2&size=10")
	if err != nil {
		t.Fatalf("GET history error = %v", err)
	}
	var page backend.LogPage
	decodeBody(t, resp, &page)
	if page.Total != 42 || page.Page != 2 || page.Size != 10 {
		t.Errorf("page = %+v", page)
	}
}

func TestServer_Summary(t *testing.T) {
	env := newTestEnv(t)

	resp, err := http.Get(env.srv.URL + "/api/v1/summary")
	if err != nil {
		t.Fatalf("GET summary error = %v", err)
	}
	var s device.PowerSummary
	decodeBody(t, resp, &s)
	if s.TotalDevices != 2 || s.TotalPower != 1200 || s.ActiveDevices != 1 {
		t.Errorf("summary = %+v", s)
	}
}

func TestServer_RequestIDHeader(t *testing.T) {
	env := newTestEnv(t)

	resp, err := http.Get(env.srv.URL + "/api/v1/health")
	if err != nil {
		t.Fatalf("GET health error = %v", err)
	}
	resp.Body.Close()
	if resp.Header.Get("X-Request-ID") == "" {
		t.Error("X-Request-ID header missing")
	}
}

func TestNew_RequiresDependencies(t *testing.T) {
	logger := logging.New(config.LoggingConfig{Level: "error", Format: "text"}, "test")

	if _, err := New(Deps{}); err == nil {
		t.Error("New accepted empty deps")
	}
	if _, err := New(Deps{Logger: logger}); err == nil {
		t.Error("New accepted deps without registry")
	}
}
