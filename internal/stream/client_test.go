package stream

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/iotcoss/powermirror/internal/device"
	"github.com/iotcoss/powermirror/internal/eventlog"
)

// testLogger discards all output.
type testLogger struct{}

func (testLogger) Debug(string, ...any) {}
func (testLogger) Info(string, ...any)  {}
func (testLogger) Warn(string, ...any)  {}
func (testLogger) Error(string, ...any) {}

// fakeConn is a scripted connection: frames pushed to the channel are
// returned by ReadMessage; Close unblocks pending reads with an error.
type fakeConn struct {
	frames    chan []byte
	closed    chan struct{}
	closeOnce sync.Once

	mu     sync.Mutex
	writes [][]byte
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		frames: make(chan []byte, 16),
		closed: make(chan struct{}),
	}
}

func (f *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case frame := <-f.frames:
		return 1, frame, nil
	case <-f.closed:
		return 0, nil, errors.New("use of closed connection")
	}
}

func (f *fakeConn) WriteMessage(_ int, data []byte) error {
	select {
	case <-f.closed:
		return errors.New("use of closed connection")
	default:
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes = append(f.writes, data)
	return nil
}

func (f *fakeConn) Close() error {
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

func newTestClient(dial DialFunc) (*Client, *device.Registry, *eventlog.Journal) {
	registry := device.NewRegistry(nil)
	journal := eventlog.New(500)
	c := New(Config{
		URL:            "ws://backend:8000/ws/devices",
		ReconnectDelay: 20 * time.Millisecond,
	}, registry, journal, testLogger{}, nil)
	if dial != nil {
		c.SetDialFunc(dial)
	}
	return c, registry, journal
}

// waitFor polls until the condition holds or the deadline passes.
func waitFor(t *testing.T, d time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func countEntries(j *eventlog.Journal, entryType, level string) int {
	n := 0
	for _, e := range j.Entries() {
		if e.Type == entryType && e.Level == level {
			n++
		}
	}
	return n
}

func TestClient_ConnectDispatchesFrames(t *testing.T) {
	conn := newFakeConn()
	c, registry, journal := newTestClient(func(context.Context, string) (Conn, error) {
		return conn, nil
	})
	defer c.Close()

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect error = %v", err)
	}
	if c.State() != StateConnected {
		t.Fatalf("State = %v, want connected", c.State())
	}
	if c.SessionID() == "" {
		t.Error("SessionID empty after connect")
	}

	conn.frames <- []byte(`{"type":"device_status","data":[
		{"id":1,"device_mac":"AA:BB","relay_status":"on","energy_amp":12.5,"is_online":true}]}`)

	waitFor(t, time.Second, func() bool { return registry.Count() == 1 })

	if got := countEntries(journal, eventlog.TypeConnection, eventlog.LevelInfo); got != 2 {
		t.Errorf("CONNECTION/info entries = %d, want 2 (attempt + success)", got)
	}
}

func TestClient_RosterThenDeltaScenario(t *testing.T) {
	c, registry, _ := newTestClient(nil)
	defer c.Close()

	c.HandleMessage([]byte(`{"type":"device_status","data":[
		{"id":1,"device_mac":"AA:BB","relay_status":"on","energy_amp":12.5,
		 "temperature":20.0,"is_online":true}]}`))
	c.HandleMessage([]byte(`{"device_mac":"AA:BB","temperature":41.0}`))

	d, err := registry.DeviceByMAC("AA:BB")
	if err != nil {
		t.Fatalf("DeviceByMAC error = %v", err)
	}
	if d.ID != 1 || d.CurrentPower != 12.5 || !d.IsActive || d.Temperature != 41.0 {
		t.Errorf("device = %+v, want id=1 power=12.5 active temperature=41", d)
	}
}

func TestClient_MalformedFrame(t *testing.T) {
	c, registry, journal := newTestClient(nil)
	defer c.Close()

	c.HandleMessage([]byte(`{"type":"device_status","data":[
		{"id":1,"device_mac":"AA:BB","relay_status":"on","energy_amp":12.5,"is_online":true}]}`))

	before := registry.Devices()
	entriesBefore := journal.Len()

	c.HandleMessage([]byte(`not json`))

	if got := journal.Len() - entriesBefore; got != 1 {
		t.Fatalf("new journal entries = %d, want exactly 1", got)
	}
	newest := journal.Entries()[0]
	if newest.Type != eventlog.TypeMessage || newest.Level != eventlog.LevelWarn {
		t.Errorf("entry = %s/%s, want MESSAGE/warn", newest.Type, newest.Level)
	}
	if newest.Detail != "not json" {
		t.Errorf("Detail = %q, want raw frame verbatim", newest.Detail)
	}
	if !reflect.DeepEqual(before, registry.Devices()) {
		t.Error("registry changed by malformed frame")
	}
}

func TestClient_UnknownMACDropped(t *testing.T) {
	c, registry, journal := newTestClient(nil)
	defer c.Close()

	entriesBefore := journal.Len()
	c.HandleMessage([]byte(`{"device_mac":"FF:FF","temperature":41.0}`))

	if registry.Count() != 0 {
		t.Error("delta for unknown MAC created a device")
	}
	if journal.Len() != entriesBefore {
		t.Error("dropped delta produced a journal entry")
	}
}

func TestClient_RelayedMessageJournalledNotApplied(t *testing.T) {
	c, registry, journal := newTestClient(nil)
	defer c.Close()

	c.HandleMessage([]byte(`{"type":"mqtt_message","topic":"iotcoss/device/aa",
		"broker":"mqtt.local","subscribe_filter":"iotcoss/device/+",
		"payload":{"device_mac":"AA:BB","relay_status":"on"}}`))

	if registry.Count() != 0 {
		t.Error("relay metadata mutated the registry")
	}
	if got := countEntries(journal, eventlog.TypeMessage, eventlog.LevelInfo); got != 1 {
		t.Errorf("MESSAGE/info entries = %d, want 1", got)
	}
}

func TestClient_HeartbeatSilent(t *testing.T) {
	c, _, journal := newTestClient(nil)
	defer c.Close()

	c.HandleMessage([]byte(`{"type":"pong"}`))
	if journal.Len() != 0 {
		t.Error("heartbeat produced a journal entry")
	}
}

func TestClient_SingleReconnectTimer(t *testing.T) {
	var dials atomic.Int64
	var firstConn *fakeConn
	c, _, _ := newTestClient(func(context.Context, string) (Conn, error) {
		dials.Add(1)
		conn := newFakeConn()
		if firstConn == nil {
			firstConn = conn
		}
		return conn, nil
	})
	defer c.Close()

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect error = %v", err)
	}

	// Multiple close/error events in quick succession: only one timer
	// may be pending.
	c.onClosed()
	c.onClosed()
	c.onSocketError(firstConn, errors.New("boom"))

	c.mu.Lock()
	if c.reconnectTimer == nil {
		c.mu.Unlock()
		t.Fatal("no reconnect timer pending after close")
	}
	c.mu.Unlock()

	// Exactly one reconnect follows, not one per event.
	waitFor(t, time.Second, func() bool { return dials.Load() == 2 })
	time.Sleep(80 * time.Millisecond)
	if got := dials.Load(); got != 2 {
		t.Errorf("dial attempts = %d, want 2 (one reconnect for three events)", got)
	}
	if c.State() != StateConnected {
		t.Errorf("State = %v, want connected", c.State())
	}
}

func TestClient_ReconnectsAfterDialFailure(t *testing.T) {
	var attempts atomic.Int64
	c, _, _ := newTestClient(func(context.Context, string) (Conn, error) {
		attempts.Add(1)
		return nil, errors.New("connection refused")
	})
	defer c.Close()

	if err := c.Connect(context.Background()); err == nil {
		t.Fatal("Connect succeeded against failing dialer")
	}
	if c.State() != StateDisconnected {
		t.Fatalf("State = %v, want disconnected", c.State())
	}

	// The fixed-delay cycle keeps retrying without giving up.
	waitFor(t, time.Second, func() bool { return attempts.Load() >= 3 })
}

func TestClient_CloseStopsReconnect(t *testing.T) {
	var attempts atomic.Int64
	c, _, _ := newTestClient(func(context.Context, string) (Conn, error) {
		attempts.Add(1)
		return nil, errors.New("connection refused")
	})

	c.Connect(context.Background()) //nolint:errcheck // Failure expected
	if err := c.Close(); err != nil {
		t.Fatalf("Close error = %v", err)
	}

	settled := attempts.Load()
	time.Sleep(100 * time.Millisecond)
	if got := attempts.Load(); got != settled {
		t.Errorf("dial attempts after Close: %d -> %d, want no change", settled, got)
	}

	if c.State() != StateClosed {
		t.Errorf("State = %v, want closed", c.State())
	}
	if err := c.Connect(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("Connect after Close error = %v, want ErrClosed", err)
	}
}

func TestClient_CloseIdempotent(t *testing.T) {
	c, _, _ := newTestClient(nil)
	if err := c.Close(); err != nil {
		t.Errorf("first Close error = %v", err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("second Close error = %v", err)
	}
}

func TestClient_FramesDiscardedAfterClose(t *testing.T) {
	c, registry, journal := newTestClient(nil)
	c.Close()

	c.HandleMessage([]byte(`{"type":"device_status","data":[
		{"id":1,"device_mac":"AA:BB","relay_status":"on","is_online":true}]}`))

	if registry.Count() != 0 {
		t.Error("frame applied after teardown")
	}
	if journal.Len() != 0 {
		t.Error("frame journalled after teardown")
	}
}

// fakeSink records telemetry writes.
type fakeSink struct {
	mu     sync.Mutex
	device []string
	energy []string
}

func (s *fakeSink) WriteDeviceMetric(mac, measurement string, _ float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.device = append(s.device, mac+"/"+measurement)
}

func (s *fakeSink) WriteEnergyMetric(mac string, _, _ float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.energy = append(s.energy, mac)
}

func TestClient_DeltaTelemetry(t *testing.T) {
	registry := device.NewRegistry(nil)
	journal := eventlog.New(500)
	sink := &fakeSink{}
	c := New(Config{URL: "ws://x", ReconnectDelay: time.Second},
		registry, journal, testLogger{}, sink)
	defer c.Close()

	c.HandleMessage([]byte(`{"type":"device_status","data":[
		{"id":1,"device_mac":"AA:BB","relay_status":"on","is_online":true}]}`))
	c.HandleMessage([]byte(`{"device_mac":"AA:BB","temperature":41.0,"energy_amp":12.5}`))

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.device) != 1 || sink.device[0] != "AA:BB/temperature" {
		t.Errorf("device metrics = %v", sink.device)
	}
	if len(sink.energy) != 1 || sink.energy[0] != "AA:BB" {
		t.Errorf("energy metrics = %v", sink.energy)
	}
}
