package server

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/liveserve/liveserve/server/config"
)

func testConfig(t *testing.T, root string) *config.Config {
	t.Helper()
	cfg := config.Defaults()
	cfg.Port = 0
	cfg.Root = root
	cfg.Live.DebounceMs = 50
	cfg.Logging.Level = "error"
	return cfg
}

func startInstance(t *testing.T, cfg *config.Config) *Instance {
	t.Helper()
	inst, err := New(cfg, &bytes.Buffer{}, &bytes.Buffer{})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if err := inst.Start(); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	t.Cleanup(func() { inst.Stop() })
	return inst
}

// openEventStream connects to the push channel and decodes frames onto a
// channel. The goroutine exits when the connection closes.
func openEventStream(t *testing.T, baseURL string) (<-chan sseEvent, func()) {
	t.Helper()
	resp, err := http.Get(baseURL + liveEventsPath)
	if err != nil {
		t.Fatalf("connecting push channel: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		t.Fatalf("push channel status %d", resp.StatusCode)
	}

	ch := make(chan sseEvent, 8)
	go func() {
		defer close(ch)
		reader := bufio.NewReader(resp.Body)
		var ev sseEvent
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				return
			}
			switch {
			case strings.HasPrefix(line, "event: "):
				ev.name = strings.TrimSuffix(line[7:], "\n")
			case strings.HasPrefix(line, "data: "):
				ev.payload = strings.TrimSuffix(line[6:], "\n")
			case line == "\n":
				if ev.name != "" {
					ch <- ev
					ev = sseEvent{}
				}
			}
		}
	}()

	return ch, func() { resp.Body.Close() }
}

func expectEvent(t *testing.T, ch <-chan sseEvent, name string, timeout time.Duration) sseEvent {
	t.Helper()
	select {
	case ev, ok := <-ch:
		if !ok {
			t.Fatalf("push channel closed while waiting for %s", name)
		}
		if ev.name != name {
			t.Fatalf("expected %s event, got %s (%s)", name, ev.name, ev.payload)
		}
		return ev
	case <-time.After(timeout):
		t.Fatalf("no %s event within %v", name, timeout)
	}
	return sseEvent{}
}

func expectNoEvent(t *testing.T, ch <-chan sseEvent, timeout time.Duration) {
	t.Helper()
	select {
	case ev, ok := <-ch:
		if ok {
			t.Fatalf("unexpected %s event (%s)", ev.name, ev.payload)
		}
	case <-time.After(timeout):
	}
}

func TestRegistryRetargetsBoundPort(t *testing.T) {
	reg := NewRegistry(&bytes.Buffer{}, &bytes.Buffer{})
	defer reg.StopAll()

	dirA := t.TempDir()
	dirB := t.TempDir()
	if err := os.WriteFile(filepath.Join(dirA, "index.html"), []byte("<body>alpha</body>"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dirB, "index.html"), []byte("<body>beta</body>"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	instA, err := reg.Start(testConfig(t, dirA))
	if err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	cfgB := testConfig(t, dirB)
	cfgB.Port = instA.Port()
	instB, err := reg.Start(cfgB)
	if err != nil {
		t.Fatalf("Start() on bound port error: %v", err)
	}

	if instA != instB {
		t.Fatal("starting on a bound port created a second instance")
	}
	if got := len(reg.Ports()); got != 1 {
		t.Fatalf("expected exactly one registered instance, got %d", got)
	}

	resp, err := http.Get("http://" + instA.Addr() + "/")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "beta") {
		t.Errorf("expected retargeted content, got %q", body)
	}
}

func TestStartOnOccupiedPortFails(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	port := ln.Addr().(*net.TCPAddr).Port

	cfg := testConfig(t, t.TempDir())
	cfg.Port = port

	inst, err := New(cfg, &bytes.Buffer{}, &bytes.Buffer{})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	err = inst.Start()
	if err == nil {
		inst.Stop()
		t.Fatal("expected bind failure on occupied port")
	}
	var bindErr *BindError
	if !errors.As(err, &bindErr) {
		t.Errorf("expected BindError, got %T: %v", err, err)
	}
}

func TestNewWithUnresolvableRootFails(t *testing.T) {
	cfg := testConfig(t, filepath.Join(t.TempDir(), "does-not-exist"))

	_, err := New(cfg, &bytes.Buffer{}, &bytes.Buffer{})
	if err == nil {
		t.Fatal("expected error for unresolvable root")
	}
	var bindErr *BindError
	if !errors.As(err, &bindErr) {
		t.Errorf("expected BindError, got %T: %v", err, err)
	}
}

func TestRegistryStartFailureLeavesNothingRegistered(t *testing.T) {
	reg := NewRegistry(&bytes.Buffer{}, &bytes.Buffer{})

	cfg := testConfig(t, filepath.Join(t.TempDir(), "missing"))
	if _, err := reg.Start(cfg); err == nil {
		t.Fatal("expected start failure")
	}
	if got := len(reg.Ports()); got != 0 {
		t.Errorf("failed start left %d instances registered", got)
	}
}

func TestStopClosesPushClients(t *testing.T) {
	root := t.TempDir()
	inst := startInstance(t, testConfig(t, root))
	base := "http://" + inst.Addr()

	ch, closeStream := openEventStream(t, base)
	defer closeStream()

	waitFor(t, time.Second, func() bool { return inst.ClientCount() == 1 }, "client registration")

	if err := inst.Stop(); err != nil {
		t.Fatalf("Stop() error: %v", err)
	}
	if got := inst.ClientCount(); got != 0 {
		t.Errorf("expected no clients after Stop, got %d", got)
	}

	// The stream ends from the server side
	expectNoEvent(t, ch, 500*time.Millisecond)

	// Stop is idempotent and broadcast afterwards is a no-op
	if err := inst.Stop(); err != nil {
		t.Errorf("second Stop() error: %v", err)
	}
	inst.Reload("manual")
	if got := inst.ClientCount(); got != 0 {
		t.Errorf("broadcast after Stop changed client set: %d", got)
	}
}

func TestEndToEndReload(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "index.html"), []byte("<body>hi</body>"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg := testConfig(t, root)
	cfg.Live.DebounceMs = 120
	inst := startInstance(t, cfg)
	base := "http://" + inst.Addr()

	// GET / serves the index with the injected client script
	resp, err := http.Get(base + "/")
	if err != nil {
		t.Fatalf("GET /: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET / status %d", resp.StatusCode)
	}
	if !strings.Contains(string(body), liveScriptTag+"</body>") {
		t.Errorf("expected injected script, got %q", body)
	}

	// Missing files are 404
	resp, err = http.Get(base + "/missing")
	if err != nil {
		t.Fatalf("GET /missing: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("GET /missing status %d", resp.StatusCode)
	}

	// A watched change produces one reload frame after the quiet period
	ch, closeStream := openEventStream(t, base)
	defer closeStream()
	waitFor(t, time.Second, func() bool { return inst.ClientCount() == 1 }, "client registration")

	if err := os.WriteFile(filepath.Join(root, "index.html"), []byte("<body>v2</body>"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	ev := expectEvent(t, ch, "reload", 3*time.Second)
	var payload reloadPayload
	if err := json.Unmarshal([]byte(ev.payload), &payload); err != nil {
		t.Fatalf("payload not JSON: %v (%q)", err, ev.payload)
	}
	if !strings.Contains(payload.Path, "index.html") {
		t.Errorf("expected changed path in payload, got %q", payload.Path)
	}
	if payload.At == 0 {
		t.Error("expected timestamp in payload")
	}
}

func TestCSSHotSwapBroadcast(t *testing.T) {
	root := t.TempDir()
	inst := startInstance(t, testConfig(t, root))
	base := "http://" + inst.Addr()

	ch, closeStream := openEventStream(t, base)
	defer closeStream()
	waitFor(t, time.Second, func() bool { return inst.ClientCount() == 1 }, "client registration")

	if err := os.WriteFile(filepath.Join(root, "site.css"), []byte("body{}"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	expectEvent(t, ch, "refreshcss", 3*time.Second)
}

func TestSetLiveEnabledStopsAndResumesEvents(t *testing.T) {
	root := t.TempDir()
	inst := startInstance(t, testConfig(t, root))
	base := "http://" + inst.Addr()

	ch, closeStream := openEventStream(t, base)
	defer closeStream()
	waitFor(t, time.Second, func() bool { return inst.ClientCount() == 1 }, "client registration")

	inst.SetLiveEnabled(false)

	if err := os.WriteFile(filepath.Join(root, "a.html"), []byte("x"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	expectNoEvent(t, ch, 400*time.Millisecond)

	// Clients stayed connected and events resume once re-enabled
	if got := inst.ClientCount(); got != 1 {
		t.Fatalf("disabling live reload dropped clients: %d", got)
	}
	inst.SetLiveEnabled(true)

	if err := os.WriteFile(filepath.Join(root, "b.html"), []byte("y"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	expectEvent(t, ch, "reload", 3*time.Second)
}

func TestRetargetKeepsClients(t *testing.T) {
	dirA := t.TempDir()
	dirB := t.TempDir()
	inst := startInstance(t, testConfig(t, dirA))
	base := "http://" + inst.Addr()

	ch, closeStream := openEventStream(t, base)
	defer closeStream()
	waitFor(t, time.Second, func() bool { return inst.ClientCount() == 1 }, "client registration")

	if err := inst.Retarget(dirB, ""); err != nil {
		t.Fatalf("Retarget() error: %v", err)
	}
	if got := inst.ClientCount(); got != 1 {
		t.Fatalf("retarget dropped push clients: %d", got)
	}

	// Changes under the old root no longer matter; the new root is watched
	if err := os.WriteFile(filepath.Join(dirB, "fresh.html"), []byte("x"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	expectEvent(t, ch, "reload", 3*time.Second)
}

func TestRetargetRacesLiveToggle(t *testing.T) {
	dirA := t.TempDir()
	dirB := t.TempDir()
	inst := startInstance(t, testConfig(t, dirA))

	// Hammer retargets against live toggles; the watcher swap must stay
	// consistent so events still flow from the final root afterwards.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 20; i++ {
			inst.SetLiveEnabled(false)
			inst.SetLiveEnabled(true)
		}
	}()
	for i := 0; i < 20; i++ {
		if err := inst.Retarget(dirB, ""); err != nil {
			t.Errorf("Retarget() error: %v", err)
		}
		if err := inst.Retarget(dirA, ""); err != nil {
			t.Errorf("Retarget() error: %v", err)
		}
	}
	<-done

	if err := inst.Retarget(dirB, ""); err != nil {
		t.Fatalf("Retarget() error: %v", err)
	}
	inst.SetLiveEnabled(true)

	ch, closeStream := openEventStream(t, "http://"+inst.Addr())
	defer closeStream()
	waitFor(t, time.Second, func() bool { return inst.ClientCount() == 1 }, "client registration")

	if err := os.WriteFile(filepath.Join(dirB, "after.html"), []byte("x"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	expectEvent(t, ch, "reload", 3*time.Second)

	if err := inst.Stop(); err != nil {
		t.Fatalf("Stop() error: %v", err)
	}
}

func TestStartAfterStopRefused(t *testing.T) {
	inst, err := New(testConfig(t, t.TempDir()), &bytes.Buffer{}, &bytes.Buffer{})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if err := inst.Stop(); err != nil {
		t.Fatalf("Stop() error: %v", err)
	}

	err = inst.Start()
	if err == nil {
		inst.Stop()
		t.Fatal("expected Start after Stop to fail")
	}
	var bindErr *BindError
	if !errors.As(err, &bindErr) {
		t.Errorf("expected BindError, got %T: %v", err, err)
	}
}

func TestManualReload(t *testing.T) {
	root := t.TempDir()
	cfg := testConfig(t, root)
	cfg.Live.Enabled = false
	inst := startInstance(t, cfg)
	base := "http://" + inst.Addr()

	ch, closeStream := openEventStream(t, base)
	defer closeStream()
	waitFor(t, time.Second, func() bool { return inst.ClientCount() == 1 }, "client registration")

	inst.Reload("forced")
	ev := expectEvent(t, ch, "reload", time.Second)
	if !strings.Contains(ev.payload, "forced") {
		t.Errorf("expected forced path in payload, got %q", ev.payload)
	}
}
