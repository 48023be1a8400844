package appium

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/devicelab-dev/pagekit/pkg/action"
	"github.com/devicelab-dev/pagekit/pkg/core"
	"github.com/devicelab-dev/pagekit/pkg/wait"
)

var (
	_ core.Backend = (*Backend)(nil)
	_ core.Toucher = (*Backend)(nil)
	_ core.Pincher = (*Backend)(nil)
	_ core.Device  = (*Backend)(nil)
)

// fakeServer answers the endpoints the backend uses and records request paths.
type fakeServer struct {
	mu     sync.Mutex
	calls  []string
	bodies map[string]map[string]interface{}
	found  bool
}

func (f *fakeServer) handler(w http.ResponseWriter, r *http.Request) {
	var body map[string]interface{}
	_ = json.NewDecoder(r.Body).Decode(&body)
	f.mu.Lock()
	f.calls = append(f.calls, r.Method+" "+r.URL.Path)
	if f.bodies == nil {
		f.bodies = map[string]map[string]interface{}{}
	}
	f.bodies[r.URL.Path] = body
	found := f.found
	f.mu.Unlock()

	base := "/session/s1"
	switch r.URL.Path {
	case base + "/elements":
		if !found {
			writeJSON(w, map[string]interface{}{"value": []interface{}{}})
			return
		}
		writeJSON(w, map[string]interface{}{"value": []interface{}{
			map[string]interface{}{w3cElementKey: "e1"},
		}})
	case base + "/element/e1/displayed", base + "/element/e1/enabled":
		writeJSON(w, map[string]interface{}{"value": true})
	case base + "/element/e1/click":
		writeJSON(w, map[string]interface{}{"value": nil})
	case base + "/window/rect":
		writeJSON(w, map[string]interface{}{"value": map[string]interface{}{"width": 1000.0, "height": 2000.0}})
	case base + "/actions", base + "/rotation":
		writeJSON(w, map[string]interface{}{"value": nil})
	case base + "/orientation":
		writeJSON(w, map[string]interface{}{"value": "LANDSCAPE"})
	case base + "/execute/sync":
		writeJSON(w, map[string]interface{}{"value": map[string]interface{}{"level": 0.87, "state": 2.0}})
	case base + "/se/log":
		writeJSON(w, map[string]interface{}{"value": []interface{}{
			map[string]interface{}{"timestamp": 1700000000000.0, "level": "INFO", "message": "started"},
		}})
	case base + "/element/e1/screenshot":
		writeJSON(w, map[string]interface{}{"value": base64.StdEncoding.EncodeToString([]byte("element-png"))})
	case base + "/appium/device/terminate_app":
		w.WriteHeader(http.StatusInternalServerError)
		writeJSON(w, map[string]interface{}{"value": map[string]interface{}{"error": "unknown error", "message": "app not running"}})
	case base:
		writeJSON(w, map[string]interface{}{"value": nil})
	default:
		w.WriteHeader(http.StatusNotFound)
		writeJSON(w, map[string]interface{}{"value": map[string]interface{}{"error": "unknown command", "message": r.URL.Path}})
	}
}

func (f *fakeServer) called(call string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.calls {
		if c == call {
			return true
		}
	}
	return false
}

func (f *fakeServer) body(path string) map[string]interface{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bodies[path]
}

func newBackend(t *testing.T, f *fakeServer) *Backend {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(f.handler))
	t.Cleanup(server.Close)

	client := NewClient(server.URL)
	client.sessionID = "s1"
	return New(client, "com.example.app")
}

func TestBackend_TapThroughDispatcher(t *testing.T) {
	f := &fakeServer{found: true}
	b := newBackend(t, f)
	d := action.New(b, wait.New(time.Second, 20*time.Millisecond))

	q := core.Query{Locator: "login_button", Kind: core.KindID, Strategy: "id", Value: "com.example:id/login"}
	out := d.TapOn(context.Background(), q, 0)
	if !out.Success {
		t.Fatalf("tap failed: %v", out.Err)
	}
	if !f.called("POST /session/s1/element/e1/click") {
		t.Error("click endpoint was not called")
	}
}

func TestBackend_FindAllEmpty(t *testing.T) {
	b := newBackend(t, &fakeServer{})

	els, err := b.FindAll(context.Background(), core.Query{Strategy: "id", Value: "missing"})
	if err != nil {
		t.Fatalf("FindAll failed: %v", err)
	}
	if len(els) != 0 {
		t.Errorf("Expected no elements, got %d", len(els))
	}
}

func TestBackend_SwipeByDirection(t *testing.T) {
	f := &fakeServer{}
	b := newBackend(t, f)
	d := action.New(b, nil)

	out := d.Swipe(context.Background(), action.Left, 0.75, 0)
	if !out.Success {
		t.Fatalf("swipe failed: %v", out.Err)
	}
	if !f.called("GET /session/s1/window/rect") || !f.called("POST /session/s1/actions") {
		t.Errorf("expected viewport read and actions, got %v", f.calls)
	}
}

func TestBackend_CloseAggregatesErrors(t *testing.T) {
	f := &fakeServer{}
	b := newBackend(t, f)

	err := b.Close(context.Background())
	if err == nil {
		t.Fatal("Expected terminate error to be reported")
	}
	if !strings.Contains(err.Error(), "app not running") {
		t.Errorf("Close() error = %v", err)
	}
	var wdErr *WebDriverError
	if !errors.As(err, &wdErr) {
		t.Errorf("Expected *WebDriverError in %v", err)
	}
	if !f.called("DELETE /session/s1") {
		t.Error("session should be deleted even when terminate fails")
	}
}

func TestBackend_Orientation(t *testing.T) {
	f := &fakeServer{}
	b := newBackend(t, f)
	ctx := context.Background()

	o, err := b.Orientation(ctx)
	if err != nil {
		t.Fatalf("Orientation failed: %v", err)
	}
	if o != core.OrientationLandscape {
		t.Errorf("orientation = %q, want LANDSCAPE", o)
	}

	if err := b.SetOrientation(ctx, core.OrientationPortrait); err != nil {
		t.Fatalf("SetOrientation failed: %v", err)
	}
	if got := f.body("/session/s1/orientation")["orientation"]; got != "PORTRAIT" {
		t.Errorf("orientation body = %v, want PORTRAIT", got)
	}

	if err := b.SetOrientation(ctx, core.OrientationLandscapeReverse); err != nil {
		t.Fatalf("SetOrientation reverse failed: %v", err)
	}
	if got := f.body("/session/s1/rotation")["z"]; got != 270.0 {
		t.Errorf("rotation z = %v, want 270", got)
	}
}

func TestBackend_BatteryAndLogs(t *testing.T) {
	f := &fakeServer{}
	b := newBackend(t, f)
	ctx := context.Background()

	level, err := b.BatteryLevel(ctx)
	if err != nil {
		t.Fatalf("BatteryLevel failed: %v", err)
	}
	if level != 87 {
		t.Errorf("level = %d, want 87", level)
	}
	if got := f.body("/session/s1/execute/sync")["script"]; got != "mobile: batteryInfo" {
		t.Errorf("script = %v", got)
	}

	entries, err := b.Logs(ctx, "")
	if err != nil {
		t.Fatalf("Logs failed: %v", err)
	}
	if len(entries) != 1 || entries[0].Message != "started" || entries[0].Timestamp != 1700000000000 {
		t.Errorf("entries = %+v", entries)
	}
	if got := f.body("/session/s1/se/log")["type"]; got != "logcat" {
		t.Errorf("log type = %v, want logcat", got)
	}
}

func TestBackend_PinchUsesTwoFingers(t *testing.T) {
	f := &fakeServer{}
	b := newBackend(t, f)

	err := b.Pinch(context.Background(),
		[2]core.Point{{X: 90, Y: 90}, {X: 50, Y: 50}},
		[2]core.Point{{X: 110, Y: 110}, {X: 150, Y: 150}},
		500*time.Millisecond)
	if err != nil {
		t.Fatalf("Pinch failed: %v", err)
	}
	actions, _ := f.body("/session/s1/actions")["actions"].([]interface{})
	if len(actions) != 2 {
		t.Fatalf("pointer sources = %d, want 2", len(actions))
	}
	second, _ := actions[1].(map[string]interface{})
	if second["id"] != "finger2" {
		t.Errorf("second source id = %v", second["id"])
	}
}

func TestBackend_ElementScreenshot(t *testing.T) {
	f := &fakeServer{found: true}
	b := newBackend(t, f)

	els, err := b.FindAll(context.Background(), core.Query{Strategy: "id", Value: "logo"})
	if err != nil || len(els) != 1 {
		t.Fatalf("FindAll = %v, %v", els, err)
	}
	capturer, ok := els[0].(core.ElementCapturer)
	if !ok {
		t.Fatal("appium element does not implement core.ElementCapturer")
	}
	data, err := capturer.Screenshot(context.Background())
	if err != nil {
		t.Fatalf("Screenshot failed: %v", err)
	}
	if string(data) != "element-png" {
		t.Errorf("data = %q", data)
	}
}
