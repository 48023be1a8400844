package alttester

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devicelab-dev/pagekit/pkg/action"
	"github.com/devicelab-dev/pagekit/pkg/core"
	"github.com/devicelab-dev/pagekit/pkg/locator"
	"github.com/devicelab-dev/pagekit/pkg/wait"
)

var (
	_ core.Backend = (*Backend)(nil)
	_ core.Toucher = (*Backend)(nil)
)

// fakeServer speaks enough of the AltTester protocol for the backend.
type fakeServer struct {
	t *testing.T

	mu       sync.Mutex
	commands []map[string]interface{}
	text     string
	silent   bool // never answer, to exercise cancellation
}

func encoded(t *testing.T, v interface{}) string {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return string(b)
}

func (f *fakeServer) handle(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	for {
		var msg map[string]interface{}
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		f.mu.Lock()
		f.commands = append(f.commands, msg)
		silent := f.silent
		f.mu.Unlock()
		if silent {
			continue
		}

		resp := map[string]interface{}{
			"messageId":   msg["messageId"],
			"commandName": msg["commandName"],
		}
		switch msg["commandName"] {
		case "findObjects":
			if msg["value"] == "//Missing" {
				resp["error"] = map[string]string{"type": "notFound", "message": "object not found"}
				break
			}
			resp["data"] = encoded(f.t, []Object{{Name: "Play", ID: 7, X: 100, Y: 1800, MobileY: 120, Enabled: true}})
		case "getText":
			f.mu.Lock()
			resp["data"] = f.text
			f.mu.Unlock()
		case "setText":
			f.mu.Lock()
			f.text = msg["value"].(string)
			f.mu.Unlock()
			resp["data"] = "Ok"
		case "getApplicationScreenSize":
			resp["data"] = `{"x":1080,"y":1920}`
		case "getPNGScreenshot":
			resp["data"] = base64.StdEncoding.EncodeToString([]byte("png"))
		default:
			resp["data"] = "Ok"
		}

		// A notification precedes every answer.
		_ = conn.WriteJSON(map[string]interface{}{"commandName": "loadSceneNotification", "isNotification": true})
		if err := conn.WriteJSON(resp); err != nil {
			return
		}
	}
}

func (f *fakeServer) last(name string) map[string]interface{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.commands) - 1; i >= 0; i-- {
		if f.commands[i]["commandName"] == name {
			return f.commands[i]
		}
	}
	return nil
}

func newBackend(t *testing.T) (*Backend, *fakeServer) {
	t.Helper()
	fs := &fakeServer{t: t}
	srv := httptest.NewServer(http.HandlerFunc(fs.handle))
	t.Cleanup(srv.Close)

	c, err := DialURL(context.Background(), "ws"+strings.TrimPrefix(srv.URL, "http")+"/altws")
	require.NoError(t, err)
	b := New(c)
	t.Cleanup(func() { _ = b.Close(context.Background()) })
	return b, fs
}

func query(t *testing.T, kind core.QueryKind, value string) core.Query {
	t.Helper()
	q, err := locator.Resolve(locator.Entry{Name: "play", Kind: kind, Value: value}, core.BackendGame)
	require.NoError(t, err)
	return q
}

func TestFindAll(t *testing.T) {
	b, fs := newBackend(t)

	els, err := b.FindAll(context.Background(), query(t, core.KindXPath, "//Play"))
	require.NoError(t, err)
	require.Len(t, els, 1)

	cmd := fs.last("findObjects")
	assert.Equal(t, "PATH", cmd["by"])
	assert.Equal(t, "//Play", cmd["value"])

	r, err := els[0].Rect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, core.Point{X: 100, Y: 120}, r.Center())
}

func TestFindAllNotFoundIsEmpty(t *testing.T) {
	b, _ := newBackend(t)

	els, err := b.FindAll(context.Background(), query(t, core.KindXPath, "//Missing"))
	require.NoError(t, err)
	assert.Empty(t, els)
}

func TestDispatchTapAndType(t *testing.T) {
	b, fs := newBackend(t)
	fs.mu.Lock()
	fs.text = "old"
	fs.mu.Unlock()
	d := action.New(b, wait.New(time.Second, 10*time.Millisecond))
	ctx := context.Background()
	q := query(t, core.KindAccessibilityID, "Play")

	out := d.Dispatch(ctx, action.Step{Action: action.Tap, Query: q})
	require.True(t, out.Success, "err: %v", out.Err)
	assert.Equal(t, "NAME", fs.last("findObjects")["by"])
	assert.NotNil(t, fs.last("tapElement"))

	out = d.Dispatch(ctx, action.Step{Action: action.Type, Query: q, Text: "neo"})
	require.True(t, out.Success, "err: %v", out.Err)
	fs.mu.Lock()
	assert.Equal(t, "neo", fs.text)
	fs.mu.Unlock()

	out = d.Dispatch(ctx, action.Step{Action: action.ReadText, Query: q})
	v, err := action.ReadValue(out)
	require.NoError(t, err)
	assert.Equal(t, "neo", v)
}

func TestAttribute(t *testing.T) {
	b, fs := newBackend(t)
	el := &element{client: b.Client(), obj: Object{Name: "Play", ID: 7, Enabled: true}}
	ctx := context.Background()

	v, err := el.Attribute(ctx, "id")
	require.NoError(t, err)
	assert.Equal(t, "7", v)

	_, err = el.Attribute(ctx, "UnityEngine.UI.Button.interactable")
	require.NoError(t, err)
	cmd := fs.last("getObjectComponentProperty")
	assert.Equal(t, "UnityEngine.UI.Button", cmd["component"])
	assert.Equal(t, "interactable", cmd["property"])

	_, err = el.Attribute(ctx, "bogus")
	assert.ErrorIs(t, err, core.ErrInvalidArgument)
}

func TestGesturesFlipYAxis(t *testing.T) {
	b, fs := newBackend(t)
	ctx := context.Background()

	size, err := b.Viewport(ctx)
	require.NoError(t, err)
	assert.Equal(t, core.Size{Width: 1080, Height: 1920}, size)

	require.NoError(t, b.Tap(ctx, core.Point{X: 10, Y: 20}))
	coords := fs.last("tapCoordinates")["coordinates"].(map[string]interface{})
	assert.Equal(t, 10.0, coords["x"])
	assert.Equal(t, 1900.0, coords["y"])

	require.NoError(t, b.Swipe(ctx, core.Point{X: 0, Y: 0}, core.Point{X: 0, Y: 1920}, 500*time.Millisecond))
	swipe := fs.last("swipe")
	assert.Equal(t, 1920.0, swipe["start"].(map[string]interface{})["y"])
	assert.Equal(t, 0.0, swipe["end"].(map[string]interface{})["y"])
	assert.Equal(t, 0.5, swipe["duration"])
}

func TestScreenshotDecodes(t *testing.T) {
	b, _ := newBackend(t)

	png, err := b.Screenshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []byte("png"), png)
}

func TestCallHonoursContext(t *testing.T) {
	b, fs := newBackend(t)
	fs.mu.Lock()
	fs.silent = true
	fs.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err := b.FindAll(ctx, query(t, core.KindID, "x"))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

func TestCallAfterTimeoutStillWorks(t *testing.T) {
	b, fs := newBackend(t)
	fs.mu.Lock()
	fs.silent = true
	fs.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err := b.FindAll(ctx, query(t, core.KindXPath, "//Play"))
	require.ErrorIs(t, err, context.DeadlineExceeded)

	fs.mu.Lock()
	fs.silent = false
	fs.mu.Unlock()

	for i := 0; i < 3; i++ {
		els, err := b.FindAll(context.Background(), query(t, core.KindXPath, "//Play"))
		require.NoError(t, err, "call %d", i)
		assert.Len(t, els, 1)
	}
}

func TestConcurrentCallsAreRouted(t *testing.T) {
	b, fs := newBackend(t)
	fs.mu.Lock()
	fs.text = "score"
	fs.mu.Unlock()
	el := &element{client: b.Client(), obj: Object{Name: "Score", ID: 3, Enabled: true}}

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			text, err := el.Text(context.Background())
			if err == nil && text != "score" {
				err = assert.AnError
			}
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}
}

func TestCallAfterCloseFails(t *testing.T) {
	b, _ := newBackend(t)
	require.NoError(t, b.Client().Close())

	_, err := b.FindAll(context.Background(), query(t, core.KindXPath, "//Play"))
	assert.Error(t, err)
}

func TestServerError(t *testing.T) {
	err := &ServerError{Type: "notFound", Message: "gone"}
	assert.EqualError(t, err, "notFound: gone")
	assert.True(t, IsNotFound(err))
	assert.False(t, IsNotFound(&ServerError{Type: "nullReference"}))
}
