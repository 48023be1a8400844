// Package alttester implements core.Backend over the AltTester websocket
// protocol used to drive Unity game UIs.
package alttester

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/devicelab-dev/pagekit/pkg/logger"
)

// Connection defaults used by the AltTester server.
const (
	DefaultHost    = "127.0.0.1"
	DefaultPort    = 13000
	DefaultAppName = "__default__"
)

// ServerError is an error reported by the AltTester server.
type ServerError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Trace   string `json:"trace,omitempty"`
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Error types returned by the server.
const (
	errorNotFound       = "notFound"
	errorObjectNotFound = "objectNotFound"
)

// IsNotFound reports whether err is an AltTester "not found" error.
func IsNotFound(err error) bool {
	var se *ServerError
	return errors.As(err, &se) && (se.Type == errorNotFound || se.Type == errorObjectNotFound)
}

// Object is a game object as reported by findObjects.
type Object struct {
	Name              string  `json:"name"`
	ID                int     `json:"id"`
	X                 int     `json:"x"`
	Y                 int     `json:"y"`
	MobileY           int     `json:"mobileY"`
	Type              string  `json:"type"`
	Enabled           bool    `json:"enabled"`
	WorldX            float64 `json:"worldX"`
	WorldY            float64 `json:"worldY"`
	WorldZ            float64 `json:"worldZ"`
	IDCamera          int     `json:"idCamera"`
	TransformParentID int     `json:"transformParentId"`
	TransformID       int     `json:"transformId"`
}

type response struct {
	MessageID      string          `json:"messageId"`
	CommandName    string          `json:"commandName"`
	Data           json.RawMessage `json:"data"`
	Error          *ServerError    `json:"error"`
	IsNotification bool            `json:"isNotification"`
}

// writeWait bounds a single websocket write.
const writeWait = 10 * time.Second

// Client is a single AltTester websocket connection. One reader goroutine
// owns the socket's read side and routes every answer to the call waiting
// for its messageId; answers nobody waits for any more are dropped.
type Client struct {
	conn *websocket.Conn

	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[string]chan response
	readErr error
	done    chan struct{}
}

// Dial connects to the AltTester server at host:port for appName.
func Dial(ctx context.Context, host string, port int, appName string) (*Client, error) {
	if host == "" {
		host = DefaultHost
	}
	if port == 0 {
		port = DefaultPort
	}
	if appName == "" {
		appName = DefaultAppName
	}
	u := url.URL{
		Scheme:   "ws",
		Host:     host + ":" + strconv.Itoa(port),
		Path:     "/altws",
		RawQuery: url.Values{"appName": {appName}, "driverType": {"SDK"}}.Encode(),
	}
	return DialURL(ctx, u.String())
}

// DialURL connects to a full AltTester websocket URL.
func DialURL(ctx context.Context, rawURL string) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("connect to AltTester at %s: %w", rawURL, err)
	}
	logger.Info("connected to AltTester at %s", rawURL)
	c := &Client{
		conn:    conn,
		pending: make(map[string]chan response),
		done:    make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// Close closes the connection.
func (c *Client) Close() error {
	c.writeMu.Lock()
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	c.writeMu.Unlock()
	return c.conn.Close()
}

func (c *Client) readLoop() {
	for {
		var resp response
		if err := c.conn.ReadJSON(&resp); err != nil {
			c.mu.Lock()
			c.readErr = err
			c.mu.Unlock()
			close(c.done)
			return
		}
		if resp.IsNotification {
			logger.Debug("alttester: skipping %s notification", resp.CommandName)
			continue
		}
		c.mu.Lock()
		ch, ok := c.pending[resp.MessageID]
		delete(c.pending, resp.MessageID)
		c.mu.Unlock()
		if !ok {
			logger.Debug("alttester: dropping late %s answer %s", resp.CommandName, resp.MessageID)
			continue
		}
		ch <- resp
	}
}

// connErr returns the error that ended the read loop.
func (c *Client) connErr() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.readErr == nil {
		return errors.New("connection closed")
	}
	return c.readErr
}

// Call sends command with params and decodes the response data into out
// (which may be nil). It returns when the answer arrives, ctx is done or
// the connection fails. An abandoned call leaves the connection usable.
func (c *Client) Call(ctx context.Context, command string, params map[string]interface{}, out interface{}) error {
	msg := make(map[string]interface{}, len(params)+2)
	for k, v := range params {
		msg[k] = v
	}
	id := uuid.NewString()
	msg["messageId"] = id
	msg["commandName"] = command

	ch := make(chan response, 1)
	c.mu.Lock()
	c.pending[id] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	if err := ctx.Err(); err != nil {
		return c.wrap(ctx, command, err)
	}
	c.writeMu.Lock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	err := c.conn.WriteJSON(msg)
	c.writeMu.Unlock()
	if err != nil {
		return c.wrap(ctx, command, err)
	}

	select {
	case resp := <-ch:
		if resp.Error != nil {
			return resp.Error
		}
		if out == nil || len(resp.Data) == 0 {
			return nil
		}
		return decodeData(resp.Data, out)
	case <-ctx.Done():
		return c.wrap(ctx, command, ctx.Err())
	case <-c.done:
		return c.wrap(ctx, command, c.connErr())
	}
}

func (c *Client) wrap(ctx context.Context, command string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%s: %w", command, ctxErr)
	}
	return fmt.Errorf("%s: %w", command, err)
}

// decodeData unpacks response data. The server sends most payloads as a
// JSON document encoded inside a JSON string.
func decodeData(data json.RawMessage, out interface{}) error {
	var inner string
	if err := json.Unmarshal(data, &inner); err == nil {
		if s, ok := out.(*string); ok {
			*s = inner
			return nil
		}
		return json.Unmarshal([]byte(inner), out)
	}
	return json.Unmarshal(data, out)
}

// FindObjects returns every enabled object matching by/value.
func (c *Client) FindObjects(ctx context.Context, by, value string) ([]Object, error) {
	var objs []Object
	err := c.Call(ctx, "findObjects", map[string]interface{}{
		"by":         by,
		"value":      value,
		"cameraBy":   "NAME",
		"cameraPath": "",
		"enabled":    true,
	}, &objs)
	if err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return objs, nil
}

// TapObject taps obj count times.
func (c *Client) TapObject(ctx context.Context, obj Object, count int) error {
	return c.Call(ctx, "tapElement", map[string]interface{}{
		"altObject": obj,
		"count":     count,
		"interval":  0.1,
		"wait":      true,
	}, nil)
}

// GetText returns the text of obj's UI text component.
func (c *Client) GetText(ctx context.Context, obj Object) (string, error) {
	var text string
	err := c.Call(ctx, "getText", map[string]interface{}{"altObject": obj}, &text)
	return text, err
}

// SetText replaces obj's text.
func (c *Client) SetText(ctx context.Context, obj Object, text string) error {
	return c.Call(ctx, "setText", map[string]interface{}{
		"altObject": obj,
		"value":     text,
		"submit":    true,
	}, nil)
}

// ComponentProperty reads component.property from obj.
func (c *Client) ComponentProperty(ctx context.Context, obj Object, component, property string) (string, error) {
	var v string
	err := c.Call(ctx, "getObjectComponentProperty", map[string]interface{}{
		"altObject": obj,
		"component": component,
		"property":  property,
		"assembly":  "",
		"maxDepth":  2,
	}, &v)
	return v, err
}

// ScreenSize returns the application screen size in pixels.
func (c *Client) ScreenSize(ctx context.Context) (width, height int, err error) {
	var v struct {
		X float64 `json:"x"`
		Y float64 `json:"y"`
	}
	if err := c.Call(ctx, "getApplicationScreenSize", nil, &v); err != nil {
		return 0, 0, err
	}
	return int(v.X), int(v.Y), nil
}

// TapCoordinates taps a point in Unity screen coordinates (origin bottom left).
func (c *Client) TapCoordinates(ctx context.Context, x, y int) error {
	return c.Call(ctx, "tapCoordinates", map[string]interface{}{
		"coordinates": map[string]int{"x": x, "y": y},
		"count":       1,
		"interval":    0.1,
		"wait":        true,
	}, nil)
}

// Swipe drags between two points in Unity screen coordinates.
func (c *Client) Swipe(ctx context.Context, x1, y1, x2, y2 int, d time.Duration) error {
	return c.Call(ctx, "swipe", map[string]interface{}{
		"start":    map[string]int{"x": x1, "y": y1},
		"end":      map[string]int{"x": x2, "y": y2},
		"duration": d.Seconds(),
		"wait":     true,
	}, nil)
}

// Screenshot returns a PNG of the game view. The server sends it base64 encoded.
func (c *Client) Screenshot(ctx context.Context) (string, error) {
	var data string
	err := c.Call(ctx, "getPNGScreenshot", nil, &data)
	return data, err
}
