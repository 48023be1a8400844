// Package appium implements core.Backend over an Appium server using the W3C
// WebDriver protocol.
package appium

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/devicelab-dev/pagekit/pkg/core"
)

// W3C WebDriver element identifier key (standard constant)
const w3cElementKey = "element-6066-11e4-a52e-4f735466cecf"

// WebDriverError is an error reported by the server in a W3C error body.
type WebDriverError struct {
	Status  int
	Type    string // "no such element", "element not interactable", ...
	Message string
}

func (e *WebDriverError) Error() string {
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Client handles HTTP communication with Appium server.
type Client struct {
	serverURL string
	sessionID string
	client    *http.Client
	platform  string // ios, android
}

// NewClient creates a new Appium client.
func NewClient(serverURL string) *Client {
	return &Client{
		serverURL: strings.TrimSuffix(serverURL, "/"),
		client: &http.Client{
			Timeout: 5 * time.Minute, // Long timeout for install/screenshot
		},
	}
}

// Status queries /status. It needs no session and is used as a readiness check.
func (c *Client) Status(ctx context.Context) (bool, error) {
	resp, err := c.get(ctx, "/status")
	if err != nil {
		return false, err
	}
	value, ok := resp["value"].(map[string]interface{})
	if !ok {
		return false, fmt.Errorf("invalid status response")
	}
	ready, _ := value["ready"].(bool)
	return ready, nil
}

// Connect creates a new session with the given capabilities.
func (c *Client) Connect(ctx context.Context, capabilities map[string]interface{}) error {
	body := map[string]interface{}{
		"capabilities": map[string]interface{}{
			"alwaysMatch": capabilities,
		},
	}

	resp, err := c.post(ctx, "/session", body)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}

	value, ok := resp["value"].(map[string]interface{})
	if !ok {
		return fmt.Errorf("invalid session response")
	}

	c.sessionID, _ = value["sessionId"].(string)
	if c.sessionID == "" {
		return fmt.Errorf("no session ID in response")
	}

	if caps, ok := value["capabilities"].(map[string]interface{}); ok {
		if platform, ok := caps["platformName"].(string); ok {
			c.platform = strings.ToLower(platform)
		}
	}
	if c.platform == "" {
		if platform, ok := capabilities["platformName"].(string); ok {
			c.platform = strings.ToLower(platform)
		}
	}
	return nil
}

// Disconnect closes the session.
func (c *Client) Disconnect(ctx context.Context) error {
	if c.sessionID == "" {
		return nil
	}
	_, err := c.delete(ctx, c.sessionPath())
	c.sessionID = ""
	return err
}

// SessionID returns the current session ID, empty when disconnected.
func (c *Client) SessionID() string {
	return c.sessionID
}

// Platform returns the platform (ios/android).
func (c *Client) Platform() string {
	return c.platform
}

// WindowRect returns the current window size.
func (c *Client) WindowRect(ctx context.Context) (int, int, error) {
	resp, err := c.get(ctx, c.sessionPath()+"/window/rect")
	if err != nil {
		return 0, 0, err
	}
	value, ok := resp["value"].(map[string]interface{})
	if !ok {
		return 0, 0, fmt.Errorf("invalid window rect response")
	}
	w, _ := value["width"].(float64)
	h, _ := value["height"].(float64)
	return int(w), int(h), nil
}

// Element Operations

// FindElements finds all elements matching strategy and value. No match is an
// empty slice.
func (c *Client) FindElements(ctx context.Context, strategy, value string) ([]string, error) {
	body := map[string]interface{}{
		"using": strategy,
		"value": value,
	}

	resp, err := c.post(ctx, c.sessionPath()+"/elements", body)
	if err != nil {
		if IsNoSuchElement(err) {
			return nil, nil
		}
		return nil, err
	}

	values, ok := resp["value"].([]interface{})
	if !ok {
		return nil, nil
	}

	var ids []string
	for _, v := range values {
		if elem, ok := v.(map[string]interface{}); ok {
			if id := extractElementID(elem); id != "" {
				ids = append(ids, id)
			}
		}
	}
	return ids, nil
}

// ClickElement clicks an element using WebDriver standard endpoint.
func (c *Client) ClickElement(ctx context.Context, elementID string) error {
	_, err := c.post(ctx, c.elementPath(elementID)+"/click", map[string]interface{}{})
	return err
}

// ClearElement clears an element's text.
func (c *Client) ClearElement(ctx context.Context, elementID string) error {
	_, err := c.post(ctx, c.elementPath(elementID)+"/clear", map[string]interface{}{})
	return err
}

// SendKeysToElement types text into an element.
func (c *Client) SendKeysToElement(ctx context.Context, elementID, text string) error {
	_, err := c.post(ctx, c.elementPath(elementID)+"/value", map[string]interface{}{
		"text": text,
	})
	return err
}

// GetElementText returns an element's text.
func (c *Client) GetElementText(ctx context.Context, elementID string) (string, error) {
	resp, err := c.get(ctx, c.elementPath(elementID)+"/text")
	if err != nil {
		return "", err
	}
	text, _ := resp["value"].(string)
	return text, nil
}

// GetElementAttribute returns an element's attribute value.
func (c *Client) GetElementAttribute(ctx context.Context, elementID, name string) (string, error) {
	resp, err := c.get(ctx, c.elementPath(elementID)+"/attribute/"+name)
	if err != nil {
		return "", err
	}
	switch v := resp["value"].(type) {
	case string:
		return v, nil
	case nil:
		return "", nil
	default:
		return fmt.Sprint(v), nil
	}
}

// GetElementRect returns an element's position and size.
func (c *Client) GetElementRect(ctx context.Context, elementID string) (x, y, w, h int, err error) {
	resp, err := c.get(ctx, c.elementPath(elementID)+"/rect")
	if err != nil {
		return 0, 0, 0, 0, err
	}
	value, ok := resp["value"].(map[string]interface{})
	if !ok {
		return 0, 0, 0, 0, fmt.Errorf("invalid rect response")
	}

	xf, _ := value["x"].(float64)
	yf, _ := value["y"].(float64)
	wf, _ := value["width"].(float64)
	hf, _ := value["height"].(float64)
	return int(xf), int(yf), int(wf), int(hf), nil
}

// IsElementDisplayed checks if element is visible.
func (c *Client) IsElementDisplayed(ctx context.Context, elementID string) (bool, error) {
	resp, err := c.get(ctx, c.elementPath(elementID)+"/displayed")
	if err != nil {
		return false, err
	}
	displayed, _ := resp["value"].(bool)
	return displayed, nil
}

// IsElementEnabled checks if element is enabled.
func (c *Client) IsElementEnabled(ctx context.Context, elementID string) (bool, error) {
	resp, err := c.get(ctx, c.elementPath(elementID)+"/enabled")
	if err != nil {
		return false, err
	}
	enabled, _ := resp["value"].(bool)
	return enabled, nil
}

// Touch/Gesture Operations (W3C Actions)

func (c *Client) performTouchAction(ctx context.Context, actions []map[string]interface{}) error {
	payload := []map[string]interface{}{
		{
			"type":       "pointer",
			"id":         "finger1",
			"parameters": map[string]interface{}{"pointerType": "touch"},
			"actions":    actions,
		},
	}
	_, err := c.post(ctx, c.sessionPath()+"/actions", map[string]interface{}{"actions": payload})
	return err
}

// Tap performs a tap at coordinates using W3C touch actions.
func (c *Client) Tap(ctx context.Context, x, y int) error {
	return c.performTouchAction(ctx, []map[string]interface{}{
		{"type": "pointerMove", "duration": 0, "x": x, "y": y, "origin": "viewport"},
		{"type": "pointerDown", "button": 0},
		{"type": "pause", "duration": 50},
		{"type": "pointerUp", "button": 0},
	})
}

// LongPress performs a long press at coordinates.
func (c *Client) LongPress(ctx context.Context, x, y, durationMs int) error {
	return c.performTouchAction(ctx, []map[string]interface{}{
		{"type": "pointerMove", "duration": 0, "x": x, "y": y, "origin": "viewport"},
		{"type": "pointerDown", "button": 0},
		{"type": "pause", "duration": durationMs},
		{"type": "pointerUp", "button": 0},
	})
}

// Swipe performs a swipe gesture.
func (c *Client) Swipe(ctx context.Context, startX, startY, endX, endY, durationMs int) error {
	return c.performTouchAction(ctx, []map[string]interface{}{
		{"type": "pointerMove", "duration": 0, "x": startX, "y": startY, "origin": "viewport"},
		{"type": "pointerDown", "button": 0},
		{"type": "pointerMove", "duration": durationMs, "x": endX, "y": endY, "origin": "viewport"},
		{"type": "pointerUp", "button": 0},
	})
}

// Pinch moves two touch pointers at once. Each finger goes from its first
// point to its second over durationMs.
func (c *Client) Pinch(ctx context.Context, finger1, finger2 [2][2]int, durationMs int) error {
	finger := func(id string, path [2][2]int) map[string]interface{} {
		return map[string]interface{}{
			"type":       "pointer",
			"id":         id,
			"parameters": map[string]interface{}{"pointerType": "touch"},
			"actions": []map[string]interface{}{
				{"type": "pointerMove", "duration": 0, "x": path[0][0], "y": path[0][1], "origin": "viewport"},
				{"type": "pointerDown", "button": 0},
				{"type": "pointerMove", "duration": durationMs, "x": path[1][0], "y": path[1][1], "origin": "viewport"},
				{"type": "pointerUp", "button": 0},
			},
		}
	}
	payload := []map[string]interface{}{finger("finger1", finger1), finger("finger2", finger2)}
	_, err := c.post(ctx, c.sessionPath()+"/actions", map[string]interface{}{"actions": payload})
	return err
}

// Device Operations

// GetOrientation returns the current orientation, "PORTRAIT" or "LANDSCAPE".
func (c *Client) GetOrientation(ctx context.Context) (string, error) {
	resp, err := c.get(ctx, c.sessionPath()+"/orientation")
	if err != nil {
		return "", err
	}
	orientation, _ := resp["value"].(string)
	return strings.ToUpper(orientation), nil
}

// SetOrientation sets "PORTRAIT" or "LANDSCAPE".
func (c *Client) SetOrientation(ctx context.Context, orientation string) error {
	_, err := c.post(ctx, c.sessionPath()+"/orientation", map[string]interface{}{
		"orientation": strings.ToUpper(orientation),
	})
	return err
}

// SetRotation rotates the device around the z axis (0, 90, 180 or 270).
func (c *Client) SetRotation(ctx context.Context, z int) error {
	_, err := c.post(ctx, c.sessionPath()+"/rotation", map[string]interface{}{
		"x": 0, "y": 0, "z": z,
	})
	return err
}

// BatteryLevel returns the battery charge in percent.
func (c *Client) BatteryLevel(ctx context.Context) (int, error) {
	value, err := c.ExecuteMobile(ctx, "batteryInfo", map[string]interface{}{})
	if err != nil {
		return 0, err
	}
	info, ok := value.(map[string]interface{})
	if !ok {
		return 0, fmt.Errorf("invalid battery info response")
	}
	level, ok := info["level"].(float64)
	if !ok || level < 0 {
		return 0, fmt.Errorf("battery level unavailable")
	}
	return int(level*100 + 0.5), nil
}

// GetLogs returns the entries of logType ("logcat", "syslog", ...) since the
// previous call.
func (c *Client) GetLogs(ctx context.Context, logType string) ([]core.LogEntry, error) {
	resp, err := c.post(ctx, c.sessionPath()+"/se/log", map[string]interface{}{"type": logType})
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(resp["value"])
	if err != nil {
		return nil, err
	}
	var entries []core.LogEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("invalid log response: %w", err)
	}
	return entries, nil
}

// App Management

// ActivateApp brings an app to the foreground.
func (c *Client) ActivateApp(ctx context.Context, appID string) error {
	_, err := c.post(ctx, c.sessionPath()+"/appium/device/activate_app", c.appBody(appID))
	return err
}

// TerminateApp terminates an app.
func (c *Client) TerminateApp(ctx context.Context, appID string) error {
	_, err := c.post(ctx, c.sessionPath()+"/appium/device/terminate_app", c.appBody(appID))
	return err
}

func (c *Client) appBody(appID string) map[string]interface{} {
	if c.platform == "ios" {
		return map[string]interface{}{"bundleId": appID}
	}
	return map[string]interface{}{"appId": appID}
}

// Screen Operations

// Screenshot returns a screenshot as PNG bytes.
func (c *Client) Screenshot(ctx context.Context) ([]byte, error) {
	resp, err := c.get(ctx, c.sessionPath()+"/screenshot")
	if err != nil {
		return nil, err
	}
	encoded, ok := resp["value"].(string)
	if !ok {
		return nil, fmt.Errorf("invalid screenshot response")
	}
	return base64.StdEncoding.DecodeString(encoded)
}

// ElementScreenshot returns a PNG of one element.
func (c *Client) ElementScreenshot(ctx context.Context, elementID string) ([]byte, error) {
	resp, err := c.get(ctx, c.elementPath(elementID)+"/screenshot")
	if err != nil {
		return nil, err
	}
	encoded, ok := resp["value"].(string)
	if !ok {
		return nil, fmt.Errorf("invalid element screenshot response")
	}
	return base64.StdEncoding.DecodeString(encoded)
}

// ExecuteMobile executes a mobile: command.
func (c *Client) ExecuteMobile(ctx context.Context, command string, args map[string]interface{}) (interface{}, error) {
	resp, err := c.post(ctx, c.sessionPath()+"/execute/sync", map[string]interface{}{
		"script": "mobile: " + command,
		"args":   []interface{}{args},
	})
	if err != nil {
		return nil, err
	}
	return resp["value"], nil
}

// HTTP Helpers

func (c *Client) sessionPath() string {
	return "/session/" + c.sessionID
}

func (c *Client) elementPath(elementID string) string {
	return c.sessionPath() + "/element/" + elementID
}

func (c *Client) get(ctx context.Context, path string) (map[string]interface{}, error) {
	return c.request(ctx, http.MethodGet, path, nil)
}

func (c *Client) post(ctx context.Context, path string, body interface{}) (map[string]interface{}, error) {
	return c.request(ctx, http.MethodPost, path, body)
}

func (c *Client) delete(ctx context.Context, path string) (map[string]interface{}, error) {
	return c.request(ctx, http.MethodDelete, path, nil)
}

func (c *Client) request(ctx context.Context, method, path string, body interface{}) (map[string]interface{}, error) {
	url := c.serverURL + path

	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var result map[string]interface{}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("failed to parse response (HTTP %d): %w", resp.StatusCode, err)
	}

	// Check for WebDriver error
	if errValue, ok := result["value"].(map[string]interface{}); ok {
		if errType, ok := errValue["error"].(string); ok {
			msg, _ := errValue["message"].(string)
			return result, &WebDriverError{Status: resp.StatusCode, Type: errType, Message: msg}
		}
	}

	return result, nil
}

// IsNoSuchElement reports whether err is a W3C "no such element" error.
func IsNoSuchElement(err error) bool {
	wdErr, ok := err.(*WebDriverError)
	return ok && wdErr.Type == "no such element"
}

func extractElementID(value map[string]interface{}) string {
	// W3C format
	if id, ok := value[w3cElementKey].(string); ok {
		return id
	}
	// Legacy format
	if id, ok := value["ELEMENT"].(string); ok {
		return id
	}
	return ""
}
