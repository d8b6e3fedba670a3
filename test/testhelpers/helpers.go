// Package testhelpers provides common utilities for testing the presence
// relay.
//
// It contains reusable functions for creating test servers, opening
// WebSocket connections, speaking the presence protocol, and asserting on
// received frames, to reduce duplication across unit and integration
// tests.
package testhelpers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/codelens-dev/presence/internal/server"
)

// ServerFrame is a decoded outbound frame. Users is populated for
// UserUpdate frames and Activity for FileActivityUpdate frames.
type ServerFrame struct {
	Type     string
	Users    map[string]server.Participant
	Activity *server.FileActivity
}

// CreateTestServer creates a test HTTP server with the given handler.
// It returns a running httptest.Server that should be closed after use.
func CreateTestServer(handler http.Handler) *httptest.Server {
	return httptest.NewServer(handler)
}

// MakeRequest creates and executes an HTTP request, returning the response.
// It includes a 5-second timeout and fails the test if the request cannot
// be created or executed successfully.
func MakeRequest(t *testing.T, method, url string) *http.Response {
	t.Helper()

	client := &http.Client{
		Timeout: 5 * time.Second,
	}

	req, err := http.NewRequest(method, url, http.NoBody)
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Failed to make request: %v", err)
	}

	return resp
}

// AssertStatusCode checks if the HTTP response has the expected status code.
func AssertStatusCode(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("Expected status code %d, got %d", expected, resp.StatusCode)
	}
}

// ConnectWebSocket creates a WebSocket connection to the specified URL.
// It returns the connection or an error if the handshake fails.
func ConnectWebSocket(url string) (*websocket.Conn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}

	conn, resp, err := dialer.Dial(url, nil)
	if resp != nil {
		_ = resp.Body.Close()
	}
	return conn, err
}

// MustConnectWebSocket connects or fails the test, and registers cleanup.
func MustConnectWebSocket(t *testing.T, url string) *websocket.Conn {
	t.Helper()

	conn, err := ConnectWebSocket(url)
	if err != nil {
		t.Fatalf("Failed to connect to WebSocket: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// SendRegister sends a Register frame for the given participant.
func SendRegister(t *testing.T, conn *websocket.Conn, p server.Participant) {
	t.Helper()

	payload, err := json.Marshal(map[string]any{
		"type": server.TypeRegister,
		"data": p,
	})
	if err != nil {
		t.Fatalf("Failed to marshal Register frame: %v", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		t.Fatalf("Failed to send Register frame: %v", err)
	}
}

// SendFileFocus sends a FileFocus frame.
func SendFileFocus(t *testing.T, conn *websocket.Conn, filePath, repoID string) {
	t.Helper()

	payload, err := json.Marshal(map[string]any{
		"type": server.TypeFileFocus,
		"data": server.FileFocus{FilePath: filePath, RepoID: repoID},
	})
	if err != nil {
		t.Fatalf("Failed to marshal FileFocus frame: %v", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		t.Fatalf("Failed to send FileFocus frame: %v", err)
	}
}

// SendRawMessage sends a raw byte message over the WebSocket connection.
func SendRawMessage(conn *websocket.Conn, messageType int, data []byte) error {
	return conn.WriteMessage(messageType, data)
}

// readResult carries the outcome of a single background ReadMessage.
type readResult struct {
	data []byte
	err  error
}

var (
	pendingReadsMu sync.Mutex
	pendingReads   = map[*websocket.Conn]chan readResult{}
)

// startRead returns the channel of an in-flight background read for conn,
// starting one if none is pending. Reads must go through this function so
// that ExpectNoFrame can time out without poisoning the connection:
// gorilla/websocket makes any read error (including deadline timeouts)
// permanent, so the pending read is instead handed to the next consumer.
func startRead(conn *websocket.Conn) chan readResult {
	pendingReadsMu.Lock()
	defer pendingReadsMu.Unlock()

	if ch, ok := pendingReads[conn]; ok {
		return ch
	}
	ch := make(chan readResult, 1)
	pendingReads[conn] = ch
	go func() {
		_, data, err := conn.ReadMessage()
		ch <- readResult{data: data, err: err}
	}()
	return ch
}

// finishRead marks the pending read on conn as consumed.
func finishRead(conn *websocket.Conn) {
	pendingReadsMu.Lock()
	defer pendingReadsMu.Unlock()
	delete(pendingReads, conn)
}

// ReceiveFrame reads and decodes one outbound frame, failing the test on
// transport or decode errors or when nothing arrives within the timeout.
func ReceiveFrame(t *testing.T, conn *websocket.Conn, timeout time.Duration) ServerFrame {
	t.Helper()

	select {
	case res := <-startRead(conn):
		finishRead(conn)
		if res.err != nil {
			t.Fatalf("Failed to read frame: %v", res.err)
		}
		return decodeFrame(t, res.data)
	case <-time.After(timeout):
		t.Fatalf("Failed to read frame: timed out after %v", timeout)
		return ServerFrame{}
	}
}

// ExpectNoFrame asserts that no frame arrives on conn within the timeout.
// A clean close is tolerated. The connection stays usable afterwards: the
// background read keeps waiting and is consumed by the next ReceiveFrame.
func ExpectNoFrame(t *testing.T, conn *websocket.Conn, timeout time.Duration) {
	t.Helper()

	select {
	case res := <-startRead(conn):
		finishRead(conn)
		if res.err == nil {
			t.Fatalf("Expected no frame, but received %q", res.data)
		}
		if websocket.IsCloseError(res.err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			return
		}
		t.Fatalf("Unexpected error while waiting for absence of frame: %v", res.err)
	case <-time.After(timeout):
	}
}

func decodeFrame(t *testing.T, raw []byte) ServerFrame {
	t.Helper()

	var env struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		t.Fatalf("Failed to decode frame envelope %q: %v", raw, err)
	}

	frame := ServerFrame{Type: env.Type}
	switch env.Type {
	case server.TypeUserUpdate:
		if err := json.Unmarshal(env.Data, &frame.Users); err != nil {
			t.Fatalf("Failed to decode UserUpdate data: %v", err)
		}
	case server.TypeFileActivityUpdate:
		frame.Activity = &server.FileActivity{}
		if err := json.Unmarshal(env.Data, frame.Activity); err != nil {
			t.Fatalf("Failed to decode FileActivityUpdate data: %v", err)
		}
	default:
		t.Fatalf("Received frame with unexpected type %q", env.Type)
	}
	return frame
}

// ExpectUserUpdate reads the next frame and fails unless it is a
// UserUpdate, returning the snapshot it carries.
func ExpectUserUpdate(t *testing.T, conn *websocket.Conn, timeout time.Duration) map[string]server.Participant {
	t.Helper()

	frame := ReceiveFrame(t, conn, timeout)
	if frame.Type != server.TypeUserUpdate {
		t.Fatalf("Expected UserUpdate frame, got %q", frame.Type)
	}
	return frame.Users
}

// ExpectFileActivity reads the next frame and fails unless it is a
// FileActivityUpdate, returning the event it carries.
func ExpectFileActivity(t *testing.T, conn *websocket.Conn, timeout time.Duration) server.FileActivity {
	t.Helper()

	frame := ReceiveFrame(t, conn, timeout)
	if frame.Type != server.TypeFileActivityUpdate {
		t.Fatalf("Expected FileActivityUpdate frame, got %q", frame.Type)
	}
	return *frame.Activity
}

// WaitForSubscribers polls until the relay's hub has the expected number
// of subscriptions, guaranteeing that already-connected clients observe
// subsequent broadcasts.
func WaitForSubscribers(t *testing.T, relay *server.Relay, expected int) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if relay.Hub().SubscriberCount() == expected {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for %d subscribers, have %d", expected, relay.Hub().SubscriberCount())
}

// WaitForUserUpdate reads frames until a UserUpdate satisfying the
// predicate arrives, failing after the timeout. Frames of other types are
// skipped.
func WaitForUserUpdate(t *testing.T, conn *websocket.Conn, timeout time.Duration, predicate func(map[string]server.Participant) bool) map[string]server.Participant {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		remaining := time.Until(deadline)
		frame := ReceiveFrame(t, conn, remaining)
		if frame.Type == server.TypeUserUpdate && predicate(frame.Users) {
			return frame.Users
		}
	}
	t.Fatal("Timed out waiting for a matching UserUpdate frame")
	return nil
}

// CloseWebSocket gracefully closes a WebSocket connection.
func CloseWebSocket(conn *websocket.Conn) error {
	err := conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	if err != nil {
		return err
	}
	return conn.Close()
}

// NewParticipant builds a participant with derived display fields.
func NewParticipant(id string) server.Participant {
	return server.Participant{
		UserID: id,
		Name:   fmt.Sprintf("User %s", id),
		Avatar: fmt.Sprintf("%s.png", id),
	}
}
