package integration

import (
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/codelens-dev/presence/test/testhelpers"
)

// TestHealthEndpoint verifies the health check route.
func TestHealthEndpoint(t *testing.T) {
	_, testServer, _ := startRelayServer(t)

	resp := testhelpers.MakeRequest(t, http.MethodGet, testServer.URL+"/")
	defer func() { _ = resp.Body.Close() }()

	testhelpers.AssertStatusCode(t, resp, http.StatusOK)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read body: %v", err)
	}
	if !strings.Contains(string(body), "presenced is running") {
		t.Errorf("Unexpected health body: %q", body)
	}
}

// TestMetricsEndpoint verifies that Prometheus metrics are exposed.
func TestMetricsEndpoint(t *testing.T) {
	_, testServer, _ := startRelayServer(t)

	resp := testhelpers.MakeRequest(t, http.MethodGet, testServer.URL+"/metrics")
	defer func() { _ = resp.Body.Close() }()

	testhelpers.AssertStatusCode(t, resp, http.StatusOK)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read body: %v", err)
	}
	if !strings.Contains(string(body), "presenced_active_connections") {
		t.Error("Metrics output missing presenced_active_connections")
	}
}

// TestTestPageEndpoint verifies the built-in HTML test page is served.
func TestTestPageEndpoint(t *testing.T) {
	_, testServer, _ := startRelayServer(t)

	resp := testhelpers.MakeRequest(t, http.MethodGet, testServer.URL+"/test")
	defer func() { _ = resp.Body.Close() }()

	testhelpers.AssertStatusCode(t, resp, http.StatusOK)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read body: %v", err)
	}
	if !strings.Contains(string(body), "<html>") {
		t.Error("Test page is not HTML")
	}
}

// TestWebSocketEndpointRejectsInvalidRequests verifies that non-upgrade
// traffic to the WebSocket endpoint is rejected without disturbing the
// server.
func TestWebSocketEndpointRejectsInvalidRequests(t *testing.T) {
	_, testServer, wsURL := startRelayServer(t)

	t.Run("POST request", func(t *testing.T) {
		resp, err := http.Post(testServer.URL+"/ws", "text/plain", strings.NewReader("test"))
		if err != nil {
			t.Fatalf("Failed to make POST request: %v", err)
		}
		defer func() { _ = resp.Body.Close() }()
		testhelpers.AssertStatusCode(t, resp, http.StatusMethodNotAllowed)
	})

	t.Run("GET without upgrade headers", func(t *testing.T) {
		resp := testhelpers.MakeRequest(t, http.MethodGet, testServer.URL+"/ws")
		defer func() { _ = resp.Body.Close() }()
		testhelpers.AssertStatusCode(t, resp, http.StatusBadRequest)
	})

	t.Run("Upgrade still works afterwards", func(t *testing.T) {
		conn := testhelpers.MustConnectWebSocket(t, wsURL)
		if conn == nil {
			t.Fatal("Expected a live connection")
		}
	})
}
