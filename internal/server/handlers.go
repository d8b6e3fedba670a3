// Package server exposes HTTP handlers, including WebSocket upgrades,
// health checks, and the built-in presence test page.
package server

import (
	"fmt"
	"log"
	"net/http"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     checkOrigin,
}

// Relay bundles the shared registry and broadcast hub behind the
// WebSocket endpoint. One Relay serves all sessions of a process.
type Relay struct {
	registry *Registry
	hub      *Hub
}

// NewRelay creates a Relay with an empty registry and a fresh hub.
func NewRelay() *Relay {
	return &Relay{
		registry: NewRegistry(),
		hub:      NewHub(),
	}
}

// Registry returns the relay's participant registry.
func (rl *Relay) Registry() *Registry {
	return rl.registry
}

// Hub returns the relay's broadcast hub.
func (rl *Relay) Hub() *Hub {
	return rl.hub
}

// Shutdown releases every hub subscription, stopping all session write
// pumps. Open connections then unwind through their read pumps.
func (rl *Relay) Shutdown() {
	rl.hub.Shutdown()
}

// WebSocketHandler handles WebSocket upgrade requests. It validates that
// the request uses the GET method, upgrades the HTTP connection, and
// starts a Session with a fresh hub subscription and the shared registry.
// A failed upgrade is logged and never affects other connections.
func (rl *Relay) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed for %s: %v", r.RemoteAddr, err)
		return
	}

	session := NewSession(conn, rl.registry, rl.hub, r.RemoteAddr)
	session.Start()
}

// HealthHandler provides a simple health check endpoint that returns server status.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "presenced is running!")
}

// TestPageHandler serves an HTML test page for exercising the presence
// protocol. It connects to the WebSocket endpoint, registers an identity,
// reports file focus, and renders peer presence updates as they arrive.
func TestPageHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	html := `<!DOCTYPE html>
<html>
<head>
    <title>presenced test page</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; }
        #peers, #activity {
            border: 1px solid #ccc;
            min-height: 120px;
            padding: 10px;
            margin: 10px 0;
            background-color: #f9f9f9;
        }
        input[type="text"] { width: 220px; padding: 5px; margin-right: 10px; }
        button {
            padding: 5px 15px;
            background-color: #007cba;
            color: white;
            border: none;
            cursor: pointer;
        }
        button:hover { background-color: #005a87; }
        .status { margin: 10px 0; padding: 5px; border-radius: 3px; }
        .connected { background-color: #d4edda; color: #155724; }
        .disconnected { background-color: #f8d7da; color: #721c24; }
    </style>
</head>
<body>
    <h1>presenced test page</h1>

    <div id="status" class="status disconnected">Disconnected</div>

    <div>
        <input type="text" id="nameInput" placeholder="Display name">
        <button id="connectButton" onclick="toggleConnection()">Connect</button>
    </div>
    <div style="margin-top: 10px">
        <input type="text" id="fileInput" placeholder="/path/to/file.go" disabled>
        <button id="focusButton" onclick="sendFocus()" disabled>Report focus</button>
    </div>

    <h2>Peers</h2>
    <div id="peers"><em>No snapshot received yet</em></div>

    <h2>Activity</h2>
    <div id="activity"></div>

    <script>
        let ws = null;
        const statusDiv = document.getElementById('status');
        const peersDiv = document.getElementById('peers');
        const activityDiv = document.getElementById('activity');
        const fileInput = document.getElementById('fileInput');
        const focusButton = document.getElementById('focusButton');
        const connectButton = document.getElementById('connectButton');
        const userId = 'web-' + Math.random().toString(36).slice(2, 8);

        function updateStatus(connected) {
            statusDiv.textContent = connected ? 'Connected as ' + userId : 'Disconnected';
            statusDiv.className = 'status ' + (connected ? 'connected' : 'disconnected');
            fileInput.disabled = !connected;
            focusButton.disabled = !connected;
            connectButton.textContent = connected ? 'Disconnect' : 'Connect';
        }

        function renderPeers(users) {
            peersDiv.innerHTML = '';
            const ids = Object.keys(users);
            if (ids.length === 0) {
                peersDiv.innerHTML = '<em>Nobody here</em>';
                return;
            }
            for (const id of ids) {
                const u = users[id];
                const row = document.createElement('div');
                row.textContent = u.name + ' (' + id + ') — ' + (u.current_file || 'no file');
                peersDiv.appendChild(row);
            }
        }

        function addActivity(text) {
            const row = document.createElement('div');
            row.textContent = text;
            activityDiv.appendChild(row);
            activityDiv.scrollTop = activityDiv.scrollHeight;
        }

        function connect() {
            ws = new WebSocket('ws://' + location.host + '/ws');

            ws.onopen = function() {
                updateStatus(true);
                const name = document.getElementById('nameInput').value || userId;
                ws.send(JSON.stringify({
                    type: 'Register',
                    data: { user_id: userId, name: name, avatar: '', current_file: null }
                }));
            };

            ws.onmessage = function(event) {
                const msg = JSON.parse(event.data);
                if (msg.type === 'UserUpdate') {
                    renderPeers(msg.data);
                } else if (msg.type === 'FileActivityUpdate') {
                    addActivity(msg.data.user_id + ' opened ' + msg.data.file_path);
                }
            };

            ws.onclose = function() {
                updateStatus(false);
                ws = null;
            };
        }

        function sendFocus() {
            if (ws && ws.readyState === WebSocket.OPEN && fileInput.value) {
                ws.send(JSON.stringify({
                    type: 'FileFocus',
                    data: { file_path: fileInput.value, repo_id: 'test-page' }
                }));
            }
        }

        function toggleConnection() {
            if (ws && ws.readyState === WebSocket.OPEN) {
                ws.close();
            } else {
                connect();
            }
        }
    </script>
</body>
</html>`
	if _, err := fmt.Fprint(w, html); err != nil {
		log.Printf("Error writing HTML response: %v", err)
	}
}
