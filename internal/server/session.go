// Package server manages individual presence sessions, handling
// read/write pumps, the register/focus state machine, and lifecycle
// control for each connection.
package server

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	readDeadline  = 60 * time.Second
	writeDeadline = 10 * time.Second
	pingInterval  = 54 * time.Second
)

// Session is the server-side state bound to one client connection. The
// read pump drives the register/focus state machine; the write pump
// drains the session's hub subscription. Both stop when the read pump
// exits, via the done channel.
type Session struct {
	id       string
	conn     *websocket.Conn
	registry *Registry
	hub      *Hub
	sub      *Subscription
	addr     string

	// boundID is the identity claimed by the most recent Register frame,
	// empty until then. Written only by the read pump.
	boundID string

	done           chan struct{}
	maxMessageSize int64
	rateLimiter    *rateLimiter
	rateLimit      RateLimitConfig
}

// NewSession creates a Session for an upgraded connection sharing the
// given registry and hub. Start must be called to begin processing.
func NewSession(conn *websocket.Conn, registry *Registry, hub *Hub, addr string) *Session {
	cfg := currentConfig()
	if conn != nil {
		conn.SetReadLimit(cfg.MaxMessageSize)
	}
	limiter := newRateLimiter(cfg.RateLimit.Burst, cfg.RateLimit.RefillInterval)

	return &Session{
		id:             uuid.NewString(),
		conn:           conn,
		registry:       registry,
		hub:            hub,
		addr:           addr,
		done:           make(chan struct{}),
		maxMessageSize: cfg.MaxMessageSize,
		rateLimiter:    limiter,
		rateLimit:      cfg.RateLimit,
	}
}

// ID returns the session's correlation identifier.
func (s *Session) ID() string {
	return s.id
}

// Start subscribes the session to the hub and launches both pumps.
func (s *Session) Start() {
	s.sub = s.hub.Subscribe()
	activeConnections.Inc()
	log.Printf("Session %s connected from %s", s.id, s.addr)

	go s.writePump()
	go s.readPump()
}

// setupReadConnection configures read deadlines and pong handler for the WebSocket connection
func (s *Session) setupReadConnection() {
	if err := s.conn.SetReadDeadline(time.Now().Add(readDeadline)); err != nil {
		log.Printf("Error setting initial read deadline for session %s: %v", s.id, err)
	}
	s.conn.SetPongHandler(func(string) error {
		if err := s.conn.SetReadDeadline(time.Now().Add(readDeadline)); err != nil {
			log.Printf("Error setting read deadline in pong handler for session %s: %v", s.id, err)
		}
		return nil
	})
}

// handleReadError logs appropriate error messages based on the error type
// and returns true if the read loop should break
func (s *Session) handleReadError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, websocket.ErrReadLimit) {
		log.Printf("Frame from session %s exceeded maximum size of %d bytes", s.id, s.maxMessageSize)
		return true
	}

	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure) {
		log.Printf("Session %s disconnected: %v", s.id, err)
		return true
	}

	if errors.Is(err, io.EOF) || isExpectedCloseError(err) {
		log.Printf("Session %s connection closed: %v", s.id, err)
		return true
	}

	if websocket.IsUnexpectedCloseError(err,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure,
		websocket.CloseMessageTooBig) {
		log.Printf("Unexpected WebSocket error from session %s: %v", s.id, err)
		return true
	}

	log.Printf("WebSocket read error from session %s: %v", s.id, err)
	return true
}

// checkRateLimit verifies if the session has exceeded rate limits
// and returns true if the frame should be processed
func (s *Session) checkRateLimit() bool {
	if s.rateLimiter != nil && !s.rateLimiter.allow() {
		rateLimitedFrames.Inc()
		log.Printf("Rate limit exceeded for session %s (%d frames per %s); discarding frame", s.id, s.rateLimit.Burst, s.rateLimit.RefillInterval)
		return false
	}
	return true
}

func (s *Session) readPump() {
	defer s.teardown()

	s.setupReadConnection()

	for {
		messageType, raw, err := s.conn.ReadMessage()
		if err != nil {
			if s.handleReadError(err) {
				break
			}
		}

		if messageType != websocket.TextMessage {
			continue
		}

		if !s.checkRateLimit() {
			continue
		}

		s.processFrame(raw)
	}
}

// processFrame decodes one inbound frame and dispatches it to the state
// machine. Malformed frames are dropped and the session continues.
func (s *Session) processFrame(raw []byte) {
	msg, err := DecodeClientMessage(raw)
	if err != nil {
		malformedFrames.Inc()
		log.Printf("Invalid frame from session %s: %v", s.id, err)
		return
	}

	inboundMessages.WithLabelValues(msg.Type).Inc()

	switch msg.Type {
	case TypeRegister:
		s.handleRegister(*msg.Register)
	case TypeFileFocus:
		s.handleFileFocus(*msg.FileFocus)
	}
}

// handleRegister binds the session to the claimed identity, stores the
// participant, and broadcasts a full registry snapshot. Re-registering is
// allowed and rebinds the session, possibly under a new identifier.
func (s *Session) handleRegister(p Participant) {
	s.boundID = p.UserID
	s.registry.Upsert(p.UserID, p)
	registeredParticipants.Set(float64(s.registry.Len()))

	log.Printf("Session %s registered as %q", s.id, p.UserID)
	s.hub.Publish(NewUserUpdate(s.registry.Snapshot()))
}

// handleFileFocus records the focus change for the session's bound
// identity and broadcasts a point event. Focus frames arriving before any
// Register are silently ignored, as are frames whose bound identity is no
// longer registered. No snapshot is published for focus changes; peers
// only receive the point event.
func (s *Session) handleFileFocus(f FileFocus) {
	if s.boundID == "" {
		log.Printf("Session %s sent FileFocus before Register; ignoring", s.id)
		return
	}

	if !s.registry.UpdateFocus(s.boundID, f.FilePath) {
		return
	}

	log.Printf("Session %s (%q) focused %s", s.id, s.boundID, f.FilePath)
	s.hub.Publish(NewFileActivityUpdate(FileActivity{
		UserID:   s.boundID,
		FilePath: f.FilePath,
		RepoID:   f.RepoID,
	}))
}

// teardown runs exactly once, when the read pump exits. It stops the
// write pump, releases the hub subscription, removes the bound registry
// entry if one exists, and broadcasts the membership change.
func (s *Session) teardown() {
	close(s.done)
	s.hub.Unsubscribe(s.sub)

	if s.boundID != "" {
		if s.registry.Remove(s.boundID) {
			registeredParticipants.Set(float64(s.registry.Len()))
			s.hub.Publish(NewUserUpdate(s.registry.Snapshot()))
		}
	}

	activeConnections.Dec()
	if err := s.conn.Close(); err != nil {
		if !isExpectedCloseError(err) {
			log.Printf("Error closing connection for session %s: %v", s.id, err)
		}
	}
	log.Printf("Session %s closed", s.id)
}

func (s *Session) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		s.closeConnection()
	}()

	for s.processWriteEvent(ticker) {
	}
}

// processWriteEvent waits for the next write event and returns false when
// the pump should stop processing.
func (s *Session) processWriteEvent(ticker *time.Ticker) bool {
	select {
	case msg, ok := <-s.sub.C():
		return s.handleOutbound(msg, ok)
	case <-ticker.C:
		return s.handlePing()
	case <-s.done:
		return false
	}
}

// closeConnection safely closes the WebSocket connection with proper error handling
func (s *Session) closeConnection() {
	if err := s.conn.Close(); err != nil {
		if !isExpectedCloseError(err) {
			log.Printf("Error closing connection in writePump for session %s: %v", s.id, err)
		}
	}
}

// handleOutbound serializes one broadcast message and writes it to the
// transport. It returns false if the connection should be closed.
func (s *Session) handleOutbound(msg ServerMessage, ok bool) bool {
	if err := s.conn.SetWriteDeadline(time.Now().Add(writeDeadline)); err != nil {
		log.Printf("Error setting write deadline for session %s: %v", s.id, err)
		return false
	}

	if !ok {
		return s.writeCloseMessage()
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		log.Printf("Error encoding %s message for session %s: %v", msg.Type, s.id, err)
		return true
	}

	if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		if !isExpectedCloseError(err) {
			log.Printf("Error writing %s message to session %s: %v", msg.Type, s.id, err)
		}
		return false
	}
	return true
}

// writeCloseMessage sends a close message to the client
func (s *Session) writeCloseMessage() bool {
	if err := s.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil {
		if !isExpectedCloseError(err) {
			log.Printf("Error writing close message to session %s: %v", s.id, err)
		}
	}
	return false
}

// handlePing sends a ping message to keep the connection alive
func (s *Session) handlePing() bool {
	if err := s.conn.SetWriteDeadline(time.Now().Add(writeDeadline)); err != nil {
		log.Printf("Error setting write deadline for ping to session %s: %v", s.id, err)
		return false
	}
	if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		if !isExpectedCloseError(err) {
			log.Printf("Error writing ping message to session %s: %v", s.id, err)
		}
		return false
	}
	return true
}
