// Package server defines the wire-level message types exchanged between
// presence clients and the relay, shared across session and hub logic.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Message type tags carried in the "type" field of every frame.
const (
	TypeRegister           = "Register"
	TypeFileFocus          = "FileFocus"
	TypeUserUpdate         = "UserUpdate"
	TypeFileActivityUpdate = "FileActivityUpdate"
)

// Participant is a connected, registered identity with display metadata
// and an optional current file focus. CurrentFile is nil until the first
// focus event from the owning session.
type Participant struct {
	UserID      string  `json:"user_id"`
	Name        string  `json:"name"`
	Avatar      string  `json:"avatar"`
	CurrentFile *string `json:"current_file"`
}

// FileActivity is the point-in-time focus event broadcast when a
// registered participant switches files. It is constructed on receipt,
// published once, and never retained.
type FileActivity struct {
	UserID   string `json:"user_id"`
	FilePath string `json:"file_path"`
	RepoID   string `json:"repo_id"`
}

// FileFocus is the payload of an inbound FileFocus frame.
type FileFocus struct {
	FilePath string `json:"file_path"`
	RepoID   string `json:"repo_id"`
}

// envelope is the tagged {"type": ..., "data": ...} frame shape used in
// both directions on the wire.
type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// ClientMessage is a decoded inbound frame. Exactly one of Register or
// FileFocus is non-nil, matching Type.
type ClientMessage struct {
	Type      string
	Register  *Participant
	FileFocus *FileFocus
}

var errUnknownMessageType = errors.New("unknown message type")

// DecodeClientMessage parses a raw text frame into a ClientMessage.
// Any frame that does not match the envelope shape or carries an
// unrecognized type is rejected; callers drop such frames and keep the
// session alive.
func DecodeClientMessage(raw []byte) (*ClientMessage, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, err
	}

	switch env.Type {
	case TypeRegister:
		var p Participant
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return nil, err
		}
		return &ClientMessage{Type: TypeRegister, Register: &p}, nil
	case TypeFileFocus:
		var f FileFocus
		if err := json.Unmarshal(env.Data, &f); err != nil {
			return nil, err
		}
		return &ClientMessage{Type: TypeFileFocus, FileFocus: &f}, nil
	default:
		return nil, fmt.Errorf("%w: %q", errUnknownMessageType, env.Type)
	}
}

// ServerMessage is an outbound broadcast frame. Users is set for
// UserUpdate frames and Activity for FileActivityUpdate frames.
type ServerMessage struct {
	Type     string
	Users    map[string]Participant
	Activity *FileActivity
}

// NewUserUpdate wraps a registry snapshot in a UserUpdate frame.
func NewUserUpdate(users map[string]Participant) ServerMessage {
	return ServerMessage{Type: TypeUserUpdate, Users: users}
}

// NewFileActivityUpdate wraps a focus event in a FileActivityUpdate frame.
func NewFileActivityUpdate(activity FileActivity) ServerMessage {
	return ServerMessage{Type: TypeFileActivityUpdate, Activity: &activity}
}

// MarshalJSON renders the tagged envelope shape expected by clients.
func (m ServerMessage) MarshalJSON() ([]byte, error) {
	var data any
	switch m.Type {
	case TypeUserUpdate:
		data = m.Users
	case TypeFileActivityUpdate:
		data = m.Activity
	default:
		return nil, fmt.Errorf("%w: %q", errUnknownMessageType, m.Type)
	}

	payload, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(envelope{Type: m.Type, Data: payload})
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
