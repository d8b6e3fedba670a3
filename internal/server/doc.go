// Package server implements the core of the presence relay: accepting
// WebSocket connections, maintaining the registry of connected
// participants, and fanning presence updates out to every session.
//
// The implementation is organized into specialized files for
// configuration, the registry, the broadcast hub, sessions, routing, and
// HTTP handlers to keep the codebase maintainable and testable as the
// project grows.
package server
