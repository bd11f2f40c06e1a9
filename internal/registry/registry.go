// Package registry tracks live realtime connections per user.
package registry

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/artpromedia/aivo-sub003/internal/domain"
)

// ConnState represents the lifecycle state of a realtime connection.
type ConnState string

const (
	ConnConnecting ConnState = "CONNECTING"
	ConnActive     ConnState = "ACTIVE"
	ConnStale      ConnState = "STALE"
	ConnClosed     ConnState = "CLOSED"
)

func (s ConnState) String() string { return string(s) }

// Connection is one live realtime session. The registry owns every instance;
// callers receive snapshots, never the mutable struct.
type Connection struct {
	ID              string
	UserID          string
	DeviceID        string
	State           ConnState
	LastHeartbeatAt time.Time
	LastAckedSeq    uint64
}

// Registry is the authoritative map of live connections. Mutations are
// serialized per registry; lookups hand out value copies.
type Registry struct {
	mu      sync.RWMutex
	byID    map[string]*Connection
	byUser  map[string]map[string]*Connection
	now     func() time.Time
	onEvict func(conn Connection)
}

func New() *Registry {
	return &Registry{
		byID:   make(map[string]*Connection),
		byUser: make(map[string]map[string]*Connection),
		now:    time.Now,
	}
}

// SetEvictHook installs a callback invoked after a connection is removed.
// Used by the realtime gateway to tear down the underlying socket.
func (r *Registry) SetEvictHook(hook func(conn Connection)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onEvict = hook
}

// Register creates a CONNECTING connection for an already-authenticated user
// and returns its snapshot. Identity validation happens upstream; the
// registry never sees unauthenticated peers. The connection becomes a
// delivery target only once Activate is called after the handshake finishes.
func (r *Registry) Register(userID, deviceID string) (Connection, error) {
	if strings.TrimSpace(userID) == "" {
		return Connection{}, fmt.Errorf("%w: user id is required", domain.ErrValidation)
	}

	conn := &Connection{
		ID:              uuid.NewString(),
		UserID:          userID,
		DeviceID:        strings.TrimSpace(deviceID),
		State:           ConnConnecting,
		LastHeartbeatAt: r.now().UTC(),
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.byID[conn.ID] = conn
	userConns := r.byUser[userID]
	if userConns == nil {
		userConns = make(map[string]*Connection)
		r.byUser[userID] = userConns
	}
	userConns[conn.ID] = conn

	return *conn, nil
}

// Activate transitions CONNECTING → ACTIVE once the handshake, including any
// replay catch-up, has completed. Until then the connection is not a
// delivery target, so catch-up frames and live broadcasts cannot interleave.
func (r *Registry) Activate(connID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.byID[connID]
	if !ok {
		return domain.ErrNotFound
	}
	if conn.State == ConnConnecting {
		conn.State = ConnActive
		conn.LastHeartbeatAt = r.now().UTC()
	}
	return nil
}

// Unregister removes a connection on client-initiated disconnect. The
// connection goes straight to CLOSED, bypassing STALE.
func (r *Registry) Unregister(connID string) error {
	r.mu.Lock()
	conn, ok := r.byID[connID]
	if !ok {
		r.mu.Unlock()
		return domain.ErrNotFound
	}
	conn.State = ConnClosed
	r.removeLocked(conn)
	hook := r.onEvict
	snapshot := *conn
	r.mu.Unlock()

	if hook != nil {
		hook(snapshot)
	}
	return nil
}

// ActiveConnections returns snapshots of every ACTIVE connection for a user.
// An unknown user simply has none.
func (r *Registry) ActiveConnections(userID string) []Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	userConns := r.byUser[userID]
	if len(userConns) == 0 {
		return nil
	}

	out := make([]Connection, 0, len(userConns))
	for _, conn := range userConns {
		if conn.State == ConnActive {
			out = append(out, *conn)
		}
	}
	return out
}

// Get returns a snapshot of one connection.
func (r *Registry) Get(connID string) (Connection, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, ok := r.byID[connID]
	if !ok {
		return Connection{}, domain.ErrNotFound
	}
	return *conn, nil
}

// RecordHeartbeat notes liveness for a connection. A STALE connection that
// acks again is revived to ACTIVE.
func (r *Registry) RecordHeartbeat(connID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.byID[connID]
	if !ok {
		return domain.ErrNotFound
	}
	conn.LastHeartbeatAt = at.UTC()
	if conn.State == ConnStale {
		conn.State = ConnActive
	}
	return nil
}

// RecordAck records the highest sequence number the client confirmed.
// Watermarks only move forward.
func (r *Registry) RecordAck(connID string, seq uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.byID[connID]
	if !ok {
		return domain.ErrNotFound
	}
	if seq > conn.LastAckedSeq {
		conn.LastAckedSeq = seq
	}
	return nil
}

// MarkStale transitions ACTIVE → STALE. Only the heartbeat monitor calls it.
func (r *Registry) MarkStale(connID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.byID[connID]
	if !ok {
		return domain.ErrNotFound
	}
	if conn.State == ConnActive {
		conn.State = ConnStale
	}
	return nil
}

// Close removes a connection after its grace period expires. CLOSED
// connections never receive further deliveries.
func (r *Registry) Close(connID string) error {
	return r.Unregister(connID)
}

// Snapshot returns copies of every tracked connection, for heartbeat scans.
func (r *Registry) Snapshot() []Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Connection, 0, len(r.byID))
	for _, conn := range r.byID {
		out = append(out, *conn)
	}
	return out
}

// Len reports the number of tracked connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

func (r *Registry) removeLocked(conn *Connection) {
	delete(r.byID, conn.ID)
	if userConns := r.byUser[conn.UserID]; userConns != nil {
		delete(userConns, conn.ID)
		if len(userConns) == 0 {
			delete(r.byUser, conn.UserID)
		}
	}
}
