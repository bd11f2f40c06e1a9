// Package realtime is the websocket gateway: it owns the sockets behind the
// connection registry and implements the delivery and probe ports for the
// realtime channel.
package realtime

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/artpromedia/aivo-sub003/internal/domain"
	"github.com/artpromedia/aivo-sub003/internal/observability"
	"github.com/artpromedia/aivo-sub003/internal/registry"
	"github.com/artpromedia/aivo-sub003/internal/replay"
)

const writeTimeout = 5 * time.Second

// session pairs a registered connection with its socket. Writes are
// serialized per socket; the websocket library forbids concurrent writers.
type session struct {
	writeMu sync.Mutex
	conn    *websocket.Conn
}

// Gateway terminates websocket connections, feeds liveness signals into the
// registry, and replays missed messages on reconnect. It is the Sender for
// the realtime adapter and the Prober for the heartbeat monitor.
type Gateway struct {
	registry *registry.Registry
	replay   *replay.Log
	auth     Authenticator
	logger   *zap.Logger
	metrics  *observability.Metrics

	mu       sync.RWMutex
	sessions map[string]*session
}

func NewGateway(
	reg *registry.Registry,
	log *replay.Log,
	auth Authenticator,
	logger *zap.Logger,
) (*Gateway, error) {
	if reg == nil {
		return nil, fmt.Errorf("connection registry is required")
	}
	if log == nil {
		return nil, fmt.Errorf("replay log is required")
	}
	if auth == nil {
		return nil, fmt.Errorf("authenticator is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	g := &Gateway{
		registry: reg,
		replay:   log,
		auth:     auth,
		logger:   logger,
		sessions: make(map[string]*session),
	}

	// Timeout evictions and client disconnects both land here so the socket
	// is always torn down with its registry entry.
	reg.SetEvictHook(g.onEvict)

	return g, nil
}

func (g *Gateway) SetMetrics(metrics *observability.Metrics) {
	if g == nil {
		return
	}
	g.metrics = metrics
}

// Handler returns the websocket handshake endpoint.
func (g *Gateway) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", g.handleConnect)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	return mux
}

func (g *Gateway) handleConnect(w http.ResponseWriter, r *http.Request) {
	userID, err := g.auth.Authenticate(bearerToken(r))
	if err != nil {
		g.logger.Warn("websocket handshake rejected", zap.Error(err))
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	lastSeq, hasLastSeq, err := parseLastSeq(r.URL.Query().Get("lastSeq"))
	if err != nil {
		http.Error(w, "invalid lastSeq", http.StatusBadRequest)
		return
	}

	sock, err := websocket.Accept(w, r, nil)
	if err != nil {
		g.logger.Warn("websocket accept failed", zap.Error(err))
		return
	}

	conn, err := g.registry.Register(userID, r.URL.Query().Get("deviceId"))
	if err != nil {
		sock.Close(websocket.StatusInternalError, "registration failed")
		return
	}

	sess := &session{conn: sock}
	g.mu.Lock()
	g.sessions[conn.ID] = sess
	g.mu.Unlock()
	g.reportConnectionCount()

	g.logger.Info("connection established",
		zap.String("connId", conn.ID),
		zap.String("userId", userID),
		zap.Uint64("lastSeq", lastSeq),
	)

	ctx := r.Context()
	// Catch-up only runs for clients presenting a cursor. A fresh device has
	// no history to recover and must not be handed old frames or a resync.
	if hasLastSeq {
		if err := g.catchUp(ctx, sess, userID, lastSeq); err != nil {
			g.logger.Warn("replay catch-up failed",
				zap.String("connId", conn.ID),
				zap.Error(err),
			)
			g.teardown(conn.ID, websocket.StatusInternalError, "catch-up failed")
			return
		}
	}

	// The connection only becomes a delivery target after catch-up, so live
	// broadcasts cannot interleave with the replayed history.
	if err := g.registry.Activate(conn.ID); err != nil {
		g.teardown(conn.ID, websocket.StatusInternalError, "activation failed")
		return
	}

	g.readLoop(ctx, conn.ID, sock)
}

// catchUp replays everything the client missed. A gap means the log no longer
// holds the client's position; the client gets an explicit resync frame and
// must refetch state out of band before consuming live traffic.
func (g *Gateway) catchUp(ctx context.Context, sess *session, userID string, lastSeq uint64) error {
	entries, err := g.replay.Since(userID, lastSeq)
	if errors.Is(err, replay.ErrGap) {
		if g.metrics != nil {
			g.metrics.IncReplayGap()
		}
		return g.write(ctx, sess, ServerFrame{Type: FrameResync})
	}
	if err != nil {
		return err
	}

	for _, entry := range entries {
		frame := ServerFrame{
			Type:     FrameNotification,
			Seq:      entry.Seq,
			Payload:  entry.Payload,
			Replayed: true,
		}
		if err := g.write(ctx, sess, frame); err != nil {
			return err
		}
	}
	return nil
}

// readLoop consumes client frames until the socket dies. Both heartbeat and
// ack frames count as liveness.
func (g *Gateway) readLoop(ctx context.Context, connID string, sock *websocket.Conn) {
	defer g.teardown(connID, websocket.StatusNormalClosure, "")

	for {
		var frame ClientFrame
		if err := wsjson.Read(ctx, sock, &frame); err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure || ctx.Err() != nil {
				return
			}
			g.logger.Debug("websocket read ended",
				zap.String("connId", connID),
				zap.Error(err),
			)
			return
		}

		switch frame.Type {
		case FrameHeartbeat:
			_ = g.registry.RecordHeartbeat(connID, time.Now())
		case FrameAck:
			_ = g.registry.RecordHeartbeat(connID, time.Now())
			_ = g.registry.RecordAck(connID, frame.Seq)
		default:
			g.logger.Debug("unknown client frame",
				zap.String("connId", connID),
				zap.String("type", frame.Type),
			)
		}
	}
}

// Send implements the realtime adapter's delivery port.
func (g *Gateway) Send(ctx context.Context, connID string, seq uint64, payload string) error {
	sess := g.session(connID)
	if sess == nil {
		return domain.ErrNotFound
	}
	return g.write(ctx, sess, ServerFrame{
		Type:    FrameNotification,
		Seq:     seq,
		Payload: payload,
	})
}

// Probe implements the heartbeat monitor's liveness port. A failed probe is
// silence; the monitor handles the consequence.
func (g *Gateway) Probe(ctx context.Context, connID string) error {
	sess := g.session(connID)
	if sess == nil {
		return domain.ErrNotFound
	}
	return g.write(ctx, sess, ServerFrame{Type: FramePing})
}

// Close tears down every live socket, for process shutdown.
func (g *Gateway) Close() {
	g.mu.Lock()
	sessions := make(map[string]*session, len(g.sessions))
	for id, sess := range g.sessions {
		sessions[id] = sess
	}
	g.sessions = make(map[string]*session)
	g.mu.Unlock()

	for _, sess := range sessions {
		sess.conn.Close(websocket.StatusGoingAway, "shutting down")
	}
	g.reportConnectionCount()
}

func (g *Gateway) session(connID string) *session {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.sessions[connID]
}

func (g *Gateway) write(ctx context.Context, sess *session, frame ServerFrame) error {
	sess.writeMu.Lock()
	defer sess.writeMu.Unlock()

	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(writeCtx, sess.conn, frame)
}

// onEvict is invoked by the registry after a connection is removed, whether
// by the heartbeat monitor or a client disconnect.
func (g *Gateway) onEvict(conn registry.Connection) {
	g.mu.Lock()
	sess := g.sessions[conn.ID]
	delete(g.sessions, conn.ID)
	g.mu.Unlock()

	if sess != nil {
		sess.conn.Close(websocket.StatusGoingAway, "connection evicted")
	}
	g.reportConnectionCount()
}

// teardown handles socket-initiated shutdown: close the socket, then drop
// the registry entry if the evict hook has not already done so.
func (g *Gateway) teardown(connID string, status websocket.StatusCode, reason string) {
	g.mu.Lock()
	sess := g.sessions[connID]
	delete(g.sessions, connID)
	g.mu.Unlock()

	if sess != nil {
		sess.conn.Close(status, reason)
	}
	if err := g.registry.Unregister(connID); err != nil && !errors.Is(err, domain.ErrNotFound) {
		g.logger.Warn("failed to unregister connection",
			zap.String("connId", connID),
			zap.Error(err),
		)
	}
	g.reportConnectionCount()
}

func (g *Gateway) reportConnectionCount() {
	if g.metrics != nil {
		g.metrics.SetActiveConnections(g.registry.Len())
	}
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	// Browser websocket clients cannot set headers on the handshake.
	return r.URL.Query().Get("token")
}

// parseLastSeq distinguishes an absent cursor from a cursor at zero: a
// client that never received a frame legitimately reconnects with lastSeq=0.
func parseLastSeq(raw string) (uint64, bool, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return 0, false, nil
	}
	seq, err := strconv.ParseUint(trimmed, 10, 64)
	if err != nil {
		return 0, false, err
	}
	return seq, true, nil
}
