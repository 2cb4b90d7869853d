// Package ws exposes the subscription service over websocket sessions.
// Each session owns a single writer goroutine so updates for a session
// are delivered in the order they were produced.
package ws

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/ssmtariq/telemetry-core/internal/subscription"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendQueueSize  = 256
)

// CommandHandler processes decoded subscription commands. Implemented by
// subscription.Service; an interface here so tests can substitute a fake.
type CommandHandler interface {
	HandleEntityDataCmd(ctx context.Context, sessionID string, cmd subscription.EntityDataCmd)
	HandleEntityCountCmd(ctx context.Context, sessionID string, cmd subscription.EntityCountCmd)
	HandleAlarmDataCmd(ctx context.Context, sessionID string, cmd subscription.AlarmDataCmd)
	HandleUnsubscribeCmd(sessionID string, cmd subscription.UnsubscribeCmd)
	CancelSessionSubscriptions(sessionID string)
}

// Config holds websocket transport tunables.
type Config struct {
	CommandsPerSecond float64
	CommandBurst      int
	AllowedOrigins    []string
}

// Server upgrades HTTP requests to websocket sessions and routes inbound
// command envelopes to the handler. It implements
// subscription.MessageChannel for the outbound direction.
type Server struct {
	cfg      Config
	upgrader websocket.Upgrader
	handler  CommandHandler
	log      *logrus.Logger

	mu       sync.RWMutex
	sessions map[string]*session
}

type session struct {
	id      string
	conn    *websocket.Conn
	out     chan any
	done    chan struct{}
	limiter *rate.Limiter
	once    sync.Once
}

// NewServer creates a websocket server. The command handler is attached
// later via SetHandler because the subscription service needs the server
// as its message channel first.
func NewServer(cfg Config, log *logrus.Logger) *Server {
	s := &Server{
		cfg:      cfg,
		log:      log,
		sessions: make(map[string]*session),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

// SetHandler attaches the command handler. Must be called before the
// server accepts connections.
func (s *Server) SetHandler(h CommandHandler) {
	s.handler = h
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	// No Origin header means same-origin.
	if origin == "" {
		return true
	}
	if len(s.cfg.AllowedOrigins) == 0 {
		s.log.WithField("origin", origin).Warn("Rejected websocket connection: no allowed origins configured")
		return false
	}
	for _, allowed := range s.cfg.AllowedOrigins {
		if origin == allowed || allowed == "*" {
			return true
		}
	}
	s.log.WithField("origin", origin).Warn("Rejected websocket connection: origin not in allowlist")
	return false
}

// ServeHTTP handles one websocket connection for its full lifetime.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.WithError(err).Error("Failed to upgrade connection")
		return
	}

	sess := &session{
		id:      uuid.New().String(),
		conn:    conn,
		out:     make(chan any, sendQueueSize),
		done:    make(chan struct{}),
		limiter: rate.NewLimiter(rate.Limit(s.cfg.CommandsPerSecond), s.cfg.CommandBurst),
	}
	s.mu.Lock()
	s.sessions[sess.id] = sess
	s.mu.Unlock()

	s.log.WithField("session", sess.id).Info("Websocket session opened")

	go s.writeLoop(sess)
	s.readLoop(sess)
}

// Send queues one outbound message for a session. A full queue means the
// client cannot keep up; the session is closed rather than blocking the
// producer.
func (s *Server) Send(sessionID string, msg any) error {
	s.mu.RLock()
	sess, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if !ok {
		return ErrSessionClosed
	}
	select {
	case <-sess.done:
		return ErrSessionClosed
	case sess.out <- msg:
		return nil
	default:
		s.log.WithField("session", sessionID).Warn("Outbound queue full, closing slow session")
		s.closeSession(sess, "TOO_SLOW")
		return ErrSessionClosed
	}
}

// Close terminates a session with a close reason visible to the client.
func (s *Server) Close(sessionID string, reason string) {
	s.mu.RLock()
	sess, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if !ok {
		return
	}
	s.closeSession(sess, reason)
}

func (s *Server) closeSession(sess *session, reason string) {
	sess.once.Do(func() {
		s.mu.Lock()
		delete(s.sessions, sess.id)
		s.mu.Unlock()

		if reason != "" {
			deadline := time.Now().Add(writeWait)
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
			_ = sess.conn.WriteControl(websocket.CloseMessage, msg, deadline)
		}
		_ = sess.conn.Close()
		close(sess.done)

		s.handler.CancelSessionSubscriptions(sess.id)
		s.log.WithField("session", sess.id).Info("Websocket session closed")
	})
}

func (s *Server) readLoop(sess *session) {
	defer s.closeSession(sess, "")

	sess.conn.SetReadLimit(maxMessageSize)
	_ = sess.conn.SetReadDeadline(time.Now().Add(pongWait))
	sess.conn.SetPongHandler(func(string) error {
		return sess.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var envelope subscription.CommandEnvelope
		if err := sess.conn.ReadJSON(&envelope); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.WithError(err).WithField("session", sess.id).Warn("Websocket read error")
			}
			return
		}
		if !sess.limiter.Allow() {
			s.log.WithField("session", sess.id).Warn("Command rate limit exceeded, dropping frame")
			continue
		}
		s.dispatch(sess.id, envelope)
	}
}

// dispatch runs the envelope's commands in order on the reader goroutine,
// so commands from one session never race each other.
func (s *Server) dispatch(sessionID string, envelope subscription.CommandEnvelope) {
	ctx := context.Background()
	for _, cmd := range envelope.EntityDataCmds {
		s.handler.HandleEntityDataCmd(ctx, sessionID, cmd)
	}
	for _, cmd := range envelope.EntityCountCmds {
		s.handler.HandleEntityCountCmd(ctx, sessionID, cmd)
	}
	for _, cmd := range envelope.AlarmDataCmds {
		s.handler.HandleAlarmDataCmd(ctx, sessionID, cmd)
	}
	for _, cmd := range envelope.UnsubscribeCmds {
		s.handler.HandleUnsubscribeCmd(sessionID, cmd)
	}
}

func (s *Server) writeLoop(sess *session) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-sess.done:
			return
		case msg := <-sess.out:
			_ = sess.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := sess.conn.WriteJSON(msg); err != nil {
				s.log.WithError(err).WithField("session", sess.id).Warn("Websocket write error")
				s.closeSession(sess, "")
				return
			}
		case <-ticker.C:
			_ = sess.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := sess.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.closeSession(sess, "")
				return
			}
		}
	}
}

// SessionCount reports the number of live sessions.
func (s *Server) SessionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
