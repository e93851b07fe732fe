package signal

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"jamlink/internal/core/domain"
	"jamlink/internal/core/ports"
	"jamlink/internal/core/services"
	"jamlink/internal/infrastructure/events"
	"jamlink/internal/infrastructure/middleware"
	"jamlink/pkg/config"
	apperrors "jamlink/pkg/errors"
	"jamlink/pkg/tracing"
)

type Options struct {
	PingInterval      time.Duration
	PongTimeout       time.Duration
	WriteTimeout      time.Duration
	SendBuffer        int
	MaxMessageBytes   int64
	AllowedOrigins    []string
	CommandsPerSecond float64
	CommandBurst      int
}

func OptionsFromConfig(cfg *config.Config) Options {
	opts := Options{
		PingInterval:    cfg.WebSocket.PingInterval,
		PongTimeout:     cfg.WebSocket.PongTimeout,
		WriteTimeout:    cfg.WebSocket.WriteTimeout,
		SendBuffer:      cfg.WebSocket.SendBuffer,
		MaxMessageBytes: cfg.WebSocket.MaxMessageBytes,
		AllowedOrigins:  cfg.WebSocket.AllowedOrigins,
	}
	if cfg.RateLimiting.Enabled {
		opts.CommandsPerSecond = cfg.RateLimiting.CommandsPerSecond
		opts.CommandBurst = cfg.RateLimiting.Burst
	}
	return opts
}

// Message is everything the server sends: command replies, pushed events and
// the greeting sent right after the upgrade.
type Message struct {
	Type   string         `json:"type"`
	ID     string         `json:"id,omitempty"`
	Result any            `json:"result,omitempty"`
	Error  *ErrorBody     `json:"error,omitempty"`
	Event  *domain.Event  `json:"event,omitempty"`
	Hello  *HelloPayload  `json:"hello,omitempty"`
	Extra  map[string]any `json:"extra,omitempty"`
}

type ErrorBody struct {
	Code    apperrors.ErrorCode `json:"code"`
	Message string              `json:"message"`
}

type HelloPayload struct {
	ConnectionID string                `json:"connection_id"`
	Role         domain.ClientRole     `json:"role"`
	Status       domain.SessionStatus  `json:"status"`
	Groups       []domain.ChannelGroup `json:"groups"`
}

// WebSocketServer bridges presentation clients to the control service: it
// pushes every published event and executes commands.
type WebSocketServer struct {
	control ports.ControlService
	hub     *events.Hub
	auth    services.AuthService
	opts    Options

	upgrader websocket.Upgrader

	mu          sync.RWMutex
	connections map[string]*connection

	logger *zap.SugaredLogger
}

type connection struct {
	id      string
	client  domain.ClientID
	role    domain.ClientRole
	ws      *websocket.Conn
	send    chan Message
	done    chan struct{}
	gone    chan struct{}
	limiter *rate.Limiter
}

// NewWebSocketServer builds the bridge. A nil auth service admits every
// client as a controller.
func NewWebSocketServer(control ports.ControlService, hub *events.Hub, auth services.AuthService, opts Options, logger *zap.SugaredLogger) *WebSocketServer {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 64
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = 30 * time.Second
	}
	if opts.PongTimeout <= opts.PingInterval {
		opts.PongTimeout = 2 * opts.PingInterval
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 10 * time.Second
	}

	s := &WebSocketServer{
		control:     control,
		hub:         hub,
		auth:        auth,
		opts:        opts,
		connections: make(map[string]*connection),
		logger:      logger,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

func (s *WebSocketServer) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(s.opts.AllowedOrigins) == 0 {
		return true
	}
	for _, allowed := range s.opts.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

func (s *WebSocketServer) authenticate(r *http.Request) (domain.ClientID, domain.ClientRole, error) {
	if s.auth == nil {
		return "local", domain.RoleController, nil
	}
	token := middleware.BearerToken(r)
	if token == "" {
		return "", "", services.ErrUnauthorized
	}
	claims, err := s.auth.ValidateToken(token)
	if err != nil {
		return "", "", err
	}
	return claims.ClientID, claims.Role, nil
}

// HandleWebSocket upgrades the request and serves one client until it
// disconnects.
func (s *WebSocketServer) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	clientID, role, err := s.authenticate(r)
	if err != nil {
		s.logger.Infow("websocket authentication failed", "remote", r.RemoteAddr, "error", err)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Errorw("websocket upgrade failed", "error", err)
		return
	}

	conn := &connection{
		id:     uuid.NewString(),
		client: clientID,
		role:   role,
		ws:     ws,
		send:   make(chan Message, s.opts.SendBuffer),
		done:   make(chan struct{}),
		gone:   make(chan struct{}),
	}
	if s.opts.CommandsPerSecond > 0 {
		burst := s.opts.CommandBurst
		if burst <= 0 {
			burst = 1
		}
		conn.limiter = rate.NewLimiter(rate.Limit(s.opts.CommandsPerSecond), burst)
	}

	s.mu.Lock()
	s.connections[conn.id] = conn
	s.mu.Unlock()

	sub := s.hub.Subscribe()
	s.logger.Infow("client connected via WebSocket", "connection_id", conn.id, "client_id", clientID, "role", role)

	conn.send <- Message{Type: "hello", Hello: &HelloPayload{
		ConnectionID: conn.id,
		Role:         role,
		Status:       s.control.Status(),
		Groups:       s.control.Groups(),
	}}

	go func() {
		defer close(conn.gone)
		s.writeLoop(conn, sub)
	}()

	s.readLoop(conn)

	close(conn.done)
	s.hub.Unsubscribe(sub.ID)
	<-conn.gone
	_ = ws.Close()

	s.mu.Lock()
	delete(s.connections, conn.id)
	s.mu.Unlock()
	s.logger.Infow("client disconnected", "connection_id", conn.id, "client_id", clientID)
}

func (s *WebSocketServer) readLoop(conn *connection) {
	ws := conn.ws
	if s.opts.MaxMessageBytes > 0 {
		ws.SetReadLimit(s.opts.MaxMessageBytes)
	}
	_ = ws.SetReadDeadline(time.Now().Add(s.opts.PongTimeout))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(s.opts.PongTimeout))
	})

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Infow("error reading from client", "connection_id", conn.id, "error", err)
			}
			return
		}
		_ = ws.SetReadDeadline(time.Now().Add(s.opts.PongTimeout))

		var cmd Command
		if err := json.Unmarshal(data, &cmd); err != nil {
			s.reply(conn, errorMessage("", apperrors.NewInvalidInputError("malformed command")))
			continue
		}
		s.reply(conn, s.execute(context.Background(), conn, cmd))
	}
}

func (s *WebSocketServer) execute(ctx context.Context, conn *connection, cmd Command) Message {
	if conn.limiter != nil && !conn.limiter.Allow() {
		return errorMessage(cmd.ID, apperrors.NewRateLimitError())
	}

	handler, ok := commands[cmd.Type]
	if !ok {
		return errorMessage(cmd.ID, apperrors.NewInvalidInputError("unknown command type: "+cmd.Type))
	}
	if !conn.role.Allows(handler.role) {
		return errorMessage(cmd.ID, apperrors.NewAppError(apperrors.ErrCodeUnauthorized, "insufficient permissions", http.StatusForbidden))
	}

	ctx, span := tracing.TraceWebSocketCommand(ctx, cmd.Type, string(conn.client))
	defer span.End()

	result, err := handler.run(ctx, s.control, cmd.Payload)
	if err != nil {
		appErr := apperrors.FromDomain(err)
		if appErr.HTTPStatus >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, err.Error())
			s.logger.Errorw("command failed", "connection_id", conn.id, "command", cmd.Type, "error", err)
		} else {
			s.logger.Infow("command rejected", "connection_id", conn.id, "command", cmd.Type, "error", err)
		}
		return errorMessage(cmd.ID, appErr)
	}
	return Message{Type: "result", ID: cmd.ID, Result: result}
}

func errorMessage(id string, appErr *apperrors.AppError) Message {
	msg := Message{Type: "error", ID: id, Error: &ErrorBody{Code: appErr.Code, Message: appErr.Message}}
	if len(appErr.Context) > 0 {
		msg.Extra = appErr.Context
	}
	return msg
}

// reply queues a command reply; it waits for buffer space rather than
// dropping, since the client is waiting for it.
func (s *WebSocketServer) reply(conn *connection, msg Message) {
	select {
	case conn.send <- msg:
	case <-conn.done:
	case <-conn.gone:
	}
}

func (s *WebSocketServer) writeLoop(conn *connection, sub *events.Subscription) {
	ping := time.NewTicker(s.opts.PingInterval)
	defer ping.Stop()

	for {
		var msg Message
		select {
		case <-conn.done:
			s.drain(conn)
			return
		case msg = <-conn.send:
		case event, ok := <-sub.C:
			if !ok {
				return
			}
			msg = Message{Type: "event", Event: event}
		case <-ping.C:
			_ = conn.ws.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout))
			if err := conn.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.logger.Infow("error sending ping", "connection_id", conn.id, "error", err)
				_ = conn.ws.Close()
				return
			}
			continue
		}

		if err := s.write(conn, msg); err != nil {
			s.logger.Infow("error writing to client", "connection_id", conn.id, "error", err)
			_ = conn.ws.Close()
			return
		}
	}
}

// drain flushes replies queued before the reader stopped.
func (s *WebSocketServer) drain(conn *connection) {
	for {
		select {
		case msg := <-conn.send:
			if err := s.write(conn, msg); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (s *WebSocketServer) write(conn *connection, msg Message) error {
	_ = conn.ws.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout))
	return conn.ws.WriteJSON(msg)
}

func (s *WebSocketServer) ConnectionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.connections)
}

// Shutdown closes every client connection.
func (s *WebSocketServer) Shutdown() {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, conn := range s.connections {
		_ = conn.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(time.Second))
		_ = conn.ws.Close()
	}
}
