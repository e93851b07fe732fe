package signal

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"jamlink/internal/core/domain"
	"jamlink/internal/core/ports"
	"jamlink/internal/core/services"
	"jamlink/internal/infrastructure/events"
)

// MockControl implements the calls exercised here; anything else panics
// through the nil embedded interface.
type MockControl struct {
	ports.ControlService
	mock.Mock
}

func (m *MockControl) Status() domain.SessionStatus {
	return m.Called().Get(0).(domain.SessionStatus)
}

func (m *MockControl) Groups() []domain.ChannelGroup {
	return m.Called().Get(0).([]domain.ChannelGroup)
}

func (m *MockControl) AddGroup(ctx context.Context, name string) (domain.GroupHandle, error) {
	args := m.Called(ctx, name)
	return args.Get(0).(domain.GroupHandle), args.Error(1)
}

func (m *MockControl) RemoveGroup(ctx context.Context, index int) error {
	return m.Called(ctx, index).Error(0)
}

func (m *MockControl) SetTransmitting(ctx context.Context, id domain.ChannelID, transmitting bool) error {
	return m.Called(ctx, id, transmitting).Error(0)
}

type harness struct {
	control *MockControl
	hub     *events.Hub
	server  *WebSocketServer
	http    *httptest.Server
}

func newHarness(t *testing.T, auth services.AuthService, opts Options) *harness {
	t.Helper()
	control := &MockControl{}
	control.On("Status").Return(domain.SessionStatus{State: domain.RoomIdle}).Maybe()
	control.On("Groups").Return([]domain.ChannelGroup{{ID: 1, Name: "Guitar"}}).Maybe()

	hub := events.NewHub(16, nil)
	server := NewWebSocketServer(control, hub, auth, opts, zaptest.NewLogger(t).Sugar())
	ts := httptest.NewServer(http.HandlerFunc(server.HandleWebSocket))
	t.Cleanup(func() {
		ts.Close()
		hub.Close()
	})
	return &harness{control: control, hub: hub, server: server, http: ts}
}

func (h *harness) dial(t *testing.T, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(h.http.URL, "http")
	if token != "" {
		url += "?token=" + token
	}
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	hello := readMessage(t, conn)
	require.Equal(t, "hello", hello.Type)
	return conn
}

type received struct {
	Type   string          `json:"type"`
	ID     string          `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *ErrorBody      `json:"error"`
	Event  *domain.Event   `json:"event"`
	Hello  *HelloPayload   `json:"hello"`
}

func readMessage(t *testing.T, conn *websocket.Conn) received {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg received
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func send(t *testing.T, conn *websocket.Conn, id, typ string, payload any) {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(Command{ID: id, Type: typ, Payload: raw}))
}

func TestWebSocketServer_Commands(t *testing.T) {
	h := newHarness(t, nil, Options{})
	h.control.On("AddGroup", mock.Anything, "Bass").
		Return(domain.GroupHandle{ID: 2, Index: 1, PrimaryID: 7}, nil).Once()
	h.control.On("RemoveGroup", mock.Anything, 5).
		Return(domain.ErrIndexOutOfRange).Once()

	conn := h.dial(t, "")

	send(t, conn, "1", "add_group", map[string]any{"name": "Bass"})
	reply := readMessage(t, conn)
	assert.Equal(t, "result", reply.Type)
	assert.Equal(t, "1", reply.ID)
	var handle domain.GroupHandle
	require.NoError(t, json.Unmarshal(reply.Result, &handle))
	assert.Equal(t, domain.ChannelID(7), handle.PrimaryID)

	send(t, conn, "2", "remove_group", map[string]any{"index": 5})
	reply = readMessage(t, conn)
	assert.Equal(t, "error", reply.Type)
	require.NotNil(t, reply.Error)
	assert.Equal(t, "INDEX_OUT_OF_RANGE", string(reply.Error.Code))

	send(t, conn, "3", "dance", nil)
	reply = readMessage(t, conn)
	assert.Equal(t, "INVALID_INPUT", string(reply.Error.Code))

	send(t, conn, "4", "status", nil)
	reply = readMessage(t, conn)
	assert.Equal(t, "result", reply.Type)
	assert.Contains(t, string(reply.Result), `"state":"idle"`)

	h.control.AssertExpectations(t)
}

func TestWebSocketServer_PushesEvents(t *testing.T) {
	h := newHarness(t, nil, Options{})
	conn := h.dial(t, "")
	require.Eventually(t, func() bool { return h.hub.SubscriberCount() == 1 }, time.Second, 5*time.Millisecond)

	event := domain.NewEvent(domain.EventTransmitChanged, map[string]any{"transmitting": true})
	event.ChannelID = 3
	require.NoError(t, h.hub.Publish(context.Background(), event))

	msg := readMessage(t, conn)
	assert.Equal(t, "event", msg.Type)
	require.NotNil(t, msg.Event)
	assert.Equal(t, domain.EventTransmitChanged, msg.Event.Type)
	assert.Equal(t, domain.ChannelID(3), msg.Event.ChannelID)

	conn.Close()
	assert.Eventually(t, func() bool { return h.server.ConnectionCount() == 0 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, h.hub.SubscriberCount())
}

func TestWebSocketServer_Auth(t *testing.T) {
	auth := services.NewAuthService("test-secret", "1234", time.Hour, 24*time.Hour)
	h := newHarness(t, auth, Options{})

	url := "ws" + strings.TrimPrefix(h.http.URL, "http")
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	observer, err := auth.Pair("tablet", "1234", domain.RoleObserver)
	require.NoError(t, err)
	conn := h.dial(t, observer.AccessToken)

	send(t, conn, "1", "transmit", map[string]any{"channel_id": 1, "transmitting": true})
	reply := readMessage(t, conn)
	assert.Equal(t, "error", reply.Type)
	assert.Equal(t, "UNAUTHORIZED", string(reply.Error.Code))

	send(t, conn, "2", "groups", nil)
	reply = readMessage(t, conn)
	assert.Equal(t, "result", reply.Type)

	controller, err := auth.Pair("desk", "1234", domain.RoleController)
	require.NoError(t, err)
	h.control.On("SetTransmitting", mock.Anything, domain.ChannelID(1), true).Return(nil).Once()
	conn = h.dial(t, controller.AccessToken)
	send(t, conn, "3", "transmit", map[string]any{"channel_id": 1, "transmitting": true})
	reply = readMessage(t, conn)
	assert.Equal(t, "result", reply.Type)
	h.control.AssertExpectations(t)
}

func TestWebSocketServer_RateLimit(t *testing.T) {
	h := newHarness(t, nil, Options{CommandsPerSecond: 0.001, CommandBurst: 1})
	conn := h.dial(t, "")

	send(t, conn, "1", "status", nil)
	assert.Equal(t, "result", readMessage(t, conn).Type)

	send(t, conn, "2", "status", nil)
	reply := readMessage(t, conn)
	assert.Equal(t, "error", reply.Type)
	assert.Equal(t, "RATE_LIMIT_EXCEEDED", string(reply.Error.Code))
}
