package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"jamlink/internal/core/domain"
	"jamlink/internal/core/ports"
	"jamlink/internal/core/services"
	"jamlink/internal/infrastructure/middleware"
)

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

func (m *MockControl) GroupCount() int {
	return m.Called().Int(0)
}

func (m *MockControl) Capabilities() domain.Capabilities {
	return m.Called().Get(0).(domain.Capabilities)
}

func (m *MockControl) AddGroup(ctx context.Context, name string) (domain.GroupHandle, error) {
	args := m.Called(ctx, name)
	return args.Get(0).(domain.GroupHandle), args.Error(1)
}

func (m *MockControl) RenameGroup(ctx context.Context, index int, name string) error {
	return m.Called(ctx, index, name).Error(0)
}

func (m *MockControl) AddSubchannel(ctx context.Context, index int, primaryIfEmpty bool) (domain.ChannelID, error) {
	args := m.Called(ctx, index, primaryIfEmpty)
	return args.Get(0).(domain.ChannelID), args.Error(1)
}

func (m *MockControl) SetInput(ctx context.Context, id domain.ChannelID, input domain.InputSelection) error {
	return m.Called(ctx, id, input).Error(0)
}

func (m *MockControl) SetTransmitting(ctx context.Context, id domain.ChannelID, transmitting bool) error {
	return m.Called(ctx, id, transmitting).Error(0)
}

func (m *MockControl) EnterRoom(ctx context.Context, id domain.RoomID, password string) error {
	return m.Called(ctx, id, password).Error(0)
}

func (m *MockControl) SetViewMode(ctx context.Context, mode domain.ViewMode) error {
	return m.Called(ctx, mode).Error(0)
}

func newRouter(control ports.ControlService, auth services.AuthService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(middleware.ErrorHandlerMiddleware(zap.NewNop().Sugar()))
	NewControlHandler(control, auth).SetupRoutes(router)
	if auth != nil {
		NewAuthHandler(auth).SetupRoutes(router)
	}
	return router
}

func do(router *gin.Engine, method, path string, body any, token string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestControlHandler_Groups(t *testing.T) {
	control := &MockControl{}
	router := newRouter(control, nil)

	control.On("Groups").Return([]domain.ChannelGroup{{ID: 1, Name: "Guitar"}})
	control.On("GroupCount").Return(1)
	w := do(router, http.MethodGet, "/api/v1/groups", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"Guitar"`)

	control.On("AddGroup", mock.Anything, "Guitar").Return(domain.GroupHandle{}, domain.ErrDuplicateName).Once()
	w = do(router, http.MethodPost, "/api/v1/groups", map[string]any{"name": "Guitar"}, "")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "DUPLICATE_NAME")

	control.On("RenameGroup", mock.Anything, 3, "Keys").Return(domain.ErrIndexOutOfRange).Once()
	w = do(router, http.MethodPatch, "/api/v1/groups/3", map[string]any{"name": "Keys"}, "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(router, http.MethodPatch, "/api/v1/groups/abc", map[string]any{"name": "Keys"}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	control.On("AddSubchannel", mock.Anything, 0, false).Return(domain.ChannelID(0), domain.ErrCapabilityDenied).Once()
	w = do(router, http.MethodPost, "/api/v1/groups/0/subchannels", nil, "")
	assert.Equal(t, http.StatusForbidden, w.Code)

	control.AssertExpectations(t)
}

func TestControlHandler_Channels(t *testing.T) {
	control := &MockControl{}
	router := newRouter(control, nil)

	control.On("SetInput", mock.Anything, domain.ChannelID(4),
		domain.InputSelection{Kind: domain.StereoInput, FirstChannel: 2}).Return(nil).Once()
	w := do(router, http.MethodPut, "/api/v1/channels/4/input", map[string]any{"kind": "stereo", "first_channel": 2}, "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	control.On("SetInput", mock.Anything, domain.ChannelID(4), domain.NoInputSelection()).Return(nil).Once()
	w = do(router, http.MethodPut, "/api/v1/channels/4/input", map[string]any{"kind": "none"}, "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = do(router, http.MethodPut, "/api/v1/channels/4/input", map[string]any{"kind": "theremin"}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(router, http.MethodPut, "/api/v1/channels/4/transmitting", map[string]any{}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code, "transmitting is required")

	control.On("SetTransmitting", mock.Anything, domain.ChannelID(4), false).Return(nil).Once()
	w = do(router, http.MethodPut, "/api/v1/channels/4/transmitting", map[string]any{"transmitting": false}, "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	control.AssertExpectations(t)
}

func TestControlHandler_RoomsAndView(t *testing.T) {
	control := &MockControl{}
	router := newRouter(control, nil)

	control.On("EnterRoom", mock.Anything, domain.RoomID(3), "secret").Return(nil).Once()
	control.On("Status").Return(domain.SessionStatus{State: domain.RoomAwaitingEntry})
	w := do(router, http.MethodPost, "/api/v1/rooms/3/enter", map[string]any{"password": "secret"}, "")
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Contains(t, w.Body.String(), "awaiting_entry")

	control.On("EnterRoom", mock.Anything, domain.RoomID(9), "").Return(domain.ErrRoomNotFound).Once()
	w = do(router, http.MethodPost, "/api/v1/rooms/9/enter", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	control.On("SetViewMode", mock.Anything, domain.ViewMini).Return(nil).Once()
	control.On("Capabilities").Return(domain.Capabilities{ViewMode: domain.ViewMini, SubchannelsSupported: true})
	w = do(router, http.MethodPut, "/api/v1/view", map[string]any{"mode": "mini"}, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"can_create_subchannels":false`)

	control.AssertExpectations(t)
}

func TestAuthHandler_PairRefreshAndRoles(t *testing.T) {
	auth := services.NewAuthService("test-secret", "4321", time.Hour, 24*time.Hour)
	control := &MockControl{}
	control.On("Status").Return(domain.SessionStatus{})
	router := newRouter(control, auth)

	w := do(router, http.MethodPost, "/api/v1/auth/pair", map[string]any{"name": "tablet", "pairing_code": "0000"}, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(router, http.MethodPost, "/api/v1/auth/pair",
		map[string]any{"name": "tablet", "pairing_code": "4321", "role": "observer"}, "")
	require.Equal(t, http.StatusCreated, w.Code)
	var pair services.TokenPair
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &pair))
	assert.Equal(t, domain.RoleObserver, pair.Client.Role)

	w = do(router, http.MethodGet, "/api/v1/status", nil, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(router, http.MethodGet, "/api/v1/status", nil, pair.AccessToken)
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(router, http.MethodPost, "/api/v1/rooms/exit", nil, pair.AccessToken)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = do(router, http.MethodPost, "/api/v1/auth/refresh", map[string]any{"refresh_token": pair.AccessToken}, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code, "access tokens cannot refresh")

	w = do(router, http.MethodPost, "/api/v1/auth/refresh", map[string]any{"refresh_token": pair.RefreshToken}, "")
	require.Equal(t, http.StatusOK, w.Code)
	var refreshed struct {
		AccessToken string `json:"access_token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &refreshed))

	w = do(router, http.MethodGet, "/api/v1/status", nil, refreshed.AccessToken)
	assert.Equal(t, http.StatusOK, w.Code)
}
