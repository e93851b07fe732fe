package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"jamlink/internal/core/domain"
	"jamlink/pkg/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	pluginDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(pluginDir, "reverb.vst3"), []byte("binary"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(pluginDir, "broken.dll"), nil, 0o644))

	cfg := config.DefaultConfig()
	cfg.Logging.Level = "debug"
	cfg.Session.LoopbackLatency = 10 * time.Millisecond
	cfg.Session.InputsPrepareDelay = 10 * time.Millisecond
	cfg.Plugins.Directories = []string{pluginDir}
	cfg.Backup.Enabled = true
	cfg.Backup.Directory = t.TempDir()
	cfg.Backup.Interval = time.Hour
	require.NoError(t, cfg.Validate())
	return cfg
}

func startApp(t *testing.T, cfg *config.Config) (*app, *httptest.Server) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())

	a, err := newApp(ctx, cfg, zaptest.NewLogger(t).Sugar(), prometheus.NewRegistry())
	require.NoError(t, err)
	require.NoError(t, a.start(ctx))

	srv := httptest.NewServer(a.router)
	t.Cleanup(func() {
		srv.Close()
		a.close(context.Background())
		cancel()
	})
	return a, srv
}

func call(t *testing.T, srv *httptest.Server, method, path string, body any) (int, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, srv.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out
}

func roomState(t *testing.T, srv *httptest.Server) map[string]any {
	t.Helper()
	code, body := call(t, srv, http.MethodGet, "/api/v1/status", nil)
	require.Equal(t, http.StatusOK, code)
	return body["status"].(map[string]any)
}

func TestApp_JoinRoomAndTransmit(t *testing.T) {
	a, srv := startApp(t, testConfig(t))

	code, body := call(t, srv, http.MethodGet, "/api/v1/groups", nil)
	require.Equal(t, http.StatusOK, code)
	groups := body["groups"].([]any)
	require.Len(t, groups, 1)
	group := groups[0].(map[string]any)
	assert.Equal(t, "my channel", group["name"])
	primary := int64(group["subchannels"].([]any)[0].(map[string]any)["id"].(float64))

	require.Eventually(t, func() bool {
		_, body := call(t, srv, http.MethodGet, "/api/v1/rooms", nil)
		rooms, _ := body["rooms"].([]any)
		return len(rooms) == 4
	}, 2*time.Second, 10*time.Millisecond)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()
	var hello map[string]any
	require.NoError(t, conn.ReadJSON(&hello))
	assert.Equal(t, "hello", hello["type"])

	code, _ = call(t, srv, http.MethodPost, "/api/v1/rooms/1/enter", nil)
	require.Equal(t, http.StatusAccepted, code)

	require.Eventually(t, func() bool {
		status := roomState(t, srv)
		return status["state"] == "in_room" && status["preparing"] == false
	}, 2*time.Second, 10*time.Millisecond)
	assert.EqualValues(t, 16, roomState(t, srv)["bpi"])

	sawRoomState := false
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for !sawRoomState {
		var msg map[string]any
		require.NoError(t, conn.ReadJSON(&msg))
		if event, ok := msg["event"].(map[string]any); ok && event["type"] == string(domain.EventRoomStateChanged) {
			sawRoomState = true
		}
	}

	code, _ = call(t, srv, http.MethodPut, "/api/v1/channels/"+jsonNumber(primary)+"/transmitting", map[string]bool{"transmitting": true})
	require.Equal(t, http.StatusNoContent, code)
	_, body = call(t, srv, http.MethodGet, "/api/v1/channels/"+jsonNumber(primary)+"/transmitting", nil)
	assert.Equal(t, true, body["transmitting"])

	require.Eventually(t, func() bool {
		_, ok := a.tracks.Track(domain.ChannelID(primary))
		return ok
	}, time.Second, 10*time.Millisecond)

	code, _ = call(t, srv, http.MethodPost, "/api/v1/rooms/exit", nil)
	assert.Less(t, code, 300)
	require.Eventually(t, func() bool {
		return roomState(t, srv)["state"] == "idle"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestApp_ScanAndBackup(t *testing.T) {
	_, srv := startApp(t, testConfig(t))

	code, _ := call(t, srv, http.MethodPost, "/api/v1/plugins/scan", nil)
	require.Equal(t, http.StatusAccepted, code)
	require.Eventually(t, func() bool {
		_, body := call(t, srv, http.MethodGet, "/api/v1/plugins", nil)
		plugins, _ := body["plugins"].([]any)
		return len(plugins) == 1
	}, 2*time.Second, 10*time.Millisecond)

	code, body := call(t, srv, http.MethodPost, "/api/v1/backups", nil)
	require.Equal(t, http.StatusCreated, code)
	name := body["backup"].(string)

	code, _ = call(t, srv, http.MethodPost, "/api/v1/groups", map[string]string{"name": "Keys"})
	require.Equal(t, http.StatusCreated, code)

	code, body = call(t, srv, http.MethodPost, "/api/v1/backups/"+name+"/restore", nil)
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 1, body["groups"])

	_, body = call(t, srv, http.MethodGet, "/api/v1/channels/names", nil)
	assert.Equal(t, []any{"my channel"}, body["names"])

	require.Eventually(t, func() bool {
		code, body := call(t, srv, http.MethodGet, "/stats", nil)
		if code != http.StatusOK {
			return false
		}
		session, _ := body["session"].(map[string]any)
		return session["scans"] == float64(1)
	}, 2*time.Second, 10*time.Millisecond)
}

func jsonNumber(v int64) string {
	b, _ := json.Marshal(v)
	return string(b)
}
