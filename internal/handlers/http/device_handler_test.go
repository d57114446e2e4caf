package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"worldview/internal/core/domain"
	"worldview/internal/core/services"
	"worldview/internal/infrastructure/middleware"
	"worldview/internal/infrastructure/repositories"
	transport "worldview/internal/infrastructure/transport/memory"
	"worldview/pkg/config"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestRouter(t *testing.T) (*gin.Engine, *services.Studio) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := zaptest.NewLogger(t).Sugar()

	cfg := config.DefaultConfig()
	cfg.Storage.Backend = repositories.BackendMemory
	factory, err := repositories.NewRepositoryFactory(context.Background(), cfg, logger)
	require.NoError(t, err)
	t.Cleanup(func() { factory.Close() })

	hub := transport.NewHub(16, nil, logger)
	t.Cleanup(func() { hub.Close() })

	opts := services.DefaultDeviceOptions()
	opts.RetryDelays = []time.Duration{5 * time.Millisecond, 20 * time.Millisecond}
	opts.JoinTimeout = time.Second
	opts.Logger = logger
	studio := services.NewStudio(factory, hub, opts)
	t.Cleanup(func() { studio.Close() })

	router := gin.New()
	router.Use(middleware.ErrorHandlerMiddleware(logger))
	api := router.Group("/api/v1")
	NewDeviceHandler(studio, time.Second, logger).SetupRoutes(api)
	NewWatchHandler(studio, time.Second, logger).SetupRoutes(api)
	return router, studio
}

func doJSON(t *testing.T, router http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeView(t *testing.T, w *httptest.ResponseRecorder) DeviceView {
	t.Helper()
	var v DeviceView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	return v
}

func TestDeviceHandler_StartAndGet(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/api/v1/devices", gin.H{"profile": "alice", "platform": "ios"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	started := decodeView(t, w)
	assert.Equal(t, "alice", started.Profile)
	require.NotNil(t, started.Device)
	assert.True(t, strings.HasPrefix(started.Device.Name, "Mobile-"))
	assert.Nil(t, started.Session)
	assert.Equal(t, domain.JoinNone, started.JoinState)

	w = doJSON(t, router, http.MethodGet, "/api/v1/devices/alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, started.Device.ID, decodeView(t, w).Device.ID)

	w = doJSON(t, router, http.MethodGet, "/api/v1/devices", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"count":1`)
}

func TestDeviceHandler_Errors(t *testing.T) {
	router, _ := newTestRouter(t)
	doJSON(t, router, http.MethodPost, "/api/v1/devices", gin.H{"profile": "alice"})

	tests := []struct {
		name   string
		method string
		path   string
		body   interface{}
		status int
	}{
		{name: "missing profile", method: http.MethodPost, path: "/api/v1/devices", body: gin.H{}, status: http.StatusBadRequest},
		{name: "bad profile", method: http.MethodPost, path: "/api/v1/devices", body: gin.H{"profile": "a b"}, status: http.StatusBadRequest},
		{name: "unknown device", method: http.MethodGet, path: "/api/v1/devices/nobody", status: http.StatusNotFound},
		{name: "stop unknown", method: http.MethodDelete, path: "/api/v1/devices/nobody", status: http.StatusNotFound},
		{name: "bad session code", method: http.MethodPost, path: "/api/v1/devices/alice/join", body: gin.H{"session_id": "abc"}, status: http.StatusBadRequest},
		{name: "bad status", method: http.MethodPut, path: "/api/v1/devices/alice/members/x/status", body: gin.H{"status": "Sleeping"}, status: http.StatusBadRequest},
		{name: "negative duration", method: http.MethodPost, path: "/api/v1/devices/alice/recordings", body: gin.H{"duration": -1}, status: http.StatusBadRequest},
		{name: "bad thumbnail", method: http.MethodPost, path: "/api/v1/devices/alice/recordings", body: gin.H{"thumbnail_url": "ftp://x"}, status: http.StatusBadRequest},
		{name: "bad role", method: http.MethodPost, path: "/api/v1/devices/alice/members", body: gin.H{"id": "cam", "name": "Cam", "role": "Producer"}, status: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(t, router, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
		})
	}
}

func TestDeviceHandler_SessionLifecycle(t *testing.T) {
	router, _ := newTestRouter(t)
	doJSON(t, router, http.MethodPost, "/api/v1/devices", gin.H{"profile": "director"})
	doJSON(t, router, http.MethodPost, "/api/v1/devices", gin.H{"profile": "camera"})

	w := doJSON(t, router, http.MethodPost, "/api/v1/devices/director/session", nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created struct {
		SessionID domain.SessionID `json:"session_id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	require.Len(t, created.SessionID, 6)

	w = doJSON(t, router, http.MethodPost, "/api/v1/devices/camera/join",
		gin.H{"session_id": strings.ToLower(string(created.SessionID))})
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	assert.Equal(t, domain.RoleCamera, decodeView(t, w).Device.Role)

	require.Eventually(t, func() bool {
		v := decodeView(t, doJSON(t, router, http.MethodGet, "/api/v1/devices/camera", nil))
		return v.JoinState == domain.JoinJoined && v.Session != nil && len(v.Session.Devices) == 2
	}, 2*time.Second, 10*time.Millisecond)

	w = doJSON(t, router, http.MethodPost, "/api/v1/devices/director/recording/start", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, domain.SessionActive, decodeView(t, w).Session.Status)

	require.Eventually(t, func() bool {
		v := decodeView(t, doJSON(t, router, http.MethodGet, "/api/v1/devices/camera", nil))
		return v.Session.Status == domain.SessionActive
	}, 2*time.Second, 10*time.Millisecond)

	w = doJSON(t, router, http.MethodPost, "/api/v1/devices/director/recordings",
		gin.H{"duration": 12.5, "thumbnail_url": "blob:abc"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"thumbnailUrl":"blob:abc"`)

	w = doJSON(t, router, http.MethodPost, "/api/v1/devices/director/recording/stop", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, domain.SessionIdle, decodeView(t, w).Session.Status)

	w = doJSON(t, router, http.MethodPost, "/api/v1/devices/camera/sync", nil)
	assert.Equal(t, http.StatusAccepted, w.Code)

	w = doJSON(t, router, http.MethodDelete, "/api/v1/devices/camera", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestDeviceHandler_Members(t *testing.T) {
	router, _ := newTestRouter(t)
	doJSON(t, router, http.MethodPost, "/api/v1/devices", gin.H{"profile": "director"})
	doJSON(t, router, http.MethodPost, "/api/v1/devices/director/session", nil)

	w := doJSON(t, router, http.MethodPost, "/api/v1/devices/director/members",
		gin.H{"id": "cam-7", "name": "Side angle", "battery": 40})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	session := decodeView(t, w).Session
	require.Len(t, session.Devices, 2)
	member := session.Devices[1]
	assert.Equal(t, domain.DeviceID("cam-7"), member.ID)
	assert.Equal(t, domain.RoleCamera, member.Role)
	assert.Equal(t, 40, member.Battery)

	w = doJSON(t, router, http.MethodPut, "/api/v1/devices/director/members/cam-7/status", gin.H{"status": "Uploading"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	updated, ok := decodeView(t, w).Session.Device("cam-7")
	require.True(t, ok)
	assert.Equal(t, domain.DeviceUploading, updated.Status)
}

func TestDeviceHandler_ClosedStudio(t *testing.T) {
	router, studio := newTestRouter(t)
	require.NoError(t, studio.Close())

	w := doJSON(t, router, http.MethodPost, "/api/v1/devices", gin.H{"profile": "alice"})
	assert.Equal(t, http.StatusGone, w.Code)
}

func TestWatchHandler_StreamsSnapshots(t *testing.T) {
	router, _ := newTestRouter(t)
	doJSON(t, router, http.MethodPost, "/api/v1/devices", gin.H{"profile": "director"})
	doJSON(t, router, http.MethodPost, "/api/v1/devices/director/session", nil)

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/v1/devices/director/watch"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var first domain.Session
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, domain.SessionIdle, first.Status)

	doJSON(t, router, http.MethodPost, "/api/v1/devices/director/recording/start", nil)

	var next domain.Session
	require.NoError(t, conn.ReadJSON(&next))
	assert.Equal(t, domain.SessionActive, next.Status)
	assert.Equal(t, first.ID, next.ID)
}

func TestWatchHandler_UnknownDevice(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(t, router, http.MethodGet, "/api/v1/devices/nobody/watch", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestWatchHandler_ClosesWhenDeviceStops(t *testing.T) {
	router, studio := newTestRouter(t)
	doJSON(t, router, http.MethodPost, "/api/v1/devices", gin.H{"profile": "alice"})
	doJSON(t, router, http.MethodPost, "/api/v1/devices/alice/session", nil)

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/v1/devices/alice/watch"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var snapshot domain.Session
	require.NoError(t, conn.ReadJSON(&snapshot))

	require.NoError(t, studio.Stop("alice"))
	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "unexpected error: %v", err)
}
