package httpserver

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

type pingRoutes struct{}

func (pingRoutes) RegisterRoutes(r chi.Router) {
	r.Get("/ping", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("pong"))
	})
}

func newTestServer(t *testing.T) *BaseServer {
	t.Helper()
	srv, err := New(&HTTPServerConfig{
		ListenAddr:               "127.0.0.1:0",
		Log:                      slog.New(slog.NewTextHandler(io.Discard, nil)),
		GracefulShutdownDuration: time.Second,
	}, pingRoutes{})
	require.NoError(t, err)
	return srv
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestHealthEndpoints(t *testing.T) {
	h := newTestServer(t).Handler()

	require.Equal(t, http.StatusOK, get(t, h, "/livez").Code)
	require.Equal(t, http.StatusOK, get(t, h, "/readyz").Code)
	require.Equal(t, "pong", get(t, h, "/ping").Body.String())

	require.Contains(t, get(t, h, "/drain").Body.String(), `"draining"`)
	require.Contains(t, get(t, h, "/drain").Body.String(), "already draining")
	require.Equal(t, http.StatusServiceUnavailable, get(t, h, "/readyz").Code)

	require.Contains(t, get(t, h, "/undrain").Body.String(), `"ready"`)
	require.Equal(t, http.StatusOK, get(t, h, "/readyz").Code)
}

func TestRunInBackground(t *testing.T) {
	srv := newTestServer(t)
	require.NoError(t, srv.RunInBackground())
	defer srv.Shutdown()

	resp, err := http.Get("http://" + srv.Addr() + "/livez")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestNewRequiresLogger(t *testing.T) {
	_, err := New(&HTTPServerConfig{ListenAddr: "127.0.0.1:0"})
	require.Error(t, err)
}
