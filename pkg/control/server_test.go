package control

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sudorandom/latlng-cloud/pkg/metrics"
	"github.com/sudorandom/latlng-cloud/pkg/pointstore"
)

type mockController struct {
	mock.Mock
}

func (m *mockController) Search(ctx context.Context, query string) (Reply, error) {
	args := m.Called(ctx, query)
	return args.Get(0).(Reply), args.Error(1)
}

func (m *mockController) Resize(ctx context.Context, width, height float64) (Reply, error) {
	args := m.Called(ctx, width, height)
	return args.Get(0).(Reply), args.Error(1)
}

func newTestServer(ctrl Controller) (*Server, *prometheus.Registry) {
	gin.SetMode(gin.TestMode)
	reg := prometheus.NewRegistry()
	return NewServer(ctrl, WithMetrics(metrics.NewMetrics(reg)), WithGatherer(reg)), reg
}

func TestHealthz(t *testing.T) {
	s, _ := newTestServer(&mockController{})
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestSearch(t *testing.T) {
	place := pointstore.Place{Ministry: "Tokyo", City: "Chiyoda"}
	tests := []struct {
		name           string
		query          string
		reply          Reply
		err            error
		expectedStatus int
	}{
		{
			name:           "hit",
			query:          "131016",
			reply:          Reply{Type: "search", Found: true, Place: &place, Highlighted: 1},
			expectedStatus: http.StatusOK,
		},
		{
			name:           "miss",
			query:          "999",
			reply:          Reply{Type: "search"},
			expectedStatus: http.StatusOK,
		},
		{
			name:           "controller error",
			query:          "131",
			err:            errors.New("boom"),
			expectedStatus: http.StatusInternalServerError,
		},
		{
			name:           "loop gone",
			query:          "131",
			err:            context.Canceled,
			expectedStatus: http.StatusServiceUnavailable,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := &mockController{}
			ctrl.On("Search", mock.Anything, tt.query).Return(tt.reply, tt.err)
			s, _ := newTestServer(ctrl)

			w := httptest.NewRecorder()
			s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/search?q="+tt.query, nil))
			assert.Equal(t, tt.expectedStatus, w.Code)

			var got Reply
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
			if tt.err != nil {
				assert.Equal(t, tt.err.Error(), got.Error)
			} else {
				assert.Equal(t, tt.reply, got)
			}
			ctrl.AssertExpectations(t)
		})
	}
}

func TestResize(t *testing.T) {
	ctrl := &mockController{}
	ctrl.On("Resize", mock.Anything, 800.0, 600.0).Return(Reply{Type: "resize", Scale: 150, Width: 800, Height: 600}, nil)
	s, _ := newTestServer(ctrl)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/resize", strings.NewReader(`{"width":800,"height":600}`))
	req.Header.Set("Content-Type", "application/json")
	s.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"type":"resize","found":false,"highlighted":0,"scale":150,"width":800,"height":600}`, w.Body.String())
	ctrl.AssertExpectations(t)
}

func TestResizeRejectsBadInput(t *testing.T) {
	ctrl := &mockController{}
	s, _ := newTestServer(ctrl)

	for _, body := range []string{`{"width":0,"height":600}`, `{"width":-1,"height":-1}`, `not json`} {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/resize", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		s.Handler().ServeHTTP(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
	}
	ctrl.AssertNotCalled(t, "Resize", mock.Anything, mock.Anything, mock.Anything)
}

func TestMetricsEndpoint(t *testing.T) {
	ctrl := &mockController{}
	ctrl.On("Search", mock.Anything, "13").Return(Reply{Type: "search"}, nil)
	s, _ := newTestServer(ctrl)

	s.Handler().ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/search?q=13", nil))

	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `latlng_control_events_total{type="search"} 1`)
}

func TestWebsocket(t *testing.T) {
	ctrl := &mockController{}
	ctrl.On("Search", mock.Anything, "141").Return(Reply{Type: "search", Highlighted: 1}, nil)
	ctrl.On("Resize", mock.Anything, 1024.0, 768.0).Return(Reply{Type: "resize", Scale: 192}, nil)
	s, _ := newTestServer(ctrl)

	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	var reply Reply
	require.NoError(t, conn.WriteJSON(Message{Type: "search", Query: "141"}))
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Equal(t, Reply{Type: "search", Highlighted: 1}, reply)

	require.NoError(t, conn.WriteJSON(Message{Type: "resize", Width: 1024, Height: 768}))
	reply = Reply{}
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Equal(t, 192.0, reply.Scale)

	require.NoError(t, conn.WriteJSON(Message{Type: "resize", Width: 0, Height: 768}))
	reply = Reply{}
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Contains(t, reply.Error, "must be positive")

	require.NoError(t, conn.WriteJSON(Message{Type: "zoom"}))
	reply = Reply{}
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Equal(t, "unknown message type", reply.Error)

	ctrl.AssertExpectations(t)
}

func TestListenAndServeStopsOnCancel(t *testing.T) {
	s, _ := newTestServer(&mockController{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.ListenAndServe(ctx, "127.0.0.1:0") }()
	cancel()
	assert.NoError(t, <-done)
}
