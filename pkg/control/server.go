// Package control exposes search and resize over HTTP and a websocket so the
// viewer can be driven remotely.
package control

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/sudorandom/latlng-cloud/pkg/metrics"
	"github.com/sudorandom/latlng-cloud/pkg/pointstore"
)

// Reply is the answer to one control message.
type Reply struct {
	Type        string            `json:"type"`
	Found       bool              `json:"found"`
	Place       *pointstore.Place `json:"place,omitempty"`
	Highlighted int               `json:"highlighted"`
	Scale       float64           `json:"scale,omitempty"`
	Width       float64           `json:"width,omitempty"`
	Height      float64           `json:"height,omitempty"`
	Error       string            `json:"error,omitempty"`
}

// Message is a websocket request.
type Message struct {
	Type   string  `json:"type"`
	Query  string  `json:"query,omitempty"`
	Width  float64 `json:"width,omitempty"`
	Height float64 `json:"height,omitempty"`
}

// Controller performs the requested action on the running view.
type Controller interface {
	Search(ctx context.Context, query string) (Reply, error)
	Resize(ctx context.Context, width, height float64) (Reply, error)
}

type Option func(*Server)

func WithLogger(l zerolog.Logger) Option {
	return func(s *Server) { s.log = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithGatherer serves g on /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = g }
}

type Server struct {
	ctrl     Controller
	router   *gin.Engine
	upgrader websocket.Upgrader
	gatherer prometheus.Gatherer
	log      zerolog.Logger
	metrics  *metrics.Metrics
}

func NewServer(ctrl Controller, opts ...Option) *Server {
	s := &Server{
		ctrl:     ctrl,
		gatherer: prometheus.DefaultGatherer,
		log:      zerolog.Nop(),
		metrics:  metrics.Discard(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
	for _, opt := range opts {
		opt(s)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	r.GET("/search", s.handleSearch)
	r.POST("/resize", s.handleResize)
	r.GET("/ws", s.handleWebsocket)
	s.router = r
	return s
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.router }

// ListenAndServe serves on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", addr).Msg("control server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (s *Server) handleSearch(c *gin.Context) {
	s.metrics.ControlEvents.WithLabelValues("search").Inc()
	reply, err := s.ctrl.Search(c.Request.Context(), c.Query("q"))
	if err != nil {
		s.fail(c, "search", err)
		return
	}
	c.JSON(http.StatusOK, reply)
}

func (s *Server) handleResize(c *gin.Context) {
	s.metrics.ControlEvents.WithLabelValues("resize").Inc()
	var msg Message
	if err := c.ShouldBindJSON(&msg); err != nil {
		c.JSON(http.StatusBadRequest, Reply{Type: "resize", Error: err.Error()})
		return
	}
	if msg.Width <= 0 || msg.Height <= 0 {
		c.JSON(http.StatusBadRequest, Reply{
			Type:  "resize",
			Error: "width and height must be positive, got " + formatSize(msg.Width, msg.Height),
		})
		return
	}
	reply, err := s.ctrl.Resize(c.Request.Context(), msg.Width, msg.Height)
	if err != nil {
		s.fail(c, "resize", err)
		return
	}
	c.JSON(http.StatusOK, reply)
}

func (s *Server) fail(c *gin.Context, kind string, err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		status = http.StatusServiceUnavailable
	}
	s.log.Warn().Err(err).Str("type", kind).Msg("control request failed")
	c.JSON(status, Reply{Type: kind, Error: err.Error()})
}

func (s *Server) handleWebsocket(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()
	s.metrics.ControlEvents.WithLabelValues("ws_connect").Inc()
	s.log.Info().Str("remote", c.Request.RemoteAddr).Msg("control client connected")

	ctx := c.Request.Context()
	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Debug().Err(err).Msg("control client read")
			}
			return
		}
		reply := s.dispatch(ctx, msg)
		if err := conn.WriteJSON(reply); err != nil {
			s.log.Debug().Err(err).Msg("control client write")
			return
		}
	}
}

func (s *Server) dispatch(ctx context.Context, msg Message) Reply {
	var (
		reply Reply
		err   error
	)
	switch msg.Type {
	case "search":
		s.metrics.ControlEvents.WithLabelValues("search").Inc()
		reply, err = s.ctrl.Search(ctx, msg.Query)
	case "resize":
		s.metrics.ControlEvents.WithLabelValues("resize").Inc()
		if msg.Width <= 0 || msg.Height <= 0 {
			return Reply{Type: msg.Type, Error: "width and height must be positive, got " + formatSize(msg.Width, msg.Height)}
		}
		reply, err = s.ctrl.Resize(ctx, msg.Width, msg.Height)
	default:
		s.metrics.ControlEvents.WithLabelValues("unknown").Inc()
		return Reply{Type: msg.Type, Error: "unknown message type"}
	}
	if err != nil {
		return Reply{Type: msg.Type, Error: err.Error()}
	}
	return reply
}

func formatSize(w, h float64) string {
	return strconv.FormatFloat(w, 'f', -1, 64) + "x" + strconv.FormatFloat(h, 'f', -1, 64)
}
