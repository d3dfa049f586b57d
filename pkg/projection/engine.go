// Package projection fits geographic points into a width x height drawing
// surface and publishes the resulting buffers to a renderer.
package projection

import (
	"errors"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/sudorandom/latlng-cloud/pkg/metrics"
	"github.com/sudorandom/latlng-cloud/pkg/utils"
)

// ErrNotReady is returned when projecting before the source has finished
// loading. Nothing is published in that case.
var ErrNotReady = errors.New("projection: source not ready")

// Source is the read-only view of the point store the engine needs.
type Source interface {
	IsReady() bool
	Coordinates(fn func(i int, lat, lng float64))
	Colors() []float32
}

// Renderer receives flat xyz position and rgb color buffers. Buffers handed
// over are copies; the renderer may keep them.
type Renderer interface {
	SetPositions(positions []float32)
	SetColors(colors []float32)
	SetVisible(visible bool)
}

// State is the affine transform of the latest projection. Surface y grows
// with latitude.
type State struct {
	Scale      float64
	MarginLeft float64
	MarginTop  float64
	MinLat     float64
	MinLng     float64
	MaxLat     float64
	MaxLng     float64
	Width      float64
	Height     float64
}

// GeoToSurface maps a coordinate onto the surface.
func (s State) GeoToSurface(lat, lng float64) (x, y float64) {
	return s.MarginLeft + (lng-s.MinLng)*s.Scale, s.MarginTop + (lat-s.MinLat)*s.Scale
}

// SurfaceToGeo inverts GeoToSurface. ok is false while the scale is zero.
func (s State) SurfaceToGeo(x, y float64) (lat, lng float64, ok bool) {
	if s.Scale == 0 {
		return 0, 0, false
	}
	return s.MinLat + (y-s.MarginTop)/s.Scale, s.MinLng + (x-s.MarginLeft)/s.Scale, true
}

type Option func(*Engine)

func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// Engine owns the projection state and the position buffer. It is not safe
// for concurrent use; drive it from a single loop.
type Engine struct {
	src      Source
	renderer Renderer

	width, height float64
	state         State
	positions     []float32
	visible       bool

	log     zerolog.Logger
	metrics *metrics.Metrics
}

func NewEngine(src Source, r Renderer, opts ...Option) *Engine {
	e := &Engine{
		src:      src,
		renderer: r,
		log:      zerolog.Nop(),
		metrics:  metrics.Discard(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Project recomputes the transform for a width x height surface and
// publishes positions. The first successful call also publishes colors and
// turns visibility on.
func (e *Engine) Project(width, height float64) (State, error) {
	e.width, e.height = width, height
	if !e.src.IsReady() {
		return e.state, ErrNotReady
	}
	start := time.Now()

	st := State{Width: width, Height: height}
	b, ok := boundsOf(e.src)
	if ok {
		b = snap(b)
		st.MinLng, st.MinLat = b.Left(), b.Bottom()
		st.MaxLng, st.MaxLat = b.Right(), b.Top()
	}
	lngExtent := usableExtent(st.MaxLng - st.MinLng)
	latExtent := usableExtent(st.MaxLat - st.MinLat)

	// A zero extent borrows the other axis's scale; with both zero the
	// surface collapses onto its center.
	switch {
	case lngExtent > 0 && latExtent > 0:
		st.Scale = math.Min(width/lngExtent, height/latExtent)
	case lngExtent > 0:
		st.Scale = width / lngExtent
	case latExtent > 0:
		st.Scale = height / latExtent
	}
	st.MarginLeft = (width - lngExtent*st.Scale) / 2
	st.MarginTop = (height - latExtent*st.Scale) / 2

	positions := e.positions[:0]
	e.src.Coordinates(func(i int, lat, lng float64) {
		x, y := st.GeoToSurface(lat, lng)
		positions = append(positions, float32(x), float32(y), 0)
	})
	if positions == nil {
		positions = []float32{}
	}
	e.positions = positions
	e.state = st

	e.renderer.SetPositions(utils.CloneBuffer(e.positions))
	if !e.visible {
		e.renderer.SetColors(e.src.Colors())
		e.renderer.SetVisible(true)
		e.visible = true
	}

	elapsed := time.Since(start)
	e.metrics.Projections.Inc()
	e.metrics.ProjectionSeconds.Observe(elapsed.Seconds())
	e.log.Debug().
		Float64("width", width).Float64("height", height).
		Float64("scale", st.Scale).
		Float64("margin_left", st.MarginLeft).Float64("margin_top", st.MarginTop).
		Int("points", utils.TripleCount(e.positions)).
		Dur("took", elapsed).
		Msg("projected")
	return st, nil
}

// Resize stores the new surface size and recomputes everything.
func (e *Engine) Resize(width, height float64) (State, error) {
	return e.Project(width, height)
}

// Reproject runs Project with the last requested size.
func (e *Engine) Reproject() (State, error) {
	return e.Project(e.width, e.height)
}

// PushColors forwards the source's current colors without touching
// positions.
func (e *Engine) PushColors() {
	if !e.visible {
		return
	}
	e.renderer.SetColors(e.src.Colors())
}

func (e *Engine) State() State { return e.state }

func (e *Engine) Visible() bool { return e.visible }

// Size is the last requested surface size, projected or not.
func (e *Engine) Size() (width, height float64) { return e.width, e.height }

// Positions returns a copy of the position buffer.
func (e *Engine) Positions() []float32 {
	return utils.CloneBuffer(e.positions)
}

func usableExtent(v float64) float64 {
	if v <= 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
