// Package viewer draws the point cloud with ebiten and handles search input
// typed locally or sent through the control server.
package viewer

import (
	"bytes"
	"context"
	"errors"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
	"github.com/hajimehoshi/ebiten/v2/text/v2"
	"github.com/rs/zerolog"
	"golang.org/x/image/font/gofont/gomono"
	"golang.org/x/image/font/gofont/goregular"

	"github.com/sudorandom/latlng-cloud/pkg/control"
	"github.com/sudorandom/latlng-cloud/pkg/metrics"
	"github.com/sudorandom/latlng-cloud/pkg/pointstore"
	"github.com/sudorandom/latlng-cloud/pkg/projection"
)

// Settings configures a Game.
type Settings struct {
	Width, Height int

	// FollowWindow makes the drawing surface track the window size.
	// Otherwise the surface stays fixed and ebiten scales it.
	FollowWindow bool
	Country      string
	CaptureDir   string
	DotSize      float64
	Logger       zerolog.Logger
	Metrics      *metrics.Metrics
}

type commandKind int

const (
	cmdSearch commandKind = iota
	cmdResize
)

type command struct {
	kind          commandKind
	query         string
	width, height float64
	reply         chan control.Reply
}

// Game is the ebiten.Game for the viewer. Remote calls to Search and Resize
// are queued and applied on the next Update.
type Game struct {
	store  *pointstore.Store
	canvas *Canvas
	engine *projection.Engine

	width, height    int
	// last window size seen by Layout
	windowW, windowH int
	followWindow     bool
	resized          bool
	ready            <-chan struct{}

	query      queryInput
	inputChars []rune
	place      pointstore.Place
	found      bool

	commands chan command

	title       string
	captureDir  string
	captureNext bool
	dotSize     float64
	dotImage    *ebiten.Image
	fontSource  *text.GoTextFaceSource
	monoSource  *text.GoTextFaceSource

	log     zerolog.Logger
	metrics *metrics.Metrics
}

func NewGame(store *pointstore.Store, s Settings) *Game {
	if s.Metrics == nil {
		s.Metrics = metrics.Discard()
	}
	if s.DotSize <= 0 {
		s.DotSize = 3
	}
	regular, _ := text.NewGoTextFaceSource(bytes.NewReader(goregular.TTF))
	mono, _ := text.NewGoTextFaceSource(bytes.NewReader(gomono.TTF))

	g := &Game{
		store:        store,
		canvas:       &Canvas{},
		width:        s.Width,
		height:       s.Height,
		followWindow: s.FollowWindow,
		resized:      true,
		ready:        store.Ready(),
		commands:     make(chan command, 16),
		title:        Title(s.Country),
		captureDir:   s.CaptureDir,
		dotSize:      s.DotSize,
		fontSource:   regular,
		monoSource:   mono,
		log:          s.Logger,
		metrics:      s.Metrics,
	}
	g.engine = projection.NewEngine(store, g.canvas,
		projection.WithLogger(s.Logger),
		projection.WithMetrics(s.Metrics),
	)
	return g
}

func (g *Game) Update() error {
	g.readInput()
	g.step()
	return nil
}

func (g *Game) readInput() {
	changed := false
	g.inputChars = ebiten.AppendInputChars(g.inputChars[:0])
	if g.query.Append(g.inputChars) {
		changed = true
	}
	if repeatingKeyPressed(ebiten.KeyBackspace) && g.query.Backspace() {
		changed = true
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyEscape) && g.query.Clear() {
		changed = true
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyF12) {
		g.captureNext = true
	}
	if changed {
		g.search()
	}
}

func repeatingKeyPressed(key ebiten.Key) bool {
	const (
		delay    = 15
		interval = 3
	)
	d := inpututil.KeyPressDuration(key)
	return d == 1 || (d >= delay && (d-delay)%interval == 0)
}

// step applies queued commands and pending size changes, and projects once
// the store becomes ready.
func (g *Game) step() {
drain:
	for {
		select {
		case cmd := <-g.commands:
			g.apply(cmd)
		default:
			break drain
		}
	}

	if g.resized {
		g.resized = false
		if _, err := g.engine.Resize(float64(g.width), float64(g.height)); err != nil && !errors.Is(err, projection.ErrNotReady) {
			g.log.Error().Err(err).Msg("resize")
		}
	}
	if g.engine.Visible() {
		return
	}
	select {
	case <-g.ready:
	default:
		return
	}
	if _, err := g.engine.Reproject(); err != nil {
		g.log.Error().Err(err).Msg("initial projection")
		return
	}
	// a search typed while loading is applied now
	if g.query.String() != "" {
		g.search()
	}
}

func (g *Game) apply(cmd command) {
	var reply control.Reply
	switch cmd.kind {
	case cmdSearch:
		g.query.Replace(cmd.query)
		reply = g.search()
	case cmdResize:
		reply = g.resize(cmd.width, cmd.height)
	}
	cmd.reply <- reply
}

// search runs the current query. An empty field clears the highlight.
func (g *Game) search() control.Reply {
	q := g.query.String()
	reply := control.Reply{Type: "search"}
	if q == "" {
		g.store.ClearHighlight()
		g.place, g.found = pointstore.Place{}, false
	} else {
		g.place, g.found = g.store.Search(q)
	}
	g.engine.PushColors()

	reply.Found = g.found
	reply.Highlighted = g.store.Highlighted()
	if g.found {
		place := g.place
		reply.Place = &place
	}
	if !g.store.IsReady() {
		reply.Error = projection.ErrNotReady.Error()
	}
	g.log.Debug().Str("query", q).Bool("found", g.found).Int("highlighted", reply.Highlighted).Msg("search")
	return reply
}

func (g *Game) resize(width, height float64) control.Reply {
	g.width, g.height = int(width), int(height)
	g.resized = false
	reply := control.Reply{Type: "resize", Width: width, Height: height}
	st, err := g.engine.Resize(width, height)
	if err != nil {
		reply.Error = err.Error()
		return reply
	}
	reply.Scale = st.Scale
	return reply
}

// Title is the window and HUD title for the given country name.
func Title(country string) string {
	if country == "" {
		return "LatLng Cloud"
	}
	return "LatLng Cloud / " + country
}

// Search queues a search on the game loop and waits for its result.
func (g *Game) Search(ctx context.Context, query string) (control.Reply, error) {
	return g.send(ctx, command{kind: cmdSearch, query: query})
}

// Resize queues a surface resize on the game loop and waits for its result.
func (g *Game) Resize(ctx context.Context, width, height float64) (control.Reply, error) {
	return g.send(ctx, command{kind: cmdResize, width: width, height: height})
}

func (g *Game) send(ctx context.Context, cmd command) (control.Reply, error) {
	cmd.reply = make(chan control.Reply, 1)
	select {
	case g.commands <- cmd:
	case <-ctx.Done():
		return control.Reply{}, ctx.Err()
	}
	select {
	case reply := <-cmd.reply:
		return reply, nil
	case <-ctx.Done():
		return control.Reply{}, ctx.Err()
	}
}

func (g *Game) Draw(screen *ebiten.Image) {
	if g.dotImage == nil {
		g.dotImage = newDotTexture(32)
	}
	if g.canvas.Visible() {
		g.drawPoints(screen)
	}
	g.drawHUD(screen)

	if g.captureNext {
		g.captureNext = false
		captureFrame(screen, g.captureDir, time.Now(), g.log)
	}
}

func (g *Game) drawPoints(screen *ebiten.Image) {
	op := &ebiten.DrawImageOptions{}
	op.Blend = ebiten.BlendLighter
	imgW := g.dotImage.Bounds().Dx()
	halfW := float64(imgW) / 2
	scale := g.dotSize / float64(imgW)
	height := float64(g.height)
	for i := 0; i < g.canvas.Len(); i++ {
		x, y, r, gr, b := g.canvas.Point(i, height)
		op.GeoM.Reset()
		op.GeoM.Translate(-halfW, -halfW)
		op.GeoM.Scale(scale, scale)
		op.GeoM.Translate(x, y)
		op.ColorScale.Reset()
		op.ColorScale.Scale(r*0.8, gr*0.8, b*0.8, 0.8)
		screen.DrawImage(g.dotImage, op)
	}
}

func (g *Game) Layout(outsideWidth, outsideHeight int) (int, int) {
	if g.followWindow && (outsideWidth != g.windowW || outsideHeight != g.windowH) {
		g.windowW, g.windowH = outsideWidth, outsideHeight
		g.width, g.height = outsideWidth, outsideHeight
		g.resized = true
	}
	return g.width, g.height
}
