package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/hajimehoshi/ebiten/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	_ "github.com/silbinarywolf/preferdiscretegpu"

	"github.com/sudorandom/latlng-cloud/pkg/config"
	"github.com/sudorandom/latlng-cloud/pkg/control"
	"github.com/sudorandom/latlng-cloud/pkg/metrics"
	"github.com/sudorandom/latlng-cloud/pkg/pointstore"
	"github.com/sudorandom/latlng-cloud/pkg/projection"
	"github.com/sudorandom/latlng-cloud/pkg/sources"
	"github.com/sudorandom/latlng-cloud/pkg/utils"
	"github.com/sudorandom/latlng-cloud/pkg/viewer"
)

type CLI struct {
	Config   string   `help:"YAML config file." short:"c" type:"path"`
	Datasets []string `help:"Dataset URLs or paths, overriding the config." short:"d"`
	LogLevel string   `help:"Log level override (debug, info, warn, error)."`

	View    ViewCmd    `cmd:"" default:"1" help:"Open the point cloud viewer."`
	Search  SearchCmd  `cmd:"" help:"Load datasets and run a single search."`
	Project ProjectCmd `cmd:"" help:"Load datasets and write the projected buffers."`
	Cache   CacheCmd   `cmd:"" help:"Inspect or clear the dataset cache."`
}

type app struct {
	cfg      *config.Config
	log      zerolog.Logger
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	ctx      context.Context
	out      io.Writer
}

func main() {
	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("latlng"),
		kong.Description("Plot geocoded administrative units as a searchable point cloud."),
		kong.UsageOnError(),
	)

	cfg, err := config.Load(cli.Config)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if len(cli.Datasets) > 0 {
		cfg.Datasets = cli.Datasets
	}
	if cli.LogLevel != "" {
		cfg.Log.Level = cli.LogLevel
	}
	log := utils.NewLogger(cfg.Log.Level, cfg.Log.Format, os.Stderr)
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a := &app{
		cfg:      cfg,
		log:      log,
		registry: reg,
		metrics:  metrics.NewMetrics(reg),
		ctx:      ctx,
		out:      os.Stdout,
	}
	kctx.FatalIfErrorf(kctx.Run(a))
}

// newLoader returns a loader and a store expecting one batch per dataset.
// The returned func closes the cache.
func (a *app) newLoader() (*sources.Loader, *pointstore.Store, func(), error) {
	opts := []sources.Option{
		sources.WithLogger(a.log),
		sources.WithMetrics(a.metrics),
		sources.WithHTTPClient(&http.Client{Timeout: a.cfg.HTTPTimeout}),
	}
	closeCache := func() {}
	if a.cfg.Cache.Enabled {
		cache, err := a.openCache()
		if err != nil {
			return nil, nil, nil, err
		}
		opts = append(opts, sources.WithCache(cache))
		closeCache = func() { a.closeCache(cache) }
	}
	store := pointstore.NewStore(len(a.cfg.Datasets),
		pointstore.WithLogger(a.log),
		pointstore.WithMetrics(a.metrics),
	)
	start := time.Now()
	store.OnReady(func(points int) {
		a.log.Info().
			Int("points", points).
			Int("datasets", len(a.cfg.Datasets)).
			Dur("took", time.Since(start)).
			Msg("point cloud ready")
	})
	return sources.NewLoader(opts...), store, closeCache, nil
}

func (a *app) openCache() (*utils.DiskCache, error) {
	cache, err := utils.OpenDiskCache(a.cfg.Cache.Dir, a.cfg.Cache.TTL)
	if err != nil {
		return nil, fmt.Errorf("open cache %s: %w", a.cfg.Cache.Dir, err)
	}
	return cache, nil
}

func (a *app) closeCache(cache *utils.DiskCache) {
	if err := cache.Close(); err != nil {
		a.log.Warn().Err(err).Msg("closing cache")
	}
}

// loadAll blocks until every dataset has completed. Failed datasets are
// logged; the store is ready either way.
func (a *app) loadAll() (*pointstore.Store, error) {
	loader, store, closeCache, err := a.newLoader()
	if err != nil {
		return nil, err
	}
	defer closeCache()
	if err := loader.Load(a.ctx, a.cfg.Datasets, store); err != nil {
		a.log.Warn().Err(err).Msg("some datasets failed to load")
	}
	if err := a.ctx.Err(); err != nil {
		return nil, err
	}
	return store, nil
}

type ViewCmd struct {
	Headless bool `help:"Keep the drawing surface at the configured size instead of following the window."`
}

func (c *ViewCmd) Run(a *app) error {
	loader, store, closeCache, err := a.newLoader()
	if err != nil {
		return err
	}
	defer closeCache()

	loadDone := make(chan struct{})
	go func() {
		defer close(loadDone)
		if err := loader.Load(a.ctx, a.cfg.Datasets, store); err != nil {
			a.log.Warn().Err(err).Msg("some datasets failed to load")
		}
	}()

	game := viewer.NewGame(store, viewer.Settings{
		Width:        a.cfg.Width,
		Height:       a.cfg.Height,
		FollowWindow: !c.Headless,
		Country:      a.cfg.CountryName(),
		CaptureDir:   a.cfg.CaptureDir,
		Logger:       a.log,
		Metrics:      a.metrics,
	})

	if a.cfg.Control.Addr != "" {
		srv := control.NewServer(game,
			control.WithLogger(a.log),
			control.WithMetrics(a.metrics),
			control.WithGatherer(a.registry),
		)
		go func() {
			if err := srv.ListenAndServe(a.ctx, a.cfg.Control.Addr); err != nil {
				a.log.Error().Err(err).Msg("control server stopped")
			}
		}()
	}

	ebiten.SetTPS(a.cfg.TPS)
	ebiten.SetWindowTitle(viewer.Title(a.cfg.CountryName()))
	if c.Headless {
		a.log.Info().Msg("running with a fixed surface size")
	} else {
		ebiten.SetWindowSize(a.cfg.Window.Width, a.cfg.Window.Height)
		ebiten.SetWindowResizingMode(ebiten.WindowResizingModeEnabled)
	}
	err = ebiten.RunGame(game)
	// the cache stays open until in-flight downloads finish
	<-loadDone
	return err
}

type SearchCmd struct {
	Query string `arg:"" help:"Display id prefix or exact search id."`
}

type searchResult struct {
	Query       string            `json:"query"`
	Found       bool              `json:"found"`
	Place       *pointstore.Place `json:"place,omitempty"`
	Highlighted int               `json:"highlighted"`
	Points      int               `json:"points"`
}

func (c *SearchCmd) Run(a *app) error {
	store, err := a.loadAll()
	if err != nil {
		return err
	}
	place, found := store.Search(c.Query)
	res := searchResult{
		Query:       c.Query,
		Found:       found,
		Highlighted: store.Highlighted(),
		Points:      store.Len(),
	}
	if found {
		res.Place = &place
	}
	return writeJSON(a.out, res)
}

type ProjectCmd struct {
	Width     int    `help:"Surface width; defaults to the configured width."`
	Height    int    `help:"Surface height; defaults to the configured height."`
	Query     string `help:"Search to apply before writing colors."`
	Positions string `help:"Write positions (x,y,z float32 LE) to this file." type:"path"`
	Colors    string `help:"Write colors (r,g,b float32 LE) to this file." type:"path"`
}

// bufferSink keeps the last buffers the engine publishes.
type bufferSink struct {
	positions, colors []float32
}

func (b *bufferSink) SetPositions(p []float32) { b.positions = p }
func (b *bufferSink) SetColors(c []float32)    { b.colors = c }
func (b *bufferSink) SetVisible(bool)          {}

func (c *ProjectCmd) Run(a *app) error {
	width, height := c.Width, c.Height
	if width <= 0 {
		width = a.cfg.Width
	}
	if height <= 0 {
		height = a.cfg.Height
	}

	store, err := a.loadAll()
	if err != nil {
		return err
	}
	sink := &bufferSink{}
	engine := projection.NewEngine(store, sink,
		projection.WithLogger(a.log),
		projection.WithMetrics(a.metrics),
	)
	st, err := engine.Project(float64(width), float64(height))
	if err != nil {
		return err
	}
	if c.Query != "" {
		store.Search(c.Query)
		engine.PushColors()
	}

	if err := writeBuffer(c.Positions, sink.positions); err != nil {
		return fmt.Errorf("write positions: %w", err)
	}
	if err := writeBuffer(c.Colors, sink.colors); err != nil {
		return fmt.Errorf("write colors: %w", err)
	}
	return writeJSON(a.out, struct {
		projection.State
		Points      int `json:"points"`
		Highlighted int `json:"highlighted"`
	}{st, store.Len(), store.Highlighted()})
}

type CacheCmd struct {
	List  CacheListCmd  `cmd:"" help:"List cached dataset locations."`
	Rm    CacheRmCmd    `cmd:"" help:"Drop cached datasets by location."`
	Purge CachePurgeCmd `cmd:"" help:"Drop every cached dataset."`
}

type CacheListCmd struct{}

func (c *CacheListCmd) Run(a *app) error {
	cache, err := a.openCache()
	if err != nil {
		return err
	}
	defer a.closeCache(cache)
	keys, err := cache.Keys()
	if err != nil {
		return err
	}
	for _, k := range keys {
		if _, err := fmt.Fprintln(a.out, k); err != nil {
			return err
		}
	}
	return nil
}

type CacheRmCmd struct {
	Locations []string `arg:"" help:"Dataset locations to drop."`
}

func (c *CacheRmCmd) Run(a *app) error {
	cache, err := a.openCache()
	if err != nil {
		return err
	}
	defer a.closeCache(cache)
	for _, loc := range c.Locations {
		if err := cache.Delete(loc); err != nil {
			return fmt.Errorf("drop %s: %w", loc, err)
		}
		a.log.Info().Str("dataset", loc).Msg("dropped cached dataset")
	}
	return nil
}

type CachePurgeCmd struct{}

func (c *CachePurgeCmd) Run(a *app) error {
	cache, err := a.openCache()
	if err != nil {
		return err
	}
	defer a.closeCache(cache)
	if err := cache.Purge(); err != nil {
		return err
	}
	a.log.Info().Str("dir", a.cfg.Cache.Dir).Msg("cache purged")
	return nil
}

func writeBuffer(path string, buf []float32) (err error) {
	if path == "" {
		return nil
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, f.Close())
	}()
	return utils.WriteFloat32LE(f, buf)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
