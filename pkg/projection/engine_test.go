package projection

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sudorandom/latlng-cloud/pkg/pointstore"
	"github.com/sudorandom/latlng-cloud/pkg/utils"
)

type fakeRenderer struct {
	positions    []float32
	colors       []float32
	visible      bool
	positionSets int
	colorSets    int
	visibleSets  int
}

func (f *fakeRenderer) SetPositions(p []float32) { f.positions = p; f.positionSets++ }
func (f *fakeRenderer) SetColors(c []float32)    { f.colors = c; f.colorSets++ }
func (f *fakeRenderer) SetVisible(v bool)        { f.visible = v; f.visibleSets++ }

func readyStore(t *testing.T, records ...pointstore.Record) *pointstore.Store {
	t.Helper()
	s := pointstore.NewStore(1)
	require.NoError(t, s.Ingest(records))
	return s
}

func tokyo() []pointstore.Record {
	return []pointstore.Record{
		{Lat: 35.69, Lng: 139.75, DisplayID: "13101", SearchID: "131016"},
		{Lat: 35.67, Lng: 139.77, DisplayID: "13102", SearchID: "131024"},
		{Lat: 35.44, Lng: 139.64, DisplayID: "14101", SearchID: "141011"},
	}
}

func TestSnap(t *testing.T) {
	tests := []struct {
		v        float64
		up, down float64
	}{
		{35.69, 36, 32},
		{35.44, 36, 32},
		{139.77, 140, 136},
		{139.64, 140, 136},
		{0, 2, -2},
		{-0.5, 0, -4},
		{-3, -2, -6},
		{-33.9, -32, -36},
		{-180, -178, -182},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.up, snapUp(tt.v), "snapUp(%v)", tt.v)
		assert.Equal(t, tt.down, snapDown(tt.v), "snapDown(%v)", tt.v)
	}
}

func TestProjectTokyo(t *testing.T) {
	r := &fakeRenderer{}
	e := NewEngine(readyStore(t, tokyo()...), r)

	st, err := e.Project(800, 600)
	require.NoError(t, err)

	assert.Equal(t, 32.0, st.MinLat)
	assert.Equal(t, 36.0, st.MaxLat)
	assert.Equal(t, 136.0, st.MinLng)
	assert.Equal(t, 140.0, st.MaxLng)
	// lngSize = 200, latSize = 150
	assert.Equal(t, 150.0, st.Scale)
	assert.InDelta(t, 100.0, st.MarginLeft, 1e-9)
	assert.InDelta(t, 0.0, st.MarginTop, 1e-9)

	require.Len(t, r.positions, 9)
	x, y, z := utils.Triple(r.positions, 0)
	assert.InDelta(t, 662.5, x, 1e-3)
	assert.InDelta(t, 553.5, y, 1e-3)
	assert.Equal(t, float32(0), z)

	assert.True(t, r.visible)
	assert.True(t, e.Visible())
	assert.Len(t, r.colors, 9)
}

func TestProjectPointsStayInsideSurface(t *testing.T) {
	records := []pointstore.Record{
		{Lat: -33.87, Lng: 151.21, DisplayID: "syd"},
		{Lat: 51.51, Lng: -0.13, DisplayID: "lon"},
		{Lat: 40.71, Lng: -74.01, DisplayID: "nyc"},
		{Lat: -54.8, Lng: -68.3, DisplayID: "ush"},
		{Lat: 64.15, Lng: -21.94, DisplayID: "rey"},
		{Lat: 35.69, Lng: 139.69, DisplayID: "tyo"},
	}
	sizes := [][2]float64{{1920, 1080}, {300, 900}, {1, 1}, {640, 640}}
	for _, size := range sizes {
		r := &fakeRenderer{}
		e := NewEngine(readyStore(t, records...), r)
		st, err := e.Project(size[0], size[1])
		require.NoError(t, err)

		maxX := st.MarginLeft + (st.MaxLng-st.MinLng)*st.Scale
		maxY := st.MarginTop + (st.MaxLat-st.MinLat)*st.Scale
		for i := 0; i < utils.TripleCount(r.positions); i++ {
			x, y, _ := utils.Triple(r.positions, i)
			const eps = 1e-3
			assert.GreaterOrEqual(t, float64(x), st.MarginLeft-eps)
			assert.LessOrEqual(t, float64(x), maxX+eps)
			assert.GreaterOrEqual(t, float64(y), st.MarginTop-eps)
			assert.LessOrEqual(t, float64(y), maxY+eps)
			assert.LessOrEqual(t, float64(x), size[0]+eps)
			assert.LessOrEqual(t, float64(y), size[1]+eps)
		}
	}
}

func TestSentinelsDoNotAffectBounds(t *testing.T) {
	withZero := append([]pointstore.Record{{Lat: 0, Lng: 0, DisplayID: "zero"}}, tokyo()...)
	a := NewEngine(readyStore(t, withZero...), &fakeRenderer{})
	b := NewEngine(readyStore(t, tokyo()...), &fakeRenderer{})

	sa, err := a.Project(800, 600)
	require.NoError(t, err)
	sb, err := b.Project(800, 600)
	require.NoError(t, err)
	assert.Equal(t, sb, sa)
	assert.Equal(t, b.Positions(), a.Positions())
}

func TestResizeIndependentOfPreviousSize(t *testing.T) {
	r := &fakeRenderer{}
	e := NewEngine(readyStore(t, tokyo()...), r)
	_, err := e.Project(1024, 300)
	require.NoError(t, err)

	resized, err := e.Resize(800, 600)
	require.NoError(t, err)
	first := e.Positions()

	fresh := NewEngine(readyStore(t, tokyo()...), &fakeRenderer{})
	want, err := fresh.Project(800, 600)
	require.NoError(t, err)
	assert.Equal(t, want, resized)
	assert.Equal(t, fresh.Positions(), first)

	_, err = e.Resize(800, 600)
	require.NoError(t, err)
	assert.Equal(t, first, e.Positions(), "resize is idempotent")
	assert.Equal(t, first, r.positions)

	assert.Equal(t, 1, r.visibleSets, "visibility flips only on the first projection")
	assert.Equal(t, 1, r.colorSets)
	assert.Equal(t, 3, r.positionSets)
}

func TestProjectBeforeReady(t *testing.T) {
	s := pointstore.NewStore(2)
	require.NoError(t, s.Ingest(tokyo()))
	r := &fakeRenderer{}
	e := NewEngine(s, r)

	_, err := e.Resize(640, 480)
	assert.ErrorIs(t, err, ErrNotReady)
	assert.False(t, e.Visible())
	assert.Zero(t, r.positionSets+r.colorSets+r.visibleSets)
	w, h := e.Size()
	assert.Equal(t, [2]float64{640, 480}, [2]float64{w, h})

	require.NoError(t, s.Ingest(nil))
	st, err := e.Reproject()
	require.NoError(t, err)
	assert.Equal(t, 640.0, st.Width)
	assert.True(t, r.visible)
}

func TestProjectSinglePoint(t *testing.T) {
	r := &fakeRenderer{}
	e := NewEngine(readyStore(t, pointstore.Record{Lat: 35, Lng: 139, DisplayID: "one"}), r)

	st, err := e.Project(400, 400)
	require.NoError(t, err)
	assert.False(t, math.IsNaN(st.Scale) || math.IsInf(st.Scale, 0))
	// snapping always leaves a 4 degree box around a lone point
	assert.Equal(t, 4.0, st.MaxLat-st.MinLat)
	assert.Equal(t, 4.0, st.MaxLng-st.MinLng)
	assert.Equal(t, 100.0, st.Scale)

	x, y, _ := utils.Triple(r.positions, 0)
	assert.InDelta(t, 300, x, 1e-3)
	assert.InDelta(t, 300, y, 1e-3)
}

func TestProjectIdenticalPoints(t *testing.T) {
	p := pointstore.Record{Lat: -12.5, Lng: -77.25, DisplayID: "lim"}
	r := &fakeRenderer{}
	e := NewEngine(readyStore(t, p, p, p), r)
	st, err := e.Project(300, 200)
	require.NoError(t, err)
	assert.Greater(t, st.Scale, 0.0)
	for i := 0; i < 3; i++ {
		x, y, _ := utils.Triple(r.positions, i)
		assert.False(t, math.IsNaN(float64(x)) || math.IsNaN(float64(y)))
	}
}

func TestProjectZeroExtentBorrowsOtherAxis(t *testing.T) {
	// 1e17 absorbs the grid padding, so snapping leaves a zero extent
	tests := []struct {
		name                  string
		records               []pointstore.Record
		scale                 float64
		marginLeft, marginTop float64
	}{
		{
			name: "flat latitude",
			records: []pointstore.Record{
				{Lat: 1e17, Lng: 139, DisplayID: "a"},
				{Lat: 1e17, Lng: 140, DisplayID: "b"},
			},
			scale:      800.0 / 6,
			marginLeft: 0,
			marginTop:  300,
		},
		{
			name: "flat longitude",
			records: []pointstore.Record{
				{Lat: 35, Lng: 1e17, DisplayID: "a"},
				{Lat: 36, Lng: 1e17, DisplayID: "b"},
			},
			scale:      100,
			marginLeft: 400,
			marginTop:  0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &fakeRenderer{}
			e := NewEngine(readyStore(t, tt.records...), r)
			st, err := e.Project(800, 600)
			require.NoError(t, err)
			assert.InDelta(t, tt.scale, st.Scale, 1e-9)
			assert.InDelta(t, tt.marginLeft, st.MarginLeft, 1e-9)
			assert.InDelta(t, tt.marginTop, st.MarginTop, 1e-9)
			for i := 0; i < utils.TripleCount(r.positions); i++ {
				x, y, _ := utils.Triple(r.positions, i)
				assert.False(t, math.IsNaN(float64(x)) || math.IsNaN(float64(y)))
				assert.LessOrEqual(t, float64(x), 800.0+1e-3)
				assert.LessOrEqual(t, float64(y), 600.0+1e-3)
			}
		})
	}
}

func TestProjectEmptyStore(t *testing.T) {
	r := &fakeRenderer{}
	e := NewEngine(readyStore(t, pointstore.Record{DisplayID: "sentinel"}), r)

	st, err := e.Project(800, 600)
	require.NoError(t, err)
	assert.Equal(t, 0.0, st.Scale)
	assert.Equal(t, 400.0, st.MarginLeft)
	assert.Equal(t, 300.0, st.MarginTop)
	assert.NotNil(t, r.positions)
	assert.Empty(t, r.positions)
	assert.True(t, r.visible)

	_, _, ok := st.SurfaceToGeo(1, 1)
	assert.False(t, ok)
}

func TestPushColorsAfterSearch(t *testing.T) {
	s := readyStore(t, tokyo()...)
	r := &fakeRenderer{}
	e := NewEngine(s, r)

	e.PushColors()
	assert.Zero(t, r.colorSets, "nothing is pushed before the first projection")

	_, err := e.Project(800, 600)
	require.NoError(t, err)
	positions := r.positions

	_, _ = s.Search("131")
	e.PushColors()
	assert.Equal(t, 2, r.colorSets)
	cr, cg, cb := utils.Triple(r.colors, 0)
	assert.Equal(t, pointstore.HighlightColor, [3]float32{cr, cg, cb})
	assert.Equal(t, positions, r.positions, "search does not touch positions")
	assert.Equal(t, 1, r.positionSets)
}

func TestSurfaceRoundTrip(t *testing.T) {
	e := NewEngine(readyStore(t, tokyo()...), &fakeRenderer{})
	st, err := e.Project(1280, 720)
	require.NoError(t, err)

	x, y := st.GeoToSurface(35.69, 139.75)
	lat, lng, ok := st.SurfaceToGeo(x, y)
	require.True(t, ok)
	assert.InDelta(t, 35.69, lat, 1e-9)
	assert.InDelta(t, 139.75, lng, 1e-9)
}

func BenchmarkProject(b *testing.B) {
	records := make([]pointstore.Record, 0, 2000)
	for i := 0; i < 2000; i++ {
		records = append(records, pointstore.Record{Lat: 24 + float64(i%200)*0.1, Lng: 123 + float64(i%220)*0.1})
	}
	s := pointstore.NewStore(1)
	if err := s.Ingest(records); err != nil {
		b.Fatal(err)
	}
	e := NewEngine(s, &fakeRenderer{})
	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if _, err := e.Resize(1920, 1080); err != nil {
			b.Fatal(err)
		}
	}
}
