package viewer

import (
	"fmt"
	"image/color"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/text/v2"
	"github.com/hajimehoshi/ebiten/v2/vector"

	"github.com/sudorandom/latlng-cloud/pkg/pointstore"
)

var (
	colorAccent    = color.RGBA{0, 255, 255, 255}
	colorBoxFill   = color.RGBA{0, 0, 0, 140}
	colorBoxStroke = color.RGBA{36, 42, 53, 255}
)

type hudLine struct {
	Label string
	Value string
}

// placeLines lists the non-empty fields of p.
func placeLines(p pointstore.Place) []hudLine {
	all := []hudLine{
		{"MINISTRY", p.Ministry},
		{"PROVINCE", p.Province},
		{"CITY", p.City},
		{"TOWN", p.Town},
	}
	lines := all[:0]
	for _, l := range all {
		if l.Value != "" {
			lines = append(lines, l)
		}
	}
	return lines
}

// statusLine summarizes load progress or the current highlight.
func statusLine(store *pointstore.Store) string {
	if !store.IsReady() {
		received, expected := store.Progress()
		return fmt.Sprintf("LOADING %d/%d", received, expected)
	}
	return fmt.Sprintf("%d POINTS  %d HIGHLIGHTED", store.Len(), store.Highlighted())
}

func (g *Game) drawHUD(screen *ebiten.Image) {
	if g.fontSource == nil || g.monoSource == nil {
		return
	}
	margin, fontSize := 20.0, 16.0
	if g.width > 2000 {
		margin, fontSize = 40.0, 32.0
	}
	face := &text.GoTextFace{Source: g.fontSource, Size: fontSize}
	titleFace := &text.GoTextFace{Source: g.fontSource, Size: fontSize * 0.8}
	mono := &text.GoTextFace{Source: g.monoSource, Size: fontSize}
	lineH := fontSize * 1.5

	var places []hudLine
	if g.found {
		places = placeLines(g.place)
	}
	boxW := fontSize * 22
	boxH := lineH*float64(3+len(places)) + fontSize

	vector.DrawFilledRect(screen, float32(margin), float32(margin), float32(boxW), float32(boxH), colorBoxFill, false)
	vector.StrokeRect(screen, float32(margin), float32(margin), float32(boxW), float32(boxH), 1, colorBoxStroke, false)
	vector.DrawFilledRect(screen, float32(margin), float32(margin), 4, float32(lineH), colorAccent, false)

	x, y := margin+15, margin+fontSize*0.4
	op := &text.DrawOptions{}
	op.GeoM.Translate(x, y)
	op.ColorScale.Scale(1, 1, 1, 0.6)
	text.Draw(screen, g.title, titleFace, op)

	y += lineH
	op = &text.DrawOptions{}
	op.GeoM.Translate(x, y)
	text.Draw(screen, "SEARCH > "+g.query.String()+"_", mono, op)

	y += lineH
	op = &text.DrawOptions{}
	op.GeoM.Translate(x, y)
	op.ColorScale.Scale(1, 1, 1, 0.7)
	text.Draw(screen, statusLine(g.store), face, op)

	for _, l := range places {
		y += lineH
		op = &text.DrawOptions{}
		op.GeoM.Translate(x, y)
		op.ColorScale.Scale(1, 1, 1, 0.5)
		text.Draw(screen, l.Label, titleFace, op)

		op = &text.DrawOptions{}
		op.GeoM.Translate(x+fontSize*6, y)
		op.ColorScale.ScaleWithColor(colorAccent)
		text.Draw(screen, l.Value, face, op)
	}

	g.drawHover(screen, mono, margin)
}

// drawHover shows the coordinate under the cursor in the bottom right corner.
func (g *Game) drawHover(screen *ebiten.Image, face *text.GoTextFace, margin float64) {
	if !g.engine.Visible() {
		return
	}
	cx, cy := ebiten.CursorPosition()
	if cx < 0 || cy < 0 || cx >= g.width || cy >= g.height {
		return
	}
	lat, lng, ok := g.engine.State().SurfaceToGeo(float64(cx), float64(g.height-cy))
	if !ok {
		return
	}
	label := fmt.Sprintf("%8.4f, %9.4f", lat, lng)
	tw, th := text.Measure(label, face, 0)
	op := &text.DrawOptions{}
	op.GeoM.Translate(float64(g.width)-margin-tw, float64(g.height)-margin-th)
	op.ColorScale.Scale(1, 1, 1, 0.6)
	text.Draw(screen, label, face, op)
}
