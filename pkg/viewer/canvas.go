package viewer

import (
	"github.com/sudorandom/latlng-cloud/pkg/utils"
)

// Canvas receives buffers from the projection engine and keeps them for
// drawing. It is only touched from the game loop.
type Canvas struct {
	positions []float32
	colors    []float32
	visible   bool
}

func (c *Canvas) SetPositions(positions []float32) { c.positions = positions }

func (c *Canvas) SetColors(colors []float32) { c.colors = colors }

func (c *Canvas) SetVisible(visible bool) { c.visible = visible }

func (c *Canvas) Visible() bool { return c.visible }

// Len is the number of drawable points.
func (c *Canvas) Len() int {
	n := utils.TripleCount(c.positions)
	if m := utils.TripleCount(c.colors); m < n {
		n = m
	}
	return n
}

// Point returns point i in screen space for a surface of the given height.
// Surface y grows upward; screen y grows downward.
func (c *Canvas) Point(i int, height float64) (x, y float64, r, g, b float32) {
	px, py, _ := utils.Triple(c.positions, i)
	r, g, b = utils.Triple(c.colors, i)
	return float64(px), height - float64(py), r, g, b
}
