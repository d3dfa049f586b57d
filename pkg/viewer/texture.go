package viewer

import (
	"math"

	"github.com/hajimehoshi/ebiten/v2"
)

// dotPixels renders a white disc with a soft rim as RGBA bytes.
func dotPixels(size int) []byte {
	pixels := make([]byte, size*size*4)
	center, maxDist := float64(size)/2.0, float64(size)/2.0
	const core = 0.7
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			dx, dy := float64(x)+0.5-center, float64(y)+0.5-center
			dist := math.Sqrt(dx*dx + dy*dy)
			if dist >= maxDist {
				continue
			}
			val := 1.0
			if dist > maxDist*core {
				val = math.Cos(((dist - maxDist*core) / (maxDist * (1 - core))) * (math.Pi / 2))
			}
			o := (y*size + x) * 4
			pixels[o+0], pixels[o+1], pixels[o+2] = 255, 255, 255
			pixels[o+3] = uint8(val * 255)
		}
	}
	return pixels
}

func newDotTexture(size int) *ebiten.Image {
	img := ebiten.NewImage(size, size)
	img.WritePixels(dotPixels(size))
	return img
}
