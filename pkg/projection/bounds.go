package projection

import (
	"math"

	"github.com/paulmach/orb"
)

// gridStep is the spacing, in degrees, of the grid bounds are snapped to.
const gridStep = 2.0

// boundsOf scans every coordinate the source yields. X is longitude and Y is
// latitude, matching orb's convention.
func boundsOf(src Source) (orb.Bound, bool) {
	var b orb.Bound
	found := false
	src.Coordinates(func(_ int, lat, lng float64) {
		p := orb.Point{lng, lat}
		if !found {
			b = orb.Bound{Min: p, Max: p}
			found = true
			return
		}
		b = b.Extend(p)
	})
	return b, found
}

// snapUp pads v by one grid step and floors it onto the grid.
func snapUp(v float64) float64 {
	return math.Floor((v+gridStep)/gridStep) * gridStep
}

// snapDown pads v by one grid step downward and floors it onto the grid.
// math.Floor, not truncation, so negative coordinates move away from zero.
func snapDown(v float64) float64 {
	return math.Floor((v-gridStep)/gridStep) * gridStep
}

// snap pads b outward onto the 2 degree grid.
func snap(b orb.Bound) orb.Bound {
	return orb.Bound{
		Min: orb.Point{snapDown(b.Left()), snapDown(b.Bottom())},
		Max: orb.Point{snapUp(b.Right()), snapUp(b.Top())},
	}
}
