package tui

import (
	"math"
	"strings"

	"github.com/san-kum/mbsim/internal/matter"
	"github.com/san-kum/mbsim/internal/spatial"
)

// Plane selects which two Ground axes the canvas shows.
type Plane int

const (
	PlaneXY Plane = iota
	PlaneXZ
)

// PlaneFor picks the view that shows a model's motion best.
func PlaneFor(model string) Plane {
	if model == "spinning_top" {
		return PlaneXZ
	}
	return PlaneXY
}

// Project drops the axis the plane does not show.
func (p Plane) Project(v spatial.Vec3) (float64, float64) {
	if p == PlaneXZ {
		return v.X, v.Z
	}
	return v.X, v.Y
}

type canvas struct {
	w, h  int
	cells [][]rune
}

func newCanvas(w, h int) *canvas {
	c := &canvas{w: w, h: h, cells: make([][]rune, h)}
	for i := range c.cells {
		c.cells[i] = make([]rune, w)
	}
	c.clear()
	return c
}

func (c *canvas) clear() {
	for y := range c.cells {
		for x := range c.cells[y] {
			c.cells[y][x] = ' '
		}
	}
}

func (c *canvas) set(x, y int, r rune) {
	if x >= 0 && x < c.w && y >= 0 && y < c.h {
		c.cells[y][x] = r
	}
}

func (c *canvas) line(x0, y0, x1, y1 int, r rune) {
	dx := abs(x1 - x0)
	dy := -abs(y1 - y0)
	sx, sy := 1, 1
	if x0 > x1 {
		sx = -1
	}
	if y0 > y1 {
		sy = -1
	}
	e := dx + dy
	for {
		c.set(x0, y0, r)
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * e
		if e2 >= dy {
			e += dy
			x0 += sx
		}
		if e2 <= dx {
			e += dx
			y0 += sy
		}
	}
}

func (c *canvas) String() string {
	var b strings.Builder
	for _, row := range c.cells {
		b.WriteString(string(row))
		b.WriteByte('\n')
	}
	return b.String()
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

// skeleton is the drawable geometry of a posed mechanism: body origins,
// mass centers and the tree edges joining parent and child origins.
type skeleton struct {
	origins []spatial.Vec3
	centers []spatial.Vec3
	parents []int
}

// poseOf reads the skeleton off s, which must be realized to Position.
func poseOf(sys *matter.Subsystem, s *matter.State) (skeleton, error) {
	n := sys.NBodies()
	sk := skeleton{
		origins: make([]spatial.Vec3, n),
		centers: make([]spatial.Vec3, n),
		parents: make([]int, n),
	}
	for b := 0; b < n; b++ {
		x, err := s.BodyTransform(b)
		if err != nil {
			return sk, err
		}
		sk.origins[b] = x.P
		com, err := sys.BodyCenterOfMassStation(s, b)
		if err != nil {
			return sk, err
		}
		if sk.centers[b], err = sys.CalcStationLocation(s, b, com); err != nil {
			return sk, err
		}
		if b > 0 {
			if sk.parents[b], err = sys.Parent(b); err != nil {
				return sk, err
			}
		}
	}
	return sk, nil
}

// extent is the largest projected distance of any point from Ground's
// origin, floored so a collapsed mechanism still gets a sane scale.
func (sk skeleton) extent(p Plane) float64 {
	r := 0.5
	for _, pts := range [][]spatial.Vec3{sk.origins, sk.centers} {
		for _, v := range pts {
			x, y := p.Project(v)
			r = math.Max(r, math.Hypot(x, y))
		}
	}
	return r
}

// view maps Ground coordinates to canvas cells. Terminal cells are about
// twice as tall as wide, so x is stretched.
type view struct {
	plane  Plane
	scale  float64
	cx, cy int
}

func newView(p Plane, extent float64, w, h int) view {
	s := math.Min(float64(w)/4, float64(h)/2) / extent * 0.9
	return view{plane: p, scale: s, cx: w / 2, cy: h / 2}
}

func (v view) cell(p spatial.Vec3) (int, int) {
	x, y := v.plane.Project(p)
	return v.cx + int(math.Round(2*x*v.scale)), v.cy - int(math.Round(y*v.scale))
}

func (c *canvas) drawSkeleton(sk skeleton, v view) {
	for b := 1; b < len(sk.origins); b++ {
		px, py := v.cell(sk.origins[sk.parents[b]])
		bx, by := v.cell(sk.origins[b])
		c.line(px, py, bx, by, '·')
		mx, my := v.cell(sk.centers[b])
		c.line(bx, by, mx, my, '│')
	}
	gx, gy := v.cell(spatial.Vec3{})
	c.set(gx, gy, '▼')
	for b := 1; b < len(sk.origins); b++ {
		x, y := v.cell(sk.origins[b])
		c.set(x, y, '+')
	}
	for b := 1; b < len(sk.centers); b++ {
		x, y := v.cell(sk.centers[b])
		c.set(x, y, '⬤')
	}
}
