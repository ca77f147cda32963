// Package export renders simulated motion to files outside the terminal.
package export

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/san-kum/mbsim/internal/analysis"
	"github.com/san-kum/mbsim/internal/integrators"
	"github.com/san-kum/mbsim/internal/matter"
	"github.com/san-kum/mbsim/internal/spatial"
)

// Projection maps a Ground point onto the drawing plane.
type Projection func(spatial.Vec3) (float64, float64)

// Tracer records the path of one station on one body. It implements
// sim.Observer.
type Tracer struct {
	sys     *matter.Subsystem
	body    int
	station spatial.Vec3
	project Projection

	Points []analysis.Point
	Err    error
}

func NewTracer(sys *matter.Subsystem, body int, station spatial.Vec3, project Projection) *Tracer {
	return &Tracer{sys: sys, body: body, station: station, project: project}
}

func (t *Tracer) OnStep(s *matter.State, _ integrators.StepResult) {
	if t.Err != nil {
		return
	}
	p, err := t.sys.CalcStationLocation(s, t.body, t.station)
	if err != nil {
		t.Err = err
		return
	}
	x, y := t.project(p)
	t.Points = append(t.Points, analysis.Point{X: x, Y: y})
}

// Pose returns the segments joining each body's origin to its parent's, as
// drawn over the trace.
func Pose(sys *matter.Subsystem, s *matter.State, project Projection) ([][2]analysis.Point, error) {
	var segs [][2]analysis.Point
	for b := 1; b < sys.NBodies(); b++ {
		parent, err := sys.Parent(b)
		if err != nil {
			return nil, err
		}
		xb, err := s.BodyTransform(b)
		if err != nil {
			return nil, err
		}
		xp, err := s.BodyTransform(parent)
		if err != nil {
			return nil, err
		}
		px, py := project(xp.P)
		bx, by := project(xb.P)
		segs = append(segs, [2]analysis.Point{{X: px, Y: py}, {X: bx, Y: by}})
	}
	return segs, nil
}

// TrajectoryToSVG draws a traced path, and optionally a pose over it, fitted
// to a width by height canvas with y up.
func TrajectoryToSVG(points []analysis.Point, pose [][2]analysis.Point, width, height int, strokeColor string) (string, error) {
	if len(points) < 2 {
		return "", errors.Errorf("export: need at least 2 points, got %d", len(points))
	}
	all := append([]analysis.Point(nil), points...)
	for _, seg := range pose {
		all = append(all, seg[0], seg[1])
	}
	portrait := analysis.PhasePortrait{Points: all}
	minX, maxX, minY, maxY := portrait.Bounds()
	rangeX, rangeY := maxX-minX, maxY-minY
	toSVG := func(p analysis.Point) (float64, float64) {
		return (p.X - minX) / rangeX * float64(width), float64(height) - (p.Y-minY)/rangeY*float64(height)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, `<?xml version="1.0" encoding="UTF-8"?>
<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">
<rect width="100%%" height="100%%" fill="#0a0a0a"/>
<path fill="none" stroke="%s" stroke-width="1.5" d="M`,
		width, height, width, height, strokeColor)
	for i, p := range points {
		x, y := toSVG(p)
		if i == 0 {
			fmt.Fprintf(&sb, "%.1f,%.1f", x, y)
		} else {
			fmt.Fprintf(&sb, " L%.1f,%.1f", x, y)
		}
	}
	sb.WriteString("\"/>\n")

	if len(pose) > 0 {
		sb.WriteString(`<g stroke="#e0e0e0" stroke-width="3" stroke-linecap="round">` + "\n")
		for _, seg := range pose {
			x0, y0 := toSVG(seg[0])
			x1, y1 := toSVG(seg[1])
			fmt.Fprintf(&sb, "<line x1=\"%.1f\" y1=\"%.1f\" x2=\"%.1f\" y2=\"%.1f\"/>\n", x0, y0, x1, y1)
		}
		sb.WriteString("</g>\n")
	}
	sb.WriteString("</svg>\n")
	return sb.String(), nil
}
