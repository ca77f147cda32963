package analysis

import (
	"strings"

	"github.com/pkg/errors"
)

type Point struct{ X, Y float64 }

// PhasePortrait is a trajectory projected onto two scalar series, usually a
// generalized coordinate and its speed.
type PhasePortrait struct {
	Points []Point
}

func NewPhasePortrait(xs, ys []float64) (*PhasePortrait, error) {
	if len(xs) != len(ys) {
		return nil, errors.Errorf("analysis: %d x samples, %d y samples", len(xs), len(ys))
	}
	p := &PhasePortrait{Points: make([]Point, len(xs))}
	for i := range xs {
		p.Points[i] = Point{xs[i], ys[i]}
	}
	return p, nil
}

// Bounds returns the padded plot window.
func (p *PhasePortrait) Bounds() (minX, maxX, minY, maxY float64) {
	minX, maxX = p.Points[0].X, p.Points[0].X
	minY, maxY = p.Points[0].Y, p.Points[0].Y
	for _, pt := range p.Points {
		minX = min(minX, pt.X)
		maxX = max(maxX, pt.X)
		minY = min(minY, pt.Y)
		maxY = max(maxY, pt.Y)
	}
	rangeX, rangeY := maxX-minX, maxY-minY
	if rangeX == 0 {
		rangeX = 1
	}
	if rangeY == 0 {
		rangeY = 1
	}
	return minX - rangeX*0.1, maxX + rangeX*0.1, minY - rangeY*0.1, maxY + rangeY*0.1
}

// ASCII renders the portrait. Early samples are drawn '.', middle ones 'o'
// and the last third '●'.
func (p *PhasePortrait) ASCII(width, height int) string {
	if p == nil || len(p.Points) == 0 || width < 2 || height < 2 {
		return ""
	}
	minX, maxX, minY, maxY := p.Bounds()
	rangeX, rangeY := maxX-minX, maxY-minY

	canvas := make([][]rune, height)
	for i := range canvas {
		canvas[i] = []rune(strings.Repeat(" ", width))
	}
	if minX <= 0 && maxX >= 0 {
		col := int(-minX / rangeX * float64(width-1))
		for row := range canvas {
			canvas[row][col] = '│'
		}
	}
	if minY <= 0 && maxY >= 0 {
		row := height - 1 - int(-minY/rangeY*float64(height-1))
		for col := range canvas[row] {
			canvas[row][col] = '─'
		}
	}

	n := len(p.Points)
	for i, pt := range p.Points {
		col := int((pt.X - minX) / rangeX * float64(width-1))
		row := height - 1 - int((pt.Y-minY)/rangeY*float64(height-1))
		if row < 0 || row >= height || col < 0 || col >= width {
			continue
		}
		switch {
		case i < n/3:
			canvas[row][col] = '.'
		case i < 2*n/3:
			canvas[row][col] = 'o'
		default:
			canvas[row][col] = '●'
		}
	}

	var sb strings.Builder
	for _, row := range canvas {
		sb.WriteString(string(row))
		sb.WriteRune('\n')
	}
	return sb.String()
}
