package tui

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/san-kum/mbsim/internal/integrators"
	"github.com/san-kum/mbsim/internal/matter"
)

const (
	width       = 70
	height      = 20
	clearScreen = "\033[2J\033[H"
	hideCursor  = "\033[?25l"
	showCursor  = "\033[?25h"
)

// LiveRenderer draws the mechanism to a terminal as the simulator steps.
// It implements sim.Observer.
type LiveRenderer struct {
	model     string
	sys       *matter.Subsystem
	plane     Plane
	frameRate int
	lastFrame time.Time
	canvas    *canvas
	extent    float64
	trail     []struct{ x, y int }
	out       io.Writer
	realtime  bool
	started   time.Time
}

func NewLiveRenderer(model string, sys *matter.Subsystem, frameRate int) *LiveRenderer {
	if frameRate <= 0 {
		frameRate = 30
	}
	return &LiveRenderer{
		model:     model,
		sys:       sys,
		plane:     PlaneFor(model),
		frameRate: frameRate,
		canvas:    newCanvas(width, height),
		trail:     make([]struct{ x, y int }, 0, 50),
		out:       os.Stdout,
	}
}

// SetOutput redirects frames, mostly for tests.
func (r *LiveRenderer) SetOutput(w io.Writer) { r.out = w }

// SetRealtime makes OnStep hold the simulation back to wall-clock speed.
func (r *LiveRenderer) SetRealtime(on bool) { r.realtime = on }

func (r *LiveRenderer) OnStep(s *matter.State, step integrators.StepResult) {
	if r.realtime {
		if ahead := time.Duration(s.Time()*float64(time.Second)) - time.Since(r.started); ahead > 0 {
			time.Sleep(ahead)
		}
	}
	if time.Since(r.lastFrame) < time.Second/time.Duration(r.frameRate) {
		return
	}
	r.lastFrame = time.Now()

	sk, err := poseOf(r.sys, s)
	if err != nil {
		return
	}
	// The scale only grows so the picture does not breathe.
	if e := sk.extent(r.plane); e > r.extent {
		r.extent = e
	}
	v := newView(r.plane, r.extent, width, height)

	r.canvas.clear()
	for _, p := range r.trail {
		r.canvas.set(p.x, p.y, '∘')
	}
	r.canvas.drawSkeleton(sk, v)

	if n := len(sk.centers); n > 1 {
		x, y := v.cell(sk.centers[n-1])
		r.trail = append(r.trail, struct{ x, y int }{x, y})
		if len(r.trail) > 50 {
			r.trail = r.trail[1:]
		}
	}
	r.render(s, step)
}

func (r *LiveRenderer) render(s *matter.State, step integrators.StepResult) {
	var b strings.Builder
	b.WriteString(clearScreen)
	fmt.Fprintf(&b, "  %s  t=%.2fs\n", r.model, s.Time())
	b.WriteString("  " + strings.Repeat("-", width) + "\n")
	for _, row := range r.canvas.cells {
		b.WriteString("  ")
		b.WriteString(string(row))
		b.WriteString("\n")
	}
	b.WriteString("  " + strings.Repeat("-", width) + "\n")

	var line strings.Builder
	line.WriteString("  ")
	for i, q := range s.Q() {
		if i >= 4 {
			break
		}
		fmt.Fprintf(&line, "q%d=%.2f ", i, q)
	}
	if r.sys.NConstraints() > 0 {
		fmt.Fprintf(&line, " |qerr|=%.1e", step.Position.FinalNorm)
	}
	b.WriteString(line.String() + "\n")

	fmt.Fprint(r.out, b.String())
}

func (r *LiveRenderer) Start() {
	r.started = time.Now()
	fmt.Fprint(r.out, hideCursor)
}
func (r *LiveRenderer) Stop()  { fmt.Fprint(r.out, showCursor) }
