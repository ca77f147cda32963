package tui

import (
	"bytes"
	"math"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/san-kum/mbsim/internal/integrators"
	"github.com/san-kum/mbsim/internal/models"
	"github.com/san-kum/mbsim/internal/spatial"
	"github.com/san-kum/mbsim/internal/stage"
)

func TestCanvasLine(t *testing.T) {
	c := newCanvas(10, 5)
	c.line(0, 0, 9, 4, '*')
	assert.Equal(t, '*', c.cells[0][0])
	assert.Equal(t, '*', c.cells[4][9])
	c.set(-1, 2, 'x')
	c.set(10, 2, 'x')
	assert.NotContains(t, c.String(), "x")
	assert.Equal(t, 5, strings.Count(c.String(), "\n"))
}

func TestPoseOfPendulum(t *testing.T) {
	m, err := models.New("pendulum", map[string]float64{"length": 2, "theta0": 0})
	require.NoError(t, err)
	s := m.NewState()
	require.NoError(t, m.System.Realize(s, stage.Position))

	sk, err := poseOf(m.System, s)
	require.NoError(t, err)
	require.Len(t, sk.centers, m.System.NBodies())

	bob := sk.centers[len(sk.centers)-1]
	assert.InDelta(t, 2, bob.Norm(), 1e-9)
	assert.InDelta(t, -2, bob.Y, 1e-9)
	assert.InDelta(t, 2, sk.extent(PlaneXY), 1e-9)

	v := newView(PlaneXY, 2, 40, 20)
	x, y := v.cell(bob)
	assert.Equal(t, 20, x)
	assert.Greater(t, y, 10)
	gx, gy := v.cell(spatial.Vec3{})
	assert.Equal(t, 20, gx)
	assert.Equal(t, 10, gy)
}

func TestLiveRendererDrawsFrame(t *testing.T) {
	m, err := models.New("four_bar", nil)
	require.NoError(t, err)
	s := m.NewState()
	require.NoError(t, m.System.Realize(s, stage.Velocity))

	var out bytes.Buffer
	r := NewLiveRenderer("four_bar", m.System, 1000)
	r.SetOutput(&out)
	r.Start()
	r.OnStep(s, integrators.StepResult{Accepted: true})
	r.Stop()

	frame := out.String()
	assert.Contains(t, frame, hideCursor)
	assert.Contains(t, frame, "four_bar")
	assert.Contains(t, frame, "⬤")
	assert.Contains(t, frame, "|qerr|")
	assert.True(t, strings.HasSuffix(frame, showCursor))
}

func TestPlaneFor(t *testing.T) {
	assert.Equal(t, PlaneXZ, PlaneFor("spinning_top"))
	assert.Equal(t, PlaneXY, PlaneFor("pendulum"))
	x, y := PlaneXZ.Project(spatial.Vec3{X: 1, Y: 2, Z: 3})
	assert.Equal(t, 1.0, x)
	assert.Equal(t, 3.0, y)
}

func TestNudge(t *testing.T) {
	assert.Equal(t, 0.1, nudge(0))
	assert.Equal(t, 0.1, nudge(-0.5))
	assert.InDelta(t, 1, nudge(25), 1e-12)
	assert.InDelta(t, 0.1, nudge(9.81), 1e-12)
}

func press(t *testing.T, m tea.Model, keys ...string) tea.Model {
	t.Helper()
	for _, k := range keys {
		var msg tea.KeyMsg
		switch k {
		case "enter":
			msg = tea.KeyMsg{Type: tea.KeyEnter}
		case "down":
			msg = tea.KeyMsg{Type: tea.KeyDown}
		default:
			msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)}
		}
		m, _ = m.Update(msg)
	}
	return m
}

func TestInteractiveFlow(t *testing.T) {
	var m tea.Model = *NewInteractiveApp()
	assert.Contains(t, m.View(), "pendulum")

	m = press(t, m, "enter")
	a := m.(app)
	require.Equal(t, screenConfig, a.screen)
	assert.Contains(t, a.paramNames, "dt")
	assert.Contains(t, a.View(), a.selected)

	m = press(t, m, "s")
	a = m.(app)
	require.Equal(t, screenSim, a.screen)
	require.NoError(t, a.err)
	require.NotNil(t, a.st)

	for i := 0; i < 5; i++ {
		m, _ = m.Update(tickMsg(time.Now()))
	}
	a = m.(app)
	assert.Greater(t, a.st.Time(), 0.0)
	assert.NotEmpty(t, a.energy)
	assert.False(t, math.IsNaN(a.energy[len(a.energy)-1]))
	assert.Contains(t, a.View(), "KE")

	m = press(t, m, " ")
	assert.True(t, m.(app).paused)
	m = press(t, m, "q")
	a = m.(app)
	assert.Equal(t, screenMenu, a.screen)
	assert.Nil(t, a.st)
}
