package tui

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"
	"github.com/pkg/errors"

	"github.com/san-kum/mbsim/internal/integrators"
	"github.com/san-kum/mbsim/internal/matter"
	"github.com/san-kum/mbsim/internal/models"
	"github.com/san-kum/mbsim/internal/stage"
)

var (
	cyan    = lipgloss.NewStyle().Foreground(lipgloss.Color("86"))
	white   = lipgloss.NewStyle().Foreground(lipgloss.Color("255"))
	dim     = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))
	dimmer  = lipgloss.NewStyle().Foreground(lipgloss.Color("238"))
	green   = lipgloss.NewStyle().Foreground(lipgloss.Color("82"))
	yellow  = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	magenta = lipgloss.NewStyle().Foreground(lipgloss.Color("213"))
	red     = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
)

type screen int

const (
	screenMenu screen = iota
	screenConfig
	screenSim
)

const historyLen = 120

type app struct {
	screen   screen
	cursor   int
	names    []string
	selected string

	params      map[string]float64
	paramNames  []string
	paramCursor int
	editing     bool
	editBuf     string
	integrator  int

	running bool
	paused  bool
	mdl     *models.Model
	integ   integrators.Integrator
	st      *matter.State
	dt      float64
	speed   float64
	extent  float64
	e0      float64
	energy  []float64
	failed  int
	err     error

	lastFrame time.Time
	fps       float64

	width  int
	height int
}

func NewInteractiveApp() *app {
	return &app{
		screen: screenMenu,
		names:  models.Names(),
		speed:  1,
		width:  80,
		height: 24,
	}
}

func (m app) Init() tea.Cmd { return nil }

type tickMsg time.Time

func tick() tea.Cmd {
	return tea.Tick(16*time.Millisecond, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m app) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil
	case tickMsg:
		if m.screen != screenSim {
			return m, nil
		}
		if m.running && !m.paused && m.st != nil {
			now := time.Now()
			if !m.lastFrame.IsZero() {
				if d := now.Sub(m.lastFrame).Seconds(); d > 0 {
					m.fps = 1 / d
				}
			}
			m.lastFrame = now
			steps := int(m.speed)
			if steps < 1 {
				steps = 1
			}
			for i := 0; i < steps && !m.paused; i++ {
				m.step()
			}
			// Grow the view scale only, so the picture does not breathe.
			if sk, err := poseOf(m.mdl.System, m.st); err == nil {
				m.extent = math.Max(m.extent, sk.extent(PlaneFor(m.selected)))
			}
		}
		if m.running {
			return m, tick()
		}
	}
	return m, nil
}

func (m app) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "ctrl+c" {
		return m, tea.Quit
	}
	switch m.screen {
	case screenMenu:
		return m.menuKey(msg)
	case screenConfig:
		return m.configKey(msg)
	case screenSim:
		return m.simKey(msg)
	}
	return m, nil
}

func (m app) menuKey(msg tea.KeyMsg) (app, tea.Cmd) {
	switch msg.String() {
	case "q":
		return m, tea.Quit
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.names)-1 {
			m.cursor++
		}
	case "enter", " ":
		m.selected = m.names[m.cursor]
		m.screen = screenConfig
		m.paramCursor = 0
		m.loadParams()
	}
	return m, nil
}

func (m app) configKey(msg tea.KeyMsg) (app, tea.Cmd) {
	if m.editing {
		switch msg.String() {
		case "enter":
			if v, err := strconv.ParseFloat(m.editBuf, 64); err == nil {
				m.params[m.paramNames[m.paramCursor]] = v
			}
			m.editing = false
			m.editBuf = ""
		case "esc":
			m.editing = false
			m.editBuf = ""
		case "backspace":
			if len(m.editBuf) > 0 {
				m.editBuf = m.editBuf[:len(m.editBuf)-1]
			}
		default:
			if s := msg.String(); len(s) == 1 {
				c := s[0]
				if (c >= '0' && c <= '9') || c == '.' || c == '-' || c == 'e' {
					m.editBuf += s
				}
			}
		}
		return m, nil
	}

	name := m.paramNames[m.paramCursor]
	switch msg.String() {
	case "q", "esc":
		m.screen = screenMenu
		m.err = nil
	case "up", "k":
		if m.paramCursor > 0 {
			m.paramCursor--
		}
	case "down", "j":
		if m.paramCursor < len(m.paramNames)-1 {
			m.paramCursor++
		}
	case "enter", " ":
		m.editing = true
		m.editBuf = strconv.FormatFloat(m.params[name], 'g', -1, 64)
	case "left", "h":
		m.params[name] -= nudge(m.params[name])
	case "right", "l":
		m.params[name] += nudge(m.params[name])
	case "i":
		m.integrator = (m.integrator + 1) % len(integrators.Names())
	case "s":
		if err := m.start(); err != nil {
			m.err = err
			return m, nil
		}
		m.screen = screenSim
		return m, tea.Batch(tea.ClearScreen, tick())
	}
	return m, nil
}

func (m app) simKey(msg tea.KeyMsg) (app, tea.Cmd) {
	switch msg.String() {
	case "q", "esc":
		m.running = false
		m.screen = screenMenu
		m.reset()
		return m, tea.ClearScreen
	case " ", "p":
		m.paused = !m.paused
	case "r":
		if err := m.start(); err != nil {
			m.err = err
		}
		return m, tea.ClearScreen
	case "c":
		m.running = false
		m.screen = screenConfig
		m.reset()
	case "+", "=":
		m.speed = math.Min(m.speed*2, 16)
	case "-", "_":
		m.speed = math.Max(m.speed/2, 0.25)
	case "0":
		m.speed = 1
	}
	return m, nil
}

// nudge is a tenth of the value's magnitude, or 0.1 near zero.
func nudge(v float64) float64 {
	if math.Abs(v) < 1 {
		return 0.1
	}
	return math.Pow(10, math.Floor(math.Log10(math.Abs(v)))-1)
}

func (m *app) loadParams() {
	defaults, err := models.Defaults(m.selected)
	if err != nil {
		m.err = err
		return
	}
	m.params = map[string]float64{"dt": 0.01, "duration": 30}
	m.paramNames = m.paramNames[:0]
	for k, v := range defaults {
		m.params[k] = v
		m.paramNames = append(m.paramNames, k)
	}
	sort.Strings(m.paramNames)
	m.paramNames = append(m.paramNames, "dt", "duration")
}

func (m *app) start() error {
	overrides := make(map[string]float64, len(m.params))
	for k, v := range m.params {
		if k != "dt" && k != "duration" {
			overrides[k] = v
		}
	}
	mdl, err := models.New(m.selected, overrides)
	if err != nil {
		return err
	}
	integ, err := integrators.New(integrators.Names()[m.integrator])
	if err != nil {
		return err
	}
	st := mdl.NewState()
	if mdl.System.NConstraints() > 0 {
		if err := mdl.System.Realize(st, stage.Position); err != nil {
			return err
		}
		if _, err := mdl.System.ProjectQ(st, nil, 1e-10, 1e-12); err != nil {
			return err
		}
	}
	if err := mdl.System.Realize(st, stage.Report); err != nil {
		return err
	}
	e0, err := mdl.System.TotalEnergy(st)
	if err != nil {
		return err
	}

	m.mdl, m.integ, m.st = mdl, integ, st
	m.dt = m.params["dt"]
	if m.dt <= 0 {
		m.dt = 0.01
	}
	m.e0 = e0
	m.energy = make([]float64, 0, historyLen)
	m.extent = 0
	m.failed = 0
	m.err = nil
	m.speed = 1
	m.lastFrame = time.Time{}
	m.running = true
	m.paused = false
	return nil
}

func (m *app) reset() {
	m.mdl = nil
	m.integ = nil
	m.st = nil
	m.energy = nil
}

func (m *app) step() {
	if m.st.Time() >= m.params["duration"] {
		m.paused = true
		return
	}
	res, err := m.integ.Step(m.mdl.System, m.st, m.dt)
	if err == nil && !m.st.IsFinite() {
		err = errors.Errorf("state diverged at t=%.3f", m.st.Time())
	}
	if err != nil {
		m.err = err
		m.paused = true
		return
	}
	if !res.Converged() {
		m.failed++
	}
	if err := m.mdl.System.Realize(m.st, stage.Report); err == nil {
		if e, err := m.mdl.System.TotalEnergy(m.st); err == nil {
			m.energy = append(m.energy, e)
			if len(m.energy) > historyLen {
				m.energy = m.energy[1:]
			}
		}
	}
}

func (m app) View() string {
	switch m.screen {
	case screenMenu:
		return m.viewMenu()
	case screenConfig:
		return m.viewConfig()
	case screenSim:
		return m.viewSim()
	}
	return ""
}

func (m app) viewMenu() string {
	var b strings.Builder
	b.WriteString("\n")
	b.WriteString(dimmer.Render("    ╺━━━━━━━━━━━━━━━━━━━━━━━━╸") + "\n")
	b.WriteString("            " + cyan.Render("m b s i m") + "\n")
	b.WriteString(dimmer.Render("    ╺━━━━━━━━━━━━━━━━━━━━━━━━╸") + "\n\n")

	for i, name := range m.names {
		desc, _ := models.Describe(name)
		if i == m.cursor {
			b.WriteString("      " + cyan.Render("▸ ") + white.Render(fmt.Sprintf("%-16s", name)) + dim.Render(desc) + "\n")
		} else {
			b.WriteString("        " + dim.Render(fmt.Sprintf("%-16s", name)) + dimmer.Render(desc) + "\n")
		}
	}
	b.WriteString("\n" + dim.Render("      ↑↓ select   enter configure   q quit") + "\n")
	return b.String()
}

func (m app) viewConfig() string {
	var b strings.Builder
	desc, _ := models.Describe(m.selected)
	b.WriteString("\n      " + cyan.Render(m.selected) + "  " + dim.Render(desc) + "\n")
	b.WriteString(dimmer.Render("      "+strings.Repeat("─", 30)) + "\n\n")

	for i, name := range m.paramNames {
		val := fmt.Sprintf("%8.3f", m.params[name])
		if m.editing && i == m.paramCursor {
			val = fmt.Sprintf("%8s", m.editBuf+"▋")
		}
		if i == m.paramCursor {
			b.WriteString("      " + cyan.Render("▸ ") + white.Render(fmt.Sprintf("%-10s", name)) + magenta.Render(val) + "\n")
		} else {
			b.WriteString("        " + dim.Render(fmt.Sprintf("%-10s", name)) + dim.Render(val) + "\n")
		}
	}
	b.WriteString("\n        " + dim.Render(fmt.Sprintf("%-10s", "integrator")) + magenta.Render(integrators.Names()[m.integrator]) + "\n")
	if m.err != nil {
		b.WriteString("\n      " + red.Render(m.err.Error()) + "\n")
	}
	b.WriteString("\n" + dim.Render("      ↑↓ select  ←→ adjust  enter edit  i integrator  s start  esc back") + "\n")
	return b.String()
}

func (m app) viewSim() string {
	if m.st == nil {
		return ""
	}
	cw := m.width - 6
	ch := m.height - 16
	if cw < 50 {
		cw = 50
	}
	if ch < 12 {
		ch = 12
	}

	var b strings.Builder
	statusIcon, statusText := green.Render("●"), green.Render("running")
	if m.paused {
		statusIcon, statusText = yellow.Render("○"), yellow.Render("paused")
	}
	fmt.Fprintf(&b, "\n   %s %s  %s  %s\n", statusIcon, cyan.Render(m.selected), statusText, dim.Render(m.integ.Name()))

	duration := m.params["duration"]
	progress := math.Min(m.st.Time()/duration, 1)
	barWidth := 36
	filled := int(progress * float64(barWidth))
	bar := cyan.Render(strings.Repeat("━", filled)) + dimmer.Render(strings.Repeat("─", barWidth-filled))
	fmt.Fprintf(&b, "   %s %s  %s\n\n", bar,
		dim.Render(fmt.Sprintf("%.1fs/%.0fs", m.st.Time(), duration)),
		dim.Render(fmt.Sprintf("%.0ffps", m.fps)))

	c := newCanvas(cw, ch)
	if sk, err := poseOf(m.mdl.System, m.st); err == nil {
		plane := PlaneFor(m.selected)
		c.drawSkeleton(sk, newView(plane, math.Max(m.extent, sk.extent(plane)), cw, ch))
	}
	for _, row := range c.cells {
		b.WriteString("   " + string(row) + "\n")
	}

	sys := m.mdl.System
	if ke, err := sys.KineticEnergy(m.st); err == nil {
		pe, _ := sys.PotentialEnergy(m.st)
		fmt.Fprintf(&b, "\n   %s %.3f  %s %.3f  %s %.3f\n",
			green.Render("KE"), ke, yellow.Render("PE"), pe, dim.Render("drift"), drift(ke+pe, m.e0))
	}
	if sys.NConstraints() > 0 {
		qn, _ := sys.CalcQConstraintNorm(m.st)
		un, _ := sys.CalcUConstraintNorm(m.st)
		fmt.Fprintf(&b, "   %s %.1e  %s %.1e  %s %d\n",
			dim.Render("|qerr|"), qn, dim.Render("|uerr|"), un, dim.Render("unconverged"), m.failed)
	}
	if len(m.energy) > 1 {
		b.WriteString(dim.Render(asciigraph.Plot(m.energy,
			asciigraph.Height(4), asciigraph.Width(cw-12), asciigraph.Offset(3),
			asciigraph.Precision(3), asciigraph.Caption("total energy"))) + "\n")
	}
	if m.err != nil {
		b.WriteString("   " + red.Render(m.err.Error()) + "\n")
	}
	b.WriteString("\n" + dim.Render("   space pause  ±speed  r reset  c config  q quit") + "\n")
	return b.String()
}

func drift(e, e0 float64) float64 {
	if e0 == 0 {
		return math.Abs(e)
	}
	return math.Abs((e - e0) / e0)
}

func RunInteractive() error {
	p := tea.NewProgram(NewInteractiveApp(), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
