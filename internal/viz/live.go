package viz

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"

	"github.com/san-kum/plasmactl/internal/dynamo"
	"github.com/san-kum/plasmactl/internal/model"
	"github.com/san-kum/plasmactl/internal/mpc"
)

const historyCapacity = 600

var (
	headerStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("86")).Bold(true).MarginBottom(1)
	labelStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Width(16)
	valueStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	alertStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Bold(true)
	fallbackStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	graphStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("49")).Padding(1, 0)
	panelStyle    = lipgloss.NewStyle().Border(lipgloss.NormalBorder()).BorderForeground(lipgloss.Color("240")).Padding(1, 2)
	helpStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("240")).MarginTop(1)
)

type TickMsg time.Time

// Model steps the closed loop live: one control solve and plant advance
// per frame, with the energy trace charted as it evolves.
type Model struct {
	plant   *model.Linear
	ctrl    *mpc.Controller
	bounds  *model.Bounds
	disturb dynamo.Disturbance

	x, xref dynamo.State
	x0      dynamo.State
	u       dynamo.Control
	t, dt   float64

	running     bool
	safetyLimit float64
	tripped     bool

	energyHistory []float64
	powerHistory  []float64
	lastStatus    mpc.Status
}

func NewModel(plant *model.Linear, ctrl *mpc.Controller, bounds *model.Bounds, x0, xref dynamo.State, dt float64) Model {
	return Model{
		plant:         plant,
		ctrl:          ctrl,
		bounds:        bounds,
		x:             x0.Clone(),
		xref:          xref.Clone(),
		x0:            x0.Clone(),
		u:             make(dynamo.Control, plant.ControlDim()),
		dt:            dt,
		running:       true,
		energyHistory: make([]float64, 0, historyCapacity),
		powerHistory:  make([]float64, 0, historyCapacity),
	}
}

func (m *Model) SetDisturbance(f dynamo.Disturbance) { m.disturb = f }
func (m *Model) SetSafetyLimit(limit float64)        { m.safetyLimit = limit }

func (m Model) Init() tea.Cmd {
	return tea.Tick(time.Second/30, func(t time.Time) tea.Msg { return TickMsg(t) })
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case " ":
			if !m.tripped {
				m.running = !m.running
			}
		case "r":
			m.reset()
		}
	case TickMsg:
		if m.running {
			m.step()
		}
		return m, tea.Tick(time.Second/30, func(t time.Time) tea.Msg { return TickMsg(t) })
	}
	return m, nil
}

func (m *Model) step() {
	t := m.t + m.dt

	var dist dynamo.State
	if m.disturb != nil {
		dist = m.disturb(t)
	}

	sol := m.ctrl.Solve(m.x, m.xref)
	m.u = sol.U
	m.lastStatus = sol.Status

	m.x = m.bounds.ClampState(m.plant.Step(m.x, m.u, dist))
	m.t = t

	energy := m.x.Energy()
	power := 0.0
	for _, v := range m.u {
		power += v * v
	}

	m.energyHistory = appendCapped(m.energyHistory, energy)
	m.powerHistory = appendCapped(m.powerHistory, power)

	if m.safetyLimit > 0 && energy > m.safetyLimit {
		m.running = false
		m.tripped = true
	}
}

func appendCapped(hist []float64, v float64) []float64 {
	hist = append(hist, v)
	if len(hist) > historyCapacity {
		hist = hist[1:]
	}
	return hist
}

func (m *Model) reset() {
	m.x = m.x0.Clone()
	m.u = make(dynamo.Control, m.plant.ControlDim())
	m.t = 0
	m.running = true
	m.tripped = false
	m.energyHistory = m.energyHistory[:0]
	m.powerHistory = m.powerHistory[:0]
	m.ctrl.Reset()
}

func (m Model) View() string {
	var s strings.Builder
	s.WriteString(headerStyle.Render("PLASMA CONTROL ROOM") + "\n")

	status := "RUNNING"
	if m.tripped {
		status = alertStyle.Render("SAFETY TRIP")
	} else if !m.running {
		status = "PAUSED"
	}
	s.WriteString(status + "\n")

	if len(m.energyHistory) > 1 {
		chart := asciigraph.Plot(m.energyHistory,
			asciigraph.Height(6), asciigraph.Width(50), asciigraph.Caption("Perturbation energy"))
		s.WriteString(graphStyle.Render(chart) + "\n")
	}
	if len(m.powerHistory) > 1 {
		chart := asciigraph.Plot(m.powerHistory,
			asciigraph.Height(4), asciigraph.Width(50), asciigraph.Caption("Control power"))
		s.WriteString(graphStyle.Render(chart) + "\n")
	}

	s.WriteString(labelStyle.Render("Time") + valueStyle.Render(fmt.Sprintf("%.2fs", m.t)) + "\n")
	s.WriteString(labelStyle.Render("State") + valueStyle.Render(formatVec(m.x)) + "\n")
	s.WriteString(labelStyle.Render("Control") + valueStyle.Render(formatVec(dynamo.State(m.u))) + "\n")
	s.WriteString(labelStyle.Render("Energy") + valueStyle.Render(fmt.Sprintf("%.3f", m.x.Energy())) + "\n")

	solver := valueStyle.Render(m.lastStatus.String())
	if m.lastStatus == mpc.StatusFallback {
		solver = fallbackStyle.Render(m.lastStatus.String())
	}
	s.WriteString(labelStyle.Render("Solver") + solver + "\n")
	s.WriteString(labelStyle.Render("Fallback steps") + valueStyle.Render(fmt.Sprintf("%d", m.ctrl.FallbackSteps())) + "\n")

	s.WriteString(helpStyle.Render("SP:Pause  R:Reset  Q:Quit"))
	return panelStyle.Render(s.String())
}

func formatVec(v dynamo.State) string {
	parts := make([]string, len(v))
	for i, val := range v {
		parts[i] = fmt.Sprintf("%7.3f", val)
	}
	return "[" + strings.Join(parts, " ") + "]"
}
