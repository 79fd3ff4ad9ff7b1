package viz

import (
	"fmt"
	"strings"

	"github.com/guptarohit/asciigraph"

	"github.com/san-kum/plasmactl/internal/dynamo"
	"github.com/san-kum/plasmactl/internal/metrics"
)

// TerminalReport renders a recorded run as stacked ASCII charts for
// quick inspection without leaving the shell.
func TerminalReport(res *dynamo.Result, width, height int) string {
	if width <= 0 {
		width = 70
	}
	if height <= 0 {
		height = 8
	}

	var s strings.Builder

	energy := metrics.EnergySeries(res.States)
	if len(energy) > 1 {
		s.WriteString(asciigraph.Plot(energy,
			asciigraph.Height(height), asciigraph.Width(width),
			asciigraph.Caption("Perturbation energy")))
		s.WriteString("\n\n")
	}

	for i := 0; i < stateDim(res); i++ {
		series := channel(res.States, i)
		s.WriteString(asciigraph.Plot(series,
			asciigraph.Height(height/2), asciigraph.Width(width),
			asciigraph.Caption(fmt.Sprintf("x%d", i))))
		s.WriteString("\n\n")
	}

	power := metrics.PowerSeries(res.Controls)
	if len(power) > 1 {
		s.WriteString(asciigraph.Plot(power,
			asciigraph.Height(height/2), asciigraph.Width(width),
			asciigraph.Caption("Control power")))
		s.WriteString("\n")
	}

	return s.String()
}

func stateDim(res *dynamo.Result) int {
	if len(res.States) == 0 {
		return 0
	}
	return len(res.States[0])
}

func channel(states []dynamo.State, i int) []float64 {
	out := make([]float64, len(states))
	for k, s := range states {
		if i < len(s) {
			out[k] = s[i]
		}
	}
	return out
}
