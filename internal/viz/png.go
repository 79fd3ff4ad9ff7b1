package viz

import (
	"bufio"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	"github.com/san-kum/plasmactl/internal/dynamo"
	"github.com/san-kum/plasmactl/internal/metrics"
)

// SavePNGReport writes the standard trio of run plots (state channels,
// log-scale energy, control channels) under outDir.
func SavePNGReport(res *dynamo.Result, outDir string) error {
	if len(res.States) == 0 {
		return fmt.Errorf("viz: empty history")
	}

	for i := 0; i < stateDim(res); i++ {
		name := fmt.Sprintf("state_x%d.png", i)
		title := fmt.Sprintf("State x%d(t)", i)
		if err := saveLinePlot(outDir, name, title, "time (s)", fmt.Sprintf("x%d", i),
			res.Times, channel(res.States, i)); err != nil {
			return err
		}
	}

	energy := metrics.EnergySeries(res.States)
	logE := make([]float64, len(energy))
	for i, e := range energy {
		logE[i] = math.Log10(e + 1e-12)
	}
	if err := saveLinePlot(outDir, "energy.png", "Perturbation Energy (log10)",
		"time (s)", "log10 E", res.Times, logE); err != nil {
		return err
	}

	if len(res.Controls) > 0 {
		for i := range res.Controls[0] {
			series := make([]float64, len(res.Controls))
			for k, u := range res.Controls {
				if i < len(u) {
					series[k] = u[i]
				}
			}
			name := fmt.Sprintf("control_u%d.png", i)
			title := fmt.Sprintf("Control u%d(t)", i)
			if err := saveLinePlot(outDir, name, title, "time (s)", fmt.Sprintf("u%d", i),
				res.Times, series); err != nil {
				return err
			}
		}
	}

	return nil
}

func saveLinePlot(outDir, filename, title, xlabel, ylabel string, xs, ys []float64) error {
	if len(xs) != len(ys) || len(xs) == 0 {
		return fmt.Errorf("viz: plot data invalid for %s", filename)
	}
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = xlabel
	p.Y.Label.Text = ylabel
	stylePlot(p)

	pts := make(plotter.XYs, len(xs))
	for i := range xs {
		pts[i].X = xs[i]
		pts[i].Y = ys[i]
	}
	line, err := plotter.NewLine(pts)
	if err != nil {
		return err
	}
	line.LineStyle.Width = vg.Points(2.0)
	p.Add(line, plotter.NewGrid())

	return savePlotPNG(p, 8.0, 5.0, filepath.Join(outDir, filename))
}

func stylePlot(p *plot.Plot) {
	p.Title.TextStyle.Font.Size = vg.Points(16)
	p.Title.Padding = vg.Points(8)

	p.X.Label.TextStyle.Font.Size = vg.Points(13)
	p.Y.Label.TextStyle.Font.Size = vg.Points(13)
	p.X.Label.Padding = vg.Points(6)
	p.Y.Label.Padding = vg.Points(6)

	p.X.Tick.Label.Font.Size = vg.Points(11)
	p.Y.Tick.Label.Font.Size = vg.Points(11)
}

func savePlotPNG(p *plot.Plot, widthIn, heightIn float64, filename string) error {
	if err := os.MkdirAll(filepath.Dir(filename), 0o755); err != nil {
		return err
	}
	w := vg.Length(widthIn) * vg.Inch
	h := vg.Length(heightIn) * vg.Inch

	c := vgimg.NewWith(vgimg.UseWH(w, h), vgimg.UseDPI(150))
	dc := draw.New(c)
	p.Draw(dc)

	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer f.Close()

	bw := bufio.NewWriter(f)
	defer bw.Flush()

	pngc := vgimg.PngCanvas{Canvas: c}
	_, err = pngc.WriteTo(bw)
	return err
}
