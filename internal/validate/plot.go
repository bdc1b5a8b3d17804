package validate

import (
	"context"
	"image/color"
	"math"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// Renderer turns a Series into an artifact and returns its path.
type Renderer interface {
	Render(ctx context.Context, s Series) (string, error)
}

// Legend labels of the two density curves.
const (
	BeforeLabel = "Before (Raw)"
	AfterLabel  = "After (MICE)"
)

var (
	beforeColor = color.NRGBA{R: 214, G: 39, B: 40, A: 255}
	afterColor  = color.NRGBA{R: 31, G: 119, B: 180, A: 255}
)

// fillAlpha is the opacity of the area under each curve.
const fillAlpha = 80

// fillColor returns c at fill opacity. NRGBA is not premultiplied, so
// lowering A keeps the hue.
func fillColor(c color.NRGBA) color.NRGBA {
	c.A = fillAlpha
	return c
}

// DensityPlot renders overlaid kernel density curves as a PNG named
// {column}_validation.png under Dir.
type DensityPlot struct {
	Dir    string
	Width  vg.Length // default 10in
	Height vg.Length // default 6in
}

// Path returns where the plot for column is written.
func (d DensityPlot) Path(column string) string {
	return filepath.Join(d.Dir, column+"_validation.png")
}

// Render draws the before and after densities of s. A series with fewer
// than two distinct values has no density and is left out of the plot.
func (d DensityPlot) Render(ctx context.Context, s Series) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", eris.Wrap(err, "validate: render canceled")
	}

	p := plot.New()
	p.Title.Text = "Distribution Validation for " + s.Column
	p.X.Label.Text = s.Column
	p.Y.Label.Text = "Density"
	p.Legend.Top = true

	bwBefore, bwAfter := scottBandwidth(s.Before), scottBandwidth(s.After)
	grid := kdeGrid(math.Max(bwBefore, bwAfter), s.Before, s.After)

	for _, c := range []struct {
		label string
		data  []float64
		bw    float64
		color color.NRGBA
	}{
		{BeforeLabel, s.Before, bwBefore, beforeColor},
		{AfterLabel, s.After, bwAfter, afterColor},
	} {
		if c.bw == 0 || len(grid) == 0 {
			continue
		}
		density := gaussianKDE(c.data, grid, c.bw)
		pts := make(plotter.XYs, len(grid))
		for i := range grid {
			pts[i].X = grid[i]
			pts[i].Y = density[i]
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return "", eris.Wrapf(err, "validate: %s curve", c.label)
		}
		line.LineStyle.Color = c.color
		line.LineStyle.Width = vg.Points(1.5)
		line.FillColor = fillColor(c.color)
		p.Add(line)
		p.Legend.Add(c.label, line)
	}

	w, h := d.Width, d.Height
	if w == 0 {
		w = 10 * vg.Inch
	}
	if h == 0 {
		h = 6 * vg.Inch
	}
	if err := os.MkdirAll(d.Dir, 0o755); err != nil {
		return "", eris.Wrapf(err, "validate: create %s", d.Dir)
	}
	path := d.Path(s.Column)
	if err := p.Save(w, h, path); err != nil {
		return "", eris.Wrapf(err, "validate: save %s", path)
	}
	return path, nil
}
