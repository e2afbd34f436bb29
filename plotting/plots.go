// Package plotting renders diagnostic figures for fitted choice models:
// MCMC trace plots, posterior histograms and the k-means elbow curve.
// The output format follows the file extension (.png, .svg, .pdf).
package plotting

import (
	"fmt"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/YuminosukeSato/gochoice/bayes"
	"github.com/YuminosukeSato/gochoice/pkg/errors"
)

const (
	plotWidth  = 6 * vg.Inch
	plotHeight = 4 * vg.Inch

	// histBins is the bin count for posterior histograms.
	histBins = 40
)

func checkTraceParam(trace *bayes.Trace, param int) error {
	if trace == nil || trace.NumChains() == 0 {
		return errors.NewValidationError("trace", "trace must contain at least one chain", nil)
	}
	if param < 0 || param >= trace.NumParams() {
		return errors.NewValidationError("param",
			fmt.Sprintf("parameter index must be in [0, %d)", trace.NumParams()), param)
	}
	return nil
}

// SaveTracePlot writes the sampled values of one parameter against iteration,
// one line per chain. Well-mixed chains overlap as a fuzzy band; a chain
// trending or stuck on its own level is immediately visible.
func SaveTracePlot(trace *bayes.Trace, param int, title, path string) error {
	if err := checkTraceParam(trace, param); err != nil {
		return err
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "iteration"
	p.Y.Label.Text = fmt.Sprintf("beta[%d]", param)
	p.Add(plotter.NewGrid())

	for c := 0; c < trace.NumChains(); c++ {
		series := trace.Series(c, param)
		xys := make(plotter.XYs, len(series))
		for i, v := range series {
			xys[i].X = float64(i)
			xys[i].Y = v
		}
		line, err := plotter.NewLine(xys)
		if err != nil {
			return errors.Wrapf(err, "building trace line for chain %d", c)
		}
		line.Color = plotutil.Color(c)
		p.Add(line)
		p.Legend.Add(fmt.Sprintf("chain %d", c), line)
	}
	p.Legend.Top = true

	if err := p.Save(plotWidth, plotHeight, path); err != nil {
		return errors.Wrapf(err, "saving trace plot to %s", path)
	}
	return nil
}

// SavePosteriorHist writes a histogram of the pooled posterior draws for one
// parameter, normalized to unit area so it reads as a density.
func SavePosteriorHist(trace *bayes.Trace, param int, title, path string) error {
	if err := checkTraceParam(trace, param); err != nil {
		return err
	}

	h, err := plotter.NewHist(plotter.Values(trace.Pooled(param)), histBins)
	if err != nil {
		return errors.Wrap(err, "building posterior histogram")
	}
	h.Normalize(1)
	h.FillColor = plotutil.Color(2)

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = fmt.Sprintf("beta[%d]", param)
	p.Y.Label.Text = "density"
	p.Add(h)

	if err := p.Save(plotWidth, plotHeight, path); err != nil {
		return errors.Wrapf(err, "saving posterior histogram to %s", path)
	}
	return nil
}

// SaveElbowPlot writes within-cluster inertia against the number of clusters.
// The elbow, where the curve stops dropping steeply, suggests a workable k.
func SaveElbowPlot(ks []int, inertias []float64, path string) error {
	if len(ks) == 0 {
		return errors.Wrap(errors.ErrEmptyData, "elbow plot needs at least one k")
	}
	if len(ks) != len(inertias) {
		return errors.NewDimensionError("SaveElbowPlot", len(ks), len(inertias), 0)
	}

	xys := make(plotter.XYs, len(ks))
	for i, k := range ks {
		xys[i].X = float64(k)
		xys[i].Y = inertias[i]
	}
	line, points, err := plotter.NewLinePoints(xys)
	if err != nil {
		return errors.Wrap(err, "building elbow curve")
	}
	line.Color = plotutil.Color(0)
	points.Color = plotutil.Color(0)

	p := plot.New()
	p.Title.Text = "k-means elbow"
	p.X.Label.Text = "clusters k"
	p.Y.Label.Text = "inertia"
	p.Add(plotter.NewGrid(), line, points)

	if err := p.Save(plotWidth, plotHeight, path); err != nil {
		return errors.Wrapf(err, "saving elbow plot to %s", path)
	}
	return nil
}
