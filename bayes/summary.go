package bayes

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"gonum.org/v1/gonum/stat"

	"github.com/YuminosukeSato/gochoice/pkg/errors"
)

// SummaryOption は設定オプション
type SummaryOption func(*summaryConfig)

type summaryConfig struct {
	mass  float64
	names []string
}

// WithCredibleMass sets the central credible-interval mass (default 0.94).
func WithCredibleMass(mass float64) SummaryOption {
	return func(c *summaryConfig) {
		c.mass = mass
	}
}

// WithParamNames labels the parameters in declaration order, typically with
// the dataset's column names.
func WithParamNames(names []string) SummaryOption {
	return func(c *summaryConfig) {
		c.names = append([]string(nil), names...)
	}
}

// ParamSummary is the posterior summary of a single parameter.
type ParamSummary struct {
	Name     string
	Mean     float64
	SD       float64
	CredLow  float64
	CredHigh float64
	ESS      float64 // effective sample size, summed over chains
	RHat     float64 // potential scale reduction; NaN for a single chain
}

// PosteriorSummary is the per-parameter summary table of a trace.
type PosteriorSummary struct {
	Params    []ParamSummary
	Mass      float64
	NumChains int
	NumDraws  int
}

// Summarize computes posterior mean, standard deviation, central credible
// interval, effective sample size and R̂ for every parameter of the trace.
// R̂ needs at least two chains; with a single chain it is NaN and an
// UndefinedMetricWarning is emitted instead of an error.
func Summarize(trace *Trace, options ...SummaryOption) (*PosteriorSummary, error) {
	if trace == nil || trace.NumChains() == 0 {
		return nil, errors.NewValidationError("trace", "trace must contain at least one chain", nil)
	}
	cfg := summaryConfig{mass: 0.94}
	for _, opt := range options {
		opt(&cfg)
	}
	if cfg.mass <= 0 || cfg.mass >= 1 {
		return nil, errors.NewValidationError("mass",
			fmt.Sprintf("credible mass must be in (0, 1), got %g", cfg.mass), cfg.mass)
	}
	numParams := trace.NumParams()
	if cfg.names != nil && len(cfg.names) != numParams {
		return nil, errors.NewDimensionError("Summarize", numParams, len(cfg.names), 1)
	}

	if trace.NumChains() == 1 {
		errors.Warn(errors.NewUndefinedMetricWarning(
			"r_hat", "a single chain (potential scale reduction needs at least two)", math.NaN()))
	}

	lowP := (1 - cfg.mass) / 2
	highP := 1 - lowP

	params := make([]ParamSummary, numParams)
	for j := 0; j < numParams; j++ {
		pooled := trace.Pooled(j)
		sorted := append([]float64(nil), pooled...)
		sort.Float64s(sorted)

		ess := 0.0
		for c := 0; c < trace.NumChains(); c++ {
			ess += effectiveSampleSize(trace.Series(c, j))
		}

		name := fmt.Sprintf("beta[%d]", j)
		if cfg.names != nil {
			name = cfg.names[j]
		}
		params[j] = ParamSummary{
			Name:     name,
			Mean:     stat.Mean(pooled, nil),
			SD:       stat.StdDev(pooled, nil),
			CredLow:  stat.Quantile(lowP, stat.Empirical, sorted, nil),
			CredHigh: stat.Quantile(highP, stat.Empirical, sorted, nil),
			ESS:      ess,
			RHat:     gelmanRubin(trace, j),
		}
	}

	return &PosteriorSummary{
		Params:    params,
		Mass:      cfg.mass,
		NumChains: trace.NumChains(),
		NumDraws:  trace.NumDraws(),
	}, nil
}

// effectiveSampleSize estimates one chain's effective sample size with
// Geyer's initial positive sequence: n / (−1 + 2 Σ Γ_m) where
// Γ_m = ρ_{2m} + ρ_{2m+1}, summed while the pair stays positive. A constant
// chain has no defined ESS and yields NaN.
func effectiveSampleSize(series []float64) float64 {
	n := len(series)
	if n < 4 {
		return float64(n)
	}
	mean := stat.Mean(series, nil)
	centered := make([]float64, n)
	for i, v := range series {
		centered[i] = v - mean
	}
	acov := func(lag int) float64 {
		s := 0.0
		for i := 0; i+lag < n; i++ {
			s += centered[i] * centered[i+lag]
		}
		return s / float64(n)
	}
	c0 := acov(0)
	if c0 == 0 {
		return math.NaN()
	}

	tau := -1.0
	for m := 0; 2*m+1 < n; m++ {
		gamma := (acov(2*m) + acov(2*m+1)) / c0
		if gamma <= 0 {
			break
		}
		tau += 2 * gamma
	}
	if tau <= 0 {
		return float64(n)
	}
	return float64(n) / tau
}

// gelmanRubin computes the classic potential scale reduction across whole
// chains: sqrt(((n−1)/n·W + B/n) / W).
func gelmanRubin(trace *Trace, param int) float64 {
	numChains := trace.NumChains()
	if numChains < 2 {
		return math.NaN()
	}
	n := float64(trace.NumDraws())
	means := make([]float64, numChains)
	vars := make([]float64, numChains)
	for c := 0; c < numChains; c++ {
		series := trace.Series(c, param)
		means[c] = stat.Mean(series, nil)
		vars[c] = stat.Variance(series, nil)
	}
	within := stat.Mean(vars, nil)
	if within == 0 {
		return math.NaN()
	}
	between := n * stat.Variance(means, nil)
	vhat := (n-1)/n*within + between/n
	return math.Sqrt(vhat / within)
}

// String renders the summary as a fixed-width table.
func (s *PosteriorSummary) String() string {
	nameWidth := len("parameter")
	for _, p := range s.Params {
		if len(p.Name) > nameWidth {
			nameWidth = len(p.Name)
		}
	}
	lowLabel := fmt.Sprintf("%.1f%%", (1-s.Mass)/2*100)
	highLabel := fmt.Sprintf("%.1f%%", (1-(1-s.Mass)/2)*100)

	var b strings.Builder
	fmt.Fprintf(&b, "Posterior summary\n")
	fmt.Fprintf(&b, "chains: %d  draws per chain: %d  credible mass: %.0f%%\n\n",
		s.NumChains, s.NumDraws, s.Mass*100)
	fmt.Fprintf(&b, "%-*s  %9s  %9s  %9s  %9s  %8s  %7s\n",
		nameWidth, "parameter", "mean", "sd", lowLabel, highLabel, "ess", "r_hat")
	for _, p := range s.Params {
		fmt.Fprintf(&b, "%-*s  %9.4f  %9.4f  %9.4f  %9.4f  %8.1f  %7.3f\n",
			nameWidth, p.Name, p.Mean, p.SD, p.CredLow, p.CredHigh, p.ESS, p.RHat)
	}
	return b.String()
}
