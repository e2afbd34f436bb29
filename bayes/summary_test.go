package bayes

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/YuminosukeSato/gochoice/pkg/errors"
)

func twoChainTrace(t *testing.T) *Trace {
	t.Helper()
	trace, err := NewTrace([]*Chain{
		{ChainID: 0, Draws: mat.NewDense(4, 1, []float64{1, 2, 3, 4})},
		{ChainID: 1, Draws: mat.NewDense(4, 1, []float64{5, 6, 7, 8})},
	})
	require.NoError(t, err)
	return trace
}

func TestSummarizeKnownDraws(t *testing.T) {
	summary, err := Summarize(twoChainTrace(t), WithParamNames([]string{"theta"}))
	require.NoError(t, err)
	require.Len(t, summary.Params, 1)
	assert.Equal(t, 2, summary.NumChains)
	assert.Equal(t, 4, summary.NumDraws)
	assert.Equal(t, 0.94, summary.Mass)

	p := summary.Params[0]
	assert.Equal(t, "theta", p.Name)
	assert.InDelta(t, 4.5, p.Mean, 1e-12)
	assert.InDelta(t, math.Sqrt(6), p.SD, 1e-12) // sample variance of 1..8 is 6

	// Empirical 3% / 97% quantiles of eight values hit the extremes.
	assert.InDelta(t, 1.0, p.CredLow, 1e-12)
	assert.InDelta(t, 8.0, p.CredHigh, 1e-12)

	// Within-chain variance W = 5/3, between-chain B = 32, so
	// R̂ = sqrt(((3/4)·5/3 + 8) / (5/3)) = sqrt(5.55): the two chains sit in
	// different places and the diagnostic must flag it.
	assert.InDelta(t, math.Sqrt(5.55), p.RHat, 1e-12)

	// Each chain 1,2,3,4: Γ0 = 1 + ρ1 = 1.25, Γ1 < 0, so τ = 1.5 and
	// ESS = 4/1.5 per chain, summed over two chains.
	assert.InDelta(t, 16.0/3.0, p.ESS, 1e-9)
}

func TestSummarizeCredibleMassOption(t *testing.T) {
	summary, err := Summarize(twoChainTrace(t), WithCredibleMass(0.5))
	require.NoError(t, err)

	p := summary.Params[0]
	assert.InDelta(t, 2.0, p.CredLow, 1e-12)  // 25% quantile of 1..8
	assert.InDelta(t, 6.0, p.CredHigh, 1e-12) // 75% quantile of 1..8
	assert.Equal(t, 0.5, summary.Mass)
}

func TestSummarizeIdenticalChains(t *testing.T) {
	trace, err := NewTrace([]*Chain{
		{ChainID: 0, Draws: mat.NewDense(4, 1, []float64{1, 2, 3, 4})},
		{ChainID: 1, Draws: mat.NewDense(4, 1, []float64{1, 2, 3, 4})},
	})
	require.NoError(t, err)

	summary, err := Summarize(trace)
	require.NoError(t, err)

	// Zero between-chain variance: R̂ = sqrt((n−1)/n) < 1.
	assert.InDelta(t, math.Sqrt(0.75), summary.Params[0].RHat, 1e-12)
}

func TestSummarizeSingleChainWarnsOnRHat(t *testing.T) {
	var captured []error
	errors.SetWarningHandler(func(w error) {
		captured = append(captured, w)
	})
	defer errors.SetWarningHandler(nil)

	trace, err := NewTrace([]*Chain{
		{ChainID: 0, Draws: mat.NewDense(4, 2, []float64{1, 10, 2, 20, 3, 30, 4, 40})},
	})
	require.NoError(t, err)

	summary, err := Summarize(trace)
	require.NoError(t, err, "a single chain is a warning, not an error")

	for _, p := range summary.Params {
		assert.True(t, math.IsNaN(p.RHat), "%s R̂ should be NaN for a single chain", p.Name)
		assert.False(t, math.IsNaN(p.Mean))
		assert.False(t, math.IsNaN(p.SD))
	}

	require.Len(t, captured, 1, "one warning per Summarize call")
	var undefWarn *errors.UndefinedMetricWarning
	require.True(t, errors.As(captured[0], &undefWarn))
	assert.Equal(t, "r_hat", undefWarn.Metric)
}

func TestEffectiveSampleSize(t *testing.T) {
	t.Run("short series", func(t *testing.T) {
		assert.Equal(t, 3.0, effectiveSampleSize([]float64{1, 2, 3}))
	})

	t.Run("constant chain", func(t *testing.T) {
		assert.True(t, math.IsNaN(effectiveSampleSize([]float64{2, 2, 2, 2, 2})))
	})

	t.Run("independent draws", func(t *testing.T) {
		src := rand.NewPCG(7, 7)
		norm := distuv.Normal{Mu: 0, Sigma: 1, Src: src}
		data := make([]float64, 400)
		for i := range data {
			data[i] = norm.Rand()
		}
		ess := effectiveSampleSize(data)
		assert.Greater(t, ess, 200.0)
		assert.Less(t, ess, 700.0)
	})

	t.Run("duplicate-heavy chain", func(t *testing.T) {
		// Each value repeated four times, as a rejection-heavy sampler would
		// produce: the effective sample size drops to roughly a quarter.
		src := rand.NewPCG(7, 7)
		norm := distuv.Normal{Mu: 0, Sigma: 1, Src: src}
		data := make([]float64, 400)
		for i := 0; i < 100; i++ {
			v := norm.Rand()
			for j := 0; j < 4; j++ {
				data[i*4+j] = v
			}
		}
		ess := effectiveSampleSize(data)
		assert.Greater(t, ess, 20.0)
		assert.Less(t, ess, 200.0)
	})
}

func TestSummarizeDefaultNames(t *testing.T) {
	trace, err := NewTrace([]*Chain{
		{ChainID: 0, Draws: mat.NewDense(4, 2, nil)},
		{ChainID: 1, Draws: mat.NewDense(4, 2, []float64{1, 1, 2, 2, 3, 3, 4, 4})},
	})
	require.NoError(t, err)

	summary, err := Summarize(trace)
	require.NoError(t, err)
	assert.Equal(t, "beta[0]", summary.Params[0].Name)
	assert.Equal(t, "beta[1]", summary.Params[1].Name)
}

func TestSummarizeValidation(t *testing.T) {
	var validationErr *errors.ValidationError

	_, err := Summarize(nil)
	require.Error(t, err)
	assert.True(t, errors.As(err, &validationErr))

	trace := twoChainTrace(t)

	_, err = Summarize(trace, WithCredibleMass(0))
	require.Error(t, err)
	assert.True(t, errors.As(err, &validationErr))

	_, err = Summarize(trace, WithCredibleMass(1))
	require.Error(t, err)
	assert.True(t, errors.As(err, &validationErr))

	var dimErr *errors.DimensionError
	_, err = Summarize(trace, WithParamNames([]string{"a", "b"}))
	require.Error(t, err)
	require.True(t, errors.As(err, &dimErr))
	assert.Equal(t, 1, dimErr.Expected)
	assert.Equal(t, 2, dimErr.Got)
}

func TestPosteriorSummaryString(t *testing.T) {
	summary, err := Summarize(twoChainTrace(t), WithParamNames([]string{"brand:Netflix"}))
	require.NoError(t, err)

	text := summary.String()
	assert.Contains(t, text, "Posterior summary")
	assert.Contains(t, text, "chains: 2")
	assert.Contains(t, text, "draws per chain: 4")
	assert.Contains(t, text, "credible mass: 94%")
	assert.Contains(t, text, "brand:Netflix")
	assert.Contains(t, text, "r_hat")
	assert.Contains(t, text, "3.0%")
	assert.Contains(t, text, "97.0%")
}
