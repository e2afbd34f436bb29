package bayes

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/gochoice/choice"
	"github.com/YuminosukeSato/gochoice/datasets"
	"github.com/YuminosukeSato/gochoice/pkg/errors"
)

// smallChoicePanel builds a two-task dataset by hand for exact checks.
func smallChoicePanel(t *testing.T) *choice.ChoiceDataset {
	t.Helper()
	spec := choice.NewUtilitySpec()
	require.NoError(t, spec.AddCategorical("brand", []string{"Netflix", "PrimeVideo", "Hulu"}, "Hulu"))
	require.NoError(t, spec.AddCategorical("ad", []string{"yes", "no"}, "no"))
	require.NoError(t, spec.AddNumeric("price"))

	brands := []string{"Netflix", "PrimeVideo", "Hulu"}
	ads := [][3]string{{"yes", "no", "no"}, {"no", "yes", "no"}}
	prices := [][3]float64{{12, 10, 8}, {15, 12, 8}}
	chosen := []int{0, 2}

	var obs []choice.Observation
	for task := 0; task < 2; task++ {
		for j := 0; j < 3; j++ {
			obs = append(obs, choice.Observation{
				RespondentID: "R1",
				TaskID:       []string{"T1", "T2"}[task],
				Alternative: choice.Alternative{
					Categorical: map[string]string{"brand": brands[j], "ad": ads[task][j]},
					Numeric:     map[string]float64{"price": prices[task][j]},
				},
				Chosen: j == chosen[task],
			})
		}
	}
	ds, err := choice.NewChoiceDataset(obs, spec, 3)
	require.NoError(t, err)
	return ds
}

func TestPosteriorLogDensity(t *testing.T) {
	ds := smallChoicePanel(t)
	ll := choice.NewLogLikelihood(ds)
	prior, err := NewIsotropicNormalPrior(ds.NumColumns(), 2)
	require.NoError(t, err)

	post, err := NewPosterior(ll, prior)
	require.NoError(t, err)
	assert.Equal(t, 4, post.Dim())

	beta := []float64{0.8, 0.3, -0.5, -0.05}
	wantLL, err := ll.Value(beta)
	require.NoError(t, err)

	got, err := post.LogDensity(beta)
	require.NoError(t, err)
	assert.InDelta(t, wantLL+prior.LogDensity(beta), got, 1e-12)
}

func TestPosteriorPropagatesEngineErrors(t *testing.T) {
	ds := smallChoicePanel(t)
	prior, err := NewIsotropicNormalPrior(ds.NumColumns(), 2)
	require.NoError(t, err)
	post, err := NewPosterior(choice.NewLogLikelihood(ds), prior)
	require.NoError(t, err)

	var dimErr *errors.DimensionError
	_, err = post.LogDensity([]float64{1, 2})
	require.Error(t, err)
	assert.True(t, errors.As(err, &dimErr))
}

func TestNewPosteriorValidation(t *testing.T) {
	ds := smallChoicePanel(t)
	ll := choice.NewLogLikelihood(ds)
	prior, err := NewIsotropicNormalPrior(2, 1) // wrong dimension
	require.NoError(t, err)

	var dimErr *errors.DimensionError
	_, err = NewPosterior(ll, prior)
	require.Error(t, err)
	require.True(t, errors.As(err, &dimErr))
	assert.Equal(t, 4, dimErr.Expected)
	assert.Equal(t, 2, dimErr.Got)

	var validationErr *errors.ValidationError
	_, err = NewPosterior(nil, prior)
	require.Error(t, err)
	assert.True(t, errors.As(err, &validationErr))

	_, err = NewPosterior(ll, nil)
	require.Error(t, err)
	assert.True(t, errors.As(err, &validationErr))
}

// TestPosteriorAgreesWithMLE is the end-to-end check: under a diffuse prior
// the posterior concentrates on the maximum-likelihood solution, so the
// posterior means and standard deviations must track the MLE coefficients and
// their standard errors, and the credible intervals must exclude zero for
// every effect in the simulated design.
func TestPosteriorAgreesWithMLE(t *testing.T) {
	panel, err := datasets.SimulateChoicePanel(datasets.DefaultStreamingConfig())
	require.NoError(t, err)
	ds, err := panel.Dataset()
	require.NoError(t, err)

	mnl := choice.NewMultinomialLogit()
	require.NoError(t, mnl.Fit(ds))
	coef := mnl.Coef()
	stdErr := mnl.StdErr()

	ll := choice.NewLogLikelihood(ds)
	prior, err := NewIsotropicNormalPrior(ds.NumColumns(), 50)
	require.NoError(t, err)
	post, err := NewPosterior(ll, prior)
	require.NoError(t, err)

	sampler := NewMetropolis(
		WithWarmup(2000),
		WithSamples(6000),
		WithSeed(3),
		WithInit(coef),
	)
	trace, err := sampler.SampleChains(post, 2)
	require.NoError(t, err)

	summary, err := Summarize(trace, WithParamNames(ds.ColumnNames()))
	require.NoError(t, err)
	require.Len(t, summary.Params, 4)

	for k, p := range summary.Params {
		assert.Equal(t, ds.ColumnNames()[k], p.Name)
		assert.InDelta(t, coef[k], p.Mean, 0.05, "%s posterior mean vs MLE", p.Name)
		assert.InEpsilon(t, stdErr[k], p.SD, 0.35, "%s posterior sd vs standard error", p.Name)
		assert.Greater(t, p.ESS, 100.0, "%s effective sample size", p.Name)
		assert.Less(t, p.RHat, 1.1, "%s potential scale reduction", p.Name)
		assert.False(t, math.IsNaN(p.RHat))

		// The interval brackets the MLE and excludes zero.
		assert.Less(t, p.CredLow, coef[k])
		assert.Greater(t, p.CredHigh, coef[k])
		if coef[k] > 0 {
			assert.Greater(t, p.CredLow, 0.0, "%s interval should exclude zero", p.Name)
		} else {
			assert.Less(t, p.CredHigh, 0.0, "%s interval should exclude zero", p.Name)
		}
	}
}
