package glm

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/gochoice/datasets"
	"github.com/YuminosukeSato/gochoice/pkg/errors"
)

// twoGroupData is four counts split by a binary regressor. The maximum
// likelihood solution is the group means, mu = 2 for x = 0 and mu = 4 for
// x = 1, so intercept and coefficient are both ln 2 and the information
// matrix [[12, 8], [8, 8]] gives standard errors 0.5 and sqrt(0.375).
func twoGroupData() (*mat.Dense, *mat.VecDense) {
	X := mat.NewDense(4, 1, []float64{0, 0, 1, 1})
	y := mat.NewVecDense(4, []float64{1, 3, 2, 6})
	return X, y
}

func TestPoissonTwoGroupExactSolution(t *testing.T) {
	X, y := twoGroupData()
	p := NewPoissonRegression()
	require.NoError(t, p.Fit(X, y))

	ln2 := math.Ln2
	assert.True(t, p.Converged())
	assert.InDelta(t, ln2, p.Intercept(), 1e-6)
	require.Len(t, p.Coef(), 1)
	assert.InDelta(t, ln2, p.Coef()[0], 1e-6)

	assert.InDelta(t, 0.5, p.InterceptStdErr(), 1e-4)
	assert.InDelta(t, math.Sqrt(0.375), p.StdErr()[0], 1e-4)
	assert.InDelta(t, ln2/math.Sqrt(0.375), p.ZScores()[0], 1e-3)

	assert.InDelta(t, 3.1394889, p.Deviance(), 1e-5)
	assert.InDelta(t, 4.4986812, p.NullDeviance(), 1e-6)
	assert.Less(t, p.Deviance(), p.NullDeviance())
	assert.True(t, p.IsFitted())
	assert.Contains(t, p.String(), "fitted=true")
}

func TestPoissonRecoverCoefficients(t *testing.T) {
	beta := []float64{0.4, -0.3}
	X, raw, err := datasets.MakePoissonSample(2000, beta, 1.2, 5)
	require.NoError(t, err)
	y := mat.NewVecDense(len(raw), raw)

	p := NewPoissonRegression()
	require.NoError(t, p.Fit(X, y))
	require.True(t, p.Converged())

	coef := p.Coef()
	require.Len(t, coef, 2)
	assert.InDelta(t, 0.4, coef[0], 0.08)
	assert.InDelta(t, -0.3, coef[1], 0.08)
	assert.InDelta(t, 1.2, p.Intercept(), 0.08)

	// Both effects are many standard errors away from zero at this sample
	// size.
	for j, z := range p.ZScores() {
		assert.Greater(t, math.Abs(z), 5.0, "z score of coefficient %d", j)
	}
	assert.Less(t, p.Deviance(), p.NullDeviance())
	assert.LessOrEqual(t, p.NumIter(), 100)
	assert.GreaterOrEqual(t, p.NumIter(), 1)
}

func TestPoissonPredictFollowsLogLink(t *testing.T) {
	X, y := twoGroupData()
	p := NewPoissonRegression()
	require.NoError(t, p.Fit(X, y))

	pred, err := p.Predict(mat.NewDense(2, 1, []float64{0, 1}))
	require.NoError(t, err)
	rows, cols := pred.Dims()
	assert.Equal(t, 2, rows)
	assert.Equal(t, 1, cols)

	p0 := pred.At(0, 0)
	p1 := pred.At(1, 0)
	assert.InEpsilon(t, math.Exp(p.Intercept()), p0, 1e-12)
	assert.InEpsilon(t, math.Exp(p.Coef()[0]), p1/p0, 1e-10)
	assert.InDelta(t, 2.0, p0, 1e-5)
	assert.InDelta(t, 4.0, p1, 1e-5)
}

func TestPoissonSingularDesign(t *testing.T) {
	// The second column duplicates the first, so the weighted cross-product
	// matrix is rank deficient on the very first iteration.
	rows := 20
	data := make([]float64, rows*2)
	counts := make([]float64, rows)
	for i := 0; i < rows; i++ {
		v := float64(i % 5)
		data[2*i] = v
		data[2*i+1] = v
		counts[i] = float64(i % 4)
	}
	X := mat.NewDense(rows, 2, data)
	y := mat.NewVecDense(rows, counts)

	err := NewPoissonRegression().Fit(X, y)
	require.Error(t, err)
	var divErr *errors.OptimizationDivergedError
	require.ErrorAs(t, err, &divErr)
	assert.Equal(t, "IRLS", divErr.Method)
	assert.Equal(t, "singular", divErr.Status)
}

func TestPoissonIterationCapWarnsButFits(t *testing.T) {
	var warnings []error
	errors.SetWarningHandler(func(w error) { warnings = append(warnings, w) })
	defer errors.SetWarningHandler(nil)

	X, y := twoGroupData()
	p := NewPoissonRegression(WithPoissonMaxIter(1))
	require.NoError(t, p.Fit(X, y))

	assert.False(t, p.Converged())
	assert.Equal(t, 1, p.NumIter())
	assert.True(t, p.IsFitted())

	require.Len(t, warnings, 1)
	var convErr *errors.ConvergenceWarning
	require.ErrorAs(t, warnings[0], &convErr)
	assert.Equal(t, "PoissonRegression", convErr.Algorithm)
	assert.Equal(t, 1, convErr.Iterations)

	// The single IRLS step still yields a usable model.
	pred, err := p.Predict(X)
	require.NoError(t, err)
	assert.Greater(t, pred.At(0, 0), 0.0)
}

func TestPoissonPredictOverflow(t *testing.T) {
	X, y := twoGroupData()
	p := NewPoissonRegression()
	require.NoError(t, p.Fit(X, y))

	_, err := p.Predict(mat.NewDense(1, 1, []float64{3000}))
	require.Error(t, err)
	var numErr *errors.NumericalInstabilityError
	assert.ErrorAs(t, err, &numErr)
}

func TestPoissonValidation(t *testing.T) {
	okX := mat.NewDense(4, 1, []float64{0, 0, 1, 1})
	okY := mat.NewVecDense(4, []float64{1, 3, 2, 6})

	t.Run("nil inputs", func(t *testing.T) {
		var valErr *errors.ValidationError
		assert.ErrorAs(t, NewPoissonRegression().Fit(nil, okY), &valErr)
		assert.ErrorAs(t, NewPoissonRegression().Fit(okX, nil), &valErr)
	})

	t.Run("empty matrix", func(t *testing.T) {
		err := NewPoissonRegression().Fit(&mat.Dense{}, okY)
		assert.ErrorIs(t, err, errors.ErrEmptyData)
	})

	t.Run("y not a column vector", func(t *testing.T) {
		err := NewPoissonRegression().Fit(okX, mat.NewDense(4, 2, nil))
		var valueErr *errors.ValueError
		require.ErrorAs(t, err, &valueErr)
		assert.Contains(t, valueErr.Message, "column vector")
	})

	t.Run("length mismatch", func(t *testing.T) {
		err := NewPoissonRegression().Fit(okX, mat.NewVecDense(3, []float64{1, 2, 3}))
		var dimErr *errors.DimensionError
		require.ErrorAs(t, err, &dimErr)
		assert.Equal(t, 4, dimErr.Expected)
		assert.Equal(t, 3, dimErr.Got)
	})

	t.Run("negative count", func(t *testing.T) {
		var valErr *errors.ValidationError
		err := NewPoissonRegression().Fit(okX, mat.NewVecDense(4, []float64{1, -1, 2, 6}))
		assert.ErrorAs(t, err, &valErr)
	})

	t.Run("non finite count", func(t *testing.T) {
		var valErr *errors.ValidationError
		err := NewPoissonRegression().Fit(okX, mat.NewVecDense(4, []float64{1, math.NaN(), 2, 6}))
		assert.ErrorAs(t, err, &valErr)
	})

	t.Run("all zero counts", func(t *testing.T) {
		var valErr *errors.ValidationError
		err := NewPoissonRegression().Fit(okX, mat.NewVecDense(4, nil))
		assert.ErrorAs(t, err, &valErr)
	})

	t.Run("more parameters than observations", func(t *testing.T) {
		var valErr *errors.ValidationError
		err := NewPoissonRegression().Fit(mat.NewDense(2, 2, []float64{1, 2, 3, 4}),
			mat.NewVecDense(2, []float64{1, 2}))
		assert.ErrorAs(t, err, &valErr)
	})

	t.Run("non finite feature", func(t *testing.T) {
		var valErr *errors.ValidationError
		bad := mat.NewDense(4, 1, []float64{0, math.Inf(1), 1, 1})
		err := NewPoissonRegression().Fit(bad, okY)
		assert.ErrorAs(t, err, &valErr)
	})

	t.Run("feature name count mismatch", func(t *testing.T) {
		p := NewPoissonRegression(WithPoissonFeatureNames([]string{"a", "b", "c"}))
		err := p.Fit(okX, okY)
		var dimErr *errors.DimensionError
		require.ErrorAs(t, err, &dimErr)
		assert.Equal(t, 1, dimErr.Expected)
		assert.Equal(t, 3, dimErr.Got)
	})
}

func TestPoissonNotFitted(t *testing.T) {
	p := NewPoissonRegression()
	var nfErr *errors.NotFittedError

	_, err := p.Predict(mat.NewDense(1, 1, []float64{0}))
	assert.ErrorAs(t, err, &nfErr)
	_, err = p.Summary()
	assert.ErrorAs(t, err, &nfErr)
	_, err = p.ExportWeights()
	assert.ErrorAs(t, err, &nfErr)

	assert.Nil(t, p.Coef())
	assert.Nil(t, p.StdErr())
	assert.Nil(t, p.ZScores())
	assert.False(t, p.IsFitted())
	assert.Contains(t, p.String(), "max_iter=100")
}

func TestPoissonPredictDimensionMismatch(t *testing.T) {
	X, y := twoGroupData()
	p := NewPoissonRegression()
	require.NoError(t, p.Fit(X, y))

	_, err := p.Predict(mat.NewDense(1, 2, []float64{0, 1}))
	var dimErr *errors.DimensionError
	require.ErrorAs(t, err, &dimErr)
	assert.Equal(t, 1, dimErr.Expected)
	assert.Equal(t, 2, dimErr.Got)
}

func TestPoissonSummaryTable(t *testing.T) {
	X, y := twoGroupData()
	p := NewPoissonRegression(WithPoissonFeatureNames([]string{"promo"}))
	require.NoError(t, p.Fit(X, y))

	s, err := p.Summary()
	require.NoError(t, err)
	assert.Equal(t, []string{"(intercept)", "promo"}, s.Terms)
	require.Len(t, s.Coef, 2)
	assert.InDelta(t, math.Ln2, s.Coef[0], 1e-6)
	assert.InDelta(t, math.Ln2, s.Coef[1], 1e-6)
	assert.Equal(t, 4, s.NumObs)
	assert.True(t, s.Converged)

	table := s.String()
	assert.Contains(t, table, "Poisson Regression (log link)")
	assert.Contains(t, table, "promo")
	assert.Contains(t, table, "(intercept)")
	assert.Contains(t, table, "converged: true")
	assert.Contains(t, table, "deviance:")
}

func TestPoissonExportWeights(t *testing.T) {
	X, y := twoGroupData()
	p := NewPoissonRegression(WithPoissonFeatureNames([]string{"promo"}))
	require.NoError(t, p.Fit(X, y))

	w, err := p.ExportWeights()
	require.NoError(t, err)
	assert.Equal(t, "PoissonRegression", w.ModelType)
	assert.Equal(t, "1.0.0", w.Version)
	assert.Equal(t, []string{"promo"}, w.Features)
	require.Len(t, w.Coefficients, 1)
	assert.InDelta(t, math.Ln2, w.Coefficients[0], 1e-6)
	assert.InDelta(t, math.Ln2, w.Intercept, 1e-6)
	assert.True(t, w.IsFitted)
	assert.Equal(t, 100, w.Hyperparameters["max_iter"])
	require.NoError(t, w.Validate())
}
