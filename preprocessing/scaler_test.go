package preprocessing

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/gochoice/pkg/errors"
)

func TestStandardScalerKnownStats(t *testing.T) {
	// Column 0 has mean 2.5 and variance 1.25, column 1 is constant.
	X := mat.NewDense(4, 2, []float64{
		1, 10,
		2, 10,
		3, 10,
		4, 10,
	})

	s := NewStandardScalerDefault()
	require.NoError(t, s.Fit(X))

	assert.Equal(t, 2, s.NFeatures)
	assert.InDelta(t, 2.5, s.Mean[0], 1e-12)
	assert.InDelta(t, 10.0, s.Mean[1], 1e-12)
	assert.InDelta(t, 1.25, s.Var[0], 1e-12)
	assert.InDelta(t, 0.0, s.Var[1], 1e-12)
	assert.InDelta(t, math.Sqrt(1.25), s.Scale[0], 1e-12)
	assert.InDelta(t, 1.0, s.Scale[1], 1e-12, "zero variance column keeps scale 1")

	out, err := s.Transform(X)
	require.NoError(t, err)
	sd := math.Sqrt(1.25)
	assert.InDelta(t, (1-2.5)/sd, out.At(0, 0), 1e-12)
	assert.InDelta(t, (4-2.5)/sd, out.At(3, 0), 1e-12)
	for i := 0; i < 4; i++ {
		assert.InDelta(t, 0.0, out.At(i, 1), 1e-12)
	}
}

func TestStandardScalerRoundTrip(t *testing.T) {
	X := mat.NewDense(5, 2, []float64{
		1.5, -3,
		2.25, 8,
		-0.5, 0.25,
		4, 1,
		0, -2,
	})

	s := NewStandardScalerDefault()
	scaled, err := s.FitTransform(X)
	require.NoError(t, err)
	back, err := s.InverseTransform(scaled)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		for j := 0; j < 2; j++ {
			assert.InDelta(t, X.At(i, j), back.At(i, j), 1e-12)
		}
	}
}

func TestStandardScalerWithoutMean(t *testing.T) {
	X := mat.NewDense(2, 1, []float64{1, 3})
	s := NewStandardScaler(false, true)
	out, err := s.FitTransform(X)
	require.NoError(t, err)

	// Variance about the mean is 1, so values pass through unshifted.
	assert.InDelta(t, 0.0, s.Mean[0], 1e-12)
	assert.InDelta(t, 1.0, s.Scale[0], 1e-12)
	assert.InDelta(t, 1.0, out.At(0, 0), 1e-12)
	assert.InDelta(t, 3.0, out.At(1, 0), 1e-12)
}

func TestStandardScalerWithoutStd(t *testing.T) {
	X := mat.NewDense(2, 1, []float64{1, 3})
	s := NewStandardScaler(true, false)
	out, err := s.FitTransform(X)
	require.NoError(t, err)

	assert.InDelta(t, 1.0, s.Scale[0], 1e-12)
	assert.InDelta(t, -1.0, out.At(0, 0), 1e-12)
	assert.InDelta(t, 1.0, out.At(1, 0), 1e-12)
}

func TestStandardScalerParallelPath(t *testing.T) {
	n := 2500
	data := make([]float64, n)
	for i := range data {
		data[i] = float64(i)
	}
	X := mat.NewDense(n, 1, data)

	s := NewStandardScalerDefault()
	out, err := s.FitTransform(X)
	require.NoError(t, err)

	sum, sumSq := 0.0, 0.0
	for i := 0; i < n; i++ {
		v := out.At(i, 0)
		sum += v
		sumSq += v * v
	}
	assert.InDelta(t, 0.0, sum/float64(n), 1e-9)
	assert.InDelta(t, 1.0, sumSq/float64(n), 1e-9)
}

func TestMinMaxScalerKnownRange(t *testing.T) {
	X := mat.NewDense(3, 2, []float64{
		0, -1,
		5, 0,
		10, 1,
	})

	m := NewMinMaxScalerDefault()
	out, err := m.FitTransform(X)
	require.NoError(t, err)

	assert.Equal(t, []float64{0, -1}, m.DataMin)
	assert.Equal(t, []float64{10, 1}, m.DataMax)
	assert.InDelta(t, 0.0, out.At(0, 0), 1e-12)
	assert.InDelta(t, 0.5, out.At(1, 0), 1e-12)
	assert.InDelta(t, 1.0, out.At(2, 0), 1e-12)
	assert.InDelta(t, 0.0, out.At(0, 1), 1e-12)
	assert.InDelta(t, 0.5, out.At(1, 1), 1e-12)
	assert.InDelta(t, 1.0, out.At(2, 1), 1e-12)
}

func TestMinMaxScalerCustomRange(t *testing.T) {
	X := mat.NewDense(3, 1, []float64{0, 5, 10})
	m := NewMinMaxScaler([2]float64{-1, 1})
	out, err := m.FitTransform(X)
	require.NoError(t, err)

	assert.InDelta(t, -1.0, out.At(0, 0), 1e-12)
	assert.InDelta(t, 0.0, out.At(1, 0), 1e-12)
	assert.InDelta(t, 1.0, out.At(2, 0), 1e-12)
}

func TestMinMaxScalerConstantColumn(t *testing.T) {
	X := mat.NewDense(3, 1, []float64{7, 7, 7})
	m := NewMinMaxScalerDefault()
	out, err := m.FitTransform(X)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		assert.InDelta(t, 0.0, out.At(i, 0), 1e-12)
	}

	back, err := m.InverseTransform(out)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		assert.InDelta(t, 7.0, back.At(i, 0), 1e-12)
	}
}

func TestMinMaxScalerRoundTrip(t *testing.T) {
	X := mat.NewDense(4, 2, []float64{
		-2, 100,
		3, 150,
		7, 125,
		0, 110,
	})

	m := NewMinMaxScaler([2]float64{0, 10})
	scaled, err := m.FitTransform(X)
	require.NoError(t, err)
	back, err := m.InverseTransform(scaled)
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		for j := 0; j < 2; j++ {
			assert.InDelta(t, X.At(i, j), back.At(i, j), 1e-10)
		}
	}
}

func TestScalerValidation(t *testing.T) {
	t.Run("nil training data", func(t *testing.T) {
		var valErr *errors.ValidationError
		assert.ErrorAs(t, NewStandardScalerDefault().Fit(nil), &valErr)
		assert.ErrorAs(t, NewMinMaxScalerDefault().Fit(nil), &valErr)
	})

	t.Run("empty matrix", func(t *testing.T) {
		assert.ErrorIs(t, NewStandardScalerDefault().Fit(&mat.Dense{}), errors.ErrEmptyData)
		assert.ErrorIs(t, NewMinMaxScalerDefault().Fit(&mat.Dense{}), errors.ErrEmptyData)
	})

	t.Run("non finite feature", func(t *testing.T) {
		var valErr *errors.ValidationError
		bad := mat.NewDense(2, 1, []float64{1, math.NaN()})
		assert.ErrorAs(t, NewStandardScalerDefault().Fit(bad), &valErr)
		assert.ErrorAs(t, NewMinMaxScalerDefault().Fit(bad), &valErr)
	})

	t.Run("inverted feature range", func(t *testing.T) {
		var valErr *errors.ValidationError
		m := NewMinMaxScaler([2]float64{1, 1})
		assert.ErrorAs(t, m.Fit(mat.NewDense(2, 1, []float64{1, 2})), &valErr)
	})

	t.Run("transform before fit", func(t *testing.T) {
		var nfErr *errors.NotFittedError
		_, err := NewStandardScalerDefault().Transform(mat.NewDense(1, 1, nil))
		assert.ErrorAs(t, err, &nfErr)
		_, err = NewMinMaxScalerDefault().InverseTransform(mat.NewDense(1, 1, nil))
		assert.ErrorAs(t, err, &nfErr)
	})

	t.Run("dimension mismatch", func(t *testing.T) {
		s := NewStandardScalerDefault()
		require.NoError(t, s.Fit(mat.NewDense(2, 2, []float64{1, 2, 3, 4})))
		_, err := s.Transform(mat.NewDense(2, 3, nil))
		var dimErr *errors.DimensionError
		require.ErrorAs(t, err, &dimErr)
		assert.Equal(t, 2, dimErr.Expected)
		assert.Equal(t, 3, dimErr.Got)
	})
}

func TestScalerString(t *testing.T) {
	s := NewStandardScalerDefault()
	assert.Equal(t, "StandardScaler(with_mean=true, with_std=true)", s.String())
	require.NoError(t, s.Fit(mat.NewDense(2, 2, []float64{1, 2, 3, 4})))
	assert.Contains(t, s.String(), "n_features=2")

	m := NewMinMaxScalerDefault()
	assert.Contains(t, m.String(), "feature_range=[0.0, 1.0]")
	assert.Equal(t, true, NewStandardScalerDefault().GetParams()["with_mean"])
}
