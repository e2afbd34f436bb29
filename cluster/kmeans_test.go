package cluster

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/YuminosukeSato/gochoice/datasets"
	"github.com/YuminosukeSato/gochoice/pkg/errors"
)

var blobCenters = [][]float64{{0, 0}, {12, 12}, {-12, 12}}

// blobData draws 50 points per hand-placed center with unit noise, far enough
// apart that the optimal clustering is unambiguous.
func blobData(t *testing.T) (*mat.Dense, []int) {
	t.Helper()
	src := rand.NewPCG(3, 3)
	noise := distuv.Normal{Mu: 0, Sigma: 1, Src: src}

	const perCenter = 50
	X := mat.NewDense(perCenter*len(blobCenters), 2, nil)
	y := make([]int, perCenter*len(blobCenters))
	for c, center := range blobCenters {
		for i := 0; i < perCenter; i++ {
			row := c*perCenter + i
			y[row] = c
			X.Set(row, 0, center[0]+noise.Rand())
			X.Set(row, 1, center[1]+noise.Rand())
		}
	}
	return X, y
}

// requirePureClustering asserts that predicted labels match the true ones up
// to a relabeling: constant within each true cluster, distinct across them.
func requirePureClustering(t *testing.T, trueLabels, predicted []int) {
	t.Helper()
	byTrue := make(map[int]int)
	for i, trueLab := range trueLabels {
		if prev, ok := byTrue[trueLab]; ok {
			require.Equal(t, prev, predicted[i], "true cluster %d split at row %d", trueLab, i)
		} else {
			byTrue[trueLab] = predicted[i]
		}
	}
	used := make(map[int]bool)
	for _, pred := range byTrue {
		require.False(t, used[pred], "two true clusters merged into predicted label %d", pred)
		used[pred] = true
	}
}

func TestKMeansSeparatesBlobs(t *testing.T) {
	X, y := blobData(t)
	km := NewKMeans(WithKMeansNClusters(3), WithKMeansRandomState(42))
	require.NoError(t, km.Fit(X, nil))

	labels := km.Labels()
	require.Len(t, labels, 150)
	requirePureClustering(t, y, labels)

	// Expected inertia is about n * d * sigma^2 = 300.
	assert.Greater(t, km.Inertia(), 150.0)
	assert.Less(t, km.Inertia(), 450.0)
	assert.GreaterOrEqual(t, km.NIterations(), 1)

	centers := km.ClusterCenters()
	require.Len(t, centers, 3)
	for _, want := range blobCenters {
		best := math.Inf(1)
		var nearest []float64
		for _, got := range centers {
			if d := sqDistance(want, got); d < best {
				best = d
				nearest = got
			}
		}
		assert.InDelta(t, want[0], nearest[0], 0.6)
		assert.InDelta(t, want[1], nearest[1], 0.6)
	}
}

func TestKMeansRandomInitSeparatesBlobs(t *testing.T) {
	X, y := blobData(t)
	km := NewKMeans(
		WithKMeansNClusters(3),
		WithKMeansInit("random"),
		WithKMeansNInit(10),
		WithKMeansRandomState(7),
	)
	require.NoError(t, km.Fit(X, nil))
	requirePureClustering(t, y, km.Labels())
}

func TestKMeansDeterministicWithSeed(t *testing.T) {
	X, _ := blobData(t)

	first := NewKMeans(WithKMeansNClusters(3), WithKMeansRandomState(11))
	second := NewKMeans(WithKMeansNClusters(3), WithKMeansRandomState(11))
	require.NoError(t, first.Fit(X, nil))
	require.NoError(t, second.Fit(X, nil))

	assert.Equal(t, first.Labels(), second.Labels())
	assert.Equal(t, first.ClusterCenters(), second.ClusterCenters())
	assert.Equal(t, first.Inertia(), second.Inertia())
}

func TestKMeansPredictMatchesTrainingLabels(t *testing.T) {
	X, _ := blobData(t)
	km := NewKMeans(WithKMeansNClusters(3), WithKMeansRandomState(42))
	require.NoError(t, km.Fit(X, nil))

	pred, err := km.Predict(X)
	require.NoError(t, err)
	rows, cols := pred.Dims()
	require.Equal(t, 150, rows)
	require.Equal(t, 1, cols)

	labels := km.Labels()
	for i := 0; i < rows; i++ {
		assert.Equal(t, labels[i], int(pred.At(i, 0)))
	}
}

func TestKMeansTransformDistances(t *testing.T) {
	X, _ := blobData(t)
	km := NewKMeans(WithKMeansNClusters(3), WithKMeansRandomState(42))
	require.NoError(t, km.Fit(X, nil))

	dists, err := km.Transform(X)
	require.NoError(t, err)
	rows, cols := dists.Dims()
	require.Equal(t, 150, rows)
	require.Equal(t, 3, cols)

	// Nearest center by distance must agree with Predict.
	pred, err := km.Predict(X)
	require.NoError(t, err)
	for i := 0; i < rows; i++ {
		argmin := 0
		for c := 1; c < cols; c++ {
			if dists.At(i, c) < dists.At(i, argmin) {
				argmin = c
			}
		}
		assert.Equal(t, int(pred.At(i, 0)), argmin)
	}
}

func TestKMeansFitPredict(t *testing.T) {
	X, y := blobData(t)
	km := NewKMeans(WithKMeansNClusters(3), WithKMeansRandomState(42))
	pred, err := km.FitPredict(X, nil)
	require.NoError(t, err)

	labels := make([]int, len(y))
	for i := range labels {
		labels[i] = int(pred.At(i, 0))
	}
	requirePureClustering(t, y, labels)
}

func TestKMeansOneClusterPerPoint(t *testing.T) {
	// k equal to the number of distinct points drives the inertia to zero,
	// exercising the empty-cluster reseed under random init.
	X := mat.NewDense(5, 2, []float64{
		0, 0,
		10, 0,
		0, 10,
		-10, 0,
		0, -10,
	})
	km := NewKMeans(
		WithKMeansNClusters(5),
		WithKMeansInit("random"),
		WithKMeansNInit(1),
		WithKMeansMaxIter(50),
		WithKMeansRandomState(1),
	)
	require.NoError(t, km.Fit(X, nil))
	assert.InDelta(t, 0.0, km.Inertia(), 1e-9)
}

func TestKMeansMoreClustersBeatsFewer(t *testing.T) {
	X, _, err := datasets.MakeBlobs(90, 3, 3, 0.5, 11)
	require.NoError(t, err)

	single := NewKMeans(WithKMeansNClusters(1), WithKMeansRandomState(5))
	require.NoError(t, single.Fit(X, nil))
	triple := NewKMeans(WithKMeansNClusters(3), WithKMeansRandomState(5))
	require.NoError(t, triple.Fit(X, nil))

	assert.Less(t, triple.Inertia(), single.Inertia())
	assert.False(t, math.IsNaN(triple.Inertia()))
}

func TestKMeansNotFitted(t *testing.T) {
	km := NewKMeans(WithKMeansNClusters(2))
	X := mat.NewDense(2, 2, nil)

	var notFitted *errors.NotFittedError
	_, err := km.Predict(X)
	require.Error(t, err)
	assert.True(t, errors.As(err, &notFitted))

	_, err = km.Transform(X)
	require.Error(t, err)
	assert.True(t, errors.As(err, &notFitted))

	assert.Nil(t, km.ClusterCenters())
	assert.Nil(t, km.Labels())
}

func TestKMeansValidation(t *testing.T) {
	X, _ := blobData(t)

	tests := []struct {
		name string
		km   *KMeans
	}{
		{"zero clusters", NewKMeans(WithKMeansNClusters(0))},
		{"more clusters than samples", NewKMeans(WithKMeansNClusters(151))},
		{"unknown init", NewKMeans(WithKMeansNClusters(3), WithKMeansInit("farthest"))},
		{"zero max iterations", NewKMeans(WithKMeansNClusters(3), WithKMeansMaxIter(0))},
		{"negative tolerance", NewKMeans(WithKMeansNClusters(3), WithKMeansTol(-1))},
		{"zero restarts", NewKMeans(WithKMeansNClusters(3), WithKMeansNInit(0))},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.km.Fit(X, nil)
			require.Error(t, err)
			var validationErr *errors.ValidationError
			assert.True(t, errors.As(err, &validationErr))
		})
	}

	t.Run("nil X", func(t *testing.T) {
		err := NewKMeans(WithKMeansNClusters(3)).Fit(nil, nil)
		require.Error(t, err)
		var validationErr *errors.ValidationError
		assert.True(t, errors.As(err, &validationErr))
	})
}

func TestKMeansDimensionMismatch(t *testing.T) {
	X, _ := blobData(t)
	km := NewKMeans(WithKMeansNClusters(3), WithKMeansRandomState(42))
	require.NoError(t, km.Fit(X, nil))

	wide := mat.NewDense(4, 3, nil)
	var dimErr *errors.DimensionError

	_, err := km.Predict(wide)
	require.Error(t, err)
	require.True(t, errors.As(err, &dimErr))
	assert.Equal(t, 2, dimErr.Expected)
	assert.Equal(t, 3, dimErr.Got)

	_, err = km.Transform(wide)
	require.Error(t, err)
	assert.True(t, errors.As(err, &dimErr))
}
