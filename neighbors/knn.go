// Package neighbors provides k-nearest-neighbor classification, used in the
// coursework demos to relate cluster segments back to held-out respondents.
package neighbors

import (
	"math"
	"sort"
	"sync"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/gochoice/core/model"
	"github.com/YuminosukeSato/gochoice/core/parallel"
	"github.com/YuminosukeSato/gochoice/metrics"
	"github.com/YuminosukeSato/gochoice/pkg/errors"
)

// parallelThreshold is the query count above which prediction fans out
// across CPU cores.
const parallelThreshold = 64

// KNNClassifier は k近傍法による分類器
// scikit-learnのKNeighborsClassifierと互換性を持つ
type KNNClassifier struct {
	model.BaseEstimator

	nNeighbors int
	weights    string // "uniform" or "distance"

	X_         *mat.Dense
	y_         []int
	classes_   []int
	nFeatures_ int
	mu         sync.RWMutex
}

// KNNOption はKNNClassifierの設定オプション
type KNNOption func(*KNNClassifier)

// WithKNNNeighbors は近傍数kを設定
func WithKNNNeighbors(k int) KNNOption {
	return func(knn *KNNClassifier) {
		knn.nNeighbors = k
	}
}

// WithKNNWeights は投票の重み付け方法を設定（"uniform"または"distance"）
func WithKNNWeights(weights string) KNNOption {
	return func(knn *KNNClassifier) {
		knn.weights = weights
	}
}

// NewKNNClassifier は新しいKNNClassifierを作成
func NewKNNClassifier(options ...KNNOption) *KNNClassifier {
	knn := &KNNClassifier{
		nNeighbors: 5,
		weights:    "uniform",
	}
	for _, opt := range options {
		opt(knn)
	}
	return knn
}

// Fit は訓練データを記憶する（遅延学習）
func (knn *KNNClassifier) Fit(X, y mat.Matrix) error {
	knn.mu.Lock()
	defer knn.mu.Unlock()

	if X == nil || y == nil {
		return errors.NewValidationError("X", "training data and labels must not be nil", nil)
	}
	rows, cols := X.Dims()
	yRows, yCols := y.Dims()
	if yCols != 1 || yRows != rows {
		return errors.NewDimensionError("Fit", rows, yRows, 0)
	}
	if knn.nNeighbors <= 0 {
		return errors.NewValidationError("n_neighbors", "number of neighbors must be positive", knn.nNeighbors)
	}
	if knn.nNeighbors > rows {
		return errors.NewValidationError("n_neighbors",
			"number of neighbors cannot exceed the number of training samples", knn.nNeighbors)
	}
	if knn.weights != "uniform" && knn.weights != "distance" {
		return errors.NewValidationError("weights", `weights must be "uniform" or "distance"`, knn.weights)
	}

	labels := make([]int, rows)
	classSet := make(map[int]bool)
	for i := 0; i < rows; i++ {
		v := y.At(i, 0)
		if v != math.Trunc(v) || math.IsNaN(v) {
			return errors.NewValidationError("y", "class labels must be integers", v)
		}
		labels[i] = int(v)
		classSet[labels[i]] = true
	}
	classes := make([]int, 0, len(classSet))
	for c := range classSet {
		classes = append(classes, c)
	}
	sort.Ints(classes)

	knn.X_ = mat.DenseCopyOf(X)
	knn.y_ = labels
	knn.classes_ = classes
	knn.nFeatures_ = cols

	knn.SetFitted()
	return nil
}

// vote accumulates the class weights of the k nearest training points for a
// single query row. An exact match (distance zero) under distance weighting
// dominates: only the zero-distance neighbors vote.
func (knn *KNNClassifier) vote(sample []float64) map[int]float64 {
	trainRows, _ := knn.X_.Dims()
	sqDists := make([]float64, trainRows)
	for i := 0; i < trainRows; i++ {
		row := knn.X_.RawRowView(i)
		sum := 0.0
		for j, v := range sample {
			diff := v - row[j]
			sum += diff * diff
		}
		sqDists[i] = sum
	}

	order := make([]int, trainRows)
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool {
		if sqDists[order[a]] != sqDists[order[b]] {
			return sqDists[order[a]] < sqDists[order[b]]
		}
		return order[a] < order[b]
	})
	nearest := order[:knn.nNeighbors]

	votes := make(map[int]float64, len(knn.classes_))
	if knn.weights == "distance" {
		exact := false
		for _, idx := range nearest {
			if sqDists[idx] == 0 {
				exact = true
				break
			}
		}
		if exact {
			for _, idx := range nearest {
				if sqDists[idx] == 0 {
					votes[knn.y_[idx]]++
				}
			}
			return votes
		}
		for _, idx := range nearest {
			votes[knn.y_[idx]] += 1 / math.Sqrt(sqDists[idx])
		}
		return votes
	}

	for _, idx := range nearest {
		votes[knn.y_[idx]]++
	}
	return votes
}

// classify resolves the vote, breaking ties toward the smallest label.
func (knn *KNNClassifier) classify(votes map[int]float64) int {
	best := knn.classes_[0]
	bestWeight := math.Inf(-1)
	for _, c := range knn.classes_ {
		if w := votes[c]; w > bestWeight {
			bestWeight = w
			best = c
		}
	}
	return best
}

func (knn *KNNClassifier) checkQuery(X mat.Matrix, op string) (int, error) {
	if !knn.IsFitted() {
		return 0, errors.NewNotFittedError("KNNClassifier", op)
	}
	if X == nil {
		return 0, errors.NewValidationError("X", "query data must not be nil", nil)
	}
	rows, cols := X.Dims()
	if cols != knn.nFeatures_ {
		return 0, errors.NewDimensionError(op, knn.nFeatures_, cols, 1)
	}
	return rows, nil
}

// Predict は各クエリ行に多数決でクラスを割り当てる
func (knn *KNNClassifier) Predict(X mat.Matrix) (mat.Matrix, error) {
	knn.mu.RLock()
	defer knn.mu.RUnlock()

	rows, err := knn.checkQuery(X, "Predict")
	if err != nil {
		return nil, err
	}

	predictions := mat.NewDense(rows, 1, nil)
	parallel.ParallelizeWithThreshold(rows, parallelThreshold, func(start, end int) {
		for i := start; i < end; i++ {
			votes := knn.vote(mat.Row(nil, i, X))
			predictions.Set(i, 0, float64(knn.classify(votes)))
		}
	})
	return predictions, nil
}

// PredictProba は各クラスへの投票重みを正規化した確率を返す
// 列はClasses()の昇順に対応する
func (knn *KNNClassifier) PredictProba(X mat.Matrix) (*mat.Dense, error) {
	knn.mu.RLock()
	defer knn.mu.RUnlock()

	rows, err := knn.checkQuery(X, "PredictProba")
	if err != nil {
		return nil, err
	}

	proba := mat.NewDense(rows, len(knn.classes_), nil)
	parallel.ParallelizeWithThreshold(rows, parallelThreshold, func(start, end int) {
		for i := start; i < end; i++ {
			votes := knn.vote(mat.Row(nil, i, X))
			total := 0.0
			for _, w := range votes {
				total += w
			}
			for j, c := range knn.classes_ {
				proba.Set(i, j, votes[c]/total)
			}
		}
	})
	return proba, nil
}

// Score はテストデータに対する正解率を返す
func (knn *KNNClassifier) Score(X, y mat.Matrix) (float64, error) {
	if y == nil {
		return 0, errors.NewValidationError("y", "labels must not be nil", nil)
	}
	pred, err := knn.Predict(X)
	if err != nil {
		return 0, err
	}
	rows, _ := pred.Dims()
	yRows, yCols := y.Dims()
	if yCols != 1 || yRows != rows {
		return 0, errors.NewDimensionError("Score", rows, yRows, 0)
	}

	yTrue := mat.NewVecDense(rows, nil)
	yPred := mat.NewVecDense(rows, nil)
	for i := 0; i < rows; i++ {
		yTrue.SetVec(i, y.At(i, 0))
		yPred.SetVec(i, pred.At(i, 0))
	}
	return metrics.Accuracy(yTrue, yPred)
}

// Classes は訓練データに現れたクラスラベルを昇順で返す
func (knn *KNNClassifier) Classes() []int {
	knn.mu.RLock()
	defer knn.mu.RUnlock()

	if knn.classes_ == nil {
		return nil
	}
	out := make([]int, len(knn.classes_))
	copy(out, knn.classes_)
	return out
}
