// Package cluster provides K-means clustering for respondent segmentation.
package cluster

import (
	"math"
	"math/rand"
	"sync"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/gochoice/core/model"
	"github.com/YuminosukeSato/gochoice/pkg/errors"
)

// KMeans はLloyd法（全バッチ）によるK-meansクラスタリング
// scikit-learnのKMeansと互換性を持つ
type KMeans struct {
	model.BaseEstimator

	// ハイパーパラメータ
	nClusters   int     // クラスタ数
	init        string  // 初期化方法: "k-means++", "random"
	maxIter     int     // 最大イテレーション数
	tol         float64 // 収束判定の許容誤差（中心の移動量）
	nInit       int     // 異なる初期化での実行回数
	randomState int64   // 乱数シード

	// 学習パラメータ
	clusterCenters_ [][]float64 // クラスタ中心（nClusters x nFeatures）
	labels_         []int       // 各サンプルのクラスタラベル
	inertia_        float64     // クラスタ内平方和誤差
	nIter_          int         // 実行されたイテレーション数

	// 内部状態
	mu         sync.RWMutex
	rng        *rand.Rand
	nFeatures_ int
	nSamples_  int
}

// KMeansOption はKMeansの設定オプション
type KMeansOption func(*KMeans)

// WithKMeansNClusters はクラスタ数を設定
func WithKMeansNClusters(n int) KMeansOption {
	return func(km *KMeans) {
		km.nClusters = n
	}
}

// WithKMeansInit は初期化方法を設定
func WithKMeansInit(init string) KMeansOption {
	return func(km *KMeans) {
		km.init = init
	}
}

// WithKMeansMaxIter は最大イテレーション数を設定
func WithKMeansMaxIter(maxIter int) KMeansOption {
	return func(km *KMeans) {
		km.maxIter = maxIter
	}
}

// WithKMeansTol は収束判定の許容誤差を設定
func WithKMeansTol(tol float64) KMeansOption {
	return func(km *KMeans) {
		km.tol = tol
	}
}

// WithKMeansNInit は初期化のリスタート回数を設定
func WithKMeansNInit(n int) KMeansOption {
	return func(km *KMeans) {
		km.nInit = n
	}
}

// WithKMeansRandomState は乱数シードを設定
func WithKMeansRandomState(seed int64) KMeansOption {
	return func(km *KMeans) {
		km.randomState = seed
		if seed >= 0 {
			km.rng = rand.New(rand.NewSource(seed))
		}
	}
}

// NewKMeans は新しいKMeansを作成
func NewKMeans(options ...KMeansOption) *KMeans {
	km := &KMeans{
		nClusters:   8,
		init:        "k-means++",
		maxIter:     300,
		tol:         1e-4,
		nInit:       10,
		randomState: -1,
	}

	for _, opt := range options {
		opt(km)
	}

	if km.rng == nil {
		if km.randomState >= 0 {
			km.rng = rand.New(rand.NewSource(km.randomState))
		} else {
			km.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
		}
	}

	return km
}

func (km *KMeans) validate(rows int) error {
	if km.nClusters <= 0 {
		return errors.NewValidationError("n_clusters", "number of clusters must be positive", km.nClusters)
	}
	if rows < km.nClusters {
		return errors.NewValidationError("n_clusters",
			"number of samples must be at least the number of clusters", rows)
	}
	if km.init != "k-means++" && km.init != "random" {
		return errors.NewValidationError("init", `init must be "k-means++" or "random"`, km.init)
	}
	if km.maxIter <= 0 {
		return errors.NewValidationError("max_iter", "max_iter must be positive", km.maxIter)
	}
	if km.tol < 0 {
		return errors.NewValidationError("tol", "tol must be non-negative", km.tol)
	}
	if km.nInit <= 0 {
		return errors.NewValidationError("n_init", "n_init must be positive", km.nInit)
	}
	return nil
}

// Fit はLloyd法でクラスタ中心を学習
// yは無視される（教師なし学習）
func (km *KMeans) Fit(X, y mat.Matrix) error {
	km.mu.Lock()
	defer km.mu.Unlock()

	if X == nil {
		return errors.NewValidationError("X", "training data must not be nil", nil)
	}
	rows, cols := X.Dims()
	if err := km.validate(rows); err != nil {
		return err
	}
	km.nSamples_ = rows
	km.nFeatures_ = cols

	// 複数回実行して最良の結果を選択
	bestInertia := math.Inf(1)
	var bestCenters [][]float64
	var bestLabels []int
	var bestNIter int

	for run := 0; run < km.nInit; run++ {
		centers, labels, inertia, nIter := km.lloydRun(X)
		if inertia < bestInertia {
			bestInertia = inertia
			bestCenters = centers
			bestLabels = labels
			bestNIter = nIter
		}
	}

	km.clusterCenters_ = bestCenters
	km.labels_ = bestLabels
	km.inertia_ = bestInertia
	km.nIter_ = bestNIter

	km.SetFitted()
	return nil
}

// lloydRun は単一初期化からの完全なLloyd反復を実行
func (km *KMeans) lloydRun(X mat.Matrix) ([][]float64, []int, float64, int) {
	rows, cols := X.Dims()
	centers := km.initializeCenters(X)
	labels := make([]int, rows)
	var nIter int

	for iter := 1; iter <= km.maxIter; iter++ {
		nIter = iter

		// 割り当てステップ
		for i := 0; i < rows; i++ {
			labels[i] = nearestCenter(mat.Row(nil, i, X), centers)
		}

		// 更新ステップ: 各クラスタの平均
		newCenters := make([][]float64, km.nClusters)
		counts := make([]int, km.nClusters)
		for c := range newCenters {
			newCenters[c] = make([]float64, cols)
		}
		for i := 0; i < rows; i++ {
			c := labels[i]
			counts[c]++
			for j := 0; j < cols; j++ {
				newCenters[c][j] += X.At(i, j)
			}
		}
		taken := make(map[int]bool)
		for c := 0; c < km.nClusters; c++ {
			if counts[c] == 0 {
				// 空クラスタは自身の中心から最も遠いサンプルで再初期化
				idx := km.farthestSample(X, centers, labels, taken)
				taken[idx] = true
				copy(newCenters[c], mat.Row(nil, idx, X))
				continue
			}
			for j := 0; j < cols; j++ {
				newCenters[c][j] /= float64(counts[c])
			}
		}

		// 収束判定: 中心の最大移動量
		shift := 0.0
		for c := range centers {
			if d := math.Sqrt(sqDistance(centers[c], newCenters[c])); d > shift {
				shift = d
			}
		}
		centers = newCenters
		if shift <= km.tol {
			break
		}
	}

	// 最終的なラベルと慣性
	inertia := 0.0
	for i := 0; i < rows; i++ {
		sample := mat.Row(nil, i, X)
		labels[i] = nearestCenter(sample, centers)
		inertia += sqDistance(sample, centers[labels[i]])
	}

	return centers, labels, inertia, nIter
}

// farthestSample は割り当てられた中心から最も遠い未使用サンプルを返す
func (km *KMeans) farthestSample(X mat.Matrix, centers [][]float64, labels []int, taken map[int]bool) int {
	rows, _ := X.Dims()
	best := 0
	bestDist := -1.0
	for i := 0; i < rows; i++ {
		if taken[i] {
			continue
		}
		d := sqDistance(mat.Row(nil, i, X), centers[labels[i]])
		if d > bestDist {
			bestDist = d
			best = i
		}
	}
	return best
}

// initializeCenters はクラスタ中心を初期化
func (km *KMeans) initializeCenters(X mat.Matrix) [][]float64 {
	if km.init == "random" {
		rows, cols := X.Dims()
		centers := make([][]float64, km.nClusters)
		for c := range centers {
			centers[c] = make([]float64, cols)
			copy(centers[c], mat.Row(nil, km.rng.Intn(rows), X))
		}
		return centers
	}
	return km.initKMeansPlusPlus(X)
}

// initKMeansPlusPlus はk-means++初期化を実行
// 既存の中心から遠いサンプルほど高い確率で次の中心に選ぶ
func (km *KMeans) initKMeansPlusPlus(X mat.Matrix) [][]float64 {
	rows, cols := X.Dims()
	centers := make([][]float64, km.nClusters)

	centers[0] = make([]float64, cols)
	copy(centers[0], mat.Row(nil, km.rng.Intn(rows), X))

	for c := 1; c < km.nClusters; c++ {
		weights := make([]float64, rows)
		total := 0.0
		for i := 0; i < rows; i++ {
			sample := mat.Row(nil, i, X)
			minDist := math.Inf(1)
			for j := 0; j < c; j++ {
				if d := sqDistance(sample, centers[j]); d < minDist {
					minDist = d
				}
			}
			weights[i] = minDist
			total += minDist
		}

		selected := 0
		target := km.rng.Float64() * total
		cumSum := 0.0
		for i := 0; i < rows; i++ {
			cumSum += weights[i]
			if cumSum >= target {
				selected = i
				break
			}
		}

		centers[c] = make([]float64, cols)
		copy(centers[c], mat.Row(nil, selected, X))
	}

	return centers
}

// Predict は各サンプルを最近傍クラスタに割り当てる
func (km *KMeans) Predict(X mat.Matrix) (mat.Matrix, error) {
	km.mu.RLock()
	defer km.mu.RUnlock()

	if !km.IsFitted() {
		return nil, errors.NewNotFittedError("KMeans", "Predict")
	}
	rows, cols := X.Dims()
	if cols != km.nFeatures_ {
		return nil, errors.NewDimensionError("Predict", km.nFeatures_, cols, 1)
	}

	predictions := mat.NewDense(rows, 1, nil)
	for i := 0; i < rows; i++ {
		predictions.Set(i, 0, float64(nearestCenter(mat.Row(nil, i, X), km.clusterCenters_)))
	}
	return predictions, nil
}

// Transform はデータを各クラスタ中心とのユークリッド距離に変換
func (km *KMeans) Transform(X mat.Matrix) (mat.Matrix, error) {
	km.mu.RLock()
	defer km.mu.RUnlock()

	if !km.IsFitted() {
		return nil, errors.NewNotFittedError("KMeans", "Transform")
	}
	rows, cols := X.Dims()
	if cols != km.nFeatures_ {
		return nil, errors.NewDimensionError("Transform", km.nFeatures_, cols, 1)
	}

	distances := mat.NewDense(rows, km.nClusters, nil)
	for i := 0; i < rows; i++ {
		sample := mat.Row(nil, i, X)
		for c := 0; c < km.nClusters; c++ {
			distances.Set(i, c, math.Sqrt(sqDistance(sample, km.clusterCenters_[c])))
		}
	}
	return distances, nil
}

// FitPredict は学習と予測を同時に行う
func (km *KMeans) FitPredict(X, y mat.Matrix) (mat.Matrix, error) {
	if err := km.Fit(X, y); err != nil {
		return nil, err
	}
	return km.Predict(X)
}

// ClusterCenters は学習されたクラスタ中心を返す
func (km *KMeans) ClusterCenters() [][]float64 {
	km.mu.RLock()
	defer km.mu.RUnlock()

	if km.clusterCenters_ == nil {
		return nil
	}
	centers := make([][]float64, len(km.clusterCenters_))
	for i := range km.clusterCenters_ {
		centers[i] = make([]float64, len(km.clusterCenters_[i]))
		copy(centers[i], km.clusterCenters_[i])
	}
	return centers
}

// Labels は学習データのクラスタラベルを返す
func (km *KMeans) Labels() []int {
	km.mu.RLock()
	defer km.mu.RUnlock()

	if km.labels_ == nil {
		return nil
	}
	labels := make([]int, len(km.labels_))
	copy(labels, km.labels_)
	return labels
}

// Inertia は慣性（クラスタ内平方和誤差）を返す
func (km *KMeans) Inertia() float64 {
	km.mu.RLock()
	defer km.mu.RUnlock()
	return km.inertia_
}

// NIterations は実行された学習イテレーション数を返す
func (km *KMeans) NIterations() int {
	km.mu.RLock()
	defer km.mu.RUnlock()
	return km.nIter_
}

// nearestCenter は最近傍クラスタ中心のインデックスを返す
func nearestCenter(sample []float64, centers [][]float64) int {
	nearest := 0
	minDist := math.Inf(1)
	for c, center := range centers {
		if d := sqDistance(sample, center); d < minDist {
			minDist = d
			nearest = c
		}
	}
	return nearest
}

// sqDistance はユークリッド距離の二乗を計算
func sqDistance(a, b []float64) float64 {
	sum := 0.0
	for i := range a {
		diff := a[i] - b[i]
		sum += diff * diff
	}
	return sum
}
