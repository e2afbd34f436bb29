// Package preprocessing は推定前のデザイン行列変換を提供する
package preprocessing

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/gochoice/core/model"
	"github.com/YuminosukeSato/gochoice/core/parallel"
	"github.com/YuminosukeSato/gochoice/pkg/errors"
)

// parallelThreshold 以上の行数で変換ループを並列化する
const parallelThreshold = 1000

// StandardScaler は各特徴量を平均0、標準偏差1に標準化する。
// ゼロ分散の列はスケール1のまま通す（ゼロ除算を避ける）。
type StandardScaler struct {
	model.BaseEstimator

	// Mean は各特徴量の平均値
	Mean []float64
	// Scale は各特徴量の標準偏差（ゼロ分散列は1）
	Scale []float64
	// Var は各特徴量の分散
	Var []float64
	// NFeatures は特徴量の数
	NFeatures int
	// WithMean は平均を引くかどうか
	WithMean bool
	// WithStd は標準偏差で割るかどうか
	WithStd bool
}

// NewStandardScaler は新しいStandardScalerを作成する
func NewStandardScaler(withMean, withStd bool) *StandardScaler {
	return &StandardScaler{
		WithMean: withMean,
		WithStd:  withStd,
	}
}

// NewStandardScalerDefault はデフォルト設定でStandardScalerを作成する
func NewStandardScalerDefault() *StandardScaler {
	return NewStandardScaler(true, true)
}

// columnStats は列ごとの平均と分散を返す。非有限値はエラー。
func columnStats(X mat.Matrix) (mean, variance []float64, err error) {
	r, c := X.Dims()
	mean = make([]float64, c)
	variance = make([]float64, c)
	for j := 0; j < c; j++ {
		sum := 0.0
		for i := 0; i < r; i++ {
			v := X.At(i, j)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, nil, errors.NewValidationError("X", "features must be finite", v)
			}
			sum += v
		}
		mean[j] = sum / float64(r)

		sumSq := 0.0
		for i := 0; i < r; i++ {
			d := X.At(i, j) - mean[j]
			sumSq += d * d
		}
		variance[j] = sumSq / float64(r)
	}
	return mean, variance, nil
}

// Fit は訓練データから平均と標準偏差を計算する
func (s *StandardScaler) Fit(X mat.Matrix) error {
	if X == nil {
		return errors.NewValidationError("X", "training data must not be nil", nil)
	}
	r, c := X.Dims()
	if r == 0 || c == 0 {
		return errors.NewModelError("StandardScaler.Fit", "empty data", errors.ErrEmptyData)
	}

	mean, variance, err := columnStats(X)
	if err != nil {
		return err
	}

	s.NFeatures = c
	s.Var = variance
	s.Mean = make([]float64, c)
	s.Scale = make([]float64, c)
	for j := 0; j < c; j++ {
		if s.WithMean {
			s.Mean[j] = mean[j]
		}
		s.Scale[j] = 1.0
		if s.WithStd {
			if sd := math.Sqrt(variance[j]); sd > 1e-8 {
				s.Scale[j] = sd
			}
		}
	}

	s.SetFitted()
	return nil
}

// Transform は学習済みの統計情報でデータを標準化する
func (s *StandardScaler) Transform(X mat.Matrix) (mat.Matrix, error) {
	if !s.IsFitted() {
		return nil, errors.NewNotFittedError("StandardScaler", "Transform")
	}
	if X == nil {
		return nil, errors.NewValidationError("X", "data must not be nil", nil)
	}
	r, c := X.Dims()
	if c != s.NFeatures {
		return nil, errors.NewDimensionError("StandardScaler.Transform", s.NFeatures, c, 1)
	}

	result := mat.NewDense(r, c, nil)
	parallel.ParallelizeWithThreshold(r, parallelThreshold, func(start, end int) {
		for i := start; i < end; i++ {
			for j := 0; j < c; j++ {
				result.Set(i, j, (X.At(i, j)-s.Mean[j])/s.Scale[j])
			}
		}
	})
	return result, nil
}

// FitTransform は訓練データで学習し、同じデータを変換する
func (s *StandardScaler) FitTransform(X mat.Matrix) (mat.Matrix, error) {
	if err := s.Fit(X); err != nil {
		return nil, err
	}
	return s.Transform(X)
}

// InverseTransform は標準化されたデータを元のスケールに戻す
func (s *StandardScaler) InverseTransform(X mat.Matrix) (mat.Matrix, error) {
	if !s.IsFitted() {
		return nil, errors.NewNotFittedError("StandardScaler", "InverseTransform")
	}
	if X == nil {
		return nil, errors.NewValidationError("X", "data must not be nil", nil)
	}
	r, c := X.Dims()
	if c != s.NFeatures {
		return nil, errors.NewDimensionError("StandardScaler.InverseTransform", s.NFeatures, c, 1)
	}

	result := mat.NewDense(r, c, nil)
	parallel.ParallelizeWithThreshold(r, parallelThreshold, func(start, end int) {
		for i := start; i < end; i++ {
			for j := 0; j < c; j++ {
				result.Set(i, j, X.At(i, j)*s.Scale[j]+s.Mean[j])
			}
		}
	})
	return result, nil
}

// GetParams はスケーラーのパラメータを取得する
func (s *StandardScaler) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"with_mean": s.WithMean,
		"with_std":  s.WithStd,
	}
}

// String はスケーラーの文字列表現を返す
func (s *StandardScaler) String() string {
	if !s.IsFitted() {
		return fmt.Sprintf("StandardScaler(with_mean=%t, with_std=%t)", s.WithMean, s.WithStd)
	}
	return fmt.Sprintf("StandardScaler(with_mean=%t, with_std=%t, n_features=%d)",
		s.WithMean, s.WithStd, s.NFeatures)
}

// MinMaxScaler は各特徴量を指定範囲（デフォルト[0,1]）にスケーリングする。
// 定数列はスケール1のまま範囲の下限に写される。
type MinMaxScaler struct {
	model.BaseEstimator

	// DataMin は学習データの列ごとの最小値
	DataMin []float64
	// DataMax は学習データの列ごとの最大値
	DataMax []float64
	// Scale は data_max - data_min（定数列は1）
	Scale []float64
	// NFeatures は特徴量の数
	NFeatures int
	// FeatureRange はスケーリング後の範囲 [min, max]
	FeatureRange [2]float64
}

// NewMinMaxScaler は新しいMinMaxScalerを作成する
func NewMinMaxScaler(featureRange [2]float64) *MinMaxScaler {
	return &MinMaxScaler{
		FeatureRange: featureRange,
	}
}

// NewMinMaxScalerDefault は[0,1]範囲のMinMaxScalerを作成する
func NewMinMaxScalerDefault() *MinMaxScaler {
	return NewMinMaxScaler([2]float64{0.0, 1.0})
}

// Fit は訓練データから列ごとの最小値と最大値を計算する
func (m *MinMaxScaler) Fit(X mat.Matrix) error {
	if X == nil {
		return errors.NewValidationError("X", "training data must not be nil", nil)
	}
	if m.FeatureRange[1] <= m.FeatureRange[0] {
		return errors.NewValidationError("featureRange",
			"upper bound must exceed lower bound", m.FeatureRange)
	}
	r, c := X.Dims()
	if r == 0 || c == 0 {
		return errors.NewModelError("MinMaxScaler.Fit", "empty data", errors.ErrEmptyData)
	}

	m.NFeatures = c
	m.DataMin = make([]float64, c)
	m.DataMax = make([]float64, c)
	m.Scale = make([]float64, c)
	for j := 0; j < c; j++ {
		lo, hi := X.At(0, j), X.At(0, j)
		for i := 0; i < r; i++ {
			v := X.At(i, j)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return errors.NewValidationError("X", "features must be finite", v)
			}
			if v < lo {
				lo = v
			}
			if v > hi {
				hi = v
			}
		}
		m.DataMin[j] = lo
		m.DataMax[j] = hi
		m.Scale[j] = hi - lo
		if m.Scale[j] < 1e-8 {
			m.Scale[j] = 1.0
		}
	}

	m.SetFitted()
	return nil
}

// Transform は学習済みの最小値・最大値でデータをスケーリングする
func (m *MinMaxScaler) Transform(X mat.Matrix) (mat.Matrix, error) {
	if !m.IsFitted() {
		return nil, errors.NewNotFittedError("MinMaxScaler", "Transform")
	}
	if X == nil {
		return nil, errors.NewValidationError("X", "data must not be nil", nil)
	}
	r, c := X.Dims()
	if c != m.NFeatures {
		return nil, errors.NewDimensionError("MinMaxScaler.Transform", m.NFeatures, c, 1)
	}

	span := m.FeatureRange[1] - m.FeatureRange[0]
	result := mat.NewDense(r, c, nil)
	parallel.ParallelizeWithThreshold(r, parallelThreshold, func(start, end int) {
		for i := start; i < end; i++ {
			for j := 0; j < c; j++ {
				std := (X.At(i, j) - m.DataMin[j]) / m.Scale[j]
				result.Set(i, j, std*span+m.FeatureRange[0])
			}
		}
	})
	return result, nil
}

// FitTransform は訓練データで学習し、同じデータを変換する
func (m *MinMaxScaler) FitTransform(X mat.Matrix) (mat.Matrix, error) {
	if err := m.Fit(X); err != nil {
		return nil, err
	}
	return m.Transform(X)
}

// InverseTransform はスケーリングされたデータを元の範囲に戻す
func (m *MinMaxScaler) InverseTransform(X mat.Matrix) (mat.Matrix, error) {
	if !m.IsFitted() {
		return nil, errors.NewNotFittedError("MinMaxScaler", "InverseTransform")
	}
	if X == nil {
		return nil, errors.NewValidationError("X", "data must not be nil", nil)
	}
	r, c := X.Dims()
	if c != m.NFeatures {
		return nil, errors.NewDimensionError("MinMaxScaler.InverseTransform", m.NFeatures, c, 1)
	}

	span := m.FeatureRange[1] - m.FeatureRange[0]
	result := mat.NewDense(r, c, nil)
	parallel.ParallelizeWithThreshold(r, parallelThreshold, func(start, end int) {
		for i := start; i < end; i++ {
			for j := 0; j < c; j++ {
				std := (X.At(i, j) - m.FeatureRange[0]) / span
				result.Set(i, j, std*m.Scale[j]+m.DataMin[j])
			}
		}
	})
	return result, nil
}

// GetParams はスケーラーのパラメータを取得する
func (m *MinMaxScaler) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"feature_range": m.FeatureRange,
	}
}

// String はスケーラーの文字列表現を返す
func (m *MinMaxScaler) String() string {
	if !m.IsFitted() {
		return fmt.Sprintf("MinMaxScaler(feature_range=[%.1f, %.1f])",
			m.FeatureRange[0], m.FeatureRange[1])
	}
	return fmt.Sprintf("MinMaxScaler(feature_range=[%.1f, %.1f], n_features=%d)",
		m.FeatureRange[0], m.FeatureRange[1], m.NFeatures)
}
