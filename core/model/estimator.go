package model

import "gonum.org/v1/gonum/mat"

// Fitter は学習可能なモデルのインターフェース
type Fitter interface {
	// Fit はモデルを訓練データで学習させる
	Fit(X, y mat.Matrix) error
}

// Predictor は予測可能なモデルのインターフェース
type Predictor interface {
	// Predict は入力データに対する予測を行う
	Predict(X mat.Matrix) (mat.Matrix, error)
}

// Scorer は適合度を計算できるモデルのインターフェース
type Scorer interface {
	// Score はテストデータに対する適合度（分類なら正解率、回帰なら決定係数）を返す
	Score(X, y mat.Matrix) (float64, error)
}

// LinearModel は線形予測子を持つモデルのインターフェース
type LinearModel interface {
	// Coef は学習された係数を返す
	Coef() []float64
	// Intercept は学習された切片を返す
	Intercept() float64
}

// Transformer はデータ変換のインターフェース
type Transformer interface {
	// Fit は変換に必要なパラメータを学習する
	Fit(X mat.Matrix) error

	// Transform はデータを変換する
	Transform(X mat.Matrix) (mat.Matrix, error)

	// FitTransform はFitとTransformを同時に実行する
	FitTransform(X mat.Matrix) (mat.Matrix, error)
}

// InverseTransformer は逆変換を持つ変換器のインターフェース
type InverseTransformer interface {
	Transformer

	// InverseTransform は変換を逆方向に適用する
	InverseTransform(X mat.Matrix) (mat.Matrix, error)
}

// Clusterer はクラスタリングモデルのインターフェース
type Clusterer interface {
	// FitPredict は学習とクラスタ割り当てを同時に実行する
	FitPredict(X, y mat.Matrix) (mat.Matrix, error)
}

// WeightExporter は重みをModelWeights形式でエクスポートできるモデルのインターフェース
type WeightExporter interface {
	// ExportWeights は学習済みの重みをシリアライズ可能な形式で返す
	ExportWeights() (*ModelWeights, error)
}
