package metrics

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/gochoice/pkg/errors"
)

// logLossEpsilon は log(0) を避けるためのクリッピング値
const logLossEpsilon = 1e-15

// validateBinaryLabels は全ラベルが0または1であることを確認する
func validateBinaryLabels(op string, yTrue *mat.VecDense) error {
	for i := 0; i < yTrue.Len(); i++ {
		if v := yTrue.AtVec(i); v != 0 && v != 1 {
			return errors.NewValueError(op, "labels must be binary (0 or 1)")
		}
	}
	return nil
}

// AUC はROC曲線下面積をMann-Whitney統計量として計算する
// 同順位は0.5としてカウントする。yTrueが片方のクラスしか含まない場合は
// UndefinedMetricWarningを発行して0.5を返す
func AUC(yTrue, yPred *mat.VecDense) (float64, error) {
	if yTrue == nil || yPred == nil {
		return 0, errors.NewValueError("AUC", "empty vector")
	}
	n := yTrue.Len()
	if n == 0 {
		return 0, errors.NewValueError("AUC", "empty vector")
	}
	if yPred.Len() != n {
		return 0, errors.NewDimensionError("AUC", n, yPred.Len(), 0)
	}
	if err := validateBinaryLabels("AUC", yTrue); err != nil {
		return 0, err
	}

	nPos := 0
	for i := 0; i < n; i++ {
		if yTrue.AtVec(i) == 1 {
			nPos++
		}
	}
	nNeg := n - nPos
	if nPos == 0 || nNeg == 0 {
		errors.Warn(errors.NewUndefinedMetricWarning(
			"auc", "only one class present in yTrue", 0.5))
		return 0.5, nil
	}

	// 予測値の順位（同順位は平均ランク）
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool {
		return yPred.AtVec(idx[a]) < yPred.AtVec(idx[b])
	})
	ranks := make([]float64, n)
	for i := 0; i < n; {
		j := i
		for j+1 < n && yPred.AtVec(idx[j+1]) == yPred.AtVec(idx[i]) {
			j++
		}
		avg := float64(i+j+2) / 2
		for k := i; k <= j; k++ {
			ranks[idx[k]] = avg
		}
		i = j + 1
	}

	// AUC = (Σ rank(pos) - nPos(nPos+1)/2) / (nPos * nNeg)
	var posRankSum float64
	for i := 0; i < n; i++ {
		if yTrue.AtVec(i) == 1 {
			posRankSum += ranks[i]
		}
	}
	u := posRankSum - float64(nPos)*float64(nPos+1)/2
	return u / (float64(nPos) * float64(nNeg)), nil
}

// AUCMatrix は行列形式の入力に対してAUCを計算する（先頭列を使用）
func AUCMatrix(yTrue, yPred mat.Matrix) (float64, error) {
	if yTrue == nil || yPred == nil {
		return 0, errors.NewValueError("AUCMatrix", "nil matrix")
	}
	rTrue, cTrue := yTrue.Dims()
	rPred, cPred := yPred.Dims()
	if rTrue == 0 || cTrue == 0 || rPred == 0 || cPred == 0 {
		return 0, errors.NewValueError("AUCMatrix", "empty matrix")
	}
	if rTrue != rPred {
		return 0, errors.NewDimensionError("AUCMatrix", rTrue, rPred, 0)
	}

	yTrueVec := mat.NewVecDense(rTrue, nil)
	yPredVec := mat.NewVecDense(rPred, nil)
	for i := 0; i < rTrue; i++ {
		yTrueVec.SetVec(i, yTrue.At(i, 0))
		yPredVec.SetVec(i, yPred.At(i, 0))
	}
	return AUC(yTrueVec, yPredVec)
}

// BinaryLogLoss は二値分類の対数損失を計算する
// 予測確率は [eps, 1-eps] にクリッピングされる
func BinaryLogLoss(yTrue, yPred *mat.VecDense) (float64, error) {
	if yTrue == nil || yPred == nil {
		return 0, errors.NewValueError("BinaryLogLoss", "empty vector")
	}
	n := yTrue.Len()
	if n == 0 {
		return 0, errors.NewValueError("BinaryLogLoss", "empty vector")
	}
	if yPred.Len() != n {
		return 0, errors.NewDimensionError("BinaryLogLoss", n, yPred.Len(), 0)
	}
	if err := validateBinaryLabels("BinaryLogLoss", yTrue); err != nil {
		return 0, err
	}

	var sum float64
	for i := 0; i < n; i++ {
		p := yPred.AtVec(i)
		if p < logLossEpsilon {
			p = logLossEpsilon
		} else if p > 1-logLossEpsilon {
			p = 1 - logLossEpsilon
		}
		if yTrue.AtVec(i) == 1 {
			sum -= math.Log(p)
		} else {
			sum -= math.Log(1 - p)
		}
	}
	return sum / float64(n), nil
}

// ClassificationError は誤分類率を計算する
func ClassificationError(yTrue, yPred *mat.VecDense) (float64, error) {
	if yTrue == nil || yPred == nil {
		return 0, errors.NewValueError("ClassificationError", "empty vector")
	}
	n := yTrue.Len()
	if n == 0 {
		return 0, errors.NewValueError("ClassificationError", "empty vector")
	}
	if yPred.Len() != n {
		return 0, errors.NewDimensionError("ClassificationError", n, yPred.Len(), 0)
	}

	wrong := 0
	for i := 0; i < n; i++ {
		if yTrue.AtVec(i) != yPred.AtVec(i) {
			wrong++
		}
	}
	return float64(wrong) / float64(n), nil
}

// Accuracy は正解率（1 - 誤分類率）を計算する
func Accuracy(yTrue, yPred *mat.VecDense) (float64, error) {
	errRate, err := ClassificationError(yTrue, yPred)
	if err != nil {
		return 0, err
	}
	return 1 - errRate, nil
}
