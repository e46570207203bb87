// Package metrics は二値分類モデルの評価指標を提供します。
// ラベルは 0（neg）と 1（pos）で表現されます。
package metrics

import (
	"math"
	"sort"

	"github.com/YuminosukeSato/airpressure/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// checkPair は2つのベクトルが非nil・非空・同じ長さであることを確認する
func checkPair(op string, yTrue, yPred *mat.VecDense) (int, error) {
	if yTrue == nil || yPred == nil {
		return 0, errors.NewValueError(op, "nil vector")
	}
	n := yTrue.Len()
	if n == 0 {
		return 0, errors.NewValueError(op, "empty vector")
	}
	if yPred.Len() != n {
		return 0, errors.NewDimensionError(op, n, yPred.Len(), 0)
	}
	return n, nil
}

func checkBinary(op string, v *mat.VecDense) error {
	for i := 0; i < v.Len(); i++ {
		if x := v.AtVec(i); x != 0 && x != 1 {
			return errors.NewValueError(op, "labels must be 0 or 1")
		}
	}
	return nil
}

// Accuracy は正解率を計算する
func Accuracy(yTrue, yPred *mat.VecDense) (float64, error) {
	n, err := checkPair("Accuracy", yTrue, yPred)
	if err != nil {
		return 0, err
	}
	correct := 0
	for i := 0; i < n; i++ {
		if yTrue.AtVec(i) == yPred.AtVec(i) {
			correct++
		}
	}
	return float64(correct) / float64(n), nil
}

// ConfusionMatrix は2×2の混同行列を返す。行が正解ラベル、列が予測ラベル。
//
//	[[TN, FP],
//	 [FN, TP]]
func ConfusionMatrix(yTrue, yPred *mat.VecDense) (*mat.Dense, error) {
	n, err := checkPair("ConfusionMatrix", yTrue, yPred)
	if err != nil {
		return nil, err
	}
	if err := checkBinary("ConfusionMatrix", yTrue); err != nil {
		return nil, err
	}
	if err := checkBinary("ConfusionMatrix", yPred); err != nil {
		return nil, err
	}
	cm := mat.NewDense(2, 2, nil)
	for i := 0; i < n; i++ {
		r, c := int(yTrue.AtVec(i)), int(yPred.AtVec(i))
		cm.Set(r, c, cm.At(r, c)+1)
	}
	return cm, nil
}

func counts(op string, yTrue, yPred *mat.VecDense) (tp, fp, fn float64, err error) {
	cm, err := ConfusionMatrix(yTrue, yPred)
	if err != nil {
		return 0, 0, 0, errors.Wrapf(err, "%s", op)
	}
	return cm.At(1, 1), cm.At(0, 1), cm.At(1, 0), nil
}

// ratio は分母が0の場合に警告を出して0を返す
func ratio(metric, condition string, num, den float64) float64 {
	if den == 0 {
		errors.Warn(errors.NewUndefinedMetricWarning(metric, condition, 0))
		return 0
	}
	return num / den
}

// Precision は陽性クラスの適合率 TP/(TP+FP) を計算する
func Precision(yTrue, yPred *mat.VecDense) (float64, error) {
	tp, fp, _, err := counts("Precision", yTrue, yPred)
	if err != nil {
		return 0, err
	}
	return ratio("precision", "no predicted samples", tp, tp+fp), nil
}

// Recall は陽性クラスの再現率 TP/(TP+FN) を計算する
func Recall(yTrue, yPred *mat.VecDense) (float64, error) {
	tp, _, fn, err := counts("Recall", yTrue, yPred)
	if err != nil {
		return 0, err
	}
	return ratio("recall", "no true samples", tp, tp+fn), nil
}

// F1Score は適合率と再現率の調和平均 2TP/(2TP+FP+FN) を計算する
func F1Score(yTrue, yPred *mat.VecDense) (float64, error) {
	tp, fp, fn, err := counts("F1Score", yTrue, yPred)
	if err != nil {
		return 0, err
	}
	return ratio("f1_score", "no true nor predicted samples", 2*tp, 2*tp+fp+fn), nil
}

// AUC はROC曲線下面積を Mann-Whitney の順位和で計算する。
// 同順位のスコアには平均順位を割り当てる。
// yTrue が片方のクラスしか含まない場合は UndefinedMetricWarning を出して 0.5 を返す。
func AUC(yTrue, yScore *mat.VecDense) (float64, error) {
	n, err := checkPair("AUC", yTrue, yScore)
	if err != nil {
		return 0, err
	}
	if err := checkBinary("AUC", yTrue); err != nil {
		return 0, err
	}

	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return yScore.AtVec(idx[a]) < yScore.AtVec(idx[b])
	})

	var nPos, rankSum float64
	for i := 0; i < n; {
		j := i
		for j+1 < n && yScore.AtVec(idx[j+1]) == yScore.AtVec(idx[i]) {
			j++
		}
		// 順位は1始まり
		avgRank := float64(i+j)/2 + 1
		for k := i; k <= j; k++ {
			if yTrue.AtVec(idx[k]) == 1 {
				nPos++
				rankSum += avgRank
			}
		}
		i = j + 1
	}

	nNeg := float64(n) - nPos
	if nPos == 0 || nNeg == 0 {
		errors.Warn(errors.NewUndefinedMetricWarning("roc_auc", "only one class present in y_true", 0.5))
		return 0.5, nil
	}
	auc := (rankSum - nPos*(nPos+1)/2) / (nPos * nNeg)
	if math.IsNaN(auc) {
		return 0, errors.NewNumericError("AUC", "non-finite score")
	}
	return auc, nil
}

// AUCMatrix は行列入力の先頭列を使ってAUCを計算する
func AUCMatrix(yTrue, yScore mat.Matrix) (float64, error) {
	if yTrue == nil || yScore == nil {
		return 0, errors.NewValueError("AUCMatrix", "nil matrix")
	}
	if d, ok := yTrue.(*mat.Dense); ok && d.IsEmpty() {
		return 0, errors.NewValueError("AUCMatrix", "empty matrix")
	}
	if d, ok := yScore.(*mat.Dense); ok && d.IsEmpty() {
		return 0, errors.NewValueError("AUCMatrix", "empty matrix")
	}
	return AUC(firstColumn(yTrue), firstColumn(yScore))
}

func firstColumn(m mat.Matrix) *mat.VecDense {
	r, _ := m.Dims()
	return mat.NewVecDense(r, mat.Col(nil, 0, m))
}

// BinaryLogLoss は二値クロスエントロピーを計算する。確率は [eps, 1-eps] に丸める。
func BinaryLogLoss(yTrue, yProb *mat.VecDense) (float64, error) {
	n, err := checkPair("BinaryLogLoss", yTrue, yProb)
	if err != nil {
		return 0, err
	}
	if err := checkBinary("BinaryLogLoss", yTrue); err != nil {
		return 0, err
	}
	const eps = 1e-15
	var sum float64
	for i := 0; i < n; i++ {
		p := math.Min(math.Max(yProb.AtVec(i), eps), 1-eps)
		if yTrue.AtVec(i) == 1 {
			sum -= math.Log(p)
		} else {
			sum -= math.Log(1 - p)
		}
	}
	return sum / float64(n), nil
}
