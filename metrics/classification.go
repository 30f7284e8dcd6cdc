// Package metrics は分類モデルの評価指標を提供します。
package metrics

import (
	"math"
	"slices"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/chdrisk/pkg/errors"
)

// F1やprecisionの平均化方法
const (
	AverageBinary   = "binary"   // 陽性ラベル(1)のみ
	AverageMacro    = "macro"    // クラスごとの値の単純平均
	AverageWeighted = "weighted" // サポート数による加重平均
)

// PositiveLabel は二値指標で陽性とみなすラベルです。
const PositiveLabel = 1

// checkPair は2つのベクトルが空でなく同じ長さであることを確認する
func checkPair(op string, yTrue, yPred *mat.VecDense) (int, error) {
	if yTrue == nil || yPred == nil || yTrue.Len() == 0 {
		return 0, errors.NewValueError(op, "empty vector")
	}
	n := yTrue.Len()
	if yPred.Len() != n {
		return 0, errors.NewDimensionError(op, n, yPred.Len(), 0)
	}
	return n, nil
}

// ColumnVector は行列の第1列をベクトルとして取り出す。
// Predictの戻り値（n×1行列）を指標関数に渡すときに使う。
func ColumnVector(m mat.Matrix) (*mat.VecDense, error) {
	if m == nil {
		return nil, errors.NewValueError("ColumnVector", "nil matrix")
	}
	r, c := m.Dims()
	if r == 0 || c == 0 {
		return nil, errors.NewValueError("ColumnVector", "empty matrix")
	}
	v := mat.NewVecDense(r, nil)
	for i := 0; i < r; i++ {
		v.SetVec(i, m.At(i, 0))
	}
	return v, nil
}

// FromLabels は整数ラベルのスライスをベクトルに変換する
func FromLabels(labels []float64) *mat.VecDense {
	if len(labels) == 0 {
		return nil
	}
	return mat.NewVecDense(len(labels), slices.Clone(labels))
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

// ClassificationError は誤分類率（1 - Accuracy）を計算する
func ClassificationError(yTrue, yPred *mat.VecDense) (float64, error) {
	acc, err := Accuracy(yTrue, yPred)
	if err != nil {
		return 0, err
	}
	return 1 - acc, nil
}

func checkBinaryLabels(op string, y *mat.VecDense) error {
	for i := 0; i < y.Len(); i++ {
		if v := y.AtVec(i); v != 0 && v != 1 {
			return errors.NewValueError(op, "labels must be 0 or 1")
		}
	}
	return nil
}

// AUC はROC曲線下面積を計算する（Mann-Whitney U統計量、同順位は平均順位）。
// 片方のクラスしか存在しない場合は定義できないため0.5を返す。
func AUC(yTrue, yScore *mat.VecDense) (float64, error) {
	n, err := checkPair("AUC", yTrue, yScore)
	if err != nil {
		return 0, err
	}
	if err := checkBinaryLabels("AUC", yTrue); err != nil {
		return 0, err
	}

	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return yScore.AtVec(idx[a]) < yScore.AtVec(idx[b]) })

	// 同順位には平均順位を与える
	ranks := make([]float64, n)
	for i := 0; i < n; {
		j := i
		for j+1 < n && yScore.AtVec(idx[j+1]) == yScore.AtVec(idx[i]) {
			j++
		}
		avg := float64(i+j)/2 + 1
		for k := i; k <= j; k++ {
			ranks[idx[k]] = avg
		}
		i = j + 1
	}

	var nPos, nNeg, rankSum float64
	for i := 0; i < n; i++ {
		if yTrue.AtVec(i) == 1 {
			nPos++
			rankSum += ranks[i]
		} else {
			nNeg++
		}
	}
	if nPos == 0 || nNeg == 0 {
		errors.Warn(errors.NewUndefinedMetricWarning("AUC", "only one class present in y_true", 0.5))
		return 0.5, nil
	}
	return (rankSum - nPos*(nPos+1)/2) / (nPos * nNeg), nil
}

// AUCMatrix は行列形式の入力に対してAUCを計算する（第1列を使用）
func AUCMatrix(yTrue, yScore mat.Matrix) (float64, error) {
	t, err := ColumnVector(yTrue)
	if err != nil {
		return 0, errors.Wrap(err, "AUCMatrix")
	}
	s, err := ColumnVector(yScore)
	if err != nil {
		return 0, errors.Wrap(err, "AUCMatrix")
	}
	return AUC(t, s)
}

// BinaryLogLoss は二値クロスエントロピーを計算する。予測確率は [eps, 1-eps] にクリップする。
func BinaryLogLoss(yTrue, yProb *mat.VecDense) (float64, error) {
	n, err := checkPair("BinaryLogLoss", yTrue, yProb)
	if err != nil {
		return 0, err
	}
	if err := checkBinaryLabels("BinaryLogLoss", yTrue); err != nil {
		return 0, err
	}
	const eps = 1e-15
	sum := 0.0
	for i := 0; i < n; i++ {
		p := errors.ClipValue(yProb.AtVec(i), eps, 1-eps)
		if yTrue.AtVec(i) == 1 {
			sum -= math.Log(p)
		} else {
			sum -= math.Log(1 - p)
		}
	}
	return sum / float64(n), nil
}

// uniqueLabels は yTrue と yPred に現れるラベルを昇順で返す
func uniqueLabels(yTrue, yPred *mat.VecDense) []int {
	seen := make(map[int]struct{})
	for i := 0; i < yTrue.Len(); i++ {
		seen[int(yTrue.AtVec(i))] = struct{}{}
		seen[int(yPred.AtVec(i))] = struct{}{}
	}
	labels := make([]int, 0, len(seen))
	for l := range seen {
		labels = append(labels, l)
	}
	slices.Sort(labels)
	return labels
}

// ConfusionMatrix は混同行列を返す。行が実際のラベル、列が予測ラベル。
// labels が nil なら両ベクトルに現れるラベルを昇順で使う。
func ConfusionMatrix(yTrue, yPred *mat.VecDense, labels []int) (*mat.Dense, []int, error) {
	n, err := checkPair("ConfusionMatrix", yTrue, yPred)
	if err != nil {
		return nil, nil, err
	}
	if labels == nil {
		labels = uniqueLabels(yTrue, yPred)
	}
	if len(labels) == 0 {
		return nil, nil, errors.NewValueError("ConfusionMatrix", "labels must not be empty")
	}
	pos := make(map[int]int, len(labels))
	for i, l := range labels {
		pos[l] = i
	}
	cm := mat.NewDense(len(labels), len(labels), nil)
	for i := 0; i < n; i++ {
		r, okT := pos[int(yTrue.AtVec(i))]
		c, okP := pos[int(yPred.AtVec(i))]
		if !okT || !okP {
			continue
		}
		cm.Set(r, c, cm.At(r, c)+1)
	}
	return cm, slices.Clone(labels), nil
}

// ClassScores はクラスごとの precision / recall / F1 / support です。
type ClassScores struct {
	Labels    []int
	Precision []float64
	Recall    []float64
	F1        []float64
	Support   []int
}

// PrecisionRecallFScoreSupport はクラスごとの指標を計算する。
// 分母が0になる指標は0とし、UndefinedMetricWarningを出す。
func PrecisionRecallFScoreSupport(yTrue, yPred *mat.VecDense) (*ClassScores, error) {
	cm, labels, err := ConfusionMatrix(yTrue, yPred, nil)
	if err != nil {
		return nil, err
	}
	k := len(labels)
	s := &ClassScores{
		Labels:    labels,
		Precision: make([]float64, k),
		Recall:    make([]float64, k),
		F1:        make([]float64, k),
		Support:   make([]int, k),
	}
	for c := 0; c < k; c++ {
		tp := cm.At(c, c)
		predicted := mat.Sum(cm.ColView(c))
		actual := mat.Sum(cm.RowView(c))
		s.Support[c] = int(actual)

		if predicted == 0 {
			errors.Warn(errors.NewUndefinedMetricWarning("precision", "no predicted samples for a label", 0))
		} else {
			s.Precision[c] = tp / predicted
		}
		if actual == 0 {
			errors.Warn(errors.NewUndefinedMetricWarning("recall", "no true samples for a label", 0))
		} else {
			s.Recall[c] = tp / actual
		}
		// F1 = 2TP / (2TP + FP + FN)
		if denom := predicted + actual; denom > 0 {
			s.F1[c] = 2 * tp / denom
		}
	}
	return s, nil
}

// average は ClassScores の1指標を平均化する
func (s *ClassScores) average(values []float64, average string) (float64, error) {
	switch average {
	case AverageBinary:
		for i, l := range s.Labels {
			if l != 0 && l != PositiveLabel {
				return 0, errors.NewValueError("metrics", "average='binary' requires labels 0 and 1")
			}
			if l == PositiveLabel {
				return values[i], nil
			}
		}
		// 陽性ラベルがどこにも現れない
		errors.Warn(errors.NewUndefinedMetricWarning("f-score", "no positive samples in y_true or y_pred", 0))
		return 0, nil
	case AverageMacro:
		sum := 0.0
		for _, v := range values {
			sum += v
		}
		return sum / float64(len(values)), nil
	case AverageWeighted:
		sum, total := 0.0, 0
		for i, v := range values {
			sum += v * float64(s.Support[i])
			total += s.Support[i]
		}
		if total == 0 {
			return 0, nil
		}
		return sum / float64(total), nil
	default:
		return 0, errors.NewValidationError("average", "must be binary, macro or weighted", average)
	}
}

// PrecisionScore は適合率を計算する
func PrecisionScore(yTrue, yPred *mat.VecDense, average string) (float64, error) {
	s, err := PrecisionRecallFScoreSupport(yTrue, yPred)
	if err != nil {
		return 0, err
	}
	return s.average(s.Precision, average)
}

// RecallScore は再現率を計算する
func RecallScore(yTrue, yPred *mat.VecDense, average string) (float64, error) {
	s, err := PrecisionRecallFScoreSupport(yTrue, yPred)
	if err != nil {
		return 0, err
	}
	return s.average(s.Recall, average)
}

// F1Score はF1スコアを計算する
func F1Score(yTrue, yPred *mat.VecDense, average string) (float64, error) {
	s, err := PrecisionRecallFScoreSupport(yTrue, yPred)
	if err != nil {
		return 0, err
	}
	return s.average(s.F1, average)
}
