package metrics

import (
	"fmt"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// ClassificationReport はクラスごとの precision / recall / f1-score / support と
// accuracy、macro avg、weighted avg をまとめたものです。
type ClassificationReport struct {
	Scores   *ClassScores
	Accuracy float64
	Macro    [3]float64 // precision, recall, f1
	Weighted [3]float64
	Total    int
	Digits   int
}

// NewClassificationReport は分類レポートを計算する
func NewClassificationReport(yTrue, yPred *mat.VecDense, digits int) (*ClassificationReport, error) {
	s, err := PrecisionRecallFScoreSupport(yTrue, yPred)
	if err != nil {
		return nil, err
	}
	acc, err := Accuracy(yTrue, yPred)
	if err != nil {
		return nil, err
	}
	r := &ClassificationReport{Scores: s, Accuracy: acc, Total: yTrue.Len(), Digits: digits}
	for i, values := range [][]float64{s.Precision, s.Recall, s.F1} {
		r.Macro[i], _ = s.average(values, AverageMacro)
		r.Weighted[i], _ = s.average(values, AverageWeighted)
	}
	return r, nil
}

// String はscikit-learnのclassification_reportと同じ体裁のテキストを返す
func (r *ClassificationReport) String() string {
	d := r.Digits
	if d <= 0 {
		d = 2
	}
	const width = 12
	var b strings.Builder
	fmt.Fprintf(&b, "%*s %9s %9s %9s %9s\n\n", width, "", "precision", "recall", "f1-score", "support")
	for i, l := range r.Scores.Labels {
		fmt.Fprintf(&b, "%*d %9.*f %9.*f %9.*f %9d\n", width, l,
			d, r.Scores.Precision[i], d, r.Scores.Recall[i], d, r.Scores.F1[i], r.Scores.Support[i])
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "%*s %9s %9s %9.*f %9d\n", width, "accuracy", "", "", d, r.Accuracy, r.Total)
	fmt.Fprintf(&b, "%*s %9.*f %9.*f %9.*f %9d\n", width, "macro avg",
		d, r.Macro[0], d, r.Macro[1], d, r.Macro[2], r.Total)
	fmt.Fprintf(&b, "%*s %9.*f %9.*f %9.*f %9d\n", width, "weighted avg",
		d, r.Weighted[0], d, r.Weighted[1], d, r.Weighted[2], r.Total)
	return b.String()
}
