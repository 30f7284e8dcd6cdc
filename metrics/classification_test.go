package metrics

import (
	"math"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/chdrisk/pkg/errors"
)

// vec は空スライスならnilを返す（空入力のエラーを確認するため）
func vec(v []float64) *mat.VecDense {
	if len(v) == 0 {
		return nil
	}
	return FromLabels(v)
}

func TestLabelMetrics(t *testing.T) {
	tests := []struct {
		name    string
		metric  func(yTrue, yPred *mat.VecDense) (float64, error)
		yTrue   []float64
		yPred   []float64
		want    float64
		wantErr bool
	}{
		{name: "accuracy/all correct", metric: Accuracy, yTrue: []float64{0, 1, 1, 0}, yPred: []float64{0, 1, 1, 0}, want: 1},
		{name: "accuracy/three of four", metric: Accuracy, yTrue: []float64{0, 1, 1, 0}, yPred: []float64{0, 1, 0, 0}, want: 0.75},
		{name: "accuracy/multiclass", metric: Accuracy, yTrue: []float64{0, 1, 2, 1, 0}, yPred: []float64{0, 1, 1, 1, 0}, want: 0.8},
		{name: "accuracy/none correct", metric: Accuracy, yTrue: []float64{1, 1, 1}, yPred: []float64{0, 0, 0}, want: 0},
		{name: "accuracy/empty", metric: Accuracy, wantErr: true},
		{name: "accuracy/length mismatch", metric: Accuracy, yTrue: []float64{0, 1}, yPred: []float64{0}, wantErr: true},
		{name: "error/complement of accuracy", metric: ClassificationError, yTrue: []float64{0, 1, 1, 0}, yPred: []float64{0, 1, 0, 0}, want: 0.25},
		{name: "error/empty", metric: ClassificationError, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.metric(vec(tt.yTrue), vec(tt.yPred))
			if (err != nil) != tt.wantErr {
				t.Fatalf("error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestScoreMetrics(t *testing.T) {
	tests := []struct {
		name    string
		metric  func(yTrue, yScore *mat.VecDense) (float64, error)
		yTrue   []float64
		yScore  []float64
		want    float64
		wantErr bool
	}{
		{name: "auc/ranked perfectly", metric: AUC, yTrue: []float64{0, 0, 1, 1}, yScore: []float64{0.2, 0.3, 0.6, 0.7}, want: 1},
		{name: "auc/ranked backwards", metric: AUC, yTrue: []float64{0, 0, 1, 1}, yScore: []float64{0.7, 0.6, 0.3, 0.2}, want: 0},
		{name: "auc/one swapped pair", metric: AUC, yTrue: []float64{0, 0, 1, 1}, yScore: []float64{0.1, 0.4, 0.35, 0.8}, want: 0.75},
		{name: "auc/ties count half", metric: AUC, yTrue: []float64{0, 1, 0, 1}, yScore: []float64{0.5, 0.5, 0.5, 0.5}, want: 0.5},
		{name: "auc/single class is undefined", metric: AUC, yTrue: []float64{1, 1, 1}, yScore: []float64{0.1, 0.5, 0.9}, want: 0.5},
		{name: "auc/non binary labels", metric: AUC, yTrue: []float64{0, 2, 1}, yScore: []float64{0.1, 0.5, 0.9}, wantErr: true},
		{name: "auc/empty", metric: AUC, wantErr: true},
		{name: "logloss/confident and right", metric: BinaryLogLoss, yTrue: []float64{0, 1}, yScore: []float64{0, 1}, want: 0},
		{name: "logloss/mostly right", metric: BinaryLogLoss, yTrue: []float64{0, 0, 1, 1}, yScore: []float64{0.1, 0.2, 0.8, 0.9}, want: -(math.Log(0.9) + math.Log(0.8)) / 2},
		{name: "logloss/confident and wrong", metric: BinaryLogLoss, yTrue: []float64{0, 1}, yScore: []float64{0.9, 0.1}, want: -math.Log(0.1)},
		{name: "logloss/non binary labels", metric: BinaryLogLoss, yTrue: []float64{0, 0.5}, yScore: []float64{0.1, 0.5}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.metric(vec(tt.yTrue), vec(tt.yScore))
			if (err != nil) != tt.wantErr {
				t.Fatalf("error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && math.Abs(got-tt.want) > 1e-6 {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAUCMatrix(t *testing.T) {
	// 2列目は無視される
	yTrue := mat.NewDense(4, 2, []float64{0, 7, 0, 7, 1, 7, 1, 7})
	yScore := mat.NewDense(4, 2, []float64{0.1, 7, 0.4, 7, 0.35, 7, 0.8, 7})
	got, err := AUCMatrix(yTrue, yScore)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(got-0.75) > 1e-9 {
		t.Errorf("AUCMatrix() = %v, want 0.75", got)
	}
	if _, err := AUCMatrix(nil, yScore); err == nil {
		t.Error("expected error for nil matrix")
	}
}

func TestF1Score(t *testing.T) {
	// TP=2, FP=1, FN=1, TN=2
	yTrue := FromLabels([]float64{1, 1, 1, 0, 0, 0})
	yPred := FromLabels([]float64{1, 1, 0, 1, 0, 0})

	tests := []struct {
		name    string
		average string
		want    float64
		wantErr bool
	}{
		{name: "binary", average: AverageBinary, want: 2.0 / 3.0},
		{name: "macro", average: AverageMacro, want: 2.0 / 3.0},
		{name: "weighted", average: AverageWeighted, want: 2.0 / 3.0},
		{name: "unknown average", average: "micro", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := F1Score(yTrue, yPred, tt.average)
			if (err != nil) != tt.wantErr {
				t.Fatalf("F1Score() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("F1Score() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPrecisionRecallImbalanced(t *testing.T) {
	// クラス0: 4件中3件正解、クラス1: 2件中1件正解、予測1は2件
	yTrue := FromLabels([]float64{0, 0, 0, 0, 1, 1})
	yPred := FromLabels([]float64{0, 0, 0, 1, 1, 0})

	p, err := PrecisionScore(yTrue, yPred, AverageBinary)
	if err != nil {
		t.Fatalf("PrecisionScore() error = %v", err)
	}
	if math.Abs(p-0.5) > 1e-9 {
		t.Errorf("precision = %v, want 0.5", p)
	}
	r, err := RecallScore(yTrue, yPred, AverageBinary)
	if err != nil {
		t.Fatalf("RecallScore() error = %v", err)
	}
	if math.Abs(r-0.5) > 1e-9 {
		t.Errorf("recall = %v, want 0.5", r)
	}

	// weighted F1 = (4*0.75 + 2*0.5) / 6
	wf1, err := F1Score(yTrue, yPred, AverageWeighted)
	if err != nil {
		t.Fatalf("F1Score() error = %v", err)
	}
	if want := (4*0.75 + 2*0.5) / 6; math.Abs(wf1-want) > 1e-9 {
		t.Errorf("weighted f1 = %v, want %v", wf1, want)
	}
}

func TestF1ScoreUndefined(t *testing.T) {
	var warnings []error
	errors.SetWarningHandler(func(w error) { warnings = append(warnings, w) })
	defer errors.SetWarningHandler(func(error) {})

	// 陽性の予測が一つもない: precisionは定義できず0
	yTrue := FromLabels([]float64{0, 1, 0, 1})
	yPred := FromLabels([]float64{0, 0, 0, 0})
	f1, err := F1Score(yTrue, yPred, AverageBinary)
	if err != nil {
		t.Fatalf("F1Score() error = %v", err)
	}
	if f1 != 0 {
		t.Errorf("F1Score() = %v, want 0", f1)
	}
	var undefined *errors.UndefinedMetricWarning
	found := false
	for _, w := range warnings {
		if errors.As(w, &undefined) {
			found = true
		}
	}
	if !found {
		t.Error("expected an UndefinedMetricWarning")
	}

	if _, err := F1Score(FromLabels([]float64{0, 2}), FromLabels([]float64{0, 2}), AverageBinary); err == nil {
		t.Error("binary average with label 2 should fail")
	}
}

func TestConfusionMatrix(t *testing.T) {
	yTrue := FromLabels([]float64{0, 0, 0, 1, 1, 0, 1})
	yPred := FromLabels([]float64{0, 1, 0, 1, 0, 0, 1})

	cm, labels, err := ConfusionMatrix(yTrue, yPred, []int{0, 1})
	if err != nil {
		t.Fatalf("ConfusionMatrix() error = %v", err)
	}
	if diff := cmp.Diff([]int{0, 1}, labels); diff != "" {
		t.Errorf("labels mismatch (-want +got):\n%s", diff)
	}
	want := [][]float64{{3, 1}, {1, 2}}
	got := [][]float64{mat.Row(nil, 0, cm), mat.Row(nil, 1, cm)}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("confusion matrix mismatch (-want +got):\n%s", diff)
	}

	// 行和はクラスごとの件数
	if mat.Sum(cm.RowView(0)) != 4 || mat.Sum(cm.RowView(1)) != 3 {
		t.Errorf("row sums should equal per-class counts: %v", mat.Formatted(cm))
	}

	if _, _, err := ConfusionMatrix(yTrue, FromLabels([]float64{0}), nil); err == nil {
		t.Error("expected dimension error")
	}
}

func TestClassificationReport(t *testing.T) {
	yTrue := FromLabels([]float64{0, 0, 0, 0, 1, 1})
	yPred := FromLabels([]float64{0, 0, 0, 1, 1, 0})

	r, err := NewClassificationReport(yTrue, yPred, 2)
	if err != nil {
		t.Fatalf("NewClassificationReport() error = %v", err)
	}
	if math.Abs(r.Accuracy-4.0/6.0) > 1e-9 {
		t.Errorf("accuracy = %v", r.Accuracy)
	}
	text := r.String()
	for _, want := range []string{"precision", "recall", "f1-score", "support", "accuracy", "macro avg", "weighted avg", "0.75"} {
		if !strings.Contains(text, want) {
			t.Errorf("report missing %q:\n%s", want, text)
		}
	}
}

func TestColumnVector(t *testing.T) {
	v, err := ColumnVector(mat.NewDense(3, 2, []float64{1, 9, 2, 9, 3, 9}))
	if err != nil {
		t.Fatalf("ColumnVector() error = %v", err)
	}
	if diff := cmp.Diff([]float64{1, 2, 3}, v.RawVector().Data); diff != "" {
		t.Errorf("ColumnVector mismatch (-want +got):\n%s", diff)
	}
	if _, err := ColumnVector(nil); err == nil {
		t.Error("expected error for nil matrix")
	}
}

func BenchmarkF1Score(b *testing.B) {
	n := 1000
	yTrue := make([]float64, n)
	yPred := make([]float64, n)
	for i := range yTrue {
		yTrue[i] = float64(i % 2)
		yPred[i] = float64((i / 3) % 2)
	}
	t, p := FromLabels(yTrue), FromLabels(yPred)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = F1Score(t, p, AverageWeighted)
	}
}
