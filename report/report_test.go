package report

import (
	"bytes"
	"strings"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/chdrisk/dataset"
	"github.com/YuminosukeSato/chdrisk/metrics"
)

func TestPercent(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0.87654, "87.65%"},
		{0.5, "50.00%"},
		{1, "100.00%"},
		{0, "0.00%"},
		{0.123449, "12.34%"},
	}
	for _, tt := range tests {
		if got := Percent(tt.in); got != tt.want {
			t.Errorf("Percent(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRatio(t *testing.T) {
	tests := []struct {
		a, b int
		want string
	}{
		{3099, 557, "5.56"},
		{10, 7, "1.43"},
		{4, 2, "2"},
		{1, 0, "inf"},
	}
	for _, tt := range tests {
		if got := Ratio(tt.a, tt.b); got != tt.want {
			t.Errorf("Ratio(%d, %d) = %q, want %q", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestClassBalance(t *testing.T) {
	var buf bytes.Buffer
	New(&buf).ClassBalance(map[int]int{0: 3099, 1: 557}, map[int]int{0: 3098, 1: 2169})
	out := buf.String()
	for _, want := range []string{"Class balance", "3099", "557", "2169", "5.56", "1.43"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestModelAndSummary(t *testing.T) {
	yTrue := mat.NewVecDense(6, []float64{0, 0, 0, 1, 1, 1})
	yPred := mat.NewVecDense(6, []float64{0, 0, 1, 1, 1, 0})
	cm, labels, err := metrics.ConfusionMatrix(yTrue, yPred, []int{0, 1})
	if err != nil {
		t.Fatal(err)
	}
	rep, err := metrics.NewClassificationReport(yTrue, yPred, 2)
	if err != nil {
		t.Fatal(err)
	}

	score := ModelScore{
		Name:       "KNN",
		BestParams: map[string]interface{}{"n_neighbors": 3},
		CVScore:    0.71234,
		Accuracy:   4.0 / 6.0,
		F1:         2.0 / 3.0,
		Confusion:  cm,
		Labels:     labels,
		Report:     rep,
	}

	var buf bytes.Buffer
	p := New(&buf)
	p.Model(score)
	p.Summary([]ModelScore{score, {Name: "SVM", Accuracy: 0.5, F1: 0.25}})
	out := buf.String()

	for _, want := range []string{
		"n_neighbors=3",
		"0.7123",
		"66.67%",
		"KNN confusion matrix",
		"precision",
		"Model comparison",
		"SVM",
		"25.00%",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestCorrelationAndImportance(t *testing.T) {
	var buf bytes.Buffer
	p := New(&buf)
	p.Correlation([]dataset.FeatureCorrelation{{Name: "age", R: 0.23}, {Name: "sex", R: 0.09}})
	p.Importance([]string{"sex", "age", "sysBP"}, []float64{0.1, 0.5, 0.4})
	out := buf.String()

	if !strings.Contains(out, "Correlation with target variable") {
		t.Errorf("missing correlation title:\n%s", out)
	}
	// 重要度は降順で並ぶ
	iAge := strings.LastIndex(out, "0.500000")
	iBP := strings.LastIndex(out, "0.400000")
	iSex := strings.LastIndex(out, "0.100000")
	if iAge < 0 || iBP < 0 || iSex < 0 {
		t.Fatalf("missing importance rows:\n%s", out)
	}
	if !(iAge < iBP && iBP < iSex) {
		t.Errorf("importances not in descending order:\n%s", out)
	}
}

func TestTitlesAreNotWrapped(t *testing.T) {
	var buf bytes.Buffer
	p := New(&buf)
	p.Model(ModelScore{
		Name:      "Logistic Regression",
		Accuracy:  0.75,
		F1:        0.5,
		Confusion: mat.NewDense(2, 2, []float64{3, 1, 1, 1}),
		Labels:    []int{0, 1},
	})
	p.Correlation([]dataset.FeatureCorrelation{{Name: "age", R: 0.23}})
	out := buf.String()

	for _, title := range []string{"Logistic Regression confusion matrix", "Correlation with target variable"} {
		if !strings.Contains(out, title) {
			t.Errorf("title %q is split across lines:\n%s", title, out)
		}
	}
}

func TestMarkdown(t *testing.T) {
	var buf bytes.Buffer
	NewMarkdown(&buf).Summary([]ModelScore{{Name: "Random Forest", Accuracy: 0.9, F1: 0.8}})
	out := buf.String()
	if !strings.Contains(out, "| Random Forest |") {
		t.Errorf("expected a markdown row:\n%s", out)
	}
}
