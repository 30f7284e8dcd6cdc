package ensemble

import (
	"math"
	"math/rand/v2"
	"testing"

	"gonum.org/v1/gonum/mat"
)

// makeBlobs は特徴量0だけがクラスを決める2クラスのデータを作ります。
func makeBlobs(n int, seed uint64) (*mat.Dense, *mat.Dense) {
	rng := rand.New(rand.NewPCG(seed, seed))
	X := mat.NewDense(n, 3, nil)
	y := mat.NewDense(n, 1, nil)
	for i := 0; i < n; i++ {
		label := float64(i % 2)
		X.Set(i, 0, label*4+rng.NormFloat64()*0.5)
		X.Set(i, 1, rng.NormFloat64())
		X.Set(i, 2, rng.NormFloat64())
		y.Set(i, 0, label)
	}
	return X, y
}

func TestRandomForestClassifier_FitPredict(t *testing.T) {
	X, y := makeBlobs(200, 1)
	rf := NewRandomForestClassifier(WithNEstimators(25), WithRandomState(42))

	if err := rf.Fit(X, y); err != nil {
		t.Fatalf("Failed to fit: %v", err)
	}
	if score := rf.Score(X, y); score < 0.95 {
		t.Errorf("expected training accuracy >= 0.95, got %v", score)
	}

	proba, err := rf.PredictProba(X)
	if err != nil {
		t.Fatal(err)
	}
	rows, cols := proba.Dims()
	if rows != 200 || cols != 2 {
		t.Fatalf("proba shape = (%d, %d)", rows, cols)
	}
	for i := 0; i < rows; i++ {
		if s := proba.At(i, 0) + proba.At(i, 1); math.Abs(s-1) > 1e-9 {
			t.Fatalf("row %d probabilities sum to %v", i, s)
		}
	}
}

func TestRandomForestClassifier_FeatureImportances(t *testing.T) {
	X, y := makeBlobs(300, 2)
	rf := NewRandomForestClassifier(WithNEstimators(30), WithRandomState(7))
	if err := rf.Fit(X, y); err != nil {
		t.Fatal(err)
	}

	imp := rf.GetFeatureImportances()
	if len(imp) != 3 {
		t.Fatalf("expected 3 importances, got %d", len(imp))
	}
	sum := 0.0
	for _, v := range imp {
		if v < 0 {
			t.Errorf("negative importance %v", v)
		}
		sum += v
	}
	if math.Abs(sum-1) > 1e-9 {
		t.Errorf("importances should sum to 1, got %v", sum)
	}
	if imp[0] <= imp[1] || imp[0] <= imp[2] {
		t.Errorf("feature 0 should dominate: %v", imp)
	}
}

func TestRandomForestClassifier_DeterministicAcrossWorkers(t *testing.T) {
	X, y := makeBlobs(120, 3)

	fit := func(jobs int) *RandomForestClassifier {
		rf := NewRandomForestClassifier(WithNEstimators(15), WithRandomState(42), WithNJobs(jobs), WithMaxDepth(4))
		if err := rf.Fit(X, y); err != nil {
			t.Fatal(err)
		}
		return rf
	}
	a, b := fit(1), fit(8)

	pa, _ := a.PredictProba(X)
	pb, _ := b.PredictProba(X)
	if !mat.EqualApprox(pa, pb, 1e-12) {
		t.Error("forest must not depend on the number of workers")
	}
	for _, est := range a.Estimators() {
		if est.GetDepth() > 4 {
			t.Errorf("tree depth %d exceeds max_depth", est.GetDepth())
		}
	}
}

func TestRandomForestClassifier_Params(t *testing.T) {
	rf := NewRandomForestClassifier()
	params := rf.GetParams()
	if params["n_estimators"] != 100 || params["max_features"] != "sqrt" {
		t.Errorf("unexpected defaults %v", params)
	}

	err := rf.SetParams(map[string]interface{}{
		"n_estimators":      50,
		"max_depth":         12,
		"min_samples_split": 5,
		"min_samples_leaf":  2,
		"max_features":      "auto",
	})
	if err != nil {
		t.Fatal(err)
	}
	clone := rf.Clone().(*RandomForestClassifier)
	if clone.nEstimators != 50 || clone.maxDepth != 12 || clone.maxFeatures != "auto" {
		t.Errorf("clone params = %v", clone.GetParams())
	}
	if err := rf.SetParams(map[string]interface{}{"oob_score": true}); err == nil {
		t.Error("expected error for unknown parameter")
	}
}

func TestRandomForestClassifier_NotFitted(t *testing.T) {
	rf := NewRandomForestClassifier()
	if _, err := rf.Predict(mat.NewDense(1, 3, nil)); err == nil {
		t.Error("expected error before Fit")
	}
}
