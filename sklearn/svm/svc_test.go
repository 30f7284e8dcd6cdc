package svm

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/chdrisk/pkg/errors"
)

func TestSVC_LinearSeparable(t *testing.T) {
	X := mat.NewDense(8, 2, []float64{
		0, 0,
		0, 1,
		1, 0,
		1, 1,
		4, 4,
		4, 5,
		5, 4,
		5, 5,
	})
	y := mat.NewDense(8, 1, []float64{0, 0, 0, 0, 1, 1, 1, 1})

	for _, kernel := range []string{"linear", "rbf"} {
		t.Run(kernel, func(t *testing.T) {
			svc := NewSVC(WithKernel(kernel), WithC(10), WithGamma(0.5))
			if err := svc.Fit(X, y); err != nil {
				t.Fatalf("Failed to fit: %v", err)
			}
			if score := svc.Score(X, y); score != 1.0 {
				t.Errorf("expected perfect training accuracy, got %v", score)
			}

			// 双対変数の等式制約 Σ α_i y_i = 0
			sum := 0.0
			for _, c := range svc.DualCoef() {
				sum += c
				if math.Abs(c) > 10+1e-9 {
					t.Errorf("|alpha*y| = %v exceeds C", c)
				}
			}
			if math.Abs(sum) > 1e-9 {
				t.Errorf("sum of alpha*y = %v, want 0", sum)
			}

			dec, err := svc.DecisionFunction(mat.NewDense(2, 2, []float64{0.5, 0.5, 4.5, 4.5}))
			if err != nil {
				t.Fatal(err)
			}
			if dec[0] >= 0 || dec[1] <= 0 {
				t.Errorf("decision values have wrong signs: %v", dec)
			}
		})
	}
}

func TestSVC_RBFSolvesXOR(t *testing.T) {
	X := mat.NewDense(8, 2, []float64{
		0, 0,
		0.1, 0.1,
		1, 1,
		0.9, 0.9,
		0, 1,
		0.1, 0.9,
		1, 0,
		0.9, 0.1,
	})
	y := mat.NewDense(8, 1, []float64{0, 0, 0, 0, 1, 1, 1, 1})

	svc := NewSVC(WithC(100), WithGamma(2))
	if err := svc.Fit(X, y); err != nil {
		t.Fatal(err)
	}
	if score := svc.Score(X, y); score != 1.0 {
		t.Errorf("RBF kernel should separate XOR, got accuracy %v", score)
	}
	if svc.NSupport() == 0 {
		t.Error("expected support vectors")
	}
}

func TestSVC_NonStandardLabels(t *testing.T) {
	X := mat.NewDense(4, 1, []float64{-2, -1, 1, 2})
	y := mat.NewDense(4, 1, []float64{3, 3, 7, 7})

	svc := NewSVC(WithKernel("linear"))
	if err := svc.Fit(X, y); err != nil {
		t.Fatal(err)
	}
	pred, _ := svc.Predict(X)
	if !mat.Equal(pred, y) {
		t.Errorf("predictions %v, want %v", mat.Formatted(pred.T()), mat.Formatted(y.T()))
	}
	if c := svc.Classes(); c[0] != 3 || c[1] != 7 {
		t.Errorf("Classes() = %v", c)
	}
}

func TestSVC_ConvergenceWarning(t *testing.T) {
	var warned []error
	errors.SetZerologWarnFunc(func(w error) { warned = append(warned, w) })
	defer errors.SetZerologWarnFunc(nil)

	X := mat.NewDense(6, 1, []float64{0, 1, 2, 3, 4, 5})
	y := mat.NewDense(6, 1, []float64{0, 1, 0, 1, 0, 1})

	svc := NewSVC(WithMaxIter(1), WithGamma(1))
	if err := svc.Fit(X, y); err != nil {
		t.Fatal(err)
	}
	if len(warned) != 1 {
		t.Fatalf("expected one convergence warning, got %d", len(warned))
	}
	var cw *errors.ConvergenceWarning
	if !errors.As(warned[0], &cw) {
		t.Errorf("expected ConvergenceWarning, got %T", warned[0])
	}
}

func TestSVC_Params(t *testing.T) {
	svc := NewSVC()
	if err := svc.SetParams(map[string]interface{}{"C": 0.01, "gamma": 0.1}); err != nil {
		t.Fatal(err)
	}
	params := svc.Clone().GetParams()
	if params["C"] != 0.01 || params["gamma"] != 0.1 {
		t.Errorf("unexpected params %v", params)
	}
	if err := svc.SetParams(map[string]interface{}{"gamma": "auto"}); err != nil {
		t.Fatal(err)
	}
	if svc.GetParams()["gamma"] != "auto" {
		t.Errorf("gamma mode not applied: %v", svc.GetParams())
	}

	X := mat.NewDense(4, 1, []float64{0, 1, 2, 3})
	if err := NewSVC(WithC(0)).Fit(X, mat.NewDense(4, 1, []float64{0, 0, 1, 1})); err == nil {
		t.Error("C=0 should be rejected")
	}
	if err := NewSVC().Fit(X, mat.NewDense(4, 1, []float64{0, 1, 2, 1})); err == nil {
		t.Error("three classes should be rejected")
	}
	if _, err := NewSVC().Predict(X); err == nil {
		t.Error("Predict before Fit should fail")
	}
}
