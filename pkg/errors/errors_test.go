package errors

import (
	"fmt"
	"math"
	"strings"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func TestNewModelError(t *testing.T) {
	tests := []struct {
		name    string
		op      string
		kind    string
		err     error
		wantMsg string
	}{
		{
			name:    "with original error",
			op:      "GridSearchCV.Fit",
			kind:    "candidate failed",
			err:     fmt.Errorf("singular hessian"),
			wantMsg: "chdrisk: GridSearchCV.Fit: candidate failed: singular hessian",
		},
		{
			name:    "without original error",
			op:      "SVC.Fit",
			kind:    "single class",
			err:     nil,
			wantMsg: "chdrisk: SVC.Fit: single class",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewModelError(tt.op, tt.kind, tt.err)

			if err.Error() != tt.wantMsg {
				t.Errorf("Error() = %v, want %v", err.Error(), tt.wantMsg)
			}

			// スタックトレースの存在確認
			formatted := fmt.Sprintf("%+v", err)
			if !strings.Contains(formatted, "errors_test.go") {
				t.Error("Expected stack trace to contain test file name")
			}

			var modelErr *ModelError
			if !As(err, &modelErr) {
				t.Error("Error should be castable to *ModelError")
			}
		})
	}
}

func TestNewDimensionError(t *testing.T) {
	err := NewDimensionError("StandardScaler.Transform", 13, 12, 1)

	want := "chdrisk: StandardScaler.Transform: dimension mismatch on axis 1 (features). Expected 13, got 12"
	if err.Error() != want {
		t.Errorf("Error() = %v, want %v", err.Error(), want)
	}

	var dimErr *DimensionError
	if !As(err, &dimErr) {
		t.Fatal("Error should be castable to *DimensionError")
	}
	if dimErr.Expected != 13 || dimErr.Got != 12 {
		t.Errorf("unexpected fields: %+v", dimErr)
	}
}

func TestNewNotFittedError(t *testing.T) {
	err := NewNotFittedError("RandomForestClassifier", "Predict")

	want := "chdrisk: RandomForestClassifier: this model is not fitted yet. Call Fit() before using Predict()"
	if err.Error() != want {
		t.Errorf("Error() = %v, want %v", err.Error(), want)
	}

	var notFittedErr *NotFittedError
	if !As(err, &notFittedErr) {
		t.Error("Error should be castable to *NotFittedError")
	}
}

func TestNewSchemaError(t *testing.T) {
	err := NewSchemaError("framingham.csv", []string{"TenYearCHD", "male"})

	want := "chdrisk: framingham.csv: missing required columns [TenYearCHD, male]"
	if err.Error() != want {
		t.Errorf("Error() = %v, want %v", err.Error(), want)
	}

	var schemaErr *SchemaError
	if !As(err, &schemaErr) {
		t.Fatal("Error should be castable to *SchemaError")
	}
	if len(schemaErr.Missing) != 2 {
		t.Errorf("Missing = %v", schemaErr.Missing)
	}
}

func TestNewValidationError(t *testing.T) {
	err := NewValidationError("rebalance.smote_ratio", "must be in (0, 1]", 1.5)

	want := "chdrisk: validation failed for parameter 'rebalance.smote_ratio': must be in (0, 1] (got: 1.5)"
	if err.Error() != want {
		t.Errorf("Error() = %v, want %v", err.Error(), want)
	}
}

func TestNewValueError(t *testing.T) {
	err := NewValueError("SMOTE.FitResample", "n_neighbors: 5 (expected <= minority samples - 1)")

	want := "chdrisk: SMOTE.FitResample: n_neighbors: 5 (expected <= minority samples - 1)"
	if err.Error() != want {
		t.Errorf("Error() = %v, want %v", err.Error(), want)
	}

	var valErr *ValueError
	if !As(err, &valErr) {
		t.Error("Error should be castable to *ValueError")
	}
}

func TestNewConvergenceWarning(t *testing.T) {
	warn := NewConvergenceWarning("SMO", 1000, "kkt violation above tolerance")

	want := "SMO failed to converge after 1000 iterations: kkt violation above tolerance"
	if warn.Error() != want {
		t.Errorf("Error() = %v, want %v", warn.Error(), want)
	}

	var convWarn *ConvergenceWarning
	if !As(warn, &convWarn) {
		t.Error("Warning should be castable to *ConvergenceWarning")
	}
}

func TestWarnRoutesToZerologFunc(t *testing.T) {
	var got []error
	SetZerologWarnFunc(func(w error) { got = append(got, w) })
	defer SetZerologWarnFunc(nil)

	Warn(NewUndefinedMetricWarning("precision", "no predicted samples", 0))

	if len(got) != 1 {
		t.Fatalf("expected 1 warning, got %d", len(got))
	}
	if !strings.Contains(got[0].Error(), "'precision' is ill-defined") {
		t.Errorf("unexpected warning message: %v", got[0])
	}
}

func TestWrapAndIs(t *testing.T) {
	wrapped := Wrap(ErrEmptyData, "stage load")

	if !Is(wrapped, ErrEmptyData) {
		t.Error("Expected Is(wrapped, ErrEmptyData) to be true")
	}
	if !strings.Contains(wrapped.Error(), "stage load") {
		t.Error("Expected wrapped error to contain wrapping message")
	}

	wrapped = Wrapf(ErrSingularMatrix, "in %s at iteration %d", "newton", 3)
	if !Is(wrapped, ErrSingularMatrix) {
		t.Error("Expected Is(wrapped, ErrSingularMatrix) to be true")
	}
	if !strings.Contains(wrapped.Error(), "in newton at iteration 3") {
		t.Errorf("unexpected message %q", wrapped.Error())
	}
}

func TestCheckNumericalStability(t *testing.T) {
	if err := CheckNumericalStability("step", []float64{1, 2, 3}, 0); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	err := CheckNumericalStability("step", []float64{1, math.NaN()}, 7)
	var numErr *NumericalInstabilityError
	if !As(err, &numErr) {
		t.Fatalf("expected NumericalInstabilityError, got %v", err)
	}
	if numErr.Iteration != 7 {
		t.Errorf("Iteration = %d, want 7", numErr.Iteration)
	}

	m := mat.NewDense(2, 2, []float64{1, 2, math.Inf(1), 4})
	if err := CheckMatrix("input", m); err == nil {
		t.Error("expected error for matrix with Inf")
	}
	if err := CheckScalar("loss", 0.3, 1); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestNumericHelpers(t *testing.T) {
	if got := SafeDivide(1, 0); got != 0 {
		t.Errorf("SafeDivide(1, 0) = %v", got)
	}
	if got := ClipValue(1.5, 0, 1); got != 1 {
		t.Errorf("ClipValue = %v", got)
	}
	if got := StabilizeLog(0); math.IsInf(got, -1) {
		t.Error("StabilizeLog(0) should be finite")
	}
	if got := StabilizeExp(1e6); math.IsInf(got, 1) {
		t.Error("StabilizeExp should not overflow")
	}
}
