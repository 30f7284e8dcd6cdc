package model

import (
	"sync"
	"testing"

	"github.com/YuminosukeSato/chdrisk/pkg/errors"
)

func TestStateManager(t *testing.T) {
	s := NewStateManager()
	if s.IsFitted() {
		t.Fatal("new StateManager should not be fitted")
	}

	err := s.RequireFitted("Model", "Predict")
	var notFitted *errors.NotFittedError
	if !errors.As(err, &notFitted) {
		t.Fatalf("expected NotFittedError, got %v", err)
	}
	if notFitted.Method != "Predict" {
		t.Errorf("Method = %q, want Predict", notFitted.Method)
	}

	s.SetDimensions(4, 100)
	s.SetFitted()
	if err := s.CheckFeatures("Model", "Predict", 4); err != nil {
		t.Errorf("CheckFeatures() unexpected error: %v", err)
	}
	err = s.CheckFeatures("Model", "Predict", 3)
	var dimErr *errors.DimensionError
	if !errors.As(err, &dimErr) {
		t.Fatalf("expected DimensionError, got %v", err)
	}
	if dimErr.Expected != 4 || dimErr.Got != 3 || dimErr.Axis != 1 {
		t.Errorf("unexpected DimensionError: %+v", dimErr)
	}

	s.Reset()
	if s.IsFitted() {
		t.Error("Reset should clear fitted state")
	}
	if f, n := s.GetDimensions(); f != 0 || n != 0 {
		t.Errorf("Reset should clear dimensions, got %d, %d", f, n)
	}
}

func TestStateManagerConcurrent(t *testing.T) {
	s := NewStateManager()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			s.SetDimensions(i, i)
			s.SetFitted()
		}(i)
		go func() {
			defer wg.Done()
			_ = s.IsFitted()
			_, _ = s.GetDimensions()
		}()
	}
	wg.Wait()
	if !s.IsFitted() {
		t.Error("expected fitted after concurrent SetFitted")
	}
}
