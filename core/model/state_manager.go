package model

import (
	"sync"

	"github.com/YuminosukeSato/chdrisk/pkg/errors"
)

// StateManager はモデルの学習済み状態をスレッドセーフに管理します。
// 推定器は埋め込みではなく合成（フィールド）として保持します。
type StateManager struct {
	mu     sync.RWMutex
	fitted bool

	nFeatures int
	nSamples  int
}

// NewStateManager は未学習状態のStateManagerを作成します。
func NewStateManager() *StateManager {
	return &StateManager{}
}

// IsFitted は学習済みかどうかを返します。
func (s *StateManager) IsFitted() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fitted
}

// SetFitted は学習済みとしてマークします。
func (s *StateManager) SetFitted() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fitted = true
}

// Reset は状態を未学習に戻します。SetParams後などに使います。
func (s *StateManager) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fitted = false
	s.nFeatures = 0
	s.nSamples = 0
}

// SetDimensions は学習時の特徴量数とサンプル数を記録します。
func (s *StateManager) SetDimensions(nFeatures, nSamples int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nFeatures = nFeatures
	s.nSamples = nSamples
}

// GetDimensions は学習時の特徴量数とサンプル数を返します。
func (s *StateManager) GetDimensions() (nFeatures, nSamples int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nFeatures, s.nSamples
}

// RequireFitted は未学習ならNotFittedErrorを返します。
func (s *StateManager) RequireFitted(modelName, method string) error {
	if !s.IsFitted() {
		return errors.NewNotFittedError(modelName, method)
	}
	return nil
}

// CheckFeatures は未学習、または列数が学習時と異なる場合にエラーを返します。
func (s *StateManager) CheckFeatures(modelName, method string, nFeatures int) error {
	if err := s.RequireFitted(modelName, method); err != nil {
		return err
	}
	want, _ := s.GetDimensions()
	if want != nFeatures {
		return errors.NewDimensionError(modelName+"."+method, want, nFeatures, 1)
	}
	return nil
}
