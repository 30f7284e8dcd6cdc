// Package imblearn は不均衡データのリサンプリング（SMOTE、ランダムアンダーサンプリング）を提供します。
//
// 二値分類を前提とし、sampling_strategy は「少数クラス件数 / 多数クラス件数」の目標比率です。
package imblearn

import (
	"math/rand/v2"
	"slices"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/chdrisk/pkg/errors"
)

// Sampler は特徴量とラベルを受け取り、リサンプリングした結果を返す。
// 入力は変更しない。
type Sampler interface {
	FitResample(X mat.Matrix, y []float64) (*mat.Dense, []float64, error)
}

// classStats は二値ラベルの多数クラスと少数クラスの情報です。
type classStats struct {
	minority, majority   float64
	minorityIdx          []int
	majorityIdx          []int
	nMinority, nMajority int
}

// binaryStats はラベルを集計し、少数クラスと多数クラスを決める。同数ならラベルの小さい方が多数側。
func binaryStats(op string, X mat.Matrix, y []float64) (*classStats, error) {
	n, _ := X.Dims()
	if n == 0 {
		return nil, errors.Wrap(errors.ErrEmptyData, op)
	}
	if len(y) != n {
		return nil, errors.NewDimensionError(op, n, len(y), 0)
	}
	byClass := make(map[float64][]int)
	for i, label := range y {
		byClass[label] = append(byClass[label], i)
	}
	if len(byClass) != 2 {
		return nil, errors.NewValueError(op, "sampling_strategy as a ratio requires exactly two classes")
	}
	labels := make([]float64, 0, 2)
	for l := range byClass {
		labels = append(labels, l)
	}
	slices.Sort(labels)

	s := &classStats{majority: labels[0], minority: labels[1]}
	if len(byClass[labels[1]]) > len(byClass[labels[0]]) {
		s.majority, s.minority = labels[1], labels[0]
	}
	s.majorityIdx = byClass[s.majority]
	s.minorityIdx = byClass[s.minority]
	s.nMajority = len(s.majorityIdx)
	s.nMinority = len(s.minorityIdx)
	return s, nil
}

func checkRatio(ratio float64) error {
	if !(ratio > 0 && ratio <= 1) {
		return errors.NewValidationError("sampling_strategy", "must be in (0, 1]", ratio)
	}
	return nil
}

// ClassCounts はラベルごとの件数を返す
func ClassCounts(y []float64) map[float64]int {
	counts := make(map[float64]int)
	for _, label := range y {
		counts[label]++
	}
	return counts
}

// Ratio は少数クラス件数 / 多数クラス件数を返す。1クラスしかなければ1。
func Ratio(y []float64) float64 {
	counts := ClassCounts(y)
	lo, hi := 0, 0
	for _, c := range counts {
		if lo == 0 || c < lo {
			lo = c
		}
		hi = max(hi, c)
	}
	if hi == 0 {
		return 0
	}
	return float64(lo) / float64(hi)
}

func newRand(seed int64) *rand.Rand {
	if seed < 0 {
		return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return rand.New(rand.NewPCG(uint64(seed), uint64(seed)))
}
