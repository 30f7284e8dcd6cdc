// Package model_selection はデータ分割、交差検証、グリッドサーチを提供します。
package model_selection

import (
	"math"
	"math/rand/v2"
	"slices"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/chdrisk/pkg/errors"
)

// newRand はシード付きの乱数生成器を返す。負のシードは非決定的。
func newRand(seed int64) *rand.Rand {
	if seed < 0 {
		return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return rand.New(rand.NewPCG(uint64(seed), uint64(seed)))
}

// Split は TrainTestSplit の結果です。インデックスは元データの行番号です。
type Split struct {
	XTrain, XTest *mat.Dense
	YTrain, YTest []float64

	TrainIndex []int
	TestIndex  []int
}

type splitConfig struct {
	randomState int64
	shuffle     bool
	stratify    bool
}

// SplitOption は TrainTestSplit のオプションです。
type SplitOption func(*splitConfig)

// WithRandomState はシャッフルのシードを設定する（デフォルト: 42）
func WithRandomState(seed int64) SplitOption {
	return func(c *splitConfig) { c.randomState = seed }
}

// WithShuffle はシャッフルするかどうかを設定する（デフォルト: true）
func WithShuffle(shuffle bool) SplitOption {
	return func(c *splitConfig) { c.shuffle = shuffle }
}

// WithStratify はクラス比率を保って分割する
func WithStratify(stratify bool) SplitOption {
	return func(c *splitConfig) { c.stratify = stratify }
}

// TrainTestSplit は行をテスト用 ceil(testSize*n) 件と残りの訓練用に分ける。
//
// 使用例:
//
//	s, err := model_selection.TrainTestSplit(X, y, 0.2, model_selection.WithRandomState(42))
func TrainTestSplit(X mat.Matrix, y []float64, testSize float64, opts ...SplitOption) (*Split, error) {
	cfg := splitConfig{randomState: 42, shuffle: true}
	for _, opt := range opts {
		opt(&cfg)
	}

	n, _ := X.Dims()
	if n == 0 {
		return nil, errors.Wrap(errors.ErrEmptyData, "TrainTestSplit")
	}
	if len(y) != n {
		return nil, errors.NewDimensionError("TrainTestSplit", n, len(y), 0)
	}
	if !(testSize > 0 && testSize < 1) {
		return nil, errors.NewValidationError("test_size", "must be in (0, 1)", testSize)
	}
	nTest := int(math.Ceil(testSize * float64(n)))
	nTrain := n - nTest
	if nTest == 0 || nTrain == 0 {
		return nil, errors.NewValueError("TrainTestSplit",
			"the resulting train or test set would be empty; adjust test_size")
	}

	var trainIdx, testIdx []int
	if cfg.stratify {
		if !cfg.shuffle {
			return nil, errors.NewValidationError("shuffle", "stratified split requires shuffle=true", false)
		}
		trainIdx, testIdx = stratifiedSplit(y, nTest, newRand(cfg.randomState))
	} else {
		perm := make([]int, n)
		for i := range perm {
			perm[i] = i
		}
		if cfg.shuffle {
			perm = newRand(cfg.randomState).Perm(n)
		}
		// scikit-learn と同じく先頭をテスト、残りを訓練とする
		testIdx = slices.Clone(perm[:nTest])
		trainIdx = slices.Clone(perm[nTest:])
	}

	return &Split{
		XTrain:     SelectRows(X, trainIdx),
		XTest:      SelectRows(X, testIdx),
		YTrain:     SelectValues(y, trainIdx),
		YTest:      SelectValues(y, testIdx),
		TrainIndex: trainIdx,
		TestIndex:  testIdx,
	}, nil
}

// stratifiedSplit はクラスごとにテスト件数を比例配分する。端数は大きい順に配る。
func stratifiedSplit(y []float64, nTest int, rng *rand.Rand) ([]int, []int) {
	byClass := groupByClass(y)
	classes := sortedKeys(byClass)
	n := len(y)

	alloc := make([]int, len(classes))
	type frac struct {
		class int
		rem   float64
	}
	fracs := make([]frac, len(classes))
	assigned := 0
	for i, c := range classes {
		exact := float64(nTest) * float64(len(byClass[c])) / float64(n)
		alloc[i] = int(math.Floor(exact))
		assigned += alloc[i]
		fracs[i] = frac{class: i, rem: exact - float64(alloc[i])}
	}
	slices.SortStableFunc(fracs, func(a, b frac) int {
		switch {
		case a.rem > b.rem:
			return -1
		case a.rem < b.rem:
			return 1
		}
		return 0
	})
	for i := 0; assigned < nTest; i++ {
		alloc[fracs[i%len(fracs)].class]++
		assigned++
	}

	var trainIdx, testIdx []int
	for i, c := range classes {
		idx := slices.Clone(byClass[c])
		rng.Shuffle(len(idx), func(a, b int) { idx[a], idx[b] = idx[b], idx[a] })
		k := min(alloc[i], len(idx))
		testIdx = append(testIdx, idx[:k]...)
		trainIdx = append(trainIdx, idx[k:]...)
	}
	rng.Shuffle(len(testIdx), func(a, b int) { testIdx[a], testIdx[b] = testIdx[b], testIdx[a] })
	rng.Shuffle(len(trainIdx), func(a, b int) { trainIdx[a], trainIdx[b] = trainIdx[b], trainIdx[a] })
	return trainIdx, testIdx
}

func groupByClass(y []float64) map[float64][]int {
	byClass := make(map[float64][]int)
	for i, label := range y {
		byClass[label] = append(byClass[label], i)
	}
	return byClass
}

func sortedKeys(m map[float64][]int) []float64 {
	keys := make([]float64, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// SelectRows は指定した行を順に取り出した新しい行列を返す
func SelectRows(X mat.Matrix, indices []int) *mat.Dense {
	_, cols := X.Dims()
	if len(indices) == 0 {
		return &mat.Dense{}
	}
	out := mat.NewDense(len(indices), cols, nil)
	if d, ok := X.(mat.RawMatrixer); ok {
		raw := d.RawMatrix()
		for i, idx := range indices {
			copy(out.RawRowView(i), raw.Data[idx*raw.Stride:idx*raw.Stride+cols])
		}
		return out
	}
	for i, idx := range indices {
		for j := 0; j < cols; j++ {
			out.Set(i, j, X.At(idx, j))
		}
	}
	return out
}

// SelectValues は指定したインデックスの値を順に取り出す
func SelectValues(y []float64, indices []int) []float64 {
	out := make([]float64, len(indices))
	for i, idx := range indices {
		out[i] = y[idx]
	}
	return out
}
