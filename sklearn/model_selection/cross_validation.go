package model_selection

import (
	"math/rand/v2"
	"slices"

	"github.com/YuminosukeSato/chdrisk/pkg/errors"
)

// KFoldSplitter defines interface for cross-validation splitters
type KFoldSplitter interface {
	Split(y []float64) ([]CVFold, error)
	GetNSplits() int
}

// CVFold represents a single fold in cross-validation
type CVFold struct {
	TrainIndices []int
	TestIndices  []int
}

// KFold implements k-fold cross-validation splitter
type KFold struct {
	NSplits    int
	Shuffle    bool
	RandomSeed int64
}

// NewKFold creates a new k-fold splitter
func NewKFold(nSplits int, shuffle bool, randomSeed int64) *KFold {
	return &KFold{
		NSplits:    nSplits,
		Shuffle:    shuffle,
		RandomSeed: randomSeed,
	}
}

// GetNSplits returns the number of splits
func (kf *KFold) GetNSplits() int {
	return kf.NSplits
}

// Split generates train/test indices for each fold.
// 先頭の n % k 個の fold は1件多くなる。
func (kf *KFold) Split(y []float64) ([]CVFold, error) {
	nSamples := len(y)
	if err := checkSplits(kf.NSplits, nSamples); err != nil {
		return nil, err
	}

	indices := make([]int, nSamples)
	for i := range indices {
		indices[i] = i
	}
	if kf.Shuffle {
		r := newRand(kf.RandomSeed)
		r.Shuffle(len(indices), func(i, j int) {
			indices[i], indices[j] = indices[j], indices[i]
		})
	}

	testFold := make([]int, nSamples)
	foldSize := nSamples / kf.NSplits
	remainder := nSamples % kf.NSplits
	current := 0
	for i := 0; i < kf.NSplits; i++ {
		testSize := foldSize
		if i < remainder {
			testSize++
		}
		for _, idx := range indices[current : current+testSize] {
			testFold[idx] = i
		}
		current += testSize
	}
	return foldsFromAssignment(testFold, kf.NSplits, indices), nil
}

// StratifiedKFold implements stratified k-fold cross-validation
type StratifiedKFold struct {
	NSplits    int
	Shuffle    bool
	RandomSeed int64
}

// NewStratifiedKFold creates a new stratified k-fold splitter
func NewStratifiedKFold(nSplits int, shuffle bool, randomSeed int64) *StratifiedKFold {
	return &StratifiedKFold{
		NSplits:    nSplits,
		Shuffle:    shuffle,
		RandomSeed: randomSeed,
	}
}

// GetNSplits returns the number of splits
func (skf *StratifiedKFold) GetNSplits() int {
	return skf.NSplits
}

// Split generates stratified train/test indices for each fold.
//
// ラベルを整列したものを fold 数おきに数えて各 fold のクラス別件数を決め、
// 各クラスのサンプルを出現順に fold 0, 1, ... へ割り当てる（scikit-learn と同じ配分）。
func (skf *StratifiedKFold) Split(y []float64) ([]CVFold, error) {
	nSamples := len(y)
	if err := checkSplits(skf.NSplits, nSamples); err != nil {
		return nil, err
	}

	byClass := groupByClass(y)
	classes := sortedKeys(byClass)
	classPos := make(map[float64]int, len(classes))
	for i, c := range classes {
		classPos[c] = i
	}
	for _, c := range classes {
		if len(byClass[c]) < skf.NSplits {
			errors.Warn(errors.NewValueError("StratifiedKFold",
				"the least populated class has fewer members than n_splits"))
			break
		}
	}

	sortedY := slices.Clone(y)
	slices.Sort(sortedY)
	allocation := make([][]int, skf.NSplits)
	for f := 0; f < skf.NSplits; f++ {
		allocation[f] = make([]int, len(classes))
		for i := f; i < nSamples; i += skf.NSplits {
			allocation[f][classPos[sortedY[i]]]++
		}
	}

	var r *rand.Rand
	if skf.Shuffle {
		r = newRand(skf.RandomSeed)
	}

	testFold := make([]int, nSamples)
	for k, c := range classes {
		assign := make([]int, 0, len(byClass[c]))
		for f := 0; f < skf.NSplits; f++ {
			for j := 0; j < allocation[f][k]; j++ {
				assign = append(assign, f)
			}
		}
		if r != nil {
			r.Shuffle(len(assign), func(i, j int) { assign[i], assign[j] = assign[j], assign[i] })
		}
		for j, idx := range byClass[c] {
			testFold[idx] = assign[j]
		}
	}

	order := make([]int, nSamples)
	for i := range order {
		order[i] = i
	}
	return foldsFromAssignment(testFold, skf.NSplits, order), nil
}

func checkSplits(nSplits, nSamples int) error {
	if nSplits < 2 {
		return errors.NewValidationError("n_splits", "must be at least 2", nSplits)
	}
	if nSplits > nSamples {
		return errors.NewValueError("KFold",
			"cannot have number of splits greater than the number of samples")
	}
	return nil
}

// foldsFromAssignment は各サンプルの fold 番号から CVFold を作る。
// テスト側は order の順、訓練側は行番号の昇順。
func foldsFromAssignment(testFold []int, nSplits int, order []int) []CVFold {
	folds := make([]CVFold, nSplits)
	for _, idx := range order {
		f := testFold[idx]
		folds[f].TestIndices = append(folds[f].TestIndices, idx)
	}
	for f := range folds {
		folds[f].TrainIndices = make([]int, 0, len(testFold)-len(folds[f].TestIndices))
		for idx, tf := range testFold {
			if tf != f {
				folds[f].TrainIndices = append(folds[f].TrainIndices, idx)
			}
		}
	}
	return folds
}
