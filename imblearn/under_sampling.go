package imblearn

import (
	"slices"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/chdrisk/pkg/errors"
	"github.com/YuminosukeSato/chdrisk/pkg/log"
)

// RandomUnderSampler は多数クラスから floor(少数クラス件数 / SamplingStrategy) 件を
// ランダムに残す。少数クラスはそのまま。残した行は元の順序を保つ。
type RandomUnderSampler struct {
	SamplingStrategy float64
	RandomState      int64
	Replacement      bool

	logger log.Logger
}

// NewRandomUnderSampler は非復元抽出の RandomUnderSampler を作成する
func NewRandomUnderSampler(samplingStrategy float64, randomState int64) *RandomUnderSampler {
	return &RandomUnderSampler{
		SamplingStrategy: samplingStrategy,
		RandomState:      randomState,
		logger:           log.GetLoggerWithName("RandomUnderSampler"),
	}
}

// FitResample は多数クラスを間引いた特徴量とラベルを返す
func (u *RandomUnderSampler) FitResample(X mat.Matrix, y []float64) (*mat.Dense, []float64, error) {
	if err := checkRatio(u.SamplingStrategy); err != nil {
		return nil, nil, err
	}
	stats, err := binaryStats("RandomUnderSampler.FitResample", X, y)
	if err != nil {
		return nil, nil, err
	}

	keep := int(float64(stats.nMinority) / u.SamplingStrategy)
	if keep > stats.nMajority {
		return nil, nil, errors.NewValueError("RandomUnderSampler.FitResample",
			"sampling_strategy would require more majority samples than are available")
	}

	rng := newRand(u.RandomState)
	var chosen []int
	if u.Replacement {
		chosen = make([]int, keep)
		for i := range chosen {
			chosen[i] = stats.majorityIdx[rng.IntN(stats.nMajority)]
		}
	} else {
		perm := rng.Perm(stats.nMajority)[:keep]
		chosen = make([]int, keep)
		for i, p := range perm {
			chosen[i] = stats.majorityIdx[p]
		}
	}

	rows := append(chosen, stats.minorityIdx...)
	slices.Sort(rows)

	_, d := X.Dims()
	out := mat.NewDense(len(rows), d, nil)
	yOut := make([]float64, len(rows))
	for i, idx := range rows {
		mat.Row(out.RawRowView(i), idx, X)
		yOut[i] = y[idx]
	}

	u.loggerOrDefault().Info("random under-sampling done",
		log.OperationKey, log.OperationResample,
		log.SamplesKey, len(rows),
		log.ClassCountsKey, map[string]int{"minority": stats.nMinority, "majority": keep},
	)
	return out, yOut, nil
}

func (u *RandomUnderSampler) loggerOrDefault() log.Logger {
	if u.logger == nil {
		u.logger = log.GetLoggerWithName("RandomUnderSampler")
	}
	return u.logger
}
