package imblearn

import (
	"cmp"
	"slices"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/chdrisk/core/parallel"
	"github.com/YuminosukeSato/chdrisk/pkg/errors"
	"github.com/YuminosukeSato/chdrisk/pkg/log"
)

// SMOTE は少数クラスの近傍間を線形補間した合成サンプルで少数クラスを増やす。
//
// 目標件数は floor(SamplingStrategy × 多数クラス件数)。元の行を先に、合成した行を後ろに並べる。
type SMOTE struct {
	SamplingStrategy float64
	KNeighbors       int
	RandomState      int64

	logger log.Logger
}

// NewSMOTE は k=5 の SMOTE を作成する
func NewSMOTE(samplingStrategy float64, randomState int64) *SMOTE {
	return &SMOTE{
		SamplingStrategy: samplingStrategy,
		KNeighbors:       5,
		RandomState:      randomState,
		logger:           log.GetLoggerWithName("SMOTE"),
	}
}

// FitResample は合成サンプルを追加した特徴量とラベルを返す
func (s *SMOTE) FitResample(X mat.Matrix, y []float64) (*mat.Dense, []float64, error) {
	if err := checkRatio(s.SamplingStrategy); err != nil {
		return nil, nil, err
	}
	if s.KNeighbors < 1 {
		return nil, nil, errors.NewValidationError("k_neighbors", "must be >= 1", s.KNeighbors)
	}
	stats, err := binaryStats("SMOTE.FitResample", X, y)
	if err != nil {
		return nil, nil, err
	}

	target := int(s.SamplingStrategy * float64(stats.nMajority))
	nSynthetic := target - stats.nMinority
	if nSynthetic < 0 {
		return nil, nil, errors.NewValueError("SMOTE.FitResample",
			"sampling_strategy would require removing minority samples; use an under-sampler instead")
	}
	if nSynthetic > 0 && stats.nMinority <= s.KNeighbors {
		return nil, nil, errors.NewValueError("SMOTE.FitResample",
			"expected n_neighbors < number of minority samples")
	}

	n, d := X.Dims()
	out := mat.NewDense(n+nSynthetic, d, nil)
	out.Slice(0, n, 0, d).(*mat.Dense).Copy(X)
	yOut := make([]float64, n+nSynthetic)
	copy(yOut, y)

	if nSynthetic > 0 {
		minority := mat.NewDense(stats.nMinority, d, nil)
		for i, idx := range stats.minorityIdx {
			mat.Row(minority.RawRowView(i), idx, X)
		}
		neighbors := kNearest(minority, s.KNeighbors)

		rng := newRand(s.RandomState)
		diff := make([]float64, d)
		for j := 0; j < nSynthetic; j++ {
			i := rng.IntN(stats.nMinority)
			nn := neighbors[i][rng.IntN(s.KNeighbors)]
			step := rng.Float64()

			row := out.RawRowView(n + j)
			base := minority.RawRowView(i)
			floats.SubTo(diff, minority.RawRowView(nn), base)
			floats.AddScaledTo(row, base, step, diff)
			yOut[n+j] = stats.minority
		}
	}

	s.loggerOrDefault().Info("SMOTE resampled",
		log.OperationKey, log.OperationResample,
		log.SamplesKey, n+nSynthetic,
		"synthetic", nSynthetic,
		log.ClassCountsKey, map[string]int{"minority": target, "majority": stats.nMajority},
	)
	return out, yOut, nil
}

func (s *SMOTE) loggerOrDefault() log.Logger {
	if s.logger == nil {
		s.logger = log.GetLoggerWithName("SMOTE")
	}
	return s.logger
}

// kNearest は各行について自分以外の k 個の最近傍（ユークリッド距離）の行番号を返す。
// 距離が同じなら行番号の小さい方を優先する。
func kNearest(X *mat.Dense, k int) [][]int {
	n, _ := X.Dims()
	result := make([][]int, n)
	type cand struct {
		idx  int
		dist float64
	}
	parallel.ParallelizeWithThreshold(n, 256, func(start, end int) {
		cands := make([]cand, 0, n-1)
		for i := start; i < end; i++ {
			cands = cands[:0]
			xi := X.RawRowView(i)
			for j := 0; j < n; j++ {
				if j == i {
					continue
				}
				cands = append(cands, cand{idx: j, dist: floats.Distance(xi, X.RawRowView(j), 2)})
			}
			slices.SortFunc(cands, func(a, b cand) int {
				if c := cmp.Compare(a.dist, b.dist); c != 0 {
					return c
				}
				return cmp.Compare(a.idx, b.idx)
			})
			nn := make([]int, k)
			for m := 0; m < k; m++ {
				nn[m] = cands[m].idx
			}
			result[i] = nn
		}
	})
	return result
}
