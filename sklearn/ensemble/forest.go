// Package ensemble はランダムフォレスト分類器を提供します。
package ensemble

import (
	"math/rand/v2"
	"slices"
	"sync"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/chdrisk/core/model"
	"github.com/YuminosukeSato/chdrisk/core/parallel"
	"github.com/YuminosukeSato/chdrisk/pkg/errors"
	"github.com/YuminosukeSato/chdrisk/sklearn/tree"
)

// RandomForestClassifier はブートストラップ標本で学習した決定木の集合です。
// 予測は各木のクラス確率の平均で行います。
type RandomForestClassifier struct {
	state *model.StateManager

	// Hyperparameters
	nEstimators     int
	criterion       string
	maxDepth        int // -1: 無制限
	minSamplesSplit int
	minSamplesLeaf  int
	maxFeatures     string
	bootstrap       bool
	randomState     int64
	nJobs           int

	// Learned
	estimators_         []*tree.DecisionTreeClassifier
	classes_            []int
	nFeatures_          int
	featureImportances_ []float64
}

// Option は RandomForestClassifier の関数オプションです。
type Option func(*RandomForestClassifier)

// NewRandomForestClassifier は新しいランダムフォレストを作成します。
// デフォルトは100本、max_features="sqrt"、bootstrap=true です。
func NewRandomForestClassifier(opts ...Option) *RandomForestClassifier {
	rf := &RandomForestClassifier{
		state:           model.NewStateManager(),
		nEstimators:     100,
		criterion:       "gini",
		maxDepth:        -1,
		minSamplesSplit: 2,
		minSamplesLeaf:  1,
		maxFeatures:     "sqrt",
		bootstrap:       true,
		randomState:     -1,
	}
	for _, opt := range opts {
		opt(rf)
	}
	return rf
}

func WithNEstimators(n int) Option {
	return func(rf *RandomForestClassifier) { rf.nEstimators = n }
}

func WithCriterion(criterion string) Option {
	return func(rf *RandomForestClassifier) { rf.criterion = criterion }
}

// WithMaxDepth は各木の最大深さを設定します。負の値は無制限です。
func WithMaxDepth(depth int) Option {
	return func(rf *RandomForestClassifier) {
		if depth < 0 {
			depth = -1
		}
		rf.maxDepth = depth
	}
}

func WithMinSamplesSplit(n int) Option {
	return func(rf *RandomForestClassifier) { rf.minSamplesSplit = n }
}

func WithMinSamplesLeaf(n int) Option {
	return func(rf *RandomForestClassifier) { rf.minSamplesLeaf = n }
}

func WithMaxFeatures(maxFeatures string) Option {
	return func(rf *RandomForestClassifier) { rf.maxFeatures = maxFeatures }
}

func WithBootstrap(bootstrap bool) Option {
	return func(rf *RandomForestClassifier) { rf.bootstrap = bootstrap }
}

func WithRandomState(seed int64) Option {
	return func(rf *RandomForestClassifier) { rf.randomState = seed }
}

// WithNJobs は木の学習と予測に使うワーカー数を設定します。0以下はCPUコア数です。
func WithNJobs(n int) Option {
	return func(rf *RandomForestClassifier) { rf.nJobs = n }
}

// Fit はフォレストを学習します。
// 各木のシードと標本は学習前に親の乱数から決めるため、結果はワーカー数に依存しません。
func (rf *RandomForestClassifier) Fit(X, y mat.Matrix) error {
	if rf.nEstimators < 1 {
		return errors.NewValidationError("n_estimators", "must be >= 1", rf.nEstimators)
	}
	d, err := tree.NewDataset(X, y)
	if err != nil {
		return err
	}
	rf.state.Reset()

	n := d.NSamples()
	rng := newRand(rf.randomState)
	seeds := make([]int64, rf.nEstimators)
	samples := make([][]int, rf.nEstimators)
	for t := range seeds {
		seeds[t] = int64(rng.Uint64() >> 1)
		samples[t] = make([]int, n)
		for i := range samples[t] {
			if rf.bootstrap {
				samples[t][i] = rng.IntN(n)
			} else {
				samples[t][i] = i
			}
		}
	}

	estimators := make([]*tree.DecisionTreeClassifier, rf.nEstimators)
	var (
		mu       sync.Mutex
		firstErr error
	)
	parallel.ParallelizeWorkers(rf.nEstimators, rf.nJobs, func(start, end int) {
		for t := start; t < end; t++ {
			est := tree.NewDecisionTreeClassifier(
				tree.WithCriterion(rf.criterion),
				tree.WithMaxDepth(rf.maxDepth),
				tree.WithMinSamplesSplit(rf.minSamplesSplit),
				tree.WithMinSamplesLeaf(rf.minSamplesLeaf),
				tree.WithMaxFeatures(rf.maxFeatures),
				tree.WithRandomState(seeds[t]),
			)
			if err := est.FitDataset(d, samples[t]); err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
				return
			}
			estimators[t] = est
		}
	})
	if firstErr != nil {
		return errors.Wrap(firstErr, "RandomForestClassifier.Fit")
	}

	rf.estimators_ = estimators
	rf.classes_ = d.Classes()
	rf.nFeatures_ = d.NFeatures()
	rf.featureImportances_ = averageImportances(estimators, rf.nFeatures_)
	rf.state.SetDimensions(rf.nFeatures_, n)
	rf.state.SetFitted()
	return nil
}

// averageImportances は木ごとの重要度を平均し、合計が1になるよう正規化します。
// 分割を持たない木（根だけの木）は平均に含めません。
func averageImportances(estimators []*tree.DecisionTreeClassifier, nFeatures int) []float64 {
	out := make([]float64, nFeatures)
	used := 0
	for _, est := range estimators {
		if est.GetNLeaves() <= 1 {
			continue
		}
		for j, v := range est.GetFeatureImportances() {
			out[j] += v
		}
		used++
	}
	if used == 0 {
		return out
	}
	total := 0.0
	for j := range out {
		out[j] /= float64(used)
		total += out[j]
	}
	if total > 0 {
		for j := range out {
			out[j] /= total
		}
	}
	return out
}

func newRand(seed int64) *rand.Rand {
	if seed < 0 {
		return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return rand.New(rand.NewPCG(uint64(seed), 0x853c49e6748fea9b))
}

// PredictProba は各木の確率の平均 (n×nClasses) を返します。
func (rf *RandomForestClassifier) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	rows, cols := X.Dims()
	if err := rf.state.CheckFeatures("RandomForestClassifier", "PredictProba", cols); err != nil {
		return nil, err
	}
	k := len(rf.classes_)
	out := mat.NewDense(rows, k, nil)
	inv := 1 / float64(len(rf.estimators_))

	parallel.ParallelizeWorkers(rows, rf.nJobs, func(start, end int) {
		row := make([]float64, cols)
		acc := make([]float64, k)
		for i := start; i < end; i++ {
			mat.Row(row, i, X)
			clear(acc)
			for _, est := range rf.estimators_ {
				for c, p := range est.ProbaRow(row) {
					acc[c] += p
				}
			}
			for c := range acc {
				acc[c] *= inv
			}
			out.SetRow(i, acc)
		}
	})
	return out, nil
}

// Predict は平均確率が最大のクラスを返します。同率なら小さいラベルを選びます。
func (rf *RandomForestClassifier) Predict(X mat.Matrix) (mat.Matrix, error) {
	proba, err := rf.PredictProba(X)
	if err != nil {
		return nil, err
	}
	rows, k := proba.Dims()
	out := mat.NewDense(rows, 1, nil)
	for i := 0; i < rows; i++ {
		best := 0
		for c := 1; c < k; c++ {
			if proba.At(i, c) > proba.At(i, best) {
				best = c
			}
		}
		out.Set(i, 0, float64(rf.classes_[best]))
	}
	return out, nil
}

// Score は正解率を返します。エラー時は0です。
func (rf *RandomForestClassifier) Score(X, y mat.Matrix) float64 {
	pred, err := rf.Predict(X)
	if err != nil {
		return 0
	}
	rows, _ := y.Dims()
	if rows == 0 {
		return 0
	}
	correct := 0
	for i := 0; i < rows; i++ {
		if pred.At(i, 0) == y.At(i, 0) {
			correct++
		}
	}
	return float64(correct) / float64(rows)
}

func (rf *RandomForestClassifier) Classes() []int {
	return slices.Clone(rf.classes_)
}

// GetFeatureImportances は平均不純度減少による特徴量重要度を返します。
func (rf *RandomForestClassifier) GetFeatureImportances() []float64 {
	return slices.Clone(rf.featureImportances_)
}

// Estimators は学習済みの木を返します。
func (rf *RandomForestClassifier) Estimators() []*tree.DecisionTreeClassifier {
	return slices.Clone(rf.estimators_)
}

func (rf *RandomForestClassifier) GetParams() map[string]interface{} {
	var maxDepth interface{}
	if rf.maxDepth >= 0 {
		maxDepth = rf.maxDepth
	}
	return map[string]interface{}{
		"n_estimators":      rf.nEstimators,
		"criterion":         rf.criterion,
		"max_depth":         maxDepth,
		"min_samples_split": rf.minSamplesSplit,
		"min_samples_leaf":  rf.minSamplesLeaf,
		"max_features":      rf.maxFeatures,
		"bootstrap":         rf.bootstrap,
		"random_state":      rf.randomState,
		"n_jobs":            rf.nJobs,
	}
}

func (rf *RandomForestClassifier) SetParams(params map[string]interface{}) error {
	for key, value := range params {
		var err error
		switch key {
		case "n_estimators":
			rf.nEstimators, err = model.ToInt(value)
		case "criterion":
			rf.criterion, err = model.ToString(value)
		case "max_depth":
			rf.maxDepth, err = model.ToOptionalInt(value)
			if rf.maxDepth < 0 {
				rf.maxDepth = -1
			}
		case "min_samples_split":
			rf.minSamplesSplit, err = model.ToInt(value)
		case "min_samples_leaf":
			rf.minSamplesLeaf, err = model.ToInt(value)
		case "max_features":
			rf.maxFeatures, err = tree.MaxFeaturesString(value)
		case "bootstrap":
			b, ok := value.(bool)
			if !ok {
				return errors.NewValidationError(key, "expected a bool", value)
			}
			rf.bootstrap = b
		case "random_state":
			var seed int
			seed, err = model.ToOptionalInt(value)
			rf.randomState = int64(seed)
		case "n_jobs":
			rf.nJobs, err = model.ToInt(value)
		default:
			return errors.NewValidationError(key, "unknown parameter for RandomForestClassifier", value)
		}
		if err != nil {
			return errors.NewValidationError(key, err.Error(), value)
		}
	}
	rf.state.Reset()
	return nil
}

func (rf *RandomForestClassifier) Clone() model.Classifier {
	clone := *rf
	clone.state = model.NewStateManager()
	clone.estimators_ = nil
	clone.classes_ = nil
	clone.featureImportances_ = nil
	return &clone
}
