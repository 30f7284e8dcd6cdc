// Package neighbors は k近傍法による分類器を提供します。
package neighbors

import (
	"cmp"
	"math"
	"slices"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/chdrisk/core/model"
	"github.com/YuminosukeSato/chdrisk/core/parallel"
	"github.com/YuminosukeSato/chdrisk/pkg/errors"
)

// KNeighborsClassifier は学習データを保持し、近傍の多数決で分類します。
type KNeighborsClassifier struct {
	state *model.StateManager

	nNeighbors int
	weights    string  // "uniform" or "distance"
	p          float64 // ミンコフスキー距離の次数 (2: ユークリッド)
	nJobs      int

	train      []float64 // 行優先 n×nFeatures
	labels     []int     // classes_ へのインデックス
	classes_   []int
	nFeatures_ int
}

// Option は KNeighborsClassifier の関数オプションです。
type Option func(*KNeighborsClassifier)

// NewKNeighborsClassifier は n_neighbors=5、一様重み、ユークリッド距離の分類器を作成します。
func NewKNeighborsClassifier(opts ...Option) *KNeighborsClassifier {
	knn := &KNeighborsClassifier{
		state:      model.NewStateManager(),
		nNeighbors: 5,
		weights:    "uniform",
		p:          2,
	}
	for _, opt := range opts {
		opt(knn)
	}
	return knn
}

func WithNNeighbors(k int) Option {
	return func(knn *KNeighborsClassifier) { knn.nNeighbors = k }
}

func WithWeights(weights string) Option {
	return func(knn *KNeighborsClassifier) { knn.weights = weights }
}

// WithP はミンコフスキー距離の次数を設定します。1はマンハッタン距離です。
func WithP(p float64) Option {
	return func(knn *KNeighborsClassifier) { knn.p = p }
}

func WithNJobs(n int) Option {
	return func(knn *KNeighborsClassifier) { knn.nJobs = n }
}

// Fit は学習データを保持します。
func (knn *KNeighborsClassifier) Fit(X, y mat.Matrix) error {
	nSamples, nFeatures := X.Dims()
	yRows, _ := y.Dims()
	if nSamples == 0 {
		return errors.Wrap(errors.ErrEmptyData, "KNeighborsClassifier.Fit")
	}
	if yRows != nSamples {
		return errors.NewDimensionError("KNeighborsClassifier.Fit", nSamples, yRows, 0)
	}
	if knn.nNeighbors < 1 {
		return errors.NewValidationError("n_neighbors", "must be >= 1", knn.nNeighbors)
	}
	if knn.nNeighbors > nSamples {
		return errors.NewValidationError("n_neighbors", "must be <= number of training samples", knn.nNeighbors)
	}
	if knn.weights != "uniform" && knn.weights != "distance" {
		return errors.NewValidationError("weights", "must be 'uniform' or 'distance'", knn.weights)
	}
	if knn.p < 1 {
		return errors.NewValidationError("p", "must be >= 1", knn.p)
	}
	knn.state.Reset()

	knn.train = make([]float64, nSamples*nFeatures)
	for i := 0; i < nSamples; i++ {
		mat.Row(knn.train[i*nFeatures:(i+1)*nFeatures], i, X)
	}

	seen := make(map[int]struct{})
	raw := make([]int, nSamples)
	for i := range raw {
		raw[i] = int(y.At(i, 0))
		seen[raw[i]] = struct{}{}
	}
	knn.classes_ = knn.classes_[:0]
	for c := range seen {
		knn.classes_ = append(knn.classes_, c)
	}
	slices.Sort(knn.classes_)
	knn.labels = make([]int, nSamples)
	for i, c := range raw {
		knn.labels[i], _ = slices.BinarySearch(knn.classes_, c)
	}

	knn.nFeatures_ = nFeatures
	knn.state.SetDimensions(nFeatures, nSamples)
	knn.state.SetFitted()
	return nil
}

type neighbor struct {
	dist  float64
	index int
}

// PredictProba は近傍の（重み付き）投票割合を返します。
func (knn *KNeighborsClassifier) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	rows, cols := X.Dims()
	if err := knn.state.CheckFeatures("KNeighborsClassifier", "PredictProba", cols); err != nil {
		return nil, err
	}
	k := len(knn.classes_)
	out := mat.NewDense(rows, k, nil)

	parallel.ParallelizeWorkers(rows, knn.nJobs, func(start, end int) {
		row := make([]float64, cols)
		nbrs := make([]neighbor, len(knn.labels))
		votes := make([]float64, k)
		for i := start; i < end; i++ {
			mat.Row(row, i, X)
			knn.vote(row, nbrs, votes)
			out.SetRow(i, votes)
		}
	})
	return out, nil
}

// vote はrowの近傍の投票をvotesに書き込みます（合計1）。
func (knn *KNeighborsClassifier) vote(row []float64, nbrs []neighbor, votes []float64) {
	d := knn.nFeatures_
	for j := range nbrs {
		nbrs[j] = neighbor{dist: knn.distance(row, knn.train[j*d:(j+1)*d]), index: j}
	}
	// 同距離なら学習データ中で先に現れた点を優先する
	slices.SortFunc(nbrs, func(a, b neighbor) int {
		if c := cmp.Compare(a.dist, b.dist); c != 0 {
			return c
		}
		return cmp.Compare(a.index, b.index)
	})
	top := nbrs[:knn.nNeighbors]

	clear(votes)
	if knn.weights == "distance" {
		exact := false
		for _, nb := range top {
			if nb.dist == 0 {
				votes[knn.labels[nb.index]]++
				exact = true
			}
		}
		if !exact {
			for _, nb := range top {
				votes[knn.labels[nb.index]] += 1 / nb.dist
			}
		}
	} else {
		for _, nb := range top {
			votes[knn.labels[nb.index]]++
		}
	}

	total := 0.0
	for _, v := range votes {
		total += v
	}
	for c := range votes {
		votes[c] /= total
	}
}

func (knn *KNeighborsClassifier) distance(a, b []float64) float64 {
	switch knn.p {
	case 2:
		s := 0.0
		for i := range a {
			diff := a[i] - b[i]
			s += diff * diff
		}
		return math.Sqrt(s)
	case 1:
		s := 0.0
		for i := range a {
			s += math.Abs(a[i] - b[i])
		}
		return s
	default:
		s := 0.0
		for i := range a {
			s += math.Pow(math.Abs(a[i]-b[i]), knn.p)
		}
		return math.Pow(s, 1/knn.p)
	}
}

// Predict は投票が最大のクラスを返します。同数の場合は小さいラベルを選びます。
func (knn *KNeighborsClassifier) Predict(X mat.Matrix) (mat.Matrix, error) {
	proba, err := knn.PredictProba(X)
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
		out.Set(i, 0, float64(knn.classes_[best]))
	}
	return out, nil
}

func (knn *KNeighborsClassifier) Classes() []int {
	return slices.Clone(knn.classes_)
}

func (knn *KNeighborsClassifier) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"n_neighbors": knn.nNeighbors,
		"weights":     knn.weights,
		"p":           knn.p,
		"n_jobs":      knn.nJobs,
	}
}

func (knn *KNeighborsClassifier) SetParams(params map[string]interface{}) error {
	for key, value := range params {
		var err error
		switch key {
		case "n_neighbors":
			knn.nNeighbors, err = model.ToInt(value)
		case "weights":
			knn.weights, err = model.ToString(value)
		case "p":
			knn.p, err = model.ToFloat(value)
		case "n_jobs":
			knn.nJobs, err = model.ToInt(value)
		default:
			return errors.NewValidationError(key, "unknown parameter for KNeighborsClassifier", value)
		}
		if err != nil {
			return errors.NewValidationError(key, err.Error(), value)
		}
	}
	knn.state.Reset()
	return nil
}

func (knn *KNeighborsClassifier) Clone() model.Classifier {
	return &KNeighborsClassifier{
		state:      model.NewStateManager(),
		nNeighbors: knn.nNeighbors,
		weights:    knn.weights,
		p:          knn.p,
		nJobs:      knn.nJobs,
	}
}
