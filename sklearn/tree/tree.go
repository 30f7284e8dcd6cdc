// Package tree はCARTによる決定木分類器を提供します。
// scikit-learnの DecisionTreeClassifier と同じハイパーパラメータ名を使います。
package tree

import (
	"math"
	"math/rand/v2"
	"slices"
	"strconv"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/chdrisk/core/model"
	"github.com/YuminosukeSato/chdrisk/pkg/errors"
)

// featureThreshold 未満の差しかない値は同一とみなし、その間で分割しない
const featureThreshold = 1e-7

// DecisionTreeClassifier はジニ不純度またはエントロピーで分割する決定木です。
type DecisionTreeClassifier struct {
	state *model.StateManager

	// Hyperparameters
	criterion       string // "gini" or "entropy"
	maxDepth        int    // -1: 無制限
	minSamplesSplit int
	minSamplesLeaf  int
	maxFeatures     string // "auto", "sqrt", "log2", "none" または整数
	randomState     int64  // -1: 実行ごとにランダム

	// Learned
	nodes               []node
	classes_            []int
	nClasses_           int
	nFeatures_          int
	featureImportances_ []float64
	depth_              int
	nLeaves_            int
}

type node struct {
	feature   int // -1 は葉
	threshold float64
	left      int
	right     int
	value     []float64 // クラスごとの割合
	nSamples  int
	impurity  float64
}

// Option は DecisionTreeClassifier の関数オプションです。
type Option func(*DecisionTreeClassifier)

// NewDecisionTreeClassifier は新しい決定木を作成します。
func NewDecisionTreeClassifier(opts ...Option) *DecisionTreeClassifier {
	dt := &DecisionTreeClassifier{
		state:           model.NewStateManager(),
		criterion:       "gini",
		maxDepth:        -1,
		minSamplesSplit: 2,
		minSamplesLeaf:  1,
		maxFeatures:     "none",
		randomState:     -1,
	}
	for _, opt := range opts {
		opt(dt)
	}
	return dt
}

// WithCriterion は分割基準を設定します ("gini", "entropy")。
func WithCriterion(criterion string) Option {
	return func(dt *DecisionTreeClassifier) {
		dt.criterion = criterion
	}
}

// WithMaxDepth は木の最大深さを設定します。負の値は無制限です。
func WithMaxDepth(depth int) Option {
	return func(dt *DecisionTreeClassifier) {
		if depth < 0 {
			depth = -1
		}
		dt.maxDepth = depth
	}
}

// WithMinSamplesSplit は内部ノードを分割するのに必要な最小サンプル数を設定します。
func WithMinSamplesSplit(n int) Option {
	return func(dt *DecisionTreeClassifier) {
		dt.minSamplesSplit = n
	}
}

// WithMinSamplesLeaf は葉に必要な最小サンプル数を設定します。
func WithMinSamplesLeaf(n int) Option {
	return func(dt *DecisionTreeClassifier) {
		dt.minSamplesLeaf = n
	}
}

// WithMaxFeatures は各分割で調べる特徴量数の決め方を設定します。
func WithMaxFeatures(maxFeatures string) Option {
	return func(dt *DecisionTreeClassifier) {
		dt.maxFeatures = maxFeatures
	}
}

// WithRandomState は特徴量サンプリングの乱数シードを設定します。
func WithRandomState(seed int64) Option {
	return func(dt *DecisionTreeClassifier) {
		dt.randomState = seed
	}
}

// Fit は決定木を学習します。
func (dt *DecisionTreeClassifier) Fit(X, y mat.Matrix) error {
	d, err := NewDataset(X, y)
	if err != nil {
		return err
	}
	samples := make([]int, d.NSamples())
	for i := range samples {
		samples[i] = i
	}
	return dt.FitDataset(d, samples)
}

// FitDataset はdataのうちsamplesで指定された行（重複可）で学習します。
// ランダムフォレストはブートストラップ標本をこの形で渡します。
// クラス集合はsamplesに現れないクラスも含めdataのものを使います。
func (dt *DecisionTreeClassifier) FitDataset(d *Dataset, samples []int) error {
	if err := dt.validateParams(); err != nil {
		return err
	}
	if len(samples) == 0 {
		return errors.Wrap(errors.ErrEmptyData, "DecisionTreeClassifier.Fit")
	}
	dt.state.Reset()

	nFeatures := len(d.cols)
	dt.classes_ = slices.Clone(d.classes)
	dt.nClasses_ = len(d.classes)
	dt.nFeatures_ = nFeatures
	dt.nodes = dt.nodes[:0]
	dt.depth_ = 0
	dt.nLeaves_ = 0

	b := &builder{
		dt:          dt,
		data:        d,
		maxFeatures: resolveMaxFeatures(dt.maxFeatures, nFeatures),
		rng:         newRand(dt.randomState),
		importances: make([]float64, nFeatures),
		scratch:     make([]sortItem, len(samples)),
	}
	b.build(slices.Clone(samples), 0)

	total := 0.0
	for _, v := range b.importances {
		total += v
	}
	if total > 0 {
		for i := range b.importances {
			b.importances[i] /= total
		}
	}
	dt.featureImportances_ = b.importances

	dt.state.SetDimensions(nFeatures, len(samples))
	dt.state.SetFitted()
	return nil
}

func (dt *DecisionTreeClassifier) validateParams() error {
	if dt.criterion != "gini" && dt.criterion != "entropy" {
		return errors.NewValidationError("criterion", "must be 'gini' or 'entropy'", dt.criterion)
	}
	if dt.minSamplesSplit < 2 {
		return errors.NewValidationError("min_samples_split", "must be >= 2", dt.minSamplesSplit)
	}
	if dt.minSamplesLeaf < 1 {
		return errors.NewValidationError("min_samples_leaf", "must be >= 1", dt.minSamplesLeaf)
	}
	if resolveMaxFeatures(dt.maxFeatures, 1) < 0 {
		return errors.NewValidationError("max_features", "must be auto, sqrt, log2, none or a positive integer", dt.maxFeatures)
	}
	return nil
}

// resolveMaxFeatures はmax_featuresを具体的な特徴量数に変換します。不正な値は-1です。
func resolveMaxFeatures(value string, nFeatures int) int {
	switch value {
	case "auto", "sqrt":
		return max(1, int(math.Sqrt(float64(nFeatures))))
	case "log2":
		return max(1, int(math.Log2(float64(nFeatures))))
	case "none", "":
		return nFeatures
	}
	n, err := strconv.Atoi(value)
	if err != nil || n < 1 {
		return -1
	}
	return min(n, nFeatures)
}

func newRand(seed int64) *rand.Rand {
	if seed < 0 {
		return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return rand.New(rand.NewPCG(uint64(seed), uint64(seed)^0x9e3779b97f4a7c15))
}

// Predict は各サンプルのクラスラベルを返します。
func (dt *DecisionTreeClassifier) Predict(X mat.Matrix) (mat.Matrix, error) {
	rows, cols := X.Dims()
	if err := dt.state.CheckFeatures("DecisionTreeClassifier", "Predict", cols); err != nil {
		return nil, err
	}
	out := mat.NewDense(rows, 1, nil)
	row := make([]float64, cols)
	for i := 0; i < rows; i++ {
		mat.Row(row, i, X)
		out.Set(i, 0, float64(dt.classes_[argmax(dt.leaf(row).value)]))
	}
	return out, nil
}

// PredictProba は各サンプルのクラス確率 (n×nClasses) を返します。
func (dt *DecisionTreeClassifier) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	rows, cols := X.Dims()
	if err := dt.state.CheckFeatures("DecisionTreeClassifier", "PredictProba", cols); err != nil {
		return nil, err
	}
	out := mat.NewDense(rows, dt.nClasses_, nil)
	row := make([]float64, cols)
	for i := 0; i < rows; i++ {
		mat.Row(row, i, X)
		out.SetRow(i, dt.leaf(row).value)
	}
	return out, nil
}

// ProbaRow は1サンプル分のクラス確率を返します。返り値を変更してはいけません。
func (dt *DecisionTreeClassifier) ProbaRow(row []float64) []float64 {
	return dt.leaf(row).value
}

func (dt *DecisionTreeClassifier) leaf(row []float64) *node {
	n := &dt.nodes[0]
	for n.feature >= 0 {
		if row[n.feature] <= n.threshold {
			n = &dt.nodes[n.left]
		} else {
			n = &dt.nodes[n.right]
		}
	}
	return n
}

// Score は正解率を返します。エラー時は0です。
func (dt *DecisionTreeClassifier) Score(X, y mat.Matrix) float64 {
	pred, err := dt.Predict(X)
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

// Classes は学習時のクラスラベルを返します。
func (dt *DecisionTreeClassifier) Classes() []int {
	return slices.Clone(dt.classes_)
}

// GetFeatureImportances は不純度減少量による特徴量重要度（合計1）を返します。
func (dt *DecisionTreeClassifier) GetFeatureImportances() []float64 {
	return slices.Clone(dt.featureImportances_)
}

// GetDepth は学習した木の深さを返します。
func (dt *DecisionTreeClassifier) GetDepth() int {
	return dt.depth_
}

// GetNLeaves は葉の数を返します。
func (dt *DecisionTreeClassifier) GetNLeaves() int {
	return dt.nLeaves_
}

// GetParams はハイパーパラメータを返します。max_depthが無制限ならnilです。
func (dt *DecisionTreeClassifier) GetParams() map[string]interface{} {
	var maxDepth interface{}
	if dt.maxDepth >= 0 {
		maxDepth = dt.maxDepth
	}
	return map[string]interface{}{
		"criterion":         dt.criterion,
		"max_depth":         maxDepth,
		"min_samples_split": dt.minSamplesSplit,
		"min_samples_leaf":  dt.minSamplesLeaf,
		"max_features":      dt.maxFeatures,
		"random_state":      dt.randomState,
	}
}

// SetParams はハイパーパラメータを設定し、学習済み状態をリセットします。
func (dt *DecisionTreeClassifier) SetParams(params map[string]interface{}) error {
	for key, value := range params {
		if err := dt.setParam(key, value); err != nil {
			return err
		}
	}
	dt.state.Reset()
	return nil
}

func (dt *DecisionTreeClassifier) setParam(key string, value interface{}) error {
	var err error
	switch key {
	case "criterion":
		dt.criterion, err = model.ToString(value)
	case "max_depth":
		dt.maxDepth, err = model.ToOptionalInt(value)
		if dt.maxDepth < 0 {
			dt.maxDepth = -1
		}
	case "min_samples_split":
		dt.minSamplesSplit, err = model.ToInt(value)
	case "min_samples_leaf":
		dt.minSamplesLeaf, err = model.ToInt(value)
	case "max_features":
		dt.maxFeatures, err = MaxFeaturesString(value)
	case "random_state":
		var seed int
		seed, err = model.ToOptionalInt(value)
		dt.randomState = int64(seed)
	default:
		return errors.NewValidationError(key, "unknown parameter for DecisionTreeClassifier", value)
	}
	if err != nil {
		return errors.NewValidationError(key, err.Error(), value)
	}
	return nil
}

// MaxFeaturesString は文字列・整数・nilのmax_featuresを文字列表現にそろえます。
func MaxFeaturesString(v interface{}) (string, error) {
	if _, ok := v.(string); ok || v == nil {
		return model.ToString(v)
	}
	n, err := model.ToInt(v)
	if err != nil {
		return "", err
	}
	return strconv.Itoa(n), nil
}

// Clone は同じハイパーパラメータを持つ未学習の決定木を返します。
func (dt *DecisionTreeClassifier) Clone() model.Classifier {
	return &DecisionTreeClassifier{
		state:           model.NewStateManager(),
		criterion:       dt.criterion,
		maxDepth:        dt.maxDepth,
		minSamplesSplit: dt.minSamplesSplit,
		minSamplesLeaf:  dt.minSamplesLeaf,
		maxFeatures:     dt.maxFeatures,
		randomState:     dt.randomState,
	}
}

func argmax(v []float64) int {
	best := 0
	for i := 1; i < len(v); i++ {
		if v[i] > v[best] {
			best = i
		}
	}
	return best
}
