// Package svm はSMOで学習するサポートベクター分類器を提供します。
package svm

import (
	"math"
	"slices"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/YuminosukeSato/chdrisk/core/model"
	"github.com/YuminosukeSato/chdrisk/pkg/errors"
)

// tau は二次係数が0以下になった場合の下限値
const tau = 1e-12

// hardIterLimit はmax_iterが無制限（-1）の場合の上限
const hardIterLimit = 10_000_000

// SVC はカーネル法による2クラスのサポートベクター分類器です。
// 決定関数が正なら classes_[1]、それ以外は classes_[0] を予測します。
type SVC struct {
	state *model.StateManager

	// Hyperparameters
	C         float64
	kernel    string  // "rbf" or "linear"
	gamma     float64 // gammaMode が "value" のときに使う
	gammaMode string  // "scale", "auto", "value"
	tol       float64
	maxIter   int     // -1: 無制限
	cacheSize float64 // カーネル行キャッシュの上限 (MB)

	// Learned
	supportVectors_ *mat.Dense
	dualCoef_       []float64 // alpha_i * y_i
	intercept_      float64   // -rho
	gamma_          float64   // 実際に使ったgamma
	classes_        []int
	nFeatures_      int
	nIter_          int
}

// Option は SVC の関数オプションです。
type Option func(*SVC)

// NewSVC は C=1、RBFカーネル、gamma="scale" のSVCを作成します。
func NewSVC(opts ...Option) *SVC {
	s := &SVC{
		state:     model.NewStateManager(),
		C:         1.0,
		kernel:    "rbf",
		gammaMode: "scale",
		tol:       1e-3,
		maxIter:   -1,
		cacheSize: 200,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func WithC(c float64) Option {
	return func(s *SVC) { s.C = c }
}

func WithKernel(kernel string) Option {
	return func(s *SVC) { s.kernel = kernel }
}

// WithGamma はRBFカーネルの係数を数値で指定します。
func WithGamma(gamma float64) Option {
	return func(s *SVC) {
		s.gamma = gamma
		s.gammaMode = "value"
	}
}

// WithGammaMode は "scale" または "auto" を指定します。
func WithGammaMode(mode string) Option {
	return func(s *SVC) { s.gammaMode = mode }
}

func WithTol(tol float64) Option {
	return func(s *SVC) { s.tol = tol }
}

func WithMaxIter(n int) Option {
	return func(s *SVC) { s.maxIter = n }
}

func WithCacheSize(mb float64) Option {
	return func(s *SVC) { s.cacheSize = mb }
}

func (s *SVC) validateParams() error {
	if s.C <= 0 {
		return errors.NewValidationError("C", "must be > 0", s.C)
	}
	if s.kernel != "rbf" && s.kernel != "linear" {
		return errors.NewValidationError("kernel", "must be 'rbf' or 'linear'", s.kernel)
	}
	switch s.gammaMode {
	case "scale", "auto":
	case "value":
		if s.gamma <= 0 {
			return errors.NewValidationError("gamma", "must be > 0", s.gamma)
		}
	default:
		return errors.NewValidationError("gamma", "must be 'scale', 'auto' or a positive number", s.gammaMode)
	}
	if s.tol <= 0 {
		return errors.NewValidationError("tol", "must be > 0", s.tol)
	}
	return nil
}

// resolveGamma はgammaの指定からカーネル係数を求めます。
// "scale" は 1/(n_features * X.var())、"auto" は 1/n_features です。
func (s *SVC) resolveGamma(X *mat.Dense) float64 {
	_, nFeatures := X.Dims()
	switch s.gammaMode {
	case "value":
		return s.gamma
	case "auto":
		return 1 / float64(nFeatures)
	}
	_, v := stat.PopMeanVariance(X.RawMatrix().Data, nil)
	if v == 0 {
		return 1 / float64(nFeatures)
	}
	return 1 / (float64(nFeatures) * v)
}

// Fit はSMOで双対問題を解きます。
func (s *SVC) Fit(X, y mat.Matrix) error {
	if err := s.validateParams(); err != nil {
		return err
	}
	nSamples, nFeatures := X.Dims()
	yRows, _ := y.Dims()
	if nSamples == 0 {
		return errors.Wrap(errors.ErrEmptyData, "SVC.Fit")
	}
	if yRows != nSamples {
		return errors.NewDimensionError("SVC.Fit", nSamples, yRows, 0)
	}

	classes := uniqueLabels(y)
	if len(classes) != 2 {
		return errors.NewValueError("SVC.Fit", "exactly two classes are required for binary SVC")
	}
	s.state.Reset()

	Xd := mat.DenseCopyOf(X)
	labels := make([]float64, nSamples)
	for i := range labels {
		if int(y.At(i, 0)) == classes[1] {
			labels[i] = 1
		} else {
			labels[i] = -1
		}
	}

	s.gamma_ = s.resolveGamma(Xd)
	k := newKernel(s.kernel, s.gamma_, Xd)
	solver := newSolver(k, labels, s.C, s.tol, s.cacheSize)

	maxIter := s.maxIter
	if maxIter < 0 {
		maxIter = hardIterLimit
	}
	iters, converged := solver.solve(maxIter)
	if !converged {
		errors.Warn(errors.NewConvergenceWarning("SVC", iters, "solver terminated early (max_iter reached); consider pre-processing your data"))
	}

	var sv []int
	for i, a := range solver.alpha {
		if a > 0 {
			sv = append(sv, i)
		}
	}
	s.supportVectors_ = mat.NewDense(max(len(sv), 1), nFeatures, nil)
	s.dualCoef_ = make([]float64, len(sv))
	for n, i := range sv {
		s.supportVectors_.SetRow(n, Xd.RawRowView(i))
		s.dualCoef_[n] = solver.alpha[i] * labels[i]
	}
	if len(sv) == 0 {
		s.supportVectors_ = nil
	}
	s.intercept_ = -solver.rho()
	s.classes_ = classes
	s.nFeatures_ = nFeatures
	s.nIter_ = iters

	s.state.SetDimensions(nFeatures, nSamples)
	s.state.SetFitted()
	return nil
}

func uniqueLabels(y mat.Matrix) []int {
	rows, _ := y.Dims()
	seen := make(map[int]struct{})
	for i := 0; i < rows; i++ {
		seen[int(y.At(i, 0))] = struct{}{}
	}
	out := make([]int, 0, len(seen))
	for c := range seen {
		out = append(out, c)
	}
	slices.Sort(out)
	return out
}

// DecisionFunction は各サンプルの決定関数値 Σ α_i y_i K(x_i, x) + b を返します。
func (s *SVC) DecisionFunction(X mat.Matrix) ([]float64, error) {
	rows, cols := X.Dims()
	if err := s.state.CheckFeatures("SVC", "DecisionFunction", cols); err != nil {
		return nil, err
	}
	out := make([]float64, rows)
	row := make([]float64, cols)
	for i := 0; i < rows; i++ {
		mat.Row(row, i, X)
		f := s.intercept_
		for n, coef := range s.dualCoef_ {
			f += coef * kernelValue(s.kernel, s.gamma_, s.supportVectors_.RawRowView(n), row)
		}
		out[i] = f
	}
	return out, nil
}

// Predict はクラスラベルを返します。
func (s *SVC) Predict(X mat.Matrix) (mat.Matrix, error) {
	dec, err := s.DecisionFunction(X)
	if err != nil {
		return nil, err
	}
	out := mat.NewDense(len(dec), 1, nil)
	for i, f := range dec {
		if f > 0 {
			out.Set(i, 0, float64(s.classes_[1]))
		} else {
			out.Set(i, 0, float64(s.classes_[0]))
		}
	}
	return out, nil
}

// Score は正解率を返します。エラー時は0です。
func (s *SVC) Score(X, y mat.Matrix) float64 {
	pred, err := s.Predict(X)
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

func (s *SVC) Classes() []int { return slices.Clone(s.classes_) }

// NSupport はサポートベクターの数を返します。
func (s *SVC) NSupport() int { return len(s.dualCoef_) }

// NIter は学習に要した反復回数を返します。
func (s *SVC) NIter() int { return s.nIter_ }

// DualCoef は α_i y_i を返します。
func (s *SVC) DualCoef() []float64 { return slices.Clone(s.dualCoef_) }

func (s *SVC) GetParams() map[string]interface{} {
	var gamma interface{} = s.gammaMode
	if s.gammaMode == "value" {
		gamma = s.gamma
	}
	return map[string]interface{}{
		"C":          s.C,
		"kernel":     s.kernel,
		"gamma":      gamma,
		"tol":        s.tol,
		"max_iter":   s.maxIter,
		"cache_size": s.cacheSize,
	}
}

func (s *SVC) SetParams(params map[string]interface{}) error {
	for key, value := range params {
		var err error
		switch key {
		case "C":
			s.C, err = model.ToFloat(value)
		case "kernel":
			s.kernel, err = model.ToString(value)
		case "gamma":
			if mode, ok := value.(string); ok {
				s.gammaMode = mode
				break
			}
			s.gamma, err = model.ToFloat(value)
			s.gammaMode = "value"
		case "tol":
			s.tol, err = model.ToFloat(value)
		case "max_iter":
			s.maxIter, err = model.ToInt(value)
		case "cache_size":
			s.cacheSize, err = model.ToFloat(value)
		default:
			return errors.NewValidationError(key, "unknown parameter for SVC", value)
		}
		if err != nil {
			return errors.NewValidationError(key, err.Error(), value)
		}
	}
	s.state.Reset()
	return nil
}

func (s *SVC) Clone() model.Classifier {
	return &SVC{
		state:     model.NewStateManager(),
		C:         s.C,
		kernel:    s.kernel,
		gamma:     s.gamma,
		gammaMode: s.gammaMode,
		tol:       s.tol,
		maxIter:   s.maxIter,
		cacheSize: s.cacheSize,
	}
}

func kernelValue(kind string, gamma float64, a, b []float64) float64 {
	if kind == "linear" {
		dot := 0.0
		for i := range a {
			dot += a[i] * b[i]
		}
		return dot
	}
	d := 0.0
	for i := range a {
		diff := a[i] - b[i]
		d += diff * diff
	}
	return math.Exp(-gamma * d)
}
