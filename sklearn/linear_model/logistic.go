// Package linear_model はL2正則化付きロジスティック回帰を提供します。
package linear_model

import (
	"math"
	"slices"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/chdrisk/core/model"
	"github.com/YuminosukeSato/chdrisk/pkg/errors"
)

// LogisticRegression implements logistic regression for classification
// Compatible with scikit-learn's LogisticRegression
//
// 目的関数は Σ s_i ℓ_i + ‖w‖²/(2C) で、切片は正則化しません（s_i はクラス重み）。
// 2クラスはシグモイド、3クラス以上は多項（ソフトマックス）モデルです。
type LogisticRegression struct {
	state *model.StateManager // State management (composition)

	// Hyperparameters
	penalty      string  // Regularization: "l2", "none"
	C            float64 // Inverse regularization strength
	fitIntercept bool    // Whether to fit intercept
	classWeight  string  // Class weight: "balanced", "none"
	solver       string  // Solver: "newton", "liblinear", "newton-cg" (ニュートン法), "gd"
	maxIter      int     // Maximum iterations
	tol          float64 // Tolerance for stopping

	// Model parameters
	coef_      [][]float64 // 1 x n_features (binary) or n_classes x n_features
	intercept_ []float64
	classes_   []int
	nClasses_  int
	nFeatures_ int
	nIter_     int
}

// LogisticRegressionOption is a functional option for LogisticRegression
type LogisticRegressionOption func(*LogisticRegression)

// NewLogisticRegression creates a new LogisticRegression classifier
func NewLogisticRegression(opts ...LogisticRegressionOption) *LogisticRegression {
	lr := &LogisticRegression{
		state:        model.NewStateManager(),
		penalty:      "l2",
		C:            1.0,
		fitIntercept: true,
		classWeight:  "none",
		solver:       "newton",
		maxIter:      100,
		tol:          1e-4,
	}
	for _, opt := range opts {
		opt(lr)
	}
	return lr
}

// WithLRPenalty sets the regularization type
func WithLRPenalty(penalty string) LogisticRegressionOption {
	return func(lr *LogisticRegression) {
		lr.penalty = penalty
	}
}

// WithLRC sets the inverse regularization strength
func WithLRC(c float64) LogisticRegressionOption {
	return func(lr *LogisticRegression) {
		lr.C = c
	}
}

// WithLogisticFitIntercept sets whether to fit intercept
func WithLogisticFitIntercept(fit bool) LogisticRegressionOption {
	return func(lr *LogisticRegression) {
		lr.fitIntercept = fit
	}
}

// WithLRClassWeight sets class weights ("balanced" or "none")
func WithLRClassWeight(weight string) LogisticRegressionOption {
	return func(lr *LogisticRegression) {
		lr.classWeight = weight
	}
}

// WithLRSolver sets the optimization solver
func WithLRSolver(solver string) LogisticRegressionOption {
	return func(lr *LogisticRegression) {
		lr.solver = solver
	}
}

// WithLRMaxIter sets the maximum number of iterations
func WithLRMaxIter(maxIter int) LogisticRegressionOption {
	return func(lr *LogisticRegression) {
		lr.maxIter = maxIter
	}
}

// WithLRTol sets the tolerance for stopping criteria
func WithLRTol(tol float64) LogisticRegressionOption {
	return func(lr *LogisticRegression) {
		lr.tol = tol
	}
}

func (lr *LogisticRegression) validateParams() error {
	if lr.penalty != "l2" && lr.penalty != "none" {
		return errors.NewValidationError("penalty", "only 'l2' and 'none' are supported", lr.penalty)
	}
	if lr.C <= 0 {
		return errors.NewValidationError("C", "must be > 0", lr.C)
	}
	if lr.classWeight != "balanced" && lr.classWeight != "none" {
		return errors.NewValidationError("class_weight", "must be 'balanced' or 'none'", lr.classWeight)
	}
	switch lr.solver {
	case "newton", "newton-cg", "liblinear", "gd":
	default:
		return errors.NewValidationError("solver", "must be one of newton, newton-cg, liblinear, gd", lr.solver)
	}
	if lr.maxIter < 1 {
		return errors.NewValidationError("max_iter", "must be >= 1", lr.maxIter)
	}
	return nil
}

// Fit trains the logistic regression model
func (lr *LogisticRegression) Fit(X, y mat.Matrix) error {
	if err := lr.validateParams(); err != nil {
		return err
	}
	nSamples, nFeatures := X.Dims()
	yRows, yCols := y.Dims()
	if nSamples == 0 {
		return errors.Wrap(errors.ErrEmptyData, "LogisticRegression.Fit")
	}
	if nSamples != yRows {
		return errors.NewDimensionError("LogisticRegression.Fit", nSamples, yRows, 0)
	}
	if yCols != 1 {
		return errors.NewDimensionError("LogisticRegression.Fit", 1, yCols, 1)
	}
	lr.state.Reset()

	lr.extractClasses(y)
	if lr.nClasses_ < 2 {
		return errors.NewValueError("LogisticRegression.Fit", "needs samples of at least 2 classes in the data")
	}
	lr.nFeatures_ = nFeatures

	Xd := mat.DenseCopyOf(X)
	yIdx := make([]int, nSamples)
	for i := range yIdx {
		yIdx[i], _ = slices.BinarySearch(lr.classes_, int(y.At(i, 0)))
	}
	sw := lr.sampleWeights(yIdx)

	var err error
	if lr.solver == "gd" {
		err = lr.fitOVR(Xd, yIdx, sw)
	} else {
		err = lr.fitNewton(Xd, yIdx, sw)
	}
	if err != nil {
		return err
	}

	lr.state.SetDimensions(nFeatures, nSamples)
	lr.state.SetFitted()
	return nil
}

// extractClasses identifies unique class labels
func (lr *LogisticRegression) extractClasses(y mat.Matrix) {
	rows, _ := y.Dims()
	classMap := make(map[int]bool)
	for i := 0; i < rows; i++ {
		classMap[int(y.At(i, 0))] = true
	}
	lr.classes_ = make([]int, 0, len(classMap))
	for class := range classMap {
		lr.classes_ = append(lr.classes_, class)
	}
	slices.Sort(lr.classes_)
	lr.nClasses_ = len(lr.classes_)
}

// sampleWeights は class_weight="balanced" のとき n/(n_classes * count_c) を返します。
func (lr *LogisticRegression) sampleWeights(yIdx []int) []float64 {
	sw := make([]float64, len(yIdx))
	if lr.classWeight != "balanced" {
		for i := range sw {
			sw[i] = 1
		}
		return sw
	}
	counts := make([]float64, lr.nClasses_)
	for _, c := range yIdx {
		counts[c]++
	}
	n := float64(len(yIdx))
	for i, c := range yIdx {
		sw[i] = n / (float64(lr.nClasses_) * counts[c])
	}
	return sw
}

// l2 は重みに対する正則化係数 1/C を返します。penalty="none" なら0です。
func (lr *LogisticRegression) l2() float64 {
	if lr.penalty == "none" {
		return 0
	}
	return 1 / lr.C
}

// fitNewton は2クラスならシグモイド、多クラスならソフトマックスの目的関数をニュートン法で最小化します。
func (lr *LogisticRegression) fitNewton(X *mat.Dense, yIdx []int, sw []float64) error {
	_, d := X.Dims()
	K := lr.nClasses_
	blocks := K
	if K == 2 {
		blocks = 1
	}
	width := d + 1 // 最後の要素が切片

	obj := func(theta []float64, withHess bool) (float64, []float64, *mat.SymDense) {
		return lr.objective(X, yIdx, sw, theta, blocks, withHess)
	}
	theta := make([]float64, blocks*width)
	theta, iters, converged, err := newton(obj, theta, lr.maxIter, lr.tol)
	if err != nil {
		return errors.Wrap(err, "LogisticRegression.Fit")
	}
	if !converged {
		errors.Warn(errors.NewConvergenceWarning("LogisticRegression", iters, "newton solver did not reach tol; increase max_iter or scale the data"))
	}

	lr.coef_ = make([][]float64, blocks)
	lr.intercept_ = make([]float64, blocks)
	for k := 0; k < blocks; k++ {
		lr.coef_[k] = slices.Clone(theta[k*width : k*width+d])
		lr.intercept_[k] = theta[k*width+d]
	}
	lr.nIter_ = iters
	return nil
}

// objective は目的関数値・勾配・（必要なら）ヘッセ行列を返します。
func (lr *LogisticRegression) objective(X *mat.Dense, yIdx []int, sw []float64, theta []float64, blocks int, withHess bool) (float64, []float64, *mat.SymDense) {
	n, d := X.Dims()
	width := d + 1
	dim := blocks * width
	lambda := lr.l2()

	f := 0.0
	grad := make([]float64, dim)
	var hess *mat.SymDense
	if withHess {
		hess = mat.NewSymDense(dim, nil)
	}

	z := make([]float64, blocks)
	p := make([]float64, blocks)
	xt := make([]float64, width)
	xt[d] = 1
	if !lr.fitIntercept {
		xt[d] = 0
	}

	for i := 0; i < n; i++ {
		copy(xt[:d], X.RawRowView(i))
		for k := 0; k < blocks; k++ {
			z[k] = dot(theta[k*width:(k+1)*width], xt)
		}

		if blocks == 1 {
			yi := float64(yIdx[i])
			f += sw[i] * (softplus(z[0]) - yi*z[0])
			p[0] = sigmoid(z[0])
			r := sw[i] * (p[0] - yi)
			for a := 0; a < width; a++ {
				grad[a] += r * xt[a]
			}
			if withHess {
				h := sw[i] * p[0] * (1 - p[0])
				addOuter(hess, 0, 0, h, xt, false)
			}
			continue
		}

		lse := logSumExp(z)
		f += sw[i] * (lse - z[yIdx[i]])
		for k := range p {
			p[k] = math.Exp(z[k] - lse)
		}
		for k := 0; k < blocks; k++ {
			r := p[k]
			if k == yIdx[i] {
				r -= 1
			}
			r *= sw[i]
			for a := 0; a < width; a++ {
				grad[k*width+a] += r * xt[a]
			}
		}
		if withHess {
			for k := 0; k < blocks; k++ {
				for l := k; l < blocks; l++ {
					h := -p[k] * p[l]
					if k == l {
						h += p[k]
					}
					addOuter(hess, k*width, l*width, sw[i]*h, xt, k != l)
				}
			}
		}
	}

	for k := 0; k < blocks; k++ {
		for a := 0; a < d; a++ {
			w := theta[k*width+a]
			f += 0.5 * lambda * w * w
			grad[k*width+a] += lambda * w
		}
	}
	if withHess {
		for k := 0; k < blocks; k++ {
			for a := 0; a < width; a++ {
				idx := k*width + a
				reg := lambda
				if a == d {
					reg = 0
				}
				// 切片方向（および penalty="none"）で特異にならないよう僅かにリッジを足す
				hess.SetSym(idx, idx, hess.At(idx, idx)+reg+1e-8)
			}
		}
	}
	return f, grad, hess
}

// addOuter は hess のブロック (r0, c0) に h * x xᵀ を加えます。
// offDiag のときは r0 < c0 の上三角ブロックだけを更新します。
func addOuter(hess *mat.SymDense, r0, c0 int, h float64, x []float64, offDiag bool) {
	if h == 0 {
		return
	}
	for a := range x {
		if x[a] == 0 {
			continue
		}
		start := a
		if offDiag {
			start = 0
		}
		for b := start; b < len(x); b++ {
			hess.SetSym(r0+a, c0+b, hess.At(r0+a, c0+b)+h*x[a]*x[b])
		}
	}
}

// fitOVR は勾配降下法による one-vs-rest 学習です（solver="gd"）。
func (lr *LogisticRegression) fitOVR(X *mat.Dense, yIdx []int, sw []float64) error {
	blocks := lr.nClasses_
	if blocks == 2 {
		blocks = 1
	}
	lr.coef_ = make([][]float64, blocks)
	lr.intercept_ = make([]float64, blocks)
	lr.nIter_ = 0

	for k := 0; k < blocks; k++ {
		target := k
		if lr.nClasses_ == 2 {
			target = 1
		}
		yBinary := make([]float64, len(yIdx))
		for i, c := range yIdx {
			if c == target {
				yBinary[i] = 1
			}
		}
		w, b, iters, err := lr.fitBinaryGD(X, yBinary, sw)
		if err != nil {
			return errors.Wrapf(err, "failed to fit class %d", lr.classes_[target])
		}
		lr.coef_[k], lr.intercept_[k] = w, b
		lr.nIter_ = max(lr.nIter_, iters)
	}
	return nil
}

// fitBinaryGD は平均化した目的関数 (1/Σs)[Σ s_i ℓ_i + ‖w‖²/(2C)] の勾配降下です。
func (lr *LogisticRegression) fitBinaryGD(X *mat.Dense, y []float64, sw []float64) ([]float64, float64, int, error) {
	nSamples, nFeatures := X.Dims()
	weights := make([]float64, nFeatures)
	intercept := 0.0

	total := 0.0
	for _, s := range sw {
		total += s
	}
	lambda := lr.l2() / total
	baseLearningRate := 1.0

	for iter := 0; iter < lr.maxIter; iter++ {
		gradWeights := make([]float64, nFeatures)
		gradIntercept := 0.0
		for i := 0; i < nSamples; i++ {
			row := X.RawRowView(i)
			z := intercept + dot(weights, row)
			r := sw[i] * (sigmoid(z) - y[i]) / total
			gradIntercept += r
			for j := range row {
				gradWeights[j] += r * row[j]
			}
		}
		for j := range gradWeights {
			gradWeights[j] += lambda * weights[j]
		}

		learningRate := baseLearningRate / (1.0 + 0.1*float64(iter))
		for j := range weights {
			weights[j] -= learningRate * gradWeights[j]
		}
		if lr.fitIntercept {
			intercept -= learningRate * gradIntercept
		}
		if err := errors.CheckNumericalStability("logistic_gd", weights, iter); err != nil {
			return nil, 0, iter, err
		}

		maxGrad := math.Abs(gradIntercept)
		for _, g := range gradWeights {
			maxGrad = math.Max(maxGrad, math.Abs(g))
		}
		if maxGrad < lr.tol {
			return weights, intercept, iter + 1, nil
		}
	}
	errors.Warn(errors.NewConvergenceWarning("LogisticRegression", lr.maxIter, "gradient descent did not reach tol"))
	return weights, intercept, lr.maxIter, nil
}

// decision は各クラスブロックの線形スコアを返します。
func (lr *LogisticRegression) decision(row []float64, out []float64) {
	for k := range lr.coef_ {
		out[k] = lr.intercept_[k] + dot(lr.coef_[k], row)
	}
}

// Predict makes predictions for input data
func (lr *LogisticRegression) Predict(X mat.Matrix) (mat.Matrix, error) {
	rows, cols := X.Dims()
	if err := lr.state.CheckFeatures("LogisticRegression", "Predict", cols); err != nil {
		return nil, err
	}
	predictions := mat.NewDense(rows, 1, nil)
	row := make([]float64, cols)
	scores := make([]float64, len(lr.coef_))
	for i := 0; i < rows; i++ {
		mat.Row(row, i, X)
		lr.decision(row, scores)
		best := 0
		if len(scores) == 1 {
			if scores[0] > 0 {
				best = 1
			}
		} else {
			for k := 1; k < len(scores); k++ {
				if scores[k] > scores[best] {
					best = k
				}
			}
		}
		predictions.Set(i, 0, float64(lr.classes_[best]))
	}
	return predictions, nil
}

// PredictProba returns probability estimates for each class
func (lr *LogisticRegression) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	rows, cols := X.Dims()
	if err := lr.state.CheckFeatures("LogisticRegression", "PredictProba", cols); err != nil {
		return nil, err
	}
	probas := mat.NewDense(rows, lr.nClasses_, nil)
	row := make([]float64, cols)
	scores := make([]float64, len(lr.coef_))
	for i := 0; i < rows; i++ {
		mat.Row(row, i, X)
		lr.decision(row, scores)
		if len(scores) == 1 {
			p1 := sigmoid(scores[0])
			probas.Set(i, 0, 1-p1)
			probas.Set(i, 1, p1)
			continue
		}
		if lr.solver == "gd" {
			// OVRの確率は正規化する
			sum := 0.0
			for k := range scores {
				scores[k] = sigmoid(scores[k])
				sum += scores[k]
			}
			for k := range scores {
				probas.Set(i, k, scores[k]/sum)
			}
			continue
		}
		lse := logSumExp(scores)
		for k := range scores {
			probas.Set(i, k, math.Exp(scores[k]-lse))
		}
	}
	return probas, nil
}

// Score returns the mean accuracy on the given test data and labels
func (lr *LogisticRegression) Score(X, y mat.Matrix) float64 {
	predictions, err := lr.Predict(X)
	if err != nil {
		return 0.0
	}
	nSamples, _ := y.Dims()
	if nSamples == 0 {
		return 0.0
	}
	correct := 0
	for i := 0; i < nSamples; i++ {
		if predictions.At(i, 0) == y.At(i, 0) {
			correct++
		}
	}
	return float64(correct) / float64(nSamples)
}

// Classes returns the class labels
func (lr *LogisticRegression) Classes() []int {
	return slices.Clone(lr.classes_)
}

// Coef returns the learned coefficients
func (lr *LogisticRegression) Coef() [][]float64 {
	out := make([][]float64, len(lr.coef_))
	for k := range lr.coef_ {
		out[k] = slices.Clone(lr.coef_[k])
	}
	return out
}

// Intercept returns the learned intercepts
func (lr *LogisticRegression) Intercept() []float64 {
	return slices.Clone(lr.intercept_)
}

// NIter returns the number of solver iterations
func (lr *LogisticRegression) NIter() int {
	return lr.nIter_
}

// GetParams returns the model's hyperparameters
func (lr *LogisticRegression) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"penalty":       lr.penalty,
		"C":             lr.C,
		"fit_intercept": lr.fitIntercept,
		"class_weight":  lr.classWeight,
		"solver":        lr.solver,
		"max_iter":      lr.maxIter,
		"tol":           lr.tol,
	}
}

// SetParams sets the model's hyperparameters
func (lr *LogisticRegression) SetParams(params map[string]interface{}) error {
	for key, value := range params {
		var err error
		switch key {
		case "penalty":
			lr.penalty, err = model.ToString(value)
		case "C":
			lr.C, err = model.ToFloat(value)
		case "fit_intercept":
			b, ok := value.(bool)
			if !ok {
				return errors.NewValidationError(key, "expected a bool", value)
			}
			lr.fitIntercept = b
		case "class_weight":
			lr.classWeight, err = model.ToString(value)
		case "solver":
			lr.solver, err = model.ToString(value)
		case "max_iter":
			lr.maxIter, err = model.ToInt(value)
		case "tol":
			lr.tol, err = model.ToFloat(value)
		default:
			return errors.NewValidationError(key, "unknown parameter for LogisticRegression", value)
		}
		if err != nil {
			return errors.NewValidationError(key, err.Error(), value)
		}
	}
	lr.state.Reset()
	return nil
}

// Clone returns an unfitted copy with the same hyperparameters
func (lr *LogisticRegression) Clone() model.Classifier {
	return &LogisticRegression{
		state:        model.NewStateManager(),
		penalty:      lr.penalty,
		C:            lr.C,
		fitIntercept: lr.fitIntercept,
		classWeight:  lr.classWeight,
		solver:       lr.solver,
		maxIter:      lr.maxIter,
		tol:          lr.tol,
	}
}
