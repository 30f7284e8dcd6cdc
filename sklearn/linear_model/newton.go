package linear_model

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"

	"github.com/YuminosukeSato/chdrisk/pkg/errors"
)

// objectiveFunc は θ における目的関数値と勾配、withHess のときはヘッセ行列を返します。
type objectiveFunc func(theta []float64, withHess bool) (float64, []float64, *mat.SymDense)

// objectiveCache は同じ θ での Func/Grad/Hess 呼び出しを1回の評価にまとめます。
type objectiveCache struct {
	obj  objectiveFunc
	x    []float64
	f    float64
	grad []float64
	hess *mat.SymDense
}

func (c *objectiveCache) eval(x []float64, withHess bool) {
	if c.x != nil && floats.Equal(c.x, x) && (c.hess != nil || !withHess) {
		return
	}
	c.f, c.grad, c.hess = c.obj(x, withHess)
	c.x = append(c.x[:0], x...)
}

func (c *objectiveCache) problem() optimize.Problem {
	return optimize.Problem{
		Func: func(x []float64) float64 {
			c.eval(x, false)
			return c.f
		},
		Grad: func(grad, x []float64) {
			c.eval(x, true)
			copy(grad, c.grad)
		},
		Hess: func(hess *mat.SymDense, x []float64) {
			c.eval(x, true)
			hess.CopySym(c.hess)
		},
	}
}

// newton は gonum/optimize のニュートン法で目的関数を最小化します。
// 勾配の最大ノルムが tol 未満になったら収束とみなします。
func newton(obj objectiveFunc, theta []float64, maxIter int, tol float64) ([]float64, int, bool, error) {
	cache := &objectiveCache{obj: obj}
	settings := &optimize.Settings{
		GradientThreshold: tol,
		MajorIterations:   maxIter,
	}
	result, err := optimize.Minimize(cache.problem(), theta, settings, &optimize.Newton{})
	if result == nil {
		return theta, 0, false, errors.Wrap(err, "newton")
	}
	iters := result.Stats.MajorIterations
	// 丸め誤差でこれ以上動けない点は停留点として扱う
	if err != nil && !errors.Is(err, optimize.ErrNoProgress) {
		return theta, iters, false, errors.Wrap(err, "newton")
	}
	if math.IsNaN(result.F) {
		return theta, iters, false, errors.NewNumericalInstabilityError("newton_objective", []float64{result.F}, iters)
	}
	if err := errors.CheckNumericalStability("newton_step", result.X, iters); err != nil {
		return theta, iters, false, err
	}
	converged := err != nil || result.Status == optimize.GradientThreshold || result.Status == optimize.FunctionConvergence
	return result.X, iters, converged, nil
}

// sigmoid は数値的に安定なシグモイド関数です。
func sigmoid(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	e := math.Exp(z)
	return e / (1 + e)
}

// softplus は log(1 + e^z) です。
func softplus(z float64) float64 {
	return math.Max(z, 0) + math.Log1p(math.Exp(-math.Abs(z)))
}

func logSumExp(z []float64) float64 {
	m := floats.Max(z)
	s := 0.0
	for _, v := range z {
		s += math.Exp(v - m)
	}
	return m + math.Log(s)
}

func dot(a, b []float64) float64 {
	s := 0.0
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}
