package imblearn

import (
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/chdrisk/pkg/errors"
)

// Pipeline はサンプラーを順に適用する。
//
// 使用例:
//
//	p := imblearn.NewPipeline(imblearn.NewSMOTE(0.7, 42), imblearn.NewRandomUnderSampler(0.7, 42))
//	Xr, yr, err := p.FitResample(X, y)
type Pipeline struct {
	Steps []Sampler
}

// NewPipeline creates a new sampler pipeline
func NewPipeline(steps ...Sampler) *Pipeline {
	return &Pipeline{Steps: steps}
}

// FitResample は各ステップの出力を次のステップに渡す
func (p *Pipeline) FitResample(X mat.Matrix, y []float64) (*mat.Dense, []float64, error) {
	if len(p.Steps) == 0 {
		return nil, nil, errors.NewValueError("Pipeline.FitResample", "pipeline has no steps")
	}
	var (
		cur  mat.Matrix = X
		curY            = y
		out  *mat.Dense
	)
	for i, step := range p.Steps {
		var err error
		out, curY, err = step.FitResample(cur, curY)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "resampling step %d", i)
		}
		cur = out
	}
	return out, curY, nil
}
