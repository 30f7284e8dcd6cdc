package model_selection

import (
	"slices"

	"github.com/YuminosukeSato/chdrisk/pkg/errors"
)

// ParamGrid はパラメータ名から候補値のリストへのマップです。
//
//	ParamGrid{"C": {0.1, 1.0}, "gamma": {0.01, 0.1}}
type ParamGrid map[string][]interface{}

// Keys はパラメータ名を昇順で返す
func (g ParamGrid) Keys() []string {
	keys := make([]string, 0, len(g))
	for k := range g {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Size は候補の組み合わせ数を返す
func (g ParamGrid) Size() int {
	if len(g) == 0 {
		return 0
	}
	n := 1
	for _, values := range g {
		n *= len(values)
	}
	return n
}

// Validate は空のグリッドや候補値のないパラメータを拒否する
func (g ParamGrid) Validate() error {
	if len(g) == 0 {
		return errors.NewValidationError("param_grid", "must contain at least one parameter", g)
	}
	for _, k := range g.Keys() {
		if len(g[k]) == 0 {
			return errors.NewValidationError("param_grid", "parameter '"+k+"' has no candidate values", g[k])
		}
	}
	return nil
}

// Expand はグリッドを全組み合わせに展開する。
// scikit-learn の ParameterGrid と同じく、キーは昇順で最後のキーが最も速く変化する。
func (g ParamGrid) Expand() ([]map[string]interface{}, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}
	keys := g.Keys()
	combos := make([]map[string]interface{}, 0, g.Size())
	counters := make([]int, len(keys))
	for {
		params := make(map[string]interface{}, len(keys))
		for i, k := range keys {
			params[k] = g[k][counters[i]]
		}
		combos = append(combos, params)

		// 最後のキーから繰り上げる
		i := len(keys) - 1
		for ; i >= 0; i-- {
			counters[i]++
			if counters[i] < len(g[keys[i]]) {
				break
			}
			counters[i] = 0
		}
		if i < 0 {
			return combos, nil
		}
	}
}
