package dataset

import (
	"cmp"
	"math"
	"slices"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// FeatureCorrelation は特徴量と目的変数のピアソン相関係数です。
type FeatureCorrelation struct {
	Name string
	R    float64
}

// CorrelationWithTarget は各特徴量と目的変数の相関を降順で返す。
// 分散が0の特徴量は NaN となり末尾に並ぶ。
func CorrelationWithTarget(t *Table) []FeatureCorrelation {
	out := make([]FeatureCorrelation, t.NFeatures())
	col := make([]float64, t.NRows())
	for j, name := range t.FeatureNames {
		mat.Col(col, j, t.X)
		out[j] = FeatureCorrelation{Name: name, R: stat.Correlation(col, t.Y, nil)}
	}
	slices.SortStableFunc(out, func(a, b FeatureCorrelation) int {
		switch {
		case math.IsNaN(a.R) && math.IsNaN(b.R):
			return 0
		case math.IsNaN(a.R):
			return 1
		case math.IsNaN(b.R):
			return -1
		}
		return cmp.Compare(b.R, a.R)
	})
	return out
}

// GroupByTarget は特徴量 name の値を目的変数のクラスごとに分ける（箱ひげ図用）
func GroupByTarget(t *Table, name string) (map[int][]float64, error) {
	values, err := t.Column(name)
	if err != nil {
		return nil, err
	}
	groups := make(map[int][]float64)
	for i, v := range values {
		c := int(t.Y[i])
		groups[c] = append(groups[c], v)
	}
	return groups, nil
}
