// Package dataset はFramingham Heart StudyのCSV読み込み・クリーニングと、
// 特徴量行列と目的変数を明示的に分けて保持する Table を提供します。
package dataset

import (
	"io"
	"slices"
	"strconv"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/chdrisk/pkg/errors"
)

// Table は特徴量行列と目的変数です。
// 目的変数は列名ではなく TargetName と Y で明示的に保持し、特徴量には含めない。
type Table struct {
	FeatureNames []string
	X            *mat.Dense
	TargetName   string
	Y            []float64
}

// NewTable は列名と行数を検証して Table を作る
func NewTable(featureNames []string, X *mat.Dense, targetName string, y []float64) (*Table, error) {
	r, c := X.Dims()
	if len(featureNames) != c {
		return nil, errors.NewDimensionError("dataset.NewTable", len(featureNames), c, 1)
	}
	if len(y) != r {
		return nil, errors.NewDimensionError("dataset.NewTable", r, len(y), 0)
	}
	if slices.Contains(featureNames, targetName) {
		return nil, errors.NewValueError("dataset.NewTable", "target column '"+targetName+"' must not be a feature")
	}
	return &Table{
		FeatureNames: slices.Clone(featureNames),
		X:            X,
		TargetName:   targetName,
		Y:            y,
	}, nil
}

// FromFrame はデータフレームから target 列を目的変数として取り出し、残りを特徴量にする
func FromFrame(df dataframe.DataFrame, target string) (*Table, error) {
	if df.Err != nil {
		return nil, errors.Wrap(df.Err, "dataset.FromFrame")
	}
	names := df.Names()
	if !slices.Contains(names, target) {
		return nil, errors.NewSchemaError("dataset.FromFrame", []string{target})
	}

	features := make([]string, 0, len(names)-1)
	for _, name := range names {
		if name != target {
			features = append(features, name)
		}
	}

	n := df.Nrow()
	if n == 0 || len(features) == 0 {
		return nil, errors.Wrap(errors.ErrEmptyData, "dataset.FromFrame")
	}
	X := mat.NewDense(n, len(features), nil)
	for j, name := range features {
		X.SetCol(j, df.Col(name).Float())
	}
	return NewTable(features, X, target, df.Col(target).Float())
}

// NRows は行数を返す
func (t *Table) NRows() int { return len(t.Y) }

// NFeatures は特徴量の数を返す
func (t *Table) NFeatures() int { return len(t.FeatureNames) }

// Column は特徴量または目的変数の列を返す
func (t *Table) Column(name string) ([]float64, error) {
	if name == t.TargetName {
		return slices.Clone(t.Y), nil
	}
	j := slices.Index(t.FeatureNames, name)
	if j < 0 {
		return nil, errors.NewSchemaError("Table.Column", []string{name})
	}
	return mat.Col(nil, j, t.X), nil
}

// WithData は同じ列名で行だけを差し替えた Table を返す（リサンプリング後の再構成に使う）
func (t *Table) WithData(X *mat.Dense, y []float64) (*Table, error) {
	return NewTable(t.FeatureNames, X, t.TargetName, y)
}

// ClassCounts は目的変数のクラスごとの件数を返す
func (t *Table) ClassCounts() map[int]int {
	counts := make(map[int]int)
	for _, v := range t.Y {
		counts[int(v)]++
	}
	return counts
}

// ToDataFrame は特徴量と目的変数（最後の列）を持つデータフレームに変換する
func (t *Table) ToDataFrame() dataframe.DataFrame {
	cols := make([]series.Series, 0, len(t.FeatureNames)+1)
	for j, name := range t.FeatureNames {
		cols = append(cols, series.New(mat.Col(nil, j, t.X), series.Float, name))
	}
	cols = append(cols, series.New(slices.Clone(t.Y), series.Float, t.TargetName))
	return dataframe.New(cols...)
}

// WriteCSV は Table をヘッダ付きCSVとして書き出す
func (t *Table) WriteCSV(w io.Writer) error {
	return errors.Wrap(t.ToDataFrame().WriteCSV(w), "Table.WriteCSV")
}

// Head は先頭 n 行を文字列のレコードとして返す（表示用）
func (t *Table) Head(n int) [][]string {
	n = min(n, t.NRows())
	records := make([][]string, 0, n+1)
	header := append(slices.Clone(t.FeatureNames), t.TargetName)
	records = append(records, header)
	for i := 0; i < n; i++ {
		row := make([]string, 0, len(header))
		for j := range t.FeatureNames {
			row = append(row, strconv.FormatFloat(t.X.At(i, j), 'g', -1, 64))
		}
		row = append(row, strconv.FormatFloat(t.Y[i], 'g', -1, 64))
		records = append(records, row)
	}
	return records
}
