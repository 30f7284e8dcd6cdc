package dataset

import (
	"fmt"
	"math"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"

	"github.com/YuminosukeSato/chdrisk/pkg/errors"
	"github.com/YuminosukeSato/chdrisk/pkg/log"
)

// FraminghamColumns はFramingham Heart Study CSVの列です。
var FraminghamColumns = []string{
	"male", "age", "education", "currentSmoker", "cigsPerDay", "BPMeds",
	"prevalentStroke", "prevalentHyp", "diabetes", "totChol", "sysBP",
	"diaBP", "BMI", "heartRate", "glucose", "TenYearCHD",
}

// LoadOptions はCSVの読み込みとクリーニングの設定です。
type LoadOptions struct {
	// Required は存在しなければ SchemaError とする列
	Required []string
	// Drop は読み込み後に削除する列
	Drop []string
	// Rename は列名の変更（旧名 -> 新名）
	Rename map[string]string
	// Target は目的変数の列名（リネーム後の名前）
	Target string
	// NaNValues は欠損値とみなす文字列
	NaNValues []string
}

// DefaultLoadOptions はFraminghamデータ用の設定を返す
func DefaultLoadOptions() LoadOptions {
	return LoadOptions{
		Required:  slices.Clone(FraminghamColumns),
		Drop:      []string{"education", "currentSmoker"},
		Rename:    map[string]string{"male": "sex"},
		Target:    "TenYearCHD",
		NaNValues: []string{"NA", "NaN", "nan", ""},
	}
}

// CleanReport はクリーニングの結果です。
type CleanReport struct {
	RowsRead       int
	RowsDropped    int
	ColumnsDropped []string
	Renamed        map[string]string
}

// LoadCSV はCSVを読み込み、列の削除、欠損行の削除、列名の変更を行って Table を返す
func LoadCSV(path string, opts LoadOptions) (*Table, *CleanReport, error) {
	logger := log.GetLoggerWithName("dataset")

	f, err := os.Open(path)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "open dataset %s", path)
	}
	defer f.Close()

	// 型変換は Clean で行う。gota の Float 変換は不正な値を黙って NaN にする
	df := dataframe.ReadCSV(f,
		dataframe.HasHeader(true),
		dataframe.DetectTypes(false),
		dataframe.DefaultType(series.String),
		dataframe.NaNValues(nanValues(opts)),
	)
	if df.Err != nil {
		return nil, nil, errors.Wrapf(df.Err, "parse dataset %s", path)
	}

	table, report, err := Clean(df, opts)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "clean dataset %s", path)
	}
	logger.Info("dataset loaded",
		log.PathKey, path,
		log.SamplesKey, table.NRows(),
		log.FeaturesKey, table.NFeatures(),
		log.DroppedRowsKey, report.RowsDropped,
	)
	return table, report, nil
}

// Clean は読み込み済みのデータフレームに LoadCSV と同じクリーニングを適用する
func Clean(df dataframe.DataFrame, opts LoadOptions) (*Table, *CleanReport, error) {
	names := df.Names()
	var missing []string
	for _, col := range opts.Required {
		if !slices.Contains(names, col) {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, nil, errors.NewSchemaError("dataset.Clean", missing)
	}

	report := &CleanReport{RowsRead: df.Nrow(), Renamed: map[string]string{}}

	var drop []string
	for _, col := range opts.Drop {
		if slices.Contains(names, col) {
			drop = append(drop, col)
		}
	}
	if len(drop) > 0 {
		df = df.Drop(drop)
		report.ColumnsDropped = drop
	}

	// 残った列を数値に変換する。欠損トークン以外で数値でないセルはエラー
	cols := make([]series.Series, 0, df.Ncol())
	nan := make([]bool, df.Nrow())
	for _, name := range df.Names() {
		values, err := parseColumn(df.Col(name), nanValues(opts))
		if err != nil {
			return nil, nil, err
		}
		for i, v := range values {
			nan[i] = nan[i] || math.IsNaN(v)
		}
		cols = append(cols, series.New(values, series.Float, name))
	}
	df = dataframe.New(cols...)

	// 残った列のどこかに欠損がある行を落とす
	keep := make([]int, 0, df.Nrow())
	for i, isNaN := range nan {
		if !isNaN {
			keep = append(keep, i)
		}
	}
	report.RowsDropped = df.Nrow() - len(keep)
	if len(keep) == 0 {
		return nil, nil, errors.Wrap(errors.ErrEmptyData, "dataset.Clean: every row has a missing value")
	}
	if report.RowsDropped > 0 {
		df = df.Subset(keep)
	}

	for oldName, newName := range opts.Rename {
		if slices.Contains(df.Names(), oldName) {
			df = df.Rename(newName, oldName)
			report.Renamed[oldName] = newName
		}
	}
	if df.Err != nil {
		return nil, nil, errors.Wrap(df.Err, "dataset.Clean")
	}

	table, err := FromFrame(df, opts.Target)
	if err != nil {
		return nil, nil, err
	}
	return table, report, nil
}

func nanValues(opts LoadOptions) []string {
	if len(opts.NaNValues) == 0 {
		return DefaultLoadOptions().NaNValues
	}
	return opts.NaNValues
}

// parseColumn は列を float64 に変換する。欠損は NaN になる
func parseColumn(col series.Series, missing []string) ([]float64, error) {
	if col.Type() == series.Float || col.Type() == series.Int || col.Type() == series.Bool {
		return col.Float(), nil
	}
	records := col.Records()
	isNaN := col.IsNaN()
	values := make([]float64, len(records))
	for i, rec := range records {
		cell := strings.TrimSpace(rec)
		if isNaN[i] || slices.Contains(missing, cell) {
			values[i] = math.NaN()
			continue
		}
		v, err := strconv.ParseFloat(cell, 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			// ヘッダーが1行目なのでデータ行 i は i+2 行目
			return nil, errors.NewValueError("dataset.Clean",
				fmt.Sprintf("line %d, column %q: %q is not a number", i+2, col.Name, rec))
		}
		values[i] = v
	}
	return values, nil
}
