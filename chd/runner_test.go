package chd

import (
	"bytes"
	"context"
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/chdrisk/config"
	"github.com/YuminosukeSato/chdrisk/dataset"
	"github.com/YuminosukeSato/chdrisk/imblearn"
	"github.com/YuminosukeSato/chdrisk/pkg/errors"
	"github.com/YuminosukeSato/chdrisk/pkg/log"
)

// smallConfig は5つのモデルすべてを残したまま候補数を絞った設定を返す
func smallConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Output.Dir = t.TempDir()
	cfg.Jobs = 2
	cfg.Importance.NEstimators = 20

	grids := map[string]map[string][]interface{}{
		config.ModelLogisticRegression: {"C": {0.1, 1.0}, "class_weight": {"balanced", "none"}},
		config.ModelKNN:                {"n_neighbors": {3, 5}},
		config.ModelDecisionTree:       {"max_features": {"auto"}, "min_samples_split": {2, 10}},
		config.ModelSVM:                {"C": {1.0}, "gamma": {0.1}},
		config.ModelRandomForest:       {"n_estimators": {10}, "max_depth": {nil, 8}},
	}
	for i := range cfg.Models {
		cfg.Models[i].Grid = grids[cfg.Models[i].Name]
		cfg.Models[i].CV = 3
	}
	return cfg
}

func TestRunnerEndToEnd(t *testing.T) {
	tbl, err := dataset.Synthetic(1000, 0.1, 7)
	require.NoError(t, err)

	cfg := smallConfig(t)
	logger, _ := log.NewTestLogger(log.LevelInfo)
	var out bytes.Buffer
	r, err := NewRunner(cfg, WithTable(tbl), WithOutput(&out), WithLogger(logger))
	require.NoError(t, err)
	assert.NotEmpty(t, r.RunID())

	res, err := r.Run(context.Background())
	require.NoError(t, err)

	// 9:1 の不均衡が 0.7 付近まで調整される
	ratio := imblearn.Ratio(res.Resampled.Y)
	assert.GreaterOrEqual(t, ratio, 0.6)
	assert.LessOrEqual(t, ratio, 0.8)
	assert.Equal(t, map[int]int{0: 900, 1: 100}, res.Before)
	assert.Equal(t, tbl.FeatureNames, res.Resampled.FeatureNames)

	n := res.Resampled.NRows()
	assert.Equal(t, n, len(res.Split.TrainIndex)+len(res.Split.TestIndex))
	testLen := len(res.Split.TestIndex)

	require.Len(t, res.Models, len(config.KnownModels))
	for i, m := range res.Models {
		assert.Equal(t, config.KnownModels[i], m.Key)
		assert.Len(t, m.Predictions, testLen, "model %s", m.Key)
		assert.GreaterOrEqual(t, m.Accuracy, 0.0)
		assert.LessOrEqual(t, m.Accuracy, 1.0)
		assert.GreaterOrEqual(t, m.F1, 0.0)
		assert.LessOrEqual(t, m.F1, 1.0)
		assert.NotEmpty(t, m.BestParams)
		assert.NotEmpty(t, m.CVResults)

		// 混同行列の行和はテストデータのクラスごとの件数
		counts := map[int]int{}
		for _, v := range res.Split.YTest {
			counts[int(v)]++
		}
		assert.Equal(t, float64(counts[0]), m.Confusion.At(0, 0)+m.Confusion.At(0, 1))
		assert.Equal(t, float64(counts[1]), m.Confusion.At(1, 0)+m.Confusion.At(1, 1))
	}

	require.Len(t, res.Importances, tbl.NFeatures())
	sum := 0.0
	for _, v := range res.Importances {
		sum += v
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
	assert.Len(t, res.Correlations, tbl.NFeatures())

	// class_balance, age_distribution, 5つの混同行列, model_comparison, feature_importance
	assert.Len(t, res.Plots, 9)
	for _, p := range res.Plots {
		info, err := os.Stat(p)
		require.NoError(t, err)
		assert.Positive(t, info.Size())
	}

	text := out.String()
	for _, want := range []string{"Class balance", "Model comparison", "Random Forest", "Feature importance", "Correlation with target variable"} {
		assert.Contains(t, text, want)
	}
	assert.True(t, logger.ContainsMessage("pipeline finished"))
	assert.True(t, logger.ContainsField(log.RunIDKey, r.RunID()))
}

func TestRunnerFromCSV(t *testing.T) {
	tbl, err := dataset.Synthetic(400, 0.2, 3)
	require.NoError(t, err)

	// クリーニング前の列構成に戻して書き出す
	path := filepath.Join(t.TempDir(), "framingham.csv")
	var buf bytes.Buffer
	require.NoError(t, rawFramingham(tbl, &buf))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))

	cfg := smallConfig(t)
	cfg.Data.Path = path
	cfg.Output.Plots = false
	require.NoError(t, cfg.SelectModels([]string{config.ModelKNN}))

	r, err := NewRunner(cfg)
	require.NoError(t, err)
	res, err := r.Run(context.Background())
	require.NoError(t, err)

	require.NotNil(t, res.Clean)
	assert.Equal(t, 400, res.Clean.RowsRead)
	assert.Equal(t, 1, res.Clean.RowsDropped)
	assert.Equal(t, 399, res.Data.NRows())
	assert.Equal(t, dataset.CleanFeatureNames, res.Data.FeatureNames)
	assert.ElementsMatch(t, []string{"education", "currentSmoker"}, res.Clean.ColumnsDropped)
	assert.Len(t, res.Models, 1)
	assert.Empty(t, res.Plots)
}

func TestRunnerErrors(t *testing.T) {
	t.Run("invalid config", func(t *testing.T) {
		cfg := config.Default()
		cfg.Resampling.OverRatio = 2
		_, err := NewRunner(cfg)
		var vErr *errors.ValidationError
		assert.True(t, errors.As(err, &vErr))
	})

	t.Run("missing file", func(t *testing.T) {
		cfg := smallConfig(t)
		cfg.Data.Path = filepath.Join(t.TempDir(), "missing.csv")
		r, err := NewRunner(cfg)
		require.NoError(t, err)
		_, err = r.Run(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "stage load")
	})

	t.Run("cancelled context", func(t *testing.T) {
		tbl, err := dataset.Synthetic(200, 0.2, 1)
		require.NoError(t, err)
		r, err := NewRunner(smallConfig(t), WithTable(tbl))
		require.NoError(t, err)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err = r.Run(ctx)
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("single class", func(t *testing.T) {
		tbl, err := dataset.Synthetic(200, 0.2, 1)
		require.NoError(t, err)
		for i := range tbl.Y {
			tbl.Y[i] = 0
		}
		r, err := NewRunner(smallConfig(t), WithTable(tbl))
		require.NoError(t, err)
		_, err = r.Run(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "stage resample")
	})
}

func TestNewEstimator(t *testing.T) {
	for _, m := range config.DefaultModels() {
		est, err := NewEstimator(m, 1)
		require.NoError(t, err, m.Name)
		params := est.GetParams()
		for k, v := range m.Params {
			assert.EqualValues(t, v, params[k], "%s.%s", m.Name, k)
		}
	}

	_, err := NewEstimator(config.ModelConfig{Name: "lasso"}, 1)
	assert.Error(t, err)

	bad := config.DefaultModels()[0]
	bad.Params = map[string]interface{}{"random_state": 42}
	_, err = NewEstimator(bad, 1)
	assert.Error(t, err, "logistic regression has no random_state")
}

// rawFramingham は合成データを元のCSVと同じ16列に戻して書き出す。
// 先頭行の glucose は欠損にする。
func rawFramingham(tbl *dataset.Table, w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(dataset.FraminghamColumns); err != nil {
		return err
	}
	col := func(name string) []float64 {
		v, err := tbl.Column(name)
		if err != nil {
			panic(err)
		}
		return v
	}
	format := func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
	cigs := col("cigsPerDay")
	for i := 0; i < tbl.NRows(); i++ {
		smoker := 0.0
		if cigs[i] > 0 {
			smoker = 1
		}
		record := make([]string, 0, len(dataset.FraminghamColumns))
		for _, name := range dataset.FraminghamColumns {
			switch name {
			case "male":
				record = append(record, format(col("sex")[i]))
			case "education":
				record = append(record, "2")
			case "currentSmoker":
				record = append(record, format(smoker))
			case "TenYearCHD":
				record = append(record, format(tbl.Y[i]))
			case "glucose":
				if i == 0 {
					record = append(record, "NA")
					continue
				}
				record = append(record, format(col(name)[i]))
			default:
				record = append(record, format(col(name)[i]))
			}
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
