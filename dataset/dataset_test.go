package dataset

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/chdrisk/pkg/errors"
)

const framinghamHeader = "male,age,education,currentSmoker,cigsPerDay,BPMeds,prevalentStroke,prevalentHyp,diabetes,totChol,sysBP,diaBP,BMI,heartRate,glucose,TenYearCHD"

func writeCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "framingham.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadCSVCleaning(t *testing.T) {
	rows := []string{
		framinghamHeader,
		"1,39,4,0,0,0,0,0,0,195,106,70,26.97,80,77,0",
		"0,46,NA,0,0,0,0,0,0,250,121,81,28.73,95,76,0", // education のみ欠損: 残る
		"1,48,1,1,20,0,0,0,0,245,127.5,80,25.34,75,70,0",
		"0,61,3,1,30,0,0,1,0,225,150,95,28.58,65,NA,1", // glucose 欠損: 落ちる
		"0,46,3,1,23,NA,0,0,0,285,130,84,23.1,85,85,0", // BPMeds 欠損: 落ちる
		"0,43,2,0,0,0,0,1,0,228,180,110,30.3,77,99,1",
	}
	path := writeCSV(t, strings.Join(rows, "\n")+"\n")

	table, report, err := LoadCSV(path, DefaultLoadOptions())
	require.NoError(t, err)

	assert.Equal(t, 6, report.RowsRead)
	assert.Equal(t, 2, report.RowsDropped)
	assert.Equal(t, []string{"education", "currentSmoker"}, report.ColumnsDropped)
	assert.Equal(t, map[string]string{"male": "sex"}, report.Renamed)

	assert.Equal(t, 4, table.NRows())
	assert.Equal(t, CleanFeatureNames, table.FeatureNames)
	assert.Equal(t, "TenYearCHD", table.TargetName)
	assert.NotContains(t, table.FeatureNames, "education")
	assert.NotContains(t, table.FeatureNames, "currentSmoker")
	assert.NotContains(t, table.FeatureNames, "male")
	assert.NotContains(t, table.FeatureNames, "TenYearCHD")

	r, c := table.X.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			assert.False(t, math.IsNaN(table.X.At(i, j)), "NaN at (%d, %d)", i, j)
		}
	}
	assert.Equal(t, []float64{0, 0, 0, 1}, table.Y)

	sex, err := table.Column("sex")
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 0, 1, 0}, sex)
	assert.Equal(t, map[int]int{0: 3, 1: 1}, table.ClassCounts())
}

func TestLoadCSVErrors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, _, err := LoadCSV(filepath.Join(t.TempDir(), "nope.csv"), DefaultLoadOptions())
		assert.Error(t, err)
	})

	t.Run("missing columns", func(t *testing.T) {
		path := writeCSV(t, "male,age,TenYearCHD\n1,39,0\n")
		_, _, err := LoadCSV(path, DefaultLoadOptions())
		require.Error(t, err)
		var schemaErr *errors.SchemaError
		require.True(t, errors.As(err, &schemaErr))
		assert.Contains(t, schemaErr.Missing, "glucose")
		assert.NotContains(t, schemaErr.Missing, "male")
	})

	t.Run("malformed row", func(t *testing.T) {
		path := writeCSV(t, framinghamHeader+"\n1,39,4\n")
		_, _, err := LoadCSV(path, DefaultLoadOptions())
		assert.Error(t, err)
	})

	t.Run("non-numeric cell", func(t *testing.T) {
		rows := []string{
			framinghamHeader,
			"1,39,4,0,0,0,0,0,0,195,106,70,26.97,80,77,0",
			"0,46,2,0,0,0,0,0,0,250,121,81,28.73,95,abc,0",
			"1,48,1,1,20,0,0,0,0,245,127.5,80,25.34,75,70,0",
		}
		path := writeCSV(t, strings.Join(rows, "\n")+"\n")
		table, _, err := LoadCSV(path, DefaultLoadOptions())
		require.Error(t, err)
		assert.Nil(t, table)
		var valueErr *errors.ValueError
		require.True(t, errors.As(err, &valueErr))
		assert.Contains(t, err.Error(), "glucose")
		assert.Contains(t, err.Error(), "abc")
		assert.Contains(t, err.Error(), "line 3")
	})

	t.Run("non-numeric cell in dropped column", func(t *testing.T) {
		path := writeCSV(t, framinghamHeader+"\n1,39,college,0,0,0,0,0,0,195,106,70,26.97,80,77,0\n")
		table, _, err := LoadCSV(path, DefaultLoadOptions())
		require.NoError(t, err)
		assert.Equal(t, 1, table.NRows())
	})

	t.Run("every row missing", func(t *testing.T) {
		path := writeCSV(t, framinghamHeader+"\n1,39,4,0,0,0,0,0,0,195,106,70,26.97,80,NA,0\n")
		_, _, err := LoadCSV(path, DefaultLoadOptions())
		assert.Error(t, err)
	})
}

func TestSynthetic(t *testing.T) {
	table, err := Synthetic(1000, 0.1, 42)
	require.NoError(t, err)
	assert.Equal(t, 1000, table.NRows())
	assert.Equal(t, len(CleanFeatureNames), table.NFeatures())
	assert.Equal(t, map[int]int{0: 900, 1: 100}, table.ClassCounts())

	again, err := Synthetic(1000, 0.1, 42)
	require.NoError(t, err)
	assert.True(t, mat.Equal(table.X, again.X))

	_, err = Synthetic(1, 0.1, 42)
	assert.Error(t, err)
	_, err = Synthetic(100, 1.0, 42)
	assert.Error(t, err)
}

func TestTableRoundTrip(t *testing.T) {
	table, err := Synthetic(50, 0.2, 3)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, table.WriteCSV(&buf))
	path := writeCSV(t, buf.String())

	opts := LoadOptions{
		Required: append(slices.Clone(CleanFeatureNames), "TenYearCHD"),
		Target:   "TenYearCHD",
	}
	loaded, report, err := LoadCSV(path, opts)
	require.NoError(t, err)
	assert.Equal(t, 0, report.RowsDropped)
	assert.Equal(t, table.FeatureNames, loaded.FeatureNames)
	// gota は浮動小数点を小数6桁で書き出す
	assert.True(t, mat.EqualApprox(table.X, loaded.X, 1e-6))
	assert.Equal(t, table.Y, loaded.Y)
}

func TestTableValidation(t *testing.T) {
	X := mat.NewDense(2, 2, []float64{1, 2, 3, 4})
	_, err := NewTable([]string{"a", "y"}, X, "y", []float64{0, 1})
	assert.Error(t, err, "target must not be a feature")
	_, err = NewTable([]string{"a"}, X, "y", []float64{0, 1})
	assert.Error(t, err)
	_, err = NewTable([]string{"a", "b"}, X, "y", []float64{0})
	assert.Error(t, err)

	table, err := NewTable([]string{"a", "b"}, X, "y", []float64{0, 1})
	require.NoError(t, err)
	_, err = table.Column("c")
	assert.Error(t, err)

	resampled, err := table.WithData(mat.NewDense(3, 2, nil), []float64{0, 1, 1})
	require.NoError(t, err)
	assert.Equal(t, "y", resampled.TargetName)
	assert.Equal(t, 3, resampled.NRows())

	head := table.Head(5)
	assert.Len(t, head, 3)
	assert.Equal(t, []string{"a", "b", "y"}, head[0])
}

func TestCorrelationWithTarget(t *testing.T) {
	X := mat.NewDense(4, 3, []float64{
		1, 4, 7,
		2, 3, 7,
		3, 2, 7,
		4, 1, 7,
	})
	table, err := NewTable([]string{"up", "down", "flat"}, X, "y", []float64{0, 0, 1, 1})
	require.NoError(t, err)

	corr := CorrelationWithTarget(table)
	require.Len(t, corr, 3)
	assert.Equal(t, "up", corr[0].Name)
	assert.Greater(t, corr[0].R, 0.0)
	assert.Equal(t, "down", corr[1].Name)
	assert.Less(t, corr[1].R, 0.0)
	assert.Equal(t, "flat", corr[2].Name)
	assert.True(t, math.IsNaN(corr[2].R))

	groups, err := GroupByTarget(table, "up")
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2}, groups[0])
	assert.Equal(t, []float64{3, 4}, groups[1])
}
