// Package config はパイプライン全体の設定をYAMLで扱います。
//
// Default は元の分析をそのまま再現する値を返し、Load はYAMLファイルを
// その上に重ねます。コマンドラインフラグはさらにその上から上書きします。
//
//	cfg, err := config.Load("chdrisk.yaml")
//	if err != nil {
//	    return err
//	}
//	cfg.Output.Dir = "out"
//	if err := cfg.Validate(); err != nil {
//	    return err
//	}
package config

import (
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/YuminosukeSato/chdrisk/pkg/errors"
	"github.com/YuminosukeSato/chdrisk/pkg/log"
	"github.com/YuminosukeSato/chdrisk/sklearn/model_selection"
)

// モデル名
const (
	ModelLogisticRegression = "logistic_regression"
	ModelKNN                = "knn"
	ModelDecisionTree       = "decision_tree"
	ModelSVM                = "svm"
	ModelRandomForest       = "random_forest"
)

// KnownModels は実行順に並んだモデル名です。
var KnownModels = []string{
	ModelLogisticRegression,
	ModelKNN,
	ModelDecisionTree,
	ModelSVM,
	ModelRandomForest,
}

// Config はchdriskの実行設定です。
type Config struct {
	Data       DataConfig       `yaml:"data"`
	Resampling ResamplingConfig `yaml:"resampling"`
	Split      SplitConfig      `yaml:"split"`
	Scaler     string           `yaml:"scaler"`
	Models     []ModelConfig    `yaml:"models"`
	Importance ImportanceConfig `yaml:"importance"`
	Output     OutputConfig     `yaml:"output"`
	Log        LogConfig        `yaml:"log"`
	// Jobs はグリッドサーチの並列数。0以下はCPU数
	Jobs int `yaml:"jobs"`
}

// DataConfig は入力CSVと列の扱いです。
type DataConfig struct {
	Path      string            `yaml:"path"`
	Target    string            `yaml:"target"`
	Required  []string          `yaml:"required"`
	Drop      []string          `yaml:"drop"`
	Rename    map[string]string `yaml:"rename"`
	NaNValues []string          `yaml:"nan_values"`
}

// ResamplingConfig はSMOTEとアンダーサンプリングの設定です。
type ResamplingConfig struct {
	OverRatio   float64 `yaml:"over_ratio"`
	UnderRatio  float64 `yaml:"under_ratio"`
	KNeighbors  int     `yaml:"k_neighbors"`
	RandomState int64   `yaml:"random_state"`
}

// SplitConfig は学習/テスト分割の設定です。
type SplitConfig struct {
	TestSize    float64 `yaml:"test_size"`
	RandomState int64   `yaml:"random_state"`
	Stratify    bool    `yaml:"stratify"`
}

// ModelConfig は1つの分類器のグリッドサーチ設定です。
// Params は探索しない固定パラメータ、Grid は探索するパラメータです。
type ModelConfig struct {
	Name    string                   `yaml:"name"`
	Display string                   `yaml:"display"`
	CV      int                      `yaml:"cv"`
	Scoring string                   `yaml:"scoring"`
	Params  map[string]interface{}   `yaml:"params,omitempty"`
	Grid    map[string][]interface{} `yaml:"grid"`
}

// ImportanceConfig は特徴量重要度用のランダムフォレストの設定です。
type ImportanceConfig struct {
	NEstimators int    `yaml:"n_estimators"`
	MaxFeatures string `yaml:"max_features"`
	RandomState int64  `yaml:"random_state"`
}

// OutputConfig は出力先です。
type OutputConfig struct {
	Dir   string `yaml:"dir"`
	Plots bool   `yaml:"plots"`
	// Markdown が true なら表をMarkdownで出力する
	Markdown bool `yaml:"markdown"`
}

// LogConfig はログ出力の設定です。
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json | console
}

// Default はフラミンガム分析の既定設定を返します。
func Default() *Config {
	return &Config{
		Data: DataConfig{
			Path:   "framingham.csv",
			Target: "TenYearCHD",
			Required: []string{
				"male", "age", "education", "currentSmoker", "cigsPerDay", "BPMeds",
				"prevalentStroke", "prevalentHyp", "diabetes", "totChol", "sysBP",
				"diaBP", "BMI", "heartRate", "glucose", "TenYearCHD",
			},
			Drop:      []string{"education", "currentSmoker"},
			Rename:    map[string]string{"male": "sex"},
			NaNValues: []string{"NA", "NaN", "nan", ""},
		},
		Resampling: ResamplingConfig{
			OverRatio:   0.7,
			UnderRatio:  0.7,
			KNeighbors:  5,
			RandomState: 42,
		},
		Split: SplitConfig{
			TestSize:    0.2,
			RandomState: 42,
		},
		Scaler: "standard",
		Models: DefaultModels(),
		Importance: ImportanceConfig{
			NEstimators: 100,
			MaxFeatures: "sqrt",
			RandomState: 42,
		},
		Output: OutputConfig{Dir: "plots", Plots: true},
		Log:    LogConfig{Level: "info", Format: "console"},
	}
}

// DefaultModels は5つの分類器の既定グリッドを返します。
func DefaultModels() []ModelConfig {
	return []ModelConfig{
		{
			Name:    ModelLogisticRegression,
			Display: "Logistic Regression",
			CV:      10,
			Scoring: model_selection.ScoringAccuracy,
			Params:  map[string]interface{}{"solver": "liblinear"},
			Grid: map[string][]interface{}{
				"penalty":      {"l2"},
				"C":            {0.01, 0.1, 1.0, 10.0, 100.0},
				"class_weight": {"balanced", "none"},
			},
		},
		{
			Name:    ModelKNN,
			Display: "KNN",
			CV:      3,
			Scoring: model_selection.ScoringAccuracy,
			Grid: map[string][]interface{}{
				"n_neighbors": intRange(1, 10),
			},
		},
		{
			Name:    ModelDecisionTree,
			Display: "Decision Tree",
			CV:      5,
			Scoring: model_selection.ScoringAccuracy,
			Params:  map[string]interface{}{"random_state": 42},
			Grid: map[string][]interface{}{
				"max_features":      {"auto", "sqrt", "log2"},
				"min_samples_split": intRange(2, 16),
				"min_samples_leaf":  intRange(1, 12),
			},
		},
		{
			Name:    ModelSVM,
			Display: "SVM",
			CV:      5,
			Scoring: model_selection.ScoringAccuracy,
			Params:  map[string]interface{}{"kernel": "rbf"},
			Grid: map[string][]interface{}{
				"C":     {0.001, 0.01, 0.1, 1.0, 10.0},
				"gamma": {0.001, 0.01, 0.1, 1.0},
			},
		},
		{
			Name:    ModelRandomForest,
			Display: "Random Forest",
			CV:      5,
			Scoring: model_selection.ScoringAccuracy,
			Params:  map[string]interface{}{"random_state": 42},
			Grid: map[string][]interface{}{
				"n_estimators":      {50, 100, 150},
				"max_depth":         {nil, 12, 24, 36},
				"min_samples_split": {2, 5, 8},
				"min_samples_leaf":  {2, 5, 8},
				"max_features":      {"auto", "sqrt"},
			},
		},
	}
}

// intRange は [from, to) の整数を返す
func intRange(from, to int) []interface{} {
	values := make([]interface{}, 0, to-from)
	for i := from; i < to; i++ {
		values = append(values, i)
	}
	return values
}

// Load は既定値にYAMLファイルを重ねた設定を返します。検証は行いません。
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "config: read %s", path)
	}
	return Parse(data)
}

// Parse はYAMLを既定値の上に重ねます。
// models に名前だけが書かれている場合、省略した項目は同名の既定モデルから補います。
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrap(err, "config: parse yaml")
	}
	cfg.fillModelDefaults()
	return cfg, nil
}

func (c *Config) fillModelDefaults() {
	defaults := DefaultModels()
	for i := range c.Models {
		m := &c.Models[i]
		j := slices.IndexFunc(defaults, func(d ModelConfig) bool { return d.Name == m.Name })
		if j < 0 {
			continue
		}
		d := defaults[j]
		if m.Display == "" {
			m.Display = d.Display
		}
		if m.CV == 0 {
			m.CV = d.CV
		}
		if m.Scoring == "" {
			m.Scoring = d.Scoring
		}
		if m.Params == nil {
			m.Params = d.Params
		}
		if m.Grid == nil {
			m.Grid = d.Grid
		}
	}
}

// Validate は設定値を検証し、最初に見つかった問題をValidationErrorで返します。
func (c *Config) Validate() error {
	if c.Data.Target == "" {
		return errors.NewValidationError("data.target", "must not be empty", c.Data.Target)
	}
	if err := checkRatio("resampling.over_ratio", c.Resampling.OverRatio); err != nil {
		return err
	}
	if err := checkRatio("resampling.under_ratio", c.Resampling.UnderRatio); err != nil {
		return err
	}
	if c.Resampling.KNeighbors < 1 {
		return errors.NewValidationError("resampling.k_neighbors", "must be at least 1", c.Resampling.KNeighbors)
	}
	if !(c.Split.TestSize > 0 && c.Split.TestSize < 1) {
		return errors.NewValidationError("split.test_size", "must be in (0, 1)", c.Split.TestSize)
	}
	switch c.Scaler {
	case "standard", "minmax":
	default:
		return errors.NewValidationError("scaler", "must be 'standard' or 'minmax'", c.Scaler)
	}
	if len(c.Models) == 0 {
		return errors.NewValidationError("models", "at least one model is required", c.Models)
	}
	seen := make(map[string]bool, len(c.Models))
	for _, m := range c.Models {
		if err := m.Validate(); err != nil {
			return err
		}
		if seen[m.Name] {
			return errors.NewValidationError("models", "duplicate model", m.Name)
		}
		seen[m.Name] = true
	}
	if c.Importance.NEstimators < 1 {
		return errors.NewValidationError("importance.n_estimators", "must be at least 1", c.Importance.NEstimators)
	}
	if c.Output.Dir == "" && c.Output.Plots {
		return errors.NewValidationError("output.dir", "must not be empty when plots are enabled", c.Output.Dir)
	}
	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		return errors.NewValidationError("log.level", err.Error(), c.Log.Level)
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return errors.NewValidationError("log.format", "must be 'json' or 'console'", c.Log.Format)
	}
	return nil
}

// Validate は1つのモデル設定を検証します。
func (m ModelConfig) Validate() error {
	if !slices.Contains(KnownModels, m.Name) {
		return errors.NewValidationError("models.name", "unknown model", m.Name)
	}
	if m.CV < 2 {
		return errors.NewValidationError("models."+m.Name+".cv", "must be at least 2", m.CV)
	}
	switch m.Scoring {
	case model_selection.ScoringAccuracy, model_selection.ScoringF1:
	default:
		return errors.NewValidationError("models."+m.Name+".scoring", "must be 'accuracy' or 'f1'", m.Scoring)
	}
	if err := model_selection.ParamGrid(m.Grid).Validate(); err != nil {
		return errors.Wrapf(err, "models.%s.grid", m.Name)
	}
	return nil
}

func checkRatio(name string, v float64) error {
	if !(v > 0 && v <= 1) {
		return errors.NewValidationError(name, "must be in (0, 1]", v)
	}
	return nil
}

// SelectModels は指定した名前のモデルだけを既存の順序のまま残します。
func (c *Config) SelectModels(names []string) error {
	if len(names) == 0 {
		return nil
	}
	for _, n := range names {
		if !slices.ContainsFunc(c.Models, func(m ModelConfig) bool { return m.Name == n }) {
			return errors.NewValidationError("models", "unknown or unconfigured model", n)
		}
	}
	c.Models = slices.DeleteFunc(c.Models, func(m ModelConfig) bool {
		return !slices.Contains(names, m.Name)
	})
	return nil
}

// Model は名前でモデル設定を探します。
func (c *Config) Model(name string) (ModelConfig, bool) {
	i := slices.IndexFunc(c.Models, func(m ModelConfig) bool { return m.Name == name })
	if i < 0 {
		return ModelConfig{}, false
	}
	return c.Models[i], true
}

// YAML は設定をYAMLとして書き出します。
func (c *Config) YAML() ([]byte, error) {
	out, err := yaml.Marshal(c)
	if err != nil {
		return nil, errors.Wrap(err, "config: marshal yaml")
	}
	return out, nil
}
