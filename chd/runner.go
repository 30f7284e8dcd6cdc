// Package chd はフラミンガム心臓研究データから10年以内の冠動脈疾患(CHD)リスクを
// 予測する分析パイプラインです。
//
// Runner は次の順でステージを実行し、どこかで失敗すればその時点で止まります。
//
//  1. CSVの読み込みとクリーニング
//  2. SMOTE → RandomUnderSampler によるクラス比の調整
//  3. 学習/テスト分割
//  4. 標準化（学習データのみでfit）
//  5. 5つの分類器それぞれのグリッドサーチと評価
//  6. 結果の集約
//  7. 相関と特徴量重要度の分析
//
// 使用例:
//
//	r, err := chd.NewRunner(config.Default(), chd.WithOutput(os.Stdout))
//	if err != nil {
//	    return err
//	}
//	res, err := r.Run(ctx)
package chd

import (
	"context"
	"io"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/chdrisk/config"
	"github.com/YuminosukeSato/chdrisk/dataset"
	"github.com/YuminosukeSato/chdrisk/imblearn"
	"github.com/YuminosukeSato/chdrisk/metrics"
	"github.com/YuminosukeSato/chdrisk/pkg/errors"
	"github.com/YuminosukeSato/chdrisk/pkg/log"
	"github.com/YuminosukeSato/chdrisk/preprocessing"
	"github.com/YuminosukeSato/chdrisk/report"
	"github.com/YuminosukeSato/chdrisk/sklearn/ensemble"
	"github.com/YuminosukeSato/chdrisk/sklearn/model_selection"
	"github.com/YuminosukeSato/chdrisk/viz"
)

// ステージ名
const (
	StageLoad       = "load"
	StageResample   = "resample"
	StageSplit      = "split"
	StageScale      = "scale"
	StageSearch     = "search"
	StageSummary    = "summary"
	StageImportance = "importance"
)

// ModelResult は1つの分類器のグリッドサーチとテスト評価の結果です。
type ModelResult struct {
	report.ModelScore

	// Key は設定上のモデル名（例: "random_forest"）
	Key         string
	WeightedF1  float64
	Predictions []float64
	CVResults   []model_selection.CandidateResult
}

// Result はパイプライン1回分の結果です。
type Result struct {
	RunID string

	// Clean はCSVから読み込んだ場合のみ設定される
	Clean     *dataset.CleanReport
	Data      *dataset.Table
	Resampled *dataset.Table
	Before    map[int]int
	After     map[int]int

	Split  *model_selection.Split
	XTrain *mat.Dense // 標準化済み
	XTest  *mat.Dense // 標準化済み

	Models       []ModelResult
	Correlations []dataset.FeatureCorrelation
	Importances  []float64 // Resampled.FeatureNames と同じ順序

	Plots []string
}

// Runner はパイプラインを実行します。
type Runner struct {
	cfg    *config.Config
	out    io.Writer
	logger log.Logger
	table  *dataset.Table
	runID  string
}

// Option は Runner の関数オプションです。
type Option func(*Runner)

// WithOutput は表やレポートの出力先を設定します（デフォルト: io.Discard）。
func WithOutput(w io.Writer) Option {
	return func(r *Runner) { r.out = w }
}

// WithLogger はロガーを設定します。
func WithLogger(logger log.Logger) Option {
	return func(r *Runner) { r.logger = logger }
}

// WithTable はCSVの代わりに既にクリーニング済みのTableを使います。
func WithTable(t *dataset.Table) Option {
	return func(r *Runner) { r.table = t }
}

// WithRunID は実行IDを固定します。省略するとUUIDを発行します。
func WithRunID(id string) Option {
	return func(r *Runner) { r.runID = id }
}

// NewRunner は設定を検証してRunnerを作成します。
func NewRunner(cfg *config.Config, opts ...Option) (*Runner, error) {
	if cfg == nil {
		return nil, errors.NewValidationError("config", "must not be nil", nil)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	r := &Runner{cfg: cfg, out: io.Discard}
	for _, opt := range opts {
		opt(r)
	}
	if r.runID == "" {
		r.runID = uuid.NewString()
	}
	if r.logger == nil {
		r.logger = log.GetLoggerWithName("chd")
	}
	r.logger = r.logger.With(log.RunIDKey, r.runID)
	return r, nil
}

// RunID は実行IDを返します。
func (r *Runner) RunID() string { return r.runID }

// Run は全ステージを順に実行します。
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	res := &Result{RunID: r.runID}
	p := report.New(r.out)
	if r.cfg.Output.Markdown {
		p = report.NewMarkdown(r.out)
	}
	start := time.Now()
	r.logger.Info("pipeline started", log.PathKey, r.cfg.Data.Path)

	if err := r.stage(ctx, StageLoad, func() error { return r.load(res, p) }); err != nil {
		return nil, err
	}
	if err := r.stage(ctx, StageResample, func() error { return r.resample(res, p) }); err != nil {
		return nil, err
	}
	if err := r.stage(ctx, StageSplit, func() error { return r.split(res) }); err != nil {
		return nil, err
	}
	if err := r.stage(ctx, StageScale, func() error { return r.scale(res) }); err != nil {
		return nil, err
	}
	for _, m := range r.cfg.Models {
		name := StageSearch + "/" + m.Name
		if err := r.stage(ctx, name, func() error { return r.search(ctx, m, res, p) }); err != nil {
			return nil, err
		}
	}
	if err := r.stage(ctx, StageSummary, func() error { return r.summary(res, p) }); err != nil {
		return nil, err
	}
	if err := r.stage(ctx, StageImportance, func() error { return r.importance(res, p) }); err != nil {
		return nil, err
	}

	r.logger.Info("pipeline finished",
		log.DurationMsKey, time.Since(start).Milliseconds(),
		"plots", len(res.Plots),
	)
	return res, nil
}

// stage はfnをpanic回収付きで実行し、失敗したらステージ名でラップして返す
func (r *Runner) stage(ctx context.Context, name string, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return errors.Wrapf(err, "stage %s", name)
	}
	logger := r.logger.With(log.StageKey, name)
	logger.Debug("stage started")
	start := time.Now()
	if err := errors.SafeExecute(name, fn); err != nil {
		return errors.Wrapf(err, "stage %s", name)
	}
	logger.Info("stage finished", log.DurationMsKey, time.Since(start).Milliseconds())
	return nil
}

func (r *Runner) load(res *Result, p *report.Printer) error {
	if r.table != nil {
		res.Data = r.table
		r.logger.Info("using in-memory dataset",
			log.SamplesKey, r.table.NRows(),
			log.FeaturesKey, r.table.NFeatures(),
		)
	} else {
		tbl, clean, err := dataset.LoadCSV(r.cfg.Data.Path, loadOptions(r.cfg.Data))
		if err != nil {
			return err
		}
		res.Data, res.Clean = tbl, clean
		p.Cleaning(clean, tbl)
	}
	p.Head(res.Data, 5)
	return nil
}

func loadOptions(d config.DataConfig) dataset.LoadOptions {
	return dataset.LoadOptions{
		Required:  d.Required,
		Drop:      d.Drop,
		Rename:    d.Rename,
		Target:    d.Target,
		NaNValues: d.NaNValues,
	}
}

func (r *Runner) resample(res *Result, p *report.Printer) error {
	rc := r.cfg.Resampling
	smote := imblearn.NewSMOTE(rc.OverRatio, rc.RandomState)
	smote.KNeighbors = rc.KNeighbors
	under := imblearn.NewRandomUnderSampler(rc.UnderRatio, rc.RandomState)

	X, y, err := imblearn.NewPipeline(smote, under).FitResample(res.Data.X, res.Data.Y)
	if err != nil {
		return err
	}
	// 目的変数は列名ではなく Table.TargetName と Y で追跡する
	res.Resampled, err = res.Data.WithData(X, y)
	if err != nil {
		return err
	}
	res.Before = res.Data.ClassCounts()
	res.After = res.Resampled.ClassCounts()
	r.logger.Info("classes rebalanced",
		log.OperationKey, log.OperationResample,
		log.SamplesKey, res.Resampled.NRows(),
		"ratio", imblearn.Ratio(y),
	)

	p.ClassBalance(res.Before, res.After)
	if err := r.plot(res, "class_balance.png", func(path string) error {
		return viz.ClassBalance(path, res.Before, res.After)
	}); err != nil {
		return err
	}

	ages, err := res.Data.Column("age")
	if err != nil {
		r.logger.Warn("age column not found; skipping age distribution plot")
		return nil
	}
	return r.plot(res, "age_distribution.png", func(path string) error {
		return viz.AgeDistribution(path, ages, res.Data.Y)
	})
}

func (r *Runner) split(res *Result) error {
	s, err := model_selection.TrainTestSplit(res.Resampled.X, res.Resampled.Y, r.cfg.Split.TestSize,
		model_selection.WithRandomState(r.cfg.Split.RandomState),
		model_selection.WithStratify(r.cfg.Split.Stratify),
	)
	if err != nil {
		return err
	}
	res.Split = s
	r.logger.Info("data split",
		"train", len(s.TrainIndex),
		"test", len(s.TestIndex),
		log.RandomSeedKey, r.cfg.Split.RandomState,
	)
	return nil
}

func (r *Runner) scale(res *Result) error {
	scaler, err := preprocessing.NewScaler(r.cfg.Scaler)
	if err != nil {
		return err
	}
	train, err := scaler.FitTransform(res.Split.XTrain)
	if err != nil {
		return err
	}
	// テストデータには学習データの統計量をそのまま使う
	test, err := scaler.Transform(res.Split.XTest)
	if err != nil {
		return err
	}
	res.XTrain = mat.DenseCopyOf(train)
	res.XTest = mat.DenseCopyOf(test)
	return nil
}

func (r *Runner) search(ctx context.Context, m config.ModelConfig, res *Result, p *report.Printer) error {
	logger := r.logger.With(log.ModelNameKey, m.Name)

	innerJobs := -1
	if r.cfg.Jobs != 1 {
		innerJobs = 1
	}
	est, err := NewEstimator(m, innerJobs)
	if err != nil {
		return err
	}
	gs := model_selection.NewGridSearchCV(est, model_selection.ParamGrid(m.Grid),
		model_selection.WithCV(m.CV),
		model_selection.WithScoring(m.Scoring),
		model_selection.WithNJobs(r.cfg.Jobs),
		model_selection.WithLogger(logger),
	)
	if err := gs.FitContext(ctx, res.XTrain, metrics.FromLabels(res.Split.YTrain)); err != nil {
		return err
	}

	pred, err := gs.Predict(res.XTest)
	if err != nil {
		return err
	}
	mr, err := evaluate(m, res.Split.YTest, pred)
	if err != nil {
		return err
	}
	mr.BestParams = gs.BestParams()
	mr.CVScore = gs.BestScore()
	mr.CVResults = gs.CVResults()
	res.Models = append(res.Models, mr)

	logger.Info("model evaluated",
		log.HyperParamsKey, mr.BestParams,
		log.ScoreKey, mr.CVScore,
		log.AccuracyKey, mr.Accuracy,
		log.F1Key, mr.F1,
	)

	p.Model(mr.ModelScore)
	return r.plot(res, "confusion_"+m.Name+".png", func(path string) error {
		return viz.ConfusionHeatmap(path, m.Display+" confusion matrix", mr.Confusion, mr.Labels)
	})
}

// evaluate はテストデータ上の予測を採点する。F1は陽性ラベル1の二値F1。
func evaluate(m config.ModelConfig, yTest []float64, pred mat.Matrix) (ModelResult, error) {
	yTrue := metrics.FromLabels(yTest)
	yPred, err := metrics.ColumnVector(pred)
	if err != nil {
		return ModelResult{}, err
	}
	acc, err := metrics.Accuracy(yTrue, yPred)
	if err != nil {
		return ModelResult{}, err
	}
	f1, err := metrics.F1Score(yTrue, yPred, metrics.AverageBinary)
	if err != nil {
		return ModelResult{}, err
	}
	wf1, err := metrics.F1Score(yTrue, yPred, metrics.AverageWeighted)
	if err != nil {
		return ModelResult{}, err
	}
	cm, labels, err := metrics.ConfusionMatrix(yTrue, yPred, []int{0, 1})
	if err != nil {
		return ModelResult{}, err
	}
	rep, err := metrics.NewClassificationReport(yTrue, yPred, 2)
	if err != nil {
		return ModelResult{}, err
	}
	return ModelResult{
		ModelScore: report.ModelScore{
			Name:      m.Display,
			Accuracy:  acc,
			F1:        f1,
			Confusion: cm,
			Labels:    labels,
			Report:    rep,
		},
		Key:         m.Name,
		WeightedF1:  wf1,
		Predictions: mat.Col(nil, 0, yPred),
	}, nil
}

func (r *Runner) summary(res *Result, p *report.Printer) error {
	scores := make([]report.ModelScore, len(res.Models))
	names := make([]string, len(res.Models))
	acc := make([]float64, len(res.Models))
	f1 := make([]float64, len(res.Models))
	for i, m := range res.Models {
		scores[i] = m.ModelScore
		names[i] = m.Name
		acc[i] = m.Accuracy
		f1[i] = m.F1
	}
	p.Summary(scores)
	return r.plot(res, "model_comparison.png", func(path string) error {
		return viz.ModelComparison(path, names, acc, f1)
	})
}

// importance はリサンプリング後の全データ（標準化前）で既定のランダムフォレストを学習し、
// 重要度を求める。その前に各特徴量と目的変数の相関を表示する。
func (r *Runner) importance(res *Result, p *report.Printer) error {
	res.Correlations = dataset.CorrelationWithTarget(res.Resampled)
	p.Correlation(res.Correlations)

	ic := r.cfg.Importance
	rf := ensemble.NewRandomForestClassifier(
		ensemble.WithNEstimators(ic.NEstimators),
		ensemble.WithMaxFeatures(ic.MaxFeatures),
		ensemble.WithRandomState(ic.RandomState),
		ensemble.WithNJobs(r.cfg.Jobs),
	)
	if err := rf.Fit(res.Resampled.X, metrics.FromLabels(res.Resampled.Y)); err != nil {
		return err
	}
	res.Importances = rf.GetFeatureImportances()

	p.Importance(res.Resampled.FeatureNames, res.Importances)
	return r.plot(res, "feature_importance.png", func(path string) error {
		return viz.FeatureImportance(path, res.Resampled.FeatureNames, res.Importances)
	})
}

// plot は出力が有効なときだけ描画し、書き出したパスを記録する
func (r *Runner) plot(res *Result, name string, draw func(path string) error) error {
	if !r.cfg.Output.Plots {
		return nil
	}
	path := filepath.Join(r.cfg.Output.Dir, name)
	if err := draw(path); err != nil {
		return err
	}
	res.Plots = append(res.Plots, path)
	r.logger.Debug("plot written", log.PathKey, path)
	return nil
}
