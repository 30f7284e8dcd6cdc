package model_selection

import (
	"context"
	"math"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/YuminosukeSato/chdrisk/core/model"
	"github.com/YuminosukeSato/chdrisk/metrics"
	"github.com/YuminosukeSato/chdrisk/pkg/errors"
	"github.com/YuminosukeSato/chdrisk/pkg/log"
)

// 交差検証のスコア関数
const (
	ScoringAccuracy = "accuracy"
	ScoringF1       = "f1"
)

// CandidateResult は1つのパラメータ候補の交差検証結果です。
type CandidateResult struct {
	Params        map[string]interface{}
	SplitScores   []float64
	MeanTestScore float64
	StdTestScore  float64
	MeanFitTime   time.Duration
	Rank          int
}

// GridSearchCV はパラメータグリッドの全候補を交差検証で評価し、最良の候補で再学習する。
type GridSearchCV struct {
	estimator model.Classifier
	paramGrid ParamGrid
	cv        int
	scoring   string
	nJobs     int
	refit     bool
	logger    log.Logger

	bestParams_    map[string]interface{}
	bestScore_     float64
	bestIndex_     int
	bestEstimator_ model.Classifier
	cvResults_     []CandidateResult
	state          *model.StateManager
}

// GridSearchOption is a functional option for GridSearchCV
type GridSearchOption func(*GridSearchCV)

// WithCV は fold 数を設定する（デフォルト: 5）
func WithCV(folds int) GridSearchOption {
	return func(g *GridSearchCV) { g.cv = folds }
}

// WithScoring はスコア関数を設定する（"accuracy" または "f1"）
func WithScoring(scoring string) GridSearchOption {
	return func(g *GridSearchCV) { g.scoring = scoring }
}

// WithNJobs は同時に学習する (候補, fold) の数を設定する。0以下はCPU数。
func WithNJobs(n int) GridSearchOption {
	return func(g *GridSearchCV) { g.nJobs = n }
}

// WithRefit は最良候補を訓練データ全体で再学習するかを設定する
func WithRefit(refit bool) GridSearchOption {
	return func(g *GridSearchCV) { g.refit = refit }
}

// WithLogger はロガーを設定する
func WithLogger(logger log.Logger) GridSearchOption {
	return func(g *GridSearchCV) { g.logger = logger }
}

// NewGridSearchCV creates a new GridSearchCV
func NewGridSearchCV(estimator model.Classifier, grid ParamGrid, opts ...GridSearchOption) *GridSearchCV {
	g := &GridSearchCV{
		estimator: estimator,
		paramGrid: grid,
		cv:        5,
		scoring:   ScoringAccuracy,
		nJobs:     -1,
		refit:     true,
		state:     model.NewStateManager(),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.logger == nil {
		g.logger = log.GetLoggerWithName("GridSearchCV")
	}
	return g
}

// Fit runs the search without cancellation
func (g *GridSearchCV) Fit(X, y mat.Matrix) error {
	return g.FitContext(context.Background(), X, y)
}

// FitContext は全 (候補, fold) を並列に学習・評価する。
// どれか1つでも失敗したら残りをキャンセルしてそのエラーを返す。
func (g *GridSearchCV) FitContext(ctx context.Context, X, y mat.Matrix) error {
	if g.estimator == nil {
		return errors.NewValidationError("estimator", "must not be nil", nil)
	}
	if g.scoring != ScoringAccuracy && g.scoring != ScoringF1 {
		return errors.NewValidationError("scoring", "must be 'accuracy' or 'f1'", g.scoring)
	}
	candidates, err := g.paramGrid.Expand()
	if err != nil {
		return err
	}
	labels, err := metrics.ColumnVector(y)
	if err != nil {
		return errors.Wrap(err, "GridSearchCV.Fit")
	}
	yValues := labels.RawVector().Data
	Xd := mat.DenseCopyOf(X)
	if r, _ := Xd.Dims(); r != len(yValues) {
		return errors.NewDimensionError("GridSearchCV.Fit", r, len(yValues), 0)
	}

	folds, err := NewStratifiedKFold(g.cv, false, 0).Split(yValues)
	if err != nil {
		return err
	}
	foldData := make([]foldSplit, len(folds))
	for f, fold := range folds {
		foldData[f] = foldSplit{
			XTrain: SelectRows(Xd, fold.TrainIndices),
			YTrain: mat.NewVecDense(len(fold.TrainIndices), SelectValues(yValues, fold.TrainIndices)),
			XTest:  SelectRows(Xd, fold.TestIndices),
			YTest:  mat.NewVecDense(len(fold.TestIndices), SelectValues(yValues, fold.TestIndices)),
		}
	}

	workers := g.nJobs
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	g.logger.Info("grid search started",
		log.OperationKey, log.OperationSearch,
		log.CandidatesKey, len(candidates),
		log.FoldsKey, len(folds),
		log.WorkersKey, workers,
		log.SamplesKey, len(yValues),
	)
	start := time.Now()

	scores := make([][]float64, len(candidates))
	fitTimes := make([][]time.Duration, len(candidates))
	for c := range candidates {
		scores[c] = make([]float64, len(folds))
		fitTimes[c] = make([]time.Duration, len(folds))
	}

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(workers)
	for c := range candidates {
		for f := range foldData {
			eg.Go(func() error {
				if err := egCtx.Err(); err != nil {
					return err
				}
				t0 := time.Now()
				score, err := g.evaluate(candidates[c], &foldData[f])
				if err != nil {
					return errors.Wrapf(err, "candidate %s, fold %d", model.FormatParams(candidates[c]), f)
				}
				scores[c][f] = score
				fitTimes[c][f] = time.Since(t0)
				return nil
			})
		}
	}
	if err := eg.Wait(); err != nil {
		return err
	}

	g.collectResults(candidates, scores, fitTimes)
	g.logger.Info("grid search finished",
		log.OperationKey, log.OperationSearch,
		log.HyperParamsKey, model.FormatParams(g.bestParams_),
		log.ScoreKey, g.bestScore_,
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)

	if g.refit {
		best := g.estimator.Clone()
		if err := best.SetParams(g.bestParams_); err != nil {
			return err
		}
		if err := best.Fit(Xd, labels); err != nil {
			return errors.Wrap(err, "GridSearchCV refit")
		}
		g.bestEstimator_ = best
	}
	g.state.SetDimensions(Xd.RawMatrix().Cols, len(yValues))
	g.state.SetFitted()
	return nil
}

type foldSplit struct {
	XTrain, XTest *mat.Dense
	YTrain, YTest *mat.VecDense
}

// evaluate は1つの (候補, fold) を学習してスコアを返す
func (g *GridSearchCV) evaluate(params map[string]interface{}, fold *foldSplit) (float64, error) {
	est := g.estimator.Clone()
	if err := est.SetParams(params); err != nil {
		return 0, err
	}
	if err := est.Fit(fold.XTrain, fold.YTrain); err != nil {
		return 0, err
	}
	pred, err := est.Predict(fold.XTest)
	if err != nil {
		return 0, err
	}
	yPred, err := metrics.ColumnVector(pred)
	if err != nil {
		return 0, err
	}
	if g.scoring == ScoringF1 {
		return metrics.F1Score(fold.YTest, yPred, metrics.AverageBinary)
	}
	return metrics.Accuracy(fold.YTest, yPred)
}

// collectResults は候補ごとの平均・標準偏差と順位を求め、最良候補を決める。
// 平均スコアが同じなら先に現れた候補を選ぶ。
func (g *GridSearchCV) collectResults(candidates []map[string]interface{}, scores [][]float64, fitTimes [][]time.Duration) {
	g.cvResults_ = make([]CandidateResult, len(candidates))
	g.bestIndex_ = 0
	for c := range candidates {
		mean, variance := stat.PopMeanVariance(scores[c], nil)
		var total time.Duration
		for _, d := range fitTimes[c] {
			total += d
		}
		g.cvResults_[c] = CandidateResult{
			Params:        candidates[c],
			SplitScores:   scores[c],
			MeanTestScore: mean,
			StdTestScore:  math.Sqrt(variance),
			MeanFitTime:   total / time.Duration(len(fitTimes[c])),
		}
		if mean > g.cvResults_[g.bestIndex_].MeanTestScore {
			g.bestIndex_ = c
		}
	}
	// 順位は同点なら同順位（scikit-learn の rank_test_score と同じ min 方式）
	for c := range g.cvResults_ {
		rank := 1
		for o := range g.cvResults_ {
			if g.cvResults_[o].MeanTestScore > g.cvResults_[c].MeanTestScore {
				rank++
			}
		}
		g.cvResults_[c].Rank = rank
	}
	g.bestParams_ = candidates[g.bestIndex_]
	g.bestScore_ = g.cvResults_[g.bestIndex_].MeanTestScore
}

// Predict は再学習した最良モデルで予測する
func (g *GridSearchCV) Predict(X mat.Matrix) (mat.Matrix, error) {
	if err := g.state.RequireFitted("GridSearchCV", "Predict"); err != nil {
		return nil, err
	}
	if g.bestEstimator_ == nil {
		return nil, errors.NewValueError("GridSearchCV.Predict", "refit=false; no best estimator is available")
	}
	return g.bestEstimator_.Predict(X)
}

// BestParams は最良候補のパラメータを返す
func (g *GridSearchCV) BestParams() map[string]interface{} {
	out := make(map[string]interface{}, len(g.bestParams_))
	for k, v := range g.bestParams_ {
		out[k] = v
	}
	return out
}

// BestScore は最良候補の平均CVスコアを返す
func (g *GridSearchCV) BestScore() float64 { return g.bestScore_ }

// BestIndex は最良候補のインデックスを返す
func (g *GridSearchCV) BestIndex() int { return g.bestIndex_ }

// BestEstimator は再学習済みの最良モデルを返す（refit=false なら nil）
func (g *GridSearchCV) BestEstimator() model.Classifier { return g.bestEstimator_ }

// CVResults は候補ごとの結果をグリッド展開順で返す
func (g *GridSearchCV) CVResults() []CandidateResult { return g.cvResults_ }
