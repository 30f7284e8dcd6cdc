package log

// モデルと操作のコンテキスト
const (
	// ModelNameKey はモデルの種類を表します。例: "SVC", "RandomForestClassifier"
	ModelNameKey = "model.name"

	// OperationKey は実行中の操作です。例: "fit", "predict", "resample"
	OperationKey = "ml.operation"

	// ComponentKey は処理を行っているコンポーネント名です。
	ComponentKey = "ml.component"

	// PhaseKey はライフサイクル上のフェーズです。
	PhaseKey = "ml.phase"

	// HyperParamsKey はハイパーパラメータ（map）です。
	HyperParamsKey = "model.hyperparams"
)

// データの形状
const (
	SamplesKey  = "data.samples"
	FeaturesKey = "data.features"

	// ClassCountsKey はクラスごとの件数です。
	ClassCountsKey = "data.class_counts"

	// DroppedRowsKey はクリーニングで除外された行数です。
	DroppedRowsKey = "data.dropped_rows"

	// PathKey は入出力ファイルのパスです。
	PathKey = "data.path"
)

// 性能と評価指標
const (
	DurationMsKey = "perf.duration_ms"
	AccuracyKey   = "metrics.accuracy"
	F1Key         = "metrics.f1"
	ScoreKey      = "metrics.score"
	LossKey       = "metrics.loss"
	IterationKey  = "training.iteration"
)

// パイプラインと交差検証
const (
	// StageKey はパイプラインのステージ名です。
	StageKey = "pipeline.stage"

	// RunIDKey は実行ごとに発行されるUUIDです。
	RunIDKey = "pipeline.run_id"

	FoldsKey      = "cv.folds"
	CandidatesKey = "cv.candidates"
	WorkersKey    = "cv.workers"

	RandomSeedKey = "config.random_seed"
)

// エラー
const (
	ErrorCodeKey  = "error.code"
	ErrorTypeKey  = "error.type"
	ErrAttrKey    = "error"
	StacktraceKey = "stacktrace"
)

// 標準的な値
const (
	OperationFit          = "fit"
	OperationPredict      = "predict"
	OperationTransform    = "transform"
	OperationFitTransform = "fit_transform"
	OperationResample     = "resample"
	OperationScore        = "score"
	OperationSearch       = "search"

	PhaseTraining      = "training"
	PhaseValidation    = "validation"
	PhaseTesting       = "testing"
	PhasePreprocessing = "preprocessing"

	ErrorNotFitted         = "NOT_FITTED"
	ErrorDimensionMismatch = "DIMENSION_MISMATCH"
	ErrorEmptyData         = "EMPTY_DATA"
	ErrorInvalidInput      = "INVALID_INPUT"
	ErrorConvergence       = "CONVERGENCE_FAILURE"
	ErrorSchema            = "SCHEMA_MISMATCH"
)
