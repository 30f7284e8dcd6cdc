// Package model は推定器の共通インターフェースと状態管理を提供します。
package model

import "gonum.org/v1/gonum/mat"

// Fitter は学習可能なモデルのインターフェース
type Fitter interface {
	// Fit はモデルを訓練データで学習させる
	Fit(X, y mat.Matrix) error
}

// Predictor は予測可能なモデルのインターフェース
type Predictor interface {
	// Predict は入力データに対する予測を行う（n×1の列ベクトル）
	Predict(X mat.Matrix) (mat.Matrix, error)
}

// Transformer はデータ変換のインターフェース
type Transformer interface {
	// Fit は変換に必要なパラメータを学習する
	Fit(X mat.Matrix) error

	// Transform はデータを変換する。パラメータは再学習しない
	Transform(X mat.Matrix) (mat.Matrix, error)

	// FitTransform はFitとTransformを同時に実行する
	FitTransform(X mat.Matrix) (mat.Matrix, error)
}

// InverseTransformer は逆変換可能な変換器
type InverseTransformer interface {
	Transformer
	InverseTransform(X mat.Matrix) (mat.Matrix, error)
}

// ParameterGetter はハイパーパラメータを公開するモデル
type ParameterGetter interface {
	GetParams() map[string]interface{}
}

// ParameterSetter はハイパーパラメータを変更できるモデル
type ParameterSetter interface {
	SetParams(params map[string]interface{}) error
}

// Classifier はグリッドサーチで扱える分類器です。
// Clone は同じハイパーパラメータを持つ未学習のインスタンスを返します。
type Classifier interface {
	Fitter
	Predictor
	ParameterGetter
	ParameterSetter

	// Classes は学習時に見たクラスラベルを昇順で返す
	Classes() []int

	Clone() Classifier
}

// ProbabilisticClassifier はクラス確率を出力できる分類器
type ProbabilisticClassifier interface {
	Classifier
	PredictProba(X mat.Matrix) (mat.Matrix, error)
}

// FeatureImportancer は特徴量重要度を持つモデル
type FeatureImportancer interface {
	GetFeatureImportances() []float64
}
