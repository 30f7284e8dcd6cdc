package chd

import (
	"github.com/YuminosukeSato/chdrisk/config"
	"github.com/YuminosukeSato/chdrisk/core/model"
	"github.com/YuminosukeSato/chdrisk/pkg/errors"
	"github.com/YuminosukeSato/chdrisk/sklearn/ensemble"
	"github.com/YuminosukeSato/chdrisk/sklearn/linear_model"
	"github.com/YuminosukeSato/chdrisk/sklearn/neighbors"
	"github.com/YuminosukeSato/chdrisk/sklearn/svm"
	"github.com/YuminosukeSato/chdrisk/sklearn/tree"
)

// NewEstimator は設定のモデル名から未学習の分類器を作り、固定パラメータを適用します。
//
// innerJobs はKNNとランダムフォレスト内部のワーカー数です。
// グリッドサーチが候補を並列に学習する場合は1を渡します。
func NewEstimator(m config.ModelConfig, innerJobs int) (model.Classifier, error) {
	var est model.Classifier
	switch m.Name {
	case config.ModelLogisticRegression:
		est = linear_model.NewLogisticRegression()
	case config.ModelKNN:
		est = neighbors.NewKNeighborsClassifier(neighbors.WithNJobs(innerJobs))
	case config.ModelDecisionTree:
		est = tree.NewDecisionTreeClassifier()
	case config.ModelSVM:
		est = svm.NewSVC()
	case config.ModelRandomForest:
		est = ensemble.NewRandomForestClassifier(ensemble.WithNJobs(innerJobs))
	default:
		return nil, errors.NewValidationError("models.name", "unknown model", m.Name)
	}

	if len(m.Params) > 0 {
		if err := est.SetParams(m.Params); err != nil {
			return nil, errors.Wrapf(err, "model %s", m.Name)
		}
	}
	return est, nil
}
