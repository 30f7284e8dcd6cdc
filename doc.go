// Package chdrisk predicts ten-year coronary heart disease (CHD) risk from the
// Framingham Heart Study data and compares five classical classifiers.
//
// The repository is organized like a small scikit-learn: estimators follow a
// Fit/Predict API on gonum matrices, and the analysis pipeline in package chd
// wires them together.
//
// # Pipeline
//
//  1. Load framingham.csv, drop education and currentSmoker, drop rows with
//     missing values and rename male to sex.
//  2. Rebalance with SMOTE and then random undersampling, both to a
//     minority/majority ratio of 0.7.
//  3. Split 80/20 with seed 42 and standardize on the training partition.
//  4. Grid-search logistic regression, KNN, a decision tree, an RBF SVM and a
//     random forest with k-fold cross validation.
//  5. Report accuracy and F1 on the held-out split, plot confusion matrices and
//     the comparison, and rank random forest feature importances.
//
// # Quick Start
//
// From the command line:
//
//	go run ./cmd/chdrisk run --data framingham.csv --out plots
//	go run ./cmd/chdrisk run --synthetic 2000 --models knn,random_forest
//
// From Go:
//
//	package main
//
//	import (
//	    "context"
//	    "log"
//	    "os"
//
//	    "github.com/YuminosukeSato/chdrisk/chd"
//	    "github.com/YuminosukeSato/chdrisk/config"
//	)
//
//	func main() {
//	    cfg := config.Default()
//	    cfg.Data.Path = "framingham.csv"
//
//	    r, err := chd.NewRunner(cfg, chd.WithOutput(os.Stdout))
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    res, err := r.Run(context.Background())
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    for _, m := range res.Models {
//	        log.Printf("%s: accuracy=%.3f f1=%.3f", m.Name, m.Accuracy, m.F1)
//	    }
//	}
//
// # Packages
//
//   - chd: the pipeline Runner
//   - config: YAML configuration and the default grids
//   - dataset: CSV loading and cleaning, Table, synthetic data
//   - imblearn: SMOTE, RandomUnderSampler and the sampler pipeline
//   - preprocessing: StandardScaler and MinMaxScaler
//   - sklearn/model_selection: TrainTestSplit, KFold, GridSearchCV
//   - sklearn/linear_model, sklearn/neighbors, sklearn/tree, sklearn/svm,
//     sklearn/ensemble: the classifiers
//   - metrics: accuracy, F1, confusion matrix, classification report
//   - report, viz: text tables and PNG plots
//   - core/model, core/parallel: estimator interfaces and worker helpers
//   - pkg/errors, pkg/log: structured errors and zerolog-backed logging
package chdrisk
