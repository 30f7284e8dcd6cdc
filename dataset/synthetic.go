package dataset

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/chdrisk/pkg/errors"
)

// CleanFeatureNames はクリーニング後のFramingham特徴量の列名です。
var CleanFeatureNames = []string{
	"sex", "age", "cigsPerDay", "BPMeds", "prevalentStroke", "prevalentHyp",
	"diabetes", "totChol", "sysBP", "diaBP", "BMI", "heartRate", "glucose",
}

// Synthetic はクリーニング後のFraminghamデータと同じ列を持つ合成データを作る。
// 陽性は round(n × positiveRate) 件で、年齢・血圧・喫煙などが陽性側に寄る。
func Synthetic(n int, positiveRate float64, seed uint64) (*Table, error) {
	if n < 2 {
		return nil, errors.NewValidationError("n", "must be >= 2", n)
	}
	if positiveRate <= 0 || positiveRate >= 1 {
		return nil, errors.NewValidationError("positive_rate", "must be in (0, 1)", positiveRate)
	}
	nPos := int(math.Round(float64(n) * positiveRate))
	nPos = max(1, min(nPos, n-1))

	rng := rand.New(rand.NewPCG(seed, seed^0x5deece66d))
	labels := make([]float64, n)
	for i := 0; i < nPos; i++ {
		labels[i] = 1
	}
	rng.Shuffle(n, func(i, j int) { labels[i], labels[j] = labels[j], labels[i] })

	normal := func(mean, sd, lo, hi float64) float64 {
		return math.Max(lo, math.Min(hi, mean+sd*rng.NormFloat64()))
	}
	bernoulli := func(p float64) float64 {
		if rng.Float64() < p {
			return 1
		}
		return 0
	}

	X := mat.NewDense(n, len(CleanFeatureNames), nil)
	for i := 0; i < n; i++ {
		pos := labels[i]
		age := math.Round(normal(48+7*pos, 8, 32, 70))
		sysBP := normal(128+14*pos, 20, 85, 250)
		smoker := bernoulli(0.48 + 0.05*pos)
		cigs := 0.0
		if smoker == 1 {
			cigs = math.Round(normal(18, 10, 1, 60))
		}
		hyp := bernoulli(0.28 + 0.25*pos)
		diabetes := bernoulli(0.02 + 0.05*pos)
		glucose := normal(80+8*pos+60*diabetes, 15, 40, 390)

		row := []float64{
			bernoulli(0.42 + 0.12*pos),  // sex
			age,                         // age
			cigs,                        // cigsPerDay
			bernoulli(0.02 + 0.04*pos),  // BPMeds
			bernoulli(0.005 + 0.01*pos), // prevalentStroke
			hyp,                         // prevalentHyp
			diabetes,                    // diabetes
			math.Round(normal(235+10*pos, 44, 110, 600)), // totChol
			sysBP,                                     // sysBP
			normal(0.5*sysBP+18, 9, 48, 140),          // diaBP
			normal(25.7+0.8*pos, 4, 15, 56),           // BMI
			math.Round(normal(75+1*pos, 12, 44, 140)), // heartRate
			math.Round(glucose),                       // glucose
		}
		X.SetRow(i, row)
	}
	return NewTable(CleanFeatureNames, X, "TenYearCHD", labels)
}
