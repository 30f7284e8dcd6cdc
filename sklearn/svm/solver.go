package svm

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

type kernel struct {
	kind  string
	gamma float64
	X     *mat.Dense
	diag  []float64
}

func newKernel(kind string, gamma float64, X *mat.Dense) *kernel {
	n, _ := X.Dims()
	k := &kernel{kind: kind, gamma: gamma, X: X, diag: make([]float64, n)}
	for i := range k.diag {
		row := X.RawRowView(i)
		k.diag[i] = kernelValue(kind, gamma, row, row)
	}
	return k
}

func (k *kernel) eval(i, j int) float64 {
	return kernelValue(k.kind, k.gamma, k.X.RawRowView(i), k.X.RawRowView(j))
}

// rowCache はQ行列の行を保持するFIFOキャッシュです。
type rowCache struct {
	rows    map[int][]float64
	order   []int
	maxRows int
}

func newRowCache(n int, sizeMB float64) *rowCache {
	maxRows := int(sizeMB * (1 << 20) / float64(8*max(n, 1)))
	maxRows = max(2, min(maxRows, n))
	return &rowCache{rows: make(map[int][]float64, maxRows), maxRows: maxRows}
}

func (c *rowCache) get(i int) ([]float64, bool) {
	r, ok := c.rows[i]
	return r, ok
}

func (c *rowCache) put(i int, row []float64) {
	if len(c.rows) >= c.maxRows {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.rows, oldest)
	}
	c.rows[i] = row
	c.order = append(c.order, i)
}

// solver は libsvm と同じ形の双対問題
//
//	min 0.5 αᵀQα - eᵀα  s.t. yᵀα = 0, 0 <= α_i <= C
//
// を最大違反ペアを選ぶSMOで解きます。Q_ij = y_i y_j K(x_i, x_j) です。
type solver struct {
	k     *kernel
	y     []float64
	C     float64
	eps   float64
	alpha []float64
	grad  []float64
	cache *rowCache
}

func newSolver(k *kernel, y []float64, C, eps, cacheMB float64) *solver {
	n := len(y)
	s := &solver{
		k:     k,
		y:     y,
		C:     C,
		eps:   eps,
		alpha: make([]float64, n),
		grad:  make([]float64, n),
		cache: newRowCache(n, cacheMB),
	}
	for i := range s.grad {
		s.grad[i] = -1
	}
	return s
}

// qRow はQのi行目を返します。
func (s *solver) qRow(i int) []float64 {
	if row, ok := s.cache.get(i); ok {
		return row
	}
	row := make([]float64, len(s.y))
	for j := range row {
		row[j] = s.y[i] * s.y[j] * s.k.eval(i, j)
	}
	s.cache.put(i, row)
	return row
}

func (s *solver) isUpper(i int) bool { return s.alpha[i] >= s.C }
func (s *solver) isLower(i int) bool { return s.alpha[i] <= 0 }

// selectWorkingSet は最大違反ペア (i, j) を返します。KKT条件を満たしていればokはfalseです。
func (s *solver) selectWorkingSet() (i, j int, ok bool) {
	gmax := math.Inf(-1)
	gmin := math.Inf(1)
	i, j = -1, -1
	for t := range s.y {
		v := -s.y[t] * s.grad[t]
		inUp := (s.y[t] > 0 && !s.isUpper(t)) || (s.y[t] < 0 && !s.isLower(t))
		inLow := (s.y[t] > 0 && !s.isLower(t)) || (s.y[t] < 0 && !s.isUpper(t))
		if inUp && v > gmax {
			gmax, i = v, t
		}
		if inLow && v < gmin {
			gmin, j = v, t
		}
	}
	if i < 0 || j < 0 || gmax-gmin < s.eps {
		return -1, -1, false
	}
	return i, j, true
}

// solve は反復回数と収束したかどうかを返します。
func (s *solver) solve(maxIter int) (int, bool) {
	C := s.C
	for iter := 0; iter < maxIter; iter++ {
		i, j, ok := s.selectWorkingSet()
		if !ok {
			return iter, true
		}
		qi := s.qRow(i)
		qj := s.qRow(j)
		kii := s.k.diag[i]
		kjj := s.k.diag[j]

		oldAi, oldAj := s.alpha[i], s.alpha[j]
		ai, aj := oldAi, oldAj

		if s.y[i] != s.y[j] {
			quad := kii + kjj + 2*qi[j]
			if quad <= 0 {
				quad = tau
			}
			delta := (-s.grad[i] - s.grad[j]) / quad
			diff := ai - aj
			ai += delta
			aj += delta
			if diff > 0 {
				if aj < 0 {
					aj = 0
					ai = diff
				}
			} else if ai < 0 {
				ai = 0
				aj = -diff
			}
			if diff > 0 {
				if ai > C {
					ai = C
					aj = C - diff
				}
			} else if aj > C {
				aj = C
				ai = C + diff
			}
		} else {
			quad := kii + kjj - 2*qi[j]
			if quad <= 0 {
				quad = tau
			}
			delta := (s.grad[i] - s.grad[j]) / quad
			sum := ai + aj
			ai -= delta
			aj += delta
			if sum > C {
				if ai > C {
					ai = C
					aj = sum - C
				}
			} else if aj < 0 {
				aj = 0
				ai = sum
			}
			if sum > C {
				if aj > C {
					aj = C
					ai = sum - C
				}
			} else if ai < 0 {
				ai = 0
				aj = sum
			}
		}

		s.alpha[i], s.alpha[j] = ai, aj
		dai, daj := ai-oldAi, aj-oldAj
		for t := range s.grad {
			s.grad[t] += qi[t]*dai + qj[t]*daj
		}
	}
	return maxIter, false
}

// rho は決定関数のしきい値を求めます。
// 自由なサポートベクターがあればその y_i G_i の平均、無ければ上下限の中点です。
func (s *solver) rho() float64 {
	ub := math.Inf(1)
	lb := math.Inf(-1)
	sum := 0.0
	nFree := 0
	for i := range s.y {
		yG := s.y[i] * s.grad[i]
		switch {
		case s.isUpper(i):
			if s.y[i] < 0 {
				ub = math.Min(ub, yG)
			} else {
				lb = math.Max(lb, yG)
			}
		case s.isLower(i):
			if s.y[i] > 0 {
				ub = math.Min(ub, yG)
			} else {
				lb = math.Max(lb, yG)
			}
		default:
			nFree++
			sum += yG
		}
	}
	if nFree > 0 {
		return sum / float64(nFree)
	}
	return (ub + lb) / 2
}
