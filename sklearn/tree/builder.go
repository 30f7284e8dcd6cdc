package tree

import (
	"cmp"
	"math"
	"math/rand/v2"
	"slices"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/chdrisk/pkg/errors"
)

// Dataset は列優先で保持した学習データです。
// ランダムフォレストでは一度だけ作成し、すべての木で共有します（読み取り専用）。
type Dataset struct {
	cols    [][]float64
	y       []int // classes へのインデックス
	classes []int
}

// NewDataset はXとyからDatasetを作成します。yはn×1の整数ラベルです。
func NewDataset(X, y mat.Matrix) (*Dataset, error) {
	nSamples, nFeatures := X.Dims()
	yRows, yCols := y.Dims()
	if nSamples == 0 || nFeatures == 0 {
		return nil, errors.Wrap(errors.ErrEmptyData, "tree.NewDataset")
	}
	if yRows != nSamples {
		return nil, errors.NewDimensionError("tree.NewDataset", nSamples, yRows, 0)
	}
	if yCols != 1 {
		return nil, errors.NewDimensionError("tree.NewDataset", 1, yCols, 1)
	}

	d := &Dataset{cols: make([][]float64, nFeatures), y: make([]int, nSamples)}
	for j := 0; j < nFeatures; j++ {
		d.cols[j] = mat.Col(nil, j, X)
	}

	seen := make(map[int]struct{})
	for i := 0; i < nSamples; i++ {
		seen[int(y.At(i, 0))] = struct{}{}
	}
	for c := range seen {
		d.classes = append(d.classes, c)
	}
	slices.Sort(d.classes)
	for i := 0; i < nSamples; i++ {
		d.y[i], _ = slices.BinarySearch(d.classes, int(y.At(i, 0)))
	}
	return d, nil
}

// NSamples はサンプル数を返します。
func (d *Dataset) NSamples() int { return len(d.y) }

// NFeatures は特徴量数を返します。
func (d *Dataset) NFeatures() int { return len(d.cols) }

// Classes はクラスラベル（昇順）を返します。
func (d *Dataset) Classes() []int { return slices.Clone(d.classes) }

// ClassIndex はi番目のサンプルのクラスインデックスを返します。
func (d *Dataset) ClassIndex(i int) int { return d.y[i] }

type sortItem struct {
	v float64
	c int
}

type split struct {
	feature   int
	threshold float64
	impurity  float64 // 子ノードの加重平均不純度
}

type builder struct {
	dt          *DecisionTreeClassifier
	data        *Dataset
	maxFeatures int
	rng         *rand.Rand
	importances []float64
	scratch     []sortItem
}

// build はsamplesを根とする部分木を作り、そのノード番号を返します。
func (b *builder) build(samples []int, depth int) int {
	dt := b.dt
	k := len(b.data.classes)
	n := len(samples)

	counts := make([]float64, k)
	for _, s := range samples {
		counts[b.data.y[s]]++
	}
	impurity := b.impurity(counts, float64(n))

	value := make([]float64, k)
	for c := range counts {
		value[c] = counts[c] / float64(n)
	}

	idx := len(dt.nodes)
	dt.nodes = append(dt.nodes, node{feature: -1, value: value, nSamples: n, impurity: impurity})
	if depth > dt.depth_ {
		dt.depth_ = depth
	}

	isLeaf := (dt.maxDepth >= 0 && depth >= dt.maxDepth) ||
		n < dt.minSamplesSplit ||
		n < 2*dt.minSamplesLeaf ||
		impurity <= featureThreshold

	var best split
	found := false
	if !isLeaf {
		best, found = b.findSplit(samples, counts)
	}
	if !found {
		dt.nLeaves_++
		return idx
	}

	// samples をその場で左右に分ける
	cols := b.data.cols[best.feature]
	i, j := 0, n-1
	for i <= j {
		if cols[samples[i]] <= best.threshold {
			i++
		} else {
			samples[i], samples[j] = samples[j], samples[i]
			j--
		}
	}
	left, right := samples[:i], samples[i:]

	// 子ノードの不純度を求めるため重要度は子の構築後に加算する
	l := b.build(left, depth+1)
	r := b.build(right, depth+1)

	nd := &dt.nodes[idx]
	nd.feature = best.feature
	nd.threshold = best.threshold
	nd.left = l
	nd.right = r

	b.importances[best.feature] += float64(n)*impurity -
		float64(len(left))*dt.nodes[l].impurity -
		float64(len(right))*dt.nodes[r].impurity
	return idx
}

// findSplit は不純度を最も下げる分割を探します。
// max_features 個の（定数でない）特徴量を調べても有効な分割が無ければ、残りの特徴量も調べます。
func (b *builder) findSplit(samples []int, parent []float64) (split, bool) {
	nFeatures := len(b.data.cols)
	order := make([]int, nFeatures)
	if b.maxFeatures < nFeatures {
		order = b.rng.Perm(nFeatures)
	} else {
		for i := range order {
			order[i] = i
		}
	}

	n := len(samples)
	minLeaf := b.dt.minSamplesLeaf
	k := len(parent)
	leftCounts := make([]float64, k)
	rightCounts := make([]float64, k)
	items := b.scratch[:n]

	best := split{impurity: math.Inf(1)}
	found := false
	visited := 0

	for _, f := range order {
		if visited >= b.maxFeatures && found {
			break
		}
		col := b.data.cols[f]
		for i, s := range samples {
			items[i] = sortItem{v: col[s], c: b.data.y[s]}
		}
		slices.SortFunc(items, func(x, y sortItem) int { return cmp.Compare(x.v, y.v) })
		if items[n-1].v <= items[0].v+featureThreshold {
			continue // 定数特徴量は数えない
		}
		visited++

		clear(leftCounts)
		copy(rightCounts, parent)
		for i := 0; i < n-1; i++ {
			leftCounts[items[i].c]++
			rightCounts[items[i].c]--
			nLeft := i + 1
			nRight := n - nLeft
			if nLeft < minLeaf {
				continue
			}
			if nRight < minLeaf {
				break
			}
			if items[i+1].v <= items[i].v+featureThreshold {
				continue
			}
			imp := (float64(nLeft)*b.impurity(leftCounts, float64(nLeft)) +
				float64(nRight)*b.impurity(rightCounts, float64(nRight))) / float64(n)
			if imp < best.impurity {
				threshold := (items[i].v + items[i+1].v) / 2
				if threshold >= items[i+1].v {
					threshold = items[i].v
				}
				best = split{feature: f, threshold: threshold, impurity: imp}
				found = true
			}
		}
	}
	return best, found
}

func (b *builder) impurity(counts []float64, n float64) float64 {
	if n == 0 {
		return 0
	}
	if b.dt.criterion == "entropy" {
		h := 0.0
		for _, c := range counts {
			if c > 0 {
				p := c / n
				h -= p * math.Log2(p)
			}
		}
		return h
	}
	g := 1.0
	for _, c := range counts {
		p := c / n
		g -= p * p
	}
	return g
}
