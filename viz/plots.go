// Package viz はパイプラインの結果をgonum/plotでPNGに描画します。
//
// すべての関数は出力先のパスを受け取り、親ディレクトリが無ければ作成します。
package viz

import (
	"fmt"
	"image/color"
	"math"
	"os"
	"path/filepath"
	"slices"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/text"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	"github.com/YuminosukeSato/chdrisk/pkg/errors"
)

// 既定の画像サイズ
var (
	Width  = 8 * vg.Inch
	Height = 5 * vg.Inch
)

var barWidth = vg.Points(28)

// ClassBalance はリサンプリング前後のクラス件数を並べた棒グラフを描きます。
func ClassBalance(path string, before, after map[int]int) error {
	if len(before) == 0 || len(after) == 0 {
		return errors.Wrap(errors.ErrEmptyData, "viz.ClassBalance")
	}

	p := plot.New()
	p.Title.Text = "Class balance"
	p.Y.Label.Text = "Count"
	p.Y.Min = 0

	labels := unionKeys(before, after)
	offset := -barWidth * vg.Length(len(labels)-1) / 2
	for i, label := range labels {
		counts := plotter.Values{float64(before[label]), float64(after[label])}
		bars, err := plotter.NewBarChart(counts, barWidth)
		if err != nil {
			return errors.Wrap(err, "viz.ClassBalance")
		}
		bars.Color = plotutil.Color(i)
		bars.LineStyle.Width = vg.Length(0)
		bars.Offset = offset + barWidth*vg.Length(i)

		annot, err := barLabels(counts, "%.0f", bars.Offset)
		if err != nil {
			return errors.Wrap(err, "viz.ClassBalance")
		}
		p.Add(bars, annot)
		p.Legend.Add(fmt.Sprintf("TenYearCHD = %d", label), bars)
	}
	p.Legend.Top = true
	p.NominalX("before resampling", "after resampling")

	return save(p, path)
}

// AgeDistribution は目的変数ごとの年齢の箱ひげ図を描きます。
func AgeDistribution(path string, ages, y []float64) error {
	if len(ages) != len(y) {
		return errors.NewDimensionError("viz.AgeDistribution", len(ages), len(y), 0)
	}
	var negative, positive plotter.Values
	for i, a := range ages {
		if y[i] == 1 {
			positive = append(positive, a)
		} else {
			negative = append(negative, a)
		}
	}
	if len(negative) == 0 || len(positive) == 0 {
		return errors.NewValueError("viz.AgeDistribution", "both outcomes need at least one sample")
	}

	p := plot.New()
	p.Title.Text = "Age distribution by ten-year CHD"
	p.Y.Label.Text = "Age"
	err := plotutil.AddBoxPlots(p, vg.Points(60),
		"no CHD (0)", negative,
		"CHD (1)", positive,
	)
	if err != nil {
		return errors.Wrap(err, "viz.AgeDistribution")
	}
	return save(p, path)
}

// ConfusionHeatmap は混同行列をセルの件数付きヒートマップとして描きます。
// 行が実際のクラス、列が予測クラスで、先頭のラベルが上に来ます。
func ConfusionHeatmap(path, title string, cm mat.Matrix, labels []int) error {
	r, c := cm.Dims()
	if r == 0 || r != c {
		return errors.NewDimensionError("viz.ConfusionHeatmap", r, c, 1)
	}
	if len(labels) != r {
		return errors.NewDimensionError("viz.ConfusionHeatmap", r, len(labels), 0)
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Predicted"
	p.Y.Label.Text = "Actual"

	grid := confusionGrid{m: cm}
	heat := plotter.NewHeatMap(grid, palette.Heat(16, 1))
	p.Add(heat)

	var xys plotter.XYs
	var cells []string
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			xys = append(xys, plotter.XY{X: float64(j), Y: float64(r - 1 - i)})
			cells = append(cells, fmt.Sprintf("%.0f", cm.At(i, j)))
		}
	}
	annot, err := plotter.NewLabels(plotter.XYLabels{XYs: xys, Labels: cells})
	if err != nil {
		return errors.Wrap(err, "viz.ConfusionHeatmap")
	}
	for i := range annot.TextStyle {
		annot.TextStyle[i].XAlign = text.XCenter
		annot.TextStyle[i].YAlign = text.YCenter
		annot.TextStyle[i].Color = color.Black
		annot.TextStyle[i].Font.Size = vg.Points(14)
	}
	p.Add(annot)

	names := make([]string, len(labels))
	for i, l := range labels {
		names[i] = fmt.Sprint(l)
	}
	p.NominalX(names...)
	reversed := slices.Clone(names)
	slices.Reverse(reversed)
	p.NominalY(reversed...)

	return saveSized(p, 5*vg.Inch, 4*vg.Inch, path)
}

// confusionGrid は混同行列をplotter.GridXYZとして見せる。行0が上端になる
type confusionGrid struct {
	m mat.Matrix
}

func (g confusionGrid) Dims() (c, r int) {
	r, c = g.m.Dims()
	return c, r
}

func (g confusionGrid) Z(c, r int) float64 {
	n, _ := g.m.Dims()
	return g.m.At(n-1-r, c)
}

func (g confusionGrid) X(c int) float64 { return float64(c) }
func (g confusionGrid) Y(r int) float64 { return float64(r) }

// ModelComparison はモデルごとのAccuracyとF1を左右2枚のパネルに描きます。
// 各棒には小数第3位までの値を添えます。
func ModelComparison(path string, names []string, accuracy, f1 []float64) error {
	if len(names) == 0 {
		return errors.Wrap(errors.ErrEmptyData, "viz.ModelComparison")
	}
	if len(accuracy) != len(names) {
		return errors.NewDimensionError("viz.ModelComparison", len(names), len(accuracy), 0)
	}
	if len(f1) != len(names) {
		return errors.NewDimensionError("viz.ModelComparison", len(names), len(f1), 0)
	}

	acc, err := scorePanel("Accuracy", names, accuracy, plotutil.Color(0))
	if err != nil {
		return err
	}
	f, err := scorePanel("F1 score", names, f1, plotutil.Color(1))
	if err != nil {
		return err
	}

	img := vgimg.New(2*Width, Height)
	dc := draw.New(img)
	tiles := draw.Tiles{
		Rows:      1,
		Cols:      2,
		PadX:      vg.Millimeter * 6,
		PadTop:    vg.Millimeter * 2,
		PadBottom: vg.Millimeter * 2,
		PadLeft:   vg.Millimeter * 2,
		PadRight:  vg.Millimeter * 2,
	}
	plots := [][]*plot.Plot{{acc, f}}
	canvases := plot.Align(plots, tiles, dc)
	acc.Draw(canvases[0][0])
	f.Draw(canvases[0][1])

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrapf(err, "viz: create directory for %s", path)
	}
	out, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "viz: create %s", path)
	}
	if _, err := (vgimg.PngCanvas{Canvas: img}).WriteTo(out); err != nil {
		out.Close()
		return errors.Wrapf(err, "viz: write %s", path)
	}
	return errors.Wrapf(out.Close(), "viz: close %s", path)
}

func scorePanel(title string, names []string, scores []float64, c color.Color) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = title
	p.Y.Min = 0
	p.Y.Max = 1.1

	values := plotter.Values(scores)
	bars, err := plotter.NewBarChart(values, vg.Points(36))
	if err != nil {
		return nil, errors.Wrap(err, "viz.ModelComparison")
	}
	bars.Color = c
	bars.LineStyle.Width = vg.Length(0)

	annot, err := barLabels(values, "%.3f", 0)
	if err != nil {
		return nil, errors.Wrap(err, "viz.ModelComparison")
	}
	p.Add(bars, annot)
	p.NominalX(names...)
	p.X.Tick.Label.Rotation = math.Pi / 8
	p.X.Tick.Label.XAlign = draw.XRight
	p.X.Tick.Label.YAlign = draw.YCenter
	return p, nil
}

// FeatureImportance は重要度の横棒グラフを描きます。最も重要な特徴量が一番上です。
func FeatureImportance(path string, names []string, importances []float64) error {
	if len(names) == 0 {
		return errors.Wrap(errors.ErrEmptyData, "viz.FeatureImportance")
	}
	if len(importances) != len(names) {
		return errors.NewDimensionError("viz.FeatureImportance", len(names), len(importances), 0)
	}

	order := make([]int, len(names))
	for i := range order {
		order[i] = i
	}
	// 昇順に並べると大きいものがY軸の上に来る
	slices.SortStableFunc(order, func(a, b int) int {
		switch {
		case importances[a] < importances[b]:
			return -1
		case importances[a] > importances[b]:
			return 1
		}
		return b - a
	})
	sortedNames := make([]string, len(order))
	values := make(plotter.Values, len(order))
	for i, idx := range order {
		sortedNames[i] = names[idx]
		values[i] = importances[idx]
	}

	p := plot.New()
	p.Title.Text = "Feature importance (random forest)"
	p.X.Label.Text = "Mean decrease in impurity"
	p.X.Min = 0

	bars, err := plotter.NewBarChart(values, vg.Points(14))
	if err != nil {
		return errors.Wrap(err, "viz.FeatureImportance")
	}
	bars.Horizontal = true
	bars.Color = plotutil.Color(2)
	bars.LineStyle.Width = vg.Length(0)

	xys := make(plotter.XYs, len(values))
	text3 := make([]string, len(values))
	for i, v := range values {
		xys[i] = plotter.XY{X: v, Y: float64(i)}
		text3[i] = fmt.Sprintf("%.3f", v)
	}
	annot, err := plotter.NewLabels(plotter.XYLabels{XYs: xys, Labels: text3})
	if err != nil {
		return errors.Wrap(err, "viz.FeatureImportance")
	}
	for i := range annot.TextStyle {
		annot.TextStyle[i].YAlign = text.YCenter
	}
	annot.Offset = vg.Point{X: vg.Points(3)}

	p.Add(bars, annot)
	p.NominalY(sortedNames...)
	return save(p, path)
}

// barLabels は縦棒の上に値を表示するラベルを作る
func barLabels(values plotter.Values, format string, offset vg.Length) (*plotter.Labels, error) {
	xys := make(plotter.XYs, len(values))
	strs := make([]string, len(values))
	for i, v := range values {
		xys[i] = plotter.XY{X: float64(i), Y: v}
		strs[i] = fmt.Sprintf(format, v)
	}
	l, err := plotter.NewLabels(plotter.XYLabels{XYs: xys, Labels: strs})
	if err != nil {
		return nil, err
	}
	for i := range l.TextStyle {
		l.TextStyle[i].XAlign = text.XCenter
		l.TextStyle[i].YAlign = text.YBottom
	}
	l.Offset = vg.Point{X: offset, Y: vg.Points(2)}
	return l, nil
}

func unionKeys(a, b map[int]int) []int {
	seen := make(map[int]bool, len(a)+len(b))
	var keys []int
	for _, m := range []map[int]int{a, b} {
		for k := range m {
			if !seen[k] {
				seen[k] = true
				keys = append(keys, k)
			}
		}
	}
	slices.Sort(keys)
	return keys
}

func save(p *plot.Plot, path string) error {
	return saveSized(p, Width, Height, path)
}

func saveSized(p *plot.Plot, w, h vg.Length, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrapf(err, "viz: create directory for %s", path)
	}
	if err := p.Save(w, h, path); err != nil {
		return errors.Wrapf(err, "viz: save %s", path)
	}
	return nil
}
