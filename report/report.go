// Package report はパイプラインの結果を表形式のテキストとして標準出力に書きます。
//
// 表はgo-prettyで描画し、百分率や比率はshopspring/decimalで小数第2位に丸めます。
package report

import (
	"cmp"
	"fmt"
	"io"
	"math"
	"slices"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/chdrisk/core/model"
	"github.com/YuminosukeSato/chdrisk/dataset"
	"github.com/YuminosukeSato/chdrisk/metrics"
)

// ModelScore は1つのモデルの評価結果です。
type ModelScore struct {
	Name       string
	BestParams map[string]interface{}
	CVScore    float64
	Accuracy   float64
	F1         float64
	Confusion  mat.Matrix
	Labels     []int
	Report     *metrics.ClassificationReport
}

// Printer は結果を w に書き出します。
type Printer struct {
	w        io.Writer
	markdown bool
}

// New はASCII罫線で表を描くPrinterを返します。
func New(w io.Writer) *Printer {
	return &Printer{w: w}
}

// NewMarkdown はMarkdownの表を描くPrinterを返します。
func NewMarkdown(w io.Writer) *Printer {
	return &Printer{w: w, markdown: true}
}

// Percent は割合を百分率にして小数第2位で丸めた文字列にします。
//
//	Percent(0.87654) -> "87.65%"
func Percent(v float64) string {
	if math.IsNaN(v) {
		return "NaN"
	}
	return decimal.NewFromFloat(v).Mul(decimal.NewFromInt(100)).Round(2).StringFixed(2) + "%"
}

// Ratio は a/b を小数第2位で丸めた文字列にします。b が0なら "inf" です。
func Ratio(a, b int) string {
	if b == 0 {
		return "inf"
	}
	return decimal.NewFromInt(int64(a)).Div(decimal.NewFromInt(int64(b))).Round(2).String()
}

func (p *Printer) newTable(title string) table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleLight)
	if title != "" {
		t.SetTitle(title)
		// タイトルを折り返さない幅（左右のパディングと罫線の分を足す）
		t.Style().Size.WidthMin = text.StringWidthWithoutEscSequences(title) + 4
	}
	return t
}

func (p *Printer) render(t table.Writer) {
	if p.markdown {
		fmt.Fprintln(p.w, t.RenderMarkdown())
	} else {
		fmt.Fprintln(p.w, t.Render())
	}
	fmt.Fprintln(p.w)
}

// Cleaning はCSVのクリーニング結果を表示します。
func (p *Printer) Cleaning(rep *dataset.CleanReport, tbl *dataset.Table) {
	t := p.newTable("Data cleaning")
	t.AppendRow(table.Row{"rows read", rep.RowsRead})
	t.AppendRow(table.Row{"rows dropped (missing values)", rep.RowsDropped})
	t.AppendRow(table.Row{"rows kept", tbl.NRows()})
	t.AppendRow(table.Row{"columns dropped", strings.Join(rep.ColumnsDropped, ", ")})
	renamed := make([]string, 0, len(rep.Renamed))
	for _, from := range sortedKeys(rep.Renamed) {
		renamed = append(renamed, from+" -> "+rep.Renamed[from])
	}
	t.AppendRow(table.Row{"columns renamed", strings.Join(renamed, ", ")})
	t.AppendRow(table.Row{"features", tbl.NFeatures()})
	t.SetColumnConfigs([]table.ColumnConfig{{Number: 2, Align: text.AlignRight}})
	p.render(t)
}

// Head は先頭 n 行を表示します。
func (p *Printer) Head(tbl *dataset.Table, n int) {
	records := tbl.Head(n)
	if len(records) == 0 {
		return
	}
	t := p.newTable("")
	t.AppendHeader(toRow(records[0]))
	for _, rec := range records[1:] {
		t.AppendRow(toRow(rec))
	}
	p.render(t)
}

// ClassBalance はリサンプリング前後のクラス件数と、陰性:陽性の比を表示します。
func (p *Printer) ClassBalance(before, after map[int]int) {
	t := p.newTable("Class balance")
	t.AppendHeader(table.Row{"TenYearCHD", "before", "after"})
	labels := make(map[int]int, len(before)+len(after))
	for k := range before {
		labels[k] = 0
	}
	for k := range after {
		labels[k] = 0
	}
	for _, label := range sortedKeys(labels) {
		t.AppendRow(table.Row{label, before[label], after[label]})
	}
	t.AppendFooter(table.Row{"ratio 0:1", Ratio(before[0], before[1]), Ratio(after[0], after[1])})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, Align: text.AlignRight, AlignFooter: text.AlignRight},
		{Number: 3, Align: text.AlignRight, AlignFooter: text.AlignRight},
	})
	p.render(t)
}

// Model は1つのモデルの最良パラメータ、テスト結果、混同行列、分類レポートを表示します。
func (p *Printer) Model(s ModelScore) {
	t := p.newTable(s.Name)
	t.AppendRow(table.Row{"best params", model.FormatParams(s.BestParams)})
	t.AppendRow(table.Row{"best CV score", fmt.Sprintf("%.4f", s.CVScore)})
	t.AppendRow(table.Row{"accuracy", Percent(s.Accuracy)})
	t.AppendRow(table.Row{"F1 score", Percent(s.F1)})
	p.render(t)

	if s.Confusion != nil {
		p.confusion(s.Name, s.Confusion, s.Labels)
	}
	if s.Report != nil {
		fmt.Fprintln(p.w, s.Report.String())
	}
}

func (p *Printer) confusion(name string, cm mat.Matrix, labels []int) {
	t := p.newTable(name + " confusion matrix")
	header := table.Row{"actual \\ predicted"}
	for _, l := range labels {
		header = append(header, l)
	}
	t.AppendHeader(header)
	r, c := cm.Dims()
	for i := 0; i < r; i++ {
		row := table.Row{labelAt(labels, i)}
		for j := 0; j < c; j++ {
			row = append(row, int(cm.At(i, j)))
		}
		t.AppendRow(row)
	}
	p.render(t)
}

// Summary は全モデルのAccuracyとF1を1つの表にまとめます。
func (p *Printer) Summary(scores []ModelScore) {
	t := p.newTable("Model comparison")
	t.AppendHeader(table.Row{"Models", "Accuracy", "F1 score"})
	for _, s := range scores {
		t.AppendRow(table.Row{s.Name, Percent(s.Accuracy), Percent(s.F1)})
	}
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, Align: text.AlignRight},
		{Number: 3, Align: text.AlignRight},
	})
	p.render(t)
}

// Correlation は各特徴量と目的変数の相関を表示します。
func (p *Printer) Correlation(corrs []dataset.FeatureCorrelation) {
	t := p.newTable("Correlation with target variable")
	t.AppendHeader(table.Row{"feature", "r"})
	for _, c := range corrs {
		t.AppendRow(table.Row{c.Name, fmt.Sprintf("%.6f", c.R)})
	}
	t.SetColumnConfigs([]table.ColumnConfig{{Number: 2, Align: text.AlignRight}})
	p.render(t)
}

// Importance は特徴量重要度を降順で表示します。names と importances は同じ順序です。
func (p *Printer) Importance(names []string, importances []float64) {
	order := make([]int, len(names))
	for i := range order {
		order[i] = i
	}
	slices.SortStableFunc(order, func(a, b int) int {
		switch {
		case importances[a] > importances[b]:
			return -1
		case importances[a] < importances[b]:
			return 1
		}
		return 0
	})

	t := p.newTable("Feature importance")
	t.AppendHeader(table.Row{"#", "feature", "importance"})
	for rank, idx := range order {
		t.AppendRow(table.Row{rank + 1, names[idx], fmt.Sprintf("%.6f", importances[idx])})
	}
	t.SetColumnConfigs([]table.ColumnConfig{{Number: 3, Align: text.AlignRight}})
	p.render(t)
}

func labelAt(labels []int, i int) interface{} {
	if i < len(labels) {
		return labels[i]
	}
	return i
}

func toRow(values []string) table.Row {
	row := make(table.Row, len(values))
	for i, v := range values {
		row[i] = v
	}
	return row
}

func sortedKeys[K cmp.Ordered, V any](m map[K]V) []K {
	keys := make([]K, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
