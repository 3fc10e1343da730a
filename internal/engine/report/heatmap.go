package report

import (
	"fmt"
	"math"
	"strconv"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// confusionGrid adapts a confusion matrix to plotter.GridXYZ. Column c is
// the predicted class; row r counts up from the bottom, so the first
// actual class is drawn at the top.
type confusionGrid [][]int

func (g confusionGrid) Dims() (c, r int)   { return len(g), len(g) }
func (g confusionGrid) X(c int) float64    { return float64(c) }
func (g confusionGrid) Y(r int) float64    { return float64(r) }
func (g confusionGrid) Z(c, r int) float64 { return float64(g[len(g)-1-r][c]) }

// RenderConfusion draws cm as an annotated heatmap and saves it as a PNG.
func RenderConfusion(cm [][]int, names []string, path string) error {
	if len(cm) == 0 || len(cm) != len(names) {
		return fmt.Errorf("report: confusion matrix %d x %d for %d classes", len(cm), len(cm), len(names))
	}
	k := len(cm)

	p := plot.New()
	p.Title.Text = "Confusion Matrix (Actual vs Predicted)"
	p.X.Label.Text = "Predicted Label"
	p.Y.Label.Text = "Actual Label"

	grid := confusionGrid(cm)
	hm := plotter.NewHeatMap(grid, palette.Heat(12, 1))
	if hm.Min == hm.Max {
		hm.Max = hm.Min + 1
	}
	p.Add(hm)

	var xys plotter.XYs
	var counts []string
	for c := 0; c < k; c++ {
		for r := 0; r < k; r++ {
			xys = append(xys, plotter.XY{X: float64(c), Y: float64(r)})
			counts = append(counts, strconv.Itoa(int(grid.Z(c, r))))
		}
	}
	labels, err := plotter.NewLabels(plotter.XYLabels{XYs: xys, Labels: counts})
	if err != nil {
		return fmt.Errorf("report: %w", err)
	}
	p.Add(labels)

	xTicks := make([]plot.Tick, k)
	yTicks := make([]plot.Tick, k)
	for i, n := range names {
		xTicks[i] = plot.Tick{Value: float64(i), Label: n}
		yTicks[i] = plot.Tick{Value: float64(k - 1 - i), Label: n}
	}
	p.X.Tick.Marker = plot.ConstantTicks(xTicks)
	p.Y.Tick.Marker = plot.ConstantTicks(yTicks)
	p.X.Tick.Label.Rotation = math.Pi / 4
	p.X.Min, p.X.Max = -0.5, float64(k)-0.5
	p.Y.Min, p.Y.Max = -0.5, float64(k)-0.5

	if err := p.Save(8*vg.Inch, 6*vg.Inch, path); err != nil {
		return fmt.Errorf("report: save %s: %w", path, err)
	}
	return nil
}
