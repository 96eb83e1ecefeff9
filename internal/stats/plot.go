package stats

import (
	"fmt"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// WriteFitnessPlot renders best (and, when present, mean) fitness per
// generation as a PNG chart.
func WriteFitnessPlot(path, title string, best, mean []float64) error {
	if len(best) == 0 {
		return fmt.Errorf("fitness plot requires at least one generation")
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Generation"
	p.Y.Label.Text = "Fitness"
	p.Y.Min = 0
	p.Y.Max = 1

	bestLine, err := plotter.NewLine(generationXYs(best))
	if err != nil {
		return err
	}
	p.Add(bestLine)
	p.Legend.Add("best", bestLine)

	if len(mean) > 0 {
		meanLine, err := plotter.NewLine(generationXYs(mean))
		if err != nil {
			return err
		}
		meanLine.LineStyle.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
		p.Add(meanLine)
		p.Legend.Add("mean", meanLine)
	}
	p.Legend.Top = true
	p.Legend.Left = true

	return p.Save(6*vg.Inch, 4*vg.Inch, path)
}

func generationXYs(values []float64) plotter.XYs {
	points := make(plotter.XYs, len(values))
	for i, value := range values {
		points[i].X = float64(i + 1)
		points[i].Y = value
	}
	return points
}
