// Package plot renders the evaluation report as a grouped bar chart,
// one group of bars per system, one color per metric.
package plot

import (
	"fmt"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/lexbench/lex-bench/internal/config"
	"github.com/lexbench/lex-bench/internal/evaluation"
	"github.com/lexbench/lex-bench/internal/pkg/errors"
	"github.com/lexbench/lex-bench/internal/pkg/logger"
)

// Series is one metric across all systems, in system order.
type Series struct {
	Label  string
	Values plotter.Values
}

// Chart draws metric reports to PNG files.
type Chart struct {
	cfg config.PlotConfig
	log *logger.Logger
}

func NewChart(cfg config.PlotConfig, log *logger.Logger) *Chart {
	return &Chart{cfg: cfg, log: log.WithStage("plot")}
}

// Render reads the metrics TSV and writes the chart to the configured
// output path.
func (c *Chart) Render(reportPath string, cutoff int) error {
	rows, err := evaluation.ReadReport(reportPath)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return errors.DataError(fmt.Sprintf("no scored systems in %s", reportPath), nil)
	}

	systems, series := BuildSeries(rows, cutoff)
	if err := c.draw(systems, series); err != nil {
		return err
	}

	c.log.Info("Chart written", "path", c.cfg.OutputPath, "systems", len(systems))
	return nil
}

// BuildSeries reshapes report rows into per-metric series. Systems keep
// their report order.
func BuildSeries(rows []evaluation.ReportRow, cutoff int) ([]string, []Series) {
	systems := make([]string, len(rows))
	series := []Series{
		{Label: "MAP", Values: make(plotter.Values, len(rows))},
		{Label: fmt.Sprintf("nDCG@%d", cutoff), Values: make(plotter.Values, len(rows))},
		{Label: fmt.Sprintf("Recall@%d", cutoff), Values: make(plotter.Values, len(rows))},
	}

	for i, row := range rows {
		systems[i] = row.System
		series[0].Values[i] = row.MAP
		series[1].Values[i] = row.NDCG
		series[2].Values[i] = row.Recall
	}

	return systems, series
}

func (c *Chart) draw(systems []string, series []Series) error {
	p := plot.New()
	p.Title.Text = c.cfg.Title
	p.Y.Label.Text = "Score"
	p.Y.Min = 0
	p.Y.Max = 1
	p.Legend.Top = true

	barWidth := vg.Points(18)
	offset := -barWidth * vg.Length(len(series)-1) / 2

	for i, s := range series {
		bars, err := plotter.NewBarChart(s.Values, barWidth)
		if err != nil {
			return errors.InternalError("building bar chart", err)
		}
		bars.LineStyle.Width = 0
		bars.Color = plotutil.Color(i)
		bars.Offset = offset + barWidth*vg.Length(i)

		p.Add(bars)
		p.Legend.Add(s.Label, bars)
	}

	p.NominalX(systems...)

	if err := p.Save(8*vg.Inch, 5*vg.Inch, c.cfg.OutputPath); err != nil {
		return errors.InternalError(fmt.Sprintf("saving chart to %s", c.cfg.OutputPath), err)
	}
	return nil
}
