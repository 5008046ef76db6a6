// Package report summarises networks and predictions as tables and plots.
package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/go-gota/gota/dataframe"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/sugarme/rsunet/unet"
)

// StageRow is one row of the topology table.
type StageRow struct {
	Name        string
	Scale       int
	InChannels  int
	OutChannels int
	Spatial     string
	Params      int
}

// Topology tabulates a planned forward pass, one row per stage.
func Topology(stages []unet.StageShape) dataframe.DataFrame {
	rows := make([]StageRow, len(stages))
	for i, s := range stages {
		rows[i] = StageRow{
			Name:        s.Name,
			Scale:       s.Scale,
			InChannels:  int(s.InChannels),
			OutChannels: int(s.OutChannels),
			Spatial:     formatSize(s.Spatial),
			Params:      int(s.Params),
		}
	}
	return dataframe.LoadStructs(rows)
}

// WriteTopology writes the topology table as CSV with a header line.
func WriteTopology(w io.Writer, stages []unet.StageShape) error {
	df := Topology(stages)
	if df.Err != nil {
		return df.Err
	}
	return df.WriteCSV(w)
}

func formatSize(size []int64) string {
	parts := make([]string, len(size))
	for i, s := range size {
		parts[i] = fmt.Sprint(s)
	}
	return strings.Join(parts, "x")
}

// Summary holds descriptive statistics of a set of values.
type Summary struct {
	Count int
	Mean  float64
	Std   float64
	Min   float64
	Max   float64
}

func (s Summary) String() string {
	return fmt.Sprintf("n=%d mean=%.4f std=%.4f min=%.4f max=%.4f", s.Count, s.Mean, s.Std, s.Min, s.Max)
}

// Describe computes mean, sample standard deviation and range of values.
func Describe(values []float64) (Summary, error) {
	if len(values) == 0 {
		return Summary{}, errors.New("describe: no values")
	}
	mean, std := stat.MeanStdDev(values, nil)
	if len(values) == 1 {
		std = 0
	}
	return Summary{
		Count: len(values),
		Mean:  mean,
		Std:   std,
		Min:   floats.Min(values),
		Max:   floats.Max(values),
	}, nil
}

// Histogram plots values into bins and saves the plot to file. The image
// format follows the file extension.
func Histogram(values []float64, bins int, title, file string) error {
	if len(values) == 0 {
		return errors.New("histogram: no values")
	}
	p, err := plot.New()
	if err != nil {
		return err
	}

	v := make(plotter.Values, len(values))
	copy(v, values)
	h, err := plotter.NewHist(v, bins)
	if err != nil {
		return errors.Wrap(err, "histogram")
	}
	p.Title.Text = title
	p.Add(h)

	return p.Save(4*vg.Inch, 4*vg.Inch, file)
}
