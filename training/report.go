package training

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
)

var classNames = map[int]string{0: "no pit", 1: "pit"}

// WritePitStopReport prints the split sizes, the per-class table and the
// ROC-AUC of a pit-stop run.
func WritePitStopReport(w io.Writer, r *PitStopResult) {
	fmt.Fprintf(w, "Training samples: %d, Test samples: %d\n", r.TrainSize, r.TestSize)
	fmt.Fprintln(w, "\nClassification Report:")

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"", "precision", "recall", "f1-score", "support"})
	for _, c := range r.Report.Classes {
		name, ok := classNames[c.Label]
		if !ok {
			name = strconv.Itoa(c.Label)
		}
		t.AppendRow(table.Row{name, f2(c.Precision), f2(c.Recall), f2(c.F1), c.Support})
	}
	t.AppendSeparator()
	t.AppendRow(table.Row{"accuracy", "", "", f2(r.Report.Accuracy), r.Report.Total})
	t.AppendRow(table.Row{"macro avg", f2(r.Report.MacroAvg.Precision), f2(r.Report.MacroAvg.Recall), f2(r.Report.MacroAvg.F1), r.Report.MacroAvg.Support})
	t.AppendRow(table.Row{"weighted avg", f2(r.Report.WeightedAvg.Precision), f2(r.Report.WeightedAvg.Recall), f2(r.Report.WeightedAvg.F1), r.Report.WeightedAvg.Support})
	t.Render()

	fmt.Fprintf(w, "\nROC-AUC Score: %.4f\n", r.ROCAUC)
	fmt.Fprintf(w, "Model saved to %s (%s)\n", r.ModelPath, r.Elapsed.Round(time.Millisecond))
}

// WriteLapTimeReport prints the split sizes and error metrics of a lap-time run.
func WriteLapTimeReport(w io.Writer, r *LapTimeResult) {
	fmt.Fprintf(w, "Training samples: %d, Test samples: %d\n", r.TrainSize, r.TestSize)
	fmt.Fprintln(w, "\nRegression Metrics:")

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"metric", "value"})
	t.AppendRow(table.Row{"MAE", fmt.Sprintf("%.3f s", r.Metrics.MAE)})
	t.AppendRow(table.Row{"MSE", fmt.Sprintf("%.3f", r.Metrics.MSE)})
	t.AppendRow(table.Row{"R²", fmt.Sprintf("%.4f", r.Metrics.R2)})
	t.Render()

	fmt.Fprintf(w, "Model saved to %s (%s)\n", r.ModelPath, r.Elapsed.Round(time.Millisecond))
}

func f2(v float64) string {
	return fmt.Sprintf("%.2f", v)
}
