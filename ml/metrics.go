package ml

import (
	"sort"

	"github.com/pkg/errors"
)

type ClassMetrics struct {
	Label     int     `json:"label"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
	Support   int     `json:"support"`
}

// ClassificationReport mirrors the usual per-class precision/recall/F1 table
// with accuracy plus macro and support-weighted averages.
type ClassificationReport struct {
	Classes     []ClassMetrics `json:"classes"`
	Accuracy    float64        `json:"accuracy"`
	MacroAvg    ClassMetrics   `json:"macro_avg"`
	WeightedAvg ClassMetrics   `json:"weighted_avg"`
	Total       int            `json:"total"`
}

// Class returns the row for label, or a zero row when label never occurs.
func (r *ClassificationReport) Class(label int) ClassMetrics {
	for _, c := range r.Classes {
		if c.Label == label {
			return c
		}
	}
	return ClassMetrics{Label: label}
}

func NewClassificationReport(yTrue, yPred []int) (*ClassificationReport, error) {
	if len(yTrue) == 0 {
		return nil, errors.New("no samples")
	}
	if len(yTrue) != len(yPred) {
		return nil, errors.New("yTrue and yPred size mismatch")
	}

	labelSet := make(map[int]struct{})
	for i := range yTrue {
		labelSet[yTrue[i]] = struct{}{}
		labelSet[yPred[i]] = struct{}{}
	}
	labels := make([]int, 0, len(labelSet))
	for label := range labelSet {
		labels = append(labels, label)
	}
	sort.Ints(labels)

	report := &ClassificationReport{Total: len(yTrue)}
	correct := 0
	for i := range yTrue {
		if yTrue[i] == yPred[i] {
			correct++
		}
	}
	report.Accuracy = float64(correct) / float64(len(yTrue))

	for _, label := range labels {
		var tp, fp, fn int
		for i := range yTrue {
			switch {
			case yTrue[i] == label && yPred[i] == label:
				tp++
			case yTrue[i] != label && yPred[i] == label:
				fp++
			case yTrue[i] == label && yPred[i] != label:
				fn++
			}
		}
		m := ClassMetrics{Label: label, Support: tp + fn}
		m.Precision = safeDiv(float64(tp), float64(tp+fp))
		m.Recall = safeDiv(float64(tp), float64(tp+fn))
		m.F1 = safeDiv(2*m.Precision*m.Recall, m.Precision+m.Recall)
		report.Classes = append(report.Classes, m)

		report.MacroAvg.Precision += m.Precision
		report.MacroAvg.Recall += m.Recall
		report.MacroAvg.F1 += m.F1
		w := float64(m.Support)
		report.WeightedAvg.Precision += w * m.Precision
		report.WeightedAvg.Recall += w * m.Recall
		report.WeightedAvg.F1 += w * m.F1
	}

	n := float64(len(report.Classes))
	report.MacroAvg.Precision /= n
	report.MacroAvg.Recall /= n
	report.MacroAvg.F1 /= n
	report.MacroAvg.Support = len(yTrue)
	total := float64(len(yTrue))
	report.WeightedAvg.Precision /= total
	report.WeightedAvg.Recall /= total
	report.WeightedAvg.F1 /= total
	report.WeightedAvg.Support = len(yTrue)
	return report, nil
}

// ROCAUC computes the area under the ROC curve for binary labels from the
// rank-sum statistic, giving tied scores their average rank.
func ROCAUC(yTrue []int, scores []float64) (float64, error) {
	if len(yTrue) != len(scores) {
		return 0, errors.New("yTrue and scores size mismatch")
	}
	order := make([]int, len(scores))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(i, j int) bool { return scores[order[i]] < scores[order[j]] })

	ranks := make([]float64, len(scores))
	for i := 0; i < len(order); {
		j := i
		for j+1 < len(order) && scores[order[j+1]] == scores[order[i]] {
			j++
		}
		avg := float64(i+j)/2 + 1
		for k := i; k <= j; k++ {
			ranks[order[k]] = avg
		}
		i = j + 1
	}

	var nPos, nNeg int
	rankSum := 0.0
	for i, label := range yTrue {
		switch label {
		case 1:
			nPos++
			rankSum += ranks[i]
		case 0:
			nNeg++
		default:
			return 0, errors.Errorf("label %d is not binary", label)
		}
	}
	if nPos == 0 || nNeg == 0 {
		return 0, errors.New("ROC AUC needs both classes present")
	}
	return (rankSum - float64(nPos)*float64(nPos+1)/2) / (float64(nPos) * float64(nNeg)), nil
}

type RegressionMetrics struct {
	MAE float64 `json:"mae"`
	MSE float64 `json:"mse"`
	R2  float64 `json:"r2"`
}

func NewRegressionMetrics(yTrue, yPred []float64) (*RegressionMetrics, error) {
	if len(yTrue) == 0 {
		return nil, errors.New("no samples")
	}
	if len(yTrue) != len(yPred) {
		return nil, errors.New("yTrue and yPred size mismatch")
	}
	mean := Mean(yTrue)
	var absErr, sqErr, total float64
	for i := range yTrue {
		diff := yTrue[i] - yPred[i]
		if diff < 0 {
			absErr -= diff
		} else {
			absErr += diff
		}
		sqErr += diff * diff
		dev := yTrue[i] - mean
		total += dev * dev
	}
	n := float64(len(yTrue))
	m := &RegressionMetrics{MAE: absErr / n, MSE: sqErr / n}
	if total > 0 {
		m.R2 = 1 - sqErr/total
	}
	return m, nil
}

func safeDiv(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	return num / den
}
