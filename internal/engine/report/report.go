// Package report computes classification metrics and renders the
// confusion matrix of a fine-tuned model.
package report

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/shopspring/decimal"

	"github.com/crimson-sun/clinote/internal/model"
)

// ConfusionFile is the heatmap image written by Performance.
const ConfusionFile = "confusion_matrix.png"

// Summary row names of a classification report.
const (
	RowAccuracy = "accuracy"
	RowMacro    = "macro avg"
	RowWeighted = "weighted avg"
)

type classStats struct {
	precision, recall, f1 float64
	support               int
}

// perClass computes precision, recall and F1 for every class of labels, in
// id order. Undefined ratios count as 0.
func perClass(yTrue, yPred []int, labels *model.LabelDictionary) []classStats {
	cm := Confusion(yTrue, yPred, labels)
	stats := make([]classStats, len(cm))
	for i := range cm {
		tp := cm[i][i]
		var fp, fn int
		for j := range cm {
			if j != i {
				fp += cm[j][i]
				fn += cm[i][j]
			}
		}
		s := &stats[i]
		s.precision = safeDivide(float64(tp), float64(tp+fp))
		s.recall = safeDivide(float64(tp), float64(tp+fn))
		s.f1 = safeDivide(2*s.precision*s.recall, s.precision+s.recall)
		s.support = tp + fn
	}
	return stats
}

func accuracy(yTrue, yPred []int) float64 {
	var correct int
	for i := range yTrue {
		if yTrue[i] == yPred[i] {
			correct++
		}
	}
	return safeDivide(float64(correct), float64(len(yTrue)))
}

func weighted(stats []classStats) (p, r, f float64) {
	var total int
	for _, s := range stats {
		p += s.precision * float64(s.support)
		r += s.recall * float64(s.support)
		f += s.f1 * float64(s.support)
		total += s.support
	}
	n := float64(total)
	return safeDivide(p, n), safeDivide(r, n), safeDivide(f, n)
}

// Score returns accuracy and support-weighted precision, recall and F1 as
// percentages rounded to 3 decimals.
func Score(yTrue, yPred []int, labels *model.LabelDictionary) (model.Scores, error) {
	if len(yTrue) != len(yPred) {
		return model.Scores{}, fmt.Errorf("report: %d labels, %d predictions", len(yTrue), len(yPred))
	}
	p, r, f := weighted(perClass(yTrue, yPred, labels))
	return model.Scores{
		Accuracy:  percent(accuracy(yTrue, yPred)),
		Precision: percent(p),
		Recall:    percent(r),
		F1:        percent(f),
	}, nil
}

// Classify returns one report row per class in id order, then the
// accuracy, macro average and weighted average rows. Values are fractions.
// The accuracy row repeats accuracy in every score column and carries the
// total sample count as support.
func Classify(yTrue, yPred []int, labels *model.LabelDictionary) ([]model.ReportRow, error) {
	if len(yTrue) != len(yPred) {
		return nil, fmt.Errorf("report: %d labels, %d predictions", len(yTrue), len(yPred))
	}
	stats := perClass(yTrue, yPred, labels)
	names := labels.Names()

	rows := make([]model.ReportRow, 0, len(stats)+3)
	var mp, mr, mf float64
	for i, s := range stats {
		rows = append(rows, model.ReportRow{
			Name:      names[i],
			Precision: s.precision,
			Recall:    s.recall,
			F1:        s.f1,
			Support:   s.support,
		})
		mp += s.precision
		mr += s.recall
		mf += s.f1
	}

	n := len(yTrue)
	k := float64(len(stats))
	acc := accuracy(yTrue, yPred)
	wp, wr, wf := weighted(stats)
	rows = append(rows,
		model.ReportRow{Name: RowAccuracy, Precision: acc, Recall: acc, F1: acc, Support: n},
		model.ReportRow{Name: RowMacro, Precision: safeDivide(mp, k), Recall: safeDivide(mr, k), F1: safeDivide(mf, k), Support: n},
		model.ReportRow{Name: RowWeighted, Precision: wp, Recall: wr, F1: wf, Support: n},
	)
	return rows, nil
}

// Confusion returns the confusion matrix with rows as actual and columns as
// predicted classes, both in label id order. Unknown ids are ignored.
func Confusion(yTrue, yPred []int, labels *model.LabelDictionary) [][]int {
	k := labels.Len()
	cm := make([][]int, k)
	for i := range cm {
		cm[i] = make([]int, k)
	}
	for i := range yTrue {
		a, p := labels.Index(yTrue[i]), labels.Index(yPred[i])
		if a >= 0 && p >= 0 {
			cm[a][p]++
		}
	}
	return cm
}

// Performance computes scores and the classification report, renders the
// confusion matrix into outDir and logs the scores.
func Performance(yTrue, yPred []int, labels *model.LabelDictionary, outDir string) (model.Scores, []model.ReportRow, error) {
	scores, err := Score(yTrue, yPred, labels)
	if err != nil {
		return model.Scores{}, nil, err
	}
	rows, err := Classify(yTrue, yPred, labels)
	if err != nil {
		return model.Scores{}, nil, err
	}
	path := filepath.Join(outDir, ConfusionFile)
	if err := RenderConfusion(Confusion(yTrue, yPred, labels), labels.Names(), path); err != nil {
		return model.Scores{}, nil, err
	}

	slog.Info("performance",
		"accuracy", scores.Accuracy,
		"precision", scores.Precision,
		"recall", scores.Recall,
		"f1", scores.F1,
		"confusion_matrix", path,
	)
	return scores, rows, nil
}

func percent(v float64) float64 {
	return decimal.NewFromFloat(v * 100).Round(3).InexactFloat64()
}

func safeDivide(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	return num / den
}
