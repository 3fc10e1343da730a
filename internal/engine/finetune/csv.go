package finetune

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/crimson-sun/clinote/internal/model"
)

// Audit files written next to the model artifact.
const (
	TrainFile = "train_data.csv"
	TestFile  = "test_predictions.csv"
)

// writeSplit writes notes with their numeric and textual labels. When preds
// is non-nil the Prediction_label and Prediction columns are added.
func writeSplit(path string, notes []model.Note, col model.TextColumn, labels *model.LabelDictionary, preds []int) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("finetune: %w", err)
	}
	if err := encodeSplit(f, notes, col, labels, preds); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func encodeSplit(out io.Writer, notes []model.Note, col model.TextColumn, labels *model.LabelDictionary, preds []int) error {
	w := csv.NewWriter(out)
	header := []string{string(col), "category_label", "category"}
	if preds != nil {
		header = append(header, "Prediction_label", "Prediction")
	}
	if err := w.Write(header); err != nil {
		return fmt.Errorf("finetune: %w", err)
	}
	for i, n := range notes {
		name, err := labels.Decode(n.CategoryLabel)
		if err != nil {
			return fmt.Errorf("finetune: %w", err)
		}
		rec := []string{n.Column(col), strconv.Itoa(n.CategoryLabel), name}
		if preds != nil {
			pred, err := labels.Decode(preds[i])
			if err != nil {
				return fmt.Errorf("finetune: %w", err)
			}
			rec = append(rec, strconv.Itoa(preds[i]), pred)
		}
		if err := w.Write(rec); err != nil {
			return fmt.Errorf("finetune: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("finetune: %w", err)
	}
	return nil
}
