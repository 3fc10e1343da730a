package model

import "time"

// Scores holds the headline metrics as percentages rounded to 3 decimals.
type Scores struct {
	Accuracy  float64 `json:"Accuracy"`
	Precision float64 `json:"Precision"`
	Recall    float64 `json:"Recall"`
	F1        float64 `json:"F1-Score"`
}

// ReportRow is one row of a classification report: a class or a summary row
// ("accuracy", "macro avg", "weighted avg").
type ReportRow struct {
	Name      string  `json:"name"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1-score"`
	Support   int     `json:"support"`
}

// ResultRecord is the outcome of fine-tuning one model on one text column.
type ResultRecord struct {
	Key         string      `json:"key"` // "<tag>_Raw" or "<tag>_Preprocess"
	ModelTag    string      `json:"model_tag"`
	Column      TextColumn  `json:"column"`
	Scores      Scores      `json:"scores"`
	Report      []ReportRow `json:"report,omitempty"`
	ArtifactDir string      `json:"artifact_dir,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
}

// ResultKey builds the results-mapping key for a model tag and column.
func ResultKey(tag string, c TextColumn) string {
	return tag + "_" + c.Variant()
}
