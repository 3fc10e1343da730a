package report

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/crimson-sun/clinote/internal/model"
)

func labels(t *testing.T) *model.LabelDictionary {
	t.Helper()
	d, err := model.NewLabelDictionary(map[string]int{"Cardio/Pul": 0, "Gastro": 1, "Neuro": 2})
	if err != nil {
		t.Fatal(err)
	}
	return d
}

func TestScorePerfect(t *testing.T) {
	y := []int{0, 1, 2, 2, 1, 0}
	s, err := Score(y, y, labels(t))
	if err != nil {
		t.Fatal(err)
	}
	want := model.Scores{Accuracy: 100, Precision: 100, Recall: 100, F1: 100}
	if s != want {
		t.Errorf("Score = %+v, want %+v", s, want)
	}
}

func TestScoreWeighted(t *testing.T) {
	// Class 0: tp 2 fp 1 fn 0 -> p 2/3 r 1
	// Class 1: tp 1 fp 1 fn 1 -> p 1/2 r 1/2
	// Class 2: tp 0 fp 0 fn 1 -> p 0   r 0 (never predicted)
	yTrue := []int{0, 0, 1, 1, 2}
	yPred := []int{0, 0, 1, 0, 1}
	s, err := Score(yTrue, yPred, labels(t))
	if err != nil {
		t.Fatal(err)
	}
	if s.Accuracy != 60 {
		t.Errorf("Accuracy = %v", s.Accuracy)
	}
	wantP := (2.0/3*2 + 1.0/2*2 + 0) / 5 * 100
	if math.Abs(s.Precision-wantP) > 1e-3 {
		t.Errorf("Precision = %v, want ~%v", s.Precision, wantP)
	}
	if s.Recall != 60 {
		t.Errorf("Recall = %v, want 60", s.Recall)
	}
	if r := s.Precision * 1000; math.Abs(r-math.Round(r)) > 1e-6 {
		t.Errorf("Precision %v not rounded to 3 decimals", s.Precision)
	}
	for _, v := range []float64{s.Accuracy, s.Precision, s.Recall, s.F1} {
		if v < 0 || v > 100 {
			t.Errorf("score %v out of range", v)
		}
	}
}

func TestClassifyRows(t *testing.T) {
	yTrue := []int{0, 0, 1, 1, 2}
	yPred := []int{0, 0, 1, 0, 1}
	rows, err := Classify(yTrue, yPred, labels(t))
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 3+3 {
		t.Fatalf("got %d rows, want 6", len(rows))
	}
	names := []string{"Cardio/Pul", "Gastro", "Neuro", RowAccuracy, RowMacro, RowWeighted}
	for i, n := range names {
		if rows[i].Name != n {
			t.Errorf("row %d = %q, want %q", i, rows[i].Name, n)
		}
	}
	if rows[0].Support != 2 || rows[2].Support != 1 {
		t.Errorf("supports = %d, %d", rows[0].Support, rows[2].Support)
	}
	if rows[3].Precision != 0.6 || rows[3].Support != 5 {
		t.Errorf("accuracy row = %+v", rows[3])
	}
	if math.Abs(rows[4].Recall-(1+0.5+0)/3) > 1e-12 {
		t.Errorf("macro recall = %v", rows[4].Recall)
	}
}

func TestConfusion(t *testing.T) {
	cm := Confusion([]int{0, 1, 2, 2}, []int{0, 2, 2, 1}, labels(t))
	want := [][]int{{1, 0, 0}, {0, 0, 1}, {0, 1, 1}}
	for i := range want {
		for j := range want[i] {
			if cm[i][j] != want[i][j] {
				t.Fatalf("cm = %v, want %v", cm, want)
			}
		}
	}
}

func TestPerformanceWritesHeatmap(t *testing.T) {
	dir := t.TempDir()
	y := []int{0, 1, 2}
	scores, rows, err := Performance(y, []int{0, 1, 1}, labels(t), dir)
	if err != nil {
		t.Fatalf("Performance: %v", err)
	}
	if len(rows) != 6 || scores.Accuracy != 66.667 {
		t.Errorf("scores = %+v, rows = %d", scores, len(rows))
	}
	fi, err := os.Stat(filepath.Join(dir, ConfusionFile))
	if err != nil || fi.Size() == 0 {
		t.Fatalf("heatmap not written: %v", err)
	}
}

func TestRenderConfusionUniform(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cm.png")
	if err := RenderConfusion([][]int{{0, 0}, {0, 0}}, []string{"a", "b"}, path); err != nil {
		t.Fatalf("RenderConfusion: %v", err)
	}
}

func TestScoreLengthMismatch(t *testing.T) {
	if _, err := Score([]int{0}, nil, labels(t)); err == nil {
		t.Fatal("expected error")
	}
}
