// Package finetune trains a classifier head on labeled notes, evaluates it
// on a held-out split and saves the resulting artifact.
package finetune

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/crimson-sun/clinote/internal/engine/classifier"
	"github.com/crimson-sun/clinote/internal/engine/embedder"
	"github.com/crimson-sun/clinote/internal/engine/report"
	"github.com/crimson-sun/clinote/internal/engine/similarity"
	"github.com/crimson-sun/clinote/internal/model"
)

// ArtifactDir returns the directory a (tag, column) artifact is saved under.
func ArtifactDir(modelsDir, tag string, col model.TextColumn) string {
	return filepath.Join(modelsDir, tag+"_"+string(col))
}

// SimilarityTag returns the tag of the similarity column measured after
// fine-tuning on col.
func SimilarityTag(tag string, col model.TextColumn) string {
	return tag + "_fine_tune_" + string(col)
}

// FineTuner runs fine-tuning passes. Artifacts of an earlier run with the
// same tag and column are overwritten.
type FineTuner struct {
	ModelsDir string
	Device    embedder.Device // training and evaluation device
	Scorer    *similarity.Scorer
	TestSize  float64 // 0 selects TestSize
}

// Outcome is the result of one fine-tuning pass.
type Outcome struct {
	Record     model.ResultRecord
	Similarity similarity.Column
}

// Run fine-tunes m on the col text of notes, then scores the term pairs
// with the tuned model.
func (f *FineTuner) Run(ctx context.Context, m *classifier.Model, notes []model.Note, col model.TextColumn, pairs []model.TermPair) (Outcome, error) {
	labels := m.Labels()
	testSize := f.TestSize
	if testSize == 0 {
		testSize = TestSize
	}

	train, test, err := Split(notes, testSize, SplitSeed)
	if err != nil {
		return Outcome{}, err
	}

	dir := ArtifactDir(f.ModelsDir, m.Tag, col)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Outcome{}, fmt.Errorf("finetune: %w", err)
	}
	if err := writeSplit(filepath.Join(dir, TrainFile), train, col, labels, nil); err != nil {
		return Outcome{}, err
	}

	if err := m.Place(f.Device); err != nil {
		return Outcome{}, err
	}

	slog.Info("fine-tuning",
		"model", m.Tag,
		"family", m.Family.String(),
		"column", string(col),
		"train", len(train),
		"test", len(test),
		"batch_size", m.Hyper.BatchSize,
		"epochs", m.Hyper.Epochs,
		"device", f.Device.String(),
	)
	if err := fit(ctx, m, train, col); err != nil {
		return Outcome{}, err
	}

	yTrue := make([]int, len(test))
	texts := make([]string, len(test))
	for i, n := range test {
		yTrue[i] = n.CategoryLabel
		texts[i] = n.Column(col)
	}
	yPred, err := m.Predict(texts)
	if err != nil {
		return Outcome{}, err
	}

	if err := m.Save(dir); err != nil {
		return Outcome{}, err
	}
	if err := writeSplit(filepath.Join(dir, TestFile), test, col, labels, yPred); err != nil {
		return Outcome{}, err
	}
	slog.Info("artifact saved", "model", m.Tag, "column", string(col), "dir", dir)

	scores, rows, err := report.Performance(yTrue, yPred, labels, dir)
	if err != nil {
		return Outcome{}, err
	}

	sim, err := f.Scorer.Score(SimilarityTag(m.Tag, col), m, pairs)
	if err != nil {
		return Outcome{}, err
	}

	return Outcome{
		Record: model.ResultRecord{
			Key:         model.ResultKey(m.Tag, col),
			ModelTag:    m.Tag,
			Column:      col,
			Scores:      scores,
			Report:      rows,
			ArtifactDir: dir,
			CreatedAt:   time.Now().UTC(),
		},
		Similarity: sim,
	}, nil
}

// fit caches the pooled encoder output of every training note once,
// then runs the epochs over shuffled batches with one optimizer step per
// batch.
func fit(ctx context.Context, m *classifier.Model, notes []model.Note, col model.TextColumn) error {
	labels := m.Labels()
	texts := make([]string, len(notes))
	targets := make([]int, len(notes))
	for i, n := range notes {
		texts[i] = n.Column(col)
		targets[i] = labels.Index(n.CategoryLabel)
		if targets[i] < 0 {
			return fmt.Errorf("finetune: note %d: %w: label %d", i, model.ErrUnknownCategory, n.CategoryLabel)
		}
	}

	feats, err := m.Features(texts)
	if err != nil {
		return err
	}

	head := m.Head()
	opt := classifier.NewAdamW(m.Hyper.LearningRate)
	rng := rand.New(rand.NewSource(m.Hyper.Seed))
	bs := max(m.Hyper.BatchSize, 1)

	for epoch := 1; epoch <= m.Hyper.Epochs; epoch++ {
		perm := rng.Perm(len(feats))
		var total float64
		var batches int
		for start := 0; start < len(perm); start += bs {
			if err := ctx.Err(); err != nil {
				return fmt.Errorf("finetune: %s: epoch %d: %w", m.Tag, epoch, err)
			}
			idx := perm[start:min(start+bs, len(perm))]
			x := make([][]float64, len(idx))
			y := make([]int, len(idx))
			for i, k := range idx {
				x[i] = feats[k]
				y[i] = targets[k]
			}
			loss, g := head.Backward(x, y)
			opt.Step(head, g)
			total += loss
			batches++
		}
		slog.Info("epoch done", "model", m.Tag, "column", string(col), "epoch", epoch, "loss", total/float64(max(batches, 1)))
	}
	return nil
}
