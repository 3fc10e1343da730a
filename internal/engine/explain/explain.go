// Package explain builds local explanations of text classifier predictions
// by perturbing the input, in the manner of LIME: words are removed at
// random, the classifier is queried on every variant, and a weighted
// linear model fitted to its outputs gives each word a weight.
package explain

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"regexp"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// Defaults.
const (
	DefaultNumFeatures = 10
	DefaultNumSamples  = 20
	DefaultKernelWidth = 25

	// selectAlpha regularizes the fit that ranks features; fitAlpha the
	// refit on the selected features.
	selectAlpha = 0.01
	fitAlpha    = 1.0
)

// Predictor returns per-class probabilities for each text.
type Predictor func(texts []string) ([][]float64, error)

// Options configures an explanation.
type Options struct {
	Labels      []int // class positions to explain; nil explains all
	NumFeatures int
	NumSamples  int
	KernelWidth float64
	Seed        int64
}

func (o Options) withDefaults() Options {
	if o.NumFeatures <= 0 {
		o.NumFeatures = DefaultNumFeatures
	}
	if o.NumSamples <= 0 {
		o.NumSamples = DefaultNumSamples
	}
	if o.KernelWidth <= 0 {
		o.KernelWidth = DefaultKernelWidth
	}
	return o
}

// Weight is the contribution of one word to a class probability.
type Weight struct {
	Word   string  `json:"word"`
	Weight float64 `json:"weight"`
}

// LabelExplanation is the local linear model fitted for one class.
type LabelExplanation struct {
	Label     int      `json:"label"`
	Name      string   `json:"name"`
	Intercept float64  `json:"intercept"`
	Score     float64  `json:"score"` // weighted R^2 of the local model
	LocalPred float64  `json:"local_pred"`
	Weights   []Weight `json:"weights"` // sorted by |weight|, descending
}

// Explanation explains the prediction for one text.
type Explanation struct {
	Text          string             `json:"text"`
	ClassNames    []string           `json:"class_names"`
	Probabilities []float64          `json:"probabilities"`
	Labels        []LabelExplanation `json:"labels"`
}

// Explainer explains predictions over a fixed set of class names.
type Explainer struct {
	classNames []string
}

// New creates an Explainer. classNames are indexed by class position.
func New(classNames []string) *Explainer {
	return &Explainer{classNames: classNames}
}

// Words are runs of Unicode letters, digits and underscores.
var splitRe = regexp.MustCompile(`[^\p{L}\p{N}_]+`)

// indexedText splits text into alternating word and separator pieces and
// records where each distinct word occurs.
type indexedText struct {
	pieces    []string
	isWord    []bool
	vocab     []string
	positions [][]int // vocab index -> piece indexes
}

func indexText(text string) *indexedText {
	it := &indexedText{}
	index := make(map[string]int)
	add := func(s string, word bool) {
		if s == "" {
			return
		}
		it.pieces = append(it.pieces, s)
		it.isWord = append(it.isWord, word)
		if !word {
			return
		}
		v, ok := index[s]
		if !ok {
			v = len(it.vocab)
			index[s] = v
			it.vocab = append(it.vocab, s)
			it.positions = append(it.positions, nil)
		}
		it.positions[v] = append(it.positions[v], len(it.pieces)-1)
	}

	last := 0
	for _, loc := range splitRe.FindAllStringIndex(text, -1) {
		add(text[last:loc[0]], true)
		add(text[loc[0]:loc[1]], false)
		last = loc[1]
	}
	add(text[last:], true)
	return it
}

// without rebuilds the text with the given vocabulary words removed.
func (it *indexedText) without(removed []int) string {
	drop := make(map[int]bool)
	for _, v := range removed {
		for _, p := range it.positions[v] {
			drop[p] = true
		}
	}
	var s []byte
	for i, p := range it.pieces {
		if !drop[i] {
			s = append(s, p...)
		}
	}
	return string(s)
}

// Explain perturbs text, queries predict and fits a local model for each
// requested class.
func (e *Explainer) Explain(text string, predict Predictor, opts Options) (*Explanation, error) {
	opts = opts.withDefaults()
	it := indexText(text)
	d := len(it.vocab)
	if d == 0 {
		return nil, errors.New("explain: text has no words")
	}

	rng := rand.New(rand.NewSource(opts.Seed))
	n := opts.NumSamples
	data := mat.NewDense(n, d, nil)
	texts := make([]string, n)
	texts[0] = text
	for j := 0; j < d; j++ {
		data.Set(0, j, 1)
	}
	for i := 1; i < n; i++ {
		// Remove between one and d words.
		removed := rng.Perm(d)[:1+rng.Intn(d)]
		for j := 0; j < d; j++ {
			data.Set(i, j, 1)
		}
		for _, j := range removed {
			data.Set(i, j, 0)
		}
		texts[i] = it.without(removed)
	}

	probs, err := predict(texts)
	if err != nil {
		return nil, fmt.Errorf("explain: %w", err)
	}
	if len(probs) != n {
		return nil, fmt.Errorf("explain: predictor returned %d rows for %d samples", len(probs), n)
	}
	k := len(probs[0])

	weights := make([]float64, n)
	for i := 0; i < n; i++ {
		dist := 100 * cosineDistance(data.RawRowView(i), data.RawRowView(0))
		weights[i] = math.Sqrt(math.Exp(-(dist * dist) / (opts.KernelWidth * opts.KernelWidth)))
	}

	labels := opts.Labels
	if labels == nil {
		for c := 0; c < k; c++ {
			labels = append(labels, c)
		}
	}

	out := &Explanation{
		Text:          text,
		ClassNames:    e.classNames,
		Probabilities: append([]float64(nil), probs[0]...),
	}
	for _, c := range labels {
		if c < 0 || c >= k {
			return nil, fmt.Errorf("explain: label %d out of range [0, %d)", c, k)
		}
		y := make([]float64, n)
		for i := range y {
			y[i] = probs[i][c]
		}
		le, err := explainLabel(data, y, weights, it.vocab, opts.NumFeatures)
		if err != nil {
			return nil, err
		}
		le.Label = c
		if c < len(e.classNames) {
			le.Name = e.classNames[c]
		}
		out.Labels = append(out.Labels, le)
	}
	return out, nil
}

// explainLabel selects the features with the largest ridge coefficients,
// then refits on those alone.
func explainLabel(data *mat.Dense, y, w []float64, vocab []string, numFeatures int) (LabelExplanation, error) {
	_, d := data.Dims()
	all := make([]int, d)
	for j := range all {
		all[j] = j
	}
	coef, _, err := ridge(data, all, y, w, selectAlpha)
	if err != nil {
		return LabelExplanation{}, err
	}

	sort.SliceStable(all, func(a, b int) bool { return math.Abs(coef[all[a]]) > math.Abs(coef[all[b]]) })
	selected := all[:min(numFeatures, d)]

	coef, intercept, err := ridge(data, selected, y, w, fitAlpha)
	if err != nil {
		return LabelExplanation{}, err
	}

	le := LabelExplanation{Intercept: intercept}
	le.Score = weightedR2(data, selected, coef, intercept, y, w)
	le.LocalPred = intercept
	for i, f := range selected {
		le.LocalPred += coef[i] * data.At(0, f)
		le.Weights = append(le.Weights, Weight{Word: vocab[f], Weight: coef[i]})
	}
	sort.SliceStable(le.Weights, func(a, b int) bool {
		return math.Abs(le.Weights[a].Weight) > math.Abs(le.Weights[b].Weight)
	})
	return le, nil
}

// ridge fits y ~ X[:, cols] with sample weights w and L2 penalty
// alpha on the coefficients (not the intercept). Coefficients are
// returned in cols order.
func ridge(data *mat.Dense, cols []int, y, w []float64, alpha float64) ([]float64, float64, error) {
	n, _ := data.Dims()
	p := len(cols)

	var sw, ym float64
	xm := make([]float64, p)
	for i := 0; i < n; i++ {
		sw += w[i]
		ym += w[i] * y[i]
		for j, c := range cols {
			xm[j] += w[i] * data.At(i, c)
		}
	}
	if sw == 0 {
		return nil, 0, errors.New("explain: all sample weights are zero")
	}
	ym /= sw
	for j := range xm {
		xm[j] /= sw
	}

	a := mat.NewDense(p, p, nil)
	b := mat.NewVecDense(p, nil)
	xc := make([]float64, p)
	for i := 0; i < n; i++ {
		for j, c := range cols {
			xc[j] = data.At(i, c) - xm[j]
		}
		xv := mat.NewVecDense(p, xc)
		a.RankOne(a, w[i], xv, xv)
		b.AddScaledVec(b, w[i]*(y[i]-ym), xv)
	}
	for j := 0; j < p; j++ {
		a.Set(j, j, a.At(j, j)+alpha)
	}

	var beta mat.VecDense
	if err := beta.SolveVec(a, b); err != nil {
		return nil, 0, fmt.Errorf("explain: ridge solve: %w", err)
	}
	coef := make([]float64, p)
	intercept := ym
	for j := range coef {
		coef[j] = beta.AtVec(j)
		intercept -= coef[j] * xm[j]
	}
	return coef, intercept, nil
}

func weightedR2(data *mat.Dense, cols []int, coef []float64, intercept float64, y, w []float64) float64 {
	var sw, ym float64
	for i := range y {
		sw += w[i]
		ym += w[i] * y[i]
	}
	ym /= sw
	var res, tot float64
	for i := range y {
		pred := intercept
		for j, c := range cols {
			pred += coef[j] * data.At(i, c)
		}
		res += w[i] * (y[i] - pred) * (y[i] - pred)
		tot += w[i] * (y[i] - ym) * (y[i] - ym)
	}
	if tot == 0 {
		if res == 0 {
			return 1
		}
		return 0
	}
	return 1 - res/tot
}

func cosineDistance(a, b []float64) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
}
