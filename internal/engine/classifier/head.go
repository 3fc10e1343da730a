package classifier

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// Head is the trainable top of the network: a square adapter applied to
// every position of the encoder's last hidden state, followed by a linear
// classifier over the pooled, adapted vector. Pooling is linear, so the
// adapter can equally be applied after pooling.
type Head struct {
	Adapter *mat.Dense    // [dim, dim], identity at init
	Weight  *mat.Dense    // [numLabels, dim]
	Bias    *mat.VecDense // [numLabels]
}

// NewHead creates a head with an identity adapter and a freshly initialized
// classifier (normal, stddev 0.02, zero bias).
func NewHead(dim, numLabels int, rng *rand.Rand) *Head {
	adapter := mat.NewDense(dim, dim, nil)
	for i := 0; i < dim; i++ {
		adapter.Set(i, i, 1)
	}
	w := make([]float64, numLabels*dim)
	for i := range w {
		w[i] = rng.NormFloat64() * 0.02
	}
	return &Head{
		Adapter: adapter,
		Weight:  mat.NewDense(numLabels, dim, w),
		Bias:    mat.NewVecDense(numLabels, nil),
	}
}

// Dim returns the hidden size the head expects.
func (h *Head) Dim() int {
	r, _ := h.Adapter.Dims()
	return r
}

// NumLabels returns the number of output classes.
func (h *Head) NumLabels() int {
	r, _ := h.Weight.Dims()
	return r
}

// Adapt applies the adapter to a pooled hidden vector.
func (h *Head) Adapt(pooled []float64) *mat.VecDense {
	z := mat.NewVecDense(h.Dim(), nil)
	z.MulVec(h.Adapter, mat.NewVecDense(len(pooled), pooled))
	return z
}

// Logits returns the class scores for one pooled hidden vector.
func (h *Head) Logits(pooled []float64) []float64 {
	logits := mat.NewVecDense(h.NumLabels(), nil)
	logits.MulVec(h.Weight, h.Adapt(pooled))
	logits.AddVec(logits, h.Bias)
	return append([]float64(nil), logits.RawVector().Data...)
}

// Gradients mirrors the trainable parameters of a Head.
type Gradients struct {
	Adapter *mat.Dense
	Weight  *mat.Dense
	Bias    *mat.VecDense
}

// Backward computes the mean softmax cross-entropy over a batch and its
// gradients. targets are class positions in [0, NumLabels).
func (h *Head) Backward(pooled [][]float64, targets []int) (float64, *Gradients) {
	d, k := h.Dim(), h.NumLabels()
	g := &Gradients{
		Adapter: mat.NewDense(d, d, nil),
		Weight:  mat.NewDense(k, d, nil),
		Bias:    mat.NewVecDense(k, nil),
	}
	if len(pooled) == 0 {
		return 0, g
	}

	scale := 1 / float64(len(pooled))
	var loss float64
	for i, x := range pooled {
		xv := mat.NewVecDense(d, x)
		z := h.Adapt(x)
		logits := mat.NewVecDense(k, nil)
		logits.MulVec(h.Weight, z)
		logits.AddVec(logits, h.Bias)

		p := Softmax(logits.RawVector().Data)
		loss -= math.Log(math.Max(p[targets[i]], 1e-12))
		p[targets[i]] -= 1
		dl := mat.NewVecDense(k, p)

		g.Weight.RankOne(g.Weight, scale, dl, z)
		g.Bias.AddScaledVec(g.Bias, scale, dl)

		dz := mat.NewVecDense(d, nil)
		dz.MulVec(h.Weight.T(), dl)
		g.Adapter.RankOne(g.Adapter, scale, dz, xv)
	}
	return loss * scale, g
}

// Softmax returns the normalized exponentials of logits.
func Softmax(logits []float64) []float64 {
	out := make([]float64, len(logits))
	if len(logits) == 0 {
		return out
	}
	maxV := logits[0]
	for _, v := range logits[1:] {
		maxV = math.Max(maxV, v)
	}
	var sum float64
	for i, v := range logits {
		out[i] = math.Exp(v - maxV)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

// Argmax returns the index of the largest value (first on ties).
func Argmax(v []float64) int {
	best := 0
	for i := range v {
		if v[i] > v[best] {
			best = i
		}
	}
	return best
}

func matDense(r, c int, data []float64) *mat.Dense { return mat.NewDense(r, c, data) }

func matVec(data []float64) *mat.VecDense { return mat.NewVecDense(len(data), data) }
