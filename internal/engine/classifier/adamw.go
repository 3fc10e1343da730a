package classifier

import "math"

// AdamW is the decoupled weight decay variant of Adam.
type AdamW struct {
	LR          float64
	Beta1       float64
	Beta2       float64
	Eps         float64
	WeightDecay float64

	step int
	m, v [][]float64
}

// NewAdamW creates an optimizer with betas (0.9, 0.999), eps 1e-6 and no
// weight decay.
func NewAdamW(lr float64) *AdamW {
	return &AdamW{LR: lr, Beta1: 0.9, Beta2: 0.999, Eps: 1e-6}
}

// Step updates the head parameters in place from g.
func (o *AdamW) Step(h *Head, g *Gradients) {
	params := [][]float64{h.Adapter.RawMatrix().Data, h.Weight.RawMatrix().Data, h.Bias.RawVector().Data}
	grads := [][]float64{g.Adapter.RawMatrix().Data, g.Weight.RawMatrix().Data, g.Bias.RawVector().Data}
	if o.m == nil {
		o.m = make([][]float64, len(params))
		o.v = make([][]float64, len(params))
		for i, p := range params {
			o.m[i] = make([]float64, len(p))
			o.v[i] = make([]float64, len(p))
		}
	}

	o.step++
	bc1 := 1 - math.Pow(o.Beta1, float64(o.step))
	bc2 := 1 - math.Pow(o.Beta2, float64(o.step))
	for i, p := range params {
		gr, m, v := grads[i], o.m[i], o.v[i]
		for j := range p {
			if o.WeightDecay != 0 {
				p[j] -= o.LR * o.WeightDecay * p[j]
			}
			m[j] = o.Beta1*m[j] + (1-o.Beta1)*gr[j]
			v[j] = o.Beta2*v[j] + (1-o.Beta2)*gr[j]*gr[j]
			p[j] -= o.LR * (m[j] / bc1) / (math.Sqrt(v[j]/bc2) + o.Eps)
		}
	}
}

// Steps returns the number of updates taken.
func (o *AdamW) Steps() int { return o.step }
