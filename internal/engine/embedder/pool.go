package embedder

// MeanPool computes attention-mask-weighted mean pooling over the sequence
// dimension of transformer hidden states.
//
// hidden: flat [batchSize * seqLen * dim] float32 (per-token hidden states)
// mask:   flat [batchSize * seqLen] int64 (1 for real tokens, 0 for padding)
//
// Returns flat [batchSize * dim] float32 (one pooled vector per sample).
// A nil mask averages over every position, padding included.
func MeanPool(hidden []float32, mask []int64, batchSize, seqLen, dim int64) []float32 {
	out := make([]float32, batchSize*dim)

	for b := int64(0); b < batchSize; b++ {
		maskOff := b * seqLen
		hiddenOff := b * seqLen * dim
		outOff := b * dim

		var count float32
		for s := int64(0); s < seqLen; s++ {
			if mask == nil || mask[maskOff+s] == 1 {
				count++
			}
		}
		if count == 0 {
			continue
		}

		for s := int64(0); s < seqLen; s++ {
			if mask != nil && mask[maskOff+s] != 1 {
				continue
			}
			tokOff := hiddenOff + s*dim
			for d := int64(0); d < dim; d++ {
				out[outOff+d] += hidden[tokOff+d]
			}
		}

		inv := 1.0 / count
		for d := int64(0); d < dim; d++ {
			out[outOff+d] *= inv
		}
	}

	return out
}

// LastTokenPool selects the hidden state at the last non-padding position of
// each sequence, the way GPT-style sequence classifiers read their input.
// Sequences with no real tokens pool to zeros.
func LastTokenPool(hidden []float32, mask []int64, batchSize, seqLen, dim int64) []float32 {
	out := make([]float32, batchSize*dim)

	for b := int64(0); b < batchSize; b++ {
		last := int64(-1)
		for s := int64(0); s < seqLen; s++ {
			if mask[b*seqLen+s] == 1 {
				last = s
			}
		}
		if last < 0 {
			continue
		}
		tokOff := b*seqLen*dim + last*dim
		copy(out[b*dim:(b+1)*dim], hidden[tokOff:tokOff+dim])
	}

	return out
}
