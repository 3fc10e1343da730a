package embedder

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// MaxSeqLen is the fixed sequence length used for training examples.
const MaxSeqLen = 128

// Batch holds one or more tokenized texts, ready for encoder inference.
// All slices are flat: [Size * SeqLen].
type Batch struct {
	InputIDs      []int64
	AttentionMask []int64
	TokenTypeIDs  []int64
	Size          int64
	SeqLen        int64
}

// Tokenizer performs BERT-style WordPiece tokenization.
type Tokenizer struct {
	vocab  *vocab
	maxLen int
}

// LoadTokenizer creates a tokenizer from a vocab.txt file, or from a
// directory containing one.
func LoadTokenizer(path string) (*Tokenizer, error) {
	if fi, err := os.Stat(path); err == nil && fi.IsDir() {
		path = filepath.Join(path, VocabFile)
	}
	v, err := loadVocab(path)
	if err != nil {
		return nil, fmt.Errorf("tokenizer: %w", err)
	}
	return &Tokenizer{vocab: v, maxLen: MaxSeqLen}, nil
}

// Size returns the vocabulary size.
func (t *Tokenizer) Size() int { return t.vocab.size() }

// MaxLength returns the sequence length cap.
func (t *Tokenizer) MaxLength() int { return t.maxLen }

// PadAliased reports whether padding reuses the sequence-end token because
// the vocabulary has no pad token.
func (t *Tokenizer) PadAliased() bool { return t.vocab.padAliased }

// Save writes the tokenizer vocabulary into dir.
func (t *Tokenizer) Save(dir string) error {
	return t.vocab.save(dir)
}

// encode converts a single text into token IDs framed by the start and end
// tokens (when the vocabulary has them), truncated to maxLen. The returned
// slices have length maxLen; realLen counts the non-padding positions.
func (t *Tokenizer) encode(text string) (ids, mask []int64, realLen int) {
	tokens := t.wordpiece(t.basicTokenize(text))

	framing := 0
	if t.vocab.clsID >= 0 {
		framing++
	}
	if t.vocab.sepID >= 0 {
		framing++
	}
	if maxTokens := t.maxLen - framing; len(tokens) > maxTokens {
		tokens = tokens[:maxTokens]
	}

	ids = make([]int64, t.maxLen)
	mask = make([]int64, t.maxLen)
	for i := range ids {
		ids[i] = t.vocab.padID
	}

	pos := 0
	put := func(id int64) {
		ids[pos] = id
		mask[pos] = 1
		pos++
	}
	if t.vocab.clsID >= 0 {
		put(t.vocab.clsID)
	}
	for _, tok := range tokens {
		put(t.vocab.lookup(tok))
	}
	if t.vocab.sepID >= 0 {
		put(t.vocab.sepID)
	}
	return ids, mask, pos
}

// Encode tokenizes texts into a batch where every sequence is padded or
// truncated to exactly MaxLength positions.
func (t *Tokenizer) Encode(texts []string) Batch {
	return t.pack(texts, false)
}

// EncodeBatch tokenizes texts and pads them to the longest sequence in the
// batch (capped at MaxLength).
func (t *Tokenizer) EncodeBatch(texts []string) Batch {
	return t.pack(texts, true)
}

func (t *Tokenizer) pack(texts []string, trim bool) Batch {
	n := len(texts)
	if n == 0 {
		return Batch{}
	}

	type seq struct {
		ids  []int64
		mask []int64
	}
	seqs := make([]seq, n)
	seqLen := int64(t.maxLen)
	if trim {
		seqLen = 0
	}
	for i, text := range texts {
		ids, mask, realLen := t.encode(text)
		seqs[i] = seq{ids: ids, mask: mask}
		if trim && int64(realLen) > seqLen {
			seqLen = int64(realLen)
		}
	}
	if seqLen == 0 {
		seqLen = 1
	}

	batchSize := int64(n)
	total := batchSize * seqLen
	b := Batch{
		InputIDs:      make([]int64, total),
		AttentionMask: make([]int64, total),
		TokenTypeIDs:  make([]int64, total), // all zeros
		Size:          batchSize,
		SeqLen:        seqLen,
	}
	for i, s := range seqs {
		offset := int64(i) * seqLen
		copy(b.InputIDs[offset:offset+seqLen], s.ids[:seqLen])
		copy(b.AttentionMask[offset:offset+seqLen], s.mask[:seqLen])
	}
	return b
}

// basicTokenize applies BERT's BasicTokenizer: clean, lowercase, strip
// accents, split on whitespace and punctuation, handle CJK characters.
func (t *Tokenizer) basicTokenize(text string) []string {
	text = cleanText(text)
	text = tokenizeChineseChars(text)
	text = strings.ToLower(text)
	text = stripAccents(text)

	// Split on whitespace, then split each token on punctuation.
	var tokens []string
	for _, word := range strings.Fields(text) {
		tokens = append(tokens, splitOnPunctuation(word)...)
	}
	return tokens
}

// wordpiece applies the WordPiece algorithm to a list of basic tokens.
func (t *Tokenizer) wordpiece(tokens []string) []string {
	var result []string
	for _, token := range tokens {
		if len(token) == 0 {
			continue
		}
		result = append(result, t.wordpieceToken(token)...)
	}
	return result
}

// wordpieceToken decomposes a single basic token into WordPiece subwords.
func (t *Tokenizer) wordpieceToken(token string) []string {
	runes := []rune(token)
	if len(runes) > 200 {
		return []string{"[UNK]"}
	}

	var subTokens []string
	start := 0
	for start < len(runes) {
		end := len(runes)
		found := false
		for end > start {
			sub := string(runes[start:end])
			if start > 0 {
				sub = "##" + sub
			}
			if t.vocab.contains(sub) {
				subTokens = append(subTokens, sub)
				found = true
				break
			}
			end--
		}
		if !found {
			return []string{"[UNK]"}
		}
		start = end
	}
	return subTokens
}

// cleanText removes control characters and replaces whitespace with spaces.
func cleanText(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if r == 0 || r == 0xFFFD || isControl(r) {
			continue
		}
		if isWhitespace(r) {
			b.WriteRune(' ')
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// stripAccents removes combining diacritical marks after NFD normalization.
func stripAccents(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range norm.NFD.String(text) {
		if unicode.In(r, unicode.Mn) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// tokenizeChineseChars adds spaces around CJK Unified Ideographs so they
// become individual tokens.
func tokenizeChineseChars(text string) string {
	var b strings.Builder
	b.Grow(len(text) + len(text)/4)
	for _, r := range text {
		if isChineseChar(r) {
			b.WriteRune(' ')
			b.WriteRune(r)
			b.WriteRune(' ')
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// splitOnPunctuation splits a word at each punctuation character, keeping
// the punctuation as separate tokens.
func splitOnPunctuation(word string) []string {
	var tokens []string
	var current strings.Builder
	for _, r := range word {
		if isPunctuation(r) {
			if current.Len() > 0 {
				tokens = append(tokens, current.String())
				current.Reset()
			}
			tokens = append(tokens, string(r))
		} else {
			current.WriteRune(r)
		}
	}
	if current.Len() > 0 {
		tokens = append(tokens, current.String())
	}
	return tokens
}

// Character classes follow BERT's BasicTokenizer.

func isWhitespace(r rune) bool {
	if r == ' ' || r == '\t' || r == '\n' || r == '\r' {
		return true
	}
	return unicode.Is(unicode.Zs, r)
}

func isControl(r rune) bool {
	if r == '\t' || r == '\n' || r == '\r' {
		return false
	}
	return unicode.IsControl(r)
}

func isPunctuation(r rune) bool {
	// BERT treats anything in ASCII range 33-47, 58-64, 91-96, 123-126 as
	// punctuation, plus Unicode punctuation categories.
	if (r >= 33 && r <= 47) || (r >= 58 && r <= 64) ||
		(r >= 91 && r <= 96) || (r >= 123 && r <= 126) {
		return true
	}
	return unicode.IsPunct(r)
}

func isChineseChar(r rune) bool {
	// CJK Unified Ideographs and extension ranges.
	return (r >= 0x4E00 && r <= 0x9FFF) ||
		(r >= 0x3400 && r <= 0x4DBF) ||
		(r >= 0x20000 && r <= 0x2A6DF) ||
		(r >= 0x2A700 && r <= 0x2B73F) ||
		(r >= 0x2B740 && r <= 0x2B81F) ||
		(r >= 0x2B820 && r <= 0x2CEAF) ||
		(r >= 0xF900 && r <= 0xFAFF) ||
		(r >= 0x2F800 && r <= 0x2FA1F)
}
