package embedder

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
)

// VocabFile is the file name a tokenizer is saved under.
const VocabFile = "vocab.txt"

// vocab holds a WordPiece vocabulary loaded from a vocab.txt file.
// Token IDs are determined by line number (0-indexed).
type vocab struct {
	tokenToID map[string]int64
	idToToken []string

	padID int64
	unkID int64
	clsID int64 // -1 when the vocabulary has no sequence-start token
	sepID int64 // -1 when the vocabulary has no sequence-end token

	// padAliased is set when the vocabulary has no pad token of its own and
	// padding reuses the sequence-end token.
	padAliased bool
}

var (
	padNames = []string{"[PAD]", "<pad>"}
	unkNames = []string{"[UNK]", "<unk>"}
	clsNames = []string{"[CLS]", "<s>"}
	sepNames = []string{"[SEP]", "</s>"}
)

// loadVocab reads a vocab.txt file where each line is a token and the line
// number (0-indexed) is the token ID.
func loadVocab(path string) (*vocab, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("vocab: %w", err)
	}
	defer f.Close()

	var tokens []string
	tokenToID := make(map[string]int64, 32000)

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		tok := scanner.Text()
		id := int64(len(tokens))
		if _, dup := tokenToID[tok]; !dup {
			tokenToID[tok] = id
		}
		tokens = append(tokens, tok)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("vocab: read error: %w", err)
	}
	if len(tokens) == 0 {
		return nil, fmt.Errorf("vocab: file is empty: %s", path)
	}

	v := &vocab{
		tokenToID: tokenToID,
		idToToken: tokens,
	}

	var ok bool
	if v.unkID, ok = v.first(unkNames); !ok {
		return nil, fmt.Errorf("vocab: missing special token %s", unkNames[0])
	}
	if v.clsID, ok = v.first(clsNames); !ok {
		v.clsID = -1
	}
	if v.sepID, ok = v.first(sepNames); !ok {
		v.sepID = -1
	}
	if v.padID, ok = v.first(padNames); !ok {
		v.padID = 0
		if v.sepID >= 0 {
			v.padID = v.sepID
			v.padAliased = true
		}
	}

	return v, nil
}

func (v *vocab) first(names []string) (int64, bool) {
	for _, n := range names {
		if id, ok := v.tokenToID[n]; ok {
			return id, true
		}
	}
	return -1, false
}

// lookup returns the token ID for the given token, or the [UNK] ID if not found.
func (v *vocab) lookup(token string) int64 {
	if id, ok := v.tokenToID[token]; ok {
		return id
	}
	return v.unkID
}

// contains reports whether the token is in the vocabulary.
func (v *vocab) contains(token string) bool {
	_, ok := v.tokenToID[token]
	return ok
}

// size returns the number of tokens in the vocabulary.
func (v *vocab) size() int {
	return len(v.idToToken)
}

// save writes the vocabulary to dir/vocab.txt, one token per line.
func (v *vocab) save(dir string) error {
	f, err := os.Create(filepath.Join(dir, VocabFile))
	if err != nil {
		return fmt.Errorf("vocab: %w", err)
	}
	w := bufio.NewWriter(f)
	for _, tok := range v.idToToken {
		w.WriteString(tok)
		w.WriteByte('\n')
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("vocab: %w", err)
	}
	return f.Close()
}
