// Package densecap - Dense region captioning: proposal projection, greedy caption decoding
// and per-image detection.
package densecap

import (
	"bufio"
	"os"
	"strings"

	"github.com/pkg/errors"
)

const (
	// EOS is the reserved end-of-sequence token id.
	EOS = 0
	// UNK is the reserved unknown-word token id. It is never selected while decoding.
	UNK = 1
)

// Vocabulary maps token ids to words. Ids are positions in the word list.
type Vocabulary struct {
	words []string
}

// NewVocabulary creates a vocabulary from an ordered word list. The first two entries are the
// end-of-sequence and unknown tokens.
//
// Arguments:
//   - words: The words indexed by token id.
//
// Returns:
//   - *Vocabulary: The vocabulary.
//   - error: An error if the reserved entries are missing or a word is empty.
func NewVocabulary(words []string) (*Vocabulary, error) {
	if len(words) <= UNK {
		return nil, errors.Errorf("vocabulary needs at least %d entries, got %d", UNK+1, len(words))
	}
	for i, w := range words {
		if w == "" {
			return nil, errors.Errorf("empty word at id %d", i)
		}
	}
	return &Vocabulary{words: append([]string(nil), words...)}, nil
}

// LoadVocabulary reads a vocabulary file holding one word per line, where line n is token n.
func LoadVocabulary(path string) (*Vocabulary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open vocabulary %s", path)
	}
	defer f.Close()

	var words []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		words = append(words, strings.TrimSpace(scanner.Text()))
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "read vocabulary %s", path)
	}

	v, err := NewVocabulary(words)
	if err != nil {
		return nil, errors.Wrapf(err, "vocabulary %s", path)
	}
	return v, nil
}

// Size returns the number of tokens.
func (v *Vocabulary) Size() int {
	return len(v.words)
}

// Word returns the word for a token id, or the unknown word for ids out of range.
func (v *Vocabulary) Word(id int) string {
	if id < 0 || id >= len(v.words) {
		return v.words[UNK]
	}
	return v.words[id]
}

// Sentence renders tokens as space-joined words, stopping at the end-of-sequence token.
func (v *Vocabulary) Sentence(tokens []int) string {
	words := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		if tok == EOS {
			break
		}
		words = append(words, v.Word(tok))
	}
	return strings.Join(words, " ")
}
