package chunker

import (
	"fmt"
	"strings"

	"github.com/pkoukk/tiktoken-go"
)

// Tokenizer counts tokens for chunk budgeting. The count must be
// deterministic for a given text: overlap math and the chunk invariants
// depend on it. It does not have to be the embedding model's own tokenizer;
// §4.2's budget leaves headroom below the model cap.
type Tokenizer interface {
	Count(text string) int
}

// WordTokenizer counts whitespace-separated words. Fully offline and
// reproducible; the default for tests and a serviceable budget approximation
// for English transcripts.
type WordTokenizer struct{}

// Count returns the number of whitespace-separated fields in text.
func (WordTokenizer) Count(text string) int {
	return len(strings.Fields(text))
}

// TiktokenTokenizer counts BPE tokens with a fixed tiktoken encoding, so the
// budget tracks what the embedding service actually sees.
type TiktokenTokenizer struct {
	enc *tiktoken.Tiktoken
}

// DefaultEncoding is the encoding used by the OpenAI embedding model family.
const DefaultEncoding = "cl100k_base"

// NewTiktokenTokenizer loads the named tiktoken encoding (DefaultEncoding
// when empty). Loading fetches the BPE ranks on first use; callers should
// construct once at startup.
func NewTiktokenTokenizer(encoding string) (*TiktokenTokenizer, error) {
	if encoding == "" {
		encoding = DefaultEncoding
	}

	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("load tiktoken encoding %q: %w", encoding, err)
	}

	return &TiktokenTokenizer{enc: enc}, nil
}

// Count returns the BPE token count of text.
func (t *TiktokenTokenizer) Count(text string) int {
	return len(t.enc.Encode(text, nil, nil))
}
