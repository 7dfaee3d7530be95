package captioning

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// Tokenizer decodes generated token ids back into text. The vocabulary
// is the WordPiece export of the model's BERT tokenizer: one token per
// line, "##"-prefixed pieces continue the previous word, bracketed
// tokens like [PAD] or [CLS] are specials and are skipped on decode.
type Tokenizer struct {
	tokens []string
}

func LoadTokenizer(path string) (*Tokenizer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read vocabulary: %w", err)
	}
	defer f.Close()

	var tokens []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		tokens = append(tokens, strings.TrimRight(scanner.Text(), "\r"))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read vocabulary: %w", err)
	}
	if len(tokens) == 0 {
		return nil, fmt.Errorf("vocabulary %s is empty", path)
	}

	return &Tokenizer{tokens: tokens}, nil
}

func (t *Tokenizer) VocabSize() int {
	return len(t.tokens)
}

// Decode converts token ids into a caption string, skipping special
// tokens and joining WordPiece continuations without a space.
func (t *Tokenizer) Decode(ids []int) string {
	var sb strings.Builder
	for _, id := range ids {
		if id < 0 || id >= len(t.tokens) {
			continue
		}

		tok := t.tokens[id]
		if isSpecialToken(tok) {
			continue
		}

		if piece, ok := strings.CutPrefix(tok, "##"); ok {
			sb.WriteString(piece)
			continue
		}

		if sb.Len() > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(tok)
	}

	return sb.String()
}

func isSpecialToken(tok string) bool {
	return strings.HasPrefix(tok, "[") && strings.HasSuffix(tok, "]")
}
