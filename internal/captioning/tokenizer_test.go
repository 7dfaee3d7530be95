package captioning

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeVocab(t *testing.T, lines string) *Tokenizer {
	t.Helper()

	path := filepath.Join(t.TempDir(), VocabularyFilename)
	require.NoError(t, os.WriteFile(path, []byte(lines), 0o644))

	tokenizer, err := LoadTokenizer(path)
	require.NoError(t, err)
	return tokenizer
}

func TestTokenizerDecode(t *testing.T) {
	tokenizer := writeVocab(t, "[PAD]\n[CLS]\n[SEP]\nchest\nx\n##ray\nshows\nopacity\n")

	tests := []struct {
		name string
		ids  []int
		want string
	}{
		{"plain words", []int{3, 6, 7}, "chest shows opacity"},
		{"wordpiece join", []int{4, 5}, "xray"},
		{"specials skipped", []int{1, 3, 2}, "chest"},
		{"out of range skipped", []int{3, 99, -1}, "chest"},
		{"empty", nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tokenizer.Decode(tt.ids))
		})
	}
}

func TestTokenizerVocabSize(t *testing.T) {
	tokenizer := writeVocab(t, "a\nb\nc\n")
	assert.Equal(t, 3, tokenizer.VocabSize())
}

func TestTokenizerEmptyVocab(t *testing.T) {
	path := filepath.Join(t.TempDir(), VocabularyFilename)
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	_, err := LoadTokenizer(path)
	require.Error(t, err)
}

func TestTokenizerMissingFile(t *testing.T) {
	_, err := LoadTokenizer(filepath.Join(t.TempDir(), VocabularyFilename))
	require.Error(t, err)
}
