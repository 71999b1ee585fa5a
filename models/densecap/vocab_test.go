package densecap

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewVocabulary(t *testing.T) {
	_, err := NewVocabulary([]string{"<eos>"})
	assert.Error(t, err)

	_, err = NewVocabulary([]string{"<eos>", "<unk>", ""})
	assert.Error(t, err)

	v, err := NewVocabulary([]string{"<eos>", "<unk>", "dog"})
	require.NoError(t, err)
	assert.Equal(t, 3, v.Size())
}

func TestVocabulary_Sentence(t *testing.T) {
	v, err := NewVocabulary([]string{"<eos>", "<unk>", "a", "brown", "dog"})
	require.NoError(t, err)

	tests := []struct {
		name   string
		tokens []int
		want   string
	}{
		{"terminated", []int{2, 3, 4, 0}, "a brown dog"},
		{"unterminated", []int{4, 4}, "dog dog"},
		{"only end", []int{0}, ""},
		{"stops at first end", []int{4, 0, 2}, "dog"},
		{"out of range", []int{2, 42}, "a <unk>"},
		{"empty", nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, v.Sentence(tt.tokens))
		})
	}
}

func TestLoadVocabulary(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vocabulary.txt")
	require.NoError(t, os.WriteFile(path, []byte("<eos>\n<unk>\ndog\n  cat  \n"), 0o600))

	v, err := LoadVocabulary(path)
	require.NoError(t, err)
	assert.Equal(t, 4, v.Size())
	assert.Equal(t, "cat", v.Word(3))
	assert.Equal(t, "dog cat", v.Sentence([]int{2, 3, EOS}))

	_, err = LoadVocabulary(filepath.Join(t.TempDir(), "missing.txt"))
	assert.Error(t, err)
}
