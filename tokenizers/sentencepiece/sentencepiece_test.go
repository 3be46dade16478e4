package sentencepiece

import (
	"os"
	"strings"
	"testing"

	"github.com/gomlx/unkfix/tokenizers/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// modelEnv names the environment variable pointing to a SentencePiece "tokenizer.model" file,
// e.g. the one of google/flan-t5-small.
const modelEnv = "UNKFIX_SPM_MODEL"

func loadTokenizer(t *testing.T) *Tokenizer {
	t.Helper()
	modelPath := os.Getenv(modelEnv)
	if modelPath == "" {
		t.Skipf("%s not set", modelEnv)
	}
	tok, err := New(modelPath)
	require.NoError(t, err)
	return tok
}

func TestNew_MissingFile(t *testing.T) {
	_, err := New(t.TempDir() + "/missing.model")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing.model")
}

func TestSpecialTokenID_Unknown(t *testing.T) {
	tok := &Tokenizer{}
	_, err := tok.SpecialTokenID(api.TokMask)
	require.Error(t, err)
}

// TestEncodeWithSpans_MatchesEncode verifies that EncodeWithSpans produces the same IDs as Encode.
func TestEncodeWithSpans_MatchesEncode(t *testing.T) {
	tok := loadTokenizer(t)
	inputs := []string{
		"hello",
		"hello world",
		"The quick brown fox jumps over the lazy dog.",
		"Testing tokenization with offsets.",
		"Multiple  spaces   here",
	}
	for _, input := range inputs {
		t.Run(input, func(t *testing.T) {
			assert.Equal(t, tok.Encode(input), tok.EncodeWithSpans(input).IDs)
		})
	}
}

// TestEncodeWithSpans_ValidSpans verifies that spans are within bounds and in order.
func TestEncodeWithSpans_ValidSpans(t *testing.T) {
	tok := loadTokenizer(t)
	inputs := []string{
		"hello world",
		"The quick brown fox.",
		"Testing 123 numbers!",
		"Hello, 世界!",
		"The leader of Japan is Tarō Asō .",
	}
	for _, input := range inputs {
		t.Run(input, func(t *testing.T) {
			result := tok.EncodeWithSpans(input)
			require.Len(t, result.Spans, len(result.IDs))
			prevEnd := 0
			for i, span := range result.Spans {
				require.LessOrEqualf(t, 0, span.Start, "token %d", i)
				require.LessOrEqualf(t, span.Start, span.End, "token %d", i)
				require.LessOrEqualf(t, span.End, len(input), "token %d", i)
				require.LessOrEqualf(t, prevEnd, span.End, "token %d", i)
				prevEnd = span.End
				t.Logf("token %d: id=%d, span=[%d,%d], text=%q", i, result.IDs[i], span.Start, span.End,
					input[span.Start:span.End])
			}
		})
	}
}

func TestEncodeWithSpans_EmptyString(t *testing.T) {
	tok := loadTokenizer(t)
	result := tok.EncodeWithSpans("")
	assert.Empty(t, result.IDs)
	assert.Empty(t, result.Spans)
}

func TestIDToToken(t *testing.T) {
	tok := loadTokenizer(t)
	ids := tok.Encode("hello world")
	require.NotEmpty(t, ids)
	piece, found := tok.IDToToken(ids[0])
	require.True(t, found)
	assert.True(t, strings.HasPrefix(piece, api.WordBoundaryMarker), "first piece %q should start a word", piece)

	_, found = tok.IDToToken(-1)
	assert.False(t, found)
	_, found = tok.IDToToken(tok.Info.VocabularySize)
	assert.False(t, found)
}

func TestGetVocab(t *testing.T) {
	tok := loadTokenizer(t)
	vocab := tok.GetVocab()
	assert.NotEmpty(t, vocab)
	assert.LessOrEqual(t, len(vocab), tok.Info.VocabularySize)

	// Returned map is a copy.
	vocab["not-a-piece"] = -1
	_, found := tok.GetVocab()["not-a-piece"]
	assert.False(t, found)
}
