package hftokenizer

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/gomlx/unkfix/tokenizers/api"
	"github.com/gomlx/unkfix/unkfix"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test tokenizer.json content for a WordPiece model (BERT-style)
var testWordPieceTokenizerJSON = []byte(`{
  "version": "1.0",
  "truncation": null,
  "padding": null,
  "added_tokens": [
    {"id": 0, "content": "[PAD]", "single_word": false, "lstrip": false, "rstrip": false, "normalized": false, "special": true},
    {"id": 100, "content": "[UNK]", "single_word": false, "lstrip": false, "rstrip": false, "normalized": false, "special": true},
    {"id": 101, "content": "[CLS]", "single_word": false, "lstrip": false, "rstrip": false, "normalized": false, "special": true},
    {"id": 102, "content": "[SEP]", "single_word": false, "lstrip": false, "rstrip": false, "normalized": false, "special": true},
    {"id": 103, "content": "[MASK]", "single_word": false, "lstrip": false, "rstrip": false, "normalized": false, "special": true}
  ],
  "normalizer": {
    "type": "BertNormalizer",
    "lowercase": true
  },
  "pre_tokenizer": {
    "type": "BertPreTokenizer"
  },
  "post_processor": null,
  "decoder": {
    "type": "WordPiece",
    "prefix": "##"
  },
  "model": {
    "type": "WordPiece",
    "unk_token": "[UNK]",
    "continuing_subword_prefix": "##",
    "max_input_chars_per_word": 100,
    "vocab": {
      "[PAD]": 0,
      "hello": 1,
      "world": 2,
      "test": 3,
      "##ing": 4,
      "##ed": 5,
      "[UNK]": 100,
      "[CLS]": 101,
      "[SEP]": 102,
      "[MASK]": 103,
      "the": 104,
      "a": 105,
      "is": 106,
      "this": 107
    }
  }
}`)

// Test tokenizer.json content for a BPE model (GPT-2-style)
var testBPETokenizerJSON = []byte(`{
  "version": "1.0",
  "added_tokens": [
    {"id": 0, "content": "<|endoftext|>", "single_word": false, "lstrip": false, "rstrip": false, "normalized": false, "special": true},
    {"id": 1, "content": "<|padding|>", "single_word": false, "lstrip": false, "rstrip": false, "normalized": false, "special": true}
  ],
  "normalizer": null,
  "pre_tokenizer": {
    "type": "ByteLevel",
    "add_prefix_space": false
  },
  "decoder": {
    "type": "ByteLevel"
  },
  "model": {
    "type": "BPE",
    "unk_token": null,
    "vocab": {
      "hello": 2,
      "world": 3,
      "hel": 4,
      "lo": 5,
      "wor": 6,
      "ld": 7,
      "test": 8,
      " ": 9,
      "Ġhello": 10,
      "Ġworld": 11,
      "Ġtest": 12
    },
    "merges": [
      "h e",
      "l o",
      ["w", "o"],
      "r l",
      "he l",
      "hel lo",
      "wo r",
      "wor ld"
    ]
  }
}`)

// Test tokenizer.json content for a Unigram model with Metaspace (T5-style).
var testUnigramTokenizerJSON = []byte(`{
  "version": "1.0",
  "added_tokens": [
    {"id": 0, "content": "<pad>", "special": true},
    {"id": 1, "content": "</s>", "special": true},
    {"id": 2, "content": "<unk>", "special": true}
  ],
  "normalizer": null,
  "pre_tokenizer": {
    "type": "Sequence",
    "pretokenizers": [
      {"type": "WhitespaceSplit"},
      {"type": "Metaspace", "replacement": "▁", "prepend_scheme": "always"}
    ]
  },
  "decoder": {"type": "Metaspace", "replacement": "▁"},
  "model": {
    "type": "Unigram",
    "unk_id": 2,
    "vocab": [
      ["<pad>", 0.0], ["</s>", 0.0], ["<unk>", 0.0],
      ["▁", -2.0], ["▁The", -3.0], ["▁leader", -5.0], ["▁of", -3.0], ["▁Japan", -6.0],
      ["▁is", -3.0], ["▁Tar", -7.0], ["ō", -8.0], ["▁As", -7.0], ["▁.", -4.0],
      ["▁Ta", -9.0], ["r", -5.0], ["s", -5.0], ["A", -6.0]
    ]
  }
}`)

func TestNewFromContent(t *testing.T) {
	tests := []struct {
		name    string
		content []byte
		want    string
	}{
		{"WordPiece", testWordPieceTokenizerJSON, "WordPiece"},
		{"BPE", testBPETokenizerJSON, "BPE"},
		{"Unigram", testUnigramTokenizerJSON, "Unigram"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tok, err := NewFromContent(nil, tt.content)
			require.NoError(t, err)
			assert.Equal(t, tt.want, tok.GetTokenizerType())
		})
	}
}

func TestNewFromContent_Errors(t *testing.T) {
	_, err := NewFromContent(nil, []byte("not valid json"))
	require.Error(t, err)

	_, err = NewFromContent(nil, []byte(`{"model": {"type": "WordLevel", "vocab": {}}}`))
	require.Error(t, err)

	_, err = NewFromContent(nil, []byte(`{"model": {"vocab": {}}}`))
	require.Error(t, err)

	// Unigram needs scores.
	_, err = NewFromContent(nil, []byte(`{"model": {"type": "Unigram", "vocab": {"a": 0}}}`))
	require.Error(t, err)
}

func TestNewFromFile(t *testing.T) {
	filePath := filepath.Join(t.TempDir(), "tokenizer.json")
	require.NoError(t, os.WriteFile(filePath, testUnigramTokenizerJSON, 0o644))
	tok, err := NewFromFile(nil, filePath)
	require.NoError(t, err)
	assert.Equal(t, "Unigram", tok.GetTokenizerType())

	_, err = NewFromFile(nil, filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
}

func TestWordPiece_EncodeWithSpans(t *testing.T) {
	tok, err := NewFromContent(nil, testWordPieceTokenizerJSON)
	require.NoError(t, err)

	tests := []struct {
		name      string
		input     string
		wantIDs   []int
		wantSpans []api.TokenSpan
	}{
		{
			name:      "single word in vocab",
			input:     "hello",
			wantIDs:   []int{1},
			wantSpans: []api.TokenSpan{{Start: 0, End: 5}},
		},
		{
			name:      "multiple words",
			input:     "hello world",
			wantIDs:   []int{1, 2},
			wantSpans: []api.TokenSpan{{Start: 0, End: 5}, {Start: 6, End: 11}},
		},
		{
			name:      "word with subword",
			input:     "testing",
			wantIDs:   []int{3, 4}, // test + ##ing
			wantSpans: []api.TokenSpan{{Start: 0, End: 4}, {Start: 4, End: 7}},
		},
		{
			name:      "lowercased and punctuation",
			input:     "Hello, World!",
			wantIDs:   []int{1, 100, 2, 100},
			wantSpans: []api.TokenSpan{{Start: 0, End: 5}, {Start: 5, End: 6}, {Start: 7, End: 12}, {Start: 12, End: 13}},
		},
		{
			name:      "added tokens",
			input:     "[CLS] this is a test [SEP]",
			wantIDs:   []int{101, 107, 106, 105, 3, 102},
			wantSpans: []api.TokenSpan{{Start: 0, End: 5}, {Start: 6, End: 10}, {Start: 11, End: 13}, {Start: 14, End: 15}, {Start: 16, End: 20}, {Start: 21, End: 26}},
		},
		{
			name:      "unknown word",
			input:     "the xyz",
			wantIDs:   []int{104, 100},
			wantSpans: []api.TokenSpan{{Start: 0, End: 3}, {Start: 4, End: 7}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tok.EncodeWithSpans(tt.input)
			assert.Equal(t, tt.wantIDs, got.IDs)
			assert.Equal(t, tt.wantSpans, got.Spans)
			assert.Equal(t, tt.wantIDs, tok.Encode(tt.input))
		})
	}
}

func TestWordPiece_Decode(t *testing.T) {
	tok, err := NewFromContent(nil, testWordPieceTokenizerJSON)
	require.NoError(t, err)

	assert.Equal(t, "hello", tok.Decode([]int{1}))
	assert.Equal(t, "hello world", tok.Decode([]int{1, 2}))
	assert.Equal(t, "testing", tok.Decode([]int{3, 4}))
}

func TestWordPiece_SpecialTokenID(t *testing.T) {
	tok, err := NewFromContent(nil, testWordPieceTokenizerJSON)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token api.SpecialToken
		want  int
	}{
		{"unknown token", api.TokUnknown, 100},
		{"pad token", api.TokPad, 0},
		{"mask token", api.TokMask, 103},
		{"cls/bos token", api.TokBeginningOfSentence, 101}, // Falls back to CLS
		{"sep/eos token", api.TokEndOfSentence, 102},       // Falls back to SEP
		{"classification", api.TokClassification, 101},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tok.SpecialTokenID(tt.token)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err = tok.SpecialTokenID(api.TokSpecialTokensCount)
	require.Error(t, err)
}

func TestSpecialTokensFromConfig(t *testing.T) {
	config := &api.Config{BosToken: "[CLS]", EosToken: "[SEP]"}
	tok, err := NewFromContent(config, testBPETokenizerJSON)
	require.NoError(t, err)
	_, err = tok.SpecialTokenID(api.TokBeginningOfSentence)
	require.Error(t, err, "[CLS] is not in the BPE vocabulary")

	config = &api.Config{EosToken: "<|endoftext|>", PadToken: "<|padding|>"}
	tok, err = NewFromContent(config, testBPETokenizerJSON)
	require.NoError(t, err)
	id, err := tok.SpecialTokenID(api.TokEndOfSentence)
	require.NoError(t, err)
	assert.Equal(t, 0, id)
	id, err = tok.SpecialTokenID(api.TokPad)
	require.NoError(t, err)
	assert.Equal(t, 1, id)
}

func TestBPE_EncodeWithSpans(t *testing.T) {
	tok, err := NewFromContent(nil, testBPETokenizerJSON)
	require.NoError(t, err)

	got := tok.EncodeWithSpans("hello")
	assert.Equal(t, []int{2}, got.IDs)
	assert.Equal(t, []api.TokenSpan{{Start: 0, End: 5}}, got.Spans)

	// The byte-level space "Ġ" is not in the vocabulary and no unknown token is defined:
	// it is dropped, and "hello" spans only its own bytes.
	got = tok.EncodeWithSpans("hello hello")
	assert.Equal(t, []int{2, 2}, got.IDs)
	assert.Equal(t, []api.TokenSpan{{Start: 0, End: 5}, {Start: 6, End: 11}}, got.Spans)

	got = tok.EncodeWithSpans("hello<|endoftext|>")
	assert.Equal(t, []int{2, 0}, got.IDs)
	assert.Equal(t, []api.TokenSpan{{Start: 0, End: 5}, {Start: 5, End: 18}}, got.Spans)
}

func TestBPE_Decode(t *testing.T) {
	tok, err := NewFromContent(nil, testBPETokenizerJSON)
	require.NoError(t, err)
	assert.Equal(t, "helloworld", tok.Decode([]int{2, 3}))
	assert.Equal(t, " hello world", tok.Decode([]int{10, 11}))
}

func TestUnigram_EncodeWithSpans(t *testing.T) {
	tok, err := NewFromContent(nil, testUnigramTokenizerJSON)
	require.NoError(t, err)

	text := "The leader of Japan is Tarō Asō ."
	got := tok.EncodeWithSpans(text)
	assert.Equal(t, []int{4, 5, 6, 7, 8, 9, 10, 11, 10, 12}, got.IDs)
	assert.Equal(t, []api.TokenSpan{
		{Start: 0, End: 3}, {Start: 4, End: 10}, {Start: 11, End: 13}, {Start: 14, End: 19}, {Start: 20, End: 22},
		{Start: 23, End: 26}, {Start: 26, End: 28}, {Start: 29, End: 31}, {Start: 31, End: 33}, {Start: 34, End: 35},
	}, got.Spans)
	for i, span := range got.Spans {
		token, ok := tok.IDToToken(got.IDs[i])
		require.True(t, ok)
		assert.Equal(t, token[len(token)-len(text[span.Start:span.End]):], text[span.Start:span.End],
			"token #%d %q doesn't end with its text", i, token)
	}
}

func TestUnigram_UnknownCharacters(t *testing.T) {
	tok, err := NewFromContent(nil, testUnigramTokenizerJSON)
	require.NoError(t, err)

	// Unknown characters are fused into a single <unk>.
	got := tok.EncodeWithSpans("Íx")
	assert.Equal(t, []int{3, 2}, got.IDs)
	assert.Equal(t, []api.TokenSpan{{Start: 0, End: 0}, {Start: 0, End: 3}}, got.Spans)

	id, err := tok.SpecialTokenID(api.TokUnknown)
	require.NoError(t, err)
	assert.Equal(t, 2, id)
}

func TestUnigram_Decode(t *testing.T) {
	tok, err := NewFromContent(nil, testUnigramTokenizerJSON)
	require.NoError(t, err)
	assert.Equal(t, "The leader", tok.Decode([]int{4, 5}))
	assert.Equal(t, "Tarō Asō .", tok.Decode([]int{9, 10, 11, 10, 12}))
}

func TestVocabAccessors(t *testing.T) {
	tok, err := NewFromContent(nil, testWordPieceTokenizerJSON)
	require.NoError(t, err)

	id, ok := tok.TokenToID("hello")
	require.True(t, ok)
	assert.Equal(t, 1, id)

	token, ok := tok.IDToToken(1)
	require.True(t, ok)
	assert.Equal(t, "hello", token)

	id, ok = tok.TokenToID("[CLS]")
	require.True(t, ok)
	assert.Equal(t, 101, id)

	vocab := tok.GetVocab()
	assert.Equal(t, 1, vocab["hello"])
	assert.Equal(t, 101, vocab["[CLS]"])
	assert.Equal(t, 14, tok.VocabSize())

	added := tok.AddedTokensList()
	require.Len(t, added, 5)
	for i := 1; i < len(added); i++ {
		assert.Less(t, added[i-1].ID, added[i].ID, "AddedTokensList() not sorted by ID")
	}
}

func TestPreTokenizers(t *testing.T) {
	tests := []struct {
		name  string
		split splitFn
		input string
		want  []string
	}{
		{"bert", splitBert, "Hello, world!", []string{"Hello", ",", "world", "!"}},
		{"bert apostrophe", splitBert, "It's a test.", []string{"It", "'", "s", "a", "test", "."}},
		{"whitespace", splitWhitespace, " simple\ttext  ", []string{"simple", "text"}},
		{"words and symbols", splitWordsAndSymbols, "Arròs-negre!!", []string{"Arròs", "-", "negre", "!!"}},
		{"punctuation", splitPunctuation, "a,b c", []string{"a", ",", "b c"}},
		{"space attached", splitSpaceAttached, "a  b", []string{"a", " ", " b"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []string
			for _, r := range tt.split(tt.input, textRange{0, len(tt.input)}) {
				got = append(got, tt.input[r.start:r.end])
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCleanText(t *testing.T) {
	assert.Equal(t, "hello world", cleanText("hello world"))
	assert.Equal(t, "hello world", cleanText("hello\tworld"))
	assert.Equal(t, "hello world", cleanText("hello\nworld"))
	assert.Equal(t, "helloworld", cleanText("hello\x00world"))
}

func TestEmptyVocab(t *testing.T) {
	tok, err := NewFromContent(nil, []byte(`{
		"model": {
			"type": "WordPiece",
			"vocab": {},
			"unk_token": "[UNK]"
		}
	}`))
	require.NoError(t, err)

	// No unknown token is defined: nothing is encoded.
	assert.Empty(t, tok.Encode("hello"))
}

func TestFixWithHFTokenizer(t *testing.T) {
	tok, err := NewFromContent(nil, testUnigramTokenizerJSON)
	require.NoError(t, err)
	fixer := unkfix.New().WithTokenizer(tok)

	// The raw span is not found among the tokens: the text search takes over.
	text := "The leader of Japan is Tarō Asō ."
	assert.Equal(t, "Tarō Asō", fixer.Fix("Tarō As<unk>", text))
	assert.Equal(t, "Tarō Asō", fixer.Fix("Tar<unk> As<unk>", text))

	// A literal "<unk>" in the text is an added token: the token region is used.
	assert.Equal(t, "Tar<unk>", fixer.Fix("Tar<unk>", "is Tar<unk> ."))
}

func TestFixWithHFTokenizer_UnknownCharacter(t *testing.T) {
	// Same vocabulary without "ō": the character is encoded as <unk>, so the span is found
	// among the decoded tokens and the text region of the matched tokens is used.
	content := bytes.Replace(testUnigramTokenizerJSON, []byte(`["ō", -8.0]`), []byte(`["ŏ", -8.0]`), 1)
	tok, err := NewFromContent(nil, content)
	require.NoError(t, err)

	text := "The leader of Japan is Tarō Asō ."
	got := tok.EncodeWithSpans(text)
	assert.Equal(t, []int{4, 5, 6, 7, 8, 9, 2, 11, 2, 12}, got.IDs)
	assert.Equal(t, api.TokenSpan{Start: 29, End: 31}, got.Spans[7])
	assert.Equal(t, api.TokenSpan{Start: 31, End: 33}, got.Spans[8])

	first, last, found := unkfix.MatchSublist(got.IDs, "As<unk>", unkfix.ReverseVocab(tok.GetVocab()))
	require.True(t, found)
	assert.Equal(t, 7, first)
	assert.Equal(t, 8, last)

	fixer := unkfix.New().WithTokenizer(tok)
	assert.Equal(t, "Asō", fixer.Fix("As<unk>", text))
	assert.Equal(t, "Tarō", fixer.Fix("Tar<unk>", text))
	// Tokens are decoded without separators, so a span holding a space falls back to the
	// text search.
	assert.Equal(t, "Tarō Asō", fixer.Fix("Tar<unk> As<unk>", text))
}
