// Package hftokenizer implements a tokenizer for HuggingFace's tokenizer.json format.
// This format is used by the HuggingFace Tokenizers library (the "fast" tokenizers)
// and supports WordPiece (BERT), BPE (GPT-2, RoBERTa), and Unigram (T5) models.
//
// Encoding tracks the byte offsets of every token in the original text, see
// Tokenizer.EncodeWithSpans.
package hftokenizer

import (
	"bytes"
	"encoding/json"
	"os"
	"sort"
	"strings"

	"github.com/gomlx/unkfix/tokenizers/api"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// TokenizerJSON represents the structure of HuggingFace's tokenizer.json file.
type TokenizerJSON struct {
	Version      string        `json:"version"`
	AddedTokens  []AddedToken  `json:"added_tokens"`
	Normalizer   *Normalizer   `json:"normalizer"`
	PreTokenizer *PreTokenizer `json:"pre_tokenizer"`
	Decoder      *Decoder      `json:"decoder"`
	Model        Model         `json:"model"`
}

// AddedToken represents a token added to the vocabulary, matched verbatim in the input text
// before any other processing.
type AddedToken struct {
	ID         int    `json:"id"`
	Content    string `json:"content"`
	SingleWord bool   `json:"single_word"`
	Lstrip     bool   `json:"lstrip"`
	Rstrip     bool   `json:"rstrip"`
	Normalized bool   `json:"normalized"`
	Special    bool   `json:"special"`
}

// Normalizer represents the normalizer configuration.
type Normalizer struct {
	Type        string       `json:"type"`
	Lowercase   bool         `json:"lowercase"`
	Pattern     *Pattern     `json:"pattern"`
	Content     string       `json:"content"`
	Prepend     string       `json:"prepend"`
	Normalizers []Normalizer `json:"normalizers"`
}

// Pattern for replace and split operations. Only String patterns are supported.
type Pattern struct {
	Regex  string `json:"Regex,omitempty"`
	String string `json:"String,omitempty"`
}

// PreTokenizer represents the pre-tokenizer configuration.
type PreTokenizer struct {
	Type           string         `json:"type"`
	AddPrefixSpace bool           `json:"add_prefix_space"`
	PrependScheme  string         `json:"prepend_scheme"`
	Replacement    string         `json:"replacement"`
	PreTokenizers  []PreTokenizer `json:"pretokenizers"`
}

// Decoder represents the decoder configuration.
type Decoder struct {
	Type        string    `json:"type"`
	Prefix      string    `json:"prefix"`
	Replacement string    `json:"replacement"`
	Pattern     *Pattern  `json:"pattern"`
	Content     string    `json:"content"`
	Start       int       `json:"start"`
	Stop        int       `json:"stop"`
	Decoders    []Decoder `json:"decoders"`
}

// Model represents the tokenizer model (WordPiece, BPE, or Unigram).
type Model struct {
	Type                    string `json:"type"`
	Vocab                   Vocab  `json:"vocab"`
	Merges                  Merges `json:"merges"`
	UnkToken                string `json:"unk_token"`
	UnkID                   *int   `json:"unk_id"`
	ContinuingSubwordPrefix string `json:"continuing_subword_prefix"`
	MaxInputCharsPerWord    int    `json:"max_input_chars_per_word"`
	EndOfWordSuffix         string `json:"end_of_word_suffix"`
	ByteFallback            bool   `json:"byte_fallback"`
}

// Vocab is the model vocabulary. In tokenizer.json it is either an object mapping token to id
// (WordPiece, BPE) or a list of [token, score] pairs where the id is the position (Unigram).
type Vocab struct {
	IDs    map[string]int
	Scores []float64 // Unigram only, indexed by id.
}

// UnmarshalJSON implements json.Unmarshaler.
func (v *Vocab) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var entries [][2]json.RawMessage
		if err := json.Unmarshal(data, &entries); err != nil {
			return errors.Wrapf(err, "unigram vocab must be a list of [token, score] pairs")
		}
		v.IDs = make(map[string]int, len(entries))
		v.Scores = make([]float64, len(entries))
		for id, entry := range entries {
			var token string
			if err := json.Unmarshal(entry[0], &token); err != nil {
				return errors.Wrapf(err, "invalid token in vocab entry #%d", id)
			}
			if err := json.Unmarshal(entry[1], &v.Scores[id]); err != nil {
				return errors.Wrapf(err, "invalid score in vocab entry #%d", id)
			}
			v.IDs[token] = id
		}
		return nil
	}
	v.IDs = make(map[string]int)
	return json.Unmarshal(data, &v.IDs)
}

// Merges are the BPE merge rules, stored as "left right". In tokenizer.json they are either
// strings "left right" or pairs ["left", "right"].
type Merges []string

// UnmarshalJSON implements json.Unmarshaler.
func (m *Merges) UnmarshalJSON(data []byte) error {
	var entries []json.RawMessage
	if err := json.Unmarshal(data, &entries); err != nil {
		return err
	}
	*m = make([]string, 0, len(entries))
	for ii, entry := range entries {
		var merge string
		if err := json.Unmarshal(entry, &merge); err == nil {
			*m = append(*m, merge)
			continue
		}
		var pair [2]string
		if err := json.Unmarshal(entry, &pair); err != nil {
			return errors.Wrapf(err, "invalid merge #%d", ii)
		}
		*m = append(*m, pair[0]+" "+pair[1])
	}
	return nil
}

// Tokenizer implements the api.Tokenizer interface for HuggingFace tokenizer.json files.
type Tokenizer struct {
	config     *api.Config
	tokenizer  *TokenizerJSON
	idToToken  map[int]string
	mergeRanks map[string]int // For BPE: maps "token1 token2" to merge priority

	// Unigram parameters.
	maxPieceLen  int
	unknownScore float64

	// Special token IDs, -1 if not defined.
	unkID  int
	padID  int
	bosID  int
	eosID  int
	clsID  int
	sepID  int
	maskID int

	// Added tokens lookup (content -> id), and contents sorted longest first for matching.
	addedTokens      map[string]int
	addedTokensOrder []string
}

// Compile time assert that Tokenizer implements the api interfaces.
var (
	_ api.Tokenizer          = &Tokenizer{}
	_ api.TokenizerWithSpans = &Tokenizer{}
	_ api.TokenizerWithVocab = &Tokenizer{}
)

// NewFromFile creates a HuggingFace tokenizer from a local tokenizer.json file path.
// config is optional and only used to resolve special tokens.
func NewFromFile(config *api.Config, filePath string) (*Tokenizer, error) {
	content, err := os.ReadFile(filePath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read tokenizer.json file %q", filePath)
	}
	t, err := NewFromContent(config, content)
	if err != nil {
		return nil, errors.WithMessagef(err, "tokenizer file %q", filePath)
	}
	klog.V(1).Infof("hftokenizer: loaded %s model with %d tokens from %q", t.GetTokenizerType(), t.VocabSize(), filePath)
	return t, nil
}

// NewFromContent creates a HuggingFace tokenizer from tokenizer.json content.
func NewFromContent(config *api.Config, content []byte) (*Tokenizer, error) {
	var tj TokenizerJSON
	if err := json.Unmarshal(content, &tj); err != nil {
		return nil, errors.Wrapf(err, "failed to parse tokenizer.json")
	}
	return New(config, &tj)
}

// New creates a tokenizer from an already parsed (or programmatically built) tokenizer
// definition. tj is owned by the returned Tokenizer afterwards.
func New(config *api.Config, tj *TokenizerJSON) (*Tokenizer, error) {
	switch tj.Model.Type {
	case "WordPiece", "BPE", "Unigram":
	case "":
		return nil, errors.Errorf("tokenizer.json has no model type")
	default:
		return nil, errors.Errorf("unsupported tokenizer model type %q", tj.Model.Type)
	}
	if tj.Model.Vocab.IDs == nil {
		tj.Model.Vocab.IDs = make(map[string]int)
	}

	t := &Tokenizer{
		config:      config,
		tokenizer:   tj,
		idToToken:   make(map[int]string),
		addedTokens: make(map[string]int),
		unkID:       -1,
		padID:       -1,
		bosID:       -1,
		eosID:       -1,
		clsID:       -1,
		sepID:       -1,
		maskID:      -1,
	}

	// Build reverse vocab (id -> token)
	for token, id := range tj.Model.Vocab.IDs {
		t.idToToken[id] = token
		t.maxPieceLen = max(t.maxPieceLen, len(token))
	}

	// Build added tokens map
	for _, at := range tj.AddedTokens {
		if at.Content == "" {
			continue
		}
		t.addedTokens[at.Content] = at.ID
		t.idToToken[at.ID] = at.Content
		t.addedTokensOrder = append(t.addedTokensOrder, at.Content)
	}
	sort.SliceStable(t.addedTokensOrder, func(i, j int) bool {
		return len(t.addedTokensOrder[i]) > len(t.addedTokensOrder[j])
	})

	switch tj.Model.Type {
	case "BPE":
		t.mergeRanks = make(map[string]int, len(tj.Model.Merges))
		for i, merge := range tj.Model.Merges {
			if _, found := t.mergeRanks[merge]; !found {
				t.mergeRanks[merge] = i
			}
		}
	case "Unigram":
		if len(tj.Model.Vocab.Scores) == 0 {
			return nil, errors.Errorf("unigram model requires a list of [token, score] pairs as vocab")
		}
		minScore := tj.Model.Vocab.Scores[0]
		for _, score := range tj.Model.Vocab.Scores {
			minScore = min(minScore, score)
		}
		// Same penalty for unknown characters as the Unigram model of HuggingFace Tokenizers.
		t.unknownScore = minScore - 10
	}

	t.resolveSpecialTokens()
	return t, nil
}

// resolveSpecialTokens maps special tokens from the model, the added tokens and the config to their IDs.
func (t *Tokenizer) resolveSpecialTokens() {
	model := &t.tokenizer.Model
	if model.UnkID != nil {
		t.unkID = *model.UnkID
	} else if model.UnkToken != "" {
		if id, ok := model.Vocab.IDs[model.UnkToken]; ok {
			t.unkID = id
		}
	}

	for _, at := range t.tokenizer.AddedTokens {
		if !at.Special {
			continue
		}
		switch at.Content {
		case "[UNK]", "<unk>":
			if t.unkID == -1 {
				t.unkID = at.ID
			}
		case "[PAD]", "<pad>":
			t.padID = at.ID
		case "[CLS]", "<s>":
			t.clsID = at.ID
		case "[SEP]", "</s>":
			t.sepID = at.ID
		case "[MASK]", "<mask>":
			t.maskID = at.ID
		}
	}

	if t.config == nil {
		return
	}
	fromConfig := []struct {
		token string
		id    *int
	}{
		{t.config.UnkToken, &t.unkID},
		{t.config.PadToken, &t.padID},
		{t.config.ClsToken, &t.clsID},
		{t.config.SepToken, &t.sepID},
		{t.config.MaskToken, &t.maskID},
		{t.config.BosToken, &t.bosID},
		{t.config.EosToken, &t.eosID},
	}
	for _, special := range fromConfig {
		if special.token == "" || *special.id != -1 {
			continue
		}
		if id, ok := t.TokenToID(special.token); ok {
			*special.id = id
		}
	}
}

// Encode converts text to a sequence of token IDs. No special tokens are added.
func (t *Tokenizer) Encode(text string) []int {
	return t.EncodeWithSpans(text).IDs
}

// EncodeWithSpans converts text to token IDs along with the byte span of each token in text.
// It implements api.TokenizerWithSpans.
//
// Spans never include the word separators: a "▁word" token spans only "word". When
// normalization changes the length of a word, all the tokens of the word span the whole word.
func (t *Tokenizer) EncodeWithSpans(text string) api.EncodingResult {
	var result api.EncodingResult
	for _, segment := range t.splitAddedTokens(text) {
		if segment.addedID >= 0 {
			result.IDs = append(result.IDs, segment.addedID)
			result.Spans = append(result.Spans, api.TokenSpan{Start: segment.start, End: segment.end})
			continue
		}
		for _, w := range t.preTokenize(text, segment.start, segment.end) {
			for _, p := range t.tokenizeWord(w.input) {
				result.IDs = append(result.IDs, p.id)
				result.Spans = append(result.Spans, w.span(p))
			}
		}
	}
	return result
}

// segment is a byte range of the input text, either matching an added token (addedID >= 0) or
// to be tokenized by the model.
type segment struct {
	start, end int
	addedID    int
}

// splitAddedTokens isolates the leftmost-longest occurrences of added tokens in text.
func (t *Tokenizer) splitAddedTokens(text string) []segment {
	var segments []segment
	plainStart := 0
	for pos := 0; pos < len(text); {
		content := t.addedTokenAt(text, pos)
		if content == "" {
			pos++
			continue
		}
		if plainStart < pos {
			segments = append(segments, segment{start: plainStart, end: pos, addedID: -1})
		}
		segments = append(segments, segment{start: pos, end: pos + len(content), addedID: t.addedTokens[content]})
		pos += len(content)
		plainStart = pos
	}
	if plainStart < len(text) {
		segments = append(segments, segment{start: plainStart, end: len(text), addedID: -1})
	}
	return segments
}

func (t *Tokenizer) addedTokenAt(text string, pos int) string {
	for _, content := range t.addedTokensOrder {
		if strings.HasPrefix(text[pos:], content) {
			return content
		}
	}
	return ""
}

// Decode converts a sequence of token IDs back to text.
func (t *Tokenizer) Decode(ids []int) string {
	tokens := make([]string, 0, len(ids))
	for _, id := range ids {
		if token, ok := t.idToToken[id]; ok {
			tokens = append(tokens, token)
		}
	}
	return t.applyDecoder(tokens)
}

// SpecialTokenID returns the ID for a given special token.
func (t *Tokenizer) SpecialTokenID(token api.SpecialToken) (int, error) {
	var candidates []int
	switch token {
	case api.TokUnknown:
		candidates = []int{t.unkID}
	case api.TokPad:
		candidates = []int{t.padID}
	case api.TokBeginningOfSentence:
		// Falls back to CLS for BERT-style models.
		candidates = []int{t.bosID, t.clsID}
	case api.TokEndOfSentence:
		// Falls back to SEP for BERT-style models.
		candidates = []int{t.eosID, t.sepID}
	case api.TokMask:
		candidates = []int{t.maskID}
	case api.TokClassification:
		candidates = []int{t.clsID}
	}
	for _, id := range candidates {
		if id >= 0 {
			return id, nil
		}
	}
	return 0, errors.Errorf("special token %s not found", token)
}

// VocabSize returns the size of the vocabulary.
func (t *Tokenizer) VocabSize() int {
	return len(t.idToToken)
}

// GetVocab returns the full vocabulary mapping, added tokens included.
func (t *Tokenizer) GetVocab() map[string]int {
	vocab := make(map[string]int, len(t.idToToken))
	for k, v := range t.tokenizer.Model.Vocab.IDs {
		vocab[k] = v
	}
	for _, at := range t.tokenizer.AddedTokens {
		vocab[at.Content] = at.ID
	}
	return vocab
}

// GetTokenizerType returns the model type (WordPiece, BPE, Unigram).
func (t *Tokenizer) GetTokenizerType() string {
	return t.tokenizer.Model.Type
}

// TokenToID converts a token string to its ID.
func (t *Tokenizer) TokenToID(token string) (int, bool) {
	if id, ok := t.addedTokens[token]; ok {
		return id, true
	}
	id, ok := t.tokenizer.Model.Vocab.IDs[token]
	return id, ok
}

// IDToToken converts a token ID to its string.
func (t *Tokenizer) IDToToken(id int) (string, bool) {
	token, ok := t.idToToken[id]
	return token, ok
}

// AddedTokensList returns the list of added tokens sorted by ID.
func (t *Tokenizer) AddedTokensList() []AddedToken {
	result := make([]AddedToken, len(t.tokenizer.AddedTokens))
	copy(result, t.tokenizer.AddedTokens)
	sort.Slice(result, func(i, j int) bool {
		return result[i].ID < result[j].ID
	})
	return result
}
