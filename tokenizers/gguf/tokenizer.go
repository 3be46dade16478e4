package gguf

import (
	"github.com/gomlx/unkfix/tokenizers/api"
	"github.com/gomlx/unkfix/tokenizers/hftokenizer"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Metadata keys of the tokenizer stored in GGUF files.
const (
	KeyTokenizerModel = "tokenizer.ggml.model"
	KeyTokens         = "tokenizer.ggml.tokens"
	KeyScores         = "tokenizer.ggml.scores"
	KeyTokenTypes     = "tokenizer.ggml.token_type"
	KeyMerges         = "tokenizer.ggml.merges"
	KeyUnknownID      = "tokenizer.ggml.unknown_token_id"
	KeyBosID          = "tokenizer.ggml.bos_token_id"
	KeyEosID          = "tokenizer.ggml.eos_token_id"
	KeyPaddingID      = "tokenizer.ggml.padding_token_id"
	KeyAddSpacePrefix = "tokenizer.ggml.add_space_prefix"
)

// TokenType classifies the entries of tokenizer.ggml.tokens.
type TokenType int

const (
	TokenTypeUndefined TokenType = iota
	TokenTypeNormal
	TokenTypeUnknown
	TokenTypeControl
	TokenTypeUserDefined
	TokenTypeUnused
	TokenTypeByte
)

// NewTokenizerFromFile reads the GGUF file in filePath and builds its tokenizer.
// See NewTokenizer.
func NewTokenizerFromFile(filePath string, config *api.Config) (*hftokenizer.Tokenizer, error) {
	f, err := Open(filePath)
	if err != nil {
		return nil, err
	}
	tok, err := NewTokenizer(f, config)
	if err != nil {
		return nil, errors.WithMessagef(err, "gguf file %q", filePath)
	}
	klog.V(1).Infof("gguf: loaded %s tokenizer with %d tokens from %q", tok.GetTokenizerType(), tok.VocabSize(), filePath)
	return tok, nil
}

// NewTokenizer builds the tokenizer described by the "tokenizer.ggml.*" metadata of f.
//
// Supported tokenizer models are "llama" (SentencePiece style: scored pieces with "▁" word
// boundaries, encoded here with Unigram Viterbi search) and "gpt2" (byte-level BPE).
//
// config is optional: if nil, the special tokens are taken from the GGUF metadata.
func NewTokenizer(f *File, config *api.Config) (*hftokenizer.Tokenizer, error) {
	modelKV, found := f.GetKeyValue(KeyTokenizerModel)
	if !found {
		return nil, errors.Errorf("gguf: no tokenizer in metadata (missing %q)", KeyTokenizerModel)
	}
	tokensKV, _ := f.GetKeyValue(KeyTokens)
	tokens := tokensKV.Strings()
	if len(tokens) == 0 {
		return nil, errors.Errorf("gguf: %q missing or empty", KeyTokens)
	}

	tj := &hftokenizer.TokenizerJSON{}
	tj.Model.Vocab.IDs = make(map[string]int, len(tokens))
	for id, token := range tokens {
		if _, dup := tj.Model.Vocab.IDs[token]; !dup {
			tj.Model.Vocab.IDs[token] = id
		}
	}

	typesKV, _ := f.GetKeyValue(KeyTokenTypes)
	for id, tokenType := range typesKV.Ints() {
		if id >= len(tokens) {
			break
		}
		switch TokenType(tokenType) {
		case TokenTypeUnknown, TokenTypeControl:
			tj.AddedTokens = append(tj.AddedTokens, hftokenizer.AddedToken{ID: id, Content: tokens[id], Special: true})
		case TokenTypeUserDefined:
			tj.AddedTokens = append(tj.AddedTokens, hftokenizer.AddedToken{ID: id, Content: tokens[id]})
		}
	}

	unkID := -1
	if kv, found := f.GetKeyValue(KeyUnknownID); found {
		unkID = int(kv.Int())
	}

	switch model := modelKV.String(); model {
	case "llama":
		scoresKV, _ := f.GetKeyValue(KeyScores)
		scores := scoresKV.Floats()
		if len(scores) != len(tokens) {
			return nil, errors.Errorf("gguf: %q has %d entries for %d tokens", KeyScores, len(scores), len(tokens))
		}
		tj.Model.Type = "Unigram"
		tj.Model.Vocab.Scores = scores
		prependScheme := "first"
		if kv, found := f.GetKeyValue(KeyAddSpacePrefix); found && !kv.Bool() {
			prependScheme = "never"
		}
		tj.PreTokenizer = &hftokenizer.PreTokenizer{
			Type:          "Metaspace",
			Replacement:   api.WordBoundaryMarker,
			PrependScheme: prependScheme,
		}
		tj.Decoder = &hftokenizer.Decoder{Type: "Metaspace", Replacement: api.WordBoundaryMarker}

	case "gpt2":
		mergesKV, _ := f.GetKeyValue(KeyMerges)
		tj.Model.Type = "BPE"
		tj.Model.Merges = mergesKV.Strings()
		tj.PreTokenizer = &hftokenizer.PreTokenizer{Type: "ByteLevel"}
		tj.Decoder = &hftokenizer.Decoder{Type: "ByteLevel"}

	default:
		return nil, errors.Errorf("gguf: unsupported tokenizer model %q", model)
	}
	if unkID >= 0 && unkID < len(tokens) {
		tj.Model.UnkID = &unkID
		tj.Model.UnkToken = tokens[unkID]
	}

	if config == nil {
		config = specialTokensConfig(f, tokens)
	}
	return hftokenizer.New(config, tj)
}

// specialTokensConfig returns a config with the special tokens declared in the metadata.
func specialTokensConfig(f *File, tokens []string) *api.Config {
	config := &api.Config{}
	for _, special := range []struct {
		key   string
		token *string
	}{
		{KeyUnknownID, &config.UnkToken},
		{KeyBosID, &config.BosToken},
		{KeyEosID, &config.EosToken},
		{KeyPaddingID, &config.PadToken},
	} {
		kv, found := f.GetKeyValue(special.key)
		if !found {
			continue
		}
		if id := int(kv.Int()); id >= 0 && id < len(tokens) {
			*special.token = tokens[id]
		}
	}
	return config
}
