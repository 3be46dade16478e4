// Package tokenizers loads the tokenizers usable for tokenizer-assisted span recovery.
//
// Implementations live in the sub-packages; this package picks one from the file type:
//
//   - "tokenizer.json" (any .json file): hftokenizer, the HuggingFace Tokenizers format.
//   - "tokenizer.model" or "spiece.model" (any .model file): sentencepiece.
//   - GGUF model files (.gguf): the tokenizer stored in their metadata, see package gguf.
package tokenizers

import (
	"path/filepath"
	"strings"

	"github.com/gomlx/unkfix/tokenizers/api"
	"github.com/gomlx/unkfix/tokenizers/gguf"
	"github.com/gomlx/unkfix/tokenizers/hftokenizer"
	"github.com/gomlx/unkfix/tokenizers/sentencepiece"
	"github.com/pkg/errors"
)

// Tokenizer is implemented by every tokenizer returned by Load: encoding with byte spans,
// plus access to the vocabulary.
type Tokenizer interface {
	api.TokenizerWithSpans
	GetVocab() map[string]int
}

// Load creates the tokenizer stored in filePath. config is optional and only used by
// tokenizer.json and GGUF files to resolve special tokens.
func Load(filePath string, config *api.Config) (Tokenizer, error) {
	var (
		tok Tokenizer
		err error
	)
	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".json":
		tok, err = hftokenizer.NewFromFile(config, filePath)
	case ".model":
		tok, err = sentencepiece.New(filePath)
	case ".gguf":
		tok, err = gguf.NewTokenizerFromFile(filePath, config)
	default:
		return nil, errors.Errorf("unknown tokenizer file type %q: expected a tokenizer.json, a SentencePiece .model or a .gguf file", filePath)
	}
	if err != nil {
		return nil, err
	}
	return tok, nil
}
