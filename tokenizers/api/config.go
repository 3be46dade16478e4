package api

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"
)

// Config holds the special token strings of a tokenizer, as found in a
// HuggingFace "tokenizer_config.json" file.
//
// Special tokens in that file are either plain strings or objects with a "content" field
// (AddedToken serialization); both are accepted.
type Config struct {
	TokenizerClass string  `json:"tokenizer_class"`
	ModelMaxLength float64 `json:"model_max_length"`

	UnkToken  string `json:"-"`
	PadToken  string `json:"-"`
	BosToken  string `json:"-"`
	EosToken  string `json:"-"`
	ClsToken  string `json:"-"`
	SepToken  string `json:"-"`
	MaskToken string `json:"-"`
}

// LoadConfig reads a tokenizer_config.json file.
func LoadConfig(filePath string) (*Config, error) {
	content, err := os.ReadFile(filePath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read tokenizer config %q", filePath)
	}
	return ParseConfig(content)
}

// ParseConfig parses the content of a tokenizer_config.json file.
func ParseConfig(content []byte) (*Config, error) {
	config := &Config{}
	if err := json.Unmarshal(content, config); err != nil {
		return nil, errors.Wrapf(err, "failed to parse tokenizer config")
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(content, &raw); err != nil {
		return nil, errors.Wrapf(err, "failed to parse tokenizer config")
	}
	fields := []struct {
		key string
		dst *string
	}{
		{"unk_token", &config.UnkToken},
		{"pad_token", &config.PadToken},
		{"bos_token", &config.BosToken},
		{"eos_token", &config.EosToken},
		{"cls_token", &config.ClsToken},
		{"sep_token", &config.SepToken},
		{"mask_token", &config.MaskToken},
	}
	for _, f := range fields {
		value, found := raw[f.key]
		if !found {
			continue
		}
		token, err := specialTokenContent(value)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid %q in tokenizer config", f.key)
		}
		*f.dst = token
	}
	return config, nil
}

// specialTokenContent accepts `"<unk>"`, `{"content": "<unk>", ...}` or `null`.
func specialTokenContent(value json.RawMessage) (string, error) {
	if string(value) == "null" {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(value, &s); err == nil {
		return s, nil
	}
	var added struct {
		Content string `json:"content"`
	}
	if err := json.Unmarshal(value, &added); err != nil {
		return "", errors.Errorf("expected string or object with \"content\", got %s", string(value))
	}
	return added.Content, nil
}
