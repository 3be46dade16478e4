// Package unkfix recovers the source text hidden behind unknown-token placeholders in
// generated spans.
//
// A sequence-to-sequence model emits "<unk>" when the text it should copy contains characters
// outside its vocabulary. Given the generated span and the source text it was extracted from,
// unkfix finds the substring of the source the span stands for:
//
//	unkfix.FixFromText("Arr<unk> s negre", "The main ingredients of Arròs negre , ...", "", nil)
//	// "Arròs negre"
//
// Without a tokenizer the span is turned into a wildcard pattern searched over the text.
// With a tokenizer, token offsets are used first to narrow the region of the text to search.
//
// Recovery never fails: whenever no match is found the span is returned unchanged.
package unkfix

import (
	"strings"
	"sync"
	"time"

	"github.com/gomlx/unkfix/tokenizers/api"
	"k8s.io/klog/v2"
)

// DefaultUnknown is the placeholder marker used when none is configured.
const DefaultUnknown = "<unk>"

// Tokenizer is the capability required for tokenizer-assisted recovery: encoding with byte
// offsets into the encoded text, and the vocabulary the ids refer to.
//
// Both hftokenizer.Tokenizer and sentencepiece.Tokenizer implement it.
type Tokenizer interface {
	EncodeWithSpans(text string) api.EncodingResult
	GetVocab() map[string]int
}

// Fixer recovers spans with a fixed configuration. Create it with New and configure it with
// the With* methods before use.
//
// A Fixer is safe for concurrent use, provided its Tokenizer is.
type Fixer struct {
	unk          string
	tokenizer    Tokenizer
	matchTimeout time.Duration

	vocabOnce sync.Once
	id2token  map[int]string
}

// New creates a Fixer using DefaultUnknown and no tokenizer.
func New() *Fixer {
	return &Fixer{unk: DefaultUnknown}
}

// WithUnknown sets the placeholder marker. An empty value resets it to DefaultUnknown.
func (f *Fixer) WithUnknown(unk string) *Fixer {
	if unk == "" {
		unk = DefaultUnknown
	}
	f.unk = unk
	return f
}

// WithTokenizer enables tokenizer-assisted recovery. A nil tokenizer disables it.
func (f *Fixer) WithTokenizer(tokenizer Tokenizer) *Fixer {
	f.tokenizer = tokenizer
	f.vocabOnce = sync.Once{}
	f.id2token = nil
	return f
}

// WithMatchTimeout bounds the time of each pattern search. A search that times out counts
// as no match. Default is 0, no limit.
func (f *Fixer) WithMatchTimeout(timeout time.Duration) *Fixer {
	f.matchTimeout = timeout
	return f
}

// Unknown returns the placeholder marker in use.
func (f *Fixer) Unknown() string {
	return f.unk
}

// Fix returns the substring of text that span stands for, or span itself if span has no
// placeholder, text is not valid UTF-8, or no match is found.
func (f *Fixer) Fix(span, text string) string {
	if !strings.Contains(span, f.unk) || !validText(text) {
		return span
	}
	if f.tokenizer != nil {
		klog.V(2).Infof("unkfix: tokenizer-assisted recovery of %q", span)
		return f.fixWithTokenizer(span, text)
	}
	klog.V(2).Infof("unkfix: tokenizer-free recovery of %q", span)
	return f.fixWithoutTokenizer(span, text)
}

// FixFromText fixes the placeholders unk in span using text. An empty unk means
// DefaultUnknown; a nil tokenizer selects tokenizer-free recovery.
//
// For repeated calls with the same tokenizer, prefer a Fixer, which caches the reverse
// vocabulary.
func FixFromText(span, text, unk string, tokenizer Tokenizer) string {
	return New().WithUnknown(unk).WithTokenizer(tokenizer).Fix(span, text)
}
