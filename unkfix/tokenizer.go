package unkfix

import (
	"k8s.io/klog/v2"
)

// ReverseVocab builds the id to token mapping of vocab.
func ReverseVocab(vocab map[string]int) map[int]string {
	id2token := make(map[int]string, len(vocab))
	for token, id := range vocab {
		id2token[id] = token
	}
	return id2token
}

// tokenLookup is implemented by tokenizers mapping ids to tokens directly, which spares
// building the reverse of the whole vocabulary.
type tokenLookup interface {
	IDToToken(id int) (string, bool)
}

// tokensOf returns the id to token mapping covering at least ids.
func (f *Fixer) tokensOf(ids []int) map[int]string {
	lookup, ok := f.tokenizer.(tokenLookup)
	if !ok {
		return f.reverseVocab()
	}
	id2token := make(map[int]string, len(ids))
	for _, id := range ids {
		if _, done := id2token[id]; done {
			continue
		}
		if token, found := lookup.IDToToken(id); found {
			id2token[id] = token
		}
	}
	return id2token
}

func (f *Fixer) reverseVocab() map[int]string {
	f.vocabOnce.Do(func() {
		f.id2token = ReverseVocab(f.tokenizer.GetVocab())
	})
	return f.id2token
}

// fixWithTokenizer narrows the search to the text region covered by the tokens matching
// span, and refines it with the forward pattern.
//
// The token match is attempted with the raw span, placeholder included: it only hits when
// the decoded tokens contain the placeholder literally. Any other case goes to the
// tokenizer-free search over the whole text.
func (f *Fixer) fixWithTokenizer(span, text string) string {
	encoding := f.tokenizer.EncodeWithSpans(text)
	first, last, found := MatchSublist(encoding.IDs, span, f.tokensOf(encoding.IDs))
	if !found {
		klog.V(2).Infof("unkfix: span %q not found in tokens, falling back to text search", span)
		return f.fixWithoutTokenizer(span, text)
	}
	if last >= len(encoding.Spans) {
		klog.Warningf("unkfix: tokenizer returned %d spans for %d ids, falling back to text search",
			len(encoding.Spans), len(encoding.IDs))
		return f.fixWithoutTokenizer(span, text)
	}
	start, end := encoding.Spans[first].Start, encoding.Spans[last].End
	if start < 0 || end > len(text) || start > end {
		klog.Warningf("unkfix: invalid token offsets [%d, %d) for text of %d bytes, falling back to text search",
			start, end, len(text))
		return f.fixWithoutTokenizer(span, text)
	}
	region := text[start:end]

	p, err := CompilePattern(span, f.unk, f.matchTimeout)
	if err != nil {
		klog.Warningf("unkfix: %+v", err)
		return span
	}
	fixed, found := p.Forward(region)
	if !found {
		klog.V(2).Infof("unkfix: span %q not found in token region %q", span, region)
		return span
	}
	return fixed
}
