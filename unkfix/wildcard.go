package unkfix

import (
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dlclark/regexp2"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

const (
	// wildcard stands for the text hidden by a placeholder: at least one non-whitespace character,
	// with optional surrounding whitespace.
	wildcard = `\s*\S+\s*`

	// lazyWildcard is wildcard preferring the shortest expansion.
	lazyWildcard = `\s*\S+?\s*`
)

// Pattern is the compiled wildcard form of a span: the literal fragments between placeholders,
// joined by wildcards.
//
// The expressions are compiled with regexp2 so that `\s` and `\S` are Unicode aware.
type Pattern struct {
	fragments []string
	forward   *regexp2.Regexp
	reverse   *regexp2.Regexp
}

// CompilePattern splits span on the placeholder unk and compiles its forward and reverse
// expressions. Fragments are trimmed and escaped, so any span yields a valid expression.
//
// matchTimeout bounds each individual search, 0 means no limit.
func CompilePattern(span, unk string, matchTimeout time.Duration) (*Pattern, error) {
	if unk == "" {
		return nil, errors.New("empty placeholder marker")
	}
	parts := strings.Split(span, unk)
	p := &Pattern{fragments: make([]string, len(parts))}
	forwardParts := make([]string, len(parts))
	reverseParts := make([]string, len(parts))
	for ii, part := range parts {
		fragment := strings.TrimSpace(part)
		p.fragments[ii] = fragment
		forwardParts[ii] = escape(fragment)
		// Reverse pattern lists the fragments last to first, each one spelled backwards.
		reverseParts[len(parts)-1-ii] = escape(reverseRunes(fragment))
	}

	var err error
	p.forward, err = regexp2.Compile(strings.Join(forwardParts, wildcard), regexp2.None)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to compile forward pattern for span %q", span)
	}
	p.reverse, err = regexp2.Compile(strings.Join(reverseParts, lazyWildcard), regexp2.None)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to compile reverse pattern for span %q", span)
	}
	if matchTimeout > 0 {
		p.forward.MatchTimeout = matchTimeout
		p.reverse.MatchTimeout = matchTimeout
	}
	return p, nil
}

// escape quotes the metacharacters of fragment and leaves every other rune literal.
//
// regexp2.Escape is not used: it writes non-printable runes as `\u` with unpadded hex digits,
// which the parser reads back as a different rune (U+061C followed by "b" becomes U+61CB).
// The metacharacters quoted by regexp.QuoteMeta are all valid escapes for regexp2.
func escape(fragment string) string {
	return regexp.QuoteMeta(fragment)
}

// Fragments returns the trimmed literal fragments of the span, in span order.
func (p *Pattern) Fragments() []string {
	return append([]string(nil), p.fragments...)
}

// Forward returns the leftmost match of the forward pattern in text, trimmed of surrounding
// whitespace.
func (p *Pattern) Forward(text string) (string, bool) {
	match, ok := findString(p.forward, text)
	if !ok {
		return "", false
	}
	return strings.TrimSpace(match), true
}

// Reverse searches the lazy reverse pattern in the reversed text, and returns the match
// turned back into reading order, trimmed of surrounding whitespace.
//
// Scanning from the end of the text with a lazy wildcard yields the tightest expansion of
// the placeholders.
func (p *Pattern) Reverse(text string) (string, bool) {
	match, ok := findString(p.reverse, reverseRunes(text))
	if !ok {
		return "", false
	}
	return strings.TrimSpace(reverseRunes(match)), true
}

func findString(re *regexp2.Regexp, text string) (string, bool) {
	m, err := re.FindStringMatch(text)
	if err != nil {
		// Only a match timeout gets here.
		klog.V(1).Infof("unkfix: search of %q aborted: %v", re.String(), err)
		return "", false
	}
	if m == nil {
		return "", false
	}
	return m.String(), true
}

// FixWithoutTokenizer recovers the text behind the placeholders of span by searching
// text with the reverse wildcard pattern.
//
// It returns span unchanged if it holds no placeholder, if text is not valid UTF-8, or if no
// match is found.
func FixWithoutTokenizer(span, text, unk string) string {
	return New().WithUnknown(unk).fixWithoutTokenizer(span, text)
}

func (f *Fixer) fixWithoutTokenizer(span, text string) string {
	if !strings.Contains(span, f.unk) || !validText(text) {
		return span
	}
	p, err := CompilePattern(span, f.unk, f.matchTimeout)
	if err != nil {
		klog.Warningf("unkfix: %+v", err)
		return span
	}
	fixed, found := p.Reverse(text)
	if !found {
		klog.V(2).Infof("unkfix: no match for span %q", span)
		return span
	}
	return fixed
}

// validText reports whether text is valid UTF-8. Searches work on code points, so invalid bytes
// would come back as U+FFFD and the result would no longer be a substring of text.
func validText(text string) bool {
	if utf8.ValidString(text) {
		return true
	}
	klog.Warningf("unkfix: text is not valid UTF-8, spans are returned unchanged")
	return false
}

// reverseRunes reverses s by code point.
func reverseRunes(s string) string {
	runes := []rune(s)
	for i, j := 0, len(runes)-1; i < j; i, j = i+1, j-1 {
		runes[i], runes[j] = runes[j], runes[i]
	}
	return string(runes)
}
