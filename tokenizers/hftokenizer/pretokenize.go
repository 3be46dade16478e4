package hftokenizer

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/gomlx/unkfix/tokenizers/api"
	"golang.org/x/text/unicode/norm"
)

// word is a pre-tokenized piece of the text, ready to be tokenized by the model.
type word struct {
	// input is what the model tokenizes: the normalized surface, possibly with a metaspace
	// prefix or mapped to byte-level characters.
	input string

	// start, end is the byte range of the word in the original text.
	start, end int

	// offsets[i] is the byte position in the original text of input byte i, with
	// len(input)+1 entries. Only valid if aligned.
	offsets []int
	aligned bool
}

// span returns the position in the original text of the model piece p.
func (w *word) span(p piece) api.TokenSpan {
	if !w.aligned {
		return api.TokenSpan{Start: w.start, End: w.end}
	}
	return api.TokenSpan{Start: w.offsets[p.start], End: w.offsets[p.end]}
}

// textRange is a byte range of the original text being split by the pre-tokenizers.
type textRange struct {
	start, end int
}

// preTokenize splits text[start:end] into words.
func (t *Tokenizer) preTokenize(text string, start, end int) []word {
	steps := flattenPreTokenizers(t.tokenizer.PreTokenizer)
	ranges := []textRange{{start, end}}
	var encoding *PreTokenizer
	if len(steps) == 0 {
		ranges = splitRanges(text, ranges, splitWhitespace)
	}
	for _, step := range steps {
		switch step.Type {
		case "BertPreTokenizer":
			ranges = splitRanges(text, ranges, splitBert)
		case "Whitespace":
			ranges = splitRanges(text, ranges, splitWordsAndSymbols)
		case "Punctuation":
			ranges = splitRanges(text, ranges, splitPunctuation)
		case "Metaspace":
			ranges = splitRanges(text, ranges, splitWhitespace)
			encoding = step
		case "ByteLevel":
			ranges = splitRanges(text, ranges, splitSpaceAttached)
			encoding = step
		default:
			// WhitespaceSplit, Split and anything unknown.
			ranges = splitRanges(text, ranges, splitWhitespace)
		}
	}

	words := make([]word, 0, len(ranges))
	for ii, r := range ranges {
		surface := text[r.start:r.end]
		normalized := surface
		if t.tokenizer.Normalizer != nil {
			normalized = t.applyNormalizer(surface, t.tokenizer.Normalizer)
			if ii == 0 && r.start == 0 {
				normalized = prependNormalizer(t.tokenizer.Normalizer) + normalized
			}
		}
		if normalized == "" {
			continue
		}
		w := word{start: r.start, end: r.end, aligned: len(normalized) == len(surface)}
		switch {
		case encoding != nil && encoding.Type == "Metaspace":
			prefix := ""
			if metaspacePrefixed(text, r.start, start, encoding) {
				prefix = metaspaceReplacement(encoding)
			}
			w.input = prefix + normalized
			w.offsets = make([]int, 0, len(w.input)+1)
			for range len(prefix) {
				w.offsets = append(w.offsets, r.start)
			}
			for i := range len(normalized) + 1 {
				w.offsets = append(w.offsets, r.start+i)
			}
		case encoding != nil && encoding.Type == "ByteLevel":
			var sb strings.Builder
			w.offsets = make([]int, 0, 2*len(normalized)+3)
			if ii == 0 && encoding.AddPrefixSpace && r.start == start && !strings.HasPrefix(normalized, " ") {
				w.offsets = appendRuneOffsets(w.offsets, byteToUnicode[' '], r.start)
				sb.WriteRune(byteToUnicode[' '])
			}
			for i := range len(normalized) {
				mapped := byteToUnicode[normalized[i]]
				w.offsets = appendRuneOffsets(w.offsets, mapped, r.start+i)
				sb.WriteRune(mapped)
			}
			w.offsets = append(w.offsets, r.end)
			w.input = sb.String()
		default:
			w.input = normalized
			w.offsets = make([]int, len(normalized)+1)
			for i := range w.offsets {
				w.offsets[i] = r.start + i
			}
		}
		words = append(words, w)
	}
	return words
}

// appendRuneOffsets appends offset once per byte of the UTF-8 encoding of r.
func appendRuneOffsets(offsets []int, r rune, offset int) []int {
	for range utf8.RuneLen(r) {
		offsets = append(offsets, offset)
	}
	return offsets
}

func flattenPreTokenizers(pt *PreTokenizer) []*PreTokenizer {
	if pt == nil {
		return nil
	}
	if pt.Type != "Sequence" {
		return []*PreTokenizer{pt}
	}
	var steps []*PreTokenizer
	for ii := range pt.PreTokenizers {
		steps = append(steps, flattenPreTokenizers(&pt.PreTokenizers[ii])...)
	}
	return steps
}

// metaspaceReplacement returns the word boundary marker used by the Metaspace pre-tokenizer.
func metaspaceReplacement(pt *PreTokenizer) string {
	if pt.Replacement != "" {
		return pt.Replacement
	}
	return api.WordBoundaryMarker
}

// metaspacePrefixed reports whether the word starting at pos gets a metaspace prefix: words
// following whitespace always do, the first word of a segment depends on the prepend scheme.
func metaspacePrefixed(text string, pos, segmentStart int, pt *PreTokenizer) bool {
	if pos > 0 {
		prev, _ := utf8.DecodeLastRuneInString(text[:pos])
		if isWhitespace(prev) {
			return true
		}
	}
	if pos != segmentStart {
		return false
	}
	switch pt.PrependScheme {
	case "always":
		return true
	case "first":
		return pos == 0
	case "never":
		return false
	default:
		return pt.AddPrefixSpace
	}
}

type splitFn func(text string, r textRange) []textRange

func splitRanges(text string, ranges []textRange, split splitFn) []textRange {
	var result []textRange
	for _, r := range ranges {
		result = append(result, split(text, r)...)
	}
	return result
}

// splitByClass cuts r into maximal runs of runes of the same class, dropping class 0 runs.
// Runs of the isolated class are cut into single runes.
func splitByClass(text string, r textRange, class func(rune) int, isolated int) []textRange {
	var result []textRange
	runStart, runClass := r.start, -1
	flush := func(end int) {
		if runClass > 0 && runStart < end {
			result = append(result, textRange{runStart, end})
		}
	}
	for pos := r.start; pos < r.end; {
		c, size := utf8.DecodeRuneInString(text[pos:r.end])
		cls := class(c)
		if cls != runClass || cls == isolated {
			flush(pos)
			runStart, runClass = pos, cls
		}
		pos += size
	}
	flush(r.end)
	return result
}

func splitWhitespace(text string, r textRange) []textRange {
	return splitByClass(text, r, func(c rune) int {
		if isWhitespace(c) {
			return 0
		}
		return 1
	}, -1)
}

// splitWordsAndSymbols implements the "Whitespace" pre-tokenizer: `\w+|[^\w\s]+`.
func splitWordsAndSymbols(text string, r textRange) []textRange {
	return splitByClass(text, r, func(c rune) int {
		switch {
		case isWhitespace(c):
			return 0
		case c == '_' || unicode.IsLetter(c) || unicode.IsDigit(c) || unicode.Is(unicode.Mn, c):
			return 1
		default:
			return 2
		}
	}, -1)
}

func splitBert(text string, r textRange) []textRange {
	return splitByClass(text, r, func(c rune) int {
		switch {
		case isWhitespace(c):
			return 0
		case isPunctuation(c):
			return 2
		default:
			return 1
		}
	}, 2)
}

func splitPunctuation(text string, r textRange) []textRange {
	return splitByClass(text, r, func(c rune) int {
		if isPunctuation(c) {
			return 2
		}
		return 1
	}, 2)
}

// splitSpaceAttached splits on spaces, each space staying attached to the word that follows.
func splitSpaceAttached(text string, r textRange) []textRange {
	var result []textRange
	wordStart := r.start
	for pos := r.start; pos < r.end; pos++ {
		if text[pos] == ' ' && pos > wordStart {
			result = append(result, textRange{wordStart, pos})
			wordStart = pos
		}
	}
	if wordStart < r.end {
		result = append(result, textRange{wordStart, r.end})
	}
	return result
}

func (t *Tokenizer) applyNormalizer(text string, n *Normalizer) string {
	switch n.Type {
	case "Lowercase":
		return strings.ToLower(text)
	case "NFD":
		return norm.NFD.String(text)
	case "NFC":
		return norm.NFC.String(text)
	case "NFKC":
		return norm.NFKC.String(text)
	case "NFKD":
		return norm.NFKD.String(text)
	case "StripAccents":
		return removeAccents(norm.NFD.String(text))
	case "BertNormalizer":
		result := cleanText(text)
		if n.Lowercase {
			result = removeAccents(norm.NFD.String(strings.ToLower(result)))
		}
		return result
	case "Replace":
		if n.Pattern != nil && n.Pattern.String != "" {
			return strings.ReplaceAll(text, n.Pattern.String, n.Content)
		}
		return text
	case "Sequence":
		result := text
		for ii := range n.Normalizers {
			result = t.applyNormalizer(result, &n.Normalizers[ii])
		}
		return result
	default:
		// Prepend is applied once per text, see prependNormalizer.
		return text
	}
}

// prependNormalizer returns what a "Prepend" normalizer adds in front of the text.
func prependNormalizer(n *Normalizer) string {
	switch n.Type {
	case "Prepend":
		return n.Prepend
	case "Sequence":
		var prefix string
		for ii := range n.Normalizers {
			prefix += prependNormalizer(&n.Normalizers[ii])
		}
		return prefix
	}
	return ""
}

func cleanText(text string) string {
	var result strings.Builder
	for _, r := range text {
		if r == 0 || r == utf8.RuneError || isControl(r) {
			continue
		}
		if isWhitespace(r) {
			result.WriteRune(' ')
		} else {
			result.WriteRune(r)
		}
	}
	return result.String()
}

func isWhitespace(r rune) bool {
	if r == ' ' || r == '\t' || r == '\n' || r == '\r' {
		return true
	}
	return unicode.Is(unicode.Zs, r)
}

func isControl(r rune) bool {
	if r == '\t' || r == '\n' || r == '\r' {
		return false
	}
	return unicode.IsControl(r)
}

func isPunctuation(r rune) bool {
	// ASCII punctuation
	if (r >= 33 && r <= 47) || (r >= 58 && r <= 64) ||
		(r >= 91 && r <= 96) || (r >= 123 && r <= 126) {
		return true
	}
	return unicode.IsPunct(r)
}

func removeAccents(text string) string {
	var result strings.Builder
	for _, r := range text {
		if !unicode.Is(unicode.Mn, r) { // Mn = Mark, Nonspacing
			result.WriteRune(r)
		}
	}
	return result.String()
}

// GPT-2 byte-level BPE maps every byte to a printable rune.
var (
	byteToUnicode [256]rune
	unicodeToByte = make(map[rune]byte, 256)
)

func init() {
	n := 0
	for b := 0; b < 256; b++ {
		if (b >= '!' && b <= '~') || (b >= 0xa1 && b <= 0xac) || (b >= 0xae && b <= 0xff) {
			byteToUnicode[b] = rune(b)
		} else {
			byteToUnicode[b] = rune(256 + n)
			n++
		}
		unicodeToByte[byteToUnicode[b]] = byte(b)
	}
}
