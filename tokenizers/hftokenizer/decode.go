package hftokenizer

import (
	"strconv"
	"strings"

	"github.com/gomlx/unkfix/tokenizers/api"
)

// applyDecoder applies the decoder to convert tokens back to text.
func (t *Tokenizer) applyDecoder(tokens []string) string {
	d := t.tokenizer.Decoder
	if d == nil {
		return t.wordPieceDecode(tokens, t.tokenizer.Model.ContinuingSubwordPrefix)
	}
	switch d.Type {
	case "WordPiece":
		return t.wordPieceDecode(tokens, d.Prefix)
	case "ByteLevel":
		return byteLevelDecode(strings.Join(tokens, ""))
	case "Metaspace":
		return metaspaceDecode(tokens, d.Replacement)
	case "BPEDecoder":
		return t.bpeDecode(tokens)
	case "Sequence":
		for ii := range d.Decoders {
			tokens = applyDecoderStep(tokens, &d.Decoders[ii])
		}
		return strings.Join(tokens, "")
	default:
		return strings.Join(tokens, "")
	}
}

// applyDecoderStep applies one step of a "Sequence" decoder, token by token.
func applyDecoderStep(tokens []string, d *Decoder) []string {
	switch d.Type {
	case "Replace":
		if d.Pattern == nil || d.Pattern.String == "" {
			return tokens
		}
		result := make([]string, len(tokens))
		for ii, tok := range tokens {
			result[ii] = strings.ReplaceAll(tok, d.Pattern.String, d.Content)
		}
		return result
	case "Strip":
		result := make([]string, len(tokens))
		for ii, tok := range tokens {
			result[ii] = stripContent(tok, d.Content, d.Start, d.Stop)
		}
		return result
	case "ByteFallback":
		return byteFallbackDecode(tokens)
	case "Fuse":
		return []string{strings.Join(tokens, "")}
	case "Metaspace":
		return []string{metaspaceDecode(tokens, d.Replacement)}
	default:
		return tokens
	}
}

// stripContent removes up to start leading and stop trailing occurrences of content.
func stripContent(token, content string, start, stop int) string {
	if content == "" {
		return token
	}
	for range start {
		if !strings.HasPrefix(token, content) {
			break
		}
		token = token[len(content):]
	}
	for range stop {
		if !strings.HasSuffix(token, content) {
			break
		}
		token = token[:len(token)-len(content)]
	}
	return token
}

// byteFallbackDecode converts runs of "<0xHH>" tokens back to the bytes they stand for.
func byteFallbackDecode(tokens []string) []string {
	var result []string
	var pending []byte
	for _, tok := range tokens {
		if len(tok) == 6 && strings.HasPrefix(tok, "<0x") && strings.HasSuffix(tok, ">") {
			if b, err := strconv.ParseUint(tok[3:5], 16, 8); err == nil {
				pending = append(pending, byte(b))
				continue
			}
		}
		if len(pending) > 0 {
			result = append(result, string(pending))
			pending = nil
		}
		result = append(result, tok)
	}
	if len(pending) > 0 {
		result = append(result, string(pending))
	}
	return result
}

func (t *Tokenizer) wordPieceDecode(tokens []string, prefix string) string {
	if prefix == "" {
		prefix = "##"
	}
	var result strings.Builder
	for i, token := range tokens {
		if strings.HasPrefix(token, prefix) {
			result.WriteString(strings.TrimPrefix(token, prefix))
			continue
		}
		if i > 0 {
			result.WriteString(" ")
		}
		result.WriteString(token)
	}
	return result.String()
}

func metaspaceDecode(tokens []string, replacement string) string {
	if replacement == "" {
		replacement = api.WordBoundaryMarker
	}
	decoded := strings.ReplaceAll(strings.Join(tokens, ""), replacement, " ")
	return strings.TrimPrefix(decoded, " ")
}

func (t *Tokenizer) bpeDecode(tokens []string) string {
	suffix := t.tokenizer.Model.EndOfWordSuffix
	var result strings.Builder
	for i, token := range tokens {
		if suffix != "" && strings.HasSuffix(token, suffix) {
			result.WriteString(strings.TrimSuffix(token, suffix))
			if i < len(tokens)-1 {
				result.WriteString(" ")
			}
		} else {
			result.WriteString(token)
		}
	}
	return result.String()
}

func byteLevelDecode(text string) string {
	result := make([]byte, 0, len(text))
	for _, r := range text {
		if b, ok := unicodeToByte[r]; ok {
			result = append(result, b)
		} else {
			result = append(result, string(r)...)
		}
	}
	return string(result)
}
