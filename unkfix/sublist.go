package unkfix

import (
	"strings"

	"github.com/gomlx/unkfix/tokenizers/api"
)

// MatchSublist locates target within the text decoded from ids, and returns the inclusive
// range of token indices that produced the match.
//
// Tokens are decoded with id2token and stripped of the word boundary marker ("▁"), so the
// decoded text has no word separators: target must appear literally and contiguously in it.
// Ids missing from id2token decode to nothing. An empty target never matches.
func MatchSublist(ids []int, target string, id2token map[int]string) (start, end int, found bool) {
	if target == "" {
		return 0, 0, false
	}
	var decoded strings.Builder
	// tokenOf[i] is the index of the token that produced byte i of decoded.
	var tokenOf []int
	for tokenIdx, id := range ids {
		token := strings.ReplaceAll(id2token[id], api.WordBoundaryMarker, "")
		decoded.WriteString(token)
		for range len(token) {
			tokenOf = append(tokenOf, tokenIdx)
		}
	}
	index := strings.Index(decoded.String(), target)
	if index < 0 {
		return 0, 0, false
	}
	return tokenOf[index], tokenOf[index+len(target)-1], true
}
