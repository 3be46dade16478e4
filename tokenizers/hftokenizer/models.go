package hftokenizer

import (
	"math"
	"unicode/utf8"
)

// piece is a token produced by the model from input[start:end] of a word.
type piece struct {
	id         int
	start, end int
}

// tokenizeWord tokenizes a single word according to the model type.
func (t *Tokenizer) tokenizeWord(input string) []piece {
	if input == "" {
		return nil
	}
	if id, ok := t.addedTokens[input]; ok {
		return []piece{{id, 0, len(input)}}
	}
	switch t.tokenizer.Model.Type {
	case "WordPiece":
		return t.wordPieceTokenize(input)
	case "BPE":
		return t.bpeTokenize(input)
	default:
		return t.unigramTokenize(input)
	}
}

// unknownPiece returns the unknown token for input[start:end], or nil if the model has none.
func (t *Tokenizer) unknownPiece(start, end int) []piece {
	if t.unkID < 0 {
		return nil
	}
	return []piece{{t.unkID, start, end}}
}

// wordPieceTokenize implements WordPiece tokenization (used by BERT): greedy longest match,
// with continuation pieces prefixed by "##". A word with any unmatched part becomes one
// unknown token.
func (t *Tokenizer) wordPieceTokenize(word string) []piece {
	maxChars := t.tokenizer.Model.MaxInputCharsPerWord
	if maxChars == 0 {
		maxChars = 100
	}
	if utf8.RuneCountInString(word) > maxChars {
		return t.unknownPiece(0, len(word))
	}

	prefix := t.tokenizer.Model.ContinuingSubwordPrefix
	if prefix == "" {
		prefix = "##"
	}

	var pieces []piece
	for start := 0; start < len(word); {
		found := false
		for end := len(word); end > start; {
			substr := word[start:end]
			if start > 0 {
				substr = prefix + substr
			}
			if id, ok := t.tokenizer.Model.Vocab.IDs[substr]; ok {
				pieces = append(pieces, piece{id, start, end})
				start = end
				found = true
				break
			}
			_, size := utf8.DecodeLastRuneInString(word[start:end])
			end -= size
		}
		if !found {
			return t.unknownPiece(0, len(word))
		}
	}
	return pieces
}

// bpeSymbol is a BPE symbol spanning input[start:end].
type bpeSymbol struct {
	text       string
	start, end int
}

// bpeTokenize implements BPE tokenization (used by GPT-2, RoBERTa): starting from single
// characters, repeatedly merge the adjacent pair with the lowest merge rank.
func (t *Tokenizer) bpeTokenize(word string) []piece {
	symbols := make([]bpeSymbol, 0, len(word))
	for pos, r := range word {
		symbols = append(symbols, bpeSymbol{string(r), pos, pos + utf8.RuneLen(r)})
	}
	if suffix := t.tokenizer.Model.EndOfWordSuffix; suffix != "" {
		symbols[len(symbols)-1].text += suffix
	}

	for len(symbols) > 1 {
		bestRank, bestIdx := -1, -1
		for i := 0; i < len(symbols)-1; i++ {
			rank, ok := t.mergeRanks[symbols[i].text+" "+symbols[i+1].text]
			if ok && (bestRank == -1 || rank < bestRank) {
				bestRank, bestIdx = rank, i
			}
		}
		if bestIdx == -1 {
			break // No more merges possible
		}
		left, right := symbols[bestIdx], symbols[bestIdx+1]
		symbols[bestIdx] = bpeSymbol{left.text + right.text, left.start, right.end}
		symbols = append(symbols[:bestIdx+1], symbols[bestIdx+2:]...)
	}

	var pieces []piece
	for _, sym := range symbols {
		if id, ok := t.tokenizer.Model.Vocab.IDs[sym.text]; ok {
			pieces = append(pieces, piece{id, sym.start, sym.end})
		} else if t.unkID >= 0 {
			pieces = append(pieces, piece{t.unkID, sym.start, sym.end})
		}
	}
	return pieces
}

// unigramTokenize implements Unigram tokenization (used by T5, ALBERT): the Viterbi
// segmentation maximizing the sum of piece scores. Characters not covered by any piece
// become unknown tokens; consecutive unknown characters are fused into one.
func (t *Tokenizer) unigramTokenize(word string) []piece {
	type node struct {
		score   float64
		start   int // start of the best piece ending here
		unknown bool
	}
	best := make([]node, len(word)+1)
	for i := 1; i <= len(word); i++ {
		best[i].score = math.Inf(-1)
	}
	scores := t.tokenizer.Model.Vocab.Scores
	for start := 0; start < len(word); {
		_, charSize := utf8.DecodeRuneInString(word[start:])
		if !math.IsInf(best[start].score, -1) {
			coveredChar := false
			for end := start; end < len(word); {
				_, size := utf8.DecodeRuneInString(word[end:])
				end += size
				if end-start > t.maxPieceLen {
					break
				}
				id, ok := t.tokenizer.Model.Vocab.IDs[word[start:end]]
				if !ok || id >= len(scores) {
					continue
				}
				if end == start+charSize {
					coveredChar = true
				}
				if score := best[start].score + scores[id]; score > best[end].score {
					best[end] = node{score: score, start: start}
				}
			}
			if !coveredChar {
				end := start + charSize
				if score := best[start].score + t.unknownScore; score > best[end].score {
					best[end] = node{score: score, start: start, unknown: true}
				}
			}
		}
		start += charSize
	}

	// Backtrack from the end of the word, fusing consecutive unknown characters.
	var reversed []piece
	lastUnknown := false
	for end := len(word); end > 0; {
		n := best[end]
		switch {
		case n.unknown && lastUnknown:
			reversed[len(reversed)-1].start = n.start
		case n.unknown:
			reversed = append(reversed, piece{t.unkID, n.start, end})
		default:
			reversed = append(reversed, piece{t.tokenizer.Model.Vocab.IDs[word[n.start:end]], n.start, end})
		}
		lastUnknown = n.unknown
		end = n.start
	}
	pieces := make([]piece, 0, len(reversed))
	for i := len(reversed) - 1; i >= 0; i-- {
		if reversed[i].id < 0 {
			// Without an unknown token, unknown characters are dropped.
			continue
		}
		pieces = append(pieces, reversed[i])
	}
	return pieces
}
