// Package sentencepiece implements an api.Tokenizer based on a SentencePiece model file.
package sentencepiece

import (
	"strings"
	"sync"

	esentencepiece "github.com/eliben/go-sentencepiece"
	"github.com/gomlx/unkfix/tokenizers/api"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// New creates a SentencePiece tokenizer from a "tokenizer.model" file, which must be a
// SentencePiece Model proto.
func New(modelPath string) (*Tokenizer, error) {
	proc, err := esentencepiece.NewProcessorFromPath(modelPath)
	if err != nil {
		return nil, errors.Wrapf(err, "can't create sentencepiece tokenizer from %q", modelPath)
	}
	info := proc.ModelInfo()
	klog.V(1).Infof("sentencepiece: loaded model with %d pieces from %q", info.VocabularySize, modelPath)
	return &Tokenizer{
		Processor: proc,
		Info:      info,
	}, nil
}

// Tokenizer implements api.Tokenizer interface based on SentencePiece tokenizer by Google.
type Tokenizer struct {
	*esentencepiece.Processor
	Info *esentencepiece.ModelInfo

	// pieces caches the piece text of every id seen by Encode and EncodeWithSpans.
	pieces sync.Map

	vocabOnce sync.Once
	vocab     map[string]int
}

// Compile time assert that sentencepiece.Tokenizer implements the api interfaces.
var (
	_ api.Tokenizer          = &Tokenizer{}
	_ api.TokenizerWithSpans = &Tokenizer{}
	_ api.TokenizerWithVocab = &Tokenizer{}
)

// Encode returns the text encoded into a sequence of ids.
func (p *Tokenizer) Encode(text string) []int {
	tokens := p.Processor.Encode(text)
	ids := make([]int, len(tokens))
	for ii, tok := range tokens {
		ids[ii] = tok.ID
		p.pieces.Store(tok.ID, tok.Text)
	}
	return ids
}

// EncodeWithSpans returns the text encoded into a sequence of ids along with their byte spans.
// It implements api.TokenizerWithSpans.
//
// Pieces are matched back against the text: the leading metaspace of a piece stands for the
// whitespace preceding it, which is not part of the span.
func (p *Tokenizer) EncodeWithSpans(text string) api.EncodingResult {
	tokens := p.Processor.Encode(text)
	result := api.EncodingResult{
		IDs:   make([]int, len(tokens)),
		Spans: make([]api.TokenSpan, len(tokens)),
	}
	pos := 0
	for i, tok := range tokens {
		result.IDs[i] = tok.ID
		p.pieces.Store(tok.ID, tok.Text)
		content, hasLeadingSpace := strings.CutPrefix(tok.Text, api.WordBoundaryMarker)
		if hasLeadingSpace {
			for pos < len(text) && isSpace(text[pos]) {
				pos++
			}
		}
		if content == "" {
			// A bare metaspace: an empty span where the next word starts.
			result.Spans[i] = api.TokenSpan{Start: pos, End: pos}
			continue
		}
		start := pos
		if foundAt := strings.Index(text[pos:], content); foundAt >= 0 {
			start = pos + foundAt
			pos = start + len(content)
		} else {
			// Normalized or unknown piece: advance by its length.
			pos = min(pos+len(content), len(text))
		}
		result.Spans[i] = api.TokenSpan{Start: start, End: pos}
	}
	return result
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}

// Decode returns the text from a sequence of ids.
func (p *Tokenizer) Decode(ids []int) string {
	return p.Processor.Decode(ids)
}

// IDToToken returns the piece of id. Pieces of ids returned by an encoding are exact;
// others are recovered by decoding the id alone, which loses the word boundary marker.
func (p *Tokenizer) IDToToken(id int) (string, bool) {
	if piece, found := p.pieces.Load(id); found {
		return piece.(string), true
	}
	if id < 0 || id >= p.Info.VocabularySize {
		return "", false
	}
	return p.Processor.Decode([]int{id}), true
}

// GetVocab returns the mapping of pieces to ids, built with IDToToken on first use.
// Pieces only differing by the word boundary marker may collide, in which case the lowest
// id is kept.
//
// It implements api.TokenizerWithVocab.
func (p *Tokenizer) GetVocab() map[string]int {
	p.vocabOnce.Do(func() {
		p.vocab = make(map[string]int, p.Info.VocabularySize)
		for id := range p.Info.VocabularySize {
			piece, _ := p.IDToToken(id)
			if _, found := p.vocab[piece]; !found {
				p.vocab[piece] = id
			}
		}
	})
	vocab := make(map[string]int, len(p.vocab))
	for piece, id := range p.vocab {
		vocab[piece] = id
	}
	return vocab
}

// SpecialTokenID returns the token for the given symbol, or an error if not known.
func (p *Tokenizer) SpecialTokenID(token api.SpecialToken) (int, error) {
	switch token {
	case api.TokUnknown:
		return p.Info.UnknownID, nil
	case api.TokPad:
		return p.Info.PadID, nil
	case api.TokBeginningOfSentence:
		return p.Info.BeginningOfSentenceID, nil
	case api.TokEndOfSentence:
		return p.Info.EndOfSentenceID, nil
	default:
		return 0, errors.Errorf("unknown special token: %s (%d)", token, int(token))
	}
}
