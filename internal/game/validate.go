package game

import (
	"time"

	"example.com/sb-mvp/internal/puzzle"
)

// ResultsValidator is the single seam between client-submitted results and
// the state machine. The default implementation trusts the client; a
// stricter one can recompute everything from the authoritative puzzle
// without the state machine noticing.
type ResultsValidator interface {
	Validate(p *puzzle.Puzzle, words []SubmittedWord, totalScore int) ([]SubmittedWord, int)
}

// TrustResults accepts the submitted word list and score verbatim. It only
// stamps missing submission times.
type TrustResults struct{}

func (TrustResults) Validate(_ *puzzle.Puzzle, words []SubmittedWord, totalScore int) ([]SubmittedWord, int) {
	now := time.Now()
	out := append([]SubmittedWord(nil), words...)
	for i := range out {
		if out[i].SubmittedAt.IsZero() {
			out[i].SubmittedAt = now
		}
	}
	return out, totalScore
}

// RecomputeResults rebuilds points and pangram flags from the puzzle and
// drops words that are not answers. Not wired by default; kept behind the
// same seam for a stricter deployment.
type RecomputeResults struct{}

func (RecomputeResults) Validate(p *puzzle.Puzzle, words []SubmittedWord, _ int) ([]SubmittedWord, int) {
	now := time.Now()
	out := make([]SubmittedWord, 0, len(words))
	total := 0
	for _, w := range words {
		if p == nil || !p.IsValidWord(w.Word) {
			continue
		}
		w.Points = p.Points(w.Word)
		w.IsPangram = p.IsPangram(w.Word)
		if w.SubmittedAt.IsZero() {
			w.SubmittedAt = now
		}
		out = append(out, w)
		total += w.Points
	}
	return out, total
}
