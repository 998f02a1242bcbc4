package puzzle

import (
	"fmt"
	"strings"
)

const pangramBonus = 7

// Puzzle is one day's letter set with its precomputed answers.
// Immutable after the catalog loads it; safe to share across rooms.
type Puzzle struct {
	ID           int64          `json:"id"`
	Date         string         `json:"date"`
	CenterLetter string         `json:"centerLetter"`
	OuterLetters []string       `json:"outerLetters"`
	ValidWords   []string       `json:"validWords"`
	Pangrams     []string       `json:"pangrams"`
	WordPoints   map[string]int `json:"wordPoints"`

	validSet   map[string]struct{}
	pangramSet map[string]struct{}
}

// New builds a validated puzzle from its parts, computing word points.
func New(center string, outer, answers, pangrams []string) (*Puzzle, error) {
	p := &Puzzle{
		CenterLetter: strings.ToLower(center),
		OuterLetters: lowerAll(outer),
		ValidWords:   lowerAll(answers),
		Pangrams:     lowerAll(pangrams),
	}
	p.index()
	if err := p.validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Puzzle) IsValidWord(word string) bool {
	_, ok := p.validSet[strings.ToLower(word)]
	return ok
}

func (p *Puzzle) IsPangram(word string) bool {
	_, ok := p.pangramSet[strings.ToLower(word)]
	return ok
}

// Points returns the precomputed score for a word, 0 if it is not an answer.
func (p *Puzzle) Points(word string) int {
	return p.WordPoints[strings.ToLower(word)]
}

// scoreWord follows the standard scheme: a 4-letter word is worth 1 point,
// longer words score their length, and a pangram earns a fixed bonus.
func scoreWord(word string, pangram bool) int {
	pts := len(word)
	if len(word) == 4 {
		pts = 1
	}
	if pangram {
		pts += pangramBonus
	}
	return pts
}

func (p *Puzzle) index() {
	p.validSet = make(map[string]struct{}, len(p.ValidWords))
	for _, w := range p.ValidWords {
		p.validSet[w] = struct{}{}
	}
	p.pangramSet = make(map[string]struct{}, len(p.Pangrams))
	for _, w := range p.Pangrams {
		p.pangramSet[w] = struct{}{}
	}
	if p.WordPoints == nil {
		p.WordPoints = make(map[string]int, len(p.ValidWords))
		for _, w := range p.ValidWords {
			_, pang := p.pangramSet[w]
			p.WordPoints[w] = scoreWord(w, pang)
		}
	}
}

func (p *Puzzle) validate() error {
	if len(p.CenterLetter) != 1 {
		return fmt.Errorf("puzzle %s: centerLetter must be a single letter", p.Date)
	}
	if len(p.OuterLetters) != 6 {
		return fmt.Errorf("puzzle %s: want 6 outer letters, have %d", p.Date, len(p.OuterLetters))
	}
	seen := map[string]struct{}{p.CenterLetter: {}}
	for _, l := range p.OuterLetters {
		if len(l) != 1 {
			return fmt.Errorf("puzzle %s: bad outer letter %q", p.Date, l)
		}
		if _, dup := seen[l]; dup {
			return fmt.Errorf("puzzle %s: duplicate letter %q", p.Date, l)
		}
		seen[l] = struct{}{}
	}
	if len(p.ValidWords) == 0 {
		return fmt.Errorf("puzzle %s: no answers", p.Date)
	}
	for _, w := range p.ValidWords {
		if len(w) < 4 {
			return fmt.Errorf("puzzle %s: answer %q shorter than 4 letters", p.Date, w)
		}
		if !strings.Contains(w, p.CenterLetter) {
			return fmt.Errorf("puzzle %s: answer %q missing center letter %q", p.Date, w, p.CenterLetter)
		}
	}
	for _, w := range p.Pangrams {
		if _, ok := p.validSet[w]; !ok {
			return fmt.Errorf("puzzle %s: pangram %q is not an answer", p.Date, w)
		}
	}
	return nil
}
