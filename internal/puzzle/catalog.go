package puzzle

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// rawPuzzle matches the on-disk dataset files produced by the scraper
// (one file per day, e.g. 2025-07-26.json).
type rawPuzzle struct {
	ID           int64    `json:"id"`
	PrintDate    string   `json:"printDate"`
	CenterLetter string   `json:"centerLetter"`
	OuterLetters []string `json:"outerLetters"`
	Pangrams     []string `json:"pangrams"`
	Answers      []string `json:"answers"`
}

// Catalog is the flat in-memory puzzle list, loaded once at startup and
// read-only afterwards.
type Catalog struct {
	puzzles []*Puzzle
}

// LoadDir reads every per-day JSON file in dir (index.json is skipped),
// computes word points and validates each puzzle.
func LoadDir(dir string) (*Catalog, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("puzzle catalog: read dir: %w", err)
	}

	var names []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || name == "index.json" || !strings.HasSuffix(name, ".json") {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	c := &Catalog{puzzles: make([]*Puzzle, 0, len(names))}
	for _, name := range names {
		b, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("puzzle catalog: read %s: %w", name, err)
		}
		var raw rawPuzzle
		if err := json.Unmarshal(b, &raw); err != nil {
			return nil, fmt.Errorf("puzzle catalog: parse %s: %w", name, err)
		}

		p := &Puzzle{
			ID:           raw.ID,
			Date:         raw.PrintDate,
			CenterLetter: strings.ToLower(raw.CenterLetter),
			OuterLetters: lowerAll(raw.OuterLetters),
			ValidWords:   lowerAll(raw.Answers),
			Pangrams:     lowerAll(raw.Pangrams),
		}
		p.index()
		if err := p.validate(); err != nil {
			return nil, fmt.Errorf("puzzle catalog: %w", err)
		}
		c.puzzles = append(c.puzzles, p)
	}

	if len(c.puzzles) == 0 {
		return nil, fmt.Errorf("puzzle catalog: no puzzles in %s", dir)
	}
	return c, nil
}

func (c *Catalog) Len() int { return len(c.puzzles) }

// Random returns a uniformly chosen puzzle.
func (c *Catalog) Random() *Puzzle {
	return c.puzzles[rand.Intn(len(c.puzzles))]
}

func lowerAll(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToLower(s)
	}
	return out
}
