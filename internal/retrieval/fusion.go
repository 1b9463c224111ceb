// Package retrieval fuses lexical and vector matches from one index
// snapshot into a single ranked candidate list.
package retrieval

import (
	"sort"

	"github.com/fyrsmithlabs/newsrag/internal/index"
)

// DefaultRRFConstant is the rank offset of reciprocal-rank fusion.
const DefaultRRFConstant = 60

// Fused is one chunk after fusion. A rank of zero means the chunk did not
// appear in that list.
type Fused struct {
	ID          string
	Score       float64
	LexicalRank int
	VectorRank  int
}

// Fuse combines two ranked lists with reciprocal-rank fusion:
// score = sum of 1/(rank + constant) over the lists a chunk appears in, with
// 1-based ranks. A chunk repeated within one list counts at its first rank.
//
// Equal scores keep first-appearance order, reading all lexical hits before
// any vector hit. At most k results are returned; k <= 0 returns all.
func Fuse(lexical, vector []index.Hit, k, constant int) []Fused {
	if constant <= 0 {
		constant = DefaultRRFConstant
	}

	var (
		order []string
		byID  = make(map[string]*Fused)
	)
	add := func(hits []index.Hit, lexicalList bool) {
		seen := make(map[string]struct{}, len(hits))
		for i, h := range hits {
			if _, dup := seen[h.ID]; dup {
				continue
			}
			seen[h.ID] = struct{}{}

			f, ok := byID[h.ID]
			if !ok {
				f = &Fused{ID: h.ID}
				byID[h.ID] = f
				order = append(order, h.ID)
			}
			rank := i + 1
			f.Score += 1 / float64(rank+constant)
			if lexicalList {
				f.LexicalRank = rank
			} else {
				f.VectorRank = rank
			}
		}
	}
	add(lexical, true)
	add(vector, false)

	out := make([]Fused, len(order))
	for i, id := range order {
		out[i] = *byID[id]
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })

	if k > 0 && len(out) > k {
		out = out[:k]
	}
	return out
}
