package index

import (
	"math"
	"sort"
	"strings"
	"unicode"
)

// BM25 parameters.
const (
	DefaultK1 = 1.5
	DefaultB  = 0.75
)

// Hit is one ranked match from a single index, identified by chunk ID.
type Hit struct {
	ID    string
	Score float64
}

// BM25 is an immutable Okapi BM25 index over chunk texts.
type BM25 struct {
	k1, b     float64
	ids       []string
	docLens   []int
	avgDocLen float64
	idf       map[string]float64
	postings  map[string][]posting
}

type posting struct {
	doc int
	tf  int
}

// NewBM25 indexes texts; ids[i] names texts[i].
func NewBM25(ids, texts []string) *BM25 {
	idx := &BM25{
		k1:       DefaultK1,
		b:        DefaultB,
		ids:      ids,
		docLens:  make([]int, len(texts)),
		idf:      make(map[string]float64),
		postings: make(map[string][]posting),
	}

	total := 0
	for i, text := range texts {
		terms := Tokenize(text)
		idx.docLens[i] = len(terms)
		total += len(terms)

		tf := make(map[string]int, len(terms))
		for _, term := range terms {
			tf[term]++
		}
		for term, n := range tf {
			idx.postings[term] = append(idx.postings[term], posting{doc: i, tf: n})
		}
	}
	if len(texts) > 0 {
		idx.avgDocLen = float64(total) / float64(len(texts))
	}

	n := float64(len(texts))
	for term, list := range idx.postings {
		df := float64(len(list))
		idx.idf[term] = math.Log((n-df+0.5)/(df+0.5) + 1)
	}
	return idx
}

// Len returns the number of indexed documents.
func (idx *BM25) Len() int { return len(idx.ids) }

// Search returns up to n documents sharing at least one term with query,
// best first. Equal scores keep indexing order.
func (idx *BM25) Search(query string, n int) []Hit {
	if n <= 0 || len(idx.ids) == 0 || idx.avgDocLen == 0 {
		return nil
	}

	scores := make(map[int]float64)
	seen := make(map[string]struct{})
	for _, term := range Tokenize(query) {
		if _, dup := seen[term]; dup {
			continue
		}
		seen[term] = struct{}{}

		idf := idx.idf[term]
		for _, p := range idx.postings[term] {
			tf := float64(p.tf)
			docLen := float64(idx.docLens[p.doc])
			num := tf * (idx.k1 + 1)
			den := tf + idx.k1*(1-idx.b+idx.b*docLen/idx.avgDocLen)
			scores[p.doc] += idf * num / den
		}
	}

	docs := make([]int, 0, len(scores))
	for doc := range scores {
		docs = append(docs, doc)
	}
	sort.Slice(docs, func(i, j int) bool {
		si, sj := scores[docs[i]], scores[docs[j]]
		if si != sj {
			return si > sj
		}
		return docs[i] < docs[j]
	})
	if len(docs) > n {
		docs = docs[:n]
	}

	hits := make([]Hit, len(docs))
	for i, doc := range docs {
		hits[i] = Hit{ID: idx.ids[doc], Score: scores[doc]}
	}
	return hits
}

// Tokenize lowercases text and splits it into runs of letters and digits.
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}
