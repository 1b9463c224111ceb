package corpus

// Corpus is an insertion-ordered collection of records, unique by identity key.
type Corpus []ArticleRecord

// Keys returns the identity keys of c in order.
func (c Corpus) Keys(policy KeyPolicy) []string {
	keys := make([]string, len(c))
	for i, r := range c {
		keys[i] = r.Key(policy)
	}
	return keys
}

// MergePage merges a page into existing and returns the new corpus.
//
// A page that is not OK leaves existing untouched. Each raw record is
// normalized and records without a key under policy are dropped; a record
// whose key is already present replaces the stored one
// in place, any other record is appended. Within one page the last
// occurrence of a key wins. existing is never modified.
//
// MergePage is idempotent: merging the same page twice yields the corpus
// produced by merging it once.
func MergePage(existing Corpus, page Page, policy KeyPolicy) Corpus {
	if !page.OK() {
		return existing
	}

	merged := make(Corpus, len(existing), len(existing)+len(page.Articles))
	copy(merged, existing)

	pos := make(map[string]int, len(merged)+len(page.Articles))
	for i, r := range merged {
		pos[r.Key(policy)] = i
	}

	for _, raw := range page.Articles {
		rec, ok := Normalize(raw)
		if !ok || !rec.HasKey(policy) {
			continue
		}
		key := rec.Key(policy)
		if i, found := pos[key]; found {
			merged[i] = rec
			continue
		}
		pos[key] = len(merged)
		merged = append(merged, rec)
	}
	return merged
}

// Dedupe collapses duplicate keys in c, keeping the last value at the first
// position. Stores use it to repair artifacts written by other tools.
func Dedupe(c Corpus, policy KeyPolicy) Corpus {
	out := make(Corpus, 0, len(c))
	pos := make(map[string]int, len(c))
	for _, r := range c {
		key := r.Key(policy)
		if i, ok := pos[key]; ok {
			out[i] = r
			continue
		}
		pos[key] = len(out)
		out = append(out, r)
	}
	return out
}
