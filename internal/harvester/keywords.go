package harvester

import (
	"sort"
	"strings"
	"unicode"
)

var stopwords = map[string]struct{}{
	"about": {}, "after": {}, "also": {}, "been": {}, "being": {}, "from": {}, "have": {}, "here": {},
	"into": {}, "just": {}, "more": {}, "most": {}, "only": {}, "other": {}, "over": {}, "said": {},
	"some": {}, "such": {}, "than": {}, "that": {}, "their": {}, "them": {}, "then": {}, "there": {},
	"these": {}, "they": {}, "this": {}, "those": {}, "very": {}, "were": {}, "what": {}, "when": {},
	"which": {}, "while": {}, "will": {}, "with": {}, "would": {}, "your": {}, "https": {}, "http": {},
}

// ExtractKeywords returns up to limit keywords: tags first, then the most
// frequent non-stopword terms of at least four letters.
func ExtractKeywords(text string, tags []string, limit int) []string {
	out := make([]string, 0, limit)
	seen := map[string]struct{}{}
	add := func(k string) {
		if len(out) >= limit {
			return
		}
		if _, ok := seen[k]; ok {
			return
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}

	for _, t := range tags {
		if k := strings.ToLower(strings.TrimPrefix(t, "#")); k != "" {
			add(k)
		}
	}

	counts := map[string]int{}
	var order []string
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		if len([]rune(w)) < 4 {
			continue
		}
		if _, stop := stopwords[w]; stop {
			continue
		}
		if counts[w] == 0 {
			order = append(order, w)
		}
		counts[w]++
	}

	sort.SliceStable(order, func(i, j int) bool {
		return counts[order[i]] > counts[order[j]]
	})
	for _, w := range order {
		add(w)
	}
	return out
}
