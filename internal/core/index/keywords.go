package index

import (
	"regexp"
	"sort"
	"strings"
)

var wordRe = regexp.MustCompile(`[a-zA-Z][a-zA-Z0-9_+-]{2,}`)

// stopwords are filtered from keyword extraction. Conversational filler
// plus the assistant-speak that appears in almost every session and would
// otherwise dominate frequency counts.
var stopwords = map[string]struct{}{}

func init() {
	for _, w := range strings.Fields(`
		the and for are but not you all can had her was one our out day get
		has him his how its new now old see two way who did yes yet with
		this that from they have what when where which while would there
		their them then than some more very much just like into over only
		also been being because before after about against between through
		your will should could does done want make made using use used
		here sure thanks please okay let course help need try might may
		something anything things thing really actually look looks looking
		question answer problem example code file line error
	`) {
		stopwords[w] = struct{}{}
	}
}

// ExtractKeywords returns the top-N most frequent meaningful terms across
// the given texts. Ties break alphabetically so extraction is deterministic.
func ExtractKeywords(texts []string, n int) []string {
	if n <= 0 {
		n = 10
	}
	freq := map[string]int{}
	for _, text := range texts {
		for _, w := range wordRe.FindAllString(text, -1) {
			w = strings.ToLower(w)
			if _, skip := stopwords[w]; skip {
				continue
			}
			freq[w]++
		}
	}

	terms := make([]string, 0, len(freq))
	for w := range freq {
		terms = append(terms, w)
	}
	sort.Slice(terms, func(i, j int) bool {
		if freq[terms[i]] != freq[terms[j]] {
			return freq[terms[i]] > freq[terms[j]]
		}
		return terms[i] < terms[j]
	})

	if len(terms) > n {
		terms = terms[:n]
	}
	return terms
}
