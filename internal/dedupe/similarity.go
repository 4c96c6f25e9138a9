package dedupe

import "strings"

// trigrams returns the letter-trigram set of s, space-padded so short words
// still contribute.
func trigrams(s string) map[string]struct{} {
	s = "  " + strings.TrimSpace(s) + "  "
	set := make(map[string]struct{})
	for i := 0; i+3 <= len(s); i++ {
		set[s[i:i+3]] = struct{}{}
	}
	return set
}

// NameSimilarity scores two folded business names with the Dice coefficient
// over letter trigrams, in [0,1]. Identical keys score 1.
func NameSimilarity(a, b string) float64 {
	if a == b {
		if a == "" {
			return 0
		}
		return 1
	}
	ta, tb := trigrams(a), trigrams(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	shared := 0
	for t := range ta {
		if _, ok := tb[t]; ok {
			shared++
		}
	}
	return 2 * float64(shared) / float64(len(ta)+len(tb))
}
