package cleaning

import "strings"

// CleanFixedTerms removes boilerplate phrases, then drops stop-word tokens.
// Tokens come from a plain split on single spaces, so "thanks," survives
// while "thanks" does not.
func (c *Cleaner) CleanFixedTerms(text string) string {
	return c.cleanFixedTerms(text, nil)
}

func (c *Cleaner) cleanFixedTerms(text string, t *tally) string {
	text = c.applyRules("clean_fixed_terms", c.fixedTerms, text, t)

	tokens := strings.Split(text, " ")
	kept := tokens[:0]
	dropped := 0
	for _, tok := range tokens {
		if _, stop := stopWords[tok]; stop {
			dropped++
			continue
		}
		kept = append(kept, tok)
	}
	t.add("clean_fixed_terms", "stop_words", dropped)
	return strings.Join(kept, " ")
}
