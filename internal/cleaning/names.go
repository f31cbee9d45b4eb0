package cleaning

import (
	"fmt"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/dlclark/regexp2"
	"go.uber.org/zap"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// RemoveNames redacts personal names with the given methods. An unknown method
// fails the call before any text is touched.
func (c *Cleaner) RemoveNames(text string, methods ...Method) (string, error) {
	return c.removeNames(text, methods, nil)
}

func (c *Cleaner) removeNames(text string, methods []Method, t *tally) (string, error) {
	if len(methods) == 0 {
		return text, fmt.Errorf("%w: no method given", ErrInvalidMethod)
	}

	use := make(map[Method]bool, len(methods))
	for _, m := range methods {
		switch m {
		case MethodRegex, MethodEmailAddresses, MethodDatabase:
			use[m] = true
		default:
			return text, fmt.Errorf("%w: %q", ErrInvalidMethod, m)
		}
	}

	if use[MethodRegex] {
		text = c.applyRules("remove_names", []Rule{c.names}, text, t)
	}

	if use[MethodEmailAddresses] {
		text = c.removeCandidates(text, c.FindNamesFromEmailAddresses(text), t)
	}

	// MethodDatabase has no backing directory and leaves the text unchanged

	return text, nil
}

// RemoveCandidates replaces every whole-word occurrence of each candidate with the
// name placeholder. Longer candidates go first so "john smith" wins over "john".
// A candidate that is blank or fails to match is skipped and logged.
func (c *Cleaner) RemoveCandidates(text string, candidates []string) string {
	return c.removeCandidates(text, candidates, nil)
}

func (c *Cleaner) removeCandidates(text string, candidates []string, t *tally) string {
	ordered := append([]string(nil), candidates...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return utf8.RuneCountInString(ordered[i]) > utf8.RuneCountInString(ordered[j])
	})

	for _, cand := range ordered {
		out, n, err := c.substituteCandidate(text, cand)
		if err != nil {
			c.logger.Warn("Name candidate skipped",
				zap.Int("candidate_length", len(cand)),
				zap.Error(err),
			)
			continue
		}
		t.add("remove_names", "email_candidate", n)
		text = out
	}
	return text
}

func (c *Cleaner) substituteCandidate(text, cand string) (string, int, error) {
	if strings.TrimSpace(cand) == "" {
		return text, 0, fmt.Errorf("%w: empty candidate", ErrCandidateSubstitution)
	}

	rule, err := compileRule(ruleSpec{
		name:        "email_candidate",
		expr:        `\b` + regexp2.Escape(cand) + `\b`,
		replacement: PlaceholderName,
		opts:        regexp2.None,
	}, c.config.RegexTimeout)
	if err != nil {
		return text, 0, fmt.Errorf("%w: %v", ErrCandidateSubstitution, err)
	}

	out, n, err := rule.replace(text)
	if err != nil {
		return text, 0, fmt.Errorf("%w: %v", ErrCandidateSubstitution, err)
	}
	return out, n, nil
}

// FindNamesFromEmailAddresses derives name candidates from "From:" header lines and
// from the local part of every address in the text. The result holds the lowercase
// variants (raw, spaced, hyphenated, first, last, "first last") followed by their
// title-cased forms.
func (c *Cleaner) FindNamesFromEmailAddresses(text string) []string {
	var users []string

	for _, sender := range c.findAll(c.senders, text, 1) {
		if u := strings.Join(strings.Fields(strings.ToLower(sender)), "_"); u != "" {
			users = append(users, u)
		}
	}

	folded := foldDiacritics(strings.ToLower(text))
	for _, addr := range c.findAll(c.mailboxes, folded, 0) {
		local := addr[:strings.LastIndexByte(addr, '@')]
		local = strings.ReplaceAll(local, "mailto:", "")
		local = strings.Trim(strings.ReplaceAll(local, ".", "_"), "_")
		if local != "" {
			users = append(users, local)
		}
	}

	users = sortedUnique(users)

	var variants []string
	variants = append(variants, users...)
	for _, u := range users {
		variants = append(variants, strings.ReplaceAll(u, "_", " "))
	}
	for _, u := range users {
		variants = append(variants, strings.ReplaceAll(u, "_", "-"))
	}
	for _, u := range users {
		variants = append(variants, strings.Split(u, "_")[0])
	}
	for _, u := range users {
		parts := strings.Split(u, "_")
		variants = append(variants, parts[len(parts)-1])
	}
	for _, u := range users {
		parts := strings.Split(u, "_")
		variants = append(variants, parts[0]+" "+parts[len(parts)-1])
	}

	lower := make([]string, 0, len(variants))
	for _, v := range variants {
		v = strings.ReplaceAll(strings.TrimSpace(v), "mailto:", "")
		if utf8.RuneCountInString(v) > 2 {
			lower = append(lower, v)
		}
	}

	capitalized := make([]string, 0, len(lower))
	for _, v := range lower {
		capitalized = append(capitalized, titleCase(v))
	}

	return uniqueInOrder(append(lower, sortedUnique(capitalized)...))
}

// findAll returns the given group of every match. Timeouts end the scan early.
func (c *Cleaner) findAll(rule Rule, text string, group int) []string {
	var out []string
	m, err := rule.Pattern.FindStringMatch(text)
	for m != nil && err == nil {
		out = append(out, m.GroupByNumber(group).String())
		m, err = rule.Pattern.FindNextMatch(m)
	}
	if err != nil {
		c.logger.Warn("Pattern scan stopped",
			zap.String("rule", rule.Name),
			zap.Error(fmt.Errorf("%w: %v", ErrPatternTimeout, err)),
		)
	}
	return out
}

// foldDiacritics maps "józef" to "jozef". Transformers keep state, so each call builds its own chain.
func foldDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// titleCase upper-cases the first letter of every letter run and lower-cases the rest
func titleCase(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	prevLetter := false
	for _, r := range s {
		if unicode.IsLetter(r) {
			if prevLetter {
				r = unicode.ToLower(r)
			} else {
				r = unicode.ToTitle(r)
			}
			prevLetter = true
		} else {
			prevLetter = false
		}
		b.WriteRune(r)
	}
	return b.String()
}

func sortedUnique(in []string) []string {
	out := uniqueInOrder(in)
	sort.Strings(out)
	return out
}

func uniqueInOrder(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
