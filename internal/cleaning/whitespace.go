package cleaning

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// FixWhitespaceFormatting collapses spaces, drops divider lines and quote markers,
// and squeezes long blank runs into one paragraph break
func (c *Cleaner) FixWhitespaceFormatting(text string) string {
	return c.applyRules("fix_whitespace_formatting", c.whitespace, text, nil)
}

// CleanRedundantNewLines trims leading and trailing blank runs and caps inner runs at two newlines
func (c *Cleaner) CleanRedundantNewLines(text string) string {
	return c.applyRules("clean_redundant_new_lines", c.redundantNewlines, text, nil)
}

// CleanSingleLeadingNewline joins a lone newline into the following word.
// In strict mode only lowercase letters and digits continue a line, which keeps
// capitalized list items apart.
func (c *Cleaner) CleanSingleLeadingNewline(text string, strict bool) string {
	return c.cleanSingleLeadingNewline(text, strict, nil)
}

func (c *Cleaner) cleanSingleLeadingNewline(text string, strict bool, t *tally) string {
	if strict {
		return c.applyRules("clean_single_leading_newline", c.strictNewline, text, t)
	}
	return c.applyRules("clean_single_leading_newline", c.looseNewline, text, t)
}

// CollapseMultipleSpaces turns runs of plain spaces into one. Tabs are left alone.
func (c *Cleaner) CollapseMultipleSpaces(text string) string {
	return c.applyRules("collapse_multiple_spaces", c.spaces, text, nil)
}

// CleanMultipleLeadingWhitespaces flattens all whitespace, newlines included, to single spaces
func CleanMultipleLeadingWhitespaces(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

var paragraphBreak = regexp.MustCompile(`\n{2,}`)

// RemoveShortLines drops lines that are likely greetings or farewells. A line survives
// when its significant length exceeds threshold, or exceeds thresholdWithPunctuation
// and ends with punctuation. Digits, spaces and placeholders do not count.
func RemoveShortLines(text string, threshold, thresholdWithPunctuation int) string {
	paragraphs := paragraphBreak.Split(text, -1)
	kept := make([]string, 0, len(paragraphs))
	for _, p := range paragraphs {
		var lines []string
		for _, line := range strings.Split(p, "\n") {
			sig := significant(line)
			n := utf8.RuneCountInString(sig)
			if n > threshold || (n > thresholdWithPunctuation && endsWithPunctuation(sig)) {
				lines = append(lines, line)
			}
		}
		kept = append(kept, strings.Join(lines, "\n"))
	}
	return strings.Join(kept, "\n\n")
}

func significant(line string) string {
	line = strings.Map(func(r rune) rune {
		if r == ' ' || unicode.IsDigit(r) {
			return -1
		}
		return r
	}, line)
	for _, p := range []string{PlaceholderName, PlaceholderURL, PlaceholderFile} {
		line = strings.ReplaceAll(line, p, "")
	}
	return line
}

func endsWithPunctuation(s string) bool {
	r, size := utf8.DecodeLastRuneInString(s)
	return size > 0 && strings.ContainsRune(".,;:!?-", r)
}
