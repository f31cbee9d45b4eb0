package cleaning

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/raaihank/mail-sentinel/internal/config"
)

const breakToken = "EMAIL_BREAK"

var paragraphSplit = regexp.MustCompile(`\n{2,10}`)

// ThreadDeduplicator removes paragraphs that reappear across the quoted history of a thread
type ThreadDeduplicator struct {
	delimiter  string
	minLength  int
	splitter   *regexp.Regexp
	sentinel   *regexp.Regexp
	numberedAt int
}

// NewThreadDeduplicator builds a deduplicator for the configured delimiter. The
// delimiter must contain EMAIL_BREAK; numbered forms (EMAIL_BREAK0, EMAIL_BREAK1, ...)
// are recognized as the same delimiter.
func NewThreadDeduplicator(cfg config.ThreadConfig) (*ThreadDeduplicator, error) {
	delimiter := cfg.Delimiter
	if delimiter == "" {
		delimiter = config.DefaultDelimiter
	}
	at := strings.Index(delimiter, breakToken)
	if at < 0 {
		return nil, fmt.Errorf("thread delimiter must contain %s", breakToken)
	}
	at += len(breakToken)

	numbered := func(pre, post string) string {
		return regexp.QuoteMeta(pre) + `\d*` + regexp.QuoteMeta(post)
	}
	pattern := numbered(delimiter[:at], delimiter[at:])
	sentinel, err := regexp.Compile(`^(?:` + pattern + `|` + numbered(collapseSpace(delimiter[:at]), collapseSpace(delimiter[at:])) + `)$`)
	if err != nil {
		return nil, fmt.Errorf("failed to compile thread sentinel: %w", err)
	}

	minLength := cfg.MinParagraphLength
	if minLength <= 0 {
		minLength = 30
	}

	return &ThreadDeduplicator{
		delimiter:  delimiter,
		minLength:  minLength,
		splitter:   regexp.MustCompile(pattern),
		sentinel:   sentinel,
		numberedAt: at,
	}, nil
}

// InsertBreaks interleaves numbered delimiters between emails
func (d *ThreadDeduplicator) InsertBreaks(emails []string) []string {
	if len(emails) == 0 {
		return nil
	}
	out := make([]string, 0, 2*len(emails)-1)
	for i, email := range emails {
		if i > 0 {
			out = append(out, d.delimiter[:d.numberedAt]+strconv.Itoa(i-1)+d.delimiter[d.numberedAt:])
		}
		out = append(out, email)
	}
	return out
}

// JoinThread concatenates emails into one delimited thread
func (d *ThreadDeduplicator) JoinThread(emails []string) string {
	return strings.Join(d.InsertBreaks(emails), "")
}

// Paragraphs splits a thread into whitespace-collapsed paragraphs. Every delimiter
// becomes a paragraph of its own.
func (d *ThreadDeduplicator) Paragraphs(thread string) []string {
	var paragraphs []string
	addSegment := func(segment string) {
		for _, p := range paragraphSplit.Split(segment, -1) {
			paragraphs = append(paragraphs, collapseSpace(p))
		}
	}

	last := 0
	for _, loc := range d.splitter.FindAllStringIndex(thread, -1) {
		addSegment(thread[last:loc[0]])
		paragraphs = append(paragraphs, collapseSpace(thread[loc[0]:loc[1]]))
		last = loc[1]
	}
	addSegment(thread[last:])
	return paragraphs
}

// RemoveRepeatingParagraphs keeps the first occurrence of every paragraph and drops
// paragraphs that are short or contained in an earlier one. Delimiters stay in place.
func (d *ThreadDeduplicator) RemoveRepeatingParagraphs(thread string) string {
	return strings.Join(d.RemoveDuplicates(uniqueInOrder(d.Paragraphs(thread))), "\n\n")
}

// RemoveDuplicates runs the containment pass over distinct paragraphs in first-seen
// order. Paragraph i is dropped when it is shorter than the minimum length or is a
// substring of any earlier paragraph u, including one already dropped. The first
// paragraph and delimiter paragraphs are always kept.
func (d *ThreadDeduplicator) RemoveDuplicates(paragraphs []string) []string {
	removed := make([]bool, len(paragraphs))
	for u := 0; u < len(paragraphs); u++ {
		if d.IsDelimiter(paragraphs[u]) {
			continue
		}
		for i := u + 1; i < len(paragraphs); i++ {
			if removed[i] || d.IsDelimiter(paragraphs[i]) {
				continue
			}
			if strings.Contains(paragraphs[u], paragraphs[i]) || utf8.RuneCountInString(paragraphs[i]) < d.minLength {
				removed[i] = true
			}
		}
	}

	kept := make([]string, 0, len(paragraphs))
	for i, p := range paragraphs {
		if !removed[i] {
			kept = append(kept, p)
		}
	}
	return kept
}

// IsDelimiter reports whether a paragraph is the delimiter, raw or whitespace-collapsed
func (d *ThreadDeduplicator) IsDelimiter(p string) bool {
	return d.sentinel.MatchString(p)
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
