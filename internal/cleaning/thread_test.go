package cleaning

import (
	"strings"
	"testing"

	"github.com/raaihank/mail-sentinel/internal/config"
)

func newTestDeduplicator(t *testing.T) *ThreadDeduplicator {
	t.Helper()
	d, err := NewThreadDeduplicator(config.GetDefaults().Cleaning.Thread)
	if err != nil {
		t.Fatalf("Failed to create deduplicator: %v", err)
	}
	return d
}

func TestThreadDeduplicator(t *testing.T) {
	d := newTestDeduplicator(t)

	const (
		shared = "This shared paragraph appears in every single email."
		f1     = "First email has its own opening paragraph here."
		f2     = "First email also closes with a unique remark."
		s1     = "Second email starts with a fresh paragraph of text."
		s2     = "Second email ends with another distinct paragraph."
		t1     = "Third email opens with new content for the thread."
		t2     = "Third email continues with more fresh content."

		delim0 = "==============+++EMAIL_BREAK0+++=============="
		delim1 = "==============+++EMAIL_BREAK1+++=============="
	)

	t.Run("ThreeEmailThread", func(t *testing.T) {
		thread := d.JoinThread([]string{
			shared + "\n\n" + f1 + "\n\n" + f2,
			s1 + "\n\n" + shared + "\n\n" + s2,
			t1 + "\n\n" + t2 + "\n\n" + shared,
		})

		got := d.RemoveRepeatingParagraphs(thread)
		want := strings.Join([]string{shared, f1, f2, delim0, s1, s2, delim1, t1, t2}, "\n\n")
		if got != want {
			t.Errorf("Expected %q, got %q", want, got)
		}
		if strings.Count(got, shared) != 1 {
			t.Errorf("Shared paragraph should appear once, got %d", strings.Count(got, shared))
		}
		if first, second := strings.Index(got, delim0), strings.Index(got, delim1); first < 0 || second < first {
			t.Errorf("Expected both delimiters in thread order, got %q", got)
		}
	})

	t.Run("ShortParagraphSuppressed", func(t *testing.T) {
		got := d.RemoveRepeatingParagraphs("Hello there, how are you doing today?\n\nok\n\nPlease see attached document for review.")
		want := "Hello there, how are you doing today?\n\nPlease see attached document for review."
		if got != want {
			t.Errorf("Expected %q, got %q", want, got)
		}
	})

	t.Run("FirstParagraphAlwaysKept", func(t *testing.T) {
		got := d.RemoveDuplicates([]string{"ok", "A sufficiently long paragraph that follows it."})
		if len(got) != 2 || got[0] != "ok" {
			t.Errorf("Expected the short first paragraph kept, got %v", got)
		}
	})

	t.Run("ContainmentChain", func(t *testing.T) {
		a := "The quarterly budget review meeting is moved to Thursday afternoon."
		b := "budget review meeting is moved to Thursday"
		c := "review meeting is moved to Thursday"

		got := d.RemoveDuplicates([]string{a, b, c})
		if len(got) != 1 || got[0] != a {
			t.Errorf("Expected only the outer paragraph, got %v", got)
		}

		// containment reaches past unrelated paragraphs
		got = d.RemoveDuplicates([]string{a, "Something unrelated but long enough to stay.", b, c})
		if len(got) != 2 {
			t.Errorf("Expected two paragraphs, got %v", got)
		}
	})

	t.Run("DelimiterParagraphKept", func(t *testing.T) {
		delim := "==============+++EMAIL_BREAK3+++=============="
		got := d.RemoveDuplicates([]string{"A long enough paragraph to be kept around.", delim, "ok"})
		if len(got) != 2 || got[1] != delim {
			t.Errorf("Expected delimiter kept and short paragraph dropped, got %v", got)
		}
	})

	t.Run("IsDelimiter", func(t *testing.T) {
		for _, in := range []string{
			config.DefaultDelimiter,
			"\n\n==============+++EMAIL_BREAK12+++==============\n\n",
			"==============+++EMAIL_BREAK+++==============",
		} {
			if !d.IsDelimiter(in) {
				t.Errorf("Expected %q to be a delimiter", in)
			}
		}
		for _, in := range []string{"EMAIL_BREAK", "Regular paragraph text"} {
			if d.IsDelimiter(in) {
				t.Errorf("Expected %q not to be a delimiter", in)
			}
		}
	})

	t.Run("InsertBreaks", func(t *testing.T) {
		got := d.InsertBreaks([]string{"a", "b", "c"})
		if len(got) != 5 {
			t.Fatalf("Expected 5 parts, got %d", len(got))
		}
		if !strings.Contains(got[1], "EMAIL_BREAK0+++") || !strings.Contains(got[3], "EMAIL_BREAK1+++") {
			t.Errorf("Expected numbered delimiters, got %q and %q", got[1], got[3])
		}
		if got[0] != "a" || got[2] != "b" || got[4] != "c" {
			t.Errorf("Emails out of place: %v", got)
		}
		if d.InsertBreaks(nil) != nil {
			t.Errorf("Expected nil for an empty thread")
		}
	})

	t.Run("ParagraphsKeepDelimiters", func(t *testing.T) {
		got := d.Paragraphs(d.JoinThread([]string{"first\n\n  second  line", "third"}))
		want := []string{"first", "second line", delim0, "third"}
		if len(got) != len(want) {
			t.Fatalf("Expected %d paragraphs, got %q", len(want), got)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("Paragraph %d: expected %q, got %q", i, want[i], got[i])
			}
		}
		if !d.IsDelimiter(got[2]) {
			t.Errorf("Expected %q to be recognized as a delimiter", got[2])
		}
	})

	t.Run("DelimiterWithoutToken", func(t *testing.T) {
		if _, err := NewThreadDeduplicator(config.ThreadConfig{Delimiter: "-----"}); err == nil {
			t.Errorf("Expected an error for a delimiter without EMAIL_BREAK")
		}
	})

	t.Run("LaterSupersetKept", func(t *testing.T) {
		c := newTestCleaner(t)
		in := d.JoinThread([]string{
			"The budget review moved to the second floor room.",
			"Noted, the budget review moved to the second floor room.",
		})
		got := c.Thread().RemoveRepeatingParagraphs(in)
		want := "The budget review moved to the second floor room.\n\n" + delim0 + "\n\nNoted, the budget review moved to the second floor room."
		if got != want {
			t.Errorf("Got %q", got)
		}
	})
}
