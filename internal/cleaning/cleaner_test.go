package cleaning

import (
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/raaihank/mail-sentinel/internal/config"
)

func newTestCleaner(t *testing.T) *Cleaner {
	t.Helper()
	c, err := New(config.GetDefaults().Cleaning, zap.NewNop())
	if err != nil {
		t.Fatalf("Failed to create cleaner: %v", err)
	}
	return c
}

const endToEndInput = "Dear Team,\n\nPlease review the attached report.pptx and let me know.\n\nBest regards,\nJohn Smith\n\n" +
	"On Mon, Jan 5, 2024 at 10:30 AM John Smith <john.smith@example.com> wrote:\n> original message"

func TestFullClean(t *testing.T) {
	c := newTestCleaner(t)

	t.Run("EndToEnd", func(t *testing.T) {
		got := c.FullClean(endToEndInput)
		want := "Please review the attached ANONYMIZED_FILE and let me know."
		if got != want {
			t.Errorf("Expected %q, got %q", want, got)
		}
	})

	t.Run("ReportMatchesFullClean", func(t *testing.T) {
		result := c.Clean(endToEndInput)
		if result.Cleaned != c.FullClean(endToEndInput) {
			t.Errorf("Clean and FullClean disagree: %q vs %q", result.Cleaned, c.FullClean(endToEndInput))
		}
		found := false
		for _, f := range result.Findings {
			if f.Stage == "anonymize_files" && f.Count == 1 {
				found = true
			}
		}
		if !found {
			t.Errorf("Expected a file finding, got %+v", result.Findings)
		}
	})

	t.Run("StageOrder", func(t *testing.T) {
		want := []string{
			"remove_repeated_replies", "remove_greetings", "fix_whitespace_formatting",
			"remove_email_metadata", "remove_signatures", "remove_names", "clean_fixed_terms",
			"anonymize_urls", "anonymize_files", "anonymize_email_addresses",
			"clean_redundant_new_lines", "clean_single_leading_newline",
			"collapse_multiple_spaces", "remove_repeating_paragraphs",
		}
		stages := c.Stages()
		if len(stages) != len(want) {
			t.Fatalf("Expected %d stages, got %d", len(want), len(stages))
		}
		for i, s := range stages {
			if s.Name != want[i] {
				t.Errorf("Stage %d: expected %s, got %s", i, want[i], s.Name)
			}
		}
	})

	t.Run("InvalidConfiguredMethod", func(t *testing.T) {
		cfg := config.GetDefaults().Cleaning
		cfg.NameMethods = []string{"ner"}
		if _, err := New(cfg, zap.NewNop()); !errors.Is(err, ErrInvalidMethod) {
			t.Errorf("Expected ErrInvalidMethod, got %v", err)
		}
	})
}

func TestWhitespace(t *testing.T) {
	c := newTestCleaner(t)

	t.Run("FixWhitespaceFormatting", func(t *testing.T) {
		got := c.FixWhitespaceFormatting("Hello  world\n\n\n\n>> quoted\n-----\nDone")
		want := "Hello world\n\nquoted\n\nDone"
		if got != want {
			t.Errorf("Expected %q, got %q", want, got)
		}
	})

	t.Run("Idempotent", func(t *testing.T) {
		inputs := []string{
			"Hello  world\n\n\n\n>> quoted\n-----\nDone",
			"Please review the report.\n\nThanks for the help.",
			"\t> first\n\t> second\n\n\n\n\nthird   line",
		}
		for _, in := range inputs {
			once := c.FixWhitespaceFormatting(in)
			twice := c.FixWhitespaceFormatting(once)
			if once != twice {
				t.Errorf("Not idempotent for %q: %q then %q", in, once, twice)
			}
		}
	})

	t.Run("CleanRedundantNewLines", func(t *testing.T) {
		got := c.CleanRedundantNewLines("\n\n\nBody\n\n\n\nMore\n\n")
		if got != "Body\n\nMore" {
			t.Errorf("Expected %q, got %q", "Body\n\nMore", got)
		}
	})

	t.Run("CleanSingleLeadingNewline", func(t *testing.T) {
		in := "line one\ncontinues here\nNext item"
		if got := c.CleanSingleLeadingNewline(in, true); got != "line one continues here\nNext item" {
			t.Errorf("Strict: got %q", got)
		}
		if got := c.CleanSingleLeadingNewline(in, false); got != "line one continues here Next item" {
			t.Errorf("Loose: got %q", got)
		}
		if got := c.CleanSingleLeadingNewline("a\n\nb", true); got != "a\n\nb" {
			t.Errorf("Paragraph break must survive, got %q", got)
		}
	})

	t.Run("CollapseMultipleSpaces", func(t *testing.T) {
		if got := c.CollapseMultipleSpaces("a   b\t\tc"); got != "a b\t\tc" {
			t.Errorf("Expected %q, got %q", "a b\t\tc", got)
		}
	})

	t.Run("CleanMultipleLeadingWhitespaces", func(t *testing.T) {
		if got := CleanMultipleLeadingWhitespaces("\t\t \n compendium  x"); got != "compendium x" {
			t.Errorf("Expected %q, got %q", "compendium x", got)
		}
	})

	t.Run("RemoveShortLines", func(t *testing.T) {
		in := "Hi Anna\nThis line is definitely long enough to survive the filter\nSounds good, I will send it over!"
		want := "This line is definitely long enough to survive the filter\nSounds good, I will send it over!"
		if got := RemoveShortLines(in, 35, 20); got != want {
			t.Errorf("Expected %q, got %q", want, got)
		}
	})
}

func TestRemovalStages(t *testing.T) {
	c := newTestCleaner(t)

	t.Run("RepliesEnglishDevice", func(t *testing.T) {
		got := c.RemoveRepeatedReplies("Looks good to me.\n\nSent from my iPhone\nextra")
		if got != "Looks good to me.\n\n" {
			t.Errorf("Expected reply tail removed, got %q", got)
		}
	})

	t.Run("RepliesGerman", func(t *testing.T) {
		got := c.RemoveRepeatedReplies("Passt.\n\nAm 05.01.2024 um 10:30 schrieb Max:\n> alt")
		if got != "Passt.\n\n" {
			t.Errorf("Expected German reply header removed, got %q", got)
		}
	})

	t.Run("RepliesLocales", func(t *testing.T) {
		tests := []struct {
			name string
			in   string
			want string
		}{
			{"GermanBareColon", "Passt so.\n\nam 5. Januar schrieb:\n> alt", "Passt so.\n\n"},
			{"GermanSenderAddress", "Passt.\n\nAm 05.01.2024 um 10:30 schrieb Max Muster <max@example.com>:\n> alt", "Passt.\n\n"},
			{"French", "Merci.\n\nLe 5 janv. 2024 à 10:30, Marie a écrit:\n> ancien", "Merci.\n\n"},
			{"GermanWithoutHeader", "Passt, schrieb ich doch.", "Passt, schrieb ich doch."},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				if got := c.RemoveRepeatedReplies(tt.in); got != tt.want {
					t.Errorf("Expected %q, got %q", tt.want, got)
				}
			})
		}
	})

	t.Run("MetadataGermanHeader", func(t *testing.T) {
		got := c.RemoveEmailMetadata("Danke.\nAm 05.01.2024 um 10:30 schrieb Max Muster <max@example.com>:\nalt")
		if strings.Contains(got, "schrieb") || strings.Contains(got, "max@example.com") {
			t.Errorf("Expected German header line removed, got %q", got)
		}
		if !strings.HasPrefix(got, "Danke.") || !strings.HasSuffix(got, "alt") {
			t.Errorf("Expected surrounding text kept, got %q", got)
		}
	})

	t.Run("Greetings", func(t *testing.T) {
		got := c.RemoveGreetings("Hi Anna,\n\nThe file is ready.")
		if got != "The file is ready." {
			t.Errorf("Expected greeting removed, got %q", got)
		}
	})

	t.Run("Signatures", func(t *testing.T) {
		got := c.RemoveSignatures("The numbers look right.\nCheers,\nMaria Lopez")
		if strings.Contains(got, "Maria") || strings.Contains(got, "Cheers") {
			t.Errorf("Expected signature removed, got %q", got)
		}
		if !strings.HasPrefix(got, "The numbers look right.") {
			t.Errorf("Body was damaged: %q", got)
		}
	})

	t.Run("Metadata", func(t *testing.T) {
		got := c.RemoveEmailMetadata("Location: Room 12\nThe plan is final")
		if strings.Contains(got, "Room") {
			t.Errorf("Expected metadata line removed, got %q", got)
		}
		if !strings.Contains(got, "The plan is final") {
			t.Errorf("Body was damaged: %q", got)
		}
	})

	t.Run("FixedTerms", func(t *testing.T) {
		if got := c.CleanFixedTerms("please send it tomorrow thanks"); got != "send it" {
			t.Errorf("Expected %q, got %q", "send it", got)
		}
		// stop words match exactly, capitalized tokens survive
		if got := c.CleanFixedTerms("Thanks a lot"); got != "Thanks a lot" {
			t.Errorf("Expected %q, got %q", "Thanks a lot", got)
		}
	})
}

func TestRemoveNames(t *testing.T) {
	c := newTestCleaner(t)

	t.Run("Regex", func(t *testing.T) {
		got, err := c.RemoveNames("Please forward this to Anna Maria Schmidt today.", MethodRegex)
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if got != "Please forward this to ANONYMIZED_NAME today." {
			t.Errorf("Got %q", got)
		}
	})

	t.Run("DatabaseIsNoop", func(t *testing.T) {
		in := "Anna Maria Schmidt"
		got, err := c.RemoveNames(in, MethodDatabase)
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if got != in {
			t.Errorf("Expected unchanged text, got %q", got)
		}
	})

	t.Run("InvalidMethod", func(t *testing.T) {
		in := "Anna Maria Schmidt wrote this"
		got, err := c.RemoveNames(in, MethodRegex, Method("ner"))
		if !errors.Is(err, ErrInvalidMethod) {
			t.Fatalf("Expected ErrInvalidMethod, got %v", err)
		}
		if got != in {
			t.Errorf("Expected no partial processing, got %q", got)
		}
		if _, err := c.RemoveNames(in); !errors.Is(err, ErrInvalidMethod) {
			t.Errorf("Expected ErrInvalidMethod for empty method set, got %v", err)
		}
	})

	t.Run("ParseMethod", func(t *testing.T) {
		m, err := ParseMethod("email_adresses")
		if err != nil || m != MethodEmailAddresses {
			t.Errorf("Expected legacy spelling to parse, got %v, %v", m, err)
		}
		if _, err := ParseMethod("ner"); !errors.Is(err, ErrInvalidMethod) {
			t.Errorf("Expected ErrInvalidMethod, got %v", err)
		}
	})

	t.Run("FindNamesFromEmailAddresses", func(t *testing.T) {
		names := c.FindNamesFromEmailAddresses("Contact józef.nowak@example.com\nFrom: Anna Berg\nthanks")
		for _, want := range []string{"jozef_nowak", "jozef nowak", "jozef-nowak", "jozef", "nowak", "Jozef Nowak", "anna berg", "Anna Berg"} {
			if !contains(names, want) {
				t.Errorf("Expected candidate %q in %v", want, names)
			}
		}
	})

	t.Run("StageOrderSensitivity", func(t *testing.T) {
		in := "Please ask John Smith to send the budget to john.smith@example.com before Friday."

		named, err := c.RemoveNames(in, MethodEmailAddresses)
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		documented := c.AnonymizeEmailAddresses(named)

		reversed, err := c.RemoveNames(c.AnonymizeEmailAddresses(in), MethodEmailAddresses)
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}

		inOrder := strings.Count(documented, PlaceholderName)
		outOfOrder := strings.Count(reversed, PlaceholderName)
		if inOrder <= outOfOrder {
			t.Errorf("Expected more name redactions in documented order: %d vs %d", inOrder, outOfOrder)
		}
		if outOfOrder != 0 {
			t.Errorf("Expected no name redactions after addresses are gone, got %d in %q", outOfOrder, reversed)
		}
		if strings.Contains(documented, "John") {
			t.Errorf("Expected the name to be redacted, got %q", documented)
		}
	})

	t.Run("CandidateSkip", func(t *testing.T) {
		core, logs := observer.New(zapcore.WarnLevel)
		cw, err := New(config.GetDefaults().Cleaning, zap.New(core))
		if err != nil {
			t.Fatalf("Failed to create cleaner: %v", err)
		}

		got := cw.RemoveCandidates("Ask john about it", []string{"", "   ", "john"})
		if got != "Ask ANONYMIZED_NAME about it" {
			t.Errorf("Expected remaining candidates applied, got %q", got)
		}
		if n := logs.FilterMessage("Name candidate skipped").Len(); n != 2 {
			t.Errorf("Expected 2 skipped candidates logged, got %d", n)
		}
	})

	t.Run("CandidatesAreLiteral", func(t *testing.T) {
		got := c.RemoveCandidates("reach j.doe or jxdoe", []string{"j.doe"})
		if got != "reach ANONYMIZED_NAME or jxdoe" {
			t.Errorf("Expected literal candidate match, got %q", got)
		}
	})
}

func TestAnonymize(t *testing.T) {
	c := newTestCleaner(t)

	t.Run("ComplexURL", func(t *testing.T) {
		got, err := c.AnonymizeURLs("Docs at https://example.com/path?x=1. Thanks", URLComplex)
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if got != "Docs at ANONYMIZED_URL. Thanks" {
			t.Errorf("Got %q", got)
		}
	})

	t.Run("ComplexURLSkipsAddresses", func(t *testing.T) {
		in := "write to anna@example.com"
		got, _ := c.AnonymizeURLs(in, URLComplex)
		if got != in {
			t.Errorf("Expected address untouched, got %q", got)
		}
	})

	t.Run("SimpleURL", func(t *testing.T) {
		got, err := c.AnonymizeURLs("visit www.google.com today", URLSimple)
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if got != "visit ANONYMIZED_URL today" {
			t.Errorf("Got %q", got)
		}
	})

	t.Run("Disambiguation", func(t *testing.T) {
		in := "Intranet https://home.mckinsey.com/news and https://example.org/page"
		got, err := c.AnonymizeURLs(in, URLComplex, Internal, External)
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if got != "Intranet ANONYMIZED_URLINTERNAL and ANONYMIZED_URLEXTERNAL" {
			t.Errorf("Got %q", got)
		}

		got, _ = c.AnonymizeURLs(in, URLComplex, Internal)
		if got != "Intranet ANONYMIZED_URLINTERNAL and https://example.org/page" {
			t.Errorf("Expected only internal URLs replaced, got %q", got)
		}
	})

	t.Run("InvalidOption", func(t *testing.T) {
		if _, err := c.AnonymizeURLs("x", URLOption("fuzzy")); !errors.Is(err, ErrInvalidURLOption) {
			t.Errorf("Expected ErrInvalidURLOption, got %v", err)
		}
	})

	t.Run("Files", func(t *testing.T) {
		got := c.AnonymizeFiles("Attached budget_v2.xlsx and notes.txt")
		if got != "Attached ANONYMIZED_FILE and ANONYMIZED_FILE" {
			t.Errorf("Got %q", got)
		}
	})

	t.Run("EmailAddresses", func(t *testing.T) {
		if got := c.AnonymizeEmailAddresses("Mail anna.berg@example.co.uk now"); got != "Mail ANONYMIZED_EMAIL now" {
			t.Errorf("Standard form: got %q", got)
		}
		if got := c.AnonymizeEmailAddresses("Anna Berg/NYC/McKinsey@McKinsey wrote this"); got != "ANONYMIZED_EMAIL wrote this" {
			t.Errorf("Directory form: got %q", got)
		}
	})

	t.Run("PlaceholdersAreStable", func(t *testing.T) {
		in := "See ANONYMIZED_FILE from ANONYMIZED_NAME at ANONYMIZED_URL or ANONYMIZED_EMAIL."
		out, _ := c.AnonymizeURLs(in, URLComplex)
		out, _ = c.AnonymizeURLs(out, URLSimple)
		out = c.AnonymizeFiles(out)
		out = c.AnonymizeEmailAddresses(out)
		out, _ = c.RemoveNames(out, MethodRegex)
		if out != in {
			t.Errorf("Placeholders were rewritten: %q", out)
		}

		for _, in := range []string{
			"ANONYMIZED_NAME@example.com",
			"reply to ANONYMIZED_NAME/NYC/McKinsey@McKinsey today",
		} {
			if got := c.AnonymizeEmailAddresses(in); got != in {
				t.Errorf("Expected %q unchanged, got %q", in, got)
			}
		}

		got := c.FullClean("Please send the numbers to Anna Berg/NYC/McKinsey@McKinsey before the review.")
		if strings.Contains(got, "ANONYMIZED_ANONYMIZED") {
			t.Errorf("Placeholder was matched again: %q", got)
		}
		if !strings.Contains(got, "ANONYMIZED_") {
			t.Errorf("Expected the directory address masked, got %q", got)
		}
	})
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
