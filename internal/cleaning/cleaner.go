package cleaning

import (
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/raaihank/mail-sentinel/internal/config"
)

// Stage is one named transform of the pipeline
type Stage struct {
	Name string
	run  func(text string, t *tally) string
}

// Apply runs the stage on its own
func (s Stage) Apply(text string) string {
	return s.run(text, nil)
}

// Cleaner anonymizes and normalizes email bodies.
// It is safe for concurrent use once built.
type Cleaner struct {
	config       config.CleaningConfig
	logger       *zap.Logger
	methods      []Method
	urlOption    URLOption
	disambiguate []Disambiguation
	thread       *ThreadDeduplicator

	replies           []Rule
	greetings         []Rule
	whitespace        []Rule
	metadata          []Rule
	signatures        []Rule
	fixedTerms        []Rule
	files             []Rule
	addresses         []Rule
	redundantNewlines []Rule
	strictNewline     []Rule
	looseNewline      []Rule
	spaces            []Rule

	names      Rule
	urlSimple  Rule
	urlComplex Rule
	senders    Rule
	mailboxes  Rule

	stages []Stage
}

// New compiles every pattern table once and assembles the pipeline
func New(cfg config.CleaningConfig, log *zap.Logger) (*Cleaner, error) {
	if log == nil {
		log = zap.NewNop()
	}

	c := &Cleaner{
		config: cfg,
		logger: log,
	}

	for _, tag := range cfg.NameMethods {
		m, err := ParseMethod(tag)
		if err != nil {
			return nil, err
		}
		c.methods = append(c.methods, m)
	}
	if len(c.methods) == 0 {
		c.methods = []Method{MethodRegex}
	}

	opt, err := ParseURLOption(cfg.URLOption)
	if err != nil {
		return nil, err
	}
	c.urlOption = opt

	if c.disambiguate, err = ParseDisambiguation(cfg.Disambiguate); err != nil {
		return nil, err
	}

	if err := c.compile(buildPatterns(cfg.InternalDomain, cfg.OrganizationNames)); err != nil {
		return nil, err
	}

	if c.thread, err = NewThreadDeduplicator(cfg.Thread); err != nil {
		return nil, err
	}

	c.stages = c.buildStages()

	log.Info("Email cleaner initialized",
		zap.Int("stages", len(c.stages)),
		zap.Strings("name_methods", cfg.NameMethods),
		zap.String("url_option", string(c.urlOption)),
		zap.Duration("regex_timeout", cfg.RegexTimeout),
	)

	return c, nil
}

func (c *Cleaner) compile(lib patternLibrary) error {
	timeout := c.config.RegexTimeout
	tables := []struct {
		dst   *[]Rule
		specs []ruleSpec
	}{
		{&c.replies, lib.replies},
		{&c.greetings, lib.greetings},
		{&c.whitespace, lib.whitespace},
		{&c.metadata, lib.metadata},
		{&c.signatures, lib.signatures},
		{&c.fixedTerms, lib.fixedTerms},
		{&c.files, lib.files},
		{&c.addresses, lib.addresses},
		{&c.redundantNewlines, lib.redundantNewlines},
		{&c.strictNewline, lib.strictNewline},
		{&c.looseNewline, lib.looseNewline},
		{&c.spaces, lib.spaces},
	}
	for _, table := range tables {
		rules, err := compileRules(table.specs, timeout)
		if err != nil {
			return err
		}
		*table.dst = rules
	}

	singles := []struct {
		dst  *Rule
		spec ruleSpec
	}{
		{&c.names, lib.names},
		{&c.urlSimple, lib.urlSimple},
		{&c.urlComplex, lib.urlComplex},
		{&c.senders, lib.senders},
		{&c.mailboxes, lib.mailboxes},
	}
	for _, single := range singles {
		rule, err := compileRule(single.spec, timeout)
		if err != nil {
			return err
		}
		*single.dst = rule
	}
	return nil
}

// buildStages fixes the pipeline order. Greetings and reply anchors are removed
// before Title Case name redaction so their openers are still recognizable.
func (c *Cleaner) buildStages() []Stage {
	return []Stage{
		{"remove_repeated_replies", func(s string, t *tally) string {
			return c.applyRules("remove_repeated_replies", c.replies, s, t)
		}},
		{"remove_greetings", func(s string, t *tally) string {
			return c.applyRules("remove_greetings", c.greetings, s, t)
		}},
		{"fix_whitespace_formatting", func(s string, t *tally) string {
			return c.applyRules("fix_whitespace_formatting", c.whitespace, s, t)
		}},
		{"remove_email_metadata", func(s string, t *tally) string {
			return c.applyRules("remove_email_metadata", c.metadata, s, t)
		}},
		{"remove_signatures", func(s string, t *tally) string {
			return c.applyRules("remove_signatures", c.signatures, s, t)
		}},
		{"remove_names", func(s string, t *tally) string {
			// methods were validated in New
			out, _ := c.removeNames(s, c.methods, t)
			return out
		}},
		{"clean_fixed_terms", c.cleanFixedTerms},
		{"anonymize_urls", func(s string, t *tally) string {
			return c.anonymizeURLs(s, c.urlOption, c.disambiguate, t)
		}},
		{"anonymize_files", func(s string, t *tally) string {
			return c.applyRules("anonymize_files", c.files, s, t)
		}},
		{"anonymize_email_addresses", func(s string, t *tally) string {
			return c.applyRules("anonymize_email_addresses", c.addresses, s, t)
		}},
		{"clean_redundant_new_lines", func(s string, t *tally) string {
			return c.applyRules("clean_redundant_new_lines", c.redundantNewlines, s, t)
		}},
		{"clean_single_leading_newline", func(s string, t *tally) string {
			return c.cleanSingleLeadingNewline(s, c.config.StrictNewlines, t)
		}},
		{"collapse_multiple_spaces", func(s string, t *tally) string {
			return c.applyRules("collapse_multiple_spaces", c.spaces, s, t)
		}},
		{"remove_repeating_paragraphs", func(s string, _ *tally) string {
			return c.thread.RemoveRepeatingParagraphs(s)
		}},
	}
}

// Stages returns the ordered pipeline
func (c *Cleaner) Stages() []Stage {
	out := make([]Stage, len(c.stages))
	copy(out, c.stages)
	return out
}

// Thread returns the deduplicator used by the last stage
func (c *Cleaner) Thread() *ThreadDeduplicator {
	return c.thread
}

// FullClean runs the whole pipeline on one email body
func (c *Cleaner) FullClean(text string) string {
	return c.run(text, nil)
}

// Clean runs the whole pipeline and reports what each rule removed
func (c *Cleaner) Clean(text string) *Result {
	t := &tally{findings: make([]Finding, 0)}
	cleaned := c.run(text, t)
	return &Result{
		Cleaned:  cleaned,
		Findings: t.findings,
		Original: text,
	}
}

func (c *Cleaner) run(text string, t *tally) string {
	text = c.truncate(text)
	for _, stage := range c.stages {
		text = stage.run(text, t)
	}
	return text
}

// truncate bounds the input so adversarial bodies cannot pin a worker
func (c *Cleaner) truncate(text string) string {
	limit := c.config.MaxInputBytes
	if limit <= 0 || len(text) <= limit {
		return text
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	c.logger.Warn("Email body truncated before cleaning",
		zap.Int("length", len(text)),
		zap.Int("limit", limit),
	)
	return text[:cut]
}

// RemoveRepeatedReplies drops everything from the first reply anchor onwards
func (c *Cleaner) RemoveRepeatedReplies(text string) string {
	return c.applyRules("remove_repeated_replies", c.replies, text, nil)
}

// RemoveGreetings drops short greeting openers followed by a paragraph break
func (c *Cleaner) RemoveGreetings(text string) string {
	return c.applyRules("remove_greetings", c.greetings, text, nil)
}

// RemoveEmailMetadata strips header-like lines and metadata blocks
func (c *Cleaner) RemoveEmailMetadata(text string) string {
	return c.applyRules("remove_email_metadata", c.metadata, text, nil)
}

// RemoveSignatures strips closing phrases with the name below them, phone blocks and footers
func (c *Cleaner) RemoveSignatures(text string) string {
	return c.applyRules("remove_signatures", c.signatures, text, nil)
}

// AnonymizeFiles replaces file names with known document extensions
func (c *Cleaner) AnonymizeFiles(text string) string {
	return c.applyRules("anonymize_files", c.files, text, nil)
}

// AnonymizeEmailAddresses replaces directory style and standard addresses
func (c *Cleaner) AnonymizeEmailAddresses(text string) string {
	return c.applyRules("anonymize_email_addresses", c.addresses, text, nil)
}
