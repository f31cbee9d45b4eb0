package cleaning

import (
	"fmt"
	"strings"
)

// Placeholder tokens substituted for redacted spans
const (
	PlaceholderName  = "ANONYMIZED_NAME"
	PlaceholderURL   = "ANONYMIZED_URL"
	PlaceholderFile  = "ANONYMIZED_FILE"
	PlaceholderEmail = "ANONYMIZED_EMAIL"
)

// Method selects how personal names are found
type Method string

const (
	// MethodRegex redacts Title Case runs. Aggressive, also hits capitalized phrases.
	MethodRegex Method = "regex"
	// MethodEmailAddresses derives candidates from From: lines and address local parts.
	MethodEmailAddresses Method = "email_addresses"
	// MethodDatabase is reserved. It is accepted and performs no redaction.
	MethodDatabase Method = "database"
)

// ParseMethod converts a configuration tag into a Method
func ParseMethod(tag string) (Method, error) {
	switch strings.ToLower(strings.TrimSpace(tag)) {
	case "regex":
		return MethodRegex, nil
	case "email_addresses", "email_adresses":
		return MethodEmailAddresses, nil
	case "database":
		return MethodDatabase, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidMethod, tag)
}

// URLOption selects the URL pattern
type URLOption string

const (
	// URLSimple is a loose domain+path heuristic that needs no scheme
	URLSimple URLOption = "simple"
	// URLComplex excludes trailing punctuation and requires a known TLD
	URLComplex URLOption = "complex"
)

// ParseURLOption converts a configuration tag into a URLOption
func ParseURLOption(tag string) (URLOption, error) {
	switch URLOption(strings.ToLower(strings.TrimSpace(tag))) {
	case URLSimple:
		return URLSimple, nil
	case URLComplex, "":
		return URLComplex, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidURLOption, tag)
}

// Disambiguation labels a URL placeholder by origin
type Disambiguation string

const (
	Internal Disambiguation = "internal"
	External Disambiguation = "external"
)

// ParseDisambiguation converts configuration tags into Disambiguation values
func ParseDisambiguation(tags []string) ([]Disambiguation, error) {
	out := make([]Disambiguation, 0, len(tags))
	for _, tag := range tags {
		switch d := Disambiguation(strings.ToLower(strings.TrimSpace(tag))); d {
		case Internal, External:
			out = append(out, d)
		default:
			return nil, fmt.Errorf("%w: disambiguation %q", ErrInvalidURLOption, tag)
		}
	}
	return out, nil
}

// Finding counts the substitutions one rule made
type Finding struct {
	Stage string `json:"stage"`
	Rule  string `json:"rule"`
	Count int    `json:"count"`
}

// Result is the outcome of running the full pipeline
type Result struct {
	Cleaned  string    `json:"cleaned"`
	Findings []Finding `json:"findings"`
	Original string    `json:"-"` // Never serialize original text
}

// tally accumulates findings during one pipeline run. A nil tally records nothing.
type tally struct {
	findings []Finding
}

func (t *tally) add(stage, rule string, n int) {
	if t == nil || n == 0 {
		return
	}
	t.findings = append(t.findings, Finding{Stage: stage, Rule: rule, Count: n})
}
