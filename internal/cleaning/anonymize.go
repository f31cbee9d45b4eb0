package cleaning

import (
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/net/publicsuffix"
)

// AnonymizeURLs replaces URLs with the URL placeholder. With disambiguation the
// placeholder is suffixed INTERNAL or EXTERNAL and only the requested kinds are
// replaced; every occurrence of a matched literal gets the label of its first match.
func (c *Cleaner) AnonymizeURLs(text string, option URLOption, disambiguate ...Disambiguation) (string, error) {
	switch option {
	case URLSimple, URLComplex:
	default:
		return text, fmt.Errorf("%w: %q", ErrInvalidURLOption, option)
	}
	for _, d := range disambiguate {
		if d != Internal && d != External {
			return text, fmt.Errorf("%w: disambiguation %q", ErrInvalidURLOption, d)
		}
	}
	return c.anonymizeURLs(text, option, disambiguate, nil), nil
}

func (c *Cleaner) anonymizeURLs(text string, option URLOption, disambiguate []Disambiguation, t *tally) string {
	rule := c.urlComplex
	if option == URLSimple {
		rule = c.urlSimple
	}

	if len(disambiguate) == 0 {
		return c.applyRules("anonymize_urls", []Rule{rule}, text, t)
	}

	want := make(map[Disambiguation]bool, len(disambiguate))
	for _, d := range disambiguate {
		want[d] = true
	}

	for _, match := range c.findAll(rule, text, 0) {
		if match == "" || !strings.Contains(text, match) {
			continue
		}
		kind := External
		if c.isInternal(match) {
			kind = Internal
		}
		if !want[kind] {
			continue
		}
		label := PlaceholderURL + strings.ToUpper(string(kind))
		n := strings.Count(text, match)
		text = strings.ReplaceAll(text, match, label)
		t.add("anonymize_urls", string(kind)+"_url", n)
		c.logger.Debug("URL anonymized", zap.String("kind", string(kind)), zap.Int("count", n))
	}
	return text
}

// isInternal reports whether the URL's host belongs to the internal domain
func (c *Cleaner) isInternal(raw string) bool {
	domain := strings.ToLower(strings.TrimSpace(c.config.InternalDomain))
	if domain == "" {
		return false
	}

	host := hostOf(raw)
	if host == "" {
		return strings.Contains(strings.ToLower(raw), domain)
	}
	if host == domain || strings.HasSuffix(host, "."+domain) {
		return true
	}

	hostSite, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return false
	}
	domainSite, err := publicsuffix.EffectiveTLDPlusOne(domain)
	if err != nil {
		return false
	}
	return hostSite == domainSite
}

func hostOf(raw string) string {
	candidate := raw
	if !strings.Contains(candidate, "://") {
		candidate = "http://" + strings.TrimLeft(candidate, "/:")
	}
	u, err := url.Parse(candidate)
	if err != nil {
		return ""
	}
	return strings.ToLower(strings.TrimSuffix(u.Hostname(), "."))
}
