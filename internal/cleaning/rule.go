package cleaning

import (
	"fmt"
	"time"

	"github.com/dlclark/regexp2"
	"go.uber.org/zap"
)

// Rule is one compiled substitution of a stage
type Rule struct {
	Name        string
	Pattern     *regexp2.Regexp
	Replacement string
}

func compileRule(spec ruleSpec, timeout time.Duration) (Rule, error) {
	re, err := regexp2.Compile(spec.expr, spec.opts)
	if err != nil {
		return Rule{}, fmt.Errorf("failed to compile rule %s: %w", spec.name, err)
	}
	if timeout > 0 {
		re.MatchTimeout = timeout
	}
	return Rule{Name: spec.name, Pattern: re, Replacement: spec.replacement}, nil
}

func compileRules(specs []ruleSpec, timeout time.Duration) ([]Rule, error) {
	rules := make([]Rule, 0, len(specs))
	for _, spec := range specs {
		rule, err := compileRule(spec, timeout)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

// replace substitutes every match with the literal replacement and reports the count.
// Replacements never expand group references.
func (r Rule) replace(text string) (string, int, error) {
	n := 0
	out, err := r.Pattern.ReplaceFunc(text, func(regexp2.Match) string {
		n++
		return r.Replacement
	}, -1, -1)
	if err != nil {
		return text, 0, err
	}
	return out, n, nil
}

// applyRules runs rules in order. A rule that times out leaves the text as it was.
func (c *Cleaner) applyRules(stage string, rules []Rule, text string, t *tally) string {
	for _, rule := range rules {
		out, n, err := rule.replace(text)
		if err != nil {
			c.logger.Warn("Cleaning rule skipped",
				zap.String("stage", stage),
				zap.String("rule", rule.Name),
				zap.Int("text_length", len(text)),
				zap.Error(fmt.Errorf("%w: %v", ErrPatternTimeout, err)),
			)
			continue
		}
		if n > 0 {
			c.logger.Debug("Cleaning rule applied",
				zap.String("stage", stage),
				zap.String("rule", rule.Name),
				zap.Int("count", n),
			)
		}
		t.add(stage, rule.Name, n)
		text = out
	}
	return text
}
