// Package rewrite applies ordered find/replace rules to raw file text.
//
// Rules operate on text, never on a syntax tree. Rule authors verify their
// patterns against sample text, and upgrading to structural parsing would
// silently change what those hand-checked patterns mean.
package rewrite

import (
	"regexp"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"gitlab.com/tozd/go/errors"

	"github.com/walteh/fixrc/pkg/config"
)

// Kind discriminates the rule variants
type Kind int

const (
	KindLiteral Kind = iota // exact substring swap
	KindRegex               // regexp with $1-style expansion
	KindFunc                // regexp with a replacement function over match groups
)

// Rule is one ordered, immutable rewrite
type Rule struct {
	ID             string
	Kind           Kind
	Pattern        string
	Replacement    string
	ReplaceFunc    func(groups []string) string
	Description    string
	FileFilterGlob string

	re *regexp.Regexp
}

// NewLiteralRule creates an exact substring rule
func NewLiteralRule(id, from, to string) Rule {
	return Rule{ID: id, Kind: KindLiteral, Pattern: from, Replacement: to}
}

// NewRegexRule creates a regexp rule with $1-style expansion
func NewRegexRule(id, pattern, replacement string) (Rule, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return Rule{}, errors.Errorf("rule %q: compiling pattern: %w", id, err)
	}
	return Rule{ID: id, Kind: KindRegex, Pattern: pattern, Replacement: replacement, re: re}, nil
}

// NewFuncRule creates a regexp rule whose replacement is computed from the
// match groups. Function rules are authored in code, never persisted.
func NewFuncRule(id, pattern string, fn func(groups []string) string) (Rule, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return Rule{}, errors.Errorf("rule %q: compiling pattern: %w", id, err)
	}
	return Rule{ID: id, Kind: KindFunc, Pattern: pattern, ReplaceFunc: fn, re: re}, nil
}

// FromConfig compiles declarative rule configs into rules
func FromConfig(cfgs []config.RuleConfig) ([]Rule, error) {
	rules := make([]Rule, 0, len(cfgs))
	for _, c := range cfgs {
		var rule Rule
		var err error
		switch c.Kind {
		case "regex":
			rule, err = NewRegexRule(c.ID, c.Pattern, c.Replacement)
			if err != nil {
				return nil, err
			}
		default:
			rule = NewLiteralRule(c.ID, c.Pattern, c.Replacement)
		}
		rule.Description = c.Description
		rule.FileFilterGlob = c.FileFilterGlob
		rules = append(rules, rule)
	}
	if err := ValidateRules(rules); err != nil {
		return nil, err
	}
	return rules, nil
}

// MatchesFile reports whether the rule applies to the given path.
// An empty filter matches every file.
func (r Rule) MatchesFile(path string) bool {
	if r.FileFilterGlob == "" {
		return true
	}
	ok, err := doublestar.Match(r.FileFilterGlob, strings.ReplaceAll(path, "\\", "/"))
	return err == nil && ok
}

// Result holds the rewritten content and per-rule audit counts
type Result struct {
	Content     string
	Applied     map[string]int // rule id -> non-overlapping replacements made
	WasModified bool
}

// FixesApplied sums all per-rule counts
func (r Result) FixesApplied() int {
	total := 0
	for _, n := range r.Applied {
		total += n
	}
	return total
}

// Apply runs the rules in order over content. Rules whose pattern finds
// nothing are skipped silently; only rules that replaced something appear
// in the audit counts.
func Apply(content string, rules []Rule) (Result, error) {
	result := Result{Content: content, Applied: map[string]int{}}

	current := content
	for _, rule := range rules {
		var next string
		var count int

		switch rule.Kind {
		case KindLiteral:
			if rule.Pattern == "" {
				continue
			}
			count = strings.Count(current, rule.Pattern)
			if count == 0 {
				continue
			}
			next = strings.ReplaceAll(current, rule.Pattern, rule.Replacement)

		case KindRegex:
			if rule.re == nil {
				return Result{}, errors.Errorf("rule %q: pattern not compiled", rule.ID)
			}
			count = len(rule.re.FindAllStringIndex(current, -1))
			if count == 0 {
				continue
			}
			next = rule.re.ReplaceAllString(current, rule.Replacement)

		case KindFunc:
			if rule.re == nil || rule.ReplaceFunc == nil {
				return Result{}, errors.Errorf("rule %q: func rule missing pattern or function", rule.ID)
			}
			count = len(rule.re.FindAllStringIndex(current, -1))
			if count == 0 {
				continue
			}
			next = rule.re.ReplaceAllStringFunc(current, func(match string) string {
				return rule.ReplaceFunc(rule.re.FindStringSubmatch(match))
			})

		default:
			return Result{}, errors.Errorf("rule %q: unknown kind %d", rule.ID, rule.Kind)
		}

		if next != current {
			result.WasModified = true
			result.Applied[rule.ID] += count
		}
		current = next
	}

	result.Content = current
	return result, nil
}

// ValidateRules checks rule ids, patterns, and variant completeness
func ValidateRules(rules []Rule) error {
	seen := map[string]bool{}
	for i, rule := range rules {
		if rule.ID == "" {
			return errors.Errorf("rule %d: id is required", i)
		}
		if seen[rule.ID] {
			return errors.Errorf("rule %q: duplicate id", rule.ID)
		}
		seen[rule.ID] = true
		if rule.Pattern == "" {
			return errors.Errorf("rule %q: pattern is required", rule.ID)
		}
		switch rule.Kind {
		case KindLiteral:
		case KindRegex:
			if rule.re == nil {
				return errors.Errorf("rule %q: pattern not compiled", rule.ID)
			}
		case KindFunc:
			if rule.re == nil {
				return errors.Errorf("rule %q: pattern not compiled", rule.ID)
			}
			if rule.ReplaceFunc == nil {
				return errors.Errorf("rule %q: replacement function is required", rule.ID)
			}
		default:
			return errors.Errorf("rule %q: unknown kind %d", rule.ID, rule.Kind)
		}
	}
	return nil
}
