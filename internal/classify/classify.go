// Package classify maps expense lines to canonical categories with an ordered
// list of tagged rules. The default table ships embedded as rules.yaml and
// can be replaced by a file with the same schema.
package classify

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"agfdash/internal/core"
)

//go:embed rules.yaml
var defaultRules []byte

// Kind tags how a rule matches.
type Kind string

const (
	KindIDExact          Kind = "id_exact"
	KindNameExact        Kind = "name_exact"
	KindNameSubstring    Kind = "name_substring"
	KindDescriptionRegex Kind = "description_regex"
	KindDefault          Kind = "default"
)

// RuleSet is the on-disk rule table.
type RuleSet struct {
	Version int           `yaml:"version"`
	Default core.Category `yaml:"default"`
	Rules   []Rule        `yaml:"rules"`
}

// Rule is one entry of the cascade. Which fields apply depends on Kind.
type Rule struct {
	Name     string                   `yaml:"name"`
	Kind     Kind                     `yaml:"kind"`
	Category core.Category            `yaml:"category,omitempty"`
	IDs      map[string]core.Category `yaml:"ids,omitempty"`
	Names    map[string]core.Category `yaml:"names,omitempty"`
	Contains []string                 `yaml:"contains,omitempty"`
	Equals   []string                 `yaml:"equals,omitempty"`
	Pattern  string                   `yaml:"pattern,omitempty"`

	re *regexp.Regexp
}

// Input is what the classifier sees of an expense line.
type Input struct {
	CategoryID   string
	CategoryName string
	Description  string
}

// Decision is a classification together with the rule that produced it.
type Decision struct {
	Category core.Category
	Rule     string
	Kind     Kind
}

// Classifier evaluates a compiled rule set.
type Classifier struct {
	rules []Rule
	def   core.Category
}

// New validates and compiles a rule set.
func New(rs RuleSet) (*Classifier, error) {
	def := rs.Default
	if def == "" {
		def = core.CategoryExtras
	}
	if !def.IsCanonical() {
		return nil, fmt.Errorf("default category %q is not canonical", def)
	}

	rules := make([]Rule, 0, len(rs.Rules))
	for i, r := range rs.Rules {
		compiled, err := compile(r)
		if err != nil {
			return nil, fmt.Errorf("rule %d (%s): %w", i, r.Name, err)
		}
		rules = append(rules, compiled)
	}
	return &Classifier{rules: rules, def: def}, nil
}

// Parse decodes and compiles a YAML rule table.
func Parse(data []byte) (*Classifier, error) {
	var rs RuleSet
	if err := yaml.Unmarshal(data, &rs); err != nil {
		return nil, fmt.Errorf("decode rules: %w", err)
	}
	return New(rs)
}

// LoadFile reads a rule table from disk.
func LoadFile(path string) (*Classifier, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules file: %w", err)
	}
	return Parse(data)
}

// Default returns the classifier built from the embedded table.
func Default() *Classifier {
	c, err := Parse(defaultRules)
	if err != nil {
		panic(fmt.Sprintf("embedded classifier rules are invalid: %v", err))
	}
	return c
}

// DefaultRules returns the embedded rule table as YAML.
func DefaultRules() []byte {
	return append([]byte(nil), defaultRules...)
}

// Classify returns the canonical category for an expense line.
func (c *Classifier) Classify(in Input) core.Category {
	return c.Explain(in).Category
}

// Explain runs the cascade and reports which rule matched.
func (c *Classifier) Explain(in Input) Decision {
	id := strings.TrimSpace(in.CategoryID)
	name := core.Fold(in.CategoryName, true)
	desc := core.Fold(in.Description, true)

	for _, r := range c.rules {
		if cat, ok := r.match(id, name, desc); ok {
			return Decision{Category: cat.OrDefault(), Rule: r.Name, Kind: r.Kind}
		}
	}
	return Decision{Category: c.def, Rule: string(KindDefault), Kind: KindDefault}
}

// Rules returns the number of compiled rules.
func (c *Classifier) Rules() int {
	return len(c.rules)
}

func (r Rule) match(id, name, desc string) (core.Category, bool) {
	switch r.Kind {
	case KindIDExact:
		if id == "" {
			return "", false
		}
		cat, ok := r.IDs[id]
		return cat, ok
	case KindNameExact:
		if name == "" {
			return "", false
		}
		cat, ok := r.Names[name]
		return cat, ok
	case KindNameSubstring:
		if name == "" {
			return "", false
		}
		for _, e := range r.Equals {
			if name == e {
				return r.Category, true
			}
		}
		for _, s := range r.Contains {
			if strings.Contains(name, s) {
				return r.Category, true
			}
		}
		return "", false
	case KindDescriptionRegex:
		if desc == "" {
			return "", false
		}
		return r.Category, r.re.MatchString(desc)
	default:
		return "", false
	}
}

func compile(r Rule) (Rule, error) {
	switch r.Kind {
	case KindIDExact:
		if len(r.IDs) == 0 {
			return r, fmt.Errorf("id_exact rule has no ids")
		}
		for id, cat := range r.IDs {
			if !cat.IsCanonical() {
				return r, fmt.Errorf("id %s maps to non-canonical category %q", id, cat)
			}
		}
	case KindNameExact:
		if len(r.Names) == 0 {
			return r, fmt.Errorf("name_exact rule has no names")
		}
		folded := make(map[string]core.Category, len(r.Names))
		for name, cat := range r.Names {
			if !cat.IsCanonical() {
				return r, fmt.Errorf("name %q maps to non-canonical category %q", name, cat)
			}
			folded[core.Fold(name, true)] = cat
		}
		r.Names = folded
	case KindNameSubstring:
		if !r.Category.IsCanonical() {
			return r, fmt.Errorf("non-canonical category %q", r.Category)
		}
		if len(r.Contains) == 0 && len(r.Equals) == 0 {
			return r, fmt.Errorf("name_substring rule has no terms")
		}
		r.Contains = foldAll(r.Contains)
		r.Equals = foldAll(r.Equals)
	case KindDescriptionRegex:
		if !r.Category.IsCanonical() {
			return r, fmt.Errorf("non-canonical category %q", r.Category)
		}
		// Descriptions are matched folded, so accents are stripped from the
		// pattern as well. Case is left alone to keep escapes like \S intact.
		re, err := regexp.Compile(core.Fold(r.Pattern, false))
		if err != nil {
			return r, fmt.Errorf("compile pattern: %w", err)
		}
		r.re = re
	default:
		return r, fmt.Errorf("unknown rule kind %q", r.Kind)
	}
	return r, nil
}

func foldAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if f := core.Fold(s, true); f != "" {
			out = append(out, f)
		}
	}
	return out
}
