package scanner

import (
	"fmt"
	"regexp"
	"sort"

	"sysvolscan/scanner/prefilter"
)

// Finding field names filled by the credential battery.
const (
	FieldUser     = "user"
	FieldPassword = "pw"
)

// ExtractorRule pairs a compiled pattern with the capture groups it fills.
// Tokens are lowercase literals of which at least one occurs in any text the
// pattern can match; an empty list disables prefiltering for the rule.
type ExtractorRule struct {
	ID      string
	Pattern *regexp.Regexp
	Fields  map[string]string
	Tokens  []string
}

// RuleSet is an ordered, immutable battery of rules with a shared prefilter.
type RuleSet struct {
	rules  []ExtractorRule
	filter *prefilter.Prefilter
}

func NewRuleSet(rules ...ExtractorRule) RuleSet {
	kept := make([]ExtractorRule, 0, len(rules))
	tokens := make([][]string, 0, len(rules))
	for _, r := range rules {
		if r.Pattern == nil {
			continue
		}
		kept = append(kept, r)
		tokens = append(tokens, r.Tokens)
	}
	return RuleSet{rules: kept, filter: prefilter.New(tokens)}
}

func (rs RuleSet) Len() int { return len(rs.rules) }

// With returns a new set with extra appended after the existing rules.
func (rs RuleSet) With(extra ...ExtractorRule) RuleSet {
	all := make([]ExtractorRule, 0, len(rs.rules)+len(extra))
	all = append(all, rs.rules...)
	all = append(all, extra...)
	return NewRuleSet(all...)
}

// Match is one regex hit. Every field the rule declares is present; groups
// that did not participate map to "".
type Match struct {
	RuleID string
	Fields map[string]string
	Start  int
	End    int
}

func (m Match) Field(name string) string {
	return m.Fields[name]
}

// Extract runs every rule independently over the whole text and returns the
// matches rule by rule, each rule's hits in text order. Overlapping hits
// from different rules are all kept.
func Extract(text string, rs RuleSet) []Match {
	if text == "" || len(rs.rules) == 0 {
		return nil
	}
	gate := rs.filter.Gate(text)
	var matches []Match
	for i, rule := range rs.rules {
		if !gate.Allow(i) {
			continue
		}
		names := rule.Pattern.SubexpNames()
		for _, loc := range rule.Pattern.FindAllStringSubmatchIndex(text, -1) {
			m := Match{RuleID: rule.ID, Fields: make(map[string]string, len(rule.Fields)), Start: loc[0], End: loc[1]}
			for _, field := range rule.Fields {
				m.Fields[field] = ""
			}
			for g := 1; g < len(names); g++ {
				field, ok := rule.Fields[names[g]]
				if !ok || loc[2*g] < 0 {
					continue
				}
				m.Fields[field] = text[loc[2*g]:loc[2*g+1]]
			}
			matches = append(matches, m)
		}
	}
	return matches
}

var credentialFields = map[string]string{"user": FieldUser, "pw": FieldPassword}

var defaultCredentialRules = []ExtractorRule{
	{
		ID:      "net-use",
		Pattern: regexp.MustCompile(`(?i)net\s+use\s+\\\\\S+\s+/user:(?P<user>\S+)\s+(?P<pw>\S+)`),
		Fields:  credentialFields,
		Tokens:  []string{"/user:"},
	},
	{
		ID:      "secure-string",
		Pattern: regexp.MustCompile(`(?i)-AsPlainText\s+(?P<pw>\S+)`),
		Fields:  credentialFields,
		Tokens:  []string{"-asplaintext"},
	},
	{
		ID:      "secure-string-literal",
		Pattern: regexp.MustCompile(`(?i)ConvertTo-SecureString\s+(?:-String\s+)?['"](?P<pw>[^'"\r\n]+)['"]`),
		Fields:  credentialFields,
		Tokens:  []string{"convertto-securestring"},
	},
	{
		ID:      "user-assignment",
		Pattern: regexp.MustCompile(`(?i)\$?user\s*=\s*['"]?(?P<user>[^'"\r\n]+)`),
		Fields:  credentialFields,
		Tokens:  []string{"user"},
	},
	{
		ID:      "password-assignment",
		Pattern: regexp.MustCompile(`(?i)\$?(?:pass(?:word|wd)?|pwd)\s*=\s*['"]?(?P<pw>[^'"\r\n]+)`),
		Fields:  credentialFields,
		Tokens:  []string{"pass", "pwd"},
	},
}

// CredentialRules returns the built-in credential battery.
func CredentialRules() RuleSet {
	return NewRuleSet(defaultCredentialRules...)
}

// CustomRules compiles name -> pattern pairs as case-insensitive credential
// rules, ordered by name. Groups named user and pw fill the finding fields.
func CustomRules(patterns map[string]string) ([]ExtractorRule, error) {
	names := make([]string, 0, len(patterns))
	for name := range patterns {
		names = append(names, name)
	}
	sort.Strings(names)
	rules := make([]ExtractorRule, 0, len(names))
	for _, name := range names {
		re, err := regexp.Compile("(?i)" + patterns[name])
		if err != nil {
			return nil, fmt.Errorf("custom pattern %q: %w", name, err)
		}
		rules = append(rules, ExtractorRule{ID: name, Pattern: re, Fields: credentialFields})
	}
	return rules, nil
}

// A reference runs from the leading \\ to the last extension before
// whitespace, a quote or a character that cannot appear in a UNC path.
var gpoReferencePattern = regexp.MustCompile(`(?i)\\\\[^\s"'<>|]+\.\w+`)

// ExtractReferences returns the UNC references in a GPO scripts.ini body,
// first occurrence order, each distinct string once.
func ExtractReferences(text string) []string {
	hits := gpoReferencePattern.FindAllString(text, -1)
	if len(hits) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(hits))
	refs := make([]string, 0, len(hits))
	for _, hit := range hits {
		if _, ok := seen[hit]; ok {
			continue
		}
		seen[hit] = struct{}{}
		refs = append(refs, hit)
	}
	return refs
}
