// Package prefilter decides which extraction rules can possibly match a text
// before any regular expression runs.
package prefilter

import (
	"strings"

	"github.com/cloudflare/ahocorasick"
)

// Texts shorter than this are checked token by token; the automaton only
// pays off on larger inputs.
const autoAhoMinContentBytes = 4 * 1024

// Gate reports, per rule index, whether the rule may match.
type Gate struct {
	allowAll bool
	allowed  []bool
}

func (g Gate) Allow(rule int) bool {
	if g.allowAll {
		return true
	}
	if rule < 0 || rule >= len(g.allowed) {
		return true
	}
	return g.allowed[rule]
}

// Prefilter maps literal tokens to the rules that require them. A rule with
// no tokens is always allowed. A rule with tokens is allowed when any one of
// them occurs in the text, compared case-insensitively.
type Prefilter struct {
	tokens     []string
	ruleTokens [][]int
	matcher    *ahocorasick.Matcher
}

func New(ruleTokens [][]string) *Prefilter {
	p := &Prefilter{ruleTokens: make([][]int, len(ruleTokens))}
	index := make(map[string]int)
	for rule, tokens := range ruleTokens {
		for _, token := range tokens {
			token = strings.ToLower(strings.TrimSpace(token))
			if token == "" {
				continue
			}
			idx, ok := index[token]
			if !ok {
				idx = len(p.tokens)
				index[token] = idx
				p.tokens = append(p.tokens, token)
			}
			p.ruleTokens[rule] = append(p.ruleTokens[rule], idx)
		}
	}
	if len(p.tokens) > 0 {
		p.matcher = ahocorasick.NewStringMatcher(p.tokens)
	}
	return p
}

// Gate evaluates the text. Non-ASCII text bypasses the filter: (?i) patterns
// fold characters such as U+017F to ASCII letters, which byte lowering
// would miss.
func (p *Prefilter) Gate(content string) Gate {
	if p == nil || len(p.tokens) == 0 || !isASCII(content) {
		return Gate{allowAll: true}
	}

	present := make([]bool, len(p.tokens))
	if len(content) < autoAhoMinContentBytes {
		for i, token := range p.tokens {
			present[i] = tokenContainsFoldASCII(content, token)
		}
	} else {
		for _, idx := range p.matcher.MatchThreadSafe([]byte(strings.ToLower(content))) {
			if idx >= 0 && idx < len(present) {
				present[idx] = true
			}
		}
	}

	allowed := make([]bool, len(p.ruleTokens))
	for rule, tokens := range p.ruleTokens {
		if len(tokens) == 0 {
			allowed[rule] = true
			continue
		}
		for _, idx := range tokens {
			if present[idx] {
				allowed[rule] = true
				break
			}
		}
	}
	return Gate{allowed: allowed}
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			return false
		}
	}
	return true
}

func tokenContainsFoldASCII(content, token string) bool {
	if token == "" {
		return true
	}
	n := len(token)
	if n > len(content) {
		return false
	}
	first := toASCIILower(token[0])
	limit := len(content) - n
	for i := 0; i <= limit; i++ {
		if toASCIILower(content[i]) != first {
			continue
		}
		matched := true
		for j := 1; j < n; j++ {
			if toASCIILower(content[i+j]) != toASCIILower(token[j]) {
				matched = false
				break
			}
		}
		if matched {
			return true
		}
	}
	return false
}

func toASCIILower(b byte) byte {
	if b >= 'A' && b <= 'Z' {
		return b + ('a' - 'A')
	}
	return b
}
