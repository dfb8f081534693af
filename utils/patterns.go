package utils

import (
	"path"
	"regexp"
	"strings"
)

// PatternMatcher filters share-relative paths. Globs match the base name,
// regexes match the whole path. Both are case-insensitive since SMB names are.
type PatternMatcher struct {
	includeGlobs []string
	includeRegex []*regexp.Regexp
	excludeGlobs []string
	excludeRegex []*regexp.Regexp
}

func NewPatternMatcher(includePatterns, excludePatterns []string) *PatternMatcher {
	return &PatternMatcher{
		includeGlobs: lowerAll(includePatterns),
		includeRegex: compileRegex(includePatterns),
		excludeGlobs: lowerAll(excludePatterns),
		excludeRegex: compileRegex(excludePatterns),
	}
}

func (m *PatternMatcher) ShouldInclude(p string) bool {
	if m == nil {
		return true
	}
	if (len(m.includeGlobs) > 0 || len(m.includeRegex) > 0) && !m.matches(p, m.includeGlobs, m.includeRegex) {
		return false
	}
	if (len(m.excludeGlobs) > 0 || len(m.excludeRegex) > 0) && m.matches(p, m.excludeGlobs, m.excludeRegex) {
		return false
	}
	return true
}

func (m *PatternMatcher) matches(p string, globs []string, regexes []*regexp.Regexp) bool {
	base := strings.ToLower(path.Base(p))
	for _, pattern := range globs {
		matched, _ := path.Match(pattern, base)
		if matched {
			return true
		}
	}
	for _, re := range regexes {
		if re.MatchString(p) {
			return true
		}
	}
	return false
}

func compileRegex(patterns []string) []*regexp.Regexp {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, pattern := range patterns {
		if re, err := regexp.Compile("(?i)" + pattern); err == nil {
			compiled = append(compiled, re)
		}
	}
	return compiled
}

func lowerAll(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, strings.ToLower(item))
	}
	return out
}
