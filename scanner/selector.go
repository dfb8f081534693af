package scanner

import (
	"path"
	"strings"
)

// Selector decides whether a file name is of interest. Names are compared
// case-insensitively.
type Selector interface {
	Match(name string) bool
}

type extensionSelector map[string]struct{}

// Extensions matches names whose extension (with the dot) is in exts.
// Entries without a leading dot get one.
func Extensions(exts ...string) Selector {
	set := make(extensionSelector, len(exts))
	for _, ext := range exts {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		set[ext] = struct{}{}
	}
	return set
}

func (s extensionSelector) Match(name string) bool {
	if name == "" {
		return false
	}
	_, ok := s[strings.ToLower(path.Ext(name))]
	return ok
}

type suffixSelector []string

// NameSuffix matches names ending in any of the suffixes.
func NameSuffix(suffixes ...string) Selector {
	out := make(suffixSelector, 0, len(suffixes))
	for _, s := range suffixes {
		if s = strings.ToLower(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func (s suffixSelector) Match(name string) bool {
	lower := strings.ToLower(name)
	for _, suffix := range s {
		if strings.HasSuffix(lower, suffix) {
			return true
		}
	}
	return false
}

type allSelector []Selector

// AllOf matches when every selector matches. With no selectors nothing matches.
func AllOf(selectors ...Selector) Selector {
	return allSelector(selectors)
}

func (s allSelector) Match(name string) bool {
	if len(s) == 0 {
		return false
	}
	for _, sel := range s {
		if sel == nil || !sel.Match(name) {
			return false
		}
	}
	return true
}
