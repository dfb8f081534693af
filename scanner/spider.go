package scanner

import (
	"regexp"
	"sort"
	"strings"

	"sysvolscan/config"
)

// SpiderHit aggregates what the spider battery found in one file. Every list
// is sorted and free of duplicates.
type SpiderHit struct {
	Users        []string
	Domains      []string
	Passwords    []string
	Placeholders []string
}

func (h SpiderHit) Empty() bool {
	return len(h.Users) == 0 && len(h.Domains) == 0 && len(h.Passwords) == 0 && len(h.Placeholders) == 0
}

var (
	spiderUserPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(?:user(?:name)?|login|uid)\s*[:=]\s*['"]?([^'"\s;,]+)`),
		regexp.MustCompile(`(?i)/u(?:ser)?:['"]?([^\s'"]+)`),
		regexp.MustCompile(`(?i)(?:^|\s)-u(?:ser(?:name)?)?\s+['"]?([^\s'"-][^\s'"]*)`),
	}
	spiderPasswordPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(?:pass(?:word|wd)?|pwd)\s*[:=]\s*['"]?([^'"\s;]+)`),
		regexp.MustCompile(`(?i)/p(?:assword)?:['"]?([^\s'"]+)`),
		regexp.MustCompile(`(?i)-AsPlainText\s+['"]?([^\s'"]+)`),
		regexp.MustCompile(`(?i)net\s+use\s+\\\\\S+\s+/user:\S+\s+([^\s/]\S*)`),
	}
	// DOMAIN\user, not preceded by a backslash so UNC host\share pairs stay out.
	spiderDomainUserPattern = regexp.MustCompile(`(?i)(?:^|[^\\\w.-])([a-z0-9][a-z0-9.-]{0,62})\\([a-z0-9._-]{1,64}\$?)`)
	spiderUPNPattern        = regexp.MustCompile(`(?i)\b([a-z0-9._-]{1,64})@([a-z0-9-]+(?:\.[a-z0-9-]+)+)\b`)

	placeholderPatterns = []*regexp.Regexp{
		regexp.MustCompile(`^%[A-Za-z_][\w()]*%$`),
		regexp.MustCompile(`(?i)^\$env:[A-Za-z_]\w*$`),
		regexp.MustCompile(`^\$\{?[A-Za-z_]\w*\}?$`),
	}
)

// scriptNameExtensions are file types a relative path like scripts\logon.cmd
// ends in; such a dir\file pair is not DOMAIN\user.
var scriptNameExtensions = func() map[string]bool {
	d := config.Defaults()
	set := map[string]bool{".exe": true, ".ini": true, ".txt": true, ".log": true}
	for _, ext := range append(d.ScriptExtensions, d.SpiderExtensions...) {
		set[strings.ToLower(ext)] = true
	}
	return set
}()

func isScriptName(name string) bool {
	i := strings.LastIndex(name, ".")
	return i > 0 && scriptNameExtensions[strings.ToLower(name[i:])]
}

// IsPlaceholder reports whether value is a variable reference rather than a
// literal: %NAME%, $env:NAME, $name or ${name}.
func IsPlaceholder(value string) bool {
	for _, re := range placeholderPatterns {
		if re.MatchString(value) {
			return true
		}
	}
	return false
}

// ExtractSpider runs the share-spidering battery over text.
func ExtractSpider(text string) SpiderHit {
	if text == "" {
		return SpiderHit{}
	}
	users := valueSet{}
	domains := valueSet{}
	passwords := valueSet{}
	placeholders := valueSet{}

	route := func(value string, literal valueSet) {
		value = strings.TrimRight(value, `,;)`)
		if value == "" {
			return
		}
		if IsPlaceholder(value) {
			placeholders.add(value)
			return
		}
		literal.add(value)
	}

	for _, re := range spiderUserPatterns {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			route(m[1], users)
		}
	}
	for _, re := range spiderPasswordPatterns {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			route(m[1], passwords)
		}
	}
	for _, m := range spiderDomainUserPattern.FindAllStringSubmatch(text, -1) {
		if isScriptName(m[2]) {
			continue
		}
		domains.add(m[1])
		route(m[2], users)
	}
	for _, m := range spiderUPNPattern.FindAllStringSubmatch(text, -1) {
		route(m[1], users)
		domains.add(m[2])
	}

	// a DOMAIN\user capture can also satisfy the user patterns; keep the bare name
	for _, u := range users.sorted() {
		if i := strings.LastIndex(u, `\`); i >= 0 && i+1 < len(u) {
			domains.add(u[:i])
			delete(users, u)
			users.add(u[i+1:])
		}
	}

	return SpiderHit{
		Users:        users.sorted(),
		Domains:      domains.sorted(),
		Passwords:    passwords.sorted(),
		Placeholders: placeholders.sorted(),
	}
}

type valueSet map[string]struct{}

func (s valueSet) add(v string) {
	if v != "" {
		s[v] = struct{}{}
	}
}

func (s valueSet) sorted() []string {
	if len(s) == 0 {
		return nil
	}
	out := make([]string, 0, len(s))
	for v := range s {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
