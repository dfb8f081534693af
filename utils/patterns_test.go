package utils

import "testing"

func TestShouldInclude(t *testing.T) {
	matcher := NewPatternMatcher(nil, nil)
	if !matcher.ShouldInclude("file.txt") {
		t.Fatal("expected include by default")
	}
	matcher = NewPatternMatcher([]string{"*.ps1"}, nil)
	if matcher.ShouldInclude("deploy/setup.bat") {
		t.Fatal("should not include unmatched include pattern")
	}
	if !matcher.ShouldInclude("deploy/Setup.PS1") {
		t.Fatal("should include matching include pattern regardless of case")
	}
	matcher = NewPatternMatcher(nil, []string{"backup*"})
	if matcher.ShouldInclude("old/Backup-2019.cmd") {
		t.Fatal("should exclude matching exclude pattern")
	}
	if !matcher.ShouldInclude("old/map.cmd") {
		t.Fatal("should include when exclude does not match")
	}
	matcher = NewPatternMatcher(nil, []string{"^windows/"})
	if matcher.ShouldInclude("Windows/System32/x.cmd") {
		t.Fatal("should match regex exclude pattern on full path")
	}
	var nilMatcher *PatternMatcher
	if !nilMatcher.ShouldInclude("anything") {
		t.Fatal("nil matcher should include")
	}
}
