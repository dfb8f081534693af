package scanner

import (
	"context"
	"strings"
	"testing"

	"golang.org/x/time/rate"
)

func TestSelectors(t *testing.T) {
	ext := Extensions("BAT", ".ps1")
	for _, name := range []string{"logon.bat", "LOGON.BAT", "map.Ps1"} {
		if !ext.Match(name) {
			t.Fatalf("expected %s to match", name)
		}
	}
	for _, name := range []string{"logon.bak", "bat", ""} {
		if ext.Match(name) {
			t.Fatalf("expected %s not to match", name)
		}
	}
	ini := AllOf(Extensions(".ini"), NameSuffix("scripts.ini"))
	if !ini.Match("PSScripts.ini") || !ini.Match("scripts.INI") {
		t.Fatal("expected scripts.ini variants to match")
	}
	if ini.Match("GPT.ini") {
		t.Fatal("GPT.ini must not match")
	}
	if AllOf().Match("anything") {
		t.Fatal("empty AllOf must match nothing")
	}
}

func TestWalkYieldsExactlyMatchingFiles(t *testing.T) {
	s := newFakeSession(testHost())
	s.add("SYSVOL", "corp.local/scripts/a.bat", "x").
		add("SYSVOL", "corp.local/scripts/readme.txt", "x").
		add("SYSVOL", "corp.local/scripts/sub/b.CMD", "x").
		add("SYSVOL", "corp.local/scripts/sub/deeper/c.ps1", "x").
		add("SYSVOL", "corp.local/scripts/sub/deeper/d.vbs.old", "x")

	w := NewWalker(s, nil, nil)
	target := Target{Share: "SYSVOL", Root: "corp.local/scripts", Selector: Extensions(".bat", ".cmd", ".ps1")}
	got := collectRefs(w.Walk(context.Background(), target))
	want := []string{
		"SYSVOL/corp.local/scripts/a.bat",
		"SYSVOL/corp.local/scripts/sub/b.CMD",
		"SYSVOL/corp.local/scripts/sub/deeper/c.ps1",
	}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("unexpected walk result:\n got %v\nwant %v", got, want)
	}
	for _, listed := range s.listed() {
		if strings.HasSuffix(listed, "/.") || strings.HasSuffix(listed, "/..") {
			t.Fatalf("walker descended into %s", listed)
		}
	}
}

func TestWalkSurvivesFailingSubtree(t *testing.T) {
	s := newFakeSession(testHost())
	s.add("SYSVOL", "corp.local/scripts/broken/hidden.bat", "x").
		add("SYSVOL", "corp.local/scripts/ok/visible.bat", "x").
		add("SYSVOL", "corp.local/scripts/top.bat", "x")
	s.listFail["SYSVOL/corp.local/scripts/broken"] = true

	stats := &Stats{}
	w := NewWalker(s, nil, stats)
	got := collectRefs(w.Walk(context.Background(), Target{Share: "SYSVOL", Root: "corp.local/scripts", Selector: Extensions(".bat")}))
	if len(got) != 2 {
		t.Fatalf("expected siblings of the failing subtree, got %v", got)
	}
	for _, ref := range got {
		if strings.Contains(ref, "broken") {
			t.Fatalf("unexpected file from failing subtree: %s", ref)
		}
	}
	if stats.ListingFailures.Load() != 1 {
		t.Fatalf("expected one listing failure, got %d", stats.ListingFailures.Load())
	}
}

func TestWalkMissingRootYieldsNothing(t *testing.T) {
	s := newFakeSession(testHost())
	s.add("SYSVOL", "other/scripts/a.bat", "x")
	w := NewWalker(s, nil, nil)
	if got := collectRefs(w.Walk(context.Background(), Target{Share: "SYSVOL", Root: "corp.local/scripts", Selector: Extensions(".bat")})); len(got) != 0 {
		t.Fatalf("expected empty walk, got %v", got)
	}
}

func TestWalkIsRestartableAndStopsEarly(t *testing.T) {
	s := newFakeSession(testHost())
	s.add("DATA", "a.cmd", "x").add("DATA", "b.cmd", "x").add("DATA", "dir/c.cmd", "x")
	w := NewWalker(s, rate.NewLimiter(rate.Inf, 1), nil)
	seq := w.Walk(context.Background(), Target{Share: "DATA", Selector: Extensions(".cmd")})

	first := collectRefs(seq)
	second := collectRefs(seq)
	if len(first) != 3 || strings.Join(first, ",") != strings.Join(second, ",") {
		t.Fatalf("expected identical full walks, got %v and %v", first, second)
	}

	n := 0
	for range seq {
		n++
		break
	}
	if n != 1 {
		t.Fatalf("expected early stop after one item, got %d", n)
	}
}

func TestWalkHonoursCancellationAndFilter(t *testing.T) {
	s := newFakeSession(testHost())
	s.add("DATA", "keep/a.cmd", "x").add("DATA", "drop/b.cmd", "x")
	w := NewWalker(s, nil, nil)

	target := Target{
		Share:    "DATA",
		Selector: Extensions(".cmd"),
		Filter:   func(p string) bool { return !strings.HasPrefix(p, "drop/") },
	}
	got := collectRefs(w.Walk(context.Background(), target))
	if len(got) != 1 || got[0] != "DATA/keep/a.cmd" {
		t.Fatalf("unexpected filtered walk: %v", got)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if got := collectRefs(w.Walk(ctx, target)); len(got) != 0 {
		t.Fatalf("expected no results after cancellation, got %v", got)
	}
}

func TestUsableName(t *testing.T) {
	for _, name := range []string{"", ".", "..", `a\b`, "a/b"} {
		if usableName(name) {
			t.Fatalf("expected %q to be rejected", name)
		}
	}
	if !usableName("..hidden") {
		t.Fatal("dot-prefixed names are ordinary entries")
	}
}
