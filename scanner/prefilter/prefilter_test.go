package prefilter

import (
	"strings"
	"testing"
)

func TestGateSmallContent(t *testing.T) {
	p := New([][]string{{"/user:"}, {"-AsPlainText"}, nil, {"pass", "pwd"}})
	g := p.Gate(`NET USE \\srv\share /USER:alice pw`)
	if !g.Allow(0) {
		t.Fatal("expected net use rule allowed")
	}
	if g.Allow(1) {
		t.Fatal("expected secure-string rule gated")
	}
	if !g.Allow(2) {
		t.Fatal("rule without tokens must always be allowed")
	}
	if g.Allow(3) {
		t.Fatal("expected password rule gated")
	}
}

func TestGateLargeContentUsesAutomaton(t *testing.T) {
	p := New([][]string{{"pass", "pwd"}, {"-asplaintext"}})
	content := strings.Repeat("echo hello\r\n", 1024) + "set PWD=x"
	g := p.Gate(content)
	if !g.Allow(0) {
		t.Fatal("expected pwd token to be found")
	}
	if g.Allow(1) {
		t.Fatal("expected secure-string rule gated")
	}
}

func TestGateNonASCIIBypasses(t *testing.T) {
	p := New([][]string{{"pass"}})
	// U+017F folds to 's' under (?i), so the filter must not decide.
	if !p.Gate("paſſ=1").Allow(0) {
		t.Fatal("expected non-ASCII content to bypass the gate")
	}
}

func TestNilPrefilterAllowsAll(t *testing.T) {
	var p *Prefilter
	if !p.Gate("anything").Allow(5) {
		t.Fatal("nil prefilter should allow all")
	}
	if !New(nil).Gate("x").Allow(0) {
		t.Fatal("empty prefilter should allow all")
	}
}
