package scanner

import (
	"regexp"
	"strings"
	"testing"
)

func TestExtractNetUse(t *testing.T) {
	matches := Extract(`net use \\srv\share /user:alice Secr3t!`, CredentialRules())
	var got *Match
	for i := range matches {
		if matches[i].RuleID == "net-use" {
			got = &matches[i]
		}
	}
	if got == nil {
		t.Fatalf("expected net-use match, got %+v", matches)
	}
	if got.Field(FieldUser) != "alice" || got.Field(FieldPassword) != "Secr3t!" {
		t.Fatalf("unexpected fields: %+v", got.Fields)
	}
}

func TestExtractAbsentGroupIsEmpty(t *testing.T) {
	matches := Extract("$cred = ConvertTo-SecureString $x -AsPlainText -Force", CredentialRules())
	if len(matches) != 1 {
		t.Fatalf("expected one match, got %+v", matches)
	}
	m := matches[0]
	if m.RuleID != "secure-string" || m.Field(FieldPassword) != "-Force" {
		t.Fatalf("unexpected match: %+v", m)
	}
	if user, ok := m.Fields[FieldUser]; !ok || user != "" {
		t.Fatalf("expected empty user field, got %q (present=%v)", user, ok)
	}
}

func TestPasswordAssignmentCaseInsensitive(t *testing.T) {
	upper := Extract(`PASS = "hunter2"`, CredentialRules())
	lower := Extract(`pass=hunter2`, CredentialRules())
	if len(upper) != 1 || len(lower) != 1 {
		t.Fatalf("expected one match each, got %+v and %+v", upper, lower)
	}
	if upper[0].Field(FieldPassword) != "hunter2" || lower[0].Field(FieldPassword) != "hunter2" {
		t.Fatalf("expected hunter2 from both, got %q and %q", upper[0].Field(FieldPassword), lower[0].Field(FieldPassword))
	}
	for _, text := range []string{"$Password='p1'", "passwd = p2", "PWD=p3"} {
		if m := Extract(text, CredentialRules()); len(m) != 1 || m[0].RuleID != "password-assignment" {
			t.Fatalf("%s: unexpected matches %+v", text, m)
		}
	}
}

func TestRulesAreIndependent(t *testing.T) {
	text := "$user = \"svc\"\r\n$pass = \"x1\"\r\nnet use \\\\fs\\it /user:svc x1"
	matches := Extract(text, CredentialRules())
	ids := map[string]int{}
	for _, m := range matches {
		ids[m.RuleID]++
	}
	if ids["net-use"] != 1 || ids["user-assignment"] != 1 || ids["password-assignment"] != 1 {
		t.Fatalf("unexpected rule hits: %v", ids)
	}
}

func TestPrefilterDoesNotDropMatches(t *testing.T) {
	texts := []string{
		`net use \\srv\share /user:alice Secr3t!`,
		strings.Repeat("rem padding line\r\n", 400) + `$pwd = 'late'`,
		"paſſword=ok",
		"nothing to see here",
	}
	rs := CredentialRules()
	var unfiltered []ExtractorRule
	for _, r := range defaultCredentialRules {
		r.Tokens = nil
		unfiltered = append(unfiltered, r)
	}
	plain := NewRuleSet(unfiltered...)
	for _, text := range texts {
		a, b := Extract(text, rs), Extract(text, plain)
		if len(a) != len(b) {
			t.Fatalf("prefilter changed results for %q: %d vs %d", text, len(a), len(b))
		}
	}
}

func TestCustomRules(t *testing.T) {
	custom, err := CustomRules(map[string]string{"vnc": `vncpasswd\s+(?P<pw>\S+)`})
	if err != nil {
		t.Fatalf("CustomRules: %v", err)
	}
	rs := CredentialRules().With(custom...)
	if rs.Len() != CredentialRules().Len()+1 {
		t.Fatalf("expected one extra rule, got %d", rs.Len())
	}
	matches := Extract("VNCPASSWD s3cr3t", rs)
	if len(matches) != 1 || matches[0].RuleID != "vnc" || matches[0].Field(FieldPassword) != "s3cr3t" {
		t.Fatalf("unexpected custom matches: %+v", matches)
	}
	if _, err := CustomRules(map[string]string{"bad": "("}); err == nil {
		t.Fatal("expected compile error")
	}
}

func TestNewRuleSetSkipsNilPattern(t *testing.T) {
	rs := NewRuleSet(ExtractorRule{ID: "nil"}, ExtractorRule{ID: "x", Pattern: regexp.MustCompile("x")})
	if rs.Len() != 1 {
		t.Fatalf("expected nil-pattern rule dropped, got %d", rs.Len())
	}
	if got := Extract("", rs); got != nil {
		t.Fatalf("expected no matches on empty text, got %+v", got)
	}
}

func TestExtractReferencesDedup(t *testing.T) {
	ini := "[Logon]\r\n0CmdLine=\\\\corp.local\\netlogon\\map.bat\r\n0Parameters=\r\n" +
		"1CmdLine=\\\\corp.local\\netlogon\\map.bat\r\n2CmdLine=\\\\fs01\\tools\\inv.ps1\r\n"
	refs := ExtractReferences(ini)
	want := []string{`\\corp.local\netlogon\map.bat`, `\\fs01\tools\inv.ps1`}
	if len(refs) != len(want) {
		t.Fatalf("unexpected refs: %q", refs)
	}
	for i := range want {
		if refs[i] != want[i] {
			t.Fatalf("ref %d: got %q want %q", i, refs[i], want[i])
		}
	}
	if ExtractReferences("no refs") != nil {
		t.Fatal("expected nil for text without references")
	}
}

func TestExtractReferencesKeepsFullPath(t *testing.T) {
	ref := `\\DC01\SysVol\corp.local\scripts\login.vbs`
	refs := ExtractReferences("0CmdLine=" + ref + "\r\n1CmdLine=" + ref + "\r\n")
	if len(refs) != 1 || refs[0] != ref {
		t.Fatalf("expected one full reference, got %q", refs)
	}

	refs = ExtractReferences("0CmdLine=\\\\corp.local\\netlogon\\a.bat\r\n1CmdLine=\"\\\\corp.local\\netlogon\\b.ps1\"\r\n")
	want := []string{`\\corp.local\netlogon\a.bat`, `\\corp.local\netlogon\b.ps1`}
	if len(refs) != 2 || refs[0] != want[0] || refs[1] != want[1] {
		t.Fatalf("expected distinct scripts on one host, got %q", refs)
	}
}
