package scanner

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

type Kind string

const (
	KindLogonScript  Kind = "LogonScript"
	KindGpoScriptRef Kind = "GpoScriptRef"
	KindCredential   Kind = "Credential"
	KindSpiderMatch  Kind = "SpiderMatch"
)

// Field is one named column of a finding. Field order is the CSV column order.
type Field struct {
	Name  string
	Value string
}

// Finding is one reported result. Fields holds exactly the exported columns;
// the remaining members feed the log line and the report.
type Finding struct {
	Kind        Kind
	Host        string
	Share       string
	Path        string
	Rule        string
	Fields      []Field
	MIME        string
	Hashes      map[string]string
	FuzzyHashes map[string]string
}

func NewLogonScript(host, share, path string) Finding {
	return Finding{
		Kind: KindLogonScript, Host: host, Share: share, Path: path,
		Fields: []Field{
			{Name: "Type", Value: string(KindLogonScript)},
			{Name: "Share", Value: share},
			{Name: "Path", Value: path},
			{Name: "Extra", Value: ""},
		},
	}
}

func NewGpoScriptRef(host, share, path, ref string) Finding {
	return Finding{
		Kind: KindGpoScriptRef, Host: host, Share: share, Path: path,
		Fields: []Field{
			{Name: "Type", Value: string(KindGpoScriptRef)},
			{Name: "Share", Value: share},
			{Name: "Path", Value: path},
			{Name: "Extra", Value: ref},
		},
	}
}

func NewCredential(host, share, path, rule, user, password string) Finding {
	return Finding{
		Kind: KindCredential, Host: host, Share: share, Path: path, Rule: rule,
		Fields: []Field{
			{Name: "File", Value: UNCPath(host, share, path)},
			{Name: "User", Value: user},
			{Name: "Password", Value: password},
		},
	}
}

func NewSpiderMatch(host, share, path string, hit SpiderHit) Finding {
	return Finding{
		Kind: KindSpiderMatch, Host: host, Share: share, Path: path,
		Fields: []Field{
			{Name: "File", Value: UNCPath(host, share, path)},
			{Name: "Users", Value: strings.Join(hit.Users, ";")},
			{Name: "Domains", Value: strings.Join(hit.Domains, ";")},
			{Name: "Passwords", Value: strings.Join(hit.Passwords, ";")},
			{Name: "Placeholders", Value: strings.Join(hit.Placeholders, ";")},
		},
	}
}

// UNCPath renders //host/share/path.
func UNCPath(host, share, path string) string {
	return "//" + host + "/" + share + "/" + strings.TrimPrefix(path, "/")
}

func (f Finding) Value(name string) string {
	for _, field := range f.Fields {
		if field.Name == name {
			return field.Value
		}
	}
	return ""
}

func (f Finding) FieldNames() []string {
	names := make([]string, len(f.Fields))
	for i, field := range f.Fields {
		names[i] = field.Name
	}
	return names
}

// Fingerprint identifies a finding by content, so the same result from two
// runs gets the same value.
func (f Finding) Fingerprint() string {
	d := xxhash.New()
	_, _ = d.WriteString(string(f.Kind))
	for _, s := range []string{f.Host, f.Share, f.Path} {
		_, _ = d.WriteString("\x00" + s)
	}
	for _, field := range f.Fields {
		_, _ = d.WriteString("\x00" + field.Name + "=" + field.Value)
	}
	return strconv.FormatUint(d.Sum64(), 16)
}

// LogLine is the human-readable line emitted when the finding is recorded.
func (f Finding) LogLine() string {
	switch f.Kind {
	case KindLogonScript:
		return fmt.Sprintf("LOGON_SCRIPT | /%s/%s", f.Share, f.Path)
	case KindGpoScriptRef:
		return fmt.Sprintf("GPO_SCRIPT_REF | %s (in %s)", f.Value("Extra"), f.Path)
	case KindCredential:
		return fmt.Sprintf("CREDENTIAL | %s | user=%s pw=%s", f.Value("File"), f.Value("User"), f.Value("Password"))
	case KindSpiderMatch:
		return fmt.Sprintf("SPIDER | %s | users=%s domains=%s passwords=%s placeholders=%s",
			f.Value("File"),
			commaList(f.Value("Users")),
			commaList(f.Value("Domains")),
			commaList(f.Value("Passwords")),
			commaList(f.Value("Placeholders")))
	default:
		return fmt.Sprintf("%s | /%s/%s", f.Kind, f.Share, f.Path)
	}
}

func commaList(joined string) string {
	return strings.ReplaceAll(joined, ";", ",")
}
