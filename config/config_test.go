package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func newFlagSet(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs)
	if err := fs.Parse(args); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	return fs
}

func TestParseCommaSeparated(t *testing.T) {
	res := parseCommaSeparated("a,b , c,,")
	if len(res) != 3 || res[1] != "b" || res[2] != "c" {
		t.Fatalf("unexpected result: %v", res)
	}
	if res := parseCommaSeparated(""); len(res) != 0 {
		t.Fatalf("expected empty slice")
	}
}

func TestParseCustomPatterns(t *testing.T) {
	res, err := parseCustomPatterns(`{"vnc":"vncpasswd\\s+(?P<pw>\\S+)"}`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if res["vnc"] != `vncpasswd\s+(?P<pw>\S+)` {
		t.Fatalf("unexpected result: %v", res)
	}
	if _, err := parseCustomPatterns(`{not json`); err == nil {
		t.Fatal("expected error for malformed JSON")
	}
	if res, err := parseCustomPatterns(""); err != nil || len(res) != 0 {
		t.Fatalf("expected empty map, got %v %v", res, err)
	}
}

func TestParseModuleOptions(t *testing.T) {
	opts, err := parseModuleOptions([]string{"save=/tmp/out", "EXTRA = x=y"})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if opts["SAVE"] != "/tmp/out" || opts["EXTRA"] != "x=y" {
		t.Fatalf("unexpected options: %v", opts)
	}
	if _, err := parseModuleOptions([]string{"SAVE"}); err == nil {
		t.Fatal("expected error for option without value")
	}
}

func TestParseHeaders(t *testing.T) {
	h := parseHeaders("Authorization=Bearer x, bad, =y,k=v")
	if len(h) != 2 || h["Authorization"] != "Bearer x" || h["k"] != "v" {
		t.Fatalf("unexpected headers: %v", h)
	}
}

func TestNormalizeExtensions(t *testing.T) {
	got := normalizeExtensions([]string{"BAT", ".Cmd", "bat", " "})
	if len(got) != 2 || got[0] != ".bat" || got[1] != ".cmd" {
		t.Fatalf("unexpected extensions: %v", got)
	}
}

func TestFromFlagsDefaults(t *testing.T) {
	cfg, err := FromFlags(newFlagSet(t, "--target", "dc01.corp.local"))
	if err != nil {
		t.Fatalf("FromFlags: %v", err)
	}
	if cfg.Port != 445 || cfg.ConcurrencyLevel != 1 || cfg.Timeout != 30*time.Second {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if len(cfg.SkipShares) != 1 || cfg.SkipShares[0] != "IPC$" {
		t.Fatalf("unexpected skip shares: %v", cfg.SkipShares)
	}
	if cfg.SaveDir != "" {
		t.Fatalf("expected no save dir, got %q", cfg.SaveDir)
	}
}

func TestFromFlagsModuleSaveOption(t *testing.T) {
	cfg, err := FromFlags(newFlagSet(t, "--local-root", t.TempDir(), "-o", "SAVE=/tmp/loot"))
	if err != nil {
		t.Fatalf("FromFlags: %v", err)
	}
	if cfg.SaveDir != "/tmp/loot" {
		t.Fatalf("expected SAVE to set save dir, got %q", cfg.SaveDir)
	}
}

func TestFromFlagsDiagnostics(t *testing.T) {
	cfg, err := FromFlags(newFlagSet(t, "--local-root", t.TempDir(), "--stall-threshold", "90s", "--diag-dir", "/tmp/diag", "--flight-recorder"))
	if err != nil {
		t.Fatalf("FromFlags: %v", err)
	}
	if cfg.StallThreshold != 90*time.Second || cfg.DiagDir != "/tmp/diag" || !cfg.FlightRecorder {
		t.Fatalf("unexpected diagnostics config: %v %q %v", cfg.StallThreshold, cfg.DiagDir, cfg.FlightRecorder)
	}

	if _, err := FromFlags(newFlagSet(t, "--local-root", t.TempDir(), "--stall-threshold", "-1s")); err == nil {
		t.Fatal("expected negative stall threshold to be rejected")
	}
}

func TestFromFlagsOverridesConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.json")
	data := `{"target":"filesrv","concurrency":4,"spider_extensions":["TXT"],"log_level":"debug"}`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := FromFlags(newFlagSet(t, "--config", path, "--concurrency", "2"))
	if err != nil {
		t.Fatalf("FromFlags: %v", err)
	}
	if cfg.Target != "filesrv" || cfg.LogLevel != "debug" {
		t.Fatalf("config file values not applied: %+v", cfg)
	}
	if cfg.ConcurrencyLevel != 2 {
		t.Fatalf("flag should override file, got %d", cfg.ConcurrencyLevel)
	}
	if len(cfg.SpiderExtensions) != 1 || cfg.SpiderExtensions[0] != ".txt" {
		t.Fatalf("unexpected spider extensions: %v", cfg.SpiderExtensions)
	}
}

func TestLoadFromFileErrors(t *testing.T) {
	cfg := Defaults()
	if err := cfg.loadFromFile(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatal("expected error for missing file")
	}
	path := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(path, []byte("{"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := cfg.loadFromFile(path); err == nil {
		t.Fatal("expected error for malformed file")
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := Defaults()
		cfg.Target = "dc01"
		return cfg
	}

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no target", func(c *Config) { c.Target = "" }},
		{"target and local root", func(c *Config) { c.LocalRoot = "/mirror" }},
		{"bad port", func(c *Config) { c.Port = 70000 }},
		{"zero timeout", func(c *Config) { c.Timeout = 0 }},
		{"zero concurrency", func(c *Config) { c.ConcurrencyLevel = 0 }},
		{"zero max file size", func(c *Config) { c.MaxFileSize = 0 }},
		{"negative io", func(c *Config) { c.MaxIOPerSecond = -1 }},
		{"no script extensions", func(c *Config) { c.ScriptExtensions = nil }},
		{"bad redact", func(c *Config) { c.RedactSensitive = "blur" }},
		{"bad hash", func(c *Config) { c.HashAlgorithms = []string{"crc32"} }},
		{"bad custom pattern", func(c *Config) { c.CustomPatterns = map[string]string{"x": "("} }},
		{"otel scheme", func(c *Config) { c.OtelEndpoint = "collector:4318" }},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }},
	}

	if err := valid().validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}
	for _, tc := range cases {
		cfg := valid()
		tc.mutate(cfg)
		if err := cfg.validate(); err == nil {
			t.Fatalf("%s: expected validation error", tc.name)
		}
	}
}
