package config

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/pflag"
)

type Config struct {
	Target              string            `json:"target"`
	Port                int               `json:"port"`
	Username            string            `json:"username"`
	Password            string            `json:"password"`
	NTHash              string            `json:"hash"`
	Domain              string            `json:"domain"`
	DNSDomain           string            `json:"dns_domain"`
	Hostname            string            `json:"hostname"`
	LocalRoot           string            `json:"local_root"`
	Timeout             time.Duration     `json:"timeout"`
	SaveDir             string            `json:"save_dir"`
	ModuleOptions       map[string]string `json:"module_options"`
	OutputFileName      string            `json:"output_file_name"`
	LogLevel            string            `json:"log_level"`
	MaxFileSize         int64             `json:"max_file_size"`
	MaxIOPerSecond      int               `json:"max_io_per_second"`
	ConcurrencyLevel    int               `json:"concurrency"`
	SkipShares          []string          `json:"skip_shares"`
	ScriptExtensions    []string          `json:"script_extensions"`
	SpiderExtensions    []string          `json:"spider_extensions"`
	IncludePatterns     []string          `json:"include_patterns"`
	ExcludePatterns     []string          `json:"exclude_patterns"`
	CustomPatterns      map[string]string `json:"custom_patterns"`
	HashScripts         bool              `json:"hash_scripts"`
	HashAlgorithms      []string          `json:"hash_algorithms"`
	FuzzyHash           bool              `json:"fuzzy_hash"`
	FuzzyAlgorithms     []string          `json:"fuzzy_algorithms"`
	RedactSensitive     string            `json:"redact_sensitive"`
	OtelEndpoint        string            `json:"otel_endpoint"`
	OtelFromEnv         bool              `json:"otel_from_env"`
	OtelHeaders         map[string]string `json:"otel_headers"`
	OtelServiceName     string            `json:"otel_service_name"`
	OtelTimeout         time.Duration     `json:"otel_timeout"`
	OtelExportPaths     bool              `json:"otel_export_paths"`
	OtelExportSensitive bool              `json:"otel_export_sensitive"`
	StallThreshold      time.Duration     `json:"stall_threshold"`
	DiagDir             string            `json:"diag_dir"`
	FlightRecorder      bool              `json:"flight_recorder"`
	ConfigFile          string            `json:"config_file"`
	Modes               []string          `json:"-"`
}

var supportedHashAlgorithms = []string{"md5", "sha1", "sha256", "blake3"}

func Defaults() *Config {
	return &Config{
		Port:             445,
		Timeout:          30 * time.Second,
		ModuleOptions:    map[string]string{},
		LogLevel:         "info",
		MaxFileSize:      10 * 1024 * 1024,
		MaxIOPerSecond:   0,
		ConcurrencyLevel: 1,
		SkipShares:       []string{"IPC$"},
		ScriptExtensions: []string{".bat", ".cmd", ".ps1", ".vbs", ".kix"},
		SpiderExtensions: []string{".cmd", ".bat", ".ps1", ".inf", ".info", ".psd"},
		IncludePatterns:  []string{},
		ExcludePatterns:  []string{},
		CustomPatterns:   map[string]string{},
		HashAlgorithms:   []string{"md5", "sha1", "sha256"},
		FuzzyAlgorithms:  []string{},
		RedactSensitive:  "mask",
		OtelHeaders:      map[string]string{},
		OtelServiceName:  "sysvolscan",
		OtelTimeout:      5 * time.Second,
	}
}

// RegisterFlags defines every configuration flag on fs. Defaults shown in
// help come from Defaults; only flags the user sets override a config file.
func RegisterFlags(fs *pflag.FlagSet) {
	d := Defaults()
	fs.StringP("target", "t", "", "SMB host to scan (name or address).")
	fs.Int("port", d.Port, "SMB port.")
	fs.StringP("username", "u", "", "Account name for NTLM authentication.")
	fs.StringP("password", "p", "", "Password for NTLM authentication.")
	fs.StringP("hash", "H", "", "NT hash (or LM:NT) used instead of a password.")
	fs.StringP("domain", "d", "", "NetBIOS or DNS domain of the account.")
	fs.String("dns-domain", "", "DNS domain whose SYSVOL folders are scanned (default: --domain).")
	fs.String("hostname", "", "Host name used in reported UNC paths (default: --target).")
	fs.String("local-root", "", "Scan a local mirror whose top-level directories are shares instead of an SMB host.")
	fs.Duration("timeout", d.Timeout, "Timeout for each remote operation.")
	fs.String("save-dir", "", "Directory for CSV exports (default: none).")
	fs.StringArrayP("option", "o", nil, "Module option KEY=VALUE, e.g. -o SAVE=/tmp/out. Repeatable.")
	fs.String("output", "", "NDJSON report file (default: none).")
	fs.String("log-level", d.LogLevel, "Log level: debug, info, warn, error, fatal, or panic.")
	fs.Int64("max-file-size", d.MaxFileSize, "Maximum bytes read from any one file.")
	fs.Int("max-io-per-second", d.MaxIOPerSecond, "Maximum remote list/read operations per second (0 means unlimited).")
	fs.Int("concurrency", d.ConcurrencyLevel, "Number of files processed in parallel.")
	fs.String("skip-shares", strings.Join(d.SkipShares, ","), "Comma-separated shares the spider skips.")
	fs.String("script-extensions", strings.Join(d.ScriptExtensions, ","), "Comma-separated logon script extensions.")
	fs.String("spider-extensions", strings.Join(d.SpiderExtensions, ","), "Comma-separated extensions the spider reads.")
	fs.String("include", "", "Comma-separated include patterns for spidered paths (default: none).")
	fs.String("exclude", "", "Comma-separated exclude patterns for spidered paths (default: none).")
	fs.String("custom-patterns", "", "Extra credential patterns as a JSON object mapping names to regexes; use groups user and pw.")
	fs.Bool("hash-scripts", d.HashScripts, "Fetch and fingerprint every discovered logon script.")
	fs.String("hash-algorithms", strings.Join(d.HashAlgorithms, ","), "Comma-separated hash algorithms for script fingerprints.")
	fs.Bool("fuzzy-hash", d.FuzzyHash, "Add fuzzy hashes to script fingerprints.")
	fs.String("fuzzy-algorithms", "", "Comma-separated fuzzy hash algorithms (default: tlsh when fuzzy hashing enabled).")
	fs.String("redact-sensitive", d.RedactSensitive, "Redact secrets in the report: mask or hash (empty disables).")
	fs.String("otel-endpoint", "", "OTLP/HTTP logs endpoint (default: none).")
	fs.Bool("otel-from-env", false, "Allow OTEL endpoint fallback from OTEL environment variables.")
	fs.String("otel-headers", "", "Comma-separated OTEL headers (key=value).")
	fs.String("otel-service-name", d.OtelServiceName, "OTEL service name.")
	fs.Duration("otel-timeout", d.OtelTimeout, "OTEL export timeout.")
	fs.Bool("otel-export-paths", false, "Include share paths in OTEL payloads.")
	fs.Bool("otel-export-sensitive", false, "Include users and passwords in OTEL payloads.")
	fs.Duration("stall-threshold", 0, "Write goroutine dumps when no progress is made for this long (0 disables).")
	fs.String("diag-dir", "", "Directory for stall diagnostics (default: current directory).")
	fs.Bool("flight-recorder", false, "Keep a runtime trace window and dump it with stall diagnostics.")
	fs.String("config", "", "Path to JSON configuration file (default: none).")
}

// FromFlags builds the configuration: defaults, then the --config file, then
// the flags the user actually set.
func FromFlags(fs *pflag.FlagSet) (*Config, error) {
	cfg := Defaults()
	get := flagReader{fs: fs}

	if path := get.String("config"); path != "" {
		cfg.ConfigFile = path
		if err := cfg.loadFromFile(path); err != nil {
			return nil, err
		}
	}

	var parseErr error
	fs.Visit(func(f *pflag.Flag) {
		switch f.Name {
		case "target":
			cfg.Target = get.String(f.Name)
		case "port":
			cfg.Port = get.Int(f.Name)
		case "username":
			cfg.Username = get.String(f.Name)
		case "password":
			cfg.Password = get.String(f.Name)
		case "hash":
			cfg.NTHash = get.String(f.Name)
		case "domain":
			cfg.Domain = get.String(f.Name)
		case "dns-domain":
			cfg.DNSDomain = get.String(f.Name)
		case "hostname":
			cfg.Hostname = get.String(f.Name)
		case "local-root":
			cfg.LocalRoot = get.String(f.Name)
		case "timeout":
			cfg.Timeout = get.Duration(f.Name)
		case "save-dir":
			cfg.SaveDir = get.String(f.Name)
		case "option":
			opts, err := parseModuleOptions(get.StringArray(f.Name))
			if err != nil {
				parseErr = err
				return
			}
			for k, v := range opts {
				cfg.ModuleOptions[k] = v
			}
		case "output":
			cfg.OutputFileName = get.String(f.Name)
		case "log-level":
			cfg.LogLevel = get.String(f.Name)
		case "max-file-size":
			cfg.MaxFileSize = get.Int64(f.Name)
		case "max-io-per-second":
			cfg.MaxIOPerSecond = get.Int(f.Name)
		case "concurrency":
			cfg.ConcurrencyLevel = get.Int(f.Name)
		case "skip-shares":
			cfg.SkipShares = parseCommaSeparated(get.String(f.Name))
		case "script-extensions":
			cfg.ScriptExtensions = parseCommaSeparated(get.String(f.Name))
		case "spider-extensions":
			cfg.SpiderExtensions = parseCommaSeparated(get.String(f.Name))
		case "include":
			cfg.IncludePatterns = parseCommaSeparated(get.String(f.Name))
		case "exclude":
			cfg.ExcludePatterns = parseCommaSeparated(get.String(f.Name))
		case "custom-patterns":
			patterns, err := parseCustomPatterns(get.String(f.Name))
			if err != nil {
				parseErr = err
				return
			}
			cfg.CustomPatterns = patterns
		case "hash-scripts":
			cfg.HashScripts = get.Bool(f.Name)
		case "hash-algorithms":
			cfg.HashAlgorithms = parseCommaSeparated(get.String(f.Name))
		case "fuzzy-hash":
			cfg.FuzzyHash = get.Bool(f.Name)
		case "fuzzy-algorithms":
			cfg.FuzzyAlgorithms = parseCommaSeparated(get.String(f.Name))
		case "redact-sensitive":
			cfg.RedactSensitive = get.String(f.Name)
		case "otel-endpoint":
			cfg.OtelEndpoint = get.String(f.Name)
		case "otel-from-env":
			cfg.OtelFromEnv = get.Bool(f.Name)
		case "otel-headers":
			cfg.OtelHeaders = parseHeaders(get.String(f.Name))
		case "otel-service-name":
			cfg.OtelServiceName = get.String(f.Name)
		case "otel-timeout":
			cfg.OtelTimeout = get.Duration(f.Name)
		case "otel-export-paths":
			cfg.OtelExportPaths = get.Bool(f.Name)
		case "otel-export-sensitive":
			cfg.OtelExportSensitive = get.Bool(f.Name)
		case "stall-threshold":
			cfg.StallThreshold = get.Duration(f.Name)
		case "diag-dir":
			cfg.DiagDir = get.String(f.Name)
		case "flight-recorder":
			cfg.FlightRecorder = get.Bool(f.Name)
		}
	})
	if parseErr != nil {
		return nil, parseErr
	}
	if get.err != nil {
		return nil, get.err
	}

	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// flagReader reads typed flag values and keeps the first lookup error.
type flagReader struct {
	fs  *pflag.FlagSet
	err error
}

func (r *flagReader) keep(err error) {
	if err != nil && r.err == nil {
		r.err = err
	}
}

func (r *flagReader) String(name string) string {
	v, err := r.fs.GetString(name)
	r.keep(err)
	return v
}

func (r *flagReader) StringArray(name string) []string {
	v, err := r.fs.GetStringArray(name)
	r.keep(err)
	return v
}

func (r *flagReader) Int(name string) int {
	v, err := r.fs.GetInt(name)
	r.keep(err)
	return v
}

func (r *flagReader) Int64(name string) int64 {
	v, err := r.fs.GetInt64(name)
	r.keep(err)
	return v
}

func (r *flagReader) Bool(name string) bool {
	v, err := r.fs.GetBool(name)
	r.keep(err)
	return v
}

func (r *flagReader) Duration(name string) time.Duration {
	v, err := r.fs.GetDuration(name)
	r.keep(err)
	return v
}

func (cfg *Config) loadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("could not read config file: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("invalid config file format: %w", err)
	}
	return nil
}

// normalize folds module options into their typed fields and canonicalizes
// list values.
func (cfg *Config) normalize() {
	if cfg.ModuleOptions == nil {
		cfg.ModuleOptions = map[string]string{}
	}
	if save, ok := cfg.ModuleOptions["SAVE"]; ok && strings.TrimSpace(save) != "" {
		cfg.SaveDir = strings.TrimSpace(save)
	}
	cfg.ScriptExtensions = normalizeExtensions(cfg.ScriptExtensions)
	cfg.SpiderExtensions = normalizeExtensions(cfg.SpiderExtensions)
	cfg.HashAlgorithms = normalizeAlgorithms(cfg.HashAlgorithms)
	cfg.FuzzyAlgorithms = normalizeAlgorithms(cfg.FuzzyAlgorithms)
	cfg.RedactSensitive = strings.ToLower(strings.TrimSpace(cfg.RedactSensitive))
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))
}

func (cfg *Config) validate() error {
	if cfg.Target == "" && cfg.LocalRoot == "" {
		return fmt.Errorf("either --target or --local-root must be specified")
	}
	if cfg.Target != "" && cfg.LocalRoot != "" {
		return fmt.Errorf("--target and --local-root are mutually exclusive")
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return fmt.Errorf("invalid port: %d", cfg.Port)
	}
	if cfg.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if cfg.ConcurrencyLevel <= 0 {
		return fmt.Errorf("concurrency level must be positive")
	}
	if cfg.MaxFileSize <= 0 {
		return fmt.Errorf("max-file-size must be positive")
	}
	if cfg.MaxIOPerSecond < 0 {
		return fmt.Errorf("max-io-per-second must be zero or positive")
	}
	if len(cfg.ScriptExtensions) == 0 {
		return fmt.Errorf("at least one script extension is required")
	}
	if cfg.RedactSensitive != "" && cfg.RedactSensitive != "mask" && cfg.RedactSensitive != "hash" {
		return fmt.Errorf("invalid redact-sensitive value: %s", cfg.RedactSensitive)
	}
	for _, algo := range cfg.HashAlgorithms {
		if !containsString(supportedHashAlgorithms, algo) {
			return fmt.Errorf("unsupported hash algorithm: %s", algo)
		}
	}
	for name, pattern := range cfg.CustomPatterns {
		if _, err := regexp.Compile(pattern); err != nil {
			return fmt.Errorf("invalid custom pattern %q: %w", name, err)
		}
	}
	if cfg.StallThreshold < 0 {
		return fmt.Errorf("stall-threshold must be zero or positive")
	}
	if cfg.OtelTimeout < 0 {
		return fmt.Errorf("otel-timeout must be zero or positive")
	}
	if cfg.OtelEndpoint != "" {
		if !strings.HasPrefix(cfg.OtelEndpoint, "http://") && !strings.HasPrefix(cfg.OtelEndpoint, "https://") {
			return fmt.Errorf("otel-endpoint must include scheme (http or https)")
		}
	}
	if cfg.LogLevel != "debug" && cfg.LogLevel != "info" && cfg.LogLevel != "warn" &&
		cfg.LogLevel != "error" && cfg.LogLevel != "fatal" && cfg.LogLevel != "panic" {
		return fmt.Errorf("invalid log level: %s", cfg.LogLevel)
	}
	return nil
}

func parseCommaSeparated(input string) []string {
	if input == "" {
		return []string{}
	}
	items := strings.Split(input, ",")
	out := items[:0]
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func parseCustomPatterns(input string) (map[string]string, error) {
	patterns := make(map[string]string)
	if input == "" {
		return patterns, nil
	}
	if err := json.Unmarshal([]byte(input), &patterns); err != nil {
		return nil, fmt.Errorf("invalid custom patterns: %w", err)
	}
	return patterns, nil
}

// parseModuleOptions reads KEY=VALUE pairs. Keys are case-insensitive and
// returned upper-cased.
func parseModuleOptions(items []string) (map[string]string, error) {
	opts := make(map[string]string, len(items))
	for _, item := range items {
		key, value, ok := strings.Cut(item, "=")
		key = strings.ToUpper(strings.TrimSpace(key))
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid module option %q: expected KEY=VALUE", item)
		}
		opts[key] = strings.TrimSpace(value)
	}
	return opts, nil
}

func parseHeaders(input string) map[string]string {
	headers := make(map[string]string)
	if input == "" {
		return headers
	}
	for _, item := range strings.Split(input, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(item), "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			continue
		}
		headers[key] = strings.TrimSpace(value)
	}
	return headers
}

func normalizeExtensions(items []string) []string {
	normalized := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.ToLower(strings.TrimSpace(item))
		if item == "" {
			continue
		}
		if !strings.HasPrefix(item, ".") {
			item = "." + item
		}
		if !containsString(normalized, item) {
			normalized = append(normalized, item)
		}
	}
	return normalized
}

func normalizeAlgorithms(items []string) []string {
	normalized := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.ToLower(strings.TrimSpace(item))
		if item == "" {
			continue
		}
		normalized = append(normalized, item)
	}
	return normalized
}

func containsString(items []string, value string) bool {
	for _, item := range items {
		if item == value {
			return true
		}
	}
	return false
}
