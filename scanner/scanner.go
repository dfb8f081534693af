package scanner

import (
	"context"
	"fmt"
	"iter"
	"os"
	"strings"
	"sync"

	"sysvolscan/config"
	"sysvolscan/fuzzy"
	"sysvolscan/logger"
	"sysvolscan/remote"
	"sysvolscan/utils"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/time/rate"
)

// Scan modes accepted by Run.
const (
	ModeLogonScripts = "logon-scripts"
	ModeCredentials  = "creds"
	ModeSpider       = "spider"
)

// Export file names, one per mode.
const (
	LogonScriptsCSV = "logon_scripts_enum.csv"
	CredentialsCSV  = "credentials.csv"
	SpiderCSV       = "spider.csv"
)

// Scanner runs scan modes against one session.
type Scanner struct {
	cfg      *config.Config
	session  remote.Session
	report   FindingWriter
	walker   *Walker
	fetcher  *Fetcher
	stats    *Stats
	rules    RuleSet
	matcher  *utils.PatternMatcher
	hashers  []fuzzy.Hasher
	newSink  func(module string) Sink
	progress bool
}

// New prepares a scanner. report may be nil. Custom credential patterns
// that do not compile are an error.
func New(cfg *config.Config, session remote.Session, report FindingWriter) (*Scanner, error) {
	custom, err := CustomRules(cfg.CustomPatterns)
	if err != nil {
		return nil, err
	}

	var ioLimiter *rate.Limiter
	if cfg.MaxIOPerSecond > 0 {
		ioLimiter = rate.NewLimiter(rate.Limit(cfg.MaxIOPerSecond), cfg.MaxIOPerSecond)
	}

	var hashers []fuzzy.Hasher
	if cfg.HashScripts {
		var unknown []string
		hashers, unknown = fuzzy.Select(cfg.FuzzyAlgorithms, cfg.FuzzyHash)
		for _, name := range unknown {
			logger.Warnf("Unsupported fuzzy hash algorithm: %s", name)
		}
	}

	stats := &Stats{}
	return &Scanner{
		cfg:      cfg,
		session:  session,
		report:   report,
		walker:   NewWalker(session, ioLimiter, stats),
		fetcher:  NewFetcher(session, ioLimiter, cfg.MaxFileSize, stats),
		stats:    stats,
		rules:    CredentialRules().With(custom...),
		matcher:  utils.NewPatternMatcher(cfg.IncludePatterns, cfg.ExcludePatterns),
		hashers:  hashers,
		newSink:  func(module string) Sink { return logger.NewSink(module) },
		progress: progressVisible(),
	}, nil
}

func (s *Scanner) Stats() StatsSnapshot {
	return s.stats.Snapshot()
}

// Run executes one mode and exports its findings when a save directory is
// configured. The returned aggregator holds the mode's findings.
func (s *Scanner) Run(ctx context.Context, mode string) (*Aggregator, error) {
	var (
		agg  *Aggregator
		file string
		err  error
	)
	switch mode {
	case ModeLogonScripts:
		agg, err = s.RunLogonScripts(ctx)
		file = LogonScriptsCSV
	case ModeCredentials:
		agg, err = s.RunCredentialScan(ctx)
		file = CredentialsCSV
	case ModeSpider:
		agg, err = s.RunSpider(ctx)
		file = SpiderCSV
	default:
		return nil, fmt.Errorf("unknown scan mode %q", mode)
	}
	if err != nil {
		return agg, err
	}
	if s.cfg.SaveDir == "" {
		return agg, nil
	}
	path, err := agg.Export(s.cfg.SaveDir, file)
	if err != nil {
		return agg, fmt.Errorf("%s export: %w", mode, err)
	}
	if path != "" {
		s.newSink(mode).Display(fmt.Sprintf("Results saved to %s", path))
	}
	return agg, nil
}

// process hands every ref of refs to fn on a bounded worker pool. With a
// single worker refs are handled in sequence order.
func (s *Scanner) process(ctx context.Context, description string, refs iter.Seq[FileRef], fn func(context.Context, FileRef)) int {
	workers := s.cfg.ConcurrencyLevel
	if workers < 1 {
		workers = 1
	}
	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetDescription(description),
		progressbar.OptionShowCount(),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetVisibility(s.progress),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionFullWidth(),
	)
	defer func() { _ = bar.Finish() }()

	if workers == 1 {
		count := 0
		for ref := range refs {
			fn(ctx, ref)
			count++
			_ = bar.Add(1)
		}
		return count
	}

	tasks := make(chan FileRef, workers)
	progressCh := make(chan int, workers*4)
	var progressWG sync.WaitGroup
	progressWG.Add(1)
	go func() {
		defer progressWG.Done()
		for delta := range progressCh {
			_ = bar.Add(delta)
		}
	}()

	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ref := range tasks {
				if ctx.Err() != nil {
					continue
				}
				fn(ctx, ref)
				progressCh <- 1
			}
		}()
	}

	count := 0
produce:
	for ref := range refs {
		select {
		case <-ctx.Done():
			break produce
		case tasks <- ref:
			count++
		}
	}
	close(tasks)
	wg.Wait()
	close(progressCh)
	progressWG.Wait()
	return count
}

func (s *Scanner) host() string {
	return ResolveHost(s.session.Info())
}

// ResolveDomain picks the folder name under SYSVOL: the domain, else the
// host name, else the address.
func ResolveDomain(info remote.HostInfo) string {
	switch {
	case info.Domain != "":
		return info.Domain
	case info.Hostname != "":
		return info.Hostname
	default:
		return info.Address
	}
}

// ResolveHost is the host part of reported UNC paths.
func ResolveHost(info remote.HostInfo) string {
	if info.Hostname != "" {
		return info.Hostname
	}
	return info.Address
}

func progressVisible() bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv("SYSVOLSCAN_DISABLE_PROGRESS")))
	return value != "1" && value != "true" && value != "yes" && value != "on"
}
