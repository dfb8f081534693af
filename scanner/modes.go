package scanner

import (
	"context"
	"fmt"
	"strings"

	"sysvolscan/hasher"
	"sysvolscan/logger"
)

const sysvolShare = "SYSVOL"

// RunLogonScripts lists the logon scripts under SYSVOL/<domain>/scripts and
// the script references inside the domain's GPO scripts.ini files.
func (s *Scanner) RunLogonScripts(ctx context.Context) (*Aggregator, error) {
	sink := s.newSink(ModeLogonScripts)
	agg := NewAggregator(sink, s.report)
	domain := ResolveDomain(s.session.Info())
	host := s.host()

	scriptsRoot := domain + "/scripts"
	sink.Display(fmt.Sprintf("Enumerating logon scripts in /%s/%s", sysvolShare, scriptsRoot))
	scripts := s.walker.Walk(ctx, Target{Share: sysvolShare, Root: scriptsRoot, Selector: Extensions(s.cfg.ScriptExtensions...)})
	found := s.process(ctx, "Logon scripts", scripts, func(ctx context.Context, ref FileRef) {
		f := NewLogonScript(host, ref.Share, ref.Path)
		if s.cfg.HashScripts {
			s.fingerprint(ctx, ref, &f)
		}
		agg.Record(f)
	})
	if found == 0 {
		sink.Display("No Logon-Scripts found!")
	}

	policiesRoot := domain + "/Policies"
	sink.Display(fmt.Sprintf("Searching GPO script references in /%s/%s", sysvolShare, policiesRoot))
	inis := s.walker.Walk(ctx, Target{
		Share:    sysvolShare,
		Root:     policiesRoot,
		Selector: AllOf(Extensions(".ini"), NameSuffix("scripts.ini")),
	})
	refs := 0
	s.process(ctx, "GPO scripts.ini", inis, func(ctx context.Context, ref FileRef) {
		sink.Display(fmt.Sprintf("Analyze /%s/%s", ref.Share, ref.Path))
		content := s.fetcher.Fetch(ctx, ref)
		if content.Empty() {
			return
		}
		for _, unc := range ExtractReferences(content.Text) {
			agg.Record(NewGpoScriptRef(host, ref.Share, ref.Path, unc))
		}
	})
	for _, f := range agg.Findings() {
		if f.Kind == KindGpoScriptRef {
			refs++
		}
	}
	if refs == 0 {
		sink.Display("No GPO script references found!")
	}
	return agg, ctx.Err()
}

// RunCredentialScan reads every logon script and runs the credential
// battery over it.
func (s *Scanner) RunCredentialScan(ctx context.Context) (*Aggregator, error) {
	sink := s.newSink(ModeCredentials)
	agg := NewAggregator(sink, s.report)
	host := s.host()

	root := ResolveDomain(s.session.Info()) + "/scripts"
	sink.Display(fmt.Sprintf("Collecting logon-script files from /%s/%s", sysvolShare, root))
	scripts := s.walker.Walk(ctx, Target{Share: sysvolShare, Root: root, Selector: Extensions(s.cfg.ScriptExtensions...)})
	scanned := s.process(ctx, "Credential scan", scripts, func(ctx context.Context, ref FileRef) {
		content := s.fetcher.Fetch(ctx, ref)
		if content.Empty() {
			return
		}
		for _, m := range Extract(content.Text, s.rules) {
			agg.Record(NewCredential(host, ref.Share, ref.Path, m.RuleID, m.Field(FieldUser), m.Field(FieldPassword)))
		}
	})
	sink.Display(fmt.Sprintf("%d script file(s) scanned", scanned))
	if agg.Len() == 0 {
		sink.Display("No credentials found in logon scripts.")
	}
	return agg, ctx.Err()
}

// RunSpider walks every readable share and runs the spider battery over
// files with the configured extensions.
func (s *Scanner) RunSpider(ctx context.Context) (*Aggregator, error) {
	sink := s.newSink(ModeSpider)
	agg := NewAggregator(sink, s.report)
	host := s.host()

	shares, err := s.session.ListShares(ctx)
	if err != nil {
		logger.Warnf("Failed to list shares on %s: %v", host, err)
		sink.Display("No shares could be listed.")
		return agg, nil
	}

	selector := Extensions(s.cfg.SpiderExtensions...)
	for _, share := range shares {
		if ctx.Err() != nil {
			break
		}
		if s.skipShare(share.Name) {
			logger.Debugf("Skipping share %s", share.Name)
			continue
		}
		sink.Display(fmt.Sprintf("Spidering share %s", share.Name))
		files := s.walker.Walk(ctx, Target{
			Share:    share.Name,
			Selector: selector,
			Filter:   s.matcher.ShouldInclude,
		})
		s.process(ctx, "Spider "+share.Name, files, func(ctx context.Context, ref FileRef) {
			content := s.fetcher.Fetch(ctx, ref)
			if content.Empty() {
				return
			}
			hit := ExtractSpider(content.Text)
			if hit.Empty() {
				return
			}
			f := NewSpiderMatch(host, ref.Share, ref.Path, hit)
			f.MIME = content.MIME
			agg.Record(f)
		})
	}
	if agg.Len() == 0 {
		sink.Display("No credential material found on any share.")
	}
	return agg, ctx.Err()
}

func (s *Scanner) skipShare(name string) bool {
	if strings.EqualFold(name, "IPC$") {
		return true
	}
	for _, skip := range s.cfg.SkipShares {
		if strings.EqualFold(name, skip) {
			return true
		}
	}
	return false
}

// fingerprint fetches a script and attaches content hashes to f.
func (s *Scanner) fingerprint(ctx context.Context, ref FileRef, f *Finding) {
	content := s.fetcher.Fetch(ctx, ref)
	if content.Unreadable {
		return
	}
	f.MIME = content.MIME
	f.Hashes = hasher.HashBytes(content.Raw, s.cfg.HashAlgorithms)
	if len(s.hashers) == 0 {
		return
	}
	fuzzyHashes := make(map[string]string, len(s.hashers))
	for _, h := range s.hashers {
		digest, err := h.HashBytes(content.Raw)
		if err != nil {
			logger.Debugf("Fuzzy hash %s failed for %s/%s: %v", h.Name(), ref.Share, ref.Path, err)
			continue
		}
		fuzzyHashes[h.Name()] = digest
	}
	if len(fuzzyHashes) > 0 {
		f.FuzzyHashes = fuzzyHashes
	}
}
