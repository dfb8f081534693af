package scanner

import (
	"context"
	"iter"
	"strings"

	"sysvolscan/logger"
	"sysvolscan/remote"
	"sysvolscan/utils"

	"golang.org/x/time/rate"
)

// Target names a subtree of a share and the files wanted from it.
type Target struct {
	Share    string
	Root     string
	Selector Selector
	// Filter, when set, is consulted with the share-relative path of every
	// selected file.
	Filter func(path string) bool
}

// FileRef identifies a remote file. Path is share-relative, "/" separated and
// free of "." and ".." segments.
type FileRef struct {
	Share string
	Path  string
}

type Walker struct {
	session remote.Session
	limiter *rate.Limiter
	stats   *Stats
}

// NewWalker returns a walker over session. limiter and stats may be nil.
func NewWalker(session remote.Session, limiter *rate.Limiter, stats *Stats) *Walker {
	if stats == nil {
		stats = &Stats{}
	}
	return &Walker{session: session, limiter: limiter, stats: stats}
}

// Walk lists target depth-first and yields matching files. Each call to the
// returned sequence starts a fresh walk. A directory that cannot be listed
// contributes nothing; the rest of the tree is still visited.
func (w *Walker) Walk(ctx context.Context, target Target) iter.Seq[FileRef] {
	return func(yield func(FileRef) bool) {
		stack := []string{utils.CleanRemote(target.Root)}
		for len(stack) > 0 {
			if ctx.Err() != nil {
				return
			}
			dir := stack[len(stack)-1]
			stack = stack[:len(stack)-1]

			entries, err := w.list(ctx, target.Share, dir)
			if err != nil {
				w.stats.ListingFailures.Add(1)
				logger.Debugf("Failed to list %s/%s: %v", target.Share, dir, err)
				continue
			}
			w.stats.DirectoriesListed.Add(1)

			var dirs []string
			for _, entry := range entries {
				if !usableName(entry.Name) {
					continue
				}
				child := utils.JoinRemote(dir, entry.Name)
				if entry.IsDir {
					dirs = append(dirs, child)
					continue
				}
				if target.Selector == nil || !target.Selector.Match(entry.Name) {
					continue
				}
				if target.Filter != nil && !target.Filter(child) {
					continue
				}
				w.stats.FilesMatched.Add(1)
				if !yield(FileRef{Share: target.Share, Path: child}) {
					return
				}
			}
			// reversed so subdirectories pop in listing order
			for i := len(dirs) - 1; i >= 0; i-- {
				stack = append(stack, dirs[i])
			}
		}
	}
}

func (w *Walker) list(ctx context.Context, share, dir string) ([]remote.DirEntry, error) {
	if w.limiter != nil {
		if err := w.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	return w.session.ListEntries(ctx, share, dir)
}

// usableName rejects self/parent links, unnamed entries and names that would
// smuggle extra path segments.
func usableName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	return !strings.ContainsAny(name, `/\`)
}
