// Package local serves a directory mirror of a host's shares as a
// remote.Session. Each top-level directory under the root is a share.
package local

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"sysvolscan/remote"
	"sysvolscan/utils"

	"golang.org/x/exp/mmap"
)

var openMmapReader = mmap.Open

type Session struct {
	root string
	info remote.HostInfo
}

func Open(root string, info remote.HostInfo) (*Session, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	st, err := os.Stat(abs)
	if err != nil {
		return nil, err
	}
	if !st.IsDir() {
		return nil, fmt.Errorf("local root %s is not a directory", abs)
	}
	if info.Address == "" {
		info.Address = abs
	}
	return &Session{root: abs, info: info}, nil
}

func (s *Session) Info() remote.HostInfo {
	return s.info
}

func (s *Session) ListShares(ctx context.Context) ([]remote.ShareInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, err
	}
	shares := make([]remote.ShareInfo, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			shares = append(shares, remote.ShareInfo{Name: e.Name()})
		}
	}
	return shares, nil
}

func (s *Session) ListEntries(ctx context.Context, share, dir string) ([]remote.DirEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := s.resolve(share, dir)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(p)
	if err != nil {
		return nil, err
	}
	out := make([]remote.DirEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, remote.EntryOf(e))
	}
	return out, nil
}

// Retrieve maps the file into memory and copies it out in one pass.
func (s *Session) Retrieve(ctx context.Context, share, path string, w io.Writer) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := s.resolve(share, path)
	if err != nil {
		return err
	}
	r, err := openMmapReader(p)
	if err != nil {
		return err
	}
	defer r.Close()
	_, err = io.Copy(w, io.NewSectionReader(r, 0, int64(r.Len())))
	return err
}

func (s *Session) OpenRead(ctx context.Context, share, path string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := s.resolve(share, path)
	if err != nil {
		return nil, err
	}
	return os.OpenFile(p, os.O_RDONLY, 0)
}

func (s *Session) Close() error {
	return nil
}

func (s *Session) resolve(share, rel string) (string, error) {
	shareDir, err := s.shareDir(share)
	if err != nil {
		return "", err
	}
	rel = strings.ReplaceAll(rel, `\`, "/")
	p := filepath.Join(shareDir, filepath.FromSlash(rel))
	if !utils.IsPathWithin(p, []string{shareDir}) {
		return "", fmt.Errorf("path %q escapes share %s", rel, share)
	}
	return p, nil
}

// shareDir matches share names case-insensitively, like the SMB server would.
func (s *Session) shareDir(share string) (string, error) {
	if share == "" || strings.ContainsAny(share, `/\`) || share == "." || share == ".." {
		return "", fmt.Errorf("%w: %q", remote.ErrShareNotFound, share)
	}
	exact := filepath.Join(s.root, share)
	if st, err := os.Stat(exact); err == nil && st.IsDir() {
		return exact, nil
	}
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return "", err
	}
	for _, e := range entries {
		if e.IsDir() && strings.EqualFold(e.Name(), share) {
			return filepath.Join(s.root, e.Name()), nil
		}
	}
	return "", fmt.Errorf("%w: %s", remote.ErrShareNotFound, share)
}
