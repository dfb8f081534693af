package scanner

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path"
	"sort"
	"strings"
	"sync"

	"sysvolscan/remote"
)

var errInjected = errors.New("injected failure")

// fakeSession is an in-memory remote.Session. Directories are implied by
// file paths; listFail, retrieveFail and openFail inject errors by key
// "share/path" (directories without trailing slash, share root as "share/").
type fakeSession struct {
	info         remote.HostInfo
	files        map[string][]byte
	extraDirs    map[string]bool
	listFail     map[string]bool
	retrieveFail map[string]bool
	openFail     map[string]bool
	shareErr     error

	mu    sync.Mutex
	lists []string
}

func newFakeSession(info remote.HostInfo) *fakeSession {
	return &fakeSession{
		info:         info,
		files:        map[string][]byte{},
		extraDirs:    map[string]bool{},
		listFail:     map[string]bool{},
		retrieveFail: map[string]bool{},
		openFail:     map[string]bool{},
	}
}

func (s *fakeSession) add(share, p, content string) *fakeSession {
	s.files[share+"/"+p] = []byte(content)
	return s
}

func (s *fakeSession) Info() remote.HostInfo { return s.info }

func (s *fakeSession) ListShares(ctx context.Context) ([]remote.ShareInfo, error) {
	if s.shareErr != nil {
		return nil, s.shareErr
	}
	seen := map[string]bool{}
	for key := range s.files {
		seen[strings.SplitN(key, "/", 2)[0]] = true
	}
	for key := range s.extraDirs {
		seen[strings.SplitN(key, "/", 2)[0]] = true
	}
	var shares []remote.ShareInfo
	for name := range seen {
		shares = append(shares, remote.ShareInfo{Name: name})
	}
	sort.Slice(shares, func(i, j int) bool { return shares[i].Name < shares[j].Name })
	return shares, nil
}

func (s *fakeSession) ListEntries(ctx context.Context, share, dir string) ([]remote.DirEntry, error) {
	key := share + "/" + dir
	s.mu.Lock()
	s.lists = append(s.lists, key)
	s.mu.Unlock()
	if s.listFail[key] {
		return nil, errInjected
	}
	prefix := key
	if dir != "" {
		prefix += "/"
	}
	names := map[string]bool{}
	found := false
	collect := func(full string, isFile bool) {
		if !strings.HasPrefix(full, prefix) {
			return
		}
		found = true
		rest := strings.TrimPrefix(full, prefix)
		if rest == "" {
			return
		}
		first, _, more := strings.Cut(rest, "/")
		names[first] = names[first] || more || !isFile
	}
	for full := range s.files {
		collect(full, true)
	}
	for full := range s.extraDirs {
		collect(full, false)
	}
	if !found {
		return nil, errInjected
	}
	entries := []remote.DirEntry{{Name: ".", IsDir: true}, {Name: "..", IsDir: true}}
	sorted := make([]string, 0, len(names))
	for name := range names {
		sorted = append(sorted, name)
	}
	sort.Strings(sorted)
	for _, name := range sorted {
		entries = append(entries, remote.DirEntry{Name: name, IsDir: names[name]})
	}
	return entries, nil
}

func (s *fakeSession) Retrieve(ctx context.Context, share, p string, w io.Writer) error {
	key := share + "/" + p
	if s.retrieveFail[key] {
		return errInjected
	}
	data, ok := s.files[key]
	if !ok {
		return remote.ErrShareNotFound
	}
	_, err := io.Copy(w, bytes.NewReader(data))
	return err
}

func (s *fakeSession) OpenRead(ctx context.Context, share, p string) (io.ReadCloser, error) {
	key := share + "/" + p
	if s.openFail[key] {
		return nil, errInjected
	}
	data, ok := s.files[key]
	if !ok {
		return nil, remote.ErrShareNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *fakeSession) Close() error { return nil }

func (s *fakeSession) listed() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.lists))
	copy(out, s.lists)
	return out
}

// recordingSink captures sink output by level.
type recordingSink struct {
	mu     sync.Mutex
	lines  []string
	levels []string
}

func (r *recordingSink) log(level, msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, msg)
	r.levels = append(r.levels, level)
}

func (r *recordingSink) Display(msg string)   { r.log("display", msg) }
func (r *recordingSink) Success(msg string)   { r.log("success", msg) }
func (r *recordingSink) Highlight(msg string) { r.log("highlight", msg) }

func (r *recordingSink) contains(substr string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, line := range r.lines {
		if strings.Contains(line, substr) {
			return true
		}
	}
	return false
}

func collectRefs(seq func(func(FileRef) bool)) []string {
	var out []string
	for ref := range seq {
		out = append(out, path.Join(ref.Share, ref.Path))
	}
	return out
}
