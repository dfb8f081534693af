// Package smb implements remote.Session over SMB2/3 with NTLM authentication.
package smb

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"sysvolscan/logger"
	"sysvolscan/remote"
	"sysvolscan/utils"

	"github.com/hirochachacha/go-smb2"
)

type Options struct {
	Host     string
	Port     int
	Username string
	Password string
	// NTHash is a hex NT hash, optionally in LM:NT form.
	NTHash   string
	Domain   string
	// DNSDomain and Hostname describe the peer for root resolution; the
	// NTLM handshake result is not exposed by the client library.
	DNSDomain string
	Hostname  string
	Timeout   time.Duration
}

type Session struct {
	conn    net.Conn
	sess    *smb2.Session
	info    remote.HostInfo
	timeout time.Duration

	mu     sync.Mutex
	mounts map[string]*smb2.Share
}

func Dial(ctx context.Context, opts Options) (*Session, error) {
	if opts.Host == "" {
		return nil, fmt.Errorf("host is required")
	}
	port := opts.Port
	if port == 0 {
		port = 445
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	initiator := &smb2.NTLMInitiator{
		User:   opts.Username,
		Domain: opts.Domain,
	}
	if opts.NTHash != "" {
		hash, err := decodeHash(opts.NTHash)
		if err != nil {
			return nil, fmt.Errorf("invalid NT hash: %w", err)
		}
		initiator.Hash = hash
	} else {
		initiator.Password = opts.Password
	}

	dialer := net.Dialer{Timeout: timeout}
	addr := net.JoinHostPort(opts.Host, strconv.Itoa(port))
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", addr, err)
	}

	d := &smb2.Dialer{Initiator: initiator}
	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	sess, err := d.DialContext(dialCtx, conn)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("smb auth: %w", err)
	}

	domain := opts.DNSDomain
	if domain == "" {
		domain = opts.Domain
	}
	return &Session{
		conn: conn,
		sess: sess,
		info: remote.HostInfo{
			Domain:   domain,
			Hostname: opts.Hostname,
			Address:  opts.Host,
		},
		timeout: timeout,
		mounts:  make(map[string]*smb2.Share),
	}, nil
}

func (s *Session) Info() remote.HostInfo {
	return s.info
}

func (s *Session) ListShares(ctx context.Context) ([]remote.ShareInfo, error) {
	if s.sess == nil {
		return nil, remote.ErrNotConnected
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	names, err := s.sess.WithContext(ctx).ListSharenames()
	if err != nil {
		return nil, fmt.Errorf("list shares: %w", err)
	}
	shares := make([]remote.ShareInfo, 0, len(names))
	for _, name := range names {
		shares = append(shares, remote.ShareInfo{Name: name})
	}
	return shares, nil
}

func (s *Session) ListEntries(ctx context.Context, share, dir string) ([]remote.DirEntry, error) {
	fs, err := s.mount(ctx, share)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	infos, err := fs.WithContext(ctx).ReadDir(utils.WindowsPath(dir))
	if err != nil {
		return nil, err
	}
	entries := make([]remote.DirEntry, 0, len(infos))
	for _, info := range infos {
		entries = append(entries, remote.EntryOf(info))
	}
	return entries, nil
}

func (s *Session) Retrieve(ctx context.Context, share, path string, w io.Writer) error {
	fs, err := s.mount(ctx, share)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	f, err := fs.WithContext(ctx).Open(utils.WindowsPath(path))
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(w, f)
	return err
}

// fallbackChunk bounds each positioned read of the fallback path.
const fallbackChunk = 64 * 1024

// OpenRead is the fallback read. The client requests GENERIC_READ for every
// read-only open, so the access mask cannot differ from Retrieve; instead the
// file is opened on a fresh tree connect and read through small positioned
// reads. The whole read is bounded by the session timeout and Close releases
// the handle, the tree connect and the timeout.
func (s *Session) OpenRead(ctx context.Context, share, path string) (io.ReadCloser, error) {
	if s.sess == nil {
		return nil, remote.ErrNotConnected
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	fs, err := s.sess.WithContext(ctx).Mount(share)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("mount %s: %w", share, err)
	}
	f, err := fs.WithContext(ctx).Open(utils.WindowsPath(path))
	if err != nil {
		_ = fs.Umount()
		cancel()
		return nil, err
	}
	return newChunkReader(f, fallbackChunk, func() error {
		defer cancel()
		return fs.Umount()
	}), nil
}

type readAtCloser interface {
	io.ReaderAt
	io.Closer
}

// chunkReader turns positioned reads of at most chunk bytes into a stream.
type chunkReader struct {
	f       readAtCloser
	off     int64
	chunk   int
	release func() error
	closed  bool
}

func newChunkReader(f readAtCloser, chunk int, release func() error) *chunkReader {
	return &chunkReader{f: f, chunk: chunk, release: release}
}

func (r *chunkReader) Read(p []byte) (int, error) {
	if len(p) > r.chunk {
		p = p[:r.chunk]
	}
	n, err := r.f.ReadAt(p, r.off)
	r.off += int64(n)
	if err == io.EOF && n > 0 {
		err = nil
	}
	return n, err
}

func (r *chunkReader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	err := r.f.Close()
	if r.release != nil {
		if rerr := r.release(); err == nil {
			err = rerr
		}
	}
	return err
}

func (s *Session) Close() error {
	s.mu.Lock()
	for name, fs := range s.mounts {
		if err := fs.Umount(); err != nil {
			logger.Debugf("Umount %s failed: %v", name, err)
		}
	}
	s.mounts = map[string]*smb2.Share{}
	s.mu.Unlock()

	var err error
	if s.sess != nil {
		err = s.sess.Logoff()
	}
	if s.conn != nil {
		if cerr := s.conn.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

func (s *Session) mount(ctx context.Context, share string) (*smb2.Share, error) {
	if s.sess == nil {
		return nil, remote.ErrNotConnected
	}
	key := strings.ToUpper(share)
	s.mu.Lock()
	defer s.mu.Unlock()
	if fs, ok := s.mounts[key]; ok {
		return fs, nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	fs, err := s.sess.WithContext(ctx).Mount(share)
	if err != nil {
		return nil, fmt.Errorf("mount %s: %w", share, err)
	}
	s.mounts[key] = fs
	return fs, nil
}

func decodeHash(value string) ([]byte, error) {
	value = strings.TrimSpace(value)
	if i := strings.LastIndex(value, ":"); i >= 0 {
		value = value[i+1:]
	}
	hash, err := hex.DecodeString(value)
	if err != nil {
		return nil, err
	}
	if len(hash) != 16 {
		return nil, fmt.Errorf("expected 16 bytes, got %d", len(hash))
	}
	return hash, nil
}
