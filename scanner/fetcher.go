package scanner

import (
	"bytes"
	"context"
	"errors"
	"io"

	"sysvolscan/logger"
	"sysvolscan/remote"

	"golang.org/x/time/rate"
)

const defaultMaxFetchBytes int64 = 10 * 1024 * 1024

var errFetchLimit = errors.New("fetch size limit reached")

// Content is the outcome of a fetch. Unreadable distinguishes "both
// retrieval strategies failed" from a file that is genuinely empty.
type Content struct {
	Text       string
	Raw        []byte
	MIME       string
	Truncated  bool
	Unreadable bool
	Fallback   bool
}

func (c Content) Empty() bool {
	return c.Text == ""
}

type Fetcher struct {
	session remote.Session
	limiter *rate.Limiter
	maxSize int64
	stats   *Stats
}

// NewFetcher returns a fetcher reading at most maxSize bytes per file.
// A non-positive maxSize selects the default of 10 MiB.
func NewFetcher(session remote.Session, limiter *rate.Limiter, maxSize int64, stats *Stats) *Fetcher {
	if maxSize <= 0 {
		maxSize = defaultMaxFetchBytes
	}
	if stats == nil {
		stats = &Stats{}
	}
	return &Fetcher{session: session, limiter: limiter, maxSize: maxSize, stats: stats}
}

// Fetch reads ref through the session's streaming retrieval and, if that
// fails, through an explicit read-access open. It never returns an error;
// a file neither strategy can read comes back Unreadable with empty text.
func (f *Fetcher) Fetch(ctx context.Context, ref FileRef) Content {
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return Content{Unreadable: true}
		}
	}

	data, truncated, err := f.retrieve(ctx, ref)
	fallback := false
	if err != nil {
		logger.Debugf("Retrieve of %s/%s failed, retrying with read access: %v", ref.Share, ref.Path, err)
		f.stats.FetchFallbacks.Add(1)
		fallback = true
		data, truncated, err = f.openRead(ctx, ref)
		if err != nil {
			f.stats.FetchFailures.Add(1)
			logger.Debugf("Failed to read %s/%s: %v", ref.Share, ref.Path, err)
			return Content{Unreadable: true, Fallback: true}
		}
	}
	f.stats.FilesFetched.Add(1)
	if truncated {
		f.stats.FilesTruncated.Add(1)
		logger.Debugf("Content of %s/%s truncated at %d bytes", ref.Share, ref.Path, f.maxSize)
	}
	return Content{
		Text:      DecodeText(data),
		Raw:       data,
		MIME:      sniffMIME(data),
		Truncated: truncated,
		Fallback:  fallback,
	}
}

func (f *Fetcher) retrieve(ctx context.Context, ref FileRef) ([]byte, bool, error) {
	buf := &limitedBuffer{max: f.maxSize}
	err := f.session.Retrieve(ctx, ref.Share, ref.Path, buf)
	if err != nil && !errors.Is(err, errFetchLimit) {
		return nil, false, err
	}
	return buf.Bytes(), buf.truncated, nil
}

func (f *Fetcher) openRead(ctx context.Context, ref FileRef) ([]byte, bool, error) {
	rc, err := f.session.OpenRead(ctx, ref.Share, ref.Path)
	if err != nil {
		return nil, false, err
	}
	defer rc.Close()
	data, err := io.ReadAll(io.LimitReader(rc, f.maxSize+1))
	if err != nil {
		return nil, false, err
	}
	if int64(len(data)) > f.maxSize {
		return data[:f.maxSize], true, nil
	}
	return data, false, nil
}

// limitedBuffer accepts up to max bytes and then fails the write so the
// remote copy stops early.
type limitedBuffer struct {
	bytes.Buffer
	max       int64
	truncated bool
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	room := b.max - int64(b.Len())
	if int64(len(p)) <= room {
		return b.Buffer.Write(p)
	}
	if room > 0 {
		b.Buffer.Write(p[:room])
	}
	b.truncated = true
	return int(room), errFetchLimit
}
