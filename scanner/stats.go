package scanner

import "sync/atomic"

// Stats counts remote activity for a run. Safe for concurrent use.
type Stats struct {
	DirectoriesListed atomic.Int64
	ListingFailures   atomic.Int64
	FilesMatched      atomic.Int64
	FilesFetched      atomic.Int64
	FetchFallbacks    atomic.Int64
	FetchFailures     atomic.Int64
	FilesTruncated    atomic.Int64
}

type StatsSnapshot struct {
	DirectoriesListed int64
	ListingFailures   int64
	FilesMatched      int64
	FilesFetched      int64
	FetchFallbacks    int64
	FetchFailures     int64
	FilesTruncated    int64
}

func (s *Stats) Snapshot() StatsSnapshot {
	if s == nil {
		return StatsSnapshot{}
	}
	return StatsSnapshot{
		DirectoriesListed: s.DirectoriesListed.Load(),
		ListingFailures:   s.ListingFailures.Load(),
		FilesMatched:      s.FilesMatched.Load(),
		FilesFetched:      s.FilesFetched.Load(),
		FetchFallbacks:    s.FetchFallbacks.Load(),
		FetchFailures:     s.FetchFailures.Load(),
		FilesTruncated:    s.FilesTruncated.Load(),
	}
}
