// Package remote defines the session boundary the scanner consumes: share
// listing, directory listing and two file retrieval strategies.
package remote

import (
	"context"
	"errors"
	"io"
)

var (
	ErrShareNotFound = errors.New("share not found")
	ErrNotConnected  = errors.New("session not connected")
)

// DirEntry is the normalized directory listing entry.
type DirEntry struct {
	Name  string
	IsDir bool
}

type ShareInfo struct {
	Name string
}

// HostInfo describes the peer of an authenticated session.
type HostInfo struct {
	Domain   string
	Hostname string
	Address  string
}

// Session is an already authenticated connection to one host.
type Session interface {
	Info() HostInfo
	ListShares(ctx context.Context) ([]ShareInfo, error)
	// ListEntries lists dir inside share. dir uses "/" separators and is
	// relative to the share root; "" is the root.
	ListEntries(ctx context.Context, share, dir string) ([]DirEntry, error)
	// Retrieve streams the whole file into w.
	Retrieve(ctx context.Context, share, path string, w io.Writer) error
	// OpenRead opens the file with read-data access only.
	OpenRead(ctx context.Context, share, path string) (io.ReadCloser, error)
	Close() error
}
