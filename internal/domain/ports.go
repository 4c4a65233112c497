package domain

import (
	"context"
	"io"
	"net/url"
)

// PortalClient is an authenticated session with the genome portal.
type PortalClient interface {
	// SignOn authenticates the session. Rejected credentials return
	// ErrInvalidCredentials or ErrExpiredAccount.
	SignOn(ctx context.Context, username, password string) error

	// GetCatalog returns the body of the directory listing document.
	GetCatalog(ctx context.Context, params url.Values) (io.ReadCloser, error)

	// Download streams the archive at remotePath, relative to the download base.
	Download(ctx context.Context, remotePath string) (io.ReadCloser, error)
}

// Command describes one external program invocation.
type Command struct {
	Path  string
	Args  []string
	Dir   string
	Stdin io.Reader
}

// CommandResult holds what a finished program wrote and how it exited.
type CommandResult struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
}

// CommandRunner runs external programs to completion.
type CommandRunner interface {
	// Run returns a nil error for any program that ran and exited, whatever
	// its status. Errors mean the program could not be started or waited for.
	Run(ctx context.Context, cmd Command) (CommandResult, error)
}
