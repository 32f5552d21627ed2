// Package fileprocessing turns data-dictionary files into normalized text
// chunks ready for embedding. Files come from IPFS by CID or from disk.
package fileprocessing

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"

	shell "github.com/ipfs/go-ipfs-api"
	"go.uber.org/zap"
)

// DefaultChunkSize bounds the length of one stored chunk.
const DefaultChunkSize = 1000

// Document is an extracted file.
type Document struct {
	Source string
	Type   string
	Text   string
}

// Fetcher reads raw bytes for a CID.
type Fetcher interface {
	Cat(path string) (io.ReadCloser, error)
}

type Loader struct {
	ipfs   Fetcher
	logger *zap.Logger
}

// NewLoader talks to the IPFS HTTP API at apiURL (e.g. localhost:5001). An
// empty apiURL limits the loader to local files.
func NewLoader(apiURL string, logger *zap.Logger) *Loader {
	var f Fetcher
	if apiURL != "" {
		f = shell.NewShell(apiURL)
	}
	return NewLoaderWithFetcher(f, logger)
}

func NewLoaderWithFetcher(f Fetcher, logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{ipfs: f, logger: logger}
}

var cidPattern = regexp.MustCompile(`^(Qm[1-9A-HJ-NP-Za-km-z]{44}|b[a-z2-7]{58,})$`)

// Fetch returns the bytes behind ref, a local path or an IPFS CID.
func (l *Loader) Fetch(ctx context.Context, ref string) ([]byte, error) {
	if _, err := os.Stat(ref); err == nil {
		return os.ReadFile(ref)
	}
	if !cidPattern.MatchString(ref) {
		return nil, fmt.Errorf("%s is neither a readable file nor a CID", ref)
	}
	if l.ipfs == nil {
		return nil, errors.New("ipfs api not configured")
	}

	type result struct {
		b   []byte
		err error
	}
	done := make(chan result, 1)
	go func() {
		rc, err := l.ipfs.Cat(ref)
		if err != nil {
			done <- result{err: fmt.Errorf("error retrieving file from CID: %w", err)}
			return
		}
		defer rc.Close()
		b, err := io.ReadAll(rc)
		if err != nil {
			err = fmt.Errorf("error reading response body: %w", err)
		}
		done <- result{b, err}
	}()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-done:
		return r.b, r.err
	}
}

// Load fetches ref and extracts its text.
func (l *Loader) Load(ctx context.Context, ref string) (Document, error) {
	b, err := l.Fetch(ctx, ref)
	if err != nil {
		return Document{}, err
	}
	typ, err := IdentifyFileType(b)
	if err != nil {
		return Document{}, fmt.Errorf("error identifying file type: %w", err)
	}
	l.logger.Info("detected file type", zap.String("source", ref), zap.String("type", typ))

	text, err := ExtractText(typ, b)
	if err != nil {
		return Document{}, err
	}
	return Document{Source: ref, Type: typ, Text: text}, nil
}

// Chunks loads ref and splits its text into chunks of at most size bytes.
func (l *Loader) Chunks(ctx context.Context, ref string, size int) ([]string, error) {
	doc, err := l.Load(ctx, ref)
	if err != nil {
		return nil, err
	}
	if size <= 0 {
		size = DefaultChunkSize
	}
	return Chunk(doc.Text, size), nil
}
