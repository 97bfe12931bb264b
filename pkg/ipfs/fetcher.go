// Package ipfs resolves ipfs:// code URIs against an IPFS node's HTTP API.
package ipfs

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	shell "github.com/ipfs/go-ipfs-api"

	"github.com/R3E-Network/r3e-faas-go/pkg/logging"
)

const (
	uriScheme = "ipfs://"

	// maxCodeBytes bounds a single fetch; function code beyond this is
	// rejected rather than truncated.
	maxCodeBytes = 1 << 20

	defaultTimeout = 30 * time.Second
)

// Fetcher retrieves function code by CID. Satisfies registry.CodeFetcher.
type Fetcher struct {
	sh     *shell.Shell
	logger logging.Logger
}

func NewFetcher(logger logging.Logger, apiURL string) (*Fetcher, error) {
	if apiURL == "" {
		return nil, fmt.Errorf("IPFS API URL cannot be empty")
	}

	sh := shell.NewShell(apiURL)
	sh.SetTimeout(defaultTimeout)
	return &Fetcher{sh: sh, logger: logger}, nil
}

// Fetch resolves an ipfs://<cid> URI (a bare CID also works) to the content
// it names.
func (f *Fetcher) Fetch(ctx context.Context, uri string) (string, error) {
	cid := strings.TrimPrefix(uri, uriScheme)
	if cid == "" {
		return "", fmt.Errorf("empty IPFS CID in %q", uri)
	}

	reader, err := f.sh.Cat(cid)
	if err != nil {
		return "", fmt.Errorf("IPFS cat %s failed: %w", cid, err)
	}
	defer func() { _ = reader.Close() }()

	data, err := io.ReadAll(io.LimitReader(reader, maxCodeBytes+1))
	if err != nil {
		return "", fmt.Errorf("failed to read IPFS content %s: %w", cid, err)
	}
	if len(data) > maxCodeBytes {
		return "", fmt.Errorf("IPFS content %s exceeds %d bytes", cid, maxCodeBytes)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	f.logger.Debugf("[IPFS] fetched %d bytes for %s", len(data), cid)
	return string(data), nil
}
