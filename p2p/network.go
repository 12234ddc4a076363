package p2p

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/Artfain/chainledger/core"
)

// Fetcher retrieves a peer's chain. Implementations must honour ctx.
type Fetcher interface {
	FetchChain(ctx context.Context, address string) (core.ChainSnapshot, error)
}

// DefaultMaxChainBytes bounds a peer's chain response.
const DefaultMaxChainBytes = 16 << 20

// HTTPFetcher reads GET http://<address>/chain.
type HTTPFetcher struct {
	Client *http.Client
	// MaxBytes caps the response body; longer responses fail to decode.
	MaxBytes int64
}

// NewHTTPFetcher returns a fetcher using the default client and size cap.
func NewHTTPFetcher() *HTTPFetcher {
	return &HTTPFetcher{Client: http.DefaultClient, MaxBytes: DefaultMaxChainBytes}
}

// FetchChain requests the chain of the peer at address.
func (f *HTTPFetcher) FetchChain(ctx context.Context, address string) (core.ChainSnapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+address+"/chain", nil)
	if err != nil {
		return core.ChainSnapshot{}, fmt.Errorf("failed to build request: %v", err)
	}
	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return core.ChainSnapshot{}, fmt.Errorf("failed to reach peer %s: %w", address, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return core.ChainSnapshot{}, fmt.Errorf("peer %s answered %s", address, resp.Status)
	}
	limit := f.MaxBytes
	if limit <= 0 {
		limit = DefaultMaxChainBytes
	}
	var snap core.ChainSnapshot
	if err := json.NewDecoder(io.LimitReader(resp.Body, limit)).Decode(&snap); err != nil {
		return core.ChainSnapshot{}, fmt.Errorf("failed to decode chain from %s: %v", address, err)
	}
	return snap, nil
}
