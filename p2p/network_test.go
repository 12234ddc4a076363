package p2p

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/Artfain/chainledger/core"
	"github.com/stretchr/testify/require"
)

func TestHTTPFetcher(t *testing.T) {
	genesis := core.NewGenesisBlock(core.DefaultConfig())
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chain", r.URL.Path)
		json.NewEncoder(w).Encode(core.ChainSnapshot{Length: 1, Chain: []core.Block{genesis}})
	}))
	defer srv.Close()

	addr := strings.TrimPrefix(srv.URL, "http://")
	snap, err := NewHTTPFetcher().FetchChain(context.Background(), addr)
	require.NoError(t, err)
	require.Equal(t, 1, snap.Length)
	require.Equal(t, genesis, snap.Chain[0])
}

func TestHTTPFetcherErrors(t *testing.T) {
	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer broken.Close()
	_, err := NewHTTPFetcher().FetchChain(context.Background(), strings.TrimPrefix(broken.URL, "http://"))
	require.Error(t, err)

	hung := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer hung.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = NewHTTPFetcher().FetchChain(ctx, strings.TrimPrefix(hung.URL, "http://"))
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestHTTPFetcherSizeLimit(t *testing.T) {
	cfg := core.DefaultConfig()
	for i := range 50 {
		cfg.Allocations = append(cfg.Allocations, core.Allocation{Address: strings.Repeat("a", 40) + strconv.Itoa(i), Amount: 1})
	}
	genesis := core.NewGenesisBlock(cfg)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(core.ChainSnapshot{Length: 1, Chain: []core.Block{genesis}})
	}))
	defer srv.Close()
	addr := strings.TrimPrefix(srv.URL, "http://")

	fetcher := NewHTTPFetcher()
	fetcher.MaxBytes = 512
	_, err := fetcher.FetchChain(context.Background(), addr)
	require.Error(t, err)

	fetcher.MaxBytes = 1 << 20
	snap, err := fetcher.FetchChain(context.Background(), addr)
	require.NoError(t, err)
	require.Equal(t, genesis, snap.Chain[0])
}
