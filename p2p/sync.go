package p2p

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Artfain/chainledger/core"
)

// Resolver is the chain that peer snapshots are offered to.
type Resolver interface {
	ResolveConflicts(snapshots []core.ChainSnapshot) bool
}

// Syncer fetches every peer's chain concurrently and hands the results to a
// Resolver once all fetches have returned or timed out.
type Syncer struct {
	peers    *Peers
	fetcher  Fetcher
	resolver Resolver
	timeout  time.Duration
}

// NewSyncer creates a syncer that gives each peer fetch at most timeout.
func NewSyncer(peers *Peers, fetcher Fetcher, resolver Resolver, timeout time.Duration) *Syncer {
	return &Syncer{peers: peers, fetcher: fetcher, resolver: resolver, timeout: timeout}
}

// Collect fetches from every registered peer, each bounded by the per-peer
// timeout. Unreachable or slow peers are logged and left out.
func (s *Syncer) Collect(ctx context.Context) []core.ChainSnapshot {
	addrs := s.peers.List()
	results := make([]*core.ChainSnapshot, len(addrs))
	var wg sync.WaitGroup
	for i, addr := range addrs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			snap, err := s.fetch(ctx, addr)
			if err != nil {
				slog.Warn("Peer fetch failed", "peer", addr, "error", err)
				return
			}
			results[i] = &snap
		}()
	}
	wg.Wait()

	snapshots := make([]core.ChainSnapshot, 0, len(addrs))
	for _, r := range results {
		if r != nil {
			snapshots = append(snapshots, *r)
		}
	}
	return snapshots
}

// fetch returns when the fetcher does or the timeout expires, whichever is first.
func (s *Syncer) fetch(ctx context.Context, addr string) (core.ChainSnapshot, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	type result struct {
		snap core.ChainSnapshot
		err  error
	}
	done := make(chan result, 1)
	go func() {
		snap, err := s.fetcher.FetchChain(ctx, addr)
		done <- result{snap, err}
	}()
	select {
	case <-ctx.Done():
		return core.ChainSnapshot{}, ctx.Err()
	case r := <-done:
		return r.snap, r.err
	}
}

// Sync collects peer chains and resolves conflicts. It reports whether the
// local chain was replaced.
func (s *Syncer) Sync(ctx context.Context) bool {
	snapshots := s.Collect(ctx)
	if len(snapshots) == 0 {
		return false
	}
	replaced := s.resolver.ResolveConflicts(snapshots)
	slog.Info("Peer sync finished", "peers", s.peers.Len(), "answered", len(snapshots), "replaced", replaced)
	return replaced
}

// Run syncs every interval until ctx is done.
func (s *Syncer) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sync(ctx)
		}
	}
}
