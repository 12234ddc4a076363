package p2p

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Artfain/chainledger/core"
	"github.com/stretchr/testify/require"
)

type fakeFetcher struct {
	chains map[string]core.ChainSnapshot
	slow   map[string]bool
	calls  map[string]int
	mutex  sync.Mutex
}

func (f *fakeFetcher) FetchChain(ctx context.Context, address string) (core.ChainSnapshot, error) {
	f.mutex.Lock()
	f.calls[address]++
	f.mutex.Unlock()
	if f.slow[address] {
		// Ignores ctx, like a peer stuck mid-response.
		time.Sleep(2 * time.Second)
	}
	snap, ok := f.chains[address]
	if !ok {
		return core.ChainSnapshot{}, errors.New("connection refused")
	}
	return snap, nil
}

type recordingResolver struct {
	got [][]core.ChainSnapshot
}

func (r *recordingResolver) ResolveConflicts(snapshots []core.ChainSnapshot) bool {
	r.got = append(r.got, snapshots)
	return len(snapshots) > 0
}

func newPeers(t *testing.T, addrs ...string) *Peers {
	t.Helper()
	p := NewPeers()
	for _, a := range addrs {
		_, err := p.Register(a)
		require.NoError(t, err)
	}
	return p
}

func TestCollectSkipsFailedAndSlowPeers(t *testing.T) {
	fetcher := &fakeFetcher{
		chains: map[string]core.ChainSnapshot{
			"good:1": {Length: 1},
			"slow:1": {Length: 9},
			"good:2": {Length: 2},
		},
		slow:  map[string]bool{"slow:1": true},
		calls: map[string]int{},
	}
	peers := newPeers(t, "good:1", "slow:1", "down:1", "good:2")
	syncer := NewSyncer(peers, fetcher, &recordingResolver{}, 100*time.Millisecond)

	start := time.Now()
	snaps := syncer.Collect(context.Background())
	require.Less(t, time.Since(start), time.Second, "a slow peer must not hold up the rest")

	require.ElementsMatch(t, []core.ChainSnapshot{{Length: 1}, {Length: 2}}, snaps)
	for _, addr := range peers.List() {
		require.Equal(t, 1, fetcher.calls[addr], addr)
	}
}

func TestSync(t *testing.T) {
	fetcher := &fakeFetcher{
		chains: map[string]core.ChainSnapshot{"a:1": {Length: 3}},
		calls:  map[string]int{},
	}
	resolver := &recordingResolver{}
	syncer := NewSyncer(newPeers(t, "a:1", "b:1"), fetcher, resolver, time.Second)

	require.True(t, syncer.Sync(context.Background()))
	require.Len(t, resolver.got, 1)
	require.Equal(t, []core.ChainSnapshot{{Length: 3}}, resolver.got[0])

	// No answers, nothing to resolve.
	empty := NewSyncer(newPeers(t, "b:1"), fetcher, resolver, time.Second)
	require.False(t, empty.Sync(context.Background()))
	require.Len(t, resolver.got, 1)
}

func TestRunStopsWithContext(t *testing.T) {
	fetcher := &fakeFetcher{chains: map[string]core.ChainSnapshot{"a:1": {Length: 1}}, calls: map[string]int{}}
	syncer := NewSyncer(newPeers(t, "a:1"), fetcher, &recordingResolver{}, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		syncer.Run(ctx, 10*time.Millisecond)
		close(done)
	}()
	require.Eventually(t, func() bool {
		fetcher.mutex.Lock()
		defer fetcher.mutex.Unlock()
		return fetcher.calls["a:1"] >= 2
	}, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return")
	}
}

func TestPeers(t *testing.T) {
	p := NewPeers()
	tests := []struct {
		in    string
		added bool
	}{
		{"http://192.168.0.5:5000", true},
		{"192.168.0.5:5000", false},
		{"http://192.168.0.5:5000/chain", false},
		{"localhost:5001", true},
	}
	for _, tt := range tests {
		added, err := p.Register(tt.in)
		require.NoError(t, err)
		require.Equal(t, tt.added, added, tt.in)
	}
	require.Equal(t, []string{"192.168.0.5:5000", "localhost:5001"}, p.List())

	_, err := p.Register("  ")
	require.Error(t, err)

	p.Remove("http://localhost:5001")
	require.Equal(t, []string{"192.168.0.5:5000"}, p.List())
}
