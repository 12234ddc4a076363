package p2p

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"
)

// Peers is the set of known peer addresses in host:port form.
type Peers struct {
	peers map[string]struct{}
	mutex sync.Mutex
}

// NewPeers creates an empty peer registry.
func NewPeers() *Peers {
	return &Peers{peers: make(map[string]struct{})}
}

// Register accepts a bare host:port or a URL and stores its host:port.
// It reports whether the peer was new.
func (p *Peers) Register(address string) (bool, error) {
	addr, err := NormalizeAddress(address)
	if err != nil {
		return false, err
	}
	p.mutex.Lock()
	defer p.mutex.Unlock()
	if _, ok := p.peers[addr]; ok {
		return false, nil
	}
	p.peers[addr] = struct{}{}
	return true, nil
}

// Remove forgets the peer at address, given in any form Register accepts.
func (p *Peers) Remove(address string) {
	addr, err := NormalizeAddress(address)
	if err != nil {
		return
	}
	p.mutex.Lock()
	defer p.mutex.Unlock()
	delete(p.peers, addr)
}

// List returns the registered addresses sorted.
func (p *Peers) List() []string {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	out := make([]string, 0, len(p.peers))
	for addr := range p.peers {
		out = append(out, addr)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of registered peers.
func (p *Peers) Len() int {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return len(p.peers)
}

// NormalizeAddress reduces "http://host:port/path" or "host:port" to "host:port".
func NormalizeAddress(address string) (string, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return "", fmt.Errorf("empty peer address")
	}
	if !strings.Contains(address, "://") {
		address = "http://" + address
	}
	u, err := url.Parse(address)
	if err != nil {
		return "", fmt.Errorf("invalid peer address %q: %v", address, err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("invalid peer address %q", address)
	}
	return u.Host, nil
}
