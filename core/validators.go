package core

import (
	"sort"
	"sync"
)

// Validators is the proof-of-stake registry. It remembers every id ever
// registered so proofs created by a since-removed validator still validate.
type Validators struct {
	stakes map[string]float64
	known  map[string]struct{}
	mutex  sync.Mutex
}

// NewValidators creates a registry holding initial.
func NewValidators(initial ...Validator) *Validators {
	v := &Validators{
		stakes: make(map[string]float64),
		known:  make(map[string]struct{}),
	}
	for _, val := range initial {
		v.Register(val.ID, val.Stake)
	}
	return v
}

// Register adds a validator or replaces its stake. Negative stakes are clamped to zero.
func (v *Validators) Register(id string, stake float64) {
	v.mutex.Lock()
	defer v.mutex.Unlock()
	v.stakes[id] = max(stake, 0)
	v.known[id] = struct{}{}
}

// Remove drops id from selection. It stays known.
func (v *Validators) Remove(id string) {
	v.mutex.Lock()
	defer v.mutex.Unlock()
	delete(v.stakes, id)
}

// Adjust applies delta to a registered validator's stake, never going below zero.
// Unregistered ids are ignored.
func (v *Validators) Adjust(id string, delta float64) {
	v.mutex.Lock()
	defer v.mutex.Unlock()
	stake, ok := v.stakes[id]
	if !ok {
		return
	}
	v.stakes[id] = max(stake+delta, 0)
}

// Stake returns the current stake of id and whether it is registered.
func (v *Validators) Stake(id string) (float64, bool) {
	v.mutex.Lock()
	defer v.mutex.Unlock()
	stake, ok := v.stakes[id]
	return stake, ok
}

// Known reports whether id was ever registered.
func (v *Validators) Known(id string) bool {
	v.mutex.Lock()
	defer v.mutex.Unlock()
	_, ok := v.known[id]
	return ok
}

// Snapshot returns the current validators sorted by id.
func (v *Validators) Snapshot() []Validator {
	v.mutex.Lock()
	defer v.mutex.Unlock()
	out := make([]Validator, 0, len(v.stakes))
	for id, stake := range v.stakes {
		out = append(out, Validator{ID: id, Stake: stake})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
