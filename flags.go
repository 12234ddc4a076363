package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Artfain/chainledger/core"
)

// parsePairs splits "a=1,b=2.5" into ordered key/value pairs.
func parsePairs(s string) ([]string, []float64, error) {
	var keys []string
	var values []float64
	for _, item := range strings.Split(s, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		key, raw, ok := strings.Cut(item, "=")
		if !ok || key == "" {
			return nil, nil, fmt.Errorf("expected key=value, got %q", item)
		}
		value, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid value for %s: %v", key, err)
		}
		keys = append(keys, key)
		values = append(values, value)
	}
	return keys, values, nil
}

func parseAllocations(s string) ([]core.Allocation, error) {
	keys, values, err := parsePairs(s)
	if err != nil {
		return nil, err
	}
	out := make([]core.Allocation, len(keys))
	for i := range keys {
		out[i] = core.Allocation{Address: keys[i], Amount: values[i]}
	}
	return out, nil
}

func parseValidators(s string) ([]core.Validator, error) {
	keys, values, err := parsePairs(s)
	if err != nil {
		return nil, err
	}
	out := make([]core.Validator, len(keys))
	for i := range keys {
		out[i] = core.Validator{ID: keys[i], Stake: values[i]}
	}
	return out, nil
}

func parsePeers(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
